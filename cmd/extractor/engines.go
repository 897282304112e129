package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/engine"
)

func newEnginesCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "engines",
		Short: "Load the configured engines and show their state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			comps, err := ctx.components(cmd, true)
			if err != nil {
				return err
			}
			defer closeComponents(comps)

			for name, checkErr := range comps.Pool.CheckHealth(cmd.Context()) {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: health check failed: %v\n", name, checkErr)
			}

			statuses := comps.Pool.Status()
			if jsonOutput {
				return writeJSON(cmd, statuses)
			}
			fmt.Fprintln(cmd.OutOrStdout(), engineTable(statuses))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print engine state as JSON")
	return cmd
}

func engineTable(statuses []engine.Status) string {
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, []string{
			s.Name,
			s.Version,
			s.State,
			strconv.FormatBool(s.Available),
			strconv.FormatBool(s.Loaded),
			strconv.Itoa(s.Restarts),
			s.LastError,
		})
	}
	return renderTable(
		[]string{"Engine", "Version", "State", "Available", "Loaded", "Restarts", "Last error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	)
}
