package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/logger"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/profiling"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the extraction HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			comps, err := ctx.components(cmd, false)
			if err != nil {
				return err
			}
			defer closeComponents(comps)
			cfg := comps.Config

			profiler, err := profiling.Start(cfg.Profiling, cfg.Service.Name, cfg.Service.Version, comps.Logger)
			if err != nil {
				comps.Logger.Warn("Profiling disabled", logger.Error(err))
			}
			defer func() { _ = profiler.Stop() }()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			comps.StartHealthLoop(runCtx)
			return comps.HTTPServer().RunWithGracefulShutdown(runCtx)
		},
	}
}
