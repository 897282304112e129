package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/ensemble"
)

type extractOptions struct {
	file          string
	language      string
	mode          string
	quality       string
	minConfidence float64
	deadline      time.Duration
	jsonOutput    bool
}

func newExtractCommand(ctx *commandContext) *cobra.Command {
	opts := extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract descriptions from one chapter file or stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := readChapter(cmd, opts.file)
			if err != nil {
				return err
			}

			comps, err := ctx.components(cmd, true)
			if err != nil {
				return err
			}
			defer closeComponents(comps)

			job := domain.ProcessingJob{
				ChapterText:   text,
				Language:      opts.language,
				Mode:          domain.Mode(opts.mode),
				Deadline:      opts.deadline,
				MinConfidence: comps.Config.Extraction.DefaultMinConfidence(),
				QualityTarget: domain.QualityTarget(opts.quality),
			}
			if cmd.Flags().Changed("min-confidence") {
				job.MinConfidence = opts.minConfidence
			}

			res, err := comps.Coordinator.ExtractDescriptions(cmd.Context(), job)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd, res)
			}
			printResult(cmd, res)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.file, "file", "f", "-", "Chapter text file, - for stdin")
	flags.StringVarP(&opts.language, "language", "l", "en", "Chapter language (BCP 47)")
	flags.StringVarP(&opts.mode, "mode", "m", string(domain.ModeAdaptive), "single, parallel, ensemble or adaptive")
	flags.StringVar(&opts.quality, "quality", "", "fast, balanced or high")
	flags.Float64Var(&opts.minConfidence, "min-confidence", 0, "Drop descriptions below this confidence (default from config)")
	flags.DurationVar(&opts.deadline, "deadline", 0, "Job deadline (default from config)")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Print the full result as JSON")
	return cmd
}

func readChapter(cmd *cobra.Command, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" || path == "" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read chapter: %w", err)
	}
	return string(data), nil
}

func printResult(cmd *cobra.Command, res ensemble.Result) {
	out := cmd.OutOrStdout()
	rep := res.Report

	fmt.Fprintf(out, "job %s: mode %s (%s), %d descriptions in %s",
		rep.JobID, rep.Decision.Mode, rep.Decision.Reason, len(res.Descriptions), rep.Duration.Round(time.Millisecond))
	if rep.CacheHit {
		fmt.Fprintf(out, ", cached (%s)", rep.CacheSource)
	}
	fmt.Fprintln(out)
	for _, a := range rep.Adapters {
		fmt.Fprintf(out, "  %-8s %-13s %3d candidates %s\n", a.Processor, a.Outcome, a.Candidates, a.Duration.Round(time.Millisecond))
	}
	if len(res.Descriptions) == 0 {
		return
	}

	rows := make([][]string, 0, len(res.Descriptions))
	for i, d := range res.Descriptions {
		suitable := ""
		if d.SuitableForGeneration {
			suitable = "yes"
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			string(d.Category),
			strconv.FormatFloat(d.ConfidenceScore, 'f', 2, 64),
			strconv.FormatFloat(d.PriorityScore, 'f', 1, 64),
			suitable,
			strings.Join(d.ContributingProcessors, ","),
			d.Text,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Category", "Confidence", "Priority", "Suitable", "Processors", "Text"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight},
	))
}
