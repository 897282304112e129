package main

import (
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/config"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/logger"
)

// commandContext loads configuration once per invocation.
type commandContext struct {
	configPath *string
	cfg        *config.Config
}

func (c *commandContext) loadConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := bootstrap.LoadConfig(*c.configPath)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

// components builds the extractor. quiet keeps logs off stdout for commands
// that print results there.
func (c *commandContext) components(cmd *cobra.Command, quiet bool) (*bootstrap.Components, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	if quiet {
		cfg.Logging.OutputPaths = []string{"stderr"}
	}
	log, err := bootstrap.CreateLogger(cfg)
	if err != nil {
		return nil, err
	}
	comps, err := bootstrap.New(cmd.Context(), cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return comps, nil
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configPath: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "extractor",
		Short:         "Extract illustratable scene descriptions from chapter text",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default $CONFIG_PATH or config.yml)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newExtractCommand(ctx))
	rootCmd.AddCommand(newEnginesCommand(ctx))
	return rootCmd
}

func closeComponents(comps *bootstrap.Components) {
	if err := comps.Close(); err != nil {
		comps.Logger.Warn("Shutdown error", logger.Error(err))
	}
	_ = comps.Logger.Sync()
}
