// Package main provides the niftitools CLI: it runs geometry pipelines over
// NIfTI images, prints image summaries and renders slice previews.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"niftitools/pkg/config"
	"niftitools/pkg/logger"
)

// main sets up the root command, loads settings and logging before any
// subcommand runs, and registers the subcommands.
func main() {
	var (
		configPath string
		cfg        = config.DefaultConfig()
	)

	rootCmd := &cobra.Command{
		Use:          "niftitools",
		Short:        "Geometry normalization for NIfTI images",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "init-config" {
				return nil
			}
			loaded, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			*cfg = *loaded
			logger.Setup(cfg.Environment)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "niftitools.yaml", "settings file path")

	ctx := context.Background()

	defer func() {
		if p := recover(); p != nil {
			logger.Error(ctx, "captured panic, exiting...", zap.Any("panic", p))
			_ = logger.Get(ctx).Sync()

			panic(p)
		}
	}()

	rootCmd.AddCommand(
		runCommand(cfg),
		infoCommand(cfg),
		previewCommand(cfg),
		initConfigCommand(&configPath),
	)

	err := rootCmd.Execute()
	_ = logger.Get(ctx).Sync()
	if err != nil {
		os.Exit(1) //nolint: gocritic
	}
}
