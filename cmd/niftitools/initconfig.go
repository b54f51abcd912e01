package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"niftitools/pkg/config"
)

func initConfigCommand(configPath *string) *cobra.Command {
	var pipelinePath string

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Writes a default settings file and an example pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.CreateDefaultConfigFile(*configPath); err != nil {
				return err
			}
			fmt.Printf("Settings written to: %s\n", *configPath)

			if err := config.SavePipeline(config.ExamplePipeline(), pipelinePath); err != nil {
				return err
			}
			fmt.Printf("Example pipeline written to: %s\n", pipelinePath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&pipelinePath, "pipeline", "p", "pipeline.yaml", "pipeline file path")

	return cmd
}
