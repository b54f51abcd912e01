package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"niftitools/pkg/config"
	"niftitools/pkg/logger"
	"niftitools/pkg/nifti"
	"niftitools/pkg/pipeline"
	"niftitools/pkg/visualization"
)

func runCommand(cfg *config.Config) *cobra.Command {
	var (
		pipelinePath string
		workers      int
		outputDir    string
		preview      bool
	)

	cmd := &cobra.Command{
		Use:   "run [flags] IMAGE...",
		Short: "Runs the configured pipeline over every image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			flags := cmd.Flags()
			if flags.Changed("workers") {
				cfg.Processing.Workers = workers
			}
			if flags.Changed("output-dir") {
				cfg.Output.Dir = outputDir
			}
			if flags.Changed("preview") {
				cfg.Output.Preview = preview
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			steps, err := config.LoadPipeline(pipelinePath)
			if err != nil {
				return err
			}
			transforms, err := steps.Transforms()
			if err != nil {
				return err
			}

			opts, err := cfg.CodecOptions()
			if err != nil {
				return err
			}
			codec, err := nifti.NewCodec(opts)
			if err != nil {
				return err
			}

			paths, err := expandInputs(args)
			if err != nil {
				return err
			}

			dir := cfg.Output.Dir
			p, err := pipeline.New(transforms, codec, codec, pipeline.Options{
				Workers: cfg.Processing.Workers,
				OutputPath: func(original string, suffix pipeline.Suffix) string {
					return nifti.OutputPath(original, string(suffix), dir)
				},
			})
			if err != nil {
				return err
			}

			fmt.Println("================================")
			fmt.Println("NIFTI GEOMETRY PIPELINE")
			fmt.Println("================================")
			fmt.Printf("Steps:   %v\n", p.Steps())
			fmt.Printf("Images:  %d\n", len(paths))
			fmt.Printf("Workers: %d\n\n", cfg.Processing.Workers)

			startTime := time.Now()
			report, runErr := p.Run(ctx, paths)
			processingTime := time.Since(startTime)

			if cfg.Output.Preview {
				writePreviews(ctx, codec, report)
			}

			failed := report.Failed()
			fmt.Printf("\nProcessed %d image(s) in %.2f seconds, %d failed\n",
				len(report.Results), processingTime.Seconds(), len(failed))
			for _, res := range report.Results {
				if res.Err == nil && len(res.Outputs) > 0 {
					fmt.Printf("- %s -> %s\n", res.Input, res.Outputs[len(res.Outputs)-1])
				}
			}
			for _, res := range failed {
				fmt.Printf("! %v\n", res.Err)
			}

			if runErr != nil {
				return runErr
			}
			if len(failed) > 0 {
				return errors.Errorf("%d of %d image(s) failed", len(failed), len(report.Results))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&pipelinePath, "pipeline", "p", "pipeline.yaml", "pipeline file path")
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "images processed concurrently (overrides settings)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "output directory (default next to each input)")
	cmd.Flags().BoolVar(&preview, "preview", false, "write PNG mid-slices of every final image")

	return cmd
}

// writePreviews renders the final output of every successful image.
func writePreviews(ctx context.Context, codec *nifti.Codec, report pipeline.Report) {
	for _, res := range report.Results {
		if res.Err != nil || len(res.Outputs) == 0 {
			continue
		}
		final := res.Outputs[len(res.Outputs)-1]
		im, err := codec.Load(final)
		if err != nil {
			logger.Warn(ctx, "could not load output for preview", zap.String("path", final), zap.Error(err))
			continue
		}
		if _, err := visualization.NewViewer(im).SavePreview(nifti.StripExtension(final)); err != nil {
			logger.Warn(ctx, "could not write preview", zap.String("path", final), zap.Error(err))
		}
	}
}
