package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"niftitools/pkg/config"
	"niftitools/pkg/nifti"
	"niftitools/pkg/visualization"
)

func previewCommand(cfg *config.Config) *cobra.Command {
	var (
		axis      string
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "preview [flags] IMAGE...",
		Short: "Writes PNG slices of images",
		Long: "Writes the middle slice along each axis as PNG files. With --axis every\n" +
			"slice along that axis is written to its own directory instead.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			for _, path := range paths {
				im, err := codec.Load(path)
				if err != nil {
					return err
				}
				viewer := visualization.NewViewer(im)

				base := nifti.StripExtension(path)
				if outputDir != "" {
					base = filepath.Join(outputDir, filepath.Base(base))
				}

				if axis != "" {
					dir := base + "_" + axis
					fmt.Printf("Saving %s-axis slices to: %s\n", axis, dir)
					if err := viewer.SaveSliceSequence(axis, dir); err != nil {
						return err
					}
					continue
				}

				written, err := viewer.SavePreview(base)
				if err != nil {
					return err
				}
				for _, w := range written {
					fmt.Println(w)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&axis, "axis", "", "write every slice along x, y or z")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "output directory (default next to each input)")

	return cmd
}
