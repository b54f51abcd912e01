package main

import (
	"fmt"
	"os"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"niftitools/pkg/affine"
	"niftitools/pkg/config"
	"niftitools/pkg/nifti"
)

func infoCommand(cfg *config.Config) *cobra.Command {
	var (
		expectDim    []int
		expectPixDim []float64
		tolerance    float64
	)

	cmd := &cobra.Command{
		Use:   "info [flags] IMAGE...",
		Short: "Prints geometry and intensity statistics of images",
		Long: "Prints geometry and intensity statistics of images. With --expect-dim and\n" +
			"--expect-pixdim every image is also checked against the given grid.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			check := len(expectDim) > 0 || len(expectPixDim) > 0
			var (
				shape  [3]int
				pixdim affine.Vec3
			)
			if check {
				if len(expectDim) != 3 || len(expectPixDim) != 3 {
					return errors.New("--expect-dim and --expect-pixdim need three values each")
				}
				copy(shape[:], expectDim)
				copy(pixdim[:], expectPixDim)
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

			var failed, matched int
			for _, path := range paths {
				im, err := codec.Load(path)
				if err != nil {
					fmt.Printf("! %v\n", err)
					failed++
					continue
				}

				fmt.Printf("== %s\n", path)
				nifti.Summarize(im).Print(os.Stdout)
				if check {
					ok := nifti.CheckDims(im, shape, pixdim, tolerance)
					if ok {
						matched++
					}
					fmt.Printf("Matches %v / %v: %t\n", shape, pixdim, ok)
				}
				fmt.Println()
			}

			if check {
				fmt.Printf("[INFO] %d of %d image(s) match\n", matched, len(paths)-failed)
			}
			if failed > 0 {
				return errors.Errorf("%d image(s) could not be read", failed)
			}
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&expectDim, "expect-dim", nil, "expected shape, e.g. 185,256,256")
	cmd.Flags().Float64SliceVar(&expectPixDim, "expect-pixdim", nil, "expected voxel size, e.g. 1,1,1")
	cmd.Flags().Float64Var(&tolerance, "tol", 1e-4, "tolerance of the voxel size check")

	return cmd
}
