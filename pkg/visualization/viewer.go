// Package visualization renders axis-aligned slices of an image as PNG files,
// a quick visual check of the output of a pipeline.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/go-faster/errors"
	"gonum.org/v1/gonum/floats"

	"niftitools/internal/models"
	"niftitools/pkg/affine"
)

// Viewer extracts 2D slices from an image.
type Viewer struct {
	volume *models.Volume

	// pixdim is the physical voxel size, used to keep slice aspect ratios
	pixdim affine.Vec3

	// intensity window used to map voxels to gray levels
	lo, hi float64
}

// NewViewer creates a viewer over im. Gray levels are scaled between the
// smallest and largest voxel value.
func NewViewer(im *models.Image) *Viewer {
	data := im.Volume().Data
	return &Viewer{
		volume: im.Volume(),
		pixdim: im.PixDim(),
		lo:     floats.Min(data),
		hi:     floats.Max(data),
	}
}

func (v *Viewer) gray(value float64) color.Gray16 {
	if v.hi <= v.lo {
		return color.Gray16{}
	}
	n := (value - v.lo) / (v.hi - v.lo)
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, n*65535)))}
}

// axisSize returns the extent of the volume along axis.
func (v *Viewer) axisSize(axis string) (int, error) {
	switch axis {
	case "x", "X":
		return v.volume.Width, nil
	case "y", "Y":
		return v.volume.Height, nil
	case "z", "Z":
		return v.volume.Depth, nil
	default:
		return 0, errors.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis.
// The slice has one pixel per voxel.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	size, err := v.axisSize(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= size {
		return nil, errors.Errorf("position %d outside axis %s of size %d", position, axis, size)
	}

	w, h, d := v.volume.Width, v.volume.Height, v.volume.Depth
	var img *image.Gray16

	switch axis {
	case "x", "X":
		// YZ plane
		img = image.NewGray16(image.Rect(0, 0, d, h))
		for y := 0; y < h; y++ {
			for z := 0; z < d; z++ {
				img.SetGray16(z, y, v.gray(v.volume.At(position, y, z)))
			}
		}

	case "y", "Y":
		// XZ plane
		img = image.NewGray16(image.Rect(0, 0, w, d))
		for z := 0; z < d; z++ {
			for x := 0; x < w; x++ {
				img.SetGray16(x, z, v.gray(v.volume.At(x, position, z)))
			}
		}

	default:
		// XY plane
		img = image.NewGray16(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetGray16(x, y, v.gray(v.volume.At(x, y, position)))
			}
		}
	}

	return img, nil
}

// spacing returns the physical pixel size of the columns and rows of a slice.
func (v *Viewer) spacing(axis string) (float64, float64) {
	switch axis {
	case "x", "X":
		return v.pixdim[2], v.pixdim[1]
	case "y", "Y":
		return v.pixdim[0], v.pixdim[2]
	default:
		return v.pixdim[0], v.pixdim[1]
	}
}

// RenderSlice extracts a slice and resamples it so that one pixel covers the
// same physical distance along both image axes.
func (v *Viewer) RenderSlice(axis string, position int) (image.Image, error) {
	img, err := v.ExtractSlice(axis, position)
	if err != nil {
		return nil, err
	}

	sx, sy := v.spacing(axis)
	unit := math.Min(sx, sy)
	if unit <= 0 || sx == sy {
		return img, nil
	}
	b := img.Bounds()
	width := max(1, int(math.Round(float64(b.Dx())*sx/unit)))
	height := max(1, int(math.Round(float64(b.Dy())*sy/unit)))
	return imaging.Resize(img, width, height, imaging.Linear), nil
}

// SaveSlice saves a slice; the format follows the file extension.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	if err := imaging.Save(img, filename); err != nil {
		return errors.Wrapf(err, "saving slice %s", filename)
	}
	return nil
}

// SaveSliceSequence renders and saves every slice along the specified axis.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	size, err := v.axisSize(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return errors.Wrap(err, "creating slice directory")
	}

	for pos := 0; pos < size; pos++ {
		img, err := v.RenderSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

// SavePreview writes the middle slice along each axis as base_x.png,
// base_y.png and base_z.png and returns the paths written.
func (v *Viewer) SavePreview(base string) ([]string, error) {
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating preview directory")
	}

	var paths []string
	for _, axis := range []string{"x", "y", "z"} {
		size, _ := v.axisSize(axis)
		img, err := v.RenderSlice(axis, size/2)
		if err != nil {
			return paths, err
		}
		path := base + "_" + axis + ".png"
		if err := v.SaveSlice(img, path); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
