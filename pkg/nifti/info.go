package nifti

import (
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"niftitools/internal/models"
	"niftitools/pkg/affine"
)

// Summary describes an image for the info command.
type Summary struct {
	Shape     [3]int
	PixDim    affine.Vec3
	QFormCode models.XformCode
	SFormCode models.XformCode
	QOffset   affine.Vec3
	Affine    affine.Affine
	Min       float64
	Max       float64
	Mean      float64
	StdDev    float64
}

// Summarize computes the geometry and intensity statistics of im.
func Summarize(im *models.Image) Summary {
	h := im.Header()
	data := im.Volume().Data
	mean, std := stat.MeanStdDev(data, nil)
	return Summary{
		Shape:     im.Shape(),
		PixDim:    h.PixDim,
		QFormCode: h.QFormCode,
		SFormCode: h.SFormCode,
		QOffset:   h.QOffset,
		Affine:    im.Affine(),
		Min:       floats.Min(data),
		Max:       floats.Max(data),
		Mean:      mean,
		StdDev:    std,
	}
}

// Print writes s in a human readable form.
func (s Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "Shape:      %d x %d x %d\n", s.Shape[0], s.Shape[1], s.Shape[2])
	fmt.Fprintf(w, "Pixdim:     %.4f %.4f %.4f\n", s.PixDim[0], s.PixDim[1], s.PixDim[2])
	fmt.Fprintf(w, "Qform code: %s\n", s.QFormCode)
	fmt.Fprintf(w, "Sform code: %s\n", s.SFormCode)
	fmt.Fprintf(w, "Qoffset:    %.4f %.4f %.4f\n", s.QOffset[0], s.QOffset[1], s.QOffset[2])
	fmt.Fprintf(w, "Affine:\n%s\n", s.Affine)
	fmt.Fprintf(w, "Intensity:  min %.4f max %.4f mean %.4f std %.4f\n", s.Min, s.Max, s.Mean, s.StdDev)
}

// CheckDims reports whether im has the given shape and a voxel spacing within
// tol of pixdim.
func CheckDims(im *models.Image, shape [3]int, pixdim affine.Vec3, tol float64) bool {
	if im.Shape() != shape {
		return false
	}
	pd := im.PixDim()
	for i := range pd {
		if math.Abs(pd[i]-pixdim[i]) > tol {
			return false
		}
	}
	return true
}
