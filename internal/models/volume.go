package models

import (
	"github.com/go-faster/errors"
)

// Volume is a 3-D voxel grid.
//
// Data is stored flat with x varying fastest, so the voxel (x, y, z) lives at
// z*Width*Height + y*Width + x. This is the on-disk order of NIfTI files and
// lets the codec copy data without reshuffling.
type Volume struct {
	// Data holds Width*Height*Depth intensities
	Data []float64

	// Width, Height, Depth are the sizes along voxel axes 0, 1, 2
	Width  int
	Height int
	Depth  int
}

// NewVolume allocates a zero-filled volume.
func NewVolume(width, height, depth int) *Volume {
	return &Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
}

// Shape returns the grid size as [W, H, D].
func (v *Volume) Shape() [3]int {
	return [3]int{v.Width, v.Height, v.Depth}
}

// Len returns the number of voxels.
func (v *Volume) Len() int {
	return v.Width * v.Height * v.Depth
}

// Index returns the flat index of voxel (x, y, z).
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// At returns the intensity at voxel (x, y, z).
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores an intensity at voxel (x, y, z).
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// Contains reports whether (x, y, z) is inside the grid.
func (v *Volume) Contains(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < v.Width && y < v.Height && z < v.Depth
}

// Clone returns a deep copy.
func (v *Volume) Clone() *Volume {
	data := make([]float64, len(v.Data))
	copy(data, v.Data)
	return &Volume{Data: data, Width: v.Width, Height: v.Height, Depth: v.Depth}
}

// Equal reports whether both volumes have the same shape and bit-identical data.
func (v *Volume) Equal(o *Volume) bool {
	if v.Shape() != o.Shape() || len(v.Data) != len(o.Data) {
		return false
	}
	for i := range v.Data {
		if v.Data[i] != o.Data[i] {
			return false
		}
	}
	return true
}

// Validate checks that the data length matches the shape.
func (v *Volume) Validate() error {
	if v.Width <= 0 || v.Height <= 0 || v.Depth <= 0 {
		return errors.Errorf("invalid volume shape %v", v.Shape())
	}
	if len(v.Data) != v.Len() {
		return errors.Errorf("volume shape %v needs %d voxels, have %d", v.Shape(), v.Len(), len(v.Data))
	}
	return nil
}
