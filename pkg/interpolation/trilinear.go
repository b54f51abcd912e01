// Package interpolation samples a voxel grid at fractional coordinates and
// resamples whole volumes onto new grids.
package interpolation

import (
	"math"
	"runtime"
	"sync"

	"niftitools/internal/models"
	"niftitools/pkg/affine"
)

// Trilinear samples v at a fractional voxel coordinate. Neighbours outside the
// grid count as zero, so samples fade out over the last voxel beyond an edge.
func Trilinear(v *models.Volume, p affine.Vec3) float64 {
	x0, y0, z0 := math.Floor(p[0]), math.Floor(p[1]), math.Floor(p[2])
	fx, fy, fz := p[0]-x0, p[1]-y0, p[2]-z0
	ix, iy, iz := int(x0), int(y0), int(z0)

	if ix < -1 || iy < -1 || iz < -1 || ix >= v.Width || iy >= v.Height || iz >= v.Depth {
		return 0
	}

	at := func(x, y, z int) float64 {
		if !v.Contains(x, y, z) {
			return 0
		}
		return v.At(x, y, z)
	}

	c00 := at(ix, iy, iz)*(1-fx) + at(ix+1, iy, iz)*fx
	c10 := at(ix, iy+1, iz)*(1-fx) + at(ix+1, iy+1, iz)*fx
	c01 := at(ix, iy, iz+1)*(1-fx) + at(ix+1, iy, iz+1)*fx
	c11 := at(ix, iy+1, iz+1)*(1-fx) + at(ix+1, iy+1, iz+1)*fx

	c0 := c00*(1-fy) + c10*fy
	c1 := c01*(1-fy) + c11*fy

	return c0*(1-fz) + c1*fz
}

// Params control Resample.
type Params struct {
	// NumCores is how many goroutines share the target slices; 0 uses all CPUs
	NumCores int

	// ClampNegative replaces negative samples with zero
	ClampNegative bool
}

// Resample fills a grid of the given shape. Target voxel idx takes the value of
// src at vox2vox·idx, where vox2vox maps target voxel indices to source ones.
func Resample(src *models.Volume, shape [3]int, vox2vox affine.Affine, params Params) *models.Volume {
	dst := models.NewVolume(shape[0], shape[1], shape[2])

	numCores := params.NumCores
	if numCores <= 0 {
		numCores = runtime.NumCPU()
	}
	numSlices := shape[2]
	slicesPerCore := (numSlices + numCores - 1) / numCores

	// every core owns a contiguous range of target z slices
	var wg sync.WaitGroup
	for c := 0; c < numCores; c++ {
		startSlice := c * slicesPerCore
		endSlice := min(startSlice+slicesPerCore, numSlices)
		if startSlice >= endSlice {
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			for z := startSlice; z < endSlice; z++ {
				for y := 0; y < shape[1]; y++ {
					for x := 0; x < shape[0]; x++ {
						value := Trilinear(src, vox2vox.Apply(affine.Vec3{float64(x), float64(y), float64(z)}))
						if params.ClampNegative && value < 0 {
							value = 0
						}
						dst.Set(x, y, z, value)
					}
				}
			}
		}()
	}
	wg.Wait()

	return dst
}
