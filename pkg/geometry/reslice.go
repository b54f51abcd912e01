package geometry

import (
	"niftitools/internal/models"
	"niftitools/pkg/affine"
	"niftitools/pkg/interpolation"
	"niftitools/pkg/serrors"
)

// CenteredAffine returns the affine of a grid with the given shape and spacing,
// axis aligned and centred on the world origin.
func CenteredAffine(shape [3]int, pixdim affine.Vec3) affine.Affine {
	var t affine.Vec3
	for i := 0; i < 3; i++ {
		t[i] = -float64(shape[i]-1) / 2 * pixdim[i]
	}
	return affine.Diagonal(pixdim, t)
}

// Reslice resamples the image onto a grid of the given shape and spacing,
// centred on the world origin, using trilinear interpolation. Intensities
// below zero are interpolation artifacts and are clamped to zero.
func Reslice(im *models.Image, shape [3]int, pixdim affine.Vec3) (*models.Image, error) {
	for _, n := range shape {
		if n <= 0 {
			return nil, serrors.With(serrors.ErrGeometry, "target shape %v must be positive", shape)
		}
	}
	if err := validSpacing(pixdim); err != nil {
		return nil, err
	}

	dstAff := CenteredAffine(shape, pixdim)
	srcInv, err := im.Affine().Inverse()
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrGeometry, err, "inverting source affine")
	}
	vox2vox := srcInv.Mul(dstAff)

	dst := interpolation.Resample(im.Volume(), shape, vox2vox, interpolation.Params{ClampNegative: true})

	header := im.Header()
	header.PixDim = pixdim
	return newImage(dst, dstAff, header)
}
