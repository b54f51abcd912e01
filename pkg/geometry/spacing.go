package geometry

import (
	"math"

	"niftitools/internal/models"
	"niftitools/pkg/affine"
	"niftitools/pkg/serrors"
)

func validSpacing(pixdim affine.Vec3) error {
	for _, z := range pixdim {
		if math.IsNaN(z) || math.IsInf(z, 0) || z <= 0 {
			return serrors.With(serrors.ErrGeometry, "voxel spacing %v must be positive", pixdim)
		}
	}
	return nil
}

// RescaleAffine returns an affine whose voxel sizes equal pixdim, obtained by
// scaling each column of a's linear part. The voxel at floor((shape-1)/2)
// keeps its world position, so the field of view stays centred.
func RescaleAffine(a affine.Affine, shape [3]int, pixdim affine.Vec3) (affine.Affine, error) {
	if err := validSpacing(pixdim); err != nil {
		return affine.Affine{}, err
	}
	sizes := a.VoxelSizes()
	lin := a.Linear()
	for j := 0; j < 3; j++ {
		if sizes[j] == 0 {
			return affine.Affine{}, serrors.With(serrors.ErrGeometry, "voxel axis %d has zero length", j)
		}
		for i := 0; i < 3; i++ {
			lin[i][j] *= pixdim[j] / sizes[j]
		}
	}

	var centre affine.Vec3
	for i := 0; i < 3; i++ {
		centre[i] = float64((shape[i] - 1) / 2)
	}
	centroid := a.Apply(centre)
	out := affine.FromMatVec(lin, affine.Vec3{})
	moved := out.ApplyLinear(centre)

	return out.WithTranslation(affine.Vec3{
		centroid[0] - moved[0],
		centroid[1] - moved[1],
		centroid[2] - moved[2],
	}), nil
}

// SetPixDim rewrites the voxel spacing to pixdim and rescales the affine to
// match. The sampling grid is not resampled; use Reslice for that.
func SetPixDim(im *models.Image, pixdim affine.Vec3) (*models.Image, error) {
	aff, err := RescaleAffine(im.Affine(), im.Shape(), pixdim)
	if err != nil {
		return nil, err
	}

	header := im.Header()
	header.PixDim = pixdim
	return newImage(im.Volume(), aff, header)
}
