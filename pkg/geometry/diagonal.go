package geometry

import (
	"math"

	"niftitools/internal/models"
	"niftitools/pkg/affine"
	"niftitools/pkg/serrors"
)

// AffineToIdentity drops all spatial information: the result has the identity
// affine, a default header and the same voxels.
func AffineToIdentity(im *models.Image) (*models.Image, error) {
	header := models.DefaultHeader()
	header.Description = im.Header().Description
	header.DataType = im.Header().DataType

	return newImage(im.Volume(), affine.Identity(), header)
}

// DiagonalAnchor solves L·v = QOffset for v, L being the affine's linear part,
// and rounds v to the nearest voxel index with ties to even.
func DiagonalAnchor(im *models.Image) ([3]int, error) {
	v, err := im.Affine().SolveLinear(im.Header().QOffset)
	if err != nil {
		return [3]int{}, serrors.Wrap(serrors.ErrGeometry, err, "locating diagonal anchor")
	}

	var anchor [3]int
	for i, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return [3]int{}, serrors.With(serrors.ErrGeometry, "diagonal anchor %v is not finite", v)
		}
		anchor[i] = int(math.RoundToEven(c))
	}
	return anchor, nil
}

// AffineToDiagonal replaces the linear part with diag(PixDim), dropping
// rotation and shear. The translation is QOffset - D·anchor, anchor being
// DiagonalAnchor, so the anchor voxel keeps its world position QOffset.
func AffineToDiagonal(im *models.Image) (*models.Image, error) {
	anchor, err := DiagonalAnchor(im)
	if err != nil {
		return nil, err
	}

	pixdim := im.PixDim()
	if err := validSpacing(pixdim); err != nil {
		return nil, err
	}

	offset := im.Header().QOffset
	var t affine.Vec3
	for i := 0; i < 3; i++ {
		t[i] = offset[i] - pixdim[i]*float64(anchor[i])
	}

	return newImage(im.Volume(), affine.Diagonal(pixdim, t), im.Header())
}
