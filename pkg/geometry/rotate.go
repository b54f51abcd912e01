package geometry

import (
	"math"

	"niftitools/internal/models"
	"niftitools/pkg/affine"
	"niftitools/pkg/serrors"
)

// DegToRad converts degrees to radians rounded to two decimals. Rotated
// outputs depend on this rounding, so it must not be made more precise.
func DegToRad(deg float64) float64 {
	return roundCentiRadians(deg * math.Pi / 180)
}

// roundCentiRadians rounds to two decimals, halves going to the even digit.
func roundCentiRadians(rad float64) float64 {
	return math.RoundToEven(rad*100) / 100
}

// RotationMatrices returns the elementary rotations about voxel axes 1, 2 and 3
// for the given angles in degrees.
func RotationMatrices(degrees [3]float64) [3]affine.Affine {
	a1, a2, a3 := DegToRad(degrees[0]), DegToRad(degrees[1]), DegToRad(degrees[2])
	c1, s1 := math.Cos(a1), math.Sin(a1)
	c2, s2 := math.Cos(a2), math.Sin(a2)
	c3, s3 := math.Cos(a3), math.Sin(a3)

	r1 := affine.Affine{
		{1, 0, 0, 0},
		{0, c1, -s1, 0},
		{0, s1, c1, 0},
		{0, 0, 0, 1},
	}
	r2 := affine.Affine{
		{c2, 0, s2, 0},
		{0, 1, 0, 0},
		{-s2, 0, c2, 0},
		{0, 0, 0, 1},
	}
	r3 := affine.Affine{
		{c3, -s3, 0, 0},
		{s3, c3, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
	return [3]affine.Affine{r1, r2, r3}
}

// Rotate composes the three axis rotations onto the affine as R3·(R2·(R1·A)).
// The voxel grid is left untouched: the rotation changes what the existing
// samples mean physically, nothing is interpolated.
func Rotate(im *models.Image, degrees [3]float64) (*models.Image, error) {
	for _, d := range degrees {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return nil, serrors.With(serrors.ErrGeometry, "rotation angle %v is not finite", d)
		}
	}

	aff := im.Affine()
	for _, r := range RotationMatrices(degrees) {
		aff = r.Mul(aff)
	}

	return newImage(im.Volume(), aff, im.Header())
}

// SetOriginPoint moves the world origin to the given voxel: the voxel's current
// world position p is subtracted from the translation so that the new affine
// maps the voxel to (0,0,0). The linear part is unchanged.
func SetOriginPoint(im *models.Image, voxel affine.Vec3) (*models.Image, error) {
	for _, c := range voxel {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, serrors.With(serrors.ErrGeometry, "origin voxel %v is not finite", voxel)
		}
	}

	p := im.Affine().Apply(voxel)
	shift := affine.Identity().WithTranslation(affine.Vec3{-p[0], -p[1], -p[2]})

	return newImage(im.Volume(), shift.Mul(im.Affine()), im.Header())
}
