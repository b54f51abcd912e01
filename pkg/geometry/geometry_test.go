package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"niftitools/internal/models"
	"niftitools/pkg/affine"
	"niftitools/pkg/serrors"
)

const tol = 1e-9

// rampImage builds an image whose voxel values are 1..W*H*D in storage order.
func rampImage(t *testing.T, w, h, d int, aff affine.Affine) *models.Image {
	t.Helper()
	vol := models.NewVolume(w, h, d)
	for i := range vol.Data {
		vol.Data[i] = float64(i + 1)
	}
	im, err := models.NewImage(vol, aff, models.Header{QFormCode: models.XformAligned})
	require.NoError(t, err)
	return im
}

func obliqueAffine() affine.Affine {
	c, s := math.Cos(0.4), math.Sin(0.4)
	return affine.FromMatVec([3][3]float64{
		{0.9 * c, -1.1 * s, 0.05},
		{0.9 * s, 1.1 * c, 0},
		{0, 0.02, 1.3},
	}, affine.Vec3{-80.5, 102.25, -45})
}

func assertVec(t *testing.T, want, got affine.Vec3, delta float64) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], delta, "component %d", i)
	}
}

func TestAffineToIdentity(t *testing.T) {
	in := rampImage(t, 3, 4, 5, obliqueAffine())

	out, err := AffineToIdentity(in)
	require.NoError(t, err)

	assert.Equal(t, affine.Identity(), out.Affine())
	assert.True(t, in.Volume().Equal(out.Volume()))
	assert.Equal(t, affine.Vec3{1, 1, 1}, out.PixDim())
	assert.Equal(t, obliqueAffine(), in.Affine(), "input must not change")
}

func TestDegToRad(t *testing.T) {
	assert.Equal(t, 1.57, DegToRad(90))
	assert.Equal(t, 0.79, DegToRad(45))
	assert.Equal(t, 3.14, DegToRad(180))
	assert.Equal(t, -1.57, DegToRad(-90))
	assert.Equal(t, 0.0, DegToRad(0))
}

func TestRoundCentiRadiansHalfToEven(t *testing.T) {
	assert.Equal(t, 0.12, roundCentiRadians(0.125))
	assert.Equal(t, 0.38, roundCentiRadians(0.375))
	assert.Equal(t, -0.12, roundCentiRadians(-0.125))
	assert.Equal(t, 0.13, roundCentiRadians(0.1251))
}

func TestRotateChangesOnlyAffine(t *testing.T) {
	for _, deg := range [][3]float64{{0, 0, 0}, {90, 0, 90}, {15, -30, 45}, {180, 270, 360}} {
		in := rampImage(t, 4, 3, 2, obliqueAffine())
		before := in.Volume().Clone()

		out, err := Rotate(in, deg)
		require.NoError(t, err)

		assert.True(t, before.Equal(out.Volume()), "voxels changed for %v", deg)
		assert.Equal(t, in.Shape(), out.Shape())

		r := RotationMatrices(deg)
		want := r[2].Mul(r[1].Mul(r[0].Mul(in.Affine())))
		assert.True(t, want.ApproxEqual(out.Affine(), tol), "affine mismatch for %v", deg)
	}
}

func TestRotateAxisConventions(t *testing.T) {
	r := RotationMatrices([3]float64{90, 90, 90})
	c, s := math.Cos(1.57), math.Sin(1.57)

	assert.Equal(t, -s, r[0][1][2])
	assert.Equal(t, s, r[0][2][1])
	assert.Equal(t, s, r[1][0][2])
	assert.Equal(t, -s, r[1][2][0])
	assert.Equal(t, -s, r[2][0][1])
	assert.Equal(t, s, r[2][1][0])
	assert.Equal(t, c, r[2][0][0])
}

func TestRotateRejectsNaN(t *testing.T) {
	in := rampImage(t, 2, 2, 2, affine.Identity())
	_, err := Rotate(in, [3]float64{math.NaN(), 0, 0})
	require.ErrorIs(t, err, serrors.ErrGeometry)
}

func TestSetOriginPoint(t *testing.T) {
	in := rampImage(t, 10, 12, 14, obliqueAffine())
	voxel := affine.Vec3{3, 4, 5}

	out, err := SetOriginPoint(in, voxel)
	require.NoError(t, err)

	assertVec(t, affine.Vec3{}, out.Affine().Apply(voxel), tol)
	assert.Equal(t, in.Affine().Linear(), out.Affine().Linear())
	assert.Same(t, in.Volume(), out.Volume())
}

func TestSetPixDim(t *testing.T) {
	in := rampImage(t, 5, 5, 5, affine.Identity())

	out, err := SetPixDim(in, affine.Vec3{2, 0.5, 3})
	require.NoError(t, err)

	aff := out.Affine()
	assert.True(t, aff.IsDiagonal(0))
	assertVec(t, affine.Vec3{2, 0.5, 3}, aff.VoxelSizes(), tol)
	assertVec(t, affine.Vec3{2, 0.5, 3}, out.PixDim(), tol)
	// centre voxel keeps its world position
	assertVec(t, affine.Vec3{2, 2, 2}, aff.Apply(affine.Vec3{2, 2, 2}), tol)
	assert.True(t, in.Volume().Equal(out.Volume()))
}

func TestSetPixDimKeepsDirections(t *testing.T) {
	in := rampImage(t, 6, 7, 8, obliqueAffine())

	out, err := SetPixDim(in, affine.Vec3{1, 1, 1})
	require.NoError(t, err)

	oldLin, newLin := in.Affine().Linear(), out.Affine().Linear()
	sizes := in.Affine().VoxelSizes()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, oldLin[i][j]/sizes[j], newLin[i][j], tol)
		}
	}
	centre := affine.Vec3{2, 3, 3}
	assertVec(t, in.Affine().Apply(centre), out.Affine().Apply(centre), tol)
}

func TestSetPixDimRejectsNonPositive(t *testing.T) {
	in := rampImage(t, 2, 2, 2, affine.Identity())
	for _, pd := range []affine.Vec3{{0, 1, 1}, {1, -1, 1}, {1, 1, math.NaN()}} {
		_, err := SetPixDim(in, pd)
		require.ErrorIs(t, err, serrors.ErrGeometry, "pixdim %v", pd)
	}
}

// assertAnchorKept checks that out is diagonal and maps the anchor of in to the
// offset stored in the header of in.
func assertAnchorKept(t *testing.T, in, out *models.Image, anchor [3]int) {
	t.Helper()
	got := out.Affine()
	assert.True(t, got.IsDiagonal(0))

	a := affine.Vec3{float64(anchor[0]), float64(anchor[1]), float64(anchor[2])}
	assertVec(t, in.Header().QOffset, got.Apply(a), tol)
}

func TestAffineToDiagonal(t *testing.T) {
	aff := affine.FromMatVec([3][3]float64{
		{0, -2, 0},
		{2, 0, 0},
		{0, 0, 2},
	}, affine.Vec3{10, -20, 8})
	in := rampImage(t, 20, 20, 20, aff)

	anchor, err := DiagonalAnchor(in)
	require.NoError(t, err)
	assert.Equal(t, [3]int{-10, -5, 4}, anchor)

	out, err := AffineToDiagonal(in)
	require.NoError(t, err)

	got := out.Affine()
	assertVec(t, affine.Vec3{2, 2, 2}, affine.Vec3{got[0][0], got[1][1], got[2][2]}, tol)
	assertVec(t, affine.Vec3{30, -10, 0}, got.Translation(), tol)
	assertAnchorKept(t, in, out, anchor)

	assert.True(t, in.Volume().Equal(out.Volume()))
}

func TestAffineToDiagonalRoundsToNearest(t *testing.T) {
	aff := affine.Diagonal(affine.Vec3{2, 2, 2}, affine.Vec3{3.2, 2.8, -5.4})
	in := rampImage(t, 4, 4, 4, aff)

	anchor, err := DiagonalAnchor(in)
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 1, -3}, anchor)

	out, err := AffineToDiagonal(in)
	require.NoError(t, err)
	assertAnchorKept(t, in, out, anchor)
}

func TestAffineToDiagonalUsesStoredOffset(t *testing.T) {
	vol := models.NewVolume(4, 4, 4)
	header := models.Header{
		PixDim:    affine.Vec3{1, 1, 1},
		QFormCode: models.XformScanner,
		QOffset:   affine.Vec3{4, -6, 2},
	}
	in, err := models.NewDecodedImage(vol, affine.Identity(), header)
	require.NoError(t, err)

	anchor, err := DiagonalAnchor(in)
	require.NoError(t, err)
	assert.Equal(t, [3]int{4, -6, 2}, anchor)

	out, err := AffineToDiagonal(in)
	require.NoError(t, err)
	assertAnchorKept(t, in, out, anchor)
	assertVec(t, affine.Vec3{4, -6, 2}, out.Affine().Apply(affine.Vec3{4, -6, 2}), tol)
	assertVec(t, affine.Vec3{}, out.Affine().Translation(), tol)
}

func TestAffineToDiagonalRejectsBadSpacing(t *testing.T) {
	header := models.Header{PixDim: affine.Vec3{0, 1, 1}}
	in, err := models.NewDecodedImage(models.NewVolume(2, 2, 2), affine.Identity(), header)
	require.NoError(t, err)

	_, err = AffineToDiagonal(in)
	require.ErrorIs(t, err, serrors.ErrGeometry)
}

func TestClosestOrientation(t *testing.T) {
	aff := affine.FromMatVec([3][3]float64{
		{0, -1, 0},
		{1, 0, 0},
		{0, 0, 1},
	}, affine.Vec3{5, 6, 7})

	o, err := ClosestOrientation(aff)
	require.NoError(t, err)
	assert.Equal(t, [3]int{1, 0, 2}, o.Axis)
	assert.Equal(t, [3]int{1, -1, 1}, o.Sign)
	assert.False(t, o.IsCanonical())

	o, err = ClosestOrientation(obliqueAffine())
	require.NoError(t, err)
	assert.True(t, o.IsCanonical())
}

func TestReorderToCanonical(t *testing.T) {
	for name, aff := range map[string]affine.Affine{
		"swap-and-flip": affine.FromMatVec([3][3]float64{
			{0, -1, 0},
			{1, 0, 0},
			{0, 0, 1},
		}, affine.Vec3{5, 6, 7}),
		"las": affine.Diagonal(affine.Vec3{-1.5, 2, 0.7}, affine.Vec3{40, -20, 10}),
		"tilted": affine.FromMatVec([3][3]float64{
			{0.1, 0, -2},
			{0, -1.2, 0.1},
			{0.9, 0.05, 0},
		}, affine.Vec3{0, 0, 0}),
	} {
		t.Run(name, func(t *testing.T) {
			in := rampImage(t, 2, 3, 4, aff)

			out, err := ReorderToCanonical(in)
			require.NoError(t, err)
			assert.Equal(t, models.XformScanner, out.Header().QFormCode)

			lin := out.Affine().Linear()
			for i := 0; i < 3; i++ {
				assert.Greater(t, lin[i][i], 0.0, "diagonal entry %d", i)
			}

			inv, err := in.Affine().Inverse()
			require.NoError(t, err)

			v := out.Volume()
			assert.Equal(t, in.Volume().Len(), v.Len())
			for z := 0; z < v.Depth; z++ {
				for y := 0; y < v.Height; y++ {
					for x := 0; x < v.Width; x++ {
						world := out.Affine().Apply(affine.Vec3{float64(x), float64(y), float64(z)})
						old := inv.Apply(world)
						ox, oy, oz := int(math.Round(old[0])), int(math.Round(old[1])), int(math.Round(old[2]))
						require.True(t, in.Volume().Contains(ox, oy, oz))
						assert.Equal(t, in.Volume().At(ox, oy, oz), v.At(x, y, z))
					}
				}
			}
		})
	}
}

func TestReorderToCanonicalAlreadyCanonical(t *testing.T) {
	in := rampImage(t, 2, 3, 4, affine.Diagonal(affine.Vec3{1, 1, 1}, affine.Vec3{}))

	out, err := ReorderToCanonical(in)
	require.NoError(t, err)
	assert.Same(t, in.Volume(), out.Volume())
	assert.Equal(t, in.Affine(), out.Affine())
	assert.Equal(t, models.XformScanner, out.Header().QFormCode)
}

func TestResliceSameGrid(t *testing.T) {
	shape := [3]int{4, 5, 6}
	pixdim := affine.Vec3{1.5, 1, 2}
	in := rampImage(t, 4, 5, 6, CenteredAffine(shape, pixdim))

	out, err := Reslice(in, shape, pixdim)
	require.NoError(t, err)

	assert.Equal(t, shape, out.Shape())
	for i, want := range in.Volume().Data {
		assert.InDelta(t, want, out.Volume().Data[i], 1e-6)
	}
}

func TestResliceShapeAndClamp(t *testing.T) {
	in := rampImage(t, 6, 6, 6, affine.Diagonal(affine.Vec3{1, 1, 1}, affine.Vec3{-3, -3, -3}))
	vol := in.Volume().Clone()
	for i := range vol.Data {
		if i%3 == 0 {
			vol.Data[i] = -100
		}
	}
	in, err := models.NewImage(vol, in.Affine(), in.Header())
	require.NoError(t, err)

	target := [3]int{7, 3, 5}
	out, err := Reslice(in, target, affine.Vec3{0.8, 2, 1.1})
	require.NoError(t, err)

	assert.Equal(t, target, out.Shape())
	assert.Len(t, out.Volume().Data, 7*3*5)
	for _, v := range out.Volume().Data {
		assert.GreaterOrEqual(t, v, 0.0)
	}
	assert.True(t, out.Affine().ApproxEqual(CenteredAffine(target, affine.Vec3{0.8, 2, 1.1}), tol))
	assertVec(t, affine.Vec3{0.8, 2, 1.1}, out.PixDim(), tol)
}

func TestResliceRejectsBadTarget(t *testing.T) {
	in := rampImage(t, 2, 2, 2, affine.Identity())

	_, err := Reslice(in, [3]int{0, 2, 2}, affine.Vec3{1, 1, 1})
	require.ErrorIs(t, err, serrors.ErrGeometry)

	_, err = Reslice(in, [3]int{2, 2, 2}, affine.Vec3{1, -1, 1})
	require.ErrorIs(t, err, serrors.ErrGeometry)
}
