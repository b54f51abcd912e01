package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"niftitools/internal/models"
	"niftitools/pkg/affine"
	"niftitools/pkg/serrors"
)

// Orientation assigns every voxel axis to a world axis and a direction.
// Axis[i] is the world axis voxel axis i runs along; Sign[i] is +1 when the
// voxel index grows with the world coordinate and -1 otherwise.
type Orientation struct {
	Axis [3]int
	Sign [3]int
}

// IsCanonical reports whether the orientation is the identity.
func (o Orientation) IsCanonical() bool {
	return o.Axis == [3]int{0, 1, 2} && o.Sign == [3]int{1, 1, 1}
}

const machineEpsilon = 2.220446049250313e-16

var permutations = [6][3]int{
	{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
}

// ClosestOrientation finds, among the 48 axis permutations and flips, the one
// closest to the rotation part of a's linear block.
//
// Columns are first normalized by their voxel size, then replaced by the
// nearest orthogonal matrix (U·Vᵀ from the SVD). The chosen candidate
// maximizes Σ Sign[i]·R[Axis[i]][i].
func ClosestOrientation(a affine.Affine) (Orientation, error) {
	lin := a.Linear()
	zooms := a.VoxelSizes()
	rs := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			z := zooms[j]
			if z == 0 {
				z = 1
			}
			rs.Set(i, j, lin[i][j]/z)
		}
	}

	var svd mat.SVD
	if !svd.Factorize(rs, mat.SVDThin) {
		return Orientation{}, serrors.With(serrors.ErrGeometry, "svd of affine rotation did not converge")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	tol := values[0] * 3 * machineEpsilon
	for _, s := range values {
		if s <= tol {
			return Orientation{}, serrors.With(serrors.ErrGeometry, "affine rotation is rank deficient")
		}
	}
	var r mat.Dense
	r.Mul(&u, v.T())

	best := Orientation{}
	bestScore := math.Inf(-1)
	for _, perm := range permutations {
		for flips := 0; flips < 8; flips++ {
			var cand Orientation
			var score float64
			for i := 0; i < 3; i++ {
				sign := 1
				if flips&(1<<i) != 0 {
					sign = -1
				}
				cand.Axis[i] = perm[i]
				cand.Sign[i] = sign
				score += float64(sign) * r.At(perm[i], i)
			}
			if score > bestScore {
				best, bestScore = cand, score
			}
		}
	}

	return best, nil
}

// orientationTransform returns the transform taking voxel indices of the
// reordered grid to voxel indices of the original grid.
func orientationTransform(o Orientation, shape [3]int) affine.Affine {
	var m affine.Affine
	m[3][3] = 1
	for i := 0; i < 3; i++ {
		m[i][o.Axis[i]] = float64(o.Sign[i])
		if o.Sign[i] < 0 {
			m[i][3] = float64(shape[i] - 1)
		}
	}
	return m
}

// ReorderToCanonical permutes and flips the voxel grid so that each world axis
// is represented by exactly one voxel axis traversed in the positive
// direction. The affine is recomputed so that every voxel keeps its world
// position, and the qform code is set to scanner.
func ReorderToCanonical(im *models.Image) (*models.Image, error) {
	orient, err := ClosestOrientation(im.Affine())
	if err != nil {
		return nil, err
	}

	header := im.Header()
	header.QFormCode = models.XformScanner

	if orient.IsCanonical() {
		return newImage(im.Volume(), im.Affine(), header)
	}

	src := im.Volume()
	shape := src.Shape()
	var newShape [3]int
	for i := 0; i < 3; i++ {
		newShape[orient.Axis[i]] = shape[i]
	}
	dst := models.NewVolume(newShape[0], newShape[1], newShape[2])

	var n, old [3]int
	for n[2] = 0; n[2] < newShape[2]; n[2]++ {
		for n[1] = 0; n[1] < newShape[1]; n[1]++ {
			for n[0] = 0; n[0] < newShape[0]; n[0]++ {
				for i := 0; i < 3; i++ {
					old[i] = n[orient.Axis[i]]
					if orient.Sign[i] < 0 {
						old[i] = shape[i] - 1 - old[i]
					}
				}
				dst.Set(n[0], n[1], n[2], src.At(old[0], old[1], old[2]))
			}
		}
	}

	aff := im.Affine().Mul(orientationTransform(orient, shape))
	return newImage(dst, aff, header)
}

// newImage builds an operator result, reporting inconsistencies as geometry errors.
func newImage(vol *models.Volume, aff affine.Affine, header models.Header) (*models.Image, error) {
	out, err := models.NewImage(vol, aff, header)
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrGeometry, err, "building output image")
	}
	return out, nil
}
