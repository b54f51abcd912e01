// Package affine implements the 4x4 homogeneous voxel-to-world transforms
// carried by every volumetric image.
//
// An Affine is a value type. All operations return new values so that images
// sharing an affine can never observe each other's changes.
package affine

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-faster/errors"
	"gonum.org/v1/gonum/mat"
)

// singularTol is the smallest absolute determinant accepted for a linear part.
const singularTol = 1e-12

var (
	// ErrSingular is returned when the 3x3 linear part cannot be inverted.
	ErrSingular = errors.New("singular linear part")
	// ErrMalformed is returned for a matrix that is not a homogeneous transform.
	ErrMalformed = errors.New("malformed homogeneous transform")
)

// Affine maps voxel indices (i,j,k,1) to world coordinates (x,y,z,1).
type Affine [4][4]float64

// Vec3 is a point or direction in voxel or world space.
type Vec3 [3]float64

// Identity returns the 4x4 identity transform.
func Identity() Affine {
	return Affine{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// FromMatVec builds a transform from a 3x3 linear part and a translation.
func FromMatVec(m [3][3]float64, t Vec3) Affine {
	a := Identity()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			a[i][j] = m[i][j]
		}
		a[i][3] = t[i]
	}
	return a
}

// Diagonal returns a transform with d on the diagonal of the linear part and
// translation t.
func Diagonal(d, t Vec3) Affine {
	var m [3][3]float64
	for i := 0; i < 3; i++ {
		m[i][i] = d[i]
	}
	return FromMatVec(m, t)
}

// Linear returns the upper-left 3x3 block.
func (a Affine) Linear() [3][3]float64 {
	var m [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] = a[i][j]
		}
	}
	return m
}

// Translation returns the last column, the world position of voxel (0,0,0).
func (a Affine) Translation() Vec3 {
	return Vec3{a[0][3], a[1][3], a[2][3]}
}

// WithTranslation returns a copy of a with its translation replaced by t.
func (a Affine) WithTranslation(t Vec3) Affine {
	for i := 0; i < 3; i++ {
		a[i][3] = t[i]
	}
	return a
}

// Mul returns the product a·b.
func (a Affine) Mul(b Affine) Affine {
	var out Affine
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var s float64
			for k := 0; k < 4; k++ {
				s += a[i][k] * b[k][j]
			}
			out[i][j] = s
		}
	}
	return out
}

// Apply maps a voxel coordinate to world space.
func (a Affine) Apply(p Vec3) Vec3 {
	var out Vec3
	for i := 0; i < 3; i++ {
		out[i] = a[i][0]*p[0] + a[i][1]*p[1] + a[i][2]*p[2] + a[i][3]
	}
	return out
}

// ApplyLinear maps p through the linear part only.
func (a Affine) ApplyLinear(p Vec3) Vec3 {
	var out Vec3
	for i := 0; i < 3; i++ {
		out[i] = a[i][0]*p[0] + a[i][1]*p[1] + a[i][2]*p[2]
	}
	return out
}

// VoxelSizes returns the Euclidean norms of the linear part's columns, i.e. the
// physical length of one voxel step along each voxel axis.
func (a Affine) VoxelSizes() Vec3 {
	var out Vec3
	for j := 0; j < 3; j++ {
		out[j] = math.Sqrt(a[0][j]*a[0][j] + a[1][j]*a[1][j] + a[2][j]*a[2][j])
	}
	return out
}

// Dense returns a copy of a as a gonum matrix.
func (a Affine) Dense() *mat.Dense {
	data := make([]float64, 0, 16)
	for i := 0; i < 4; i++ {
		data = append(data, a[i][:]...)
	}
	return mat.NewDense(4, 4, data)
}

func (a Affine) linearDense() *mat.Dense {
	m := a.Linear()
	return mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
}

// FromDense converts a 4x4 gonum matrix back into an Affine.
func FromDense(m mat.Matrix) (Affine, error) {
	r, c := m.Dims()
	if r != 4 || c != 4 {
		return Affine{}, errors.Wrapf(ErrMalformed, "got %dx%d matrix", r, c)
	}
	var a Affine
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			a[i][j] = m.At(i, j)
		}
	}
	return a, nil
}

// Det returns the determinant of the linear part.
func (a Affine) Det() float64 {
	return mat.Det(a.linearDense())
}

// Inverse returns the inverse transform.
func (a Affine) Inverse() (Affine, error) {
	if math.Abs(a.Det()) < singularTol {
		return Affine{}, ErrSingular
	}
	var inv mat.Dense
	if err := inv.Inverse(a.Dense()); err != nil {
		return Affine{}, errors.Wrap(ErrSingular, err.Error())
	}
	return FromDense(&inv)
}

// SolveLinear solves L·v = b for v, where L is the linear part of a.
func (a Affine) SolveLinear(b Vec3) (Vec3, error) {
	if math.Abs(a.Det()) < singularTol {
		return Vec3{}, ErrSingular
	}
	var x mat.VecDense
	if err := x.SolveVec(a.linearDense(), mat.NewVecDense(3, []float64{b[0], b[1], b[2]})); err != nil {
		return Vec3{}, errors.Wrap(ErrSingular, err.Error())
	}
	return Vec3{x.AtVec(0), x.AtVec(1), x.AtVec(2)}, nil
}

// Validate reports whether a is a finite, invertible homogeneous transform.
func (a Affine) Validate() error {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.IsNaN(a[i][j]) || math.IsInf(a[i][j], 0) {
				return errors.Wrapf(ErrMalformed, "non-finite entry at [%d,%d]", i, j)
			}
		}
	}
	if a[3] != [4]float64{0, 0, 0, 1} {
		return errors.Wrapf(ErrMalformed, "bottom row is %v", a[3])
	}
	if math.Abs(a.Det()) < singularTol {
		return ErrSingular
	}
	return nil
}

// IsDiagonal reports whether every off-diagonal entry of the linear part is
// within tol of zero.
func (a Affine) IsDiagonal(tol float64) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if i != j && math.Abs(a[i][j]) > tol {
				return false
			}
		}
	}
	return true
}

// ApproxEqual compares two transforms entry by entry.
func (a Affine) ApproxEqual(b Affine, tol float64) bool {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(a[i][j]-b[i][j]) > tol {
				return false
			}
		}
	}
	return true
}

func (a Affine) String() string {
	var sb strings.Builder
	for i := 0; i < 4; i++ {
		fmt.Fprintf(&sb, "[%10.4f %10.4f %10.4f %10.4f]", a[i][0], a[i][1], a[i][2], a[i][3])
		if i < 3 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
