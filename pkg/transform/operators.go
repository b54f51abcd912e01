package transform

import (
	"context"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"niftitools/internal/models"
	"niftitools/pkg/affine"
	"niftitools/pkg/geometry"
	"niftitools/pkg/serrors"
)

// ReorderParams configures reorder_to_canonical. It has no parameters of its own.
type ReorderParams struct {
	Options `yaml:",inline"`
}

// RotateParams configures rotate.
type RotateParams struct {
	Options `yaml:",inline"`
	// Degrees holds one angle per voxel axis. Required.
	Degrees []float64 `yaml:"degrees"`
}

// OriginParams configures set_origin_point.
type OriginParams struct {
	Options `yaml:",inline"`
	// Voxel is the voxel coordinate that becomes the world origin. Required.
	Voxel []float64 `yaml:"voxel"`
}

// PixDimParams configures set_pixel_dimension.
type PixDimParams struct {
	Options `yaml:",inline"`
	// PixDim is the new voxel spacing, all positive. Required.
	PixDim []float64 `yaml:"pixdim"`
}

// DiagonalParams configures affine_to_diagonal.
type DiagonalParams struct {
	Options `yaml:",inline"`
}

// IdentityParams configures affine_to_identity.
type IdentityParams struct {
	Options `yaml:",inline"`
}

// ResliceParams configures reslice.
type ResliceParams struct {
	Options `yaml:",inline"`
	// Dim is the target grid shape, all positive. Required.
	Dim []int `yaml:"dim"`
	// PixDim is the target voxel spacing, all positive. Required.
	PixDim []float64 `yaml:"pixdim"`
}

func vec3(op, field string, values []float64, positive bool) (affine.Vec3, error) {
	var v affine.Vec3
	if values == nil {
		return v, serrors.With(serrors.ErrConfiguration, "%s: missing required parameter %q", op, field)
	}
	if len(values) != 3 {
		return v, serrors.With(serrors.ErrConfiguration, "%s: %q needs 3 values, got %d", op, field, len(values))
	}
	for i, x := range values {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return v, serrors.With(serrors.ErrConfiguration, "%s: %q[%d] is not finite", op, field, i)
		}
		if positive && x <= 0 {
			return v, serrors.With(serrors.ErrConfiguration, "%s: %q[%d] must be positive, got %v", op, field, i, x)
		}
		v[i] = x
	}
	return v, nil
}

func formatDegrees(deg affine.Vec3) string {
	parts := make([]string, len(deg))
	for i, d := range deg {
		parts[i] = strconv.FormatFloat(d, 'f', -1, 64)
	}
	return strings.Join(parts, "_")
}

// ReorderToCanonical reorders voxels to the closest canonical orientation.
type ReorderToCanonical struct {
	base
}

// NewReorderToCanonical builds a reorder_to_canonical step.
func NewReorderToCanonical(p ReorderParams) *ReorderToCanonical {
	return &ReorderToCanonical{base: newBase(ReorderToCanonicalName, "Reorder to canonical", "reo", p.Options)}
}

func (t *ReorderToCanonical) Apply(ctx context.Context, im *models.Image) (*models.Image, error) {
	t.logApply(ctx)
	return geometry.ReorderToCanonical(im)
}

// Rotate relabels the image geometry by three axis rotations.
type Rotate struct {
	base
	degrees affine.Vec3
}

// NewRotate builds a rotate step.
func NewRotate(p RotateParams) (*Rotate, error) {
	deg, err := vec3(RotateName, "degrees", p.Degrees, false)
	if err != nil {
		return nil, err
	}
	return &Rotate{
		base:    newBase(RotateName, "Rotate", "rot_"+formatDegrees(deg), p.Options),
		degrees: deg,
	}, nil
}

func (t *Rotate) Apply(ctx context.Context, im *models.Image) (*models.Image, error) {
	t.logApply(ctx, zap.Float64s("degrees", t.degrees[:]))
	return geometry.Rotate(im, t.degrees)
}

// SetOriginPoint moves the world origin to a voxel.
type SetOriginPoint struct {
	base
	voxel affine.Vec3
}

// NewSetOriginPoint builds a set_origin_point step.
func NewSetOriginPoint(p OriginParams) (*SetOriginPoint, error) {
	voxel, err := vec3(SetOriginPointName, "voxel", p.Voxel, false)
	if err != nil {
		return nil, err
	}
	return &SetOriginPoint{base: newBase(SetOriginPointName, "Set origin point", "op", p.Options), voxel: voxel}, nil
}

func (t *SetOriginPoint) Apply(ctx context.Context, im *models.Image) (*models.Image, error) {
	t.logApply(ctx, zap.Float64s("voxel", t.voxel[:]))
	return geometry.SetOriginPoint(im, t.voxel)
}

// SetPixDim changes the voxel spacing without resampling.
type SetPixDim struct {
	base
	pixdim affine.Vec3
}

// NewSetPixDim builds a set_pixel_dimension step.
func NewSetPixDim(p PixDimParams) (*SetPixDim, error) {
	pd, err := vec3(SetPixelDimensionName, "pixdim", p.PixDim, true)
	if err != nil {
		return nil, err
	}
	return &SetPixDim{base: newBase(SetPixelDimensionName, "Set pixel dimension", "pd", p.Options), pixdim: pd}, nil
}

func (t *SetPixDim) Apply(ctx context.Context, im *models.Image) (*models.Image, error) {
	t.logApply(ctx, zap.Float64s("pixdim", t.pixdim[:]))
	return geometry.SetPixDim(im, t.pixdim)
}

// AffineToDiagonal drops rotation and shear from the affine.
type AffineToDiagonal struct {
	base
}

// NewAffineToDiagonal builds an affine_to_diagonal step.
func NewAffineToDiagonal(p DiagonalParams) *AffineToDiagonal {
	return &AffineToDiagonal{base: newBase(AffineToDiagonalName, "Affine to diagonal", "diag", p.Options)}
}

func (t *AffineToDiagonal) Apply(ctx context.Context, im *models.Image) (*models.Image, error) {
	t.logApply(ctx)
	return geometry.AffineToDiagonal(im)
}

// AffineToIdentity resets the geometry to the identity.
type AffineToIdentity struct {
	base
}

// NewAffineToIdentity builds an affine_to_identity step.
func NewAffineToIdentity(p IdentityParams) *AffineToIdentity {
	return &AffineToIdentity{base: newBase(AffineToIdentityName, "Affine to identity", "ident", p.Options)}
}

func (t *AffineToIdentity) Apply(ctx context.Context, im *models.Image) (*models.Image, error) {
	t.logApply(ctx)
	return geometry.AffineToIdentity(im)
}

// Reslice resamples the voxel grid.
type Reslice struct {
	base
	dim    [3]int
	pixdim affine.Vec3
}

// NewReslice builds a reslice step.
func NewReslice(p ResliceParams) (*Reslice, error) {
	if p.Dim == nil {
		return nil, serrors.With(serrors.ErrConfiguration, "%s: missing required parameter %q", ResliceName, "dim")
	}
	if len(p.Dim) != 3 {
		return nil, serrors.With(serrors.ErrConfiguration, "%s: %q needs 3 values, got %d", ResliceName, "dim", len(p.Dim))
	}
	var dim [3]int
	for i, n := range p.Dim {
		if n <= 0 {
			return nil, serrors.With(serrors.ErrConfiguration, "%s: %q[%d] must be positive, got %d", ResliceName, "dim", i, n)
		}
		dim[i] = n
	}
	pd, err := vec3(ResliceName, "pixdim", p.PixDim, true)
	if err != nil {
		return nil, err
	}
	return &Reslice{base: newBase(ResliceName, "Reslice", "res", p.Options), dim: dim, pixdim: pd}, nil
}

func (t *Reslice) Apply(ctx context.Context, im *models.Image) (*models.Image, error) {
	t.logApply(ctx, zap.Ints("dim", t.dim[:]), zap.Float64s("pixdim", t.pixdim[:]))
	return geometry.Reslice(im, t.dim, t.pixdim)
}
