// Package transform wraps each geometry operator with its validated parameters,
// its naming tag and its export flags behind one Transform interface.
//
// The catalog is closed: Build only knows the operator names listed in Names,
// and every parameter struct is validated when the transform is built, so a
// pipeline never fails on configuration halfway through a batch.
package transform

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"niftitools/internal/models"
	"niftitools/pkg/logger"
	"niftitools/pkg/serrors"
)

// Catalog names.
const (
	ReorderToCanonicalName = "reorder_to_canonical"
	RotateName             = "rotate"
	SetOriginPointName     = "set_origin_point"
	SetPixelDimensionName  = "set_pixel_dimension"
	AffineToDiagonalName   = "affine_to_diagonal"
	AffineToIdentityName   = "affine_to_identity"
	ResliceName            = "reslice"
)

// Transform is one step of a pipeline.
type Transform interface {
	// Name is the catalog name the transform was built from.
	Name() string
	// Title is a human readable label logged before applying.
	Title() string
	// Tag is the fragment appended to output names; empty means none.
	Tag() string
	// Exportable is false for steps whose output must never be saved on its own.
	Exportable() bool
	// SavePartial asks the pipeline to save the image right after this step.
	SavePartial() bool
	// Apply returns a new image; the input is left untouched.
	Apply(ctx context.Context, im *models.Image) (*models.Image, error)
}

// Options are accepted by every operator.
type Options struct {
	// SavePartial saves the intermediate result after this step. Default false.
	SavePartial bool `yaml:"save_partial"`
}

type base struct {
	name        string
	title       string
	tag         string
	savePartial bool
	exportable  bool
}

func newBase(name, title, tag string, opts Options) base {
	return base{name: name, title: title, tag: tag, savePartial: opts.SavePartial, exportable: true}
}

func (b base) Name() string      { return b.name }
func (b base) Title() string     { return b.title }
func (b base) Tag() string       { return b.tag }
func (b base) Exportable() bool  { return b.exportable }
func (b base) SavePartial() bool { return b.savePartial }

func (b base) logApply(ctx context.Context, fields ...zap.Field) {
	logger.Info(ctx, b.title, append(fields, zap.Bool("save_partial", b.savePartial))...)
}

// DecodeFunc fills the given parameter struct, typically yaml.Node.Decode.
// A nil DecodeFunc leaves every parameter at its zero value.
type DecodeFunc func(v any) error

type constructor func(decode DecodeFunc) (Transform, error)

var catalog = map[string]constructor{ //nolint: gochecknoglobals
	ReorderToCanonicalName: func(decode DecodeFunc) (Transform, error) {
		var p ReorderParams
		if err := decodeParams(ReorderToCanonicalName, decode, &p); err != nil {
			return nil, err
		}
		return NewReorderToCanonical(p), nil
	},
	RotateName: func(decode DecodeFunc) (Transform, error) {
		var p RotateParams
		if err := decodeParams(RotateName, decode, &p); err != nil {
			return nil, err
		}
		t, err := NewRotate(p)
		if err != nil {
			return nil, err
		}
		return t, nil
	},
	SetOriginPointName: func(decode DecodeFunc) (Transform, error) {
		var p OriginParams
		if err := decodeParams(SetOriginPointName, decode, &p); err != nil {
			return nil, err
		}
		t, err := NewSetOriginPoint(p)
		if err != nil {
			return nil, err
		}
		return t, nil
	},
	SetPixelDimensionName: func(decode DecodeFunc) (Transform, error) {
		var p PixDimParams
		if err := decodeParams(SetPixelDimensionName, decode, &p); err != nil {
			return nil, err
		}
		t, err := NewSetPixDim(p)
		if err != nil {
			return nil, err
		}
		return t, nil
	},
	AffineToDiagonalName: func(decode DecodeFunc) (Transform, error) {
		var p DiagonalParams
		if err := decodeParams(AffineToDiagonalName, decode, &p); err != nil {
			return nil, err
		}
		return NewAffineToDiagonal(p), nil
	},
	AffineToIdentityName: func(decode DecodeFunc) (Transform, error) {
		var p IdentityParams
		if err := decodeParams(AffineToIdentityName, decode, &p); err != nil {
			return nil, err
		}
		return NewAffineToIdentity(p), nil
	},
	ResliceName: func(decode DecodeFunc) (Transform, error) {
		var p ResliceParams
		if err := decodeParams(ResliceName, decode, &p); err != nil {
			return nil, err
		}
		t, err := NewReslice(p)
		if err != nil {
			return nil, err
		}
		return t, nil
	},
}

func decodeParams(name string, decode DecodeFunc, v any) error {
	if decode == nil {
		return nil
	}
	if err := decode(v); err != nil {
		return serrors.Wrap(serrors.ErrConfiguration, err, "decoding %s parameters", name)
	}
	return nil
}

// Build constructs the transform registered under name.
func Build(name string, decode DecodeFunc) (Transform, error) {
	ctor, ok := catalog[name]
	if !ok {
		return nil, serrors.With(serrors.ErrConfiguration, "unknown operator %q", name)
	}
	return ctor(decode)
}

// Names lists the catalog in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
