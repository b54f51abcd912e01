package models

import (
	"github.com/go-faster/errors"

	"niftitools/pkg/affine"
)

// XformCode tells consumers how an affine was obtained.
type XformCode int16

const (
	XformUnknown   XformCode = 0
	XformScanner   XformCode = 1
	XformAligned   XformCode = 2
	XformTalairach XformCode = 3
	XformMNI       XformCode = 4
)

func (c XformCode) String() string {
	switch c {
	case XformUnknown:
		return "unknown"
	case XformScanner:
		return "scanner"
	case XformAligned:
		return "aligned"
	case XformTalairach:
		return "talairach"
	case XformMNI:
		return "mni"
	default:
		return "invalid"
	}
}

// Header is the metadata travelling with an image.
type Header struct {
	// PixDim is the physical voxel size along each voxel axis
	PixDim affine.Vec3

	// QFormCode and SFormCode describe the origin of the stored transforms
	QFormCode XformCode
	SFormCode XformCode

	// QOffset is the stored scanner-origin offset (qoffset_x/y/z)
	QOffset affine.Vec3

	// Description is free text kept from the source file
	Description string

	// DataType is the datatype code of the source file, 0 when unknown
	DataType int16
}

// DefaultHeader is the metadata of an image with no spatial information.
func DefaultHeader() Header {
	return Header{PixDim: affine.Vec3{1, 1, 1}}
}

// Image is a volumetric scan: voxels plus the voxel-to-world affine and header.
//
// An Image is never modified after NewImage returns. Geometry operators build
// a new Image; the ones that only relabel geometry share the voxel buffer with
// their input, which is safe because nothing writes to it.
type Image struct {
	volume *Volume
	affine affine.Affine
	header Header
}

// NewImage validates the parts and builds an image. The header is brought in
// line with the affine: PixDim becomes the affine's voxel sizes and QOffset its
// translation. An image whose form codes are both unknown gets an aligned sform.
func NewImage(volume *Volume, aff affine.Affine, header Header) (*Image, error) {
	if volume == nil {
		return nil, errors.New("nil volume")
	}
	if err := volume.Validate(); err != nil {
		return nil, err
	}
	if err := aff.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid affine")
	}

	header.PixDim = aff.VoxelSizes()
	header.QOffset = aff.Translation()
	if header.QFormCode == XformUnknown && header.SFormCode == XformUnknown {
		header.SFormCode = XformAligned
	}

	return &Image{volume: volume, affine: aff, header: header}, nil
}

// NewDecodedImage builds an image keeping the header exactly as decoded from a
// file, where the stored qform offset may legitimately differ from the affine.
func NewDecodedImage(volume *Volume, aff affine.Affine, header Header) (*Image, error) {
	if volume == nil {
		return nil, errors.New("nil volume")
	}
	if err := volume.Validate(); err != nil {
		return nil, err
	}
	if err := aff.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid affine")
	}

	return &Image{volume: volume, affine: aff, header: header}, nil
}

// Volume returns the voxel grid. Callers must treat it as read-only.
func (im *Image) Volume() *Volume { return im.volume }

// Shape returns the voxel grid size.
func (im *Image) Shape() [3]int { return im.volume.Shape() }

// Affine returns the voxel-to-world transform.
func (im *Image) Affine() affine.Affine { return im.affine }

// Header returns a copy of the header.
func (im *Image) Header() Header { return im.header }

// PixDim returns the physical voxel size.
func (im *Image) PixDim() affine.Vec3 { return im.header.PixDim }
