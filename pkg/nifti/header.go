package nifti

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"niftitools/pkg/affine"
)

const (
	headerSize = 348
	// dataOffset is the header plus the 4-byte extension flag.
	dataOffset = 352
)

var magicSingle = [4]byte{'n', '+', '1', 0}

// rawHeader mirrors the 348-byte NIfTI-1 header field by field.
type rawHeader struct {
	SizeofHdr     int32
	DataTypeName  [10]byte
	DBName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XYZTUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// byteOrder detects the header endianness from sizeof_hdr.
func byteOrder(prefix []byte) (binary.ByteOrder, bool) {
	if len(prefix) < 4 {
		return nil, false
	}
	if binary.LittleEndian.Uint32(prefix) == headerSize {
		return binary.LittleEndian, true
	}
	if binary.BigEndian.Uint32(prefix) == headerSize {
		return binary.BigEndian, true
	}
	return nil, false
}

func (h *rawHeader) description() string {
	return strings.TrimRight(string(bytes.TrimRight(h.Descrip[:], "\x00")), " ")
}

func (h *rawHeader) setDescription(s string) {
	h.Descrip = [80]byte{}
	copy(h.Descrip[:79], s)
}

func (h *rawHeader) zooms() affine.Vec3 {
	return affine.Vec3{float64(h.Pixdim[1]), float64(h.Pixdim[2]), float64(h.Pixdim[3])}
}

// sformAffine returns the affine stored in srow_x/y/z.
func (h *rawHeader) sformAffine() affine.Affine {
	a := affine.Identity()
	for j := 0; j < 4; j++ {
		a[0][j] = float64(h.SrowX[j])
		a[1][j] = float64(h.SrowY[j])
		a[2][j] = float64(h.SrowZ[j])
	}
	return a
}

// qformAffine rebuilds the affine from the quaternion, zooms and qfac.
func (h *rawHeader) qformAffine() affine.Affine {
	b, c, d := float64(h.QuaternB), float64(h.QuaternC), float64(h.QuaternD)
	a := 1 - (b*b + c*c + d*d)
	if a < 1e-7 {
		// numerically this is a 180 degree rotation
		n := math.Sqrt(b*b + c*c + d*d)
		b, c, d = b/n, c/n, d/n
		a = 0
	} else {
		a = math.Sqrt(a)
	}

	r := [3][3]float64{
		{a*a + b*b - c*c - d*d, 2 * (b*c - a*d), 2 * (b*d + a*c)},
		{2 * (b*c + a*d), a*a + c*c - b*b - d*d, 2 * (c*d - a*b)},
		{2 * (b*d - a*c), 2 * (c*d + a*b), a*a + d*d - c*c - b*b},
	}

	zooms := h.zooms()
	qfac := float64(h.Pixdim[0])
	if qfac == 0 {
		qfac = 1
	}
	if qfac < 0 {
		zooms[2] = -zooms[2]
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] *= zooms[j]
		}
	}

	return affine.FromMatVec(r, affine.Vec3{float64(h.QoffsetX), float64(h.QoffsetY), float64(h.QoffsetZ)})
}

// baseAffine is used when neither form is set: axis aligned, x flipped,
// centred on the middle of the grid.
func (h *rawHeader) baseAffine() affine.Affine {
	zooms := h.zooms()
	for i := range zooms {
		if zooms[i] == 0 {
			zooms[i] = 1
		}
	}
	zooms[0] = -zooms[0]
	var t affine.Vec3
	for i := 0; i < 3; i++ {
		t[i] = -float64(h.Dim[i+1]-1) / 2 * zooms[i]
	}
	return affine.Diagonal(zooms, t)
}

// bestAffine picks sform, then qform, then the base affine.
func (h *rawHeader) bestAffine() affine.Affine {
	switch {
	case h.SformCode > 0:
		return h.sformAffine()
	case h.QformCode > 0:
		return h.qformAffine()
	default:
		return h.baseAffine()
	}
}

// setQForm stores a as a quaternion, zooms and qfac. Shear is dropped; the
// rotation is the closest orthogonal matrix to the normalized linear part.
func (h *rawHeader) setQForm(a affine.Affine) {
	zooms := a.VoxelSizes()
	lin := a.Linear()
	m := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			z := zooms[j]
			if z == 0 {
				z = 1
			}
			m.Set(i, j, lin[i][j]/z)
		}
	}

	var svd mat.SVD
	var r mat.Dense
	if svd.Factorize(m, mat.SVDThin) {
		var u, v mat.Dense
		svd.UTo(&u)
		svd.VTo(&v)
		r.Mul(&u, v.T())
	} else {
		r.CloneFrom(m)
	}

	qfac := 1.0
	if mat.Det(&r) < 0 {
		qfac = -1
		for i := 0; i < 3; i++ {
			r.Set(i, 2, -r.At(i, 2))
		}
	}

	_, qb, qc, qd := quaternion(&r)

	t := a.Translation()
	h.QuaternB, h.QuaternC, h.QuaternD = float32(qb), float32(qc), float32(qd)
	h.QoffsetX, h.QoffsetY, h.QoffsetZ = float32(t[0]), float32(t[1]), float32(t[2])
	h.Pixdim[0] = float32(qfac)
	h.Pixdim[1], h.Pixdim[2], h.Pixdim[3] = float32(zooms[0]), float32(zooms[1]), float32(zooms[2])
}

// quaternion converts a proper rotation matrix to (a, b, c, d) with a >= 0.
func quaternion(r mat.Matrix) (a, b, c, d float64) {
	r11, r12, r13 := r.At(0, 0), r.At(0, 1), r.At(0, 2)
	r21, r22, r23 := r.At(1, 0), r.At(1, 1), r.At(1, 2)
	r31, r32, r33 := r.At(2, 0), r.At(2, 1), r.At(2, 2)

	a = r11 + r22 + r33 + 1
	if a > 0.5 {
		a = 0.5 * math.Sqrt(a)
		b = 0.25 * (r32 - r23) / a
		c = 0.25 * (r13 - r31) / a
		d = 0.25 * (r21 - r12) / a
	} else {
		xd := 1 + r11 - (r22 + r33)
		yd := 1 + r22 - (r11 + r33)
		zd := 1 + r33 - (r11 + r22)
		switch {
		case xd > 1:
			b = 0.5 * math.Sqrt(xd)
			c = 0.25 * (r12 + r21) / b
			d = 0.25 * (r13 + r31) / b
			a = 0.25 * (r32 - r23) / b
		case yd > 1:
			c = 0.5 * math.Sqrt(yd)
			b = 0.25 * (r12 + r21) / c
			d = 0.25 * (r23 + r32) / c
			a = 0.25 * (r13 - r31) / c
		default:
			d = 0.5 * math.Sqrt(zd)
			b = 0.25 * (r13 + r31) / d
			c = 0.25 * (r23 + r32) / d
			a = 0.25 * (r21 - r12) / d
		}
		if a < 0 {
			a, b, c, d = -a, -b, -c, -d
		}
	}
	return a, b, c, d
}

// setSForm stores the first three rows of a.
func (h *rawHeader) setSForm(a affine.Affine) {
	for j := 0; j < 4; j++ {
		h.SrowX[j] = float32(a[0][j])
		h.SrowY[j] = float32(a[1][j])
		h.SrowZ[j] = float32(a[2][j])
	}
}
