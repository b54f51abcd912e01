// Package nifti reads and writes single-file NIfTI-1 images (.nii and .nii.gz)
// and derives output file names for processed images.
package nifti

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/klauspost/compress/gzip"

	"niftitools/internal/models"
	"niftitools/pkg/serrors"
)

// NIfTI datatype codes.
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
	DTInt8    int16 = 256
	DTUint16  int16 = 512
	DTUint32  int16 = 768
)

// DefaultCompressionLevel is the gzip level used for .nii.gz output.
const DefaultCompressionLevel = 5

func bitsPerVoxel(dt int16) (int16, bool) {
	switch dt {
	case DTUint8, DTInt8:
		return 8, true
	case DTInt16, DTUint16:
		return 16, true
	case DTInt32, DTUint32, DTFloat32:
		return 32, true
	case DTFloat64:
		return 64, true
	default:
		return 0, false
	}
}

// Options configure a Codec.
type Options struct {
	// CompressionLevel is the gzip level for .nii.gz files, 1..9.
	CompressionLevel int
	// DataType is the datatype code written to disk: DTFloat32 or DTFloat64.
	DataType int16
}

// Codec loads and saves NIfTI-1 files.
type Codec struct {
	opts Options
}

// NewCodec validates the options and returns a codec.
func NewCodec(opts Options) (*Codec, error) {
	if opts.CompressionLevel == 0 {
		opts.CompressionLevel = DefaultCompressionLevel
	}
	if opts.CompressionLevel < gzip.BestSpeed || opts.CompressionLevel > gzip.BestCompression {
		return nil, serrors.With(serrors.ErrCodec, "compression level %d out of range", opts.CompressionLevel)
	}
	if opts.DataType == 0 {
		opts.DataType = DTFloat32
	}
	if opts.DataType != DTFloat32 && opts.DataType != DTFloat64 {
		return nil, serrors.With(serrors.ErrCodec, "unsupported output datatype %d", opts.DataType)
	}
	return &Codec{opts: opts}, nil
}

// Load reads a .nii or .nii.gz file. Compression is detected from the content.
func (c *Codec) Load(path string) (*models.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrCodec, err, "opening %s", path)
	}
	defer f.Close()

	im, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return im, nil
}

// Save writes im to path, gzip-compressed when path ends in .gz.
func (c *Codec) Save(im *models.Image, path string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return serrors.Wrap(serrors.ErrCodec, err, "creating output directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return serrors.Wrap(serrors.ErrCodec, err, "creating %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = serrors.Wrap(serrors.ErrCodec, cerr, "closing %s", path)
		}
	}()

	bw := bufio.NewWriter(f)
	var w io.Writer = bw
	var gz *gzip.Writer
	if filepath.Ext(path) == ".gz" {
		gz, err = gzip.NewWriterLevel(bw, c.opts.CompressionLevel)
		if err != nil {
			return serrors.Wrap(serrors.ErrCodec, err, "creating gzip writer")
		}
		w = gz
	}

	if err := c.Encode(w, im); err != nil {
		return errors.Wrapf(err, "saving %s", path)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return serrors.Wrap(serrors.ErrCodec, err, "finishing gzip stream")
		}
	}
	if err := bw.Flush(); err != nil {
		return serrors.Wrap(serrors.ErrCodec, err, "writing %s", path)
	}
	return nil
}

// Decode reads one NIfTI-1 image from r, which may be gzip-compressed.
func Decode(r io.Reader) (*models.Image, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrCodec, err, "reading header")
	}
	var src io.Reader = br
	if magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, serrors.Wrap(serrors.ErrCodec, err, "opening gzip stream")
		}
		defer gz.Close()
		src = gz
	}

	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(src, buf); err != nil {
		return nil, serrors.Wrap(serrors.ErrCodec, err, "reading header")
	}
	order, ok := byteOrder(buf)
	if !ok {
		return nil, serrors.With(serrors.ErrCodec, "not a NIfTI-1 header")
	}
	var h rawHeader
	if err := binary.Read(bytes.NewReader(buf), order, &h); err != nil {
		return nil, serrors.Wrap(serrors.ErrCodec, err, "decoding header")
	}
	if h.Magic != magicSingle {
		return nil, serrors.With(serrors.ErrCodec, "unsupported magic %q, only single-file n+1 is handled", h.Magic[:3])
	}

	if h.Dim[0] < 3 || h.Dim[0] > 7 {
		return nil, serrors.With(serrors.ErrCodec, "expected a 3-D image, dim[0] is %d", h.Dim[0])
	}
	for i := 4; i <= int(h.Dim[0]); i++ {
		if h.Dim[i] > 1 {
			return nil, serrors.With(serrors.ErrCodec, "expected a 3-D image, dim[%d] is %d", i, h.Dim[i])
		}
	}
	w, hgt, d := int(h.Dim[1]), int(h.Dim[2]), int(h.Dim[3])
	if w <= 0 || hgt <= 0 || d <= 0 {
		return nil, serrors.With(serrors.ErrCodec, "invalid shape %dx%dx%d", w, hgt, d)
	}

	bits, ok := bitsPerVoxel(h.Datatype)
	if !ok {
		return nil, serrors.With(serrors.ErrCodec, "unsupported datatype %d", h.Datatype)
	}

	// skip extensions up to vox_offset
	skip := int64(h.VoxOffset) - headerSize
	if skip < 0 {
		skip = dataOffset - headerSize
	}
	if _, err := io.CopyN(io.Discard, src, skip); err != nil {
		return nil, serrors.Wrap(serrors.ErrCodec, err, "skipping extensions")
	}

	vol := models.NewVolume(w, hgt, d)
	raw := make([]byte, vol.Len()*int(bits/8))
	if _, err := io.ReadFull(src, raw); err != nil {
		return nil, serrors.Wrap(serrors.ErrCodec, err, "reading voxel data")
	}
	decodeVoxels(raw, order, h.Datatype, vol.Data)

	slope, inter := float64(h.SclSlope), float64(h.SclInter)
	if slope != 0 && !math.IsNaN(slope) && (slope != 1 || inter != 0) {
		for i, v := range vol.Data {
			vol.Data[i] = v*slope + inter
		}
	}

	header := models.Header{
		PixDim:      h.zooms(),
		QFormCode:   models.XformCode(h.QformCode),
		SFormCode:   models.XformCode(h.SformCode),
		QOffset:     [3]float64{float64(h.QoffsetX), float64(h.QoffsetY), float64(h.QoffsetZ)},
		Description: h.description(),
		DataType:    h.Datatype,
	}
	im, err := models.NewDecodedImage(vol, h.bestAffine(), header)
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrCodec, err, "building image")
	}
	return im, nil
}

func decodeVoxels(raw []byte, order binary.ByteOrder, dt int16, out []float64) {
	for i := range out {
		switch dt {
		case DTUint8:
			out[i] = float64(raw[i])
		case DTInt8:
			out[i] = float64(int8(raw[i]))
		case DTInt16:
			out[i] = float64(int16(order.Uint16(raw[2*i:])))
		case DTUint16:
			out[i] = float64(order.Uint16(raw[2*i:]))
		case DTInt32:
			out[i] = float64(int32(order.Uint32(raw[4*i:])))
		case DTUint32:
			out[i] = float64(order.Uint32(raw[4*i:]))
		case DTFloat32:
			out[i] = float64(math.Float32frombits(order.Uint32(raw[4*i:])))
		case DTFloat64:
			out[i] = math.Float64frombits(order.Uint64(raw[8*i:]))
		}
	}
}

// Encode writes im as an uncompressed little-endian NIfTI-1 stream.
func (c *Codec) Encode(w io.Writer, im *models.Image) error {
	shape := im.Shape()
	for _, n := range shape {
		if n > math.MaxInt16 {
			return serrors.With(serrors.ErrCodec, "shape %v does not fit a NIfTI-1 header", shape)
		}
	}
	bits, _ := bitsPerVoxel(c.opts.DataType)
	src := im.Header()
	aff := im.Affine()

	h := rawHeader{
		SizeofHdr: headerSize,
		Regular:   'r',
		Datatype:  c.opts.DataType,
		Bitpix:    bits,
		VoxOffset: dataOffset,
		SclSlope:  1,
		XYZTUnits: 2 | 8, // mm, seconds
		QformCode: int16(src.QFormCode),
		SformCode: int16(src.SFormCode),
		Magic:     magicSingle,
	}
	h.Dim = [8]int16{3, int16(shape[0]), int16(shape[1]), int16(shape[2]), 1, 1, 1, 1}
	h.Pixdim = [8]float32{1, 1, 1, 1, 1, 1, 1, 1}
	if h.QformCode == 0 && h.SformCode == 0 {
		h.SformCode = int16(models.XformAligned)
	}
	h.setQForm(aff)
	h.setSForm(aff)
	h.setDescription(src.Description)

	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return serrors.Wrap(serrors.ErrCodec, err, "writing header")
	}
	if _, err := w.Write([]byte{0, 0, 0, 0}); err != nil {
		return serrors.Wrap(serrors.ErrCodec, err, "writing extension flag")
	}

	data := im.Volume().Data
	buf := make([]byte, len(data)*int(bits/8))
	for i, v := range data {
		if c.opts.DataType == DTFloat64 {
			binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
		} else {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
		}
	}
	if _, err := w.Write(buf); err != nil {
		return serrors.Wrap(serrors.ErrCodec, err, "writing voxel data")
	}
	return nil
}
