package nifti

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"niftitools/internal/models"
	"niftitools/pkg/affine"
	"niftitools/pkg/serrors"
)

func testImage(t *testing.T, aff affine.Affine, header models.Header) *models.Image {
	t.Helper()
	vol := models.NewVolume(4, 3, 2)
	for i := range vol.Data {
		vol.Data[i] = float64(i) * 0.5
	}
	im, err := models.NewImage(vol, aff, header)
	require.NoError(t, err)
	return im
}

func obliqueAffine() affine.Affine {
	c, s := math.Cos(0.3), math.Sin(0.3)
	return affine.FromMatVec([3][3]float64{
		{2 * c, -3 * s, 0},
		{2 * s, 3 * c, 0},
		{0, 0, -4},
	}, affine.Vec3{-90.5, 12.25, 40})
}

func newCodec(t *testing.T, opts Options) *Codec {
	t.Helper()
	c, err := NewCodec(opts)
	require.NoError(t, err)
	return c
}

func TestNewCodecDefaults(t *testing.T) {
	c := newCodec(t, Options{})
	assert.Equal(t, DefaultCompressionLevel, c.opts.CompressionLevel)
	assert.Equal(t, DTFloat32, c.opts.DataType)
}

func TestNewCodecRejectsBadOptions(t *testing.T) {
	_, err := NewCodec(Options{CompressionLevel: 12})
	require.ErrorIs(t, err, serrors.ErrCodec)

	_, err = NewCodec(Options{DataType: DTInt16})
	require.ErrorIs(t, err, serrors.ErrCodec)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := testImage(t, obliqueAffine(), models.Header{
		QFormCode:   models.XformScanner,
		SFormCode:   models.XformAligned,
		Description: "round trip",
	})

	tests := []struct {
		name string
		opts Options
	}{
		{"t1.nii", Options{}},
		{"t1.nii.gz", Options{}},
		{"t1_f64.nii.gz", Options{CompressionLevel: 9, DataType: DTFloat64}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCodec(t, tt.opts)
			path := filepath.Join(dir, "out", tt.name)
			require.NoError(t, c.Save(in, path))

			out, err := c.Load(path)
			require.NoError(t, err)

			assert.Equal(t, in.Shape(), out.Shape())
			assert.True(t, out.Affine().ApproxEqual(in.Affine(), 1e-4), "affine:\n%s", out.Affine())
			for i, v := range in.Volume().Data {
				assert.InDelta(t, v, out.Volume().Data[i], 1e-6)
			}
			h := out.Header()
			assert.Equal(t, models.XformScanner, h.QFormCode)
			assert.Equal(t, models.XformAligned, h.SFormCode)
			assert.Equal(t, "round trip", h.Description)
			assert.Equal(t, tt.opts.DataType == DTFloat64, h.DataType == DTFloat64)
		})
	}
}

func TestGzipIsDetectedFromContent(t *testing.T) {
	dir := t.TempDir()
	c := newCodec(t, Options{})
	in := testImage(t, affine.Diagonal(affine.Vec3{1, 2, 3}, affine.Vec3{}), models.DefaultHeader())

	gz := filepath.Join(dir, "a.nii.gz")
	require.NoError(t, c.Save(in, gz))
	raw, err := os.ReadFile(gz)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1f, 0x8b}, raw[:2])

	plain := filepath.Join(dir, "a.nii")
	require.NoError(t, os.WriteFile(plain, raw, 0o600))
	out, err := c.Load(plain)
	require.NoError(t, err)
	assert.Equal(t, in.Shape(), out.Shape())
}

func TestQFormOnly(t *testing.T) {
	var buf bytes.Buffer
	c := newCodec(t, Options{})
	in := testImage(t, obliqueAffine(), models.Header{QFormCode: models.XformScanner})
	require.Equal(t, models.XformUnknown, in.Header().SFormCode)

	require.NoError(t, c.Encode(&buf, in))
	out, err := Decode(&buf)
	require.NoError(t, err)

	assert.Equal(t, models.XformUnknown, out.Header().SFormCode)
	assert.True(t, out.Affine().ApproxEqual(in.Affine(), 1e-4), "affine:\n%s", out.Affine())
	assertVec3(t, affine.Vec3{2, 3, 4}, out.PixDim())
	assertVec3(t, affine.Vec3{-90.5, 12.25, 40}, out.Header().QOffset)
}

func TestNoFormUsesBaseAffine(t *testing.T) {
	var buf bytes.Buffer
	c := newCodec(t, Options{})
	in := testImage(t, affine.Diagonal(affine.Vec3{2, 2, 2}, affine.Vec3{}), models.DefaultHeader())
	require.NoError(t, c.Encode(&buf, in))

	raw := buf.Bytes()
	// clear qform_code and sform_code
	raw[252], raw[253], raw[254], raw[255] = 0, 0, 0, 0

	out, err := Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	want := affine.Diagonal(affine.Vec3{-2, 2, 2}, affine.Vec3{3, -2, -1})
	assert.True(t, out.Affine().ApproxEqual(want, 1e-6), "affine:\n%s", out.Affine())
}

func TestDecodeErrors(t *testing.T) {
	var good bytes.Buffer
	c := newCodec(t, Options{})
	require.NoError(t, c.Encode(&good, testImage(t, affine.Identity(), models.DefaultHeader())))

	badMagic := bytes.Clone(good.Bytes())
	copy(badMagic[344:], "ni1\x00")

	fourD := bytes.Clone(good.Bytes())
	fourD[40], fourD[41] = 4, 0 // dim[0]
	fourD[48], fourD[49] = 3, 0 // dim[4]

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", bytes.Repeat([]byte{0xAB}, 400)},
		{"truncated header", good.Bytes()[:100]},
		{"truncated data", good.Bytes()[:good.Len()-10]},
		{"pair magic", badMagic},
		{"4-D", fourD},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(tt.data))
			require.ErrorIs(t, err, serrors.ErrCodec)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	c := newCodec(t, Options{})
	_, err := c.Load(filepath.Join(t.TempDir(), "missing.nii"))
	require.ErrorIs(t, err, serrors.ErrCodec)
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		original string
		suffix   string
		dir      string
		want     string
	}{
		{"/data/t1.nii", "_[reo]_[pd]", "", "/data/t1_[reo]_[pd].nii.gz"},
		{"/data/t1.nii.gz", "_[res]", "", "/data/t1_[res].nii.gz"},
		{"/data/T1.NII.GZ", "_[res]", "", "/data/T1_[res].nii.gz"},
		{"scan.nii", "_[rot_90_0_90]", "/out", "/out/scan_[rot_90_0_90].nii.gz"},
		{"/data/t1.img", "_[ident]", "", "/data/t1_[ident].nii.gz"},
		{"/data/t1.nii", "", "", "/data/t1.nii.gz"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, OutputPath(tt.original, tt.suffix, tt.dir))
		})
	}
}

func TestIsNifti(t *testing.T) {
	assert.True(t, IsNifti("a.nii"))
	assert.True(t, IsNifti("a.NII.GZ"))
	assert.False(t, IsNifti("a.gz"))
	assert.False(t, IsNifti("a.nii.bak"))
}

func TestSummarize(t *testing.T) {
	in := testImage(t, affine.Diagonal(affine.Vec3{1, 2, 3}, affine.Vec3{5, 6, 7}), models.DefaultHeader())
	s := Summarize(in)

	assert.Equal(t, [3]int{4, 3, 2}, s.Shape)
	assert.Equal(t, affine.Vec3{1, 2, 3}, s.PixDim)
	assert.Equal(t, affine.Vec3{5, 6, 7}, s.QOffset)
	assert.InDelta(t, 0, s.Min, 1e-12)
	assert.InDelta(t, 11.5, s.Max, 1e-12)
	assert.InDelta(t, 5.75, s.Mean, 1e-12)

	var buf bytes.Buffer
	s.Print(&buf)
	assert.Contains(t, buf.String(), "4 x 3 x 2")
	assert.Contains(t, buf.String(), "aligned")
}

func TestCheckDims(t *testing.T) {
	in := testImage(t, affine.Diagonal(affine.Vec3{1, 2, 3}, affine.Vec3{}), models.DefaultHeader())

	assert.True(t, CheckDims(in, [3]int{4, 3, 2}, affine.Vec3{1, 2, 3}, 1e-6))
	assert.False(t, CheckDims(in, [3]int{4, 3, 3}, affine.Vec3{1, 2, 3}, 1e-6))
	assert.False(t, CheckDims(in, [3]int{4, 3, 2}, affine.Vec3{1, 2, 2}, 1e-6))
}

func assertVec3(t *testing.T, want, got affine.Vec3) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-4, "component %d", i)
	}
}
