package nifti

import (
	"path/filepath"
	"strings"
)

// Extensions recognized as NIfTI files.
var Extensions = []string{".nii.gz", ".nii"} //nolint: gochecknoglobals

// StripExtension removes a trailing .nii.gz or .nii from path.
func StripExtension(path string) string {
	lower := strings.ToLower(path)
	for _, ext := range Extensions {
		if strings.HasSuffix(lower, ext) {
			return path[:len(path)-len(ext)]
		}
	}
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// IsNifti reports whether path has a NIfTI extension.
func IsNifti(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".nii") || strings.HasSuffix(lower, ".nii.gz")
}

// OutputPath derives the output file for original with suffix appended to the
// base name, always as a compressed .nii.gz.
//
//	OutputPath("/data/t1.nii", "_[reo]_[pd]") == "/data/t1_[reo]_[pd].nii.gz"
//
// When dir is not empty the file is placed there instead of next to the input.
func OutputPath(original, suffix, dir string) string {
	base := filepath.Base(StripExtension(original)) + suffix + ".nii.gz"
	if dir == "" {
		dir = filepath.Dir(original)
	}
	return filepath.Join(dir, base)
}
