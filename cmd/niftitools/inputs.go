package main

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"

	"niftitools/pkg/nifti"
)

// expandInputs turns the command arguments into image paths. Arguments may be
// files, directories (every NIfTI file directly inside) or glob patterns.
// Duplicates are dropped while the first-seen order is kept.
func expandInputs(args []string) ([]string, error) {
	var (
		paths []string
		seen  = map[string]bool{}
	)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, arg := range args {
		if info, err := os.Stat(arg); err == nil && info.IsDir() {
			entries, err := os.ReadDir(arg)
			if err != nil {
				return nil, errors.Wrapf(err, "listing %s", arg)
			}
			for _, e := range entries {
				if !e.IsDir() && nifti.IsNifti(e.Name()) {
					add(filepath.Join(arg, e.Name()))
				}
			}
			continue
		}

		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "bad pattern %q", arg)
		}
		if len(matches) == 0 {
			// left for the loader to report
			add(arg)
			continue
		}
		sort.Strings(matches)
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.IsDir() {
				continue
			}
			add(m)
		}
	}

	if len(paths) == 0 {
		return nil, errors.New("no input images")
	}
	return paths, nil
}
