package fetcher

import (
	"io/fs"
	"path/filepath"
)

// fsWalkDir walks dir, invoking fn with each entry's slash-separated path
// relative to dir.
func fsWalkDir(dir string, fn func(rel string, d fs.DirEntry) error) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return relErr
		}
		return fn(filepath.ToSlash(rel), d)
	})
}
