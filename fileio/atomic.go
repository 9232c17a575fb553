package fileio

import (
	"os"
	"path/filepath"

	apperrors "github.com/penwyp/claudequota/errors"
)

// WriteFileAtomic replaces path with data via a temp file in the same directory.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Wrap(apperrors.TypeIO, "create state dir", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return apperrors.Wrap(apperrors.TypeIO, "create temp file", dir, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return apperrors.Wrap(apperrors.TypeIO, "write temp file", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return apperrors.Wrap(apperrors.TypeIO, "close temp file", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return apperrors.Wrap(apperrors.TypeIO, "rename", path, err)
	}
	return nil
}
