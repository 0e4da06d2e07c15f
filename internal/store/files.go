package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/fieldcapture/internal/common"
)

// FileStore copies image files into and out of durable storage.
type FileStore interface {
	Copy(src, dst string) error
	Delete(path string) error
	EnsureDir(path string) error
}

// LocalFileStore is a FileStore on the local filesystem.
type LocalFileStore struct{}

// Copy writes src to dst through a temp file in dst's directory.
func (LocalFileStore) Copy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", common.ErrFileStore, src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".copy-*")
	if err != nil {
		return fmt.Errorf("%w: temp for %s: %v", common.ErrFileStore, dst, err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: copy %s: %v", common.ErrFileStore, src, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %v", common.ErrFileStore, tmpName, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: rename %s: %v", common.ErrFileStore, dst, err)
	}
	return nil
}

// Delete removes path; a missing file is not an error.
func (LocalFileStore) Delete(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: delete %s: %v", common.ErrFileStore, path, err)
	}
	return nil
}

func (LocalFileStore) EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", common.ErrFileStore, path, err)
	}
	return nil
}
