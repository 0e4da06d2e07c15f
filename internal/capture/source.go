// Package capture provides image sources: a single file on disk and an inbox
// folder watched for new images.
package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/fieldcapture/constants"
	"github.com/joseph-ayodele/fieldcapture/internal/common"
)

// ImageSource produces a reference to a captured image.
type ImageSource interface {
	CapturePhoto(ctx context.Context) (string, error)
}

// FileSource captures an existing image file.
type FileSource struct {
	Path string
}

// CapturePhoto returns the absolute path of the file after checking it is a
// readable image with an accepted extension.
func (f FileSource) CapturePhoto(_ context.Context) (string, error) {
	if strings.TrimSpace(f.Path) == "" {
		return "", common.NewAppError("CAPTURE_FAILED", "no image path", common.ErrInvalidInput)
	}
	if !constants.IsImageExt(filepath.Ext(f.Path)) {
		return "", common.NewAppError("CAPTURE_FAILED", fmt.Sprintf("unsupported image type %q", filepath.Ext(f.Path)), common.ErrInvalidInput)
	}
	abs, err := filepath.Abs(f.Path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", f.Path, err)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return "", common.NewAppError("CAPTURE_FAILED", "image not readable", err)
	}
	if st.IsDir() {
		return "", common.NewAppError("CAPTURE_FAILED", fmt.Sprintf("%s is a directory", abs), common.ErrInvalidInput)
	}
	return abs, nil
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
