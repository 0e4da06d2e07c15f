// Package ocr adapts the external tesseract and zbar tools to the recognizer
// interfaces the session reconciler consumes.
package ocr

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/joseph-ayodele/fieldcapture/internal/common"
)

type Config struct {
	Tesseract string // binary name or absolute path; if empty -> "tesseract"
	ZBarImg   string // binary name or absolute path; if empty -> "zbarimg"

	TesseractLang string // default "eng"
	TessdataDir   string

	PSM int // 11 (sparse text) suits labels and plates; 0 leaves the default
	OEM int // 1 = LSTM; leave 0 to use default

	HeicConverter    string // "heif-convert" | "magick" | "sips"
	ArtifactCacheDir string // converted HEIC images are cached here by content hash
}

func (c Config) withDefaults() Config {
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.ZBarImg == "" {
		c.ZBarImg = "zbarimg"
	}
	if c.TesseractLang == "" {
		c.TesseractLang = "eng"
	}
	return c
}

// Availability reports which recognizer binaries are installed.
type Availability struct {
	Tesseract bool
	ZBarImg   bool
}

// Detect resolves recognizer availability once.
func Detect(cfg Config) Availability {
	cfg = cfg.withDefaults()
	_, terr := exec.LookPath(cfg.Tesseract)
	_, zerr := exec.LookPath(cfg.ZBarImg)
	return Availability{Tesseract: terr == nil, ZBarImg: zerr == nil}
}

// toolError wraps a runner failure; a missing binary maps to ErrUnavailable.
func toolError(tool string, err error, stderr []byte) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%s: %w: %v", tool, common.ErrUnavailable, err)
	}
	if len(stderr) > 0 {
		return fmt.Errorf("%s: %w: %s", tool, err, truncate(string(stderr), 512))
	}
	return fmt.Errorf("%s: %w", tool, err)
}
