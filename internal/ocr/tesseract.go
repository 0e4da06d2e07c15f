package ocr

import (
	"context"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/fieldcapture/constants"
	"github.com/joseph-ayodele/fieldcapture/internal/entity"
)

var reBoxNoise = regexp.MustCompile(`^\s*[_\-|=~.]{3,}\s*$`)

// TesseractRecognizer recognizes text lines with their bounds.
type TesseractRecognizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewTesseractRecognizer(cfg Config, logger *slog.Logger) *TesseractRecognizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TesseractRecognizer{cfg: cfg.withDefaults(), runner: execRunner{}, logger: logger}
}

// RecognizeText runs tesseract in TSV mode and groups words into lines.
func (t *TesseractRecognizer) RecognizeText(ctx context.Context, path string) ([]entity.TextLine, error) {
	ext := filepath.Ext(path)
	if constants.IsHEICExt(ext) {
		out, cleanup, err := convertHEICtoPNG(ctx, t.runner, t.logger, t.cfg.HeicConverter, path, t.cfg.ArtifactCacheDir)
		if err != nil {
			t.logger.Error("heic conversion failed", "path", path, "error", err)
			return nil, err
		}
		if cleanup != nil {
			defer cleanup()
		}
		path = out
	}

	// tesseract <file> stdout -l <lang> [--psm N] [--oem N] tsv
	args := []string{path, "stdout", "-l", t.cfg.TesseractLang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, t.logger, args...)
	if err != nil {
		return nil, toolError("tesseract", err, errb)
	}
	lines := parseTSV(string(out))
	t.logger.Debug("tesseract lines", "path", path, "lines", len(lines))
	return lines, nil
}

type tsvLineKey struct{ page, block, par, line int }

type tsvLine struct {
	words                 []string
	left, top, right, bot int
	confSum               float64
	confN                 int
}

// parseTSV groups level-5 (word) rows by page/block/paragraph/line, unions the
// word boxes and scales them by the page size into 0..1 bounds.
func parseTSV(out string) []entity.TextLine {
	var (
		pageW, pageH int
		order        []tsvLineKey
		groups       = map[tsvLineKey]*tsvLine{}
	)
	for i, ln := range strings.Split(out, "\n") {
		if i == 0 || strings.TrimSpace(ln) == "" {
			continue // header
		}
		cols := strings.Split(strings.TrimRight(ln, "\r"), "\t")
		if len(cols) < 12 {
			continue
		}
		n := make([]int, 10)
		ok := true
		for j := 0; j < 10; j++ {
			v, err := strconv.Atoi(cols[j])
			if err != nil {
				ok = false
				break
			}
			n[j] = v
		}
		if !ok {
			continue
		}
		level, left, top, width, height := n[0], n[6], n[7], n[8], n[9]
		if level == 1 {
			pageW, pageH = width, height
			continue
		}
		if level != 5 {
			continue
		}
		word := strings.TrimSpace(strings.Join(cols[11:], "\t"))
		if word == "" {
			continue
		}
		key := tsvLineKey{n[1], n[2], n[3], n[4]}
		g, seen := groups[key]
		if !seen {
			g = &tsvLine{left: left, top: top, right: left + width, bot: top + height}
			groups[key] = g
			order = append(order, key)
		}
		g.words = append(g.words, word)
		g.left = min(g.left, left)
		g.top = min(g.top, top)
		g.right = max(g.right, left+width)
		g.bot = max(g.bot, top+height)
		if c, err := strconv.ParseFloat(cols[10], 64); err == nil && c >= 0 {
			g.confSum += c
			g.confN++
		}
	}

	lines := make([]entity.TextLine, 0, len(order))
	for _, k := range order {
		g := groups[k]
		text := strings.Join(g.words, " ")
		if reBoxNoise.MatchString(text) {
			continue
		}
		tl := entity.TextLine{Text: text}
		if g.confN > 0 {
			tl.Confidence = float32(g.confSum / float64(g.confN) / 100.0)
		}
		if pageW > 0 && pageH > 0 {
			tl.Bounds = &entity.Bounds{
				X:      clamp01(float64(g.left) / float64(pageW)),
				Y:      clamp01(float64(g.top) / float64(pageH)),
				Width:  clamp01(float64(g.right-g.left) / float64(pageW)),
				Height: clamp01(float64(g.bot-g.top) / float64(pageH)),
			}
		}
		lines = append(lines, tl)
	}
	return lines
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
