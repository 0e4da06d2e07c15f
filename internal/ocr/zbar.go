package ocr

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/fieldcapture/constants"
	"github.com/joseph-ayodele/fieldcapture/internal/entity"
)

// zbarimg exits with 4 when the image holds no symbol.
const zbarNoSymbols = 4

// ZBarRecognizer decodes barcodes in still images with zbarimg.
type ZBarRecognizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewZBarRecognizer(cfg Config, logger *slog.Logger) *ZBarRecognizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ZBarRecognizer{cfg: cfg.withDefaults(), runner: execRunner{}, logger: logger}
}

// DecodeBarcodes runs `zbarimg -q <path>` and parses "SYMBOLOGY:payload" lines.
func (z *ZBarRecognizer) DecodeBarcodes(ctx context.Context, path string) ([]entity.BarcodeHit, error) {
	out, errb, err := z.runner.Run(ctx, z.cfg.ZBarImg, z.logger, "-q", path)
	if err != nil {
		if exitCode(err) == zbarNoSymbols {
			return nil, nil
		}
		return nil, toolError("zbarimg", err, errb)
	}
	hits := parseZBar(string(out))
	z.logger.Debug("zbarimg symbols", "path", path, "symbols", len(hits))
	return hits, nil
}

// splitSymbol splits a "SYMBOLOGY:payload" line. ok is false when the prefix
// is not a known symbology.
func splitSymbol(line string) (constants.Symbology, string, bool) {
	prefix, payload, found := strings.Cut(line, ":")
	if !found {
		return constants.Unknown, "", false
	}
	sym, ok := constants.CanonicalizeSymbology(prefix)
	if !ok {
		return constants.Unknown, "", false
	}
	return sym, payload, true
}

// parseZBar parses zbarimg output. A line without a symbology prefix
// continues the previous multi-line payload.
func parseZBar(out string) []entity.BarcodeHit {
	var hits []entity.BarcodeHit
	for _, ln := range strings.Split(strings.ReplaceAll(out, "\r\n", "\n"), "\n") {
		sym, payload, ok := splitSymbol(ln)
		if ok {
			hits = append(hits, entity.BarcodeHit{Payload: payload, Symbology: sym})
			continue
		}
		if len(hits) > 0 && ln != "" {
			hits[len(hits)-1].Payload += "\n" + ln
		}
	}
	return hits
}

// ReadBarcodeEvents parses a zbarcam style line stream into out until r is
// exhausted or ctx is done. It closes out when it returns.
func ReadBarcodeEvents(ctx context.Context, r io.Reader, out chan<- entity.BarcodeEvent, logger *slog.Logger) error {
	defer close(out)
	if logger == nil {
		logger = slog.Default()
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		ev := entity.BarcodeEvent{Payload: line, At: time.Now()}
		if sym, payload, ok := splitSymbol(line); ok {
			ev.Symbology = string(sym)
			ev.Payload = payload
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		logger.Error("barcode stream read failed", "error", err)
		return err
	}
	return nil
}
