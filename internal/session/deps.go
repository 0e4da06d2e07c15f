package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/fieldcapture/internal/candidate"
	"github.com/joseph-ayodele/fieldcapture/internal/entity"
)

// Capabilities describes which recognizers the runtime supports. It is
// resolved once at startup and never rechecked.
type Capabilities struct {
	TextRecognition bool
	BarcodeDecoding bool
	LiveBarcode     bool
}

// TextRecognizer turns an image into recognized lines.
type TextRecognizer interface {
	RecognizeText(ctx context.Context, imagePath string) ([]entity.TextLine, error)
}

// BarcodeRecognizer decodes the symbols visible in a still image.
type BarcodeRecognizer interface {
	DecodeBarcodes(ctx context.Context, imagePath string) ([]entity.BarcodeHit, error)
}

// Committer persists a snapshot, returning the session id.
type Committer interface {
	Commit(ctx context.Context, snap entity.Snapshot, existingID string) (string, error)
}

// Notifier receives the values a save newly accepted.
type Notifier func(ctx context.Context, sessionID string, values []entity.AcceptedValue)

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithBarcodeRecognizer enables still-image barcode decoding during analyze.
func WithBarcodeRecognizer(b BarcodeRecognizer) Option {
	return func(r *Reconciler) { r.barcodes = b }
}

// WithNotifier registers the callback fired after a save accepts new values.
func WithNotifier(n Notifier) Option {
	return func(r *Reconciler) { r.notify = n }
}

// WithFilter replaces the default candidate filter.
func WithFilter(f *candidate.Filter) Option {
	return func(r *Reconciler) {
		if f != nil {
			r.filter = f
		}
	}
}

// WithAnalyzeTimeout bounds each recognizer invocation. Zero means no bound.
func WithAnalyzeTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.analyzeTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}
