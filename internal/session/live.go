package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/fieldcapture/constants"
	"github.com/joseph-ayodele/fieldcapture/internal/entity"
	"github.com/joseph-ayodele/fieldcapture/internal/normalize"
)

// DefaultCooldown is how long a payload is ignored after it was last processed.
const DefaultCooldown = 1500 * time.Millisecond

// LiveScanner feeds a live barcode stream into a Reconciler, processing each
// distinct payload at most once per cooldown window.
type LiveScanner struct {
	rec      *Reconciler
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time

	lastSeen  map[string]time.Time
	lastPrune time.Time

	admitted   int
	suppressed int
}

// NewLiveScanner creates a scanner. A non-positive cooldown uses DefaultCooldown.
func NewLiveScanner(rec *Reconciler, cooldown time.Duration, logger *slog.Logger) *LiveScanner {
	if logger == nil {
		logger = slog.Default()
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &LiveScanner{
		rec:      rec,
		cooldown: cooldown,
		logger:   logger,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
}

// Run consumes events on the calling goroutine until the channel is closed
// (returns nil) or ctx is done (returns ctx.Err()).
func (s *LiveScanner) Run(ctx context.Context, events <-chan entity.BarcodeEvent) error {
	s.logger.Info("live scan started", "cooldown", s.cooldown)
	defer func() {
		s.logger.Info("live scan stopped", "admitted", s.admitted, "suppressed", s.suppressed)
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.Handle(ev)
		}
	}
}

// Handle applies one event, subject to the cooldown.
func (s *LiveScanner) Handle(ev entity.BarcodeEvent) Result {
	at := ev.At
	if at.IsZero() {
		at = s.now()
	}
	key := normalize.StrictKey(ev.Payload)
	if key == "" {
		key = normalize.Key(ev.Payload)
	}
	if !s.admit(key, at) {
		s.suppressed++
		return Result{Status: constants.StatusNoop}
	}
	s.admitted++
	res := s.rec.AcceptLiveBarcode(ev)
	if res.Status.IsFailure() {
		s.logger.Warn("live barcode rejected", "payload", ev.Payload, "status", res.Status, "error", res.Err)
	}
	return res
}

func (s *LiveScanner) admit(key string, at time.Time) bool {
	s.prune(at)
	if last, ok := s.lastSeen[key]; ok && at.Sub(last) < s.cooldown {
		return false
	}
	s.lastSeen[key] = at
	return true
}

// prune drops expired entries at most once per window.
func (s *LiveScanner) prune(at time.Time) {
	if at.Sub(s.lastPrune) < s.cooldown {
		return
	}
	for k, t := range s.lastSeen {
		if at.Sub(t) >= s.cooldown {
			delete(s.lastSeen, k)
		}
	}
	s.lastPrune = at
}

// Tracked returns the number of payloads currently in cooldown bookkeeping.
func (s *LiveScanner) Tracked() int { return len(s.lastSeen) }
