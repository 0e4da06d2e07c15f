// Package session owns the in-memory state of one capture session and applies
// every mutating operation on it: analyze-merge, toggle, edit, save, clear,
// reanalyze and retake.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/joseph-ayodele/fieldcapture/constants"
	"github.com/joseph-ayodele/fieldcapture/internal/candidate"
	"github.com/joseph-ayodele/fieldcapture/internal/common"
	"github.com/joseph-ayodele/fieldcapture/internal/dedup"
	"github.com/joseph-ayodele/fieldcapture/internal/entity"
	"github.com/joseph-ayodele/fieldcapture/internal/normalize"
)

// Result is the outcome of a reconciler operation. Failures are reported here,
// never as a panic or a bare error.
type Result struct {
	Status    constants.Status
	SessionID string
	// Added is the number of candidates an analyze or live scan appended.
	Added int
	// Accepted holds the values a save newly accepted, in detected order.
	Accepted []entity.AcceptedValue
	Err      error
}

// OK reports whether the operation did not fail.
func (r Result) OK() bool { return !r.Status.IsFailure() }

// Reconciler is the single owner of one session's working state.
type Reconciler struct {
	caps      Capabilities
	text      TextRecognizer
	barcodes  BarcodeRecognizer
	committer Committer
	notify    Notifier
	filter    *candidate.Filter
	logger    *slog.Logger
	now       func() time.Time

	analyzeTimeout time.Duration

	mu         sync.Mutex
	state      constants.State
	sess       *entity.Session
	lastStatus constants.Status
	lastErr    error
	saving     bool
}

// NewReconciler creates a reconciler for a fresh, unsaved session.
func NewReconciler(caps Capabilities, text TextRecognizer, committer Committer, opts ...Option) *Reconciler {
	r := &Reconciler{
		caps:       caps,
		text:       text,
		committer:  committer,
		filter:     candidate.NewFilter(),
		logger:     slog.Default(),
		now:        time.Now,
		state:      constants.StateIdle,
		sess:       &entity.Session{},
		lastStatus: constants.StatusOK,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resume loads a stored session so the next save updates it in place.
func (r *Reconciler) Resume(s *entity.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	gen := r.sess.Generation + 1
	r.sess = s.Clone()
	r.sess.Generation = gen
	switch {
	case len(r.sess.DetectedEntries) > 0:
		r.state = constants.StateAnalyzed
	case r.sess.ImageURI != "":
		r.state = constants.StateCaptured
	default:
		r.state = constants.StateIdle
	}
	r.setStatus(constants.StatusOK, nil)
	r.logger.Info("session resumed", "session_id", s.ID, "accepted", len(s.AcceptedValues))
}

// Capture attaches a new image: candidates are reset, accepted values kept.
func (r *Reconciler) Capture(imagePath string) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(imagePath) == "" {
		err := common.NewAppError("CAPTURE_FAILED", "image source returned no image", common.ErrInvalidInput)
		return r.setStatus(constants.StatusNoImage, err)
	}
	r.sess.ImageURI = imagePath
	r.sess.DetectedEntries = nil
	r.sess.Generation++
	r.state = constants.StateCaptured
	r.logger.Debug("image captured", "image", imagePath, "generation", r.sess.Generation)
	return r.setStatus(constants.StatusOK, nil)
}

// analysisTicket carries what an in-flight analysis needs outside the lock.
type analysisTicket struct {
	generation uint64
	image      string
}

// Analyze runs the recognizers on the captured image and merges plausible,
// non-duplicate results as selected candidates. The recognizer call runs
// without holding the lock; a result whose generation is no longer current
// is discarded.
func (r *Reconciler) Analyze(ctx context.Context) Result {
	ticket, res, ok := r.beginAnalyze()
	if !ok {
		return res
	}

	lines, hits, err := r.recognize(ctx, ticket.image)
	return r.completeAnalyze(ticket, lines, hits, err)
}

func (r *Reconciler) beginAnalyze() (analysisTicket, Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == constants.StateAnalyzing {
		return analysisTicket{}, r.result(constants.StatusBusy, nil), false
	}
	if r.sess.ImageURI == "" || r.state == constants.StateIdle {
		err := common.NewAppError("NO_IMAGE", "nothing captured to analyze", common.ErrInvalidInput)
		return analysisTicket{}, r.setStatus(constants.StatusNoImage, err), false
	}
	if !r.caps.TextRecognition && !r.caps.BarcodeDecoding {
		r.state = constants.StateAnalyzed
		err := common.NewAppError("CAPABILITY_UNAVAILABLE", "no recognizer available", common.ErrUnavailable)
		return analysisTicket{}, r.setStatus(constants.StatusCapabilityUnavailable, err), false
	}
	r.state = constants.StateAnalyzing
	return analysisTicket{generation: r.sess.Generation, image: r.sess.ImageURI}, Result{}, true
}

func (r *Reconciler) recognize(ctx context.Context, image string) ([]entity.TextLine, []entity.BarcodeHit, error) {
	ctx, cancel := common.WithTimeout(ctx, r.analyzeTimeout)
	defer cancel()

	var (
		lines   []entity.TextLine
		hits    []entity.BarcodeHit
		textErr error
	)
	if r.caps.TextRecognition && r.text != nil {
		lines, textErr = r.text.RecognizeText(ctx, image)
		if textErr != nil {
			return nil, nil, fmt.Errorf("recognize text: %w", textErr)
		}
	}
	if r.caps.BarcodeDecoding && r.barcodes != nil {
		var err error
		hits, err = r.barcodes.DecodeBarcodes(ctx, image)
		if err != nil {
			if !r.caps.TextRecognition {
				return nil, nil, fmt.Errorf("decode barcodes: %w", err)
			}
			// text results still stand on their own
			r.logger.Warn("barcode decoding failed", "image", image, "error", err)
			hits = nil
		}
	}
	return lines, hits, nil
}

func (r *Reconciler) completeAnalyze(t analysisTicket, lines []entity.TextLine, hits []entity.BarcodeHit, err error) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.generation != r.sess.Generation {
		r.logger.Info("stale analysis dropped", "generation", t.generation, "current", r.sess.Generation)
		return r.result(constants.StatusStale, nil)
	}
	r.state = constants.StateAnalyzed

	if err != nil {
		st := constants.StatusRecognitionFailed
		if errors.Is(err, common.ErrUnavailable) {
			st = constants.StatusCapabilityUnavailable
		}
		r.logger.Error("analysis failed", "session_id", r.sess.ID, "image", t.image, "error", err)
		return r.setStatus(st, err)
	}

	idx := dedup.NewIndex(r.sess.DetectedEntries, r.sess.AcceptedValues)
	added := 0
	for _, c := range r.barcodeCandidates(hits, lines) {
		if r.merge(idx, c) {
			added++
		}
	}
	for _, l := range lines {
		if !r.filter.IsPlausible(l.Text) {
			continue
		}
		c := entity.Candidate{
			RawText:  strings.TrimSpace(l.Text),
			Kind:     constants.KindText,
			Bounds:   l.Bounds,
			Selected: true,
		}
		if r.merge(idx, c) {
			added++
		}
	}

	r.logger.Info("analysis complete", "session_id", r.sess.ID, "lines", len(lines), "barcodes", len(hits), "added", added)
	res := r.setStatus(constants.StatusOK, nil)
	if added == 0 {
		res = r.setStatus(constants.StatusNothingNew, nil)
	}
	res.Added = added
	return res
}

func (r *Reconciler) barcodeCandidates(hits []entity.BarcodeHit, lines []entity.TextLine) []entity.Candidate {
	out := make([]entity.Candidate, 0, len(hits))
	for _, h := range hits {
		if !r.filter.IsPlausible(h.Payload) {
			continue
		}
		out = append(out, entity.Candidate{
			RawText:       strings.TrimSpace(h.Payload),
			SecondaryText: Corroborate(h.Payload, lines),
			Kind:          constants.KindBarcode,
			Symbology:     h.Symbology,
			Selected:      true,
		})
	}
	return out
}

// merge appends c unless it duplicates an indexed item. Caller holds the lock.
func (r *Reconciler) merge(idx *dedup.Index, c entity.Candidate) bool {
	it := dedup.FromCandidate(c)
	if idx.Contains(it) {
		return false
	}
	idx.Add(it)
	r.sess.DetectedEntries = append(r.sess.DetectedEntries, c)
	return true
}

// Corroborate picks the OCR line attached to a barcode: the first line with a
// normalized length of at least three whose strict key differs from the
// payload's. It can pick an unrelated nearby line.
func Corroborate(payload string, lines []entity.TextLine) string {
	own := normalize.StrictKey(payload)
	for _, l := range lines {
		if normalize.Len(l.Text) < candidate.MinKeyLength {
			continue
		}
		if normalize.StrictKey(l.Text) == own {
			continue
		}
		return strings.TrimSpace(l.Text)
	}
	return ""
}

// AcceptLiveBarcode merges one live detection through the same filter and
// deduplication as analyze.
func (r *Reconciler) AcceptLiveBarcode(ev entity.BarcodeEvent) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.caps.LiveBarcode {
		err := common.NewAppError("CAPABILITY_UNAVAILABLE", "live barcode feed not supported", common.ErrUnavailable)
		return r.setStatus(constants.StatusCapabilityUnavailable, err)
	}
	if !r.filter.IsPlausible(ev.Payload) {
		return r.result(constants.StatusNothingNew, nil)
	}
	sym, _ := constants.CanonicalizeSymbology(ev.Symbology)
	c := entity.Candidate{
		RawText:   strings.TrimSpace(ev.Payload),
		Kind:      constants.KindBarcode,
		Symbology: sym,
		Selected:  true,
	}
	if !r.merge(dedup.NewIndex(r.sess.DetectedEntries, r.sess.AcceptedValues), c) {
		return r.result(constants.StatusNothingNew, nil)
	}
	r.logger.Debug("live barcode added", "payload", c.RawText, "symbology", sym)
	res := r.result(constants.StatusOK, nil)
	res.Added = 1
	return res
}

// Toggle flips the selection of the candidate whose key matches key. It is a
// no-op for unknown keys and for candidates already accepted.
func (r *Reconciler) Toggle(key string) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.find(key)
	if i < 0 || dedup.IsAccepted(r.sess.DetectedEntries[i], r.sess.AcceptedValues) {
		return r.result(constants.StatusNoop, nil)
	}
	r.sess.DetectedEntries[i].Selected = !r.sess.DetectedEntries[i].Selected
	return r.result(constants.StatusOK, nil)
}

// Edit rewrites the text of the candidate matching oldKey. The new text is not
// checked against other candidates; save-time deduplication guards the
// accepted set. Unknown keys and blank text are no-ops; text longer than
// candidate.MaxValueLength is rejected with INVALID_INPUT.
func (r *Reconciler) Edit(oldKey, newText string) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	newText = strings.TrimSpace(newText)
	i := r.find(oldKey)
	if i < 0 || newText == "" {
		return r.result(constants.StatusNoop, nil)
	}
	err := common.NewValidator().
		Field("text", newText, common.MaxLength(candidate.MaxValueLength)).
		Err()
	if err != nil {
		r.logger.Warn("edit rejected", "session_id", r.sess.ID, "error", err)
		return r.setStatus(constants.StatusInvalidInput, err)
	}
	r.sess.DetectedEntries[i].RawText = newText
	return r.result(constants.StatusOK, nil)
}

func (r *Reconciler) find(key string) int {
	k := normalize.Key(key)
	if k == "" {
		return -1
	}
	for i, c := range r.sess.DetectedEntries {
		if normalize.Key(c.RawText) == k {
			return i
		}
	}
	return -1
}

// Save accepts every selected candidate not already accepted and commits the
// session. The commit runs without holding the lock; the in-memory accepted set
// changes only after it succeeds, so a failed save can be retried with the same
// selections. A second save while one is in flight reports BUSY.
func (r *Reconciler) Save(ctx context.Context) Result {
	r.mu.Lock()
	if r.saving {
		defer r.mu.Unlock()
		return r.result(constants.StatusBusy, nil)
	}

	added := make([]entity.AcceptedValue, 0)
	merged := append([]entity.AcceptedValue(nil), r.sess.AcceptedValues...)
	for _, c := range r.sess.DetectedEntries {
		if !c.Selected || dedup.IsAccepted(c, merged) {
			continue
		}
		v := c.Accept()
		added = append(added, v)
		merged = append(merged, v)
	}

	snap := entity.Snapshot{
		ImageURI:        r.sess.ImageURI,
		DetectedEntries: entity.CloneCandidates(r.sess.DetectedEntries),
		AcceptedValues:  merged,
	}
	if snap.IsEmpty() {
		defer r.mu.Unlock()
		return r.setStatus(constants.StatusNothingToSave, nil)
	}
	if r.committer == nil {
		defer r.mu.Unlock()
		err := common.NewAppError("PERSIST_FAILED", "no committer configured", common.ErrUnavailable)
		return r.setStatus(constants.StatusPersistFailed, err)
	}

	sess, prevID := r.sess, r.sess.ID
	r.saving = true
	r.mu.Unlock()

	id, err := r.committer.Commit(ctx, snap, prevID)

	r.mu.Lock()
	r.saving = false
	if err != nil {
		defer r.mu.Unlock()
		r.logger.Error("save failed", "session_id", prevID, "new_values", len(added), "error", err)
		if prevID != "" && errors.Is(err, common.ErrNotFound) && r.sess == sess && sess.ID == prevID {
			// the stored record is gone; the next save creates a new one
			r.logger.Warn("stored session missing, detaching", "session_id", prevID)
			sess.ID = ""
			sess.CreatedAt = time.Time{}
		}
		return r.setStatus(constants.StatusPersistFailed, err)
	}
	if r.sess != sess || sess.ID != prevID {
		// another session was resumed while committing
		defer r.mu.Unlock()
		r.logger.Warn("save result not applied, session replaced", "session_id", id)
		res := r.result(constants.StatusStale, nil)
		res.SessionID = id
		return res
	}

	sess.ID = id
	sess.AcceptedValues = merged
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = r.now().UTC()
	}
	sess.UpdatedAt = r.now().UTC()
	res := r.setStatus(constants.StatusOK, nil)
	res.Accepted = added
	notify := r.notify
	r.mu.Unlock()

	r.logger.Info("session saved", "session_id", id, "new_values", len(added), "accepted", len(merged))
	if notify != nil && len(added) > 0 {
		notify(ctx, id, append([]entity.AcceptedValue(nil), added...))
	}
	return res
}

// Clear drops every detected candidate. Accepted values are untouched.
func (r *Reconciler) Clear() Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sess.DetectedEntries = nil
	return r.result(constants.StatusOK, nil)
}

// Reanalyze discards the candidates of the current capture and returns to the
// unanalyzed state. A pending analysis is invalidated.
func (r *Reconciler) Reanalyze() Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sess.ImageURI == "" {
		return r.result(constants.StatusNoop, nil)
	}
	r.sess.DetectedEntries = nil
	r.sess.Generation++
	r.state = constants.StateCaptured
	return r.setStatus(constants.StatusOK, nil)
}

// Retake drops the image and all candidates and returns to idle. Accepted
// values and the session id are kept. A pending analysis is invalidated.
func (r *Reconciler) Retake() Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sess.ImageURI = ""
	r.sess.DetectedEntries = nil
	r.sess.Generation++
	r.state = constants.StateIdle
	return r.setStatus(constants.StatusOK, nil)
}

// DismissError clears the last failure.
func (r *Reconciler) DismissError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = nil
	if r.lastStatus.IsFailure() {
		r.lastStatus = constants.StatusOK
	}
}

// Session returns a deep copy of the working session.
func (r *Reconciler) Session() *entity.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess.Clone()
}

// State returns the current capture/analysis state.
func (r *Reconciler) State() constants.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// setStatus records st as the last status and returns its Result. Caller holds the lock.
func (r *Reconciler) setStatus(st constants.Status, err error) Result {
	r.lastStatus = st
	r.lastErr = err
	return r.result(st, err)
}

func (r *Reconciler) result(st constants.Status, err error) Result {
	return Result{Status: st, SessionID: r.sess.ID, Err: err}
}
