package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/fieldcapture/constants"
	"github.com/joseph-ayodele/fieldcapture/internal/candidate"
	"github.com/joseph-ayodele/fieldcapture/internal/common"
	"github.com/joseph-ayodele/fieldcapture/internal/entity"
	"github.com/joseph-ayodele/fieldcapture/internal/normalize"
)

type stubText struct {
	mu      sync.Mutex
	lines   []entity.TextLine
	err     error
	calls   int
	started chan struct{}
	release chan struct{}
}

func (s *stubText) RecognizeText(ctx context.Context, _ string) ([]entity.TextLine, error) {
	s.mu.Lock()
	s.calls++
	started, release := s.started, s.release
	lines, err := s.lines, s.err
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return lines, err
}

func textLines(texts ...string) []entity.TextLine {
	out := make([]entity.TextLine, len(texts))
	for i, t := range texts {
		out[i] = entity.TextLine{Text: t}
	}
	return out
}

type stubBarcodes struct {
	hits []entity.BarcodeHit
	err  error
}

func (s *stubBarcodes) DecodeBarcodes(context.Context, string) ([]entity.BarcodeHit, error) {
	return s.hits, s.err
}

type stubCommitter struct {
	fail    error
	commits []entity.Snapshot
	ids     []string
	seq     int
}

func (c *stubCommitter) Commit(_ context.Context, snap entity.Snapshot, existingID string) (string, error) {
	if c.fail != nil {
		return "", c.fail
	}
	c.commits = append(c.commits, snap)
	c.ids = append(c.ids, existingID)
	if existingID != "" {
		return existingID, nil
	}
	c.seq++
	return fmt.Sprintf("session-%d", c.seq), nil
}

var textOnly = Capabilities{TextRecognition: true}

func newTestReconciler(text *stubText, committer *stubCommitter, opts ...Option) *Reconciler {
	return NewReconciler(textOnly, text, committer, opts...)
}

func candidateTexts(v View) []string {
	out := make([]string, len(v.Candidates))
	for i, c := range v.Candidates {
		out[i] = c.RawText
	}
	return out
}

func TestAnalyze_MergeFiltersAndDedups(t *testing.T) {
	text := &stubText{lines: textLines("Serial Number", "XQ-4471", "XQ-4471", "No.")}
	r := newTestReconciler(text, &stubCommitter{})

	require.Equal(t, constants.StatusOK, r.Capture("/tmp/a.jpg").Status)
	res := r.Analyze(context.Background())

	assert.Equal(t, constants.StatusOK, res.Status)
	assert.Equal(t, 1, res.Added)
	v := r.View()
	require.Len(t, v.Candidates, 1)
	assert.Equal(t, "XQ-4471", v.Candidates[0].RawText)
	assert.True(t, v.Candidates[0].Selected)
	assert.Equal(t, constants.KindText, v.Candidates[0].Kind)
	assert.Equal(t, constants.StateAnalyzed, v.State)
	assert.True(t, v.HasNewToSave)
}

func TestAnalyze_PreservesRecognizerOrderAcrossPasses(t *testing.T) {
	text := &stubText{lines: textLines("AAA-1", "BBB-2")}
	r := newTestReconciler(text, &stubCommitter{})
	r.Capture("/tmp/a.jpg")
	r.Analyze(context.Background())

	text.lines = textLines("ccc-3", "aaa-1", "DDD-4")
	res := r.Analyze(context.Background())
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, []string{"AAA-1", "BBB-2", "ccc-3", "DDD-4"}, candidateTexts(r.View()))
}

func TestAnalyze_NothingNew(t *testing.T) {
	text := &stubText{lines: textLines("No.", "ab")}
	r := newTestReconciler(text, &stubCommitter{})
	r.Capture("/tmp/a.jpg")

	res := r.Analyze(context.Background())
	assert.Equal(t, constants.StatusNothingNew, res.Status)
	assert.True(t, res.OK())
	v := r.View()
	assert.Equal(t, constants.StateAnalyzed, v.State)
	assert.Empty(t, v.LastError)
}

func TestAnalyze_Preconditions(t *testing.T) {
	t.Run("no image", func(t *testing.T) {
		r := newTestReconciler(&stubText{}, &stubCommitter{})
		res := r.Analyze(context.Background())
		assert.Equal(t, constants.StatusNoImage, res.Status)
		assert.Equal(t, constants.StateIdle, r.State())
	})

	t.Run("capability unavailable", func(t *testing.T) {
		text := &stubText{lines: textLines("XQ-4471")}
		r := NewReconciler(Capabilities{}, text, &stubCommitter{})
		r.Capture("/tmp/a.jpg")
		res := r.Analyze(context.Background())
		assert.Equal(t, constants.StatusCapabilityUnavailable, res.Status)
		assert.ErrorIs(t, res.Err, common.ErrUnavailable)
		assert.Equal(t, constants.StateAnalyzed, r.State())
		assert.Zero(t, text.calls)
	})

	t.Run("recognizer reports unavailable", func(t *testing.T) {
		text := &stubText{err: fmt.Errorf("tesseract: %w", common.ErrUnavailable)}
		r := newTestReconciler(text, &stubCommitter{})
		r.Capture("/tmp/a.jpg")
		res := r.Analyze(context.Background())
		assert.Equal(t, constants.StatusCapabilityUnavailable, res.Status)
	})
}

func TestAnalyze_FailureKeepsCandidates(t *testing.T) {
	text := &stubText{lines: textLines("XQ-4471")}
	r := newTestReconciler(text, &stubCommitter{})
	r.Capture("/tmp/a.jpg")
	r.Analyze(context.Background())

	text.err = errors.New("decode error")
	res := r.Analyze(context.Background())
	assert.Equal(t, constants.StatusRecognitionFailed, res.Status)
	assert.False(t, res.OK())

	v := r.View()
	assert.Equal(t, []string{"XQ-4471"}, candidateTexts(v))
	assert.Equal(t, constants.StateAnalyzed, v.State)
	assert.Contains(t, v.LastError, "decode error")

	r.DismissError()
	v = r.View()
	assert.Empty(t, v.LastError)
	assert.Equal(t, constants.StatusOK, v.LastStatus)

	text.err = nil
	text.lines = textLines("ZZ-9")
	assert.Equal(t, constants.StatusOK, r.Analyze(context.Background()).Status, "retry after failure")
}

func TestAnalyze_BusyWhileInFlight(t *testing.T) {
	text := &stubText{
		lines:   textLines("XQ-4471"),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	r := newTestReconciler(text, &stubCommitter{})
	r.Capture("/tmp/a.jpg")

	done := make(chan Result, 1)
	go func() { done <- r.Analyze(context.Background()) }()
	<-text.started

	assert.Equal(t, constants.StateAnalyzing, r.State())
	assert.Equal(t, constants.StatusBusy, r.Analyze(context.Background()).Status)

	close(text.release)
	res := <-done
	assert.Equal(t, constants.StatusOK, res.Status)
	assert.Equal(t, 1, text.calls)
}

func TestAnalyze_StaleResultDroppedAfterRetake(t *testing.T) {
	text := &stubText{
		lines:   textLines("XQ-4471"),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	r := newTestReconciler(text, &stubCommitter{})
	r.Capture("/tmp/old.jpg")

	done := make(chan Result, 1)
	go func() { done <- r.Analyze(context.Background()) }()
	<-text.started

	r.Retake()
	r.Capture("/tmp/new.jpg")
	close(text.release)

	res := <-done
	assert.Equal(t, constants.StatusStale, res.Status)
	v := r.View()
	assert.Empty(t, v.Candidates)
	assert.Equal(t, constants.StateCaptured, v.State)
	assert.Equal(t, "/tmp/new.jpg", v.ImageURI)
}

func TestAnalyze_StaleResultDroppedAfterReanalyze(t *testing.T) {
	text := &stubText{
		lines:   textLines("XQ-4471"),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	r := newTestReconciler(text, &stubCommitter{})
	r.Capture("/tmp/a.jpg")

	done := make(chan Result, 1)
	go func() { done <- r.Analyze(context.Background()) }()
	<-text.started
	r.Reanalyze()
	close(text.release)

	assert.Equal(t, constants.StatusStale, (<-done).Status)
	assert.Empty(t, r.View().Candidates)
	assert.Equal(t, constants.StateCaptured, r.State())
}

func TestAnalyze_TimeoutIsRecognitionFailure(t *testing.T) {
	text := &stubText{release: make(chan struct{})}
	r := newTestReconciler(text, &stubCommitter{}, WithAnalyzeTimeout(10*time.Millisecond))
	r.Capture("/tmp/a.jpg")

	res := r.Analyze(context.Background())
	assert.Equal(t, constants.StatusRecognitionFailed, res.Status)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Equal(t, constants.StateAnalyzed, r.State())
}

func TestAnalyze_BarcodesWithCorroboration(t *testing.T) {
	text := &stubText{lines: textLines("Model X200", "ABC-123", "LOT 77")}
	barcodes := &stubBarcodes{hits: []entity.BarcodeHit{{Payload: "ABC123", Symbology: constants.Code128}}}
	caps := Capabilities{TextRecognition: true, BarcodeDecoding: true}
	r := NewReconciler(caps, text, &stubCommitter{}, WithBarcodeRecognizer(barcodes))
	r.Capture("/tmp/a.jpg")

	res := r.Analyze(context.Background())
	require.Equal(t, constants.StatusOK, res.Status)

	v := r.View()
	require.Len(t, v.Candidates, 2)
	bc := v.Candidates[0]
	assert.Equal(t, constants.KindBarcode, bc.Kind)
	assert.Equal(t, "ABC123", bc.RawText)
	assert.Equal(t, "Model X200", bc.SecondaryText)
	assert.Equal(t, constants.Code128, bc.Symbology)
	assert.Equal(t, "LOT 77", v.Candidates[1].RawText)
}

func TestAnalyze_BarcodeFailureFallsBackToText(t *testing.T) {
	text := &stubText{lines: textLines("XQ-4471")}
	barcodes := &stubBarcodes{err: errors.New("zbar crashed")}
	r := NewReconciler(Capabilities{TextRecognition: true, BarcodeDecoding: true}, text, &stubCommitter{}, WithBarcodeRecognizer(barcodes))
	r.Capture("/tmp/a.jpg")

	res := r.Analyze(context.Background())
	assert.Equal(t, constants.StatusOK, res.Status)
	assert.Equal(t, []string{"XQ-4471"}, candidateTexts(r.View()))
}

func TestCorroborate(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		lines   []string
		want    string
	}{
		{name: "first other line", payload: "ABC123", lines: []string{"abc-123", "ab", "Part 9"}, want: "Part 9"},
		{name: "none", payload: "ABC123", lines: []string{"ABC 123", "x"}, want: ""},
		{name: "no lines", payload: "ABC123", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Corroborate(tt.payload, textLines(tt.lines...)))
		})
	}
}

func TestToggle(t *testing.T) {
	text := &stubText{lines: textLines("AAA-1", "BBB-2")}
	committer := &stubCommitter{}
	r := newTestReconciler(text, committer)
	r.Capture("/tmp/a.jpg")
	r.Analyze(context.Background())

	assert.Equal(t, constants.StatusOK, r.Toggle("bbb-2").Status)
	assert.False(t, r.View().Candidates[1].Selected)
	assert.Equal(t, constants.StatusNoop, r.Toggle("missing").Status)

	// BBB-2 is deselected so only AAA-1 is accepted
	require.Equal(t, constants.StatusOK, r.Save(context.Background()).Status)
	assert.Equal(t, constants.StatusNoop, r.Toggle("AAA-1").Status, "accepted candidates are immutable")

	v := r.View()
	assert.True(t, v.Candidates[0].Saved)
	assert.True(t, v.Candidates[0].Selected)
	assert.False(t, v.HasNewToSave)
	assert.Equal(t, 1, v.AcceptedCount)
}

func TestEdit(t *testing.T) {
	text := &stubText{lines: textLines("XQ-447l", "XQ-4471")}
	committer := &stubCommitter{}
	r := newTestReconciler(text, committer)
	r.Capture("/tmp/a.jpg")
	r.Analyze(context.Background())

	assert.Equal(t, constants.StatusNoop, r.Edit("missing", "X").Status, "unknown key")
	assert.Equal(t, constants.StatusNoop, r.Edit("XQ-447l", "   ").Status, "blank text")

	tooLong := strings.Repeat("X", candidate.MaxValueLength+1)
	res := r.Edit("XQ-447l", tooLong)
	assert.Equal(t, constants.StatusInvalidInput, res.Status, "over-long text")
	assert.ErrorIs(t, res.Err, common.ErrInvalidInput)
	assert.Equal(t, []string{"XQ-447l", "XQ-4471"}, candidateTexts(r.View()))
	assert.NotEmpty(t, r.View().LastError)
	r.DismissError()

	// edit may collide with another candidate; save still accepts it once
	require.Equal(t, constants.StatusOK, r.Edit("xq-447L", "XQ-4471").Status)
	assert.Equal(t, []string{"XQ-4471", "XQ-4471"}, candidateTexts(r.View()))

	res = r.Save(context.Background())
	require.Equal(t, constants.StatusOK, res.Status)
	assert.Len(t, res.Accepted, 1)
	assert.Equal(t, []string{"XQ-4471"}, r.Session().AcceptedTexts())
}

func TestSave_NoDuplicateAcceptance(t *testing.T) {
	text := &stubText{lines: textLines("AAA-1", "BBB-2")}
	committer := &stubCommitter{}
	r := newTestReconciler(text, committer)
	ctx := context.Background()
	r.Capture("/tmp/a.jpg")
	r.Analyze(ctx)

	first := r.Save(ctx)
	require.Equal(t, constants.StatusOK, first.Status)
	assert.Len(t, first.Accepted, 2)

	second := r.Save(ctx)
	require.Equal(t, constants.StatusOK, second.Status)
	assert.Empty(t, second.Accepted)

	r.Clear()
	text.lines = textLines("aaa-1", "CCC-3")
	r.Analyze(ctx)
	r.Save(ctx)

	got := r.Session().AcceptedTexts()
	assert.Equal(t, []string{"AAA-1", "BBB-2", "CCC-3"}, got)
	seen := map[string]bool{}
	for _, a := range got {
		k := normalize.Key(a)
		assert.False(t, seen[k], "duplicate accepted %q", a)
		seen[k] = true
	}

	require.Len(t, committer.ids, 3)
	assert.Equal(t, []string{"", "session-1", "session-1"}, committer.ids, "later saves update in place")
}

func TestSave_ThenReanalyze(t *testing.T) {
	text := &stubText{lines: textLines("XQ-4471")}
	r := newTestReconciler(text, &stubCommitter{})
	ctx := context.Background()
	r.Capture("/tmp/a.jpg")
	r.Analyze(ctx)
	require.Equal(t, constants.StatusOK, r.Save(ctx).Status)

	r.Reanalyze()
	v := r.View()
	assert.Empty(t, v.Candidates)
	assert.Equal(t, constants.StateCaptured, v.State)
	assert.Equal(t, []string{"XQ-4471"}, r.Session().AcceptedTexts())

	res := r.Analyze(ctx)
	assert.Equal(t, constants.StatusNothingNew, res.Status)
	assert.Empty(t, r.View().Candidates)
}

func TestSave_NothingToSave(t *testing.T) {
	committer := &stubCommitter{}
	r := newTestReconciler(&stubText{}, committer)
	r.Capture("/tmp/a.jpg")

	res := r.Save(context.Background())
	assert.Equal(t, constants.StatusNothingToSave, res.Status)
	assert.Empty(t, committer.commits)
}

func TestSave_FailureKeepsSelectionsForRetry(t *testing.T) {
	text := &stubText{lines: textLines("XQ-4471")}
	committer := &stubCommitter{fail: fmt.Errorf("%w: disk full", common.ErrStore)}
	var notified [][]entity.AcceptedValue
	notify := func(_ context.Context, _ string, values []entity.AcceptedValue) {
		notified = append(notified, values)
	}
	r := newTestReconciler(text, committer, WithNotifier(notify))
	ctx := context.Background()
	r.Capture("/tmp/a.jpg")
	r.Analyze(ctx)

	res := r.Save(ctx)
	assert.Equal(t, constants.StatusPersistFailed, res.Status)
	assert.ErrorIs(t, res.Err, common.ErrStore)
	v := r.View()
	assert.Zero(t, v.AcceptedCount)
	assert.True(t, v.HasNewToSave)
	assert.NotEmpty(t, v.LastError)
	assert.Empty(t, notified)

	committer.fail = nil
	res = r.Save(ctx)
	require.Equal(t, constants.StatusOK, res.Status)
	assert.Equal(t, "session-1", res.SessionID)
	require.Len(t, notified, 1)
	assert.Equal(t, "XQ-4471", notified[0][0].Text)
	assert.Empty(t, r.View().LastError)
}

func TestSave_SnapshotIsIsolated(t *testing.T) {
	text := &stubText{lines: textLines("XQ-4471")}
	committer := &stubCommitter{}
	r := newTestReconciler(text, committer)
	ctx := context.Background()
	r.Capture("/tmp/a.jpg")
	r.Analyze(ctx)
	r.Save(ctx)

	r.Edit("XQ-4471", "XQ-9999")
	require.Len(t, committer.commits, 1)
	assert.Equal(t, "XQ-4471", committer.commits[0].DetectedEntries[0].RawText)
	assert.Equal(t, "/tmp/a.jpg", committer.commits[0].ImageURI)
}

func TestRetakeKeepsAccepted(t *testing.T) {
	text := &stubText{lines: textLines("XQ-4471")}
	r := newTestReconciler(text, &stubCommitter{})
	ctx := context.Background()
	r.Capture("/tmp/a.jpg")
	r.Analyze(ctx)
	r.Save(ctx)

	r.Retake()
	v := r.View()
	assert.Equal(t, constants.StateIdle, v.State)
	assert.Empty(t, v.ImageURI)
	assert.Empty(t, v.Candidates)
	assert.Equal(t, 1, v.AcceptedCount)
	assert.Equal(t, "session-1", v.SessionID)
}

func TestCaptureRejectsEmptyImage(t *testing.T) {
	r := newTestReconciler(&stubText{}, &stubCommitter{})
	res := r.Capture("")
	assert.Equal(t, constants.StatusNoImage, res.Status)
	assert.Equal(t, constants.StateIdle, r.State())
}

func TestResumeUpdatesInPlace(t *testing.T) {
	stored := &entity.Session{
		ID:              "stored-1",
		ImageURI:        "/data/images/stored-1.jpg",
		DetectedEntries: []entity.Candidate{{RawText: "AAA-1", Kind: constants.KindText, Selected: true}},
		AcceptedValues:  []entity.AcceptedValue{{Text: "AAA-1"}},
		CreatedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	committer := &stubCommitter{}
	r := newTestReconciler(&stubText{lines: textLines("BBB-2")}, committer)
	r.Resume(stored)
	assert.Equal(t, constants.StateAnalyzed, r.State())

	res := r.Analyze(context.Background())
	require.Equal(t, constants.StatusOK, res.Status)
	res = r.Save(context.Background())
	require.Equal(t, constants.StatusOK, res.Status)

	assert.Equal(t, "stored-1", res.SessionID)
	assert.Equal(t, []string{"stored-1"}, committer.ids)
	assert.Equal(t, stored.CreatedAt, r.Session().CreatedAt)
	assert.Equal(t, []string{"AAA-1", "BBB-2"}, r.Session().AcceptedTexts())
	assert.Len(t, stored.DetectedEntries, 1, "resume copies the stored session")
}

type blockingCommitter struct {
	started chan struct{}
	release chan struct{}
}

func (c *blockingCommitter) Commit(ctx context.Context, _ entity.Snapshot, existingID string) (string, error) {
	c.started <- struct{}{}
	select {
	case <-c.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if existingID != "" {
		return existingID, nil
	}
	return "session-1", nil
}

func TestSave_CommitRunsWithoutLock(t *testing.T) {
	committer := &blockingCommitter{started: make(chan struct{}, 1), release: make(chan struct{})}
	r := NewReconciler(textOnly, &stubText{lines: textLines("XQ-4471", "SN-88213")}, committer)
	ctx := context.Background()
	r.Capture("/tmp/a.jpg")
	r.Analyze(ctx)

	done := make(chan Result, 1)
	go func() { done <- r.Save(ctx) }()
	<-committer.started

	// reads and edits proceed while the store round-trip is pending
	v := r.View()
	assert.Len(t, v.Candidates, 2)
	assert.Equal(t, constants.StatusOK, r.Toggle("SN-88213").Status)
	assert.Equal(t, constants.StatusBusy, r.Save(ctx).Status, "second save while one is in flight")

	close(committer.release)
	select {
	case res := <-done:
		require.Equal(t, constants.StatusOK, res.Status)
		assert.Equal(t, "session-1", res.SessionID)
		assert.Len(t, res.Accepted, 2, "the snapshot taken before the toggle is what was committed")
	case <-time.After(5 * time.Second):
		t.Fatal("save did not finish")
	}
	assert.Equal(t, []string{"XQ-4471", "SN-88213"}, r.Session().AcceptedTexts())
}

func TestSave_MissingStoredSessionDetaches(t *testing.T) {
	stored := &entity.Session{
		ID:             "stored-1",
		AcceptedValues: []entity.AcceptedValue{{Text: "AAA-1"}},
		CreatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	committer := &stubCommitter{fail: common.NewAppError("NOT_FOUND", "session stored-1", common.ErrNotFound)}
	r := newTestReconciler(&stubText{lines: textLines("BBB-2")}, committer)
	r.Resume(stored)
	r.Capture("/tmp/b.jpg")
	r.Analyze(context.Background())

	res := r.Save(context.Background())
	assert.Equal(t, constants.StatusPersistFailed, res.Status)
	assert.ErrorIs(t, res.Err, common.ErrNotFound)
	assert.Empty(t, r.Session().ID, "a deleted record is not retried forever")

	committer.fail = nil
	res = r.Save(context.Background())
	require.Equal(t, constants.StatusOK, res.Status)
	assert.Equal(t, "session-1", res.SessionID)
	assert.Equal(t, []string{""}, committer.ids, "retry creates a new record")
	assert.Equal(t, []string{"AAA-1", "BBB-2"}, r.Session().AcceptedTexts())
}
