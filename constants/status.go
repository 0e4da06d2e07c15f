package constants

// Status is the outcome reported by session and persistence operations.
type Status string

// Stable values (surfaced to callers and stored as the session's last status).
const (
	StatusOK                    Status = "OK"
	StatusNothingNew            Status = "NOTHING_NEW"            // recognizer ran, nothing new survived
	StatusBusy                  Status = "BUSY"                   // analysis or save already in flight
	StatusNoImage               Status = "NO_IMAGE"               // analyze without a captured image
	StatusCapabilityUnavailable Status = "CAPABILITY_UNAVAILABLE" // recognizer not supported here
	StatusRecognitionFailed     Status = "RECOGNITION_FAILED"     // retryable recognizer error
	StatusStale                 Status = "STALE"                  // result dropped, session moved on
	StatusNothingToSave         Status = "NOTHING_TO_SAVE"        // empty session, no commit
	StatusPersistFailed         Status = "PERSIST_FAILED"         // commit failed, selections kept
	StatusNoop                  Status = "NOOP"                   // toggle/edit target not applicable
	StatusInvalidInput          Status = "INVALID_INPUT"          // edit rejected, candidate unchanged
)

// IsFailure reports whether the status should surface as a dismissible error.
func (s Status) IsFailure() bool {
	switch s {
	case StatusCapabilityUnavailable, StatusRecognitionFailed, StatusPersistFailed, StatusNoImage, StatusInvalidInput:
		return true
	}
	return false
}

// State is the reconciler's capture/analysis state.
type State string

const (
	StateIdle      State = "IDLE"
	StateCaptured  State = "CAPTURED_UNANALYZED"
	StateAnalyzing State = "ANALYZING"
	StateAnalyzed  State = "ANALYZED"
)
