package entity

import (
	"time"
)

// Session is one capture-and-curate unit of work.
type Session struct {
	ID              string          `json:"id"`
	ImageURI        string          `json:"image_uri"`
	DetectedEntries []Candidate     `json:"detected_entries"`
	AcceptedValues  []AcceptedValue `json:"accepted_values"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	// Generation tags analysis passes; bumped whenever the capture changes.
	Generation uint64 `json:"-"`
}

// Clone returns a deep copy; bounds pointers are not shared.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.DetectedEntries = CloneCandidates(s.DetectedEntries)
	out.AcceptedValues = append([]AcceptedValue(nil), s.AcceptedValues...)
	return &out
}

// AcceptedTexts returns the plain accepted values in acceptance order.
func (s *Session) AcceptedTexts() []string {
	out := make([]string, len(s.AcceptedValues))
	for i, v := range s.AcceptedValues {
		out[i] = v.Text
	}
	return out
}

// Snapshot is the immutable hand-off from the reconciler to persistence.
type Snapshot struct {
	ImageURI        string
	DetectedEntries []Candidate
	AcceptedValues  []AcceptedValue
}

// IsEmpty reports whether there is nothing at all to persist.
func (s Snapshot) IsEmpty() bool {
	return len(s.DetectedEntries) == 0 && len(s.AcceptedValues) == 0
}

// CloneCandidates deep-copies a candidate slice.
func CloneCandidates(in []Candidate) []Candidate {
	if in == nil {
		return nil
	}
	out := make([]Candidate, len(in))
	for i, c := range in {
		out[i] = c
		if c.Bounds != nil {
			b := *c.Bounds
			out[i].Bounds = &b
		}
	}
	return out
}

// BarcodeEvent is one detection from a live barcode feed.
type BarcodeEvent struct {
	Payload   string
	Symbology string
	At        time.Time
}
