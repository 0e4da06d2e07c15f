package session

import (
	"github.com/joseph-ayodele/fieldcapture/constants"
	"github.com/joseph-ayodele/fieldcapture/internal/dedup"
	"github.com/joseph-ayodele/fieldcapture/internal/entity"
)

// CandidateView is a candidate plus whether it is already in the accepted set.
type CandidateView struct {
	entity.Candidate
	Saved bool `json:"saved"`
}

// View is the read model handed to callers.
type View struct {
	SessionID      string                 `json:"session_id,omitempty"`
	State          constants.State        `json:"state"`
	ImageURI       string                 `json:"image_uri,omitempty"`
	Candidates     []CandidateView        `json:"candidates"`
	AcceptedValues []entity.AcceptedValue `json:"accepted_values"`
	AcceptedCount  int                    `json:"accepted_count"`
	HasNewToSave   bool                   `json:"has_new_to_save"`
	LastStatus     constants.Status       `json:"last_status"`
	LastError      string                 `json:"last_error,omitempty"`
}

// NewCount returns how many candidates the next save would accept.
func (v View) NewCount() int {
	n := 0
	for _, c := range v.Candidates {
		if c.Selected && !c.Saved {
			n++
		}
	}
	return n
}

// View returns a consistent snapshot of the session for display.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := View{
		SessionID:      r.sess.ID,
		State:          r.state,
		ImageURI:       r.sess.ImageURI,
		Candidates:     make([]CandidateView, 0, len(r.sess.DetectedEntries)),
		AcceptedValues: append([]entity.AcceptedValue(nil), r.sess.AcceptedValues...),
		AcceptedCount:  len(r.sess.AcceptedValues),
		LastStatus:     r.lastStatus,
	}
	for _, c := range entity.CloneCandidates(r.sess.DetectedEntries) {
		cv := CandidateView{Candidate: c, Saved: dedup.IsAccepted(c, r.sess.AcceptedValues)}
		if cv.Selected && !cv.Saved {
			v.HasNewToSave = true
		}
		v.Candidates = append(v.Candidates, cv)
	}
	if r.lastErr != nil {
		v.LastError = r.lastErr.Error()
	}
	return v
}
