package entity

import "github.com/joseph-ayodele/fieldcapture/constants"

// Bounds is a normalized (0..1) rectangle in the source image.
type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Candidate is a recognized value not yet committed to the accepted set.
type Candidate struct {
	RawText       string              `json:"raw_text"`
	SecondaryText string              `json:"secondary_text,omitempty"`
	Kind          constants.Kind      `json:"kind"`
	Symbology     constants.Symbology `json:"symbology,omitempty"`
	Bounds        *Bounds             `json:"bounds,omitempty"`
	Selected      bool                `json:"selected"`
}

// IsBarcode reports whether the candidate came from barcode decoding.
func (c Candidate) IsBarcode() bool { return c.Kind == constants.KindBarcode }

// AcceptedValue is a user-confirmed value belonging to a session's record.
// Kind, Symbology and SecondaryText are carried over from barcode candidates so
// later saves can still match on the payload or its corroborating text.
type AcceptedValue struct {
	Text          string              `json:"text"`
	Kind          constants.Kind      `json:"kind,omitempty"`
	Symbology     constants.Symbology `json:"symbology,omitempty"`
	SecondaryText string              `json:"secondary_text,omitempty"`
}

// IsBarcode reports whether the value was accepted from a barcode candidate.
func (a AcceptedValue) IsBarcode() bool { return a.Kind == constants.KindBarcode }

// Accept converts a candidate to the value stored in the accepted set.
func (c Candidate) Accept() AcceptedValue {
	v := AcceptedValue{Text: c.RawText}
	if c.IsBarcode() {
		v.Kind = c.Kind
		v.Symbology = c.Symbology
		v.SecondaryText = c.SecondaryText
	}
	return v
}

// TextLine is one line reported by a text recognizer.
type TextLine struct {
	Text       string  `json:"text"`
	Bounds     *Bounds `json:"bounds,omitempty"`
	Confidence float32 `json:"confidence,omitempty"`
}

// BarcodeHit is one symbol decoded from a still image.
type BarcodeHit struct {
	Payload   string              `json:"payload"`
	Symbology constants.Symbology `json:"symbology"`
}
