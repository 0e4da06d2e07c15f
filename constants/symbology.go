package constants

import (
	"strings"
)

type Kind string

const (
	KindText    Kind = "TEXT"
	KindBarcode Kind = "BARCODE"
)

type Symbology string

const (
	QRCode     Symbology = "QR"
	DataMatrix Symbology = "DATAMATRIX"
	Code128    Symbology = "CODE128"
	Code39     Symbology = "CODE39"
	Code93     Symbology = "CODE93"
	EAN13      Symbology = "EAN13"
	EAN8       Symbology = "EAN8"
	UPCA       Symbology = "UPCA"
	UPCE       Symbology = "UPCE"
	ITF        Symbology = "ITF"
	PDF417     Symbology = "PDF417"
	Codabar    Symbology = "CODABAR"
	Unknown    Symbology = "UNKNOWN"
)

var allSymbologies = []Symbology{
	QRCode,
	DataMatrix,
	Code128,
	Code39,
	Code93,
	EAN13,
	EAN8,
	UPCA,
	UPCE,
	ITF,
	PDF417,
	Codabar,
}

// CanonicalizeSymbology maps recognizer-specific tags (zbar "QR-Code", "EAN-13",
// "I2/5", ...) onto the stable symbology set. Unknown tags map to Unknown, false.
func CanonicalizeSymbology(input string) (Symbology, bool) {
	if strings.TrimSpace(input) == "" {
		return Unknown, false
	}

	normalized := strings.ToUpper(strings.TrimSpace(input))

	synonyms := map[string]Symbology{
		"QR-CODE":     QRCode,
		"QRCODE":      QRCode,
		"QR_CODE":     QRCode,
		"DATA_MATRIX": DataMatrix,
		"CODE-128":    Code128,
		"CODE-39":     Code39,
		"CODE-93":     Code93,
		"EAN-13":      EAN13,
		"EAN-8":       EAN8,
		"UPC-A":       UPCA,
		"UPC-E":       UPCE,
		"I2/5":        ITF,
		"ITF-14":      ITF,
		"INTERLEAVED": ITF,
	}
	if s, ok := synonyms[normalized]; ok {
		return s, true
	}

	for _, s := range allSymbologies {
		if normalized == string(s) {
			return s, true
		}
	}
	return Unknown, false
}
