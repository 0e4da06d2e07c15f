// Package candidate decides which recognized lines are worth keeping.
package candidate

import (
	"strings"

	"github.com/joseph-ayodele/fieldcapture/internal/normalize"
)

// MinKeyLength is the shortest normalized value treated as data.
const MinKeyLength = 3

// MaxValueLength caps a candidate's text; longer lines are OCR runs, not values.
const MaxValueLength = 256

// DefaultNoiseTokens are label fragments recognizers emit next to real values.
// They are compared on the strict (alphanumeric-only) key, so "No." and "NO:"
// both hit "NO".
var DefaultNoiseTokens = []string{"NO"}

// Filter rejects label text and noise. The zero value uses DefaultNoiseTokens.
type Filter struct {
	noise map[string]struct{}
}

// NewFilter builds a filter with extra noise tokens on top of the defaults.
func NewFilter(extraNoise ...string) *Filter {
	f := &Filter{noise: make(map[string]struct{}, len(DefaultNoiseTokens)+len(extraNoise))}
	for _, t := range append(append([]string{}, DefaultNoiseTokens...), extraNoise...) {
		if k := normalize.StrictKey(t); k != "" {
			f.noise[k] = struct{}{}
		}
	}
	return f
}

var defaultFilter = NewFilter()

// IsPlausible applies the default filter.
func IsPlausible(line string) bool {
	return defaultFilter.IsPlausible(line)
}

// IsPlausible reports whether line looks like a data value rather than a label.
// It is a heuristic: the user-edit path covers its misses.
func (f *Filter) IsPlausible(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	key := normalize.Key(trimmed)
	if n := len([]rune(key)); n < MinKeyLength || n > MaxValueLength {
		return false
	}
	noise := f.noise
	if noise == nil {
		noise = defaultFilter.noise
	}
	if _, ok := noise[normalize.StrictKey(key)]; ok {
		return false
	}
	if strings.Contains(key, "SERIAL") {
		return false
	}
	if strings.Contains(strings.ToLower(trimmed), "number") {
		return false
	}
	return true
}
