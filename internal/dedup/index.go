// Package dedup decides whether a new recognized item duplicates one already
// detected or accepted, matching on every identifying field an item carries.
package dedup

import (
	"github.com/joseph-ayodele/fieldcapture/internal/entity"
	"github.com/joseph-ayodele/fieldcapture/internal/normalize"
)

// KeySet is a set of normalized identifying keys.
type KeySet map[string]struct{}

// NewKeySet builds a set, skipping empty keys.
func NewKeySet(keys ...string) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// Add inserts k unless it is empty.
func (s KeySet) Add(k string) {
	if k != "" {
		s[k] = struct{}{}
	}
}

// Intersects reports whether the two sets share at least one key.
func (s KeySet) Intersects(o KeySet) bool {
	small, large := s, o
	if len(large) < len(small) {
		small, large = large, small
	}
	for k := range small {
		if _, ok := large[k]; ok {
			return true
		}
	}
	return false
}

// IsDuplicate reports whether keys intersects the key set of any item. The
// new item is checked before it joins items, so it is never compared against
// itself.
func IsDuplicate[T any](keys KeySet, items []T, extract func(T) KeySet) bool {
	if len(keys) == 0 {
		return false
	}
	for _, it := range items {
		if keys.Intersects(extract(it)) {
			return true
		}
	}
	return false
}

// duplicates applies IsDuplicate to it, picking the comparison mode per pair:
// strict when either side is a barcode. it offers both its loose and strict
// keys; the prefixes keep a plain-text pair on loose keys only.
func duplicates[T any](it Item, items []T, view func(T) Item) bool {
	return IsDuplicate(it.Keys(true), items, func(o T) KeySet {
		other := view(o)
		return other.Keys(it.Barcode || other.Barcode)
	})
}

func itemView(it Item) Item { return it }

// Item is the identifying view of a candidate or accepted value.
type Item struct {
	Text      string
	Secondary string
	Barcode   bool
}

// FromCandidate returns the identifying view of c.
func FromCandidate(c entity.Candidate) Item {
	return Item{Text: c.RawText, Secondary: c.SecondaryText, Barcode: c.IsBarcode()}
}

// FromAccepted returns the identifying view of v.
func FromAccepted(v entity.AcceptedValue) Item {
	return Item{Text: v.Text, Secondary: v.SecondaryText, Barcode: v.IsBarcode()}
}

// Keys returns the item's identifying keys. Strict mode is used whenever a
// barcode is on either side of a comparison: keys are prefixed by mode so a
// loose key never matches a strict one.
func (it Item) Keys(strict bool) KeySet {
	s := make(KeySet, 4)
	s.Add(looseKey(it.Text))
	if it.Barcode {
		s.Add(looseKey(it.Secondary))
	}
	if strict {
		s.Add(strictKey(it.Text))
		s.Add(strictKey(it.Secondary))
	}
	return s
}

func looseKey(s string) string {
	if k := normalize.Key(s); k != "" {
		return "t:" + k
	}
	return ""
}

func strictKey(s string) string {
	if k := normalize.StrictKey(s); k != "" {
		return "b:" + k
	}
	return ""
}

// Matches reports whether a and b identify the same physical value.
func Matches(a, b Item) bool {
	return duplicates(a, []Item{b}, itemView)
}

// Index holds the already-detected and already-accepted items of a session.
type Index struct {
	items []Item
}

// NewIndex builds an index over detected candidates and accepted values.
func NewIndex(detected []entity.Candidate, accepted []entity.AcceptedValue) *Index {
	idx := &Index{items: make([]Item, 0, len(detected)+len(accepted))}
	for _, c := range detected {
		idx.items = append(idx.items, FromCandidate(c))
	}
	for _, v := range accepted {
		idx.items = append(idx.items, FromAccepted(v))
	}
	return idx
}

// Add records an item so later lookups see it.
func (idx *Index) Add(it Item) { idx.items = append(idx.items, it) }

// Len returns the number of indexed items.
func (idx *Index) Len() int { return len(idx.items) }

// Contains reports whether it duplicates any indexed item.
func (idx *Index) Contains(it Item) bool {
	return duplicates(it, idx.items, itemView)
}

// IsAccepted reports whether c matches any accepted value.
func IsAccepted(c entity.Candidate, accepted []entity.AcceptedValue) bool {
	return duplicates(FromCandidate(c), accepted, FromAccepted)
}

// UniqueAccepted drops later values that match an earlier one (first wins).
func UniqueAccepted(values []entity.AcceptedValue) []entity.AcceptedValue {
	out := make([]entity.AcceptedValue, 0, len(values))
	for _, v := range values {
		if !duplicates(FromAccepted(v), out, FromAccepted) {
			out = append(out, v)
		}
	}
	return out
}
