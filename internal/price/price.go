package price

import (
	"strconv"
	"strings"
)

const (
	// MinPlausible rejects grade numbers and other small integers that
	// happen to sit next to a price.
	MinPlausible = 100
	// MaxPlausible bounds the emphasis-element scan.
	MaxPlausible = 10_000_000
)

// Parse strips every non-digit and parses what remains. ok is false when
// no digit was found, so "0원" and "가격문의" stay distinguishable.
func Parse(text string) (int, bool) {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	v, err := strconv.Atoi(b.String())
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// Plausible reports whether v is inside the accepted price range.
func Plausible(v int) bool {
	return v >= MinPlausible && v <= MaxPlausible
}

// Format renders v with thousands separators followed by suffix, e.g. "29,530원".
func Format(v int, suffix string) string {
	digits := strconv.Itoa(v)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteString(suffix)
	return b.String()
}

// Filter bounds prices. A nil bound is inactive.
type Filter struct {
	Min *int
	Max *int
}

func (f Filter) Active() bool {
	return f.Min != nil || f.Max != nil
}

// Allows decides whether a record with the given price passes. An unknown
// price never passes an active filter.
func (f Filter) Allows(v int, known bool) bool {
	if !f.Active() {
		return true
	}
	if !known {
		return false
	}
	if f.Min != nil && v < *f.Min {
		return false
	}
	if f.Max != nil && v > *f.Max {
		return false
	}
	return true
}

// Bound converts a CLI style value where zero or less means unset.
func Bound(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

// OnlyDigits reports whether s is a non-empty run of ASCII digits.
func OnlyDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
