// Package validate is the validation engine: pure rule functions that check
// cross-entity consistency before persistence and return a structured
// field-error map instead of failing on the first violation. The only side
// effect is in-memory normalization of taxonomy tags, so the caller persists
// the cleaned values.
package validate

import (
	"strings"
	"time"
	"unicode"
)

// proofDateLeniency is how far in the future a proof date may lie. Prices
// get no leniency at all.
const proofDateLeniency = 24 * time.Hour

// booleanLike are strings that betray a client serialization bug rather
// than a real barcode.
var booleanLike = map[string]struct{}{
	"true":  {},
	"false": {},
	"none":  {},
	"null":  {},
}

func isBooleanLike(s string) bool {
	_, ok := booleanLike[strings.ToLower(s)]
	return ok
}

func isAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isCurrency(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// sameDay compares calendar dates, ignoring the time of day.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
