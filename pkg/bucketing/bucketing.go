package bucketing

import (
	"unicode"
	"unicode/utf16"
)

// Buckets is the number of percentile buckets identifiers are spread over.
const Buckets = 100

// Hash returns the 32-bit rolling hash of identifier.
// Each UTF-16 code unit c updates the state as h = h*31 + c with int32 wraparound.
func Hash(identifier string) int32 {
	var h int32
	for _, r := range identifier {
		if r1, r2 := utf16.EncodeRune(r); r1 != unicode.ReplacementChar {
			h = h*31 + int32(r1)
			h = h*31 + int32(r2)
			continue
		}
		h = h*31 + int32(r)
	}
	return h
}

// Bucket returns the percentile bucket of identifier in [0, Buckets).
func Bucket(identifier string) int {
	h := int64(Hash(identifier))
	if h < 0 {
		h = -h
	}
	return int(h % Buckets)
}

// InRollout reports whether identifier falls inside a percentage rollout.
// Percentages at or below 0 include nobody, at or above 100 include everybody.
func InRollout(identifier string, percentage int) bool {
	if percentage <= 0 {
		return false
	}
	if percentage >= Buckets {
		return true
	}
	return Bucket(identifier) < percentage
}
