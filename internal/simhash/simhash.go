// Package simhash computes a 64-bit locality-sensitive fingerprint over
// normalized job posting text, so the crawler can cheaply decide whether a
// posting changed enough to warrant re-extraction.
package simhash

import (
	"math/bits"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DefaultThreshold is the Hamming distance at or below which two
// fingerprints are considered "unchanged". Operators can override it via
// Config.SimHash.HammingThreshold.
const DefaultThreshold = 3

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// Tokenize lowercases s and splits it into alphanumeric tokens. Punctuation
// and whitespace are discarded as separators, not tokens.
func Tokenize(s string) []string {
	return tokenPattern.FindAllString(strings.ToLower(s), -1)
}

// Fingerprint computes the 64-bit simhash of s. Tokens contribute ±1 to a
// per-bit accumulator based on a stable per-token hash; the sign of each
// accumulator slot becomes the corresponding output bit.
func Fingerprint(s string) int64 {
	tokens := Tokenize(s)
	if len(tokens) == 0 {
		return 0
	}

	var acc [64]int
	for _, tok := range tokens {
		h := xxhash.Sum64String(tok)
		for bit := 0; bit < 64; bit++ {
			if h&(1<<uint(bit)) != 0 {
				acc[bit]++
			} else {
				acc[bit]--
			}
		}
	}

	var fp uint64
	for bit := 0; bit < 64; bit++ {
		if acc[bit] > 0 {
			fp |= 1 << uint(bit)
		}
	}
	return int64(fp)
}

// HammingDistance returns the number of differing bits between two
// fingerprints.
func HammingDistance(a, b int64) int {
	return bits.OnesCount64(uint64(a) ^ uint64(b))
}

// Unchanged reports whether two fingerprints are within threshold bits of
// each other, i.e. the content they were derived from is considered
// unchanged for the purpose of skipping re-extraction.
func Unchanged(a, b int64, threshold int) bool {
	return HammingDistance(a, b) <= threshold
}
