package scoring

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// homoglyphs maps characters commonly substituted into brand domains to
// the letter they imitate.
var homoglyphs = map[rune]rune{
	'0': 'o',
	'1': 'l',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'@': 'a',
	'$': 's',
}

// diacriticStripper decomposes accented characters and removes the
// combining marks, so "pаypal" with a Cyrillic-looking vowel folds down
// to its ASCII skeleton.
var diacriticStripper = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// foldDomain reduces a domain label to its visual skeleton: lowercase,
// diacritics stripped, digit/symbol look-alikes mapped to letters.
func foldDomain(label string) string {
	label = strings.ToLower(label)
	if stripped, _, err := transform.String(diacriticStripper, label); err == nil {
		label = stripped
	}
	var b strings.Builder
	b.Grow(len(label))
	for _, r := range label {
		if mapped, ok := homoglyphs[r]; ok {
			r = mapped
		}
		b.WriteRune(r)
	}
	return b.String()
}

// editDistance is the Levenshtein distance between two strings.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
