package pipeline

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var punctuation = map[rune]rune{
	'\u2018': '\'', '\u2019': '\'', '\u201a': '\'', '\u2032': '\'',
	'\u201c': '"', '\u201d': '"', '\u201e': '"', '\u2033': '"',
	'\u2010': '-', '\u2011': '-', '\u2012': '-', '\u2013': '-', '\u2014': '-', '\u2212': '-',
	'\u00a0': ' ', '\u202f': ' ', '\u2026': '.',
}

// ToASCII transliterates s to ASCII on a best-effort basis: accents are
// stripped, common typographic punctuation is mapped, and anything else
// outside ASCII is dropped.
func ToASCII(s string) string {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			ascii = false
			break
		}
	}
	if ascii {
		return s
	}

	t := transform.Chain(
		runes.Map(func(r rune) rune {
			if m, ok := punctuation[r]; ok {
				return m
			}
			return r
		}),
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return ""
	}
	return out
}

func sanitizeValue(v any) any {
	if s, ok := v.(string); ok {
		return ToASCII(s)
	}
	return v
}
