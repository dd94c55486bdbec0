// Package textnorm folds text for case, accent and whitespace insensitive comparison.
// Every comparison in cardcat (header aliases, query tokens, cell values,
// fingerprint parts) goes through Fold on both sides.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes and drops combining marks. It is not recomposed:
// folded strings are only ever compared with other folded strings.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

// Fold trims, lowercases, strips diacritics and collapses whitespace runs.
//
//	Fold("  Edición  Base ") == "edicion base"
func Fold(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	if !isASCII(s) {
		if out, _, err := transform.String(stripMarks, s); err == nil {
			s = out
		}
	}
	return collapse(s)
}

// Clean collapses whitespace for display. Case and accents are preserved.
func Clean(s string) string {
	return collapse(strings.TrimSpace(s))
}

// Equal reports whether a and b fold to the same string.
func Equal(a, b string) bool {
	return Fold(a) == Fold(b)
}

// Contains reports whether the folded needle occurs in the folded haystack.
func Contains(haystack, needle string) bool {
	return strings.Contains(Fold(haystack), Fold(needle))
}

func collapse(s string) string {
	if !needsCollapse(s) {
		return s
	}
	return strings.Join(strings.Fields(s), " ")
}

func needsCollapse(s string) bool {
	prevSpace := true
	for _, r := range s {
		if unicode.IsSpace(r) {
			if prevSpace || r != ' ' {
				return true
			}
			prevSpace = true
			continue
		}
		prevSpace = false
	}
	return prevSpace && s != ""
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
