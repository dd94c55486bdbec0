package textnorm

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Number parses a tolerant number: "25.000", "25,000" and "25000" are all
// 25000, "25,5" is 25.5. A separator is treated as a thousands mark when it
// is followed by exactly three digits and then a non-digit or the end.
// Blank and non-finite input reports ok == false.
func Number(s string) (float64, bool) {
	s = stripSpace(s)
	if s == "" {
		return 0, false
	}
	s = dropThousands(s, '.')
	s = dropThousands(s, ',')
	s = strings.Replace(s, ",", ".", 1)
	return parseFinite(s)
}

// Amount is Number after discarding everything except digits, '.', ',' and
// '-'. It accepts money as typed by users ("$ 25.000").
func Amount(s string) (float64, bool) {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	return Number(b.String())
}

// IsNumber reports whether s is a finite Amount.
func IsNumber(s string) bool {
	_, ok := Amount(s)
	return ok
}

// IsInteger reports whether s is a finite Amount without a fractional part.
func IsInteger(s string) bool {
	n, ok := Amount(s)
	return ok && n == math.Trunc(n)
}

// Int returns the truncated Amount of s, or 0 when s is not numeric.
func Int(s string) int {
	n, ok := Amount(s)
	if !ok {
		return 0
	}
	if math.Abs(n) > 1<<53 {
		return 0
	}
	return int(n)
}

func dropThousands(s string, sep byte) string {
	if strings.IndexByte(s, sep) < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == sep && groupFollows(s, i+1) {
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// groupFollows reports whether s[at:] starts with exactly three digits.
func groupFollows(s string, at int) bool {
	if at+3 > len(s) {
		return false
	}
	for i := at; i < at+3; i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return at+3 == len(s) || !isDigit(s[at+3])
}

func parseFinite(s string) (float64, bool) {
	// ParseFloat accepts spellings a spreadsheet cell never means as a number.
	lower := strings.ToLower(s)
	if strings.Contains(lower, "inf") || strings.Contains(lower, "nan") ||
		strings.Contains(lower, "x") || strings.Contains(s, "_") {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
