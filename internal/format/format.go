// Package format renders cell values for display: integers for HP and
// quantity, Colombian pesos for prices, day-first dates and Spanish
// relative times.
package format

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"cardcat/internal/schema"
	"cardcat/internal/textnorm"
)

var (
	locale  = language.MustParse("es-CO")
	printer = message.NewPrinter(locale)
	isoDate = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	peso    = currency.MustParseISO("COP")
)

// centScale is the minimum number of decimals shown for a fractional price.
const centScale = 2

// Options tune Cell.
type Options struct {
	// RawPrice disables currency formatting.
	RawPrice bool
	// RawDate disables date reformatting.
	RawDate bool
}

// Cell formats raw for column key. Values that do not parse are shown with
// whitespace collapsed, never dropped.
func Cell(key schema.Key, raw string, opts Options) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	switch key {
	case schema.KeyNivel, schema.KeyCantidad:
		if n, ok := LeadingInt(raw); ok {
			return strconv.Itoa(n)
		}
	case schema.KeyPrecio:
		if opts.RawPrice {
			break
		}
		if n, ok := textnorm.Number(raw); ok {
			return Price(n)
		}
	case schema.KeyFechaCompra:
		if opts.RawDate {
			break
		}
		if d, ok := Date(raw); ok {
			return d
		}
	}
	return textnorm.Clean(raw)
}

// Row formats the compact table columns of row.
func Row(row []string, index schema.ColumnIndex, opts Options) []string {
	out := make([]string, len(schema.TableColumns))
	for i, c := range schema.TableColumns {
		out[i] = Cell(c.Key, index.Cell(row, c.Key), opts)
	}
	return out
}

// LeadingInt parses the leading integer of s, ignoring what follows it:
// "60 HP" is 60.
func LeadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Price formats n as pesos: no decimals when integral, otherwise at least
// cents, since the peso's standard rounding has no fraction digits.
func Price(n float64) string {
	scale := 0
	if math.Abs(n-math.Round(n)) >= 1e-9 {
		scale, _ = currency.Standard.Rounding(peso)
		if scale < centScale {
			scale = centScale
		}
	}
	s := printer.Sprint(number.Decimal(math.Abs(n),
		number.MinFractionDigits(scale),
		number.MaxFractionDigits(scale),
	))
	if n < 0 && s != "0" {
		return "-$ " + s
	}
	return "$ " + s
}

// Date turns an ISO YYYY-MM-DD date into DD/MM/YYYY.
func Date(s string) (string, bool) {
	m := isoDate.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}
	return m[3] + "/" + m[2] + "/" + m[1], true
}

// TimeAgo renders the distance from ts to now in Spanish.
func TimeAgo(ts, now time.Time) string {
	if ts.IsZero() {
		return "hace un rato"
	}
	diff := now.Sub(ts)
	if diff < 0 {
		diff = 0
	}
	sec := int(diff / time.Second)
	if sec < 15 {
		return "hace segundos"
	}
	m := sec / 60
	if m < 60 {
		return "hace " + strconv.Itoa(m) + " min"
	}
	h := m / 60
	if h < 24 {
		return "hace " + strconv.Itoa(h) + " h"
	}
	d := h / 24
	if d < 30 {
		return "hace " + strconv.Itoa(d) + " d"
	}
	mo := d / 30
	if mo < 12 {
		return "hace " + strconv.Itoa(mo) + " mes" + plural(mo, "es")
	}
	y := mo / 12
	return "hace " + strconv.Itoa(y) + " año" + plural(y, "s")
}

// CountLabel is the result counter: "1 resultado", "3 resultados".
func CountLabel(n int) string {
	return strconv.Itoa(n) + " resultado" + plural(n, "s")
}

// CacheLabel is the status shown when the dataset came from the cache.
func CacheLabel(savedAt, now time.Time) string {
	if savedAt.IsZero() {
		return "Offline (cache)"
	}
	return "Offline (cache " + TimeAgo(savedAt, now) + ")"
}

const (
	maskDigits = 6
	maskSplit  = 3
)

// IdentityMask reformats an all-digit collector number as NNN/NNN, keeping
// at most six digits. Anything else is returned trimmed.
func IdentityMask(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return s
		}
	}
	if len(s) > maskDigits {
		s = s[:maskDigits]
	}
	if len(s) <= maskSplit {
		return s
	}
	return s[:maskSplit] + "/" + s[maskSplit:]
}

func plural(n int, suffix string) string {
	if n == 1 {
		return ""
	}
	return suffix
}
