// Package dupe detects duplicate cards on add and reconciles them.
//
// Two cards are the same when their fingerprints match: identity number,
// edition, language and name, each folded, joined with '|'. On a collision
// the caller awaits a Resolution from a Resolver before saving.
package dupe

import (
	"strings"

	"cardcat/internal/schema"
	"cardcat/internal/textnorm"
)

// Fields are the fingerprint columns, in order.
var Fields = []schema.Key{schema.KeyNum, schema.KeyEdicion, schema.KeyIdioma, schema.KeyNombre}

// Fingerprint is the folded equality key of a card.
type Fingerprint string

// Blank reports whether every fingerprint part is empty.
func (f Fingerprint) Blank() bool {
	return strings.Trim(string(f), "|") == ""
}

// FromValues builds a fingerprint from form values keyed by column.
func FromValues(values map[schema.Key]string) Fingerprint {
	parts := make([]string, len(Fields))
	for i, k := range Fields {
		parts[i] = textnorm.Fold(values[k])
	}
	return Fingerprint(strings.Join(parts, "|"))
}

// FromRecord builds a fingerprint from a dataset record. Columns missing from
// the index contribute an empty part.
func FromRecord(row []string, index schema.ColumnIndex) Fingerprint {
	parts := make([]string, len(Fields))
	for i, k := range Fields {
		parts[i] = textnorm.Fold(index.Cell(row, k))
	}
	return Fingerprint(strings.Join(parts, "|"))
}

// Collision describes the existing record a candidate collides with.
type Collision struct {
	// Position is the record's position in the dataset, header excluded.
	Position int
	Record   []string

	ID       string
	Name     string
	Num      string
	Set      string
	Language string
	Quantity string
}

// Describe renders the collision for a prompt.
func (c Collision) Describe() string {
	var b strings.Builder
	b.WriteString("Coincide con: ")
	if c.Name != "" {
		b.WriteString(c.Name)
	} else {
		b.WriteString("(sin nombre)")
	}
	if c.Num != "" {
		b.WriteString(" · #" + c.Num)
	}
	if c.Set != "" {
		b.WriteString(" · " + c.Set)
	}
	if c.Language != "" {
		b.WriteString(" · " + c.Language)
	}
	return b.String()
}

// Find returns the first record whose fingerprint equals candidate. A blank
// candidate never matches.
func Find[R ~[]string](records []R, index schema.ColumnIndex, candidate Fingerprint) (Collision, bool) {
	if candidate.Blank() {
		return Collision{}, false
	}
	for pos, r := range records {
		if FromRecord(r, index) != candidate {
			continue
		}
		row := []string(r)
		cell := func(k schema.Key) string { return strings.TrimSpace(index.Cell(row, k)) }
		return Collision{
			Position: pos,
			Record:   row,
			ID:       cell(schema.KeyID),
			Name:     cell(schema.KeyNombre),
			Num:      cell(schema.KeyNum),
			Set:      cell(schema.KeyEdicion),
			Language: cell(schema.KeyIdioma),
			Quantity: cell(schema.KeyCantidad),
		}, true
	}
	return Collision{}, false
}

// MergeQuantity adds two tolerant integer quantities, treating non-numeric
// input as zero, and clamps the total at zero.
func MergeQuantity(existing, incoming string) (total, a, b int) {
	a = textnorm.Int(existing)
	b = textnorm.Int(incoming)
	total = a + b
	if total < 0 {
		total = 0
	}
	return total, a, b
}
