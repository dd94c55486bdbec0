// Package filter evaluates parsed queries against dataset records.
package filter

import (
	"strings"

	"cardcat/internal/query"
	"cardcat/internal/schema"
	"cardcat/internal/textnorm"
)

type compiledPredicate struct {
	col    int
	ok     bool
	op     query.Operator
	folded string
	num    float64
	numOK  bool
}

// Matcher is a query compiled against a column index. It folds the query once
// so that per-keystroke filtering only folds cell values.
type Matcher struct {
	free  string
	cols  []int
	preds []compiledPredicate
	all   bool
}

// Compile prepares q for evaluation. keys are the columns eligible for
// free-text matching; empty means schema.SearchKeys.
func Compile(q query.Query, index schema.ColumnIndex, keys []schema.Key) *Matcher {
	m := &Matcher{all: q.Empty()}
	if m.all {
		return m
	}
	if len(keys) == 0 {
		keys = schema.SearchKeys
	}
	m.free = textnorm.Fold(q.FreeText)
	if m.free != "" {
		for _, k := range keys {
			if i, ok := index.Lookup(k); ok {
				m.cols = append(m.cols, i)
			}
		}
	}
	for _, p := range q.Predicates {
		cp := compiledPredicate{op: p.Op, folded: textnorm.Fold(p.Value)}
		cp.col, cp.ok = index.Lookup(p.Field)
		if p.Op == query.OpGreater || p.Op == query.OpLess {
			cp.num, cp.numOK = textnorm.Number(p.Value)
		}
		m.preds = append(m.preds, cp)
	}
	return m
}

// Match reports whether row satisfies the free text and every predicate.
func (m *Matcher) Match(row []string) bool {
	if m.all {
		return true
	}
	if m.free != "" && !m.matchFree(row) {
		return false
	}
	for i := range m.preds {
		if !m.preds[i].match(row) {
			return false
		}
	}
	return true
}

func (m *Matcher) matchFree(row []string) bool {
	for _, i := range m.cols {
		if i < len(row) && strings.Contains(textnorm.Fold(row[i]), m.free) {
			return true
		}
	}
	return false
}

func (p *compiledPredicate) match(row []string) bool {
	if !p.ok {
		return false
	}
	cell := ""
	if p.col < len(row) {
		cell = row[p.col]
	}
	switch p.op {
	case query.OpEquals:
		return textnorm.Fold(cell) == p.folded
	case query.OpGreater, query.OpLess:
		if !p.numOK {
			return false
		}
		n, ok := textnorm.Number(cell)
		if !ok {
			return false
		}
		if p.op == query.OpGreater {
			return n > p.num
		}
		return n < p.num
	default:
		return strings.Contains(textnorm.Fold(cell), p.folded)
	}
}

// Rows returns the records matching q, in their original order. The result
// is always a new slice; the records themselves are shared.
func Rows[R ~[]string](records []R, q query.Query, index schema.ColumnIndex, keys []schema.Key) []R {
	m := Compile(q, index, keys)
	out := make([]R, 0, len(records))
	for _, r := range records {
		if m.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Search parses raw and filters records with the default search keys.
func Search[R ~[]string](records []R, raw string, index schema.ColumnIndex) []R {
	return Rows(records, query.Parse(raw), index, nil)
}
