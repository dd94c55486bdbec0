// Package schema maps arbitrary spreadsheet headers onto a stable set of
// canonical column keys.
//
// Alias tables are plain data. They are compiled once (aliases folded with
// textnorm) and then resolved against any header row:
//
//	r := schema.MustCompile(schema.HeaderAliases)
//	idx := r.Resolve([]string{"_id", "Número", "Set", "Nombre"})
//	col, ok := idx.Lookup(schema.KeyNombre) // 3, true
package schema

import (
	"fmt"
	"sort"
	"strings"

	"cardcat/internal/textnorm"
)

// ColumnIndex maps canonical keys to header positions. A key that is absent
// is a valid state: the column is simply not present in this spreadsheet.
type ColumnIndex struct {
	pos map[Key]int
}

// NewColumnIndex builds an index from an explicit mapping.
func NewColumnIndex(m map[Key]int) ColumnIndex {
	pos := make(map[Key]int, len(m))
	for k, v := range m {
		if v >= 0 {
			pos[k] = v
		}
	}
	return ColumnIndex{pos: pos}
}

// Lookup returns the header position for k.
func (c ColumnIndex) Lookup(k Key) (int, bool) {
	i, ok := c.pos[k]
	return i, ok
}

// Has reports whether k resolved.
func (c ColumnIndex) Has(k Key) bool {
	_, ok := c.pos[k]
	return ok
}

// Len is the number of resolved keys.
func (c ColumnIndex) Len() int { return len(c.pos) }

// Empty reports whether nothing resolved, which is also the state before any
// header has been loaded.
func (c ColumnIndex) Empty() bool { return len(c.pos) == 0 }

// Cell returns the value of k in row, or "" when k did not resolve or the row
// is shorter than the header.
func (c ColumnIndex) Cell(row []string, k Key) string {
	i, ok := c.pos[k]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// Keys returns the resolved keys sorted by header position, then by name.
func (c ColumnIndex) Keys() []Key {
	keys := make([]Key, 0, len(c.pos))
	for k := range c.pos {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := c.pos[keys[i]], c.pos[keys[j]]
		if pi != pj {
			return pi < pj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Map returns a copy of the mapping.
func (c ColumnIndex) Map() map[Key]int {
	out := make(map[Key]int, len(c.pos))
	for k, v := range c.pos {
		out[k] = v
	}
	return out
}

// Equal reports whether both indexes hold the same mapping.
func (c ColumnIndex) Equal(o ColumnIndex) bool {
	if len(c.pos) != len(o.pos) {
		return false
	}
	for k, v := range c.pos {
		if w, ok := o.pos[k]; !ok || w != v {
			return false
		}
	}
	return true
}

type compiledColumn struct {
	key     Key
	aliases []string
	set     map[string]struct{}
}

// Resolver is a compiled alias table.
type Resolver struct {
	columns      []compiledColumn
	byAlias      map[string]Key
	wordBoundary bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithWordBoundary restricts the substring pass to aliases that appear as
// whole words in the header cell. "Prototipo" is claimed by tipo without it
// and left unresolved with it; "Notas del tipo" is claimed either way.
func WithWordBoundary() Option {
	return func(r *Resolver) { r.wordBoundary = true }
}

// Compile folds every alias of t. Keys must be unique.
func Compile(t AliasTable, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		columns: make([]compiledColumn, 0, len(t)),
		byAlias: make(map[string]Key),
	}
	seen := make(map[Key]bool, len(t))
	for _, col := range t {
		if col.Key == "" {
			return nil, fmt.Errorf("alias table: empty key")
		}
		if seen[col.Key] {
			return nil, fmt.Errorf("alias table: duplicate key %q", col.Key)
		}
		seen[col.Key] = true

		cc := compiledColumn{key: col.Key, set: make(map[string]struct{}, len(col.Aliases))}
		for _, a := range col.Aliases {
			f := textnorm.Fold(a)
			if f == "" {
				continue
			}
			if _, dup := cc.set[f]; dup {
				continue
			}
			cc.set[f] = struct{}{}
			cc.aliases = append(cc.aliases, f)
			if _, taken := r.byAlias[f]; !taken {
				r.byAlias[f] = col.Key
			}
		}
		r.columns = append(r.columns, cc)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// MustCompile is Compile for package-level tables.
func MustCompile(t AliasTable, opts ...Option) *Resolver {
	r, err := Compile(t, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve builds the column index for a header row. For each key, in table
// order, an exact alias match anywhere in the header wins over a substring
// match; within a pass the first position wins. Blank header cells never
// match. When no "_id" column resolves and the first cell is not blank, the
// first column is taken as the identity column.
func (r *Resolver) Resolve(header []string) ColumnIndex {
	folded := make([]string, len(header))
	for i, h := range header {
		folded[i] = textnorm.Fold(h)
	}

	pos := make(map[Key]int, len(r.columns))
	for _, col := range r.columns {
		if i := r.exact(folded, col); i >= 0 {
			pos[col.key] = i
			continue
		}
		if i := r.partial(folded, col); i >= 0 {
			pos[col.key] = i
		}
	}

	if _, ok := pos[KeyID]; !ok && r.hasKey(KeyID) && len(header) > 0 && strings.TrimSpace(header[0]) != "" {
		pos[KeyID] = 0
	}
	return ColumnIndex{pos: pos}
}

// Lookup maps a single token to its key by exact folded alias.
func (r *Resolver) Lookup(token string) (Key, bool) {
	k, ok := r.byAlias[textnorm.Fold(token)]
	return k, ok
}

func (r *Resolver) hasKey(k Key) bool {
	for _, col := range r.columns {
		if col.key == k {
			return true
		}
	}
	return false
}

func (r *Resolver) exact(folded []string, col compiledColumn) int {
	for i, h := range folded {
		if h == "" {
			continue
		}
		if _, ok := col.set[h]; ok {
			return i
		}
	}
	return -1
}

func (r *Resolver) partial(folded []string, col compiledColumn) int {
	for i, h := range folded {
		if h == "" {
			continue
		}
		for _, a := range col.aliases {
			if r.contains(h, a) {
				return i
			}
		}
	}
	return -1
}

func (r *Resolver) contains(h, alias string) bool {
	if !r.wordBoundary {
		return strings.Contains(h, alias)
	}
	for from := 0; from <= len(h)-len(alias); {
		j := strings.Index(h[from:], alias)
		if j < 0 {
			return false
		}
		start := from + j
		end := start + len(alias)
		if boundary(h, start-1) && boundary(h, end) {
			return true
		}
		from = start + 1
	}
	return false
}

// boundary reports whether position i of h is outside a word.
func boundary(h string, i int) bool {
	if i < 0 || i >= len(h) {
		return true
	}
	c := h[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c >= 0x80)
}
