// Package dataset holds the parsed spreadsheet snapshot.
package dataset

import (
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"cardcat/internal/schema"
)

// ErrEmpty is returned when a payload has no header row.
var ErrEmpty = errors.New("dataset: empty payload")

// Record is one spreadsheet row. Its arity follows the header but short rows
// are kept as they are.
type Record = []string

// ParseTSV splits text into rows: lines on '\n' (CR removed), cells on tab,
// every cell trimmed, blank lines dropped.
func ParseTSV(text string) [][]string {
	lines := strings.Split(strings.ReplaceAll(text, "\r", ""), "\n")
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells := strings.Split(line, "\t")
		for i, c := range cells {
			cells[i] = strings.TrimSpace(c)
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return nil
	}
	return rows
}

// Dataset is an immutable snapshot: header, records and the resolved
// column index.
type Dataset struct {
	Header   []string
	Records  []Record
	Index    schema.ColumnIndex
	LoadedAt time.Time
}

// New builds a dataset from parsed rows. The first row is the header.
func New(rows [][]string, r *schema.Resolver, at time.Time) (*Dataset, error) {
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	return &Dataset{
		Header:   rows[0],
		Records:  rows[1:],
		Index:    r.Resolve(rows[0]),
		LoadedAt: at,
	}, nil
}

// Parse is ParseTSV followed by New.
func Parse(text string, r *schema.Resolver, at time.Time) (*Dataset, error) {
	return New(ParseTSV(text), r, at)
}

// Len is the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// HasHeader reports whether a header is loaded.
func (d *Dataset) HasHeader() bool {
	return d != nil && len(d.Header) > 0
}

// Cell returns the value of key in record pos.
func (d *Dataset) Cell(pos int, key schema.Key) string {
	if d == nil || pos < 0 || pos >= len(d.Records) {
		return ""
	}
	return d.Index.Cell(d.Records[pos], key)
}

// ID returns the identity of record pos, or "" when no identity column
// resolved.
func (d *Dataset) ID(pos int) string {
	return strings.TrimSpace(d.Cell(pos, schema.KeyID))
}

// RowNumber is the spreadsheet row of record pos: the header is row 1.
func RowNumber(pos int) int { return pos + 2 }

// FindByID returns the position of the record whose identity equals id.
func (d *Dataset) FindByID(id string) (int, bool) {
	if d == nil || id == "" {
		return 0, false
	}
	col, ok := d.Index.Lookup(schema.KeyID)
	if !ok {
		return 0, false
	}
	for i, r := range d.Records {
		if col < len(r) && r[col] == id {
			return i, true
		}
	}
	return 0, false
}

// RowIndexByID resolves the spreadsheet row for id, as the write endpoint
// expects it. It is "" when the record is not found.
func (d *Dataset) RowIndexByID(id string) string {
	pos, ok := d.FindByID(id)
	if !ok {
		return ""
	}
	return strconv.Itoa(RowNumber(pos))
}

// HeaderName returns the literal header text of key, trimmed, or "".
func (d *Dataset) HeaderName(key schema.Key) string {
	if d == nil {
		return ""
	}
	i, ok := d.Index.Lookup(key)
	if !ok || i >= len(d.Header) {
		return ""
	}
	return strings.TrimSpace(d.Header[i])
}

// Holder owns the current dataset. Readers get a consistent snapshot; a
// load replaces the whole dataset at once.
type Holder struct {
	p atomic.Pointer[Dataset]
}

// Load returns the current dataset, or nil before the first load.
func (h *Holder) Load() *Dataset {
	return h.p.Load()
}

// Store replaces the current dataset.
func (h *Holder) Store(d *Dataset) {
	h.p.Store(d)
}
