// Package lists keeps the suggestion lists offered while editing a card.
//
// There are six lists, each fed by one column. Lists only ever grow: values
// seen in a loaded dataset or typed into a saved form are added, nothing is
// removed. Comparison is case and accent insensitive, so "Fuego" and "fuego"
// are one entry (the first spelling seen wins).
package lists

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"cardcat/internal/logging"
	"cardcat/internal/schema"
	"cardcat/internal/store"
	"cardcat/internal/textnorm"
)

// Name identifies a suggestion list.
type Name string

const (
	Tipo     Name = "tipo"
	Subtipo  Name = "subtipo"
	Set      Name = "set"
	Anio     Name = "anio"
	Elemento Name = "elemento"
	Idioma   Name = "idioma"
)

// Spec describes where a list gets its values and how it is ordered.
type Spec struct {
	Name Name
	// Column feeds the list from dataset records.
	Column schema.Key
	// Field feeds the list from a saved form.
	Field string
	// Numeric lists sort numerically when both values are numbers.
	Numeric bool
	// Upper lists store values uppercased.
	Upper bool
	// Defaults are always present.
	Defaults []string
}

// DefaultLanguages seed the language list.
var DefaultLanguages = []string{"ES", "EN", "JP", "FR", "DE", "IT", "PT", "KO", "ZH"}

// Specs lists every suggestion list.
var Specs = []Spec{
	{Name: Tipo, Column: schema.KeyTipo, Field: "categoria"},
	{Name: Subtipo, Column: schema.KeySubtipo, Field: "subtipo"},
	{Name: Set, Column: schema.KeyEdicion, Field: "edicion"},
	{Name: Anio, Column: schema.KeyAnio, Field: "anio", Numeric: true},
	{Name: Elemento, Column: schema.KeyAtributo, Field: "atributo"},
	{Name: Idioma, Column: schema.KeyIdioma, Field: "idioma", Upper: true, Defaults: DefaultLanguages},
}

// StorageKey is the KV key a list is persisted under.
func StorageKey(n Name) string {
	return "pkm_list_" + string(n) + "_v1"
}

// Lookup returns the spec for n.
func Lookup(n Name) (Spec, bool) {
	for _, s := range Specs {
		if s.Name == n {
			return s, true
		}
	}
	return Spec{}, false
}

// Synchronizer reads and grows the lists in a KV store. Writes are
// serialized so that concurrent Remember calls never lose a value.
type Synchronizer struct {
	kv store.KV
	mu sync.Mutex
}

// New returns a Synchronizer over kv.
func New(kv store.KV) *Synchronizer {
	return &Synchronizer{kv: kv}
}

// Get returns the stored list. Corrupt or missing entries read as empty.
func (s *Synchronizer) Get(ctx context.Context, n Name) ([]string, error) {
	raw, ok, err := s.kv.Get(ctx, StorageKey(n))
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{}, nil
	}
	return decode(raw), nil
}

// All returns every list keyed by name.
func (s *Synchronizer) All(ctx context.Context) (map[Name][]string, error) {
	out := make(map[Name][]string, len(Specs))
	for _, spec := range Specs {
		vals, err := s.Get(ctx, spec.Name)
		if err != nil {
			return nil, err
		}
		out[spec.Name] = vals
	}
	return out, nil
}

// SyncDataset unions every list with the values present in records and
// persists the result.
func (s *Synchronizer) SyncDataset(ctx context.Context, records [][]string, index schema.ColumnIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	writes := make(map[string]string, len(Specs))
	for _, spec := range Specs {
		current, err := s.Get(ctx, spec.Name)
		if err != nil {
			return fmt.Errorf("read list %s: %w", spec.Name, err)
		}
		set := newValueSet(spec, current)
		for _, d := range spec.Defaults {
			set.add(d)
		}
		if col, ok := index.Lookup(spec.Column); ok {
			for _, r := range records {
				if col < len(r) {
					set.add(r[col])
				}
			}
		}
		writes[StorageKey(spec.Name)] = encode(sortValues(spec, set.values))
	}
	if err := s.kv.PutMany(ctx, writes); err != nil {
		return fmt.Errorf("write lists: %w", err)
	}
	logging.ListsDebug("lists synced from %d records", len(records))
	return nil
}

// Remember adds value to list n unless a folded-equal value is present.
// It reports whether the list grew.
func (s *Synchronizer) Remember(ctx context.Context, n Name, value string) (bool, error) {
	spec, ok := Lookup(n)
	if !ok {
		return false, fmt.Errorf("unknown list %q", n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Get(ctx, n)
	if err != nil {
		return false, err
	}
	set := newValueSet(spec, current)
	if !set.add(value) {
		return false, nil
	}
	if err := s.kv.Put(ctx, StorageKey(n), encode(sortValues(spec, set.values))); err != nil {
		return false, fmt.Errorf("write list %s: %w", n, err)
	}
	logging.Audit().ListGrow(string(n), set.values[len(set.values)-1])
	return true, nil
}

// RememberForm remembers the list-backed fields of a saved form.
func (s *Synchronizer) RememberForm(ctx context.Context, form map[string]string) error {
	for _, spec := range Specs {
		if _, err := s.Remember(ctx, spec.Name, form[spec.Field]); err != nil {
			return err
		}
	}
	return nil
}

// SeedDefaults makes sure every list's defaults are stored, normalizing the
// existing entries of uppercased lists.
func (s *Synchronizer) SeedDefaults(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, spec := range Specs {
		if len(spec.Defaults) == 0 {
			continue
		}
		current, err := s.Get(ctx, spec.Name)
		if err != nil {
			return err
		}
		set := newValueSet(spec, current)
		for _, d := range spec.Defaults {
			set.add(d)
		}
		if err := s.kv.Put(ctx, StorageKey(spec.Name), encode(sortValues(spec, set.values))); err != nil {
			return fmt.Errorf("write list %s: %w", spec.Name, err)
		}
	}
	return nil
}

type valueSet struct {
	spec   Spec
	seen   map[string]struct{}
	values []string
}

func newValueSet(spec Spec, initial []string) *valueSet {
	vs := &valueSet{spec: spec, seen: make(map[string]struct{}, len(initial))}
	for _, v := range initial {
		vs.add(v)
	}
	return vs
}

// add cleans v and appends it unless blank or already present.
func (vs *valueSet) add(v string) bool {
	v = textnorm.Clean(v)
	if v == "" {
		return false
	}
	if vs.spec.Upper {
		v = strings.ToUpper(v)
	}
	k := textnorm.Fold(v)
	if _, ok := vs.seen[k]; ok {
		return false
	}
	vs.seen[k] = struct{}{}
	vs.values = append(vs.values, v)
	return true
}

func sortValues(spec Spec, values []string) []string {
	out := append([]string(nil), values...)
	col := collate.New(language.Spanish, collate.Loose)
	sort.SliceStable(out, func(i, j int) bool {
		if spec.Numeric {
			a, errA := strconv.ParseFloat(strings.TrimSpace(out[i]), 64)
			b, errB := strconv.ParseFloat(strings.TrimSpace(out[j]), 64)
			if errA == nil && errB == nil {
				return a < b
			}
		}
		return col.CompareString(out[i], out[j]) < 0
	})
	return out
}

func decode(raw string) []string {
	var arr []interface{}
	if err := json.Unmarshal([]byte(raw), &arr); err != nil {
		logging.ListsDebug("corrupt list entry ignored: %v", err)
		return []string{}
	}
	out := make([]string, 0, len(arr))
	for _, x := range arr {
		var v string
		switch t := x.(type) {
		case string:
			v = t
		case float64:
			v = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			continue
		}
		if v = textnorm.Clean(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func encode(values []string) string {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return string(b)
}
