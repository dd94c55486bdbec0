// Package query parses the search mini-language: free text mixed with
// field-scoped comparisons such as
//
//	tipo:pokemon hp>80 set="base set" #:"012/198" de:pichu charizard
//
// A predicate token is <field><op><value> where op is one of ':', '=', '>'
// and '<'. The field is a run of letters, '_' and '#', resolved through an
// alias table; the value is a quoted string (single or double quotes with
// backslash escapes) or a bare non-whitespace run. Tokens must start at the
// beginning of the input or after whitespace. Whatever is left once tokens
// are removed is the free text.
package query

import (
	"regexp"
	"strings"

	"cardcat/internal/schema"
)

// Operator is a predicate comparison.
type Operator string

const (
	// OpContains matches when the folded value is a substring of the folded cell.
	OpContains Operator = ":"
	// OpEquals matches folded equality.
	OpEquals Operator = "="
	// OpGreater compares tolerant numbers.
	OpGreater Operator = ">"
	// OpLess compares tolerant numbers.
	OpLess Operator = "<"
)

// Predicate is one field-scoped comparison.
type Predicate struct {
	Field schema.Key
	Op    Operator
	Value string
	// Name is the field token as typed ("hp" for Field nivel).
	Name string
}

// Query is a parsed search string.
type Query struct {
	Raw        string
	Predicates []Predicate
	FreeText   string
}

// Empty reports whether the raw input was blank.
func (q Query) Empty() bool { return strings.TrimSpace(q.Raw) == "" }

// Simple reports whether no predicate was recognized. Simple queries are
// matched with a single free-text pass.
func (q Query) Simple() bool { return len(q.Predicates) == 0 }

var tokenRe = regexp.MustCompile(`(^|\s)([\p{L}#_]+)\s*([:=<>])\s*("(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'|\S+)`)

// Parser parses queries against a field alias table.
type Parser struct {
	fields *schema.Resolver
}

// NewParser compiles the alias table used to recognize field tokens.
func NewParser(aliases schema.AliasTable) (*Parser, error) {
	r, err := schema.Compile(aliases)
	if err != nil {
		return nil, err
	}
	return &Parser{fields: r}, nil
}

var defaultParser = &Parser{fields: schema.MustCompile(schema.FieldAliases)}

// Parse parses s with the built-in field aliases.
func Parse(s string) Query {
	return defaultParser.Parse(s)
}

// Parse splits s into predicates and free text. Tokens with an unknown field
// or an empty value are dropped entirely. When no token is recognized the
// whole input is free text.
func (p *Parser) Parse(s string) Query {
	q := Query{Raw: s}
	if strings.TrimSpace(s) == "" {
		return q
	}

	matches := tokenRe.FindAllStringSubmatchIndex(s, -1)
	var rest strings.Builder
	last := 0
	for _, m := range matches {
		name := s[m[4]:m[5]]
		op := Operator(s[m[6]:m[7]])
		value := unquote(s[m[8]:m[9]])

		// m[2]:m[3] is the leading whitespace, which stays in the free text.
		rest.WriteString(s[last:m[3]])
		rest.WriteByte(' ')
		last = m[1]

		key, ok := p.fields.Lookup(name)
		if !ok || value == "" {
			continue
		}
		q.Predicates = append(q.Predicates, Predicate{Field: key, Op: op, Value: value, Name: name})
	}
	rest.WriteString(s[last:])

	if len(q.Predicates) == 0 {
		q.FreeText = freeText(s)
		return q
	}
	q.FreeText = freeText(rest.String())
	return q
}

// String renders the query back into the mini-language.
func (q Query) String() string {
	parts := make([]string, 0, len(q.Predicates)+1)
	for _, pr := range q.Predicates {
		name := pr.Name
		if name == "" {
			name = string(pr.Field)
		}
		parts = append(parts, name+string(pr.Op)+quoteIfNeeded(pr.Value))
	}
	if q.FreeText != "" {
		parts = append(parts, q.FreeText)
	}
	return strings.Join(parts, " ")
}

func unquote(v string) string {
	v = strings.TrimSpace(v)
	if len(v) == 0 {
		return v
	}
	c := v[0]
	if (c != '"' && c != '\'') || v[len(v)-1] != c {
		return v
	}
	if len(v) < 2 {
		return ""
	}
	return unescape(v[1 : len(v)-1])
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\'') {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// freeText collapses whitespace and unwraps quoted phrases that stand as
// their own words, so `"Charizard ex"` searches for Charizard ex.
func freeText(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	joined := strings.Join(fields, " ")
	if !strings.ContainsAny(joined, `"'`) {
		return joined
	}

	var b strings.Builder
	for i := 0; i < len(joined); {
		c := joined[i]
		atWord := i == 0 || joined[i-1] == ' '
		if atWord && (c == '"' || c == '\'') {
			if end := closingQuote(joined, i); end > i {
				b.WriteString(unescape(joined[i+1 : end]))
				i = end + 1
				continue
			}
		}
		b.WriteByte(c)
		i++
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// closingQuote returns the index of the quote closing the one at start when
// it is followed by a space or the end of s, or -1.
func closingQuote(s string, start int) int {
	q := s[start]
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case q:
			if i+1 == len(s) || s[i+1] == ' ' {
				return i
			}
			return -1
		}
	}
	return -1
}

func quoteIfNeeded(v string) string {
	if !strings.ContainsAny(v, " \t\"'") {
		return v
	}
	return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
}
