package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sheetHeader = []string{
	"_id", "#", "Set", "Año", "Nombre", "Tipo", "Elemento", "HP", "Subtipo",
	"EvolucionaDe", "EvolucionaA", "Cantidad", "Idioma", "Precio", "Fecha", "Notas", "ImagenURL",
}

func TestResolve_SheetHeader(t *testing.T) {
	r := MustCompile(HeaderAliases)
	idx := r.Resolve(sheetHeader)

	want := map[Key]int{
		KeyID: 0, KeyNum: 1, KeyEdicion: 2, KeyAnio: 3, KeyNombre: 4, KeyTipo: 5,
		KeyAtributo: 6, KeyNivel: 7, KeySubtipo: 8, KeyEvolucionaDe: 9,
		KeyCantidad: 11, KeyIdioma: 12, KeyPrecio: 13, KeyFechaCompra: 14,
		KeyNotas: 15, KeyImagenURL: 16,
	}
	got := idx.Map()
	delete(got, KeyEvolucionaA)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	r := MustCompile(HeaderAliases)
	headers := [][]string{
		sheetHeader,
		{"ID", "Card Name", "Type", "Qty"},
		{"", "Nombre", "", "Tipo de energía"},
		{},
	}
	for _, h := range headers {
		a := r.Resolve(h)
		b := r.Resolve(h)
		assert.True(t, a.Equal(b), "header %q", h)
		assert.Equal(t, a.Map(), b.Map())
	}
}

func TestResolve_ExactBeatsSubstring(t *testing.T) {
	r := MustCompile(HeaderAliases)

	// "Tipo de carta" contains the alias "tipo" but "Tipo" matches exactly.
	idx := r.Resolve([]string{"Nombre", "Tipo de carta", "Tipo"})
	pos, ok := idx.Lookup(KeyTipo)
	require.True(t, ok)
	assert.Equal(t, 2, pos)

	// With no exact match the first substring hit is used.
	idx = r.Resolve([]string{"Nombre", "Tipo de carta"})
	pos, ok = idx.Lookup(KeyTipo)
	require.True(t, ok)
	assert.Equal(t, 1, pos)
}

func TestResolve_AccentAndCaseInsensitive(t *testing.T) {
	r := MustCompile(HeaderAliases)
	idx := r.Resolve([]string{"UID", "  EDICIÓN ", "número"})

	assert.Equal(t, 0, mustLookup(t, idx, KeyID))
	assert.Equal(t, 1, mustLookup(t, idx, KeyEdicion))
	assert.Equal(t, 2, mustLookup(t, idx, KeyNum))
}

func TestResolve_IDFallback(t *testing.T) {
	r := MustCompile(HeaderAliases)

	idx := r.Resolve([]string{"Clave", "Nombre"})
	assert.Equal(t, 0, mustLookup(t, idx, KeyID))

	idx = r.Resolve([]string{"  ", "Nombre"})
	assert.False(t, idx.Has(KeyID))
}

func TestResolve_BlankCellsNeverMatch(t *testing.T) {
	r := MustCompile(AliasTable{{Key: "x", Aliases: []string{"x"}}})
	idx := r.Resolve([]string{"", "  ", "x"})
	assert.Equal(t, 2, mustLookup(t, idx, "x"))
}

func TestResolve_EmptyHeader(t *testing.T) {
	r := MustCompile(HeaderAliases)
	idx := r.Resolve(nil)
	assert.True(t, idx.Empty())
	assert.Equal(t, 0, idx.Len())
}

func TestResolve_MissingKeyAbsent(t *testing.T) {
	r := MustCompile(HeaderAliases)
	idx := r.Resolve([]string{"_id", "Nombre"})
	assert.False(t, idx.Has(KeyPrecio))
	assert.Equal(t, "", idx.Cell([]string{"a", "b"}, KeyPrecio))
	assert.Equal(t, "b", idx.Cell([]string{"a", "b"}, KeyNombre))
	assert.Equal(t, "", idx.Cell([]string{"a"}, KeyNombre))
}

func TestResolve_WordBoundary(t *testing.T) {
	loose := MustCompile(HeaderAliases)
	strict := MustCompile(HeaderAliases, WithWordBoundary())
	header := []string{"Nombre", "Prototipo"}

	assert.True(t, loose.Resolve(header).Has(KeyTipo))
	assert.False(t, strict.Resolve(header).Has(KeyTipo))

	idx := strict.Resolve([]string{"Nombre", "Notas del tipo"})
	assert.Equal(t, 1, mustLookup(t, idx, KeyTipo))
}

func TestCompile_DuplicateKey(t *testing.T) {
	_, err := Compile(AliasTable{
		{Key: "a", Aliases: []string{"a"}},
		{Key: "a", Aliases: []string{"b"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate key")
}

func TestResolver_Lookup(t *testing.T) {
	r := MustCompile(FieldAliases)
	for token, want := range map[string]Key{
		"hp": KeyNivel, "HP": KeyNivel, "#": KeyNum, "año": KeyAnio,
		"Categoría": KeyTipo, "de": KeyEvolucionaDe, "a": KeyEvolucionaA,
	} {
		got, ok := r.Lookup(token)
		assert.True(t, ok, token)
		assert.Equal(t, want, got, token)
	}
	_, ok := r.Lookup("rareza")
	assert.False(t, ok)
}

func TestColumnIndex_KeysOrderedByPosition(t *testing.T) {
	idx := NewColumnIndex(map[Key]int{KeyNombre: 2, KeyID: 0, KeyNum: 1, KeyTipo: -1})
	assert.Equal(t, []Key{KeyID, KeyNum, KeyNombre}, idx.Keys())
}

func TestFieldKeyMapping(t *testing.T) {
	assert.Equal(t, KeyTipo, FieldKey("categoria"))
	assert.Equal(t, KeyNombre, FieldKey("nombre"))
	assert.Equal(t, "categoria", KeyField(KeyTipo))
	assert.Equal(t, "precio", KeyField(KeyPrecio))
}

func mustLookup(t *testing.T, idx ColumnIndex, k Key) int {
	t.Helper()
	pos, ok := idx.Lookup(k)
	require.True(t, ok, "key %s not resolved", k)
	return pos
}
