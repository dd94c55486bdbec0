package dupe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardcat/internal/schema"
)

func testIndex() schema.ColumnIndex {
	return schema.MustCompile(schema.HeaderAliases).
		Resolve([]string{"_id", "#", "Set", "Nombre", "Cantidad", "Idioma"})
}

func TestFingerprint_CaseAndAccentInsensitive(t *testing.T) {
	idx := testIndex()
	row := []string{"pkm_1", "4/102", "Edición Base", "Charmander", "3", "ES"}

	fp := FromValues(map[schema.Key]string{
		schema.KeyNum:     " 4/102 ",
		schema.KeyEdicion: "EDICION  base",
		schema.KeyIdioma:  "es",
		schema.KeyNombre:  "charmánder",
	})
	assert.Equal(t, FromRecord(row, idx), fp)
	assert.Equal(t, Fingerprint("4/102|edicion base|es|charmander"), fp)
}

func TestFind(t *testing.T) {
	idx := testIndex()
	records := [][]string{
		{"pkm_1", "4/102", "Base", "Charmander", "3", "ES"},
		{"pkm_2", "4/102", "Base", "Charmander", "1", "EN"},
		{"pkm_3", "4/102", "Base", "Charmander", "7", "EN"},
	}

	c, ok := Find(records, idx, FromValues(map[schema.Key]string{
		schema.KeyNum: "4/102", schema.KeyEdicion: "base", schema.KeyIdioma: "en", schema.KeyNombre: "CHARMANDER",
	}))
	require.True(t, ok)
	assert.Equal(t, 1, c.Position, "first matching record wins")
	assert.Equal(t, "pkm_2", c.ID)
	assert.Equal(t, "1", c.Quantity)
	assert.Equal(t, "Coincide con: Charmander · #4/102 · Base · EN", c.Describe())

	_, ok = Find(records, idx, FromValues(map[schema.Key]string{schema.KeyNombre: "Squirtle"}))
	assert.False(t, ok)
}

func TestFind_BlankNeverMatches(t *testing.T) {
	idx := testIndex()
	records := [][]string{{"pkm_1", "", "", "", "1", ""}}

	blank := FromValues(nil)
	assert.True(t, blank.Blank())
	_, ok := Find(records, idx, blank)
	assert.False(t, ok)
}

func TestMergeQuantity(t *testing.T) {
	tests := []struct {
		existing, incoming string
		want               int
	}{
		{"3", "2", 5},
		{"muchas", "2", 2},
		{"", "", 0},
		{"1", "-4", 0},
		{"1.000", "1", 1001},
	}
	for _, tt := range tests {
		got, _, _ := MergeQuantity(tt.existing, tt.incoming)
		assert.Equal(t, tt.want, got, "%q + %q", tt.existing, tt.incoming)
	}
}

func TestParseResolution(t *testing.T) {
	assert.Equal(t, Merge, ParseResolution("merge"))
	assert.Equal(t, Merge, ParseResolution(" M "))
	assert.Equal(t, Duplicate, ParseResolution("Duplicar"))
	assert.Equal(t, Discard, ParseResolution(""))
	assert.Equal(t, Discard, ParseResolution("yes please"))
	assert.Equal(t, "merge", Merge.String())
	assert.Equal(t, "discard", Resolution(42).String())
}

func TestAwait_SafeDefault(t *testing.T) {
	ctx := context.Background()
	c := Collision{Name: "Pikachu"}

	assert.Equal(t, Discard, Await(ctx, nil, c))
	assert.Equal(t, Merge, Await(ctx, Fixed(Merge), c))
	assert.Equal(t, Duplicate, Await(ctx, Fixed(Duplicate), c))
	assert.Equal(t, Discard, Await(ctx, Fixed(Resolution(9)), c))

	failing := ResolverFunc(func(context.Context, Collision) (Resolution, error) {
		return Merge, errors.New("dialog closed")
	})
	assert.Equal(t, Discard, Await(ctx, failing, c))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Equal(t, Discard, Await(cancelled, Fixed(Merge), c))
}

func TestPrompt(t *testing.T) {
	var out bytes.Buffer
	p := Prompt{In: strings.NewReader("m\n"), Out: &out}

	res, err := p.Resolve(context.Background(), Collision{Name: "Mew", Num: "151"})
	require.NoError(t, err)
	assert.Equal(t, Merge, res)
	assert.Contains(t, out.String(), "Coincide con: Mew · #151")

	res, err = Prompt{In: strings.NewReader(""), Out: &out}.Resolve(context.Background(), Collision{})
	require.NoError(t, err)
	assert.Equal(t, Discard, res)
}

func TestPrompt_SharedInput(t *testing.T) {
	in := strings.NewReader("m\r\nd\n")
	p := Prompt{In: in, Out: io.Discard}

	first, err := p.Resolve(context.Background(), Collision{})
	require.NoError(t, err)
	second, err := p.Resolve(context.Background(), Collision{})
	require.NoError(t, err)

	assert.Equal(t, Merge, first)
	assert.Equal(t, Duplicate, second)
}

func TestPrompt_Cancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Prompt{In: pr, Out: io.Discard}.Resolve(ctx, Collision{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Discard, res)
}
