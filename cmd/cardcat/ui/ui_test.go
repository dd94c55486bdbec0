package ui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardcat/internal/catalog"
	"cardcat/internal/store"
)

const sheet = "_id\t#\tSet\tNombre\tTipo\tHP\tCantidad\n" +
	"pkm_1\t4/102\tBase Set\tCharmander\tPokémon\t50\t3\n" +
	"pkm_2\t6/102\tBase Set\tCharizard\tPokémon\t120\t1\n" +
	"pkm_3\t7/102\tBase Set\tSquirtle\tPokémon\t40\t1\n"

type textSource string

func (s textSource) Fetch(context.Context, bool) (string, error) { return string(s), nil }

func newModel(t *testing.T, query string) BrowseModel {
	t.Helper()
	svc, err := catalog.New(catalog.Options{Source: textSource(sheet), Store: store.NewMemStore()})
	require.NoError(t, err)
	svc.Load(context.Background(), false)
	styles := NewStyles(LightTheme())
	return NewBrowse(context.Background(), svc, BrowseOptions{Query: query, Debounce: time.Millisecond, Styles: &styles})
}

func update(t *testing.T, m BrowseModel, msg tea.Msg) (BrowseModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	bm, ok := next.(BrowseModel)
	require.True(t, ok)
	return bm, cmd
}

func TestBrowse_InitialSearch(t *testing.T) {
	m := newModel(t, "")
	assert.Equal(t, 3, m.Result().Count())

	view := m.View()
	assert.Contains(t, view, "3 resultados")
	assert.Contains(t, view, "Charizard")
	assert.Contains(t, view, "Listo")

	m = newModel(t, "squirtle")
	assert.Equal(t, 1, m.Result().Count())
	assert.Equal(t, "pkm_3", m.SelectedID())
}

func TestBrowse_TypingIsDebounced(t *testing.T) {
	m := newModel(t, "")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("chari")})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("zard")})
	assert.Equal(t, "charizard", m.Query())
	assert.Equal(t, 3, m.Result().Count(), "search must wait for the debounce window")

	// A stale window does nothing.
	m, _ = update(t, m, debounceMsg{seq: 1})
	assert.Equal(t, 3, m.Result().Count())

	m, _ = update(t, m, debounceMsg{seq: 2})
	assert.Equal(t, 1, m.Result().Count())
	assert.Equal(t, "pkm_2", m.SelectedID())
	assert.Contains(t, m.View(), "1 resultado")
}

func TestBrowse_EnterSearchesNow(t *testing.T) {
	m := newModel(t, "")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("char")})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, 2, m.Result().Count())

	// The pending window was cancelled.
	m, _ = update(t, m, debounceMsg{seq: 1})
	assert.Equal(t, 2, m.Result().Count())
}

func TestBrowse_Navigation(t *testing.T) {
	m := newModel(t, "")
	assert.Equal(t, "pkm_1", m.SelectedID())

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, "pkm_2", m.SelectedID())
	assert.Equal(t, "", m.Query(), "arrow keys must not reach the search box")
}

func TestBrowse_Notice(t *testing.T) {
	m := newModel(t, "")

	m, cmd := update(t, m, NoticeMsg{Level: catalog.LevelSuccess, Text: "Guardado"})
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Guardado")

	m, _ = update(t, m, NoticeMsg{Level: catalog.LevelInfo, Text: "Cargado desde caché"})
	// The first notice's timer no longer applies.
	m, _ = update(t, m, clearNoticeMsg{seq: 1})
	assert.Contains(t, m.View(), "Cargado desde caché")

	m, _ = update(t, m, clearNoticeMsg{seq: 2})
	assert.NotContains(t, m.View(), "Cargado desde caché")
}

func TestBrowse_Reload(t *testing.T) {
	m := newModel(t, "")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Cargando")

	msg := cmd()
	loaded, ok := msg.(loadedMsg)
	require.True(t, ok)
	assert.Equal(t, catalog.OriginFresh, loaded.Origin)

	m, _ = update(t, m, msg)
	assert.NotContains(t, m.View(), "Cargando")
	assert.Equal(t, 3, m.Result().Count())
}

func TestBrowse_Quit(t *testing.T) {
	m := newModel(t, "")
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestDebouncer(t *testing.T) {
	d := NewDebouncer(time.Millisecond)
	first := d.Trigger()
	second := d.Trigger()

	msg1, ok := first().(debounceMsg)
	require.True(t, ok)
	msg2 := second().(debounceMsg)
	assert.False(t, d.Settled(msg1))
	assert.True(t, d.Settled(msg2))

	d.Cancel()
	assert.False(t, d.Settled(msg2))

	assert.Equal(t, DefaultSearchDebounce, NewDebouncer(0).Duration())
}

func TestSimpleTable(t *testing.T) {
	table := NewSimpleTable("Cartas", []string{"#", "Nombre"})
	table.AddRow("4/102", "Charmander")
	table.AddRow("6/102", strings.Repeat("x", 40))

	view := table.View(NewStyles(LightTheme()))
	assert.Contains(t, view, "Cartas")
	assert.Contains(t, view, "Charmander")
	assert.Contains(t, view, "…")
	assert.NotContains(t, view, strings.Repeat("x", 40))

	empty := NewSimpleTable("Vacía", []string{"#"})
	assert.Equal(t, "Vacía", strings.TrimSpace(stripANSI(empty.View(NewStyles(LightTheme())))))
}

func TestStyles_Level(t *testing.T) {
	s := NewStyles(DarkTheme())
	assert.True(t, s.Theme.IsDark)
	assert.Equal(t, s.Error.GetForeground(), s.Level("error").GetForeground())
	assert.Equal(t, s.Warning.GetForeground(), s.Level("warn").GetForeground())
	assert.Equal(t, s.Success.GetForeground(), s.Level("success").GetForeground())
	assert.Equal(t, s.Info.GetForeground(), s.Level("whatever").GetForeground())
}

func TestDetectTheme(t *testing.T) {
	t.Setenv("CARDCAT_DARK_MODE", "")
	t.Setenv("COLORFGBG", "15;0")
	assert.True(t, DetectTheme().IsDark)

	t.Setenv("COLORFGBG", "0;15")
	assert.False(t, DetectTheme().IsDark)

	t.Setenv("CARDCAT_DARK_MODE", "1")
	assert.True(t, DetectTheme().IsDark)
}

func stripANSI(s string) string {
	var b strings.Builder
	in := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			in = true
		case in && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'):
			in = false
		case !in:
			b.WriteRune(r)
		}
	}
	return b.String()
}
