package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"cardcat/internal/catalog"
	"cardcat/internal/dataset"
	"cardcat/internal/format"
	"cardcat/internal/schema"
)

// Catalog is what the browser needs from the catalog service.
type Catalog interface {
	Search(raw string) catalog.SearchResult
	Dataset() *dataset.Dataset
	Status() catalog.Status
	Load(ctx context.Context, bypass bool) catalog.LoadResult
}

// NoticeMsg shows a notice in the status bar.
type NoticeMsg catalog.Notice

type clearNoticeMsg struct{ seq int }

type loadedMsg catalog.LoadResult

// columnWidths follow schema.TableColumns.
var columnWidths = map[schema.Key]int{
	schema.KeyNum:         9,
	schema.KeyNombre:      22,
	schema.KeyTipo:        12,
	schema.KeyAtributo:    10,
	schema.KeyNivel:       5,
	schema.KeyEdicion:     16,
	schema.KeyCantidad:    6,
	schema.KeyPrecio:      13,
	schema.KeyFechaCompra: 10,
}

// BrowseOptions configure the browser.
type BrowseOptions struct {
	Query          string
	Debounce       time.Duration
	NoticeDuration time.Duration
	Format         format.Options
	Styles         *Styles
}

// BrowseModel is the interactive catalog table: a search box filtering a
// table of records as the user types.
type BrowseModel struct {
	ctx      context.Context
	cat      Catalog
	input    textinput.Model
	table    table.Model
	debounce *Debouncer
	styles   Styles
	opts     format.Options

	result    catalog.SearchResult
	notice    *catalog.Notice
	noticeSeq int
	noticeDur time.Duration
	loading   bool

	width  int
	height int
}

// NewBrowse creates the browser and runs the initial search.
func NewBrowse(ctx context.Context, cat Catalog, o BrowseOptions) BrowseModel {
	cols := make([]table.Column, len(schema.TableColumns))
	for i, c := range schema.TableColumns {
		cols[i] = table.Column{Title: c.Label, Width: columnWidths[c.Key]}
	}
	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	in := textinput.New()
	in.Placeholder = `Buscar: charizard tipo:pokemon hp>80 set="base set"`
	in.Prompt = "> "
	in.CharLimit = 200
	in.Width = 60
	in.SetValue(o.Query)
	in.Focus()

	styles := DefaultStyles()
	if o.Styles != nil {
		styles = *o.Styles
	}
	noticeDur := o.NoticeDuration
	if noticeDur <= 0 {
		noticeDur = 2400 * time.Millisecond
	}

	m := BrowseModel{
		ctx:       ctx,
		cat:       cat,
		input:     in,
		table:     t,
		debounce:  NewDebouncer(o.Debounce),
		styles:    styles,
		opts:      o.Format,
		noticeDur: noticeDur,
	}
	m.search()
	return m
}

// Init implements tea.Model.
func (m BrowseModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m BrowseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if h := msg.Height - 7; h > 3 {
			m.table.SetHeight(h)
		}
		m.table.SetWidth(msg.Width)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.debounce.Cancel()
			return m, tea.Quit
		case "ctrl+r":
			m.loading = true
			return m, m.reload()
		case "enter":
			m.debounce.Cancel()
			m.search()
			return m, nil
		case "up", "down", "pgup", "pgdown", "home", "end":
			var cmd tea.Cmd
			m.table, cmd = m.table.Update(msg)
			return m, cmd
		}
		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
		if m.input.Value() != before {
			cmds = append(cmds, m.debounce.Trigger())
		}

	case debounceMsg:
		if m.debounce.Settled(msg) {
			m.search()
		}

	case loadedMsg:
		m.loading = false
		m.search()

	case NoticeMsg:
		n := catalog.Notice(msg)
		m.notice = &n
		m.noticeSeq++
		seq := m.noticeSeq
		cmds = append(cmds, tea.Tick(m.noticeDur, func(time.Time) tea.Msg { return clearNoticeMsg{seq} }))

	case clearNoticeMsg:
		if msg.seq == m.noticeSeq {
			m.notice = nil
		}

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m BrowseModel) reload() tea.Cmd {
	ctx, cat := m.ctx, m.cat
	return func() tea.Msg {
		return loadedMsg(cat.Load(ctx, true))
	}
}

// search runs the current query and refills the table.
func (m *BrowseModel) search() {
	m.result = m.cat.Search(m.input.Value())
	d := m.cat.Dataset()
	rows := make([]table.Row, 0, len(m.result.Records))
	if d != nil {
		for _, r := range m.result.Records {
			rows = append(rows, table.Row(format.Row(r, d.Index, m.opts)))
		}
	}
	m.table.SetRows(rows)
	if m.table.Cursor() >= len(rows) {
		m.table.SetCursor(0)
	}
}

// Query is the current search text.
func (m BrowseModel) Query() string { return m.input.Value() }

// Result is the last search result.
func (m BrowseModel) Result() catalog.SearchResult { return m.result }

// SelectedID is the identity of the highlighted record, or "".
func (m BrowseModel) SelectedID() string {
	i := m.table.Cursor()
	d := m.cat.Dataset()
	if d == nil || i < 0 || i >= len(m.result.Records) {
		return ""
	}
	return strings.TrimSpace(d.Index.Cell(m.result.Records[i], schema.KeyID))
}

// View implements tea.Model.
func (m BrowseModel) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Header.Render("cardcat"))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")
	b.WriteString(m.statusBar())
	return b.String()
}

func (m BrowseModel) statusBar() string {
	st := m.cat.Status()
	text := st.Text
	if m.loading {
		text = "Cargando…"
	}
	style := m.styles.Success
	if st.Kind == catalog.StatusError {
		style = m.styles.Warning
	}
	parts := []string{
		m.styles.Badge.Render(m.result.Label()),
		style.Render(text),
	}
	if m.notice != nil {
		parts = append(parts, m.styles.Level(string(m.notice.Level)).Render(m.notice.Text))
	}
	parts = append(parts, m.styles.Muted.Render("ctrl+r recargar · esc salir"))
	return m.styles.Footer.Render(strings.Join(parts, "  "))
}
