package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cardcat/cmd/cardcat/ui"
	"cardcat/internal/catalog"
	"cardcat/internal/config"
	"cardcat/internal/dataset"
	"cardcat/internal/format"
	"cardcat/internal/lists"
	"cardcat/internal/schema"
)

var (
	searchJSON  bool
	searchLimit int
	rawPrice    bool
	rawDate     bool
)

// loadCmd loads the dataset and reports where it came from
var loadCmd = &cobra.Command{
	Use:     "load",
	Aliases: []string{"status"},
	Short:   "Load the sheet (network first, then cache) and report the result",
	Args:    cobra.NoArgs,
	RunE:    runLoad,
}

// searchCmd filters the catalog
var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Search the catalog",
	Long: `Filters the catalog with the query language: free text plus field
predicates <field><op><value> where op is ':' (contains), '=' (equals),
'>' or '<' (numeric).

Examples:
  cardcat search charizard
  cardcat search tipo:pokemon hp>80
  cardcat search 'set="base set" cantidad>1'`,
	RunE: runSearch,
}

// showCmd renders one record as a card
var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show one card",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

// listsCmd prints the suggestion lists
var listsCmd = &cobra.Command{
	Use:   "lists [name]",
	Short: "Print the suggestion lists (tipo, subtipo, set, anio, elemento, idioma)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLists,
}

// configCmd manages the config file
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Print records as JSON")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "Show at most n records (0 = all)")
	searchCmd.Flags().BoolVar(&rawPrice, "raw-price", false, "Show prices as stored")
	searchCmd.Flags().BoolVar(&rawDate, "raw-date", false, "Show dates as stored")
	configCmd.AddCommand(configInitCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), cfg, stderrNotifier(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer a.close()

	res := a.svc.Load(cmd.Context(), true)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Origen:    %s\n", res.Origin)
	fmt.Fprintf(out, "Estado:    %s\n", res.Label)
	fmt.Fprintf(out, "Registros: %d\n", res.Dataset.Len())
	if res.Origin == catalog.OriginCached && !res.CachedAt.IsZero() {
		fmt.Fprintf(out, "Caché:     %s\n", res.CachedAt.Format(time.RFC3339))
	}
	if res.FetchErr != nil {
		logger.Info("network load failed", zap.Error(res.FetchErr))
	}
	if d := res.Dataset; d != nil {
		missing := []string{}
		for _, c := range schema.TableColumns {
			if !d.Index.Has(c.Key) {
				missing = append(missing, c.Label)
			}
		}
		if len(missing) > 0 {
			fmt.Fprintf(out, "Columnas sin resolver: %s\n", strings.Join(missing, ", "))
		}
	}
	if res.Origin == catalog.OriginEmpty {
		return errors.New("no data: network and cache both unavailable")
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), cfg, stderrNotifier(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer a.close()

	a.svc.Load(cmd.Context(), false)
	raw := strings.Join(args, " ")
	res := a.svc.Search(raw)
	d := a.svc.Dataset()

	records := res.Records
	if searchLimit > 0 && len(records) > searchLimit {
		records = records[:searchLimit]
	}

	out := cmd.OutOrStdout()
	if searchJSON {
		rows := make([]map[string]string, 0, len(records))
		for _, r := range records {
			rows = append(rows, recordFields(d, r))
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	opts := format.Options{RawPrice: rawPrice, RawDate: rawDate}
	headers := make([]string, len(schema.TableColumns))
	for i, c := range schema.TableColumns {
		headers[i] = c.Label
	}
	t := ui.NewSimpleTable(res.Label(), headers)
	for _, r := range records {
		t.AddRow(format.Row(r, d.Index, opts)...)
	}
	fmt.Fprint(out, t.View(ui.DefaultStyles()))
	return nil
}

// recordFields maps canonical keys to the record's non-empty cells.
func recordFields(d *dataset.Dataset, r dataset.Record) map[string]string {
	m := make(map[string]string)
	for _, k := range d.Index.Keys() {
		if v := d.Index.Cell(r, k); v != "" {
			m[string(k)] = v
		}
	}
	return m
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), cfg, stderrNotifier(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer a.close()

	a.svc.Load(cmd.Context(), false)
	_, pos, ok := a.svc.Record(args[0])
	if !ok {
		return fmt.Errorf("%w: %s", catalog.ErrNotFound, args[0])
	}
	md := recordMarkdown(a.svc.Dataset(), pos)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		fmt.Fprint(cmd.OutOrStdout(), md)
		return nil
	}
	rendered, err := renderer.Render(md)
	if err != nil {
		fmt.Fprint(cmd.OutOrStdout(), md)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), rendered)
	return nil
}

// cardFields is the order fields appear on a card.
var cardFields = []struct {
	key   schema.Key
	label string
}{
	{schema.KeyNum, "#"},
	{schema.KeyEdicion, "Set"},
	{schema.KeyAnio, "Año"},
	{schema.KeyTipo, "Tipo"},
	{schema.KeySubtipo, "Subtipo"},
	{schema.KeyAtributo, "Elemento"},
	{schema.KeyNivel, "HP"},
	{schema.KeyEvolucionaDe, "Evoluciona de"},
	{schema.KeyEvolucionaA, "Evoluciona a"},
	{schema.KeyCantidad, "Cantidad"},
	{schema.KeyIdioma, "Idioma"},
	{schema.KeyPrecio, "Precio"},
	{schema.KeyFechaCompra, "Fecha de compra"},
}

// recordMarkdown renders record pos as a markdown card.
func recordMarkdown(d *dataset.Dataset, pos int) string {
	var b strings.Builder
	name := format.Cell(schema.KeyNombre, d.Cell(pos, schema.KeyNombre), format.Options{})
	if name == "" {
		name = "(sin nombre)"
	}
	fmt.Fprintf(&b, "# %s\n\n", name)
	if id := d.ID(pos); id != "" {
		fmt.Fprintf(&b, "`%s` · fila %d\n\n", id, dataset.RowNumber(pos))
	}

	b.WriteString("| Campo | Valor |\n|---|---|\n")
	for _, f := range cardFields {
		v := format.Cell(f.key, d.Cell(pos, f.key), format.Options{})
		if v == "" {
			continue
		}
		fmt.Fprintf(&b, "| %s | %s |\n", f.label, strings.ReplaceAll(v, "|", `\|`))
	}
	if notes := strings.TrimSpace(d.Cell(pos, schema.KeyNotas)); notes != "" {
		fmt.Fprintf(&b, "\n> %s\n", notes)
	}
	if img := strings.TrimSpace(d.Cell(pos, schema.KeyImagenURL)); img != "" {
		fmt.Fprintf(&b, "\n![%s](%s)\n", name, img)
	}
	return b.String()
}

func runLists(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), cfg, stderrNotifier(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer a.close()

	a.svc.Load(cmd.Context(), false)
	out := cmd.OutOrStdout()
	if len(args) == 1 {
		n := lists.Name(strings.ToLower(args[0]))
		if _, ok := lists.Lookup(n); !ok {
			return fmt.Errorf("unknown list %q", args[0])
		}
		values, err := a.svc.Lists().Get(cmd.Context(), n)
		if err != nil {
			return err
		}
		for _, v := range values {
			fmt.Fprintln(out, v)
		}
		return nil
	}

	all, err := a.svc.Lists().All(cmd.Context())
	if err != nil {
		return err
	}
	names := make([]string, 0, len(all))
	for n := range all {
		names = append(names, string(n))
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(out, "%s: %s\n", n, strings.Join(all[lists.Name(n)], ", "))
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}
	c := config.DefaultConfig()
	if sourceURL != "" {
		c.Source.TSVURL = sourceURL
	}
	if err := c.Save(configPath); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
	return nil
}
