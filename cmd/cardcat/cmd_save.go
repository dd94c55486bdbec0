package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cardcat/internal/catalog"
	"cardcat/internal/dupe"
	"cardcat/internal/schema"
)

var (
	addFrom     string
	onDuplicate string
)

// addCmd adds a card
var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a card to the sheet",
	Long: `Adds a card. Before writing, the catalog is checked for a card with the
same number, set, language and name. On a match you choose to merge the
quantities into the existing card, save a separate duplicate, or discard.

Examples:
  cardcat add --nombre Pikachu --num 58/102 --edicion "Base Set" --idioma ES --cantidad 2
  cardcat add --from pkm_1f3a --cantidad 1 --on-duplicate merge`,
	Args: cobra.NoArgs,
	RunE: runAdd,
}

// editCmd edits a card in place
var editCmd = &cobra.Command{
	Use:   "edit [id]",
	Short: "Edit a card; only the given fields change",
	Args:  cobra.ExactArgs(1),
	RunE:  runEdit,
}

func init() {
	for _, c := range []*cobra.Command{addCmd, editCmd} {
		for _, f := range schema.FormFields {
			c.Flags().String(flagName(f), "", "Card field "+f)
		}
	}
	addCmd.Flags().StringVar(&addFrom, "from", "", "Pre-fill from an existing card id")
	addCmd.Flags().StringVar(&onDuplicate, "on-duplicate", "", "prompt, merge, duplicate or discard (default duplicates.on_collision)")
}

// flagName maps a form field to its flag: evoluciona_de → evoluciona-de.
func flagName(field string) string {
	return strings.ReplaceAll(field, "_", "-")
}

// formFromFlags overlays the flags that were set on base.
func formFromFlags(cmd *cobra.Command, base catalog.Form) catalog.Form {
	form := make(catalog.Form, len(schema.FormFields))
	for k, v := range base {
		form[k] = v
	}
	for _, f := range schema.FormFields {
		fl := cmd.Flags().Lookup(flagName(f))
		if fl != nil && fl.Changed {
			form[f] = fl.Value.String()
		}
	}
	return form
}

// resolverFor turns an on-duplicate mode into a Resolver.
func resolverFor(cmd *cobra.Command, mode string) dupe.Resolver {
	if mode == "" || mode == "prompt" {
		return dupe.Prompt{In: cmd.InOrStdin(), Out: cmd.ErrOrStderr()}
	}
	return dupe.Fixed(dupe.ParseResolution(mode))
}

func runAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), cfg, stderrNotifier(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer a.close()
	a.svc.Load(cmd.Context(), false)

	var base catalog.Form
	if addFrom != "" {
		base, err = a.svc.FormFor(addFrom)
		if err != nil {
			return err
		}
	}
	mode := onDuplicate
	if mode == "" {
		mode = a.cfg.Duplicates.OnCollision
	}

	req := catalog.SaveRequest{Form: formFromFlags(cmd, base), Resolver: resolverFor(cmd, mode)}
	return save(cmd, a, req)
}

func runEdit(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), cfg, stderrNotifier(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer a.close()
	a.svc.Load(cmd.Context(), false)

	base, err := a.svc.FormFor(args[0])
	if err != nil {
		return err
	}
	return save(cmd, a, catalog.SaveRequest{Form: formFromFlags(cmd, base), EditID: args[0]})
}

func save(cmd *cobra.Command, a *app, req catalog.SaveRequest) error {
	res, err := a.svc.Save(cmd.Context(), req)
	if errors.Is(err, catalog.ErrDiscarded) {
		return nil
	}
	if err != nil {
		var ve *catalog.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("--%s: %s", flagName(ve.Field), ve.Message)
		}
		return err
	}
	logger.Info("saved",
		zap.String("action", res.Action),
		zap.String("id", res.ID),
		zap.String("row", res.RowIndex),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", res.Action, res.ID)
	return nil
}
