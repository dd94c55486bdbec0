package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cardcat/internal/config"
	"cardcat/internal/logging"
)

var version = "dev"

var (
	// Global flags
	verbose    bool
	configPath string
	noCache    bool
	sourceURL  string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cardcat",
	Short: "cardcat - trading card catalog backed by a spreadsheet",
	Long: `cardcat keeps a trading card collection in a published spreadsheet.

It loads the sheet (falling back to a local cache when offline), searches it
with a small query language, and adds or edits cards through the sheet's
write endpoint, detecting duplicates before they are written.

Query examples:
  cardcat search charizard
  cardcat search 'tipo:pokemon hp>80 set="base set"'`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if sourceURL != "" {
			cfg.Source.TSVURL = sourceURL
		}
		settings := cfg.Logging.Settings()
		if verbose {
			settings.DebugMode = true
			settings.Level = "debug"
		}
		if err := logging.Initialize(settings); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the cardcat version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cardcat %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", filepath.Join(".cardcat", "config.yaml"), "Config file")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "Keep cache and lists in memory only")
	rootCmd.PersistentFlags().StringVar(&sourceURL, "source", "", "TSV URL or local path (overrides source.tsv_url)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listsCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
