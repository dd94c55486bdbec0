package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cardcat/cmd/cardcat/ui"
	"cardcat/internal/catalog"
	"cardcat/internal/format"
	"cardcat/internal/offline"
	"cardcat/internal/remote"
	"cardcat/internal/server"
)

var (
	serveAddr  string
	serveWatch bool
)

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog over HTTP",
	Long: `Serves the JSON API (records, saves, reloads, lists, status) and
Prometheus metrics on /metrics. With server.asset_upstream set, the web app's
assets are proxied on / and kept available offline.

With --watch and a local source file, the catalog reloads whenever the file
changes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// browseCmd opens the interactive table
var browseCmd = &cobra.Command{
	Use:   "browse [query...]",
	Short: "Browse the catalog interactively",
	RunE:  runBrowse,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default server.addr)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload when the local source file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, stderrNotifier(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer a.close()

	if serveWatch && !a.reader.IsLocal() {
		return fmt.Errorf("--watch needs a local source, got %s", cfg.Source.TSVURL)
	}
	a.svc.Load(ctx, false)

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	var watcher *catalog.Watcher
	if serveWatch {
		if watcher, err = catalog.WatchSource(remote.LocalPath(cfg.Source.TSVURL), a.svc); err != nil {
			return err
		}
	}

	var (
		opts  []server.Option
		proxy *offline.Proxy
	)
	if up := cfg.Server.AssetUpstream; up != "" {
		exempt := append(append([]string{}, cfg.Server.ExemptHosts...), sourceHosts(cfg)...)
		if proxy, err = offline.New(up, a.store, offline.WithExemptHosts(exempt...)); err != nil {
			return err
		}
		opts = append(opts, server.WithAssets(proxy))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("serving", zap.String("addr", addr))
		return server.New(a.svc, opts...).Run(ctx, addr)
	})
	if proxy != nil {
		g.Go(func() error {
			if err := proxy.Precache(ctx, offline.DefaultAssets); err != nil {
				logger.Warn("precache incomplete", zap.Error(err))
			}
			return nil
		})
	}
	if watcher != nil {
		g.Go(func() error { return watcher.Run(ctx) })
	}
	return g.Wait()
}

func runBrowse(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Notices reach the program once it exists; until then they print.
	var prog *tea.Program
	notifier := catalog.NotifierFunc(func(n catalog.Notice) {
		if prog != nil {
			prog.Send(ui.NoticeMsg(n))
			return
		}
		stderrNotifier(cmd.ErrOrStderr()).Notify(n)
	})

	a, err := openApp(ctx, cfg, notifier)
	if err != nil {
		return err
	}
	defer a.close()
	a.svc.Load(ctx, false)

	model := ui.NewBrowse(ctx, a.svc, ui.BrowseOptions{
		Query:          strings.Join(args, " "),
		Debounce:       cfg.GetSearchDebounce(),
		NoticeDuration: cfg.GetNoticeDuration(),
		Format:         format.Options{},
	})
	prog = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
