package main

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"go.uber.org/zap"

	"cardcat/internal/catalog"
	"cardcat/internal/config"
	"cardcat/internal/remote"
	"cardcat/internal/schema"
	"cardcat/internal/store"
)

// backing is a store usable for both the KV and the asset cache.
type backing interface {
	store.KV
	store.AssetCache
}

// app is a wired catalog for one command run.
type app struct {
	cfg    *config.Config
	svc    *catalog.Service
	store  backing
	reader *remote.Reader
	close  func() error
}

// openApp validates cfg and wires the catalog service. Notices go to n.
func openApp(ctx context.Context, c *config.Config, n catalog.Notifier) (*app, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: c, close: func() error { return nil }}
	if noCache {
		a.store = store.NewMemStore()
	} else {
		ls, err := store.NewLocalStore(c.Storage.Path)
		if err != nil {
			return nil, err
		}
		a.store = ls
		a.close = ls.Close
	}

	a.reader = remote.NewReader(c.Source.TSVURL)
	a.reader.Timeout = c.GetFetchTimeout()
	a.reader.RetryDelay = c.GetRetryDelay()

	opts := catalog.Options{
		Source:       a.reader,
		Store:        a.store,
		Connectivity: connectivity(c),
		Notifier:     n,
		IDPrefix:     c.IDPrefix,
	}
	if c.HasWriteEndpoint() {
		w := remote.NewWriter(c.Source.APIURL)
		w.Timeout = c.GetFetchTimeout()
		opts.Sink = w
	}
	if c.Source.WordBoundaryHeaders {
		r, err := schema.Compile(schema.HeaderAliases, schema.WithWordBoundary())
		if err != nil {
			_ = a.close()
			return nil, err
		}
		opts.Resolver = r
	}

	svc, err := catalog.New(opts)
	if err != nil {
		_ = a.close()
		return nil, err
	}
	if err := svc.Lists().SeedDefaults(ctx); err != nil {
		logger.Warn("seeding lists failed", zap.Error(err))
	}
	a.svc = svc
	logger.Debug("catalog ready",
		zap.String("source", c.Source.TSVURL),
		zap.Bool("writable", svc.CanWrite()),
		zap.Bool("memory_store", noCache),
	)
	return a, nil
}

// connectivity picks how saves decide whether the network is up.
func connectivity(c *config.Config) remote.Connectivity {
	if c.Net.Offline {
		return remote.Static(false)
	}
	probe := c.Net.ProbeURL
	if probe == "" && c.Source.APIURL != "" {
		if u, err := url.Parse(c.Source.APIURL); err == nil {
			probe = u.Scheme + "://" + u.Host + "/"
		}
	}
	if probe == "" {
		return remote.Static(true)
	}
	return &remote.Prober{URL: probe}
}

// stderrNotifier prints notices as single lines.
func stderrNotifier(w io.Writer) catalog.Notifier {
	return catalog.NotifierFunc(func(n catalog.Notice) {
		fmt.Fprintf(w, "%s %s\n", noticeMark(n.Level), n.Text)
	})
}

func noticeMark(l catalog.Level) string {
	switch l {
	case catalog.LevelSuccess:
		return "✓"
	case catalog.LevelWarn:
		return "!"
	case catalog.LevelError:
		return "✗"
	default:
		return "·"
	}
}

// sourceHosts lists the hosts of the configured endpoints.
func sourceHosts(c *config.Config) []string {
	var hosts []string
	for _, raw := range []string{c.Source.TSVURL, c.Source.APIURL} {
		if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
			hosts = append(hosts, u.Hostname())
		}
	}
	return hosts
}
