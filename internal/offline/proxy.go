// Package offline serves the web app's assets so that it keeps working
// without network: pages and code come from the network when possible and
// from the asset cache otherwise, images come from the cache first.
package offline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"cardcat/internal/logging"
	"cardcat/internal/store"
)

// Strategy is how a request is served.
type Strategy int

const (
	// Passthrough forwards the request and never touches the cache.
	Passthrough Strategy = iota
	// NetworkFirst tries upstream and falls back to the cache.
	NetworkFirst
	// CacheFirst serves from the cache and fetches only on a miss.
	CacheFirst
)

func (s Strategy) String() string {
	switch s {
	case NetworkFirst:
		return "network-first"
	case CacheFirst:
		return "cache-first"
	default:
		return "passthrough"
	}
}

// DefaultExemptHosts are never intercepted: the spreadsheet endpoints are
// always left to the network.
var DefaultExemptHosts = []string{"script.google.com", "script.googleusercontent.com", "docs.google.com"}

// DefaultAssets is the app shell stored by Precache.
var DefaultAssets = []string{
	"/", "/index.html", "/styles.css", "/app.js", "/manifest.webmanifest",
	"/icons/icon-192.png", "/icons/icon-512.png",
}

var (
	codeExt  = []string{".js", ".css", ".webmanifest"}
	imageExt = []string{".png", ".webp", ".jpg", ".jpeg", ".svg", ".ico"}

	errNoCache = errors.New("offline and no cache")
)

const (
	maxAsset = 16 << 20
	// CacheHeader tells whether a response came from the cache.
	CacheHeader = "X-Cardcat-Cache"
)

// Proxy is an http.Handler in front of the app's origin.
type Proxy struct {
	upstream *url.URL
	client   *http.Client
	cache    store.AssetCache
	exempt   []string
	now      func() time.Time
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithClient sets the upstream HTTP client.
func WithClient(c *http.Client) Option { return func(p *Proxy) { p.client = c } }

// WithExemptHosts replaces the hosts that are never intercepted.
func WithExemptHosts(hosts ...string) Option {
	return func(p *Proxy) { p.exempt = hosts }
}

// WithClock sets the time source for stored assets.
func WithClock(now func() time.Time) Option { return func(p *Proxy) { p.now = now } }

// New returns a Proxy for the origin at upstream.
func New(upstream string, cache store.AssetCache, opts ...Option) (*Proxy, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream %q: scheme must be http or https", upstream)
	}
	p := &Proxy{
		upstream: u,
		client:   http.DefaultClient,
		cache:    cache,
		exempt:   DefaultExemptHosts,
		now:      time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Target is the upstream URL a request maps to. Absolute-form requests keep
// their own URL.
func (p *Proxy) Target(r *http.Request) *url.URL {
	if r.URL.IsAbs() {
		return r.URL
	}
	t := *p.upstream
	t.Path = path.Join("/", strings.TrimSuffix(p.upstream.Path, "/"), r.URL.Path)
	if strings.HasSuffix(r.URL.Path, "/") && !strings.HasSuffix(t.Path, "/") {
		t.Path += "/"
	}
	t.RawQuery = r.URL.RawQuery
	return &t
}

// Classify picks the strategy for r.
func (p *Proxy) Classify(r *http.Request) Strategy {
	if r.Method != http.MethodGet {
		return Passthrough
	}
	if p.isExempt(p.Target(r).Hostname()) {
		return Passthrough
	}
	ext := strings.ToLower(path.Ext(r.URL.Path))
	switch {
	case isNavigation(r):
		return NetworkFirst
	case hasExt(codeExt, ext):
		return NetworkFirst
	case hasExt(imageExt, ext):
		return CacheFirst
	default:
		return NetworkFirst
	}
}

func (p *Proxy) isExempt(host string) bool {
	host = strings.ToLower(host)
	for _, h := range p.exempt {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func isNavigation(r *http.Request) bool {
	return r.Header.Get("Sec-Fetch-Mode") == "navigate" ||
		strings.Contains(r.Header.Get("Accept"), "text/html")
}

func hasExt(list []string, ext string) bool {
	for _, e := range list {
		if e == ext {
			return true
		}
	}
	return false
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	strategy := p.Classify(r)
	target := p.Target(r)
	logging.Get(logging.CategoryOffline).Debug("%s %s (%s)", r.Method, target, strategy)

	switch strategy {
	case CacheFirst:
		p.cacheFirst(w, r, target)
	case NetworkFirst:
		p.networkFirst(w, r, target)
	default:
		p.passthrough(w, r, target)
	}
}

func (p *Proxy) networkFirst(w http.ResponseWriter, r *http.Request, target *url.URL) {
	a, err := p.fetch(r.Context(), target)
	if err == nil {
		p.remember(r.Context(), a)
		writeAsset(w, a, "miss")
		return
	}
	logging.Get(logging.CategoryOffline).Debug("network failed for %s: %v", target, err)

	if cached, ok := p.lookup(r.Context(), target.String()); ok {
		writeAsset(w, cached, "hit")
		return
	}
	if isNavigation(r) {
		for _, root := range []string{"/index.html", "/"} {
			u := *p.upstream
			u.Path = path.Join("/", strings.TrimSuffix(p.upstream.Path, "/"), root)
			if root == "/" && !strings.HasSuffix(u.Path, "/") {
				u.Path += "/"
			}
			u.RawQuery = ""
			if cached, ok := p.lookup(r.Context(), u.String()); ok {
				writeAsset(w, cached, "fallback")
				return
			}
		}
	}
	http.Error(w, errNoCache.Error(), http.StatusGatewayTimeout)
}

func (p *Proxy) cacheFirst(w http.ResponseWriter, r *http.Request, target *url.URL) {
	if cached, ok := p.lookup(r.Context(), target.String()); ok {
		writeAsset(w, cached, "hit")
		return
	}
	a, err := p.fetch(r.Context(), target)
	if err != nil {
		http.Error(w, errNoCache.Error(), http.StatusGatewayTimeout)
		return
	}
	p.remember(r.Context(), a)
	writeAsset(w, a, "miss")
}

func (p *Proxy) passthrough(w http.ResponseWriter, r *http.Request, target *url.URL) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Header = r.Header.Clone()
	req.ContentLength = r.ContentLength
	resp, err := p.client.Do(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// fetch GETs target. Any HTTP answer is returned; only transport failures
// are errors.
func (p *Proxy) fetch(ctx context.Context, target *url.URL) (store.Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return store.Asset{}, err
	}
	req.Header.Set("Cache-Control", "no-store")
	resp, err := p.client.Do(req)
	if err != nil {
		return store.Asset{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAsset))
	if err != nil {
		return store.Asset{}, err
	}
	return store.Asset{
		URL:         target.String(),
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		ETag:        resp.Header.Get("ETag"),
		Body:        body,
		StoredAt:    p.now(),
	}, nil
}

// remember stores successful answers.
func (p *Proxy) remember(ctx context.Context, a store.Asset) {
	if a.Status < 200 || a.Status > 299 || p.cache == nil {
		return
	}
	if err := p.cache.PutAsset(ctx, a); err != nil {
		logging.Get(logging.CategoryOffline).Warn("store %s: %v", a.URL, err)
	}
}

func (p *Proxy) lookup(ctx context.Context, key string) (store.Asset, bool) {
	if p.cache == nil {
		return store.Asset{}, false
	}
	a, ok, err := p.cache.GetAsset(ctx, key)
	if err != nil {
		logging.Get(logging.CategoryOffline).Warn("read %s: %v", key, err)
		return store.Asset{}, false
	}
	return a, ok
}

// Precache fetches and stores the given paths, as an app install would.
// It returns the first failure but tries every path.
func (p *Proxy) Precache(ctx context.Context, paths []string) error {
	var first error
	for _, sp := range paths {
		r, err := http.NewRequestWithContext(ctx, http.MethodGet, sp, nil)
		if err != nil {
			return err
		}
		target := p.Target(r)
		a, err := p.fetch(ctx, target)
		if err == nil && (a.Status < 200 || a.Status > 299) {
			err = fmt.Errorf("%s: HTTP %d", target, a.Status)
		}
		if err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		p.remember(ctx, a)
	}
	logging.Get(logging.CategoryOffline).Info("precached %d assets", len(paths))
	return first
}

func writeAsset(w http.ResponseWriter, a store.Asset, cache string) {
	if a.ContentType != "" {
		w.Header().Set("Content-Type", a.ContentType)
	}
	if a.ETag != "" {
		w.Header().Set("ETag", a.ETag)
	}
	w.Header().Set(CacheHeader, cache)
	status := a.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.Copy(w, bytes.NewReader(a.Body))
}
