package offline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"cardcat/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// switchable fails every round trip while down is set.
type switchable struct {
	next http.RoundTripper
	down atomic.Bool
}

func (s *switchable) RoundTrip(r *http.Request) (*http.Response, error) {
	if s.down.Load() {
		return nil, errors.New("network unreachable")
	}
	return s.next.RoundTrip(r)
}

type fixture struct {
	srv   *httptest.Server
	net   *switchable
	cache *store.MemStore
	proxy *Proxy
	hits  atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{cache: store.NewMemStore()}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("ETag", `"v1"`)
		_, _ = io.WriteString(w, "<html>shell</html>")
	})
	mux.HandleFunc("/app.js", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		w.Header().Set("Content-Type", "text/javascript")
		_, _ = io.WriteString(w, "console.log(1)")
	})
	mux.HandleFunc("/icons/icon-192.png", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	mux.HandleFunc("/missing.js", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		http.NotFound(w, r)
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.Copy(w, r.Body)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	f.net = &switchable{next: f.srv.Client().Transport}
	p, err := New(f.srv.URL, f.cache,
		WithClient(&http.Client{Transport: f.net}),
		WithClock(func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)
	f.proxy = p
	return f
}

func (f *fixture) get(path string, headers ...string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		r.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.proxy.ServeHTTP(w, r)
	return w
}

func TestNew_RejectsBadUpstream(t *testing.T) {
	_, err := New("ftp://example.com", store.NewMemStore())
	assert.Error(t, err)
	_, err = New("://", store.NewMemStore())
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	p, err := New("http://app.local/base", nil)
	require.NoError(t, err)

	cases := []struct {
		name   string
		method string
		target string
		accept string
		want   Strategy
	}{
		{"navigation", http.MethodGet, "/cards", "text/html,application/xhtml+xml", NetworkFirst},
		{"script", http.MethodGet, "/app.js", "", NetworkFirst},
		{"stylesheet", http.MethodGet, "/styles.css", "", NetworkFirst},
		{"manifest", http.MethodGet, "/manifest.webmanifest", "", NetworkFirst},
		{"png", http.MethodGet, "/icons/a.PNG", "", CacheFirst},
		{"svg", http.MethodGet, "/logo.svg", "", CacheFirst},
		{"other", http.MethodGet, "/data.json", "", NetworkFirst},
		{"post", http.MethodPost, "/app.js", "", Passthrough},
		{"exempt host", http.MethodGet, "https://script.google.com/macros/s/x/exec", "", Passthrough},
		{"exempt subdomain", http.MethodGet, "https://a.docs.google.com/pub", "", Passthrough},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(tc.method, tc.target, nil)
			if tc.accept != "" {
				r.Header.Set("Accept", tc.accept)
			}
			assert.Equal(t, tc.want, p.Classify(r))
		})
	}
}

func TestTarget(t *testing.T) {
	p, err := New("http://app.local/base/", nil)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/icons/a.png?v=2", nil)
	assert.Equal(t, "http://app.local/base/icons/a.png?v=2", p.Target(r).String())

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "http://app.local/base/", p.Target(r).String())
}

func TestNetworkFirst_StoresAndFallsBack(t *testing.T) {
	f := newFixture(t)

	w := f.get("/app.js")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "miss", w.Header().Get(CacheHeader))
	assert.Equal(t, "console.log(1)", w.Body.String())

	a, ok, err := f.cache.GetAsset(context.Background(), f.srv.URL+"/app.js")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "text/javascript", a.ContentType)

	f.net.down.Store(true)
	w = f.get("/app.js")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hit", w.Header().Get(CacheHeader))
	assert.Equal(t, "console.log(1)", w.Body.String())
	assert.Equal(t, "text/javascript", w.Header().Get("Content-Type"))
}

func TestNetworkFirst_DoesNotStoreFailures(t *testing.T) {
	f := newFixture(t)

	w := f.get("/missing.js")
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, ok, err := f.cache.GetAsset(context.Background(), f.srv.URL+"/missing.js")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNetworkFirst_NavigationFallsBackToShell(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.proxy.Precache(context.Background(), []string{"/index.html"}))

	f.net.down.Store(true)
	w := f.get("/cards/42", "Accept", "text/html")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fallback", w.Header().Get(CacheHeader))
	assert.Equal(t, "<html>shell</html>", w.Body.String())
	assert.Equal(t, `"v1"`, w.Header().Get("ETag"))
}

func TestNetworkFirst_NoCacheIsGatewayTimeout(t *testing.T) {
	f := newFixture(t)
	f.net.down.Store(true)

	assert.Equal(t, http.StatusGatewayTimeout, f.get("/app.js").Code)
	// Non-navigation requests never fall back to the shell.
	require.NoError(t, f.cache.PutAsset(context.Background(), store.Asset{URL: f.srv.URL + "/index.html", Status: 200, Body: []byte("x")}))
	assert.Equal(t, http.StatusGatewayTimeout, f.get("/data.json").Code)
}

func TestCacheFirst(t *testing.T) {
	f := newFixture(t)

	w := f.get("/icons/icon-192.png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "miss", w.Header().Get(CacheHeader))
	assert.EqualValues(t, 1, f.hits.Load())

	w = f.get("/icons/icon-192.png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hit", w.Header().Get(CacheHeader))
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, w.Body.Bytes())
	assert.EqualValues(t, 1, f.hits.Load(), "cached image must not reach upstream")

	f.net.down.Store(true)
	assert.Equal(t, http.StatusGatewayTimeout, f.get("/icons/other.png").Code)
}

func TestPassthrough_NonGet(t *testing.T) {
	f := newFixture(t)

	r := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("ping"))
	w := httptest.NewRecorder()
	f.proxy.ServeHTTP(w, r)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "ping", w.Body.String())
	_, ok, err := f.cache.GetAsset(context.Background(), f.srv.URL+"/echo")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPrecache(t *testing.T) {
	f := newFixture(t)

	err := f.proxy.Precache(context.Background(), []string{"/", "/app.js", "/missing.js"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")

	for _, u := range []string{f.srv.URL + "/", f.srv.URL + "/app.js"} {
		_, ok, err := f.cache.GetAsset(context.Background(), u)
		require.NoError(t, err)
		assert.True(t, ok, u)
	}
}

func TestStrategy_String(t *testing.T) {
	assert.Equal(t, "network-first", NetworkFirst.String())
	assert.Equal(t, "cache-first", CacheFirst.String())
	assert.Equal(t, "passthrough", Passthrough.String())
}
