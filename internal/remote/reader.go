// Package remote talks to the spreadsheet endpoints: the published TSV the
// catalog is read from and the web app rows are written through.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"cardcat/internal/logging"
)

var (
	// ErrHTTPStatus is returned for a non-2xx answer.
	ErrHTTPStatus = errors.New("remote: unexpected HTTP status")
	// ErrRejected is returned when the write endpoint answers without ok:true.
	ErrRejected = errors.New("remote: write rejected")
	// ErrMalformedResponse is returned when the write answer is not JSON.
	ErrMalformedResponse = errors.New("remote: malformed response")
	// ErrSignIn marks a malformed answer that is a sign-in page.
	ErrSignIn = errors.New("remote: endpoint requires permissions")
	// ErrTransport is returned when the request never got an answer.
	ErrTransport = errors.New("remote: transport failure")
	// ErrTimeout is returned when the request ran out of time.
	ErrTimeout = errors.New("remote: timeout")
)

const (
	// DefaultTimeout bounds one request.
	DefaultTimeout = 12 * time.Second
	// DefaultRetryDelay is the pause before the single read retry.
	DefaultRetryDelay = 180 * time.Millisecond

	maxBody = 32 << 20
)

// Reader fetches the published TSV. URLs with the file scheme and plain
// paths are read from disk.
type Reader struct {
	URL        string
	Client     *http.Client
	Timeout    time.Duration
	RetryDelay time.Duration
	// Now stamps the cache-defeating parameter.
	Now func() time.Time
}

// NewReader returns a Reader with the default timeout and retry delay.
func NewReader(rawURL string) *Reader {
	return &Reader{
		URL:        rawURL,
		Client:     http.DefaultClient,
		Timeout:    DefaultTimeout,
		RetryDelay: DefaultRetryDelay,
		Now:        time.Now,
	}
}

// IsLocal reports whether the source is a file on disk.
func (r *Reader) IsLocal() bool {
	return LocalPath(r.URL) != ""
}

// LocalPath returns the file path of a local source, or "".
func LocalPath(raw string) string {
	if strings.HasPrefix(raw, "file://") {
		u, err := url.Parse(raw)
		if err != nil {
			return strings.TrimPrefix(raw, "file://")
		}
		return u.Path
	}
	if raw == "" || strings.Contains(raw, "://") {
		return ""
	}
	return raw
}

// Fetch returns the TSV text. With bypass set, a _ts parameter defeats
// intermediate caches. A failed attempt is retried once after RetryDelay
// unless it timed out or ctx was cancelled.
func (r *Reader) Fetch(ctx context.Context, bypass bool) (string, error) {
	if p := LocalPath(r.URL); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", p, err)
		}
		logging.RemoteDebug("read %d bytes from %s", len(b), p)
		return string(b), nil
	}

	target := r.URL
	if bypass {
		busted, err := cacheBust(target, r.now())
		if err != nil {
			return "", err
		}
		target = busted
	}

	const attempts = 2
	var lastErr error
	for i := 0; i < attempts; i++ {
		text, err := r.fetchOnce(ctx, target)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if isTimeout(err) || ctx.Err() != nil {
			break
		}
		if i < attempts-1 {
			logging.RemoteWarn("TSV fetch failed, retrying: %v", err)
			if !sleep(ctx, r.retryDelay()) {
				break
			}
		}
	}
	return "", lastErr
}

func (r *Reader) fetchOnce(ctx context.Context, target string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := r.client().Do(req)
	if err != nil {
		return "", classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", fmt.Errorf("%w: TSV no disponible (%d)", ErrHTTPStatus, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", classify(err)
	}
	logging.RemoteDebug("fetched %d bytes (status %d)", len(body), resp.StatusCode)
	return string(body), nil
}

func (r *Reader) client() *http.Client {
	if r.Client != nil {
		return r.Client
	}
	return http.DefaultClient
}

func (r *Reader) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return DefaultTimeout
}

func (r *Reader) retryDelay() time.Duration {
	if r.RetryDelay > 0 {
		return r.RetryDelay
	}
	return DefaultRetryDelay
}

func (r *Reader) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func cacheBust(raw string, at time.Time) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse source url: %w", err)
	}
	q := u.Query()
	q.Set("_ts", strconv.FormatInt(at.UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// classify wraps a client error as ErrTimeout or ErrTransport.
func classify(err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
