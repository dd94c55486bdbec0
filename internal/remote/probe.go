package remote

import (
	"context"
	"net/http"
	"time"

	"cardcat/internal/logging"
)

// Connectivity answers whether the network is usable right now.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// Static is a fixed connectivity answer.
type Static bool

// Online implements Connectivity.
func (s Static) Online(context.Context) bool { return bool(s) }

// Prober checks connectivity with a HEAD request. Any HTTP answer counts as
// online; only a transport failure counts as offline.
type Prober struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

// Online implements Connectivity. An empty URL is always online.
func (p *Prober) Online(ctx context.Context) bool {
	if p.URL == "" {
		return true
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		logging.RemoteDebug("probe %s: offline (%v)", p.URL, err)
		return false
	}
	resp.Body.Close()
	return true
}
