package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"cardcat/internal/logging"
)

// Actions understood by the write endpoint.
const (
	ActionAdd    = "add"
	ActionUpdate = "update"
)

// Payload is the body of a write. Data is keyed by literal header text.
type Payload struct {
	Action   string            `json:"action"`
	RowIndex string            `json:"rowIndex"`
	ID       string            `json:"id"`
	Data     map[string]string `json:"data"`
}

// Response is the answer of the write endpoint.
type Response struct {
	OK    bool   `json:"ok"`
	Msg   string `json:"msg,omitempty"`
	Error string `json:"error,omitempty"`

	Status int    `json:"-"`
	Text   string `json:"-"`
}

// Writer posts rows to the web app. The body is JSON but the content type
// is text/plain so that the request stays a simple one.
type Writer struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

// NewWriter returns a Writer with the default timeout.
func NewWriter(rawURL string) *Writer {
	return &Writer{URL: rawURL, Client: http.DefaultClient, Timeout: DefaultTimeout}
}

// Post sends p. The Response is filled as far as the answer allowed even
// when an error is returned.
func (w *Writer) Post(ctx context.Context, p Payload) (Response, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return Response{}, fmt.Errorf("encode payload: %w", err)
	}

	timeout := w.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	logging.RemoteDebug("POST %s action=%s rowIndex=%q id=%s", w.URL, p.Action, p.RowIndex, p.ID)
	resp, err := client.Do(req)
	if err != nil {
		return Response{}, classify(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Response{Status: resp.StatusCode}, classify(err)
	}
	return decodeResponse(resp.StatusCode, string(raw))
}

func decodeResponse(status int, text string) (Response, error) {
	var out Response
	parseErr := json.Unmarshal([]byte(text), &out)
	if parseErr != nil {
		out = Response{}
	}
	out.Status = status
	out.Text = text

	switch {
	case status < 200 || status > 299:
		out.OK = false
		return out, fmt.Errorf("%w: HTTP %d", ErrHTTPStatus, status)
	case parseErr != nil:
		if msg, signIn := inferError(text); signIn {
			return out, fmt.Errorf("%w: %w: %s", ErrMalformedResponse, ErrSignIn, msg)
		} else if msg != "" {
			return out, fmt.Errorf("%w: %s", ErrMalformedResponse, msg)
		}
		return out, fmt.Errorf("%w: %v", ErrMalformedResponse, parseErr)
	case !out.OK:
		msg := out.Error
		if msg == "" {
			msg = out.Msg
		}
		if msg == "" {
			msg = "Respuesta no válida del servidor."
		}
		return out, fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	return out, nil
}

var signInWords = []string{"sign in", "cuenta", "login"}

// inferError explains a non-JSON answer. It reports signIn when the answer
// is an HTML document that looks like a login page.
func inferError(text string) (msg string, signIn bool) {
	lower := strings.ToLower(text)
	if lower == "" {
		return "", false
	}
	if isHTMLDocument(text) {
		for _, w := range signInWords {
			if strings.Contains(lower, w) {
				return "El WebApp parece requerir permisos (devuelve HTML de login).", true
			}
		}
	}
	if strings.Contains(lower, "error") && strings.Contains(lower, "jsonp") {
		return "Error cargando JSONP (URL mala o despliegue sin acceso).", false
	}
	return "", false
}

// isHTMLDocument reports whether text carries an <html> element.
func isHTMLDocument(text string) bool {
	z := html.NewTokenizer(strings.NewReader(text))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if string(name) == "html" {
				return true
			}
		}
	}
}
