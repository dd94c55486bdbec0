// Package server exposes the catalog over HTTP: search, record lookup,
// saves, reloads, suggestion lists, status and metrics. When an asset
// handler is configured it is mounted on / for everything else.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"cardcat/internal/catalog"
	"cardcat/internal/dataset"
	"cardcat/internal/dupe"
	"cardcat/internal/format"
	"cardcat/internal/logging"
	"cardcat/internal/remote"
	"cardcat/internal/schema"
)

// maxRequestBodySize limits POST bodies.
const maxRequestBodySize = 1 << 20

const shutdownTimeout = 5 * time.Second

// Server is the HTTP front of a catalog.Service.
type Server struct {
	svc     *catalog.Service
	assets  http.Handler
	metrics *Metrics
	mux     *http.ServeMux
	opts    format.Options
}

// Option configures a Server.
type Option func(*Server)

// WithAssets mounts h on / for requests no API route matches.
func WithAssets(h http.Handler) Option { return func(s *Server) { s.assets = h } }

// WithMetrics uses m instead of a fresh Metrics.
func WithMetrics(m *Metrics) Option { return func(s *Server) { s.metrics = m } }

// New builds the route table for svc.
func New(svc *catalog.Service, opts ...Option) *Server {
	s := &Server{svc: svc, mux: http.NewServeMux()}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(svc)
	}

	s.handle("GET /healthz", s.handleHealth)
	s.handle("GET /api/status", s.handleStatus)
	s.handle("GET /api/records", s.handleSearch)
	s.handle("GET /api/records/{id}", s.handleRecord)
	s.handle("POST /api/records", s.handleSave)
	s.handle("POST /api/reload", s.handleReload)
	s.handle("GET /api/lists", s.handleLists)
	s.mux.Handle("GET /metrics", s.metrics.Handler())
	if s.assets != nil {
		s.mux.Handle("/", s.metrics.instrument("assets", s.assets))
	}
	return s
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, s.metrics.instrument(pattern, h))
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Run listens on addr and serves until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	errCh := make(chan error, 1)
	go func() {
		logging.Server("listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		<-errCh
		logging.Server("stopped")
		return err
	}
}

// RecordView is a record as served over HTTP.
type RecordView struct {
	ID       string            `json:"id"`
	RowIndex string            `json:"row_index,omitempty"`
	Fields   map[string]string `json:"fields"`
	Cells    []string          `json:"cells"`
}

func (s *Server) view(d *dataset.Dataset, row dataset.Record, rowIndex string) RecordView {
	fields := make(map[string]string, d.Index.Len())
	for _, k := range d.Index.Keys() {
		if v := d.Index.Cell(row, k); v != "" {
			fields[string(k)] = v
		}
	}
	return RecordView{
		ID:       d.Index.Cell(row, schema.KeyID),
		RowIndex: rowIndex,
		Fields:   fields,
		Cells:    format.Row(row, d.Index, s.opts),
	}
}

// request scopes notices to one HTTP exchange.
func request(r *http.Request) (context.Context, *catalog.Recorder) {
	rec := &catalog.Recorder{}
	return catalog.WithNotifier(r.Context(), rec), rec
}

func notices(rec *catalog.Recorder) []catalog.Notice {
	n := rec.Notices()
	if n == nil {
		return []catalog.Notice{}
	}
	return n
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	catalog.Status
	CanWrite bool `json:"can_write"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: s.svc.Status(), CanWrite: s.svc.CanWrite()})
}

type searchResponse struct {
	Query string `json:"query"`
	// Normalized is the query as understood: recognized predicates first,
	// then the free text.
	Normalized string       `json:"normalized"`
	Count   int          `json:"count"`
	Label   string       `json:"label"`
	Columns []string     `json:"columns"`
	Records []RecordView `json:"records"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("q")
	res := s.svc.Search(raw)
	d := s.svc.Dataset()

	resp := searchResponse{
		Query:      raw,
		Normalized: res.Query.String(),
		Count:      res.Count(),
		Label:      res.Label(),
		Columns:    make([]string, len(schema.TableColumns)),
		Records:    make([]RecordView, 0, res.Count()),
	}
	for i, c := range schema.TableColumns {
		resp.Columns[i] = c.Label
	}
	for _, row := range res.Records {
		resp.Records = append(resp.Records, s.view(d, row, ""))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	row, pos, ok := s.svc.Record(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "No encontré la carta.", nil)
		return
	}
	d := s.svc.Dataset()
	writeJSON(w, http.StatusOK, s.view(d, row, strconv.Itoa(dataset.RowNumber(pos))))
}

type saveRequest struct {
	Form   catalog.Form `json:"form"`
	EditID string       `json:"edit_id"`
	// Resolution answers a duplicate: merge, duplicate or discard. Empty
	// means the client has not been asked yet.
	Resolution string `json:"resolution"`
}

type collisionView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Num         string `json:"num"`
	Set         string `json:"set"`
	Language    string `json:"language"`
	Quantity    string `json:"quantity"`
	Description string `json:"description"`
}

type saveResponse struct {
	Action    string           `json:"action,omitempty"`
	ID        string           `json:"id,omitempty"`
	RowIndex  string           `json:"row_index,omitempty"`
	Message   string           `json:"message,omitempty"`
	Merge     *catalog.Merge   `json:"merge,omitempty"`
	Discarded bool             `json:"discarded,omitempty"`
	Records   int              `json:"records"`
	Notices   []catalog.Notice `json:"notices"`
}

// errUnanswered marks a collision the client still has to resolve.
var errUnanswered = errors.New("duplicate needs an answer")

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body", nil)
		return
	}

	var resolver dupe.Resolver = dupe.Fixed(dupe.ParseResolution(req.Resolution))
	unanswered := false
	if req.Resolution == "" {
		resolver = dupe.ResolverFunc(func(context.Context, dupe.Collision) (dupe.Resolution, error) {
			unanswered = true
			return dupe.Discard, errUnanswered
		})
	}

	ctx, rec := request(r)
	res, err := s.svc.Save(ctx, catalog.SaveRequest{Form: req.Form, EditID: req.EditID, Resolver: resolver})

	if unanswered && res.Collision != nil {
		s.metrics.save("collision")
		c := res.Collision
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "duplicate",
			"collision": collisionView{
				ID: c.ID, Name: c.Name, Num: c.Num, Set: c.Set, Language: c.Language,
				Quantity: c.Quantity, Description: c.Describe(),
			},
			"notices": []catalog.Notice{},
		})
		return
	}

	if errors.Is(err, catalog.ErrDiscarded) {
		s.metrics.save("discarded")
		writeJSON(w, http.StatusOK, saveResponse{Discarded: true, Records: s.svc.Dataset().Len(), Notices: notices(rec)})
		return
	}
	if err != nil {
		status, code := saveErrorStatus(err)
		s.metrics.save(code)
		var field map[string]any
		var ve *catalog.ValidationError
		if errors.As(err, &ve) {
			field = map[string]any{"field": ve.Field}
		}
		writeError(w, status, code, err.Error(), notices(rec), field)
		return
	}

	s.metrics.save(res.Action)
	if res.Reload != nil {
		s.metrics.load(res.Reload.Origin)
	}
	writeJSON(w, http.StatusOK, saveResponse{
		Action:   res.Action,
		ID:       res.ID,
		RowIndex: res.RowIndex,
		Message:  res.Message,
		Merge:    res.Merge,
		Records:  s.svc.Dataset().Len(),
		Notices:  notices(rec),
	})
}

func saveErrorStatus(err error) (int, string) {
	var ve *catalog.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, "invalid"
	case errors.Is(err, catalog.ErrSaveInProgress):
		return http.StatusLocked, "in_progress"
	case errors.Is(err, catalog.ErrOffline):
		return http.StatusServiceUnavailable, "offline"
	case errors.Is(err, catalog.ErrReadOnly):
		return http.StatusForbidden, "read_only"
	case errors.Is(err, catalog.ErrNoHeader):
		return http.StatusServiceUnavailable, "no_header"
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, catalog.ErrUnlocated):
		return http.StatusConflict, "unlocated"
	case errors.Is(err, remote.ErrSignIn):
		return http.StatusBadGateway, "sign_in"
	case errors.Is(err, remote.ErrRejected):
		return http.StatusBadGateway, "rejected"
	case errors.Is(err, remote.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusBadGateway, "write_failed"
	}
}

type reloadResponse struct {
	Origin  catalog.Origin   `json:"origin"`
	Label   string           `json:"label"`
	Records int              `json:"records"`
	Notices []catalog.Notice `json:"notices"`
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	ctx, rec := request(r)
	res := s.svc.Load(ctx, true)
	s.metrics.load(res.Origin)
	writeJSON(w, http.StatusOK, reloadResponse{
		Origin:  res.Origin,
		Label:   res.Label,
		Records: res.Dataset.Len(),
		Notices: notices(rec),
	})
}

func (s *Server) handleLists(w http.ResponseWriter, r *http.Request) {
	all, err := s.svc.Lists().All(r.Context())
	if err != nil {
		logging.Get(logging.CategoryServer).Error("lists: %v", err)
		writeError(w, http.StatusInternalServerError, "store", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

// writeJSON marshals v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Get(logging.CategoryServer).Warn("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string, n []catalog.Notice, extra ...map[string]any) {
	body := map[string]any{"error": code, "message": msg}
	if n != nil {
		body["notices"] = n
	}
	for _, e := range extra {
		for k, v := range e {
			body[k] = v
		}
	}
	writeJSON(w, status, body)
}
