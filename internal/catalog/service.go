// Package catalog runs the card catalog: it loads the spreadsheet snapshot
// (network first, then the local cache), serves searches over it and drives
// the save workflow.
//
// A Service owns the current dataset. Loads replace it wholesale and are
// coalesced, so concurrent callers share one fetch. Saves are serialized:
// while one is in flight a second one fails fast with ErrSaveInProgress.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"cardcat/internal/dataset"
	"cardcat/internal/filter"
	"cardcat/internal/format"
	"cardcat/internal/lists"
	"cardcat/internal/logging"
	"cardcat/internal/query"
	"cardcat/internal/remote"
	"cardcat/internal/schema"
	"cardcat/internal/store"
)

// Source yields the raw TSV snapshot.
type Source interface {
	Fetch(ctx context.Context, bypass bool) (string, error)
}

// Sink accepts row writes.
type Sink interface {
	Post(ctx context.Context, p remote.Payload) (remote.Response, error)
}

// Origin tells where a loaded dataset came from.
type Origin string

const (
	OriginFresh  Origin = "fresh"
	OriginCached Origin = "cached"
	OriginEmpty  Origin = "empty"
)

// StatusKind mirrors the status indicator.
type StatusKind string

const (
	StatusLoading StatusKind = "loading"
	StatusOK      StatusKind = "ok"
	StatusError   StatusKind = "error"
)

// Status is the last known state of the service.
type Status struct {
	Kind     StatusKind `json:"kind"`
	Text     string     `json:"text"`
	Origin   Origin     `json:"origin,omitempty"`
	Records  int        `json:"records"`
	LoadedAt time.Time  `json:"loaded_at,omitempty"`
	Saving   bool       `json:"saving"`
}

// LoadResult describes one load.
type LoadResult struct {
	Origin  Origin
	Dataset *dataset.Dataset
	// Label is the status text: "Listo", "Offline (cache hace 3 min)" or
	// "Error".
	Label string
	// CachedAt is when the cached payload was stored, for cached loads.
	CachedAt time.Time
	// FetchErr is why the network load failed, if it did.
	FetchErr error
}

// Options configure a Service.
type Options struct {
	Source Source
	// Sink is nil when no write endpoint is configured.
	Sink         Sink
	Store        store.KV
	Lists        *lists.Synchronizer
	Resolver     *schema.Resolver
	Parser       *query.Parser
	Connectivity remote.Connectivity
	Notifier     Notifier
	// IDPrefix prefixes generated record ids.
	IDPrefix string
	NewID    func() string
	Now      func() time.Time
}

// Service is the catalog. It is safe for concurrent use.
type Service struct {
	source   Source
	sink     Sink
	kv       store.KV
	lists    *lists.Synchronizer
	resolver *schema.Resolver
	parser   *query.Parser
	online   remote.Connectivity
	notifier Notifier
	idPrefix string
	newID    func() string
	now      func() time.Time

	holder dataset.Holder
	loads  singleflight.Group
	saving *semaphore.Weighted

	mu     sync.RWMutex
	status Status
}

// DefaultIDPrefix prefixes generated ids when none is configured.
const DefaultIDPrefix = "pkm_"

// New returns a Service. Source and Store are required.
func New(opts Options) (*Service, error) {
	if opts.Source == nil {
		return nil, errors.New("catalog: nil source")
	}
	if opts.Store == nil {
		return nil, errors.New("catalog: nil store")
	}
	s := &Service{
		source:   opts.Source,
		sink:     opts.Sink,
		kv:       opts.Store,
		lists:    opts.Lists,
		resolver: opts.Resolver,
		parser:   opts.Parser,
		online:   opts.Connectivity,
		notifier: opts.Notifier,
		idPrefix: opts.IDPrefix,
		newID:    opts.NewID,
		now:      opts.Now,
		saving:   semaphore.NewWeighted(1),
		status:   Status{Kind: StatusLoading, Text: "Cargando…"},
	}
	if s.lists == nil {
		s.lists = lists.New(opts.Store)
	}
	if s.resolver == nil {
		s.resolver = schema.MustCompile(schema.HeaderAliases)
	}
	if s.parser == nil {
		p, err := query.NewParser(schema.FieldAliases)
		if err != nil {
			return nil, err
		}
		s.parser = p
	}
	if s.online == nil {
		s.online = remote.Static(true)
	}
	if s.idPrefix == "" {
		s.idPrefix = DefaultIDPrefix
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Dataset returns the current snapshot, or nil before the first load.
func (s *Service) Dataset() *dataset.Dataset {
	return s.holder.Load()
}

// Lists returns the suggestion list synchronizer.
func (s *Service) Lists() *lists.Synchronizer {
	return s.lists
}

// CanWrite reports whether a write endpoint is configured.
func (s *Service) CanWrite() bool {
	return s.sink != nil
}

// Status returns the current status.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Service) setStatus(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.status)
	s.mu.Unlock()
}

// Load replaces the dataset. It tries the network first, then the cached
// payload, and only then gives up; it never returns an error. Concurrent
// calls with the same bypass flag share one load.
func (s *Service) Load(ctx context.Context, bypass bool) LoadResult {
	key := "load"
	if bypass {
		key = "load:bypass"
	}
	v, _, _ := s.loads.Do(key, func() (interface{}, error) {
		return s.load(ctx, bypass), nil
	})
	return v.(LoadResult)
}

func (s *Service) load(ctx context.Context, bypass bool) LoadResult {
	timer := logging.StartTimer(logging.CategoryLoad, "load")
	defer timer.Stop()
	s.setStatus(func(st *Status) { st.Kind, st.Text = StatusLoading, "Cargando…" })

	started := s.now()
	text, err := s.source.Fetch(ctx, bypass)
	if err == nil {
		var d *dataset.Dataset
		d, err = dataset.Parse(text, s.resolver, s.now())
		if err == nil {
			s.apply(ctx, d)
			s.writeCache(ctx, text)
			s.setStatus(func(st *Status) {
				*st = Status{Kind: StatusOK, Text: "Listo", Origin: OriginFresh, Records: d.Len(), LoadedAt: d.LoadedAt, Saving: st.Saving}
			})
			logging.Audit().Load(logging.AuditLoadFresh, "network", d.Len(), s.now().Sub(started))
			return LoadResult{Origin: OriginFresh, Dataset: d, Label: "Listo"}
		}
	}
	fetchErr := err
	logging.LoadWarn("TSV fetch failed: %v", fetchErr)

	if d, at, ok := s.readCache(ctx); ok {
		s.apply(ctx, d)
		label := format.CacheLabel(at, s.now())
		s.setStatus(func(st *Status) {
			*st = Status{Kind: StatusError, Text: label, Origin: OriginCached, Records: d.Len(), LoadedAt: d.LoadedAt, Saving: st.Saving}
		})
		s.notify(ctx, LevelInfo, "Cargado desde caché")
		logging.Audit().Load(logging.AuditLoadCached, "cache", d.Len(), s.now().Sub(started))
		return LoadResult{Origin: OriginCached, Dataset: d, Label: label, CachedAt: at, FetchErr: fetchErr}
	}

	s.setStatus(func(st *Status) {
		st.Kind, st.Text, st.Origin = StatusError, "Error", OriginEmpty
	})
	s.notify(ctx, LevelError, "No se pudo cargar (sin red y sin caché).")
	logging.Audit().Load(logging.AuditLoadEmpty, "none", 0, s.now().Sub(started))
	return LoadResult{Origin: OriginEmpty, Label: "Error", FetchErr: fetchErr}
}

// apply installs d and feeds the suggestion lists from it.
func (s *Service) apply(ctx context.Context, d *dataset.Dataset) {
	s.holder.Store(d)
	if err := s.lists.SyncDataset(ctx, d.Records, d.Index); err != nil {
		logging.LoadWarn("list sync failed: %v", err)
	}
}

func (s *Service) writeCache(ctx context.Context, text string) {
	err := s.kv.PutMany(ctx, map[string]string{
		store.KeyTSVCache:   text,
		store.KeyTSVCacheAt: strconv.FormatInt(s.now().UnixMilli(), 10),
	})
	if err != nil {
		logging.LoadWarn("cache write failed: %v", err)
	}
}

func (s *Service) readCache(ctx context.Context) (*dataset.Dataset, time.Time, bool) {
	text, ok, err := s.kv.Get(ctx, store.KeyTSVCache)
	if err != nil {
		logging.LoadWarn("cache read failed: %v", err)
		return nil, time.Time{}, false
	}
	if !ok || text == "" {
		return nil, time.Time{}, false
	}
	d, err := dataset.Parse(text, s.resolver, s.now())
	if err != nil {
		logging.LoadWarn("cache parse failed: %v", err)
		return nil, time.Time{}, false
	}
	var at time.Time
	if raw, ok, _ := s.kv.Get(ctx, store.KeyTSVCacheAt); ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms > 0 {
			at = time.UnixMilli(ms)
		}
	}
	return d, at, true
}

// SearchResult is the outcome of a search.
type SearchResult struct {
	Query   query.Query
	Records []dataset.Record
}

// Count is the number of matching records.
func (r SearchResult) Count() int { return len(r.Records) }

// Label is the result counter text.
func (r SearchResult) Label() string { return format.CountLabel(len(r.Records)) }

// Search filters the current dataset with a query. Without a loaded header
// the result is empty.
func (s *Service) Search(raw string) SearchResult {
	q := s.parser.Parse(raw)
	d := s.holder.Load()
	if !d.HasHeader() {
		return SearchResult{Query: q, Records: []dataset.Record{}}
	}
	out := filter.Rows(d.Records, q, d.Index, nil)
	logging.SearchDebug("search %q: %d/%d", raw, len(out), d.Len())
	return SearchResult{Query: q, Records: out}
}

// Record returns the record with the given id.
func (s *Service) Record(id string) (dataset.Record, int, bool) {
	d := s.holder.Load()
	pos, ok := d.FindByID(id)
	if !ok {
		return nil, 0, false
	}
	return d.Records[pos], pos, true
}

// FormFor pre-fills a form from the record with the given id, keyed by form
// field. The identity is not part of a form.
func (s *Service) FormFor(id string) (Form, error) {
	d := s.holder.Load()
	pos, ok := d.FindByID(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	form := make(Form, len(schema.FormFields))
	for _, f := range schema.FormFields {
		form[f] = d.Cell(pos, schema.FieldKey(f))
	}
	return form, nil
}
