package uid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tesseradb/tessera/models"
	"github.com/tesseradb/tessera/storage"
)

// UID table layout: the "id" family holds forward rows (name -> id) plus the
// counter row, the "name" family holds reverse rows (id -> name). Qualifiers
// are the namespace strings from Type.String. This layout is a wire contract
// shared with existing deployments.
var (
	idFamily   = []byte("id")
	nameFamily = []byte("name")
	counterRow = []byte{0}
)

// Authorizer decides whether a writer may trigger a UID assignment. The datum
// that provoked the assignment travels along for policy decisions.
type Authorizer interface {
	AllowUIDAssignment(ctx context.Context, t Type, name string, d models.Datum) error
}

type allowAll struct{}

func (allowAll) AllowUIDAssignment(context.Context, Type, string, models.Datum) error {
	return nil
}

// AllowAll returns an Authorizer that permits every assignment.
func AllowAll() Authorizer { return allowAll{} }

// Store resolves names to fixed-width ids and ids back to names, assigning
// new ids on demand. It is safe for concurrent use.
type Store struct {
	store  storage.Store
	config Config
	cache  *Cache
	clock  clock.Clock
	logger *zap.Logger

	metrics        *storeMetrics
	metricsEnabled bool

	randMu sync.Mutex
	rand   *rand.Rand

	// mu guards pending. An entry is inserted before any assignment I/O
	// starts and removed when the assignment settles, so at most one
	// assignment per (type, name) is ever in flight in this process.
	mu      sync.Mutex
	pending map[Type]map[string]*Assignment
}

// NewStore returns a Store backed by st. The configuration is fixed for the
// store's lifetime.
func NewStore(st storage.Store, config Config) *Store {
	s := &Store{
		store:          st,
		config:         config,
		cache:          NewCache(config.CacheSize),
		clock:          clock.New(),
		logger:         zap.NewNop(),
		metrics:        newStoreMetrics(),
		metricsEnabled: true,
		rand:           rand.New(rand.NewSource(time.Now().UnixNano())),
		pending:        make(map[Type]map[string]*Assignment, len(Types)),
	}
	for _, t := range Types {
		s.pending[t] = make(map[string]*Assignment)
	}
	return s
}

// WithLogger sets the logger on the store.
func (s *Store) WithLogger(log *zap.Logger) {
	s.logger = log.With(zap.String("service", "uid-store"))
}

// WithClock replaces the backoff clock. Intended for tests.
func (s *Store) WithClock(c clock.Clock) {
	s.clock = c
}

// DisableMetrics stops the store from recording prometheus metrics.
func (s *Store) DisableMetrics() {
	s.metricsEnabled = false
}

// PrometheusCollectors returns the collectors tracking this store.
func (s *Store) PrometheusCollectors() []prometheus.Collector {
	return s.metrics.PrometheusCollectors()
}

// Config returns the store's configuration.
func (s *Store) Config() Config { return s.config }

// Width returns the id width for a namespace.
func (s *Store) Width(t Type) int { return s.config.Width(t) }

// GetId looks up the id for a name. It has no side effects beyond cache
// population and returns a NotFoundError when no mapping exists.
func (s *Store) GetId(ctx context.Context, t Type, name string) ([]byte, error) {
	if id, ok := s.cache.Id(t, name); ok {
		s.trackCacheGet(t, "hit")
		return id, nil
	}
	s.trackCacheGet(t, "miss")

	v, err := s.store.Get(ctx, s.config.Table, []byte(name), idFamily, []byte(t.String()))
	if err != nil {
		return nil, errors.Wrapf(err, "uid: fetching id for %s %q", t, name)
	}
	if v == nil {
		return nil, &NotFoundError{Type: t, Name: name}
	}
	if len(v) != s.config.Width(t) {
		return nil, errors.Errorf("uid: corrupt forward mapping for %s %q: %d bytes, want %d",
			t, name, len(v), s.config.Width(t))
	}
	s.cache.Add(t, name, v)
	return v, nil
}

// GetName looks up the name for an id. It returns a NotFoundError when no
// mapping exists.
func (s *Store) GetName(ctx context.Context, t Type, id []byte) (string, error) {
	if len(id) != s.config.Width(t) {
		return "", errors.Errorf("uid: %s id must be %d bytes, got %d", t, s.config.Width(t), len(id))
	}
	if name, ok := s.cache.Name(t, id); ok {
		s.trackCacheGet(t, "hit")
		return name, nil
	}
	s.trackCacheGet(t, "miss")

	v, err := s.store.Get(ctx, s.config.Table, id, nameFamily, []byte(t.String()))
	if err != nil {
		return "", errors.Wrapf(err, "uid: fetching name for %s id", t)
	}
	if v == nil {
		return "", &NotFoundError{Type: t, ID: append([]byte(nil), id...)}
	}
	s.cache.Add(t, string(v), id)
	return string(v), nil
}

// GetOrCreateId returns the id for a name, assigning one if none exists yet.
// The result classifies failures: RETRY for transient conditions (assignment
// still in flight, attempts exhausted), REJECTED for validation or policy
// refusals, ERROR for storage failures.
func (s *Store) GetOrCreateId(ctx context.Context, auth Authorizer, t Type, name string, d models.Datum) IdOrError {
	id, err := s.GetId(ctx, t, name)
	if err == nil {
		return OKId(id)
	}
	if !IsNotFound(err) {
		return ErrorId(err)
	}

	if err := ValidateName(t, name, s.config.Charset(t)); err != nil {
		return RejectedId(err)
	}
	if auth == nil {
		auth = AllowAll()
	}
	if err := auth.AllowUIDAssignment(ctx, t, name, d); err != nil {
		return RejectedId(errors.Wrapf(err, "uid: assignment of %s %q denied", t, name))
	}

	s.mu.Lock()
	a, inFlight := s.pending[t][name]
	if !inFlight {
		a = newAssignment(t, name)
		s.pending[t][name] = a
		s.trackPending(t, 1)
	}
	s.mu.Unlock()

	if !inFlight {
		go a.run(s)
	}

	if s.config.AssignAndRetry {
		return RetryId(errors.Errorf("uid: assignment of %s %q in progress", t, name))
	}
	return a.Wait(ctx)
}

// GetOrCreateIds resolves many names of one namespace. Results preserve input
// order and fail independently: one name's failure does not affect the rest.
func (s *Store) GetOrCreateIds(ctx context.Context, auth Authorizer, t Type, names []string) []IdOrError {
	results := make([]IdOrError, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i] = s.GetOrCreateId(ctx, auth, t, name, models.Datum{})
		}(i, name)
	}
	wg.Wait()
	return results
}

// Suggest returns up to max names in a namespace starting with prefix, in
// lexicographic order. Used by operator tooling.
func (s *Store) Suggest(ctx context.Context, t Type, prefix string, max int) ([]string, error) {
	if max <= 0 {
		max = 25
	}
	spec := storage.ScanSpec{
		Table:  s.config.Table,
		Family: idFamily,
		Start:  []byte(prefix),
	}
	if prefix != "" {
		spec.Stop = prefixSuccessor([]byte(prefix))
	}
	sc, err := s.store.Scan(ctx, spec)
	if err != nil {
		return nil, errors.Wrap(err, "uid: suggest scan")
	}
	defer sc.Close()

	qualifier := t.String()
	var names []string
	for len(names) < max {
		rows, err := sc.Next(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "uid: suggest scan")
		}
		if rows == nil {
			break
		}
		for _, r := range rows {
			for _, c := range r.Cells {
				if string(c.Qualifier) == qualifier {
					names = append(names, string(r.Key))
					break
				}
			}
			if len(names) == max {
				break
			}
		}
	}
	return names, nil
}

// prefixSuccessor returns the smallest key greater than every key with the
// given prefix, or nil when the prefix is all 0xff.
func prefixSuccessor(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func (s *Store) trackCacheGet(t Type, status string) {
	if s.metricsEnabled {
		s.metrics.CacheGets.With(prometheus.Labels{"kind": t.String(), "status": status}).Inc()
	}
}

func (s *Store) trackPending(t Type, delta float64) {
	if s.metricsEnabled {
		s.metrics.Pending.With(prometheus.Labels{"kind": t.String()}).Add(delta)
	}
}

func (s *Store) trackAssignment(t Type, st State) {
	if s.metricsEnabled {
		s.metrics.Assignments.With(prometheus.Labels{"kind": t.String(), "result": st.String()}).Inc()
	}
}

func (s *Store) trackRace(t Type) {
	if s.metricsEnabled {
		s.metrics.Races.With(prometheus.Labels{"kind": t.String()}).Inc()
	}
}

// randomID draws a random non-zero id of the namespace's width.
func (s *Store) randomID(t Type) []byte {
	width := s.config.Width(t)
	for {
		s.randMu.Lock()
		v := s.rand.Uint64()
		s.randMu.Unlock()
		if width < 8 {
			v &= 1<<(uint(width)*8) - 1
		}
		if v == 0 {
			continue
		}
		id, _ := FromLong(v, width)
		return id
	}
}
