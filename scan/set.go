// Package scan plans and executes queries against the row-key space: filter
// translation into UID terms, tiered rollup-then-raw scanning, and the salt
// bucket fan-out that reassembles one logical scan from many physical ones.
package scan

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tesseradb/tessera/logger"
	"github.com/tesseradb/tessera/rollup"
	"github.com/tesseradb/tessera/schema"
	"github.com/tesseradb/tessera/storage"
)

var (
	// ErrClosed is returned by FetchNext on a closed scanner set.
	ErrClosed = errors.New("scan: scanner set closed")

	// ErrFetchInProgress is returned when FetchNext is called before the
	// previous call has returned. The set serves one fetch at a time.
	ErrFetchInProgress = errors.New("scan: a fetch is already outstanding")
)

// State tracks a scanner set's lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateScanning
	StateComplete
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateScanning:
		return "scanning"
	case StateComplete:
		return "complete"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Query describes one scan request. Start and End are unix seconds, Start
// inclusive and End inclusive; scans fetch whole row spans covering both.
type Query struct {
	Metric string

	// Filter is the tag filter tree, nil to match every series of the metric.
	Filter Filter

	Start int64
	End   int64

	// Interval is the requested downsample granularity in seconds. When
	// positive and a rollup catalog is configured, rollup tables whose
	// granularity evenly divides it are tried coarsest first. Zero scans only
	// raw data.
	Interval int64

	// SkipDefaultRollup leaves the catalog's default interval out of the tier
	// list.
	SkipDefaultRollup bool

	// ExplicitTags asserts the filter names every tag of the wanted series,
	// enabling exact-key lookups and exact tag-count matching.
	ExplicitTags bool
}

// Validate checks the query shape.
func (q Query) Validate() error {
	if q.Metric == "" {
		return errors.New("scan: query needs a metric")
	}
	if q.End <= q.Start {
		return errors.New("scan: query end must be after start")
	}
	if q.Start < 0 || q.Interval < 0 {
		return errors.New("scan: negative time parameters")
	}
	return nil
}

// Executor builds scanner sets over one schema and store pair. A single
// executor serves many concurrent queries and owns the shared metrics.
type Executor struct {
	schema  *schema.Schema
	store   storage.Store
	config  Config
	logger  *zap.Logger
	metrics *setMetrics
}

// NewExecutor validates the configuration and builds an executor.
func NewExecutor(sc *schema.Schema, store storage.Store, config Config) (*Executor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Executor{
		schema:  sc,
		store:   store,
		config:  config,
		logger:  zap.NewNop(),
		metrics: newSetMetrics(),
	}, nil
}

// WithLogger sets the logger used by scanner sets built from this executor.
func (e *Executor) WithLogger(log *zap.Logger) {
	e.logger = log.With(zap.String("service", "scan"))
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (e *Executor) PrometheusCollectors() []prometheus.Collector {
	return e.metrics.PrometheusCollectors()
}

// NewScannerSet prepares a scanner set for one query. Nothing is resolved or
// scanned until the first FetchNext.
func (e *Executor) NewScannerSet(q Query) (*ScannerSet, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return &ScannerSet{
		schema:  e.schema,
		store:   e.store,
		config:  e.config,
		query:   q,
		logger:  e.logger,
		metrics: e.metrics,
		quit:    make(chan struct{}),
		open:    make(map[storage.Scanner]struct{}),
	}, nil
}

// Execute runs a query to completion and closes the scanner set.
func (e *Executor) Execute(ctx context.Context, q Query) (*Result, error) {
	ss, err := e.NewScannerSet(q)
	if err != nil {
		return nil, err
	}
	defer ss.Close()

	res, err := ss.FetchNext(ctx)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &Result{}
	}
	return res, nil
}

// tier is one storage source to try: a rollup table, or the raw table when
// interval is nil.
type tier struct {
	interval *rollup.Interval
	table    string
}

// ScannerSet drives one query. Per tier it fans one scanner out per salt
// bucket, waits for all of them, then either delivers the tier's series or
// falls back to the next finer tier when the coarser one held nothing.
type ScannerSet struct {
	schema  *schema.Schema
	store   storage.Store
	config  Config
	query   Query
	logger  *zap.Logger
	metrics *setMetrics
	quit    chan struct{}

	mu       sync.Mutex
	state    State
	fetching bool
	failed   error
	plan     *plan
	tiers    []tier
	tierIdx  int
	open     map[storage.Scanner]struct{}
}

// State returns the current lifecycle state.
func (ss *ScannerSet) State() State {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.state
}

// FetchNext resolves the query on first call and scans tiers until one yields
// series or every tier is exhausted. It returns the accepted tier's result,
// then nil on subsequent calls. The first error is latched and returned from
// then on. Only one FetchNext may be outstanding at a time.
func (ss *ScannerSet) FetchNext(ctx context.Context) (*Result, error) {
	ss.mu.Lock()
	switch {
	case ss.state == StateClosed:
		ss.mu.Unlock()
		return nil, ErrClosed
	case ss.fetching:
		ss.mu.Unlock()
		return nil, ErrFetchInProgress
	case ss.failed != nil:
		err := ss.failed
		ss.mu.Unlock()
		return nil, err
	case ss.state == StateComplete:
		ss.mu.Unlock()
		return nil, nil
	}
	ss.fetching = true
	needInit := ss.state == StateUninitialized
	ss.mu.Unlock()

	defer func() {
		ss.mu.Lock()
		ss.fetching = false
		ss.mu.Unlock()
	}()

	if needInit {
		if err := ss.init(ctx); err != nil {
			return nil, ss.fail(err)
		}
	}

	ss.mu.Lock()
	if ss.plan.matchesNothing {
		ss.state = StateComplete
		ss.mu.Unlock()
		return &Result{}, nil
	}
	ss.state = StateScanning
	ss.mu.Unlock()

	for {
		ss.mu.Lock()
		if ss.state == StateClosed {
			ss.mu.Unlock()
			return nil, ErrClosed
		}
		if ss.tierIdx >= len(ss.tiers) {
			ss.state = StateComplete
			ss.mu.Unlock()
			return nil, nil
		}
		t := ss.tiers[ss.tierIdx]
		ss.mu.Unlock()

		res, err := ss.scanTier(ctx, t)
		if err != nil {
			if err == ErrClosed {
				return nil, ErrClosed
			}
			return nil, ss.fail(err)
		}

		ss.mu.Lock()
		if ss.state == StateClosed {
			ss.mu.Unlock()
			return nil, ErrClosed
		}
		ss.tierIdx++
		if res.Empty() && ss.tierIdx < len(ss.tiers) {
			ss.mu.Unlock()
			ss.metrics.Fallbacks.Inc()
			ss.logger.Debug("tier returned no series, falling back",
				zap.String("metric", ss.query.Metric),
				zap.String("table", t.table))
			continue
		}
		ss.state = StateComplete
		ss.mu.Unlock()

		ss.metrics.SeriesReturned.Add(float64(len(res.Series)))
		return res, nil
	}
}

// init resolves the query's metric and filters and lays out the tier list.
func (ss *ScannerSet) init(ctx context.Context) error {
	p, err := buildPlan(ctx, ss.schema, &ss.query, ss.config)
	if err != nil {
		return err
	}
	ss.mu.Lock()
	ss.plan = p
	ss.tiers = ss.buildTiers()
	ss.state = StateInitialized
	ss.mu.Unlock()
	return nil
}

// buildTiers orders the storage sources to try: matching rollup intervals
// coarsest first, then raw data. The catalog's default interval stands for
// raw resolution stored under its own table. Without fallback only the
// coarsest tier survives.
func (ss *ScannerSet) buildTiers() []tier {
	var tiers []tier
	if rc := ss.schema.Rollups(); rc != nil && ss.query.Interval > 0 {
		for _, iv := range rc.GetRollupIntervals(ss.query.Interval, ss.query.SkipDefaultRollup) {
			if iv.Default {
				tiers = append(tiers, tier{table: iv.Table})
			} else {
				tiers = append(tiers, tier{interval: iv, table: iv.Table})
			}
		}
	}
	if n := len(tiers); n == 0 || tiers[n-1].interval != nil {
		tiers = append(tiers, tier{table: ss.schema.Table()})
	}
	if !ss.config.RollupFallback {
		tiers = tiers[:1]
	}
	return tiers
}

// scanTier fans one scanner out per salt bucket and waits for every one of
// them. The first scanner error cancels the rest.
func (ss *ScannerSet) scanTier(ctx context.Context, t tier) (*Result, error) {
	acc := newAccumulator(ss)

	label := "raw"
	if t.interval != nil {
		label = "rollup"
	}

	log, end := logger.NewOperation(ss.logger, "Scanning tier", "tier_scan",
		zap.String("metric", ss.query.Metric),
		zap.String("table", t.table))
	defer end()

	var buckets map[int][]storage.ScanSpec
	if ss.plan.canMultiGet(&ss.query, ss.config) {
		buckets = ss.multiGetSpecs(t)
	} else {
		buckets = make(map[int][]storage.ScanSpec, ss.schema.SaltBuckets())
		for b := 0; b < ss.schema.SaltBuckets(); b++ {
			buckets[b] = []storage.ScanSpec{ss.rangeSpec(t, b)}
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for bucket, specs := range buckets {
		bs := &bucketScanner{set: ss, bucket: bucket, specs: specs, acc: acc}
		ss.metrics.ScannersStarted.WithLabelValues(label).Inc()
		g.Go(func() error { return bs.run(ctx) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	res := acc.result(t.interval)
	log.Debug("tier scanned",
		zap.Int("rows", res.ScannedRows),
		zap.Int("series", len(res.Series)))
	return res, nil
}

func (ss *ScannerSet) fail(err error) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.state == StateClosed {
		return ErrClosed
	}
	if ss.failed == nil {
		ss.failed = err
	}
	ss.state = StateComplete
	ss.logger.Warn("query failed",
		zap.String("metric", ss.query.Metric),
		zap.Error(err))
	return err
}

// Close releases the set. In-flight scans observe the closure between pages
// and abandon their work; partial results are discarded.
func (ss *ScannerSet) Close() error {
	ss.mu.Lock()
	if ss.state == StateClosed {
		ss.mu.Unlock()
		return nil
	}
	ss.state = StateClosed
	close(ss.quit)
	open := make([]storage.Scanner, 0, len(ss.open))
	for sc := range ss.open {
		open = append(open, sc)
	}
	ss.mu.Unlock()

	var errs *multierror.Error
	for _, sc := range open {
		if ss.releaseScanner(sc) {
			errs = multierror.Append(errs, sc.Close())
		}
	}
	return errs.ErrorOrNil()
}

func (ss *ScannerSet) trackScanner(sc storage.Scanner) {
	ss.mu.Lock()
	ss.open[sc] = struct{}{}
	ss.mu.Unlock()
}

// releaseScanner removes sc from the open set, reporting whether the caller
// now owns the Close call.
func (ss *ScannerSet) releaseScanner(sc storage.Scanner) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if _, ok := ss.open[sc]; !ok {
		return false
	}
	delete(ss.open, sc)
	return true
}

func (ss *ScannerSet) isClosed() bool {
	select {
	case <-ss.quit:
		return true
	default:
		return false
	}
}
