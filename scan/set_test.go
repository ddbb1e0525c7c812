package scan_test

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseradb/tessera/models"
	"github.com/tesseradb/tessera/rollup"
	"github.com/tesseradb/tessera/scan"
	"github.com/tesseradb/tessera/schema"
	"github.com/tesseradb/tessera/storage"
	"github.com/tesseradb/tessera/storage/memstore"
	"github.com/tesseradb/tessera/uid"
)

const rollupTable = "tsdb-rollup-1h"

type fixture struct {
	store  *memstore.Store
	schema *schema.Schema
	exec   *scan.Executor
}

func hourlyCatalog(t *testing.T) *rollup.Config {
	t.Helper()
	rc, err := rollup.New(rollup.Catalog{Intervals: []rollup.Interval{
		{Name: "1h", Seconds: 3600, Span: rollup.SpanDay, Table: rollupTable},
	}})
	require.NoError(t, err)
	return rc
}

func newFixture(t *testing.T, rollups *rollup.Config, mutateSchema func(*schema.Config), mutateScan func(*scan.Config)) *fixture {
	t.Helper()

	uidConfig := uid.NewConfig()
	store := memstore.New(uidConfig.Table, schema.DefaultTable, rollupTable)

	uids := uid.NewStore(store, uidConfig)
	uids.DisableMetrics()

	sc := schema.NewConfig()
	if rollups != nil {
		sc.RollupsEnabled = true
		sc.RollupCatalog = "rollups.yaml"
	}
	if mutateSchema != nil {
		mutateSchema(&sc)
	}
	sch, err := schema.New(sc, uids, rollups)
	require.NoError(t, err)

	cfg := scan.NewConfig()
	if mutateScan != nil {
		mutateScan(&cfg)
	}
	exec, err := scan.NewExecutor(sch, store, cfg)
	require.NoError(t, err)

	return &fixture{store: store, schema: sch, exec: exec}
}

// putPoint writes one datapoint cell under the row key the schema produces.
func (fx *fixture) putPoint(t *testing.T, table string, iv *rollup.Interval, metric string, tags map[string]string, ts int64) []byte {
	t.Helper()
	ctx := context.Background()

	r := fx.schema.CreateRowKey(ctx, nil, models.NewDatum(metric, tags, ts, nil), iv)
	require.NoError(t, r.Err)
	require.Equal(t, uid.StateOK, r.State)

	qual := []byte{byte(ts >> 8), byte(ts)}
	require.NoError(t, fx.store.Put(ctx, table, r.Id, []byte("t"), qual, []byte{0x2A}))
	return r.Id
}

// hostsOf resolves each result series back to strings and returns the sorted
// host tag values.
func hostsOf(t *testing.T, fx *fixture, res *scan.Result) []string {
	t.Helper()
	var hosts []string
	for _, sr := range res.Series {
		id, err := fx.schema.ResolveTSUID(context.Background(), sr.TSUID)
		require.NoError(t, err)
		h, _ := id.Tags.Get("host")
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

func TestExecutor_RawScan_GroupsSeries(t *testing.T) {
	fx := newFixture(t, nil, nil, nil)
	ctx := context.Background()

	// web01 spans two row keys, web02 one; the noise metric must not surface.
	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web01"}, 1500000000)
	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web01"}, 1500003600)
	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web02"}, 1500000000)
	fx.putPoint(t, schema.DefaultTable, nil, "sys.mem.free", map[string]string{"host": "web01"}, 1500000000)

	res, err := fx.exec.Execute(ctx, scan.Query{
		Metric: "sys.cpu.user",
		Start:  1500000000,
		End:    1500007200,
	})
	require.NoError(t, err)
	require.Len(t, res.Series, 2)
	assert.Equal(t, []string{"web01", "web02"}, hostsOf(t, fx, res))
	assert.Nil(t, res.Interval)

	// Rows of one series are grouped under a single entry.
	var web01 *scan.SeriesRows
	for _, sr := range res.Series {
		id, err := fx.schema.ResolveTSUID(ctx, sr.TSUID)
		require.NoError(t, err)
		if h, _ := id.Tags.Get("host"); h == "web01" {
			web01 = sr
		}
	}
	require.NotNil(t, web01)
	assert.Len(t, web01.Rows, 2)
	assert.Equal(t, int64(3), res.DataPoints)

	// A window with no data is an empty result, not an error.
	empty, err := fx.exec.Execute(ctx, scan.Query{
		Metric: "sys.cpu.user",
		Start:  1600000000,
		End:    1600003600,
	})
	require.NoError(t, err)
	assert.True(t, empty.Empty())
}

func TestScannerSet_FetchNextLifecycle(t *testing.T) {
	fx := newFixture(t, nil, nil, nil)
	ctx := context.Background()

	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web01"}, 1500000000)

	ss, err := fx.exec.NewScannerSet(scan.Query{Metric: "sys.cpu.user", Start: 1500000000, End: 1500003600})
	require.NoError(t, err)
	require.Equal(t, scan.StateUninitialized, ss.State())

	res, err := ss.FetchNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Len(t, res.Series, 1)
	require.Equal(t, scan.StateComplete, ss.State())

	// Exhausted.
	res, err = ss.FetchNext(ctx)
	require.NoError(t, err)
	require.Nil(t, res)

	require.NoError(t, ss.Close())
	require.Equal(t, scan.StateClosed, ss.State())
	require.NoError(t, ss.Close(), "close is idempotent")

	_, err = ss.FetchNext(ctx)
	require.ErrorIs(t, err, scan.ErrClosed)
}

func TestScannerSet_LiteralOrFilter(t *testing.T) {
	fx := newFixture(t, nil, nil, nil)

	for _, host := range []string{"web01", "web02", "web03", "db01"} {
		fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": host}, 1500000000)
	}

	res, err := fx.exec.Execute(context.Background(), scan.Query{
		Metric: "sys.cpu.user",
		Filter: &scan.LiteralOr{Key: "host", Values: []string{"web01", "web03"}},
		Start:  1500000000,
		End:    1500003600,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"web01", "web03"}, hostsOf(t, fx, res))
}

func TestScannerSet_UnknownLiteralMatchesNothing(t *testing.T) {
	fx := newFixture(t, nil, nil, nil)
	ctx := context.Background()

	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web01"}, 1500000000)

	// A literal value that was never assigned a UID cannot match stored data.
	res, err := fx.exec.Execute(ctx, scan.Query{
		Metric: "sys.cpu.user",
		Filter: &scan.LiteralOr{Key: "host", Values: []string{"no-such-host"}},
		Start:  1500000000,
		End:    1500003600,
	})
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Zero(t, res.ScannedRows, "short-circuited before touching storage")

	// Same for a tag key that does not exist.
	res, err = fx.exec.Execute(ctx, scan.Query{
		Metric: "sys.cpu.user",
		Filter: &scan.LiteralOr{Key: "nope", Values: []string{"web01"}},
		Start:  1500000000,
		End:    1500003600,
	})
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestScannerSet_UnknownMetricLatched(t *testing.T) {
	fx := newFixture(t, nil, nil, nil)
	ctx := context.Background()

	ss, err := fx.exec.NewScannerSet(scan.Query{Metric: "never.written", Start: 1, End: 2})
	require.NoError(t, err)

	_, err = ss.FetchNext(ctx)
	require.Error(t, err)
	require.True(t, uid.IsNotFound(err))

	// The first error is latched.
	_, again := ss.FetchNext(ctx)
	require.Equal(t, err, again)
}

func TestScannerSet_PostFilterRegexAndNot(t *testing.T) {
	fx := newFixture(t, nil, nil, nil)
	ctx := context.Background()

	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web01", "dc": "lga"}, 1500000000)
	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web02", "dc": "sjc"}, 1500000000)
	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web03", "dc": "sjc"}, 1500000000)

	re, err := scan.NewRegex("host", "web0[13]")
	require.NoError(t, err)
	res, err := fx.exec.Execute(ctx, scan.Query{
		Metric: "sys.cpu.user",
		Filter: re,
		Start:  1500000000,
		End:    1500003600,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"web01", "web03"}, hostsOf(t, fx, res))

	// NOT is never pushed down; rows come back and are re-checked.
	res, err = fx.exec.Execute(ctx, scan.Query{
		Metric: "sys.cpu.user",
		Filter: &scan.Chain{Filters: []scan.Filter{
			&scan.LiteralOr{Key: "host", Values: []string{"web01", "web02"}},
			&scan.Not{Filter: &scan.LiteralOr{Key: "dc", Values: []string{"lga"}}},
		}},
		Start: 1500000000,
		End:   1500003600,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"web02"}, hostsOf(t, fx, res))
}

// A NOT filter places no storage-level constraint: a series missing the tag
// entirely satisfies the inverted filter and must come back.
func TestScannerSet_NotFilterKeepsTaglessSeries(t *testing.T) {
	fx := newFixture(t, nil, nil, nil)
	ctx := context.Background()

	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web01"}, 1500000000)
	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web02", "dc": "lga"}, 1500000000)

	res, err := fx.exec.Execute(ctx, scan.Query{
		Metric: "sys.cpu.user",
		Filter: &scan.Not{Filter: &scan.LiteralOr{Key: "dc", Values: []string{"lga"}}},
		Start:  1500000000,
		End:    1500003600,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"web01"}, hostsOf(t, fx, res))
}

// A NOT over a tag key nothing ever wrote excludes nothing.
func TestScannerSet_NotFilterOnUnknownTagKey(t *testing.T) {
	fx := newFixture(t, nil, nil, nil)
	ctx := context.Background()

	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web01"}, 1500000000)

	res, err := fx.exec.Execute(ctx, scan.Query{
		Metric: "sys.cpu.user",
		Filter: &scan.Not{Filter: &scan.LiteralOr{Key: "nope", Values: []string{"x"}}},
		Start:  1500000000,
		End:    1500003600,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"web01"}, hostsOf(t, fx, res))
}

func TestScannerSet_RollupPreferred(t *testing.T) {
	fx := newFixture(t, hourlyCatalog(t), nil, nil)
	ctx := context.Background()

	iv, err := fx.schema.Rollups().GetRollupInterval("1h")
	require.NoError(t, err)

	// Data in both tiers: the coarser one wins and raw is never consulted.
	fx.putPoint(t, rollupTable, iv, "sys.cpu.user", map[string]string{"host": "web01"}, 1500000000)
	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web01"}, 1500000000)
	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web02"}, 1500000000)

	res, err := fx.exec.Execute(ctx, scan.Query{
		Metric:   "sys.cpu.user",
		Start:    1500000000,
		End:      1500003600,
		Interval: 3600,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Interval)
	assert.Equal(t, "1h", res.Interval.Name)
	assert.Equal(t, []string{"web01"}, hostsOf(t, fx, res), "web02 exists only in raw, which was not scanned")
}

// An empty rollup tier falls through to raw.
func TestScannerSet_RollupFallbackToRaw(t *testing.T) {
	fx := newFixture(t, hourlyCatalog(t), nil, nil)
	ctx := context.Background()

	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web01"}, 1500000000)

	res, err := fx.exec.Execute(ctx, scan.Query{
		Metric:   "sys.cpu.user",
		Start:    1500000000,
		End:      1500003600,
		Interval: 3600,
	})
	require.NoError(t, err)
	assert.Nil(t, res.Interval, "served from raw after the rollup tier came back empty")
	assert.Equal(t, []string{"web01"}, hostsOf(t, fx, res))
}

func TestScannerSet_NoFallbackWhenDisabled(t *testing.T) {
	fx := newFixture(t, hourlyCatalog(t), nil, func(c *scan.Config) {
		c.RollupFallback = false
	})
	ctx := context.Background()

	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web01"}, 1500000000)

	res, err := fx.exec.Execute(ctx, scan.Query{
		Metric:   "sys.cpu.user",
		Start:    1500000000,
		End:      1500003600,
		Interval: 3600,
	})
	require.NoError(t, err)
	assert.True(t, res.Empty(), "only the empty rollup tier was scanned")
}

// Salted layouts replicate every logical scan across all buckets; the results
// must reassemble into the same series set.
func TestScannerSet_SaltedBuckets(t *testing.T) {
	fx := newFixture(t, nil, func(c *schema.Config) {
		c.SaltWidth = 1
		c.SaltBuckets = 8
	}, nil)

	want := []string{"db01", "web01", "web02", "web03", "web04"}
	for _, host := range want {
		fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": host}, 1500000000)
	}

	res, err := fx.exec.Execute(context.Background(), scan.Query{
		Metric: "sys.cpu.user",
		Start:  1500000000,
		End:    1500003600,
	})
	require.NoError(t, err)
	assert.Equal(t, want, hostsOf(t, fx, res))
}

func TestScannerSet_FuzzyFilterPushdown(t *testing.T) {
	fx := newFixture(t, nil, nil, func(c *scan.Config) {
		c.FuzzyFilter = true
	})

	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web01"}, 3700)
	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web02"}, 3700)

	res, err := fx.exec.Execute(context.Background(), scan.Query{
		Metric: "sys.cpu.user",
		Filter: &scan.LiteralOr{Key: "host", Values: []string{"web01"}},
		Start:  3600,
		End:    7200,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"web01"}, hostsOf(t, fx, res))
	assert.Equal(t, 1, res.ScannedRows, "the non-matching row was filtered inside the store")
}

// Key bytes above 0x7f must not shift the fixed-width regions of the pushdown
// pattern. 1750320000 encodes as 0x6853C380; C3 80 is a valid two-byte UTF-8
// sequence, so a rune-oriented match would miscount the prefix and drop every
// row of the hour.
func TestScannerSet_FuzzyFilterHighByteTimestamp(t *testing.T) {
	fx := newFixture(t, nil, nil, func(c *scan.Config) {
		c.FuzzyFilter = true
	})

	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web01"}, 1750320000)
	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web02"}, 1750320000)

	res, err := fx.exec.Execute(context.Background(), scan.Query{
		Metric: "sys.cpu.user",
		Filter: &scan.LiteralOr{Key: "host", Values: []string{"web01"}},
		Start:  1750320000,
		End:    1750323600,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"web01"}, hostsOf(t, fx, res))
	assert.Equal(t, 1, res.ScannedRows, "pushdown still matched the exact tag pair")
}

// With explicit tags and small literal sets the query runs as exact-key point
// lookups, never touching neighboring rows.
func TestScannerSet_MultiGetExactKeys(t *testing.T) {
	fx := newFixture(t, nil, nil, nil)

	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web01", "dc": "lga"}, 3700)
	// Same metric and hour, different tag shape; a range scan would fetch it.
	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web01"}, 3700)

	res, err := fx.exec.Execute(context.Background(), scan.Query{
		Metric: "sys.cpu.user",
		Filter: &scan.Chain{Filters: []scan.Filter{
			&scan.LiteralOr{Key: "host", Values: []string{"web01"}},
			&scan.LiteralOr{Key: "dc", Values: []string{"lga"}},
		}},
		Start:        3600,
		End:          7150,
		ExplicitTags: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Series, 1)
	assert.Equal(t, 1, res.ScannedRows, "point lookups fetch only the exact keys")

	id, err := fx.schema.ResolveTSUID(context.Background(), res.Series[0].TSUID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"host": "web01", "dc": "lga"}, id.Tags.Map())
}

func TestScannerSet_DataPointLimit(t *testing.T) {
	fx := newFixture(t, nil, nil, func(c *scan.Config) {
		c.MaxDataPoints = 1
	})
	ctx := context.Background()

	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web01"}, 1500000000)
	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web02"}, 1500000000)

	ss, err := fx.exec.NewScannerSet(scan.Query{Metric: "sys.cpu.user", Start: 1500000000, End: 1500003600})
	require.NoError(t, err)
	defer ss.Close()

	_, err = ss.FetchNext(ctx)
	require.ErrorContains(t, err, "data points")

	_, again := ss.FetchNext(ctx)
	require.Equal(t, err, again, "limit errors are latched like any other")
}

// gatedStore blocks the first Scan until released, to hold a fetch open.
type gatedStore struct {
	storage.Store
	started chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (g *gatedStore) Scan(ctx context.Context, spec storage.ScanSpec) (storage.Scanner, error) {
	g.once.Do(func() {
		close(g.started)
		<-g.gate
	})
	return g.Store.Scan(ctx, spec)
}

func TestScannerSet_FetchExclusivity(t *testing.T) {
	fx := newFixture(t, nil, nil, nil)
	ctx := context.Background()

	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web01"}, 1500000000)

	gated := &gatedStore{
		Store:   fx.store,
		started: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	exec, err := scan.NewExecutor(fx.schema, gated, scan.NewConfig())
	require.NoError(t, err)
	ss, err := exec.NewScannerSet(scan.Query{Metric: "sys.cpu.user", Start: 1500000000, End: 1500003600})
	require.NoError(t, err)
	defer ss.Close()

	type outcome struct {
		res *scan.Result
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := ss.FetchNext(ctx)
		first <- outcome{res, err}
	}()

	<-gated.started
	_, err = ss.FetchNext(ctx)
	require.ErrorIs(t, err, scan.ErrFetchInProgress)

	close(gated.gate)
	out := <-first
	require.NoError(t, out.err)
	require.Len(t, out.res.Series, 1)
}

func TestScannerSet_ReverseScan(t *testing.T) {
	fx := newFixture(t, nil, nil, func(c *scan.Config) {
		c.ReverseScan = true
	})

	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web01"}, 1500000000)
	fx.putPoint(t, schema.DefaultTable, nil, "sys.cpu.user", map[string]string{"host": "web01"}, 1500003600)

	res, err := fx.exec.Execute(context.Background(), scan.Query{
		Metric: "sys.cpu.user",
		Start:  1500000000,
		End:    1500007200,
	})
	require.NoError(t, err)
	require.Len(t, res.Series, 1)
	require.Len(t, res.Series[0].Rows, 2)

	// Rows arrive newest first.
	a, err := fx.schema.ParseRowKey(res.Series[0].Rows[0].Key)
	require.NoError(t, err)
	b, err := fx.schema.ParseRowKey(res.Series[0].Rows[1].Key)
	require.NoError(t, err)
	assert.Greater(t, a.BaseTime, b.BaseTime)
}
