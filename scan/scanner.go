package scan

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"

	"github.com/tesseradb/tessera/rollup"
	"github.com/tesseradb/tessera/storage"
	"github.com/tesseradb/tessera/uid"
)

// dataFamily is the column family holding datapoints in every data table.
var dataFamily = []byte("t")

// accumulator collects matched rows for one tier across all bucket scanners.
type accumulator struct {
	set *ScannerSet

	mu      sync.Mutex
	series  map[uint64]*SeriesRows
	scanned int
	points  int64
	bytes   int64
}

func newAccumulator(set *ScannerSet) *accumulator {
	return &accumulator{set: set, series: make(map[uint64]*SeriesRows)}
}

// addRows filters a page of rows and folds the survivors into the per-series
// map. Limit overruns surface as errors wrapping errQueryLimit.
func (a *accumulator) addRows(ctx context.Context, rows []storage.Row) error {
	sc := a.set.schema
	p := a.set.plan
	q := &a.set.query

	for _, row := range rows {
		a.bumpScanned()

		rk, err := sc.ParseRowKey(row.Key)
		if err != nil {
			return errors.Wrap(err, "scan: undecodable row key")
		}
		if !bytes.Equal(rk.MetricUID, p.metricUID) {
			continue
		}
		if !p.matchesRow(rk, q.ExplicitTags) {
			continue
		}
		if p.needsPostFilter && q.Filter != nil {
			id, _, err := sc.ResolveRowKey(ctx, row.Key)
			if err != nil {
				return err
			}
			if !q.Filter.Match(id.Tags) {
				continue
			}
		}
		if err := a.keep(row); err != nil {
			return err
		}
	}
	return nil
}

func (a *accumulator) bumpScanned() {
	a.mu.Lock()
	a.scanned++
	a.mu.Unlock()
	a.set.metrics.RowsScanned.Inc()
}

func (a *accumulator) keep(row storage.Row) error {
	hash, err := a.set.schema.TSUIDHash(row.Key)
	if err != nil {
		return err
	}

	var size int64
	for _, c := range row.Cells {
		size += int64(len(c.Qualifier) + len(c.Value))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	sr, ok := a.series[hash]
	if !ok {
		tsuid, err := a.set.schema.TSUID(row.Key)
		if err != nil {
			return err
		}
		sr = &SeriesRows{TSUID: tsuid, Hash: hash}
		a.series[hash] = sr
	}
	sr.Rows = append(sr.Rows, row)
	a.points += int64(len(row.Cells))
	a.bytes += size

	cfg := a.set.config
	if cfg.MaxDataPoints > 0 && a.points > cfg.MaxDataPoints {
		return errors.Wrapf(errQueryLimit, "more than %d data points", cfg.MaxDataPoints)
	}
	if cfg.MaxBytes > 0 && a.bytes > cfg.MaxBytes {
		return errors.Wrapf(errQueryLimit, "more than %d bytes", cfg.MaxBytes)
	}
	return nil
}

// result snapshots the accumulated state into a tier Result.
func (a *accumulator) result(iv *rollup.Interval) *Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	res := &Result{
		Interval:    iv,
		ScannedRows: a.scanned,
		DataPoints:  a.points,
		Bytes:       a.bytes,
	}
	for _, sr := range a.series {
		res.Series = append(res.Series, sr)
	}
	sortSeries(res.Series)
	return res
}

// bucketScanner drains one salt bucket's share of a tier. Under the multi-get
// strategy it runs a point scan per precomputed key instead of one range.
type bucketScanner struct {
	set    *ScannerSet
	bucket int
	specs  []storage.ScanSpec
	acc    *accumulator
}

func (b *bucketScanner) run(ctx context.Context) error {
	for i := range b.specs {
		if err := b.scanOne(ctx, b.specs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (b *bucketScanner) scanOne(ctx context.Context, spec storage.ScanSpec) error {
	sc, err := b.set.store.Scan(ctx, spec)
	if err != nil {
		return err
	}
	b.set.trackScanner(sc)
	defer func() {
		if b.set.releaseScanner(sc) {
			sc.Close()
		}
	}()

	for {
		if b.set.isClosed() {
			return ErrClosed
		}
		rows, err := sc.Next(ctx)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		if err := b.acc.addRows(ctx, rows); err != nil {
			return err
		}
	}
}

// tierBounds returns the query's time bounds snapped outward to the tier's
// row span. Start is floored, stop is the exclusive span after End.
func (ss *ScannerSet) tierBounds(t tier) (startBase, stopBase int64) {
	span := ss.schema.RowSpanSeconds(t.interval)
	startBase = ss.query.Start - ss.query.Start%span
	stopBase = ss.query.End - ss.query.End%span + span
	return startBase, stopBase
}

// rangeSpec builds the single range scan for one salt bucket of a tier.
func (ss *ScannerSet) rangeSpec(t tier, bucket int) storage.ScanSpec {
	startBase, stopBase := ss.tierBounds(t)

	spec := storage.ScanSpec{
		Table:       t.table,
		Family:      dataFamily,
		Start:       ss.boundaryKey(startBase, bucket),
		Stop:        ss.boundaryKey(stopBase, bucket),
		Reverse:     ss.config.ReverseScan,
		RowsPerPage: ss.config.RowsPerScan,
	}
	if ss.config.FuzzyFilter {
		spec.KeyRegexp = ss.plan.keyRegexp(ss.schema)
	}
	return spec
}

// boundaryKey builds salt || metric || baseTime with no tag pairs. Real keys
// always carry tag bytes and sort after the bare prefix, so as an exclusive
// stop bound this excludes every row at base or later.
func (ss *ScannerSet) boundaryKey(base int64, bucket int) []byte {
	saltW := ss.schema.SaltWidth()
	metricW := ss.schema.UidWidth(uid.Metric)
	key := make([]byte, saltW+metricW+4)
	copy(key[saltW:], ss.plan.metricUID)
	binary.BigEndian.PutUint32(key[saltW+metricW:], uint32(base))
	ss.schema.PrefixKeyWithSaltBucket(key, bucket)
	return key
}

// multiGetSpecs enumerates one point scan per series and row span, grouped by
// the salt bucket each exact key lands in.
func (ss *ScannerSet) multiGetSpecs(t tier) map[int][]storage.ScanSpec {
	startBase, stopBase := ss.tierBounds(t)
	span := ss.schema.RowSpanSeconds(t.interval)
	saltW := ss.schema.SaltWidth()
	metricW := ss.schema.UidWidth(uid.Metric)

	groups := make(map[int][]storage.ScanSpec)
	for _, tsuid := range ss.plan.tsuids() {
		for base := startBase; base < stopBase; base += span {
			key := make([]byte, 0, saltW+len(tsuid)+4)
			key = append(key, make([]byte, saltW)...)
			key = append(key, tsuid[:metricW]...)
			var ts [4]byte
			binary.BigEndian.PutUint32(ts[:], uint32(base))
			key = append(key, ts[:]...)
			key = append(key, tsuid[metricW:]...)

			bucket := ss.schema.SaltBucket(key)
			ss.schema.PrefixKeyWithSaltBucket(key, bucket)

			stop := append(append([]byte(nil), key...), 0)
			groups[bucket] = append(groups[bucket], storage.ScanSpec{
				Table:       t.table,
				Family:      dataFamily,
				Start:       key,
				Stop:        stop,
				RowsPerPage: ss.config.RowsPerScan,
			})
		}
	}
	return groups
}
