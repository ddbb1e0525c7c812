package scan

import (
	"bytes"
	"sort"

	"github.com/tesseradb/tessera/rollup"
	"github.com/tesseradb/tessera/storage"
)

// SeriesRows is every row fetched for one time series within a tier.
type SeriesRows struct {
	// TSUID is the series identity: metric UID plus sorted tag UID pairs.
	TSUID []byte

	// Hash is the 64-bit TSUID hash used for cheap equality.
	Hash uint64

	// Rows are the fetched rows, in key order within each salt bucket. A
	// series only spans buckets under the with-timestamp salt algorithm;
	// there the order across buckets follows scanner completion.
	Rows []storage.Row
}

// Result is the outcome of scanning one tier. A Result with zero series from
// a rollup tier triggers fallback; from the last tier it is simply empty.
type Result struct {
	// Interval is the rollup tier the data came from, nil for raw.
	Interval *rollup.Interval

	// Series holds the matched series ordered by TSUID bytes.
	Series []*SeriesRows

	// ScannedRows counts rows fetched from storage, matched or not.
	ScannedRows int

	// DataPoints and Bytes are the accumulated cell count and payload size.
	DataPoints int64
	Bytes      int64
}

// Empty reports whether the result contains no series.
func (r *Result) Empty() bool { return len(r.Series) == 0 }

func sortSeries(series []*SeriesRows) {
	sort.Slice(series, func(i, j int) bool {
		return bytes.Compare(series[i].TSUID, series[j].TSUID) < 0
	})
}
