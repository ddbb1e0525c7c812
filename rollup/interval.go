// Package rollup holds the catalog of pre-aggregation intervals and the
// mapping between aggregation function names and their compact on-disk ids.
package rollup

import (
	"github.com/pkg/errors"
)

// Span units for rollup rows. The unit fixes how many seconds of data one row
// holds, which in turn fixes the base-time flooring applied to row keys.
const (
	SpanHour  = "hour"
	SpanDay   = "day"
	SpanWeek  = "week"
	SpanMonth = "month"
	SpanYear  = "year"
)

var spanSeconds = map[string]int64{
	SpanHour:  3600,
	SpanDay:   86400,
	SpanWeek:  604800,
	SpanMonth: 2592000,
	SpanYear:  31536000,
}

// Interval is one immutable catalog entry describing a rollup resolution.
type Interval struct {
	// Name is the operator-facing identifier, e.g. "1h".
	Name string `yaml:"name"`

	// Seconds is the aggregation granularity of the stored data.
	Seconds int64 `yaml:"seconds"`

	// Span is the row span unit; one of hour, day, week, month, year.
	Span string `yaml:"span"`

	// Table holds rolled-up, per-series data.
	Table string `yaml:"table"`

	// PreAggTable holds rolled-up, pre-aggregated (group-by) data.
	PreAggTable string `yaml:"pre-agg-table"`

	// Default marks the raw interval. At most one interval may be default;
	// its Seconds describe the native write resolution.
	Default bool `yaml:"default,omitempty"`
}

// RowSpanSeconds returns how many seconds of data one row of this interval
// covers.
func (iv *Interval) RowSpanSeconds() int64 {
	return spanSeconds[iv.Span]
}

// Validate checks one catalog entry in isolation.
func (iv *Interval) Validate() error {
	if iv.Name == "" {
		return errors.New("rollup: interval name required")
	}
	if iv.Seconds <= 0 {
		return errors.Errorf("rollup: interval %q: seconds must be positive", iv.Name)
	}
	if _, ok := spanSeconds[iv.Span]; !ok {
		return errors.Errorf("rollup: interval %q: unknown span unit %q", iv.Name, iv.Span)
	}
	if iv.Table == "" {
		return errors.Errorf("rollup: interval %q: table required", iv.Name)
	}
	if iv.RowSpanSeconds() < iv.Seconds {
		return errors.Errorf("rollup: interval %q: span %s shorter than the interval itself", iv.Name, iv.Span)
	}
	return nil
}
