package models

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyMetric is returned when a datum carries no metric name.
	ErrEmptyMetric = errors.New("models: metric name required")

	// ErrNoTags is returned when a datum carries no tags. Every stored series
	// must have at least one tag pair.
	ErrNoTags = errors.New("models: at least one tag required")
)

// Datum is one incoming time-series value: a metric name, its tag set and a
// Unix timestamp in seconds. The value payload itself is opaque to the schema
// layer and travels alongside the datum untouched.
type Datum struct {
	Metric    string
	Tags      Tags
	Timestamp int64
	Value     []byte
}

// NewDatum builds a Datum with sorted tags.
func NewDatum(metric string, tags map[string]string, ts int64, value []byte) Datum {
	return Datum{
		Metric:    metric,
		Tags:      NewTags(tags),
		Timestamp: ts,
		Value:     value,
	}
}

// Validate checks the structural requirements for storage. Character set
// validation is the UID layer's concern; this only rejects shapes the row-key
// codec cannot encode at all.
func (d Datum) Validate() error {
	if d.Metric == "" {
		return ErrEmptyMetric
	}
	if len(d.Tags) == 0 {
		return ErrNoTags
	}
	for _, t := range d.Tags {
		if t.Key == "" || t.Value == "" {
			return fmt.Errorf("models: empty tag key or value in %q", d.Tags.String())
		}
	}
	return nil
}

func (d Datum) String() string {
	return fmt.Sprintf("%s{%s}@%d", d.Metric, d.Tags.String(), d.Timestamp)
}
