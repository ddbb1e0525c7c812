// Package schema owns the binary row-key layout: encoding a metric and its
// tags into a deterministic, optionally salted key, and decoding keys back
// into strings. The layout is bit-exact with data already stored:
//
//	salt[saltWidth] || metric[metricWidth] || baseTime[4, BE seconds] ||
//	(tagk[tagkWidth] || tagv[tagvWidth])*   pairs sorted by tagk bytes
package schema

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tesseradb/tessera/models"
	"github.com/tesseradb/tessera/rollup"
	"github.com/tesseradb/tessera/uid"
)

// Schema is the row-key codec and UID resolution router. It is immutable
// after construction and safe for concurrent use.
type Schema struct {
	config  Config
	uids    *uid.Store
	rollups *rollup.Config
	logger  *zap.Logger
}

// New builds a Schema over a UID store. rollups may be nil when rollups are
// disabled.
func New(config Config, uids *uid.Store, rollups *rollup.Config) (*Schema, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.RollupsEnabled && rollups == nil {
		return nil, errors.New("schema: rollups enabled but no catalog supplied")
	}
	return &Schema{
		config:  config,
		uids:    uids,
		rollups: rollups,
		logger:  zap.NewNop(),
	}, nil
}

// WithLogger sets the logger on the schema. Non-default salting choices are
// called out loudly: the three algorithms produce incompatible keys and
// switching one on an existing deployment strands data.
func (s *Schema) WithLogger(log *zap.Logger) {
	s.logger = log.With(zap.String("service", "schema"))
	if s.config.SaltWidth > 0 && s.config.SaltAlgorithm != SaltTimeless {
		s.logger.Warn("non-default salting algorithm configured; keys are incompatible with the other algorithms",
			zap.String("algorithm", s.config.SaltAlgorithm))
	}
}

// UidWidth returns the configured width for a UID namespace.
func (s *Schema) UidWidth(t uid.Type) int { return s.uids.Width(t) }

// SaltWidth returns the number of salt bytes prefixed to row keys.
func (s *Schema) SaltWidth() int { return s.config.SaltWidth }

// SaltBuckets returns the salt bucket count, or 1 when salting is off.
func (s *Schema) SaltBuckets() int {
	if s.config.SaltWidth == 0 {
		return 1
	}
	return s.config.SaltBuckets
}

// Table returns the raw data table name.
func (s *Schema) Table() string { return s.config.Table }

// Rollups returns the rollup catalog, or nil when disabled.
func (s *Schema) Rollups() *rollup.Config { return s.rollups }

// UidStore returns the underlying UID store.
func (s *Schema) UidStore() *uid.Store { return s.uids }

// RowSpanSeconds returns the base-time span for an interval, falling back to
// the raw span when iv is nil.
func (s *Schema) RowSpanSeconds(iv *rollup.Interval) int64 {
	if iv != nil {
		return iv.RowSpanSeconds()
	}
	return s.config.RowSpanSeconds
}

// CreateRowKey resolves every UID a datum needs, allocating missing ones
// subject to auth, and assembles the salted row key. If any resolution fails
// the worst severity across all of them is returned, so a rejected tag is
// reported as REJECTED even when another tag merely wants a retry.
func (s *Schema) CreateRowKey(ctx context.Context, auth uid.Authorizer, d models.Datum, iv *rollup.Interval) uid.IdOrError {
	if err := d.Validate(); err != nil {
		return uid.RejectedId(err)
	}

	metric := s.uids.GetOrCreateId(ctx, auth, uid.Metric, d.Metric, d)

	// Tag keys and values resolve in parallel; input order is kept in the
	// results slice so failures read deterministically.
	results := make([]uid.IdOrError, 2*len(d.Tags))
	var wg sync.WaitGroup
	for i, tag := range d.Tags {
		wg.Add(2)
		go func(i int, name string) {
			defer wg.Done()
			results[2*i] = s.uids.GetOrCreateId(ctx, auth, uid.TagKey, name, d)
		}(i, tag.Key)
		go func(i int, name string) {
			defer wg.Done()
			results[2*i+1] = s.uids.GetOrCreateId(ctx, auth, uid.TagValue, name, d)
		}(i, tag.Value)
	}
	wg.Wait()

	worst := uid.WorstOf(append([]uid.IdOrError{metric}, results...)...)
	if worst.State != uid.StateOK {
		return uid.IdOrError{State: worst.State, Err: worst.Err}
	}

	pairs := make([]TagPair, len(d.Tags))
	for i := range d.Tags {
		pairs[i] = TagPair{Key: results[2*i].Id, Value: results[2*i+1].Id}
	}
	sortTagPairs(pairs)

	span := s.RowSpanSeconds(iv)
	base := d.Timestamp - d.Timestamp%span

	key := s.appendRowKey(nil, metric.Id, base, pairs)
	s.PrefixKeyWithSalt(key)
	return uid.OKId(key)
}
