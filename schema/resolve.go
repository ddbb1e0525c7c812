package schema

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/tesseradb/tessera/models"
	"github.com/tesseradb/tessera/uid"
)

// StringId is a series identity resolved back to strings.
type StringId struct {
	Metric string
	Tags   models.Tags
}

// ResolveTSUID reverse-resolves a TSUID's metric and tag UIDs to strings. The
// components resolve in parallel; any unmapped UID fails the whole resolution
// with a "no such unique id" error carrying the namespace and raw bytes.
func (s *Schema) ResolveTSUID(ctx context.Context, tsuid []byte) (StringId, error) {
	metricW := s.uids.Width(uid.Metric)
	kW := s.uids.Width(uid.TagKey)
	vW := s.uids.Width(uid.TagValue)

	if len(tsuid) < metricW || (len(tsuid)-metricW)%(kW+vW) != 0 {
		return StringId{}, errors.Errorf("schema: malformed tsuid of %d bytes", len(tsuid))
	}

	rk := RowKey{MetricUID: tsuid[:metricW]}
	for off := metricW; off+kW+vW <= len(tsuid); off += kW + vW {
		rk.Tags = append(rk.Tags, TagPair{
			Key:   tsuid[off : off+kW],
			Value: tsuid[off+kW : off+kW+vW],
		})
	}
	return s.resolve(ctx, rk)
}

// ResolveRowKey parses a row key and reverse-resolves its UIDs, returning the
// string identity plus the key's base timestamp.
func (s *Schema) ResolveRowKey(ctx context.Context, key []byte) (StringId, int64, error) {
	rk, err := s.ParseRowKey(key)
	if err != nil {
		return StringId{}, 0, err
	}
	id, err := s.resolve(ctx, rk)
	return id, rk.BaseTime, err
}

func (s *Schema) resolve(ctx context.Context, rk RowKey) (StringId, error) {
	var out StringId
	out.Tags = make(models.Tags, len(rk.Tags))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		name, err := s.uids.GetName(ctx, uid.Metric, rk.MetricUID)
		if err != nil {
			return err
		}
		out.Metric = name
		return nil
	})
	for i, pair := range rk.Tags {
		i, pair := i, pair
		g.Go(func() error {
			k, err := s.uids.GetName(ctx, uid.TagKey, pair.Key)
			if err != nil {
				return err
			}
			v, err := s.uids.GetName(ctx, uid.TagValue, pair.Value)
			if err != nil {
				return err
			}
			out.Tags[i] = models.Tag{Key: k, Value: v}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return StringId{}, err
	}
	return out, nil
}
