package schema

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/tesseradb/tessera/uid"
)

const timestampWidth = 4

// TagPair is one encoded (tag key uid, tag value uid) pair.
type TagPair struct {
	Key   []byte
	Value []byte
}

// RowKey is a decoded row key. The salt bytes are not represented: salt is
// not part of a series' logical identity and is recomputed on encode.
type RowKey struct {
	MetricUID []byte
	BaseTime  int64
	Tags      []TagPair
}

func sortTagPairs(pairs []TagPair) {
	sort.Slice(pairs, func(i, j int) bool {
		return bytes.Compare(pairs[i].Key, pairs[j].Key) < 0
	})
}

// RowKeyLen returns the encoded length of a key with numTags tag pairs.
func (s *Schema) RowKeyLen(numTags int) int {
	return s.config.SaltWidth +
		s.uids.Width(uid.Metric) +
		timestampWidth +
		numTags*(s.uids.Width(uid.TagKey)+s.uids.Width(uid.TagValue))
}

// appendRowKey writes the key to dst. The salt bytes are left zeroed; pairs
// must already be sorted.
func (s *Schema) appendRowKey(dst []byte, metricUID []byte, baseTime int64, pairs []TagPair) []byte {
	if dst == nil {
		dst = make([]byte, 0, s.RowKeyLen(len(pairs)))
	}
	for i := 0; i < s.config.SaltWidth; i++ {
		dst = append(dst, 0)
	}
	dst = append(dst, metricUID...)

	var ts [timestampWidth]byte
	binary.BigEndian.PutUint32(ts[:], uint32(baseTime))
	dst = append(dst, ts[:]...)

	for _, p := range pairs {
		dst = append(dst, p.Key...)
		dst = append(dst, p.Value...)
	}
	return dst
}

// ParseRowKey decodes a row key, validating its arithmetic. The salt prefix
// is skipped, not checked: decode must accept a key from any bucket.
func (s *Schema) ParseRowKey(key []byte) (RowKey, error) {
	metricW := s.uids.Width(uid.Metric)
	pairW := s.uids.Width(uid.TagKey) + s.uids.Width(uid.TagValue)

	head := s.config.SaltWidth + metricW + timestampWidth
	if len(key) < head {
		return RowKey{}, errors.Errorf("schema: row key too short: %d bytes, want at least %d", len(key), head)
	}
	tagBytes := len(key) - head
	if tagBytes%pairW != 0 {
		return RowKey{}, errors.Errorf("schema: row key tag region of %d bytes is not a multiple of %d", tagBytes, pairW)
	}

	rk := RowKey{
		MetricUID: key[s.config.SaltWidth : s.config.SaltWidth+metricW],
		BaseTime:  int64(binary.BigEndian.Uint32(key[s.config.SaltWidth+metricW : head])),
	}
	kW := s.uids.Width(uid.TagKey)
	for off := head; off < len(key); off += pairW {
		rk.Tags = append(rk.Tags, TagPair{
			Key:   key[off : off+kW],
			Value: key[off+kW : off+pairW],
		})
	}
	return rk, nil
}

// TSUID strips the salt and timestamp from a row key, leaving the metric and
// tag UID bytes: the identity of the series independent of time.
func (s *Schema) TSUID(key []byte) ([]byte, error) {
	rk, err := s.ParseRowKey(key)
	if err != nil {
		return nil, err
	}
	metricW := s.uids.Width(uid.Metric)
	out := make([]byte, 0, len(key)-s.config.SaltWidth-timestampWidth)
	out = append(out, rk.MetricUID...)
	out = append(out, key[s.config.SaltWidth+metricW+timestampWidth:]...)
	return out, nil
}

// TSUIDHash returns a 64-bit hash of the series identity without
// materializing the stripped key. Equal series hash equal regardless of salt
// bucket or timestamp.
func (s *Schema) TSUIDHash(key []byte) (uint64, error) {
	metricW := s.uids.Width(uid.Metric)
	head := s.config.SaltWidth + metricW + timestampWidth
	if len(key) < head {
		return 0, errors.Errorf("schema: row key too short: %d bytes", len(key))
	}
	var d xxhash.Digest
	d.Reset()
	_, _ = d.Write(key[s.config.SaltWidth : s.config.SaltWidth+metricW])
	_, _ = d.Write(key[head:])
	return d.Sum64(), nil
}
