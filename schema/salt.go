package schema

import (
	"github.com/cespare/xxhash/v2"

	"github.com/tesseradb/tessera/uid"
)

// SaltBucket computes the bucket for a key that already has its post-salt
// bytes in place. It is a pure function of those bytes and the configured
// algorithm. Global rows, whose metric UID is all zeros, are never salted and
// always land in bucket 0.
func (s *Schema) SaltBucket(key []byte) int {
	if s.config.SaltWidth == 0 {
		return 0
	}
	metricW := s.uids.Width(uid.Metric)
	if len(key) >= s.config.SaltWidth+metricW &&
		uid.IsZero(key[s.config.SaltWidth:s.config.SaltWidth+metricW]) {
		return 0
	}

	post := key[s.config.SaltWidth:]
	switch s.config.SaltAlgorithm {
	case SaltLegacyString:
		return s.legacyStringBucket(post)
	case SaltWithTimestamp:
		return int(xxhash.Sum64(post) % uint64(s.config.SaltBuckets))
	default: // SaltTimeless
		head := metricW
		var d xxhash.Digest
		d.Reset()
		_, _ = d.Write(post[:head])
		if len(post) > head+timestampWidth {
			_, _ = d.Write(post[head+timestampWidth:])
		}
		return int(d.Sum64() % uint64(s.config.SaltBuckets))
	}
}

// legacyStringBucket reproduces the historical JVM string hash of the raw key
// bytes: h = 31*h + b over signed 32-bit arithmetic, modulo the bucket count,
// forced non-negative. Kept bit-for-bit for old data; do not "fix" it.
func (s *Schema) legacyStringBucket(post []byte) int {
	var h int32
	for _, b := range post {
		h = 31*h + int32(b)
	}
	r := int(h) % s.config.SaltBuckets
	if r < 0 {
		r += s.config.SaltBuckets
	}
	return r
}

// PrefixKeyWithSalt computes the bucket from the key's post-salt bytes and
// writes it into the salt prefix in place.
func (s *Schema) PrefixKeyWithSalt(key []byte) {
	s.PrefixKeyWithSaltBucket(key, s.SaltBucket(key))
}

// PrefixKeyWithSaltBucket writes an explicit bucket into the salt prefix,
// big-endian. Used by scanners replicating one logical scan per bucket.
func (s *Schema) PrefixKeyWithSaltBucket(key []byte, bucket int) {
	w := s.config.SaltWidth
	if w == 0 {
		return
	}
	for i := w - 1; i >= 0; i-- {
		key[i] = byte(bucket)
		bucket >>= 8
	}
}
