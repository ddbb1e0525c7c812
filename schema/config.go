package schema

import (
	"github.com/pkg/errors"
)

// Salting algorithms. The three are mutually incompatible bucket functions:
// data salted under one cannot be read under another. The selection is an
// operator decision made once per deployment; there is no migration path.
const (
	// SaltTimeless hashes everything after the salt except the timestamp
	// bytes, so all rows of one series land in the same bucket. The default.
	SaltTimeless = "timeless"

	// SaltLegacyString reproduces the historical string-hash of the whole
	// post-salt key. Discouraged; kept for reading old data.
	SaltLegacyString = "legacy-string"

	// SaltWithTimestamp hashes the whole post-salt key including the
	// timestamp, spreading one series across buckets over time.
	SaltWithTimestamp = "with-timestamp"
)

const (
	// DefaultTable is the raw data table.
	DefaultTable = "tsdb"

	// DefaultRowSpanSeconds is how much time one raw row covers.
	DefaultRowSpanSeconds = 3600

	// DefaultSaltBuckets is the bucket count used when salting is enabled.
	DefaultSaltBuckets = 20
)

// Config fixes the row-key layout for the lifetime of a Schema. None of these
// may change on a deployment with existing data.
type Config struct {
	Table string `toml:"table"`

	// SaltWidth is the number of leading salt bytes, 0 disables salting.
	SaltWidth int `toml:"salt-width"`

	// SaltBuckets is the modulus applied to the salt hash.
	SaltBuckets int `toml:"salt-buckets"`

	// SaltAlgorithm selects the bucket function.
	SaltAlgorithm string `toml:"salt-algorithm"`

	// RowSpanSeconds is the time covered by one raw row.
	RowSpanSeconds int64 `toml:"row-span-seconds"`

	// RollupsEnabled turns rollup-aware keying and scanning on.
	RollupsEnabled bool `toml:"rollups-enabled"`

	// RollupCatalog is the path of the YAML rollup catalog, read when
	// RollupsEnabled is set.
	RollupCatalog string `toml:"rollup-catalog"`
}

// NewConfig returns a Config with defaults. Salting defaults to off, matching
// single-node deployments.
func NewConfig() Config {
	return Config{
		Table:          DefaultTable,
		SaltWidth:      0,
		SaltBuckets:    DefaultSaltBuckets,
		SaltAlgorithm:  SaltTimeless,
		RowSpanSeconds: DefaultRowSpanSeconds,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Table == "" {
		return errors.New("schema: table must be specified")
	}
	if c.SaltWidth < 0 || c.SaltWidth > 4 {
		return errors.Errorf("schema: salt width %d out of range [0,4]", c.SaltWidth)
	}
	if c.SaltWidth > 0 {
		if c.SaltBuckets < 1 {
			return errors.Errorf("schema: salt buckets %d must be positive", c.SaltBuckets)
		}
		if c.SaltWidth < 4 && c.SaltBuckets > 1<<(uint(c.SaltWidth)*8) {
			return errors.Errorf("schema: %d salt buckets do not fit in %d salt byte(s)", c.SaltBuckets, c.SaltWidth)
		}
	}
	switch c.SaltAlgorithm {
	case SaltTimeless, SaltLegacyString, SaltWithTimestamp:
	default:
		return errors.Errorf("schema: unknown salt algorithm %q", c.SaltAlgorithm)
	}
	if c.RowSpanSeconds <= 0 {
		return errors.New("schema: row span must be positive")
	}
	if c.RollupsEnabled && c.RollupCatalog == "" {
		return errors.New("schema: rollups enabled but no catalog configured")
	}
	return nil
}
