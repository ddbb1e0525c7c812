package scan

import (
	"github.com/pkg/errors"
)

const (
	// DefaultRowsPerScan is how many rows one storage fetch requests.
	DefaultRowsPerScan = 128

	// DefaultTagLiteralExpansionLimit caps how many literal tag values one
	// tag key may expand to before the key is demoted to filter-during-scan.
	DefaultTagLiteralExpansionLimit = 4096

	// DefaultMultiGetCardinalityCeiling caps the total literal expansion
	// under which a query is answered by point lookups instead of scans.
	DefaultMultiGetCardinalityCeiling = 1024
)

// Config holds the query executor settings, fixed per executor.
type Config struct {
	// RowsPerScan is the page size requested from the storage scanner.
	RowsPerScan int `toml:"rows-per-scan"`

	// MaxBytes aborts a query whose accumulated cell payload exceeds this.
	// Zero disables the limit.
	MaxBytes int64 `toml:"max-bytes"`

	// MaxDataPoints aborts a query that accumulates more cells than this.
	// Zero disables the limit.
	MaxDataPoints int64 `toml:"max-data-points"`

	// ReverseScan walks each range backwards.
	ReverseScan bool `toml:"reverse-scan"`

	// RollupFallback scans progressively finer tiers while a tier returns no
	// series. When false, only the single coarsest matching tier is scanned.
	RollupFallback bool `toml:"rollup-fallback"`

	// FuzzyFilter pushes a row-key regex down to the store when the literal
	// tag sets allow it.
	FuzzyFilter bool `toml:"fuzzy-filter"`

	TagLiteralExpansionLimit   int `toml:"tag-literal-expansion-limit"`
	MultiGetCardinalityCeiling int `toml:"multi-get-cardinality-ceiling"`
}

// NewConfig returns a Config with defaults.
func NewConfig() Config {
	return Config{
		RowsPerScan:                DefaultRowsPerScan,
		RollupFallback:             true,
		TagLiteralExpansionLimit:   DefaultTagLiteralExpansionLimit,
		MultiGetCardinalityCeiling: DefaultMultiGetCardinalityCeiling,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.RowsPerScan < 1 {
		return errors.New("scan: rows-per-scan must be positive")
	}
	if c.TagLiteralExpansionLimit < 1 {
		return errors.New("scan: tag-literal-expansion-limit must be positive")
	}
	if c.MultiGetCardinalityCeiling < 0 {
		return errors.New("scan: multi-get-cardinality-ceiling must not be negative")
	}
	if c.MaxBytes < 0 || c.MaxDataPoints < 0 {
		return errors.New("scan: limits must not be negative")
	}
	return nil
}
