package uid

import (
	"github.com/pkg/errors"
)

const (
	// DefaultTable is the UID table name.
	DefaultTable = "tsdb-uid"

	// DefaultWidth is the on-disk width of every UID namespace, allowing
	// roughly 16.7M distinct ids per namespace.
	DefaultWidth = 3

	// DefaultMaxAttemptsAssign bounds retries of a counter-based assignment.
	DefaultMaxAttemptsAssign = 3

	// DefaultMaxAttemptsAssignRandom bounds retries of a randomized
	// assignment. Random draws collide, so the bound is higher.
	DefaultMaxAttemptsAssignRandom = 10

	// DefaultCacheSize caps the number of cached mappings per direction.
	DefaultCacheSize = 200000
)

// Config holds the UID store settings. All fields are fixed for the lifetime
// of a Store.
type Config struct {
	Table string `toml:"table"`

	MetricWidth   int `toml:"metric-width"`
	TagKeyWidth   int `toml:"tagk-width"`
	TagValueWidth int `toml:"tagv-width"`

	MetricCharset   string `toml:"metric-charset"`
	TagKeyCharset   string `toml:"tagk-charset"`
	TagValueCharset string `toml:"tagv-charset"`

	// Random*Ids switches the namespace from counter-based to randomized
	// assignment. Once a namespace has randomized ids it must stay that way.
	RandomMetricIds   bool `toml:"random-metric-ids"`
	RandomTagKeyIds   bool `toml:"random-tagk-ids"`
	RandomTagValueIds bool `toml:"random-tagv-ids"`

	MaxAttemptsAssign       int `toml:"max-attempts-assign"`
	MaxAttemptsAssignRandom int `toml:"max-attempts-assign-random"`

	// AssignAndRetry makes GetOrCreateId return RETRY immediately while the
	// assignment proceeds in the background, keeping UID creation latency off
	// the write path.
	AssignAndRetry bool `toml:"assign-and-retry"`

	CacheSize int `toml:"cache-size"`
}

// NewConfig returns a Config with defaults.
func NewConfig() Config {
	return Config{
		Table:                   DefaultTable,
		MetricWidth:             DefaultWidth,
		TagKeyWidth:             DefaultWidth,
		TagValueWidth:           DefaultWidth,
		MetricCharset:           CharsetISO88591,
		TagKeyCharset:           CharsetISO88591,
		TagValueCharset:         CharsetISO88591,
		MaxAttemptsAssign:       DefaultMaxAttemptsAssign,
		MaxAttemptsAssignRandom: DefaultMaxAttemptsAssignRandom,
		CacheSize:               DefaultCacheSize,
	}
}

// Validate checks the configuration for values the store cannot operate with.
func (c Config) Validate() error {
	if c.Table == "" {
		return errors.New("uid: table must be specified")
	}
	for _, t := range Types {
		w := c.Width(t)
		if w < 1 || w > 8 {
			return errors.Errorf("uid: %s width %d out of range [1,8]", t, w)
		}
	}
	if c.MaxAttemptsAssign < 1 || c.MaxAttemptsAssignRandom < 1 {
		return errors.New("uid: assignment attempt limits must be at least 1")
	}
	return nil
}

// Width returns the configured id width for a namespace.
func (c Config) Width(t Type) int {
	switch t {
	case Metric:
		return c.MetricWidth
	case TagKey:
		return c.TagKeyWidth
	default:
		return c.TagValueWidth
	}
}

// Charset returns the configured character set for a namespace.
func (c Config) Charset(t Type) string {
	switch t {
	case Metric:
		return c.MetricCharset
	case TagKey:
		return c.TagKeyCharset
	default:
		return c.TagValueCharset
	}
}

// Randomized reports whether a namespace assigns ids by random draw.
func (c Config) Randomized(t Type) bool {
	switch t {
	case Metric:
		return c.RandomMetricIds
	case TagKey:
		return c.RandomTagKeyIds
	default:
		return c.RandomTagValueIds
	}
}

// maxAttempts returns the retry bound for a namespace's assignment mode.
func (c Config) maxAttempts(t Type) int {
	if c.Randomized(t) {
		return c.MaxAttemptsAssignRandom
	}
	return c.MaxAttemptsAssign
}
