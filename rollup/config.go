package rollup

import (
	"os"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultAggregations is the aggregation id map used when a catalog file does
// not provide one. The ids are persisted in column qualifiers and must never
// be renumbered on an existing deployment.
var DefaultAggregations = map[string]byte{
	"sum":   0,
	"count": 1,
	"min":   2,
	"max":   3,
	"avg":   5,
}

// Config is the immutable rollup catalog: the set of configured intervals and
// the aggregation name<->id mapping. Safe for concurrent readers.
type Config struct {
	intervals []*Interval // sorted by Seconds descending
	byName    map[string]*Interval
	byTable   map[string]*Interval
	def       *Interval

	aggToID map[string]byte
	idToAgg map[byte]string
}

// Catalog is the YAML shape of a rollup catalog file.
type Catalog struct {
	Intervals    []Interval      `yaml:"intervals"`
	Aggregations map[string]byte `yaml:"aggregations,omitempty"`
}

// New validates a catalog and builds the Config.
func New(cat Catalog) (*Config, error) {
	aggs := cat.Aggregations
	if len(aggs) == 0 {
		aggs = DefaultAggregations
	}

	c := &Config{
		byName:  make(map[string]*Interval, len(cat.Intervals)),
		byTable: make(map[string]*Interval, len(cat.Intervals)),
		aggToID: make(map[string]byte, len(aggs)),
		idToAgg: make(map[byte]string, len(aggs)),
	}

	for name, id := range aggs {
		if name == "" {
			return nil, errors.New("rollup: empty aggregator name")
		}
		if id > 127 {
			return nil, errors.Errorf("rollup: aggregator %q id %d out of range [0,127]", name, id)
		}
		if other, ok := c.idToAgg[id]; ok {
			return nil, errors.Errorf("rollup: aggregators %q and %q share id %d", other, name, id)
		}
		c.aggToID[name] = id
		c.idToAgg[id] = name
	}

	for i := range cat.Intervals {
		iv := cat.Intervals[i]
		if err := iv.Validate(); err != nil {
			return nil, err
		}
		if _, ok := c.byName[iv.Name]; ok {
			return nil, errors.Errorf("rollup: duplicate interval name %q", iv.Name)
		}
		if prev, ok := c.byTable[iv.Table]; ok && prev.Name != iv.Name {
			return nil, errors.Errorf("rollup: intervals %q and %q share table %q", prev.Name, iv.Name, iv.Table)
		}
		if iv.Default {
			if c.def != nil {
				return nil, errors.Errorf("rollup: intervals %q and %q both marked default", c.def.Name, iv.Name)
			}
			c.def = &iv
		}
		c.byName[iv.Name] = &iv
		c.byTable[iv.Table] = &iv
		if iv.PreAggTable != "" {
			c.byTable[iv.PreAggTable] = &iv
		}
		c.intervals = append(c.intervals, &iv)
	}

	sort.Slice(c.intervals, func(i, j int) bool {
		return c.intervals[i].Seconds > c.intervals[j].Seconds
	})
	return c, nil
}

// LoadFile reads a YAML catalog file and builds the Config.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "rollup: reading catalog")
	}
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, errors.Wrap(err, "rollup: parsing catalog")
	}
	return New(cat)
}

// GetRollupInterval returns the interval registered under name.
func (c *Config) GetRollupInterval(name string) (*Interval, error) {
	iv, ok := c.byName[name]
	if !ok {
		return nil, errors.Errorf("rollup: no interval named %q", name)
	}
	return iv, nil
}

// IntervalForTable returns the interval whose data or pre-agg table is table.
func (c *Config) IntervalForTable(table string) (*Interval, error) {
	iv, ok := c.byTable[table]
	if !ok {
		return nil, errors.Errorf("rollup: no interval stored in table %q", table)
	}
	return iv, nil
}

// DefaultInterval returns the interval marked default, or nil.
func (c *Config) DefaultInterval() *Interval { return c.def }

// Intervals returns all intervals ordered coarsest first.
func (c *Config) Intervals() []*Interval { return c.intervals }

// GetRollupIntervals returns the intervals able to satisfy a requested
// granularity: every interval no coarser than seconds whose own granularity
// evenly divides it, ordered coarsest first. The coarsest entry is the
// preferred tier; the rest are fallbacks. An empty result is not an error.
func (c *Config) GetRollupIntervals(seconds int64, skipDefault bool) []*Interval {
	var out []*Interval
	for _, iv := range c.intervals {
		if iv.Seconds > seconds {
			continue
		}
		if skipDefault && iv.Default {
			continue
		}
		if seconds%iv.Seconds == 0 {
			out = append(out, iv)
		}
	}
	return out
}

// IDForAggregator returns the on-disk id for an aggregation function name.
func (c *Config) IDForAggregator(name string) (byte, error) {
	id, ok := c.aggToID[name]
	if !ok {
		return 0, errors.Errorf("rollup: no id for aggregator %q", name)
	}
	return id, nil
}

// AggregatorForID returns the aggregation function name for an on-disk id.
func (c *Config) AggregatorForID(id byte) (string, error) {
	name, ok := c.idToAgg[id]
	if !ok {
		return "", errors.Errorf("rollup: no aggregator with id %d", id)
	}
	return name, nil
}
