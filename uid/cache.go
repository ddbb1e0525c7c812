package uid

import (
	"sync"
)

// Cache is a bounded read-through cache of UID mappings. Both directions are
// populated together so a hit in one implies the other is present too.
//
// Eviction is wholesale: when a direction grows past the cap the maps are
// cleared. Mappings are immutable so staleness is not a concern, only memory.
type Cache struct {
	mu      sync.RWMutex
	max     int
	forward map[Type]map[string][]byte
	reverse map[Type]map[string]string
}

// NewCache returns a cache bounded to max entries per direction. A max of
// zero or below disables bounding.
func NewCache(max int) *Cache {
	c := &Cache{
		max:     max,
		forward: make(map[Type]map[string][]byte, len(Types)),
		reverse: make(map[Type]map[string]string, len(Types)),
	}
	for _, t := range Types {
		c.forward[t] = make(map[string][]byte)
		c.reverse[t] = make(map[string]string)
	}
	return c
}

// Id returns the cached id for a name.
func (c *Cache) Id(t Type, name string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.forward[t][name]
	return id, ok
}

// Name returns the cached name for an id.
func (c *Cache) Name(t Type, id []byte) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.reverse[t][string(id)]
	return name, ok
}

// Add stores a mapping in both directions.
func (c *Cache) Add(t Type, name string, id []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.max > 0 && len(c.forward[t]) >= c.max {
		for _, typ := range Types {
			c.forward[typ] = make(map[string][]byte)
			c.reverse[typ] = make(map[string]string)
		}
	}
	idCopy := append([]byte(nil), id...)
	c.forward[t][name] = idCopy
	c.reverse[t][string(idCopy)] = name
}

// Len returns the number of forward entries for a namespace.
func (c *Cache) Len(t Type) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.forward[t])
}
