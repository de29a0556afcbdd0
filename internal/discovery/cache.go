package discovery

import (
	"cmp"
	"slices"
	"sync"
)

// Cache holds the latest record per UDN.
type Cache struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{records: make(map[string]Record)}
}

// Put stores a copy of r and reports whether its UDN was new.
func (c *Cache) Put(r Record) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.records[r.UDN]
	c.records[r.UDN] = r.Clone()
	return !exists
}

// Get returns a copy of the record for udn.
func (c *Cache) Get(udn string) (Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[udn]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r.Clone(), nil
}

// Remove drops the record for udn.
func (c *Cache) Remove(udn string) {
	c.mu.Lock()
	delete(c.records, udn)
	c.mu.Unlock()
}

// All returns copies of every record, ordered by UDN.
func (c *Cache) All() []Record {
	return c.collect(func(Record) bool { return true })
}

// ByST returns copies of the records found with search target st, ordered
// by UDN.
func (c *Cache) ByST(st string) []Record {
	return c.collect(func(r Record) bool { return r.ST == st })
}

// ByServiceTypes returns the records matching any of sts.
func (c *Cache) ByServiceTypes(sts []string) []Record {
	return c.collect(func(r Record) bool { return slices.Contains(sts, r.ST) })
}

func (c *Cache) collect(keep func(Record) bool) []Record {
	c.mu.RLock()
	out := make([]Record, 0, len(c.records))
	for _, r := range c.records {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b Record) int { return cmp.Compare(a.UDN, b.UDN) })
	return out
}

// Len returns the number of records.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}
