package nodestore

import (
	"fmt"

	"github.com/dreamware/stcache/internal/cachecube"
)

// Capacities maps each CacheType to its configured byte capacity
// (cache.raster.size, cache.points.size, ...).
type Capacities map[cachecube.CacheType]uint64

// Cache bundles one Store per CacheType on a node, sharing a single
// IDGenerator so entry ids stay unique across every type on this node.
type Cache struct {
	stores map[cachecube.CacheType]*Store
	ids    *IDGenerator
}

// NewCache builds a Cache with one Store per entry in capacities.
// Any CacheType in cachecube.AllCacheTypes missing from capacities gets
// a zero-capacity store (every Put for that type will overflow), which
// matches a node that was configured without that result kind enabled.
func NewCache(capacities Capacities) *Cache {
	ids := &IDGenerator{}
	c := &Cache{stores: make(map[cachecube.CacheType]*Store, len(cachecube.AllCacheTypes)), ids: ids}
	for _, t := range cachecube.AllCacheTypes {
		c.stores[t] = New(capacities[t], ids)
	}
	return c
}

// SetEvictionHook registers hook for every type's store; see
// Store.SetEvictionHook for the reentrancy constraint.
func (c *Cache) SetEvictionHook(hook func(t cachecube.CacheType, key cachecube.NodeCacheKey)) {
	for t, store := range c.stores {
		t := t
		store.SetEvictionHook(func(key cachecube.NodeCacheKey) { hook(t, key) })
	}
}

// Store returns the Store for a given CacheType.
func (c *Cache) Store(t cachecube.CacheType) *Store {
	return c.stores[t]
}

// Put stores a payload under the given CacheType, delegating to that
// type's Store.
func (c *Cache) Put(t cachecube.CacheType, semanticID string, payload []byte, bounds cachecube.CacheCube, profile cachecube.Profile) (uint64, error) {
	store, ok := c.stores[t]
	if !ok {
		return 0, fmt.Errorf("nodestore: unknown cache type %v", t)
	}
	return store.Put(semanticID, payload, bounds, profile)
}

// Get retrieves a payload by (CacheType, entry id).
func (c *Cache) Get(t cachecube.CacheType, entryID uint64) (Result, error) {
	store, ok := c.stores[t]
	if !ok {
		return Result{}, fmt.Errorf("nodestore: unknown cache type %v", t)
	}
	return store.Get(entryID)
}

// Remove evicts a single entry of the given type.
func (c *Cache) Remove(t cachecube.CacheType, entryID uint64) {
	if store, ok := c.stores[t]; ok {
		store.Remove(entryID)
	}
}

// AllStats returns every type's Stats, keyed by CacheType, the payload
// of a control-connection GET_STATS reply.
func (c *Cache) AllStats() map[cachecube.CacheType]Stats {
	out := make(map[cachecube.CacheType]Stats, len(c.stores))
	for t, store := range c.stores {
		out[t] = store.Stats()
	}
	return out
}
