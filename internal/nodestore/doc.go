// Package nodestore is the per-node cache payload store. It holds the
// actual payload bytes for every CacheType, evicting
// least-recently-used entries under a byte-capacity budget, and tracks
// per-entry access statistics (access count, last access). The control
// connection's CacheStats carries only each store's capacity, bytes
// used and entry count; the per-entry statistics are not sent.
//
// Ordering for eviction is delegated to
// github.com/hashicorp/golang-lru/v2's simplelru.LRU, which already
// implements the intrusive doubly-linked recency list most LRU caches
// need; Store wraps it with its own byte-budget accounting, since
// simplelru counts entries rather than bytes and the capacity model
// here (cache.raster.size and friends) is a byte budget per CacheType.
package nodestore
