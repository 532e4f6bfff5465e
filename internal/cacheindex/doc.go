// Package cacheindex implements the cache entry index: a
// per-semantic-id collection of cache entry metadata,
// searchable by spatio-temporal query. Query greedily selects the
// entries that cover the most of a query rectangle, dissects what's left
// into axis-aligned remainder cubes via internal/cube, and classifies
// the result as a full hit, partial hit (worth puzzling), or full miss.
//
// One Index instance holds entries for a single CacheType; the node
// server and the index server each keep a set of these, one per type.
package cacheindex
