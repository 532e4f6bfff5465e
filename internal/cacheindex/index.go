package cacheindex

import (
	"sort"
	"sync"

	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/cube"
)

// coverageEpsilon bounds the "close enough to fully covered" check in
// Query's greedy loop and stop condition.
const coverageEpsilon = 1e-9

// Entry is one cache entry as known to an Index: the entry's metadata
// plus which node holds its payload. On a node's own local index NodeID
// is always that node's id; on the index server's shadow catalog it
// names whichever node actually produced the entry.
type Entry struct {
	cachecube.CacheEntry
	NodeID uint32
}

// Index is the per-CacheType store of Entry records, keyed by semantic
// id.
type Index struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

// New builds an empty Index.
func New() *Index {
	return &Index{entries: make(map[string][]Entry)}
}

// Put inserts an entry under semanticID. It is idempotent: an entry
// already present with the same (semanticID, EntryID) is left
// unchanged.
func (idx *Index) Put(semanticID string, e Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	bucket := idx.entries[semanticID]
	for _, existing := range bucket {
		if existing.Key.EntryID == e.Key.EntryID {
			return
		}
	}
	e.Key.SemanticID = semanticID
	idx.entries[semanticID] = append(bucket, e)
}

// Remove deletes the entry identified by key, if present.
func (idx *Index) Remove(key cachecube.NodeCacheKey) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	bucket := idx.entries[key.SemanticID]
	for i, e := range bucket {
		if e.Key.EntryID == key.EntryID {
			idx.entries[key.SemanticID] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

// RemoveAllByNode deletes every entry attributed to nodeID, used when a
// node's control connection is lost.
func (idx *Index) RemoveAllByNode(nodeID uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for semanticID, bucket := range idx.entries {
		kept := bucket[:0:0]
		for _, e := range bucket {
			if e.NodeID != nodeID {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(idx.entries, semanticID)
		} else {
			idx.entries[semanticID] = kept
		}
	}
}

// Get returns a copy of every entry stored under semanticID.
func (idx *Index) Get(semanticID string) []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	bucket := idx.entries[semanticID]
	out := make([]Entry, len(bucket))
	copy(out, bucket)
	return out
}

// All returns a copy of every entry in the index across all semantic
// ids, the raw material for a reorganization pass. Entries are
// returned grouped by semantic id, ids in sorted order, so a plan
// built from the same catalog state is deterministic.
func (idx *Index) All() []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	semIDs := make([]string, 0, len(idx.entries))
	for id := range idx.entries {
		semIDs = append(semIDs, id)
	}
	sort.Strings(semIDs)

	var out []Entry
	for _, id := range semIDs {
		out = append(out, idx.entries[id]...)
	}
	return out
}

// Len returns the number of entries currently indexed.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := 0
	for _, bucket := range idx.entries {
		n += len(bucket)
	}
	return n
}

// Query matches a QueryRectangle against every entry stored under
// semanticID:
//
//  1. Keep only entries whose CRS/time-type match the query and whose
//     resolution info admits the query's requested scale.
//  2. Greedily pick entries, each time choosing whichever remaining
//     candidate adds the most newly-covered volume, until no candidate
//     helps or the query is covered within coverageEpsilon.
//  3. Dissect the query cube by the hull of everything picked to get
//     the remainder.
func (idx *Index) Query(semanticID string, query cachecube.QueryRectangle) cachecube.STQueryResult {
	candidates := idx.matchingCandidates(semanticID, query)

	covered := cube.Zero(query.Cube.Cube.Dim())
	var ids []uint64
	queryVol := query.Volume()

	for len(candidates) > 0 {
		bestIdx := -1
		var bestIntersect cube.Cube
		bestGain := coverageEpsilon

		for i, c := range candidates {
			ci, err := c.Bounds.Cube.Intersect(query.Cube.Cube)
			if err != nil {
				continue
			}
			gain := ci.Volume()
			if !covered.Empty() {
				if overlap, err2 := ci.Intersect(covered); err2 == nil {
					gain -= overlap.Volume()
				}
			}
			if gain > bestGain {
				bestGain = gain
				bestIdx = i
				bestIntersect = ci
			}
		}

		if bestIdx == -1 {
			break
		}

		ids = append(ids, candidates[bestIdx].Key.EntryID)
		if covered.Empty() {
			covered = bestIntersect
		} else {
			covered = covered.Combine(bestIntersect)
		}
		candidates = append(candidates[:bestIdx], candidates[bestIdx+1:]...)

		if queryVol-covered.Volume() < coverageEpsilon {
			break
		}
	}

	if covered.Empty() {
		return cachecube.STQueryResult{
			Covered:   covered,
			Remainder: []cube.Cube{query.Cube.Cube},
			IDs:       nil,
			Coverage:  0,
		}
	}

	remainder, err := query.Cube.Cube.DissectBy(covered)
	if err != nil {
		// covered is always built from sub-cubes of the query, so it is
		// always contained in or intersecting it; this should not
		// happen outside of a programming error upstream.
		remainder = nil
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return cachecube.STQueryResult{
		Covered:   covered,
		Remainder: remainder,
		IDs:       ids,
		Coverage:  covered.Volume() / queryVol,
	}
}

func (idx *Index) matchingCandidates(semanticID string, query cachecube.QueryRectangle) []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	bucket := idx.entries[semanticID]
	out := make([]Entry, 0, len(bucket))
	for _, e := range bucket {
		if !e.Bounds.SameFrame(query.Cube) {
			continue
		}
		if !e.Bounds.Resolution.Matches(query.ScaleX, query.ScaleY) {
			continue
		}
		if !e.Bounds.Cube.Intersects(query.Cube.Cube) {
			continue
		}
		out = append(out, e)
	}
	return out
}
