package nodestore

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/dreamware/stcache/internal/cachecube"
)

// ErrNotFound is returned by Get when the requested key is absent from
// the store.
var ErrNotFound = errors.New("nodestore: entry not found")

// ErrCacheOverflow is returned by Put when eviction cannot free enough
// room for the incoming payload; the caller must not treat the entry as
// cached.
var ErrCacheOverflow = errors.New("nodestore: cache overflow")

// IDGenerator hands out entry ids that are unique across every CacheType
// on one node.
type IDGenerator struct {
	next uint64
}

// Next returns the next unused entry id.
func (g *IDGenerator) Next() uint64 {
	return atomic.AddUint64(&g.next, 1)
}

type entry struct {
	key         cachecube.NodeCacheKey
	bounds      cachecube.CacheCube
	profile     cachecube.Profile
	payload     []byte
	lastAccess  int64
	accessCount uint64
}

func (e *entry) size() uint64 { return uint64(len(e.payload)) }

// Store is a single CacheType's payload store on one node: an
// LRU-ordered map from entry id to payload + metadata, bounded by a
// byte capacity.
type Store struct {
	mu       sync.Mutex
	capacity uint64
	used     uint64
	ids      *IDGenerator
	order    *lru.LRU[uint64, *entry]
	hook     func(key cachecube.NodeCacheKey)
}

// SetEvictionHook registers a callback invoked for every entry the
// store drops under LRU pressure or explicit Remove. The hook runs
// with the store's lock held and must not call back into the store;
// callers that need to do real work (notify the index, update a local
// catalog) should hand the key off to a channel.
func (s *Store) SetEvictionHook(hook func(key cachecube.NodeCacheKey)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// New builds a Store with the given byte capacity, handing out entry ids
// from the shared generator ids (shared across a node's CacheType
// stores so entry ids remain globally unique per node).
func New(capacity uint64, ids *IDGenerator) *Store {
	s := &Store{capacity: capacity, ids: ids}
	// simplelru sizes by entry count; we never let it evict on its own
	// (size is effectively unbounded) and instead drive RemoveOldest
	// ourselves against our byte budget. The callback runs for every
	// removal, those RemoveOldest and Store.Remove make alike: it keeps
	// `used` in sync and fires the eviction hook.
	order, err := lru.NewLRU[uint64, *entry](maxLRUEntries, s.onEvicted)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// maxLRUEntries never is.
		panic(fmt.Sprintf("nodestore: building LRU: %v", err))
	}
	s.order = order
	return s
}

// maxLRUEntries bounds simplelru's own entry-count eviction far above
// anything a byte-capacity-bounded store would ever hold; real eviction
// is driven by Store.evictUntilFits against the byte budget.
const maxLRUEntries = 1 << 30

func (s *Store) onEvicted(_ uint64, e *entry) {
	s.used -= e.size()
	if s.hook != nil {
		s.hook(e.key)
	}
}

// Put admits payload into the store under the given semantic id,
// bounds, and profile, evicting least-recently-used entries until there
// is room. Returns the newly assigned entry id, or ErrCacheOverflow if
// even evicting everything else would not make room.
func (s *Store) Put(semanticID string, payload []byte, bounds cachecube.CacheCube, profile cachecube.Profile) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := uint64(len(payload))
	if size > s.capacity {
		return 0, fmt.Errorf("%w: payload of %d bytes exceeds capacity %d", ErrCacheOverflow, size, s.capacity)
	}

	if !s.evictUntilFitsLocked(size) {
		return 0, fmt.Errorf("%w: could not free %d bytes", ErrCacheOverflow, size)
	}

	id := s.ids.Next()
	e := &entry{
		key:        cachecube.NodeCacheKey{SemanticID: semanticID, EntryID: id},
		bounds:     bounds,
		profile:    profile,
		payload:    payload,
		lastAccess: nowMillis(),
	}
	s.order.Add(id, e)
	s.used += size
	return id, nil
}

func (s *Store) evictUntilFitsLocked(incoming uint64) bool {
	for s.used+incoming > s.capacity {
		_, _, ok := s.order.RemoveOldest()
		if !ok {
			return false
		}
	}
	return true
}

// Result is the payload plus metadata returned by Get.
type Result struct {
	Payload []byte
	Entry   cachecube.CacheEntry
}

// Get retrieves a payload by entry id, updating its access statistics.
// Fails with ErrNotFound if the id is absent.
func (s *Store) Get(entryID uint64) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.order.Get(entryID)
	if !ok {
		return Result{}, fmt.Errorf("%w: entry %d", ErrNotFound, entryID)
	}

	e.lastAccess = nowMillis()
	e.accessCount++

	return Result{
		Payload: e.payload,
		Entry: cachecube.CacheEntry{
			Key:         e.key,
			Bounds:      e.bounds,
			Size:        e.size(),
			Profile:     e.profile,
			LastAccess:  e.lastAccess,
			AccessCount: e.accessCount,
		},
	}, nil
}

// Remove evicts a single entry id, if present.
func (s *Store) Remove(entryID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order.Remove(entryID)
}

// Stats summarizes one Store's capacity usage and per-entry access
// counters. The control connection reports Capacity, Used and the
// number of Entries from it; the per-entry counters are not sent.
type Stats struct {
	Capacity uint64
	Used     uint64
	Entries  []EntryStats
}

// EntryStats is one entry's contribution to Stats.
type EntryStats struct {
	EntryID     uint64
	Size        uint64
	AccessCount uint64
	LastAccess  int64
}

// Stats returns a snapshot of the store's current usage and per-entry
// statistics, ordered most-recently-used first.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.order.Keys()
	out := Stats{Capacity: s.capacity, Used: s.used, Entries: make([]EntryStats, 0, len(keys))}
	// Keys() returns oldest-to-newest; report newest-first to match how
	// operators usually want to see "hottest entries" up top.
	for i := len(keys) - 1; i >= 0; i-- {
		e, ok := s.order.Peek(keys[i])
		if !ok {
			continue
		}
		out.Entries = append(out.Entries, EntryStats{
			EntryID:     e.key.EntryID,
			Size:        e.size(),
			AccessCount: e.accessCount,
			LastAccess:  e.lastAccess,
		})
	}
	return out
}

// Len returns the number of entries currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
