package index

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/cacheindex"
	"github.com/dreamware/stcache/internal/proto"
	"github.com/dreamware/stcache/internal/wire"
)

// reorgStatsTimeout bounds how long a reorganization pass waits for
// any single node's stats reply before skipping that node.
const reorgStatsTimeout = 2 * time.Second

// capacityPressure is the used/capacity fraction above which the
// capacity strategy starts moving entries off a node.
const capacityPressure = 0.8

// Reorganize runs one reorganization pass: refresh stats from every
// node, compute a plan under the configured strategy, and push each
// source node's moves over its control connection. Normal
// scheduling continues while this runs; the catalog is updated through
// the NEW_ENTRY/REMOVE_ENTRY notifications the moves generate, not by
// this function.
func (s *Server) Reorganize(ctx context.Context) error {
	nodes := s.snapshotNodes()
	if len(nodes) < 2 {
		return nil
	}

	stats := s.gatherStats(ctx, nodes)

	var moves []proto.Move
	switch s.opts.ReorgStrategy {
	case "graph":
		moves = s.planGraph(nodes)
	case "geo":
		moves = s.planGeo(nodes)
	default: // "capacity"
		moves = s.planCapacity(nodes, stats)
	}
	if len(moves) == 0 {
		return nil
	}
	s.log.Infow("reorg plan computed", "strategy", s.opts.ReorgStrategy, "moves", len(moves))

	bySource := make(map[uint32][]proto.Move)
	for _, m := range moves {
		bySource[m.FromNode] = append(bySource[m.FromNode], m)
	}

	g, ctx := errgroup.WithContext(ctx)
	for from, ms := range bySource {
		from, ms := from, ms
		src, ok := nodes[from]
		if !ok {
			continue
		}
		g.Go(func() error {
			w := wire.NewWriter()
			proto.WriteReorg(w, proto.ReorgDescription{Moves: ms})
			if err := src.send(w); err != nil {
				return fmt.Errorf("index: push reorg to node %d: %w", from, err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case n := <-src.reorgAckCh:
				s.log.Infow("reorg acked", "node_id", from, "completed", n, "planned", len(ms))
				return nil
			}
		})
	}
	return g.Wait()
}

// RunReorgLoop triggers Reorganize on a fixed period until ctx ends.
func (s *Server) RunReorgLoop(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Reorganize(ctx); err != nil && ctx.Err() == nil {
				s.log.Warnw("reorg pass failed", "err", err)
			}
		}
	}
}

func (s *Server) snapshotNodes() map[uint32]*nodeRec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint32]*nodeRec, len(s.nodes))
	for id, n := range s.nodes {
		out[id] = n
	}
	return out
}

// gatherStats asks each node for fresh stats, in parallel, tolerating
// slow or dead nodes by skipping them after reorgStatsTimeout.
func (s *Server) gatherStats(ctx context.Context, nodes map[uint32]*nodeRec) map[uint32]proto.NodeStats {
	type reply struct {
		id    uint32
		stats proto.NodeStats
		ok    bool
	}
	replies := make(chan reply, len(nodes))

	var g errgroup.Group
	for id, n := range nodes {
		id, n := id, n
		g.Go(func() error {
			w := wire.NewWriter()
			proto.WriteGetStats(w)
			if err := n.send(w); err != nil {
				replies <- reply{id: id}
				return nil
			}
			select {
			case stats := <-n.statsCh:
				replies <- reply{id: id, stats: stats, ok: true}
			case <-time.After(reorgStatsTimeout):
				replies <- reply{id: id}
			case <-ctx.Done():
				replies <- reply{id: id}
			}
			return nil
		})
	}
	g.Wait()
	close(replies)

	out := make(map[uint32]proto.NodeStats, len(nodes))
	for r := range replies {
		if r.ok {
			out[r.id] = r.stats
		}
	}
	return out
}

// entriesByNode splits every catalog entry by owning node, each
// entry tagged with its CacheType.
func (s *Server) entriesByNode() map[uint32][]proto.MetaCacheEntry {
	out := make(map[uint32][]proto.MetaCacheEntry)
	for _, t := range cachecube.AllCacheTypes {
		for _, e := range s.catalogs[t].All() {
			out[e.NodeID] = append(out[e.NodeID], proto.MetaCacheEntry{
				Key:   cachecube.TypedNodeCacheKey{NodeCacheKey: e.Key, Type: t},
				Entry: e.CacheEntry,
			})
		}
	}
	return out
}

func sortedNodeIDs(nodes map[uint32]*nodeRec) []uint32 {
	ids := maps.Keys(nodes)
	slices.Sort(ids)
	return ids
}

// planCapacity moves entries off nodes above capacityPressure toward
// the node with the most free room, least-recently-accessed entries
// first, until the source drops back under pressure.
func (s *Server) planCapacity(nodes map[uint32]*nodeRec, stats map[uint32]proto.NodeStats) []proto.Move {
	byNode := s.entriesByNode()

	used := make(map[uint32]uint64, len(stats))
	capTotal := make(map[uint32]uint64, len(stats))
	for id, st := range stats {
		for _, cs := range st.CacheStats {
			used[id] += cs.Used
			capTotal[id] += cs.Capacity
		}
	}

	free := func(id uint32) int64 { return int64(capTotal[id]) - int64(used[id]) }

	var moves []proto.Move
	for _, src := range sortedNodeIDs(nodes) {
		if capTotal[src] == 0 || float64(used[src])/float64(capTotal[src]) <= capacityPressure {
			continue
		}

		entries := append([]proto.MetaCacheEntry(nil), byNode[src]...)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Entry.LastAccess < entries[j].Entry.LastAccess })

		for _, e := range entries {
			if float64(used[src])/float64(capTotal[src]) <= capacityPressure {
				break
			}
			// Best destination: most free room, and enough of it.
			var dst uint32
			var dstFree int64
			for _, cand := range sortedNodeIDs(nodes) {
				if cand == src {
					continue
				}
				if f := free(cand); f > dstFree && f >= int64(e.Entry.Size) {
					dst, dstFree = cand, f
				}
			}
			if dst == 0 {
				break
			}
			moves = append(moves, proto.Move{
				Type:     e.Key.Type,
				EntryKey: e.Key.NodeCacheKey,
				FromNode: src,
				ToNode:   dst,
				ToHost:   nodes[dst].host,
				ToPort:   nodes[dst].port,
			})
			used[src] -= e.Entry.Size
			used[dst] += e.Entry.Size
		}
	}
	return moves
}

// planGraph co-locates entries sharing a semantic id: every id whose
// entries are spread across nodes is consolidated onto whichever node
// already holds the most bytes of it.
func (s *Server) planGraph(nodes map[uint32]*nodeRec) []proto.Move {
	var moves []proto.Move
	for _, t := range cachecube.AllCacheTypes {
		bySem := make(map[string][]cacheindex.Entry)
		for _, e := range s.catalogs[t].All() {
			bySem[e.Key.SemanticID] = append(bySem[e.Key.SemanticID], e)
		}

		semIDs := maps.Keys(bySem)
		slices.Sort(semIDs)

		for _, sem := range semIDs {
			entries := bySem[sem]
			bytesOn := make(map[uint32]uint64)
			for _, e := range entries {
				bytesOn[e.NodeID] += e.Size
			}
			if len(bytesOn) < 2 {
				continue
			}

			var home uint32
			var homeBytes uint64
			for _, id := range sortedNodeIDs(nodes) {
				if bytesOn[id] > homeBytes {
					home, homeBytes = id, bytesOn[id]
				}
			}
			if home == 0 {
				continue
			}

			for _, e := range entries {
				if e.NodeID == home {
					continue
				}
				if _, ok := nodes[e.NodeID]; !ok {
					continue
				}
				moves = append(moves, proto.Move{
					Type:     t,
					EntryKey: e.Key,
					FromNode: e.NodeID,
					ToNode:   home,
					ToHost:   nodes[home].host,
					ToPort:   nodes[home].port,
				})
			}
		}
	}
	return moves
}

// planGeo co-locates entries by region: the x-axis extent spanned by
// the whole catalog is cut into one band per node (in node id order),
// and each entry is routed to the node owning the band its cube's
// center falls in.
func (s *Server) planGeo(nodes map[uint32]*nodeRec) []proto.Move {
	ids := sortedNodeIDs(nodes)
	if len(ids) < 2 {
		return nil
	}

	minX, maxX := 0.0, 0.0
	first := true
	type placed struct {
		t cachecube.CacheType
		e cacheindex.Entry
	}
	var all []placed
	for _, t := range cachecube.AllCacheTypes {
		for _, e := range s.catalogs[t].All() {
			d := e.Bounds.Cube.Dimension(0)
			if first {
				minX, maxX = d.A, d.B
				first = false
			} else {
				if d.A < minX {
					minX = d.A
				}
				if d.B > maxX {
					maxX = d.B
				}
			}
			all = append(all, placed{t: t, e: e})
		}
	}
	if first || maxX <= minX {
		return nil
	}

	bandWidth := (maxX - minX) / float64(len(ids))
	var moves []proto.Move
	for _, p := range all {
		d := p.e.Bounds.Cube.Dimension(0)
		center := (d.A + d.B) / 2
		band := int((center - minX) / bandWidth)
		if band >= len(ids) {
			band = len(ids) - 1
		}
		if band < 0 {
			band = 0
		}
		home := ids[band]
		if p.e.NodeID == home {
			continue
		}
		if _, ok := nodes[p.e.NodeID]; !ok {
			continue
		}
		moves = append(moves, proto.Move{
			Type:     p.t,
			EntryKey: p.e.Key,
			FromNode: p.e.NodeID,
			ToNode:   home,
			ToHost:   nodes[home].host,
			ToPort:   nodes[home].port,
		})
	}
	return moves
}
