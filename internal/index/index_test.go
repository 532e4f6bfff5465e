package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/cacheindex"
	"github.com/dreamware/stcache/internal/cube"
	"github.com/dreamware/stcache/internal/proto"
)

func rasterQuery(x0, x1, y0, y1 float64) cachecube.QueryRectangle {
	return cachecube.QueryRectangle{
		Type:   cachecube.CacheTypeRaster,
		Cube:   cachecube.NewQueryCube(cube.NewInterval(x0, x1), cube.NewInterval(y0, y1), cube.NewInterval(0, 1), 4326, 1),
		ScaleX: 1,
		ScaleY: 1,
	}
}

func addNode(s *Server, id uint32, host string, port uint32) *nodeRec {
	rec := &nodeRec{
		id: id, host: host, port: port,
		statsCh:    make(chan proto.NodeStats, 1),
		reorgAckCh: make(chan uint32, 1),
	}
	s.mu.Lock()
	s.nodes[id] = rec
	s.mu.Unlock()
	return rec
}

func addWorker(s *Server, nodeID uint32) *workerConn {
	w := &workerConn{nodeID: nodeID, assignments: make(chan *job, 1), idle: true}
	s.mu.Lock()
	s.workers = append(s.workers, w)
	s.mu.Unlock()
	return w
}

func catalogEntry(s *Server, nodeID uint32, semanticID string, entryID uint64, q cachecube.QueryRectangle, size uint64) {
	s.catalogs[cachecube.CacheTypeRaster].Put(semanticID, cacheindex.Entry{
		CacheEntry: cachecube.CacheEntry{
			Key:    cachecube.NodeCacheKey{SemanticID: semanticID, EntryID: entryID},
			Bounds: cachecube.CacheCube{QueryCube: q.Cube, Resolution: cachecube.NewPixelResolution(1, 1)},
			Size:   size,
		},
		NodeID: nodeID,
	})
}

func TestDecideFullMissYieldsCreate(t *testing.T) {
	s := New(Options{})
	j := s.decide(proto.QueryRequest{SemanticID: "sem", Query: rasterQuery(0, 64, 0, 64)})
	assert.Equal(t, jobCreate, j.kind)
}

func TestDecideFullHitYieldsDeliverOnOwningNode(t *testing.T) {
	s := New(Options{})
	addNode(s, 1, "127.0.0.1", 9000)
	q := rasterQuery(0, 64, 0, 64)
	catalogEntry(s, 1, "sem", 7, q, 4096)

	j := s.decide(proto.QueryRequest{SemanticID: "sem", Query: q})
	require.Equal(t, jobDeliver, j.kind)
	assert.Equal(t, uint32(1), j.targetNode)
	assert.Equal(t, uint64(7), j.ref.EntryID)
	assert.Equal(t, uint32(9000), j.ref.Port)
}

func TestDecidePartialHitYieldsPuzzle(t *testing.T) {
	s := New(Options{})
	addNode(s, 1, "127.0.0.1", 9000)
	catalogEntry(s, 1, "sem", 7, rasterQuery(0, 64, 0, 64), 4096)

	j := s.decide(proto.QueryRequest{SemanticID: "sem", Query: rasterQuery(32, 96, 0, 64)})
	require.Equal(t, jobPuzzle, j.kind)
	assert.Len(t, j.refs, 1)
	assert.NotEmpty(t, j.remainder)
	assert.True(t, j.contributing[1])
}

func TestDecideLowCoverageForcesCreate(t *testing.T) {
	s := New(Options{})
	addNode(s, 1, "127.0.0.1", 9000)
	// Entry covers 5% of the query: below the 0.1 puzzle threshold.
	catalogEntry(s, 1, "sem", 7, rasterQuery(0, 64, 0, 64), 4096)

	j := s.decide(proto.QueryRequest{SemanticID: "sem", Query: rasterQuery(60, 140, 0, 64)})
	assert.Equal(t, jobCreate, j.kind)
}

func TestScheduleFirstFitRespectsLocality(t *testing.T) {
	s := New(Options{})
	w1 := addWorker(s, 1)
	w2 := addWorker(s, 2)

	deliver := newJob(1, jobDeliver, "sem", rasterQuery(0, 64, 0, 64))
	deliver.targetNode = 2

	s.mu.Lock()
	s.pending = append(s.pending, deliver)
	s.scheduleLocked()
	s.mu.Unlock()

	select {
	case got := <-w2.assignments:
		assert.Equal(t, deliver, got)
	default:
		t.Fatal("deliver job was not assigned to the worker on node 2")
	}
	select {
	case <-w1.assignments:
		t.Fatal("worker on node 1 must not receive a deliver job for node 2")
	default:
	}
	assert.True(t, w1.idle)
	assert.False(t, w2.idle)
}

func TestScheduleKeepsUnmatchableJobQueued(t *testing.T) {
	s := New(Options{})
	addWorker(s, 1)

	deliver := newJob(1, jobDeliver, "sem", rasterQuery(0, 64, 0, 64))
	deliver.targetNode = 99

	s.mu.Lock()
	s.pending = append(s.pending, deliver)
	s.scheduleLocked()
	pendingLen := len(s.pending)
	s.mu.Unlock()

	assert.Equal(t, 1, pendingLen, "job with no eligible worker stays queued")
}

func TestScheduleSkipsFaultyWorkers(t *testing.T) {
	s := New(Options{})
	w := addWorker(s, 1)
	w.faulty = true

	create := newJob(1, jobCreate, "sem", rasterQuery(0, 64, 0, 64))
	s.mu.Lock()
	s.pending = append(s.pending, create)
	s.scheduleLocked()
	pendingLen := len(s.pending)
	s.mu.Unlock()

	assert.Equal(t, 1, pendingLen)
}

func TestRetireWorkerReschedulesExactlyOnce(t *testing.T) {
	s := New(Options{})
	w1 := addWorker(s, 1)

	j := newJob(1, jobCreate, "sem", rasterQuery(0, 64, 0, 64))

	s.retireWorker(w1, j)
	s.mu.Lock()
	require.Len(t, s.pending, 1)
	assert.True(t, s.pending[0].rescheduled)
	s.mu.Unlock()

	// A second fault on the same job fails it back to the client.
	w2 := addWorker(s, 1)
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
	s.retireWorker(w2, j)

	select {
	case res := <-j.done:
		assert.NotEmpty(t, res.errMsg)
	default:
		t.Fatal("twice-faulted job must fail back to the client")
	}
}

func TestDropNodePurgesCatalogAndWorkers(t *testing.T) {
	s := New(Options{})
	addNode(s, 1, "127.0.0.1", 9000)
	w := addWorker(s, 1)
	catalogEntry(s, 1, "sem", 7, rasterQuery(0, 64, 0, 64), 4096)

	s.dropNode(1)

	assert.Equal(t, 0, s.catalogs[cachecube.CacheTypeRaster].Len())
	assert.True(t, w.faulty)
	_, ok := s.nodeByID(1)
	assert.False(t, ok)
}

func TestPlanCapacityMovesFromPressuredNode(t *testing.T) {
	s := New(Options{ReorgStrategy: "capacity"})
	addNode(s, 1, "127.0.0.1", 9001)
	addNode(s, 2, "127.0.0.1", 9002)
	catalogEntry(s, 1, "sem-a", 1, rasterQuery(0, 64, 0, 64), 900)
	catalogEntry(s, 1, "sem-b", 2, rasterQuery(64, 128, 0, 64), 900)

	stats := map[uint32]proto.NodeStats{
		1: {NodeID: 1, CacheStats: []proto.CacheStats{{Type: cachecube.CacheTypeRaster, Capacity: 2000, Used: 1800}}},
		2: {NodeID: 2, CacheStats: []proto.CacheStats{{Type: cachecube.CacheTypeRaster, Capacity: 2000, Used: 0}}},
	}

	moves := s.planCapacity(s.snapshotNodes(), stats)
	require.NotEmpty(t, moves)
	for _, m := range moves {
		assert.Equal(t, uint32(1), m.FromNode)
		assert.Equal(t, uint32(2), m.ToNode)
		assert.Equal(t, uint32(9002), m.ToPort)
	}
}

func TestPlanGraphConsolidatesSemanticID(t *testing.T) {
	s := New(Options{ReorgStrategy: "graph"})
	addNode(s, 1, "127.0.0.1", 9001)
	addNode(s, 2, "127.0.0.1", 9002)
	catalogEntry(s, 1, "sem", 1, rasterQuery(0, 64, 0, 64), 4096)
	catalogEntry(s, 1, "sem", 2, rasterQuery(64, 128, 0, 64), 4096)
	catalogEntry(s, 2, "sem", 3, rasterQuery(128, 192, 0, 64), 1024)

	moves := s.planGraph(s.snapshotNodes())
	require.Len(t, moves, 1)
	assert.Equal(t, uint32(2), moves[0].FromNode)
	assert.Equal(t, uint32(1), moves[0].ToNode)
	assert.Equal(t, uint64(3), moves[0].EntryKey.EntryID)
}

func TestPlanGeoRoutesByBand(t *testing.T) {
	s := New(Options{ReorgStrategy: "geo"})
	addNode(s, 1, "127.0.0.1", 9001)
	addNode(s, 2, "127.0.0.1", 9002)
	// Node 1 holds an entry far on the right: the geo plan should send
	// it to node 2, which owns the right band.
	catalogEntry(s, 1, "sem-a", 1, rasterQuery(0, 64, 0, 64), 4096)
	catalogEntry(s, 1, "sem-b", 2, rasterQuery(900, 964, 0, 64), 4096)

	moves := s.planGeo(s.snapshotNodes())
	require.Len(t, moves, 1)
	assert.Equal(t, uint64(2), moves[0].EntryKey.EntryID)
	assert.Equal(t, uint32(2), moves[0].ToNode)
}

func TestRegisterEntryIsIdempotent(t *testing.T) {
	s := New(Options{})
	meta := proto.MetaCacheEntry{
		Key: cachecube.TypedNodeCacheKey{
			NodeCacheKey: cachecube.NodeCacheKey{SemanticID: "sem", EntryID: 1},
			Type:         cachecube.CacheTypeRaster,
		},
		Entry: cachecube.CacheEntry{
			Key:    cachecube.NodeCacheKey{SemanticID: "sem", EntryID: 1},
			Bounds: cachecube.CacheCube{QueryCube: rasterQuery(0, 64, 0, 64).Cube},
		},
	}

	s.registerEntry(1, meta)
	s.registerEntry(1, meta)
	assert.Equal(t, 1, s.catalogs[cachecube.CacheTypeRaster].Len())
}
