// Package integration spins up a real index and node over loopback
// TCP and drives the end-to-end scenarios: cold miss, full
// hit, puzzle composition, and eviction propagation.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/client"
	"github.com/dreamware/stcache/internal/cube"
	"github.com/dreamware/stcache/internal/index"
	"github.com/dreamware/stcache/internal/node"
	"github.com/dreamware/stcache/internal/nodestore"
	"github.com/dreamware/stcache/internal/operator"
	"github.com/dreamware/stcache/internal/strategy"
)

type cluster struct {
	idx    *index.Server
	node   *node.Server
	stub   *operator.Stub
	client *client.Manager
}

func startCluster(t *testing.T, rasterCapacity uint64) *cluster {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	idx := index.New(index.Options{Host: "127.0.0.1", ReorgStrategy: "capacity"})
	go idx.Run(ctx)

	stub := &operator.Stub{}
	n := node.New(node.Options{
		Host:          "127.0.0.1",
		IndexNodeAddr: idx.NodeAddr().String(),
		Workers:       1,
		Capacities:    nodestore.Capacities{cachecube.CacheTypeRaster: rasterCapacity},
		Strategy:      strategy.Always{},
		Evaluator:     stub,
	})
	go n.Run(ctx)

	c := client.New(client.Options{Enabled: true, IndexFrontendAddr: idx.FrontendAddr().String()})
	return &cluster{idx: idx, node: n, stub: stub, client: c}
}

func rasterQuery(x0, x1, y0, y1 float64) cachecube.QueryRectangle {
	return cachecube.QueryRectangle{
		Type:   cachecube.CacheTypeRaster,
		Cube:   cachecube.NewQueryCube(cube.NewInterval(x0, x1), cube.NewInterval(y0, y1), cube.NewInterval(0, 1), 4326, 1),
		ScaleX: 1,
		ScaleY: 1,
	}
}

func TestColdMissComputesAndCatalogs(t *testing.T) {
	cl := startCluster(t, 1<<20)
	q := rasterQuery(0, 64, 0, 64)

	payload, err := cl.client.Query(context.Background(), "graph-a", q)
	require.NoError(t, err)
	assert.Len(t, payload, 64*64, "payload length must equal width*height*bpp")
	assert.Equal(t, int64(1), cl.stub.Calls.Load())

	require.Eventually(t, func() bool {
		return cl.idx.Catalog(cachecube.CacheTypeRaster).Len() == 1
	}, 2*time.Second, 10*time.Millisecond, "NEW_RASTER_ENTRY must land in the index catalog")
}

func TestFullHitSkipsOperator(t *testing.T) {
	cl := startCluster(t, 1<<20)
	q := rasterQuery(0, 64, 0, 64)
	ctx := context.Background()

	first, err := cl.client.Query(ctx, "graph-a", q)
	require.NoError(t, err)
	require.Equal(t, int64(1), cl.stub.Calls.Load())

	second, err := cl.client.Query(ctx, "graph-a", q)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), cl.stub.Calls.Load(), "full hit must be served without re-running the operator")
}

func TestPuzzleMatchesDirectComputation(t *testing.T) {
	cl := startCluster(t, 1<<20)
	ctx := context.Background()

	q1 := rasterQuery(0, 64, 0, 64)
	q2 := rasterQuery(32, 96, 0, 64)

	_, err := cl.client.Query(ctx, "graph-a", q1)
	require.NoError(t, err)

	got, err := cl.client.Query(ctx, "graph-a", q2)
	require.NoError(t, err)

	// An independent stub gives the direct answer without disturbing
	// the cluster's call counter.
	reference := &operator.Stub{}
	want, err := reference.Evaluate(ctx, operator.Request{SemanticID: "graph-a", Query: q2})
	require.NoError(t, err)

	assert.Equal(t, want.Payload, got, "puzzled raster must equal the directly computed raster")
}

func TestEvictionPropagatesToIndexCatalog(t *testing.T) {
	// Capacity fits exactly one 64x64 single-byte raster.
	cl := startCluster(t, 5000)
	ctx := context.Background()

	qa := rasterQuery(0, 64, 0, 64)
	qb := rasterQuery(100, 164, 0, 64)

	_, err := cl.client.Query(ctx, "graph-a", qa)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(cl.idx.Catalog(cachecube.CacheTypeRaster).Get("graph-a")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err = cl.client.Query(ctx, "graph-b", qb)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(cl.idx.Catalog(cachecube.CacheTypeRaster).Get("graph-a")) == 0
	}, 2*time.Second, 10*time.Millisecond, "evicted entry must disappear from the index catalog")
	require.Eventually(t, func() bool {
		return len(cl.idx.Catalog(cachecube.CacheTypeRaster).Get("graph-b")) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDistinctSemanticIDsDoNotShareEntries(t *testing.T) {
	cl := startCluster(t, 1<<20)
	ctx := context.Background()
	q := rasterQuery(0, 64, 0, 64)

	a, err := cl.client.Query(ctx, "graph-a", q)
	require.NoError(t, err)
	b, err := cl.client.Query(ctx, "graph-b", q)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "different operator graphs must produce different results")
	assert.Equal(t, int64(2), cl.stub.Calls.Load())
}
