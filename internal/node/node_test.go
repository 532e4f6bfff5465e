package node

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/cube"
	"github.com/dreamware/stcache/internal/nodestore"
	"github.com/dreamware/stcache/internal/operator"
	"github.com/dreamware/stcache/internal/strategy"
)

func testServer(strat strategy.Strategy) *Server {
	return New(Options{
		Host:       "127.0.0.1",
		Capacities: nodestore.Capacities{cachecube.CacheTypeRaster: 1 << 20},
		Strategy:   strat,
		Evaluator:  &operator.Stub{},
	})
}

func rasterQuery(x0, x1, y0, y1 float64) cachecube.QueryRectangle {
	return cachecube.QueryRectangle{
		Type:   cachecube.CacheTypeRaster,
		Cube:   cachecube.NewQueryCube(cube.NewInterval(x0, x1), cube.NewInterval(y0, y1), cube.NewInterval(0, 1), 4326, 1),
		ScaleX: 1,
		ScaleY: 1,
	}
}

func TestDeliveryRegistryRedeemsOnce(t *testing.T) {
	reg := newDeliveryRegistry()
	entry := cachecube.CacheEntry{Key: cachecube.NodeCacheKey{SemanticID: "sem", EntryID: 1}}
	payload := []byte{1, 2, 3}

	id := reg.Register(entry, payload)
	require.NotZero(t, id)

	p, ok := reg.Redeem(id)
	require.True(t, ok)
	assert.Equal(t, payload, p.Payload)

	_, ok = reg.Redeem(id)
	assert.False(t, ok, "second redemption of the same id must miss")
}

func TestAdmitRespectsStrategy(t *testing.T) {
	q := rasterQuery(0, 16, 0, 16)
	bounds := cachecube.CacheCube{QueryCube: q.Cube, Resolution: cachecube.NewPixelResolution(1, 1)}
	payload := make([]byte, 256)

	s := testServer(strategy.Never{})
	_, cached := s.admit(cachecube.CacheTypeRaster, "sem", payload, bounds, cachecube.Profile{})
	assert.False(t, cached)
	assert.Equal(t, 0, s.cache.Store(cachecube.CacheTypeRaster).Len())

	s = testServer(strategy.Always{})
	entry, cached := s.admit(cachecube.CacheTypeRaster, "sem", payload, bounds, cachecube.Profile{})
	require.True(t, cached)
	assert.NotZero(t, entry.Key.EntryID)
	assert.Equal(t, 1, s.cache.Store(cachecube.CacheTypeRaster).Len())
	assert.Equal(t, 1, s.catalog[cachecube.CacheTypeRaster].Len())
}

func TestAdmitOverflowIsNotFatal(t *testing.T) {
	s := New(Options{
		Host:       "127.0.0.1",
		Capacities: nodestore.Capacities{cachecube.CacheTypeRaster: 16},
		Strategy:   strategy.Always{},
		Evaluator:  &operator.Stub{},
	})
	q := rasterQuery(0, 16, 0, 16)
	bounds := cachecube.CacheCube{QueryCube: q.Cube, Resolution: cachecube.NewPixelResolution(1, 1)}

	_, cached := s.admit(cachecube.CacheTypeRaster, "sem", make([]byte, 256), bounds, cachecube.Profile{})
	assert.False(t, cached, "oversized payload must be served uncached, not fail the job")
}

// TestAssemblePuzzleMatchesDirectEvaluation checks that a
// raster puzzled together from a cached piece and a computed
// remainder is bytewise identical to computing the whole query
// directly.
func TestAssemblePuzzleMatchesDirectEvaluation(t *testing.T) {
	stub := &operator.Stub{}
	s := testServer(strategy.Always{})
	ctx := context.Background()

	q1 := rasterQuery(0, 64, 0, 64)
	q2 := rasterQuery(32, 96, 0, 64)

	left, err := stub.Evaluate(ctx, operator.Request{SemanticID: "sem", Query: q1})
	require.NoError(t, err)

	remainderCube := cube.New3(64, 96, 0, 64, q2.Cube.Cube.Dimension(2).A, q2.Cube.Cube.Dimension(2).B)
	remainder, err := stub.Evaluate(ctx, operator.Request{SemanticID: "sem", Query: subQuery(q2, remainderCube)})
	require.NoError(t, err)

	contributions := []contribution{
		{extent: remainderCube, width: 32, height: 64, payload: remainder.Payload},
		{extent: q1.Cube.Cube, width: 64, height: 64, payload: left.Payload},
	}
	got, err := s.assemble(q2, contributions)
	require.NoError(t, err)

	want, err := stub.Evaluate(ctx, operator.Request{SemanticID: "sem", Query: q2})
	require.NoError(t, err)
	assert.Equal(t, want.Payload, got)
}

func TestAssembleFailsOnUncoveredQuery(t *testing.T) {
	s := testServer(strategy.Always{})
	q := rasterQuery(0, 64, 0, 64)

	contributions := []contribution{
		{extent: cube.New3(0, 32, 0, 64, 0, 1), width: 32, height: 64, payload: make([]byte, 32*64)},
	}
	_, err := s.assemble(q, contributions)
	require.Error(t, err)
}

func TestAssembleFeaturesConcatenatesIntersecting(t *testing.T) {
	s := testServer(strategy.Always{})
	q := cachecube.QueryRectangle{
		Type: cachecube.CacheTypePoint,
		Cube: cachecube.NewQueryCube(cube.NewInterval(0, 10), cube.NewInterval(0, 10), cube.NewInterval(0, 1), 4326, 1),
	}

	contributions := []contribution{
		{extent: cube.New3(0, 10, 0, 10, 0, 1), payload: []byte("inside;")},
	}
	got, err := s.assemble(q, contributions)
	require.NoError(t, err)
	assert.Equal(t, []byte("inside;"), got)
}

func TestEvictionHookEmitsNotification(t *testing.T) {
	s := New(Options{
		Host:       "127.0.0.1",
		Capacities: nodestore.Capacities{cachecube.CacheTypeRaster: 300},
		Strategy:   strategy.Always{},
		Evaluator:  &operator.Stub{},
	})
	q := rasterQuery(0, 16, 0, 16)
	bounds := cachecube.CacheCube{QueryCube: q.Cube, Resolution: cachecube.NewPixelResolution(1, 1)}

	first, cached := s.admit(cachecube.CacheTypeRaster, "sem-a", make([]byte, 256), bounds, cachecube.Profile{})
	require.True(t, cached)
	_, cached = s.admit(cachecube.CacheTypeRaster, "sem-b", make([]byte, 256), bounds, cachecube.Profile{})
	require.True(t, cached)

	select {
	case key := <-s.evictions:
		assert.Equal(t, first.Key.EntryID, key.EntryID)
		assert.Equal(t, cachecube.CacheTypeRaster, key.Type)
	default:
		t.Fatal("expected an eviction notification for the first entry")
	}
}

func TestSubQueryKeepsFrameAndResolution(t *testing.T) {
	q := rasterQuery(0, 64, 0, 64)
	slab := cube.New3(32, 64, 0, 64, 0, 1)

	sub := subQuery(q, slab)
	assert.Equal(t, q.Cube.EPSG, sub.Cube.EPSG)
	assert.Equal(t, q.Cube.TimeType, sub.Cube.TimeType)
	assert.Equal(t, q.ScaleX, sub.ScaleX)
	assert.True(t, sub.Cube.Cube.Equal(slab))
}

func TestPixelSizeRoundsAndClamps(t *testing.T) {
	w, h := pixelSize(cube.New3(0, 64, 0, 32, 0, 1), 1, 1)
	assert.Equal(t, 64, w)
	assert.Equal(t, 32, h)

	w, h = pixelSize(cube.New3(0, 0.2, 0, 0.2, 0, 1), 1, 1)
	assert.Equal(t, 1, w)
	assert.Equal(t, 1, h)
}
