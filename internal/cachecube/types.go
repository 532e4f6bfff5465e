package cachecube

import (
	"fmt"

	"github.com/dreamware/stcache/internal/cube"
)

// MinTimeWidth is the minimum width a query's time dimension is forced
// to, so that a point-in-time query still has non-zero volume and can be
// compared for coverage.
const MinTimeWidth = 0.25

// CacheType tags which kind of result a cache entry or query concerns.
type CacheType int

const (
	CacheTypeRaster CacheType = iota
	CacheTypePoint
	CacheTypeLine
	CacheTypePolygon
	CacheTypePlot
)

func (t CacheType) String() string {
	switch t {
	case CacheTypeRaster:
		return "raster"
	case CacheTypePoint:
		return "point"
	case CacheTypeLine:
		return "line"
	case CacheTypePolygon:
		return "polygon"
	case CacheTypePlot:
		return "plot"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// AllCacheTypes lists every CacheType, in the order the node/index
// iterate per-type state (catalogs, capacities, stats).
var AllCacheTypes = []CacheType{CacheTypeRaster, CacheTypePoint, CacheTypeLine, CacheTypePolygon, CacheTypePlot}

// QueryCube is the 3-dimensional (x, y, time) axis-aligned region of a
// query, tagged with the coordinate reference system and time type it is
// expressed in. Two QueryCubes only ever compare or combine when their
// EPSG and TimeType match.
type QueryCube struct {
	Cube     cube.Cube
	EPSG     uint32
	TimeType uint32
}

// NewQueryCube builds a QueryCube, widening the time dimension (index 2)
// to at least MinTimeWidth so its volume is never zero.
func NewQueryCube(x, y, t cube.Interval, epsg, timeType uint32) QueryCube {
	if t.Distance() < MinTimeWidth {
		mid := t.A + t.Distance()/2
		t = cube.NewInterval(mid-MinTimeWidth/2, mid+MinTimeWidth/2)
	}
	return QueryCube{Cube: cube.New(x, y, t), EPSG: epsg, TimeType: timeType}
}

// SameFrame reports whether two query cubes are expressed in the same
// CRS and time type, a precondition for intersecting or combining them.
func (q QueryCube) SameFrame(other QueryCube) bool {
	return q.EPSG == other.EPSG && q.TimeType == other.TimeType
}

// ResolutionType distinguishes how ResolutionInfo.Scale should be
// interpreted. Only PIXELS is used by raster entries today; other result
// kinds carry a zero-value ResolutionInfo that always matches.
type ResolutionType int

const (
	ResolutionNone ResolutionType = iota
	ResolutionPixels
)

// ResolutionInfo describes the allowed pixel-scale interval for a raster
// cache entry: [s, 2s] per axis, plus the scale actually produced. A
// query matches an entry only when both its cube intersects and its
// requested resolution falls inside the entry's scale interval — a
// finer (higher resolution) query must not be served from a coarser
// entry.
type ResolutionInfo struct {
	RestType    ResolutionType
	PixelScaleX cube.Interval
	PixelScaleY cube.Interval
	ActualScaleX float64
	ActualScaleY float64
}

// NewPixelResolution builds a ResolutionInfo whose allowed interval is
// [scale, 2*scale] per axis.
func NewPixelResolution(actualScaleX, actualScaleY float64) ResolutionInfo {
	return ResolutionInfo{
		RestType:     ResolutionPixels,
		PixelScaleX:  cube.NewInterval(actualScaleX, 2*actualScaleX),
		PixelScaleY:  cube.NewInterval(actualScaleY, 2*actualScaleY),
		ActualScaleX: actualScaleX,
		ActualScaleY: actualScaleY,
	}
}

// Matches reports whether a query requesting the given per-axis
// resolution can be served by an entry carrying this ResolutionInfo.
// Non-pixel resolution info (point/line/polygon/plot results) always
// matches: those result kinds have no notion of pixel scale.
func (r ResolutionInfo) Matches(queryScaleX, queryScaleY float64) bool {
	if r.RestType != ResolutionPixels {
		return true
	}
	return r.PixelScaleX.ContainsValue(queryScaleX) && r.PixelScaleY.ContainsValue(queryScaleY)
}

// CacheCube is a QueryCube plus the resolution constraints a raster
// result was computed at (or the zero ResolutionInfo for feature/plot
// results, which carry no pixel scale).
type CacheCube struct {
	QueryCube
	Resolution ResolutionInfo
}

// QueryRectangle is a client's request: the spatio-temporal cube it
// wants, the CacheType it expects, and (for raster requests) the pixel
// resolution it needs served at.
type QueryRectangle struct {
	Type       CacheType
	Cube       QueryCube
	ScaleX     float64
	ScaleY     float64
}

// Volume returns the query's cube volume.
func (q QueryRectangle) Volume() float64 {
	return q.Cube.Cube.Volume()
}

// Profile carries the computational cost that produced a cached result,
// broken down by scope (this operator alone, the whole subtree, or the
// subtree minus already-cached contributions) and by resource (cpu, gpu,
// io).
type Profile struct {
	SelfCPU, SelfGPU, SelfIO         float64
	AllCPU, AllGPU, AllIO            float64
	UncachedCPU, UncachedGPU, UncachedIO float64
}

// NodeCacheKey identifies one cache entry within a single node's store:
// the semantic id of the operator sub-graph that produced it, plus a
// node-local entry id.
type NodeCacheKey struct {
	SemanticID string
	EntryID    uint64
}

func (k NodeCacheKey) String() string {
	return fmt.Sprintf("%s#%d", k.SemanticID, k.EntryID)
}

// TypedNodeCacheKey adds the CacheType a NodeCacheKey belongs to, since
// the same (semantic id, entry id) pair is only unique per type.
type TypedNodeCacheKey struct {
	NodeCacheKey
	Type CacheType
}

// CacheRef is a foreign pointer into another node's cache: enough to
// open a delivery connection to host:port and ask for entry_id.
type CacheRef struct {
	Host    string
	Port    uint32
	EntryID uint64
}

// Node identifies one cache-serving process for the lifetime of its
// control connection.
type Node struct {
	ID   uint32
	Host string
	Port uint32
}

// CacheEntry is the metadata the Index (and the node) keeps about one
// cached result. The payload bytes themselves live only in the node's
// nodestore; the Index holds a shadow copy of this metadata for every
// entry across every node so it can answer queries without contacting
// the node.
type CacheEntry struct {
	Key         NodeCacheKey
	Bounds      CacheCube
	Size        uint64
	Profile     Profile
	LastAccess  int64 // milliseconds since epoch
	AccessCount uint64
}

// Valid reports whether the entry is well formed: its cube must be
// non-empty in all three dimensions, and for raster entries the actual
// pixel scale must lie within the advertised scale interval.
func (e CacheEntry) Valid() bool {
	for i := 0; i < e.Bounds.Cube.Dim(); i++ {
		if e.Bounds.Cube.Dimension(i).Distance() <= 0 {
			return false
		}
	}
	if e.Bounds.Resolution.RestType == ResolutionPixels {
		r := e.Bounds.Resolution
		if !r.PixelScaleX.ContainsValue(r.ActualScaleX) || !r.PixelScaleY.ContainsValue(r.ActualScaleY) {
			return false
		}
	}
	return true
}

// STQueryResult is the outcome of matching a query against a cache
// type's entry index (cacheindex.Query): the union of cube volume
// actually covered by contributing entries, the axis-aligned remainder
// still uncovered, the ids of the contributing entries, and the
// resulting coverage fraction.
type STQueryResult struct {
	Covered   cube.Cube
	Remainder []cube.Cube
	IDs       []uint64
	Coverage  float64
}

// FullHit reports whether exactly one entry fully answers the query:
// ids.len == 1 && remainder.empty.
func (r STQueryResult) FullHit() bool {
	return len(r.IDs) == 1 && len(r.Remainder) == 0
}

// PartialHit reports whether the query is worth puzzling together from
// partial matches: coverage > 0.1 && !remainder.empty.
const PartialHitThreshold = 0.1

func (r STQueryResult) PartialHit() bool {
	return r.Coverage > PartialHitThreshold && len(r.Remainder) > 0
}

// FullMiss reports whether neither FullHit nor PartialHit applies, so
// the query must be computed from scratch.
func (r STQueryResult) FullMiss() bool {
	return !r.FullHit() && !r.PartialHit()
}
