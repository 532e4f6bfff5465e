package operator

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"

	"github.com/dreamware/stcache/internal/cachecube"
)

// Stub is a deterministic Evaluator for tests and for running the
// servers without a real evaluation engine attached. For raster
// queries it produces one byte per pixel, a pure function of the
// semantic id and the pixel center's world coordinates, so a raster
// puzzled together from slabs is bytewise identical to the same
// raster computed in one piece (as long as slab edges land on the
// query's pixel grid, which remainders produced by dissection do).
// For feature queries it produces a fixed-size synthetic payload.
//
// Calls counts Evaluate invocations, which the end-to-end tests use
// to prove a full hit never re-ran the operator.
type Stub struct {
	Calls atomic.Int64

	// CostPerPixel scales the synthetic Profile, letting tests steer
	// the caching strategy's admit decision. Zero means each result
	// reports a flat nominal cost.
	CostPerPixel float64
}

// Evaluate produces a deterministic payload for req.
func (s *Stub) Evaluate(_ context.Context, req Request) (Result, error) {
	s.Calls.Add(1)

	if req.Query.Type == cachecube.CacheTypeRaster {
		return s.evaluateRaster(req), nil
	}

	// Feature/plot results: a synthetic self-delimiting payload, 64
	// bytes seeded from the semantic id and cube.
	seed := seedFor(req.SemanticID, req.Query)
	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(seed >> (uint(i%8) * 8))
	}
	return Result{
		Payload: payload,
		Profile: s.profileFor(len(payload)),
	}, nil
}

func (s *Stub) evaluateRaster(req Request) Result {
	xDim := req.Query.Cube.Cube.Dimension(0)
	yDim := req.Query.Cube.Cube.Dimension(1)
	width := int(math.Round(xDim.Distance() / req.Query.ScaleX))
	height := int(math.Round(yDim.Distance() / req.Query.ScaleY))
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	seed := fnv.New64a()
	seed.Write([]byte(req.SemanticID))
	base := seed.Sum64()

	payload := make([]byte, width*height)
	for y := 0; y < height; y++ {
		worldY := yDim.A + (float64(y)+0.5)*req.Query.ScaleY
		for x := 0; x < width; x++ {
			worldX := xDim.A + (float64(x)+0.5)*req.Query.ScaleX
			payload[y*width+x] = pixelValue(base, worldX, worldY)
		}
	}

	return Result{
		Payload:    payload,
		Profile:    s.profileFor(len(payload)),
		Resolution: cachecube.NewPixelResolution(req.Query.ScaleX, req.Query.ScaleY),
	}
}

// pixelValue mixes the semantic seed with the pixel center's world
// coordinates, quantized to millis so float noise across equivalent
// slab computations cannot flip a byte.
func pixelValue(base uint64, worldX, worldY float64) byte {
	qx := int64(math.Round(worldX * 1000))
	qy := int64(math.Round(worldY * 1000))
	v := base ^ uint64(qx)*0x9e3779b97f4a7c15 ^ uint64(qy)*0xbf58476d1ce4e5b9
	v ^= v >> 31
	return byte(v)
}

func (s *Stub) profileFor(bytes int) cachecube.Profile {
	cost := s.CostPerPixel * float64(bytes)
	if s.CostPerPixel == 0 {
		cost = 0.001
	}
	return cachecube.Profile{
		SelfCPU:     cost,
		AllCPU:      cost,
		UncachedCPU: cost,
	}
}

func seedFor(semanticID string, q cachecube.QueryRectangle) uint64 {
	h := fnv.New64a()
	h.Write([]byte(semanticID))
	for i := 0; i < q.Cube.Cube.Dim(); i++ {
		d := q.Cube.Cube.Dimension(i)
		var b [8]byte
		put64(b[:], math.Float64bits(d.A))
		h.Write(b[:])
		put64(b[:], math.Float64bits(d.B))
		h.Write(b[:])
	}
	return h.Sum64()
}

func put64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (uint(i) * 8))
	}
}
