package operator

import (
	"context"

	"github.com/dreamware/stcache/internal/cachecube"
)

// Request is everything an Evaluator needs to produce one result: the
// semantic id of the operator sub-graph and the spatio-temporal slab
// to evaluate it over. semanticID is opaque here; the system upstream
// treats it only as a cache key.
type Request struct {
	SemanticID string
	Query      cachecube.QueryRectangle
}

// Result is what evaluating a graph over a slab produces: the raw
// payload (an encoded raster tile, a feature collection, a plot
// image), the cost it took broken down by scope, and, for raster
// results, the pixel resolution actually produced.
type Result struct {
	Payload    []byte
	Profile    cachecube.Profile
	Resolution cachecube.ResolutionInfo
}

// Evaluator computes one slab of one operator graph. Implementations
// are supplied by the embedding system; this package only ships Stub,
// a deterministic fake used by this repo's own tests.
type Evaluator interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}
