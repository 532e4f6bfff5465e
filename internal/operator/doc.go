// Package operator defines the boundary between the cache/routing
// system and actual operator-graph evaluation. Evaluation itself is
// out of scope for this module: this package is the seam a real
// evaluation engine plugs into, not an implementation of one.
//
// A Node never interprets an operator graph itself; it hands a
// semantic id and a query rectangle to an Evaluator and gets back raw
// payload bytes, a cost Profile, and (for raster results) the
// resolution the payload was actually produced at. Everything
// upstream of that boundary — caching, matching, puzzling, eviction —
// is indifferent to what the graph actually computes.
package operator
