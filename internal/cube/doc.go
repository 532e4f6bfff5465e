// Package cube implements the N-dimensional axis-aligned interval
// primitives the rest of the cache is built on: Interval for a single
// dimension, and Cube for a tuple of intervals.
//
// A Cube supports the set of operations the spatio-temporal cache index
// needs to decide what a query already has cached and what it still has
// to compute: Intersects/Contains for matching, Combine for building the
// covered-so-far hull, and DissectBy for turning "what's left" into a
// canonical, deterministic set of axis-aligned remainder cubes.
//
// Every operation here is pure and allocation-light; callers own
// concurrency. Equality and containment use a small epsilon to absorb
// floating point drift.
package cube
