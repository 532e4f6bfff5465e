// Package strategy implements the caching-strategy decision: given the
// profiling data that produced a result and its size in bytes, decide
// whether the result is worth admitting into the node cache. Four
// named strategies are provided: never, always, simple (single
// threshold) and twostep (a cheap-immediate threshold plus a
// cheaper-but-repeated threshold).
//
// Rejection by a strategy is not an error; callers just test the bool.
package strategy
