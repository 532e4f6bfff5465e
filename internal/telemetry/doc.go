// Package telemetry wraps the structured-logging and metrics ambient
// stack every server in this repository is built on: a zap logger for
// the one-log-statement-per-state-transition style the servers follow
// (register, handshake, fault, reschedule, reorg), and a small set of
// Prometheus collectors for cache hit/miss/eviction counters and
// per-type occupancy gauges. The control-connection NodeStats/CacheStats
// wire structs are built from the node store's own accounting, not
// from these collectors.
package telemetry
