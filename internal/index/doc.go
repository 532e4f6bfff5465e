// Package index implements the index server: the global catalog of
// what every node holds, the dispatcher that turns a client's query
// into a Create/Deliver/Puzzle job and schedules it onto an idle
// worker connection, and the periodic reorganization pass.
//
// The index runs two listeners: a frontend port that clients dial to
// submit queries, and a node port that nodes dial to register
// (MagicControl) and to offer worker slots the index can dispatch
// commands through (MagicWorker). Each accepted connection is served
// by its own goroutine performing blocking framed reads, relying on
// the runtime's network poller for multiplexing. Externally that
// preserves per-connection FIFO ordering, deterministic first-fit
// worker scheduling, faulty-connection retirement, and exactly-once
// job rescheduling.
package index
