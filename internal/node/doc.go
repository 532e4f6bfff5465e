// Package node implements component C6: one cache-serving process.
//
// A node owns the payload store (nodestore.Cache) for every CacheType,
// runs a pool of worker loops that execute the index's job commands
// (create, deliver, puzzle), and listens on its own port for delivery
// connections that stream payloads out (or, during reorganization, in).
//
// The node originates both index-facing connections: it dials the
// index's node port twice over — once with MagicControl to register
// (HELLO, stats, reorg) and once per worker thread with MagicWorker to
// offer a job slot. The node's own listener accepts MagicDelivery
// connections from clients and peer nodes, plus MagicClient
// connections as a local shortcut for co-resident callers.
package node
