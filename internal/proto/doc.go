// Package proto implements the typed wire messages exchanged between
// clients, nodes, and the index, on top of internal/wire: the
// magic-number connection-role handshake, the control-connection
// protocol between a node and the index (HELLO, GET_STATS, REORG), the
// worker-connection protocol used to dispatch and report on
// operator-graph jobs (CMD_CREATE_RASTER, CMD_DELIVER_RASTER,
// CMD_PUZZLE_RASTER, DONE, ERROR, NEW_ENTRY,
// RASTER_QUERY_REQUESTED/HIT/PARTIAL_HIT/MISS), the client-facing
// request/response framing, and the delivery-port conversation.
//
// Field order on the wire is fixed per message and does not
// necessarily match the order fields are declared in the corresponding
// Go struct; the read and write functions in this package are the only
// authority on layout.
package proto
