package index

import (
	"context"
	"net"

	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/cacheindex"
	"github.com/dreamware/stcache/internal/proto"
	"github.com/dreamware/stcache/internal/wire"
)

// serveControl registers a node and then serves its control
// conversation: node-initiated entry notifications in, stats and reorg
// replies routed to whoever asked for them. When the connection drops
// the node is torn down: its catalog entries vanish and its workers
// are marked faulty for the next scheduling pass.
func (s *Server) serveControl(ctx context.Context, conn net.Conn, r *wire.Reader) {
	hello, err := proto.ReadHello(r)
	if err != nil {
		s.log.Warnw("control handshake failed", "err", err)
		return
	}

	s.mu.Lock()
	s.nextNodeID++
	id := s.nextNodeID
	rec := &nodeRec{
		id:         id,
		host:       hello.Host,
		port:       hello.Port,
		capacities: hello.Capacities,
		conn:       conn,
		statsCh:    make(chan proto.NodeStats, 1),
		reorgAckCh: make(chan uint32, 1),
	}
	s.nodes[id] = rec
	s.mu.Unlock()

	// Seed the shadow catalog with whatever the node already holds.
	for _, e := range hello.Entries {
		entry := e.Entry
		entry.Key = e.Key.NodeCacheKey
		s.catalogs[e.Key.Type].Put(e.Key.SemanticID, cacheindex.Entry{CacheEntry: entry, NodeID: id})
	}

	ack := wire.NewWriter()
	proto.WriteHelloAck(ack, proto.HelloAck{NodeID: id})
	if err := rec.send(ack); err != nil {
		s.dropNode(id)
		return
	}
	s.log.Infow("node registered", "node_id", id, "addr", hello.Host, "port", hello.Port, "entries", len(hello.Entries))

	defer s.dropNode(id)
	for {
		hdr, err := proto.ReadControlHeader(r)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warnw("control connection lost", "node_id", id, "err", err)
			}
			return
		}

		switch hdr {
		case proto.ControlNewEntry:
			e, err := proto.ReadNewEntry(r)
			if err != nil {
				return
			}
			s.registerEntry(id, e)

		case proto.ControlRemoveEntry:
			key, err := proto.ReadRemoveEntry(r)
			if err != nil {
				return
			}
			s.catalogs[key.Type].Remove(key.NodeCacheKey)

		case proto.ControlStats:
			stats, err := proto.ReadNodeStats(r)
			if err != nil {
				return
			}
			select {
			case rec.statsCh <- stats:
			default:
			}

		case proto.ControlReorgAck:
			n, err := proto.ReadReorgAck(r)
			if err != nil {
				return
			}
			select {
			case rec.reorgAckCh <- n:
			default:
			}

		case proto.ControlError:
			msg, err := proto.ReadControlError(r)
			if err != nil {
				return
			}
			s.log.Warnw("node reported error", "node_id", id, "err", msg)

		default:
			s.log.Warnw("unexpected control message", "node_id", id, "header", uint8(hdr))
			return
		}
	}
}

// registerEntry folds a NEW_ENTRY notification into the shadow
// catalog.
func (s *Server) registerEntry(nodeID uint32, e proto.MetaCacheEntry) {
	entry := e.Entry
	entry.Key = e.Key.NodeCacheKey
	s.catalogs[e.Key.Type].Put(e.Key.SemanticID, cacheindex.Entry{CacheEntry: entry, NodeID: nodeID})
}

// dropNode forgets a node: shadow entries, node record, and its
// workers.
func (s *Server) dropNode(id uint32) {
	s.mu.Lock()
	_, known := s.nodes[id]
	delete(s.nodes, id)
	s.mu.Unlock()
	if !known {
		return
	}

	for _, t := range cachecube.AllCacheTypes {
		s.catalogs[t].RemoveAllByNode(id)
	}
	s.markNodeWorkersFaulty(id)
	s.log.Infow("node dropped", "node_id", id)
}
