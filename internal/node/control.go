package node

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/nodestore"
	"github.com/dreamware/stcache/internal/proto"
	"github.com/dreamware/stcache/internal/wire"
)

// controlLink is the node's registration connection to the index:
// HELLO once at dial time, then GET_STATS and REORG requests arriving
// from the index for the connection's lifetime, interleaved with
// node-initiated NEW_ENTRY/REMOVE_ENTRY notifications. All writes are
// serialized through one mutex so a stats reply never tears through
// the middle of an eviction notification.
type controlLink struct {
	conn net.Conn
	r    *wire.Reader

	writeMu sync.Mutex
}

// dialControl registers with the index: magic, HELLO, and the
// HelloAck carrying this node's assigned id.
func dialControl(indexAddr, host string, port uint32, capacities nodestore.Capacities, entries []proto.MetaCacheEntry) (*controlLink, uint32, error) {
	conn, err := net.Dial("tcp", indexAddr)
	if err != nil {
		return nil, 0, fmt.Errorf("dial %s: %w", indexAddr, err)
	}

	caps := make(map[cachecube.CacheType]uint64, len(capacities))
	for t, c := range capacities {
		caps[t] = c
	}

	w := wire.NewWriter()
	proto.WriteMagic(w, proto.MagicControl)
	proto.WriteHello(w, proto.Hello{Host: host, Port: port, Capacities: caps, Entries: entries})
	if err := w.Flush(conn); err != nil {
		conn.Close()
		return nil, 0, fmt.Errorf("send hello: %w", err)
	}

	r := wire.NewReader(bufio.NewReader(conn))
	ack, err := proto.ReadHelloAck(r)
	if err != nil {
		conn.Close()
		return nil, 0, fmt.Errorf("read hello ack: %w", err)
	}

	return &controlLink{conn: conn, r: r}, ack.NodeID, nil
}

func (c *controlLink) Close() error { return c.conn.Close() }

func (c *controlLink) send(w *wire.Writer) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return w.Flush(c.conn)
}

func (c *controlLink) notifyNewEntry(e proto.MetaCacheEntry) error {
	w := wire.NewWriter()
	proto.WriteNewEntry(w, e)
	return c.send(w)
}

func (c *controlLink) notifyRemoveEntry(key cachecube.TypedNodeCacheKey) error {
	w := wire.NewWriter()
	proto.WriteRemoveEntry(w, key)
	return c.send(w)
}

// runControl serves the index's side of the control conversation until
// the connection drops or ctx ends.
func (s *Server) runControl(ctx context.Context, ctrl *controlLink) error {
	for {
		hdr, err := proto.ReadControlHeader(ctrl.r)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("node: control connection lost: %w", err)
		}

		switch hdr {
		case proto.ControlGetStats:
			w := wire.NewWriter()
			proto.WriteNodeStats(w, s.buildStats())
			if err := ctrl.send(w); err != nil {
				return fmt.Errorf("node: send stats: %w", err)
			}

		case proto.ControlReorg:
			desc, err := proto.ReadReorg(ctrl.r)
			if err != nil {
				return fmt.Errorf("node: read reorg: %w", err)
			}
			completed := s.applyReorg(desc)
			w := wire.NewWriter()
			proto.WriteReorgAck(w, completed)
			if err := ctrl.send(w); err != nil {
				return fmt.Errorf("node: ack reorg: %w", err)
			}

		default:
			s.log.Warnw("unexpected control message", "header", uint8(hdr))
		}
	}
}

// applyReorg carries out each move: push the entry's payload to the
// destination node's delivery port, then evict the local copy. An
// entry that is gone by the time the move arrives is skipped; a
// destination that rejects the push leaves the local copy in place.
func (s *Server) applyReorg(desc proto.ReorgDescription) uint32 {
	var completed uint32
	for _, m := range desc.Moves {
		stored, err := s.cache.Get(m.Type, m.EntryKey.EntryID)
		if err != nil {
			continue
		}

		if m.ToPort != 0 {
			meta := proto.MetaCacheEntry{
				Key:   cachecube.TypedNodeCacheKey{NodeCacheKey: stored.Entry.Key, Type: m.Type},
				Entry: stored.Entry,
			}
			if err := pushEntry(m.ToHost, m.ToPort, meta, stored.Payload); err != nil {
				s.log.Warnw("reorg push failed, keeping local copy",
					"entry_id", m.EntryKey.EntryID, "to", fmt.Sprintf("%s:%d", m.ToHost, m.ToPort), "err", err)
				continue
			}
		}

		// Remove triggers the eviction hook, which notifies the index
		// and trims the local catalog.
		s.cache.Remove(m.Type, m.EntryKey.EntryID)
		completed++
	}
	s.log.Infow("reorg applied", "moves", len(desc.Moves), "completed", completed)
	return completed
}
