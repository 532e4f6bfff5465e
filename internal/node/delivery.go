package node

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/cacheindex"
	"github.com/dreamware/stcache/internal/proto"
	"github.com/dreamware/stcache/internal/wire"
)

// deliveryRegistry hands out one-shot delivery ids. A registered
// payload is held until redeemed exactly once; a second redemption of
// the same id misses, which also makes replayed delivery requests
// harmless.
type deliveryRegistry struct {
	mu      sync.Mutex
	pending map[uint64]proto.DeliveryPayload
}

func newDeliveryRegistry() *deliveryRegistry {
	return &deliveryRegistry{pending: make(map[uint64]proto.DeliveryPayload)}
}

// Register stores payload under a fresh id. Ids are minted from the
// leading half of a v4 UUID rather than a counter so they are not
// guessable across nodes.
func (d *deliveryRegistry) Register(entry cachecube.CacheEntry, payload []byte) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		u := uuid.New()
		id := binary.LittleEndian.Uint64(u[:8])
		if _, taken := d.pending[id]; taken || id == 0 {
			continue
		}
		d.pending[id] = proto.DeliveryPayload{Entry: entry, Payload: payload}
		return id
	}
}

// Redeem removes and returns the payload for id.
func (d *deliveryRegistry) Redeem(id uint64) (proto.DeliveryPayload, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pending[id]
	if ok {
		delete(d.pending, id)
	}
	return p, ok
}

// serveDelivery answers one delivery conversation: fetch by delivery
// id, fetch by entry key, or ingest an entry pushed from a peer during
// reorganization.
func (s *Server) serveDelivery(conn net.Conn, r *wire.Reader) {
	kind, err := proto.ReadDeliveryFetchKind(r)
	if err != nil {
		return
	}

	w := wire.NewWriter()
	switch kind {
	case proto.FetchByDeliveryID:
		id, err := r.ReadUint64()
		if err != nil {
			return
		}
		p, ok := s.deliveries.Redeem(id)
		if !ok {
			proto.WriteDeliveryStatus(w, proto.DeliveryMissing)
			break
		}
		proto.WriteDeliveryStatus(w, proto.DeliveryFound)
		proto.WriteDeliveryPayload(w, p.Entry, p.Payload)

	case proto.FetchByEntry:
		t, id, err := proto.ReadDeliveryFetchEntry(r)
		if err != nil {
			return
		}
		stored, err := s.cache.Get(t, id)
		if err != nil {
			if s.metrics != nil {
				s.metrics.ObserveMiss(t)
			}
			proto.WriteDeliveryStatus(w, proto.DeliveryMissing)
			break
		}
		if s.metrics != nil {
			s.metrics.ObserveHit(t)
		}
		proto.WriteDeliveryStatus(w, proto.DeliveryFound)
		proto.WriteDeliveryPayload(w, stored.Entry, stored.Payload)

	case proto.IngestEntry:
		meta, payload, err := proto.ReadDeliveryIngest(r)
		if err != nil {
			return
		}
		id, err := s.cache.Put(meta.Key.Type, meta.Key.SemanticID, payload, meta.Entry.Bounds, meta.Entry.Profile)
		if err != nil {
			proto.WriteDeliveryStatus(w, proto.DeliveryRejected)
			break
		}
		entry := meta.Entry
		entry.Key = cachecube.NodeCacheKey{SemanticID: meta.Key.SemanticID, EntryID: id}
		s.catalog[meta.Key.Type].Put(meta.Key.SemanticID, cacheindex.Entry{CacheEntry: entry, NodeID: s.NodeID()})
		if ctrl := s.controlLink(); ctrl != nil {
			_ = ctrl.notifyNewEntry(proto.MetaCacheEntry{
				Key:   cachecube.TypedNodeCacheKey{NodeCacheKey: entry.Key, Type: meta.Key.Type},
				Entry: entry,
			})
		}
		proto.WriteDeliveryStatus(w, proto.DeliveryFound)

	default:
		return
	}

	if err := w.Flush(conn); err != nil {
		s.log.Debugw("delivery write failed", "err", err)
	}
}

func (s *Server) controlLink() *controlLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl
}

// fetchByEntry pulls a CacheRef's payload off the node that holds it,
// the puzzling worker's path to remote pieces.
func fetchByEntry(t cachecube.CacheType, ref cachecube.CacheRef) (proto.DeliveryPayload, error) {
	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", ref.Host, ref.Port))
	if err != nil {
		return proto.DeliveryPayload{}, fmt.Errorf("node: dial delivery %s:%d: %w", ref.Host, ref.Port, err)
	}
	defer conn.Close()

	w := wire.NewWriter()
	proto.WriteMagic(w, proto.MagicDelivery)
	proto.WriteDeliveryFetchEntry(w, t, ref.EntryID)
	if err := w.Flush(conn); err != nil {
		return proto.DeliveryPayload{}, err
	}

	r := wire.NewReader(bufio.NewReader(conn))
	status, err := proto.ReadDeliveryStatus(r)
	if err != nil {
		return proto.DeliveryPayload{}, err
	}
	if status != proto.DeliveryFound {
		return proto.DeliveryPayload{}, fmt.Errorf("node: entry %d not resident on %s:%d", ref.EntryID, ref.Host, ref.Port)
	}
	return proto.ReadDeliveryPayload(r)
}

// FetchByDeliveryID redeems a DeliveryResponse against the node that
// issued it. Shared with the client package, which performs the same
// final step of every query.
func FetchByDeliveryID(host string, port uint32, deliveryID uint64) (proto.DeliveryPayload, error) {
	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return proto.DeliveryPayload{}, fmt.Errorf("node: dial delivery %s:%d: %w", host, port, err)
	}
	defer conn.Close()

	w := wire.NewWriter()
	proto.WriteMagic(w, proto.MagicDelivery)
	proto.WriteDeliveryFetchByID(w, deliveryID)
	if err := w.Flush(conn); err != nil {
		return proto.DeliveryPayload{}, err
	}

	r := wire.NewReader(bufio.NewReader(conn))
	status, err := proto.ReadDeliveryStatus(r)
	if err != nil {
		return proto.DeliveryPayload{}, err
	}
	if status != proto.DeliveryFound {
		return proto.DeliveryPayload{}, fmt.Errorf("node: delivery %d expired or unknown", deliveryID)
	}
	return proto.ReadDeliveryPayload(r)
}

// pushEntry streams an entry into a peer node's store during a
// reorganization move.
func pushEntry(host string, port uint32, meta proto.MetaCacheEntry, payload []byte) error {
	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("node: dial ingest %s:%d: %w", host, port, err)
	}
	defer conn.Close()

	w := wire.NewWriter()
	proto.WriteMagic(w, proto.MagicDelivery)
	proto.WriteDeliveryIngest(w, meta, payload)
	if err := w.Flush(conn); err != nil {
		return err
	}

	r := wire.NewReader(bufio.NewReader(conn))
	status, err := proto.ReadDeliveryStatus(r)
	if err != nil {
		return err
	}
	if status != proto.DeliveryFound {
		return fmt.Errorf("node: peer %s:%d rejected ingest", host, port)
	}
	return nil
}
