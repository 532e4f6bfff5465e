package proto

import (
	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/wire"
)

// ControlMessageType tags every message exchanged on a control
// connection after the initial Magic and Hello handshake.
type ControlMessageType uint8

const (
	ControlGetStats ControlMessageType = iota + 1
	ControlStats
	ControlReorg
	ControlReorgAck
	ControlNewEntry
	ControlRemoveEntry
	ControlError
)

func writeControlHeader(w *wire.Writer, t ControlMessageType) {
	w.WriteUint8(uint8(t))
}

func readControlHeader(r *wire.Reader) (ControlMessageType, error) {
	v, err := r.ReadUint8()
	return ControlMessageType(v), err
}

// Hello is the first message a node sends on its control connection,
// announcing its listening address, per-type byte capacities, and
// whatever cache entries it already holds from a previous run. The
// index replies with the Node id it has
// assigned.
type Hello struct {
	Host       string
	Port       uint32
	Capacities map[cachecube.CacheType]uint64
	Entries    []MetaCacheEntry
}

// WriteHello encodes a Hello onto w. Capacities are written in
// AllCacheTypes order so the wire layout does not depend on map
// iteration order.
func WriteHello(w *wire.Writer, h Hello) {
	w.WriteString(h.Host)
	w.WriteUint32(h.Port)
	w.WriteVectorLen(len(cachecube.AllCacheTypes))
	for _, t := range cachecube.AllCacheTypes {
		w.WriteUint32(uint32(t))
		w.WriteUint64(h.Capacities[t])
	}
	WriteVector(w, h.Entries, writeMetaCacheEntry)
}

// ReadHello decodes a Hello from r.
func ReadHello(r *wire.Reader) (Hello, error) {
	host, err := r.ReadString()
	if err != nil {
		return Hello{}, err
	}
	port, err := r.ReadUint32()
	if err != nil {
		return Hello{}, err
	}
	n, err := r.ReadVectorLen()
	if err != nil {
		return Hello{}, err
	}
	caps := make(map[cachecube.CacheType]uint64, n)
	for i := uint64(0); i < n; i++ {
		t, err := r.ReadUint32()
		if err != nil {
			return Hello{}, err
		}
		cap_, err := r.ReadUint64()
		if err != nil {
			return Hello{}, err
		}
		caps[cachecube.CacheType(t)] = cap_
	}
	entries, err := ReadVector(r, readMetaCacheEntry)
	if err != nil {
		return Hello{}, err
	}
	return Hello{Host: host, Port: port, Capacities: caps, Entries: entries}, nil
}

// HelloAck answers Hello with the node id the index has assigned.
type HelloAck struct {
	NodeID uint32
}

func WriteHelloAck(w *wire.Writer, a HelloAck) { w.WriteUint32(a.NodeID) }

func ReadHelloAck(r *wire.Reader) (HelloAck, error) {
	id, err := r.ReadUint32()
	return HelloAck{NodeID: id}, err
}

// CacheStats reports one CacheType's current occupancy on a node.
type CacheStats struct {
	Type         cachecube.CacheType
	Capacity     uint64
	Used         uint64
	EntryCount   uint64
	HitCount     uint64
	MissCount    uint64
	EvictedCount uint64
}

func writeCacheStats(w *wire.Writer, s CacheStats) {
	w.WriteUint32(uint32(s.Type))
	w.WriteUint64(s.Capacity)
	w.WriteUint64(s.Used)
	w.WriteUint64(s.EntryCount)
	w.WriteUint64(s.HitCount)
	w.WriteUint64(s.MissCount)
	w.WriteUint64(s.EvictedCount)
}

func readCacheStats(r *wire.Reader) (CacheStats, error) {
	t, err := r.ReadUint32()
	if err != nil {
		return CacheStats{}, err
	}
	cap_, err := r.ReadUint64()
	if err != nil {
		return CacheStats{}, err
	}
	used, err := r.ReadUint64()
	if err != nil {
		return CacheStats{}, err
	}
	count, err := r.ReadUint64()
	if err != nil {
		return CacheStats{}, err
	}
	hits, err := r.ReadUint64()
	if err != nil {
		return CacheStats{}, err
	}
	misses, err := r.ReadUint64()
	if err != nil {
		return CacheStats{}, err
	}
	evicted, err := r.ReadUint64()
	if err != nil {
		return CacheStats{}, err
	}
	return CacheStats{
		Type: cachecube.CacheType(t), Capacity: cap_, Used: used,
		EntryCount: count, HitCount: hits, MissCount: misses, EvictedCount: evicted,
	}, nil
}

// NodeStats is a node's reply to ControlGetStats: its per-type cache
// occupancy plus worker pool load, used by the index's reorganization
// strategies.
type NodeStats struct {
	NodeID       uint32
	QueueLength  uint32
	ActiveJobs   uint32
	CacheStats   []CacheStats
}

// WriteGetStats writes the (header-only) GET_STATS request.
func WriteGetStats(w *wire.Writer) { writeControlHeader(w, ControlGetStats) }

// WriteNodeStats encodes a NodeStats reply, with its own
// ControlStats header.
func WriteNodeStats(w *wire.Writer, s NodeStats) {
	writeControlHeader(w, ControlStats)
	w.WriteUint32(s.NodeID)
	w.WriteUint32(s.QueueLength)
	w.WriteUint32(s.ActiveJobs)
	WriteVector(w, s.CacheStats, writeCacheStats)
}

// ReadNodeStats decodes a NodeStats reply. Callers must have already
// consumed the ControlStats header via ReadControlHeader.
func ReadNodeStats(r *wire.Reader) (NodeStats, error) {
	id, err := r.ReadUint32()
	if err != nil {
		return NodeStats{}, err
	}
	queue, err := r.ReadUint32()
	if err != nil {
		return NodeStats{}, err
	}
	active, err := r.ReadUint32()
	if err != nil {
		return NodeStats{}, err
	}
	stats, err := ReadVector(r, readCacheStats)
	if err != nil {
		return NodeStats{}, err
	}
	return NodeStats{NodeID: id, QueueLength: queue, ActiveJobs: active, CacheStats: stats}, nil
}

// ReadControlHeader reads the ControlMessageType tagging the next
// message on a control connection.
func ReadControlHeader(r *wire.Reader) (ControlMessageType, error) {
	return readControlHeader(r)
}

// Move is one entry relocation within a ReorgDescription. The source
// node (FromNode, which is the node the description is sent to) pushes
// the entry's payload to the destination over a delivery connection to
// ToHost:ToPort; the destination admits it into its own store and
// reports NEW_ENTRY on its control connection, then the source evicts
// its copy and reports REMOVE_ENTRY. A Move with ToPort == 0 carries
// no destination and just evicts.
type Move struct {
	Type     cachecube.CacheType
	EntryKey cachecube.NodeCacheKey
	FromNode uint32
	ToNode   uint32
	ToHost   string
	ToPort   uint32
}

func writeMove(w *wire.Writer, m Move) {
	w.WriteUint32(uint32(m.Type))
	writeNodeCacheKey(w, m.EntryKey)
	w.WriteUint32(m.FromNode)
	w.WriteUint32(m.ToNode)
	w.WriteString(m.ToHost)
	w.WriteUint32(m.ToPort)
}

func readMove(r *wire.Reader) (Move, error) {
	t, err := r.ReadUint32()
	if err != nil {
		return Move{}, err
	}
	key, err := readNodeCacheKey(r)
	if err != nil {
		return Move{}, err
	}
	from, err := r.ReadUint32()
	if err != nil {
		return Move{}, err
	}
	to, err := r.ReadUint32()
	if err != nil {
		return Move{}, err
	}
	host, err := r.ReadString()
	if err != nil {
		return Move{}, err
	}
	port, err := r.ReadUint32()
	if err != nil {
		return Move{}, err
	}
	return Move{
		Type: cachecube.CacheType(t), EntryKey: key,
		FromNode: from, ToNode: to, ToHost: host, ToPort: port,
	}, nil
}

// ReorgDescription is the index's instruction to a node to migrate or
// evict a set of entries, the outcome of a reorganization pass
// (capacity/graph/geo strategies).
type ReorgDescription struct {
	Moves []Move
}

// WriteReorg encodes a ReorgDescription with its ControlReorg header.
func WriteReorg(w *wire.Writer, d ReorgDescription) {
	writeControlHeader(w, ControlReorg)
	WriteVector(w, d.Moves, writeMove)
}

// ReadReorg decodes a ReorgDescription. Callers must have already
// consumed the ControlReorg header.
func ReadReorg(r *wire.Reader) (ReorgDescription, error) {
	moves, err := ReadVector(r, readMove)
	if err != nil {
		return ReorgDescription{}, err
	}
	return ReorgDescription{Moves: moves}, nil
}

// WriteReorgAck acknowledges a ReorgDescription after every move has
// been carried out (or skipped because the entry had already been
// evicted), reporting how many moves actually completed.
func WriteReorgAck(w *wire.Writer, completed uint32) {
	writeControlHeader(w, ControlReorgAck)
	w.WriteUint32(completed)
}

// ReadReorgAck decodes a reorg acknowledgement. Callers must have
// already consumed the ControlReorgAck header.
func ReadReorgAck(r *wire.Reader) (uint32, error) {
	return r.ReadUint32()
}

// WriteControlError encodes an ERROR message with its ControlError
// header.
func WriteControlError(w *wire.Writer, message string) {
	writeControlHeader(w, ControlError)
	w.WriteString(message)
}

// ReadControlError decodes an ERROR message's text. Callers must have
// already consumed the ControlError header.
func ReadControlError(r *wire.Reader) (string, error) {
	return r.ReadString()
}

// WriteNewEntry encodes a NEW_ENTRY notification: a node telling the
// index's shadow catalog about an entry it just produced or received
// by delivery.
func WriteNewEntry(w *wire.Writer, e MetaCacheEntry) {
	writeControlHeader(w, ControlNewEntry)
	writeMetaCacheEntry(w, e)
}

// ReadNewEntry decodes a NEW_ENTRY notification. Callers must have
// already consumed the ControlNewEntry header.
func ReadNewEntry(r *wire.Reader) (MetaCacheEntry, error) {
	return readMetaCacheEntry(r)
}

// WriteRemoveEntry encodes a removal notification, used both when a
// reorganization evicts an entry and when a node's own LRU
// eviction drops one on its own initiative.
func WriteRemoveEntry(w *wire.Writer, key cachecube.TypedNodeCacheKey) {
	writeControlHeader(w, ControlRemoveEntry)
	writeTypedNodeCacheKey(w, key)
}

// ReadRemoveEntry decodes a removal notification. Callers must have
// already consumed the ControlRemoveEntry header.
func ReadRemoveEntry(r *wire.Reader) (cachecube.TypedNodeCacheKey, error) {
	return readTypedNodeCacheKey(r)
}
