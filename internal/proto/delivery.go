package proto

import (
	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/wire"
)

// DeliveryFetchKind is the first byte after the MagicDelivery
// handshake, saying what the requester wants from this node's
// delivery port.
type DeliveryFetchKind uint8

const (
	// FetchByDeliveryID redeems a one-shot delivery id previously
	// handed out in a DeliveryResponse.
	FetchByDeliveryID DeliveryFetchKind = iota + 1
	// FetchByEntry streams a still-resident cache entry directly by
	// its (type, entry id), the path a puzzling worker uses to pull a
	// CacheRef's payload off the node that holds it.
	FetchByEntry
	// IngestEntry pushes an entry the other way: the requester streams
	// an entry's metadata and payload and this node admits it into its
	// own store, the payload-moving half of a reorganization Move.
	IngestEntry
)

// WriteDeliveryFetchByID asks for the payload behind a delivery id.
func WriteDeliveryFetchByID(w *wire.Writer, deliveryID uint64) {
	w.WriteUint8(uint8(FetchByDeliveryID))
	w.WriteUint64(deliveryID)
}

// WriteDeliveryFetchEntry asks for a cache entry's payload by key.
func WriteDeliveryFetchEntry(w *wire.Writer, t cachecube.CacheType, entryID uint64) {
	w.WriteUint8(uint8(FetchByEntry))
	w.WriteUint32(uint32(t))
	w.WriteUint64(entryID)
}

// WriteDeliveryIngest streams an entry into the remote node's store:
// the entry's metadata followed by its payload, linked zero-copy.
func WriteDeliveryIngest(w *wire.Writer, e MetaCacheEntry, payload []byte) {
	w.WriteUint8(uint8(IngestEntry))
	writeTypedNodeCacheKey(w, e.Key)
	writeCacheEntry(w, e.Entry)
	w.LinkBlob(payload)
}

// ReadDeliveryFetchKind reads the kind byte opening a delivery
// conversation.
func ReadDeliveryFetchKind(r *wire.Reader) (DeliveryFetchKind, error) {
	v, err := r.ReadUint8()
	return DeliveryFetchKind(v), err
}

// ReadDeliveryFetchEntry decodes a FetchByEntry request's key fields.
// Callers must have already consumed the kind byte.
func ReadDeliveryFetchEntry(r *wire.Reader) (cachecube.CacheType, uint64, error) {
	t, err := r.ReadUint32()
	if err != nil {
		return 0, 0, err
	}
	id, err := r.ReadUint64()
	if err != nil {
		return 0, 0, err
	}
	return cachecube.CacheType(t), id, nil
}

// ReadDeliveryIngest decodes an IngestEntry request's entry and
// payload. Callers must have already consumed the kind byte.
func ReadDeliveryIngest(r *wire.Reader) (MetaCacheEntry, []byte, error) {
	key, err := readTypedNodeCacheKey(r)
	if err != nil {
		return MetaCacheEntry{}, nil, err
	}
	entry, err := readCacheEntry(r)
	if err != nil {
		return MetaCacheEntry{}, nil, err
	}
	payload, err := r.ReadBlob()
	if err != nil {
		return MetaCacheEntry{}, nil, err
	}
	return MetaCacheEntry{Key: key, Entry: entry}, payload, nil
}

// DeliveryStatus is the single byte a delivery server answers a
// request with before any payload: Found is followed by a
// DeliveryPayload (for fetches) or nothing (for ingests, where it
// acknowledges admission); anything else ends the conversation.
type DeliveryStatus uint8

const (
	DeliveryFound DeliveryStatus = iota + 1
	DeliveryMissing
	DeliveryRejected
)

// WriteDeliveryStatus writes the status byte.
func WriteDeliveryStatus(w *wire.Writer, s DeliveryStatus) {
	w.WriteUint8(uint8(s))
}

// ReadDeliveryStatus reads the status byte.
func ReadDeliveryStatus(r *wire.Reader) (DeliveryStatus, error) {
	v, err := r.ReadUint8()
	return DeliveryStatus(v), err
}

// WriteWorkerHello identifies a freshly dialed worker connection: the
// id of the node offering the worker slot, assigned by the index in
// its HelloAck. It follows MagicWorker on the wire.
func WriteWorkerHello(w *wire.Writer, nodeID uint32) {
	w.WriteUint32(nodeID)
}

// ReadWorkerHello reads the node id opening a worker connection.
func ReadWorkerHello(r *wire.Reader) (uint32, error) {
	return r.ReadUint32()
}
