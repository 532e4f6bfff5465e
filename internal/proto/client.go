package proto

import (
	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/wire"
)

// ClientMessageType tags the one request and two possible replies on a
// client query connection.
type ClientMessageType uint8

const (
	ClientQuery ClientMessageType = iota + 1
	ClientDelivery
	ClientError
)

func writeClientHeader(w *wire.Writer, t ClientMessageType) {
	w.WriteUint8(uint8(t))
}

// ReadClientHeader reads the ClientMessageType tagging the next
// message on a client connection.
func ReadClientHeader(r *wire.Reader) (ClientMessageType, error) {
	v, err := r.ReadUint8()
	return ClientMessageType(v), err
}

// QueryRequest is what a client sends after the MagicClient handshake:
// the operator graph it wants answered (identified by its semantic
// id, computed client-side the same way the index and nodes compute
// it) against a spatio-temporal query rectangle.
type QueryRequest struct {
	SemanticID string
	Query      cachecube.QueryRectangle
}

// WriteQueryRequest encodes a QueryRequest with its header.
func WriteQueryRequest(w *wire.Writer, q QueryRequest) {
	writeClientHeader(w, ClientQuery)
	w.WriteString(q.SemanticID)
	writeQueryRectangle(w, q.Query)
}

// ReadQueryRequest decodes a QueryRequest. Callers must have already
// consumed the ClientQuery header.
func ReadQueryRequest(r *wire.Reader) (QueryRequest, error) {
	sem, err := r.ReadString()
	if err != nil {
		return QueryRequest{}, err
	}
	q, err := readQueryRectangle(r)
	if err != nil {
		return QueryRequest{}, err
	}
	return QueryRequest{SemanticID: sem, Query: q}, nil
}

// WriteQueryDelivery answers a QueryRequest that the index could
// schedule: where to open a delivery connection to fetch the result.
func WriteQueryDelivery(w *wire.Writer, d DeliveryResponse) {
	writeClientHeader(w, ClientDelivery)
	writeDeliveryResponse(w, d)
}

// ReadQueryDelivery decodes a delivery answer. Callers must have
// already consumed the ClientDelivery header.
func ReadQueryDelivery(r *wire.Reader) (DeliveryResponse, error) {
	return readDeliveryResponse(r)
}

// WriteQueryError answers a QueryRequest the index or a node could not
// fulfill.
func WriteQueryError(w *wire.Writer, message string) {
	writeClientHeader(w, ClientError)
	w.WriteString(message)
}

// ReadQueryError decodes an error answer. Callers must have already
// consumed the ClientError header.
func ReadQueryError(r *wire.Reader) (string, error) {
	return r.ReadString()
}

// DeliveryRequest is what a requester sends after the MagicDelivery
// handshake: the delivery id it was handed by a DeliveryResponse.
type DeliveryRequest struct {
	DeliveryID uint64
}

// WriteDeliveryRequest encodes a DeliveryRequest.
func WriteDeliveryRequest(w *wire.Writer, d DeliveryRequest) {
	w.WriteUint64(d.DeliveryID)
}

// ReadDeliveryRequest decodes a DeliveryRequest.
func ReadDeliveryRequest(r *wire.Reader) (DeliveryRequest, error) {
	id, err := r.ReadUint64()
	return DeliveryRequest{DeliveryID: id}, err
}

// DeliveryPayload is the streamed answer to a DeliveryRequest: the
// entry metadata followed by the payload bytes themselves, linked
// zero-copy on the writer side since a raster tile or feature
// collection can be large.
type DeliveryPayload struct {
	Entry   cachecube.CacheEntry
	Payload []byte
}

// WriteDeliveryPayload encodes entry's metadata, then links payload so
// Flush streams it without copying it into the writer's own buffer.
func WriteDeliveryPayload(w *wire.Writer, entry cachecube.CacheEntry, payload []byte) {
	writeCacheEntry(w, entry)
	w.LinkBlob(payload)
}

// ReadDeliveryPayload decodes a streamed delivery: the entry metadata
// then the payload bytes (an ordinary length-prefixed blob from the
// reader's point of view; the zero-copy linking is a writer-side-only
// optimization).
func ReadDeliveryPayload(r *wire.Reader) (DeliveryPayload, error) {
	entry, err := readCacheEntry(r)
	if err != nil {
		return DeliveryPayload{}, err
	}
	payload, err := r.ReadBlob()
	if err != nil {
		return DeliveryPayload{}, err
	}
	return DeliveryPayload{Entry: entry, Payload: payload}, nil
}
