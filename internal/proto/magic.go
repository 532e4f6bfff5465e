package proto

import (
	"fmt"

	"github.com/dreamware/stcache/internal/wire"
)

// Magic is the first four bytes a peer sends on a freshly accepted
// connection, identifying which of the four connection roles
// it intends to speak. A listener reads one Magic value and
// dispatches the rest of the connection's lifetime to the matching
// handler; nothing else about the stream is self-describing.
type Magic uint32

const (
	// MagicClient opens a client query connection: one QueryRectangle
	// request per round trip, answered with a DeliveryResponse or an
	// Error.
	MagicClient Magic = 0x434c4e54 // "CLNT"
	// MagicWorker opens a node's persistent connection to the index,
	// over which the index dispatches CMD_* job commands and the node
	// reports DONE/ERROR/NEW_ENTRY.
	MagicWorker Magic = 0x574f524b // "WORK"
	// MagicControl opens a node's registration connection to the
	// index: HELLO once, then GET_STATS/REORG for the connection's
	// lifetime.
	MagicControl Magic = 0x43545247 // "CTRG"
	// MagicDelivery opens a short-lived connection used to stream one
	// cached payload from the node that holds it to whichever node or
	// client asked for it by CacheRef.
	MagicDelivery Magic = 0x44454c56 // "DELV"
)

func (m Magic) String() string {
	switch m {
	case MagicClient:
		return "CLIENT"
	case MagicWorker:
		return "WORKER"
	case MagicControl:
		return "CONTROL"
	case MagicDelivery:
		return "DELIVERY"
	default:
		return fmt.Sprintf("unknown(%#x)", uint32(m))
	}
}

// WriteMagic writes m as the first field of a connection.
func WriteMagic(w *wire.Writer, m Magic) {
	w.WriteUint32(uint32(m))
}

// ReadMagic reads the role-identifying magic number a peer opens a
// connection with.
func ReadMagic(r *wire.Reader) (Magic, error) {
	v, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	return Magic(v), nil
}
