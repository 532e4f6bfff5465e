// Package client implements component C8: the client-side entry point
// that either short-circuits to in-process evaluation (cache.enabled
// false) or routes a query through the index and streams the result
// back from whichever node's delivery port the index names.
package client

import (
	"bufio"
	"context"
	"fmt"
	"net"

	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/node"
	"github.com/dreamware/stcache/internal/operator"
	"github.com/dreamware/stcache/internal/proto"
	"github.com/dreamware/stcache/internal/telemetry"
	"github.com/dreamware/stcache/internal/wire"
)

// Options configures a Manager.
type Options struct {
	// Enabled mirrors cache.enabled: when false, Query never contacts
	// the index and evaluates the graph in-process.
	Enabled bool
	// IndexFrontendAddr is the index's client port (host:port).
	IndexFrontendAddr string
	// Evaluator runs the graph locally when the cache is disabled.
	Evaluator operator.Evaluator
	// Logger defaults to a no-op logger when nil.
	Logger *telemetry.Logger
}

// Manager is the client-side cache manager.
type Manager struct {
	opts Options
	log  *telemetry.Logger
}

// New builds a Manager from opts.
func New(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = telemetry.Noop()
	}
	return &Manager{opts: opts, log: opts.Logger.Named("client")}
}

// Query resolves one operator graph (identified by its semantic id)
// over a query rectangle and returns the raw result payload.
func (m *Manager) Query(ctx context.Context, semanticID string, query cachecube.QueryRectangle) ([]byte, error) {
	if !m.opts.Enabled {
		if m.opts.Evaluator == nil {
			return nil, fmt.Errorf("client: cache disabled and no evaluator configured")
		}
		res, err := m.opts.Evaluator.Evaluate(ctx, operator.Request{SemanticID: semanticID, Query: query})
		if err != nil {
			return nil, err
		}
		return res.Payload, nil
	}

	conn, err := net.Dial("tcp", m.opts.IndexFrontendAddr)
	if err != nil {
		return nil, fmt.Errorf("client: dial index %s: %w", m.opts.IndexFrontendAddr, err)
	}
	defer conn.Close()

	w := wire.NewWriter()
	proto.WriteMagic(w, proto.MagicClient)
	proto.WriteQueryRequest(w, proto.QueryRequest{SemanticID: semanticID, Query: query})
	if err := w.Flush(conn); err != nil {
		return nil, fmt.Errorf("client: send query: %w", err)
	}

	r := wire.NewReader(bufio.NewReader(conn))
	hdr, err := proto.ReadClientHeader(r)
	if err != nil {
		return nil, fmt.Errorf("client: read response: %w", err)
	}

	switch hdr {
	case proto.ClientDelivery:
		d, err := proto.ReadQueryDelivery(r)
		if err != nil {
			return nil, fmt.Errorf("client: read delivery handle: %w", err)
		}
		m.log.Debugw("streaming result", "host", d.Host, "port", d.Port, "delivery_id", d.DeliveryID)
		p, err := node.FetchByDeliveryID(d.Host, d.Port, d.DeliveryID)
		if err != nil {
			return nil, err
		}
		return p.Payload, nil

	case proto.ClientError:
		msg, err := proto.ReadQueryError(r)
		if err != nil {
			return nil, fmt.Errorf("client: read error response: %w", err)
		}
		return nil, fmt.Errorf("client: query failed: %s", msg)

	default:
		return nil, fmt.Errorf("client: unexpected response header %d", uint8(hdr))
	}
}
