package node

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/cacheindex"
	"github.com/dreamware/stcache/internal/nodestore"
	"github.com/dreamware/stcache/internal/operator"
	"github.com/dreamware/stcache/internal/proto"
	"github.com/dreamware/stcache/internal/strategy"
	"github.com/dreamware/stcache/internal/telemetry"
	"github.com/dreamware/stcache/internal/wire"
)

// Options configures a Server.
type Options struct {
	// Host and Port are this node's own delivery/client listener
	// address, announced to the index in HELLO.
	Host string
	Port int
	// IndexNodeAddr is the index's node port (host:port) that control
	// and worker connections dial.
	IndexNodeAddr string
	// Workers is the worker pool size (nodeserver.threads).
	Workers int
	// Capacities are the per-type byte budgets for the payload store.
	Capacities nodestore.Capacities
	// Strategy decides admission of freshly computed results.
	Strategy strategy.Strategy
	// Evaluator computes operator graph slabs.
	Evaluator operator.Evaluator
	// Logger defaults to a no-op logger when nil.
	Logger *telemetry.Logger
	// Metrics defaults to an unregistered private bundle when nil.
	Metrics *telemetry.Metrics
}

// Server is one running node process.
type Server struct {
	opts  Options
	log   *telemetry.Logger
	cache *nodestore.Cache

	// catalog mirrors this node's own store so the MagicClient
	// shortcut and handshake entry listing never touch payloads.
	catalog map[cachecube.CacheType]*cacheindex.Index

	deliveries *deliveryRegistry
	metrics    *telemetry.Metrics

	mu     sync.Mutex
	nodeID uint32

	ctrl *controlLink

	// evictions carries keys dropped by the store's LRU to the
	// goroutine that notifies the index, since the eviction hook runs
	// under the store lock.
	evictions chan cachecube.TypedNodeCacheKey

	listener net.Listener
	ready    chan struct{}
}

// New builds a Server from opts.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = telemetry.Noop()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	s := &Server{
		opts:       opts,
		log:        opts.Logger.Named("node"),
		cache:      nodestore.NewCache(opts.Capacities),
		catalog:    make(map[cachecube.CacheType]*cacheindex.Index),
		deliveries: newDeliveryRegistry(),
		metrics:    opts.Metrics,
		evictions:  make(chan cachecube.TypedNodeCacheKey, 256),
		ready:      make(chan struct{}),
	}
	for _, t := range cachecube.AllCacheTypes {
		s.catalog[t] = cacheindex.New()
	}
	s.cache.SetEvictionHook(s.onEviction)
	return s
}

// NodeID returns the id the index assigned at registration, or 0
// before registration completes.
func (s *Server) NodeID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodeID
}

// Addr returns the listener address once Run has bound it.
func (s *Server) Addr() net.Addr {
	<-s.ready
	return s.listener.Addr()
}

// onEviction runs under the store lock; it only forwards the key.
func (s *Server) onEviction(t cachecube.CacheType, key cachecube.NodeCacheKey) {
	if s.metrics != nil {
		s.metrics.ObserveEviction(t)
	}
	select {
	case s.evictions <- cachecube.TypedNodeCacheKey{NodeCacheKey: key, Type: t}:
	default:
		// Notification channel full; the index will reconcile on the
		// next stats refresh.
	}
}

// Run registers with the index, starts the worker pool and the
// delivery listener, and blocks until ctx is cancelled or a
// connection to the index fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port))
	if err != nil {
		return fmt.Errorf("node: listen: %w", err)
	}
	s.listener = ln
	port := uint32(ln.Addr().(*net.TCPAddr).Port)
	close(s.ready)

	ctrl, nodeID, err := dialControl(s.opts.IndexNodeAddr, s.opts.Host, port, s.opts.Capacities, s.handshakeEntries())
	if err != nil {
		ln.Close()
		return fmt.Errorf("node: register with index: %w", err)
	}
	s.mu.Lock()
	s.nodeID = nodeID
	s.ctrl = ctrl
	s.mu.Unlock()
	s.log.Infow("registered with index", "node_id", nodeID, "addr", ln.Addr().String())

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.runControl(ctx, ctrl) })
	g.Go(func() error { return s.drainEvictions(ctx, ctrl) })
	for i := 0; i < s.opts.Workers; i++ {
		i := i
		g.Go(func() error { return s.runWorker(ctx, i) })
	}
	g.Go(func() error { return s.acceptLoop(ctx, ln) })
	g.Go(func() error {
		<-ctx.Done()
		ln.Close()
		ctrl.Close()
		return ctx.Err()
	})

	err = g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// handshakeEntries lists everything already resident, per type, for
// the HELLO message. Empty on a cold boot; populated when an
// embedding pre-seeds the store before calling Run.
func (s *Server) handshakeEntries() []proto.MetaCacheEntry {
	var out []proto.MetaCacheEntry
	for _, t := range cachecube.AllCacheTypes {
		for _, e := range s.catalog[t].All() {
			out = append(out, proto.MetaCacheEntry{
				Key:   cachecube.TypedNodeCacheKey{NodeCacheKey: e.Key, Type: t},
				Entry: e.CacheEntry,
			})
		}
	}
	return out
}

func (s *Server) drainEvictions(ctx context.Context, ctrl *controlLink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case key := <-s.evictions:
			s.catalog[key.Type].Remove(key.NodeCacheKey)
			if err := ctrl.notifyRemoveEntry(key); err != nil {
				return fmt.Errorf("node: notify eviction: %w", err)
			}
			s.log.Debugw("evicted entry", "type", key.Type.String(), "entry_id", key.EntryID)
		}
	}
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("node: accept: %w", err)
		}
		go s.serveConn(conn)
	}
}

// serveConn reads the role magic and dispatches. Unknown magic drops
// the connection without reply.
func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	r := wire.NewReader(bufio.NewReader(conn))
	magic, err := proto.ReadMagic(r)
	if err != nil {
		return
	}

	switch magic {
	case proto.MagicDelivery:
		s.serveDelivery(conn, r)
	case proto.MagicClient:
		s.serveLocalClient(conn, r)
	default:
		s.log.Warnw("dropping connection with unexpected magic", "magic", magic.String())
	}
}

// serveLocalClient is the co-resident shortcut: answer a query
// straight from the local store when it is a full local hit, without
// involving the index.
func (s *Server) serveLocalClient(conn net.Conn, r *wire.Reader) {
	for {
		hdr, err := proto.ReadClientHeader(r)
		if err != nil {
			return
		}
		if hdr != proto.ClientQuery {
			return
		}
		req, err := proto.ReadQueryRequest(r)
		if err != nil {
			return
		}

		w := wire.NewWriter()
		res := s.catalog[req.Query.Type].Query(req.SemanticID, req.Query)
		if res.FullHit() {
			stored, err := s.cache.Get(req.Query.Type, res.IDs[0])
			if err == nil {
				if s.metrics != nil {
					s.metrics.ObserveHit(req.Query.Type)
				}
				id := s.deliveries.Register(stored.Entry, stored.Payload)
				proto.WriteQueryDelivery(w, proto.DeliveryResponse{
					ForeignRef: proto.ForeignRef{Host: s.opts.Host, Port: s.listenPort()},
					DeliveryID: id,
				})
				if err := w.Flush(conn); err != nil {
					return
				}
				continue
			}
		}
		if s.metrics != nil {
			s.metrics.ObserveMiss(req.Query.Type)
		}
		proto.WriteQueryError(w, "not cached locally")
		if err := w.Flush(conn); err != nil {
			return
		}
	}
}

func (s *Server) listenPort() uint32 {
	return uint32(s.listener.Addr().(*net.TCPAddr).Port)
}

// admit runs the caching strategy and, when it admits, stores the
// payload, mirrors it in the local catalog, and returns the entry.
func (s *Server) admit(t cachecube.CacheType, semanticID string, payload []byte, bounds cachecube.CacheCube, profile cachecube.Profile) (cachecube.CacheEntry, bool) {
	if s.opts.Strategy == nil || !s.opts.Strategy.DoCache(profile, uint64(len(payload))) {
		return cachecube.CacheEntry{}, false
	}
	id, err := s.cache.Put(t, semanticID, payload, bounds, profile)
	if err != nil {
		// CacheOverflow is not an error for the job: the result is
		// simply served uncached.
		s.log.Warnw("cache put rejected", "type", t.String(), "semantic_id", semanticID, "err", err)
		return cachecube.CacheEntry{}, false
	}
	entry := cachecube.CacheEntry{
		Key:     cachecube.NodeCacheKey{SemanticID: semanticID, EntryID: id},
		Bounds:  bounds,
		Size:    uint64(len(payload)),
		Profile: profile,
	}
	s.catalog[t].Put(semanticID, cacheindex.Entry{CacheEntry: entry, NodeID: s.NodeID()})
	if s.metrics != nil {
		stats := s.cache.Store(t).Stats()
		s.metrics.SetOccupancy(t, stats.Used, stats.Capacity)
	}
	return entry, true
}

// buildStats assembles the control-connection stats reply from the
// store's counters.
func (s *Server) buildStats() proto.NodeStats {
	out := proto.NodeStats{NodeID: s.NodeID()}
	for _, t := range cachecube.AllCacheTypes {
		st := s.cache.Store(t).Stats()
		out.CacheStats = append(out.CacheStats, proto.CacheStats{
			Type:       t,
			Capacity:   st.Capacity,
			Used:       st.Used,
			EntryCount: uint64(len(st.Entries)),
		})
	}
	return out
}
