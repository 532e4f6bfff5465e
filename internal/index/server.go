package index

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/cacheindex"
	"github.com/dreamware/stcache/internal/proto"
	"github.com/dreamware/stcache/internal/telemetry"
	"github.com/dreamware/stcache/internal/wire"
)

// Options configures a Server.
type Options struct {
	// Host plus the two listening ports: FrontendPort for
	// clients, NodePort for node control and worker connections.
	Host         string
	FrontendPort int
	NodePort     int
	// ReorgStrategy is one of "capacity", "graph", "geo".
	ReorgStrategy string
	// Logger defaults to a no-op logger when nil.
	Logger *telemetry.Logger
}

// nodeRec is the index's record of one registered node for the
// lifetime of its control connection.
type nodeRec struct {
	id         uint32
	host       string
	port       uint32
	capacities map[cachecube.CacheType]uint64

	conn    net.Conn
	writeMu sync.Mutex

	// statsCh receives the next ControlStats reply; reorgAckCh the
	// next ControlReorgAck. A reorg pass sends one request of each kind
	// and waits for its reply; two passes running at once are not
	// serialized against each other.
	statsCh    chan proto.NodeStats
	reorgAckCh chan uint32
}

func (n *nodeRec) send(w *wire.Writer) error {
	n.writeMu.Lock()
	defer n.writeMu.Unlock()
	return w.Flush(n.conn)
}

// workerConn is the index's handle to one executor thread on a node.
type workerConn struct {
	nodeID uint32
	conn   net.Conn
	r      *wire.Reader

	// assignments delivers at most one job at a time to the worker
	// goroutine; closed when the worker is retired.
	assignments chan *job

	// scheduler state, guarded by Server.mu.
	idle   bool
	faulty bool
}

// Server is the running index process.
type Server struct {
	opts Options
	log  *telemetry.Logger

	catalogs map[cachecube.CacheType]*cacheindex.Index

	mu         sync.Mutex
	nodes      map[uint32]*nodeRec
	workers    []*workerConn
	pending    []*job
	nextNodeID uint32

	jobIDs     atomic.Uint64
	frontendLn net.Listener
	nodeLn     net.Listener
	ready      chan struct{}
}

// New builds a Server from opts.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = telemetry.Noop()
	}
	s := &Server{
		opts:     opts,
		log:      opts.Logger.Named("index"),
		catalogs: make(map[cachecube.CacheType]*cacheindex.Index),
		nodes:    make(map[uint32]*nodeRec),
		ready:    make(chan struct{}),
	}
	for _, t := range cachecube.AllCacheTypes {
		s.catalogs[t] = cacheindex.New()
	}
	return s
}

// Catalog exposes one cache type's shadow catalog, for tests and for
// an embedding that wants to inspect the index's view.
func (s *Server) Catalog(t cachecube.CacheType) *cacheindex.Index {
	return s.catalogs[t]
}

// FrontendAddr and NodeAddr return the bound listener addresses once
// Run is up.
func (s *Server) FrontendAddr() net.Addr {
	<-s.ready
	return s.frontendLn.Addr()
}

func (s *Server) NodeAddr() net.Addr {
	<-s.ready
	return s.nodeLn.Addr()
}

// Run binds both listeners and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	frontend, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.opts.Host, s.opts.FrontendPort))
	if err != nil {
		return fmt.Errorf("index: listen frontend: %w", err)
	}
	nodeLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.opts.Host, s.opts.NodePort))
	if err != nil {
		frontend.Close()
		return fmt.Errorf("index: listen node port: %w", err)
	}
	s.frontendLn = frontend
	s.nodeLn = nodeLn
	close(s.ready)
	s.log.Infow("index up", "frontend", frontend.Addr().String(), "node_port", nodeLn.Addr().String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.accept(ctx, frontend) })
	g.Go(func() error { return s.accept(ctx, nodeLn) })
	g.Go(func() error {
		<-ctx.Done()
		frontend.Close()
		nodeLn.Close()
		return ctx.Err()
	})
	return g.Wait()
}

func (s *Server) accept(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("index: accept: %w", err)
		}
		go s.serveConn(ctx, conn)
	}
}

// serveConn reads the role magic and dispatches; unknown magic drops
// the connection without reply.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	r := wire.NewReader(bufio.NewReader(conn))
	magic, err := proto.ReadMagic(r)
	if err != nil {
		return
	}

	switch magic {
	case proto.MagicClient:
		s.serveClient(conn, r)
	case proto.MagicControl:
		s.serveControl(ctx, conn, r)
	case proto.MagicWorker:
		s.serveWorker(ctx, conn, r)
	default:
		s.log.Warnw("dropping connection with unexpected magic", "magic", magic.String())
	}
}

// serveClient handles one client connection: requests in, delivery
// handles or errors out, strictly FIFO per connection.
func (s *Server) serveClient(conn net.Conn, r *wire.Reader) {
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

		j := s.decide(req)
		s.enqueue(j)
		res := <-j.done

		w := wire.NewWriter()
		if res.errMsg != "" {
			proto.WriteQueryError(w, res.errMsg)
		} else {
			proto.WriteQueryDelivery(w, res.delivery)
		}
		if err := w.Flush(conn); err != nil {
			return
		}
	}
}

// decide turns a client request into a Create, Deliver, or Puzzle job
// by matching it against the shadow catalog.
func (s *Server) decide(req proto.QueryRequest) *job {
	id := s.jobIDs.Add(1)
	catalog := s.catalogs[req.Query.Type]
	res := catalog.Query(req.SemanticID, req.Query)

	switch {
	case res.FullHit():
		entry, ok := s.lookupEntry(req.Query.Type, req.SemanticID, res.IDs[0])
		if !ok {
			break
		}
		node, ok := s.nodeByID(entry.NodeID)
		if !ok {
			break
		}
		j := newJob(id, jobDeliver, req.SemanticID, req.Query)
		j.targetNode = entry.NodeID
		j.ref = cachecube.CacheRef{Host: node.host, Port: node.port, EntryID: entry.Key.EntryID}
		s.log.Debugw("full hit", "semantic_id", req.SemanticID, "node", entry.NodeID, "entry", entry.Key.EntryID)
		return j

	case res.PartialHit():
		refs := make([]cachecube.CacheRef, 0, len(res.IDs))
		contributing := make(map[uint32]bool, len(res.IDs))
		for _, entryID := range res.IDs {
			entry, ok := s.lookupEntry(req.Query.Type, req.SemanticID, entryID)
			if !ok {
				continue
			}
			node, ok := s.nodeByID(entry.NodeID)
			if !ok {
				continue
			}
			refs = append(refs, cachecube.CacheRef{Host: node.host, Port: node.port, EntryID: entry.Key.EntryID})
			contributing[entry.NodeID] = true
		}
		if len(refs) == 0 {
			break
		}
		j := newJob(id, jobPuzzle, req.SemanticID, req.Query)
		j.refs = refs
		j.remainder = res.Remainder
		j.contributing = contributing
		s.log.Debugw("partial hit", "semantic_id", req.SemanticID, "refs", len(refs), "remainder", len(res.Remainder), "coverage", res.Coverage)
		return j
	}

	s.log.Debugw("miss", "semantic_id", req.SemanticID, "coverage", res.Coverage)
	return newJob(id, jobCreate, req.SemanticID, req.Query)
}

func (s *Server) lookupEntry(t cachecube.CacheType, semanticID string, entryID uint64) (cacheindex.Entry, bool) {
	for _, e := range s.catalogs[t].Get(semanticID) {
		if e.Key.EntryID == entryID {
			return e, true
		}
	}
	return cacheindex.Entry{}, false
}

func (s *Server) nodeByID(id uint32) (*nodeRec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	return n, ok
}

// enqueue appends j to the pending FIFO and runs a scheduling pass.
func (s *Server) enqueue(j *job) {
	s.mu.Lock()
	s.pending = append(s.pending, j)
	s.scheduleLocked()
	s.mu.Unlock()
}

// scheduleLocked is the first-fit scheduling pass: for each
// pending job in FIFO order, the first idle non-faulty worker passing
// the job's eligibility check takes it. Jobs with no eligible idle
// worker stay queued in place. Workers are scanned in registration
// order, so the pass is deterministic given the same state.
func (s *Server) scheduleLocked() {
	kept := s.pending[:0]
	for _, j := range s.pending {
		assigned := false
		for _, w := range s.workers {
			if !w.idle || w.faulty || !j.eligible(w) {
				continue
			}
			w.idle = false
			w.assignments <- j
			assigned = true
			break
		}
		if !assigned {
			kept = append(kept, j)
		}
	}
	s.pending = kept
}

// releaseWorker returns a worker to the idle pool and reschedules.
func (s *Server) releaseWorker(w *workerConn) {
	s.mu.Lock()
	w.idle = true
	s.scheduleLocked()
	s.mu.Unlock()
}

// retireWorker removes a faulty worker. If it carried an in-flight
// job, that job is rescheduled exactly once; a job that already
// burned its reschedule fails back to the client.
func (s *Server) retireWorker(w *workerConn, inflight *job) {
	s.mu.Lock()
	w.faulty = true
	w.idle = false
	s.workers = slices.DeleteFunc(s.workers, func(c *workerConn) bool { return c == w })
	if inflight != nil {
		if inflight.rescheduled {
			s.mu.Unlock()
			inflight.fail("worker connection lost twice")
			s.log.Warnw("job failed after second worker fault", "job", inflight.id)
			return
		}
		inflight.rescheduled = true
		s.pending = append(s.pending, inflight)
		s.log.Warnw("rescheduling job from faulty worker", "job", inflight.id, "node", w.nodeID)
	}
	s.scheduleLocked()
	s.mu.Unlock()
}

// markNodeWorkersFaulty marks every worker belonging to nodeID faulty,
// used when the node's control connection drops, so the scheduler no
// longer picks them. The workers stay registered and their in-flight
// jobs are not rescheduled here.
func (s *Server) markNodeWorkersFaulty(nodeID uint32) {
	s.mu.Lock()
	for _, w := range s.workers {
		if w.nodeID == nodeID {
			w.faulty = true
		}
	}
	s.mu.Unlock()
}
