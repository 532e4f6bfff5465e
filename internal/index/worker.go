package index

import (
	"context"
	"fmt"
	"net"

	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/proto"
	"github.com/dreamware/stcache/internal/wire"
)

// serveWorker attaches a freshly dialed worker slot to its node and
// runs the dispatch loop: wait for an assignment from the scheduler,
// hold the whole command/response conversation, release or retire.
// One goroutine per worker connection; the conversation shape
// guarantees the index only ever has one outstanding message per
// worker.
func (s *Server) serveWorker(ctx context.Context, conn net.Conn, r *wire.Reader) {
	nodeID, err := proto.ReadWorkerHello(r)
	if err != nil {
		return
	}

	w := &workerConn{
		nodeID:      nodeID,
		conn:        conn,
		r:           r,
		assignments: make(chan *job, 1),
		idle:        true,
	}

	s.mu.Lock()
	s.workers = append(s.workers, w)
	s.scheduleLocked()
	s.mu.Unlock()
	s.log.Infow("worker attached", "node_id", nodeID)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var j *job
		select {
		case <-ctx.Done():
			s.retireWorker(w, nil)
			return
		case j = <-w.assignments:
		}

		if err := s.runJob(w, j); err != nil {
			s.log.Warnw("worker faulted", "node_id", nodeID, "job", j.id, "err", err)
			s.retireWorker(w, j)
			return
		}
		s.releaseWorker(w)
	}
}

// runJob sends the job's command and consumes the worker's replies
// until DONE or ERROR. Intermediate NEW_ENTRY events are folded into
// the catalog; RASTER_QUERY_REQUESTED sub-queries are answered inline
// from the catalog. A returned error is a transport
// fault, always observed before the client saw any answer.
func (s *Server) runJob(w *workerConn, j *job) error {
	msg := wire.NewWriter()
	switch j.kind {
	case jobCreate:
		proto.WriteCreateRaster(msg, proto.CreateRasterCmd{JobID: j.id, SemanticID: j.semanticID, Query: j.query})
	case jobDeliver:
		proto.WriteDeliverRaster(msg, proto.DeliverRasterCmd{JobID: j.id, Ref: j.ref, Query: j.query})
	case jobPuzzle:
		proto.WritePuzzleRaster(msg, proto.PuzzleRasterCmd{
			JobID: j.id, SemanticID: j.semanticID, Query: j.query,
			Remainder: j.remainder, Refs: j.refs,
		})
	}
	if err := msg.Flush(w.conn); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	for {
		hdr, err := proto.ReadWorkerHeader(w.r)
		if err != nil {
			return fmt.Errorf("read reply: %w", err)
		}

		switch hdr {
		case proto.WorkerNewEntry:
			e, err := proto.ReadWorkerNewEntry(w.r)
			if err != nil {
				return err
			}
			s.registerEntry(w.nodeID, e)

		case proto.WorkerNewRasterEntry:
			e, err := proto.ReadWorkerNewRasterEntry(w.r)
			if err != nil {
				return err
			}
			s.registerEntry(w.nodeID, e)

		case proto.WorkerQueryRequested:
			req, err := proto.ReadRasterQueryRequested(w.r)
			if err != nil {
				return err
			}
			if err := s.answerSubQuery(w, req); err != nil {
				return err
			}

		case proto.WorkerDone:
			done, err := proto.ReadDone(w.r)
			if err != nil {
				return err
			}
			if done.Cached {
				s.registerEntry(w.nodeID, done.Entry)
			}
			j.complete(done.Delivery)
			return nil

		case proto.WorkerError:
			werr, err := proto.ReadWorkerError(w.r)
			if err != nil {
				return err
			}
			// Operator failure, not a transport fault: the message is
			// propagated verbatim and the worker stays usable.
			j.fail(werr.Message)
			return nil

		default:
			return fmt.Errorf("unexpected worker message %d", uint8(hdr))
		}
	}
}

// answerSubQuery is the HIT/PARTIAL_HIT/MISS reply to a worker's
// puzzle sub-query, evaluated against the current catalog exactly
// like a client request would be.
func (s *Server) answerSubQuery(w *workerConn, req proto.RasterQueryRequested) error {
	catalog := s.catalogs[req.Query.Type]
	res := catalog.Query(req.SemanticID, req.Query)

	msg := wire.NewWriter()
	switch {
	case res.FullHit():
		entry, ok := s.lookupEntry(req.Query.Type, req.SemanticID, res.IDs[0])
		if ok {
			if node, ok := s.nodeByID(entry.NodeID); ok {
				proto.WriteRasterQueryHit(msg, proto.RasterQueryHit{
					JobID: req.JobID,
					Ref:   cachecube.CacheRef{Host: node.host, Port: node.port, EntryID: entry.Key.EntryID},
				})
				return msg.Flush(w.conn)
			}
		}
		proto.WriteRasterQueryMiss(msg, proto.RasterQueryMiss{JobID: req.JobID})

	case res.PartialHit():
		var refs []cachecube.CacheRef
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
		}
		if len(refs) == 0 {
			proto.WriteRasterQueryMiss(msg, proto.RasterQueryMiss{JobID: req.JobID})
			break
		}
		proto.WriteRasterQueryPartialHit(msg, proto.RasterQueryPartialHit{
			JobID: req.JobID, Refs: refs, Remainder: res.Remainder,
		})

	default:
		proto.WriteRasterQueryMiss(msg, proto.RasterQueryMiss{JobID: req.JobID})
	}
	return msg.Flush(w.conn)
}
