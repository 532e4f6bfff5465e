package node

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"net"

	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/cube"
	"github.com/dreamware/stcache/internal/operator"
	"github.com/dreamware/stcache/internal/proto"
	"github.com/dreamware/stcache/internal/puzzle"
	"github.com/dreamware/stcache/internal/wire"
)

// workerIO is one worker loop's connection to the index. The loop's
// goroutine is the connection's only user, so no locking.
type workerIO struct {
	conn net.Conn
	r    *wire.Reader
}

func (w *workerIO) send(msg *wire.Writer) error {
	return msg.Flush(w.conn)
}

// runWorker dials the index's node port, offers a job slot, and
// executes commands until the connection drops or ctx ends. One
// runWorker goroutine per configured worker thread.
func (s *Server) runWorker(ctx context.Context, idx int) error {
	conn, err := net.Dial("tcp", s.opts.IndexNodeAddr)
	if err != nil {
		return fmt.Errorf("node: worker %d dial index: %w", idx, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	hello := wire.NewWriter()
	proto.WriteMagic(hello, proto.MagicWorker)
	proto.WriteWorkerHello(hello, s.NodeID())
	if err := hello.Flush(conn); err != nil {
		return fmt.Errorf("node: worker %d hello: %w", idx, err)
	}

	ww := &workerIO{conn: conn, r: wire.NewReader(bufio.NewReader(conn))}
	log := s.log.Named("worker").With("worker", idx)
	log.Infow("worker connected to index")

	for {
		hdr, err := proto.ReadWorkerHeader(ww.r)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("node: worker %d connection lost: %w", idx, err)
		}

		switch hdr {
		case proto.WorkerCreateRaster:
			cmd, err := proto.ReadCreateRaster(ww.r)
			if err != nil {
				return fmt.Errorf("node: worker %d read create: %w", idx, err)
			}
			if err := s.handleCreate(ctx, ww, cmd); err != nil {
				return err
			}

		case proto.WorkerDeliverRaster:
			cmd, err := proto.ReadDeliverRaster(ww.r)
			if err != nil {
				return fmt.Errorf("node: worker %d read deliver: %w", idx, err)
			}
			if err := s.handleDeliver(ww, cmd); err != nil {
				return err
			}

		case proto.WorkerPuzzleRaster:
			cmd, err := proto.ReadPuzzleRaster(ww.r)
			if err != nil {
				return fmt.Errorf("node: worker %d read puzzle: %w", idx, err)
			}
			if err := s.handlePuzzle(ctx, ww, cmd); err != nil {
				return err
			}

		default:
			return fmt.Errorf("node: worker %d unexpected command %d", idx, uint8(hdr))
		}
	}
}

// reportError sends a structured ERROR record for the job; transport
// failures sending it are returned so the loop can retire the
// connection.
func (s *Server) reportError(ww *workerIO, jobID uint64, err error) error {
	w := wire.NewWriter()
	proto.WriteWorkerError(w, proto.Error{JobID: jobID, Message: err.Error()})
	return ww.send(w)
}

// finish registers the payload for delivery and reports DONE. When the
// strategy admitted the result, a NEW_(RASTER_)ENTRY event precedes
// DONE so the index catalogs the entry even while the delivery is
// still pending.
func (s *Server) finish(ww *workerIO, jobID uint64, t cachecube.CacheType, entry cachecube.CacheEntry, cached bool, payload []byte) error {
	meta := proto.MetaCacheEntry{
		Key:   cachecube.TypedNodeCacheKey{NodeCacheKey: entry.Key, Type: t},
		Entry: entry,
	}
	if cached {
		ev := wire.NewWriter()
		if t == cachecube.CacheTypeRaster {
			proto.WriteWorkerNewRasterEntry(ev, meta)
		} else {
			proto.WriteWorkerNewEntry(ev, meta)
		}
		if err := ww.send(ev); err != nil {
			return err
		}
	}

	deliveryID := s.deliveries.Register(entry, payload)
	w := wire.NewWriter()
	proto.WriteDone(w, proto.Done{
		JobID:  jobID,
		Cached: cached,
		Entry:  meta,
		Delivery: proto.DeliveryResponse{
			ForeignRef: proto.ForeignRef{Host: s.opts.Host, Port: s.listenPort()},
			DeliveryID: deliveryID,
		},
	})
	return ww.send(w)
}

// handleCreate computes the query from scratch and caches the result
// if the strategy admits it.
func (s *Server) handleCreate(ctx context.Context, ww *workerIO, cmd proto.CreateRasterCmd) error {
	res, err := s.opts.Evaluator.Evaluate(ctx, operator.Request{SemanticID: cmd.SemanticID, Query: cmd.Query})
	if err != nil {
		return s.reportError(ww, cmd.JobID, err)
	}

	bounds := cachecube.CacheCube{QueryCube: cmd.Query.Cube, Resolution: res.Resolution}
	entry, cached := s.admit(cmd.Query.Type, cmd.SemanticID, res.Payload, bounds, res.Profile)
	if !cached {
		entry = cachecube.CacheEntry{
			Key:     cachecube.NodeCacheKey{SemanticID: cmd.SemanticID},
			Bounds:  bounds,
			Size:    uint64(len(res.Payload)),
			Profile: res.Profile,
		}
	}
	return s.finish(ww, cmd.JobID, cmd.Query.Type, entry, cached, res.Payload)
}

// handleDeliver serves a full hit straight from the local store.
func (s *Server) handleDeliver(ww *workerIO, cmd proto.DeliverRasterCmd) error {
	stored, err := s.cache.Get(cmd.Query.Type, cmd.Ref.EntryID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ObserveMiss(cmd.Query.Type)
		}
		return s.reportError(ww, cmd.JobID, fmt.Errorf("entry %d not resident: %w", cmd.Ref.EntryID, err))
	}
	if s.metrics != nil {
		s.metrics.ObserveHit(cmd.Query.Type)
	}
	return s.finish(ww, cmd.JobID, cmd.Query.Type, stored.Entry, false, stored.Payload)
}

// contribution is one piece of a puzzle: the extent it covers plus its
// pixel payload (for rasters) or encoded features.
type contribution struct {
	extent  cube.Cube
	width   int
	height  int
	payload []byte
}

// handlePuzzle composes the query from cached references plus freshly
// computed remainder slabs. Remainder slabs are
// resolved first (possibly via recursive index sub-queries), then the
// supplied references are fetched, so the blit order is deterministic.
func (s *Server) handlePuzzle(ctx context.Context, ww *workerIO, cmd proto.PuzzleRasterCmd) error {
	var contributions []contribution
	profile := cachecube.Profile{}

	for _, slab := range cmd.Remainder {
		cs, err := s.resolveSlab(ctx, ww, cmd, slab)
		if err != nil {
			return s.reportError(ww, cmd.JobID, err)
		}
		contributions = append(contributions, cs...)
	}
	for _, c := range contributions {
		// Remainder work is the uncached share of the composed result.
		profile.UncachedCPU += float64(len(c.payload)) * 1e-9
	}

	for _, ref := range cmd.Refs {
		p, err := s.fetchRef(cmd.Query.Type, ref)
		if err != nil {
			return s.reportError(ww, cmd.JobID, err)
		}
		contributions = append(contributions, p)
	}

	payload, err := s.assemble(cmd.Query, contributions)
	if err != nil {
		return s.reportError(ww, cmd.JobID, err)
	}

	profile.AllCPU = profile.UncachedCPU
	profile.SelfCPU = profile.UncachedCPU
	bounds := cachecube.CacheCube{
		QueryCube:  cmd.Query.Cube,
		Resolution: resolutionFor(cmd.Query),
	}
	entry, cached := s.admit(cmd.Query.Type, cmd.SemanticID, payload, bounds, profile)
	if !cached {
		entry = cachecube.CacheEntry{
			Key:    cachecube.NodeCacheKey{SemanticID: cmd.SemanticID},
			Bounds: bounds,
			Size:   uint64(len(payload)),
		}
	}
	return s.finish(ww, cmd.JobID, cmd.Query.Type, entry, cached, payload)
}

func resolutionFor(q cachecube.QueryRectangle) cachecube.ResolutionInfo {
	if q.Type != cachecube.CacheTypeRaster {
		return cachecube.ResolutionInfo{}
	}
	return cachecube.NewPixelResolution(q.ScaleX, q.ScaleY)
}

// resolveSlab produces the contributions covering one remainder slab.
// It first asks the index whether any node already holds useful pieces
// (the RASTER_QUERY_REQUESTED sub-protocol on this same worker
// connection); on a HIT it fetches the single ref, on a PARTIAL_HIT it
// fetches the refs and computes the sub-remainders locally, and on a
// MISS it computes the whole slab locally.
func (s *Server) resolveSlab(ctx context.Context, ww *workerIO, cmd proto.PuzzleRasterCmd, slab cube.Cube) ([]contribution, error) {
	slabQuery := subQuery(cmd.Query, slab)

	req := wire.NewWriter()
	proto.WriteRasterQueryRequested(req, proto.RasterQueryRequested{
		JobID:      cmd.JobID,
		SemanticID: cmd.SemanticID,
		Query:      slabQuery,
	})
	if err := ww.send(req); err != nil {
		return nil, err
	}

	hdr, err := proto.ReadWorkerHeader(ww.r)
	if err != nil {
		return nil, err
	}

	switch hdr {
	case proto.WorkerHit:
		hit, err := proto.ReadRasterQueryHit(ww.r)
		if err != nil {
			return nil, err
		}
		c, err := s.fetchRef(cmd.Query.Type, hit.Ref)
		if err != nil {
			// The ref may have been evicted between the index's answer
			// and our fetch; fall back to computing the slab.
			return s.computeSlab(ctx, cmd, slabQuery, slab)
		}
		return []contribution{c}, nil

	case proto.WorkerPartialHit:
		partial, err := proto.ReadRasterQueryPartialHit(ww.r)
		if err != nil {
			return nil, err
		}
		var out []contribution
		for _, sub := range partial.Remainder {
			cs, err := s.computeSlab(ctx, cmd, subQuery(cmd.Query, sub), sub)
			if err != nil {
				return nil, err
			}
			out = append(out, cs...)
		}
		for _, ref := range partial.Refs {
			c, err := s.fetchRef(cmd.Query.Type, ref)
			if err != nil {
				cs, err2 := s.computeSlab(ctx, cmd, slabQuery, slab)
				if err2 != nil {
					return nil, err2
				}
				return cs, nil
			}
			out = append(out, c)
		}
		return out, nil

	case proto.WorkerMiss:
		if _, err := proto.ReadRasterQueryMiss(ww.r); err != nil {
			return nil, err
		}
		return s.computeSlab(ctx, cmd, slabQuery, slab)

	default:
		return nil, fmt.Errorf("unexpected sub-query reply %d", uint8(hdr))
	}
}

func (s *Server) computeSlab(ctx context.Context, cmd proto.PuzzleRasterCmd, slabQuery cachecube.QueryRectangle, slab cube.Cube) ([]contribution, error) {
	res, err := s.opts.Evaluator.Evaluate(ctx, operator.Request{SemanticID: cmd.SemanticID, Query: slabQuery})
	if err != nil {
		return nil, err
	}
	w, h := pixelSize(slab, cmd.Query.ScaleX, cmd.Query.ScaleY)
	return []contribution{{extent: slab, width: w, height: h, payload: res.Payload}}, nil
}

func (s *Server) fetchRef(t cachecube.CacheType, ref cachecube.CacheRef) (contribution, error) {
	p, err := fetchByEntry(t, ref)
	if err != nil {
		return contribution{}, err
	}
	extent := p.Entry.Bounds.Cube
	w, h := 0, 0
	if res := p.Entry.Bounds.Resolution; res.RestType == cachecube.ResolutionPixels {
		w, h = pixelSize(extent, res.ActualScaleX, res.ActualScaleY)
	}
	return contribution{extent: extent, width: w, height: h, payload: p.Payload}, nil
}

// subQuery narrows the job's query rectangle to one slab, keeping the
// CRS, time type, and requested resolution.
func subQuery(q cachecube.QueryRectangle, slab cube.Cube) cachecube.QueryRectangle {
	return cachecube.QueryRectangle{
		Type:   q.Type,
		Cube:   cachecube.QueryCube{Cube: slab, EPSG: q.Cube.EPSG, TimeType: q.Cube.TimeType},
		ScaleX: q.ScaleX,
		ScaleY: q.ScaleY,
	}
}

func pixelSize(c cube.Cube, scaleX, scaleY float64) (int, int) {
	w := int(math.Round(c.Dimension(0).Distance() / scaleX))
	h := int(math.Round(c.Dimension(1).Distance() / scaleY))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// assemble stitches contributions into one result for the query: a
// blitted raster for raster queries, a filtered concatenation for
// feature collections. Coverage is verified first; a puzzle whose
// pieces do not tile the query fails rather than returning a raster
// with silent holes.
func (s *Server) assemble(q cachecube.QueryRectangle, contributions []contribution) ([]byte, error) {
	clipped := make([]cube.Cube, 0, len(contributions))
	for _, c := range contributions {
		if !c.extent.Intersects(q.Cube.Cube) {
			continue
		}
		ci, err := c.extent.Intersect(q.Cube.Cube)
		if err != nil {
			continue
		}
		clipped = append(clipped, ci)
	}
	if err := puzzle.VerifyCoverage(q.Cube.Cube, clipped); err != nil {
		return nil, err
	}

	if q.Type != cachecube.CacheTypeRaster {
		fc := make([]puzzle.FeatureContribution, 0, len(contributions))
		for _, c := range contributions {
			fc = append(fc, puzzle.FeatureContribution{Payload: c.payload, Extent: c.extent})
		}
		return puzzle.AssembleFeatures(q, fc), nil
	}

	bpp := 1
	for _, c := range contributions {
		if c.width > 0 && c.height > 0 && len(c.payload) > 0 {
			bpp = len(c.payload) / (c.width * c.height)
			break
		}
	}
	if bpp < 1 {
		bpp = 1
	}

	asm, err := puzzle.NewRasterAssembler(q, bpp, make([]byte, bpp))
	if err != nil {
		return nil, err
	}
	for _, c := range contributions {
		if c.width == 0 || c.height == 0 {
			continue
		}
		if err := asm.Blit(c.extent, c.width, c.height, c.payload); err != nil {
			return nil, err
		}
	}
	return asm.Bytes(), nil
}
