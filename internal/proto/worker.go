package proto

import (
	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/cube"
	"github.com/dreamware/stcache/internal/wire"
)

// WorkerMessageType tags every message on a node's worker connection
// to the index: job dispatch in one direction, job outcome and
// puzzle-lookup traffic in the other.
type WorkerMessageType uint8

const (
	WorkerCreateRaster WorkerMessageType = iota + 1
	WorkerDeliverRaster
	WorkerPuzzleRaster
	WorkerDone
	WorkerError
	WorkerNewEntry
	WorkerNewRasterEntry
	WorkerQueryRequested
	WorkerHit
	WorkerPartialHit
	WorkerMiss
)

func writeWorkerHeader(w *wire.Writer, t WorkerMessageType) {
	w.WriteUint8(uint8(t))
}

// ReadWorkerHeader reads the WorkerMessageType tagging the next
// message on a worker connection.
func ReadWorkerHeader(r *wire.Reader) (WorkerMessageType, error) {
	v, err := r.ReadUint8()
	return WorkerMessageType(v), err
}

func writeQueryRectangle(w *wire.Writer, q cachecube.QueryRectangle) {
	w.WriteUint32(uint32(q.Type))
	writeQueryCube(w, q.Cube)
	w.WriteFloat64(q.ScaleX)
	w.WriteFloat64(q.ScaleY)
}

func readQueryRectangle(r *wire.Reader) (cachecube.QueryRectangle, error) {
	t, err := r.ReadUint32()
	if err != nil {
		return cachecube.QueryRectangle{}, err
	}
	c, err := readQueryCube(r)
	if err != nil {
		return cachecube.QueryRectangle{}, err
	}
	sx, err := r.ReadFloat64()
	if err != nil {
		return cachecube.QueryRectangle{}, err
	}
	sy, err := r.ReadFloat64()
	if err != nil {
		return cachecube.QueryRectangle{}, err
	}
	return cachecube.QueryRectangle{Type: cachecube.CacheType(t), Cube: c, ScaleX: sx, ScaleY: sy}, nil
}

// CreateRasterCmd dispatches an operator graph to a worker: compute
// semanticID against query from scratch, no cache involvement — the
// full-miss path.
type CreateRasterCmd struct {
	JobID      uint64
	SemanticID string
	Query      cachecube.QueryRectangle
}

// WriteCreateRaster encodes a CreateRasterCmd with its header.
func WriteCreateRaster(w *wire.Writer, c CreateRasterCmd) {
	writeWorkerHeader(w, WorkerCreateRaster)
	w.WriteUint64(c.JobID)
	w.WriteString(c.SemanticID)
	writeQueryRectangle(w, c.Query)
}

// ReadCreateRaster decodes a CreateRasterCmd. Callers must have
// already consumed the WorkerCreateRaster header.
func ReadCreateRaster(r *wire.Reader) (CreateRasterCmd, error) {
	id, err := r.ReadUint64()
	if err != nil {
		return CreateRasterCmd{}, err
	}
	sem, err := r.ReadString()
	if err != nil {
		return CreateRasterCmd{}, err
	}
	q, err := readQueryRectangle(r)
	if err != nil {
		return CreateRasterCmd{}, err
	}
	return CreateRasterCmd{JobID: id, SemanticID: sem, Query: q}, nil
}

// DeliverRasterCmd dispatches a full-hit job to a worker on the node
// holding Ref: the worker reads the entry from its own node store and
// answers with a delivery handle for it, with no operator evaluation.
type DeliverRasterCmd struct {
	JobID uint64
	Ref   cachecube.CacheRef
	Query cachecube.QueryRectangle
}

// WriteDeliverRaster encodes a DeliverRasterCmd with its header.
func WriteDeliverRaster(w *wire.Writer, c DeliverRasterCmd) {
	writeWorkerHeader(w, WorkerDeliverRaster)
	w.WriteUint64(c.JobID)
	writeCacheRef(w, c.Ref)
	writeQueryRectangle(w, c.Query)
}

// ReadDeliverRaster decodes a DeliverRasterCmd. Callers must have
// already consumed the WorkerDeliverRaster header.
func ReadDeliverRaster(r *wire.Reader) (DeliverRasterCmd, error) {
	id, err := r.ReadUint64()
	if err != nil {
		return DeliverRasterCmd{}, err
	}
	ref, err := readCacheRef(r)
	if err != nil {
		return DeliverRasterCmd{}, err
	}
	q, err := readQueryRectangle(r)
	if err != nil {
		return DeliverRasterCmd{}, err
	}
	return DeliverRasterCmd{JobID: id, Ref: ref, Query: q}, nil
}

// PuzzleRasterCmd dispatches a partial-hit job: fetch each of Refs by
// delivery, recompute each cube in Remainder locally, and blit all of
// it together into one answer via the puzzle engine.
type PuzzleRasterCmd struct {
	JobID      uint64
	SemanticID string
	Query      cachecube.QueryRectangle
	Remainder  []cube.Cube
	Refs       []cachecube.CacheRef
}

func writeCube3Field(w *wire.Writer, c cube.Cube) { writeCube3(w, c) }
func readCube3Field(r *wire.Reader) (cube.Cube, error) { return readCube3(r) }

// WritePuzzleRaster encodes a PuzzleRasterCmd with its header.
func WritePuzzleRaster(w *wire.Writer, c PuzzleRasterCmd) {
	writeWorkerHeader(w, WorkerPuzzleRaster)
	w.WriteUint64(c.JobID)
	w.WriteString(c.SemanticID)
	writeQueryRectangle(w, c.Query)
	WriteVector(w, c.Remainder, writeCube3Field)
	WriteVector(w, c.Refs, writeCacheRef)
}

// ReadPuzzleRaster decodes a PuzzleRasterCmd. Callers must have
// already consumed the WorkerPuzzleRaster header.
func ReadPuzzleRaster(r *wire.Reader) (PuzzleRasterCmd, error) {
	id, err := r.ReadUint64()
	if err != nil {
		return PuzzleRasterCmd{}, err
	}
	sem, err := r.ReadString()
	if err != nil {
		return PuzzleRasterCmd{}, err
	}
	q, err := readQueryRectangle(r)
	if err != nil {
		return PuzzleRasterCmd{}, err
	}
	remainder, err := ReadVector(r, readCube3Field)
	if err != nil {
		return PuzzleRasterCmd{}, err
	}
	refs, err := ReadVector(r, readCacheRef)
	if err != nil {
		return PuzzleRasterCmd{}, err
	}
	return PuzzleRasterCmd{JobID: id, SemanticID: sem, Query: q, Remainder: remainder, Refs: refs}, nil
}

// Done reports a job's successful completion: the delivery handle the
// client (or index, for a recursive puzzle fetch) should use to
// stream the resulting payload, plus the entry describing the result.
// Cached reports whether the caching strategy admitted the result as a
// new cache entry; Entry is filled in either way. The index folds Entry into its shadow catalog when
// Cached is true and always forwards Delivery to the client that
// requested the job.
type Done struct {
	JobID    uint64
	Cached   bool
	Entry    MetaCacheEntry
	Delivery DeliveryResponse
}

// WriteDone encodes a Done with its header.
func WriteDone(w *wire.Writer, d Done) {
	writeWorkerHeader(w, WorkerDone)
	w.WriteUint64(d.JobID)
	w.WriteBool(d.Cached)
	writeMetaCacheEntry(w, d.Entry)
	writeDeliveryResponse(w, d.Delivery)
}

// ReadDone decodes a Done. Callers must have already consumed the
// WorkerDone header.
func ReadDone(r *wire.Reader) (Done, error) {
	id, err := r.ReadUint64()
	if err != nil {
		return Done{}, err
	}
	cached, err := r.ReadBool()
	if err != nil {
		return Done{}, err
	}
	entry, err := readMetaCacheEntry(r)
	if err != nil {
		return Done{}, err
	}
	delivery, err := readDeliveryResponse(r)
	if err != nil {
		return Done{}, err
	}
	return Done{JobID: id, Cached: cached, Entry: entry, Delivery: delivery}, nil
}

// Error reports a job's failure, e.g. a PuzzleFailure from the
// puzzle engine or a delivery connection that could not be opened.
type Error struct {
	JobID   uint64
	Message string
}

// WriteWorkerError encodes an Error with its header.
func WriteWorkerError(w *wire.Writer, e Error) {
	writeWorkerHeader(w, WorkerError)
	w.WriteUint64(e.JobID)
	w.WriteString(e.Message)
}

// ReadWorkerError decodes an Error. Callers must have already
// consumed the WorkerError header.
func ReadWorkerError(r *wire.Reader) (Error, error) {
	id, err := r.ReadUint64()
	if err != nil {
		return Error{}, err
	}
	msg, err := r.ReadString()
	if err != nil {
		return Error{}, err
	}
	return Error{JobID: id, Message: msg}, nil
}

// WriteWorkerNewEntry encodes a generic NEW_ENTRY notification on the
// worker connection (used for non-raster cache types).
func WriteWorkerNewEntry(w *wire.Writer, e MetaCacheEntry) {
	writeWorkerHeader(w, WorkerNewEntry)
	writeMetaCacheEntry(w, e)
}

// ReadWorkerNewEntry decodes a NEW_ENTRY notification. Callers must
// have already consumed the WorkerNewEntry header.
func ReadWorkerNewEntry(r *wire.Reader) (MetaCacheEntry, error) {
	return readMetaCacheEntry(r)
}

// WriteWorkerNewRasterEntry encodes the raster-specific NEW_RASTER_ENTRY
// notification. Raster entries are structurally identical to any
// other MetaCacheEntry; the distinct tag lets the receiver dispatch
// raster entries through a separate code path from feature/plot
// entries.
func WriteWorkerNewRasterEntry(w *wire.Writer, e MetaCacheEntry) {
	writeWorkerHeader(w, WorkerNewRasterEntry)
	writeMetaCacheEntry(w, e)
}

// ReadWorkerNewRasterEntry decodes a NEW_RASTER_ENTRY notification.
// Callers must have already consumed the WorkerNewRasterEntry header.
func ReadWorkerNewRasterEntry(r *wire.Reader) (MetaCacheEntry, error) {
	return readMetaCacheEntry(r)
}

// RasterQueryRequested asks the index to match a query rectangle
// against its shadow catalog for semanticID. A node sends this when it
// needs to resolve a puzzle sub-query against the global catalog
// rather than just its own local cache.
type RasterQueryRequested struct {
	JobID      uint64
	SemanticID string
	Query      cachecube.QueryRectangle
}

// WriteRasterQueryRequested encodes a RasterQueryRequested with its
// header.
func WriteRasterQueryRequested(w *wire.Writer, q RasterQueryRequested) {
	writeWorkerHeader(w, WorkerQueryRequested)
	w.WriteUint64(q.JobID)
	w.WriteString(q.SemanticID)
	writeQueryRectangle(w, q.Query)
}

// ReadRasterQueryRequested decodes a RasterQueryRequested. Callers
// must have already consumed the WorkerQueryRequested header.
func ReadRasterQueryRequested(r *wire.Reader) (RasterQueryRequested, error) {
	id, err := r.ReadUint64()
	if err != nil {
		return RasterQueryRequested{}, err
	}
	sem, err := r.ReadString()
	if err != nil {
		return RasterQueryRequested{}, err
	}
	q, err := readQueryRectangle(r)
	if err != nil {
		return RasterQueryRequested{}, err
	}
	return RasterQueryRequested{JobID: id, SemanticID: sem, Query: q}, nil
}

// RasterQueryHit answers RasterQueryRequested when exactly one entry
// fully covers the query: the single ref to deliver from.
type RasterQueryHit struct {
	JobID uint64
	Ref   cachecube.CacheRef
}

// WriteRasterQueryHit encodes a RasterQueryHit with its header.
func WriteRasterQueryHit(w *wire.Writer, h RasterQueryHit) {
	writeWorkerHeader(w, WorkerHit)
	w.WriteUint64(h.JobID)
	writeCacheRef(w, h.Ref)
}

// ReadRasterQueryHit decodes a RasterQueryHit. Callers must have
// already consumed the WorkerHit header.
func ReadRasterQueryHit(r *wire.Reader) (RasterQueryHit, error) {
	id, err := r.ReadUint64()
	if err != nil {
		return RasterQueryHit{}, err
	}
	ref, err := readCacheRef(r)
	if err != nil {
		return RasterQueryHit{}, err
	}
	return RasterQueryHit{JobID: id, Ref: ref}, nil
}

// RasterQueryPartialHit answers RasterQueryRequested when the query is
// worth puzzling: the refs that contribute and the cubes still left
// uncovered.
type RasterQueryPartialHit struct {
	JobID     uint64
	Refs      []cachecube.CacheRef
	Remainder []cube.Cube
}

// WriteRasterQueryPartialHit encodes a RasterQueryPartialHit with its
// header.
func WriteRasterQueryPartialHit(w *wire.Writer, h RasterQueryPartialHit) {
	writeWorkerHeader(w, WorkerPartialHit)
	w.WriteUint64(h.JobID)
	WriteVector(w, h.Refs, writeCacheRef)
	WriteVector(w, h.Remainder, writeCube3Field)
}

// ReadRasterQueryPartialHit decodes a RasterQueryPartialHit. Callers
// must have already consumed the WorkerPartialHit header.
func ReadRasterQueryPartialHit(r *wire.Reader) (RasterQueryPartialHit, error) {
	id, err := r.ReadUint64()
	if err != nil {
		return RasterQueryPartialHit{}, err
	}
	refs, err := ReadVector(r, readCacheRef)
	if err != nil {
		return RasterQueryPartialHit{}, err
	}
	remainder, err := ReadVector(r, readCube3Field)
	if err != nil {
		return RasterQueryPartialHit{}, err
	}
	return RasterQueryPartialHit{JobID: id, Refs: refs, Remainder: remainder}, nil
}

// RasterQueryMiss answers RasterQueryRequested when nothing in the
// catalog is worth using.
type RasterQueryMiss struct {
	JobID uint64
}

// WriteRasterQueryMiss encodes a RasterQueryMiss with its header.
func WriteRasterQueryMiss(w *wire.Writer, m RasterQueryMiss) {
	writeWorkerHeader(w, WorkerMiss)
	w.WriteUint64(m.JobID)
}

// ReadRasterQueryMiss decodes a RasterQueryMiss. Callers must have
// already consumed the WorkerMiss header.
func ReadRasterQueryMiss(r *wire.Reader) (RasterQueryMiss, error) {
	id, err := r.ReadUint64()
	return RasterQueryMiss{JobID: id}, err
}
