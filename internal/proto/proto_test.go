package proto

import (
	"bytes"
	"testing"

	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/cube"
	"github.com/dreamware/stcache/internal/wire"
)

func sampleEntry(id uint64) cachecube.CacheEntry {
	return cachecube.CacheEntry{
		Key: cachecube.NodeCacheKey{SemanticID: "sem-1", EntryID: id},
		Bounds: cachecube.CacheCube{
			QueryCube:  cachecube.QueryCube{Cube: cube.New3(0, 1024, 0, 1024, 0, 1), EPSG: 4326, TimeType: 1},
			Resolution: cachecube.NewPixelResolution(1.0, 1.0),
		},
		Size:        4096,
		Profile:     cachecube.Profile{SelfCPU: 1.5, SelfIO: 2.5},
		LastAccess:  1700000000000,
		AccessCount: 3,
	}
}

func TestMagicRoundTrip(t *testing.T) {
	w := wire.NewWriter()
	WriteMagic(w, MagicWorker)

	r := wire.NewReader(bytes.NewReader(w.Bytes()))
	m, err := ReadMagic(r)
	if err != nil {
		t.Fatalf("ReadMagic() error = %v", err)
	}
	if m != MagicWorker {
		t.Errorf("ReadMagic() = %v, want %v", m, MagicWorker)
	}
}

func TestHelloRoundTrip(t *testing.T) {
	h := Hello{
		Host: "10.0.0.1",
		Port: 9100,
		Capacities: map[cachecube.CacheType]uint64{
			cachecube.CacheTypeRaster: 1 << 20,
			cachecube.CacheTypePoint:  1 << 18,
		},
		Entries: []MetaCacheEntry{
			{
				Key:   cachecube.TypedNodeCacheKey{NodeCacheKey: cachecube.NodeCacheKey{SemanticID: "sem-1", EntryID: 1}, Type: cachecube.CacheTypeRaster},
				Entry: sampleEntry(1),
			},
		},
	}

	w := wire.NewWriter()
	WriteHello(w, h)

	r := wire.NewReader(bytes.NewReader(w.Bytes()))
	got, err := ReadHello(r)
	if err != nil {
		t.Fatalf("ReadHello() error = %v", err)
	}
	if got.Host != h.Host || got.Port != h.Port {
		t.Errorf("Host/Port = %s:%d, want %s:%d", got.Host, got.Port, h.Host, h.Port)
	}
	if got.Capacities[cachecube.CacheTypeRaster] != h.Capacities[cachecube.CacheTypeRaster] {
		t.Errorf("raster capacity = %d, want %d", got.Capacities[cachecube.CacheTypeRaster], h.Capacities[cachecube.CacheTypeRaster])
	}
	if len(got.Entries) != 1 || got.Entries[0].Entry.Key.EntryID != 1 {
		t.Errorf("entries round-tripped wrong: %+v", got.Entries)
	}
}

func TestNodeStatsRoundTrip(t *testing.T) {
	s := NodeStats{
		NodeID:      7,
		QueueLength: 3,
		ActiveJobs:  2,
		CacheStats: []CacheStats{
			{Type: cachecube.CacheTypeRaster, Capacity: 1000, Used: 400, EntryCount: 5, HitCount: 9, MissCount: 1, EvictedCount: 0},
		},
	}

	w := wire.NewWriter()
	WriteNodeStats(w, s)

	r := wire.NewReader(bytes.NewReader(w.Bytes()))
	hdr, err := ReadControlHeader(r)
	if err != nil {
		t.Fatalf("ReadControlHeader() error = %v", err)
	}
	if hdr != ControlStats {
		t.Fatalf("header = %v, want ControlStats", hdr)
	}
	got, err := ReadNodeStats(r)
	if err != nil {
		t.Fatalf("ReadNodeStats() error = %v", err)
	}
	if got.NodeID != 7 || got.QueueLength != 3 || got.ActiveJobs != 2 {
		t.Errorf("got %+v, want NodeID=7 QueueLength=3 ActiveJobs=2", got)
	}
	if len(got.CacheStats) != 1 || got.CacheStats[0].Used != 400 {
		t.Errorf("CacheStats = %+v", got.CacheStats)
	}
}

func TestReorgRoundTrip(t *testing.T) {
	d := ReorgDescription{
		Moves: []Move{
			{Type: cachecube.CacheTypeRaster, EntryKey: cachecube.NodeCacheKey{SemanticID: "sem-1", EntryID: 1}, FromNode: 2},
			{Type: cachecube.CacheTypePoint, EntryKey: cachecube.NodeCacheKey{SemanticID: "sem-2", EntryID: 9}, FromNode: 3},
		},
	}

	w := wire.NewWriter()
	WriteReorg(w, d)

	r := wire.NewReader(bytes.NewReader(w.Bytes()))
	if hdr, err := ReadControlHeader(r); err != nil || hdr != ControlReorg {
		t.Fatalf("header = %v, %v, want ControlReorg", hdr, err)
	}
	got, err := ReadReorg(r)
	if err != nil {
		t.Fatalf("ReadReorg() error = %v", err)
	}
	if len(got.Moves) != 2 || got.Moves[1].FromNode != 3 {
		t.Errorf("Moves = %+v", got.Moves)
	}
}

func TestWorkerJobCommandsRoundTrip(t *testing.T) {
	query := cachecube.QueryRectangle{
		Type:   cachecube.CacheTypeRaster,
		Cube:   cachecube.QueryCube{Cube: cube.New3(0, 10, 0, 10, 0, 1), EPSG: 4326, TimeType: 1},
		ScaleX: 1, ScaleY: 1,
	}

	t.Run("create", func(t *testing.T) {
		w := wire.NewWriter()
		WriteCreateRaster(w, CreateRasterCmd{JobID: 1, SemanticID: "sem", Query: query})
		r := wire.NewReader(bytes.NewReader(w.Bytes()))
		if hdr, _ := ReadWorkerHeader(r); hdr != WorkerCreateRaster {
			t.Fatalf("header = %v", hdr)
		}
		got, err := ReadCreateRaster(r)
		if err != nil || got.JobID != 1 || got.SemanticID != "sem" {
			t.Fatalf("got %+v, err %v", got, err)
		}
	})

	t.Run("deliver", func(t *testing.T) {
		ref := cachecube.CacheRef{Host: "h", Port: 1, EntryID: 5}
		w := wire.NewWriter()
		WriteDeliverRaster(w, DeliverRasterCmd{JobID: 2, Ref: ref, Query: query})
		r := wire.NewReader(bytes.NewReader(w.Bytes()))
		if hdr, _ := ReadWorkerHeader(r); hdr != WorkerDeliverRaster {
			t.Fatalf("header = %v", hdr)
		}
		got, err := ReadDeliverRaster(r)
		if err != nil || got.JobID != 2 || got.Ref.EntryID != 5 {
			t.Fatalf("got %+v, err %v", got, err)
		}
	})

	t.Run("puzzle", func(t *testing.T) {
		w := wire.NewWriter()
		WritePuzzleRaster(w, PuzzleRasterCmd{
			JobID:      3,
			SemanticID: "sem",
			Query:      query,
			Remainder:  []cube.Cube{cube.New3(0, 5, 0, 10, 0, 1)},
			Refs:       []cachecube.CacheRef{{Host: "h", Port: 1, EntryID: 7}},
		})
		r := wire.NewReader(bytes.NewReader(w.Bytes()))
		if hdr, _ := ReadWorkerHeader(r); hdr != WorkerPuzzleRaster {
			t.Fatalf("header = %v", hdr)
		}
		got, err := ReadPuzzleRaster(r)
		if err != nil {
			t.Fatalf("ReadPuzzleRaster() error = %v", err)
		}
		if len(got.Remainder) != 1 || len(got.Refs) != 1 || got.Refs[0].EntryID != 7 {
			t.Errorf("got %+v", got)
		}
	})
}

func TestDoneAndErrorRoundTrip(t *testing.T) {
	entry := sampleEntry(42)
	meta := MetaCacheEntry{
		Key:   cachecube.TypedNodeCacheKey{NodeCacheKey: entry.Key, Type: cachecube.CacheTypeRaster},
		Entry: entry,
	}

	w := wire.NewWriter()
	WriteDone(w, Done{JobID: 9, Entry: meta})
	r := wire.NewReader(bytes.NewReader(w.Bytes()))
	if hdr, _ := ReadWorkerHeader(r); hdr != WorkerDone {
		t.Fatalf("header = %v", hdr)
	}
	got, err := ReadDone(r)
	if err != nil || got.JobID != 9 || got.Entry.Entry.Key.EntryID != 42 {
		t.Fatalf("got %+v, err %v", got, err)
	}

	w2 := wire.NewWriter()
	WriteWorkerError(w2, Error{JobID: 9, Message: "puzzle blit failed"})
	r2 := wire.NewReader(bytes.NewReader(w2.Bytes()))
	if hdr, _ := ReadWorkerHeader(r2); hdr != WorkerError {
		t.Fatalf("header = %v", hdr)
	}
	gotErr, err := ReadWorkerError(r2)
	if err != nil || gotErr.Message != "puzzle blit failed" {
		t.Fatalf("got %+v, err %v", gotErr, err)
	}
}

func TestClientQueryRoundTrip(t *testing.T) {
	q := QueryRequest{
		SemanticID: "sem-abc",
		Query: cachecube.QueryRectangle{
			Type:   cachecube.CacheTypeRaster,
			Cube:   cachecube.QueryCube{Cube: cube.New3(0, 10, 0, 10, 0, 1), EPSG: 4326, TimeType: 1},
			ScaleX: 2, ScaleY: 2,
		},
	}
	w := wire.NewWriter()
	WriteQueryRequest(w, q)

	r := wire.NewReader(bytes.NewReader(w.Bytes()))
	if hdr, _ := ReadClientHeader(r); hdr != ClientQuery {
		t.Fatalf("header = %v", hdr)
	}
	got, err := ReadQueryRequest(r)
	if err != nil || got.SemanticID != "sem-abc" || got.Query.ScaleX != 2 {
		t.Fatalf("got %+v, err %v", got, err)
	}
}

func TestDeliveryPayloadStreamsLinkedBlobWithoutCopy(t *testing.T) {
	entry := sampleEntry(1)
	payload := bytes.Repeat([]byte{0xAB}, 256)

	w := wire.NewWriter()
	WriteDeliveryPayload(w, entry, payload)

	var out bytes.Buffer
	if err := w.Flush(&out); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	r := wire.NewReader(&out)
	got, err := ReadDeliveryPayload(r)
	if err != nil {
		t.Fatalf("ReadDeliveryPayload() error = %v", err)
	}
	if got.Entry.Key.EntryID != 1 {
		t.Errorf("entry key = %+v", got.Entry.Key)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Errorf("payload mismatch, got %d bytes want %d", len(got.Payload), len(payload))
	}
}

func TestDeliveryFetchKindsRoundTrip(t *testing.T) {
	w := wire.NewWriter()
	WriteDeliveryFetchByID(w, 42)
	WriteDeliveryFetchEntry(w, cachecube.CacheTypeRaster, 7)

	r := wire.NewReader(bytes.NewReader(w.Bytes()))
	kind, err := ReadDeliveryFetchKind(r)
	if err != nil || kind != FetchByDeliveryID {
		t.Fatalf("kind = %v, %v, want FetchByDeliveryID", kind, err)
	}
	if id, err := r.ReadUint64(); err != nil || id != 42 {
		t.Fatalf("delivery id = %d, %v, want 42", id, err)
	}

	kind, err = ReadDeliveryFetchKind(r)
	if err != nil || kind != FetchByEntry {
		t.Fatalf("kind = %v, %v, want FetchByEntry", kind, err)
	}
	typ, entryID, err := ReadDeliveryFetchEntry(r)
	if err != nil || typ != cachecube.CacheTypeRaster || entryID != 7 {
		t.Fatalf("got (%v, %d, %v), want (raster, 7)", typ, entryID, err)
	}
}

func TestDeliveryIngestRoundTrip(t *testing.T) {
	entry := sampleEntry(3)
	meta := MetaCacheEntry{
		Key:   cachecube.TypedNodeCacheKey{NodeCacheKey: entry.Key, Type: cachecube.CacheTypeRaster},
		Entry: entry,
	}
	payload := bytes.Repeat([]byte{0xCD}, 128)

	w := wire.NewWriter()
	WriteDeliveryIngest(w, meta, payload)

	r := wire.NewReader(bytes.NewReader(w.Bytes()))
	kind, err := ReadDeliveryFetchKind(r)
	if err != nil || kind != IngestEntry {
		t.Fatalf("kind = %v, %v, want IngestEntry", kind, err)
	}
	gotMeta, gotPayload, err := ReadDeliveryIngest(r)
	if err != nil {
		t.Fatalf("ReadDeliveryIngest() error = %v", err)
	}
	if gotMeta.Key.EntryID != 3 || gotMeta.Key.Type != cachecube.CacheTypeRaster {
		t.Errorf("key = %+v", gotMeta.Key)
	}
	if !bytes.Equal(gotPayload, payload) {
		t.Errorf("payload mismatch, got %d bytes want %d", len(gotPayload), len(payload))
	}
}

func TestMoveCarriesDestination(t *testing.T) {
	d := ReorgDescription{Moves: []Move{{
		Type:     cachecube.CacheTypeRaster,
		EntryKey: cachecube.NodeCacheKey{SemanticID: "sem-1", EntryID: 4},
		FromNode: 1,
		ToNode:   2,
		ToHost:   "10.0.0.2",
		ToPort:   9002,
	}}}

	w := wire.NewWriter()
	WriteReorg(w, d)

	r := wire.NewReader(bytes.NewReader(w.Bytes()))
	if hdr, err := ReadControlHeader(r); err != nil || hdr != ControlReorg {
		t.Fatalf("header = %v, %v, want ControlReorg", hdr, err)
	}
	got, err := ReadReorg(r)
	if err != nil {
		t.Fatalf("ReadReorg() error = %v", err)
	}
	m := got.Moves[0]
	if m.ToNode != 2 || m.ToHost != "10.0.0.2" || m.ToPort != 9002 {
		t.Errorf("Move = %+v", m)
	}
}

func TestReorgAckRoundTrip(t *testing.T) {
	w := wire.NewWriter()
	WriteReorgAck(w, 5)

	r := wire.NewReader(bytes.NewReader(w.Bytes()))
	if hdr, err := ReadControlHeader(r); err != nil || hdr != ControlReorgAck {
		t.Fatalf("header = %v, %v, want ControlReorgAck", hdr, err)
	}
	if n, err := ReadReorgAck(r); err != nil || n != 5 {
		t.Fatalf("completed = %d, %v, want 5", n, err)
	}
}

func TestWorkerHelloRoundTrip(t *testing.T) {
	w := wire.NewWriter()
	WriteWorkerHello(w, 12)

	r := wire.NewReader(bytes.NewReader(w.Bytes()))
	if id, err := ReadWorkerHello(r); err != nil || id != 12 {
		t.Fatalf("node id = %d, %v, want 12", id, err)
	}
}
