package proto

import (
	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/cube"
	"github.com/dreamware/stcache/internal/wire"
)

func writeInterval(w *wire.Writer, iv cube.Interval) {
	w.WriteFloat64(iv.A)
	w.WriteFloat64(iv.B)
}

func readInterval(r *wire.Reader) (cube.Interval, error) {
	a, err := r.ReadFloat64()
	if err != nil {
		return cube.Interval{}, err
	}
	b, err := r.ReadFloat64()
	if err != nil {
		return cube.Interval{}, err
	}
	return cube.NewInterval(a, b), nil
}

// writeCube3 writes a 3-dimensional (x, y, time) cube as three
// intervals, in dimension order. The wire protocol is fixed at three
// spatio-temporal dimensions.
func writeCube3(w *wire.Writer, c cube.Cube) {
	for i := 0; i < 3; i++ {
		writeInterval(w, c.Dimension(i))
	}
}

func readCube3(r *wire.Reader) (cube.Cube, error) {
	dims := make([]cube.Interval, 3)
	for i := range dims {
		iv, err := readInterval(r)
		if err != nil {
			return cube.Cube{}, err
		}
		dims[i] = iv
	}
	return cube.New(dims...), nil
}

// writeQueryCube writes cube fields, then epsg,
// then timetype.
func writeQueryCube(w *wire.Writer, q cachecube.QueryCube) {
	writeCube3(w, q.Cube)
	w.WriteUint32(q.EPSG)
	w.WriteUint32(q.TimeType)
}

func readQueryCube(r *wire.Reader) (cachecube.QueryCube, error) {
	c, err := readCube3(r)
	if err != nil {
		return cachecube.QueryCube{}, err
	}
	epsg, err := r.ReadUint32()
	if err != nil {
		return cachecube.QueryCube{}, err
	}
	timeType, err := r.ReadUint32()
	if err != nil {
		return cachecube.QueryCube{}, err
	}
	return cachecube.QueryCube{Cube: c, EPSG: epsg, TimeType: timeType}, nil
}

// writeResolutionInfo writes pixel_scale_x,
// pixel_scale_y, restype, actual_pixel_scale_x, actual_pixel_scale_y.
// The restype field travels after the two scale intervals; readers
// follow the same order.
func writeResolutionInfo(w *wire.Writer, info cachecube.ResolutionInfo) {
	writeInterval(w, info.PixelScaleX)
	writeInterval(w, info.PixelScaleY)
	w.WriteUint32(uint32(info.RestType))
	w.WriteFloat64(info.ActualScaleX)
	w.WriteFloat64(info.ActualScaleY)
}

func readResolutionInfo(r *wire.Reader) (cachecube.ResolutionInfo, error) {
	scaleX, err := readInterval(r)
	if err != nil {
		return cachecube.ResolutionInfo{}, err
	}
	scaleY, err := readInterval(r)
	if err != nil {
		return cachecube.ResolutionInfo{}, err
	}
	restype, err := r.ReadUint32()
	if err != nil {
		return cachecube.ResolutionInfo{}, err
	}
	actualX, err := r.ReadFloat64()
	if err != nil {
		return cachecube.ResolutionInfo{}, err
	}
	actualY, err := r.ReadFloat64()
	if err != nil {
		return cachecube.ResolutionInfo{}, err
	}
	return cachecube.ResolutionInfo{
		RestType:     cachecube.ResolutionType(restype),
		PixelScaleX:  scaleX,
		PixelScaleY:  scaleY,
		ActualScaleX: actualX,
		ActualScaleY: actualY,
	}, nil
}

// writeCacheCube writes QueryCube fields then
// resolution_info.
func writeCacheCube(w *wire.Writer, c cachecube.CacheCube) {
	writeQueryCube(w, c.QueryCube)
	writeResolutionInfo(w, c.Resolution)
}

func readCacheCube(r *wire.Reader) (cachecube.CacheCube, error) {
	q, err := readQueryCube(r)
	if err != nil {
		return cachecube.CacheCube{}, err
	}
	res, err := readResolutionInfo(r)
	if err != nil {
		return cachecube.CacheCube{}, err
	}
	return cachecube.CacheCube{QueryCube: q, Resolution: res}, nil
}

// writeProfile writes a Profile's nine cost fields, one scope at a
// time (self, all, uncached), cpu/gpu/io within each scope.
func writeProfile(w *wire.Writer, p cachecube.Profile) {
	w.WriteFloat64(p.SelfCPU)
	w.WriteFloat64(p.SelfGPU)
	w.WriteFloat64(p.SelfIO)
	w.WriteFloat64(p.AllCPU)
	w.WriteFloat64(p.AllGPU)
	w.WriteFloat64(p.AllIO)
	w.WriteFloat64(p.UncachedCPU)
	w.WriteFloat64(p.UncachedGPU)
	w.WriteFloat64(p.UncachedIO)
}

func readProfile(r *wire.Reader) (cachecube.Profile, error) {
	vals := make([]float64, 9)
	for i := range vals {
		v, err := r.ReadFloat64()
		if err != nil {
			return cachecube.Profile{}, err
		}
		vals[i] = v
	}
	return cachecube.Profile{
		SelfCPU: vals[0], SelfGPU: vals[1], SelfIO: vals[2],
		AllCPU: vals[3], AllGPU: vals[4], AllIO: vals[5],
		UncachedCPU: vals[6], UncachedGPU: vals[7], UncachedIO: vals[8],
	}, nil
}

// writeNodeCacheKey writes semantic_id then
// entry_id.
func writeNodeCacheKey(w *wire.Writer, k cachecube.NodeCacheKey) {
	w.WriteString(k.SemanticID)
	w.WriteUint64(k.EntryID)
}

func readNodeCacheKey(r *wire.Reader) (cachecube.NodeCacheKey, error) {
	sem, err := r.ReadString()
	if err != nil {
		return cachecube.NodeCacheKey{}, err
	}
	id, err := r.ReadUint64()
	if err != nil {
		return cachecube.NodeCacheKey{}, err
	}
	return cachecube.NodeCacheKey{SemanticID: sem, EntryID: id}, nil
}

// writeTypedNodeCacheKey writes
// NodeCacheKey fields then type.
func writeTypedNodeCacheKey(w *wire.Writer, k cachecube.TypedNodeCacheKey) {
	writeNodeCacheKey(w, k.NodeCacheKey)
	w.WriteUint32(uint32(k.Type))
}

func readTypedNodeCacheKey(r *wire.Reader) (cachecube.TypedNodeCacheKey, error) {
	k, err := readNodeCacheKey(r)
	if err != nil {
		return cachecube.TypedNodeCacheKey{}, err
	}
	t, err := r.ReadUint32()
	if err != nil {
		return cachecube.TypedNodeCacheKey{}, err
	}
	return cachecube.TypedNodeCacheKey{NodeCacheKey: k, Type: cachecube.CacheType(t)}, nil
}

// writeCacheEntry writes the key, then size and profile, then
// last_access, access_count, and bounds.
func writeCacheEntry(w *wire.Writer, e cachecube.CacheEntry) {
	writeNodeCacheKey(w, e.Key)
	w.WriteUint64(e.Size)
	writeProfile(w, e.Profile)
	w.WriteInt64(e.LastAccess)
	w.WriteUint64(e.AccessCount)
	writeCacheCube(w, e.Bounds)
}

func readCacheEntry(r *wire.Reader) (cachecube.CacheEntry, error) {
	key, err := readNodeCacheKey(r)
	if err != nil {
		return cachecube.CacheEntry{}, err
	}
	size, err := r.ReadUint64()
	if err != nil {
		return cachecube.CacheEntry{}, err
	}
	profile, err := readProfile(r)
	if err != nil {
		return cachecube.CacheEntry{}, err
	}
	lastAccess, err := r.ReadInt64()
	if err != nil {
		return cachecube.CacheEntry{}, err
	}
	accessCount, err := r.ReadUint64()
	if err != nil {
		return cachecube.CacheEntry{}, err
	}
	bounds, err := readCacheCube(r)
	if err != nil {
		return cachecube.CacheEntry{}, err
	}
	return cachecube.CacheEntry{
		Key: key, Size: size, Profile: profile,
		LastAccess: lastAccess, AccessCount: accessCount, Bounds: bounds,
	}, nil
}

// MetaCacheEntry is a CacheEntry tagged with the CacheType it belongs
// to, as shipped between the index and a node's control connection
// (the index's shadow catalog is organized per type, but a single
// NEW_ENTRY notification needs to say which).
type MetaCacheEntry struct {
	Key   cachecube.TypedNodeCacheKey
	Entry cachecube.CacheEntry
}

// writeMetaCacheEntry writes
// TypedNodeCacheKey fields then CacheEntry fields.
func writeMetaCacheEntry(w *wire.Writer, m MetaCacheEntry) {
	writeTypedNodeCacheKey(w, m.Key)
	writeCacheEntry(w, m.Entry)
}

func readMetaCacheEntry(r *wire.Reader) (MetaCacheEntry, error) {
	key, err := readTypedNodeCacheKey(r)
	if err != nil {
		return MetaCacheEntry{}, err
	}
	entry, err := readCacheEntry(r)
	if err != nil {
		return MetaCacheEntry{}, err
	}
	return MetaCacheEntry{Key: key, Entry: entry}, nil
}

// ForeignRef locates a node process: enough to dial it for a delivery
// connection.
type ForeignRef struct {
	Host string
	Port uint32
}

// writeForeignRef writes host then port.
func writeForeignRef(w *wire.Writer, f ForeignRef) {
	w.WriteString(f.Host)
	w.WriteUint32(f.Port)
}

func readForeignRef(r *wire.Reader) (ForeignRef, error) {
	host, err := r.ReadString()
	if err != nil {
		return ForeignRef{}, err
	}
	port, err := r.ReadUint32()
	if err != nil {
		return ForeignRef{}, err
	}
	return ForeignRef{Host: host, Port: port}, nil
}

// DeliveryResponse tells a requester which node holds the answer and
// under which delivery id to ask for it.
type DeliveryResponse struct {
	ForeignRef
	DeliveryID uint64
}

// writeDeliveryResponse writes
// ForeignRef fields then delivery_id.
func writeDeliveryResponse(w *wire.Writer, d DeliveryResponse) {
	writeForeignRef(w, d.ForeignRef)
	w.WriteUint64(d.DeliveryID)
}

func readDeliveryResponse(r *wire.Reader) (DeliveryResponse, error) {
	ref, err := readForeignRef(r)
	if err != nil {
		return DeliveryResponse{}, err
	}
	id, err := r.ReadUint64()
	if err != nil {
		return DeliveryResponse{}, err
	}
	return DeliveryResponse{ForeignRef: ref, DeliveryID: id}, nil
}

// writeCacheRef writes ForeignRef fields then
// entry_id.
func writeCacheRef(w *wire.Writer, ref cachecube.CacheRef) {
	writeForeignRef(w, ForeignRef{Host: ref.Host, Port: ref.Port})
	w.WriteUint64(ref.EntryID)
}

func readCacheRef(r *wire.Reader) (cachecube.CacheRef, error) {
	fr, err := readForeignRef(r)
	if err != nil {
		return cachecube.CacheRef{}, err
	}
	id, err := r.ReadUint64()
	if err != nil {
		return cachecube.CacheRef{}, err
	}
	return cachecube.CacheRef{Host: fr.Host, Port: fr.Port, EntryID: id}, nil
}
