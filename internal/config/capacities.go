package config

import "github.com/dreamware/stcache/internal/cachecube"

// NodeCapacities maps Cache's per-type byte budgets onto the
// cachecube.CacheType keys nodestore.NewCache expects.
func (c CacheConfig) NodeCapacities() map[cachecube.CacheType]uint64 {
	return map[cachecube.CacheType]uint64{
		cachecube.CacheTypeRaster:  c.RasterSize,
		cachecube.CacheTypePoint:   c.PointsSize,
		cachecube.CacheTypeLine:    c.LinesSize,
		cachecube.CacheTypePolygon: c.PolygonsSize,
		cachecube.CacheTypePlot:    c.PlotsSize,
	}
}
