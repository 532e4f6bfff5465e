package puzzle

import (
	"errors"
	"fmt"
	"math"

	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/cube"
)

// ErrPuzzleFailure reports that the supplied remainders and references
// do not tile the target query rectangle exactly.
var ErrPuzzleFailure = errors.New("puzzle: contributions do not cover the query rectangle")

// VerifyCoverage checks that the ordered list of contribution cubes
// (already clipped to the query, as remainders and references both
// are) tiles query exactly. It works by repeatedly dissecting whatever
// of the query is still uncovered by each contribution in turn; if
// anything remains once every contribution has been applied, the
// puzzle failed to cover its target.
func VerifyCoverage(query cube.Cube, contributions []cube.Cube) error {
	remaining := []cube.Cube{query}

	for _, piece := range contributions {
		var next []cube.Cube
		for _, r := range remaining {
			if !r.Intersects(piece) {
				next = append(next, r)
				continue
			}
			clipped, err := piece.Intersect(r)
			if err != nil {
				next = append(next, r)
				continue
			}
			rest, err := r.DissectBy(clipped)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrPuzzleFailure, err)
			}
			next = append(next, rest...)
		}
		remaining = next
		if len(remaining) == 0 {
			break
		}
	}

	if len(remaining) != 0 {
		return fmt.Errorf("%w: %d region(s) left uncovered", ErrPuzzleFailure, len(remaining))
	}
	return nil
}

// RasterAssembler composes a single output raster from remainder and
// reference contributions. The output is
// sized to the query's requested pixel resolution and initialized to
// a no-data sentinel; contributions are blitted in the order the
// caller supplies them (callers must pass remainders before
// references to keep the blit order deterministic).
type RasterAssembler struct {
	query  cachecube.QueryRectangle
	originX, originY float64
	width, height    int
	bpp              int
	data             []byte
}

// NewRasterAssembler allocates an output buffer for query, sized by
// its cube extent and requested per-axis pixel scale, filled with
// noDataPixel repeated across every pixel. len(noDataPixel) must equal
// bpp.
func NewRasterAssembler(query cachecube.QueryRectangle, bpp int, noDataPixel []byte) (*RasterAssembler, error) {
	if len(noDataPixel) != bpp {
		return nil, fmt.Errorf("puzzle: no-data pixel length %d does not match bpp %d", len(noDataPixel), bpp)
	}
	xDim := query.Cube.Cube.Dimension(0)
	yDim := query.Cube.Cube.Dimension(1)
	if query.ScaleX <= 0 || query.ScaleY <= 0 {
		return nil, fmt.Errorf("puzzle: query scale must be positive, got (%g, %g)", query.ScaleX, query.ScaleY)
	}

	width := int(math.Round(xDim.Distance() / query.ScaleX))
	height := int(math.Round(yDim.Distance() / query.ScaleY))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("puzzle: degenerate raster size %dx%d", width, height)
	}

	data := make([]byte, width*height*bpp)
	for off := 0; off < len(data); off += bpp {
		copy(data[off:off+bpp], noDataPixel)
	}

	return &RasterAssembler{
		query:   query,
		originX: xDim.A,
		originY: yDim.A,
		width:   width,
		height:  height,
		bpp:     bpp,
		data:    data,
	}, nil
}

// Width and Height report the allocated output's pixel dimensions.
func (a *RasterAssembler) Width() int  { return a.width }
func (a *RasterAssembler) Height() int { return a.height }

// Bytes returns the assembled output, row-major, origin at (minX,
// minY) of the query cube.
func (a *RasterAssembler) Bytes() []byte { return a.data }

// Blit copies srcData, a row-major raster of srcWidth x srcHeight
// pixels covering srcCube, into the region of the output it overlaps.
// srcCube's first two dimensions (x, y) are used; a third (time)
// dimension, if present, is ignored since the output is a single 2-D
// slice. Pixels outside the query's cube, or outside srcCube, are
// left untouched.
func (a *RasterAssembler) Blit(srcCube cube.Cube, srcWidth, srcHeight int, srcData []byte) error {
	if len(srcData) != srcWidth*srcHeight*a.bpp {
		return fmt.Errorf("puzzle: source raster buffer length %d does not match %dx%d at %d bpp", len(srcData), srcWidth, srcHeight, a.bpp)
	}

	srcX := srcCube.Dimension(0)
	srcY := srcCube.Dimension(1)
	queryX := a.query.Cube.Cube.Dimension(0)
	queryY := a.query.Cube.Cube.Dimension(1)

	overlapX, err := srcX.Intersect(queryX)
	if err != nil {
		return nil // no spatial overlap; nothing to blit
	}
	overlapY, err := srcY.Intersect(queryY)
	if err != nil {
		return nil
	}

	scaleX := a.query.ScaleX
	scaleY := a.query.ScaleY
	srcScaleX := srcX.Distance() / float64(srcWidth)
	srcScaleY := srcY.Distance() / float64(srcHeight)

	dstX0 := clampPixel(int(math.Round((overlapX.A - a.originX) / scaleX)), a.width)
	dstX1 := clampPixel(int(math.Round((overlapX.B - a.originX) / scaleX)), a.width)
	dstY0 := clampPixel(int(math.Round((overlapY.A - a.originY) / scaleY)), a.height)
	dstY1 := clampPixel(int(math.Round((overlapY.B - a.originY) / scaleY)), a.height)

	for dy := dstY0; dy < dstY1; dy++ {
		worldY := a.originY + (float64(dy)+0.5)*scaleY
		sy := clampPixel(int((worldY-srcY.A)/srcScaleY), srcHeight)
		for dx := dstX0; dx < dstX1; dx++ {
			worldX := a.originX + (float64(dx)+0.5)*scaleX
			sx := clampPixel(int((worldX-srcX.A)/srcScaleX), srcWidth)

			dstOff := (dy*a.width + dx) * a.bpp
			srcOff := (sy*srcWidth + sx) * a.bpp
			copy(a.data[dstOff:dstOff+a.bpp], srcData[srcOff:srcOff+a.bpp])
		}
	}
	return nil
}

func clampPixel(v, limit int) int {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}

// FeatureContribution is one input to AssembleFeatures: a raw encoded
// feature payload (opaque to this package — decoding is the operator
// graph's job, not this package's) plus the spatio-temporal
// extent it covers, used only to decide whether it overlaps the query.
type FeatureContribution struct {
	Payload []byte
	Extent  cube.Cube
}

// AssembleFeatures concatenates the payloads of every contribution
// whose extent intersects query's cube, in the order supplied. Since
// feature encoding
// is opaque here, "concatenate" means byte-level concatenation; the
// operator graph that produced each contribution is responsible for
// using a self-delimiting feature encoding.
func AssembleFeatures(query cachecube.QueryRectangle, contributions []FeatureContribution) []byte {
	var total int
	for _, c := range contributions {
		if c.Extent.Intersects(query.Cube.Cube) {
			total += len(c.Payload)
		}
	}

	out := make([]byte, 0, total)
	for _, c := range contributions {
		if c.Extent.Intersects(query.Cube.Cube) {
			out = append(out, c.Payload...)
		}
	}
	return out
}
