package puzzle

import (
	"errors"
	"testing"

	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/cube"
)

func query2D(x0, x1, y0, y1, scaleX, scaleY float64) cachecube.QueryRectangle {
	return cachecube.QueryRectangle{
		Type:   cachecube.CacheTypeRaster,
		Cube:   cachecube.QueryCube{Cube: cube.New3(x0, x1, y0, y1, 0, 1), EPSG: 4326, TimeType: 1},
		ScaleX: scaleX,
		ScaleY: scaleY,
	}
}

func TestVerifyCoverageExactTiling(t *testing.T) {
	whole := cube.New3(0, 10, 0, 10, 0, 10)
	left := cube.New3(0, 5, 0, 10, 0, 10)
	right := cube.New3(5, 10, 0, 10, 0, 10)

	if err := VerifyCoverage(whole, []cube.Cube{left, right}); err != nil {
		t.Fatalf("expected full coverage, got %v", err)
	}
}

func TestVerifyCoverageGapFails(t *testing.T) {
	whole := cube.New3(0, 10, 0, 10, 0, 10)
	left := cube.New3(0, 4, 0, 10, 0, 10)

	err := VerifyCoverage(whole, []cube.Cube{left})
	if !errors.Is(err, ErrPuzzleFailure) {
		t.Fatalf("expected ErrPuzzleFailure, got %v", err)
	}
}

func TestRasterAssemblerFillsNoData(t *testing.T) {
	q := query2D(0, 10, 0, 10, 1, 1)
	a, err := NewRasterAssembler(q, 1, []byte{0xFF})
	if err != nil {
		t.Fatalf("NewRasterAssembler: %v", err)
	}
	if a.Width() != 10 || a.Height() != 10 {
		t.Fatalf("got %dx%d, want 10x10", a.Width(), a.Height())
	}
	for _, b := range a.Bytes() {
		if b != 0xFF {
			t.Fatalf("expected all no-data bytes, found %#x", b)
		}
	}
}

func TestRasterAssemblerBlitOverwritesOverlap(t *testing.T) {
	q := query2D(0, 10, 0, 10, 1, 1)
	a, err := NewRasterAssembler(q, 1, []byte{0})
	if err != nil {
		t.Fatalf("NewRasterAssembler: %v", err)
	}

	// A 5x10 source raster covering the left half, filled with 1s.
	src := make([]byte, 5*10)
	for i := range src {
		src[i] = 1
	}
	if err := a.Blit(cube.New3(0, 5, 0, 10, 0, 1), 5, 10, src); err != nil {
		t.Fatalf("Blit: %v", err)
	}

	out := a.Bytes()
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			want := byte(0)
			if x < 5 {
				want = 1
			}
			if got := out[y*10+x]; got != want {
				t.Fatalf("pixel (%d,%d) = %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestAssembleFeaturesFiltersByExtent(t *testing.T) {
	q := cachecube.QueryRectangle{Cube: cachecube.QueryCube{Cube: cube.New3(0, 10, 0, 10, 0, 1), EPSG: 4326, TimeType: 1}}

	in := FeatureContribution{Payload: []byte("in"), Extent: cube.New3(0, 5, 0, 5, 0, 1)}
	out := FeatureContribution{Payload: []byte("out"), Extent: cube.New3(100, 105, 100, 105, 0, 1)}

	got := AssembleFeatures(q, []FeatureContribution{in, out})
	if string(got) != "in" {
		t.Fatalf("AssembleFeatures = %q, want %q", got, "in")
	}
}
