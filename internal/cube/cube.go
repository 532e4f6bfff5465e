package cube

import (
	"fmt"
	"strings"
)

// Cube is a tuple of Intervals, one per dimension, describing an
// axis-aligned box. Dimension count is fixed at construction and every
// operation between two cubes requires matching dimensionality.
type Cube struct {
	dims []Interval
}

// Zero returns a dim-dimensional cube whose every interval is the
// zero-value interval [0, 0] — the canonical "nothing covered yet"
// starting point for greedy coverage accumulation.
func Zero(dim int) Cube {
	return Cube{dims: make([]Interval, dim)}
}

// New builds a Cube from the given per-dimension intervals, in order.
func New(dims ...Interval) Cube {
	cp := make([]Interval, len(dims))
	copy(cp, dims)
	return Cube{dims: cp}
}

// New2 builds a 2-dimensional cube from raw interval bounds.
func New2(x0, x1, y0, y1 float64) Cube {
	return New(NewInterval(x0, x1), NewInterval(y0, y1))
}

// New3 builds a 3-dimensional cube (x, y, time) from raw interval
// bounds.
func New3(x0, x1, y0, y1, t0, t1 float64) Cube {
	return New(NewInterval(x0, x1), NewInterval(y0, y1), NewInterval(t0, t1))
}

// Dim returns the number of dimensions.
func (c Cube) Dim() int {
	return len(c.dims)
}

// Dimension returns the interval for dimension i.
func (c Cube) Dimension(i int) Interval {
	return c.dims[i]
}

func (c Cube) sameDim(other Cube) {
	if len(c.dims) != len(other.dims) {
		panic(fmt.Sprintf("cube: dimension mismatch %d vs %d", len(c.dims), len(other.dims)))
	}
}

// Empty reports whether every dimension is the zero-value interval.
func (c Cube) Empty() bool {
	for _, d := range c.dims {
		if !d.Empty() {
			return false
		}
	}
	return true
}

// Intersects reports whether c and other overlap in every dimension.
func (c Cube) Intersects(other Cube) bool {
	c.sameDim(other)
	for i, d := range c.dims {
		if !d.Intersects(other.dims[i]) {
			return false
		}
	}
	return true
}

// Contains reports whether other lies entirely within c.
func (c Cube) Contains(other Cube) bool {
	c.sameDim(other)
	for i, d := range c.dims {
		if !d.Contains(other.dims[i]) {
			return false
		}
	}
	return true
}

// ContainsPoint reports whether the given point (one coordinate per
// dimension) lies within c.
func (c Cube) ContainsPoint(point []float64) bool {
	if len(point) != len(c.dims) {
		panic(fmt.Sprintf("cube: point dimension mismatch %d vs %d", len(point), len(c.dims)))
	}
	for i, d := range c.dims {
		if !d.ContainsValue(point[i]) {
			return false
		}
	}
	return true
}

// Equal compares two cubes dimension-wise within epsilon.
func (c Cube) Equal(other Cube) bool {
	if len(c.dims) != len(other.dims) {
		return false
	}
	for i, d := range c.dims {
		if !d.Equal(other.dims[i]) {
			return false
		}
	}
	return true
}

// Volume returns the product of per-dimension distances.
func (c Cube) Volume() float64 {
	res := 1.0
	for _, d := range c.dims {
		res *= d.Distance()
	}
	return res
}

// Combine returns the per-dimension hull of c and other.
func (c Cube) Combine(other Cube) Cube {
	c.sameDim(other)
	res := make([]Interval, len(c.dims))
	for i, d := range c.dims {
		res[i] = d.Combine(other.dims[i])
	}
	return Cube{dims: res}
}

// Intersect returns the per-dimension overlap of c and other. Fails with
// ErrDisjoint if any dimension pair does not intersect.
func (c Cube) Intersect(other Cube) (Cube, error) {
	c.sameDim(other)
	res := make([]Interval, len(c.dims))
	for i, d := range c.dims {
		iv, err := d.Intersect(other.dims[i])
		if err != nil {
			return Cube{}, err
		}
		res[i] = iv
	}
	return Cube{dims: res}, nil
}

// DissectBy returns the axis-aligned remainder of c after removing fill:
// up to 2*Dim() disjoint cubes whose union, together with c ∩ fill, equals
// c. Dissection proceeds dimension by dimension, in fixed dimension order:
// for each dimension it peels off the low slab (if fill starts later than
// the current remainder) and the high slab (if fill ends earlier), then
// clips the working cube to fill's extent in that dimension before moving
// to the next. The fixed order makes the remainder set deterministic
// and reproducible across runs.
//
// Returns an empty slice if fill contains c. Fails with
// ErrInvalidDissection if c and fill do not intersect.
func (c Cube) DissectBy(fill Cube) ([]Cube, error) {
	c.sameDim(fill)

	if fill.Contains(c) {
		return nil, nil
	}
	if !c.Intersects(fill) {
		return nil, fmt.Errorf("%w", ErrInvalidDissection)
	}

	work := Cube{dims: append([]Interval(nil), c.dims...)}
	var res []Cube

	for i := range work.dims {
		myDim := work.dims[i]
		oDim := fill.dims[i]

		if oDim.A > myDim.A {
			rem := Cube{dims: append([]Interval(nil), work.dims...)}
			rem.dims[i] = Interval{A: myDim.A, B: oDim.A}
			res = append(res, rem)
			myDim.A = oDim.A
		}

		if oDim.B < myDim.B {
			rem := Cube{dims: append([]Interval(nil), work.dims...)}
			rem.dims[i] = Interval{A: oDim.B, B: myDim.B}
			res = append(res, rem)
			myDim.B = oDim.B
		}

		work.dims[i] = myDim
	}

	return res, nil
}

func (c Cube) String() string {
	parts := make([]string, len(c.dims))
	for i, d := range c.dims {
		parts[i] = d.String()
	}
	return "Cube: " + strings.Join(parts, "x")
}
