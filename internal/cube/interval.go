package cube

import (
	"errors"
	"fmt"
	"math"
)

// ErrDisjoint is returned when Interval.Intersect or Cube.Intersect is
// called on operands that do not overlap.
var ErrDisjoint = errors.New("cube: disjoint intervals")

// ErrInvalidDissection is returned by Cube.DissectBy when fill does not
// intersect the cube being dissected.
var ErrInvalidDissection = errors.New("cube: filling cube must intersect the cube being dissected")

const epsilon = 2.220446049250313e-16 // math.Nextafter(1, 2) - 1, the float64 machine epsilon

// Interval is a closed range [A, B] of real numbers.
type Interval struct {
	A, B float64
}

// NewInterval builds an Interval, normalizing so A <= B.
func NewInterval(a, b float64) Interval {
	if a > b {
		a, b = b, a
	}
	return Interval{A: a, B: b}
}

// Empty reports whether the interval is the zero-value interval
// (a == 0 && b == 0).
func (iv Interval) Empty() bool {
	return iv.A == 0 && iv.B == 0
}

// Intersects reports whether iv and other share at least one point.
func (iv Interval) Intersects(other Interval) bool {
	return iv.A <= other.B && iv.B >= other.A
}

// Contains reports whether other lies entirely within iv, widened by a
// small epsilon to absorb floating point error.
func (iv Interval) Contains(other Interval) bool {
	return iv.A-epsilon <= other.A && iv.B+epsilon >= other.B
}

// ContainsValue reports whether value lies within iv, epsilon-widened.
func (iv Interval) ContainsValue(value float64) bool {
	return iv.A-epsilon <= value && iv.B+epsilon >= value
}

// Combine returns the smallest interval enclosing both iv and other.
func (iv Interval) Combine(other Interval) Interval {
	return Interval{A: math.Min(iv.A, other.A), B: math.Max(iv.B, other.B)}
}

// Intersect returns the overlap of iv and other. Returns ErrDisjoint if
// they do not intersect.
func (iv Interval) Intersect(other Interval) (Interval, error) {
	if !iv.Intersects(other) {
		return Interval{}, fmt.Errorf("%w: %s and %s", ErrDisjoint, iv, other)
	}
	return Interval{A: math.Max(iv.A, other.A), B: math.Min(iv.B, other.B)}, nil
}

// Distance returns B - A, the length of the interval.
func (iv Interval) Distance() float64 {
	return iv.B - iv.A
}

// Equal compares two intervals within epsilon.
func (iv Interval) Equal(other Interval) bool {
	return math.Abs(iv.A-other.A) < epsilon && math.Abs(iv.B-other.B) < epsilon
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%g, %g]", iv.A, iv.B)
}
