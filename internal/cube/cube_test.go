package cube

import (
	"errors"
	"testing"
)

func TestIntervalIntersects(t *testing.T) {
	tests := []struct {
		name       string
		a, b       Interval
		intersects bool
	}{
		{"overlapping", NewInterval(0, 10), NewInterval(5, 15), true},
		{"touching", NewInterval(0, 10), NewInterval(10, 20), true},
		{"disjoint", NewInterval(0, 10), NewInterval(11, 20), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Intersects(tt.b); got != tt.intersects {
				t.Errorf("a.Intersects(b) = %v, want %v", got, tt.intersects)
			}
			if got := tt.b.Intersects(tt.a); got != tt.intersects {
				t.Errorf("b.Intersects(a) = %v, want %v", got, tt.intersects)
			}
		})
	}
}

func TestIntervalIntersectDisjointFails(t *testing.T) {
	_, err := NewInterval(0, 1).Intersect(NewInterval(2, 3))
	if !errors.Is(err, ErrDisjoint) {
		t.Fatalf("expected ErrDisjoint, got %v", err)
	}
}

func TestCombineOfSubsetIsSuperset(t *testing.T) {
	a := New2(2, 4, 2, 4)
	b := New2(0, 10, 0, 10)
	if !b.Contains(a) {
		t.Fatalf("expected b to contain a")
	}

	if got := a.Combine(b); !got.Equal(b) {
		t.Errorf("a.Combine(b) = %v, want %v", got, b)
	}
	if got := b.Combine(a); !got.Equal(b) {
		t.Errorf("b.Combine(a) = %v, want %v", got, b)
	}
}

func TestIntersectVolumeNeverExceedsEither(t *testing.T) {
	a := New2(0, 10, 0, 10)
	b := New2(5, 20, 5, 20)
	if !a.Intersects(b) {
		t.Fatalf("expected a and b to intersect")
	}

	inter, err := a.Intersect(b)
	if err != nil {
		t.Fatalf("Intersect() error = %v", err)
	}

	if inter.Volume() > a.Volume() {
		t.Errorf("intersection volume %v exceeds a's volume %v", inter.Volume(), a.Volume())
	}
	if inter.Volume() > b.Volume() {
		t.Errorf("intersection volume %v exceeds b's volume %v", inter.Volume(), b.Volume())
	}
}

func TestDissectBy2D(t *testing.T) {
	outer := New2(0, 10, 0, 10)
	fill := New2(0, 9, 0, 9)

	got, err := outer.DissectBy(fill)
	if err != nil {
		t.Fatalf("DissectBy() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 remainder slabs, got %d", len(got))
	}

	want := []Cube{New2(9, 10, 0, 10), New2(0, 9, 9, 10)}
	for i, w := range want {
		if !got[i].Equal(w) {
			t.Errorf("slab %d = %v, want %v", i, got[i], w)
		}
	}
}

func TestDissectBy3D(t *testing.T) {
	outer := New3(0, 10, 0, 10, 0, 10)
	fill := New3(1, 9, 1, 9, 1, 9)

	got, err := outer.DissectBy(fill)
	if err != nil {
		t.Fatalf("DissectBy() error = %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("expected 6 remainder slabs, got %d", len(got))
	}

	want := []Cube{
		New3(0, 1, 0, 10, 0, 10),
		New3(9, 10, 0, 10, 0, 10),
		New3(1, 9, 0, 1, 0, 10),
		New3(1, 9, 9, 10, 0, 10),
		New3(1, 9, 1, 9, 0, 1),
		New3(1, 9, 1, 9, 9, 10),
	}
	for i, w := range want {
		if !got[i].Equal(w) {
			t.Errorf("slab %d = %v, want %v", i, got[i], w)
		}
	}
}

func TestDissectByIdentityIsEmpty(t *testing.T) {
	outer := New3(0, 10, 0, 10, 0, 10)
	got, err := outer.DissectBy(outer)
	if err != nil {
		t.Fatalf("DissectBy() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no remainder, got %d slabs", len(got))
	}
}

func TestDissectByDisjointFillFails(t *testing.T) {
	outer := New2(0, 10, 0, 10)
	fill := New2(20, 30, 20, 30)
	if _, err := outer.DissectBy(fill); !errors.Is(err, ErrInvalidDissection) {
		t.Fatalf("expected ErrInvalidDissection, got %v", err)
	}
}

func TestDissectByUnionCoversOriginal(t *testing.T) {
	outer := New3(0, 10, 0, 10, 0, 10)
	fill := New3(2, 8, 3, 9, 1, 5)

	remainder, err := outer.DissectBy(fill)
	if err != nil {
		t.Fatalf("DissectBy() error = %v", err)
	}

	covered, err := outer.Intersect(fill)
	if err != nil {
		t.Fatalf("Intersect() error = %v", err)
	}

	total := covered.Volume()
	for _, r := range remainder {
		total += r.Volume()
	}

	const epsilonVol = 1e-9
	if diff := total - outer.Volume(); diff > epsilonVol || diff < -epsilonVol {
		t.Errorf("covered+remainder volume = %v, want %v", total, outer.Volume())
	}
}
