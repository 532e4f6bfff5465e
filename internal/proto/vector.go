package proto

import "github.com/dreamware/stcache/internal/wire"

// WriteVector and ReadVector re-export wire's generic vector helpers
// so the per-message encoders in this package read as one vocabulary.

func WriteVector[T any](w *wire.Writer, items []T, each func(*wire.Writer, T)) {
	wire.WriteVector(w, items, each)
}

func ReadVector[T any](r *wire.Reader, each func(*wire.Reader) (T, error)) ([]T, error) {
	return wire.ReadVector(r, each)
}
