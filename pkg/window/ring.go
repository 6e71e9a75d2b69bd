package window

// Ring keeps the most recent n values; pushing onto a full ring drops
// the oldest. The zero value is unusable, use NewRing.
type Ring[T any] struct {
	buf  []T
	next int
	full bool
}

// NewRing creates a ring holding up to n values (at least one)
func NewRing[T any](n int) *Ring[T] {
	return &Ring[T]{buf: make([]T, max(n, 1))}
}

// Push appends v, overwriting the oldest value once full
func (r *Ring[T]) Push(v T) {
	r.buf[r.next] = v
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

// Len is the number of values held
func (r *Ring[T]) Len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Full reports whether Len has reached capacity
func (r *Ring[T]) Full() bool {
	return r.full
}

// Oldest returns the earliest value still held
func (r *Ring[T]) Oldest() (T, bool) {
	var zero T
	switch {
	case r.full:
		return r.buf[r.next], true
	case r.next > 0:
		return r.buf[0], true
	default:
		return zero, false
	}
}

// Newest returns the most recently pushed value
func (r *Ring[T]) Newest() (T, bool) {
	var zero T
	if r.Len() == 0 {
		return zero, false
	}
	return r.buf[(r.next-1+len(r.buf))%len(r.buf)], true
}

// Values copies the held values, oldest first
func (r *Ring[T]) Values() []T {
	if !r.full {
		return append([]T(nil), r.buf[:r.next]...)
	}
	out := make([]T, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

// Reset empties the ring
func (r *Ring[T]) Reset() {
	clear(r.buf)
	r.next = 0
	r.full = false
}
