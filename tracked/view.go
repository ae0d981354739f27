// Package tracked records which part of a slice was written, so that only
// that part needs to be uploaded to its GPU copy.
package tracked

// Range is a half-open interval [Start, Start+Length) of element indices.
// The zero value is empty.
type Range struct {
	Start  int
	Length int
}

// End returns Start+Length.
func (r Range) End() int { return r.Start + r.Length }

// Empty reports whether the range contains no index.
func (r Range) Empty() bool { return r.Length == 0 }

// Include widens r to the smallest range containing both r and i.
func (r *Range) Include(i int) {
	if r.Length == 0 {
		r.Start, r.Length = i, 1
		return
	}
	end := r.End()
	if i < r.Start {
		r.Start = i
	}
	if i >= end {
		end = i + 1
	}
	r.Length = end - r.Start
}

// View wraps a slice and records the bounding range of every index written
// through it. Writes made through other references to the same slice are
// not seen.
//
// Disjoint writes are merged into one bounding range: writing index 0 and
// index 99 records [0, 100).
type View[T any] struct {
	data []T
	r    *Range
}

// NewView returns a view over data that records writes into r. r is reset to
// the empty range.
func NewView[T any](data []T, r *Range) *View[T] {
	*r = Range{}
	return &View[T]{data: data, r: r}
}

// Len returns the number of elements.
func (v *View[T]) Len() int { return len(v.data) }

// Get returns element i without recording a write.
func (v *View[T]) Get(i int) T { return v.data[i] }

// Set stores x at index i and records the write.
func (v *View[T]) Set(i int, x T) {
	v.data[i] = x
	v.r.Include(i)
}

// At returns a pointer to element i and records a write, since the caller
// may modify the element through it.
func (v *View[T]) At(i int) *T {
	p := &v.data[i]
	v.r.Include(i)
	return p
}

// Fill stores x in every element of [start, start+n).
func (v *View[T]) Fill(start, n int, x T) {
	if n <= 0 {
		return
	}
	for i := start; i < start+n; i++ {
		v.data[i] = x
	}
	v.r.Include(start)
	v.r.Include(start + n - 1)
}

// Range returns the range written so far.
func (v *View[T]) Range() Range { return *v.r }

// Written returns the sub-slice covered by the written range.
func (v *View[T]) Written() []T {
	return v.data[v.r.Start:v.r.End()]
}
