package tracked

import (
	"math/rand/v2"
	"testing"
)

func TestNewViewResetsRange(t *testing.T) {
	r := Range{Start: 3, Length: 4}
	v := NewView(make([]int, 8), &r)
	if !r.Empty() || !v.Range().Empty() {
		t.Errorf("range after NewView = %+v, want empty", r)
	}
}

func TestViewRange(t *testing.T) {
	tests := []struct {
		name   string
		writes []int
		want   Range
	}{
		{"no writes", nil, Range{}},
		{"single", []int{5}, Range{5, 1}},
		{"same index twice", []int{5, 5}, Range{5, 1}},
		{"ascending", []int{2, 3, 4}, Range{2, 3}},
		{"descending", []int{7, 4, 1}, Range{1, 7}},
		{"disjoint merged", []int{0, 9}, Range{0, 10}},
		{"inner write does not grow", []int{1, 8, 4}, Range{1, 8}},
		{"last element", []int{9}, Range{9, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Range
			v := NewView(make([]int, 10), &r)
			for _, i := range tt.writes {
				v.Set(i, i+100)
			}
			if r != tt.want {
				t.Errorf("range = %+v, want %+v", r, tt.want)
			}
		})
	}
}

// The recorded range must be the minimal interval covering every write.
func TestViewRangeMinimal(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.IntN(64)
		var r Range
		v := NewView(make([]float32, n), &r)
		lo, hi := n, -1
		for range 1 + rng.IntN(10) {
			i := rng.IntN(n)
			if rng.IntN(2) == 0 {
				v.Set(i, 1)
			} else {
				*v.At(i) = 2
			}
			lo = min(lo, i)
			hi = max(hi, i)
		}
		want := Range{Start: lo, Length: hi - lo + 1}
		if r != want {
			t.Fatalf("trial %d: range = %+v, want %+v", trial, r, want)
		}
		if r.Start < 0 || r.End() > n {
			t.Fatalf("trial %d: range %+v outside [0,%d)", trial, r, n)
		}
	}
}

func TestViewGetDoesNotTrack(t *testing.T) {
	var r Range
	v := NewView([]int{1, 2, 3}, &r)
	if got := v.Get(1); got != 2 {
		t.Errorf("Get(1) = %d, want 2", got)
	}
	if !r.Empty() {
		t.Errorf("Get recorded a write: %+v", r)
	}
}

func TestViewFillAndWritten(t *testing.T) {
	var r Range
	data := make([]int, 10)
	v := NewView(data, &r)
	v.Fill(3, 4, 7)
	if r != (Range{3, 4}) {
		t.Errorf("range = %+v, want {3 4}", r)
	}
	for i, x := range v.Written() {
		if x != 7 {
			t.Errorf("Written()[%d] = %d, want 7", i, x)
		}
	}
	v.Fill(0, 0, 1)
	if r != (Range{3, 4}) {
		t.Errorf("empty Fill changed range to %+v", r)
	}
}

func TestViewOutOfBoundsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Set(len) did not panic")
		}
	}()
	var r Range
	NewView(make([]int, 2), &r).Set(2, 0)
}
