package pick

import "testing"

func TestRandom_IndexInRange(t *testing.T) {
	r := Random{}
	for i := 0; i < 100; i++ {
		if got := r.Index(3); got < 0 || got > 2 {
			t.Fatalf("Index(3): got %d, want in [0, 3)", got)
		}
	}
	if got := r.Index(0); got != 0 {
		t.Errorf("Index(0): got %d, want 0", got)
	}
	if got := r.Index(-1); got != 0 {
		t.Errorf("Index(-1): got %d, want 0", got)
	}
}

func TestFixed(t *testing.T) {
	tests := []struct {
		f    Fixed
		n    int
		want int
	}{
		{Fixed(1), 3, 1},
		{Fixed(5), 3, 2}, // clamped
		{Fixed(0), 0, 0},
	}
	for _, tt := range tests {
		if got := tt.f.Index(tt.n); got != tt.want {
			t.Errorf("Fixed(%d).Index(%d): got %d, want %d", int(tt.f), tt.n, got, tt.want)
		}
	}
}

func TestSequence(t *testing.T) {
	s := &Sequence{Indices: []int{2, 0, 5}}
	want := []int{2, 0, 2, 2} // 5 clamped to n-1, then the last index repeats
	for i, w := range want {
		if got := s.Index(3); got != w {
			t.Errorf("call %d: got %d, want %d", i, got, w)
		}
	}
}

func TestSequence_Empty(t *testing.T) {
	s := &Sequence{}
	if got := s.Index(3); got != 0 {
		t.Errorf("empty sequence: got %d, want 0", got)
	}
}
