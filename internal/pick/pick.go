// Package pick provides injectable selection strategies for the
// non-deterministic branching in the acquisition pipeline: query choice and
// review-sort options. Production code uses Random; tests supply Fixed or
// Sequence to pin the branch taken.
package pick

import "math/rand"

// Chooser selects one index out of n options. Implementations must return
// a value in [0, n) for n > 0 and 0 for n <= 0.
type Chooser interface {
	Index(n int) int
}

// Random is the production chooser, uniform over [0, n).
type Random struct{}

func (Random) Index(n int) int {
	if n <= 0 {
		return 0
	}
	return rand.Intn(n)
}

// Fixed always returns the same index (clamped to the option count).
type Fixed int

func (f Fixed) Index(n int) int {
	if n <= 0 {
		return 0
	}
	if int(f) >= n {
		return n - 1
	}
	return int(f)
}

// Sequence returns pre-recorded indices in order, then repeats the last one.
type Sequence struct {
	Indices []int
	pos     int
}

func (s *Sequence) Index(n int) int {
	if len(s.Indices) == 0 || n <= 0 {
		return 0
	}
	i := s.pos
	if i >= len(s.Indices) {
		i = len(s.Indices) - 1
	} else {
		s.pos++
	}
	v := s.Indices[i]
	if v >= n {
		v = n - 1
	}
	return v
}
