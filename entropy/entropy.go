// Package entropy provides a deterministic, lazily extended bit stream.
//
// The stream is produced by iterating
//
//	n ← n + 1
//	f ← 1 + f/n
//
// from n = 1 and f = e^(1/e), and taking the lowest bit of the IEEE-754
// encoding of f after every step. Bit i is a function of i alone, so two
// streams created independently always agree, whatever order they are
// queried in. The stream is not cryptographically secure.
package entropy

import (
	"math"
	"sync"
)

// Seed is the starting value of the accumulator.
var Seed = math.Pow(math.E, 1/math.E)

// Stream is a lazily materialized bit sequence. The zero value is not usable,
// create one with New.
type Stream struct {
	sync.Mutex
	n     uint64
	f     float64
	words []uint64
	count int
}

// New returns a stream that has not generated any bit yet.
func New() *Stream {
	return &Stream{n: 1, f: Seed}
}

// step advances the recurrence once and appends one bit to the cache.
func (s *Stream) step() {
	s.n++
	s.f = 1 + s.f/float64(s.n)
	bit := math.Float64bits(s.f)&1 == 1

	if s.count%64 == 0 {
		s.words = append(s.words, 0)
	}
	if bit {
		s.words[s.count/64] |= 1 << uint(63-s.count%64)
	}
	s.count++
}

// ensure generates bits until position pos is materialized.
func (s *Stream) ensure(pos int) {
	for s.count <= pos {
		s.step()
	}
}

func (s *Stream) at(pos int) bool {
	return s.words[pos/64]&(1<<uint(63-pos%64)) != 0
}

// Bit returns the bit at position pos, generating the stream up to pos if
// needed. Negative positions return false.
func (s *Stream) Bit(pos int) bool {
	if pos < 0 {
		return false
	}
	s.Lock()
	defer s.Unlock()
	s.ensure(pos)
	return s.at(pos)
}

// Bits returns the bits in [start, start+length).
func (s *Stream) Bits(start, length int) []bool {
	if length <= 0 || start < 0 {
		return []bool{}
	}
	s.Lock()
	defer s.Unlock()
	s.ensure(start + length - 1)
	out := make([]bool, length)
	for i := range out {
		out[i] = s.at(start + i)
	}
	return out
}

// Prefix returns the first length bits of the stream.
func (s *Stream) Prefix(length int) []bool {
	return s.Bits(0, length)
}

// Len returns how many bits have been materialized so far.
func (s *Stream) Len() int {
	s.Lock()
	defer s.Unlock()
	return s.count
}
