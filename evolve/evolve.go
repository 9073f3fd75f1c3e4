// Package evolve folds inputs into a node state.
//
// A leaf input is prepended to the state: Compound(input, state). Any other
// input is combined with the state bit by bit and the result decoded into
// the next state. The combination is a positional XOR of both encodings, the
// shorter one padded with zeros. When an entropy stream is attached and the
// evolver is biased, the combination instead runs over the folded leaf values
// of both trees and mixes in one stream bit per position.
package evolve

import (
	"go.dedis.ch/hey/entropy"
	"go.dedis.ch/hey/node"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// Evolver computes state transitions. It holds no state of its own apart
// from the optional entropy stream, whose bits depend only on their position.
type Evolver struct {
	stream *entropy.Stream
	biased bool
}

// Option configures an Evolver.
type Option func(*Evolver)

// WithEntropy attaches a stream and turns the biased combination on.
func WithEntropy(s *entropy.Stream) Option {
	return func(e *Evolver) {
		e.stream = s
		e.biased = s != nil
	}
}

// Biased switches the biased combination on or off. Turning it on without a
// stream attaches a fresh one.
func Biased(on bool) Option {
	return func(e *Evolver) {
		e.biased = on
	}
}

// New returns an evolver, unbiased unless configured otherwise.
func New(opts ...Option) *Evolver {
	e := &Evolver{}
	for _, opt := range opts {
		opt(e)
	}
	if e.biased && e.stream == nil {
		e.stream = entropy.New()
	}
	return e
}

// IsBiased reports whether tree inputs are combined with entropy.
func (e *Evolver) IsBiased() bool {
	return e.biased
}

// Stream returns the attached entropy stream, or nil.
func (e *Evolver) Stream() *entropy.Stream {
	return e.stream
}

// Next returns the state following state once input is folded in. It only
// fails if the combined bits are empty, which cannot happen for valid trees.
func (e *Evolver) Next(state, input node.Node) (node.Node, error) {
	if leaf, ok := input.(node.Leaf); ok {
		return node.Compound{Left: leaf, Right: state}, nil
	}

	var bits node.Bits
	if e.biased {
		bits = BiasedXOR(state, input, e.stream)
	} else {
		bits = XOR(state, input)
	}
	next, err := node.Decode(bits)
	if err != nil {
		return nil, xerrors.Errorf("folding input: %w", err)
	}
	log.Lvlf4("folded %d leaves into %d: %d leaves", node.Size(input),
		node.Size(state), node.Size(next))
	return next, nil
}

// XOR combines the encodings of a and b position by position. The shorter
// encoding is treated as zeros past its end, so the result is as long as the
// longer one.
func XOR(a, b node.Node) node.Bits {
	ea, eb := node.Encode(a), node.Encode(b)
	if len(ea) < len(eb) {
		ea, eb = eb, ea
	}
	out := make([]byte, len(ea))
	copy(out, ea)
	for i := range eb {
		out[i] ^= eb[i]
	}
	return node.BitsFromBytes(out)
}

// Fold collapses tree into one bit for position pos: a leaf gives its value,
// a compound the XOR of its folded children and of the stream bit at pos.
func Fold(tree node.Node, pos int, s *entropy.Stream) bool {
	switch v := tree.(type) {
	case node.Leaf:
		return v.Value
	case node.Compound:
		return Fold(v.Left, pos, s) != Fold(v.Right, pos, s) != s.Bit(pos)
	}
	panic("evolve: unknown node type")
}

// BiasedXOR returns, for every pos below the larger leaf count of a and b,
// Fold(a, pos) ^ Fold(b, pos) ^ s.Bit(pos).
func BiasedXOR(a, b node.Node, s *entropy.Stream) node.Bits {
	length := node.Size(a)
	if sb := node.Size(b); sb > length {
		length = sb
	}
	// Fold(t, pos) is the parity of t's leaves, flipped by the stream bit
	// once per compound of t.
	pa, ca := parity(a)
	pb, cb := parity(b)
	flips := (ca+cb+1)%2 == 1

	bits := s.Prefix(length)
	out := make([]bool, length)
	for pos, e := range bits {
		out[pos] = pa != pb != (flips && e)
	}
	return node.NewBits(out...)
}

// parity returns the XOR of all leaves of t and the number of compounds.
func parity(t node.Node) (bool, int) {
	switch v := t.(type) {
	case node.Leaf:
		return v.Value, 0
	case node.Compound:
		pl, cl := parity(v.Left)
		pr, cr := parity(v.Right)
		return pl != pr, cl + cr + 1
	}
	panic("evolve: unknown node type")
}
