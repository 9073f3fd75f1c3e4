// Package node implements the recursive bit tree every state is made of.
//
// A tree is built from a bit sequence by splitting it in halves until a
// chunk holds at most LeafBits bits, which is then summarized into one
// majority bit. Encoding expands every leaf into a full literal byte, so
// Encode is not the inverse of Decode: decoding quantizes, encoding expands.
// The frame log and the mesh both rely on the expanded form.
package node

import (
	"fmt"

	"go.dedis.ch/hey"
	"golang.org/x/xerrors"
)

// LeafBits is the largest chunk summarized into a single leaf.
const LeafBits = 64

// Literals a leaf expands to.
const (
	ZeroLiteral byte = 0x00
	OneLiteral  byte = 0xff
)

// ErrEmptyInput is returned when a tree is decoded from zero bits.
var ErrEmptyInput = xerrors.New("cannot decode a node from an empty bit sequence")

// Node is either a Leaf or a Compound.
type Node interface {
	fmt.Stringer
	node()
}

// Leaf is a terminal node carrying one summarized bit.
type Leaf struct {
	Value bool
}

// Compound is an internal node owning its two children.
type Compound struct {
	Left  Node
	Right Node
}

func (Leaf) node()     {}
func (Compound) node() {}

func (l Leaf) String() string {
	if l.Value {
		return "1"
	}
	return "0"
}

func (c Compound) String() string {
	return "(" + c.Left.String() + " " + c.Right.String() + ")"
}

// One and Zero are the two leaves.
var (
	One  Node = Leaf{Value: true}
	Zero Node = Leaf{Value: false}
)

// Decode builds a balanced tree from bits. Chunks of at most LeafBits bits
// become a Leaf whose value is true if at least half of the chunk is set.
func Decode(bits Bits) (Node, error) {
	if bits.Len() == 0 {
		return nil, ErrEmptyInput
	}
	return decode(bits), nil
}

func decode(bits Bits) Node {
	if bits.Len() <= LeafBits {
		ones := bits.Ones()
		return Leaf{Value: ones >= bits.Len()-ones}
	}
	mid := bits.Len() / 2
	return Compound{
		Left:  decode(bits.Slice(0, mid)),
		Right: decode(bits.Slice(mid, bits.Len())),
	}
}

// FromBytes decodes the bits of b.
func FromBytes(b []byte) (Node, error) {
	n, err := Decode(BitsFromBytes(b))
	if err != nil {
		return nil, xerrors.Errorf("decoding %d bytes: %w", len(b), err)
	}
	return n, nil
}

// Encode flattens n into one literal byte per leaf, left before right.
func Encode(n Node) []byte {
	out := make([]byte, 0, Size(n))
	return encode(n, out)
}

func encode(n Node, out []byte) []byte {
	switch v := n.(type) {
	case Leaf:
		if v.Value {
			return append(out, OneLiteral)
		}
		return append(out, ZeroLiteral)
	case Compound:
		out = encode(v.Left, out)
		return encode(v.Right, out)
	}
	panic(fmt.Sprintf("node: unknown type %T", n))
}

// EncodeBits is Encode as a bit sequence.
func EncodeBits(n Node) Bits {
	return BitsFromBytes(Encode(n))
}

// BitLen is the length in bits of the encoding of n.
func BitLen(n Node) int {
	return 8 * Size(n)
}

// Size returns the number of leaves of n.
func Size(n Node) int {
	switch v := n.(type) {
	case Leaf:
		return 1
	case Compound:
		return Size(v.Left) + Size(v.Right)
	}
	panic(fmt.Sprintf("node: unknown type %T", n))
}

// Depth returns the number of levels of n, 1 for a single leaf.
func Depth(n Node) int {
	c, ok := n.(Compound)
	if !ok {
		return 1
	}
	l, r := Depth(c.Left), Depth(c.Right)
	if l > r {
		return l + 1
	}
	return r + 1
}

// Equal reports whether a and b have the same shape and leaves.
func Equal(a, b Node) bool {
	switch va := a.(type) {
	case Leaf:
		vb, ok := b.(Leaf)
		return ok && va.Value == vb.Value
	case Compound:
		vb, ok := b.(Compound)
		return ok && Equal(va.Left, vb.Left) && Equal(va.Right, vb.Right)
	}
	return false
}

// Digest hashes the encoding of n with the suite's hash.
func Digest(n Node) []byte {
	h := hey.Suite.Hash()
	h.Write(Encode(n))
	return h.Sum(nil)
}
