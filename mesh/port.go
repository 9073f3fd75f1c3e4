package mesh

import (
	"go.dedis.ch/hey"
	"go.dedis.ch/hey/node"
)

// Size is both the lowest port a node may derive and the receive buffer
// size.
const Size = 4096

// Hello is the handshake acknowledgment. It is never folded into a state.
var Hello = []byte("HELLO")

// Port derives the UDP port of a state from the bit length of its encoding.
func Port(n node.Node) int {
	return node.BitLen(n)%(65535-Size) + Size
}

// RootNode decodes a root literal, hey.Root if literal is empty.
func RootNode(literal []byte) node.Node {
	if len(literal) == 0 {
		literal = hey.Root
	}
	// A non-empty literal always decodes.
	n, _ := node.FromBytes(literal)
	return n
}

// RootPort is the rendezvous port every node of a mesh rooted at literal
// announces itself to.
func RootPort(literal []byte) int {
	return Port(RootNode(literal))
}
