package hey

import (
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/suites"
)

type suite interface {
	kyber.Group
	kyber.HashFactory
}

// Suite is the kyber suite whose hash names node states in logs and replays.
var Suite suite

// Root is the literal every node state is seeded from. Decoded, it also
// names the mesh's rendezvous port.
var Root = []byte("hey")

func init() {
	Suite = suites.MustFind("Ed25519").(suite)
}
