package evolve

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/hey/entropy"
	"go.dedis.ch/hey/node"
	"go.dedis.ch/onet/v3/log"
)

func TestMain(m *testing.M) {
	log.MainTest(m)
}

func randomTree(t *testing.T, rnd *rand.Rand) node.Node {
	buf := make([]byte, 1+rnd.Intn(300))
	rnd.Read(buf)
	n, err := node.FromBytes(buf)
	require.NoError(t, err)
	return n
}

func TestEvolver_LeafInput(t *testing.T) {
	e := New()
	state := node.Compound{Left: node.Zero, Right: node.One}

	next, err := e.Next(state, node.One)
	require.NoError(t, err)
	require.Equal(t, node.Compound{Left: node.One, Right: state}, next)

	// Prepending keeps everything, one more leaf per step.
	next, err = e.Next(next, node.Zero)
	require.NoError(t, err)
	require.Equal(t, 4, node.Size(next))
	require.Equal(t, []byte{0, 0xff, 0, 0xff}, node.Encode(next))
}

func TestXOR_Self(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	for i := 0; i < 20; i++ {
		s := randomTree(t, rnd)
		x := XOR(s, s)
		require.Equal(t, node.BitLen(s), x.Len())
		require.Equal(t, 0, x.Ones())
	}
}

func TestXOR_ZeroPadding(t *testing.T) {
	short := node.One
	long := node.Compound{Left: node.One, Right: node.Compound{Left: node.Zero, Right: node.One}}

	x := XOR(short, long)
	require.Equal(t, 24, x.Len())
	require.Equal(t, []byte{0x00, 0x00, 0xff}, x.Bytes())
	require.True(t, x.Equal(XOR(long, short)))
}

func TestEvolver_TreeInput(t *testing.T) {
	e := New()
	state := node.One
	input := node.Compound{Left: node.One, Right: node.Zero}

	next, err := e.Next(state, input)
	require.NoError(t, err)
	// 0xff^0xff, 0x00: sixteen zero bits, one leaf.
	require.Equal(t, node.Zero, next)

	// Folding a state into itself collapses it.
	big, err := node.FromBytes(bytes.Repeat([]byte{0xa5}, 200))
	require.NoError(t, err)
	next, err = e.Next(big, big)
	require.NoError(t, err)
	require.Equal(t, make([]byte, node.Size(next)), node.Encode(next))
}

func TestEvolver_Symmetric(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	for _, e := range []*Evolver{New(), New(WithEntropy(entropy.New()))} {
		for i := 0; i < 10; i++ {
			a, b := randomTree(t, rnd), randomTree(t, rnd)
			if _, ok := b.(node.Leaf); ok {
				continue
			}
			if _, ok := a.(node.Leaf); ok {
				continue
			}
			ab, err := e.Next(a, b)
			require.NoError(t, err)
			ba, err := e.Next(b, a)
			require.NoError(t, err)
			require.True(t, node.Equal(ab, ba))
		}
	}
}

func TestBiasedXOR_MatchesFold(t *testing.T) {
	rnd := rand.New(rand.NewSource(4))
	s := entropy.New()
	for i := 0; i < 10; i++ {
		a, b := randomTree(t, rnd), randomTree(t, rnd)
		x := BiasedXOR(a, b, s)

		length := node.Size(a)
		if node.Size(b) > length {
			length = node.Size(b)
		}
		require.Equal(t, length, x.Len())
		for pos := 0; pos < length; pos++ {
			want := Fold(a, pos, s) != Fold(b, pos, s) != s.Bit(pos)
			require.Equal(t, want, x.At(pos), "position %d", pos)
		}
	}
}

func TestFold(t *testing.T) {
	s := entropy.New()
	require.True(t, Fold(node.One, 7, s))
	require.False(t, Fold(node.Zero, 7, s))

	c := node.Compound{Left: node.One, Right: node.Zero}
	require.Equal(t, !s.Bit(3), Fold(c, 3, s))
	cc := node.Compound{Left: c, Right: c}
	require.Equal(t, s.Bit(5), Fold(cc, 5, s))
}

// Independent evolvers with their own streams agree.
func TestEvolver_BiasedDeterministic(t *testing.T) {
	rnd := rand.New(rand.NewSource(5))
	a := New(Biased(true))
	b := New(WithEntropy(entropy.New()))
	require.True(t, a.IsBiased())
	require.NotNil(t, a.Stream())

	b.Stream().Bit(500)
	for i := 0; i < 10; i++ {
		s, in := randomTree(t, rnd), randomTree(t, rnd)
		na, err := a.Next(s, in)
		require.NoError(t, err)
		nb, err := b.Next(s, in)
		require.NoError(t, err)
		require.True(t, node.Equal(na, nb))
	}

	require.False(t, New().IsBiased())
	require.False(t, New(WithEntropy(entropy.New()), Biased(false)).IsBiased())
}
