package node

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBits_FromBytes(t *testing.T) {
	b := BitsFromBytes([]byte{0xa5, 0x0f})
	require.Equal(t, 16, b.Len())
	require.Equal(t, "1010010100001111", b.String())
	require.Equal(t, 8, b.Ones())
	require.Equal(t, []byte{0xa5, 0x0f}, b.Bytes())
}

func TestBits_Slice(t *testing.T) {
	b := BitsFromBytes([]byte{0xa5, 0x0f})

	require.Equal(t, "0101", b.Slice(4, 8).String())
	require.Equal(t, "0010100001", b.Slice(3, 13).String())
	require.Equal(t, []byte{0x00}, b.Slice(8, 12).Bytes())
	require.Equal(t, 0, b.Slice(5, 5).Len())
	require.Panics(t, func() { b.Slice(3, 17) })
	require.Panics(t, func() { b.At(16) })
}

func TestBits_AppendPush(t *testing.T) {
	a := NewBits(true, false, true)
	b := BitsFromBytes([]byte{0xff})

	ab := a.Append(b)
	require.Equal(t, "10111111111", ab.String())
	require.Equal(t, "101", a.String(), "append must not modify the receiver")

	ba := b.Append(a)
	require.Equal(t, "11111111101", ba.String())
	require.Equal(t, []byte{0xff, 0xa0}, ba.Bytes())

	require.Equal(t, "1010", a.Push(false).String())
	require.Equal(t, 3, a.Len())
	require.True(t, a.Push(true).Equal(NewBits(true, false, true, true)))
	require.False(t, a.Equal(b))
}
