package node

import (
	"strings"
)

// Bits is an immutable, most-significant-bit-first bit sequence. Methods that
// produce a sequence always return a fresh one.
type Bits struct {
	buf []byte
	n   int
}

// BitsFromBytes returns the 8*len(b) bits of b, MSB first.
func BitsFromBytes(b []byte) Bits {
	return Bits{buf: append([]byte{}, b...), n: 8 * len(b)}
}

// NewBits returns a sequence holding the given bits in order.
func NewBits(bits ...bool) Bits {
	var out Bits
	for _, b := range bits {
		out.push(b)
	}
	return out
}

// Len returns the number of bits.
func (b Bits) Len() int {
	return b.n
}

// At returns bit i. It panics if i is out of range, like a slice index.
func (b Bits) At(i int) bool {
	if i < 0 || i >= b.n {
		panic("node: bit index out of range")
	}
	return b.buf[i/8]&(0x80>>uint(i%8)) != 0
}

// Slice returns bits [i, j).
func (b Bits) Slice(i, j int) Bits {
	if i < 0 || j > b.n || i > j {
		panic("node: bit slice out of range")
	}
	if i%8 == 0 {
		out := Bits{buf: append([]byte{}, b.buf[i/8:(j+7)/8]...), n: j - i}
		out.clearTail()
		return out
	}
	var out Bits
	for k := i; k < j; k++ {
		out.push(b.At(k))
	}
	return out
}

// Append returns b followed by o.
func (b Bits) Append(o Bits) Bits {
	out := Bits{buf: append([]byte{}, b.buf...), n: b.n}
	if out.n%8 == 0 {
		out.buf = append(out.buf[:out.n/8], o.buf...)
		out.n += o.n
		return out
	}
	for k := 0; k < o.n; k++ {
		out.push(o.At(k))
	}
	return out
}

// Push returns b followed by one more bit.
func (b Bits) Push(bit bool) Bits {
	out := Bits{buf: append([]byte{}, b.buf...), n: b.n}
	out.push(bit)
	return out
}

// Bytes returns the packed bits; a partial last byte is zero padded.
func (b Bits) Bytes() []byte {
	return append([]byte{}, b.buf[:(b.n+7)/8]...)
}

// Ones counts the set bits.
func (b Bits) Ones() int {
	ones := 0
	for i := 0; i < b.n; i++ {
		if b.At(i) {
			ones++
		}
	}
	return ones
}

// Equal reports whether both sequences hold the same bits.
func (b Bits) Equal(o Bits) bool {
	if b.n != o.n {
		return false
	}
	for i := 0; i < b.n; i++ {
		if b.At(i) != o.At(i) {
			return false
		}
	}
	return true
}

func (b Bits) String() string {
	var sb strings.Builder
	for i := 0; i < b.n; i++ {
		if b.At(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// push appends in place; only used on sequences still being built.
func (b *Bits) push(bit bool) {
	if b.n%8 == 0 {
		b.buf = append(b.buf[:b.n/8], 0)
	}
	if bit {
		b.buf[b.n/8] |= 0x80 >> uint(b.n%8)
	}
	b.n++
}

func (b *Bits) clearTail() {
	if r := b.n % 8; r != 0 {
		b.buf[len(b.buf)-1] &= ^byte(0xff >> uint(r))
	}
}
