package bitmap

import (
	"fmt"
	"strings"
)

// A Dense is a bitmap where every bit is explicitly represented. Bits past the
// logical length are always zero.
type Dense struct {
	bits []byte
	len  int
}

// A RangeError reports an out-of-bounds slice of a bitmap.
type RangeError struct {
	Start, End, Len int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("slicing bitmap of len %d with [%d, %d)", e.Len, e.Start, e.End)
}

// NewDense returns a new dense bitmap holding a copy of data, whose length is
// bitLen. If bitLen is longer than data, then trailing zeros are added. If
// bitLen is negative, then it is inferred from data.
func NewDense(data []byte, bitLen int) Dense {
	if bitLen < 0 {
		bitLen = len(data) * byteSize
	}
	r := Dense{
		bits: make([]byte, BytesFor(bitLen)),
		len:  bitLen,
	}
	copy(r.bits, data)
	r.clearTail()
	return r
}

// Get returns the i-th bit in this bitmap.
func (d Dense) Get(i int) bool {
	if i < 0 || i >= d.len {
		return false
	}
	return d.bits[i/byteSize]&(1<<(i%byteSize)) != 0
}

// Size returns the number of bits in this bitmap.
func (d Dense) Size() int {
	return d.len
}

// Data returns a copy of the bytes underlying this bitmap.
func (d Dense) Data() []byte {
	r := make([]byte, len(d.bits))
	copy(r, d.bits)
	return r
}

// String renders d as a string of '0's and '1's, the inverse of FromString.
func (d Dense) String() string {
	var sb strings.Builder
	sb.Grow(d.len)
	for i := 0; i < d.len; i++ {
		if d.Get(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// Set sets the i-th bit to v.
func (d *Dense) Set(i int, v bool) {
	j, pos := i/byteSize, i%byteSize
	if v {
		d.bits[j] |= 1 << pos
	} else {
		d.bits[j] &^= 1 << pos
	}
}

// AppendBit adds a single bit to the end of d.
func (d *Dense) AppendBit(bit bool) {
	i, pos := d.len/byteSize, d.len%byteSize
	d.len++
	if pos == 0 {
		d.bits = append(d.bits, 0)
	}
	if bit {
		d.bits[i] |= 1 << pos
	}
}

func (d *Dense) clearTail() {
	if off := d.len % byteSize; off != 0 {
		d.bits[len(d.bits)-1] &= 0xFF >> (byteSize - off)
	}
}
