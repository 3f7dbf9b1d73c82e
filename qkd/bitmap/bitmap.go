// Package bitmap provides densely-packed bit arrays used to hold reconciled
// key material.
package bitmap

import (
	"fmt"
	"math/bits"
)

// TODO: this could be more efficient on many architectures if we used larger
// blocks than 8-bit bytes.
const byteSize = 8

// Select selects a subset of bits from data, according to which bits are set in
// mask.
func Select(data, mask Dense) Dense {
	var d Dense
	for i := 0; i < data.Size(); i++ {
		if !mask.Get(i) {
			continue
		}
		d.AppendBit(data.Get(i))
	}
	return d
}

// Remove returns a copy of data without the bits at the given indices. The
// relative order of the remaining bits is preserved. Indices outside of data
// are ignored.
func Remove(data Dense, idxs []int) Dense {
	drop := NewDense(nil, data.Size())
	for _, i := range idxs {
		if i < 0 || i >= data.Size() {
			continue
		}
		drop.Set(i, true)
	}
	return Select(data, Not(drop))
}

// Empty returns an empty, dense bit array.
func Empty() Dense {
	return Dense{}
}

// FromString converts a string of '1's and '0's to a Dense. Spaces are ignored.
func FromString(s string) (Dense, error) {
	d := Dense{}
	for _, c := range s {
		switch c {
		case '1':
			d.AppendBit(true)
		case '0':
			d.AppendBit(false)
		case ' ':
			continue
		default:
			return Dense{}, fmt.Errorf("invalid bitmap string rep: %s", s)
		}
	}
	return d, nil
}

// FromBits converts a slice of 0/1 values to a Dense. Any non-zero value is
// treated as a set bit.
func FromBits(vals []uint8) Dense {
	d := Dense{bits: make([]byte, 0, BytesFor(len(vals)))}
	for _, v := range vals {
		d.AppendBit(v != 0)
	}
	return d
}

// Parity returns the overall parity of d, with true corresponding to 1 and
// false to 0.
func Parity(d Dense) bool {
	return CountOnes(d)%2 == 1
}

// CountOnes returns the total number of bits set in d.
func CountOnes(d Dense) int {
	var sum int
	for _, b := range d.bits {
		sum += bits.OnesCount8(b)
	}
	return sum
}

// Equal returns true iff a and b have the same length and contain the same bits.
func Equal(a, b Dense) bool {
	return a.len == b.len && CountOnes(XOr(a, b)) == 0
}

// BytesFor returns the number of bytes necessary to hold the provided number of
// bits.
func BytesFor(bits int) int {
	return (bits + byteSize - 1) / byteSize
}
