package report

import (
	"fmt"

	"github.com/alan-christopher/qkdsim/qkd/bitmap"
)

// A Toeplitz is a binary matrix whose diagonals are all constant, used as a
// keyed universal hash over framed records. It operates in F_2, i.e. all of
// its scalars are 0 or 1.
type Toeplitz struct {
	// The diagonal constants, starting from the bottom left and ending with
	// the top right.
	diags bitmap.Dense
	m     int
}

// NewToeplitz returns an m-row Toeplitz hash keyed by key. A key of k bytes can
// hash messages of up to (8k - m + 1) bits.
func NewToeplitz(key []byte, m int) Toeplitz {
	return Toeplitz{diags: bitmap.NewDense(key, -1), m: m}
}

// Rows returns the hash length in bits.
func (t Toeplitz) Rows() int {
	return t.m
}

// Capacity returns the longest message, in bits, that t can hash.
func (t Toeplitz) Capacity() int {
	return t.diags.Size() - t.m + 1
}

// KeyBytesFor returns the key size in bytes an m-row hash needs to cover
// messages of up to msgBytes bytes.
func KeyBytesFor(m, msgBytes int) int {
	return bitmap.BytesFor(8*msgBytes + m - 1)
}

// Mul computes the matrix product Av between t, sized to vec, and vec.
func (t Toeplitz) Mul(vec bitmap.Dense) (bitmap.Dense, error) {
	n := vec.Size()
	if t.diags.Size() < t.m+n-1 {
		return bitmap.Dense{}, fmt.Errorf("toeplitz key has %d diagonals, hashing %d bits needs %d", t.diags.Size(), n, t.m+n-1)
	}
	var r bitmap.Dense
	for off := t.m - 1; off >= 0; off-- {
		row, err := bitmap.Slice(t.diags, off, off+n)
		if err != nil {
			return bitmap.Empty(), err
		}
		r.AppendBit(bitmap.Parity(bitmap.And(row, vec)))
	}
	return r, nil
}

// Sum hashes msg, returning the tag as packed bytes.
func (t Toeplitz) Sum(msg []byte) ([]byte, error) {
	h, err := t.Mul(bitmap.NewDense(msg, -1))
	if err != nil {
		return nil, err
	}
	return h.Data(), nil
}
