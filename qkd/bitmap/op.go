package bitmap

// XOr returns the bitwise XOR of two bitmaps. The shorter of the two is padded
// with implicit trailing zeros.
func XOr(a, b Dense) Dense {
	short, long := a, b
	if b.len < a.len {
		short, long = b, a
	}
	r := Dense{
		bits: make([]byte, 0, BytesFor(long.len)),
		len:  long.len,
	}
	for i := range short.bits {
		r.bits = append(r.bits, a.bits[i]^b.bits[i])
	}
	r.bits = append(r.bits, long.bits[len(short.bits):]...)
	return r
}

// And returns the bitwise AND of two bitmaps, truncated to the shorter length.
func And(a, b Dense) Dense {
	short := a
	if b.len < a.len {
		short = b
	}
	r := Dense{
		bits: make([]byte, 0, BytesFor(short.len)),
		len:  short.len,
	}
	for i := range short.bits {
		r.bits = append(r.bits, a.bits[i]&b.bits[i])
	}
	return r
}

// Not returns the bitwise negation of a bitmap.
func Not(d Dense) Dense {
	r := Dense{
		bits: make([]byte, 0, BytesFor(d.len)),
		len:  d.len,
	}
	for i := range d.bits {
		r.bits = append(r.bits, ^d.bits[i])
	}
	r.clearTail()
	return r
}

// Slice copies bits [start, end) of d into a new bitmap.
func Slice(d Dense, start, end int) (Dense, error) {
	if start < 0 || end < start || end > d.len {
		return Dense{}, &RangeError{Start: start, End: end, Len: d.len}
	}
	r := Dense{bits: make([]byte, 0, BytesFor(end-start))}
	for i := start; i < end; i++ {
		r.AppendBit(d.Get(i))
	}
	return r, nil
}
