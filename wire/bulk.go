package wire

// WriteUintSlice bulk-encodes a slice of unsigned integers into dst,
// returning the number of bytes written or false if dst is too small.
//
// This is the scalar reference implementation of the bulk codec. A
// vectorized variant may compute per-lane "which encoding is needed" masks
// and gather-write with byte swapping, but any such path must produce
// output byte-identical to applying the scalar shortest-form rule
// element-wise; msgpax ships the scalar path.
func WriteUintSlice(dst []byte, values []uint64) (int, bool) {
	off := 0
	for _, v := range values {
		n, ok := TryWriteUint(dst[off:], v)
		if !ok {
			return 0, false
		}
		off += n
	}
	return off, true
}

// WriteIntSlice bulk-encodes a slice of signed integers into dst.
func WriteIntSlice(dst []byte, values []int64) (int, bool) {
	off := 0
	for _, v := range values {
		n, ok := TryWriteInt(dst[off:], v)
		if !ok {
			return 0, false
		}
		off += n
	}
	return off, true
}

// WriteFloat64Slice bulk-encodes a slice of float64 values, each always 9
// bytes (tag + 8), into dst.
func WriteFloat64Slice(dst []byte, values []float64) (int, bool) {
	off := 0
	for _, v := range values {
		n, ok := TryWriteFloat64(dst[off:], v)
		if !ok {
			return 0, false
		}
		off += n
	}
	return off, true
}

// MaxUintSliceSize returns a conservative upper bound on the encoded size of
// n unsigned integers (9 bytes each, the widest shortest-form encoding),
// useful for pre-sizing a destination buffer before calling WriteUintSlice.
func MaxUintSliceSize(n int) int { return n * 9 }

// MaxIntSliceSize returns a conservative upper bound on the encoded size of
// n signed integers.
func MaxIntSliceSize(n int) int { return n * 9 }

// MaxFloat64SliceSize returns the exact encoded size of n float64 values
// (always 9 bytes each).
func MaxFloat64SliceSize(n int) int { return n * 9 }
