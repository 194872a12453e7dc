// Package wire implements the bit-level msgpack codec: exact encode/decode
// of every wire token against a contiguous byte span, with no heap
// allocation on the hot path. It is the lowest layer of msgpax; everything
// above it (the buffered/streaming readers, the synchronous facade, the
// converters) is built on these functions.
package wire

import (
	"math"

	"github.com/arloliu/msgpax/endian"
)

// wireEngine is always big-endian: every multi-byte scalar on the msgpack
// wire is big-endian per the format definition, regardless of host or
// caller-configured endianness (which only applies to application-level
// data the caller encodes independently of this package, e.g. the
// little-endian reference-backreference payload in convert/refs.go).
var wireEngine = endian.GetBigEndianEngine()

// TryWriteNil writes the nil token. Returns bytes written, or false if span
// is too small.
func TryWriteNil(span []byte) (int, bool) {
	if len(span) < 1 {
		return 0, false
	}
	span[0] = codeNil
	return 1, true
}

// TryWriteBool writes the true/false token.
func TryWriteBool(span []byte, v bool) (int, bool) {
	if len(span) < 1 {
		return 0, false
	}
	if v {
		span[0] = codeTrue
	} else {
		span[0] = codeFalse
	}
	return 1, true
}

// TryWriteInt writes a signed integer using the shortest form that
// round-trips its value and sign, per the shortest-form policy:
// fixint (-32..127) in 1 byte, then widening through uint8/int8/uint16/
// int16/.../uint64/int64 as needed.
func TryWriteInt(span []byte, v int64) (int, bool) {
	switch {
	case v >= -32 && v <= 127:
		if len(span) < 1 {
			return 0, false
		}
		span[0] = byte(v)
		return 1, true
	case v >= 0 && v <= math.MaxUint8:
		return writeTagged1(span, codeUint8, uint8(v))
	case v >= math.MinInt8 && v < 0:
		return writeTagged1(span, codeInt8, byte(int8(v)))
	case v >= 0 && v <= math.MaxUint16:
		return writeTagged2(span, codeUint16, uint16(v))
	case v >= math.MinInt16 && v < 0:
		return writeTagged2(span, codeInt16, uint16(int16(v)))
	case v >= 0 && v <= math.MaxUint32:
		return writeTagged4(span, codeUint32, uint32(v))
	case v >= math.MinInt32 && v < 0:
		return writeTagged4(span, codeInt32, uint32(int32(v)))
	case v >= 0:
		return writeTagged8(span, codeUint64, uint64(v))
	default:
		return writeTagged8(span, codeInt64, uint64(v))
	}
}

// TryWriteUint writes an unsigned integer using the shortest form. Unlike
// TryWriteInt, the int8/int16/int32/int64 branches are never taken for
// unsigned inputs.
func TryWriteUint(span []byte, v uint64) (int, bool) {
	switch {
	case v <= 127:
		if len(span) < 1 {
			return 0, false
		}
		span[0] = byte(v)
		return 1, true
	case v <= math.MaxUint8:
		return writeTagged1(span, codeUint8, uint8(v))
	case v <= math.MaxUint16:
		return writeTagged2(span, codeUint16, uint16(v))
	case v <= math.MaxUint32:
		return writeTagged4(span, codeUint32, uint32(v))
	default:
		return writeTagged8(span, codeUint64, v)
	}
}

func writeTagged1(span []byte, code byte, v uint8) (int, bool) {
	if len(span) < 2 {
		return 0, false
	}
	span[0] = code
	span[1] = v
	return 2, true
}

func writeTagged2(span []byte, code byte, v uint16) (int, bool) {
	if len(span) < 3 {
		return 0, false
	}
	span[0] = code
	wireEngine.PutUint16(span[1:3], v)
	return 3, true
}

func writeTagged4(span []byte, code byte, v uint32) (int, bool) {
	if len(span) < 5 {
		return 0, false
	}
	span[0] = code
	wireEngine.PutUint32(span[1:5], v)
	return 5, true
}

func writeTagged8(span []byte, code byte, v uint64) (int, bool) {
	if len(span) < 9 {
		return 0, false
	}
	span[0] = code
	wireEngine.PutUint64(span[1:9], v)
	return 9, true
}

// TryWriteFloat32 writes a 4-byte big-endian IEEE-754 float.
func TryWriteFloat32(span []byte, v float32) (int, bool) {
	return writeTagged4(span, codeFloat32, math.Float32bits(v))
}

// TryWriteFloat64 writes an 8-byte big-endian IEEE-754 float.
func TryWriteFloat64(span []byte, v float64) (int, bool) {
	return writeTagged8(span, codeFloat64, math.Float64bits(v))
}

// TryWriteStrHeader writes a str8/16/32/fixstr header for a payload of the
// given byte length; the caller writes the UTF-8 payload separately via
// TryWriteRaw.
func TryWriteStrHeader(span []byte, byteLen int) (int, bool) {
	switch {
	case byteLen < 0:
		return 0, false
	case byteLen <= 31:
		if len(span) < 1 {
			return 0, false
		}
		span[0] = fixstrBase | byte(byteLen)
		return 1, true
	case byteLen <= math.MaxUint8:
		return writeTagged1(span, codeStr8, uint8(byteLen))
	case byteLen <= math.MaxUint16:
		return writeTagged2(span, codeStr16, uint16(byteLen))
	default:
		return writeTagged4(span, codeStr32, uint32(byteLen))
	}
}

// TryWriteBinHeader writes a bin8/16/32 header for a payload of the given
// byte length.
func TryWriteBinHeader(span []byte, byteLen int) (int, bool) {
	switch {
	case byteLen < 0:
		return 0, false
	case byteLen <= math.MaxUint8:
		return writeTagged1(span, codeBin8, uint8(byteLen))
	case byteLen <= math.MaxUint16:
		return writeTagged2(span, codeBin16, uint16(byteLen))
	default:
		return writeTagged4(span, codeBin32, uint32(byteLen))
	}
}

// TryWriteArrayHeader writes a fixarray/array16/array32 header for count
// elements. The caller must follow with exactly count element writes.
func TryWriteArrayHeader(span []byte, count int) (int, bool) {
	switch {
	case count < 0:
		return 0, false
	case count <= 15:
		if len(span) < 1 {
			return 0, false
		}
		span[0] = fixarrayBase | byte(count)
		return 1, true
	case count <= math.MaxUint16:
		return writeTagged2(span, codeArray16, uint16(count))
	default:
		return writeTagged4(span, codeArray32, uint32(count))
	}
}

// TryWriteMapHeader writes a fixmap/map16/map32 header for count key/value
// pairs. The caller must follow with exactly count key writes interleaved
// with count value writes.
func TryWriteMapHeader(span []byte, count int) (int, bool) {
	switch {
	case count < 0:
		return 0, false
	case count <= 15:
		if len(span) < 1 {
			return 0, false
		}
		span[0] = fixmapBase | byte(count)
		return 1, true
	case count <= math.MaxUint16:
		return writeTagged2(span, codeMap16, uint16(count))
	default:
		return writeTagged4(span, codeMap32, uint32(count))
	}
}

// TryWriteExtHeader writes a fixext1/2/4/8/16 or ext8/16/32 header for an
// extension payload of the given length and type code. The caller writes
// the payload separately via TryWriteRaw.
func TryWriteExtHeader(span []byte, typeCode int8, length int) (int, bool) {
	if length < 0 {
		return 0, false
	}
	switch length {
	case 1, 2, 4, 8, 16:
		code := fixExtCode(length)
		if len(span) < 2 {
			return 0, false
		}
		span[0] = code
		span[1] = byte(typeCode)
		return 2, true
	}

	switch {
	case length <= math.MaxUint8:
		if len(span) < 3 {
			return 0, false
		}
		span[0] = codeExt8
		span[1] = uint8(length)
		span[2] = byte(typeCode)
		return 3, true
	case length <= math.MaxUint16:
		if len(span) < 4 {
			return 0, false
		}
		span[0] = codeExt16
		wireEngine.PutUint16(span[1:3], uint16(length))
		span[3] = byte(typeCode)
		return 4, true
	default:
		if len(span) < 6 {
			return 0, false
		}
		span[0] = codeExt32
		wireEngine.PutUint32(span[1:5], uint32(length))
		span[5] = byte(typeCode)
		return 6, true
	}
}

func fixExtCode(length int) byte {
	switch length {
	case 1:
		return codeFixExt1
	case 2:
		return codeFixExt2
	case 4:
		return codeFixExt4
	case 8:
		return codeFixExt8
	default: // 16
		return codeFixExt16
	}
}

// TryWriteRaw copies data verbatim into span (used for string/binary/
// extension payloads and for unused-data replay, which writes back raw
// captured bytes exactly as they were read).
func TryWriteRaw(span []byte, data []byte) (int, bool) {
	if len(span) < len(data) {
		return 0, false
	}
	copy(span, data)
	return len(data), true
}

// TryWriteTimestamp writes the timestamp extension (type code -1) using the
// shortest of the three payload shapes that exactly represents (sec, nsec):
// 4 bytes (seconds only, when nsec==0 and sec fits uint32), 8 bytes
// (30-bit nsec + 34-bit sec, when sec fits in 34 bits unsigned), or 12 bytes
// (32-bit nsec + 64-bit signed sec) otherwise.
func TryWriteTimestamp(span []byte, sec int64, nsec uint32) (int, bool) {
	const thirtyFourBitMax = 1<<34 - 1
	switch {
	case nsec == 0 && sec >= 0 && sec <= math.MaxUint32:
		n, ok := TryWriteExtHeader(span, ExtTimestamp, 4)
		if !ok {
			return 0, false
		}
		n2, ok := writeUint32Raw(span[n:], uint32(sec))
		if !ok {
			return 0, false
		}
		return n + n2, true
	case sec >= 0 && sec <= thirtyFourBitMax:
		n, ok := TryWriteExtHeader(span, ExtTimestamp, 8)
		if !ok {
			return 0, false
		}
		packed := (uint64(nsec) << 34) | uint64(sec)
		n2, ok := writeUint64Raw(span[n:], packed)
		if !ok {
			return 0, false
		}
		return n + n2, true
	default:
		n, ok := TryWriteExtHeader(span, ExtTimestamp, 12)
		if !ok {
			return 0, false
		}
		n2, ok := writeUint32Raw(span[n:], nsec)
		if !ok {
			return 0, false
		}
		n3, ok := writeUint64Raw(span[n+n2:], uint64(sec))
		if !ok {
			return 0, false
		}
		return n + n2 + n3, true
	}
}

func writeUint32Raw(span []byte, v uint32) (int, bool) {
	if len(span) < 4 {
		return 0, false
	}
	wireEngine.PutUint32(span[:4], v)
	return 4, true
}

func writeUint64Raw(span []byte, v uint64) (int, bool) {
	if len(span) < 8 {
		return 0, false
	}
	wireEngine.PutUint64(span[:8], v)
	return 8, true
}
