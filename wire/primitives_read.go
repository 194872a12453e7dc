package wire

import "math"

// rawInt is the decoded-but-not-yet-widened form of any integer token: the
// magnitude bit pattern plus whether the source token's tag family was
// signed-negative. Widening to int64 or uint64, with the fit check, happens
// in TryReadInt64/TryReadUint64 through Int64/Uint64, so this package never
// needs one function per (source tag × target width) combination.
type rawInt struct {
	bits uint64
	neg  bool
}

// Int64 widens the raw token into an int64, reporting false if the decoded
// magnitude does not fit (i.e. the source was an unsigned value greater
// than math.MaxInt64).
func (r rawInt) Int64() (int64, bool) {
	if r.neg {
		return int64(r.bits), true
	}
	if r.bits > math.MaxInt64 {
		return 0, false
	}
	return int64(r.bits), true
}

// Uint64 widens the raw token into a uint64, reporting false if the source
// was negative.
func (r rawInt) Uint64() (uint64, bool) {
	if r.neg {
		return 0, false
	}
	return r.bits, true
}

// TryReadNil reads the nil token.
func TryReadNil(span []byte) (size int, result DecodeResult) {
	if len(span) < 1 {
		return 0, InsufficientBuffer
	}
	if span[0] != codeNil {
		return 0, TokenMismatch
	}
	return 1, Success
}

// TryReadBool reads the true/false token.
func TryReadBool(span []byte) (v bool, size int, result DecodeResult) {
	if len(span) < 1 {
		return false, 0, InsufficientBuffer
	}
	switch span[0] {
	case codeTrue:
		return true, 1, Success
	case codeFalse:
		return false, 1, Success
	default:
		return false, 0, TokenMismatch
	}
}

// tryReadIntToken decodes any integer-family token (fixint, uint8..64,
// int8..64) into a rawInt plus its on-wire size. Per the shortest-form
// invariant, decoders must accept non-shortest encodings, so every width is
// always accepted regardless of whether a shorter encoding existed.
func tryReadIntToken(span []byte) (rawInt, int, DecodeResult) {
	if len(span) < 1 {
		return rawInt{}, 0, InsufficientBuffer
	}
	b := span[0]

	switch {
	case isPositiveFixint(b):
		return rawInt{bits: uint64(b)}, 1, Success
	case isNegativeFixint(b):
		return rawInt{bits: uint64(int64(int8(b))), neg: true}, 1, Success
	}

	switch b {
	case codeUint8:
		if len(span) < 2 {
			return rawInt{}, 0, InsufficientBuffer
		}
		return rawInt{bits: uint64(span[1])}, 2, Success
	case codeUint16:
		if len(span) < 3 {
			return rawInt{}, 0, InsufficientBuffer
		}
		return rawInt{bits: uint64(wireEngine.Uint16(span[1:3]))}, 3, Success
	case codeUint32:
		if len(span) < 5 {
			return rawInt{}, 0, InsufficientBuffer
		}
		return rawInt{bits: uint64(wireEngine.Uint32(span[1:5]))}, 5, Success
	case codeUint64:
		if len(span) < 9 {
			return rawInt{}, 0, InsufficientBuffer
		}
		return rawInt{bits: wireEngine.Uint64(span[1:9])}, 9, Success
	case codeInt8:
		if len(span) < 2 {
			return rawInt{}, 0, InsufficientBuffer
		}
		return rawInt{bits: uint64(int64(int8(span[1]))), neg: int8(span[1]) < 0}, 2, Success
	case codeInt16:
		if len(span) < 3 {
			return rawInt{}, 0, InsufficientBuffer
		}
		v := int16(wireEngine.Uint16(span[1:3]))
		return rawInt{bits: uint64(int64(v)), neg: v < 0}, 3, Success
	case codeInt32:
		if len(span) < 5 {
			return rawInt{}, 0, InsufficientBuffer
		}
		v := int32(wireEngine.Uint32(span[1:5]))
		return rawInt{bits: uint64(int64(v)), neg: v < 0}, 5, Success
	case codeInt64:
		if len(span) < 9 {
			return rawInt{}, 0, InsufficientBuffer
		}
		v := int64(wireEngine.Uint64(span[1:9]))
		return rawInt{bits: uint64(v), neg: v < 0}, 9, Success
	default:
		return rawInt{}, 0, TokenMismatch
	}
}

// TryReadInt64 reads any integer token and widens it to int64, per the
// decoder's "accept every integer tag, widen, overflow-check" contract.
// ok is false (with size set to the token's length, result==Success) when the decoded magnitude
// doesn't fit an int64 — callers surface this as errs.KindOverflow, not as
// a wire-level result, since the token itself decoded successfully.
func TryReadInt64(span []byte) (v int64, size int, result DecodeResult, ok bool) {
	raw, n, res := tryReadIntToken(span)
	if res != Success {
		return 0, n, res, false
	}
	out, fits := raw.Int64()
	return out, n, Success, fits
}

// TryReadUint64 reads any integer token and widens it to uint64.
func TryReadUint64(span []byte) (v uint64, size int, result DecodeResult, ok bool) {
	raw, n, res := tryReadIntToken(span)
	if res != Success {
		return 0, n, res, false
	}
	out, fits := raw.Uint64()
	return out, n, Success, fits
}

// TryReadFloat32 reads a float32 token. Per msgpack, a float32 value is
// never promoted from float64, so only the exact codeFloat32 tag matches.
func TryReadFloat32(span []byte) (v float32, size int, result DecodeResult) {
	if len(span) < 1 {
		return 0, 0, InsufficientBuffer
	}
	if span[0] != codeFloat32 {
		return 0, 0, TokenMismatch
	}
	if len(span) < 5 {
		return 0, 0, InsufficientBuffer
	}
	bits := wireEngine.Uint32(span[1:5])
	return math.Float32frombits(bits), 5, Success
}

// TryReadFloat64 reads a float64 token.
func TryReadFloat64(span []byte) (v float64, size int, result DecodeResult) {
	if len(span) < 1 {
		return 0, 0, InsufficientBuffer
	}
	if span[0] != codeFloat64 {
		return 0, 0, TokenMismatch
	}
	if len(span) < 9 {
		return 0, 0, InsufficientBuffer
	}
	bits := wireEngine.Uint64(span[1:9])
	return math.Float64frombits(bits), 9, Success
}

// TryReadStringHeader reads a fixstr/str8/16/32 header, returning the
// payload's byte length and the header's own size. The caller reads the
// payload separately via TryReadRaw.
func TryReadStringHeader(span []byte) (byteLen int, headerSize int, result DecodeResult) {
	if len(span) < 1 {
		return 0, 0, InsufficientBuffer
	}
	b := span[0]
	if isFixstr(b) {
		return int(b &^ fixstrBase), 1, Success
	}
	switch b {
	case codeStr8:
		if len(span) < 2 {
			return 0, 0, InsufficientBuffer
		}
		return int(span[1]), 2, Success
	case codeStr16:
		if len(span) < 3 {
			return 0, 0, InsufficientBuffer
		}
		return int(wireEngine.Uint16(span[1:3])), 3, Success
	case codeStr32:
		if len(span) < 5 {
			return 0, 0, InsufficientBuffer
		}
		return int(wireEngine.Uint32(span[1:5])), 5, Success
	default:
		return 0, 0, TokenMismatch
	}
}

// TryReadBinHeader reads a bin8/16/32 header.
func TryReadBinHeader(span []byte) (byteLen int, headerSize int, result DecodeResult) {
	if len(span) < 1 {
		return 0, 0, InsufficientBuffer
	}
	switch span[0] {
	case codeBin8:
		if len(span) < 2 {
			return 0, 0, InsufficientBuffer
		}
		return int(span[1]), 2, Success
	case codeBin16:
		if len(span) < 3 {
			return 0, 0, InsufficientBuffer
		}
		return int(wireEngine.Uint16(span[1:3])), 3, Success
	case codeBin32:
		if len(span) < 5 {
			return 0, 0, InsufficientBuffer
		}
		return int(wireEngine.Uint32(span[1:5])), 5, Success
	default:
		return 0, 0, TokenMismatch
	}
}

// TryReadArrayHeader reads a fixarray/array16/array32 header, returning the
// element count.
func TryReadArrayHeader(span []byte) (count int, headerSize int, result DecodeResult) {
	if len(span) < 1 {
		return 0, 0, InsufficientBuffer
	}
	b := span[0]
	if isFixarray(b) {
		return int(b &^ fixarrayBase), 1, Success
	}
	switch b {
	case codeArray16:
		if len(span) < 3 {
			return 0, 0, InsufficientBuffer
		}
		return int(wireEngine.Uint16(span[1:3])), 3, Success
	case codeArray32:
		if len(span) < 5 {
			return 0, 0, InsufficientBuffer
		}
		return int(wireEngine.Uint32(span[1:5])), 5, Success
	default:
		return 0, 0, TokenMismatch
	}
}

// TryReadMapHeader reads a fixmap/map16/map32 header, returning the pair
// count.
func TryReadMapHeader(span []byte) (count int, headerSize int, result DecodeResult) {
	if len(span) < 1 {
		return 0, 0, InsufficientBuffer
	}
	b := span[0]
	if isFixmap(b) {
		return int(b &^ fixmapBase), 1, Success
	}
	switch b {
	case codeMap16:
		if len(span) < 3 {
			return 0, 0, InsufficientBuffer
		}
		return int(wireEngine.Uint16(span[1:3])), 3, Success
	case codeMap32:
		if len(span) < 5 {
			return 0, 0, InsufficientBuffer
		}
		return int(wireEngine.Uint32(span[1:5])), 5, Success
	default:
		return 0, 0, TokenMismatch
	}
}

// TryReadExtensionHeader reads a fixext1/2/4/8/16 or ext8/16/32 header,
// returning the extension type code and payload length.
func TryReadExtensionHeader(span []byte) (typeCode int8, length int, headerSize int, result DecodeResult) {
	if len(span) < 1 {
		return 0, 0, 0, InsufficientBuffer
	}
	switch span[0] {
	case codeFixExt1, codeFixExt2, codeFixExt4, codeFixExt8, codeFixExt16:
		if len(span) < 2 {
			return 0, 0, 0, InsufficientBuffer
		}
		return int8(span[1]), fixExtLength(span[0]), 2, Success
	case codeExt8:
		if len(span) < 3 {
			return 0, 0, 0, InsufficientBuffer
		}
		return int8(span[2]), int(span[1]), 3, Success
	case codeExt16:
		if len(span) < 4 {
			return 0, 0, 0, InsufficientBuffer
		}
		return int8(span[3]), int(wireEngine.Uint16(span[1:3])), 4, Success
	case codeExt32:
		if len(span) < 6 {
			return 0, 0, 0, InsufficientBuffer
		}
		return int8(span[5]), int(wireEngine.Uint32(span[1:5])), 6, Success
	default:
		return 0, 0, 0, TokenMismatch
	}
}

func fixExtLength(code byte) int {
	switch code {
	case codeFixExt1:
		return 1
	case codeFixExt2:
		return 2
	case codeFixExt4:
		return 4
	case codeFixExt8:
		return 8
	default: // codeFixExt16
		return 16
	}
}

// TryReadRaw copies n bytes verbatim from span, used to read string/binary/
// extension payloads after their header, and to capture raw bytes for
// unused-data replay.
func TryReadRaw(span []byte, n int) (data []byte, result DecodeResult) {
	if len(span) < n {
		return nil, InsufficientBuffer
	}
	return span[:n], Success
}

// TryReadTimestamp reads a timestamp extension payload (already past the
// ext header, which the caller validated carries ExtTimestamp) of length
// 4, 8, or 12 bytes.
func TryReadTimestamp(payload []byte) (sec int64, nsec uint32, result DecodeResult) {
	switch len(payload) {
	case 4:
		return int64(wireEngine.Uint32(payload)), 0, Success
	case 8:
		packed := wireEngine.Uint64(payload)
		return int64(packed & ((1 << 34) - 1)), uint32(packed >> 34), Success
	case 12:
		nsec = wireEngine.Uint32(payload[0:4])
		sec = int64(wireEngine.Uint64(payload[4:12]))
		return sec, nsec, Success
	default:
		return 0, 0, TokenMismatch
	}
}

// PeekCode returns the leading tag byte of the next token without
// consuming it.
func PeekCode(span []byte) (code byte, result DecodeResult) {
	if len(span) < 1 {
		return 0, InsufficientBuffer
	}
	return span[0], Success
}

// FixedTokenSize returns the total on-wire size of a token whose size is
// determined entirely by its leading byte (everything except str8/16/32,
// bin and ext, which carry a length field, and array/map, whose "size" for
// skip purposes is just the header — element skipping is handled by the
// caller). A fixstr's size is its 1-byte header plus the length held in
// that byte. Returns ok=false for the length-field kinds, signaling the
// caller must read a header first.
func FixedTokenSize(code byte) (size int, ok bool) {
	switch {
	case isPositiveFixint(code), isNegativeFixint(code):
		return 1, true
	case isFixmap(code), isFixarray(code):
		return 1, true
	case isFixstr(code):
		return 1 + int(code&^fixstrBase), true
	}
	switch code {
	case codeNil, codeFalse, codeTrue:
		return 1, true
	case codeUint8, codeInt8:
		return 2, true
	case codeUint16, codeInt16:
		return 3, true
	case codeUint32, codeInt32, codeFloat32:
		return 5, true
	case codeUint64, codeInt64, codeFloat64:
		return 9, true
	default:
		return 0, false
	}
}
