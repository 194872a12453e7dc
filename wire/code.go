package wire

// Wire format tag bytes, per the msgpack specification. Every token begins
// with one of these (or falls in one of the fixint/fixmap/fixarray/fixstr
// ranges below).
const (
	codeNil         byte = 0xc0
	codeFalse       byte = 0xc2
	codeTrue        byte = 0xc3
	codeBin8        byte = 0xc4
	codeBin16       byte = 0xc5
	codeBin32       byte = 0xc6
	codeExt8        byte = 0xc7
	codeExt16       byte = 0xc8
	codeExt32       byte = 0xc9
	codeFloat32     byte = 0xca
	codeFloat64     byte = 0xcb
	codeUint8       byte = 0xcc
	codeUint16      byte = 0xcd
	codeUint32      byte = 0xce
	codeUint64      byte = 0xcf
	codeInt8        byte = 0xd0
	codeInt16       byte = 0xd1
	codeInt32       byte = 0xd2
	codeInt64       byte = 0xd3
	codeFixExt1     byte = 0xd4
	codeFixExt2     byte = 0xd5
	codeFixExt4     byte = 0xd6
	codeFixExt8     byte = 0xd7
	codeFixExt16    byte = 0xd8
	codeStr8        byte = 0xd9
	codeStr16       byte = 0xda
	codeStr32       byte = 0xdb
	codeArray16     byte = 0xdc
	codeArray32     byte = 0xdd
	codeMap16       byte = 0xde
	codeMap32       byte = 0xdf

	fixintPosMax byte = 0x7f // positive fixint upper bound (0x00-0x7f)
	fixintNegMin byte = 0xe0 // negative fixint lower bound (0xe0-0xff)
	fixmapBase   byte = 0x80 // 0x80-0x8f
	fixmapMax    byte = 0x8f
	fixarrayBase byte = 0x90 // 0x90-0x9f
	fixarrayMax  byte = 0x9f
	fixstrBase   byte = 0xa0 // 0xa0-0xbf
	fixstrMax    byte = 0xbf
)

// ExtTimestamp is the msgpack-reserved extension type code for timestamps
// (-1 as a signed byte, 0xff unsigned).
const ExtTimestamp int8 = -1

// IsExtFamily reports whether b opens an extension token (fixext1..16 or
// ext8/16/32). The extension type code itself lives after the tag byte, so
// callers that dispatch on it (reference backreferences, compressed
// payloads) must still read the header.
func IsExtFamily(b byte) bool {
	return (b >= codeExt8 && b <= codeExt32) || (b >= codeFixExt1 && b <= codeFixExt16)
}

func isPositiveFixint(b byte) bool { return b <= fixintPosMax }
func isNegativeFixint(b byte) bool { return b >= fixintNegMin }
func isFixmap(b byte) bool         { return b >= fixmapBase && b <= fixmapMax }
func isFixarray(b byte) bool       { return b >= fixarrayBase && b <= fixarrayMax }
func isFixstr(b byte) bool         { return b >= fixstrBase && b <= fixstrMax }

// kindOf classifies a leading tag byte for trySkip's dispatch and for
// human-readable TokenMismatch diagnostics.
type tokenKind uint8

const (
	kindUnknown tokenKind = iota
	kindNil
	kindBool
	kindInt
	kindFloat
	kindStr
	kindBin
	kindArray
	kindMap
	kindExt
)

func classify(b byte) tokenKind {
	switch {
	case isPositiveFixint(b), isNegativeFixint(b):
		return kindInt
	case isFixmap(b):
		return kindMap
	case isFixarray(b):
		return kindArray
	case isFixstr(b):
		return kindStr
	case b == codeNil:
		return kindNil
	case b == codeFalse, b == codeTrue:
		return kindBool
	case b >= codeBin8 && b <= codeBin32:
		return kindBin
	case b >= codeExt8 && b <= codeExt32:
		return kindExt
	case b == codeFloat32, b == codeFloat64:
		return kindFloat
	case b >= codeUint8 && b <= codeInt64:
		return kindInt
	case b >= codeFixExt1 && b <= codeFixExt16:
		return kindExt
	case b >= codeStr8 && b <= codeStr32:
		return kindStr
	case b == codeArray16, b == codeArray32:
		return kindArray
	case b == codeMap16, b == codeMap32:
		return kindMap
	default:
		return kindUnknown
	}
}
