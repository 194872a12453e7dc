package payload

import "fmt"

// Type identifies a compression algorithm on the wire: it is the single
// algorithm byte carried at the front of a compressed-payload extension
// token, so values must stay stable across releases.
type Type uint8

const (
	TypeNone Type = 0x1 // TypeNone represents no compression.
	TypeZstd Type = 0x2 // TypeZstd represents Zstandard compression.
	TypeS2   Type = 0x3 // TypeS2 represents S2 compression.
	TypeLZ4  Type = 0x4 // TypeLZ4 represents LZ4 compression.
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeZstd:
		return "zstd"
	case TypeS2:
		return "s2"
	case TypeLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(t))
	}
}

// Compressor compresses one complete payload.
//
// Memory management:
//   - Returned slice is newly allocated and owned by the caller
//   - Input slice is not modified
//   - Internal buffers may be reused for efficiency
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor reverses a Compressor of the same algorithm. Implementations
// must be safe for concurrent use.
type Decompressor interface {
	// Decompress decompresses data previously produced by the matching
	// Compressor, returning an error if the input is corrupted or was
	// compressed with an incompatible algorithm.
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both compression and decompression capabilities.
type Codec interface {
	Compressor
	Decompressor
}

// CreateCodec is a factory function that creates a fresh Codec for the
// specified compression type. target is a description of the intended usage,
// used only in error messages.
func CreateCodec(compressionType Type, target string) (Codec, error) {
	switch compressionType {
	case TypeNone:
		return NewNoOpCompressor(), nil
	case TypeZstd:
		return NewZstdCompressor(), nil
	case TypeS2:
		return NewS2Compressor(), nil
	case TypeLZ4:
		return NewLZ4Compressor(), nil
	default:
		return nil, fmt.Errorf("invalid %s compression: %s", target, compressionType)
	}
}

var builtinCodecs = map[Type]Codec{
	TypeNone: NewNoOpCompressor(),
	TypeZstd: NewZstdCompressor(),
	TypeS2:   NewS2Compressor(),
	TypeLZ4:  NewLZ4Compressor(),
}

// GetCodec retrieves the shared built-in Codec for the specified compression
// type. The built-in codecs are stateless (pooling any internal encoder
// state), so sharing one instance across operations is safe.
func GetCodec(compressionType Type) (Codec, error) {
	if codec, ok := builtinCodecs[compressionType]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("unsupported compression type: %s", compressionType)
}
