package payload

// ZstdCompressor trades CPU for the best compression ratio of the built-in
// codecs, making it the right pick for archival payloads and for links where
// bandwidth dominates cost.
//
// Two implementations share this type: the default pure-Go klauspost codec
// (zstd_pure.go) and a cgo-backed valyala/gozstd codec selected with the
// cgo_zstd build tag (zstd_cgo.go).
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a new Zstd compressor with default settings.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}
