// Package payload provides the compression codecs behind msgpax's optional
// large-payload extension: a str/bin payload that crosses the configured
// threshold is emitted as a reserved extension token wrapping
// [algorithm byte][compressed bytes], and transparently decompressed on read.
//
// Four algorithms are available:
//
//   - None: pass-through, for testing and for disabling compression per call
//   - Zstd: best ratio, for archival payloads and bandwidth-limited links
//   - S2: fastest, for hot paths where CPU matters more than ratio
//   - LZ4: balanced speed and ratio
//
// The default zstd codec is the pure-Go klauspost implementation; build with
// the cgo_zstd tag to swap in the cgo-backed valyala/gozstd codec.
package payload
