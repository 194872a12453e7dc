package payload

// NoOpCompressor passes data through unmodified. Useful for benchmarking the
// extension-token overhead in isolation, and as the codec behind TypeNone.
type NoOpCompressor struct{}

var _ Codec = (*NoOpCompressor)(nil)

// NewNoOpCompressor creates a pass-through codec.
func NewNoOpCompressor() NoOpCompressor {
	return NoOpCompressor{}
}

// Compress returns data unmodified.
func (c NoOpCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

// Decompress returns data unmodified.
func (c NoOpCompressor) Decompress(data []byte) ([]byte, error) {
	return data, nil
}
