package wire

// DecodeResult is the four-valued discriminated return used by the streaming
// reader (and the lower-level tryRead primitives) to signal success, type
// mismatch, insufficient buffer, or empty buffer without exceptions.
//
// This is the mechanism by which resumable decode works across async
// refill boundaries: a caller that receives InsufficientBuffer or
// EmptyBuffer is guaranteed the cursor was not advanced, so it can fetch
// more bytes and retry the identical call.
type DecodeResult uint8

const (
	// Success indicates the requested token was read (or written) in full
	// and the cursor/position has advanced past it.
	Success DecodeResult = iota

	// TokenMismatch indicates the next wire byte does not correspond to the
	// token kind the caller asked for. The cursor is unchanged.
	TokenMismatch

	// InsufficientBuffer indicates the buffered span doesn't yet contain a
	// complete token, but the byte source is not known to be drained. The
	// cursor is unchanged; the caller should fetch more bytes and retry.
	InsufficientBuffer

	// EmptyBuffer indicates InsufficientBuffer occurred while the byte
	// source is drained (end of stream); no further bytes are forthcoming.
	EmptyBuffer
)

func (r DecodeResult) String() string {
	switch r {
	case Success:
		return "Success"
	case TokenMismatch:
		return "TokenMismatch"
	case InsufficientBuffer:
		return "InsufficientBuffer"
	case EmptyBuffer:
		return "EmptyBuffer"
	default:
		return "Unknown"
	}
}

// OK reports whether the result represents a completed, successful operation.
func (r DecodeResult) OK() bool { return r == Success }
