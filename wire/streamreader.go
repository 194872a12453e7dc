package wire

import (
	"context"

	"github.com/arloliu/msgpax/errs"
)

// SkipState holds the "how many top-level structures are still to skip"
// counter that a resumable TrySkip needs to survive across
// InsufficientBuffer suspension. The counter is logically part of the
// per-operation serialization context; it lives here as its own small type
// so the wire package doesn't depend on the higher-level Context type.
// Callers hold a *SkipState and pass it through every TrySkip call for one
// logical skip operation.
type SkipState struct {
	// Remaining is N from the skip algorithm: 0 means "no skip in
	// progress", and TrySkip treats that as "skip exactly one structure".
	Remaining int
}

// RefreshToken is a snapshot of a StreamReader's resumable state: cursor
// position, end-of-stream flag, and in-progress skip counter. A caller that
// needs to suspend across an async boundary it doesn't control (e.g. handing
// decode off to another goroutine) can capture a RefreshToken, and later
// reconstruct an equivalent StreamReader via Resume.
type RefreshToken struct {
	Position    int64
	EndOfStream bool
	SkipState   SkipState
}

// FetchFunc supplies additional bytes to a StreamReader when its buffered
// segments are exhausted. It reports that no more data will ever arrive by
// returning eof=true (with or without a final segment), which makes
// StreamReader.FetchMoreBytes mark end-of-stream; an empty segment with
// eof=false only means nothing arrived on this call.
type FetchFunc func(ctx context.Context, minLength int) (segment []byte, eof bool, err error)

// StreamReader layers exception-less, resumable decode semantics over a
// SegmentReader: every typed read returns a DecodeResult instead of
// throwing, and fetchMoreBytes is the only suspension point — no background
// I/O happens between calls, and the reader is never touched concurrently.
type StreamReader struct {
	seg   *SegmentReader
	fetch FetchFunc
}

// NewStreamReader wraps segments already in hand. fetch may be nil for a
// reader that will never be asked to refill (e.g. a reader over a complete
// in-memory payload, constructed with MarkEndOfStream already set).
func NewStreamReader(fetch FetchFunc, segments ...[]byte) *StreamReader {
	return &StreamReader{seg: NewSegmentReader(segments...), fetch: fetch}
}

// MarkEndOfStream records that the byte source is drained; see
// SegmentReader.MarkEndOfStream.
func (r *StreamReader) MarkEndOfStream() { r.seg.MarkEndOfStream() }

// Position returns the total number of bytes consumed so far.
func (r *StreamReader) Position() int64 { return r.seg.Position() }

// GetExchangeInfo snapshots the reader's resumable state.
func (r *StreamReader) GetExchangeInfo(skip *SkipState) RefreshToken {
	tok := RefreshToken{Position: r.seg.Position(), EndOfStream: r.seg.EndOfStream()}
	if skip != nil {
		tok.SkipState = *skip
	}
	return tok
}

// Resume reconstructs a StreamReader from a RefreshToken captured by
// GetExchangeInfo. segments must hold the bytes that were unread at capture
// time; the returned SkipState carries the suspended skip counter so a
// TrySkip interrupted before the suspension picks up exactly where it
// stopped.
func Resume(tok RefreshToken, fetch FetchFunc, segments ...[]byte) (*StreamReader, SkipState) {
	r := NewStreamReader(fetch, segments...)
	r.seg.position = tok.Position
	if tok.EndOfStream {
		r.seg.MarkEndOfStream()
	}
	return r, tok.SkipState
}

// classify reclassifies InsufficientBuffer to EmptyBuffer once the byte
// source is known to be drained.
func (r *StreamReader) classify(res DecodeResult) DecodeResult {
	if res == InsufficientBuffer && r.seg.EndOfStream() {
		return EmptyBuffer
	}
	return res
}

// FetchMoreBytes is the explicit suspension point: it invokes the injected
// FetchFunc for at least minLength bytes (best-effort; the callback may
// return fewer and the caller will be asked again), appends whatever arrived
// to the segment sequence, and reports whether the source is now drained.
//
// ctx.Err() is consulted before issuing the fetch, so a canceled operation
// stops at the suspension point instead of blocking on I/O.
func (r *StreamReader) FetchMoreBytes(ctx context.Context, minLength int) error {
	if err := ctx.Err(); err != nil {
		return errs.New(errs.KindOperationCanceled, err)
	}
	if r.fetch == nil {
		r.seg.MarkEndOfStream()
		return nil
	}

	segment, eof, err := r.fetch(ctx, minLength)
	if err != nil {
		return err
	}
	if len(segment) > 0 {
		r.seg.Append(segment)
	}
	if eof {
		r.seg.MarkEndOfStream()
	}
	return nil
}

// TryPeekCode returns the next tag byte without consuming it.
func (r *StreamReader) TryPeekCode() (byte, DecodeResult) {
	code, res := PeekCode(r.seg.UnreadSpan())
	return code, r.classify(res)
}

// TryReadNil reads the nil token.
func (r *StreamReader) TryReadNil() DecodeResult {
	size, res := TryReadNil(r.seg.UnreadSpan())
	if res == Success {
		r.seg.Advance(size)
	}
	return r.classify(res)
}

// TryReadBool reads the true/false token.
func (r *StreamReader) TryReadBool() (bool, DecodeResult) {
	v, size, res := TryReadBool(r.seg.UnreadSpan())
	if res == Success {
		r.seg.Advance(size)
	}
	return v, r.classify(res)
}

// TryReadInt64 reads any integer token, widened to int64. overflow is only
// meaningful when result==Success.
func (r *StreamReader) TryReadInt64() (v int64, result DecodeResult, overflow bool) {
	span := r.seg.UnreadSpan()
	val, size, res, fits := TryReadInt64(span)
	if res == Success {
		if !fits {
			// Token fully decoded on the wire; the failure is a type
			// overflow, not a buffering condition, so the cursor still
			// advances past the token.
			r.seg.Advance(size)
			return 0, Success, true
		}
		r.seg.Advance(size)
	}
	return val, r.classify(res), false
}

// TryReadUint64 reads any integer token, widened to uint64.
func (r *StreamReader) TryReadUint64() (v uint64, result DecodeResult, overflow bool) {
	span := r.seg.UnreadSpan()
	val, size, res, fits := TryReadUint64(span)
	if res == Success {
		if !fits {
			r.seg.Advance(size)
			return 0, Success, true
		}
		r.seg.Advance(size)
	}
	return val, r.classify(res), false
}

// TryReadFloat32 reads a float32 token.
func (r *StreamReader) TryReadFloat32() (float32, DecodeResult) {
	v, size, res := TryReadFloat32(r.seg.UnreadSpan())
	if res == Success {
		r.seg.Advance(size)
	}
	return v, r.classify(res)
}

// TryReadFloat64 reads a float64 token.
func (r *StreamReader) TryReadFloat64() (float64, DecodeResult) {
	v, size, res := TryReadFloat64(r.seg.UnreadSpan())
	if res == Success {
		r.seg.Advance(size)
	}
	return v, r.classify(res)
}

// TryReadArrayHeader reads an array header.
func (r *StreamReader) TryReadArrayHeader() (count int, result DecodeResult) {
	n, size, res := TryReadArrayHeader(r.seg.UnreadSpan())
	if res == Success {
		r.seg.Advance(size)
	}
	return n, r.classify(res)
}

// TryReadMapHeader reads a map header.
func (r *StreamReader) TryReadMapHeader() (count int, result DecodeResult) {
	n, size, res := TryReadMapHeader(r.seg.UnreadSpan())
	if res == Success {
		r.seg.Advance(size)
	}
	return n, r.classify(res)
}

// TryReadStringHeader reads a string header, returning the payload length.
func (r *StreamReader) TryReadStringHeader() (byteLen int, result DecodeResult) {
	n, size, res := TryReadStringHeader(r.seg.UnreadSpan())
	if res == Success {
		r.seg.Advance(size)
	}
	return n, r.classify(res)
}

// TryReadBinHeader reads a binary header, returning the payload length.
func (r *StreamReader) TryReadBinHeader() (byteLen int, result DecodeResult) {
	n, size, res := TryReadBinHeader(r.seg.UnreadSpan())
	if res == Success {
		r.seg.Advance(size)
	}
	return n, r.classify(res)
}

// TryReadExtensionHeader reads an extension header, returning its type code
// and payload length.
func (r *StreamReader) TryReadExtensionHeader() (typeCode int8, length int, result DecodeResult) {
	tc, n, size, res := TryReadExtensionHeader(r.seg.UnreadSpan())
	if res == Success {
		r.seg.Advance(size)
	}
	return tc, n, r.classify(res)
}

// TryReadRaw reads exactly n raw bytes (a string/binary/extension payload,
// or any span being captured verbatim for unused-data replay). The returned
// slice aliases buffered memory and is only valid until the next read call;
// callers that retain it (unused-data capture, reference-tracked values)
// must copy it.
func (r *StreamReader) TryReadRaw(n int) ([]byte, DecodeResult) {
	span := r.seg.UnreadSpan()
	if len(span) >= n {
		data, res := TryReadRaw(span, n)
		r.seg.Advance(n)
		return data, res
	}

	// The token straddles a segment boundary (or isn't fully buffered
	// yet); fall back to a copy so the caller still gets a contiguous
	// slice.
	if r.seg.Remaining() < n {
		return nil, r.classify(InsufficientBuffer)
	}
	buf := make([]byte, n)
	if !r.seg.TryCopyTo(buf) {
		return nil, r.classify(InsufficientBuffer)
	}
	r.seg.Advance(n)
	return buf, Success
}

// payload step sizes added to N by trySkip for each structural token kind,
// per the skip algorithm: arrays add their element count, maps add twice
// their pair count (key+value per entry).
const (
	skipStepArray = 1
	skipStepMap   = 2
)

// maxHeaderSize is the widest possible token header: an ext32 header
// (tag + 4-byte length + type code).
const maxHeaderSize = 6

// peekHeaderSpan returns up to maxHeaderSize unread bytes without advancing
// the cursor, copying into scratch only when the head segment alone is too
// short. Lets TrySkip parse a str/bin/ext header and then advance past
// header+payload in one atomic step, so an InsufficientBuffer mid-payload
// leaves the cursor exactly where it was before the peek.
func (r *StreamReader) peekHeaderSpan(scratch *[maxHeaderSize]byte) []byte {
	span := r.seg.UnreadSpan()
	if len(span) >= maxHeaderSize || len(span) == r.seg.Remaining() {
		return span
	}
	n := r.seg.Remaining()
	if n > maxHeaderSize {
		n = maxHeaderSize
	}
	buf := scratch[:n]
	r.seg.TryCopyTo(buf)
	return buf
}

// skipPayloadToken handles one str/bin/ext token for TrySkip: parse the
// header without consuming it, then advance past header and payload together
// only once both are fully buffered.
func (r *StreamReader) skipPayloadToken(readHeader func([]byte) (int, int, DecodeResult)) DecodeResult {
	var scratch [maxHeaderSize]byte
	payloadLen, headerSize, res := readHeader(r.peekHeaderSpan(&scratch))
	if res != Success {
		return r.classify(res)
	}
	total := headerSize + payloadLen
	if r.seg.Remaining() < total {
		return r.classify(InsufficientBuffer)
	}
	r.seg.Advance(total)
	return Success
}

// TrySkip advances past exactly one complete msgpack structure using an
// iterative, depth-first algorithm (recursion is unsafe against untrusted
// nesting depth). state carries the "top-level
// structures still to skip" counter N across InsufficientBuffer
// suspensions: on entry, N := max(1, state.Remaining); on
// InsufficientBuffer, the cursor is left exactly where it was before the
// failing peek/read, and state.Remaining is updated so a later call
// resumes correctly. On Success, state.Remaining is reset to 0.
func (r *StreamReader) TrySkip(state *SkipState) DecodeResult {
	n := state.Remaining
	if n < 1 {
		n = 1
	}

	for n > 0 {
		code, res := r.TryPeekCode()
		if res != Success {
			state.Remaining = n
			return res
		}

		kind := classify(code)
		switch kind {
		case kindNil, kindBool, kindInt, kindFloat:
			size, ok := FixedTokenSize(code)
			if !ok {
				state.Remaining = n
				return TokenMismatch
			}
			if r.seg.Remaining() < size {
				state.Remaining = n
				return r.classify(InsufficientBuffer)
			}
			r.seg.Advance(size)
			n--
		case kindStr:
			if res := r.skipPayloadToken(TryReadStringHeader); res != Success {
				state.Remaining = n
				return res
			}
			n--
		case kindBin:
			if res := r.skipPayloadToken(TryReadBinHeader); res != Success {
				state.Remaining = n
				return res
			}
			n--
		case kindExt:
			if res := r.skipPayloadToken(func(span []byte) (int, int, DecodeResult) {
				_, length, headerSize, res := TryReadExtensionHeader(span)
				return length, headerSize, res
			}); res != Success {
				state.Remaining = n
				return res
			}
			n--
		case kindArray:
			count, res := r.TryReadArrayHeader()
			if res != Success {
				state.Remaining = n
				return res
			}
			n--
			n += count * skipStepArray
		case kindMap:
			count, res := r.TryReadMapHeader()
			if res != Success {
				state.Remaining = n
				return res
			}
			n--
			n += count * skipStepMap
		default:
			state.Remaining = n
			return TokenMismatch
		}
	}

	state.Remaining = 0
	return Success
}
