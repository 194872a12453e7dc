package wire

// SegmentReader maintains a cursor across a logical sequence of byte
// segments (e.g. the chunks handed over by a pipe reader) so a contiguous
// "unread span" can be exposed to the wire primitives without forcing a
// copy when a token doesn't straddle a segment boundary. A streaming
// decoder receives data in network-sized chunks, not as one contiguous
// allocation, so the cursor must be able to span multiple
// independently-owned []byte segments.
type SegmentReader struct {
	segments    [][]byte
	segIdx      int // index of the segment the cursor is currently in
	segOff      int // offset within segments[segIdx]
	position    int64
	endOfStream bool
}

// NewSegmentReader creates a reader over the given segments. Segments may be
// appended later via Append.
func NewSegmentReader(segments ...[]byte) *SegmentReader {
	r := &SegmentReader{}
	for _, s := range segments {
		if len(s) > 0 {
			r.segments = append(r.segments, s)
		}
	}
	return r
}

// Append adds another segment to the tail of the reader's backing sequence.
func (r *SegmentReader) Append(segment []byte) {
	if len(segment) == 0 {
		return
	}
	r.segments = append(r.segments, segment)
}

// MarkEndOfStream records that no further segments will be appended; once
// the unread span is exhausted, InsufficientBuffer conditions reclassify to
// EmptyBuffer.
func (r *SegmentReader) MarkEndOfStream() { r.endOfStream = true }

// EndOfStream reports whether MarkEndOfStream has been called.
func (r *SegmentReader) EndOfStream() bool { return r.endOfStream }

// Position returns the total number of bytes advanced past since creation.
func (r *SegmentReader) Position() int64 { return r.position }

// Remaining returns the total number of unread bytes currently buffered
// across all segments.
func (r *SegmentReader) Remaining() int {
	if r.segIdx >= len(r.segments) {
		return 0
	}
	n := len(r.segments[r.segIdx]) - r.segOff
	for i := r.segIdx + 1; i < len(r.segments); i++ {
		n += len(r.segments[i])
	}
	return n
}

// Peek returns the next unread byte without consuming it, or false if no
// bytes are currently buffered.
func (r *SegmentReader) Peek() (byte, bool) {
	r.normalize()
	if r.segIdx >= len(r.segments) {
		return 0, false
	}
	return r.segments[r.segIdx][r.segOff], true
}

// UnreadSpan returns the longest contiguous unread span starting at the
// cursor, without copying. The returned slice is only valid until the next
// Advance/Append call. If the next token straddles a segment boundary, the
// caller must fall back to TryCopyTo.
func (r *SegmentReader) UnreadSpan() []byte {
	r.normalize()
	if r.segIdx >= len(r.segments) {
		return nil
	}
	return r.segments[r.segIdx][r.segOff:]
}

// TryCopyTo copies exactly len(dst) unread bytes into dst without advancing
// the cursor, for tokens that straddle a segment boundary. Returns false if
// fewer than len(dst) bytes are currently buffered.
func (r *SegmentReader) TryCopyTo(dst []byte) bool {
	if r.Remaining() < len(dst) {
		return false
	}

	segIdx, segOff := r.segIdx, r.segOff
	written := 0
	for written < len(dst) {
		seg := r.segments[segIdx]
		n := copy(dst[written:], seg[segOff:])
		written += n
		segOff += n
		if segOff >= len(seg) {
			segIdx++
			segOff = 0
		}
	}
	return true
}

// Advance consumes n unread bytes, which must not exceed Remaining().
func (r *SegmentReader) Advance(n int) {
	r.position += int64(n)
	for n > 0 {
		r.normalize()
		if r.segIdx >= len(r.segments) {
			panic("wire: Advance past end of buffered segments")
		}
		seg := r.segments[r.segIdx]
		avail := len(seg) - r.segOff
		if n < avail {
			r.segOff += n
			return
		}
		n -= avail
		r.segIdx++
		r.segOff = 0
	}
}

// normalize drops fully-consumed leading segments so Peek/UnreadSpan never
// observe a zero-length head segment.
func (r *SegmentReader) normalize() {
	for r.segIdx < len(r.segments) && r.segOff >= len(r.segments[r.segIdx]) {
		r.segIdx++
		r.segOff = 0
	}
	// Reclaim fully-consumed segments from the front so the slice doesn't
	// grow unbounded across a long-lived streaming decode.
	if r.segIdx > 0 {
		r.segments = r.segments[r.segIdx:]
		r.segIdx = 0
	}
}
