package wire

import (
	"io"

	"github.com/arloliu/msgpax/errs"
	"github.com/arloliu/msgpax/internal/pool"
)

// Writer is the synchronous writer facade: a straight forwarder over the
// primitives in this package, backed by an in-memory output buffer that
// flushes to sink whenever pending bytes exceed the flush threshold. The
// buffer grows amortized and each token is encoded in place, with no
// intermediate allocation per value.
type Writer struct {
	buf            *pool.ByteBuffer
	sink           io.Writer
	flushThreshold int

	compressThreshold int
	compressAlgorithm byte
	compressCodec     PayloadCodec
}

// NewWriter creates a Writer flushing to sink once pending bytes exceed
// flushThreshold (typically the context's unflushed-bytes threshold,
// 64KiB by default).
func NewWriter(sink io.Writer, flushThreshold int) *Writer {
	return &Writer{
		buf:            pool.GetWriterBuffer(),
		sink:           sink,
		flushThreshold: flushThreshold,
	}
}

// Release returns the Writer's buffer to the shared pool. Call after a
// final Flush; the Writer must not be used afterward.
func (w *Writer) Release() {
	pool.PutWriterBuffer(w.buf)
	w.buf = nil
}

// Len returns the number of unflushed bytes currently buffered.
func (w *Writer) Len() int { return w.buf.Len() }

func (w *Writer) reserve(n int) []byte {
	w.buf.Grow(n)
	start := w.buf.Len()
	w.buf.ExtendOrGrow(n)
	return w.buf.Slice(start, start+n)
}

// commit trims the just-reserved span down to the bytes actually used by a
// TryWrite* call (which may write fewer bytes than the conservative upper
// bound reserve() grew for, e.g. a fixint needing only 1 of a reserved 9).
func (w *Writer) commit(reservedLen, used int) {
	w.buf.SetLength(w.buf.Len() - (reservedLen - used))
}

func (w *Writer) maybeAutoFlush() error {
	if w.flushThreshold > 0 && w.buf.Len() >= w.flushThreshold {
		return w.Flush()
	}
	return nil
}

// Flush writes all pending bytes to the sink and resets the buffer.
func (w *Writer) Flush() error {
	if w.buf.Len() == 0 {
		return nil
	}
	if _, err := w.buf.WriteTo(w.sink); err != nil {
		return err
	}
	w.buf.Reset()
	return nil
}

func (w *Writer) WriteNil() error {
	span := w.reserve(1)
	n, _ := TryWriteNil(span)
	w.commit(1, n)
	return w.maybeAutoFlush()
}

func (w *Writer) WriteBool(v bool) error {
	span := w.reserve(1)
	n, _ := TryWriteBool(span, v)
	w.commit(1, n)
	return w.maybeAutoFlush()
}

func (w *Writer) WriteInt(v int64) error {
	span := w.reserve(9)
	n, _ := TryWriteInt(span, v)
	w.commit(9, n)
	return w.maybeAutoFlush()
}

func (w *Writer) WriteUint(v uint64) error {
	span := w.reserve(9)
	n, _ := TryWriteUint(span, v)
	w.commit(9, n)
	return w.maybeAutoFlush()
}

func (w *Writer) WriteFloat32(v float32) error {
	span := w.reserve(5)
	n, _ := TryWriteFloat32(span, v)
	w.commit(5, n)
	return w.maybeAutoFlush()
}

func (w *Writer) WriteFloat64(v float64) error {
	span := w.reserve(9)
	n, _ := TryWriteFloat64(span, v)
	w.commit(9, n)
	return w.maybeAutoFlush()
}

func (w *Writer) WriteStringHeader(byteLen int) error {
	span := w.reserve(5)
	n, ok := TryWriteStrHeader(span, byteLen)
	if !ok {
		w.commit(5, 0)
		return errs.New(errs.KindInvalidCode, nil)
	}
	w.commit(5, n)
	return w.maybeAutoFlush()
}

func (w *Writer) WriteBinHeader(byteLen int) error {
	span := w.reserve(5)
	n, ok := TryWriteBinHeader(span, byteLen)
	if !ok {
		w.commit(5, 0)
		return errs.New(errs.KindInvalidCode, nil)
	}
	w.commit(5, n)
	return w.maybeAutoFlush()
}

func (w *Writer) WriteArrayHeader(count int) error {
	span := w.reserve(5)
	n, ok := TryWriteArrayHeader(span, count)
	if !ok {
		w.commit(5, 0)
		return errs.New(errs.KindInvalidCode, nil)
	}
	w.commit(5, n)
	return w.maybeAutoFlush()
}

func (w *Writer) WriteMapHeader(count int) error {
	span := w.reserve(5)
	n, ok := TryWriteMapHeader(span, count)
	if !ok {
		w.commit(5, 0)
		return errs.New(errs.KindInvalidCode, nil)
	}
	w.commit(5, n)
	return w.maybeAutoFlush()
}

func (w *Writer) WriteExtHeader(typeCode int8, length int) error {
	span := w.reserve(6)
	n, ok := TryWriteExtHeader(span, typeCode, length)
	if !ok {
		w.commit(6, 0)
		return errs.New(errs.KindInvalidCode, nil)
	}
	w.commit(6, n)
	return w.maybeAutoFlush()
}

// WriteRaw writes data verbatim (a string/binary/extension payload, or a
// captured unused-data entry being replayed byte-for-byte).
func (w *Writer) WriteRaw(data []byte) error {
	span := w.reserve(len(data))
	n, _ := TryWriteRaw(span, data)
	w.commit(len(data), n)
	return w.maybeAutoFlush()
}

func (w *Writer) WriteTimestamp(sec int64, nsec uint32) error {
	span := w.reserve(15) // ext8 header(3) + widest payload(12); a shorter form is trimmed by commit
	n, ok := TryWriteTimestamp(span, sec, nsec)
	if !ok {
		w.commit(15, 0)
		return errs.New(errs.KindInvalidCode, nil)
	}
	w.commit(15, n)
	return w.maybeAutoFlush()
}

// Reader is the synchronous reader facade: it collapses StreamReader's
// DecodeResult into Go errors, for callers operating over a fully-buffered
// payload (no fetchMoreBytes refill path — see streamreader.go for the
// resumable reader used by msgpax's DeserializeFrom).
type Reader struct {
	sr   *StreamReader
	skip SkipState
	// full is the complete payload passed to NewReader, retained so
	// CaptureValue can slice out a byte-exact span for unused-data capture
	// without re-encoding decoded values, which would not reproduce a
	// non-shortest-form source encoding verbatim.
	full []byte

	resolveCodec CodecResolver
}

// NewReader wraps a complete in-memory payload. The reader is marked
// end-of-stream immediately since no further segments will ever arrive.
func NewReader(data []byte) *Reader {
	sr := NewStreamReader(nil, data)
	sr.MarkEndOfStream()
	return &Reader{sr: sr, full: data}
}

// Position returns the total number of bytes consumed so far.
func (r *Reader) Position() int64 { return r.sr.Position() }

// CaptureValue skips exactly one complete msgpack value (per Skip) and
// returns a copy of its raw encoded bytes, unaltered from the source
// stream. Used by object converters to capture unrecognized members into an
// UnusedDataPacket for later byte-exact replay.
func (r *Reader) CaptureValue() ([]byte, error) {
	start := r.Position()
	if err := r.Skip(); err != nil {
		return nil, err
	}
	end := r.Position()
	raw := make([]byte, end-start)
	copy(raw, r.full[start:end])
	return raw, nil
}

func translateResult(res DecodeResult) error {
	switch res {
	case Success:
		return nil
	case TokenMismatch:
		return errs.New(errs.KindTokenMismatch, nil)
	case InsufficientBuffer, EmptyBuffer:
		return errs.New(errs.KindEndOfStream, nil)
	default:
		return errs.New(errs.KindInvalidCode, nil)
	}
}

func (r *Reader) ReadNil() error {
	return translateResult(r.sr.TryReadNil())
}

func (r *Reader) ReadBool() (bool, error) {
	v, res := r.sr.TryReadBool()
	return v, translateResult(res)
}

func (r *Reader) ReadInt() (int64, error) {
	v, res, overflow := r.sr.TryReadInt64()
	if res == Success && overflow {
		return 0, errs.New(errs.KindOverflow, nil)
	}
	return v, translateResult(res)
}

func (r *Reader) ReadUint() (uint64, error) {
	v, res, overflow := r.sr.TryReadUint64()
	if res == Success && overflow {
		return 0, errs.New(errs.KindOverflow, nil)
	}
	return v, translateResult(res)
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, res := r.sr.TryReadFloat32()
	return v, translateResult(res)
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, res := r.sr.TryReadFloat64()
	return v, translateResult(res)
}

func (r *Reader) ReadArrayHeader() (int, error) {
	n, res := r.sr.TryReadArrayHeader()
	return n, translateResult(res)
}

func (r *Reader) ReadMapHeader() (int, error) {
	n, res := r.sr.TryReadMapHeader()
	return n, translateResult(res)
}

func (r *Reader) ReadStringHeader() (int, error) {
	n, res := r.sr.TryReadStringHeader()
	return n, translateResult(res)
}

func (r *Reader) ReadBinHeader() (int, error) {
	n, res := r.sr.TryReadBinHeader()
	return n, translateResult(res)
}

func (r *Reader) ReadExtensionHeader() (int8, int, error) {
	tc, n, res := r.sr.TryReadExtensionHeader()
	return tc, n, translateResult(res)
}

// ReadRaw reads n raw bytes. The returned slice aliases internal buffers;
// copy it before retaining it past the next read call.
func (r *Reader) ReadRaw(n int) ([]byte, error) {
	data, res := r.sr.TryReadRaw(n)
	return data, translateResult(res)
}

func (r *Reader) ReadTimestamp() (sec int64, nsec uint32, err error) {
	typeCode, length, err := r.ReadExtensionHeader()
	if err != nil {
		return 0, 0, err
	}
	if typeCode != ExtTimestamp {
		return 0, 0, errs.New(errs.KindTokenMismatch, nil)
	}
	payload, err := r.ReadRaw(length)
	if err != nil {
		return 0, 0, err
	}
	sec, nsec, res := TryReadTimestamp(payload)
	return sec, nsec, translateResult(res)
}

// PeekCode returns the next tag byte without consuming it.
func (r *Reader) PeekCode() (byte, error) {
	code, res := r.sr.TryPeekCode()
	return code, translateResult(res)
}

// Skip advances past exactly one complete msgpack structure.
func (r *Reader) Skip() error {
	res := r.sr.TrySkip(&r.skip)
	return translateResult(res)
}
