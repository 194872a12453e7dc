// Package msgpax provides a zero-allocation-friendly MessagePack codec that
// encodes and decodes typed values against a runtime-introspectable type
// model ("shapes"), with support for streaming decode, forward-compatible
// object evolution, and polymorphic (union) dispatch.
//
// # Architecture
//
//   - wire: the bit-level msgpack codec — exact encode/decode of every wire
//     token against a contiguous byte span, plus the buffered segment reader,
//     the resumable streaming reader, and the synchronous reader/writer facade
//   - shape: the abstract capability interfaces describing a type's structure,
//     supplied by an external shape provider
//   - convert: the converter registry and shape visitor that turn shapes into
//     memoized converter trees, including the object, union, and
//     reference-preservation layers
//   - payload: optional compression codecs (zstd, s2, lz4) for the
//     large-payload extension
//
// # Basic Usage
//
//	ser := msgpax.NewSerializer()
//	ctx, _ := msgpax.NewSerializationContext()
//
//	var buf bytes.Buffer
//	if err := ser.Serialize(&buf, value, valueShape, ctx); err != nil {
//	    return err
//	}
//
//	decoded, err := ser.Deserialize(buf.Bytes(), valueShape, ctx)
//
// Streaming sources (pipes, sockets) go through DeserializeFrom, which
// buffers incrementally and suspends only while waiting for more bytes, or
// DeserializeEnumerable, which treats the source as a concatenation of
// top-level values with no framing.
package msgpax

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/arloliu/msgpax/convert"
	"github.com/arloliu/msgpax/errs"
	"github.com/arloliu/msgpax/payload"
	"github.com/arloliu/msgpax/shape"
	"github.com/arloliu/msgpax/wire"
)

// SerializationContext carries the per-operation options and state described
// in the convert package; see convert.Context for the full option table.
type SerializationContext = convert.Context

// NewSerializationContext builds a context with default settings (depth
// budget 64, flush threshold 64KiB), then applies opts in order.
func NewSerializationContext(opts ...convert.ContextOption) (*SerializationContext, error) {
	return convert.NewContext(opts...)
}

// SerializerOption configures a Serializer at construction time.
type SerializerOption func(*serializerConfig)

type serializerConfig struct {
	builderOpts []convert.BuilderOption
}

// WithNamingPolicy sets the property-name transform applied to map-mode keys
// at converter-build time.
func WithNamingPolicy(p convert.NamingPolicy) SerializerOption {
	return func(c *serializerConfig) {
		c.builderOpts = append(c.builderOpts, convert.WithBuilderNamingPolicy(p))
	}
}

// WithPerformanceOverSchemaStability forces array-mode encoding for every
// object shape, trading schema evolvability for compactness and speed.
func WithPerformanceOverSchemaStability(v bool) SerializerOption {
	return func(c *serializerConfig) {
		c.builderOpts = append(c.builderOpts, convert.WithPerformanceOverSchemaStability(v))
	}
}

// WithAllowMissingRequired disables the MissingRequired error for absent
// required constructor parameters.
func WithAllowMissingRequired(v bool) SerializerOption {
	return func(c *serializerConfig) {
		c.builderOpts = append(c.builderOpts, convert.WithAllowMissingRequired(v))
	}
}

// WithInternStrings selects the interning string converter for every string
// shape built by this serializer.
func WithInternStrings(v bool) SerializerOption {
	return func(c *serializerConfig) {
		c.builderOpts = append(c.builderOpts, convert.WithBuilderInternStrings(v))
	}
}

// Serializer owns a converter registry and the builder that populates it.
// The registry is the only state shared across operations; it is safe for
// concurrent use, and a Serializer is intended to be long-lived and shared.
type Serializer struct {
	registry *convert.Registry
	builder  *convert.Builder
}

// NewSerializer creates a Serializer with an empty converter registry.
func NewSerializer(opts ...SerializerOption) *Serializer {
	var cfg serializerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	reg := convert.NewRegistry()
	return &Serializer{
		registry: reg,
		builder:  convert.NewBuilder(reg, cfg.builderOpts...),
	}
}

// RegisterConverter installs a hand-written converter that always wins over
// any shape-derived one for values of typ.
func (s *Serializer) RegisterConverter(typ reflect.Type, c convert.Converter) {
	s.registry.RegisterConverter(typ, c)
}

// RegisterUnion maps a base shape's subtypes to wire aliases for polymorphic
// serialization. Duplicate aliases and duplicate case types are rejected here,
// at registration time. Values of the base shape's type then travel as
// [alias, value] envelopes.
func (s *Serializer) RegisterUnion(base shape.Shape, cases ...shape.UnionCase) error {
	us := &registeredUnion{base: base, cases: cases}
	conv, err := s.builder.GetConverter(us, nil)
	if err != nil {
		return err
	}
	s.registry.RegisterConverter(base.Type(), conv)
	return nil
}

// Freeze publishes an immutable snapshot of every converter built so far,
// after which lookups are lock-free. Call once start-up registration is done.
func (s *Serializer) Freeze() {
	s.registry.Freeze()
}

// registeredUnion adapts a RegisterUnion call into the shape.UnionShape the
// converter builder consumes.
type registeredUnion struct {
	base  shape.Shape
	cases []shape.UnionCase
}

func (u *registeredUnion) Kind() shape.Kind          { return shape.KindUnion }
func (u *registeredUnion) Type() reflect.Type        { return u.base.Type() }
func (u *registeredUnion) Identity() any             { return u }
func (u *registeredUnion) BaseShape() shape.Shape    { return u.base }
func (u *registeredUnion) Cases() []shape.UnionCase  { return u.cases }

// operationContext clones ctx (or creates a default one) so each top-level
// operation gets fresh per-operation state (depth budget, skip counter,
// pooled reference tracker) without mutating the caller's context.
func operationContext(ctx *SerializationContext) (*SerializationContext, error) {
	if ctx == nil {
		return convert.NewContext()
	}
	return ctx.With()
}

func resolvePayloadCodec(algorithm byte) (wire.PayloadCodec, error) {
	return payload.GetCodec(payload.Type(algorithm))
}

// Serialize encodes value (described by sh) to sink, flushing whenever
// pending bytes exceed the context's unflushed-bytes threshold. Because
// flushing is incremental, this is also the pipe-writer ("async") entry
// point: a sink that applies backpressure naturally paces the encode.
func (s *Serializer) Serialize(sink io.Writer, value any, sh shape.Shape, ctx *SerializationContext) error {
	opCtx, err := operationContext(ctx)
	if err != nil {
		return err
	}
	defer opCtx.Release()

	conv, err := s.builder.GetConverter(sh, nil)
	if err != nil {
		return err
	}

	w := wire.NewWriter(sink, opCtx.UnflushedBytesThreshold)
	defer w.Release()
	if opCtx.LargePayloadThreshold > 0 {
		codec, err := payload.GetCodec(opCtx.LargePayloadAlgorithm)
		if err != nil {
			return err
		}
		w.SetCompression(opCtx.LargePayloadThreshold, byte(opCtx.LargePayloadAlgorithm), codec)
	}

	if err := conv.Write(w, reflect.ValueOf(value), opCtx); err != nil {
		return err
	}
	return w.Flush()
}

// Marshal is a convenience wrapper over Serialize that returns the encoded
// bytes.
func (s *Serializer) Marshal(value any, sh shape.Shape, ctx *SerializationContext) ([]byte, error) {
	var buf byteSliceSink
	if err := s.Serialize(&buf, value, sh, ctx); err != nil {
		return nil, err
	}
	return buf, nil
}

type byteSliceSink []byte

func (b *byteSliceSink) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}

// Deserialize decodes exactly one value (described by sh) from data.
func (s *Serializer) Deserialize(data []byte, sh shape.Shape, ctx *SerializationContext) (any, error) {
	opCtx, err := operationContext(ctx)
	if err != nil {
		return nil, err
	}
	defer opCtx.Release()

	conv, err := s.builder.GetConverter(sh, nil)
	if err != nil {
		return nil, err
	}

	r := wire.NewReader(data)
	r.SetCodecResolver(resolvePayloadCodec)
	v, err := conv.Read(r, opCtx)
	if err != nil {
		return nil, err
	}
	return valueInterface(v), nil
}

func valueInterface(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}

// readerFetchFunc adapts an io.Reader into the streaming reader's refill
// callback, capturing every fetched chunk into *captured so the complete
// value's bytes are available for the converter pass once framing is known.
func readerFetchFunc(source io.Reader, captured *[]byte) wire.FetchFunc {
	return func(_ context.Context, minLength int) ([]byte, bool, error) {
		size := 4096
		if minLength > size {
			size = minLength
		}
		chunk := make([]byte, size)
		n, err := source.Read(chunk)
		if n > 0 {
			*captured = append(*captured, chunk[:n]...)
			return chunk[:n], err == io.EOF, nil
		}
		if err == io.EOF {
			return nil, true, nil
		}
		if err == nil {
			return nil, false, nil
		}
		return nil, false, err
	}
}

// nextValueBytes drives the streaming reader until exactly one complete
// top-level value is buffered, fetching more bytes (and honoring
// cancellation) on every InsufficientBuffer suspension. It returns the
// half-open byte range of the value within the capture buffer.
func nextValueBytes(sr *wire.StreamReader, opCtx *SerializationContext) (start, end int64, err error) {
	start = sr.Position()
	state := opCtx.SkipState()
	for {
		switch res := sr.TrySkip(state); res {
		case wire.Success:
			return start, sr.Position(), nil
		case wire.InsufficientBuffer:
			if err := sr.FetchMoreBytes(opCtx.CancellationToken, 1); err != nil {
				return 0, 0, err
			}
		case wire.EmptyBuffer:
			// end == start distinguishes a clean end between values from an
			// end mid-value; DeserializeEnumerable relies on that.
			return start, sr.Position(), errs.New(errs.KindEndOfStream, nil)
		default:
			return start, sr.Position(), errs.New(errs.KindInvalidCode, fmt.Errorf("unskippable token at position %d", sr.Position()))
		}
	}
}

// DeserializeFrom decodes exactly one value from a streaming byte source (a
// pipe, socket, or any io.Reader). Bytes are buffered incrementally: the
// resumable skip machinery frames one complete top-level value, suspending
// at every refill, and the converter pass then runs over the framed bytes.
func (s *Serializer) DeserializeFrom(source io.Reader, sh shape.Shape, ctx *SerializationContext) (any, error) {
	opCtx, err := operationContext(ctx)
	if err != nil {
		return nil, err
	}
	defer opCtx.Release()

	conv, err := s.builder.GetConverter(sh, nil)
	if err != nil {
		return nil, err
	}

	var captured []byte
	sr := wire.NewStreamReader(readerFetchFunc(source, &captured))
	start, end, err := nextValueBytes(sr, opCtx)
	if err != nil {
		return nil, err
	}

	r := wire.NewReader(captured[start:end])
	r.SetCodecResolver(resolvePayloadCodec)
	v, err := conv.Read(r, opCtx)
	if err != nil {
		return nil, err
	}
	return valueInterface(v), nil
}

// DeserializeEnumerable treats source as a concatenation of top-level values
// with no framing and yields each decoded value in order. Iteration stops at
// the end of the stream, on the first error (yielded with a nil value), or
// when the consumer breaks out of the loop.
func (s *Serializer) DeserializeEnumerable(source io.Reader, sh shape.Shape, ctx *SerializationContext) func(yield func(any, error) bool) {
	return func(yield func(any, error) bool) {
		opCtx, err := operationContext(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		defer opCtx.Release()

		conv, err := s.builder.GetConverter(sh, nil)
		if err != nil {
			yield(nil, err)
			return
		}

		var captured []byte
		sr := wire.NewStreamReader(readerFetchFunc(source, &captured))
		for {
			start, end, err := nextValueBytes(sr, opCtx)
			if err != nil {
				// A clean end between values is the normal termination, not
				// an error worth surfacing to the consumer.
				if start == end && errors.Is(err, errs.ErrEndOfStream) {
					return
				}
				yield(nil, err)
				return
			}

			r := wire.NewReader(captured[start:end])
			r.SetCodecResolver(resolvePayloadCodec)
			v, err := conv.Read(r, opCtx)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(valueInterface(v), nil) {
				return
			}
		}
	}
}

