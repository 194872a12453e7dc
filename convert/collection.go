package convert

import (
	"fmt"
	"reflect"

	"github.com/arloliu/msgpax/errs"
	"github.com/arloliu/msgpax/internal/pool"
	"github.com/arloliu/msgpax/shape"
	"github.com/arloliu/msgpax/wire"
)

// dictionaryConverter encodes a map-like shape as a msgpack map of
// key/value tokens, reading back through the shape's declared construction
// strategy.
type dictionaryConverter struct {
	s        shape.DictionaryShape
	keyConv  Converter
	valConv  Converter
	typeName string
}

func (b *Builder) buildDictionary(s shape.DictionaryShape) (Converter, error) {
	keyConv, err := b.GetConverter(s.KeyShape(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s key: %w", s.Type(), err)
	}
	valConv, err := b.GetConverter(s.ValueShape(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s value: %w", s.Type(), err)
	}
	return &dictionaryConverter{s: s, keyConv: keyConv, valConv: valConv, typeName: s.Type().String()}, nil
}

func (c *dictionaryConverter) Write(w *wire.Writer, v reflect.Value, ctx *Context) error {
	if err := enterStructure(ctx); err != nil {
		return err
	}
	defer ctx.ExitDepth()

	if v.Kind() == reflect.Map && v.IsNil() {
		return w.WriteNil()
	}

	if err := w.WriteMapHeader(v.Len()); err != nil {
		return err
	}

	var outerErr error
	c.s.Iterate(v)(func(pair shape.KVPair) bool {
		if err := c.keyConv.Write(w, pair.Key, ctx); err != nil {
			outerErr = errs.WrapErr(c.typeName, "", err)
			return false
		}
		if err := c.valConv.Write(w, pair.Value, ctx); err != nil {
			outerErr = errs.WrapErr(c.typeName, "", err)
			return false
		}
		return true
	})
	return outerErr
}

func (c *dictionaryConverter) Read(r *wire.Reader, ctx *Context) (reflect.Value, error) {
	if err := enterStructure(ctx); err != nil {
		return reflect.Value{}, err
	}
	defer ctx.ExitDepth()

	if code, err := r.PeekCode(); err == nil && code == 0xc0 {
		if err := r.ReadNil(); err != nil {
			return reflect.Value{}, err
		}
		return reflect.Zero(c.s.Type()), nil
	}

	m, err := r.ReadMapHeader()
	if err != nil {
		return reflect.Value{}, err
	}

	switch c.s.Strategy() {
	case shape.ConstructMutableInsert:
		container := c.s.New(m)
		for i := 0; i < m; i++ {
			pair, err := c.readPair(r, ctx)
			if err != nil {
				return reflect.Value{}, err
			}
			c.s.Insert(container, pair)
		}
		return container, nil

	case shape.ConstructParameterizedSequence:
		pairs := make([]shape.KVPair, 0, m)
		for i := 0; i < m; i++ {
			pair, err := c.readPair(r, ctx)
			if err != nil {
				return reflect.Value{}, err
			}
			pairs = append(pairs, pair)
		}
		return c.s.Build(pairs)

	default:
		return reflect.Value{}, errs.New(errs.KindConfigurationError,
			fmt.Errorf("%s: dictionary shape has no construction strategy", c.typeName))
	}
}

func (c *dictionaryConverter) readPair(r *wire.Reader, ctx *Context) (shape.KVPair, error) {
	key, err := c.keyConv.Read(r, ctx)
	if err != nil {
		return shape.KVPair{}, errs.WrapErr(c.typeName, "", err)
	}
	val, err := c.valConv.Read(r, ctx)
	if err != nil {
		return shape.KVPair{}, errs.WrapErr(c.typeName, "", err)
	}
	return shape.KVPair{Key: key, Value: val}, nil
}

// enumerableConverter encodes a slice/array-like shape as a msgpack array.
// A multi-dimensional shape (Rank > 1) is always laid out in the Nested
// format — its element shape is itself enumerable, so the nesting falls out
// of ordinary recursion. The Flat format is rejected when the Context option
// is applied (WithMultiDimensionalArrayFormat).
type enumerableConverter struct {
	s        shape.EnumerableShape
	elemConv Converter
	typeName string
}

func (b *Builder) buildEnumerable(s shape.EnumerableShape) (Converter, error) {
	if s.Rank() > 1 && s.ElementShape().Kind() != shape.KindEnumerable {
		return nil, configErr(fmt.Sprintf("%s: rank-%d enumerable must nest enumerable element shapes", s.Type(), s.Rank()))
	}
	elemConv, err := b.GetConverter(s.ElementShape(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s element: %w", s.Type(), err)
	}
	return &enumerableConverter{s: s, elemConv: elemConv, typeName: s.Type().String()}, nil
}

func (c *enumerableConverter) Write(w *wire.Writer, v reflect.Value, ctx *Context) error {
	if err := enterStructure(ctx); err != nil {
		return err
	}
	defer ctx.ExitDepth()

	if v.Kind() == reflect.Slice && v.IsNil() {
		return w.WriteNil()
	}

	if err := w.WriteArrayHeader(v.Len()); err != nil {
		return err
	}

	if done, err := c.bulkWrite(w, v); done || err != nil {
		return err
	}

	var outerErr error
	c.s.Iterate(v)(func(elem reflect.Value) bool {
		if err := c.elemConv.Write(w, elem, ctx); err != nil {
			outerErr = errs.WrapErr(c.typeName, "", err)
			return false
		}
		return true
	})
	return outerErr
}

// bulkWrite is the fast path for rank-1 enumerables of opaque int64/float64
// elements: gather the values into a pooled typed slice and run the bulk
// codec over a pooled scratch buffer, instead of dispatching the element
// converter per value. The bulk codec's output is byte-identical to the
// element-wise path.
func (c *enumerableConverter) bulkWrite(w *wire.Writer, v reflect.Value) (bool, error) {
	if c.s.Rank() != 1 || c.s.ElementShape().Kind() != shape.KindOpaque {
		return false, nil
	}

	n := v.Len()
	switch c.s.ElementShape().Type().Kind() {
	case reflect.Int64:
		// A custom-registered element converter owns the wire form; only the
		// stock converter is guaranteed byte-identical to the bulk codec.
		if _, stock := c.elemConv.(intConverter); !stock {
			return false, nil
		}
		vals, release := pool.GetInt64Slice(n)
		defer release()
		for i := 0; i < n; i++ {
			vals[i] = v.Index(i).Int()
		}
		scratch := pool.GetWriterBuffer()
		defer pool.PutWriterBuffer(scratch)
		scratch.ExtendOrGrow(wire.MaxIntSliceSize(n))
		size, ok := wire.WriteIntSlice(scratch.Bytes(), vals)
		if !ok {
			return false, errs.New(errs.KindInvalidCode, nil)
		}
		return true, w.WriteRaw(scratch.Slice(0, size))

	case reflect.Float64:
		if _, stock := c.elemConv.(float64Converter); !stock {
			return false, nil
		}
		vals, release := pool.GetFloat64Slice(n)
		defer release()
		for i := 0; i < n; i++ {
			vals[i] = v.Index(i).Float()
		}
		scratch := pool.GetWriterBuffer()
		defer pool.PutWriterBuffer(scratch)
		scratch.ExtendOrGrow(wire.MaxFloat64SliceSize(n))
		size, ok := wire.WriteFloat64Slice(scratch.Bytes(), vals)
		if !ok {
			return false, errs.New(errs.KindInvalidCode, nil)
		}
		return true, w.WriteRaw(scratch.Slice(0, size))

	default:
		return false, nil
	}
}

func (c *enumerableConverter) Read(r *wire.Reader, ctx *Context) (reflect.Value, error) {
	if err := enterStructure(ctx); err != nil {
		return reflect.Value{}, err
	}
	defer ctx.ExitDepth()

	if code, err := r.PeekCode(); err == nil && code == 0xc0 {
		if err := r.ReadNil(); err != nil {
			return reflect.Value{}, err
		}
		return reflect.Zero(c.s.Type()), nil
	}

	m, err := r.ReadArrayHeader()
	if err != nil {
		return reflect.Value{}, err
	}

	switch c.s.Strategy() {
	case shape.ConstructMutableInsert:
		container := c.s.New(m)
		for i := 0; i < m; i++ {
			elem, err := c.elemConv.Read(r, ctx)
			if err != nil {
				return reflect.Value{}, errs.WrapErr(c.typeName, "", err)
			}
			container = c.s.Append(container, elem)
		}
		return container, nil

	case shape.ConstructParameterizedSequence:
		// Build must copy what it keeps; the accumulator goes back to the
		// pool as soon as the instance is constructed.
		elems, release := pool.GetReflectValueSlice(m)
		defer release()
		for i := 0; i < m; i++ {
			elem, err := c.elemConv.Read(r, ctx)
			if err != nil {
				return reflect.Value{}, errs.WrapErr(c.typeName, "", err)
			}
			elems = append(elems, elem)
		}
		return c.s.Build(elems)

	default:
		return reflect.Value{}, errs.New(errs.KindConfigurationError,
			fmt.Errorf("%s: enumerable shape has no construction strategy", c.typeName))
	}
}
