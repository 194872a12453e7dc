package convert

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/msgpax/internal/shapetest"
	"github.com/arloliu/msgpax/shape"
	"github.com/arloliu/msgpax/wire"
)

// Shared test plumbing: build a converter from a shape, encode a value to
// bytes, decode bytes back to a value.

func newTestContext(t *testing.T, opts ...ContextOption) *Context {
	t.Helper()
	ctx, err := NewContext(opts...)
	require.NoError(t, err)
	return ctx
}

func buildTestConverter(t *testing.T, s shape.Shape, opts ...BuilderOption) Converter {
	t.Helper()
	reg := NewRegistry()
	b := NewBuilder(reg, opts...)
	conv, err := b.GetConverter(s, nil)
	require.NoError(t, err)
	return conv
}

func encodeValue(t *testing.T, conv Converter, v any, ctx *Context) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := wire.NewWriter(&buf, 0)
	defer w.Release()
	require.NoError(t, conv.Write(w, reflect.ValueOf(v), ctx))
	require.NoError(t, w.Flush())
	return append([]byte(nil), buf.Bytes()...)
}

func encodeErr(t *testing.T, conv Converter, v any, ctx *Context) error {
	t.Helper()
	var buf bytes.Buffer
	w := wire.NewWriter(&buf, 0)
	defer w.Release()
	if err := conv.Write(w, reflect.ValueOf(v), ctx); err != nil {
		return err
	}
	return w.Flush()
}

func decodeValue(t *testing.T, conv Converter, data []byte, ctx *Context) any {
	t.Helper()
	r := wire.NewReader(data)
	v, err := conv.Read(r, ctx)
	require.NoError(t, err)
	return v.Interface()
}

func int64Shape() shape.Shape   { return shapetest.Opaque(reflect.TypeOf(int64(0))) }
func stringShape() shape.Shape  { return shapetest.Opaque(reflect.TypeOf("")) }
func boolShape() shape.Shape    { return shapetest.Opaque(reflect.TypeOf(false)) }
func float64Shape() shape.Shape { return shapetest.Opaque(reflect.TypeOf(float64(0))) }
