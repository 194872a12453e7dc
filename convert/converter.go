// Package convert implements the converter registry and shape visitor,
// the object/union/reference-preservation converters built on top of it,
// and the per-operation Context that threads depth budget, cancellation,
// and reference tracking through every Write/Read call.
//
// Converters are dispatched dynamically over reflect.Value because shapes
// (package shape) are an externally-supplied, runtime-introspectable
// description of a type, not a compile-time generic parameter, so the
// converter tree is keyed by shape identity rather than monomorphized per
// Go type at compile time.
package convert

import (
	"reflect"

	"github.com/arloliu/msgpax/wire"
)

// Converter is a pair of functions that write and read a particular shape
// against the wire.
type Converter interface {
	// Write encodes v (whose Kind matches the shape's Type()) to w.
	Write(w *wire.Writer, v reflect.Value, ctx *Context) error
	// Read decodes one value from r.
	Read(r *wire.Reader, ctx *Context) (reflect.Value, error)
}

// ConverterFuncs adapts two plain functions into a Converter, the common
// case for hand-registered custom converters (registry.go's
// RegisterConverter override).
type ConverterFuncs struct {
	WriteFunc func(w *wire.Writer, v reflect.Value, ctx *Context) error
	ReadFunc  func(r *wire.Reader, ctx *Context) (reflect.Value, error)
}

func (c ConverterFuncs) Write(w *wire.Writer, v reflect.Value, ctx *Context) error {
	return c.WriteFunc(w, v, ctx)
}

func (c ConverterFuncs) Read(r *wire.Reader, ctx *Context) (reflect.Value, error) {
	return c.ReadFunc(r, ctx)
}
