package convert

import (
	"fmt"
	"reflect"

	"github.com/arloliu/msgpax/shape"
	"github.com/arloliu/msgpax/wire"
)

// optionalConverter encodes the "some" side through the element converter
// and the "none" side as the nil token.
type optionalConverter struct {
	s        shape.OptionalShape
	elemConv Converter
}

func (b *Builder) buildOptional(s shape.OptionalShape) (Converter, error) {
	elemConv, err := b.GetConverter(s.ElementShape(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s element: %w", s.Type(), err)
	}
	return &optionalConverter{s: s, elemConv: elemConv}, nil
}

func (c *optionalConverter) Write(w *wire.Writer, v reflect.Value, ctx *Context) error {
	elem, ok := c.s.Deconstruct(v)
	if !ok {
		return w.WriteNil()
	}
	return c.elemConv.Write(w, elem, ctx)
}

func (c *optionalConverter) Read(r *wire.Reader, ctx *Context) (reflect.Value, error) {
	if code, err := r.PeekCode(); err == nil && code == 0xc0 {
		if err := r.ReadNil(); err != nil {
			return reflect.Value{}, err
		}
		return c.s.None(), nil
	}
	elem, err := c.elemConv.Read(r, ctx)
	if err != nil {
		return reflect.Value{}, err
	}
	return c.s.Some(elem), nil
}
