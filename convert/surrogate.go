package convert

import (
	"fmt"
	"reflect"

	"github.com/arloliu/msgpax/shape"
	"github.com/arloliu/msgpax/wire"
)

// surrogateConverter re-routes serialization of a type through a proxy
// shape: values are converted forward before writing and back after reading,
// so the wire only ever sees the surrogate's representation.
type surrogateConverter struct {
	s         shape.SurrogateShape
	innerConv Converter
}

func (b *Builder) buildSurrogate(s shape.SurrogateShape) (Converter, error) {
	inner, err := b.GetConverter(s.SurrogateOf(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s surrogate: %w", s.Type(), err)
	}
	return &surrogateConverter{s: s, innerConv: inner}, nil
}

func (c *surrogateConverter) Write(w *wire.Writer, v reflect.Value, ctx *Context) error {
	proxy, err := c.s.ToSurrogate(v)
	if err != nil {
		return err
	}
	return c.innerConv.Write(w, proxy, ctx)
}

func (c *surrogateConverter) Read(r *wire.Reader, ctx *Context) (reflect.Value, error) {
	proxy, err := c.innerConv.Read(r, ctx)
	if err != nil {
		return reflect.Value{}, err
	}
	return c.s.FromSurrogate(proxy)
}
