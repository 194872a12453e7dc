package convert

import (
	"fmt"
	"reflect"

	"github.com/arloliu/msgpax/errs"
	"github.com/arloliu/msgpax/internal/unionindex"
	"github.com/arloliu/msgpax/shape"
	"github.com/arloliu/msgpax/wire"
)

// enumConverter writes an enum as its ordinal integer by default, or as its
// member name when the SerializeEnumValuesByName context option is set. The
// read side accepts both forms regardless of the write-side option, so a
// stream produced under either policy decodes.
type enumConverter struct {
	typ      reflect.Type
	signed   bool
	byValue  map[int64]string
	byName   *unionindex.Table[int64]
}

func (b *Builder) buildEnum(s shape.EnumShape) (Converter, error) {
	switch s.Underlying() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return nil, configErr(fmt.Sprintf("%s: enum underlying kind %s is not an integer", s.Type(), s.Underlying()))
	}

	c := &enumConverter{
		typ:     s.Type(),
		signed:  isSignedKind(s.Underlying()),
		byValue: make(map[int64]string, len(s.Members())),
		byName:  unionindex.New[int64](),
	}
	for _, m := range s.Members() {
		if _, dup := c.byValue[m.Value]; dup {
			return nil, configErr(fmt.Sprintf("%s: duplicate enum value %d", s.Type(), m.Value))
		}
		c.byValue[m.Value] = m.Name
		if !c.byName.Add(m.Name, m.Value) {
			return nil, configErr(fmt.Sprintf("%s: duplicate enum member name %q", s.Type(), m.Name))
		}
	}
	return c, nil
}

func isSignedKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	default:
		return false
	}
}

func (c *enumConverter) ordinal(v reflect.Value) int64 {
	if c.signed {
		return v.Int()
	}
	return int64(v.Uint())
}

func (c *enumConverter) Write(w *wire.Writer, v reflect.Value, ctx *Context) error {
	ord := c.ordinal(v)
	if ctx.SerializeEnumValuesByName {
		name, ok := c.byValue[ord]
		if !ok {
			return errs.New(errs.KindConfigurationError, fmt.Errorf("%s: value %d has no named member", c.typ, ord))
		}
		return w.WriteString(name)
	}
	if c.signed {
		return w.WriteInt(ord)
	}
	return w.WriteUint(uint64(ord))
}

func (c *enumConverter) Read(r *wire.Reader, _ *Context) (reflect.Value, error) {
	code, err := r.PeekCode()
	if err != nil {
		return reflect.Value{}, err
	}

	var ord int64
	if isStrCode(code) {
		byteLen, err := r.ReadStringHeader()
		if err != nil {
			return reflect.Value{}, err
		}
		name, err := r.ReadRaw(byteLen)
		if err != nil {
			return reflect.Value{}, err
		}
		v, ok := c.byName.Lookup(name)
		if !ok {
			return reflect.Value{}, errs.New(errs.KindInvalidCode, fmt.Errorf("%s: unknown enum member %q", c.typ, name))
		}
		ord = v
	} else {
		ord, err = r.ReadInt()
		if err != nil {
			return reflect.Value{}, err
		}
	}

	out := reflect.New(c.typ).Elem()
	if c.signed {
		if out.OverflowInt(ord) {
			return reflect.Value{}, errs.New(errs.KindOverflow, fmt.Errorf("%d does not fit %s", ord, c.typ))
		}
		out.SetInt(ord)
	} else {
		if ord < 0 || out.OverflowUint(uint64(ord)) {
			return reflect.Value{}, errs.New(errs.KindOverflow, fmt.Errorf("%d does not fit %s", ord, c.typ))
		}
		out.SetUint(uint64(ord))
	}
	return out, nil
}

// isStrCode reports whether code opens a fixstr/str8/16/32 token.
func isStrCode(code byte) bool {
	return (code >= 0xa0 && code <= 0xbf) || (code >= 0xd9 && code <= 0xdb)
}
