package convert

import (
	"fmt"
	"math"
	"reflect"
	"sync"
	"time"

	"github.com/arloliu/msgpax/errs"
	"github.com/arloliu/msgpax/shape"
	"github.com/arloliu/msgpax/wire"
)

var (
	byteSliceType = reflect.TypeOf([]byte(nil))
	timeType      = reflect.TypeOf(time.Time{})
)

// buildOpaque constructs the converter for a KindOpaque shape: a type the
// shape layer describes no further, so the wire representation follows
// directly from its Go kind (bool, integer, float, string, []byte,
// time.Time).
func buildOpaque(s shape.Shape, intern bool) (Converter, error) {
	typ := s.Type()

	if typ == byteSliceType {
		return binConverter{typ: typ}, nil
	}
	if typ == timeType {
		return timestampConverter{}, nil
	}

	switch typ.Kind() {
	case reflect.Bool:
		return boolConverter{typ: typ}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intConverter{typ: typ}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return uintConverter{typ: typ}, nil
	case reflect.Float32:
		return float32Converter{typ: typ}, nil
	case reflect.Float64:
		return float64Converter{typ: typ}, nil
	case reflect.String:
		sc := &stringConverter{typ: typ}
		if intern {
			sc.interner = &stringInterner{}
		}
		return sc, nil
	default:
		return nil, configErr(fmt.Sprintf("no opaque converter for Go kind %s (type %s)", typ.Kind(), typ))
	}
}

type boolConverter struct{ typ reflect.Type }

func (c boolConverter) Write(w *wire.Writer, v reflect.Value, _ *Context) error {
	return w.WriteBool(v.Bool())
}

func (c boolConverter) Read(r *wire.Reader, _ *Context) (reflect.Value, error) {
	b, err := r.ReadBool()
	if err != nil {
		return reflect.Value{}, err
	}
	out := reflect.New(c.typ).Elem()
	out.SetBool(b)
	return out, nil
}

type intConverter struct{ typ reflect.Type }

func (c intConverter) Write(w *wire.Writer, v reflect.Value, _ *Context) error {
	return w.WriteInt(v.Int())
}

func (c intConverter) Read(r *wire.Reader, _ *Context) (reflect.Value, error) {
	v, err := r.ReadInt()
	if err != nil {
		return reflect.Value{}, err
	}
	out := reflect.New(c.typ).Elem()
	if out.OverflowInt(v) {
		return reflect.Value{}, errs.New(errs.KindOverflow, fmt.Errorf("%d does not fit %s", v, c.typ))
	}
	out.SetInt(v)
	return out, nil
}

type uintConverter struct{ typ reflect.Type }

func (c uintConverter) Write(w *wire.Writer, v reflect.Value, _ *Context) error {
	return w.WriteUint(v.Uint())
}

func (c uintConverter) Read(r *wire.Reader, _ *Context) (reflect.Value, error) {
	v, err := r.ReadUint()
	if err != nil {
		return reflect.Value{}, err
	}
	out := reflect.New(c.typ).Elem()
	if out.OverflowUint(v) {
		return reflect.Value{}, errs.New(errs.KindOverflow, fmt.Errorf("%d does not fit %s", v, c.typ))
	}
	out.SetUint(v)
	return out, nil
}

type float32Converter struct{ typ reflect.Type }

func (c float32Converter) Write(w *wire.Writer, v reflect.Value, _ *Context) error {
	return w.WriteFloat32(float32(v.Float()))
}

func (c float32Converter) Read(r *wire.Reader, _ *Context) (reflect.Value, error) {
	v, err := r.ReadFloat32()
	if err != nil {
		return reflect.Value{}, err
	}
	out := reflect.New(c.typ).Elem()
	out.SetFloat(float64(v))
	return out, nil
}

type float64Converter struct{ typ reflect.Type }

func (c float64Converter) Write(w *wire.Writer, v reflect.Value, _ *Context) error {
	return w.WriteFloat64(v.Float())
}

func (c float64Converter) Read(r *wire.Reader, _ *Context) (reflect.Value, error) {
	v, err := r.ReadFloat64()
	if err != nil {
		// A float32 token read into a float64 target widens losslessly, the
		// one cross-width float acceptance msgpack decoders conventionally
		// allow. A failed ReadFloat64 leaves the cursor in place.
		f32, err32 := r.ReadFloat32()
		if err32 != nil {
			return reflect.Value{}, err
		}
		v = float64(f32)
	}
	out := reflect.New(c.typ).Elem()
	out.SetFloat(v)
	return out, nil
}

// stringInterner deduplicates decoded strings so a payload repeating the
// same keys many times (the common telemetry/log shape) shares one backing
// allocation per distinct value. Shared across operations, guarded for
// concurrent decoders.
type stringInterner struct {
	mu sync.Mutex
	m  map[string]string
}

func (si *stringInterner) intern(s string) string {
	si.mu.Lock()
	defer si.mu.Unlock()
	if canonical, ok := si.m[s]; ok {
		return canonical
	}
	if si.m == nil {
		si.m = make(map[string]string)
	}
	si.m[s] = s
	return s
}

type stringConverter struct {
	typ      reflect.Type
	interner *stringInterner
}

func (c *stringConverter) Write(w *wire.Writer, v reflect.Value, _ *Context) error {
	return w.WriteString(v.String())
}

func (c *stringConverter) Read(r *wire.Reader, ctx *Context) (reflect.Value, error) {
	s, err := r.ReadString()
	if err != nil {
		return reflect.Value{}, err
	}
	if c.interner != nil || ctx.InternStrings {
		in := c.interner
		if in == nil {
			in = sharedInterner
		}
		s = in.intern(s)
	}
	out := reflect.New(c.typ).Elem()
	out.SetString(s)
	return out, nil
}

// sharedInterner backs the per-operation InternStrings context flag for
// converters that were built without the builder-level interning option.
var sharedInterner = &stringInterner{}

type binConverter struct{ typ reflect.Type }

func (c binConverter) Write(w *wire.Writer, v reflect.Value, _ *Context) error {
	if v.IsNil() {
		return w.WriteNil()
	}
	return w.WriteBin(v.Bytes())
}

func (c binConverter) Read(r *wire.Reader, _ *Context) (reflect.Value, error) {
	if code, err := r.PeekCode(); err == nil && code == 0xc0 {
		if err := r.ReadNil(); err != nil {
			return reflect.Value{}, err
		}
		return reflect.Zero(c.typ), nil
	}
	data, err := r.ReadBin()
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(data).Convert(c.typ), nil
}

type timestampConverter struct{}

func (c timestampConverter) Write(w *wire.Writer, v reflect.Value, _ *Context) error {
	t, _ := v.Interface().(time.Time)
	sec := t.Unix()
	nsec := t.Nanosecond()
	if nsec < 0 || nsec > math.MaxInt32 {
		return errs.New(errs.KindInvalidCode, fmt.Errorf("timestamp nanoseconds out of range"))
	}
	return w.WriteTimestamp(sec, uint32(nsec))
}

func (c timestampConverter) Read(r *wire.Reader, _ *Context) (reflect.Value, error) {
	sec, nsec, err := r.ReadTimestamp()
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(time.Unix(sec, int64(nsec)).UTC()), nil
}
