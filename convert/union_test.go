package convert

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/msgpax/errs"
	"github.com/arloliu/msgpax/internal/shapetest"
	"github.com/arloliu/msgpax/shape"
	"github.com/arloliu/msgpax/wire"
)

type animal struct {
	Kind string
}

type cat struct {
	Lives int64
}

type dog struct {
	GoodBoy bool
}

type testUnionShape struct {
	base  shape.Shape
	cases []shape.UnionCase
}

func (u *testUnionShape) Kind() shape.Kind         { return shape.KindUnion }
func (u *testUnionShape) Type() reflect.Type       { return u.base.Type() }
func (u *testUnionShape) Identity() any            { return u }
func (u *testUnionShape) BaseShape() shape.Shape   { return u.base }
func (u *testUnionShape) Cases() []shape.UnionCase { return u.cases }

func animalUnion() *testUnionShape {
	baseShape := shapetest.Object(reflect.TypeOf(&animal{}),
		shapetest.Prop{Name: "kind", Field: "Kind", Shape: stringShape()},
	)
	catShape := shapetest.Object(reflect.TypeOf(&cat{}),
		shapetest.Prop{Name: "lives", Field: "Lives", Shape: int64Shape()},
	)
	dogShape := shapetest.Object(reflect.TypeOf(&dog{}),
		shapetest.Prop{Name: "goodBoy", Field: "GoodBoy", Shape: boolShape()},
	)
	return &testUnionShape{
		base: baseShape,
		cases: []shape.UnionCase{
			{Shape: catShape, IntAlias: 1, HasIntAlias: true},
			{Shape: dogShape, StringAlias: "dog"},
		},
	}
}

func TestUnion_IntAliasRoundTrip(t *testing.T) {
	conv := buildTestConverter(t, animalUnion())

	data := encodeValue(t, conv, &cat{Lives: 9}, newTestContext(t))

	// [1, {"lives":9}]
	require.Equal(t, byte(0x92), data[0])
	require.Equal(t, byte(0x01), data[1])

	got := decodeValue(t, conv, data, newTestContext(t))
	require.Equal(t, &cat{Lives: 9}, got)
}

func TestUnion_StringAliasRoundTrip(t *testing.T) {
	conv := buildTestConverter(t, animalUnion())

	data := encodeValue(t, conv, &dog{GoodBoy: true}, newTestContext(t))
	require.Equal(t, byte(0x92), data[0])
	require.Equal(t, []byte{0xa3, 'd', 'o', 'g'}, data[1:5])

	got := decodeValue(t, conv, data, newTestContext(t))
	require.Equal(t, &dog{GoodBoy: true}, got)
}

func TestUnion_BaseTypeBypassesEnvelope(t *testing.T) {
	conv := buildTestConverter(t, animalUnion())

	data := encodeValue(t, conv, &animal{Kind: "generic"}, newTestContext(t))

	// A plain map, no [alias, value] wrapper.
	require.Equal(t, byte(0x81), data[0])
}

func TestUnion_UnknownAlias(t *testing.T) {
	conv := buildTestConverter(t, animalUnion())

	var buf bytes.Buffer
	w := wire.NewWriter(&buf, 0)
	defer w.Release()
	require.NoError(t, w.WriteArrayHeader(2))
	require.NoError(t, w.WriteInt(99))
	require.NoError(t, w.WriteNil())
	require.NoError(t, w.Flush())

	r := wire.NewReader(buf.Bytes())
	_, err := conv.Read(r, newTestContext(t))
	require.ErrorIs(t, err, errs.ErrUnknownUnionAlias)
}

func TestUnion_UnregisteredRuntimeType(t *testing.T) {
	conv := buildTestConverter(t, animalUnion())

	var buf bytes.Buffer
	w := wire.NewWriter(&buf, 0)
	defer w.Release()
	ctx := newTestContext(t)
	err := conv.Write(w, reflect.ValueOf(&sample{}), ctx)
	require.ErrorIs(t, err, errs.ErrUnknownUnionAlias)
}

func TestUnion_WrongEnvelopeLength(t *testing.T) {
	conv := buildTestConverter(t, animalUnion())

	r := wire.NewReader([]byte{0x93, 0x01, 0xc0, 0xc0})
	_, err := conv.Read(r, newTestContext(t))
	require.ErrorIs(t, err, errs.ErrTokenMismatch)
}

func TestUnion_DuplicateIntAlias(t *testing.T) {
	u := animalUnion()
	u.cases[1] = shape.UnionCase{Shape: u.cases[1].Shape, IntAlias: 1, HasIntAlias: true}

	reg := NewRegistry()
	b := NewBuilder(reg)
	_, err := b.GetConverter(u, nil)
	require.ErrorIs(t, err, errs.ErrConfigurationError)
}

func TestUnion_DuplicateType(t *testing.T) {
	u := animalUnion()
	u.cases = append(u.cases, shape.UnionCase{Shape: u.cases[0].Shape, IntAlias: 7, HasIntAlias: true})

	reg := NewRegistry()
	b := NewBuilder(reg)
	_, err := b.GetConverter(u, nil)
	require.ErrorIs(t, err, errs.ErrConfigurationError)
}

// Most-derived-first dispatch, exercised through interface case types: a
// runtime value implementing both a narrow and a wide interface must select
// the wide (more derived) one even when it was registered last.

type walker interface{ Walk() }

type swimmer interface {
	Walk()
	Swim()
}

type amphibian struct{ Name string }

func (a *amphibian) Walk() {}
func (a *amphibian) Swim() {}

func TestUnion_MostDerivedFirst(t *testing.T) {
	walkerType := reflect.TypeOf((*walker)(nil)).Elem()
	swimmerType := reflect.TypeOf((*swimmer)(nil)).Elem()

	require.True(t, moreDerived(swimmerType, walkerType))
	require.False(t, moreDerived(walkerType, swimmerType))

	reg := NewRegistry()
	b := NewBuilder(reg)

	// Hand-registered converters stand in for the interface case types the
	// shape builder can't derive on its own.
	marker := func(name string) Converter {
		return ConverterFuncs{
			WriteFunc: func(w *wire.Writer, _ reflect.Value, _ *Context) error {
				return w.WriteString(name)
			},
			ReadFunc: func(r *wire.Reader, _ *Context) (reflect.Value, error) {
				s, err := r.ReadString()
				return reflect.ValueOf(s), err
			},
		}
	}
	reg.RegisterConverter(walkerType, marker("walker"))
	reg.RegisterConverter(swimmerType, marker("swimmer"))

	u := &testUnionShape{
		base: shapetest.Object(reflect.TypeOf(&animal{}),
			shapetest.Prop{Name: "kind", Field: "Kind", Shape: stringShape()},
		),
		cases: []shape.UnionCase{
			// Registered least-derived first on purpose.
			{Shape: shapetest.Opaque(walkerType), IntAlias: 1, HasIntAlias: true},
			{Shape: shapetest.Opaque(swimmerType), IntAlias: 2, HasIntAlias: true},
		},
	}

	conv, err := b.GetConverter(u, nil)
	require.NoError(t, err)

	data := encodeValue(t, conv, &amphibian{Name: "newt"}, newTestContext(t))

	// [2, "swimmer"]: the swimmer case won despite walker matching too.
	require.Equal(t, byte(0x92), data[0])
	require.Equal(t, byte(0x02), data[1])
	require.Equal(t, []byte{0xa7}, data[2:3])
	require.Equal(t, "swimmer", string(data[3:10]))
}
