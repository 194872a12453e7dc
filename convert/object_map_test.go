package convert

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/msgpax/errs"
	"github.com/arloliu/msgpax/internal/shapetest"
	"github.com/arloliu/msgpax/wire"
)

type person struct {
	Name string
	Age  int64
}

func personShape() *shapetest.ObjectShape {
	return shapetest.Object(reflect.TypeOf(&person{}),
		shapetest.Prop{Name: "name", Field: "Name", Shape: stringShape()},
		shapetest.Prop{Name: "age", Field: "Age", Shape: int64Shape()},
	)
}

func TestMapObject_RoundTrip(t *testing.T) {
	conv := buildTestConverter(t, personShape())
	ctx := newTestContext(t)

	data := encodeValue(t, conv, &person{Name: "ada", Age: 36}, ctx)
	got := decodeValue(t, conv, data, newTestContext(t))
	require.Equal(t, &person{Name: "ada", Age: 36}, got)
}

func TestMapObject_WireLayout(t *testing.T) {
	conv := buildTestConverter(t, personShape())
	ctx := newTestContext(t)

	data := encodeValue(t, conv, &person{Name: "a", Age: 1}, ctx)
	want := []byte{
		0x82,
		0xa4, 'n', 'a', 'm', 'e', 0xa1, 'a',
		0xa3, 'a', 'g', 'e', 0x01,
	}
	require.Equal(t, want, data)
}

func TestMapObject_NamingPolicy(t *testing.T) {
	conv := buildTestConverter(t, personShape(), WithBuilderNamingPolicy(strings.ToUpper))
	ctx := newTestContext(t)

	data := encodeValue(t, conv, &person{Name: "a", Age: 1}, ctx)
	require.Contains(t, string(data), "NAME")
	require.NotContains(t, string(data), "name")

	got := decodeValue(t, conv, data, newTestContext(t))
	require.Equal(t, &person{Name: "a", Age: 1}, got)
}

func TestMapObject_UnknownMemberSkippedWithoutPacket(t *testing.T) {
	conv := buildTestConverter(t, personShape())

	// {"name":"a","age":1,"extra":[1,2]} — extra has nowhere to go.
	var buf bytes.Buffer
	w := wire.NewWriter(&buf, 0)
	defer w.Release()
	require.NoError(t, w.WriteMapHeader(3))
	require.NoError(t, w.WriteString("name"))
	require.NoError(t, w.WriteString("a"))
	require.NoError(t, w.WriteString("age"))
	require.NoError(t, w.WriteInt(1))
	require.NoError(t, w.WriteString("extra"))
	require.NoError(t, w.WriteArrayHeader(2))
	require.NoError(t, w.WriteInt(1))
	require.NoError(t, w.WriteInt(2))
	require.NoError(t, w.Flush())

	got := decodeValue(t, conv, buf.Bytes(), newTestContext(t))
	require.Equal(t, &person{Name: "a", Age: 1}, got)
}

// Forward compatibility: decode a wide payload through a narrow type with an
// unused-data packet, then re-serialize and recover the wide bytes.

type wideRecord struct {
	A int64
	B string
	C bool
	D float64
}

type narrowRecord struct {
	A     int64
	B     string
	Extra *UnusedData
}

func TestMapObject_ForwardCompatibility(t *testing.T) {
	wideShape := shapetest.Object(reflect.TypeOf(&wideRecord{}),
		shapetest.Prop{Name: "a", Field: "A", Shape: int64Shape()},
		shapetest.Prop{Name: "b", Field: "B", Shape: stringShape()},
		shapetest.Prop{Name: "c", Field: "C", Shape: boolShape()},
		shapetest.Prop{Name: "d", Field: "D", Shape: float64Shape()},
	)
	narrowShape := shapetest.Object(reflect.TypeOf(&narrowRecord{}),
		shapetest.Prop{Name: "a", Field: "A", Shape: int64Shape()},
		shapetest.Prop{Name: "b", Field: "B", Shape: stringShape()},
		shapetest.Prop{Name: "extra", Field: "Extra", Unused: true},
	)

	wideConv := buildTestConverter(t, wideShape)
	narrowConv := buildTestConverter(t, narrowShape)

	wideBytes := encodeValue(t, wideConv, &wideRecord{A: 7, B: "x", C: true, D: 2.5}, newTestContext(t))

	decoded := decodeValue(t, narrowConv, wideBytes, newTestContext(t))
	narrow, ok := decoded.(*narrowRecord)
	require.True(t, ok)
	require.Equal(t, int64(7), narrow.A)
	require.Equal(t, "x", narrow.B)
	require.NotNil(t, narrow.Extra)
	require.Equal(t, 2, narrow.Extra.Count())

	// Re-serializing from the narrow type preserves c and d byte-for-byte.
	reencoded := encodeValue(t, narrowConv, narrow, newTestContext(t))
	require.Equal(t, wideBytes, reencoded)
}

// Constructor binding, required-field tracking, and null rejection.

type account struct {
	ID    int64
	Owner string
}

func accountShape() *shapetest.ObjectShape {
	s := shapetest.Object(reflect.TypeOf(&account{}),
		shapetest.Prop{Name: "id", Field: "ID", Shape: int64Shape(), CtorParam: 0, IsCtorParam: true, Required: true},
		shapetest.Prop{Name: "owner", Field: "Owner", Shape: stringShape(), CtorParam: 1, IsCtorParam: true},
	)
	s.WithConstructor(2, func(args []reflect.Value) (reflect.Value, error) {
		a := &account{}
		if args[0].IsValid() {
			a.ID = args[0].Int()
		}
		if args[1].IsValid() {
			a.Owner = args[1].String()
		}
		return reflect.ValueOf(a), nil
	})
	return s
}

func TestMapObject_ConstructorRoundTrip(t *testing.T) {
	conv := buildTestConverter(t, accountShape())
	data := encodeValue(t, conv, &account{ID: 9, Owner: "kay"}, newTestContext(t))
	got := decodeValue(t, conv, data, newTestContext(t))
	require.Equal(t, &account{ID: 9, Owner: "kay"}, got)
}

func TestMapObject_MissingRequired(t *testing.T) {
	conv := buildTestConverter(t, accountShape())

	// {"owner":"kay"} — no id.
	var buf bytes.Buffer
	w := wire.NewWriter(&buf, 0)
	defer w.Release()
	require.NoError(t, w.WriteMapHeader(1))
	require.NoError(t, w.WriteString("owner"))
	require.NoError(t, w.WriteString("kay"))
	require.NoError(t, w.Flush())

	r := wire.NewReader(buf.Bytes())
	_, err := conv.Read(r, newTestContext(t))
	require.ErrorIs(t, err, errs.ErrMissingRequired)
}

func TestMapObject_AllowMissingRequired(t *testing.T) {
	conv := buildTestConverter(t, accountShape(), WithAllowMissingRequired(true))

	var buf bytes.Buffer
	w := wire.NewWriter(&buf, 0)
	defer w.Release()
	require.NoError(t, w.WriteMapHeader(0))
	require.NoError(t, w.Flush())

	got := decodeValue(t, conv, buf.Bytes(), newTestContext(t))
	require.Equal(t, &account{}, got)
}

func TestMapObject_DoublePropertyAssignment(t *testing.T) {
	conv := buildTestConverter(t, accountShape())

	// {"id":1,"id":2} — same constructor parameter assigned twice.
	var buf bytes.Buffer
	w := wire.NewWriter(&buf, 0)
	defer w.Release()
	require.NoError(t, w.WriteMapHeader(2))
	require.NoError(t, w.WriteString("id"))
	require.NoError(t, w.WriteInt(1))
	require.NoError(t, w.WriteString("id"))
	require.NoError(t, w.WriteInt(2))
	require.NoError(t, w.Flush())

	r := wire.NewReader(buf.Bytes())
	_, err := conv.Read(r, newTestContext(t))
	require.ErrorIs(t, err, errs.ErrDoublePropertyAssignment)
}

type docWithTags struct {
	Tags []string
}

func TestMapObject_NullRejection(t *testing.T) {
	tagsShape := shapetest.Slice(reflect.TypeOf([]string{}), stringShape())
	s := shapetest.Object(reflect.TypeOf(&docWithTags{}),
		shapetest.Prop{Name: "tags", Field: "Tags", Shape: tagsShape, CtorParam: 0, IsCtorParam: true},
	)
	s.WithConstructor(1, func(args []reflect.Value) (reflect.Value, error) {
		d := &docWithTags{}
		if args[0].IsValid() && !args[0].IsNil() {
			d.Tags = args[0].Interface().([]string)
		}
		return reflect.ValueOf(d), nil
	})
	conv := buildTestConverter(t, s)

	// {"tags": nil}
	var buf bytes.Buffer
	w := wire.NewWriter(&buf, 0)
	defer w.Release()
	require.NoError(t, w.WriteMapHeader(1))
	require.NoError(t, w.WriteString("tags"))
	require.NoError(t, w.WriteNil())
	require.NoError(t, w.Flush())

	r := wire.NewReader(buf.Bytes())
	_, err := conv.Read(r, newTestContext(t))
	require.ErrorIs(t, err, errs.ErrDisallowedNullValue)

	// The same payload passes once nulls are allowed for non-nullables.
	r = wire.NewReader(buf.Bytes())
	permissive := newTestContext(t, WithDeserializeDefaultValues(AllowNullForNonNullable))
	v, err := conv.Read(r, permissive)
	require.NoError(t, err)
	require.Equal(t, &docWithTags{}, v.Interface())
}

func TestMapObject_ErrorWrappedWithTypeAndProperty(t *testing.T) {
	conv := buildTestConverter(t, personShape())

	// {"age": "oops"} — wrong token type inside the age property.
	var buf bytes.Buffer
	w := wire.NewWriter(&buf, 0)
	defer w.Release()
	require.NoError(t, w.WriteMapHeader(1))
	require.NoError(t, w.WriteString("age"))
	require.NoError(t, w.WriteString("oops"))
	require.NoError(t, w.Flush())

	r := wire.NewReader(buf.Bytes())
	_, err := conv.Read(r, newTestContext(t))
	require.ErrorIs(t, err, errs.ErrTokenMismatch)
	require.Contains(t, err.Error(), "person")
	require.Contains(t, err.Error(), "age")
}

func TestBuildObject_MultipleUnusedDataProps(t *testing.T) {
	s := shapetest.Object(reflect.TypeOf(&narrowRecord{}),
		shapetest.Prop{Name: "extra", Field: "Extra", Unused: true},
		shapetest.Prop{Name: "extra2", Field: "Extra", Unused: true},
	)
	reg := NewRegistry()
	b := NewBuilder(reg)
	_, err := b.GetConverter(s, nil)
	require.ErrorIs(t, err, errs.ErrConfigurationError)
}

func TestMapObject_SerializeDefaultValues(t *testing.T) {
	conv := buildTestConverter(t, personShape())

	// With SerializeAlways, zero-valued properties still serialize, so both
	// keys appear in the map header; the empty flag set drops them, which is
	// covered by TestShouldSerializeProperty below.
	data := encodeValue(t, conv, &person{}, newTestContext(t, WithSerializeDefaultValues(SerializeAlways)))
	require.Equal(t, byte(0x82), data[0])
}

func TestShouldSerializeProperty(t *testing.T) {
	ctx := newTestContext(t)

	// Non-required zero string with no flags set: reference-type default is
	// dropped.
	dropped := shouldSerializeProperty(ctx, personShape().Properties()[0], reflect.ValueOf(""))
	require.False(t, dropped)

	kept := shouldSerializeProperty(ctx, personShape().Properties()[0], reflect.ValueOf("x"))
	require.True(t, kept)

	ctxRef := newTestContext(t, WithSerializeDefaultValues(SerializeReferenceTypes))
	require.True(t, shouldSerializeProperty(ctxRef, personShape().Properties()[0], reflect.ValueOf("")))

	ctxAlways := newTestContext(t, WithSerializeDefaultValues(SerializeAlways))
	require.True(t, shouldSerializeProperty(ctxAlways, personShape().Properties()[0], reflect.ValueOf("")))
}
