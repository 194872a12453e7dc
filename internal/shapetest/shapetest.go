// Package shapetest provides small reflection-backed shape.Shape
// implementations for tests. Production shapes come from an external shape
// provider; these exist only so package tests can exercise the converter
// registry without one.
package shapetest

import (
	"reflect"

	"github.com/arloliu/msgpax/shape"
)

// Opaque returns a shape of KindOpaque for typ.
func Opaque(typ reflect.Type) shape.Shape {
	return &opaqueShape{typ: typ}
}

type opaqueShape struct{ typ reflect.Type }

func (s *opaqueShape) Kind() shape.Kind   { return shape.KindOpaque }
func (s *opaqueShape) Type() reflect.Type { return s.typ }
func (s *opaqueShape) Identity() any      { return s }

// Prop declares one property of an Object shape, backed by the named struct
// field. HasIndex/IsCtorParam gate the index fields so a zero-valued Prop
// means "no explicit key index, no constructor binding".
type Prop struct {
	Name  string
	Field string
	Shape shape.Shape

	KeyIndex int
	HasIndex bool

	CtorParam   int
	IsCtorParam bool

	Required bool
	Unused   bool
	// NoSetter drops the setter, making the property write-only on the wire
	// (serialized but never assigned back).
	NoSetter bool
}

// ObjectShape is the mutable test implementation of shape.ObjectShape. Its
// Go type is always a pointer-to-struct so decoded objects carry reference
// identity. Props may be appended after construction (AddProp) to build
// cyclic shape graphs.
type ObjectShape struct {
	ptrType   reflect.Type
	props     []shape.Property
	ctor      shape.Constructor
	hasCtor   bool
	arrayMode bool
}

// Object builds an ObjectShape for ptrType (a pointer-to-struct type) from
// the given property declarations.
func Object(ptrType reflect.Type, props ...Prop) *ObjectShape {
	s := &ObjectShape{ptrType: ptrType}
	for _, p := range props {
		s.AddProp(p)
	}
	return s
}

// AddProp appends a property after construction, for cyclic shapes.
func (s *ObjectShape) AddProp(p Prop) *ObjectShape {
	field := p.Field
	if field == "" {
		field = p.Name
	}
	keyIndex := -1
	if p.HasIndex {
		keyIndex = p.KeyIndex
	}
	ctorParam := -1
	if p.IsCtorParam {
		ctorParam = p.CtorParam
	}
	prop := shape.Property{
		Name:                  p.Name,
		ValueShape:            p.Shape,
		HasGetter:             true,
		HasSetter:             !p.NoSetter,
		KeyIndex:              keyIndex,
		ConstructorParamIndex: ctorParam,
		Required:              p.Required,
		IsUnusedDataPacket:    p.Unused,
		Get: func(obj reflect.Value) reflect.Value {
			return obj.Elem().FieldByName(field)
		},
		Set: func(obj reflect.Value, val reflect.Value) {
			obj.Elem().FieldByName(field).Set(val)
		},
	}
	s.props = append(s.props, prop)
	return s
}

// WithConstructor attaches a parameterized constructor.
func (s *ObjectShape) WithConstructor(paramCount int, invoke func(args []reflect.Value) (reflect.Value, error)) *ObjectShape {
	s.ctor = shape.Constructor{ParamCount: paramCount, Invoke: invoke}
	s.hasCtor = true
	return s
}

// AsArray marks the object for array-mode encoding.
func (s *ObjectShape) AsArray() *ObjectShape {
	s.arrayMode = true
	return s
}

func (s *ObjectShape) Kind() shape.Kind              { return shape.KindObject }
func (s *ObjectShape) Type() reflect.Type            { return s.ptrType }
func (s *ObjectShape) Identity() any                 { return s }
func (s *ObjectShape) Properties() []shape.Property  { return s.props }
func (s *ObjectShape) ArrayMode() bool               { return s.arrayMode }
func (s *ObjectShape) New() reflect.Value            { return reflect.New(s.ptrType.Elem()) }
func (s *ObjectShape) Constructor() (shape.Constructor, bool) {
	return s.ctor, s.hasCtor
}

// Slice returns a SliceShape over sliceType with the given element shape,
// using the mutable-insert construction strategy. Pass a nil elem and call
// SetElement afterward to describe a self-referential slice type.
func Slice(sliceType reflect.Type, elem shape.Shape) *SliceShape {
	return &SliceShape{typ: sliceType, elem: elem}
}

// SliceShape is the test implementation of shape.EnumerableShape.
type SliceShape struct {
	typ  reflect.Type
	elem shape.Shape
}

// SetElement fills in the element shape after construction, for cyclic
// shape graphs.
func (s *SliceShape) SetElement(elem shape.Shape) { s.elem = elem }

func (s *SliceShape) Kind() shape.Kind                  { return shape.KindEnumerable }
func (s *SliceShape) Type() reflect.Type                { return s.typ }
func (s *SliceShape) Identity() any                     { return s }
func (s *SliceShape) ElementShape() shape.Shape         { return s.elem }
func (s *SliceShape) Rank() int                         { return 1 }
func (s *SliceShape) Strategy() shape.ConstructStrategy { return shape.ConstructMutableInsert }

func (s *SliceShape) Iterate(v reflect.Value) func(yield func(reflect.Value) bool) {
	return func(yield func(reflect.Value) bool) {
		for i := 0; i < v.Len(); i++ {
			if !yield(v.Index(i)) {
				return
			}
		}
	}
}

func (s *SliceShape) New(sizeHint int) reflect.Value {
	return reflect.MakeSlice(s.typ, 0, sizeHint)
}

func (s *SliceShape) Append(container reflect.Value, elem reflect.Value) reflect.Value {
	return reflect.Append(container, elem)
}

func (s *SliceShape) Build(elems []reflect.Value) (reflect.Value, error) {
	out := reflect.MakeSlice(s.typ, 0, len(elems))
	return reflect.Append(out, elems...), nil
}

// Map returns a DictionaryShape over mapType with mutable-insert
// construction.
func Map(mapType reflect.Type, key, value shape.Shape) shape.DictionaryShape {
	return &mapShape{typ: mapType, key: key, value: value}
}

type mapShape struct {
	typ        reflect.Type
	key, value shape.Shape
}

func (s *mapShape) Kind() shape.Kind                  { return shape.KindDictionary }
func (s *mapShape) Type() reflect.Type                { return s.typ }
func (s *mapShape) Identity() any                     { return s }
func (s *mapShape) KeyShape() shape.Shape             { return s.key }
func (s *mapShape) ValueShape() shape.Shape           { return s.value }
func (s *mapShape) Strategy() shape.ConstructStrategy { return shape.ConstructMutableInsert }

func (s *mapShape) Iterate(v reflect.Value) func(yield func(shape.KVPair) bool) {
	return func(yield func(shape.KVPair) bool) {
		iter := v.MapRange()
		for iter.Next() {
			if !yield(shape.KVPair{Key: iter.Key(), Value: iter.Value()}) {
				return
			}
		}
	}
}

func (s *mapShape) New(sizeHint int) reflect.Value {
	return reflect.MakeMapWithSize(s.typ, sizeHint)
}

func (s *mapShape) Insert(container reflect.Value, pair shape.KVPair) {
	container.SetMapIndex(pair.Key, pair.Value)
}

func (s *mapShape) Build(pairs []shape.KVPair) (reflect.Value, error) {
	out := reflect.MakeMapWithSize(s.typ, len(pairs))
	for _, p := range pairs {
		out.SetMapIndex(p.Key, p.Value)
	}
	return out, nil
}

// Pointer returns an OptionalShape treating a nil pointer as none and a
// non-nil pointer as some(elem).
func Pointer(ptrType reflect.Type, elem shape.Shape) shape.OptionalShape {
	return &pointerShape{typ: ptrType, elem: elem}
}

type pointerShape struct {
	typ  reflect.Type
	elem shape.Shape
}

func (s *pointerShape) Kind() shape.Kind          { return shape.KindOptional }
func (s *pointerShape) Type() reflect.Type        { return s.typ }
func (s *pointerShape) Identity() any             { return s }
func (s *pointerShape) ElementShape() shape.Shape { return s.elem }
func (s *pointerShape) None() reflect.Value       { return reflect.Zero(s.typ) }

func (s *pointerShape) Some(v reflect.Value) reflect.Value {
	// The element shape may itself describe a pointer value (object shapes
	// do); only wrap when the decoded element isn't already the pointer.
	if v.Type() == s.typ {
		return v
	}
	p := reflect.New(s.typ.Elem())
	p.Elem().Set(v)
	return p
}

func (s *pointerShape) Deconstruct(v reflect.Value) (reflect.Value, bool) {
	if !v.IsValid() || v.IsNil() {
		return reflect.Value{}, false
	}
	if s.elem.Type() == s.typ {
		return v, true
	}
	return v.Elem(), true
}

// Enum returns an EnumShape for typ with the given members.
func Enum(typ reflect.Type, members ...shape.EnumMember) shape.EnumShape {
	return &enumShape{typ: typ, members: members}
}

type enumShape struct {
	typ     reflect.Type
	members []shape.EnumMember
}

func (s *enumShape) Kind() shape.Kind            { return shape.KindEnum }
func (s *enumShape) Type() reflect.Type          { return s.typ }
func (s *enumShape) Identity() any               { return s }
func (s *enumShape) Underlying() reflect.Kind    { return s.typ.Kind() }
func (s *enumShape) Members() []shape.EnumMember { return s.members }

// Surrogate re-routes serialization of typ through inner, with explicit
// forward/back conversion functions.
func Surrogate(typ reflect.Type, inner shape.Shape,
	to func(reflect.Value) (reflect.Value, error),
	from func(reflect.Value) (reflect.Value, error),
) shape.SurrogateShape {
	return &surrogateShape{typ: typ, inner: inner, to: to, from: from}
}

type surrogateShape struct {
	typ      reflect.Type
	inner    shape.Shape
	to, from func(reflect.Value) (reflect.Value, error)
}

func (s *surrogateShape) Kind() shape.Kind         { return shape.KindSurrogate }
func (s *surrogateShape) Type() reflect.Type       { return s.typ }
func (s *surrogateShape) Identity() any            { return s }
func (s *surrogateShape) SurrogateOf() shape.Shape { return s.inner }

func (s *surrogateShape) ToSurrogate(v reflect.Value) (reflect.Value, error) {
	return s.to(v)
}

func (s *surrogateShape) FromSurrogate(v reflect.Value) (reflect.Value, error) {
	return s.from(v)
}
