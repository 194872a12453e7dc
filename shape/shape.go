// Package shape defines the abstract, externally-supplied description of a
// Go type that the converter registry builds codecs from. msgpax never
// produces shapes itself: the shape provider that derives a Shape from a
// concrete Go type (struct tags, reflection, code generation) is an
// external collaborator, and msgpax only consumes the capability
// interfaces below.
//
// Modeled as a tagged-variant discriminated union (Kind) plus one small
// capability interface per variant, not as a base-class hierarchy: the
// registry's shape visitor (convert.Build) is a switch on Kind dispatching
// to a per-kind builder, matching the "capability variants, not
// inheritance" design note.
package shape

import "reflect"

// Kind discriminates the variant a Shape implements.
type Kind uint8

const (
	KindOpaque Kind = iota
	KindObject
	KindEnum
	KindDictionary
	KindEnumerable
	KindOptional
	KindUnion
	KindSurrogate
)

func (k Kind) String() string {
	switch k {
	case KindOpaque:
		return "Opaque"
	case KindObject:
		return "Object"
	case KindEnum:
		return "Enum"
	case KindDictionary:
		return "Dictionary"
	case KindEnumerable:
		return "Enumerable"
	case KindOptional:
		return "Optional"
	case KindUnion:
		return "Union"
	case KindSurrogate:
		return "Surrogate"
	default:
		return "Unknown"
	}
}

// Shape is the common capability every variant exposes: its Kind (for the
// visitor's dispatch switch), the reflect.Type it describes (used as the
// default registry memoization key), and an explicit Identity used instead
// of Type when two distinct Shape values intentionally describe the same
// Go type differently (e.g. two surrogate routings of the same wire type).
type Shape interface {
	Kind() Kind
	Type() reflect.Type
	// Identity is a value comparable with ==, unique per logically-distinct
	// shape, used as the registry memo key together with MemberInfluence.
	Identity() any
}

// MemberInfluence captures anything that alters how a collection shape
// picks a comparer or otherwise changes the converter built for an
// otherwise-identical shape — e.g. a case-insensitive dictionary key
// comparer. Two lookups for the same Shape.Identity() but different
// MemberInfluence get distinct converters.
type MemberInfluence any

// Property describes one member of an ObjectShape.
type Property struct {
	Name       string
	ValueShape Shape
	HasGetter  bool
	HasSetter  bool
	// Get reads the property's current value off obj (the object's New()
	// result, or a value reconstructed by a parameterized constructor).
	// Only called when HasGetter is true.
	Get func(obj reflect.Value) reflect.Value
	// Set writes val into the property on obj. Only called when HasSetter
	// is true; properties bound to a constructor parameter instead flow
	// through Constructor.Invoke's argument slice and never call Set.
	Set func(obj reflect.Value, val reflect.Value)
	// KeyIndex, when >= 0, is the declared array-mode index for this
	// property (populated from an explicit integer "key attribute").
	KeyIndex int
	// ConstructorParamIndex, when >= 0, is the index of the constructor
	// parameter this property binds to.
	ConstructorParamIndex int
	// Required marks a constructor parameter with no default; absent
	// required parameters fail the decode unless the allow-missing policy
	// is enabled.
	Required bool
	// IsUnusedDataPacket marks the single reserved property (at most one
	// per object) that sinks/sources unrecognized members.
	IsUnusedDataPacket bool
}

// Constructor describes an object shape's (at most one) parameterized
// constructor.
type Constructor struct {
	ParamCount int
	// Invoke builds a value given one positional argument per
	// ParamCount, in declaration order. Unset (not-required) arguments
	// are passed as the zero reflect.Value.
	Invoke func(args []reflect.Value) (reflect.Value, error)
}

// ObjectShape is a struct-like type: an ordered list of properties, at most
// one constructor, and an optional unused-data sink property index.
type ObjectShape interface {
	Shape
	Properties() []Property
	Constructor() (Constructor, bool)
	// ArrayMode reports whether the registry should encode this object as
	// an array (true) or a map (false) absent any per-property override —
	// see convert.Build's dispatch rule for the full precedence.
	ArrayMode() bool
	// New allocates a zero value of this shape's Go type (used by the
	// map-mode reader before constructor invocation, or directly for
	// shapes without a parameterized constructor).
	New() reflect.Value
}

// EnumMember is one named value of an enum shape.
type EnumMember struct {
	Name  string
	Value int64
}

// EnumShape exposes an enum's underlying integer type and its name/value
// members.
type EnumShape interface {
	Shape
	Underlying() reflect.Kind // one of reflect.Int8..Int64, Uint8..Uint64
	Members() []EnumMember
}

// KVPair is one key/value pair yielded during dictionary iteration.
type KVPair struct {
	Key   reflect.Value
	Value reflect.Value
}

// ConstructStrategy selects how a dictionary/enumerable shape builds its
// result during decode.
type ConstructStrategy uint8

const (
	// ConstructNone means the shape cannot be constructed from decoded
	// elements at all (read-only projections); decode fails with
	// ErrConfigurationError if attempted.
	ConstructNone ConstructStrategy = iota
	// ConstructMutableInsert means elements are inserted one at a time
	// into a freshly allocated mutable instance.
	ConstructMutableInsert
	// ConstructParameterizedSequence means the whole instance is built in
	// one call from a pre-sized sequence of decoded elements.
	ConstructParameterizedSequence
)

// DictionaryShape describes a map-like type.
type DictionaryShape interface {
	Shape
	KeyShape() Shape
	ValueShape() Shape
	Strategy() ConstructStrategy
	Iterate(v reflect.Value) func(yield func(KVPair) bool)
	// New allocates a mutable empty instance (ConstructMutableInsert) or
	// nil (ConstructParameterizedSequence, where Build is used instead).
	New(sizeHint int) reflect.Value
	Insert(container reflect.Value, pair KVPair)
	// Build is used for ConstructParameterizedSequence.
	Build(pairs []KVPair) (reflect.Value, error)
}

// EnumerableShape describes a slice/array/list-like type, possibly
// multi-dimensional.
type EnumerableShape interface {
	Shape
	ElementShape() Shape
	Rank() int // 1 for a plain slice; >1 for a multi-dimensional array
	Strategy() ConstructStrategy
	Iterate(v reflect.Value) func(yield func(reflect.Value) bool)
	New(sizeHint int) reflect.Value
	Append(container reflect.Value, elem reflect.Value) reflect.Value
	Build(elems []reflect.Value) (reflect.Value, error)
}

// OptionalShape describes a nullable wrapper around ElementShape (e.g. a
// pointer or a sum-type "option" value).
type OptionalShape interface {
	Shape
	ElementShape() Shape
	None() reflect.Value
	Some(v reflect.Value) reflect.Value
	// Deconstruct reports whether v holds a value, and if so, unwraps it.
	Deconstruct(v reflect.Value) (reflect.Value, bool)
}

// UnionCase is one registered subtype of a UnionShape.
type UnionCase struct {
	Shape Shape
	// IntAlias/StringAlias: exactly one is populated; the alias is the
	// value that identifies this case on the wire.
	IntAlias    int32
	HasIntAlias bool
	StringAlias string
}

// UnionShape describes a polymorphic base type plus its ordered list of
// registered subtype cases.
type UnionShape interface {
	Shape
	BaseShape() Shape
	Cases() []UnionCase
}

// SurrogateShape re-routes serialization of Type() through another shape.
type SurrogateShape interface {
	Shape
	SurrogateOf() Shape
	ToSurrogate(v reflect.Value) (reflect.Value, error)
	FromSurrogate(v reflect.Value) (reflect.Value, error)
}
