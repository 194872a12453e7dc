package convert

import (
	"fmt"

	"github.com/arloliu/msgpax/errs"
	"github.com/arloliu/msgpax/shape"
)

// Builder is the shape visitor: it walks a Shape's Kind and constructs
// the matching Converter, consulting Registry.Get for any nested shape so a
// cyclic shape graph resolves through the placeholder mechanism instead of
// recursing forever.
//
// Build-time policy (naming policy, array-vs-map precedence, required-
// parameter strictness) is fixed for the life of a Builder/Registry pair,
// unlike the per-operation Context: the dispatch rule is evaluated once
// when a shape is first seen, not on every Serialize/Deserialize call.
type Builder struct {
	reg *Registry

	namingPolicy          NamingPolicy
	performanceOverSchema bool // forces array-mode for every object shape
	allowMissingRequired  bool
	internStrings         bool
}

// BuilderOption configures a Builder at construction time.
type BuilderOption func(*Builder)

// WithBuilderNamingPolicy sets the property-naming transform applied to
// map-mode keys at build time.
func WithBuilderNamingPolicy(p NamingPolicy) BuilderOption {
	return func(b *Builder) { b.namingPolicy = p }
}

// WithPerformanceOverSchemaStability forces every object shape to encode
// in array mode regardless of its declared ArrayMode()/KeyIndex hints,
// trading schema evolvability for compactness and speed.
func WithPerformanceOverSchemaStability(v bool) BuilderOption {
	return func(b *Builder) { b.performanceOverSchema = v }
}

// WithAllowMissingRequired disables the MissingRequired error for absent
// required constructor parameters.
func WithAllowMissingRequired(v bool) BuilderOption {
	return func(b *Builder) { b.allowMissingRequired = v }
}

// WithBuilderInternStrings selects the interning string converter for
// decoded strings.
func WithBuilderInternStrings(v bool) BuilderOption {
	return func(b *Builder) { b.internStrings = v }
}

// NewBuilder returns a Builder backed by reg.
func NewBuilder(reg *Registry, opts ...BuilderOption) *Builder {
	b := &Builder{reg: reg}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// GetConverter resolves (building on first use) the converter for s under
// influence, the entry point both external callers and nested-shape builders
// use.
func (b *Builder) GetConverter(s shape.Shape, influence shape.MemberInfluence) (Converter, error) {
	return b.reg.Get(b, s, influence)
}

// applyNaming runs the builder's naming policy over a map-mode property
// name, or returns it unchanged if no policy was configured.
func (b *Builder) applyNaming(name string) string {
	if b.namingPolicy == nil {
		return name
	}
	return b.namingPolicy(name)
}

// build dispatches on s.Kind(), the single switch point over the shape's
// capability variant (see package shape).
func (b *Builder) build(s shape.Shape, influence shape.MemberInfluence) (Converter, error) {
	switch s.Kind() {
	case shape.KindObject:
		os, ok := s.(shape.ObjectShape)
		if !ok {
			return nil, configErr("shape reports KindObject but does not implement ObjectShape")
		}
		return b.buildObject(os)
	case shape.KindEnum:
		es, ok := s.(shape.EnumShape)
		if !ok {
			return nil, configErr("shape reports KindEnum but does not implement EnumShape")
		}
		return b.buildEnum(es)
	case shape.KindDictionary:
		ds, ok := s.(shape.DictionaryShape)
		if !ok {
			return nil, configErr("shape reports KindDictionary but does not implement DictionaryShape")
		}
		return b.buildDictionary(ds)
	case shape.KindEnumerable:
		es, ok := s.(shape.EnumerableShape)
		if !ok {
			return nil, configErr("shape reports KindEnumerable but does not implement EnumerableShape")
		}
		return b.buildEnumerable(es)
	case shape.KindOptional:
		os, ok := s.(shape.OptionalShape)
		if !ok {
			return nil, configErr("shape reports KindOptional but does not implement OptionalShape")
		}
		return b.buildOptional(os)
	case shape.KindUnion:
		us, ok := s.(shape.UnionShape)
		if !ok {
			return nil, configErr("shape reports KindUnion but does not implement UnionShape")
		}
		return b.buildUnion(us)
	case shape.KindSurrogate:
		ss, ok := s.(shape.SurrogateShape)
		if !ok {
			return nil, configErr("shape reports KindSurrogate but does not implement SurrogateShape")
		}
		return b.buildSurrogate(ss)
	case shape.KindOpaque:
		return buildOpaque(s, b.internStrings)
	default:
		return nil, configErr(fmt.Sprintf("unknown shape kind %v", s.Kind()))
	}
}

func configErr(msg string) error {
	return errs.New(errs.KindConfigurationError, fmt.Errorf("%s", msg))
}
