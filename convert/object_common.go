package convert

import (
	"fmt"
	"reflect"

	"github.com/arloliu/msgpax/errs"
	"github.com/arloliu/msgpax/internal/hash"
	"github.com/arloliu/msgpax/shape"
)

// boundProperty pairs a shape.Property with the converter built for its
// value shape, plus the map-mode pre-encoded name bytes / array-mode index
// the object converter needs at write and read time.
type boundProperty struct {
	prop      shape.Property
	conv      Converter
	nameBytes []byte // map-mode only
	index     int    // array-mode only
}

// buildBoundProperties resolves a value-converter for every property of s
// through the same registry, so nested object graphs share converters.
func (b *Builder) buildBoundProperties(s shape.ObjectShape) ([]boundProperty, error) {
	props := s.Properties()
	bound := make([]boundProperty, len(props))
	for i, p := range props {
		if p.IsUnusedDataPacket {
			// The unused-data sink has no wire representation of its own; it
			// rides along inside this object's own map/array framing.
			bound[i] = boundProperty{prop: p, index: -1}
			continue
		}
		conv, err := b.GetConverter(p.ValueShape, nil)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", s.Type(), p.Name, err)
		}
		bound[i] = boundProperty{prop: p, conv: conv, nameBytes: []byte(b.applyNaming(p.Name))}
	}
	return bound, nil
}

// buildObject picks array mode vs map mode for an object shape, validates
// the at-most-one unused-data property invariant, and hands off to the
// matching converter constructor.
func (b *Builder) buildObject(s shape.ObjectShape) (Converter, error) {
	props := s.Properties()

	unusedCount := 0
	unusedIdx := -1
	anyIndexed := false
	for i, p := range props {
		if p.IsUnusedDataPacket {
			unusedCount++
			unusedIdx = i
		}
		if p.KeyIndex >= 0 {
			anyIndexed = true
		}
	}
	if unusedCount > 1 {
		return nil, configErr(fmt.Sprintf("%s: more than one unused-data property declared", s.Type()))
	}

	arrayMode := anyIndexed || s.ArrayMode() || b.performanceOverSchema

	bound, err := b.buildBoundProperties(s)
	if err != nil {
		return nil, err
	}

	ctor, hasCtor := s.Constructor()

	var conv Converter
	if arrayMode {
		conv, err = b.buildArrayObject(s, bound, unusedIdx, ctor, hasCtor)
	} else {
		conv, err = b.buildMapObject(s, bound, unusedIdx, ctor, hasCtor)
	}
	if err != nil {
		return nil, err
	}

	// Every object converter carries the reference-preservation wrapper; it
	// passes straight through unless the operation's Context enables a
	// preservation mode.
	return WrapReferencePreserving(conv), nil
}

// hashKey returns the lookup key for a map-mode property name. A
// pre-hashed table beats re-comparing every candidate name's full bytes on
// the hot decode path, with a byte-equality check on collision.
func hashKey(name []byte) uint64 {
	return hash.ID(string(name))
}

// propertyIndex is a hash-bucketed lookup table from map-mode property name
// bytes to the bound property, built once per converter and reused across
// every Read call.
type propertyIndex struct {
	buckets map[uint64][]*boundProperty
}

func newPropertyIndex(bound []boundProperty) *propertyIndex {
	idx := &propertyIndex{buckets: make(map[uint64][]*boundProperty, len(bound))}
	for i := range bound {
		bp := &bound[i]
		if bp.prop.IsUnusedDataPacket {
			continue
		}
		h := hashKey(bp.nameBytes)
		idx.buckets[h] = append(idx.buckets[h], bp)
	}
	return idx
}

func (idx *propertyIndex) lookup(name []byte) *boundProperty {
	for _, cand := range idx.buckets[hashKey(name)] {
		if string(cand.nameBytes) == string(name) {
			return cand
		}
	}
	return nil
}

// argState tracks a parameterized constructor's positional arguments and a
// was-assigned bitmap so a double assignment is rejected instead of
// silently overwritten.
type argState struct {
	args     []reflect.Value
	assigned []bool
}

func newArgState(n int) argState {
	return argState{args: make([]reflect.Value, n), assigned: make([]bool, n)}
}

func (a *argState) assign(idx int, v reflect.Value) error {
	if a.assigned[idx] {
		return errs.New(errs.KindDoublePropertyAssignment, nil)
	}
	a.args[idx] = v
	a.assigned[idx] = true
	return nil
}

// checkRequired validates every required property named in props was
// assigned; when allowMissing is set the check is skipped entirely.
func (a *argState) checkRequired(props []boundProperty, allowMissing bool) error {
	if allowMissing {
		return nil
	}
	for _, bp := range props {
		if !bp.prop.Required || bp.prop.ConstructorParamIndex < 0 {
			continue
		}
		if !a.assigned[bp.prop.ConstructorParamIndex] {
			return errs.Wrap(errs.KindMissingRequired, "", bp.prop.Name, nil)
		}
	}
	return nil
}

// enterStructure performs the per-nested-structure bookkeeping every
// object/array/map converter does on entry: consult the cancellation token
// once per structure, then charge the depth budget.
// Callers must pair a nil return with a deferred ctx.ExitDepth().
func enterStructure(ctx *Context) error {
	if err := ctx.CheckCancellation(); err != nil {
		return errs.New(errs.KindOperationCanceled, err)
	}
	if !ctx.EnterDepth() {
		return errs.New(errs.KindDepthExceeded, nil)
	}
	return nil
}

// isNilableValue reports whether v's Kind can meaningfully be nil, used by
// the null-rejection check below.
func isNilableValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	default:
		return false
	}
}

// checkNullAllowed rejects a nil value read for a non-nullable
// reference-typed constructor parameter unless the AllowNullForNonNullable
// policy is set.
func checkNullAllowed(ctx *Context, v reflect.Value) error {
	if !v.IsValid() || !isNilableValue(v) || !v.IsNil() {
		return nil
	}
	if ctx.DeserializeDefaultValues&AllowNullForNonNullable != 0 {
		return nil
	}
	return errs.New(errs.KindDisallowedNullValue, nil)
}

// shouldSerializeProperty decides whether a property appears in the output
// map: required properties always serialize; otherwise the decision follows
// ctx.SerializeDefaultValues against whether v currently holds its Go zero
// value.
func shouldSerializeProperty(ctx *Context, prop shape.Property, v reflect.Value) bool {
	if prop.Required {
		return true
	}
	if ctx.SerializeDefaultValues&SerializeAlways != 0 {
		return true
	}
	if !v.IsValid() || !v.IsZero() {
		return true
	}
	if isNilableValue(v) || v.Kind() == reflect.String {
		return ctx.SerializeDefaultValues&SerializeReferenceTypes != 0
	}
	return ctx.SerializeDefaultValues&SerializeValueTypes != 0
}

// deferredSet holds a setter-bound property assignment that must wait until
// the parameterized constructor has produced the final instance.
type deferredSet struct {
	set func(obj reflect.Value, val reflect.Value)
	val reflect.Value
}

// instantiate builds the final object value: invoking the parameterized
// constructor with args when one exists, or returning obj (already
// populated via setters) otherwise.
func instantiate(ctor shape.Constructor, hasCtor bool, obj reflect.Value, args argState) (reflect.Value, error) {
	if !hasCtor {
		return obj, nil
	}
	return ctor.Invoke(args.args)
}
