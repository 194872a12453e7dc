package convert

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/arloliu/msgpax/errs"
	"github.com/arloliu/msgpax/shape"
	"github.com/arloliu/msgpax/wire"
)

// memoKey is the registry's memoization key: a shape's Identity() combined
// with whatever MemberInfluence its enclosing context supplies. Two shapes
// with the same Go reflect.Type but different Identity (e.g. two surrogate
// routings) get independent converters.
type memoKey struct {
	identity  any
	influence shape.MemberInfluence
}

// Registry is the memoized converter cache: building a converter for a
// shape reachable through a cyclic shape graph must terminate, so
// in-progress builds are published as placeholderConverter values that
// resolve once the real converter finishes building.
type Registry struct {
	mu      sync.Mutex
	pending map[memoKey]*placeholderConverter
	built   map[memoKey]Converter

	// frozen, once non-nil, is an immutable snapshot safe for concurrent
	// Get calls with no locking. Populated by Freeze.
	frozen atomic.Pointer[map[memoKey]Converter]

	customByType map[reflect.Type]Converter
}

// NewRegistry returns an empty, unfrozen Registry.
func NewRegistry() *Registry {
	return &Registry{
		pending:      make(map[memoKey]*placeholderConverter),
		built:        make(map[memoKey]Converter),
		customByType: make(map[reflect.Type]Converter),
	}
}

// RegisterConverter installs a hand-written Converter that always wins
// over any shape-derived one for values of typ.
func (reg *Registry) RegisterConverter(typ reflect.Type, c Converter) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.customByType[typ] = c
}

// placeholderConverter is published for a shape whose build is still in
// progress, letting a cyclic reference resolve to it instead of recursing
// forever. Once the real build finishes, resolved is set and every prior
// holder of this placeholder transparently forwards to it.
type placeholderConverter struct {
	resolved Converter
}

func (p *placeholderConverter) Write(w *wire.Writer, v reflect.Value, ctx *Context) error {
	if p.resolved == nil {
		return errs.New(errs.KindConfigurationError, fmt.Errorf("converter cycle never resolved"))
	}
	return p.resolved.Write(w, v, ctx)
}

func (p *placeholderConverter) Read(r *wire.Reader, ctx *Context) (reflect.Value, error) {
	if p.resolved == nil {
		return reflect.Value{}, errs.New(errs.KindConfigurationError, fmt.Errorf("converter cycle never resolved"))
	}
	return p.resolved.Read(r, ctx)
}

// lookupBuilt resolves the converter for key, checking the custom-type
// override table first, then the frozen snapshot (if present), then the live
// pending/built maps. Get does not call it; Get performs these checks inline.
func (reg *Registry) lookupBuilt(key memoKey, typ reflect.Type) (Converter, bool) {
	if c, ok := reg.customByType[typ]; ok {
		return c, true
	}
	if snap := reg.frozen.Load(); snap != nil {
		c, ok := (*snap)[key]
		return c, ok
	}
	if c, ok := reg.built[key]; ok {
		return c, true
	}
	if p, ok := reg.pending[key]; ok {
		return p, true
	}
	return nil, false
}

// Freeze publishes an immutable snapshot of all converters built so far,
// after which Get serves every shape in the snapshot without taking reg.mu:
// the steady-state, post-startup mode where the registry is read
// concurrently. A shape missing from the snapshot still takes reg.mu for its
// first build.
func (reg *Registry) Freeze() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	snap := make(map[memoKey]Converter, len(reg.built))
	for k, v := range reg.built {
		snap[k] = v
	}
	reg.frozen.Store(&snap)
}

// Get returns the memoized converter for s (and influence), building it on
// first use via build. Safe for concurrent use both before and after
// Freeze; concurrent calls during the build phase serialize on reg.mu.
func (reg *Registry) Get(b *Builder, s shape.Shape, influence shape.MemberInfluence) (Converter, error) {
	key := memoKey{identity: s.Identity(), influence: influence}

	if snap := reg.frozen.Load(); snap != nil {
		if c, ok := (*snap)[key]; ok {
			return c, nil
		}
		// Fall through: a shape not seen before Freeze still needs a
		// first-time build (e.g. a union case registered afterward via
		// RegisterUnion); this briefly reacquires the build-phase lock.
	}

	reg.mu.Lock()
	if c, ok := reg.customByType[s.Type()]; ok {
		reg.mu.Unlock()
		return c, nil
	}
	if c, ok := reg.built[key]; ok {
		reg.mu.Unlock()
		return c, nil
	}
	if p, ok := reg.pending[key]; ok {
		reg.mu.Unlock()
		return p, nil
	}

	placeholder := &placeholderConverter{}
	reg.pending[key] = placeholder
	reg.mu.Unlock()

	built, err := b.build(s, influence)

	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.pending, key)
	if err != nil {
		return nil, err
	}
	placeholder.resolved = built
	reg.built[key] = built
	return built, nil
}
