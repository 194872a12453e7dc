package convert

import (
	"context"
	"errors"

	"github.com/arloliu/msgpax/errs"
	"github.com/arloliu/msgpax/internal/options"
	"github.com/arloliu/msgpax/payload"
	"github.com/arloliu/msgpax/wire"
)

// PreserveReferencesMode selects the reference-preservation policy.
type PreserveReferencesMode uint8

const (
	PreserveReferencesOff PreserveReferencesMode = iota
	PreserveReferencesRejectCycles
	PreserveReferencesAllowCycles
)

func (m PreserveReferencesMode) String() string {
	switch m {
	case PreserveReferencesOff:
		return "Off"
	case PreserveReferencesRejectCycles:
		return "RejectCycles"
	case PreserveReferencesAllowCycles:
		return "AllowCycles"
	default:
		return "Unknown"
	}
}

// ArrayFormat selects how a multi-dimensional EnumerableShape is laid out
// on the wire.
type ArrayFormat uint8

const (
	// ArrayNested is the only implemented format and the default; the
	// flat layout has no portable fallback and is rejected at
	// configuration time.
	ArrayNested ArrayFormat = iota
	ArrayFlat
)

// DefaultValueFlags is a bitflag selecting which properties are serialized
// when their value equals its Go zero value.
type DefaultValueFlags uint32

const (
	SerializeAlways DefaultValueFlags = 1 << iota
	SerializeValueTypes
	SerializeReferenceTypes
	SerializeRequired
)

// DeserializeDefaultFlags is a bitflag controlling decode-side default
// handling.
type DeserializeDefaultFlags uint32

const (
	AllowNullForNonNullable DeserializeDefaultFlags = 1 << iota
)

// NamingPolicy transforms a property name at converter-build time (e.g.
// PascalCase -> camelCase). A nil policy leaves names unchanged.
type NamingPolicy func(string) string

// Context is the per-operation serialization state: depth budget,
// cancellation, reference tracker, and the serializer option set.
// It is treated as an immutable record after construction; With clones and
// re-applies options rather than mutating in place, so a Context captured
// by a long-lived converter closure is never surprised by a caller's later
// mutation.
type Context struct {
	MaxDepth                    int
	UnflushedBytesThreshold     int
	CancellationToken           context.Context
	PreserveReferences          PreserveReferencesMode
	InternStrings                bool
	SerializeDefaultValues      DefaultValueFlags
	DeserializeDefaultValues    DeserializeDefaultFlags
	SerializeEnumValuesByName   bool
	MultiDimensionalArrayFormat ArrayFormat
	PropertyNamingPolicy        NamingPolicy

	// LargePayloadThreshold, when > 0, makes the writer emit any str/bin
	// payload of at least that many bytes as a compressed-payload extension
	// token using LargePayloadAlgorithm. Zero (the default) keeps canonical
	// wire output.
	LargePayloadThreshold int
	LargePayloadAlgorithm payload.Type

	// userValues holds caller-defined key/value pairs riding along with
	// one operation, for custom converters to communicate through.
	userValues map[any]any

	// depthRemaining, skipState, and refs are mutable per-operation state
	// that rides alongside the otherwise-immutable options above. They are
	// reset at the start of every top-level Serialize/Deserialize call (see
	// package msgpax's Serializer).
	depthRemaining int
	skipState      wire.SkipState
	refs           *RefTracker
}

// ContextOption configures a Context through the generic functional-
// options mechanism in internal/options, applied in declaration order.
type ContextOption = options.Option[*Context]

const (
	defaultMaxDepth                = 64
	defaultUnflushedBytesThreshold = 64 * 1024
)

// NewContext builds a Context with the default settings (depth budget 64,
// flush threshold 64KiB), then applies opts in order.
func NewContext(opts ...ContextOption) (*Context, error) {
	ctx := &Context{
		MaxDepth:                defaultMaxDepth,
		UnflushedBytesThreshold: defaultUnflushedBytesThreshold,
		CancellationToken:       context.Background(),
	}
	if err := options.Apply(ctx, opts...); err != nil {
		return nil, err
	}
	ctx.reset()
	return ctx, nil
}

// With clones the Context and applies additional opts; the receiver is
// never mutated, so a Context can be shared as an immutable template.
func (c *Context) With(opts ...ContextOption) (*Context, error) {
	clone := *c
	clone.userValues = cloneUserValues(c.userValues)
	clone.refs = nil
	if err := options.Apply(&clone, opts...); err != nil {
		return nil, err
	}
	clone.reset()
	return &clone, nil
}

func cloneUserValues(m map[any]any) map[any]any {
	if m == nil {
		return nil
	}
	out := make(map[any]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// reset (re)initializes per-operation mutable state. Called by NewContext/
// With and again by the Serializer at the start of each top-level
// operation so state from a prior operation on a shared *Context never
// leaks into the next one.
func (c *Context) reset() {
	c.depthRemaining = c.MaxDepth
	c.skipState = wire.SkipState{}
	if c.PreserveReferences != PreserveReferencesOff {
		c.refs = AcquireRefTracker()
	} else {
		c.refs = nil
	}
}

// Release returns any pooled resources (the reference tracker) held by this
// operation. Call once the top-level Serialize/Deserialize call returns.
func (c *Context) Release() {
	if c.refs != nil {
		ReleaseRefTracker(c.refs)
		c.refs = nil
	}
}

// EnterDepth decrements the depth budget for one nested structure entry
// and reports whether the budget still has headroom; an exhausted budget
// surfaces as a DepthExceeded error at the call site.
func (c *Context) EnterDepth() bool {
	c.depthRemaining--
	return c.depthRemaining >= 0
}

// ExitDepth restores one level of depth budget on the way back out of a
// nested structure.
func (c *Context) ExitDepth() {
	c.depthRemaining++
}

// CheckCancellation consults the cancellation token, called at depth-step
// boundaries (enterStructure). The streaming refill path consults the same
// token directly in wire.StreamReader.FetchMoreBytes.
func (c *Context) CheckCancellation() error {
	return c.CancellationToken.Err()
}

// SkipState exposes the mid-skip residual counter slot for wire.Reader.Skip
// to thread through a resumed skip.
func (c *Context) SkipState() *wire.SkipState { return &c.skipState }

// Refs returns the active reference tracker, or nil when
// PreserveReferences==Off.
func (c *Context) Refs() *RefTracker { return c.refs }

// Value returns a user-defined value previously set with SetValue.
func (c *Context) Value(key any) (any, bool) {
	v, ok := c.userValues[key]
	return v, ok
}

// SetValue stores a user-defined key/value pair, mutating in place (unlike
// the options fields, userValues is explicitly a scratch area callers are
// expected to mutate directly, mirroring context.Context's WithValue but
// without forcing a new allocation per call in the common case of reusing
// one Context across many operations via Release/reset).
func (c *Context) SetValue(key, value any) {
	if c.userValues == nil {
		c.userValues = make(map[any]any)
	}
	c.userValues[key] = value
}

// Functional option constructors, one per Context field.

func WithMaxDepth(n int) ContextOption {
	return options.NoError(func(c *Context) { c.MaxDepth = n })
}

func WithUnflushedBytesThreshold(n int) ContextOption {
	return options.NoError(func(c *Context) { c.UnflushedBytesThreshold = n })
}

func WithCancellationToken(ctx context.Context) ContextOption {
	return options.NoError(func(c *Context) { c.CancellationToken = ctx })
}

func WithPreserveReferences(mode PreserveReferencesMode) ContextOption {
	return options.NoError(func(c *Context) { c.PreserveReferences = mode })
}

func WithInternStrings(v bool) ContextOption {
	return options.NoError(func(c *Context) { c.InternStrings = v })
}

func WithSerializeDefaultValues(flags DefaultValueFlags) ContextOption {
	return options.NoError(func(c *Context) { c.SerializeDefaultValues = flags })
}

func WithDeserializeDefaultValues(flags DeserializeDefaultFlags) ContextOption {
	return options.NoError(func(c *Context) { c.DeserializeDefaultValues = flags })
}

func WithSerializeEnumValuesByName(v bool) ContextOption {
	return options.NoError(func(c *Context) { c.SerializeEnumValuesByName = v })
}

func WithMultiDimensionalArrayFormat(f ArrayFormat) ContextOption {
	return options.New(func(c *Context) error {
		// Flat has no portable layout; Nested is both the default and the
		// only implemented format, so selecting Flat fails up front rather
		// than at codec time.
		if f == ArrayFlat {
			return errs.New(errs.KindConfigurationError, errors.New("flat multi-dimensional array format is not supported; use ArrayNested"))
		}
		c.MultiDimensionalArrayFormat = f
		return nil
	})
}

func WithPropertyNamingPolicy(policy NamingPolicy) ContextOption {
	return options.NoError(func(c *Context) { c.PropertyNamingPolicy = policy })
}

func WithLargePayloadCompression(threshold int, algorithm payload.Type) ContextOption {
	return options.New(func(c *Context) error {
		if threshold > 0 {
			if _, err := payload.GetCodec(algorithm); err != nil {
				return err
			}
		}
		c.LargePayloadThreshold = threshold
		c.LargePayloadAlgorithm = algorithm
		return nil
	})
}
