package convert

import (
	"reflect"
	"sync"
	"unsafe"

	"github.com/arloliu/msgpax/endian"
	"github.com/arloliu/msgpax/errs"
	"github.com/arloliu/msgpax/internal/pool"
	"github.com/arloliu/msgpax/wire"
)

// ExtRefBackreference is the reserved extension type code for reference-
// preservation backreference tokens: 100 (0x64), taken from the
// user-assignable extension type range (0-127; the negative range is
// reserved for msgpack-defined extensions such as timestamp's -1).
const ExtRefBackreference int8 = 100

// refEntry is the write-side bookkeeping for one observed object: its
// assigned ID, and whether its own Write call is still on the stack (used
// to detect a cycle when PreserveReferences==RejectCycles).
type refEntry struct {
	id         uint32
	inProgress bool
}

// refSlot is the read-side bookkeeping for one allocated ID: the decoded
// value, once known, and whether it has been filled yet. AllowCycles fills
// the slot before the value is fully decoded (via ReportConstructed), so a
// self-referential backreference encountered mid-decode resolves to the
// same (possibly still-being-populated) object.
type refSlot struct {
	value  reflect.Value
	filled bool
}

// RefTracker is a bidirectional map between live objects and integer
// reference IDs used during a single (de)serialization operation, pooled
// across operations.
//
// The write side is keyed by pointer identity, not value equality; the
// read side is a dense slice indexed by ID. Callers only consult a
// RefTracker for shapes whose Go representation is a pointer, map, or
// slice, since value types carry no reference identity.
type RefTracker struct {
	writeSeen   map[unsafe.Pointer]*refEntry
	writeNextID uint32
	readObjects []refSlot
}

var refTrackerPool = sync.Pool{
	New: func() any {
		return &RefTracker{
			writeSeen:   make(map[unsafe.Pointer]*refEntry, pool.RefTrackerDefaultSize),
			readObjects: make([]refSlot, 0, pool.RefTrackerDefaultSize),
		}
	},
}

// AcquireRefTracker retrieves a reset RefTracker from the shared pool.
func AcquireRefTracker() *RefTracker {
	t, _ := refTrackerPool.Get().(*RefTracker)
	return t
}

// ReleaseRefTracker resets and returns t to the shared pool. A tracker whose
// tables grew past the retention cap is dropped instead, so one huge object
// graph doesn't pin its tables for the life of the process.
func ReleaseRefTracker(t *RefTracker) {
	if t == nil {
		return
	}
	if len(t.writeSeen) > pool.RefTrackerMaxThreshold || cap(t.readObjects) > pool.RefTrackerMaxThreshold {
		return
	}
	clear(t.writeSeen)
	t.writeNextID = 0
	clear(t.readObjects)
	t.readObjects = t.readObjects[:0]
	refTrackerPool.Put(t)
}

// Observe records (or looks up) the write-side identity of ptr, returning
// its assigned ID and whether it had already been observed in this
// operation.
func (t *RefTracker) Observe(ptr unsafe.Pointer) (id uint32, seenBefore bool) {
	if e, ok := t.writeSeen[ptr]; ok {
		return e.id, true
	}
	id = t.writeNextID
	t.writeNextID++
	t.writeSeen[ptr] = &refEntry{id: id, inProgress: true}
	return id, false
}

// InProgress reports whether ptr's Write call is still on the stack.
func (t *RefTracker) InProgress(ptr unsafe.Pointer) bool {
	e, ok := t.writeSeen[ptr]
	return ok && e.inProgress
}

// Complete marks ptr's Write call as finished, so a later occurrence is
// never reported CycleDetected even under RejectCycles.
func (t *RefTracker) Complete(ptr unsafe.Pointer) {
	if e, ok := t.writeSeen[ptr]; ok {
		e.inProgress = false
	}
}

// AllocSlot reserves the next read-side ID, unfilled.
func (t *RefTracker) AllocSlot() uint32 {
	id := uint32(len(t.readObjects))
	t.readObjects = append(t.readObjects, refSlot{})
	return id
}

// Fill records the decoded value for id, allowed to be called before the
// enclosing Read returns (AllowCycles's early-slot-fill).
func (t *RefTracker) Fill(id uint32, v reflect.Value) {
	t.readObjects[id] = refSlot{value: v, filled: true}
}

// Get returns the value registered for id.
func (t *RefTracker) Get(id uint32) (reflect.Value, bool) {
	if int(id) >= len(t.readObjects) {
		return reflect.Value{}, false
	}
	s := t.readObjects[id]
	return s.value, s.filled
}

// SlotCount returns the number of IDs allocated so far on the read side,
// letting RejectCycles distinguish "backreference into a slot still being
// decoded" (a cycle) from "backreference to an ID that was never issued" (a
// corrupt stream).
func (t *RefTracker) SlotCount() int { return len(t.readObjects) }

// EarlyIdentifiable is implemented by converters (object converters, in
// practice) that can allocate a value's reference identity before its
// fields are fully decoded, which AllowCycles needs to resolve a
// self-reference encountered mid-decode. Converters that don't implement it
// (enums, dictionaries, …) simply can't participate in a reference cycle;
// only object graphs need cycle resolution.
type EarlyIdentifiable interface {
	ReadEarly(r *wire.Reader, ctx *Context, report func(reflect.Value)) (reflect.Value, error)
}

// pointerIdentity returns the identity key for a pointer-like value (pointer,
// map, chan, func, unsafe pointer, slice) and false for nil or value kinds.
// Object converters' values are pointers, since shape.ObjectShape.New
// returns a pointer.
func pointerIdentity(v reflect.Value) (unsafe.Pointer, bool) {
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		if v.IsNil() {
			return nil, false
		}
		return v.UnsafePointer(), true
	case reflect.Slice:
		if v.IsNil() {
			return nil, false
		}
		return unsafe.Pointer(v.Pointer()), true
	default:
		return nil, false
	}
}

// refConverter wraps an inner Converter to add reference-preservation
// dispatch. The wrapper is installed at build time around every
// object converter; the mode lives on the per-operation Context, so the
// wrapper is a no-op pass-through whenever the operation runs with
// PreserveReferences off.
type refConverter struct {
	inner Converter
}

// WrapReferencePreserving adds backreference write/read dispatch around
// inner. Applied only to object shapes; value-type shapes never carry
// reference identity.
func WrapReferencePreserving(inner Converter) Converter {
	return &refConverter{inner: inner}
}

func (c *refConverter) Write(w *wire.Writer, v reflect.Value, ctx *Context) error {
	tracker := ctx.Refs()
	if tracker == nil {
		return c.inner.Write(w, v, ctx)
	}
	ptr, identifiable := pointerIdentity(v)
	if !identifiable {
		return c.inner.Write(w, v, ctx)
	}

	id, seenBefore := tracker.Observe(ptr)
	if seenBefore {
		if ctx.PreserveReferences == PreserveReferencesRejectCycles && tracker.InProgress(ptr) {
			return errs.New(errs.KindCycleDetected, nil)
		}
		return writeBackreference(w, id)
	}

	defer tracker.Complete(ptr)
	return c.inner.Write(w, v, ctx)
}

func (c *refConverter) Read(r *wire.Reader, ctx *Context) (reflect.Value, error) {
	tracker := ctx.Refs()
	if tracker == nil {
		return c.inner.Read(r, ctx)
	}

	code, err := r.PeekCode()
	if err != nil {
		return reflect.Value{}, err
	}
	if wire.IsExtFamily(code) {
		// The only extension token valid at the head of a reference-tracked
		// value is a backreference; anything else is a wire error, so
		// consuming the header here loses nothing.
		return readBackreference(r, ctx, ctx.PreserveReferences)
	}

	if early, ok := c.inner.(EarlyIdentifiable); ok && ctx.PreserveReferences == PreserveReferencesAllowCycles {
		id := tracker.AllocSlot()
		return early.ReadEarly(r, ctx, func(v reflect.Value) { tracker.Fill(id, v) })
	}

	id := tracker.AllocSlot()
	v, err := c.inner.Read(r, ctx)
	if err != nil {
		return v, err
	}
	tracker.Fill(id, v)
	return v, nil
}

func writeBackreference(w *wire.Writer, id uint32) error {
	payload := encodeLittleEndianShortest(uint64(id))
	if err := w.WriteExtHeader(ExtRefBackreference, len(payload)); err != nil {
		return err
	}
	return w.WriteRaw(payload)
}

func readBackreference(r *wire.Reader, ctx *Context, mode PreserveReferencesMode) (reflect.Value, error) {
	typeCode, length, err := r.ReadExtensionHeader()
	if err != nil {
		return reflect.Value{}, err
	}
	if typeCode != ExtRefBackreference {
		return reflect.Value{}, errs.New(errs.KindTokenMismatch, nil)
	}
	payload, err := r.ReadRaw(length)
	if err != nil {
		return reflect.Value{}, err
	}
	id := decodeLittleEndianShortest(payload)

	tracker := ctx.Refs()
	v, ok := tracker.Get(uint32(id))
	if !ok {
		// An allocated-but-unfilled slot means the backreference points into
		// a value still being decoded, i.e. a genuine cycle. RejectCycles
		// surfaces that; any other unresolvable ID is a wire error.
		if mode == PreserveReferencesRejectCycles && int(id) < tracker.SlotCount() {
			return reflect.Value{}, errs.New(errs.KindCycleDetected, nil)
		}
		return reflect.Value{}, errs.New(errs.KindInvalidCode, nil)
	}
	return v, nil
}

// encodeLittleEndianShortest/decodeLittleEndianShortest encode the
// backreference payload: a little-endian variable-width unsigned integer
// with the same 1/2/4/8-byte width selection msgpack's shortest-form
// integers use, but byte-swapped, since this is an msgpax-internal payload
// shape layered on top of (not equal to) a msgpack integer token.
var leEngine = endian.GetLittleEndianEngine()

func encodeLittleEndianShortest(v uint64) []byte {
	switch {
	case v <= 0xff:
		return []byte{byte(v)}
	case v <= 0xffff:
		b := make([]byte, 2)
		leEngine.PutUint16(b, uint16(v))
		return b
	case v <= 0xffffffff:
		b := make([]byte, 4)
		leEngine.PutUint32(b, uint32(v))
		return b
	default:
		b := make([]byte, 8)
		leEngine.PutUint64(b, v)
		return b
	}
}

func decodeLittleEndianShortest(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(leEngine.Uint16(b))
	case 4:
		return uint64(leEngine.Uint32(b))
	case 8:
		return leEngine.Uint64(b)
	default:
		return 0
	}
}
