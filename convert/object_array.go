package convert

import (
	"fmt"
	"reflect"

	"github.com/arloliu/msgpax/errs"
	"github.com/arloliu/msgpax/shape"
	"github.com/arloliu/msgpax/wire"
)

// arrayObjectConverter encodes an object as a msgpack array with each
// property at its declared index, nil at uncovered
// positions, and unused-data capture/replay for indices beyond (or between)
// the declared ones.
type arrayObjectConverter struct {
	typeName string
	props    []boundProperty
	// byIndex maps wire position -> props slot, -1 for uncovered positions.
	byIndex   []int
	maxIndex  int
	unusedIdx int

	ctor    shape.Constructor
	hasCtor bool
	newFn   func() reflect.Value

	allowMissingRequired bool
}

func (b *Builder) buildArrayObject(s shape.ObjectShape, bound []boundProperty, unusedIdx int, ctor shape.Constructor, hasCtor bool) (Converter, error) {
	anyIndexed := false
	for i := range bound {
		if bound[i].prop.IsUnusedDataPacket {
			continue
		}
		if bound[i].prop.KeyIndex >= 0 {
			anyIndexed = true
		}
	}

	maxIndex := -1
	next := 0
	for i := range bound {
		bp := &bound[i]
		if bp.prop.IsUnusedDataPacket {
			bp.index = -1
			continue
		}
		if anyIndexed {
			// Explicit key indices: every serializable property must carry
			// one. Mixing indexed and non-indexed properties is a build-time
			// error.
			if bp.prop.KeyIndex < 0 {
				return nil, configErr(fmt.Sprintf("%s.%s: property without key index on an indexed object", s.Type(), bp.prop.Name))
			}
			bp.index = bp.prop.KeyIndex
		} else {
			// Array mode forced by tuple-ness or the performance-over-schema
			// policy: positions follow declaration order.
			bp.index = next
			next++
		}
		if bp.index > maxIndex {
			maxIndex = bp.index
		}
	}

	byIndex := make([]int, maxIndex+1)
	for i := range byIndex {
		byIndex[i] = -1
	}
	for i := range bound {
		if bound[i].index < 0 {
			continue
		}
		if byIndex[bound[i].index] >= 0 {
			return nil, configErr(fmt.Sprintf("%s: properties %s and %s share key index %d",
				s.Type(), bound[byIndex[bound[i].index]].prop.Name, bound[i].prop.Name, bound[i].index))
		}
		byIndex[bound[i].index] = i
	}

	return &arrayObjectConverter{
		typeName:             s.Type().String(),
		props:                bound,
		byIndex:              byIndex,
		maxIndex:             maxIndex,
		unusedIdx:            unusedIdx,
		ctor:                 ctor,
		hasCtor:              hasCtor,
		newFn:                s.New,
		allowMissingRequired: b.allowMissingRequired,
	}, nil
}

func (c *arrayObjectConverter) unusedData(v reflect.Value) *UnusedData {
	if c.unusedIdx < 0 {
		return nil
	}
	bp := c.props[c.unusedIdx]
	if !bp.prop.HasGetter {
		return nil
	}
	uv := bp.prop.Get(v)
	if !uv.IsValid() || (uv.Kind() == reflect.Ptr && uv.IsNil()) {
		return nil
	}
	ud, _ := uv.Interface().(*UnusedData)
	return ud
}

func (c *arrayObjectConverter) Write(w *wire.Writer, v reflect.Value, ctx *Context) error {
	if err := enterStructure(ctx); err != nil {
		return err
	}
	defer ctx.ExitDepth()

	unused := c.unusedData(v)

	count := c.maxIndex + 1
	if m := unused.MaxIndex(); m+1 > count {
		count = m + 1
	}

	if err := w.WriteArrayHeader(count); err != nil {
		return err
	}

	for i := 0; i < count; i++ {
		if i <= c.maxIndex && c.byIndex[i] >= 0 {
			bp := c.props[c.byIndex[i]]
			val := bp.prop.Get(v)
			if err := bp.conv.Write(w, val, ctx); err != nil {
				return errs.WrapErr(c.typeName, bp.prop.Name, err)
			}
			continue
		}
		if raw, ok := unused.RawByIndex(i); ok {
			if err := w.WriteRaw(raw); err != nil {
				return err
			}
			continue
		}
		if err := w.WriteNil(); err != nil {
			return err
		}
	}

	return nil
}

func (c *arrayObjectConverter) Read(r *wire.Reader, ctx *Context) (reflect.Value, error) {
	return c.readInternal(r, ctx, nil)
}

// ReadEarly implements EarlyIdentifiable; see mapObjectConverter.ReadEarly.
func (c *arrayObjectConverter) ReadEarly(r *wire.Reader, ctx *Context, report func(reflect.Value)) (reflect.Value, error) {
	return c.readInternal(r, ctx, report)
}

func (c *arrayObjectConverter) readInternal(r *wire.Reader, ctx *Context, report func(reflect.Value)) (reflect.Value, error) {
	if err := enterStructure(ctx); err != nil {
		return reflect.Value{}, err
	}
	defer ctx.ExitDepth()

	m, err := r.ReadArrayHeader()
	if err != nil {
		return reflect.Value{}, err
	}

	obj := c.newFn()
	reported := false
	if report != nil && !c.hasCtor {
		report(obj)
		reported = true
	}
	var args argState
	if c.hasCtor {
		args = newArgState(c.ctor.ParamCount)
	}
	var unused *UnusedData
	var deferred []deferredSet

	for i := 0; i < m; i++ {
		slot := -1
		if i <= c.maxIndex {
			slot = c.byIndex[i]
		}
		if slot < 0 {
			raw, err := r.CaptureValue()
			if err != nil {
				return reflect.Value{}, err
			}
			if c.unusedIdx >= 0 && !isNilToken(raw) {
				if unused == nil {
					unused = NewUnusedData()
				}
				unused.CaptureByIndex(i, raw)
			}
			continue
		}

		bp := c.props[slot]

		// A nil at a declared position means the writer had nothing for it
		// (a narrower producer padding up to a later index); leave the
		// property at its default rather than forcing the value converter to
		// decode nil. Optional shapes decode their own nil.
		if bp.prop.ValueShape.Kind() != shape.KindOptional {
			if code, err := r.PeekCode(); err == nil && code == 0xc0 {
				if err := r.ReadNil(); err != nil {
					return reflect.Value{}, err
				}
				continue
			}
		}

		val, err := bp.conv.Read(r, ctx)
		if err != nil {
			return reflect.Value{}, errs.WrapErr(c.typeName, bp.prop.Name, err)
		}

		if bp.prop.ConstructorParamIndex >= 0 {
			if err := checkNullAllowed(ctx, val); err != nil {
				return reflect.Value{}, errs.WrapErr(c.typeName, bp.prop.Name, err)
			}
			if err := args.assign(bp.prop.ConstructorParamIndex, val); err != nil {
				return reflect.Value{}, errs.WrapErr(c.typeName, bp.prop.Name, err)
			}
			continue
		}
		if bp.prop.HasSetter {
			if c.hasCtor {
				deferred = append(deferred, deferredSet{set: bp.prop.Set, val: val})
			} else {
				bp.prop.Set(obj, val)
			}
		}
	}

	if c.hasCtor {
		if err := args.checkRequired(c.props, c.allowMissingRequired); err != nil {
			return reflect.Value{}, errs.WrapErr(c.typeName, "", err)
		}
	}

	result, err := instantiate(c.ctor, c.hasCtor, obj, args)
	if err != nil {
		return reflect.Value{}, err
	}
	for _, d := range deferred {
		d.set(result, d.val)
	}
	if report != nil && !reported {
		report(result)
	}

	if c.unusedIdx >= 0 && unused != nil {
		bp := c.props[c.unusedIdx]
		if bp.prop.HasSetter {
			bp.prop.Set(result, reflect.ValueOf(unused))
		}
	}

	return result, nil
}

// isNilToken reports whether raw is exactly the one-byte nil token, which
// array-mode capture treats as "position intentionally empty" rather than
// data worth preserving.
func isNilToken(raw []byte) bool {
	return len(raw) == 1 && raw[0] == 0xc0
}
