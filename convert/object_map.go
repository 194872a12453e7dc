package convert

import (
	"reflect"

	"github.com/arloliu/msgpax/errs"
	"github.com/arloliu/msgpax/shape"
	"github.com/arloliu/msgpax/wire"
)

// mapObjectConverter encodes an object as a msgpack map keyed by
// (naming-policy-transformed) property name, with forward-compatible
// unused-data capture/replay.
type mapObjectConverter struct {
	typeName string
	props    []boundProperty
	index    *propertyIndex
	unusedIdx int

	ctor    shape.Constructor
	hasCtor bool
	newFn   func() reflect.Value

	allowMissingRequired bool
}

func (b *Builder) buildMapObject(s shape.ObjectShape, bound []boundProperty, unusedIdx int, ctor shape.Constructor, hasCtor bool) (Converter, error) {
	return &mapObjectConverter{
		typeName:             s.Type().String(),
		props:                bound,
		index:                newPropertyIndex(bound),
		unusedIdx:            unusedIdx,
		ctor:                 ctor,
		hasCtor:              hasCtor,
		newFn:                s.New,
		allowMissingRequired: b.allowMissingRequired,
	}, nil
}

func (c *mapObjectConverter) unusedData(v reflect.Value) *UnusedData {
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

func (c *mapObjectConverter) Write(w *wire.Writer, v reflect.Value, ctx *Context) error {
	if err := enterStructure(ctx); err != nil {
		return err
	}
	defer ctx.ExitDepth()

	unused := c.unusedData(v)

	writeIdx := make([]int, 0, len(c.props))
	for i, bp := range c.props {
		if bp.prop.IsUnusedDataPacket || !bp.prop.HasGetter {
			continue
		}
		val := bp.prop.Get(v)
		if shouldSerializeProperty(ctx, bp.prop, val) {
			writeIdx = append(writeIdx, i)
		}
	}

	count := len(writeIdx) + unused.Count()
	if err := w.WriteMapHeader(count); err != nil {
		return err
	}

	for _, i := range writeIdx {
		bp := c.props[i]
		if err := writeMapKey(w, bp.nameBytes); err != nil {
			return err
		}
		val := bp.prop.Get(v)
		if err := bp.conv.Write(w, val, ctx); err != nil {
			return errs.WrapErr(c.typeName, bp.prop.Name, err)
		}
	}

	for _, name := range unused.Names() {
		if err := writeMapKey(w, []byte(name)); err != nil {
			return err
		}
		raw, _ := unused.RawByName(name)
		if err := w.WriteRaw(raw); err != nil {
			return err
		}
	}

	return nil
}

func writeMapKey(w *wire.Writer, name []byte) error {
	if err := w.WriteStringHeader(len(name)); err != nil {
		return err
	}
	return w.WriteRaw(name)
}

func (c *mapObjectConverter) Read(r *wire.Reader, ctx *Context) (reflect.Value, error) {
	return c.readInternal(r, ctx, nil)
}

// ReadEarly implements EarlyIdentifiable: report publishes the object's
// reference identity before its fields are decoded, which AllowCycles needs
// so a backreference encountered mid-decode resolves to the object under
// construction. Objects built through a parameterized constructor can't
// exist before their arguments are read, so those report late — they simply
// can't sit on a reference cycle.
func (c *mapObjectConverter) ReadEarly(r *wire.Reader, ctx *Context, report func(reflect.Value)) (reflect.Value, error) {
	return c.readInternal(r, ctx, report)
}

func (c *mapObjectConverter) readInternal(r *wire.Reader, ctx *Context, report func(reflect.Value)) (reflect.Value, error) {
	if err := enterStructure(ctx); err != nil {
		return reflect.Value{}, err
	}
	defer ctx.ExitDepth()

	m, err := r.ReadMapHeader()
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
		byteLen, err := r.ReadStringHeader()
		if err != nil {
			return reflect.Value{}, err
		}
		nameBytes, err := r.ReadRaw(byteLen)
		if err != nil {
			return reflect.Value{}, err
		}

		bp := c.index.lookup(nameBytes)
		if bp == nil {
			raw, err := r.CaptureValue()
			if err != nil {
				return reflect.Value{}, err
			}
			if c.unusedIdx >= 0 {
				if unused == nil {
					unused = NewUnusedData()
				}
				unused.CaptureByName(string(nameBytes), raw)
			}
			continue
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
				// The final instance doesn't exist until the constructor
				// runs; setter-bound properties wait for it.
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
