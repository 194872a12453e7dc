package convert

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/arloliu/msgpax/errs"
	"github.com/arloliu/msgpax/internal/unionindex"
	"github.com/arloliu/msgpax/shape"
	"github.com/arloliu/msgpax/wire"
)

// unionCaseEntry is one registered subtype prepared for write-side dispatch:
// its runtime type handle, wire alias, and converter.
type unionCaseEntry struct {
	typ         reflect.Type
	intAlias    int32
	hasIntAlias bool
	strAlias    string
	conv        Converter
}

// unionConverter handles polymorphic dispatch: a value travels as a
// 2-element array [alias, value], with the alias either an integer or a
// UTF-8 string. Write-side dispatch walks a most-derived-first case list so
// a value whose type matches several registered cases selects the most
// specific one; read-side dispatch is O(1) through the per-alias tables.
type unionConverter struct {
	typeName string
	baseType reflect.Type
	baseConv Converter

	// writeOrder is sorted most-derived-first.
	writeOrder []unionCaseEntry

	byInt   map[int32]Converter
	byBytes *unionindex.Table[Converter]
}

func (b *Builder) buildUnion(s shape.UnionShape) (Converter, error) {
	baseConv, err := b.GetConverter(s.BaseShape(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s base: %w", s.Type(), err)
	}

	c := &unionConverter{
		typeName: s.Type().String(),
		baseType: s.BaseShape().Type(),
		baseConv: baseConv,
		byInt:    make(map[int32]Converter),
		byBytes:  unionindex.New[Converter](),
	}

	seenTypes := make(map[reflect.Type]bool)
	for _, uc := range s.Cases() {
		conv, err := b.GetConverter(uc.Shape, nil)
		if err != nil {
			return nil, fmt.Errorf("%s case %s: %w", s.Type(), uc.Shape.Type(), err)
		}

		ct := uc.Shape.Type()
		if seenTypes[ct] {
			return nil, configErr(fmt.Sprintf("%s: type %s registered twice in one union mapping", s.Type(), ct))
		}
		seenTypes[ct] = true

		entry := unionCaseEntry{typ: ct, conv: conv}
		if uc.HasIntAlias {
			if _, dup := c.byInt[uc.IntAlias]; dup {
				return nil, configErr(fmt.Sprintf("%s: duplicate union alias %d", s.Type(), uc.IntAlias))
			}
			c.byInt[uc.IntAlias] = conv
			entry.intAlias = uc.IntAlias
			entry.hasIntAlias = true
		} else {
			if uc.StringAlias == "" {
				return nil, configErr(fmt.Sprintf("%s: case %s has neither an integer nor a string alias", s.Type(), ct))
			}
			if !c.byBytes.Add(uc.StringAlias, conv) {
				return nil, configErr(fmt.Sprintf("%s: duplicate union alias %q", s.Type(), uc.StringAlias))
			}
			entry.strAlias = uc.StringAlias
		}
		c.writeOrder = append(c.writeOrder, entry)
	}

	sortMostDerivedFirst(c.writeOrder)
	return c, nil
}

// sortMostDerivedFirst orders entries so that a type assignable to another
// registered type (but not vice versa) sorts before it; unrelated types keep
// their registration order.
func sortMostDerivedFirst(entries []unionCaseEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return moreDerived(entries[i].typ, entries[j].typ)
	})
}

func moreDerived(a, b reflect.Type) bool {
	if a == b {
		return false
	}
	return a.AssignableTo(b) && !b.AssignableTo(a)
}

// runtimeValue unwraps an interface-typed reflect.Value to the concrete value
// it holds, which is what dispatch must match against.
func runtimeValue(v reflect.Value) reflect.Value {
	if v.Kind() == reflect.Interface && !v.IsNil() {
		return v.Elem()
	}
	return v
}

func (c *unionConverter) Write(w *wire.Writer, v reflect.Value, ctx *Context) error {
	rv := runtimeValue(v)

	// A value of exactly the declared base type needs no alias envelope.
	if rv.Type() == c.baseType {
		return c.baseConv.Write(w, rv, ctx)
	}

	for _, entry := range c.writeOrder {
		if rv.Type() != entry.typ && !rv.Type().AssignableTo(entry.typ) {
			continue
		}
		if err := w.WriteArrayHeader(2); err != nil {
			return err
		}
		if entry.hasIntAlias {
			if err := w.WriteInt(int64(entry.intAlias)); err != nil {
				return err
			}
		} else {
			if err := w.WriteString(entry.strAlias); err != nil {
				return err
			}
		}
		if err := entry.conv.Write(w, rv, ctx); err != nil {
			return errs.WrapErr(c.typeName, entry.typ.String(), err)
		}
		return nil
	}

	return errs.New(errs.KindUnknownUnionAlias, fmt.Errorf("%s: runtime type %s matches no registered case", c.typeName, rv.Type()))
}

func (c *unionConverter) Read(r *wire.Reader, ctx *Context) (reflect.Value, error) {
	count, err := r.ReadArrayHeader()
	if err != nil {
		return reflect.Value{}, err
	}
	if count != 2 {
		return reflect.Value{}, errs.New(errs.KindTokenMismatch, fmt.Errorf("%s: union envelope has %d elements, want 2", c.typeName, count))
	}

	code, err := r.PeekCode()
	if err != nil {
		return reflect.Value{}, err
	}

	var conv Converter
	switch {
	case isStrCode(code):
		byteLen, err := r.ReadStringHeader()
		if err != nil {
			return reflect.Value{}, err
		}
		alias, err := r.ReadRaw(byteLen)
		if err != nil {
			return reflect.Value{}, err
		}
		matched, ok := c.byBytes.Lookup(alias)
		if !ok {
			return reflect.Value{}, errs.New(errs.KindUnknownUnionAlias, fmt.Errorf("%s: alias %q", c.typeName, alias))
		}
		conv = matched
	default:
		alias, err := r.ReadInt()
		if err != nil {
			return reflect.Value{}, err
		}
		if alias < -1<<31 || alias > 1<<31-1 {
			return reflect.Value{}, errs.New(errs.KindUnknownUnionAlias, fmt.Errorf("%s: alias %d out of 32-bit range", c.typeName, alias))
		}
		matched, ok := c.byInt[int32(alias)]
		if !ok {
			return reflect.Value{}, errs.New(errs.KindUnknownUnionAlias, fmt.Errorf("%s: alias %d", c.typeName, alias))
		}
		conv = matched
	}

	return conv.Read(r, ctx)
}
