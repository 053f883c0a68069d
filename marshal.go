package qjs

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/caffeineduck/qjs/engine"
	"github.com/caffeineduck/qjs/value"
)

// maxSafeInt is the largest integer a JavaScript number represents exactly.
// Ints beyond it cross the boundary as BigInt so no digits are lost.
const maxSafeInt = int64(1) << 53

// toHandle converts a host value to an owned engine handle. The caller
// releases the handle (or hands it to a consuming ABI call). Every partial
// handle acquired on a failing path is released before returning, so an
// error leaks nothing.
func (c *Context) toHandle(v value.Value, depth int) (uint64, error) {
	if depth > c.cfg.maxDepth {
		return 0, &DepthError{Max: c.cfg.maxDepth}
	}
	switch v.Kind() {
	case value.KindUndefined:
		return c.inst.Undefined()
	case value.KindNull:
		return c.inst.Null()
	case value.KindBool:
		return c.inst.NewBool(c.jsctx, v.Bool())
	case value.KindInt:
		i := v.Int()
		if i > maxSafeInt || i < -maxSafeInt {
			return c.inst.NewBigInt(c.jsctx, strconv.FormatInt(i, 10))
		}
		return c.inst.NewInt64(c.jsctx, i)
	case value.KindFloat:
		return c.inst.NewFloat64(c.jsctx, v.Float())
	case value.KindString:
		return c.inst.NewString(c.jsctx, v.Str())
	case value.KindDate:
		return c.inst.NewDate(c.jsctx, float64(v.Millis()))
	case value.KindBigInt:
		return c.inst.NewBigInt(c.jsctx, v.BigInt().String())
	case value.KindBytes:
		return c.inst.NewArrayBuffer(c.jsctx, v.Bytes())
	case value.KindArray:
		return c.arrayToHandle(v.Elems(), depth)
	case value.KindObject:
		return c.objectToHandle(v.Object(), depth)
	case value.KindFunction:
		h, ok := c.funcRefs[v.FuncID()]
		if !ok {
			return 0, &value.ConversionError{Value: v.String(), Target: "engine function"}
		}
		return c.inst.Dup(c.jsctx, h)
	}
	return 0, &value.ConversionError{Value: v.String(), Target: "engine value"}
}

func (c *Context) arrayToHandle(elems []value.Value, depth int) (uint64, error) {
	arr, err := c.inst.NewArray(c.jsctx)
	if err != nil {
		return 0, err
	}
	for i, e := range elems {
		eh, err := c.toHandle(e, depth+1)
		if err != nil {
			c.inst.FreeValue(c.jsctx, arr)
			return 0, err
		}
		err = c.inst.DefineElement(c.jsctx, arr, uint32(i), eh)
		c.inst.FreeValue(c.jsctx, eh)
		if err != nil {
			c.inst.FreeValue(c.jsctx, arr)
			return 0, err
		}
	}
	return arr, nil
}

func (c *Context) objectToHandle(o *value.Object, depth int) (uint64, error) {
	obj, err := c.inst.NewObject(c.jsctx)
	if err != nil {
		return 0, err
	}
	for _, k := range o.Keys() {
		e, _ := o.Get(k)
		eh, err := c.toHandle(e, depth+1)
		if err != nil {
			c.inst.FreeValue(c.jsctx, obj)
			return 0, err
		}
		err = c.inst.SetProperty(c.jsctx, obj, k, eh)
		c.inst.FreeValue(c.jsctx, eh)
		if err != nil {
			c.inst.FreeValue(c.jsctx, obj)
			return 0, err
		}
	}
	return obj, nil
}

// fromHandle converts an engine handle to a detached host value. The handle
// is borrowed, not consumed: the caller keeps ownership. Arrays and objects
// are deep-copied; only functions keep a live reference into the engine,
// registered in the context's reference table.
func (c *Context) fromHandle(h uint64, depth int) (value.Value, error) {
	if depth > c.cfg.maxDepth {
		return value.Undefined(), &DepthError{Max: c.cfg.maxDepth}
	}
	tag, err := c.inst.TypeOf(c.jsctx, h)
	if err != nil {
		return value.Undefined(), err
	}
	switch tag {
	case engine.TagUndefined:
		return value.Undefined(), nil
	case engine.TagNull:
		return value.Null(), nil
	case engine.TagBool:
		b, err := c.inst.ToBool(c.jsctx, h)
		return value.Bool(b), err
	case engine.TagInt:
		i, err := c.inst.ToInt64(c.jsctx, h)
		return value.Int(i), err
	case engine.TagFloat:
		f, err := c.inst.ToFloat64(c.jsctx, h)
		return value.Float(f), err
	case engine.TagString:
		s, err := c.inst.ToString(c.jsctx, h)
		return value.String(s), err
	case engine.TagDate:
		ms, err := c.inst.DateMillis(c.jsctx, h)
		return value.Date(int64(ms)), err
	case engine.TagBigInt:
		s, err := c.inst.ToString(c.jsctx, h)
		if err != nil {
			return value.Undefined(), err
		}
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return value.Undefined(), fmt.Errorf("parse bigint %q", s)
		}
		return value.BigInt(n), nil
	case engine.TagBytes:
		b, err := c.inst.GetArrayBuffer(c.jsctx, h)
		return value.Bytes(b), err
	case engine.TagArray:
		return c.arrayFromHandle(h, depth)
	case engine.TagObject:
		return c.objectFromHandle(h, depth)
	case engine.TagFunction:
		return c.functionFromHandle(h)
	case engine.TagException:
		// A throwing getter or Proxy trap can raise mid-walk; consume the
		// pending exception instead of leaking it into the next operation.
		return value.Undefined(), c.takeException()
	}
	return value.Undefined(), &value.ConversionError{
		Value:  "engine value with unsupported shape",
		Target: "host value",
	}
}

func (c *Context) arrayFromHandle(h uint64, depth int) (value.Value, error) {
	n, err := c.inst.ArrayLength(c.jsctx, h)
	if err != nil {
		return value.Undefined(), err
	}
	elems := make([]value.Value, 0, n)
	for i := uint32(0); i < n; i++ {
		eh, err := c.inst.GetElement(c.jsctx, h, i)
		if err != nil {
			return value.Undefined(), err
		}
		e, err := c.fromHandle(eh, depth+1)
		c.inst.FreeValue(c.jsctx, eh)
		if err != nil {
			return value.Undefined(), err
		}
		elems = append(elems, e)
	}
	return value.Array(elems...), nil
}

func (c *Context) objectFromHandle(h uint64, depth int) (value.Value, error) {
	names, err := c.inst.PropertyNames(c.jsctx, h)
	if err != nil {
		return value.Undefined(), err
	}
	o := value.NewObject()
	for _, k := range names {
		eh, err := c.inst.GetProperty(c.jsctx, h, k)
		if err != nil {
			return value.Undefined(), err
		}
		e, err := c.fromHandle(eh, depth+1)
		c.inst.FreeValue(c.jsctx, eh)
		if err != nil {
			return value.Undefined(), err
		}
		o.Set(k, e)
	}
	return o.Value(), nil
}

// functionFromHandle mints a function reference. A host-created function
// maps back to its existing reference instead of growing the table on every
// round trip.
func (c *Context) functionFromHandle(h uint64) (value.Value, error) {
	if slot, err := c.inst.FunctionSlot(c.jsctx, h); err == nil && slot >= 0 {
		if hf, ok := c.slots[slot]; ok {
			return value.Function(hf.refID), nil
		}
	}
	dup, err := c.inst.Dup(c.jsctx, h)
	if err != nil {
		return value.Undefined(), err
	}
	c.nextRef++
	c.funcRefs[c.nextRef] = dup
	return value.Function(c.nextRef), nil
}
