package qjs

import (
	"errors"
	"fmt"

	"github.com/caffeineduck/qjs/value"
)

// HostFunc is a Go function callable from script. this is the call receiver;
// args has exactly the declared arity, padded with undefined or truncated as
// needed. A returned error becomes a script exception: a *ScriptError throws
// its original value, any other error throws a fresh Error with its message.
type HostFunc func(this value.Value, args []value.Value) (value.Value, error)

type hostFunc struct {
	fn    HostFunc
	arity int
	name  string
	refID uint64
}

// Function creates a script-callable function backed by fn and returns its
// host-side reference. The function reports the given arity as its length
// and the bridge normalizes incoming arguments to it.
func (c *Context) Function(name string, arity int, fn HostFunc) (value.Value, error) {
	if c.closed {
		return value.Undefined(), ErrContextClosed
	}
	if fn == nil {
		return value.Undefined(), errors.New("nil host function")
	}
	if arity < 0 {
		arity = 0
	}

	slot := c.nextSlot
	c.nextSlot++

	h, err := c.inst.NewFunction(c.jsctx, slot, arity, name)
	if err != nil {
		return value.Undefined(), c.mapErr(err)
	}

	// The context owns the reference until Close; scripts dup their own.
	c.nextRef++
	refID := c.nextRef
	c.funcRefs[refID] = h
	c.slots[slot] = &hostFunc{fn: fn, arity: arity, name: name, refID: refID}

	return value.Function(refID), nil
}

// RegisterCallback creates a host function and installs it as a global with
// the same name.
func (c *Context) RegisterCallback(name string, arity int, fn HostFunc) error {
	v, err := c.Function(name, arity, fn)
	if err != nil {
		return err
	}
	return c.SetGlobal(name, v)
}

// dispatch is the trampoline behind every host function call. It runs on the
// engine's call stack, so nothing may panic across it: any panic in
// marshalling or in the host function itself is converted to a script
// exception. The handles in this and args are borrowed from the engine; the
// returned handle's ownership transfers to the engine.
func (c *Context) dispatch(_ uint32, slot int32, this uint64, args []uint64) uint64 {
	hf, ok := c.slots[slot]
	if !ok {
		// Slots are only dropped when the context closes, and a closed
		// context cannot be executing script. A miss means corrupted
		// bookkeeping, not a recoverable condition.
		panic(fmt.Sprintf("host function slot %d not registered", slot))
	}
	return c.invokeHost(hf, this, args)
}

// invokeHost converts, calls, and converts back, recovering any panic into a
// script exception so nothing unwinds across the engine's stack.
func (c *Context) invokeHost(hf *hostFunc, this uint64, args []uint64) (ret uint64) {
	defer func() {
		if r := recover(); r != nil {
			ret = c.throwErrorf("host function panicked: %v", r)
		}
	}()

	thisV, err := c.fromHandle(this, 0)
	if err != nil {
		return c.throwErrorf("convert receiver: %v", err)
	}

	argv := make([]value.Value, hf.arity)
	for i := range argv {
		if i < len(args) {
			v, err := c.fromHandle(args[i], 0)
			if err != nil {
				return c.throwErrorf("convert argument %d: %v", i, err)
			}
			argv[i] = v
		} else {
			argv[i] = value.Undefined()
		}
	}

	res, err := hf.fn(thisV, argv)
	if err != nil {
		return c.throwHostError(err)
	}

	h, err := c.toHandle(res, 0)
	if err != nil {
		return c.throwErrorf("convert result: %v", err)
	}
	return h
}

// throwHostError turns a host error into a pending script exception and
// returns the exception marker. A *ScriptError rethrows its original value
// when it still converts, so an exception caught in Go and returned from a
// nested callback round-trips identically.
func (c *Context) throwHostError(err error) uint64 {
	var se *ScriptError
	if errors.As(err, &se) {
		h, convErr := c.toHandle(se.Val, 0)
		if convErr == nil {
			marker, throwErr := c.inst.Throw(c.jsctx, h)
			if throwErr == nil {
				return marker
			}
			c.inst.FreeValue(c.jsctx, h)
		}
	}
	return c.throwErrorf("%s", err.Error())
}

func (c *Context) throwErrorf(format string, args ...any) uint64 {
	marker, err := c.inst.ThrowError(c.jsctx, fmt.Sprintf(format, args...))
	if err != nil {
		// The engine itself is broken (trapped or closed); there is no
		// script to throw into.
		panic(fmt.Sprintf("throw failed: %v", err))
	}
	return marker
}
