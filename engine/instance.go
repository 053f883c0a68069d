package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// ErrException signals that an ABI call failed because the context has a
// pending script exception. The caller fetches it with Exception.
var ErrException = errors.New("script exception pending")

// Instance is one instantiation of the engine module: a private wazero
// runtime, a private linear memory, and the resolved export table. All
// methods are handle-level wrappers over the wasm exports and must be called
// from a single goroutine, mirroring the underlying engine's threading rule.
type Instance struct {
	rt  wazero.Runtime
	mod api.Module
	ctx context.Context
	fns exports

	// Host-side handlers backing the "env" imports. Set before the first
	// Eval; the wasm side only calls them after the matching enable export.
	invoke      InvokeFunc
	interrupt   func() bool
	loadModule  func(name string) (string, bool)
	onRejection func(promise, reason uint64, handled bool)
}

type exports struct {
	runtimeNew      api.Function
	runtimeFree     api.Function
	contextNew      api.Function
	contextFree     api.Function
	setMemoryLimit  api.Function
	setMaxStackSize api.Function
	enableInterrupt api.Function
	malloc          api.Function
	free            api.Function
	eval            api.Function
	call            api.Function
	dup             api.Function
	freeValue       api.Function
	tag             api.Function
	undefined       api.Function
	null            api.Function
	newBool         api.Function
	newInt64        api.Function
	newFloat64      api.Function
	newString       api.Function
	newArray        api.Function
	newObject       api.Function
	newDate         api.Function
	newBigInt       api.Function
	newArrayBuffer  api.Function
	newFunction     api.Function
	functionSlot    api.Function
	toBool          api.Function
	toInt64         api.Function
	toFloat64       api.Function
	toCString       api.Function
	freeCString     api.Function
	getArrayBuffer  api.Function
	dateMillis      api.Function
	arrayLength     api.Function
	getPropertyStr  api.Function
	setPropertyStr  api.Function
	getPropertyU32  api.Function
	definePropU32   api.Function
	propertyNames   api.Function
	globalObject    api.Function
	hasException    api.Function
	getException    api.Function
	throw           api.Function
	throwError      api.Function
	executePending  api.Function
	setModuleLoader api.Function
	enableRejection api.Function
}

// Instance creates a fresh engine instance with its own runtime and memory.
func (e *Engine) Instance(ctx context.Context) (*Instance, error) {
	rt := wazero.NewRuntimeWithConfig(ctx, e.rtConfig)
	in := &Instance{rt: rt, ctx: context.Background()}

	_, err := rt.NewHostModuleBuilder("env").
		NewFunctionBuilder().WithFunc(in.hostCall).Export(impHostCall).
		NewFunctionBuilder().WithFunc(in.hostInterrupt).Export(impHostInterrupt).
		NewFunctionBuilder().WithFunc(in.hostLoadModule).Export(impHostLoad).
		NewFunctionBuilder().WithFunc(in.hostPromiseRejection).Export(impHostRejection).
		Instantiate(ctx)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate host module: %w", err)
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, e.wasm)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("compile engine module: %w", err)
	}

	// The shim is a wasi reactor: run _initialize, then drive it through
	// the exports.
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().
		WithName("qjs").
		WithStartFunctions("_initialize"))
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate engine module: %w", err)
	}
	in.mod = mod

	in.fns = exports{
		runtimeNew:      mod.ExportedFunction(expRuntimeNew),
		runtimeFree:     mod.ExportedFunction(expRuntimeFree),
		contextNew:      mod.ExportedFunction(expContextNew),
		contextFree:     mod.ExportedFunction(expContextFree),
		setMemoryLimit:  mod.ExportedFunction(expSetMemoryLimit),
		setMaxStackSize: mod.ExportedFunction(expSetMaxStackSize),
		enableInterrupt: mod.ExportedFunction(expEnableInterrupt),
		malloc:          mod.ExportedFunction(expMalloc),
		free:            mod.ExportedFunction(expFree),
		eval:            mod.ExportedFunction(expEval),
		call:            mod.ExportedFunction(expCall),
		dup:             mod.ExportedFunction(expDup),
		freeValue:       mod.ExportedFunction(expFreeValue),
		tag:             mod.ExportedFunction(expTag),
		undefined:       mod.ExportedFunction(expUndefined),
		null:            mod.ExportedFunction(expNull),
		newBool:         mod.ExportedFunction(expNewBool),
		newInt64:        mod.ExportedFunction(expNewInt64),
		newFloat64:      mod.ExportedFunction(expNewFloat64),
		newString:       mod.ExportedFunction(expNewString),
		newArray:        mod.ExportedFunction(expNewArray),
		newObject:       mod.ExportedFunction(expNewObject),
		newDate:         mod.ExportedFunction(expNewDate),
		newBigInt:       mod.ExportedFunction(expNewBigInt),
		newArrayBuffer:  mod.ExportedFunction(expNewArrayBuffer),
		newFunction:     mod.ExportedFunction(expNewFunction),
		functionSlot:    mod.ExportedFunction(expFunctionSlot),
		toBool:          mod.ExportedFunction(expToBool),
		toInt64:         mod.ExportedFunction(expToInt64),
		toFloat64:       mod.ExportedFunction(expToFloat64),
		toCString:       mod.ExportedFunction(expToCString),
		freeCString:     mod.ExportedFunction(expFreeCString),
		getArrayBuffer:  mod.ExportedFunction(expGetArrayBuffer),
		dateMillis:      mod.ExportedFunction(expDateMillis),
		arrayLength:     mod.ExportedFunction(expArrayLength),
		getPropertyStr:  mod.ExportedFunction(expGetPropertyStr),
		setPropertyStr:  mod.ExportedFunction(expSetPropertyStr),
		getPropertyU32:  mod.ExportedFunction(expGetPropertyU32),
		definePropU32:   mod.ExportedFunction(expDefinePropU32),
		propertyNames:   mod.ExportedFunction(expPropertyNames),
		globalObject:    mod.ExportedFunction(expGlobalObject),
		hasException:    mod.ExportedFunction(expHasException),
		getException:    mod.ExportedFunction(expGetException),
		throw:           mod.ExportedFunction(expThrow),
		throwError:      mod.ExportedFunction(expThrowError),
		executePending:  mod.ExportedFunction(expExecutePending),
		setModuleLoader: mod.ExportedFunction(expSetModuleLoader),
		enableRejection: mod.ExportedFunction(expEnableRejections),
	}

	return in, nil
}

// Close tears down the runtime and its linear memory. Handles and contexts
// created on this instance are invalid afterwards.
func (in *Instance) Close() error {
	return in.rt.Close(in.ctx)
}

// SetInvokeHandler installs the dispatcher for script calls into host
// functions created with NewFunction.
func (in *Instance) SetInvokeHandler(fn InvokeFunc) { in.invoke = fn }

// SetInterruptHandler installs the periodic interrupt check. Returning true
// aborts the running script with an uncatchable interrupt.
func (in *Instance) SetInterruptHandler(fn func() bool) { in.interrupt = fn }

// SetModuleLoaderFunc installs the source resolver behind the module loader.
// It returns the module source and true, or false when the specifier is
// unknown.
func (in *Instance) SetModuleLoaderFunc(fn func(name string) (string, bool)) { in.loadModule = fn }

// SetRejectionFunc installs the unhandled promise rejection observer.
func (in *Instance) SetRejectionFunc(fn func(promise, reason uint64, handled bool)) {
	in.onRejection = fn
}

// host imports

func (in *Instance) hostCall(_ context.Context, mod api.Module, jsctx uint32, slot int32, this uint64, argc, argv uint32) uint64 {
	args := make([]uint64, argc)
	for i := uint32(0); i < argc; i++ {
		v, ok := mod.Memory().ReadUint64Le(argv + i*8)
		if !ok {
			panic(fmt.Sprintf("host_call: argv out of range (ptr=%d argc=%d)", argv, argc))
		}
		args[i] = v
	}
	if in.invoke == nil {
		h, err := in.ThrowError(jsctx, "no host dispatcher installed")
		if err != nil {
			panic(fmt.Sprintf("host_call: throw failed: %v", err))
		}
		return h
	}
	return in.invoke(jsctx, slot, this, args)
}

func (in *Instance) hostInterrupt(_ context.Context, _ api.Module, _ uint32) uint32 {
	if in.interrupt != nil && in.interrupt() {
		return 1
	}
	return 0
}

func (in *Instance) hostLoadModule(_ context.Context, mod api.Module, jsctx uint32, namePtr uint32) uint32 {
	name, err := in.readCString(namePtr)
	if err != nil || in.loadModule == nil {
		return 0
	}
	source, ok := in.loadModule(name)
	if !ok {
		return 0
	}
	ptr, err := in.writeCString(source)
	if err != nil {
		return 0
	}
	// Ownership transfers to the shim, which frees it after compiling.
	return ptr
}

func (in *Instance) hostPromiseRejection(_ context.Context, _ api.Module, jsctx uint32, promise, reason uint64, handled uint32) {
	if in.onRejection != nil {
		in.onRejection(promise, reason, handled != 0)
	}
}

// linear memory helpers

func (in *Instance) malloc(n uint32) (uint32, error) {
	res, err := in.fns.malloc.Call(in.ctx, uint64(n))
	if err != nil {
		return 0, fmt.Errorf("malloc %d: %w", n, err)
	}
	ptr := api.DecodeU32(res[0])
	if ptr == 0 {
		return 0, fmt.Errorf("malloc %d: out of memory", n)
	}
	return ptr, nil
}

func (in *Instance) freePtr(ptr uint32) {
	if ptr != 0 {
		in.fns.free.Call(in.ctx, uint64(ptr))
	}
}

// writeBytes copies b into fresh engine memory and returns the pointer. The
// caller frees it with freePtr.
func (in *Instance) writeBytes(b []byte) (uint32, error) {
	if len(b) == 0 {
		// Valid zero-length pointer; the shim never dereferences it when
		// the length is 0.
		return in.malloc(1)
	}
	ptr, err := in.malloc(uint32(len(b)))
	if err != nil {
		return 0, err
	}
	if !in.mod.Memory().Write(ptr, b) {
		in.freePtr(ptr)
		return 0, fmt.Errorf("write %d bytes at %d: out of range", len(b), ptr)
	}
	return ptr, nil
}

func (in *Instance) writeCString(s string) (uint32, error) {
	return in.writeBytes(append([]byte(s), 0))
}

func (in *Instance) readBytes(ptr, n uint32) ([]byte, error) {
	b, ok := in.mod.Memory().Read(ptr, n)
	if !ok {
		return nil, fmt.Errorf("read %d bytes at %d: out of range", n, ptr)
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (in *Instance) readCString(ptr uint32) (string, error) {
	var out []byte
	for p := ptr; ; {
		const chunk = 256
		b, ok := in.mod.Memory().Read(p, chunk)
		if !ok {
			// Near the end of memory; fall back to single bytes.
			c, ok := in.mod.Memory().ReadByte(p)
			if !ok {
				return "", fmt.Errorf("read string at %d: out of range", ptr)
			}
			if c == 0 {
				return string(out), nil
			}
			out = append(out, c)
			p++
			continue
		}
		for i, c := range b {
			if c == 0 {
				return string(append(out, b[:i]...)), nil
			}
		}
		out = append(out, b...)
		p += chunk
	}
}

// call helpers

func (in *Instance) call0(fn api.Function, args ...uint64) error {
	_, err := fn.Call(in.ctx, args...)
	return err
}

func (in *Instance) call1(fn api.Function, args ...uint64) (uint64, error) {
	res, err := fn.Call(in.ctx, args...)
	if err != nil {
		return 0, err
	}
	return res[0], nil
}

// runtime and context lifecycle

func (in *Instance) RuntimeNew() (uint32, error) {
	res, err := in.call1(in.fns.runtimeNew)
	if err != nil {
		return 0, fmt.Errorf("runtime new: %w", err)
	}
	rt := api.DecodeU32(res)
	if rt == 0 {
		return 0, errors.New("runtime new: out of memory")
	}
	return rt, nil
}

func (in *Instance) RuntimeFree(rt uint32) error {
	return in.call0(in.fns.runtimeFree, uint64(rt))
}

func (in *Instance) ContextNew(rt uint32) (uint32, error) {
	res, err := in.call1(in.fns.contextNew, uint64(rt))
	if err != nil {
		return 0, fmt.Errorf("context new: %w", err)
	}
	jsctx := api.DecodeU32(res)
	if jsctx == 0 {
		return 0, errors.New("context new: out of memory")
	}
	return jsctx, nil
}

func (in *Instance) ContextFree(jsctx uint32) error {
	return in.call0(in.fns.contextFree, uint64(jsctx))
}

func (in *Instance) SetMemoryLimit(rt uint32, bytes uint64) error {
	return in.call0(in.fns.setMemoryLimit, uint64(rt), bytes)
}

func (in *Instance) SetMaxStackSize(rt uint32, bytes uint64) error {
	return in.call0(in.fns.setMaxStackSize, uint64(rt), bytes)
}

// EnableInterrupt turns on the engine's interrupt callback, routed to the
// handler installed with SetInterruptHandler.
func (in *Instance) EnableInterrupt(rt uint32) error {
	return in.call0(in.fns.enableInterrupt, uint64(rt))
}

// EnableModuleLoader installs the shim's module loader on the context,
// routed to the resolver installed with SetModuleLoaderFunc.
func (in *Instance) EnableModuleLoader(jsctx uint32) error {
	return in.call0(in.fns.setModuleLoader, uint64(jsctx))
}

// EnableRejectionTracker turns on unhandled rejection reporting, routed to
// the observer installed with SetRejectionFunc.
func (in *Instance) EnableRejectionTracker(jsctx uint32) error {
	return in.call0(in.fns.enableRejection, uint64(jsctx))
}

// evaluation and calls

// Eval evaluates source as a script. The returned handle is owned by the
// caller; on a thrown exception it carries TagException and the exception is
// pending on the context.
func (in *Instance) Eval(jsctx uint32, source, filename string) (uint64, error) {
	srcPtr, err := in.writeBytes([]byte(source))
	if err != nil {
		return 0, err
	}
	defer in.freePtr(srcPtr)
	namePtr, err := in.writeCString(filename)
	if err != nil {
		return 0, err
	}
	defer in.freePtr(namePtr)
	return in.call1(in.fns.eval,
		uint64(jsctx), uint64(srcPtr), uint64(len(source)), uint64(namePtr))
}

// Call invokes fn with the given receiver and argument handles. Argument
// handles stay owned by the caller.
func (in *Instance) Call(jsctx uint32, fn, this uint64, args []uint64) (uint64, error) {
	var argv uint32
	if len(args) > 0 {
		buf := make([]byte, 8*len(args))
		for i, a := range args {
			le := buf[i*8:]
			for b := 0; b < 8; b++ {
				le[b] = byte(a >> (8 * b))
			}
		}
		var err error
		argv, err = in.writeBytes(buf)
		if err != nil {
			return 0, err
		}
		defer in.freePtr(argv)
	}
	return in.call1(in.fns.call,
		uint64(jsctx), fn, this, uint64(len(args)), uint64(argv))
}

// ExecutePendingJob runs one queued job (promise reaction, async step).
// It returns >0 when a job ran, 0 when the queue is empty, and <0 when the
// job threw; the exception is then pending on the job's context.
func (in *Instance) ExecutePendingJob(rt uint32) (int32, error) {
	res, err := in.call1(in.fns.executePending, uint64(rt))
	if err != nil {
		return 0, err
	}
	return api.DecodeI32(res), nil
}

// handle bookkeeping

// Dup acquires an additional reference to v and returns it.
func (in *Instance) Dup(jsctx uint32, v uint64) (uint64, error) {
	return in.call1(in.fns.dup, uint64(jsctx), v)
}

// FreeValue releases one reference to v.
func (in *Instance) FreeValue(jsctx uint32, v uint64) error {
	return in.call0(in.fns.freeValue, uint64(jsctx), v)
}

// TypeOf classifies the handle.
func (in *Instance) TypeOf(jsctx uint32, v uint64) (Tag, error) {
	res, err := in.call1(in.fns.tag, uint64(jsctx), v)
	if err != nil {
		return TagUnknown, err
	}
	return Tag(api.DecodeI32(res)), nil
}

// constructors

func (in *Instance) Undefined() (uint64, error) { return in.call1(in.fns.undefined) }
func (in *Instance) Null() (uint64, error)      { return in.call1(in.fns.null) }

func (in *Instance) NewBool(jsctx uint32, b bool) (uint64, error) {
	v := uint64(0)
	if b {
		v = 1
	}
	return in.call1(in.fns.newBool, uint64(jsctx), v)
}

func (in *Instance) NewInt64(jsctx uint32, i int64) (uint64, error) {
	return in.call1(in.fns.newInt64, uint64(jsctx), uint64(i))
}

func (in *Instance) NewFloat64(jsctx uint32, f float64) (uint64, error) {
	return in.call1(in.fns.newFloat64, uint64(jsctx), api.EncodeF64(f))
}

func (in *Instance) NewString(jsctx uint32, s string) (uint64, error) {
	ptr, err := in.writeBytes([]byte(s))
	if err != nil {
		return 0, err
	}
	defer in.freePtr(ptr)
	return in.call1(in.fns.newString, uint64(jsctx), uint64(ptr), uint64(len(s)))
}

func (in *Instance) NewArray(jsctx uint32) (uint64, error) {
	return in.call1(in.fns.newArray, uint64(jsctx))
}

func (in *Instance) NewObject(jsctx uint32) (uint64, error) {
	return in.call1(in.fns.newObject, uint64(jsctx))
}

func (in *Instance) NewDate(jsctx uint32, millis float64) (uint64, error) {
	return in.call1(in.fns.newDate, uint64(jsctx), api.EncodeF64(millis))
}

// NewBigInt builds a BigInt from its decimal rendering. The shim parses with
// js_bigint_from_string, so arbitrary precision survives the boundary.
func (in *Instance) NewBigInt(jsctx uint32, decimal string) (uint64, error) {
	ptr, err := in.writeBytes([]byte(decimal))
	if err != nil {
		return 0, err
	}
	defer in.freePtr(ptr)
	return in.call1(in.fns.newBigInt, uint64(jsctx), uint64(ptr), uint64(len(decimal)))
}

// NewArrayBuffer copies b into a fresh ArrayBuffer.
func (in *Instance) NewArrayBuffer(jsctx uint32, b []byte) (uint64, error) {
	ptr, err := in.writeBytes(b)
	if err != nil {
		return 0, err
	}
	defer in.freePtr(ptr)
	return in.call1(in.fns.newArrayBuffer, uint64(jsctx), uint64(ptr), uint64(len(b)))
}

// NewFunction creates a script-callable function that dispatches through
// host_call with the given slot. length is the reported Function.length.
func (in *Instance) NewFunction(jsctx uint32, slot int32, length int, name string) (uint64, error) {
	namePtr, err := in.writeCString(name)
	if err != nil {
		return 0, err
	}
	defer in.freePtr(namePtr)
	return in.call1(in.fns.newFunction,
		uint64(jsctx), api.EncodeI32(slot), api.EncodeI32(int32(length)), uint64(namePtr))
}

// FunctionSlot returns the dispatch slot of a host-created function, or a
// negative value when v is a plain script function.
func (in *Instance) FunctionSlot(jsctx uint32, v uint64) (int32, error) {
	res, err := in.call1(in.fns.functionSlot, uint64(jsctx), v)
	if err != nil {
		return 0, err
	}
	return api.DecodeI32(res), nil
}

// readbacks

func (in *Instance) ToBool(jsctx uint32, v uint64) (bool, error) {
	res, err := in.call1(in.fns.toBool, uint64(jsctx), v)
	if err != nil {
		return false, err
	}
	return api.DecodeI32(res) != 0, nil
}

func (in *Instance) ToInt64(jsctx uint32, v uint64) (int64, error) {
	res, err := in.call1(in.fns.toInt64, uint64(jsctx), v)
	if err != nil {
		return 0, err
	}
	return int64(res), nil
}

func (in *Instance) ToFloat64(jsctx uint32, v uint64) (float64, error) {
	res, err := in.call1(in.fns.toFloat64, uint64(jsctx), v)
	if err != nil {
		return 0, err
	}
	return api.DecodeF64(res), nil
}

// ToString renders v through the engine's ToString. For BigInt handles this
// yields the plain decimal digits.
func (in *Instance) ToString(jsctx uint32, v uint64) (string, error) {
	res, err := in.call1(in.fns.toCString, uint64(jsctx), v)
	if err != nil {
		return "", err
	}
	ptr := api.DecodeU32(res)
	if ptr == 0 {
		return "", ErrException
	}
	s, err := in.readCString(ptr)
	in.call0(in.fns.freeCString, uint64(jsctx), uint64(ptr))
	return s, err
}

// GetArrayBuffer copies out the backing bytes of an ArrayBuffer handle.
func (in *Instance) GetArrayBuffer(jsctx uint32, v uint64) ([]byte, error) {
	lenPtr, err := in.malloc(4)
	if err != nil {
		return nil, err
	}
	defer in.freePtr(lenPtr)
	res, err := in.call1(in.fns.getArrayBuffer, uint64(jsctx), v, uint64(lenPtr))
	if err != nil {
		return nil, err
	}
	dataPtr := api.DecodeU32(res)
	if dataPtr == 0 {
		return nil, ErrException
	}
	n, ok := in.mod.Memory().ReadUint32Le(lenPtr)
	if !ok {
		return nil, fmt.Errorf("read buffer length at %d: out of range", lenPtr)
	}
	if n == 0 {
		return []byte{}, nil
	}
	return in.readBytes(dataPtr, n)
}

func (in *Instance) DateMillis(jsctx uint32, v uint64) (float64, error) {
	res, err := in.call1(in.fns.dateMillis, uint64(jsctx), v)
	if err != nil {
		return 0, err
	}
	return api.DecodeF64(res), nil
}

func (in *Instance) ArrayLength(jsctx uint32, v uint64) (uint32, error) {
	res, err := in.call1(in.fns.arrayLength, uint64(jsctx), v)
	if err != nil {
		return 0, err
	}
	n := api.DecodeI32(res)
	if n < 0 {
		return 0, ErrException
	}
	return uint32(n), nil
}

// properties

// GetProperty reads obj[key] and returns an owned handle.
func (in *Instance) GetProperty(jsctx uint32, obj uint64, key string) (uint64, error) {
	keyPtr, err := in.writeCString(key)
	if err != nil {
		return 0, err
	}
	defer in.freePtr(keyPtr)
	return in.call1(in.fns.getPropertyStr, uint64(jsctx), obj, uint64(keyPtr))
}

// SetProperty assigns obj[key] = v. The value handle is NOT consumed; the
// shim dups it internally, so the caller still owns (and frees) v.
func (in *Instance) SetProperty(jsctx uint32, obj uint64, key string, v uint64) error {
	keyPtr, err := in.writeCString(key)
	if err != nil {
		return err
	}
	defer in.freePtr(keyPtr)
	res, err := in.call1(in.fns.setPropertyStr, uint64(jsctx), obj, uint64(keyPtr), v)
	if err != nil {
		return err
	}
	if api.DecodeI32(res) < 0 {
		return ErrException
	}
	return nil
}

// GetElement reads arr[idx] and returns an owned handle.
func (in *Instance) GetElement(jsctx uint32, arr uint64, idx uint32) (uint64, error) {
	return in.call1(in.fns.getPropertyU32, uint64(jsctx), arr, uint64(idx))
}

// DefineElement assigns arr[idx] = v. Like SetProperty, v is not consumed.
func (in *Instance) DefineElement(jsctx uint32, arr uint64, idx uint32, v uint64) error {
	res, err := in.call1(in.fns.definePropU32, uint64(jsctx), arr, uint64(idx), v)
	if err != nil {
		return err
	}
	if api.DecodeI32(res) < 0 {
		return ErrException
	}
	return nil
}

// PropertyNames enumerates the own enumerable string keys of obj in the
// engine's property order.
func (in *Instance) PropertyNames(jsctx uint32, obj uint64) ([]string, error) {
	arr, err := in.call1(in.fns.propertyNames, uint64(jsctx), obj)
	if err != nil {
		return nil, err
	}
	defer in.FreeValue(jsctx, arr)
	if tag, err := in.TypeOf(jsctx, arr); err != nil {
		return nil, err
	} else if tag == TagException {
		return nil, ErrException
	}
	n, err := in.ArrayLength(jsctx, arr)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		h, err := in.GetElement(jsctx, arr, i)
		if err != nil {
			return nil, err
		}
		s, err := in.ToString(jsctx, h)
		in.FreeValue(jsctx, h)
		if err != nil {
			return nil, err
		}
		names = append(names, s)
	}
	return names, nil
}

// GlobalObject returns an owned handle to globalThis.
func (in *Instance) GlobalObject(jsctx uint32) (uint64, error) {
	return in.call1(in.fns.globalObject, uint64(jsctx))
}

// exceptions

func (in *Instance) HasException(jsctx uint32) (bool, error) {
	res, err := in.call1(in.fns.hasException, uint64(jsctx))
	if err != nil {
		return false, err
	}
	return api.DecodeI32(res) != 0, nil
}

// Exception takes the pending exception off the context and returns it as an
// owned handle. The context is clean afterwards.
func (in *Instance) Exception(jsctx uint32) (uint64, error) {
	return in.call1(in.fns.getException, uint64(jsctx))
}

// Throw installs v as the pending exception, consuming the handle, and
// returns the exception marker to hand back across host_call.
func (in *Instance) Throw(jsctx uint32, v uint64) (uint64, error) {
	return in.call1(in.fns.throw, uint64(jsctx), v)
}

// ThrowError installs a fresh Error with the given message as the pending
// exception and returns the exception marker.
func (in *Instance) ThrowError(jsctx uint32, msg string) (uint64, error) {
	ptr, err := in.writeBytes([]byte(msg))
	if err != nil {
		return 0, err
	}
	defer in.freePtr(ptr)
	return in.call1(in.fns.throwError, uint64(jsctx), uint64(ptr), uint64(len(msg)))
}
