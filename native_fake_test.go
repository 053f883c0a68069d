package qjs

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/caffeineduck/qjs/engine"
	"github.com/caffeineduck/qjs/value"
)

// fakeNative implements Native in memory so bridge logic is testable without
// the wasm artifact. It tracks reference counts per handle and records
// misuse (double free, use after free), which backs the leak tests: after a
// sequence of operations and Close, LiveHandles must be zero.
type fakeNative struct {
	nextRt     uint32
	nextCtx    uint32
	nextHandle uint64

	runtimes map[uint32]bool
	contexts map[uint32]uint32 // context -> runtime
	handles  map[uint64]*fentry
	globals  map[uint32]*fobj

	pending *fval // pending exception
	misuse  []string
	order   []string // lifecycle events, for teardown-order assertions

	invoke      engine.InvokeFunc
	interrupt   func() bool
	loadModule  func(string) (string, bool)
	onRejection func(promise, reason uint64, handled bool)

	// evalFn simulates script evaluation; nil makes Eval fail.
	evalFn func(f *fakeNative, jsctx uint32, source string) (uint64, error)
	jobs   []func() int32

	memoryLimit uint64
	stackLimit  uint64
	interruptOn bool
	loaderOn    bool
	trackerOn   bool
	closed      bool
}

type fentry struct {
	refs int
	v    fval
}

// fval mirrors an engine value. Containers are shared by pointer, matching
// the reference semantics of real engine objects.
type fval struct {
	kind  engine.Tag
	b     bool
	i     int64
	f     float64
	s     string // string payload, bigint decimal, or function name
	bytes []byte
	arr   *farr
	obj   *fobj
	slot  int32 // host function slot, -1 for script functions
}

type farr struct{ elems []fval }

type fobj struct {
	keys []string
	m    map[string]fval
}

func newFobj() *fobj { return &fobj{m: make(map[string]fval)} }

func (o *fobj) set(k string, v fval) {
	if _, ok := o.m[k]; !ok {
		o.keys = append(o.keys, k)
	}
	o.m[k] = v
}

func newFakeNative() *fakeNative {
	return &fakeNative{
		runtimes: make(map[uint32]bool),
		contexts: make(map[uint32]uint32),
		handles:  make(map[uint64]*fentry),
		globals:  make(map[uint32]*fobj),
	}
}

// LiveHandles reports handles with a nonzero reference count.
func (f *fakeNative) LiveHandles() int { return len(f.handles) }

func (f *fakeNative) flag(format string, args ...any) {
	f.misuse = append(f.misuse, fmt.Sprintf(format, args...))
}

func (f *fakeNative) mint(v fval) uint64 {
	f.nextHandle++
	f.handles[f.nextHandle] = &fentry{refs: 1, v: v}
	return f.nextHandle
}

func (f *fakeNative) get(h uint64) (fval, bool) {
	e, ok := f.handles[h]
	if !ok {
		f.flag("use of dead handle %d", h)
		return fval{}, false
	}
	return e.v, true
}

// lifecycle

func (f *fakeNative) RuntimeNew() (uint32, error) {
	f.nextRt++
	f.runtimes[f.nextRt] = true
	return f.nextRt, nil
}

func (f *fakeNative) RuntimeFree(rt uint32) error {
	if !f.runtimes[rt] {
		f.flag("free of unknown runtime %d", rt)
	}
	delete(f.runtimes, rt)
	f.order = append(f.order, "runtime-free")
	return nil
}

func (f *fakeNative) ContextNew(rt uint32) (uint32, error) {
	if !f.runtimes[rt] {
		return 0, errors.New("unknown runtime")
	}
	f.nextCtx++
	f.contexts[f.nextCtx] = rt
	f.globals[f.nextCtx] = newFobj()
	return f.nextCtx, nil
}

func (f *fakeNative) ContextFree(jsctx uint32) error {
	if _, ok := f.contexts[jsctx]; !ok {
		f.flag("free of unknown context %d", jsctx)
	}
	delete(f.contexts, jsctx)
	delete(f.globals, jsctx)
	f.order = append(f.order, "context-free")
	return nil
}

func (f *fakeNative) SetMemoryLimit(rt uint32, bytes uint64) error {
	f.memoryLimit = bytes
	return nil
}

func (f *fakeNative) SetMaxStackSize(rt uint32, bytes uint64) error {
	f.stackLimit = bytes
	return nil
}

func (f *fakeNative) EnableInterrupt(rt uint32) error        { f.interruptOn = true; return nil }
func (f *fakeNative) EnableModuleLoader(jsctx uint32) error  { f.loaderOn = true; return nil }
func (f *fakeNative) EnableRejectionTracker(js uint32) error { f.trackerOn = true; return nil }

func (f *fakeNative) SetInvokeHandler(fn engine.InvokeFunc)       { f.invoke = fn }
func (f *fakeNative) SetInterruptHandler(fn func() bool)          { f.interrupt = fn }
func (f *fakeNative) SetModuleLoaderFunc(fn func(string) (string, bool)) { f.loadModule = fn }
func (f *fakeNative) SetRejectionFunc(fn func(promise, reason uint64, handled bool)) {
	f.onRejection = fn
}

// evaluation

func (f *fakeNative) Eval(jsctx uint32, source, filename string) (uint64, error) {
	if f.evalFn == nil {
		return 0, errors.New("fake eval: no script installed")
	}
	return f.evalFn(f, jsctx, source)
}

func (f *fakeNative) Call(jsctx uint32, fn, this uint64, args []uint64) (uint64, error) {
	fv, ok := f.get(fn)
	if !ok || fv.kind != engine.TagFunction {
		return f.throwVal(fval{kind: engine.TagString, s: "not a function"}), nil
	}
	if fv.slot < 0 || f.invoke == nil {
		return 0, errors.New("fake call: script function with no body")
	}
	return f.invoke(jsctx, fv.slot, this, args), nil
}

func (f *fakeNative) ExecutePendingJob(rt uint32) (int32, error) {
	if len(f.jobs) == 0 {
		return 0, nil
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	return job(), nil
}

// handles

func (f *fakeNative) Dup(jsctx uint32, v uint64) (uint64, error) {
	e, ok := f.handles[v]
	if !ok {
		f.flag("dup of dead handle %d", v)
		return 0, errors.New("dup of dead handle")
	}
	e.refs++
	return v, nil
}

func (f *fakeNative) FreeValue(jsctx uint32, v uint64) error {
	e, ok := f.handles[v]
	if !ok {
		f.flag("double free of handle %d", v)
		return nil
	}
	e.refs--
	if e.refs == 0 {
		delete(f.handles, v)
	}
	return nil
}

func (f *fakeNative) TypeOf(jsctx uint32, v uint64) (engine.Tag, error) {
	fv, ok := f.get(v)
	if !ok {
		return engine.TagUnknown, errors.New("dead handle")
	}
	return fv.kind, nil
}

// constructors

func (f *fakeNative) Undefined() (uint64, error) {
	return f.mint(fval{kind: engine.TagUndefined}), nil
}

func (f *fakeNative) Null() (uint64, error) {
	return f.mint(fval{kind: engine.TagNull}), nil
}

func (f *fakeNative) NewBool(jsctx uint32, b bool) (uint64, error) {
	return f.mint(fval{kind: engine.TagBool, b: b}), nil
}

func (f *fakeNative) NewInt64(jsctx uint32, i int64) (uint64, error) {
	return f.mint(fval{kind: engine.TagInt, i: i}), nil
}

func (f *fakeNative) NewFloat64(jsctx uint32, fl float64) (uint64, error) {
	return f.mint(fval{kind: engine.TagFloat, f: fl}), nil
}

func (f *fakeNative) NewString(jsctx uint32, s string) (uint64, error) {
	return f.mint(fval{kind: engine.TagString, s: s}), nil
}

func (f *fakeNative) NewArray(jsctx uint32) (uint64, error) {
	return f.mint(fval{kind: engine.TagArray, arr: &farr{}}), nil
}

func (f *fakeNative) NewObject(jsctx uint32) (uint64, error) {
	return f.mint(fval{kind: engine.TagObject, obj: newFobj()}), nil
}

func (f *fakeNative) NewDate(jsctx uint32, millis float64) (uint64, error) {
	return f.mint(fval{kind: engine.TagDate, f: millis}), nil
}

func (f *fakeNative) NewBigInt(jsctx uint32, decimal string) (uint64, error) {
	if _, ok := new(big.Int).SetString(decimal, 10); !ok {
		return f.throwVal(fval{kind: engine.TagString, s: "invalid bigint"}), nil
	}
	return f.mint(fval{kind: engine.TagBigInt, s: decimal}), nil
}

func (f *fakeNative) NewArrayBuffer(jsctx uint32, b []byte) (uint64, error) {
	buf := make([]byte, len(b))
	copy(buf, b)
	return f.mint(fval{kind: engine.TagBytes, bytes: buf}), nil
}

func (f *fakeNative) NewFunction(jsctx uint32, slot int32, length int, name string) (uint64, error) {
	return f.mint(fval{kind: engine.TagFunction, slot: slot, s: name, i: int64(length)}), nil
}

func (f *fakeNative) FunctionSlot(jsctx uint32, v uint64) (int32, error) {
	fv, ok := f.get(v)
	if !ok || fv.kind != engine.TagFunction {
		return -1, nil
	}
	return fv.slot, nil
}

// readbacks

func (f *fakeNative) ToBool(jsctx uint32, v uint64) (bool, error) {
	fv, _ := f.get(v)
	return fv.b, nil
}

func (f *fakeNative) ToInt64(jsctx uint32, v uint64) (int64, error) {
	fv, _ := f.get(v)
	return fv.i, nil
}

func (f *fakeNative) ToFloat64(jsctx uint32, v uint64) (float64, error) {
	fv, _ := f.get(v)
	return fv.f, nil
}

func (f *fakeNative) ToString(jsctx uint32, v uint64) (string, error) {
	fv, ok := f.get(v)
	if !ok {
		return "", errors.New("dead handle")
	}
	switch fv.kind {
	case engine.TagString, engine.TagBigInt:
		return fv.s, nil
	case engine.TagInt:
		return strconv.FormatInt(fv.i, 10), nil
	case engine.TagFloat:
		return strconv.FormatFloat(fv.f, 'g', -1, 64), nil
	default:
		return fv.s, nil
	}
}

func (f *fakeNative) GetArrayBuffer(jsctx uint32, v uint64) ([]byte, error) {
	fv, ok := f.get(v)
	if !ok || fv.kind != engine.TagBytes {
		return nil, engine.ErrException
	}
	out := make([]byte, len(fv.bytes))
	copy(out, fv.bytes)
	return out, nil
}

func (f *fakeNative) DateMillis(jsctx uint32, v uint64) (float64, error) {
	fv, _ := f.get(v)
	return fv.f, nil
}

func (f *fakeNative) ArrayLength(jsctx uint32, v uint64) (uint32, error) {
	fv, ok := f.get(v)
	if !ok || fv.arr == nil {
		return 0, engine.ErrException
	}
	return uint32(len(fv.arr.elems)), nil
}

// properties

func (f *fakeNative) GetProperty(jsctx uint32, obj uint64, key string) (uint64, error) {
	fv, ok := f.get(obj)
	if !ok || fv.obj == nil {
		return 0, engine.ErrException
	}
	e, ok := fv.obj.m[key]
	if !ok {
		return f.mint(fval{kind: engine.TagUndefined}), nil
	}
	return f.mint(e), nil
}

func (f *fakeNative) SetProperty(jsctx uint32, obj uint64, key string, v uint64) error {
	ov, ok := f.get(obj)
	if !ok || ov.obj == nil {
		return engine.ErrException
	}
	ev, ok := f.get(v)
	if !ok {
		return engine.ErrException
	}
	ov.obj.set(key, ev)
	return nil
}

func (f *fakeNative) GetElement(jsctx uint32, arr uint64, idx uint32) (uint64, error) {
	fv, ok := f.get(arr)
	if !ok || fv.arr == nil || int(idx) >= len(fv.arr.elems) {
		return f.mint(fval{kind: engine.TagUndefined}), nil
	}
	return f.mint(fv.arr.elems[idx]), nil
}

func (f *fakeNative) DefineElement(jsctx uint32, arr uint64, idx uint32, v uint64) error {
	av, ok := f.get(arr)
	if !ok || av.arr == nil {
		return engine.ErrException
	}
	ev, ok := f.get(v)
	if !ok {
		return engine.ErrException
	}
	for int(idx) >= len(av.arr.elems) {
		av.arr.elems = append(av.arr.elems, fval{kind: engine.TagUndefined})
	}
	av.arr.elems[idx] = ev
	return nil
}

func (f *fakeNative) PropertyNames(jsctx uint32, obj uint64) ([]string, error) {
	fv, ok := f.get(obj)
	if !ok || fv.obj == nil {
		return nil, engine.ErrException
	}
	out := make([]string, len(fv.obj.keys))
	copy(out, fv.obj.keys)
	return out, nil
}

func (f *fakeNative) GlobalObject(jsctx uint32) (uint64, error) {
	g, ok := f.globals[jsctx]
	if !ok {
		return 0, errors.New("unknown context")
	}
	return f.mint(fval{kind: engine.TagObject, obj: g}), nil
}

// exceptions

// throwVal installs a pending exception and mints its marker.
func (f *fakeNative) throwVal(v fval) uint64 {
	f.pending = &v
	return f.mint(fval{kind: engine.TagException})
}

func (f *fakeNative) HasException(jsctx uint32) (bool, error) {
	return f.pending != nil, nil
}

func (f *fakeNative) Exception(jsctx uint32) (uint64, error) {
	if f.pending == nil {
		return f.mint(fval{kind: engine.TagUndefined}), nil
	}
	v := *f.pending
	f.pending = nil
	return f.mint(v), nil
}

func (f *fakeNative) Throw(jsctx uint32, v uint64) (uint64, error) {
	fv, ok := f.get(v)
	if !ok {
		return 0, errors.New("throw of dead handle")
	}
	f.FreeValue(jsctx, v) // Throw consumes its argument
	return f.throwVal(fv), nil
}

func (f *fakeNative) ThrowError(jsctx uint32, msg string) (uint64, error) {
	return f.throwVal(fval{kind: engine.TagString, s: msg}), nil
}

func (f *fakeNative) Close() error {
	f.closed = true
	f.order = append(f.order, "instance-close")
	return nil
}

// newFakeContext builds a Context on a fresh fake backend.
func newFakeContext(opts ...Option) (*Context, *fakeNative, error) {
	f := newFakeNative()
	ctx, err := New(append([]Option{withNative(f)}, opts...)...)
	return ctx, f, err
}

// mustValue converts a value.Value to an fval for fake eval scripts.
func mustFval(v value.Value) fval {
	switch v.Kind() {
	case value.KindUndefined:
		return fval{kind: engine.TagUndefined}
	case value.KindNull:
		return fval{kind: engine.TagNull}
	case value.KindBool:
		return fval{kind: engine.TagBool, b: v.Bool()}
	case value.KindInt:
		return fval{kind: engine.TagInt, i: v.Int()}
	case value.KindFloat:
		return fval{kind: engine.TagFloat, f: v.Float()}
	case value.KindString:
		return fval{kind: engine.TagString, s: v.Str()}
	default:
		panic("mustFval: unsupported kind " + v.Kind().String())
	}
}
