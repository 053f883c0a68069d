package qjs

import "github.com/caffeineduck/qjs/engine"

// Native is the handle-level surface a Context drives: the engine's C-style
// ABI with runtimes and contexts as opaque pointers and values as opaque
// 64-bit handles. The production implementation is *engine.Instance; tests
// substitute an in-memory fake that tracks live handles.
//
// Handle ownership follows the engine's reference counting: every handle a
// method returns is owned by the caller and must be released exactly once
// with FreeValue (or handed to a consuming method such as Throw). Methods
// that accept handles do not consume them unless documented otherwise.
type Native interface {
	RuntimeNew() (uint32, error)
	RuntimeFree(rt uint32) error
	ContextNew(rt uint32) (uint32, error)
	ContextFree(jsctx uint32) error
	SetMemoryLimit(rt uint32, bytes uint64) error
	SetMaxStackSize(rt uint32, bytes uint64) error
	EnableInterrupt(rt uint32) error
	EnableModuleLoader(jsctx uint32) error
	EnableRejectionTracker(jsctx uint32) error

	SetInvokeHandler(fn engine.InvokeFunc)
	SetInterruptHandler(fn func() bool)
	SetModuleLoaderFunc(fn func(name string) (string, bool))
	SetRejectionFunc(fn func(promise, reason uint64, handled bool))

	Eval(jsctx uint32, source, filename string) (uint64, error)
	Call(jsctx uint32, fn, this uint64, args []uint64) (uint64, error)
	ExecutePendingJob(rt uint32) (int32, error)

	Dup(jsctx uint32, v uint64) (uint64, error)
	FreeValue(jsctx uint32, v uint64) error
	TypeOf(jsctx uint32, v uint64) (engine.Tag, error)

	Undefined() (uint64, error)
	Null() (uint64, error)
	NewBool(jsctx uint32, b bool) (uint64, error)
	NewInt64(jsctx uint32, i int64) (uint64, error)
	NewFloat64(jsctx uint32, f float64) (uint64, error)
	NewString(jsctx uint32, s string) (uint64, error)
	NewArray(jsctx uint32) (uint64, error)
	NewObject(jsctx uint32) (uint64, error)
	NewDate(jsctx uint32, millis float64) (uint64, error)
	NewBigInt(jsctx uint32, decimal string) (uint64, error)
	NewArrayBuffer(jsctx uint32, b []byte) (uint64, error)
	NewFunction(jsctx uint32, slot int32, length int, name string) (uint64, error)
	FunctionSlot(jsctx uint32, v uint64) (int32, error)

	ToBool(jsctx uint32, v uint64) (bool, error)
	ToInt64(jsctx uint32, v uint64) (int64, error)
	ToFloat64(jsctx uint32, v uint64) (float64, error)
	ToString(jsctx uint32, v uint64) (string, error)
	GetArrayBuffer(jsctx uint32, v uint64) ([]byte, error)
	DateMillis(jsctx uint32, v uint64) (float64, error)
	ArrayLength(jsctx uint32, v uint64) (uint32, error)

	GetProperty(jsctx uint32, obj uint64, key string) (uint64, error)
	SetProperty(jsctx uint32, obj uint64, key string, v uint64) error
	GetElement(jsctx uint32, arr uint64, idx uint32) (uint64, error)
	DefineElement(jsctx uint32, arr uint64, idx uint32, v uint64) error
	PropertyNames(jsctx uint32, obj uint64) ([]string, error)
	GlobalObject(jsctx uint32) (uint64, error)

	HasException(jsctx uint32) (bool, error)
	Exception(jsctx uint32) (uint64, error)
	Throw(jsctx uint32, v uint64) (uint64, error)
	ThrowError(jsctx uint32, msg string) (uint64, error)

	Close() error
}
