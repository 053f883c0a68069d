package qjs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/caffeineduck/qjs/engine"
	"github.com/caffeineduck/qjs/value"
)

// Shared default engine, created on first use. Contexts that need distinct
// engine configuration pass WithEngine instead.
var (
	sharedEngine     *engine.Engine
	sharedEngineOnce sync.Once
	sharedEngineErr  error
)

func defaultEngine() (*engine.Engine, error) {
	sharedEngineOnce.Do(func() {
		sharedEngine, sharedEngineErr = engine.New()
	})
	return sharedEngine, sharedEngineErr
}

// Context is an isolated JavaScript execution environment: one engine
// runtime, one global object, its own heap and limits. Contexts created on
// the same Engine share nothing and cannot exchange values.
//
// A Context is not safe for concurrent use; drive it from one goroutine.
type Context struct {
	inst  Native
	rt    uint32
	jsctx uint32
	cfg   config

	slots    map[int32]*hostFunc
	nextSlot int32
	funcRefs map[uint64]uint64 // reference id -> owned engine handle
	nextRef  uint64

	tripped   string // which limit the interrupt handler fired on
	deadline  time.Time
	remaining uint64
	nesting   int // re-entrancy depth of Eval/Call/RunJobs

	closed bool
}

// New creates a Context. Without WithEngine it runs on a lazily created
// process-wide engine.
func New(opts ...Option) (*Context, error) {
	cfg := defaultContextConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	inst := cfg.native
	if inst == nil {
		eng := cfg.engine
		if eng == nil {
			var err error
			eng, err = defaultEngine()
			if err != nil {
				return nil, err
			}
		}
		var err error
		inst, err = eng.Instance(context.Background())
		if err != nil {
			return nil, err
		}
	}

	rt, err := inst.RuntimeNew()
	if err != nil {
		inst.Close()
		return nil, err
	}
	if cfg.maxMemory > 0 {
		if err := inst.SetMemoryLimit(rt, cfg.maxMemory); err != nil {
			inst.Close()
			return nil, err
		}
	}
	if cfg.maxStack > 0 {
		if err := inst.SetMaxStackSize(rt, cfg.maxStack); err != nil {
			inst.Close()
			return nil, err
		}
	}

	jsctx, err := inst.ContextNew(rt)
	if err != nil {
		inst.RuntimeFree(rt)
		inst.Close()
		return nil, err
	}

	c := &Context{
		inst:     inst,
		rt:       rt,
		jsctx:    jsctx,
		cfg:      cfg,
		slots:    make(map[int32]*hostFunc),
		funcRefs: make(map[uint64]uint64),
	}

	inst.SetInvokeHandler(c.dispatch)

	if cfg.budget > 0 || cfg.timeout > 0 {
		inst.SetInterruptHandler(c.checkInterrupt)
		if err := inst.EnableInterrupt(rt); err != nil {
			c.Close()
			return nil, err
		}
	}
	if cfg.moduleLoader != nil {
		inst.SetModuleLoaderFunc(cfg.moduleLoader)
		if err := inst.EnableModuleLoader(jsctx); err != nil {
			c.Close()
			return nil, err
		}
	}
	if cfg.onRejection != nil {
		inst.SetRejectionFunc(func(_, reason uint64, handled bool) {
			v, err := c.fromHandle(reason, 0)
			if err != nil {
				v = value.String("unrepresentable rejection reason")
			}
			cfg.onRejection(v, handled)
		})
		if err := inst.EnableRejectionTracker(jsctx); err != nil {
			c.Close()
			return nil, err
		}
	}

	return c, nil
}

// Eval evaluates source and returns the completion value, detached from the
// engine. filename labels stack traces; empty defaults to "<eval>". After a
// successful evaluation the pending job queue is drained, so promise
// reactions scheduled by the script have run when Eval returns.
func (c *Context) Eval(source, filename string) (value.Value, error) {
	c.enterExec()
	v, err := c.eval(source, filename)
	return v, c.leaveExec(err)
}

func (c *Context) eval(source, filename string) (value.Value, error) {
	if c.closed {
		return value.Undefined(), ErrContextClosed
	}
	if filename == "" {
		filename = "<eval>"
	}

	h, err := c.inst.Eval(c.jsctx, source, filename)
	if err != nil {
		return value.Undefined(), c.mapErr(err)
	}
	defer c.inst.FreeValue(c.jsctx, h)

	tag, err := c.inst.TypeOf(c.jsctx, h)
	if err != nil {
		return value.Undefined(), c.mapErr(err)
	}
	if tag == engine.TagException {
		return value.Undefined(), c.takeException()
	}

	v, err := c.fromHandle(h, 0)
	if err != nil {
		return value.Undefined(), c.mapErr(err)
	}
	c.drainJobs()
	return v, nil
}

// Call invokes a function reference with the given receiver and arguments.
// Pass value.Undefined() as this for a plain call. Like Eval, it drains the
// job queue after the call returns.
func (c *Context) Call(fn, this value.Value, args ...value.Value) (value.Value, error) {
	c.enterExec()
	v, err := c.call(fn, this, args...)
	return v, c.leaveExec(err)
}

func (c *Context) call(fn, this value.Value, args ...value.Value) (value.Value, error) {
	if c.closed {
		return value.Undefined(), ErrContextClosed
	}
	if fn.Kind() != value.KindFunction {
		return value.Undefined(), &value.ConversionError{Value: fn.String(), Target: "function"}
	}

	fnH, err := c.toHandle(fn, 0)
	if err != nil {
		return value.Undefined(), c.mapErr(err)
	}
	defer c.inst.FreeValue(c.jsctx, fnH)

	thisH, err := c.toHandle(this, 0)
	if err != nil {
		return value.Undefined(), c.mapErr(err)
	}
	defer c.inst.FreeValue(c.jsctx, thisH)

	argHs := make([]uint64, 0, len(args))
	defer func() {
		for _, h := range argHs {
			c.inst.FreeValue(c.jsctx, h)
		}
	}()
	for _, a := range args {
		h, err := c.toHandle(a, 0)
		if err != nil {
			return value.Undefined(), c.mapErr(err)
		}
		argHs = append(argHs, h)
	}

	h, err := c.inst.Call(c.jsctx, fnH, thisH, argHs)
	if err != nil {
		return value.Undefined(), c.mapErr(err)
	}
	defer c.inst.FreeValue(c.jsctx, h)

	tag, err := c.inst.TypeOf(c.jsctx, h)
	if err != nil {
		return value.Undefined(), c.mapErr(err)
	}
	if tag == engine.TagException {
		return value.Undefined(), c.takeException()
	}

	v, err := c.fromHandle(h, 0)
	if err != nil {
		return value.Undefined(), c.mapErr(err)
	}
	c.drainJobs()
	return v, nil
}

// GetGlobal reads a property of the global object.
func (c *Context) GetGlobal(name string) (value.Value, error) {
	if c.closed {
		return value.Undefined(), ErrContextClosed
	}
	g, err := c.inst.GlobalObject(c.jsctx)
	if err != nil {
		return value.Undefined(), c.mapErr(err)
	}
	defer c.inst.FreeValue(c.jsctx, g)

	h, err := c.inst.GetProperty(c.jsctx, g, name)
	if err != nil {
		return value.Undefined(), c.mapErr(err)
	}
	defer c.inst.FreeValue(c.jsctx, h)

	tag, err := c.inst.TypeOf(c.jsctx, h)
	if err != nil {
		return value.Undefined(), c.mapErr(err)
	}
	if tag == engine.TagException {
		return value.Undefined(), c.takeException()
	}
	v, err := c.fromHandle(h, 0)
	return v, c.mapErr(err)
}

// SetGlobal assigns a property of the global object.
func (c *Context) SetGlobal(name string, v value.Value) error {
	if c.closed {
		return ErrContextClosed
	}
	g, err := c.inst.GlobalObject(c.jsctx)
	if err != nil {
		return c.mapErr(err)
	}
	defer c.inst.FreeValue(c.jsctx, g)

	h, err := c.toHandle(v, 0)
	if err != nil {
		return c.mapErr(err)
	}
	defer c.inst.FreeValue(c.jsctx, h)

	return c.mapErr(c.inst.SetProperty(c.jsctx, g, name, h))
}

// RunJobs executes queued jobs (promise reactions, async function steps)
// until the queue is empty or a job throws. It returns the number of jobs
// executed; on a throwing job the error carries the exception and remaining
// jobs stay queued.
func (c *Context) RunJobs() (int, error) {
	c.enterExec()
	n, err := c.runJobs()
	return n, c.leaveExec(err)
}

func (c *Context) runJobs() (int, error) {
	if c.closed {
		return 0, ErrContextClosed
	}
	n := 0
	for {
		res, err := c.inst.ExecutePendingJob(c.rt)
		if err != nil {
			return n, c.mapErr(err)
		}
		if res == 0 {
			return n, nil
		}
		if res < 0 {
			return n, c.takeException()
		}
		n++
	}
}

// drainJobs runs queued jobs after an Eval or Call, dropping per-job
// exceptions: rejected promises are the rejection tracker's concern, not the
// evaluation result's.
func (c *Context) drainJobs() {
	for {
		res, err := c.inst.ExecutePendingJob(c.rt)
		if err != nil || res == 0 {
			return
		}
		if res < 0 {
			if h, err := c.inst.Exception(c.jsctx); err == nil {
				c.inst.FreeValue(c.jsctx, h)
			}
		}
	}
}

// Close releases the context, its runtime, and the underlying engine
// instance. Close is idempotent. Function references minted by this context
// are invalid afterwards.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	for id, h := range c.funcRefs {
		c.inst.FreeValue(c.jsctx, h)
		delete(c.funcRefs, id)
	}
	c.inst.ContextFree(c.jsctx)
	c.inst.RuntimeFree(c.rt)
	err := c.inst.Close()

	// The dispatch table goes last: the engine must never be able to reach
	// a trampoline whose slot is already gone.
	c.slots = nil
	return err
}

// limits

func (c *Context) armLimits() {
	c.tripped = ""
	if c.cfg.timeout > 0 {
		c.deadline = time.Now().Add(c.cfg.timeout)
	}
	if c.cfg.budget > 0 {
		c.remaining = c.cfg.budget
	}
}

// checkInterrupt runs on the engine's periodic interrupt check. Returning
// true aborts the script.
func (c *Context) checkInterrupt() bool {
	if c.cfg.budget > 0 {
		if c.remaining == 0 {
			c.tripped = "instruction budget"
			return true
		}
		c.remaining--
	}
	if c.cfg.timeout > 0 && time.Now().After(c.deadline) {
		c.tripped = "timeout"
		return true
	}
	return false
}

// enterExec tracks re-entrancy: a host callback may call back into Eval,
// Call, or RunJobs while an outer evaluation is still on the stack. Limits
// arm only on the outermost entry, so a script cannot extend its own budget
// or deadline by routing work through a host function.
func (c *Context) enterExec() {
	c.nesting++
	if c.nesting == 1 {
		c.armLimits()
	}
}

// leaveExec pairs enterExec. The close-on-limit policy applies only when the
// outermost call unwinds; a nested trip must not free the engine context
// while the outer evaluation still runs on it.
func (c *Context) leaveExec(err error) error {
	c.nesting--
	if c.nesting > 0 {
		return err
	}
	return c.afterLimit(err)
}

// afterLimit applies the fail-closed policy: with WithCloseOnLimit set, a
// resource trip tears the context down before the error reaches the caller.
// It runs outside the evaluation body so every handle the body deferred is
// already freed.
func (c *Context) afterLimit(err error) error {
	if err == nil || !c.cfg.closeOnLimit || c.closed {
		return err
	}
	var re *ResourceError
	if errors.As(err, &re) {
		c.Close()
	}
	return err
}

// error mapping

// mapErr normalizes a low-level failure: a pending-exception signal becomes
// the exception itself, a tripped limit becomes a ResourceError, and bridge
// errors (conversion, depth) pass through unchanged.
func (c *Context) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, engine.ErrException) {
		return c.takeException()
	}
	if c.tripped != "" {
		return c.tripError()
	}
	var se *ScriptError
	var re *ResourceError
	var de *DepthError
	var ce *value.ConversionError
	if errors.As(err, &se) || errors.As(err, &re) || errors.As(err, &de) || errors.As(err, &ce) {
		return err
	}
	return fmt.Errorf("engine: %w", err)
}

// tripError consumes the tripped-limit marker. The engine's own interrupt
// exception is discarded with it so it cannot surface as the next
// operation's result.
func (c *Context) tripError() error {
	limit := c.tripped
	c.tripped = ""
	if has, err := c.inst.HasException(c.jsctx); err == nil && has {
		if h, err := c.inst.Exception(c.jsctx); err == nil {
			c.inst.FreeValue(c.jsctx, h)
		}
	}
	return &ResourceError{Limit: limit}
}

// takeException pops the pending exception and wraps it. Limit trips and
// engine-level exhaustion ("out of memory", "stack overflow") map to
// ResourceError; everything else is a ScriptError preserving the thrown
// value.
func (c *Context) takeException() error {
	if c.tripped != "" {
		return c.tripError()
	}

	has, err := c.inst.HasException(c.jsctx)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if !has {
		// An exception was signalled but none is pending: the engine state
		// is inconsistent and there is no value to report.
		return errors.New("engine: exception signalled with none pending")
	}

	h, err := c.inst.Exception(c.jsctx)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer c.inst.FreeValue(c.jsctx, h)

	msg, err := c.inst.ToString(c.jsctx, h)
	if err != nil {
		msg = "unrepresentable exception"
	}

	switch {
	case strings.Contains(msg, "out of memory"):
		return &ResourceError{Limit: "memory"}
	case strings.Contains(msg, "stack overflow"):
		return &ResourceError{Limit: "stack"}
	case strings.Contains(msg, "interrupted"):
		return &ResourceError{Limit: "interrupt"}
	}

	v, convErr := c.fromHandle(h, 0)
	if convErr != nil {
		v = value.String(msg)
	}
	return &ScriptError{Val: v, Message: msg}
}
