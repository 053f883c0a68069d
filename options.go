package qjs

import (
	"time"

	"github.com/caffeineduck/qjs/engine"
	"github.com/caffeineduck/qjs/value"
)

// Option configures a Context at creation time.
type Option func(*config)

type config struct {
	engine       *engine.Engine
	native       Native
	maxMemory    uint64        // script heap ceiling in bytes, 0 = unlimited
	maxStack     uint64        // script stack ceiling in bytes, 0 = engine default
	budget       uint64        // interrupt quanta before abort, 0 = unlimited
	timeout      time.Duration // wall-clock ceiling per Eval/Call, 0 = none
	maxDepth     int
	closeOnLimit bool
	moduleLoader func(name string) (string, bool)
	onRejection  func(reason value.Value, handled bool)
}

// defaultMaxDepth bounds marshalling recursion. Deep enough for any sane
// payload, shallow enough to reject cycles quickly.
const defaultMaxDepth = 512

func defaultContextConfig() config {
	return config{maxDepth: defaultMaxDepth}
}

// WithEngine runs the context on a caller-managed engine instead of the
// shared default. The caller keeps ownership and closes the engine itself.
func WithEngine(e *engine.Engine) Option {
	return func(c *config) { c.engine = e }
}

// withNative substitutes the handle-level backend, for tests.
func withNative(n Native) Option {
	return func(c *config) { c.native = n }
}

// WithMaxMemory caps the script heap in bytes. Allocations beyond the cap
// fail inside the engine and surface as a ResourceError.
func WithMaxMemory(bytes uint64) Option {
	return func(c *config) { c.maxMemory = bytes }
}

// WithMaxStackSize caps the script stack in bytes.
func WithMaxStackSize(bytes uint64) Option {
	return func(c *config) { c.maxStack = bytes }
}

// WithInstructionBudget caps execution at n interrupt quanta. The engine
// checks the budget at fixed instruction intervals, so the cut is
// approximate but monotone: a larger budget never aborts earlier.
func WithInstructionBudget(n uint64) Option {
	return func(c *config) { c.budget = n }
}

// WithTimeout caps the wall-clock time of each Eval or Call. The deadline is
// enforced through the engine's interrupt check, so a script that never
// yields to the interpreter loop (for example one blocked inside a single
// huge allocation) is bounded by the memory cap instead.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithCloseOnLimit closes the context as soon as a resource limit trips.
// By default the context stays usable after a ResourceError; fail-closed
// callers opt in here so a runaway script cannot be retried on the same
// heap.
func WithCloseOnLimit() Option {
	return func(c *config) { c.closeOnLimit = true }
}

// WithMaxDepth overrides the marshalling recursion limit.
func WithMaxDepth(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// WithModuleLoader installs a resolver for ES module imports. The resolver
// receives the import specifier and returns the module source.
func WithModuleLoader(fn func(name string) (source string, ok bool)) Option {
	return func(c *config) { c.moduleLoader = fn }
}

// WithRejectionHandler observes promise rejections. handled is false for a
// rejection with no attached handler at the time it settles.
func WithRejectionHandler(fn func(reason value.Value, handled bool)) Option {
	return func(c *config) { c.onRejection = fn }
}
