package qjs

import (
	"errors"
	"fmt"

	"github.com/caffeineduck/qjs/value"
)

// ErrContextClosed is returned by every operation on a closed Context.
var ErrContextClosed = errors.New("context closed")

// ScriptError carries a value thrown by script code. Val preserves the
// thrown value itself (often an Error object, but any value can be thrown);
// Message is its rendered form.
type ScriptError struct {
	Val     value.Value
	Message string
}

func (e *ScriptError) Error() string {
	return "script threw: " + e.Message
}

// ResourceError reports that a configured execution limit tripped: memory
// ceiling, stack ceiling, instruction budget, or deadline.
type ResourceError struct {
	Limit string // which limit tripped
}

func (e *ResourceError) Error() string {
	return "resource limit exceeded: " + e.Limit
}

// DepthError reports a value graph deeper than the configured marshalling
// limit, including cyclic structures, which exceed any finite limit.
type DepthError struct {
	Max int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("value depth exceeds limit of %d", e.Max)
}
