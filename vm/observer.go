package vm

import (
	"github.com/cloudcmds/purple/object"
	"github.com/cloudcmds/purple/op"
)

// Observer is an interface for observing VM execution events.
// Implementations can be used for profiling, debugging, or detailed
// execution tracing without modifying the engine.
//
// Observer methods are called synchronously during execution, so
// implementations should be fast to avoid impacting performance.
// Returning false from any method halts execution immediately.
//
// Embed NoOpObserver to provide default implementations for methods you
// don't need.
type Observer interface {
	// OnStep is called before each instruction dispatch.
	OnStep(event StepEvent) bool

	// OnCall is called when a Call instruction pushes a new frame.
	OnCall(event CallEvent) bool

	// OnReturn is called when a frame unwinds, whether by Return or by
	// falling off the end of its body.
	OnReturn(event ReturnEvent) bool
}

// StepEvent contains information about a single instruction step.
type StepEvent struct {
	// IP is the instruction pointer (index into the active body).
	IP int

	// Opcode is the operation being executed.
	Opcode op.Code

	// OpcodeName is the human-readable name of the opcode.
	OpcodeName string

	// Func is the handle of the function being executed.
	Func object.Func

	// FrameDepth is the current depth of the call stack, where 0 means the
	// entry frame.
	FrameDepth int
}

// CallEvent contains information about a function call.
type CallEvent struct {
	// Caller is the handle of the function executing the Call.
	Caller object.Func

	// Callee is the handle of the function being entered.
	Callee object.Func

	// FrameDepth is the call stack depth after the call.
	FrameDepth int
}

// ReturnEvent contains information about a frame unwinding.
type ReturnEvent struct {
	// Func is the handle of the function being left.
	Func object.Func

	// FellThrough reports whether the frame unwound by running off the end
	// of its body rather than by an explicit Return.
	FellThrough bool

	// FrameDepth is the call stack depth after unwinding.
	FrameDepth int
}

// NoOpObserver is an Observer implementation that does nothing. Embed this
// in your observer to provide default implementations for methods you don't
// need.
type NoOpObserver struct{}

func (NoOpObserver) OnStep(StepEvent) bool     { return true }
func (NoOpObserver) OnCall(CallEvent) bool     { return true }
func (NoOpObserver) OnReturn(ReturnEvent) bool { return true }

// Ensure NoOpObserver implements Observer.
var _ Observer = NoOpObserver{}
