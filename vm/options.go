package vm

import "github.com/rs/zerolog"

// Option is a configuration function for a VirtualMachine.
type Option[T, E any] func(*VirtualMachine[T, E])

// WithObserver sets an observer for VM execution events. The observer
// receives callbacks for instruction steps, calls, and returns. Returning
// false from any observer method halts execution immediately.
func WithObserver[T, E any](observer Observer) Option[T, E] {
	return func(vm *VirtualMachine[T, E]) {
		vm.observer = observer
	}
}

// WithLogger sets the logger used by the engine. Runs log at debug level
// and individual dispatches at trace level, tagged with a per-run id. The
// default logger discards everything.
func WithLogger[T, E any](logger zerolog.Logger) Option[T, E] {
	return func(vm *VirtualMachine[T, E]) {
		vm.logger = logger
	}
}

// WithMaxFrameDepth bounds the call stack. A Call that would push past the
// limit fails with ErrStackOverflow. A value of 0 removes the bound. The
// default is DefaultMaxFrameDepth.
func WithMaxFrameDepth[T, E any](depth int) Option[T, E] {
	return func(vm *VirtualMachine[T, E]) {
		vm.maxFrameDepth = depth
	}
}

// WithMaxSteps bounds the number of instructions a single run may dispatch.
// Exceeding the bound fails the run with ErrStepLimitExceeded. A value of 0
// removes the bound, which is the default.
func WithMaxSteps[T, E any](steps int64) Option[T, E] {
	return func(vm *VirtualMachine[T, E]) {
		vm.maxSteps = steps
	}
}

// WithContextCheckInterval sets how often the VM checks ctx.Done() during
// execution, in number of instructions. A value of 0 disables deterministic
// checking, relying only on the background goroutine that monitors the
// context. The default is DefaultContextCheckInterval.
func WithContextCheckInterval[T, E any](interval int) Option[T, E] {
	return func(vm *VirtualMachine[T, E]) {
		vm.contextCheckInterval = interval
	}
}
