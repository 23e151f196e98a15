// Package vm provides a VirtualMachine that executes purple function tables.
package vm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cloudcmds/purple/bytecode"
	"github.com/cloudcmds/purple/errz"
	"github.com/cloudcmds/purple/object"
	"github.com/cloudcmds/purple/op"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxFrameDepth is the default bound on the call stack. There is
	// no tail-call elimination, so recursion consumes one frame per Call.
	DefaultMaxFrameDepth = 1024

	// DefaultContextCheckInterval is the number of instructions between
	// deterministic checks of ctx.Done(). Set to 0 to disable.
	DefaultContextCheckInterval = 1000
)

// Sentinel errors for resource limits. These are aborts outside the
// host-visible error taxonomy in errz.
var (
	ErrStackOverflow     = errors.New("frame depth limit exceeded")
	ErrStepLimitExceeded = errors.New("step limit exceeded")
)

// VirtualMachine executes the bodies in one function table against a host
// environment. A VirtualMachine is reusable: sequential Run calls reset all
// per-run state. It is not safe for concurrent use; overlapping Run calls
// are rejected.
type VirtualMachine[T, E any] struct {
	table  bytecode.Table[T, E]
	loaded map[object.Func]*loadedFunc[T, E]

	// Per-run state. The parameter channel and return slot deliberately
	// persist across frame transitions within one run.
	frames  []frame[T]
	params  []object.Value[T]
	ret     *object.Value[T]
	ip      int
	current object.Func
	locals  *object.Locals[T]

	halt     int32
	running  bool
	runMutex sync.Mutex

	maxFrameDepth        int
	maxSteps             int64
	contextCheckInterval int
	observer             Observer
	logger               zerolog.Logger
}

// New creates a VirtualMachine for the given function table. The table must
// contain the entry handle, and label maps are pre-computed for every
// function in the table, so missing-entry and duplicate-label errors
// surface here rather than mid-execution. The table must not be mutated
// while the VM holds it.
func New[T, E any](table bytecode.Table[T, E], options ...Option[T, E]) (*VirtualMachine[T, E], error) {
	vm := &VirtualMachine[T, E]{
		table:                table,
		maxFrameDepth:        DefaultMaxFrameDepth,
		contextCheckInterval: DefaultContextCheckInterval,
		logger:               zerolog.Nop(),
	}
	for _, opt := range options {
		opt(vm)
	}
	if _, ok := table[bytecode.Entry]; !ok {
		return nil, &errz.FunctionDoesNotExistError{Func: uint(bytecode.Entry)}
	}
	loaded := make(map[object.Func]*loadedFunc[T, E], len(table))
	for fn, body := range table {
		lf, err := loadFunc(fn, body)
		if err != nil {
			return nil, err
		}
		loaded[fn] = lf
	}
	vm.loaded = loaded
	return vm, nil
}

func (vm *VirtualMachine[T, E]) start(ctx context.Context) error {
	vm.runMutex.Lock()
	defer vm.runMutex.Unlock()
	if vm.running {
		return fmt.Errorf("vm is already running")
	}
	vm.running = true
	// Halt execution when the context is cancelled
	vm.halt = 0
	if doneChan := ctx.Done(); doneChan != nil {
		go func() {
			<-doneChan
			atomic.StoreInt32(&vm.halt, 1)
		}()
	}
	return nil
}

func (vm *VirtualMachine[T, E]) stop() {
	vm.runMutex.Lock()
	defer vm.runMutex.Unlock()
	vm.running = false
}

// Run executes the table's entry function against env. It returns the value
// written by the last executed Return, or nil if no Return executed. Any
// error aborts execution immediately; the environment is left in whatever
// state the last successful callback produced.
//
// The environment is borrowed exclusively for the duration of the run and
// is handed to SysCall and LoadFromSysCall callbacks under the same
// exclusivity.
func (vm *VirtualMachine[T, E]) Run(ctx context.Context, env *E) (result *object.Value[T], err error) {
	if err := vm.start(ctx); err != nil {
		return nil, err
	}
	defer vm.stop()

	// Reset per-run state
	vm.frames = vm.frames[:0]
	vm.params = vm.params[:0]
	vm.ret = nil
	vm.ip = 0
	vm.current = bytecode.Entry
	vm.locals = object.NewLocals[T](bytecode.Entry)

	runID := uuid.Must(uuid.NewV4())
	logger := vm.logger.With().Str("run_id", runID.String()).Logger()
	logger.Debug().Int("functions", len(vm.loaded)).Msg("run started")

	if err := vm.eval(ctx, env, logger); err != nil {
		logger.Debug().Err(err).Msg("run aborted")
		return nil, err
	}
	if vm.ret == nil {
		logger.Debug().Msg("run finished with no result")
		return nil, nil
	}
	r := *vm.ret
	logger.Debug().Stringer("result", r).Msg("run finished")
	return &r, nil
}

// eval is the interpretation loop: fetch, dispatch, advance. It runs until
// the entry function returns or falls off the end of its body, or until an
// error aborts the run.
func (vm *VirtualMachine[T, E]) eval(ctx context.Context, env *E, logger zerolog.Logger) error {
	active := vm.loaded[vm.current]
	trace := logger.GetLevel() <= zerolog.TraceLevel

	var steps int64
	var sinceCheck int
	checkInterval := vm.contextCheckInterval
	doneChan := ctx.Done()

	for {
		if atomic.LoadInt32(&vm.halt) == 1 {
			return ctx.Err()
		}

		// Deterministic check of ctx.Done() every N instructions, which
		// guarantees responsiveness regardless of goroutine scheduling.
		if checkInterval > 0 && doneChan != nil {
			sinceCheck++
			if sinceCheck >= checkInterval {
				sinceCheck = 0
				select {
				case <-doneChan:
					atomic.StoreInt32(&vm.halt, 1)
					return ctx.Err()
				default:
				}
			}
		}

		// Fall-through check: a function that runs off its body unwinds
		// without touching the return slot.
		if vm.ip >= len(active.body) {
			if len(vm.frames) == 0 {
				return nil
			}
			var ok bool
			if active, ok = vm.unwind(true); !ok {
				return errHaltedByObserver
			}
			continue
		}

		if vm.maxSteps > 0 {
			steps++
			if steps > vm.maxSteps {
				return ErrStepLimitExceeded
			}
		}

		instr := active.body[vm.ip]

		if trace {
			logger.Trace().
				Int("ip", vm.ip).
				Uint("func", uint(vm.current)).
				Str("op", op.GetInfo(instr.Op).Name).
				Msg("dispatch")
		}

		if vm.observer != nil {
			event := StepEvent{
				IP:         vm.ip,
				Opcode:     instr.Op,
				OpcodeName: op.GetInfo(instr.Op).Name,
				Func:       vm.current,
				FrameDepth: len(vm.frames),
			}
			if !vm.observer.OnStep(event) {
				return errHaltedByObserver
			}
		}

		switch instr.Op {

		case op.Label:
			vm.ip++

		case op.Jump:
			idx, err := active.target(instr.Label)
			if err != nil {
				return err
			}
			vm.ip = idx

		case op.BranchOnTrue:
			taken, err := instr.Pred(vm.locals)
			if err != nil {
				return err
			}
			if taken {
				idx, err := active.target(instr.Label)
				if err != nil {
					return err
				}
				vm.ip = idx
			} else {
				vm.ip++
			}

		case op.Return:
			v, err := vm.locals.Get(instr.Symbol)
			if err != nil {
				return err
			}
			vm.ret = &v
			if len(vm.frames) == 0 {
				return nil
			}
			var ok bool
			if active, ok = vm.unwind(false); !ok {
				return errHaltedByObserver
			}

		case op.LoadValue:
			vm.locals.Set(instr.Symbol, object.NewHost(instr.Value))
			vm.ip++

		case op.LoadFromReturn:
			if vm.ret == nil {
				return &errz.ReturnNotSetError{
					Func:   uint(vm.current),
					Symbol: uint(instr.Symbol),
				}
			}
			vm.locals.Set(instr.Symbol, *vm.ret)
			vm.ip++

		case op.LoadFunc:
			vm.locals.Set(instr.Symbol, object.NewFunc[T](instr.Func))
			vm.ip++

		case op.Call:
			v, err := vm.locals.Get(instr.Symbol)
			if err != nil {
				return err
			}
			callee, ok := v.Func()
			if !ok {
				return &errz.CallNonFunctionError{Func: uint(vm.current)}
			}
			next, found := vm.loaded[callee]
			if !found {
				return &errz.FunctionDoesNotExistError{Func: uint(callee)}
			}
			if vm.maxFrameDepth > 0 && len(vm.frames) >= vm.maxFrameDepth {
				return ErrStackOverflow
			}
			vm.frames = append(vm.frames, frame[T]{
				returnAddr: vm.ip + 1,
				locals:     vm.locals,
				fn:         vm.current,
			})
			caller := vm.current
			vm.current = callee
			vm.ip = 0
			vm.locals = object.NewLocals[T](callee)
			active = next
			if vm.observer != nil {
				event := CallEvent{
					Caller:     caller,
					Callee:     callee,
					FrameDepth: len(vm.frames),
				}
				if !vm.observer.OnCall(event) {
					return errHaltedByObserver
				}
			}

		case op.PushParam:
			v, err := vm.locals.Get(instr.Symbol)
			if err != nil {
				return err
			}
			vm.params = append(vm.params, v)
			vm.ip++

		case op.PopParam:
			if len(vm.params) == 0 {
				return &errz.EmptyParamsError{
					Func:   uint(vm.current),
					Symbol: uint(instr.Symbol),
				}
			}
			v := vm.params[len(vm.params)-1]
			vm.params = vm.params[:len(vm.params)-1]
			vm.locals.Set(instr.Symbol, v)
			vm.ip++

		case op.LoadFromExec:
			v, err := instr.Exec(vm.locals)
			if err != nil {
				return err
			}
			vm.locals.Set(instr.Symbol, v)
			vm.ip++

		case op.SysCall:
			if err := instr.Sys(vm.locals, env); err != nil {
				return err
			}
			vm.ip++

		case op.LoadFromSysCall:
			v, err := instr.SysExec(vm.locals, env)
			if err != nil {
				return err
			}
			vm.locals.Set(instr.Symbol, v)
			vm.ip++

		default:
			return fmt.Errorf("unknown opcode: %d", instr.Op)
		}
	}
}

var errHaltedByObserver = errors.New("execution halted by observer")

// unwind pops one frame and restores the caller's instruction pointer,
// locals, and function. The popped function is known to exist because it
// was resolved when it was called. The second result is false when the
// observer asked to halt.
func (vm *VirtualMachine[T, E]) unwind(fellThrough bool) (*loadedFunc[T, E], bool) {
	leaving := vm.current
	f := vm.frames[len(vm.frames)-1]
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.ip = f.returnAddr
	vm.locals = f.locals
	vm.current = f.fn
	if vm.observer != nil {
		event := ReturnEvent{
			Func:        leaving,
			FellThrough: fellThrough,
			FrameDepth:  len(vm.frames),
		}
		if !vm.observer.OnReturn(event) {
			return nil, false
		}
	}
	return vm.loaded[f.fn], true
}
