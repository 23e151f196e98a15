// Package bytecode defines the instruction set of the purple virtual
// machine and the function tables hosts build out of it.
//
// Programs are in-memory data structures: a Table maps function handles to
// bodies, and a body is an ordered slice of Instructions. Instructions that
// embed host computation carry the callback by value:
//
//	table := bytecode.Table[uint, uint]{
//		bytecode.Entry: {
//			bytecode.LoadValue[uint, uint](0, 55),
//			bytecode.Return[uint, uint](0),
//		},
//	}
//
// There is no wire format; tables are built, run, and thrown away.
package bytecode

import (
	"sort"

	"github.com/cloudcmds/purple/errz"
	"github.com/cloudcmds/purple/object"
	"github.com/cloudcmds/purple/op"
	"github.com/hashicorp/go-multierror"
)

// Entry is the function handle execution starts at. A Table missing this
// handle cannot be run.
const Entry object.Func = 0

// Predicate decides a BranchOnTrue. It may read the current frame's locals
// and has no handle to the environment.
type Predicate[T any] func(locals *object.Locals[T]) (bool, error)

// Exec produces a value for LoadFromExec. It may read the current frame's
// locals and is pure with respect to the environment.
type Exec[T any] func(locals *object.Locals[T]) (object.Value[T], error)

// SysFunc runs a SysCall for its side effects on the environment. SysFunc
// and SysExec are the sole route to host side effects.
type SysFunc[T, E any] func(locals *object.Locals[T], env *E) error

// SysExec produces a value for LoadFromSysCall and may mutate the
// environment while doing so.
type SysExec[T, E any] func(locals *object.Locals[T], env *E) (object.Value[T], error)

// Instruction is one typed VM instruction: an opcode plus its operands.
// Only the operand fields the opcode names are meaningful; the constructors
// below are the supported way to build well-formed instructions.
type Instruction[T, E any] struct {
	Op     op.Code
	Label  object.Label
	Symbol object.Symbol
	Func   object.Func
	Value  T

	Pred    Predicate[T]
	Exec    Exec[T]
	Sys     SysFunc[T, E]
	SysExec SysExec[T, E]
}

// Body is an ordered sequence of instructions making up one function.
type Body[T, E any] []Instruction[T, E]

// Table maps function handles to bodies. Keys are unique by construction.
// A Table must contain Entry to be runnable and must not be mutated while a
// VM holds it.
type Table[T, E any] map[object.Func]Body[T, E]

// Label marks an instruction position. Executing the mark is a no-op; its
// position is what Jump and BranchOnTrue resolve against. A label may be
// defined at most once per body.
func Label[T, E any](l object.Label) Instruction[T, E] {
	return Instruction[T, E]{Op: op.Label, Label: l}
}

// Jump transfers control to the Label instruction defining l in the current
// function.
func Jump[T, E any](l object.Label) Instruction[T, E] {
	return Instruction[T, E]{Op: op.Jump, Label: l}
}

// BranchOnTrue jumps to l when the predicate reports true, and falls
// through to the next instruction otherwise. Predicate errors abort the run.
func BranchOnTrue[T, E any](l object.Label, pred Predicate[T]) Instruction[T, E] {
	return Instruction[T, E]{Op: op.BranchOnTrue, Label: l, Pred: pred}
}

// Return writes the value at sym into the return slot, then unwinds one
// frame or, in the entry frame, terminates the run with that value.
func Return[T, E any](sym object.Symbol) Instruction[T, E] {
	return Instruction[T, E]{Op: op.Return, Symbol: sym}
}

// LoadValue binds sym to the given host value.
func LoadValue[T, E any](sym object.Symbol, v T) Instruction[T, E] {
	return Instruction[T, E]{Op: op.LoadValue, Symbol: sym, Value: v}
}

// LoadFromReturn binds sym to the value in the return slot. It is an error
// to execute this before any Return has run.
func LoadFromReturn[T, E any](sym object.Symbol) Instruction[T, E] {
	return Instruction[T, E]{Op: op.LoadFromReturn, Symbol: sym}
}

// LoadFunc binds sym to the handle fn. The handle's existence in the table
// is checked when Call executes, not here.
func LoadFunc[T, E any](sym object.Symbol, fn object.Func) Instruction[T, E] {
	return Instruction[T, E]{Op: op.LoadFunc, Symbol: sym, Func: fn}
}

// Call invokes the function whose handle is stored at sym, pushing a frame
// that resumes at the next instruction.
func Call[T, E any](sym object.Symbol) Instruction[T, E] {
	return Instruction[T, E]{Op: op.Call, Symbol: sym}
}

// PushParam pushes a copy of the value at sym onto the parameter channel.
func PushParam[T, E any](sym object.Symbol) Instruction[T, E] {
	return Instruction[T, E]{Op: op.PushParam, Symbol: sym}
}

// PopParam pops the top of the parameter channel into sym. Popping an empty
// channel is an error.
func PopParam[T, E any](sym object.Symbol) Instruction[T, E] {
	return Instruction[T, E]{Op: op.PopParam, Symbol: sym}
}

// LoadFromExec binds sym to the result of the callback.
func LoadFromExec[T, E any](sym object.Symbol, fn Exec[T]) Instruction[T, E] {
	return Instruction[T, E]{Op: op.LoadFromExec, Symbol: sym, Exec: fn}
}

// SysCall invokes the callback for its side effects on the environment.
func SysCall[T, E any](fn SysFunc[T, E]) Instruction[T, E] {
	return Instruction[T, E]{Op: op.SysCall, Sys: fn}
}

// LoadFromSysCall binds sym to the result of the callback, which may also
// mutate the environment.
func LoadFromSysCall[T, E any](sym object.Symbol, fn SysExec[T, E]) Instruction[T, E] {
	return Instruction[T, E]{Op: op.LoadFromSysCall, Symbol: sym, SysExec: fn}
}

// Validate statically checks the table and reports every structural problem
// it finds, aggregated into one error: a missing entry handle, labels
// defined twice in one body, and Jump or BranchOnTrue operands naming labels
// the body never defines.
//
// Validate is a host convenience. The engine performs the same label and
// entry checks itself and resolves jump targets at dispatch time, so an
// unvalidated table still fails safely.
func (t Table[T, E]) Validate() error {
	var result *multierror.Error

	if _, ok := t[Entry]; !ok {
		result = multierror.Append(result, &errz.FunctionDoesNotExistError{Func: uint(Entry)})
	}

	fns := make([]object.Func, 0, len(t))
	for fn := range t {
		fns = append(fns, fn)
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i] < fns[j] })

	for _, fn := range fns {
		body := t[fn]
		defined := map[object.Label]bool{}
		for _, instr := range body {
			if instr.Op != op.Label {
				continue
			}
			if defined[instr.Label] {
				result = multierror.Append(result, &errz.RedefinitionOfLabelError{
					Func:  uint(fn),
					Label: uint(instr.Label),
				})
				continue
			}
			defined[instr.Label] = true
		}
		for _, instr := range body {
			if instr.Op != op.Jump && instr.Op != op.BranchOnTrue {
				continue
			}
			if !defined[instr.Label] {
				result = multierror.Append(result, &errz.LabelDoesNotExistError{
					Func:  uint(fn),
					Label: uint(instr.Label),
				})
			}
		}
	}
	return result.ErrorOrNil()
}
