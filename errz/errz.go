// Package errz defines the typed failure kinds surfaced to hosts by the
// purple virtual machine. Every error here is terminal for a run: the engine
// aborts immediately and no partial state is rolled back.
//
// The identifier payloads are carried as raw integer ids rather than the
// nominal identifier types, so this package stays a leaf that anything in
// the module can depend on.
package errz

import "fmt"

// Kind represents the category of a VM error.
type Kind int

const (
	// ErrFunction indicates a reference to a function handle that is not
	// present in the function table.
	ErrFunction Kind = iota
	// ErrSymbol indicates a read of a local symbol that was never set in
	// the current frame.
	ErrSymbol
	// ErrLabelRedefined indicates two Label instructions in one body
	// sharing the same label id.
	ErrLabelRedefined
	// ErrLabelMissing indicates a Jump or BranchOnTrue target that names an
	// unknown label.
	ErrLabelMissing
	// ErrReturnNotSet indicates a LoadFromReturn before any Return executed.
	ErrReturnNotSet
	// ErrCallNonFunction indicates a Call through a symbol whose value is
	// not a function handle.
	ErrCallNonFunction
	// ErrEmptyParams indicates a PopParam on an empty parameter channel.
	ErrEmptyParams
)

// String returns the string representation of the error kind.
func (k Kind) String() string {
	switch k {
	case ErrFunction:
		return "function does not exist"
	case ErrSymbol:
		return "symbol does not exist"
	case ErrLabelRedefined:
		return "redefinition of label"
	case ErrLabelMissing:
		return "label does not exist"
	case ErrReturnNotSet:
		return "return not set"
	case ErrCallNonFunction:
		return "attempt to call non-function"
	case ErrEmptyParams:
		return "attempt to pop empty params"
	default:
		return "error"
	}
}

// VMError is the interface implemented by every failure kind the engine can
// raise on its own. Callback errors are re-raised verbatim and do not
// implement it.
type VMError interface {
	error
	Kind() Kind
}

// FunctionDoesNotExistError is raised when the entry handle is missing from
// the function table or a Call targets a handle that is not present.
type FunctionDoesNotExistError struct {
	Func uint
}

func (e *FunctionDoesNotExistError) Error() string {
	return fmt.Sprintf("%s: func(%d)", ErrFunction, e.Func)
}

func (e *FunctionDoesNotExistError) Kind() Kind { return ErrFunction }

// SymbolDoesNotExistError is raised when a local symbol is read before it
// was set in the same frame.
type SymbolDoesNotExistError struct {
	Func   uint
	Symbol uint
}

func (e *SymbolDoesNotExistError) Error() string {
	return fmt.Sprintf("%s: sym(%d) in func(%d)", ErrSymbol, e.Symbol, e.Func)
}

func (e *SymbolDoesNotExistError) Kind() Kind { return ErrSymbol }

// RedefinitionOfLabelError is raised while building label maps, when one
// body contains two Label instructions carrying the same label.
type RedefinitionOfLabelError struct {
	Func  uint
	Label uint
}

func (e *RedefinitionOfLabelError) Error() string {
	return fmt.Sprintf("%s: label(%d) in func(%d)", ErrLabelRedefined, e.Label, e.Func)
}

func (e *RedefinitionOfLabelError) Kind() Kind { return ErrLabelRedefined }

// LabelDoesNotExistError is raised when a Jump or BranchOnTrue names a label
// absent from the current function's label map.
type LabelDoesNotExistError struct {
	Func  uint
	Label uint
}

func (e *LabelDoesNotExistError) Error() string {
	return fmt.Sprintf("%s: label(%d) in func(%d)", ErrLabelMissing, e.Label, e.Func)
}

func (e *LabelDoesNotExistError) Kind() Kind { return ErrLabelMissing }

// ReturnNotSetError is raised when LoadFromReturn executes before the first
// Return of the run.
type ReturnNotSetError struct {
	Func   uint
	Symbol uint
}

func (e *ReturnNotSetError) Error() string {
	return fmt.Sprintf("%s: load into sym(%d) in func(%d)", ErrReturnNotSet, e.Symbol, e.Func)
}

func (e *ReturnNotSetError) Kind() Kind { return ErrReturnNotSet }

// CallNonFunctionError is raised when the value at a Call's symbol is not a
// function handle.
type CallNonFunctionError struct {
	Func uint
}

func (e *CallNonFunctionError) Error() string {
	return fmt.Sprintf("%s: in func(%d)", ErrCallNonFunction, e.Func)
}

func (e *CallNonFunctionError) Kind() Kind { return ErrCallNonFunction }

// EmptyParamsError is raised when PopParam executes with an empty parameter
// channel.
type EmptyParamsError struct {
	Func   uint
	Symbol uint
}

func (e *EmptyParamsError) Error() string {
	return fmt.Sprintf("%s: pop into sym(%d) in func(%d)", ErrEmptyParams, e.Symbol, e.Func)
}

func (e *EmptyParamsError) Kind() Kind { return ErrEmptyParams }
