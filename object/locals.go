package object

import "github.com/cloudcmds/purple/errz"

// Locals is the per-frame mapping from symbol to value. A Locals is owned by
// exactly one frame and is tagged with the handle of the function that frame
// executes, so symbol-miss errors can say where the read happened. Slots
// have no declared type and no pre-allocation; they materialize on first
// Set.
type Locals[T any] struct {
	fn   Func
	vars map[Symbol]Value[T]
}

// NewLocals creates an empty Locals for a frame of the given function.
func NewLocals[T any](fn Func) *Locals[T] {
	return &Locals[T]{fn: fn, vars: map[Symbol]Value[T]{}}
}

// Get returns the value bound to sym, or an errz.SymbolDoesNotExistError if
// the symbol was never set in this frame. The value is returned by copy.
func (l *Locals[T]) Get(sym Symbol) (Value[T], error) {
	v, ok := l.vars[sym]
	if !ok {
		return Value[T]{}, &errz.SymbolDoesNotExistError{
			Func:   uint(l.fn),
			Symbol: uint(sym),
		}
	}
	return v, nil
}

// Set unconditionally (re)binds sym to the given value.
func (l *Locals[T]) Set(sym Symbol, v Value[T]) {
	l.vars[sym] = v
}

// Func returns the handle of the function whose frame owns these locals.
func (l *Locals[T]) Func() Func {
	return l.fn
}

// Len returns the number of bound symbols.
func (l *Locals[T]) Len() int {
	return len(l.vars)
}
