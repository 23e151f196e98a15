package vm

import (
	"github.com/cloudcmds/purple/bytecode"
	"github.com/cloudcmds/purple/errz"
	"github.com/cloudcmds/purple/object"
	"github.com/cloudcmds/purple/op"
)

// loadedFunc is a function body paired with its label map. Label maps are
// built for every function before the first instruction executes, so
// program-structure errors surface before any side effect runs and forward
// jumps resolve without having executed the target Label first.
type loadedFunc[T, E any] struct {
	fn     object.Func
	body   bytecode.Body[T, E]
	labels map[object.Label]int
}

// loadFunc scans a body once and records the index of each defining Label
// instruction. A label defined twice in one body is an error.
func loadFunc[T, E any](fn object.Func, body bytecode.Body[T, E]) (*loadedFunc[T, E], error) {
	labels := map[object.Label]int{}
	for i, instr := range body {
		if instr.Op != op.Label {
			continue
		}
		if _, ok := labels[instr.Label]; ok {
			return nil, &errz.RedefinitionOfLabelError{
				Func:  uint(fn),
				Label: uint(instr.Label),
			}
		}
		labels[instr.Label] = i
	}
	return &loadedFunc[T, E]{fn: fn, body: body, labels: labels}, nil
}

// target resolves a jump or branch destination against the label map. The
// returned index points at the Label instruction itself, which is a no-op
// that then advances.
func (f *loadedFunc[T, E]) target(l object.Label) (int, error) {
	idx, ok := f.labels[l]
	if !ok {
		return 0, &errz.LabelDoesNotExistError{
			Func:  uint(f.fn),
			Label: uint(l),
		}
	}
	return idx, nil
}
