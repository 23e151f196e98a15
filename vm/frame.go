package vm

import (
	"github.com/cloudcmds/purple/object"
)

// frame is a saved execution context: the function whose body was active,
// the instruction pointer to resume at, and the caller's locals. Call moves
// the current locals into the pushed frame and gives the callee a fresh
// Locals, so exactly one live reference to each frame's storage exists at
// any time.
type frame[T any] struct {
	returnAddr int
	locals     *object.Locals[T]
	fn         object.Func
}
