// Package purple is an embeddable procedural virtual machine. Hosts author
// function tables programmatically out of typed instructions, then run them
// against a mutable environment. The engine provides calls, returns, jumps,
// conditional branches, per-frame symbol storage, a LIFO parameter channel
// for cross-call argument passing, and structured escape hatches
// (SysCall, LoadFromExec, LoadFromSysCall) for host computation and side
// effects.
//
// The engine is generic over the host value type T and the environment
// type E:
//
//	table := bytecode.Table[uint, uint]{
//		bytecode.Entry: {
//			bytecode.LoadValue[uint, uint](0, 55),
//			bytecode.Return[uint, uint](0),
//		},
//	}
//	result, err := purple.Run(context.Background(), table, &env)
//
// See the bytecode package for the instruction set and the vm package for
// the reusable engine with options (observers, logging, resource limits).
package purple

import (
	"context"

	"github.com/cloudcmds/purple/bytecode"
	"github.com/cloudcmds/purple/object"
	"github.com/cloudcmds/purple/vm"
)

// Sentinel errors for resource limits.
var (
	ErrStackOverflow     = vm.ErrStackOverflow
	ErrStepLimitExceeded = vm.ErrStepLimitExceeded
)

// Run executes the table's entry function against env and returns the value
// written by the last executed Return, or nil if no Return executed. The
// environment is borrowed exclusively for the duration of the run and
// passed to side-effecting callbacks under the same exclusivity.
//
// Run is the one-shot form; use vm.New for a reusable machine.
func Run[T, E any](ctx context.Context, table bytecode.Table[T, E], env *E, options ...vm.Option[T, E]) (*object.Value[T], error) {
	return vm.Run(ctx, table, env, options...)
}
