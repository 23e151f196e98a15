package vm

import (
	"context"

	"github.com/cloudcmds/purple/bytecode"
	"github.com/cloudcmds/purple/object"
)

// Run builds a VirtualMachine for the table and executes it against env in
// one shot. It returns the value written by the last executed Return, or
// nil if no Return executed.
func Run[T, E any](ctx context.Context, table bytecode.Table[T, E], env *E, options ...Option[T, E]) (*object.Value[T], error) {
	machine, err := New(table, options...)
	if err != nil {
		return nil, err
	}
	return machine.Run(ctx, env)
}
