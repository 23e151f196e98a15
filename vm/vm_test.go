package vm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudcmds/purple/bytecode"
	"github.com/cloudcmds/purple/errz"
	"github.com/cloudcmds/purple/object"
	"github.com/stretchr/testify/require"
)

// Most tests use uint for both the host value type and the environment.
type table = bytecode.Table[uint, uint]

func runTable(t *testing.T, tbl table, env *uint) (*object.Value[uint], error) {
	t.Helper()
	return Run(context.Background(), tbl, env)
}

func requireHost(t *testing.T, v *object.Value[uint], want uint) {
	t.Helper()
	require.NotNil(t, v)
	got, ok := v.Host()
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestEmptyEntryFunction(t *testing.T) {
	tbl := table{bytecode.Entry: {}}
	env := uint(0)
	result, err := runTable(t, tbl, &env)
	require.Nil(t, err)
	require.Nil(t, result)
}

func TestReturnValue(t *testing.T) {
	tbl := table{
		bytecode.Entry: {
			bytecode.LoadValue[uint, uint](0, 55),
			bytecode.Return[uint, uint](0),
		},
	}
	env := uint(0)
	result, err := runTable(t, tbl, &env)
	require.Nil(t, err)
	requireHost(t, result, 55)
}

func TestJumpPastEarlyReturn(t *testing.T) {
	ignore := object.Symbol(0)
	ret := object.Symbol(1)
	tbl := table{
		bytecode.Entry: {
			bytecode.LoadValue[uint, uint](ignore, 55),
			bytecode.LoadValue[uint, uint](ret, 10),
			bytecode.Jump[uint, uint](0),
			bytecode.Return[uint, uint](ignore),
			bytecode.Label[uint, uint](0),
			bytecode.Return[uint, uint](ret),
		},
	}
	env := uint(0)
	result, err := runTable(t, tbl, &env)
	require.Nil(t, err)
	requireHost(t, result, 10)
}

func TestPushPopParam(t *testing.T) {
	tbl := table{
		bytecode.Entry: {
			bytecode.LoadValue[uint, uint](0, 10),
			bytecode.PushParam[uint, uint](0),
			bytecode.PopParam[uint, uint](1),
			bytecode.Return[uint, uint](1),
		},
	}
	env := uint(0)
	result, err := runTable(t, tbl, &env)
	require.Nil(t, err)
	requireHost(t, result, 10)
}

func TestParamLIFOOrder(t *testing.T) {
	// Push 1, 2, 3 then pop into three symbols: the pops observe 3, 2, 1.
	tbl := table{
		bytecode.Entry: {
			bytecode.LoadValue[uint, uint](0, 1),
			bytecode.PushParam[uint, uint](0),
			bytecode.LoadValue[uint, uint](0, 2),
			bytecode.PushParam[uint, uint](0),
			bytecode.LoadValue[uint, uint](0, 3),
			bytecode.PushParam[uint, uint](0),
			bytecode.PopParam[uint, uint](1),
			bytecode.PopParam[uint, uint](2),
			bytecode.PopParam[uint, uint](3),
			bytecode.LoadFromExec[uint, uint](4, func(locals *object.Locals[uint]) (object.Value[uint], error) {
				var digits uint
				for _, sym := range []object.Symbol{1, 2, 3} {
					v, err := locals.Get(sym)
					if err != nil {
						return object.Value[uint]{}, err
					}
					x, _ := v.Host()
					digits = digits*10 + x
				}
				return object.NewHost(digits), nil
			}),
			bytecode.Return[uint, uint](4),
		},
	}
	env := uint(0)
	result, err := runTable(t, tbl, &env)
	require.Nil(t, err)
	requireHost(t, result, 321)
}

func TestSysCall(t *testing.T) {
	tbl := table{
		bytecode.Entry: {
			bytecode.LoadValue[uint, uint](0, 10),
			bytecode.SysCall[uint, uint](func(locals *object.Locals[uint], env *uint) error {
				v, err := locals.Get(0)
				if err != nil {
					return err
				}
				if x, ok := v.Host(); ok {
					*env = x
				}
				return nil
			}),
		},
	}
	env := uint(0)
	result, err := runTable(t, tbl, &env)
	require.Nil(t, err)
	require.Nil(t, result)
	require.Equal(t, uint(10), env)
}

func TestLoadFromSysCall(t *testing.T) {
	tbl := table{
		bytecode.Entry: {
			bytecode.LoadValue[uint, uint](0, 7),
			bytecode.LoadFromSysCall[uint, uint](1, func(locals *object.Locals[uint], env *uint) (object.Value[uint], error) {
				v, err := locals.Get(0)
				if err != nil {
					return object.Value[uint]{}, err
				}
				x, _ := v.Host()
				return object.NewHost(*env + x), nil
			}),
			bytecode.Return[uint, uint](1),
		},
	}
	env := uint(11)
	result, err := runTable(t, tbl, &env)
	require.Nil(t, err)
	requireHost(t, result, 18)
}

func TestLoadFromExec(t *testing.T) {
	tbl := table{
		bytecode.Entry: {
			bytecode.LoadValue[uint, uint](0, 7),
			bytecode.LoadFromExec[uint, uint](1, func(locals *object.Locals[uint]) (object.Value[uint], error) {
				v, err := locals.Get(0)
				if err != nil {
					return object.Value[uint]{}, err
				}
				x, _ := v.Host()
				return object.NewHost(x + 11), nil
			}),
			bytecode.Return[uint, uint](1),
		},
	}
	env := uint(0)
	result, err := runTable(t, tbl, &env)
	require.Nil(t, err)
	requireHost(t, result, 18)
}

// branchTable branches when locals[0] equals want. Whichever path runs
// returns the 7 stored at symbol 0; reaching symbol 1's 11 instead would
// mean the branch went the wrong way.
func branchTable(want uint, fallThrough, target object.Symbol) table {
	return table{
		bytecode.Entry: {
			bytecode.LoadValue[uint, uint](0, 7),
			bytecode.LoadValue[uint, uint](1, 11),
			bytecode.BranchOnTrue[uint, uint](0, func(locals *object.Locals[uint]) (bool, error) {
				v, err := locals.Get(0)
				if err != nil {
					return false, err
				}
				x, _ := v.Host()
				return x == want, nil
			}),
			bytecode.Return[uint, uint](fallThrough),
			bytecode.Label[uint, uint](0),
			bytecode.Return[uint, uint](target),
		},
	}
}

func TestBranchTaken(t *testing.T) {
	env := uint(0)
	result, err := runTable(t, branchTable(7, 1, 0), &env)
	require.Nil(t, err)
	requireHost(t, result, 7)
}

func TestBranchNotTaken(t *testing.T) {
	env := uint(0)
	result, err := runTable(t, branchTable(0, 0, 1), &env)
	require.Nil(t, err)
	requireHost(t, result, 7)
}

func TestCallFallThrough(t *testing.T) {
	// The callee has an empty body; the caller's locals survive the call.
	tbl := table{
		bytecode.Entry: {
			bytecode.LoadValue[uint, uint](0, 7),
			bytecode.LoadFunc[uint, uint](1, 1),
			bytecode.Call[uint, uint](1),
			bytecode.Return[uint, uint](0),
		},
		1: {},
	}
	env := uint(0)
	result, err := runTable(t, tbl, &env)
	require.Nil(t, err)
	requireHost(t, result, 7)
}

func TestCallWithReturn(t *testing.T) {
	tbl := table{
		bytecode.Entry: {
			bytecode.LoadFunc[uint, uint](1, 1),
			bytecode.Call[uint, uint](1),
			bytecode.LoadFromReturn[uint, uint](0),
			bytecode.Return[uint, uint](0),
		},
		1: {
			bytecode.LoadValue[uint, uint](0, 7),
			bytecode.Return[uint, uint](0),
		},
	}
	env := uint(0)
	result, err := runTable(t, tbl, &env)
	require.Nil(t, err)
	requireHost(t, result, 7)
}

func TestParamsAcrossCalls(t *testing.T) {
	tbl := table{
		bytecode.Entry: {
			bytecode.LoadValue[uint, uint](0, 7),
			bytecode.PushParam[uint, uint](0),
			bytecode.LoadValue[uint, uint](0, 11),
			bytecode.PushParam[uint, uint](0),
			bytecode.LoadFunc[uint, uint](1, 1),
			bytecode.Call[uint, uint](1),
			bytecode.LoadFromReturn[uint, uint](0),
			bytecode.Return[uint, uint](0),
		},
		1: {
			bytecode.PopParam[uint, uint](0),
			bytecode.PopParam[uint, uint](1),
			bytecode.LoadFromExec[uint, uint](0, func(locals *object.Locals[uint]) (object.Value[uint], error) {
				a, err := locals.Get(0)
				if err != nil {
					return object.Value[uint]{}, err
				}
				b, err := locals.Get(1)
				if err != nil {
					return object.Value[uint]{}, err
				}
				x, _ := a.Host()
				y, _ := b.Host()
				return object.NewHost(x + y), nil
			}),
			bytecode.Return[uint, uint](0),
		},
	}
	env := uint(0)
	result, err := runTable(t, tbl, &env)
	require.Nil(t, err)
	requireHost(t, result, 18)
}

func TestResidualParams(t *testing.T) {
	// A callee may pop fewer values than were pushed; the residual stays on
	// the channel for a later callee. No arity check is performed.
	tbl := table{
		bytecode.Entry: {
			bytecode.LoadValue[uint, uint](0, 1),
			bytecode.PushParam[uint, uint](0),
			bytecode.LoadValue[uint, uint](0, 2),
			bytecode.PushParam[uint, uint](0),
			bytecode.LoadFunc[uint, uint](1, 1),
			bytecode.Call[uint, uint](1),
			bytecode.PopParam[uint, uint](2),
			bytecode.Return[uint, uint](2),
		},
		1: {
			bytecode.PopParam[uint, uint](0),
		},
	}
	env := uint(0)
	result, err := runTable(t, tbl, &env)
	require.Nil(t, err)
	requireHost(t, result, 1)
}

func TestSymbolIsolationBetweenCalls(t *testing.T) {
	tbl := table{
		bytecode.Entry: {
			bytecode.LoadValue[uint, uint](0, 2),
			bytecode.LoadFunc[uint, uint](1, 1),
			bytecode.Call[uint, uint](1),
			bytecode.Return[uint, uint](0),
		},
		1: {
			bytecode.LoadValue[uint, uint](0, 7),
		},
	}
	env := uint(0)
	result, err := runTable(t, tbl, &env)
	require.Nil(t, err)
	requireHost(t, result, 2)
}

func TestFallThroughPreservesReturnSlot(t *testing.T) {
	// Function 1 returns 42; function 2 falls through without a Return. The
	// slot still holds 42 afterwards.
	tbl := table{
		bytecode.Entry: {
			bytecode.LoadFunc[uint, uint](0, 1),
			bytecode.Call[uint, uint](0),
			bytecode.LoadFunc[uint, uint](0, 2),
			bytecode.Call[uint, uint](0),
			bytecode.LoadFromReturn[uint, uint](1),
			bytecode.Return[uint, uint](1),
		},
		1: {
			bytecode.LoadValue[uint, uint](0, 42),
			bytecode.Return[uint, uint](0),
		},
		2: {
			bytecode.LoadValue[uint, uint](0, 99),
		},
	}
	env := uint(0)
	result, err := runTable(t, tbl, &env)
	require.Nil(t, err)
	requireHost(t, result, 42)
}

// sumTable builds sum(n) = n == 0 ? 0 : n + sum(n-1) with the argument
// passed over the parameter channel.
func sumTable(n uint) table {
	const (
		fnSym  object.Symbol = 0
		input  object.Symbol = 1
		result object.Symbol = 2
		next   object.Symbol = 3
	)
	const end object.Label = 0
	return table{
		bytecode.Entry: {
			bytecode.LoadValue[uint, uint](input, n),
			bytecode.PushParam[uint, uint](input),
			bytecode.LoadFunc[uint, uint](fnSym, 1),
			bytecode.Call[uint, uint](fnSym),
			bytecode.LoadFromReturn[uint, uint](result),
			bytecode.Return[uint, uint](result),
		},
		1: {
			bytecode.PopParam[uint, uint](input),
			bytecode.BranchOnTrue[uint, uint](end, func(locals *object.Locals[uint]) (bool, error) {
				v, err := locals.Get(input)
				if err != nil {
					return false, err
				}
				x, _ := v.Host()
				return x == 0, nil
			}),
			bytecode.LoadFromExec[uint, uint](next, func(locals *object.Locals[uint]) (object.Value[uint], error) {
				v, err := locals.Get(input)
				if err != nil {
					return object.Value[uint]{}, err
				}
				x, _ := v.Host()
				return object.NewHost(x - 1), nil
			}),
			bytecode.PushParam[uint, uint](next),
			bytecode.LoadFunc[uint, uint](fnSym, 1),
			bytecode.Call[uint, uint](fnSym),
			bytecode.LoadFromReturn[uint, uint](result),
			bytecode.LoadFromExec[uint, uint](result, func(locals *object.Locals[uint]) (object.Value[uint], error) {
				a, err := locals.Get(input)
				if err != nil {
					return object.Value[uint]{}, err
				}
				b, err := locals.Get(result)
				if err != nil {
					return object.Value[uint]{}, err
				}
				x, _ := a.Host()
				y, _ := b.Host()
				return object.NewHost(x + y), nil
			}),
			bytecode.Return[uint, uint](result),
			bytecode.Label[uint, uint](end),
			bytecode.Return[uint, uint](input),
		},
	}
}

func TestRecursiveSum(t *testing.T) {
	env := uint(0)
	result, err := runTable(t, sumTable(5), &env)
	require.Nil(t, err)
	requireHost(t, result, 15)
}

func TestCallMissingFunction(t *testing.T) {
	tbl := table{
		bytecode.Entry: {
			bytecode.LoadFunc[uint, uint](0, 7),
			bytecode.Call[uint, uint](0),
		},
	}
	env := uint(0)
	_, err := runTable(t, tbl, &env)
	var fnErr *errz.FunctionDoesNotExistError
	require.ErrorAs(t, err, &fnErr)
	require.Equal(t, uint(7), fnErr.Func)
}

func TestCallNonFunction(t *testing.T) {
	tbl := table{
		bytecode.Entry: {
			bytecode.LoadValue[uint, uint](0, 5),
			bytecode.Call[uint, uint](0),
		},
	}
	env := uint(0)
	_, err := runTable(t, tbl, &env)
	var callErr *errz.CallNonFunctionError
	require.ErrorAs(t, err, &callErr)
	require.Equal(t, uint(bytecode.Entry), callErr.Func)
}

func TestMissingEntryFunction(t *testing.T) {
	tbl := table{1: {}}
	_, err := New(tbl)
	var fnErr *errz.FunctionDoesNotExistError
	require.ErrorAs(t, err, &fnErr)
	require.Equal(t, uint(0), fnErr.Func)
}

func TestDuplicateLabelFailsBeforeExecution(t *testing.T) {
	// The duplicate is in a function other than the entry, and the entry
	// would have run a side effect. Structural errors surface first.
	called := false
	tbl := table{
		bytecode.Entry: {
			bytecode.SysCall[uint, uint](func(locals *object.Locals[uint], env *uint) error {
				called = true
				return nil
			}),
		},
		1: {
			bytecode.Label[uint, uint](3),
			bytecode.Label[uint, uint](3),
		},
	}
	env := uint(0)
	_, err := runTable(t, tbl, &env)
	var labelErr *errz.RedefinitionOfLabelError
	require.ErrorAs(t, err, &labelErr)
	require.Equal(t, uint(1), labelErr.Func)
	require.Equal(t, uint(3), labelErr.Label)
	require.False(t, called)
}

func TestJumpToMissingLabel(t *testing.T) {
	tbl := table{
		bytecode.Entry: {
			bytecode.Jump[uint, uint](9),
		},
	}
	env := uint(0)
	_, err := runTable(t, tbl, &env)
	var labelErr *errz.LabelDoesNotExistError
	require.ErrorAs(t, err, &labelErr)
	require.Equal(t, uint(0), labelErr.Func)
	require.Equal(t, uint(9), labelErr.Label)
}

func TestBranchToMissingLabel(t *testing.T) {
	always := func(locals *object.Locals[uint]) (bool, error) { return true, nil }
	tbl := table{
		bytecode.Entry: {
			bytecode.BranchOnTrue[uint, uint](9, always),
		},
	}
	env := uint(0)
	_, err := runTable(t, tbl, &env)
	var labelErr *errz.LabelDoesNotExistError
	require.ErrorAs(t, err, &labelErr)
}

func TestLoadFromReturnBeforeReturn(t *testing.T) {
	tbl := table{
		bytecode.Entry: {
			bytecode.LoadFromReturn[uint, uint](4),
		},
	}
	env := uint(0)
	_, err := runTable(t, tbl, &env)
	var retErr *errz.ReturnNotSetError
	require.ErrorAs(t, err, &retErr)
	require.Equal(t, uint(0), retErr.Func)
	require.Equal(t, uint(4), retErr.Symbol)
}

func TestPopEmptyParams(t *testing.T) {
	tbl := table{
		bytecode.Entry: {
			bytecode.PopParam[uint, uint](2),
		},
	}
	env := uint(0)
	_, err := runTable(t, tbl, &env)
	var paramErr *errz.EmptyParamsError
	require.ErrorAs(t, err, &paramErr)
	require.Equal(t, uint(0), paramErr.Func)
	require.Equal(t, uint(2), paramErr.Symbol)
}

func TestSymbolDoesNotExist(t *testing.T) {
	tbl := table{
		bytecode.Entry: {
			bytecode.Return[uint, uint](5),
		},
	}
	env := uint(0)
	_, err := runTable(t, tbl, &env)
	var symErr *errz.SymbolDoesNotExistError
	require.ErrorAs(t, err, &symErr)
	require.Equal(t, uint(0), symErr.Func)
	require.Equal(t, uint(5), symErr.Symbol)
}

func TestCallbackErrorAborts(t *testing.T) {
	boom := errors.New("kaboom")
	tbl := table{
		bytecode.Entry: {
			bytecode.LoadFromExec[uint, uint](0, func(locals *object.Locals[uint]) (object.Value[uint], error) {
				return object.Value[uint]{}, boom
			}),
		},
	}
	env := uint(0)
	_, err := runTable(t, tbl, &env)
	require.ErrorIs(t, err, boom)
}

func TestPredicateErrorAborts(t *testing.T) {
	boom := errors.New("bad predicate")
	tbl := table{
		bytecode.Entry: {
			bytecode.BranchOnTrue[uint, uint](0, func(locals *object.Locals[uint]) (bool, error) {
				return false, boom
			}),
			bytecode.Label[uint, uint](0),
		},
	}
	env := uint(0)
	_, err := runTable(t, tbl, &env)
	require.ErrorIs(t, err, boom)
}

func TestSysCallErrorLeavesEnvironment(t *testing.T) {
	boom := errors.New("device gone")
	tbl := table{
		bytecode.Entry: {
			bytecode.SysCall[uint, uint](func(locals *object.Locals[uint], env *uint) error {
				*env = 3
				return nil
			}),
			bytecode.SysCall[uint, uint](func(locals *object.Locals[uint], env *uint) error {
				return boom
			}),
			bytecode.SysCall[uint, uint](func(locals *object.Locals[uint], env *uint) error {
				*env = 9
				return nil
			}),
		},
	}
	env := uint(0)
	_, err := runTable(t, tbl, &env)
	require.ErrorIs(t, err, boom)
	// The environment keeps whatever the last successful callback produced.
	require.Equal(t, uint(3), env)
}

func TestRunIsRepeatable(t *testing.T) {
	machine, err := New(sumTable(5))
	require.Nil(t, err)
	env := uint(0)
	for i := 0; i < 3; i++ {
		result, err := machine.Run(context.Background(), &env)
		require.Nil(t, err)
		requireHost(t, result, 15)
	}
}

func TestOverlappingRunRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	tbl := table{
		bytecode.Entry: {
			bytecode.SysCall[uint, uint](func(locals *object.Locals[uint], env *uint) error {
				close(started)
				<-release
				return nil
			}),
		},
	}
	machine, err := New(tbl)
	require.Nil(t, err)

	env := uint(0)
	done := make(chan error, 1)
	go func() {
		_, err := machine.Run(context.Background(), &env)
		done <- err
	}()
	<-started

	_, err = machine.Run(context.Background(), &env)
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "already running")

	close(release)
	require.Nil(t, <-done)
}

func TestStackOverflow(t *testing.T) {
	// The entry function calls itself forever.
	tbl := table{
		bytecode.Entry: {
			bytecode.LoadFunc[uint, uint](0, bytecode.Entry),
			bytecode.Call[uint, uint](0),
		},
	}
	env := uint(0)
	_, err := runTable(t, tbl, &env)
	require.ErrorIs(t, err, ErrStackOverflow)
}

func TestStepLimit(t *testing.T) {
	tbl := table{
		bytecode.Entry: {
			bytecode.Label[uint, uint](0),
			bytecode.Jump[uint, uint](0),
		},
	}
	env := uint(0)
	_, err := Run(context.Background(), tbl, &env, WithMaxSteps[uint, uint](100))
	require.ErrorIs(t, err, ErrStepLimitExceeded)
}

func TestContextCancellation(t *testing.T) {
	tbl := table{
		bytecode.Entry: {
			bytecode.Label[uint, uint](0),
			bytecode.Jump[uint, uint](0),
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	env := uint(0)
	_, err := Run(ctx, tbl, &env, WithContextCheckInterval[uint, uint](10))
	require.ErrorIs(t, err, context.Canceled)
}
