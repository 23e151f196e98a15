package main

import (
	"fmt"

	"github.com/cloudcmds/purple/bytecode"
	"github.com/cloudcmds/purple/object"
)

// The samples are small authored-by-hand tables demonstrating the embedding
// API. T is int and E is int for all of them.

type sample struct {
	name        string
	description string
	build       func(n int) bytecode.Table[int, int]
}

var samples = []sample{
	{
		name:        "constant",
		description: "load a constant and return it",
		build: func(n int) bytecode.Table[int, int] {
			return bytecode.Table[int, int]{
				bytecode.Entry: {
					bytecode.LoadValue[int, int](0, n),
					bytecode.Return[int, int](0),
				},
			}
		},
	},
	{
		name:        "branch",
		description: "branch on a predicate over locals",
		build: func(n int) bytecode.Table[int, int] {
			even := func(locals *object.Locals[int]) (bool, error) {
				v, err := locals.Get(0)
				if err != nil {
					return false, err
				}
				x, _ := v.Host()
				return x%2 == 0, nil
			}
			return bytecode.Table[int, int]{
				bytecode.Entry: {
					bytecode.LoadValue[int, int](0, n),
					bytecode.LoadValue[int, int](1, 0),
					bytecode.BranchOnTrue[int, int](0, even),
					bytecode.LoadValue[int, int](1, 1),
					bytecode.Label[int, int](0),
					bytecode.Return[int, int](1),
				},
			}
		},
	},
	{
		name:        "sum",
		description: "recursive sum of 0..n via the parameter channel",
		build:       sumTable,
	},
	{
		name:        "counter",
		description: "mutate the environment through sys calls",
		build: func(n int) bytecode.Table[int, int] {
			bump := func(locals *object.Locals[int], env *int) error {
				v, err := locals.Get(0)
				if err != nil {
					return err
				}
				x, _ := v.Host()
				*env += x
				return nil
			}
			read := func(locals *object.Locals[int], env *int) (object.Value[int], error) {
				return object.NewHost(*env), nil
			}
			return bytecode.Table[int, int]{
				bytecode.Entry: {
					bytecode.LoadValue[int, int](0, n),
					bytecode.SysCall[int, int](bump),
					bytecode.SysCall[int, int](bump),
					bytecode.LoadFromSysCall[int, int](1, read),
					bytecode.Return[int, int](1),
				},
			}
		},
	},
}

// sumTable builds sum(n) = n == 0 ? 0 : n + sum(n-1), the caller passing n
// over the parameter channel and reading the result back out of the return
// slot.
func sumTable(n int) bytecode.Table[int, int] {
	const (
		fnSym  object.Symbol = 0
		input  object.Symbol = 1
		result object.Symbol = 2
		next   object.Symbol = 3
	)
	const sum object.Func = 1
	const done object.Label = 0

	isZero := func(locals *object.Locals[int]) (bool, error) {
		v, err := locals.Get(input)
		if err != nil {
			return false, err
		}
		x, _ := v.Host()
		return x == 0, nil
	}
	decrement := func(locals *object.Locals[int]) (object.Value[int], error) {
		v, err := locals.Get(input)
		if err != nil {
			return object.Value[int]{}, err
		}
		x, _ := v.Host()
		return object.NewHost(x - 1), nil
	}
	add := func(locals *object.Locals[int]) (object.Value[int], error) {
		a, err := locals.Get(input)
		if err != nil {
			return object.Value[int]{}, err
		}
		b, err := locals.Get(result)
		if err != nil {
			return object.Value[int]{}, err
		}
		x, _ := a.Host()
		y, _ := b.Host()
		return object.NewHost(x + y), nil
	}

	return bytecode.Table[int, int]{
		bytecode.Entry: {
			bytecode.LoadValue[int, int](input, n),
			bytecode.PushParam[int, int](input),
			bytecode.LoadFunc[int, int](fnSym, sum),
			bytecode.Call[int, int](fnSym),
			bytecode.LoadFromReturn[int, int](result),
			bytecode.Return[int, int](result),
		},
		sum: {
			bytecode.PopParam[int, int](input),
			bytecode.BranchOnTrue[int, int](done, isZero),
			bytecode.LoadFromExec[int, int](next, decrement),
			bytecode.PushParam[int, int](next),
			bytecode.LoadFunc[int, int](fnSym, sum),
			bytecode.Call[int, int](fnSym),
			bytecode.LoadFromReturn[int, int](result),
			bytecode.LoadFromExec[int, int](result, add),
			bytecode.Return[int, int](result),
			bytecode.Label[int, int](done),
			bytecode.Return[int, int](input),
		},
	}
}

func findSample(name string) (sample, error) {
	for _, s := range samples {
		if s.name == name {
			return s, nil
		}
	}
	return sample{}, fmt.Errorf("unknown sample: %q", name)
}
