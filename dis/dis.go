// Package dis provides a disassembler for purple function tables. It is a
// debugging aid: the listings show each body the way the dispatcher sees
// it, with resolved opcode names and operands.
package dis

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/cloudcmds/purple/bytecode"
	"github.com/cloudcmds/purple/object"
	"github.com/cloudcmds/purple/op"
	"github.com/fatih/color"
)

// Row describes one disassembled instruction.
type Row struct {
	Offset   int
	Opcode   string
	Operands string
	Info     string
}

// Listing is the disassembly of one function body.
type Listing struct {
	Func object.Func
	Rows []Row
}

// Disassemble produces listings for every function in the table, ordered by
// function handle.
func Disassemble[T, E any](table bytecode.Table[T, E]) []Listing {
	fns := make([]object.Func, 0, len(table))
	for fn := range table {
		fns = append(fns, fn)
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i] < fns[j] })

	listings := make([]Listing, 0, len(fns))
	for _, fn := range fns {
		body := table[fn]
		rows := make([]Row, 0, len(body))
		for i, instr := range body {
			rows = append(rows, disassemble(i, instr))
		}
		listings = append(listings, Listing{Func: fn, Rows: rows})
	}
	return listings
}

func disassemble[T, E any](offset int, instr bytecode.Instruction[T, E]) Row {
	row := Row{Offset: offset, Opcode: op.GetInfo(instr.Op).Name}
	switch instr.Op {
	case op.Label, op.Jump:
		row.Operands = fmt.Sprintf("label(%d)", instr.Label)
	case op.BranchOnTrue:
		row.Operands = fmt.Sprintf("label(%d)", instr.Label)
		row.Info = "predicate"
	case op.Return, op.LoadFromReturn, op.Call, op.PushParam, op.PopParam:
		row.Operands = fmt.Sprintf("sym(%d)", instr.Symbol)
	case op.LoadValue:
		row.Operands = fmt.Sprintf("sym(%d)", instr.Symbol)
		row.Info = fmt.Sprintf("%v", instr.Value)
	case op.LoadFunc:
		row.Operands = fmt.Sprintf("sym(%d)", instr.Symbol)
		row.Info = fmt.Sprintf("func(%d)", instr.Func)
	case op.LoadFromExec:
		row.Operands = fmt.Sprintf("sym(%d)", instr.Symbol)
		row.Info = "callback"
	case op.SysCall:
		row.Info = "callback"
	case op.LoadFromSysCall:
		row.Operands = fmt.Sprintf("sym(%d)", instr.Symbol)
		row.Info = "callback"
	}
	return row
}

var opcodeColor = color.New(color.FgCyan)

// Fprint renders listings to w as bordered tables, one per function.
func Fprint(w io.Writer, listings []Listing) {
	for i, listing := range listings {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "func(%d):\n", listing.Func)
		printTable(w, listing.Rows)
	}
}

// Print renders listings to stdout.
func Print(listings []Listing) {
	Fprint(os.Stdout, listings)
}

func printTable(w io.Writer, rows []Row) {
	headers := []string{"OFFSET", "OPCODE", "OPERANDS", "INFO"}
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, r := range rows {
		cells := rowCells(r)
		for i, c := range cells {
			if len(c) > widths[i] {
				widths[i] = len(c)
			}
		}
	}

	border := "+"
	for _, width := range widths {
		border += strings.Repeat("-", width+2) + "+"
	}
	fmt.Fprintln(w, border)
	fmt.Fprint(w, "|")
	for i, h := range headers {
		fmt.Fprintf(w, " %s |", center(h, widths[i]))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, border)
	for _, r := range rows {
		cells := rowCells(r)
		fmt.Fprint(w, "|")
		for i, c := range cells {
			padded := c + strings.Repeat(" ", widths[i]-len(c))
			if i == 0 {
				// Right-align the offset column
				padded = strings.Repeat(" ", widths[i]-len(c)) + c
			} else if i == 1 {
				padded = opcodeColor.Sprint(padded)
			}
			fmt.Fprintf(w, " %s |", padded)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, border)
}

func rowCells(r Row) []string {
	return []string{fmt.Sprintf("%d", r.Offset), r.Opcode, r.Operands, r.Info}
}

func center(s string, width int) string {
	left := (width - len(s)) / 2
	right := width - len(s) - left
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", right)
}
