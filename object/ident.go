package object

// The engine names things in three disjoint integer-indexed name spaces.
// Each gets a distinct nominal type so a label can never be passed where a
// symbol is expected.

// Func is a function handle: a key into the function table.
type Func uint

// Label names an instruction position within one function. Labels are
// scoped to the function whose body defines them.
type Label uint

// Symbol names a local slot within one frame. Symbols are scoped to the
// frame; the same symbol in two frames refers to two independent slots.
type Symbol uint
