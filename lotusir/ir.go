// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lotusir defines the contract the pointer/value-flow engine
// requires from a host SSA-form IR. The engine never constructs or
// mutates IR nodes; it only asks them their identity, their operands,
// and their opcode family (spec.md §6, "IR contract (consumed)").
//
// A concrete binding lives in lotusir/ssaadapter, which implements
// this contract over golang.org/x/tools/go/ssa. Nothing under
// memmodel, ptgraph, intra, cgstate, fpresults, inter, vfg, reach, or
// report imports ssaadapter or golang.org/x/tools/go/ssa directly —
// they depend only on the interfaces here.
package lotusir

// Value is any SSA value: an instruction result, a constant, a
// global, a parameter, or a function. Value identity is pointer
// identity of the underlying host node; the engine uses Values as
// map keys.
type Value interface {
	// Name is a short, human-readable identifier, e.g. "%3" or "x".
	Name() string
	// Type reports whether the value is a pointer and, for integers,
	// its bit width. The engine never needs more than this.
	Type() Type
	// Pos returns a position usable to look up file/line/column via
	// a host-specific FileSet. Zero means unknown.
	Pos() int
}

// Instruction is a Value that also occupies a position in its
// function's instruction stream. Not all Values are Instructions
// (constants and globals are not).
type Instruction interface {
	Value
	// Block returns the basic block containing this instruction.
	Block() BasicBlock
	// Operands returns the instruction's operand values in a stable
	// order. The returned slice must not be mutated by the caller.
	Operands() []Value
	// Parent returns the enclosing function.
	Parent() Function
	// Kind discriminates the opcode family per spec.md §4.3.
	Kind() Kind
}

// Kind discriminates the instruction families spec.md §4.3's transfer
// table dispatches on.
type Kind int

const (
	KindOther Kind = iota
	KindAlloc
	KindGlobalRef
	KindNullConst
	KindBitcastOrGEP
	KindLoad
	KindStore
	KindPhi
	KindSelect
	KindCallDirect
	KindCallIndirect
	KindCast
	KindReturn
)

func (k Kind) String() string {
	switch k {
	case KindAlloc:
		return "alloc"
	case KindGlobalRef:
		return "global-ref"
	case KindNullConst:
		return "null-const"
	case KindBitcastOrGEP:
		return "bitcast-or-gep"
	case KindLoad:
		return "load"
	case KindStore:
		return "store"
	case KindPhi:
		return "phi"
	case KindSelect:
		return "select"
	case KindCallDirect:
		return "call-direct"
	case KindCallIndirect:
		return "call-indirect"
	case KindCast:
		return "cast"
	case KindReturn:
		return "return"
	default:
		return "other"
	}
}

// Type is the minimal type information the engine needs: whether a
// value is pointer-typed (points-to sets are only meaningful for
// pointers) and, for integers, a bit width (used by the integer
// checkers layered on top of this engine; the core only forwards it).
type Type interface {
	IsPointer() bool
	IntBitWidth() int // 0 if not an integer type
}

// BasicBlock is a maximal straight-line sequence of instructions
// ending in a branch, reached via Preds from zero or more
// predecessors and leaving via Succs to zero or more successors.
type BasicBlock interface {
	Index() int
	Instrs() []Instruction
	Preds() []BasicBlock
	Succs() []BasicBlock
	Parent() Function
}

// Function is a single IR function: a sequence of basic blocks in
// entry order, a parameter list, and — for functions with no body —
// an indication that they are external (modeled as summary-less).
type Function interface {
	Name() string
	String() string
	Pos() int
	Params() []Value
	Blocks() []BasicBlock
	// IsExternal reports whether the function has no body; the
	// engine analyzes such functions as summary-less.
	IsExternal() bool
}

// Global is a package-level or module-level variable. Distinct from a
// Value because some IR providers attach constant initializers only
// to globals.
type Global interface {
	Value
	// InitPoints, if non-nil, is the constant value this global's
	// initializer points to — used by the inter engine's global-init
	// heuristic (spec.md §4.6 step 3).
	InitPoints() (Value, bool)
}

// CallInstruction is an Instruction that invokes another function,
// directly or indirectly.
type CallInstruction interface {
	Instruction
	// StaticCallee returns the statically known callee, or nil for
	// an indirect call through a function value.
	StaticCallee() Function
	// Callee returns the value being called when StaticCallee is
	// nil (a function pointer, interface method value, etc.).
	Callee() Value
	Args() []Value
}

// OffsetInstruction is implemented by Bitcast/GEP-family instructions
// that carry a static field offset (spec.md §4.3's "field-sensitivity
// is tracked through Locators" relies on this to know which offset a
// GEP addresses; a plain bitcast does not implement it and is treated
// as offset 0).
type OffsetInstruction interface {
	Instruction
	FieldOffset() int
}

// FuncConst is implemented by a Value that denotes the address of a
// statically known Function (a function used as a first-class value,
// e.g. assigned to a function-pointer variable or selected by a PHI).
// The intra engine's indirect-call resolution walks points-to sets
// for a FuncConst-valued locator's allocation site to recover the set
// of statically possible callees (spec.md §8 scenario 6).
type FuncConst interface {
	Value
	Func() Function
}
