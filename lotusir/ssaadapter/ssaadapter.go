// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ssaadapter binds the lotusir contract to
// golang.org/x/tools/go/ssa, the only IR the core ever actually runs
// against in this module (spec.md §6 "IR contract (consumed)").
//
// Every wrapper is cached by the underlying ssa node's pointer
// identity, so the same ssa.Value always produces the same
// lotusir.Value — required because the core uses lotusir.Values as
// map keys (spec.md §6 "stable value identity is a valid key").
//
// Grounded on rtcheck/main.go's use of ssautil.CreateProgram plus
// prog.Build(): this package plays the adapter role that rtcheck's
// direct *ssa.Function walking played inline; cmd/lotuscheck is the
// analogue of rtcheck/main.go's driver.
package ssaadapter

import (
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/aclements/lotuscheck/lotusir"
)

// Program adapts a built *ssa.Program (and the packages loaded into
// it) to the lotusir contract.
type Program struct {
	prog  *ssa.Program
	fset  *token.FileSet
	funcs map[*ssa.Function]*function
	vals  map[ssa.Value]lotusir.Value
	instr map[ssa.Instruction]lotusir.Instruction
	blks  map[*ssa.BasicBlock]*block
}

// New wraps an already-built *ssa.Program (prog.Build() must have run).
func New(prog *ssa.Program) *Program {
	return &Program{
		prog:  prog,
		fset:  prog.Fset,
		funcs: make(map[*ssa.Function]*function),
		vals:  make(map[ssa.Value]lotusir.Value),
		instr: make(map[ssa.Instruction]lotusir.Instruction),
		blks:  make(map[*ssa.BasicBlock]*block),
	}
}

// Function returns the stable lotusir.Function wrapper for fn.
func (p *Program) Function(fn *ssa.Function) lotusir.Function {
	if fn == nil {
		return nil
	}
	return p.function(fn)
}

// Underlying returns the *ssa.Function backing f, or nil if f wasn't
// produced by this Program (e.g. a fakeir double in a test). Used by
// cmd/lotuscheck to hand cgstate's call-graph state to
// golang.org/x/tools/go/callgraph for its dot dump, the one place
// that package's ssa.Function-specific Node type actually fits.
func (p *Program) Underlying(f lotusir.Function) *ssa.Function {
	if w, ok := f.(*function); ok {
		return w.fn
	}
	return nil
}

// Global returns the stable lotusir.Global wrapper for g.
func (p *Program) Global(g *ssa.Global) lotusir.Global {
	if g == nil {
		return nil
	}
	return p.value(g).(lotusir.Global)
}

// AllFunctions walks every member function of pkgs (and their
// anonymous closures) and returns their stable lotusir.Function
// wrappers, in package-member order.
func (p *Program) AllFunctions(pkgs []*ssa.Package) []lotusir.Function {
	var out []lotusir.Function
	seen := make(map[*ssa.Function]bool)
	var add func(fn *ssa.Function)
	add = func(fn *ssa.Function) {
		if fn == nil || seen[fn] {
			return
		}
		seen[fn] = true
		out = append(out, p.function(fn))
		for _, anon := range fn.AnonFuncs {
			add(anon)
		}
	}
	for _, pkg := range pkgs {
		if pkg == nil {
			continue
		}
		for _, mem := range pkg.Members {
			if fn, ok := mem.(*ssa.Function); ok {
				add(fn)
			}
		}
	}
	return out
}

// AllGlobals walks every package-level variable member of pkgs.
func (p *Program) AllGlobals(pkgs []*ssa.Package) []lotusir.Global {
	var out []lotusir.Global
	for _, pkg := range pkgs {
		if pkg == nil {
			continue
		}
		for _, mem := range pkg.Members {
			if g, ok := mem.(*ssa.Global); ok {
				out = append(out, p.Global(g))
			}
		}
	}
	return out
}

// value returns the stable lotusir.Value wrapper for any ssa.Value,
// routing actual instructions through the instr cache and everything
// else (consts, globals, functions, parameters, free variables)
// through the plain-value cache.
func (p *Program) value(v ssa.Value) lotusir.Value {
	if v == nil {
		return nil
	}
	if si, ok := v.(ssa.Instruction); ok {
		return p.instrFor(si)
	}
	if w, ok := p.vals[v]; ok {
		return w
	}
	w := p.wrapPlain(v)
	p.vals[v] = w
	return w
}

func (p *Program) wrapPlain(v ssa.Value) lotusir.Value {
	switch vv := v.(type) {
	case *ssa.Function:
		return p.function(vv)
	case *ssa.Global:
		return &globalVal{g: vv, prog: p}
	case *ssa.Const:
		return &constVal{c: vv, prog: p}
	default:
		return &plainVal{v: v}
	}
}

func (p *Program) function(fn *ssa.Function) *function {
	if w, ok := p.funcs[fn]; ok {
		return w
	}
	w := &function{fn: fn, prog: p}
	p.funcs[fn] = w
	return w
}

func (p *Program) block(b *ssa.BasicBlock) *block {
	if b == nil {
		return nil
	}
	if w, ok := p.blks[b]; ok {
		return w
	}
	w := &block{b: b, prog: p}
	p.blks[b] = w
	return w
}

// instrFor returns the stable lotusir.Instruction wrapper for si,
// choosing the concrete wrapper kind that implements
// lotusir.CallInstruction/lotusir.OffsetInstruction only for the
// instructions that actually are calls or GEP-family accesses — a
// plain instrBase deliberately does NOT implement those interfaces,
// so the core's `instr.(lotusir.CallInstruction)` checks behave
// correctly for everything else.
func (p *Program) instrFor(si ssa.Instruction) lotusir.Instruction {
	if w, ok := p.instr[si]; ok {
		return w
	}
	var w lotusir.Instruction
	switch v := si.(type) {
	case *ssa.Call:
		w = &callInstr{instrBase{si: si, prog: p}, v.Common()}
	case *ssa.Go:
		w = &callInstr{instrBase{si: si, prog: p}, v.Common()}
	case *ssa.Defer:
		w = &callInstr{instrBase{si: si, prog: p}, v.Common()}
	case *ssa.FieldAddr:
		w = &offsetInstr{instrBase{si: si, prog: p}, v.Field}
	case *ssa.IndexAddr:
		// Dynamic index: no static offset. Treated as offset 0, the
		// same approximation plain bitcasts get (spec.md §4.3 "a
		// plain bitcast does not implement it and is treated as
		// offset 0").
		w = &offsetInstr{instrBase{si: si, prog: p}, 0}
	default:
		w = &instrBase{si: si, prog: p}
	}
	p.instr[si] = w
	return w
}

// kindOf maps an ssa.Instruction to its spec.md §4.3 opcode family.
// go/ssa has no distinct "global address" or "select" instruction
// (globals are plain Values used directly as operands, and Go has no
// ternary operator — both paths collapse to ordinary Phi nodes at the
// SSA level), so KindGlobalRef and KindSelect are never produced by
// this adapter; see DESIGN.md.
func kindOf(si ssa.Instruction) lotusir.Kind {
	switch v := si.(type) {
	case *ssa.Alloc:
		return lotusir.KindAlloc
	case *ssa.FieldAddr, *ssa.IndexAddr:
		return lotusir.KindBitcastOrGEP
	case *ssa.UnOp:
		if v.Op == token.MUL {
			return lotusir.KindLoad
		}
		return lotusir.KindOther
	case *ssa.Store:
		return lotusir.KindStore
	case *ssa.Phi:
		return lotusir.KindPhi
	case *ssa.Call:
		return callKind(v.Common())
	case *ssa.Go:
		return callKind(v.Common())
	case *ssa.Defer:
		// go/defer's argument-escape behavior is modeled identically
		// to an ordinary call; this module has no concurrency model
		// (out of scope, spec.md §1 Non-goals), so the distinction
		// between "called now" and "called later" doesn't matter to
		// points-to propagation.
		return callKind(v.Common())
	case *ssa.ChangeType, *ssa.Convert, *ssa.ChangeInterface, *ssa.SliceToArrayPointer, *ssa.MakeInterface:
		return lotusir.KindCast
	case *ssa.Return:
		return lotusir.KindReturn
	default:
		return lotusir.KindOther
	}
}

func callKind(c *ssa.CallCommon) lotusir.Kind {
	if c.StaticCallee() != nil {
		return lotusir.KindCallDirect
	}
	return lotusir.KindCallIndirect
}

// ssaType adapts a go/types.Type to lotusir.Type.
type ssaType struct{ t types.Type }

func (s ssaType) IsPointer() bool {
	if s.t == nil {
		return false
	}
	_, ok := s.t.Underlying().(*types.Pointer)
	return ok
}

func (s ssaType) IntBitWidth() int {
	if s.t == nil {
		return 0
	}
	basic, ok := s.t.Underlying().(*types.Basic)
	if !ok {
		return 0
	}
	switch basic.Kind() {
	case types.Int8, types.Uint8:
		return 8
	case types.Int16, types.Uint16:
		return 16
	case types.Int32, types.Uint32:
		return 32
	case types.Int64, types.Uint64, types.Int, types.Uint, types.Uintptr:
		return 64
	default:
		return 0
	}
}

// funcType is the type reported for a function used as a first-class
// value: always pointer-shaped, never an integer.
type funcType struct{}

func (funcType) IsPointer() bool  { return true }
func (funcType) IntBitWidth() int { return 0 }

// instrBase wraps any ssa.Instruction as a lotusir.Instruction. Void
// instructions (Store, Return, Jump, If, ...) don't implement
// ssa.Value in go/ssa, so Name/Type fall back to the instruction's
// own String() and an untyped placeholder.
type instrBase struct {
	si   ssa.Instruction
	prog *Program
}

func (i *instrBase) Name() string {
	if v, ok := i.si.(ssa.Value); ok {
		return v.Name()
	}
	return i.si.String()
}

func (i *instrBase) Type() lotusir.Type {
	if v, ok := i.si.(ssa.Value); ok {
		return ssaType{v.Type()}
	}
	return ssaType{}
}

func (i *instrBase) Pos() int { return int(i.si.Pos()) }

func (i *instrBase) Block() lotusir.BasicBlock { return i.prog.block(i.si.Block()) }

func (i *instrBase) Operands() []lotusir.Value {
	ops := i.si.Operands(nil)
	out := make([]lotusir.Value, 0, len(ops))
	for _, op := range ops {
		if op == nil || *op == nil {
			continue
		}
		out = append(out, i.prog.value(*op))
	}
	return out
}

func (i *instrBase) Parent() lotusir.Function { return i.prog.function(i.si.Parent()) }

func (i *instrBase) Kind() lotusir.Kind { return kindOf(i.si) }

// callInstr additionally implements lotusir.CallInstruction, for the
// instructions (*ssa.Call, *ssa.Go, *ssa.Defer) that actually invoke a
// callee.
type callInstr struct {
	instrBase
	common *ssa.CallCommon
}

func (c *callInstr) StaticCallee() lotusir.Function {
	if fn := c.common.StaticCallee(); fn != nil {
		return c.prog.function(fn)
	}
	return nil
}

func (c *callInstr) Callee() lotusir.Value {
	return c.prog.value(c.common.Value)
}

func (c *callInstr) Args() []lotusir.Value {
	out := make([]lotusir.Value, len(c.common.Args))
	for i, a := range c.common.Args {
		out[i] = c.prog.value(a)
	}
	return out
}

// offsetInstr additionally implements lotusir.OffsetInstruction, for
// *ssa.FieldAddr (a real static offset) and *ssa.IndexAddr (offset 0,
// since array/slice indices aren't statically known).
type offsetInstr struct {
	instrBase
	offset int
}

func (o *offsetInstr) FieldOffset() int { return o.offset }

// plainVal wraps an ssa.Value that is neither an Instruction, a
// Const, a Global, nor a Function (parameters, free variables,
// builtins): a plain, non-instruction Value.
type plainVal struct{ v ssa.Value }

func (p *plainVal) Name() string     { return p.v.Name() }
func (p *plainVal) Type() lotusir.Type { return ssaType{p.v.Type()} }
func (p *plainVal) Pos() int         { return int(p.v.Pos()) }

// constVal wraps an *ssa.Const as a zero-operand pseudo-instruction
// (matching the fakeir test convention: a constant needs a Kind(), and
// only lotusir.Instruction carries one) so the intra engine's
// KindNullConst dispatch can key points-to singletons off it directly.
// Because go/ssa deduplicates identical constants within a function,
// a shared constant has no single true parent block; Block/Parent
// return nil rather than an arbitrary use site — nothing in the core
// dereferences a null/const's own Block or Parent for correctness,
// only checkers' diagnostic rendering does, which simply omits the
// function name for a shared constant (see DESIGN.md).
type constVal struct {
	c    *ssa.Const
	prog *Program
}

func (c *constVal) Name() string       { return c.c.Name() }
func (c *constVal) Type() lotusir.Type { return ssaType{c.c.Type()} }
func (c *constVal) Pos() int           { return 0 }
func (c *constVal) Block() lotusir.BasicBlock { return nil }
func (c *constVal) Operands() []lotusir.Value { return nil }
func (c *constVal) Parent() lotusir.Function  { return nil }

func (c *constVal) Kind() lotusir.Kind {
	if c.c.IsNil() {
		return lotusir.KindNullConst
	}
	return lotusir.KindOther
}

// globalVal wraps an *ssa.Global.
type globalVal struct {
	g    *ssa.Global
	prog *Program
}

func (g *globalVal) Name() string       { return g.g.Name() }
func (g *globalVal) Type() lotusir.Type { return ssaType{g.g.Type()} }
func (g *globalVal) Pos() int           { return int(g.g.Pos()) }

// InitPoints is conservatively always (nil, false): go/ssa doesn't
// expose a global's initializer as a simple constant the way an LLVM
// GlobalVariable's Initializer operand does (Go package-level var
// initialization generally runs through the package's init function),
// so the inter engine's global-init heuristic (spec.md §4.6 step 3)
// doesn't fire for ssaadapter-sourced globals. Documented as a known
// simplification in DESIGN.md; it only affects initial seeding: an
// ssaadapter-sourced global starts with no points-to target at all.
func (g *globalVal) InitPoints() (lotusir.Value, bool) { return nil, false }

// function wraps an *ssa.Function as both lotusir.Function and — when
// used directly as a first-class value, e.g. selected by a Phi or
// passed as a function-pointer argument — lotusir.FuncConst. Folding
// both roles into one wrapper keeps identity consistent: the same
// *function is what StaticCallee returns and what a FuncConst's Func
// returns, so the two are comparable as map keys (spec.md §8 scenario
// 6 depends on this).
type function struct {
	fn   *ssa.Function
	prog *Program
}

func (f *function) Name() string   { return f.fn.Name() }
func (f *function) String() string { return f.fn.String() }
func (f *function) Pos() int       { return int(f.fn.Pos()) }

func (f *function) Params() []lotusir.Value {
	out := make([]lotusir.Value, len(f.fn.Params))
	for i, p := range f.fn.Params {
		out[i] = f.prog.value(p)
	}
	return out
}

func (f *function) Blocks() []lotusir.BasicBlock {
	out := make([]lotusir.BasicBlock, len(f.fn.Blocks))
	for i, b := range f.fn.Blocks {
		out[i] = f.prog.block(b)
	}
	return out
}

func (f *function) IsExternal() bool { return f.fn.Blocks == nil }

// Type/Func implement lotusir.Value/lotusir.FuncConst for a function
// used as a value.
func (f *function) Type() lotusir.Type   { return funcType{} }
func (f *function) Func() lotusir.Function { return f }

// block wraps an *ssa.BasicBlock.
type block struct {
	b    *ssa.BasicBlock
	prog *Program
}

func (b *block) Index() int { return b.b.Index }

func (b *block) Instrs() []lotusir.Instruction {
	out := make([]lotusir.Instruction, 0, len(b.b.Instrs))
	for _, si := range b.b.Instrs {
		out = append(out, b.prog.instrFor(si))
	}
	return out
}

func (b *block) Preds() []lotusir.BasicBlock {
	out := make([]lotusir.BasicBlock, len(b.b.Preds))
	for i, p := range b.b.Preds {
		out[i] = b.prog.block(p)
	}
	return out
}

func (b *block) Succs() []lotusir.BasicBlock {
	out := make([]lotusir.BasicBlock, len(b.b.Succs))
	for i, s := range b.b.Succs {
		out[i] = b.prog.block(s)
	}
	return out
}

func (b *block) Parent() lotusir.Function { return b.prog.function(b.b.Parent()) }
