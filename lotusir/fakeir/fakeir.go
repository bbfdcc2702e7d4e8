// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakeir is a minimal, hand-built implementation of the
// lotusir contract used by the core packages' unit tests. It lets
// memmodel/ptgraph/intra/inter/vfg/reach be tested without pulling in
// golang.org/x/tools/go/ssa, mirroring the way rtcheck's own tests
// (had it had any) would build tiny literal *ssa.Functions — here we
// build tiny literal graphs directly against the interface instead.
package fakeir

import "github.com/aclements/lotuscheck/lotusir"

type Type struct {
	Pointer  bool
	BitWidth int
}

func (t Type) IsPointer() bool   { return t.Pointer }
func (t Type) IntBitWidth() int  { return t.BitWidth }

var PointerType = Type{Pointer: true}
var IntType = Type{BitWidth: 64}

// Val is a simple named value with no instruction behavior (a
// parameter, constant, or global).
type Val struct {
	N   string
	T   lotusir.Type
	P   int
	Glb bool
	Pts lotusir.Value
}

func (v *Val) Name() string       { return v.N }
func (v *Val) Type() lotusir.Type { return v.T }
func (v *Val) Pos() int           { return v.P }

func (v *Val) InitPoints() (lotusir.Value, bool) {
	if v.Pts == nil {
		return nil, false
	}
	return v.Pts, true
}

// Instr is a generic instruction: a Val plus block/operand/kind
// bookkeeping.
type Instr struct {
	Val
	Blk  *Block
	Ops  []lotusir.Value
	Fn   *Func
	K    lotusir.Kind
	Ssl  lotusir.Function // static callee, for call instructions
	Clee lotusir.Value    // dynamic callee value, for indirect calls
	As   []lotusir.Value  // call args
	Off  int              // static field offset, for GEP-family instructions
}

func (i *Instr) Block() lotusir.BasicBlock   { return i.Blk }
func (i *Instr) Operands() []lotusir.Value   { return i.Ops }
func (i *Instr) Parent() lotusir.Function    { return i.Fn }
func (i *Instr) Kind() lotusir.Kind          { return i.K }
func (i *Instr) StaticCallee() lotusir.Function { return i.Ssl }
func (i *Instr) Callee() lotusir.Value       { return i.Clee }
func (i *Instr) Args() []lotusir.Value       { return i.As }

// FieldOffset implements lotusir.OffsetInstruction for every Instr;
// GEP-family instructions set Off, and plain bitcasts leave it at
// zero, which the intra engine reads as offset 0.
func (i *Instr) FieldOffset() int { return i.Off }

// Block is a basic block with explicit predecessor/successor lists
// and an explicit instruction list, wired up by the test.
type Block struct {
	Idx       int
	Instrlist []lotusir.Instruction
	Pred      []lotusir.BasicBlock
	Succ      []lotusir.BasicBlock
	Fn        *Func
}

func (b *Block) Index() int                    { return b.Idx }
func (b *Block) Instrs() []lotusir.Instruction { return b.Instrlist }
func (b *Block) Preds() []lotusir.BasicBlock   { return b.Pred }
func (b *Block) Succs() []lotusir.BasicBlock   { return b.Succ }
func (b *Block) Parent() lotusir.Function      { return b.Fn }

// FuncVal wraps a *Func so it can be used as an ordinary Value (e.g.
// the operand of a global-ref instruction that materializes a
// function pointer constant), satisfying lotusir.FuncConst.
type FuncVal struct {
	Val
	F *Func
}

func (v *FuncVal) Func() lotusir.Function { return v.F }

// Func is a function: a name, parameters, and blocks in entry order.
type Func struct {
	N    string
	Prms []lotusir.Value
	Blks []lotusir.BasicBlock
	Ext  bool
}

func (f *Func) Name() string               { return f.N }
func (f *Func) String() string             { return f.N }
func (f *Func) Pos() int                   { return 0 }
func (f *Func) Params() []lotusir.Value    { return f.Prms }
func (f *Func) Blocks() []lotusir.BasicBlock { return f.Blks }
func (f *Func) IsExternal() bool           { return f.Ext }

// NewLinearFunc builds a function with a single basic block
// containing instrs in order, convenient for straight-line test
// cases. instrs' Blk/Fn fields are filled in by this constructor.
func NewLinearFunc(name string, params []lotusir.Value, instrs []*Instr) *Func {
	f := &Func{N: name, Prms: params}
	b := &Block{Idx: 0, Fn: f}
	for _, in := range instrs {
		in.Blk = b
		in.Fn = f
		b.Instrlist = append(b.Instrlist, in)
	}
	f.Blks = []lotusir.BasicBlock{b}
	return f
}
