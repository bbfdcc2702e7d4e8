// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package checkers implements the five GVFA-style vulnerability
// adapters spec.md §4.10 (component C10) describes: null-pointer
// dereference, use-after-free, use of an uninitialized variable, free
// of non-heap memory, and invalid use of a stack address. Each
// adapter supplies source/sink predicates and a transfer filter to
// package reach and turns the resulting witnesses into package
// report's Reports.
//
// Grounded on NullPointerChecker.cpp/UseAfterFreeChecker.cpp/
// FreeOfNonHeapMemoryChecker.cpp/UseOfUninitializedVariableChecker.cpp/
// InvalidUseOfStackAddressChecker.cpp from the original implementation:
// each registers a bug type once, walks the module for sources and
// sinks, and reports a confidence-scored diagnostic trace per
// surviving source/sink pair. The predicates here are reworked from
// LLVM instruction matching (dyn_cast<LoadInst>, CalledFunction name
// comparisons) to lotusir's Kind-based dispatch and Function.Name().
package checkers

import (
	"github.com/aclements/lotuscheck/lotusir"
	"github.com/aclements/lotuscheck/reach"
	"github.com/aclements/lotuscheck/report"
	"github.com/aclements/lotuscheck/vfg"
)

// baseScore and refinedBonus implement spec.md §4.10's confidence
// formula: 70 base, +15 when a precision-improving side analysis
// (here: null-check refinement, gated by --use-npa) is active.
const (
	baseScore    = 70
	refinedBonus = 15
)

// stepText describes one node's role in a witness path.
type stepText struct {
	Tip string
}

// Adapter is one vulnerability class's full rule set (spec.md §4.10):
// source/sink predicates plus their step descriptions, a transfer
// filter, and registration metadata for package report.
type Adapter struct {
	TypeName       string
	Description    string
	Importance     report.Importance
	Classification report.Classification

	// IsSource reports whether v originates the tainted value this
	// checker tracks, and the diagnostic step text to record there.
	IsSource func(f lotusir.Function, v lotusir.Value) (stepText, bool)

	// IsSink mirrors reach.Checker.IsSink: from is the node that fed
	// to, nil at the source itself. Returns the step text when to is
	// this checker's dereference/sink point.
	IsSink func(f lotusir.Function, from, to lotusir.Value) (stepText, bool)

	// MidStep describes an intermediate witness-path node (neither
	// source nor sink) that isn't otherwise described; nodes for which
	// it returns ok=false get a generic Kind-derived description.
	MidStep func(from, to lotusir.Value) (stepText, bool)

	IsValidTransfer func(f lotusir.Function, from, to lotusir.Value) bool

	// SupportsRefinement marks checkers to which --use-npa's
	// confidence bonus applies (spec.md §4.10 names null-check
	// analysis as the example side analysis; the other four checkers
	// are unaffected by the flag).
	SupportsRefinement bool
}

// Run builds the value-flow graph for f, searches it for this
// adapter's source/sink pairs, and inserts one report.Report per
// witness into mgr under this adapter's (idempotently registered) bug
// type.
//
// kContext selects context sensitivity (spec.md §4.8, §6
// "Context-sensitive mode uses k-call-string contexts"): 0 runs the
// plain context-insensitive search; a positive value runs the
// k-call-string search instead and routes every witness through a
// reach.ContextTable keyed on that k, so witnesses found under
// distinct call-string suffixes are never conflated by Union before
// being turned into reports.
func (a *Adapter) Run(mgr *report.Manager, f lotusir.Function, g *vfg.Graph, useNPA bool, kContext int) {
	tyID := mgr.RegisterBugType(a.TypeName, a.Importance, a.Classification, a.Description)

	sourceSteps := map[lotusir.Value]stepText{}
	checker := reach.Checker{
		IsSource: func(v lotusir.Value) bool {
			step, ok := a.IsSource(f, v)
			if ok {
				sourceSteps[v] = step
			}
			return ok
		},
		IsSink: func(from, to lotusir.Value) ([]lotusir.Instruction, bool) {
			_, ok := a.IsSink(f, from, to)
			if !ok {
				return nil, false
			}
			instr, isInstr := to.(lotusir.Instruction)
			if !isInstr {
				return nil, true
			}
			return []lotusir.Instruction{instr}, true
		},
		IsValidTransfer: func(from, to lotusir.Value) bool {
			if a.IsValidTransfer == nil {
				return true
			}
			return a.IsValidTransfer(f, from, to)
		},
	}

	var witnesses []reach.Witness
	if kContext <= 0 {
		witnesses = reach.Reachable(g, checker)
	} else {
		// Every witness is recorded into a ContextTable under the
		// context it was found, then flattened back out via Union so
		// the table (not the raw slice) is what actually mediates
		// context-sensitive output: two witnesses whose contexts share
		// a k-suffix are unioned together, matching spec.md §4.8's
		// "contexts gate/union witnesses".
		found := reach.ReachableWithContext(g, checker, kContext)
		table := reach.NewContextTable(kContext)
		for _, w := range found {
			table.Add(w.Ctx, []reach.Witness{w})
		}
		seenSuffix := map[string]bool{}
		for _, w := range found {
			suf := w.Ctx.Suffix(kContext)
			if seenSuffix[suf] {
				continue
			}
			seenSuffix[suf] = true
			witnesses = append(witnesses, table.Union(w.Ctx)...)
		}
	}

	for _, w := range witnesses {
		score := baseScore
		if useNPA && a.SupportsRefinement {
			score = baseScore + refinedBonus
		}

		r := report.NewReport(tyID)
		r.Score = score
		for i, v := range w.Path {
			switch {
			case i == 0:
				step := sourceSteps[v]
				r.AppendStep(toDiagStep(v, step))
			case i == len(w.Path)-1:
				sinkStep, _ := a.IsSink(f, w.Path[i-1], v)
				r.AppendStep(toDiagStep(v, sinkStep))
			default:
				step, ok := stepText{}, false
				if a.MidStep != nil {
					step, ok = a.MidStep(w.Path[i-1], v)
				}
				if !ok {
					step = stepText{Tip: "value flows through this " + kindOf(v) + " here"}
				}
				r.AppendStep(toDiagStep(v, step))
			}
		}
		mgr.InsertReport(tyID, r)
	}
}

func toDiagStep(v lotusir.Value, step stepText) report.DiagStep {
	d := report.DiagStep{Tip: step.Tip, Variable: v.Name(), Line: v.Pos()}
	if instr, ok := v.(lotusir.Instruction); ok {
		if fn := instr.Parent(); fn != nil {
			d.Function = fn.Name()
		}
	}
	return d
}

func kindOf(v lotusir.Value) string {
	if instr, ok := v.(lotusir.Instruction); ok {
		return instr.Kind().String()
	}
	return "value"
}

// calleeNamed reports whether instr is a direct call to a function
// named name.
func calleeNamed(instr lotusir.Instruction, name string) bool {
	call, ok := instr.(lotusir.CallInstruction)
	if !ok {
		return false
	}
	callee := call.StaticCallee()
	return callee != nil && callee.Name() == name
}

// hasOperand reports whether v is among instr's operands.
func hasOperand(instr lotusir.Instruction, v lotusir.Value) bool {
	for _, op := range instr.Operands() {
		if op == v {
			return true
		}
	}
	return false
}

// usedByCallTo reports whether v is passed to a direct call to name
// anywhere in f (spec.md §4.10's source predicates often key off a
// value's later use, e.g. "a pointer later passed to free").
func usedByCallTo(f lotusir.Function, v lotusir.Value, name string) bool {
	for _, b := range f.Blocks() {
		for _, instr := range b.Instrs() {
			if calleeNamed(instr, name) && hasOperand(instr, v) {
				return true
			}
		}
	}
	return false
}

// neverStoredTo reports whether no Store instruction in f targets v
// as its address operand (spec.md §4.10's uninitialized-use source
// predicate; a whole-function approximation of "never initialized on
// any path", documented as a simplification in DESIGN.md).
func neverStoredTo(f lotusir.Function, v lotusir.Value) bool {
	for _, b := range f.Blocks() {
		for _, instr := range b.Instrs() {
			if instr.Kind() != lotusir.KindStore {
				continue
			}
			ops := instr.Operands()
			if len(ops) > 0 && ops[0] == v {
				return false
			}
		}
	}
	return true
}
