// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package intra

import (
	"testing"

	"github.com/aclements/lotuscheck/cgstate"
	"github.com/aclements/lotuscheck/config"
	"github.com/aclements/lotuscheck/lotusir"
	"github.com/aclements/lotuscheck/lotusir/fakeir"
	"github.com/aclements/lotuscheck/memmodel"
	"github.com/aclements/lotuscheck/ptgraph"
)

func newEngine() *Engine {
	arena := memmodel.NewArena(8)
	cfg := config.Default()
	return New(arena, cfg, cgstate.New())
}

func noSummary(lotusir.Function) (*Summary, bool) { return nil, false }

// TestAllocaPointsTo checks the "Alloca / heap allocation" transfer
// rule: a fresh Concrete object, and v points to (obj, 0).
func TestAllocaPointsTo(t *testing.T) {
	e := newEngine()
	alloc := &fakeir.Instr{Val: fakeir.Val{N: "a", T: fakeir.PointerType}, K: lotusir.KindAlloc}
	f := fakeir.NewLinearFunc("f", nil, []*fakeir.Instr{alloc})

	res := e.Analyze(f, noSummary)
	pt := res.Graph.FindPTResult(alloc, false)
	if pt == nil || pt.Empty() {
		t.Fatal("alloca should produce a non-empty PTResult")
	}
	locs := ptgraph.Locators(pt)
	if len(locs) != 1 || locs[0].Object().Kind() != memmodel.Concrete {
		t.Fatalf("want one Concrete locator, got %v", locs)
	}
}

// TestDirectNullDeref models spec.md §8 scenario 1's IR shape:
// %p = null; %x = load %p.
func TestDirectNullDeref(t *testing.T) {
	e := newEngine()
	null := &fakeir.Instr{Val: fakeir.Val{N: "p", T: fakeir.PointerType}, K: lotusir.KindNullConst}
	load := &fakeir.Instr{Val: fakeir.Val{N: "x", T: fakeir.PointerType}, K: lotusir.KindLoad, Ops: []lotusir.Value{null}}
	f := fakeir.NewLinearFunc("f", nil, []*fakeir.Instr{null, load})

	res := e.Analyze(f, noSummary)
	pt := res.Graph.FindPTResult(null, false)
	locs := ptgraph.Locators(pt)
	if len(locs) != 1 || locs[0].Object().Kind() != memmodel.Null {
		t.Fatalf("want the null singleton, got %v", locs)
	}
}

// TestStoreLoadRoundTripThroughDispatch checks flow sensitivity: a
// stored pointer is visible to a later load of the same address.
func TestStoreLoadRoundTripThroughDispatch(t *testing.T) {
	e := newEngine()
	alloc := &fakeir.Instr{Val: fakeir.Val{N: "slot", T: fakeir.PointerType}, K: lotusir.KindAlloc}
	target := &fakeir.Instr{Val: fakeir.Val{N: "tgt", T: fakeir.PointerType}, K: lotusir.KindAlloc}
	store := &fakeir.Instr{Val: fakeir.Val{N: "store"}, K: lotusir.KindStore, Ops: []lotusir.Value{alloc, target}}
	load := &fakeir.Instr{Val: fakeir.Val{N: "x", T: fakeir.PointerType}, K: lotusir.KindLoad, Ops: []lotusir.Value{alloc}}
	f := fakeir.NewLinearFunc("f", nil, []*fakeir.Instr{alloc, target, store, load})

	res := e.Analyze(f, noSummary)
	loadPT := res.Graph.FindPTResult(load, false)
	targetPT := res.Graph.FindPTResult(target, false)
	locs := ptgraph.Locators(loadPT)
	wantLocs := ptgraph.Locators(targetPT)
	if len(locs) != 1 || len(wantLocs) != 1 || locs[0] != wantLocs[0] {
		t.Fatalf("load after store should see the stored target's locator, got %v want %v", locs, wantLocs)
	}
}

// TestPhiUnionsIncomingValues checks the PHI transfer rule: the
// result's PT result derives from every incoming value.
func TestPhiUnionsIncomingValues(t *testing.T) {
	e := newEngine()
	a := &fakeir.Instr{Val: fakeir.Val{N: "a", T: fakeir.PointerType}, K: lotusir.KindAlloc}
	b := &fakeir.Instr{Val: fakeir.Val{N: "b", T: fakeir.PointerType}, K: lotusir.KindAlloc}
	phi := &fakeir.Instr{Val: fakeir.Val{N: "phi", T: fakeir.PointerType}, K: lotusir.KindPhi, Ops: []lotusir.Value{a, b}}
	f := fakeir.NewLinearFunc("f", nil, []*fakeir.Instr{a, b, phi})

	res := e.Analyze(f, noSummary)
	locs := ptgraph.Locators(res.Graph.FindPTResult(phi, false))
	if len(locs) != 2 {
		t.Fatalf("phi should see both incoming objects, got %v", locs)
	}
}

// TestIndirectCallResolvesToPhiSelectedFunctions models spec.md §8
// scenario 6: a function pointer selected by a PHI between two
// functions resolves the call site's targets to both.
func TestIndirectCallResolvesToPhiSelectedFunctions(t *testing.T) {
	e := newEngine()

	g := &fakeir.Func{N: "g"}
	h := &fakeir.Func{N: "h"}
	gVal := &fakeir.FuncVal{Val: fakeir.Val{N: "g"}, F: g}
	hVal := &fakeir.FuncVal{Val: fakeir.Val{N: "h"}, F: h}

	gRef := &fakeir.Instr{Val: fakeir.Val{N: "gref", T: fakeir.PointerType}, K: lotusir.KindGlobalRef, Ops: []lotusir.Value{gVal}}
	hRef := &fakeir.Instr{Val: fakeir.Val{N: "href", T: fakeir.PointerType}, K: lotusir.KindGlobalRef, Ops: []lotusir.Value{hVal}}
	phi := &fakeir.Instr{Val: fakeir.Val{N: "fp", T: fakeir.PointerType}, K: lotusir.KindPhi, Ops: []lotusir.Value{gRef, hRef}}
	call := &fakeir.Instr{Val: fakeir.Val{N: "call"}, K: lotusir.KindCallIndirect, Clee: phi}
	f := fakeir.NewLinearFunc("f", nil, []*fakeir.Instr{gRef, hRef, phi, call})

	res := e.Analyze(f, noSummary)
	targets := res.CallTargets[call]
	if len(targets) != 2 {
		t.Fatalf("want 2 resolved targets, got %v", targets)
	}
	seen := map[string]bool{}
	for _, tgt := range targets {
		seen[tgt.Name()] = true
	}
	if !seen["g"] || !seen["h"] {
		t.Fatalf("want {g, h}, got %v", seen)
	}
}

// TestSummaryLessCallWidensReturn checks that a call to a callee with
// no available summary produces a fresh Concrete object for a
// pointer-typed return, per spec.md §4.3's "Call (indirect or
// summary-less)" rule.
func TestSummaryLessCallWidensReturn(t *testing.T) {
	e := newEngine()
	other := &fakeir.Func{N: "other"}
	call := &fakeir.Instr{Val: fakeir.Val{N: "call", T: fakeir.PointerType}, K: lotusir.KindCallDirect, Ssl: other}
	f := fakeir.NewLinearFunc("f", nil, []*fakeir.Instr{call})

	res := e.Analyze(f, noSummary)
	locs := ptgraph.Locators(res.Graph.FindPTResult(call, false))
	if len(locs) != 1 || locs[0].Object().Kind() != memmodel.Concrete {
		t.Fatalf("want fresh Concrete object for summary-less call, got %v", locs)
	}
}

// TestApplySummaryThreadsEscapeToReturn checks step 4/5 of the
// summary-application algorithm: a callee that returns a locally
// allocated, escaping object causes the caller's call-site value to
// point at a materialized caller-side object.
func TestApplySummaryThreadsEscapeToReturn(t *testing.T) {
	e := newEngine()

	callee := &fakeir.Func{N: "makeThing"}
	allocSite := &fakeir.Instr{Val: fakeir.Val{N: "obj", T: fakeir.PointerType}, K: lotusir.KindAlloc, Fn: callee}
	escObj := e.arena.NewConcrete(allocSite, "obj")

	summary := newSummary(callee)
	summary.EscapeObjs = []*memmodel.MemObject{escObj}
	summary.Outputs = []OutputItem{
		{
			Path: memmodel.AccessPath{Parent: newPseudo("makeThing$ret", nil)},
			PT:   []memmodel.AccessPath{{Parent: allocSite, Offset: 0}},
		},
	}

	call := &fakeir.Instr{Val: fakeir.Val{N: "call", T: fakeir.PointerType}, K: lotusir.KindCallDirect, Ssl: callee}
	caller := fakeir.NewLinearFunc("caller", nil, []*fakeir.Instr{call})

	getSummary := func(f lotusir.Function) (*Summary, bool) {
		if f == callee {
			return summary, true
		}
		return nil, false
	}

	res := e.Analyze(caller, getSummary)
	locs := ptgraph.Locators(res.Graph.FindPTResult(call, false))
	if len(locs) != 1 {
		t.Fatalf("want one caller-side locator for the escaped return, got %v", locs)
	}
}

// TestSelfLoopIsBackEdgeAfterDetection checks spec.md §8's "A
// self-loop call (f calls f) is marked as a back-edge."
func TestSelfLoopIsBackEdgeAfterDetection(t *testing.T) {
	e := newEngine()
	var f *fakeir.Func
	call := &fakeir.Instr{Val: fakeir.Val{N: "call"}, K: lotusir.KindCallDirect}
	f = fakeir.NewLinearFunc("f", nil, []*fakeir.Instr{call})
	call.Ssl = f

	e.Analyze(f, noSummary)
	e.cg.DetectBackEdges()
	if !e.cg.IsBackEdge(f, f) {
		t.Fatal("want f->f marked as a back-edge after detection")
	}
}
