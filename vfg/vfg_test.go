// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vfg

import (
	"testing"

	"github.com/aclements/lotuscheck/config"
	"github.com/aclements/lotuscheck/lotusir"
	"github.com/aclements/lotuscheck/lotusir/fakeir"
	"github.com/aclements/lotuscheck/memmodel"
	"github.com/aclements/lotuscheck/ptgraph"
)

// TestDefUseEdges checks that every operand gets a DefUse edge to its
// user (spec.md §4.7 "Add DefUse edges from i to each of its users").
func TestDefUseEdges(t *testing.T) {
	arena := memmodel.NewArena(8)
	pt := ptgraph.New(arena)

	a := &fakeir.Instr{Val: fakeir.Val{N: "a"}, K: lotusir.KindAlloc}
	b := &fakeir.Instr{Val: fakeir.Val{N: "b"}, K: lotusir.KindCast, Ops: []lotusir.Value{a}}
	f := fakeir.NewLinearFunc("f", nil, []*fakeir.Instr{a, b})

	g := Build(f, pt, config.AliasUnder)
	edges := g.Out(a)
	if len(edges) != 1 || edges[0].To != b || edges[0].Kind != DefUse {
		t.Fatalf("want one DefUse edge a->b, got %v", edges)
	}
}

// TestRAWEdgeUnderApproximate checks the under-approximate alias
// rule: a store and a load of the syntactically same address get a
// RAW edge.
func TestRAWEdgeUnderApproximate(t *testing.T) {
	arena := memmodel.NewArena(8)
	pt := ptgraph.New(arena)

	slot := &fakeir.Instr{Val: fakeir.Val{N: "slot", T: fakeir.PointerType}, K: lotusir.KindAlloc}
	val := &fakeir.Instr{Val: fakeir.Val{N: "v"}, K: lotusir.KindAlloc}
	store := &fakeir.Instr{Val: fakeir.Val{N: "store"}, K: lotusir.KindStore, Ops: []lotusir.Value{slot, val}}
	load := &fakeir.Instr{Val: fakeir.Val{N: "x"}, K: lotusir.KindLoad, Ops: []lotusir.Value{slot}}
	f := fakeir.NewLinearFunc("f", nil, []*fakeir.Instr{slot, val, store, load})

	g := Build(f, pt, config.AliasUnder)
	edges := g.Out(store)
	found := false
	for _, e := range edges {
		if e.To == load && e.Kind == RAW {
			found = true
		}
	}
	if !found {
		t.Fatalf("want a RAW edge store->load, got %v", edges)
	}
}

// TestAliasEdgesOnlyInOverMode checks spec.md §4.7: Alias edges are
// only added in over-approximate mode.
func TestAliasEdgesOnlyInOverMode(t *testing.T) {
	arena := memmodel.NewArena(8)
	obj := arena.NewConcrete(nil, "shared")

	p1 := &fakeir.Instr{Val: fakeir.Val{N: "p1", T: fakeir.PointerType}, K: lotusir.KindCast}
	p2 := &fakeir.Instr{Val: fakeir.Val{N: "p2", T: fakeir.PointerType}, K: lotusir.KindCast}
	f := fakeir.NewLinearFunc("f", nil, []*fakeir.Instr{p1, p2})

	pt := ptgraph.New(arena)
	pt.AddPointsTo(p1, obj, 0)
	pt.AddPointsTo(p2, obj, 0)

	under := Build(f, pt, config.AliasUnder)
	if edges := under.Out(p1); hasKind(edges, Alias) {
		t.Fatalf("under mode should not add Alias edges, got %v", edges)
	}

	over := Build(f, pt, config.AliasOver)
	if edges := over.Out(p1); !hasKind(edges, Alias) {
		t.Fatalf("over mode should add Alias edges for intersecting PT sets, got %v", edges)
	}
}

func hasKind(edges []Edge, kind EdgeKind) bool {
	for _, e := range edges {
		if e.Kind == kind {
			return true
		}
	}
	return false
}
