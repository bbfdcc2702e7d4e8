// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ptgraph

import "github.com/aclements/lotuscheck/lotusir"
import "github.com/aclements/lotuscheck/memmodel"

// Graph is the points-to graph for a single function (spec.md §4.2,
// component C2). It owns every PTResult created during that
// function's intra-procedural analysis.
type Graph struct {
	arena   *memmodel.Arena
	results map[lotusir.Value]*PTResult
	order   []lotusir.Value // insertion order, for deterministic dumps
}

// New returns an empty points-to graph backed by arena for object
// allocation.
func New(arena *memmodel.Arena) *Graph {
	return &Graph{arena: arena, results: make(map[lotusir.Value]*PTResult)}
}

func (g *Graph) Arena() *memmodel.Arena { return g.arena }

// FindPTResult returns the PTResult for v, creating an empty one if
// createIfMissing is true and none exists yet (spec.md §4.2
// "find_pt_result").
func (g *Graph) FindPTResult(v lotusir.Value, createIfMissing bool) *PTResult {
	if r, ok := g.results[v]; ok {
		return r
	}
	if !createIfMissing {
		return nil
	}
	r := &PTResult{value: v}
	g.results[v] = r
	g.order = append(g.order, v)
	return r
}

// AddPointsTo records that v may point to (obj, offset) directly
// (spec.md §4.2 "add_points_to").
func (g *Graph) AddPointsTo(v lotusir.Value, obj *memmodel.MemObject, offset int) {
	r := g.FindPTResult(v, true)
	loc := obj.FindLocator(offset, true)
	r.addDirect(loc, 0)
}

// AddPointsToLocator records that v may point directly at an
// already-resolved locator plus an extra offset composed on top.
func (g *Graph) AddPointsToLocator(v lotusir.Value, loc *memmodel.ObjectLocator, extraOffset int) {
	r := g.FindPTResult(v, true)
	r.addDirect(loc, extraOffset)
}

// DerivePTSFrom makes v's points-to set derive from parentPT, offset
// by offset (spec.md §4.2 "derive_pts_from"). Used by Bitcast/GEP,
// Load's result, PHI, Select, and cast transfer rules.
func (g *Graph) DerivePTSFrom(v lotusir.Value, parentPT *PTResult, offset int) {
	r := g.FindPTResult(v, true)
	r.addDerived(parentPT, offset)
}

// Values returns every IR value with a materialized PTResult, in
// creation order.
func (g *Graph) Values() []lotusir.Value {
	out := make([]lotusir.Value, len(g.order))
	copy(out, g.order)
	return out
}

// LoadPtrAt resolves every locator reachable from ptr's points-to set
// and collects the stored values recorded at each into out, per
// spec.md §4.2 "load_ptr_at". extraOffset is composed onto ptr's
// resolved offsets before locator lookup (used when the load itself
// carries a static offset, as with a fused GEP+load).
//
// followDerived selects how far that resolution goes: true expands
// the full transitive closure over Derived edges (the normal case,
// matching what the iterator's on-demand expansion computes); false
// stops at ptr's own Direct targets, ignoring anything only reachable
// by following another value's PTResult. Callers that already know
// ptr's points-to set was built entirely from direct binds (no
// aliasing through Derived) can use false to skip that expansion.
func (g *Graph) LoadPtrAt(ptr lotusir.Value, followDerived bool, extraOffset int) []memmodel.LocationValue {
	ptPT := g.FindPTResult(ptr, false)
	if ptPT == nil {
		return nil
	}
	var out []memmodel.LocationValue
	seen := make(map[*memmodel.ObjectLocator]bool)

	collect := func(loc *memmodel.ObjectLocator, offset int) {
		target := loc
		if offset != loc.Offset() {
			target = loc.Object().FindLocator(resolveOffset(g.arena, loc.Offset(), offset-loc.Offset()), true)
		}
		if seen[target] {
			return
		}
		seen[target] = true
		out = append(out, target.Values()...)
	}

	if !followDerived {
		for _, t := range ptPT.Direct() {
			collect(t.Loc, t.Offset+extraOffset)
		}
		return out
	}

	it := NewIterator(ptPT)
	for it.Next() {
		collect(it.Locator(), it.Offset()+extraOffset)
	}
	return out
}

// StoreValueAt records, for every locator reachable from ptr, that
// instr stored value there (spec.md §4.2 "store_value_at").
func (g *Graph) StoreValueAt(ptr lotusir.Value, instr lotusir.Instruction, value lotusir.Value) {
	ptPT := g.FindPTResult(ptr, false)
	if ptPT == nil {
		return
	}
	it := NewIterator(ptPT)
	for it.Next() {
		loc := it.Locator()
		loc.Bind(instr, value)
	}
}

func resolveOffset(arena *memmodel.Arena, base, delta int) int {
	off, _, _ := arena.Offset(base, delta, 0)
	return off
}
