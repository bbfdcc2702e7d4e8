// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cgstate maintains the call-graph state the inter engine
// drives the intra engine over (spec.md §3 "Call-Graph State", §4.4,
// component C4): caller/callee edges in both directions, and the
// back-edge set excluded from summary application.
//
// Grounded on rtcheck's use of golang.org/x/tools/go/callgraph
// (rtcheck/main.go builds a callgraph.Graph and walks it root by
// root) and on rtcheck/order.go's LockOrder.FindCycles, whose
// three-color DFS is the back-edge detector adapted here from lock
// ordering edges to caller->callee call edges.
package cgstate

import "github.com/aclements/lotuscheck/lotusir"

// State holds the module's caller->callee and callee->caller edge
// sets, plus the set of edges identified as back-edges.
//
// Invariant (spec.md §3, §8): topDown[u] contains v iff
// bottomUp[v] contains u, after DetectBackEdges has run — both maps
// have back-edges removed as soon as they're detected.
type State struct {
	callerOrder []lotusir.Function // functions in first-added-as-caller order

	topDown  map[lotusir.Function][]lotusir.Function // caller -> callees, insertion order
	bottomUp map[lotusir.Function][]lotusir.Function // callee -> callers, insertion order

	edgeSet map[edge]bool
	backSet map[edge]bool
}

type edge struct {
	caller, callee lotusir.Function
}

// New returns an empty call-graph state.
func New() *State {
	return &State{
		topDown:  make(map[lotusir.Function][]lotusir.Function),
		bottomUp: make(map[lotusir.Function][]lotusir.Function),
		edgeSet:  make(map[edge]bool),
		backSet:  make(map[edge]bool),
	}
}

// AddEdge inserts a caller->callee edge into both maps (spec.md §4.4
// "add_edge"). A duplicate edge, or one already identified as a
// back-edge, is a no-op.
func (s *State) AddEdge(caller, callee lotusir.Function) {
	e := edge{caller, callee}
	if s.backSet[e] || s.edgeSet[e] {
		return
	}
	s.edgeSet[e] = true
	if _, ok := s.topDown[caller]; !ok {
		s.callerOrder = append(s.callerOrder, caller)
	}
	s.topDown[caller] = append(s.topDown[caller], callee)
	s.bottomUp[callee] = append(s.bottomUp[callee], caller)
}

// Callees returns f's direct callees, in edge-insertion order.
func (s *State) Callees(f lotusir.Function) []lotusir.Function {
	return append([]lotusir.Function(nil), s.topDown[f]...)
}

// Callers returns f's direct callers, in edge-insertion order.
func (s *State) Callers(f lotusir.Function) []lotusir.Function {
	return append([]lotusir.Function(nil), s.bottomUp[f]...)
}

// IsBackEdge reports whether caller->callee was marked a back-edge
// by DetectBackEdges (spec.md §4.4 "is_back_edge").
func (s *State) IsBackEdge(caller, callee lotusir.Function) bool {
	return s.backSet[edge{caller, callee}]
}

// Functions returns every function that has been added as a caller
// or a callee so far, in first-seen order. Deterministic (spec.md §9
// "iteration order determinism") rather than relying on Go's
// randomized map iteration.
func (s *State) Functions() []lotusir.Function {
	seen := make(map[lotusir.Function]bool)
	var out []lotusir.Function
	add := func(f lotusir.Function) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	for _, caller := range s.callerOrder {
		add(caller)
		for _, callee := range s.topDown[caller] {
			add(callee)
		}
	}
	return out
}

type color int

const (
	white color = iota // unvisited
	gray               // on the current DFS stack
	black              // fully explored
)

// DetectBackEdges runs a DFS over the current edge set, colors nodes
// {unvisited, on-stack, done}, and classifies any edge into a gray
// node as a back-edge (spec.md §4.4 "detect_back_edges"). Back-edges
// are removed from both topDown and bottomUp and recorded in backSet
// so future AddEdge/IsBackEdge calls see them.
//
// It returns the set of callers whose callee list changed as a
// result (i.e. lost at least one callee to back-edge removal), in
// deterministic order, so the inter engine knows which summaries to
// invalidate.
func (s *State) DetectBackEdges() []lotusir.Function {
	colors := make(map[lotusir.Function]color)
	var changed []lotusir.Function
	changedSet := make(map[lotusir.Function]bool)

	var removeEdges []edge

	var visit func(f lotusir.Function)
	visit = func(f lotusir.Function) {
		colors[f] = gray
		for _, callee := range s.topDown[f] {
			e := edge{f, callee}
			if s.backSet[e] {
				continue
			}
			switch colors[callee] {
			case white:
				visit(callee)
			case gray:
				// Back-edge: f -> callee closes a cycle.
				removeEdges = append(removeEdges, e)
				if !changedSet[f] {
					changedSet[f] = true
					changed = append(changed, f)
				}
			case black:
				// Cross/forward edge, not a back-edge.
			}
		}
		colors[f] = black
	}

	for _, f := range s.callerOrder {
		if colors[f] == white {
			visit(f)
		}
	}

	for _, e := range removeEdges {
		s.backSet[e] = true
		delete(s.edgeSet, e)
		s.topDown[e.caller] = removeFunc(s.topDown[e.caller], e.callee)
		s.bottomUp[e.callee] = removeFunc(s.bottomUp[e.callee], e.caller)
	}

	return changed
}

func removeFunc(fs []lotusir.Function, target lotusir.Function) []lotusir.Function {
	out := fs[:0]
	for _, f := range fs {
		if f != target {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
