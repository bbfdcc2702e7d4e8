// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vfg builds the value-flow graph the reachability engine
// (C8) searches over (spec.md §3 "Value-Flow Graph", §4.7, component
// C7): DefUse edges from def-use chains, RAW edges from store to
// aliasing load, and (in over-approximate mode) Alias edges between
// any two pointer values whose points-to sets intersect.
//
// Grounded on google-go-flow-levee's field-sensitive heap traversal
// idiom (walking a value's def-use chain plus alias partners to build
// a taint-propagation graph) and on the same dual-mode alias strategy
// rtcheck's ValState.Get/GetHeap distinction between frame-local and
// heap-resident values suggested — here made an explicit
// configuration choice (spec.md §9 "Dual alias mode in C7").
package vfg

import (
	"github.com/aclements/lotuscheck/config"
	"github.com/aclements/lotuscheck/lotusir"
	"github.com/aclements/lotuscheck/ptgraph"
)

// EdgeKind discriminates the three edge families spec.md §3 defines.
type EdgeKind int

const (
	DefUse EdgeKind = iota
	RAW
	Alias
)

func (k EdgeKind) String() string {
	switch k {
	case DefUse:
		return "def-use"
	case RAW:
		return "raw"
	case Alias:
		return "alias"
	default:
		return "?"
	}
}

// Edge is one directed edge of the value-flow graph.
type Edge struct {
	From, To lotusir.Value
	Kind     EdgeKind
}

// Graph is the value-flow graph for one function's points-to graph
// (constructed once per function after the inter engine converges,
// spec.md §4.7).
type Graph struct {
	mode  config.AliasMode
	out   map[lotusir.Value][]Edge
	order []lotusir.Value
}

// Build constructs the value-flow graph for f's instructions using pt
// for alias queries (spec.md §4.7). pt is the per-function points-to
// graph produced by the intra engine for f.
func Build(f lotusir.Function, pt *ptgraph.Graph, mode config.AliasMode) *Graph {
	g := &Graph{mode: mode, out: make(map[lotusir.Value][]Edge)}

	var stores []lotusir.Instruction // store instructions, for RAW matching
	var pointerVals []lotusir.Value  // pointer-typed values seen, for Alias in over/combined mode

	for _, b := range f.Blocks() {
		for _, instr := range b.Instrs() {
			// DefUse: instr -> each of its users is discovered from
			// the other direction (instr is a use of its operands),
			// so add an edge from each operand to instr.
			for _, op := range instr.Operands() {
				g.addEdge(op, instr, DefUse)
			}
			if instr.Type() != nil && instr.Type().IsPointer() {
				pointerVals = append(pointerVals, instr)
			}
			if instr.Kind() == lotusir.KindStore {
				stores = append(stores, instr)
			}
		}
	}

	for _, b := range f.Blocks() {
		for _, instr := range b.Instrs() {
			if instr.Kind() != lotusir.KindLoad || len(instr.Operands()) == 0 {
				continue
			}
			loadAddr := instr.Operands()[0]
			for _, s := range stores {
				ops := s.Operands()
				if len(ops) < 2 {
					continue
				}
				storeAddr := ops[0]
				if g.aliases(pt, loadAddr, storeAddr) {
					g.addEdge(s, instr, RAW)
				}
			}
		}
	}

	if mode == config.AliasOver || mode == config.AliasCombined {
		for i := 0; i < len(pointerVals); i++ {
			for j := i + 1; j < len(pointerVals); j++ {
				a, b := pointerVals[i], pointerVals[j]
				if g.ptSetsIntersect(pt, a, b) {
					g.addEdge(a, b, Alias)
					g.addEdge(b, a, Alias)
				}
			}
		}
	}

	return g
}

func (g *Graph) addEdge(from, to lotusir.Value, kind EdgeKind) {
	if from == nil || to == nil {
		return
	}
	if _, ok := g.out[from]; !ok {
		g.order = append(g.order, from)
	}
	g.out[from] = append(g.out[from], Edge{From: from, To: to, Kind: kind})
}

// Out returns v's outgoing edges, in insertion order.
func (g *Graph) Out(v lotusir.Value) []Edge {
	return append([]Edge(nil), g.out[v]...)
}

// Values returns every value that has at least one outgoing edge, in
// first-added order (spec.md §9 "Iteration order determinism").
func (g *Graph) Values() []lotusir.Value {
	return append([]lotusir.Value(nil), g.order...)
}

// aliases implements the under/over dual alias strategy for RAW edge
// construction (spec.md §4.7, §9 "Dual alias mode in C7").
func (g *Graph) aliases(pt *ptgraph.Graph, a, b lotusir.Value) bool {
	if a == b {
		return true
	}
	switch g.mode {
	case config.AliasUnder:
		return syntacticPeers(a, b)
	default: // over, combined
		return syntacticPeers(a, b) || g.ptSetsIntersect(pt, a, b)
	}
}

// syntacticPeers implements the under-approximate alias test: two
// values are syntactic peers if one is the direct operand (a bitcast
// or GEP chain) of the other.
func syntacticPeers(a, b lotusir.Value) bool {
	if ia, ok := a.(lotusir.Instruction); ok && derivesAddress(ia.Kind()) {
		for _, op := range ia.Operands() {
			if op == b {
				return true
			}
		}
	}
	if ib, ok := b.(lotusir.Instruction); ok && derivesAddress(ib.Kind()) {
		for _, op := range ib.Operands() {
			if op == a {
				return true
			}
		}
	}
	return false
}

// derivesAddress reports whether an instruction of kind k yields an
// address computed from its operand (a bitcast, GEP or cast) rather
// than, say, a value loaded through it.
func derivesAddress(k lotusir.Kind) bool {
	return k == lotusir.KindBitcastOrGEP || k == lotusir.KindCast
}

// ptSetsIntersect is the over-approximate alias test: true if a and
// b's points-to sets (as computed by the intra engine's C2 graph)
// share any locator.
func (g *Graph) ptSetsIntersect(pt *ptgraph.Graph, a, b lotusir.Value) bool {
	aPT := pt.FindPTResult(a, false)
	bPT := pt.FindPTResult(b, false)
	if aPT == nil || bPT == nil {
		return false
	}
	aLocs := ptgraph.Locators(aPT)
	bLocsList := ptgraph.Locators(bPT)
	seen := make(map[interface{}]bool, len(aLocs))
	for _, l := range aLocs {
		seen[l] = true
	}
	for _, l := range bLocsList {
		if seen[l] {
			return true
		}
	}
	return false
}
