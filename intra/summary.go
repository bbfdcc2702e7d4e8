// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package intra

import (
	"github.com/aclements/lotuscheck/lotusir"
	"github.com/aclements/lotuscheck/memmodel"
	"github.com/aclements/lotuscheck/ptgraph"
)

// InputItem is one entry of a Function Summary's inputs map: a
// synthetic pseudo-value standing for memory this function reads
// through a pointer-typed argument, paired with the symbolic
// AccessPath describing where that memory lives relative to that
// formal argument (spec.md §3 "Function Summary").
type InputItem struct {
	Pseudo *PseudoValue
	Path   memmodel.AccessPath
}

// OutputItem is one entry of a Function Summary's outputs: element 0
// is always the return value, elements 1..N are side-effect outputs
// reachable by writes through pointer-typed arguments (spec.md §3).
type OutputItem struct {
	// Path is the symbolic location this output describes: for the
	// return value, Path.Parent is the function's own pseudo-return
	// value; for a side-effect output, it is the formal argument the
	// write is reachable through.
	Path memmodel.AccessPath
	// PT is the output's simplified points-to set, itself expressed
	// as symbolic AccessPaths rooted at formals/globals/pseudo-inputs
	// so it can be rewritten against any call site's actual
	// arguments.
	PT []memmodel.AccessPath
	// Type is the output's declared IR type.
	Type lotusir.Type
	// ReturnSiteValues holds, for output 0 only, the concrete IR
	// value returned at each return instruction in the function.
	ReturnSiteValues []lotusir.Value
}

// callKey identifies one (call site, resolved callee) pair, the
// canonical key spec.md §9 specifies for the func_arg/func_escape
// caches and for per-call-site pseudo-object materialization.
type callKey struct {
	site   lotusir.CallInstruction
	callee lotusir.Function
}

// Summary is the per-function record the intra engine produces and
// the inter engine compares across rounds to detect convergence
// (spec.md §3 "Function Summary", §4.6 step 4).
type Summary struct {
	Func       lotusir.Function
	Inputs     []InputItem
	Outputs    []OutputItem
	EscapeObjs []*memmodel.MemObject

	// funcArg/funcEscape cache per-(callsite,callee) resolved
	// argument bindings and escape-object materializations, so
	// repeated summary application at the same site is idempotent
	// (spec.md §3, §9 "Open question: multi-level pseudo objects").
	funcArg    map[callKey][]*ptBinding
	funcEscape map[callKey]map[*memmodel.MemObject]*memmodel.MemObject
}

// ptBinding is the caller-side realization bound to one formal
// argument during summary application (step 1 of the algorithm).
type ptBinding struct {
	formal lotusir.Value
	actual lotusir.Value
}

func newSummary(f lotusir.Function) *Summary {
	return &Summary{
		Func:       f,
		funcArg:    make(map[callKey][]*ptBinding),
		funcEscape: make(map[callKey]map[*memmodel.MemObject]*memmodel.MemObject),
	}
}

// SameExternalInterface reports whether s and o describe the same
// inputs/outputs/escape signature, the comparison the inter engine
// uses to decide whether a function's callers need rescheduling
// (spec.md §4.6 step 4, §8 "re-running the intra engine on f produces
// a summary equal to the stored one").
func (s *Summary) SameExternalInterface(o *Summary) bool {
	if o == nil {
		return false
	}
	if len(s.Inputs) != len(o.Inputs) || len(s.Outputs) != len(o.Outputs) || len(s.EscapeObjs) != len(o.EscapeObjs) {
		return false
	}
	for i := range s.Inputs {
		if !s.Inputs[i].Path.Equal(o.Inputs[i].Path) {
			return false
		}
	}
	for i := range s.Outputs {
		a, b := s.Outputs[i], o.Outputs[i]
		samePath := a.Path.Equal(b.Path)
		if i == 0 {
			// Each run creates its own pseudo-return value, so the
			// return slot is compared by offset, not by Parent.
			samePath = a.Path.Offset == b.Path.Offset
		}
		if !samePath || len(a.PT) != len(b.PT) {
			return false
		}
		for j := range a.PT {
			if !a.PT[j].Equal(b.PT[j]) {
				return false
			}
		}
	}
	// Escaped objects are compared by allocation site: each run
	// allocates fresh Concrete objects for the same sites.
	escSet := make(map[lotusir.Value]bool, len(o.EscapeObjs))
	for _, e := range o.EscapeObjs {
		escSet[e.AllocSite()] = true
	}
	for _, e := range s.EscapeObjs {
		if !escSet[e.AllocSite()] {
			return false
		}
	}
	return true
}

// collectInputs records one input for each locator that a
// pointer-typed formal argument points to and that the function reads
// via a Load (spec.md §4.3 "Summary construction", collectInputs).
//
// Only that first level is walked: every input has depth 0, memory
// reached through further dereferences is not recorded, and globals
// are not used as roots.
func (e *Engine) collectInputs(f lotusir.Function, g *graphState) []InputItem {
	var inputs []InputItem
	seen := make(map[memmodel.AccessPath]bool)
	for _, root := range g.paramRoots {
		e.walkReadsFrom(g, root, 0, seen, &inputs)
	}
	return inputs
}

// walkReadsFrom records an InputItem, at the given depth, for every
// locator in root's own points-to set that the function read via a
// Load. It does not follow those locators' contents to deeper levels;
// depth only guards against exceeding the configured access-path cap.
func (e *Engine) walkReadsFrom(g *graphState, root lotusir.Value, depth int, seen map[memmodel.AccessPath]bool, out *[]InputItem) {
	if depth > e.cfg.RestrictAPLevel {
		return
	}
	pt := g.graph.FindPTResult(root, false)
	if pt == nil {
		return
	}
	for _, loc := range ptgraph.Locators(pt) {
		if !g.readLocators[loc] {
			continue
		}
		ap := memmodel.AccessPath{Parent: root, Offset: loc.Offset(), Depth: depth}
		if seen[ap] {
			continue
		}
		seen[ap] = true
		pseudo := newPseudo(root.Name()+"$in", nil)
		*out = append(*out, InputItem{Pseudo: pseudo, Path: ap})
	}
}

// collectOutputs inspects every return instruction plus every store
// into a locator that a pointer-typed formal argument points to,
// producing one OutputItem per such locator (spec.md §4.3 "Summary
// construction", collectOutputs). Stores into globals are not
// collected as outputs. Element 0 is always the return value, even when
// the function returns nothing (an empty OutputItem with a nil Type).
func (e *Engine) collectOutputs(f lotusir.Function, g *graphState) []OutputItem {
	retPseudo := newPseudo(f.Name()+"$ret", nil)
	ret := OutputItem{Path: memmodel.AccessPath{Parent: retPseudo}}
	for _, rv := range g.returnValues {
		ret.ReturnSiteValues = append(ret.ReturnSiteValues, rv)
		if pt := g.graph.FindPTResult(rv, false); pt != nil {
			ret.PT = append(ret.PT, symbolicPaths(pt)...)
		}
	}
	outputs := []OutputItem{ret}

	for _, root := range g.paramRoots {
		pt := g.graph.FindPTResult(root, false)
		if pt == nil {
			continue
		}
		for _, loc := range ptgraph.Locators(pt) {
			if !g.writtenLocators[loc] {
				continue
			}
			item := OutputItem{Path: memmodel.AccessPath{Parent: root, Offset: loc.Offset()}}
			for _, lv := range loc.Values() {
				if pt2 := g.graph.FindPTResult(lv.Value, false); pt2 != nil {
					item.PT = append(item.PT, symbolicPaths(pt2)...)
				}
			}
			outputs = append(outputs, item)
		}
	}
	return outputs
}

// collectEscapedObjects computes the set of locally allocated objects
// that are either stored into a location a pointer-typed parameter
// points to, or returned (spec.md §4.3 "Summary
// construction", collectEscapedObjects).
func (e *Engine) collectEscapedObjects(f lotusir.Function, g *graphState) []*memmodel.MemObject {
	escaped := make(map[*memmodel.MemObject]bool)
	var out []*memmodel.MemObject
	add := func(o *memmodel.MemObject) {
		if o.Kind() != memmodel.Concrete || escaped[o] {
			return
		}
		if _, isGlobal := o.AllocSite().(lotusir.Global); isGlobal {
			// Globals are already caller-visible by shared identity;
			// they don't need a pseudo-object escape mapping.
			return
		}
		escaped[o] = true
		out = append(out, o)
	}

	for _, rv := range g.returnValues {
		if pt := g.graph.FindPTResult(rv, false); pt != nil {
			for _, loc := range ptgraph.Locators(pt) {
				add(loc.Object())
			}
		}
	}
	for _, root := range g.paramRoots {
		pt := g.graph.FindPTResult(root, false)
		if pt == nil {
			continue
		}
		for _, loc := range ptgraph.Locators(pt) {
			if !g.writtenLocators[loc] {
				continue
			}
			for _, lv := range loc.Values() {
				if vpt := g.graph.FindPTResult(lv.Value, false); vpt != nil {
					for _, vloc := range ptgraph.Locators(vpt) {
						add(vloc.Object())
					}
				}
			}
		}
	}
	return out
}

// symbolicPaths renders every locator reachable from pt as a symbolic
// AccessPath rooted at the locator's object's allocation site. Used
// to make an OutputItem's PT set rewritable at arbitrary call sites.
func symbolicPaths(pt *ptgraph.PTResult) []memmodel.AccessPath {
	var out []memmodel.AccessPath
	for _, loc := range ptgraph.Locators(pt) {
		site := loc.Object().AllocSite()
		if site == nil {
			continue
		}
		out = append(out, memmodel.AccessPath{Parent: site, Offset: loc.Offset()})
	}
	return out
}
