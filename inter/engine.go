// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package inter drives the intra engine to a module-wide fixed point
// over a dynamically-refined call graph (spec.md §4.6, component C6):
// initial bottom-up ordering, back-edge detection, a global-init
// heuristic, then rounds of re-analysis seeded by a work-set until no
// function's summary or call-site target set changes.
//
// Grounded on rtcheck/main.go's top-level driver, which walks
// goroutine roots and calls walkFunction until no new lock-graph
// edges appear; generalized here from "walk roots until no new
// edges" into "re-analyze the work-set until no summary changes."
package inter

import (
	"time"

	"github.com/aclements/lotuscheck/cgstate"
	"github.com/aclements/lotuscheck/config"
	"github.com/aclements/lotuscheck/fpresults"
	"github.com/aclements/lotuscheck/intra"
	"github.com/aclements/lotuscheck/lotusir"
	"github.com/aclements/lotuscheck/memmodel"
	"github.com/aclements/lotuscheck/ptgraph"
)

// Result is everything the inter engine produces for the whole
// module (spec.md §4.6 step 6 "Finalization").
type Result struct {
	Summaries    map[lotusir.Function]*intra.Summary
	Graphs       map[lotusir.Function]*ptgraph.Graph
	CallGraph    *cgstate.State
	FuncPtr      *fpresults.Results
	Rounds       int
	Conservative bool
	// CorrectnessErrs collects every self-check failure the intra
	// engine reported across the run, in bottom-up function order
	// (populated only when config.Config.TestCorrectness is set).
	CorrectnessErrs []error
}

// Engine owns the module-wide state a fixed-point run threads through
// every round: the shared arena, call-graph state, function-pointer
// results, and the intra engine instance itself.
type Engine struct {
	arena *memmodel.Arena
	cfg   config.Config
	cg    *cgstate.State
	fp    *fpresults.Results
	intra *intra.Engine
}

// New returns an inter engine over a fresh arena/call-graph/fpresults
// triple, per spec.md §3's ownership rules.
func New(arena *memmodel.Arena, cfg config.Config) *Engine {
	cg := cgstate.New()
	return &Engine{
		arena: arena,
		cfg:   cfg,
		cg:    cg,
		fp:    fpresults.New(),
		intra: intra.New(arena, cfg, cg),
	}
}

func (e *Engine) CallGraph() *cgstate.State   { return e.cg }
func (e *Engine) FuncPtr() *fpresults.Results { return e.fp }

// Run executes the full C6 pipeline over functions, honoring
// deadline as the caller-provided timeout (spec.md §5
// "Cancellation and timeouts").
func (e *Engine) Run(functions []lotusir.Function, globals []lotusir.Global, deadline time.Time) *Result {
	e.seedDirectCallEdges(functions)
	e.cg.DetectBackEdges()
	e.seedGlobalInits(globals)

	order := bottomUpOrder(e.cg, functions)

	summaries := make(map[lotusir.Function]*intra.Summary)
	graphs := make(map[lotusir.Function]*ptgraph.Graph)
	correctnessErrs := make(map[lotusir.Function][]error)

	getSummary := func(f lotusir.Function) (*intra.Summary, bool) {
		s, ok := summaries[f]
		return s, ok
	}

	inWorkset := make(map[lotusir.Function]bool, len(order))
	workset := append([]lotusir.Function(nil), order...)
	for _, f := range workset {
		inWorkset[f] = true
	}

	conservative := false
	round := 0
	for len(workset) > 0 {
		round++
		if round > e.cfg.MaxRounds {
			conservative = true
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			conservative = true
			break
		}

		nextSet := make(map[lotusir.Function]bool)
		var next []lotusir.Function
		schedule := func(f lotusir.Function) {
			if !nextSet[f] {
				nextSet[f] = true
				next = append(next, f)
			}
		}

		// Process in the fixed bottom-up order, restricted to the
		// current round's work-set (spec.md §4.6 step 4: "a single
		// sweep over the current work-set ... bottom-up along the
		// call graph").
		for _, f := range order {
			if !inWorkset[f] {
				continue
			}
			res := e.intra.Analyze(f, getSummary)

			old, hadOld := summaries[f]
			changed := !hadOld || !res.Summary.SameExternalInterface(old)
			summaries[f] = res.Summary
			graphs[f] = res.Graph
			correctnessErrs[f] = res.CorrectnessErrs

			for call, targets := range res.CallTargets {
				if e.fp.UpdateAndDetectChanges(f, call, targets) {
					changed = true
				}
			}

			if changed {
				for _, caller := range e.cg.Callers(f) {
					schedule(caller)
				}
			}
		}

		inWorkset = nextSet
		workset = next
	}

	var allErrs []error
	for _, f := range order {
		allErrs = append(allErrs, correctnessErrs[f]...)
	}

	return &Result{
		Summaries:       summaries,
		Graphs:          graphs,
		CallGraph:       e.cg,
		FuncPtr:         e.fp,
		Rounds:          round,
		Conservative:    conservative,
		CorrectnessErrs: allErrs,
	}
}

// seedDirectCallEdges builds the call-graph's initial edge set from
// direct calls only (spec.md §4.6 step 1), before any intra-procedural
// analysis has run.
func (e *Engine) seedDirectCallEdges(functions []lotusir.Function) {
	for _, f := range functions {
		for _, b := range f.Blocks() {
			for _, instr := range b.Instrs() {
				if instr.Kind() != lotusir.KindCallDirect {
					continue
				}
				call, ok := instr.(lotusir.CallInstruction)
				if !ok {
					continue
				}
				if callee := call.StaticCallee(); callee != nil {
					e.cg.AddEdge(f, callee)
				}
			}
		}
	}
}

// seedGlobalInits implements spec.md §4.6 step 3: globals whose
// constant initializer points to a function or another global get
// their points-to information recorded directly on the arena-owned
// locator, without running the intra engine. Because ObjectLocators
// live on the (session-wide) MemObject rather than on any one
// function's PTResult graph, every function's later GlobalRef/Load
// dispatch sees this binding automatically.
func (e *Engine) seedGlobalInits(globals []lotusir.Global) {
	for _, g := range globals {
		init, ok := g.InitPoints()
		if !ok {
			continue
		}
		obj := e.arena.FindConcrete(g, g.Name())
		loc := obj.FindLocator(0, true)
		loc.Bind(nil, init)
	}
}

// bottomUpOrder returns functions ordered so that every function
// appears after all of its (non-back-edge) callees, with functions in
// the same strongly connected component ordered arbitrarily among
// themselves (spec.md §4.6 step 1). It's a postorder DFS over the
// (now back-edge-free) call graph, which produces exactly that order.
func bottomUpOrder(cg *cgstate.State, functions []lotusir.Function) []lotusir.Function {
	visited := make(map[lotusir.Function]bool, len(functions))
	var order []lotusir.Function
	var visit func(f lotusir.Function)
	visit = func(f lotusir.Function) {
		if visited[f] {
			return
		}
		visited[f] = true
		for _, callee := range cg.Callees(f) {
			visit(callee)
		}
		order = append(order, f)
	}
	for _, f := range functions {
		visit(f)
	}
	return order
}
