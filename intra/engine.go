// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package intra implements the per-function, field- and
// flow-sensitive points-to analysis (spec.md §4.3, component C3): it
// walks one function's instructions in topological block order,
// dispatches transfer rules by opcode family, applies callee
// summaries at call sites, and at the end produces the function's own
// summary for its callers to consume.
//
// Grounded on rtcheck/val.go's ValState.Do instruction dispatch
// (rtcheck's single switch over *ssa.Instruction concrete types,
// generalized here to a Kind enum so the engine stays IR-provider
// agnostic) and on rtcheck/main.go's per-call handling, generalized
// from rtcheck's fixed lock-function table into the general
// summary-application algorithm spec.md §4.3 describes.
package intra

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/aclements/lotuscheck/cgstate"
	"github.com/aclements/lotuscheck/config"
	"github.com/aclements/lotuscheck/lotusir"
	"github.com/aclements/lotuscheck/memmodel"
	"github.com/aclements/lotuscheck/ptgraph"
)

// Engine analyzes one function at a time against a shared arena and
// call-graph state (spec.md §4.3). It holds no per-function state
// itself; all of that lives in the graphState built fresh by each
// Analyze call.
type Engine struct {
	arena *memmodel.Arena
	cfg   config.Config
	cg    *cgstate.State
}

// New returns an intra engine sharing arena and cg with the rest of
// the session (spec.md §3 "Ownership").
func New(arena *memmodel.Arena, cfg config.Config, cg *cgstate.State) *Engine {
	return &Engine{arena: arena, cfg: cfg, cg: cg}
}

// Result is everything Analyze produces for one function.
type Result struct {
	Graph       *ptgraph.Graph
	Summary     *Summary
	CallTargets map[lotusir.CallInstruction][]lotusir.Function
	// CorrectnessErrs holds any self-check failures found this call,
	// populated only when config.Config.TestCorrectness is set
	// (spec.md §6).
	CorrectnessErrs []error
}

// graphState is the scratch bookkeeping used only during one Analyze
// call; none of it survives past summary construction except what's
// folded into Result.
type graphState struct {
	graph           *ptgraph.Graph
	paramRoots      []lotusir.Value
	returnValues    []lotusir.Value
	readLocators    map[*memmodel.ObjectLocator]bool
	writtenLocators map[*memmodel.ObjectLocator]bool
	callTargets     map[lotusir.CallInstruction][]lotusir.Function
}

// GetSummary looks up a callee's current Function Summary. The inter
// engine supplies this as a closure over its function→summary map
// (spec.md §3 "the InterEngine holds a mapping function→IntraEngine").
type GetSummary func(lotusir.Function) (*Summary, bool)

// Analyze runs the intra engine once over f, producing a fresh
// points-to graph and function summary. Re-running Analyze on f with
// an unchanged set of callee summaries must produce an
// externally-equal summary (spec.md §5 "Idempotence", §8).
//
// When config.Config.TestCorrectness is set, Analyze exercises that
// exact property as a live self-check: it runs the whole pass a
// second time against the same getSummary and compares the two
// summaries' external interfaces, reporting a mismatch in
// Result.CorrectnessErrs rather than failing silently (spec.md §6
// "the engine's internal self-checks").
func (e *Engine) Analyze(f lotusir.Function, getSummary GetSummary) *Result {
	res := e.analyzeOnce(f, getSummary)
	if e.cfg.TestCorrectness {
		again := e.analyzeOnce(f, getSummary)
		if !res.Summary.SameExternalInterface(again.Summary) {
			res.CorrectnessErrs = append(res.CorrectnessErrs, fmt.Errorf(
				"intra: %s: re-analysis with unchanged callee summaries produced a different external interface (idempotence self-check failed)", f.Name()))
		}
	}
	return res
}

func (e *Engine) analyzeOnce(f lotusir.Function, getSummary GetSummary) *Result {
	gs := &graphState{graph: ptgraph.New(e.arena)}
	for _, p := range f.Params() {
		if p.Type() != nil && p.Type().IsPointer() {
			gs.paramRoots = append(gs.paramRoots, p)
		}
	}

	for _, b := range topoOrder(f) {
		for _, instr := range b.Instrs() {
			e.dispatch(f, gs, instr, getSummary)
		}
	}

	summary := newSummary(f)
	summary.Inputs = e.collectInputs(f, gs)
	summary.Outputs = e.collectOutputs(f, gs)
	summary.EscapeObjs = e.collectEscapedObjects(f, gs)

	return &Result{Graph: gs.graph, Summary: summary, CallTargets: gs.callTargets}
}

// topoOrder returns f's basic blocks in reverse-postorder from the
// entry block (f.Blocks()[0]), the "topological order computed from
// the intra-procedural CFG" spec.md §4.3 requires. Back edges in a
// loopy CFG just mean the order isn't a true topological sort for
// those blocks; the engine still converges because Load/Store/PHI
// transfer rules are monotonic unions, not order-dependent overwrites.
func topoOrder(f lotusir.Function) []lotusir.BasicBlock {
	blocks := f.Blocks()
	if len(blocks) == 0 {
		return nil
	}
	visited := make(map[lotusir.BasicBlock]bool, len(blocks))
	var post []lotusir.BasicBlock
	var visit func(b lotusir.BasicBlock)
	visit = func(b lotusir.BasicBlock) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range b.Succs() {
			visit(s)
		}
		post = append(post, b)
	}
	visit(blocks[0])
	for _, b := range blocks {
		visit(b)
	}
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

func (e *Engine) dispatch(f lotusir.Function, gs *graphState, instr lotusir.Instruction, getSummary GetSummary) {
	switch instr.Kind() {
	case lotusir.KindAlloc:
		obj := e.arena.NewConcrete(instr, instr.Name())
		gs.graph.AddPointsTo(instr, obj, 0)

	case lotusir.KindGlobalRef:
		if len(instr.Operands()) == 0 {
			return
		}
		ref := instr.Operands()[0]
		obj := e.arena.FindConcrete(ref, ref.Name())
		gs.graph.AddPointsTo(instr, obj, 0)

	case lotusir.KindNullConst:
		gs.graph.AddPointsTo(instr, e.arena.Null(), 0)

	case lotusir.KindBitcastOrGEP:
		if len(instr.Operands()) == 0 {
			return
		}
		base := instr.Operands()[0]
		basePT := gs.graph.FindPTResult(base, true)
		offset := 0
		if oi, ok := instr.(lotusir.OffsetInstruction); ok {
			offset = oi.FieldOffset()
		}
		gs.graph.DerivePTSFrom(instr, basePT, offset)

	case lotusir.KindLoad:
		if len(instr.Operands()) == 0 {
			return
		}
		ptr := instr.Operands()[0]
		offset := 0
		if oi, ok := instr.(lotusir.OffsetInstruction); ok {
			offset = oi.FieldOffset()
		}
		e.recordRead(gs, ptr)
		vals := gs.graph.LoadPtrAt(ptr, true, offset)
		for _, lv := range vals {
			if valPT := gs.graph.FindPTResult(lv.Value, false); valPT != nil {
				gs.graph.DerivePTSFrom(instr, valPT, 0)
			}
		}

	case lotusir.KindStore:
		ops := instr.Operands()
		if len(ops) < 2 {
			return
		}
		addr, val := ops[0], ops[1]
		gs.graph.StoreValueAt(addr, instr, val)
		e.recordWrite(gs, addr)
		if val.Type() != nil && val.Type().IsPointer() {
			gs.graph.FindPTResult(val, true)
		}

	case lotusir.KindPhi:
		for _, op := range instr.Operands() {
			opPT := gs.graph.FindPTResult(op, true)
			gs.graph.DerivePTSFrom(instr, opPT, 0)
		}

	case lotusir.KindSelect:
		ops := instr.Operands()
		if len(ops) < 3 {
			return
		}
		gs.graph.DerivePTSFrom(instr, gs.graph.FindPTResult(ops[1], true), 0)
		gs.graph.DerivePTSFrom(instr, gs.graph.FindPTResult(ops[2], true), 0)

	case lotusir.KindCallDirect:
		call, ok := instr.(lotusir.CallInstruction)
		if !ok {
			return
		}
		callee := call.StaticCallee()
		if callee == nil {
			e.applySummaryLess(gs, call)
			return
		}
		if e.cg != nil {
			e.cg.AddEdge(f, callee)
		}
		isBack := e.cg != nil && e.cg.IsBackEdge(f, callee)
		summary, haveSummary := getSummary(callee)
		if e.cfg.RestrictInlineDepth == 0 || isBack || !haveSummary {
			// spec.md §4.3 "Back-edge interaction" / "Failure
			// semantics": back-edges and not-yet-analyzed callees
			// fall back to the summary-less transfer rule.
			e.applySummaryLess(gs, call)
			return
		}
		if e.cfg.RestrictInlineSize > 0 && len(summary.Inputs)+len(summary.Outputs) > e.cfg.RestrictInlineSize {
			// spec.md §6 "RestrictInlineSize caps the amount of
			// summary-application work done per call site": an
			// oversized summary degrades to the same summary-less
			// rule as an unanalyzed callee rather than doing
			// unbounded per-call-site work.
			e.applySummaryLess(gs, call)
			return
		}
		e.applySummary(gs, call, callee, summary)

	case lotusir.KindCallIndirect:
		call, ok := instr.(lotusir.CallInstruction)
		if !ok {
			return
		}
		targets := e.ResolveIndirectTargets(gs.graph, call.Callee())
		if e.cfg.RestrictCGSize > 0 && len(targets) > e.cfg.RestrictCGSize {
			targets = targets[:e.cfg.RestrictCGSize]
		}
		if gs.callTargets == nil {
			gs.callTargets = make(map[lotusir.CallInstruction][]lotusir.Function)
		}
		gs.callTargets[call] = targets
		for _, t := range targets {
			if e.cg != nil {
				e.cg.AddEdge(f, t)
			}
		}
		// spec.md §4.3: indirect calls are always treated
		// summary-less at the PT level, regardless of how many
		// targets were resolved; resolution only feeds the call
		// graph and (via the inter engine) fpresults.
		e.applySummaryLess(gs, call)

	case lotusir.KindCast:
		if len(instr.Operands()) == 0 {
			return
		}
		if opPT := gs.graph.FindPTResult(instr.Operands()[0], false); opPT != nil {
			gs.graph.DerivePTSFrom(instr, opPT, 0)
		}

	case lotusir.KindReturn:
		gs.returnValues = append(gs.returnValues, instr.Operands()...)
	}
}

func (e *Engine) recordRead(gs *graphState, ptr lotusir.Value) {
	pt := gs.graph.FindPTResult(ptr, false)
	if pt == nil {
		return
	}
	if gs.readLocators == nil {
		gs.readLocators = make(map[*memmodel.ObjectLocator]bool)
	}
	for _, loc := range ptgraph.Locators(pt) {
		gs.readLocators[loc] = true
	}
}

func (e *Engine) recordWrite(gs *graphState, ptr lotusir.Value) {
	pt := gs.graph.FindPTResult(ptr, false)
	if pt == nil {
		return
	}
	if gs.writtenLocators == nil {
		gs.writtenLocators = make(map[*memmodel.ObjectLocator]bool)
	}
	for _, loc := range ptgraph.Locators(pt) {
		gs.writtenLocators[loc] = true
	}
}

// applySummaryLess implements the "Call (indirect or summary-less)"
// transfer rule: pointer arguments are treated as possibly written
// (their PT result is ensured to exist, a conservative "something may
// have changed"), and a pointer-typed return value becomes a fresh
// Concrete object (spec.md §4.3).
func (e *Engine) applySummaryLess(gs *graphState, call lotusir.CallInstruction) {
	for _, a := range call.Args() {
		if a.Type() != nil && a.Type().IsPointer() {
			gs.graph.FindPTResult(a, true)
		}
	}
	if call.Type() != nil && call.Type().IsPointer() {
		obj := e.arena.NewConcrete(call, call.Name()+"$ret")
		gs.graph.AddPointsTo(call, obj, 0)
	}
}

// ResolveIndirectTargets recovers the set of statically possible
// callees for an indirect call's callee value by walking its
// points-to set for locators whose object allocation site is a
// lotusir.FuncConst (spec.md §8 scenario 6, "Indirect call
// resolution").
func (e *Engine) ResolveIndirectTargets(graph *ptgraph.Graph, calleeVal lotusir.Value) []lotusir.Function {
	pt := graph.FindPTResult(calleeVal, false)
	if pt == nil {
		return nil
	}
	seen := make(map[lotusir.Function]bool)
	var out []lotusir.Function
	for _, loc := range ptgraph.Locators(pt) {
		fc, ok := loc.Object().AllocSite().(lotusir.FuncConst)
		if !ok {
			continue
		}
		f := fc.Func()
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// applySummary implements the five-step summary-application algorithm
// of spec.md §4.3.
func (e *Engine) applySummary(gs *graphState, call lotusir.CallInstruction, callee lotusir.Function, summary *Summary) {
	key := callKey{call, callee}

	// Step 1: bind actual arguments to formal parameters.
	bindings := make(map[lotusir.Value]lotusir.Value)
	params, args := callee.Params(), call.Args()
	for i, p := range params {
		if i < len(args) {
			bindings[p] = args[i]
		}
	}
	var stored []*ptBinding
	for p, a := range bindings {
		stored = append(stored, &ptBinding{formal: p, actual: a})
	}
	summary.funcArg[key] = stored

	// Step 2: walk callee inputs in increasing access-path depth,
	// materializing the caller-side realization of each.
	inputs := append([]InputItem(nil), summary.Inputs...)
	sort.SliceStable(inputs, func(i, j int) bool { return inputs[i].Path.Depth < inputs[j].Path.Depth })
	for _, in := range inputs {
		callerRoot := e.rootInCaller(bindings, in.Path.Parent)
		if callerRoot == nil {
			continue
		}
		// Forces load materialization for this symbolic input; the
		// resulting values aren't consumed further by this
		// simplified driver (the outputs below are already rewritten
		// directly against caller objects) but the load itself is
		// what causes the caller-side locator to exist, matching
		// spec.md §4.3 step 2's "materializes the caller-side
		// realization."
		gs.graph.LoadPtrAt(callerRoot, true, in.Path.Offset)
	}

	// Step 3: allocate pseudo-output IR values.
	outVals := make([]lotusir.Value, len(summary.Outputs))
	if len(outVals) > 0 {
		outVals[0] = call
	}
	for i := 1; i < len(summary.Outputs); i++ {
		outVals[i] = newPseudo(callee.Name()+"$out"+strconv.Itoa(i), summary.Outputs[i].Type)
	}

	// Step 4: index escape objects by allocation site for step 5's
	// lookup, and ensure the funcEscape cache entry exists so
	// repeated application at the same call site returns
	// identity-equal caller-side objects (spec.md §9).
	escByAllocSite := make(map[lotusir.Value]*memmodel.MemObject, len(summary.EscapeObjs))
	for _, o := range summary.EscapeObjs {
		if site := o.AllocSite(); site != nil {
			escByAllocSite[site] = o
		}
	}
	if _, ok := summary.funcEscape[key]; !ok {
		summary.funcEscape[key] = make(map[*memmodel.MemObject]*memmodel.MemObject)
	}

	// Step 5: rewrite callee-side symbolic points-to into caller-side
	// PTResults, tie-breaking by union when multiple symbolic paths
	// resolve to distinct caller objects.
	for i, out := range summary.Outputs {
		for _, p := range out.PT {
			callerObj := e.resolveCallerObject(call, callee, summary, key, p.Parent, escByAllocSite)
			if callerObj == nil {
				continue
			}
			loc := callerObj.FindLocator(p.Offset, true)
			if outVals[i] != nil {
				gs.graph.AddPointsToLocator(outVals[i], loc, 0)
			}
		}
		if i == 0 {
			continue // the return value has no caller-side write location of its own
		}
		callerRoot := e.rootInCaller(bindings, out.Path.Parent)
		if callerRoot == nil {
			continue
		}
		for _, loc := range e.callerLocatorsFor(gs, callerRoot, out.Path.Offset) {
			loc.Bind(call, outVals[i])
		}
	}
}

// rootInCaller maps a callee-side symbolic root (a formal argument or
// a global) to its caller-side IR value: formals go through the
// binding map from step 1, globals keep their shared identity.
func (e *Engine) rootInCaller(bindings map[lotusir.Value]lotusir.Value, parent lotusir.Value) lotusir.Value {
	if a, ok := bindings[parent]; ok {
		return a
	}
	if _, ok := parent.(lotusir.Global); ok {
		return parent
	}
	return nil
}

// resolveCallerObject maps a callee-side symbolic AccessPath root
// into the caller-side MemObject it denotes: a global keeps its
// shared identity; a callee-local escape object is looked up (or, on
// first sight at this call site, materialized) through the
// summary's per-(callsite,callee) funcEscape cache, the canonical key
// spec.md §9 specifies.
func (e *Engine) resolveCallerObject(call lotusir.CallInstruction, callee lotusir.Function, summary *Summary, key callKey, parent lotusir.Value, escByAllocSite map[lotusir.Value]*memmodel.MemObject) *memmodel.MemObject {
	if g, ok := parent.(lotusir.Global); ok {
		return e.arena.FindConcrete(g, g.Name())
	}
	escObj, ok := escByAllocSite[parent]
	if !ok {
		return nil
	}
	cache := summary.funcEscape[key]
	if cobj, ok := cache[escObj]; ok {
		return cobj
	}
	cobj := e.arena.NewPseudo(call, len(cache), callee.Name()+"$esc")
	cache[escObj] = cobj
	return cobj
}

// callerLocatorsFor resolves every locator reachable from v's
// points-to set, offset by extraOffset, mirroring
// ptgraph.Graph.LoadPtrAt's traversal but returning the locators
// themselves rather than their stored values (used to bind a
// side-effect output's synthetic value at its caller-side write
// location).
func (e *Engine) callerLocatorsFor(gs *graphState, v lotusir.Value, extraOffset int) []*memmodel.ObjectLocator {
	pt := gs.graph.FindPTResult(v, false)
	if pt == nil {
		return nil
	}
	var out []*memmodel.ObjectLocator
	seen := make(map[*memmodel.ObjectLocator]bool)
	it := ptgraph.NewIterator(pt)
	for it.Next() {
		loc := it.Locator()
		offset := it.Offset() + extraOffset
		target := loc
		if offset != loc.Offset() {
			newOff, _, _ := e.arena.Offset(loc.Offset(), offset-loc.Offset(), 0)
			target = loc.Object().FindLocator(newOff, true)
		}
		if seen[target] {
			continue
		}
		seen[target] = true
		out = append(out, target)
	}
	return out
}
