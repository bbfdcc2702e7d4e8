// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package reach implements breadth-first source/sink reachability
// over a value-flow graph (spec.md §3, §4.8, component C8), with
// witness-path extraction and an optional k-call-string
// context-sensitive mode.
//
// Grounded on rtcheck/order.go's LockOrder.FindCycles, whose BFS/DFS
// worklist-with-parent-pointers pattern for extracting a counter-
// example path is adapted here from "find a cycle" to "find the
// shortest source-to-sink path."
package reach

import (
	"github.com/aclements/lotuscheck/lotusir"
	"github.com/aclements/lotuscheck/vfg"
)

// Checker supplies the three closures spec.md §4.8 requires. IsSink
// takes the edge that reached to (from is nil at the source itself)
// so a checker can distinguish "to's result carries the tainted
// value" from "to dereferences the tainted value as its address",
// mirroring the original NullPointerChecker's sinks keyed by
// (PtrOp, Instruction) pairs rather than by instruction alone.
type Checker struct {
	IsSource        func(v lotusir.Value) bool
	IsSink          func(from, to lotusir.Value) (sinkInstrs []lotusir.Instruction, ok bool)
	IsValidTransfer func(from, to lotusir.Value) bool
}

// Witness is the shortest path from a source to a sink, as a sequence
// of value-flow-graph nodes (spec.md §4.8 "records a witness path").
type Witness struct {
	Source, Sink lotusir.Value
	SinkInstr    lotusir.Instruction
	Path         []lotusir.Value // source ... sink, inclusive
	Truncated    bool
	// Ctx is the k-call-string context this witness was found under
	// (spec.md §4.8, §6 "Context-sensitive mode"). Empty when found
	// by context-insensitive Reachable, or when the path crossed no
	// call instructions.
	Ctx Context
}

// MaxWitnessLen caps the number of nodes kept in a witness path before
// truncation with an ellipsis marker (spec.md §4.8 "Witness paths
// longer than a configured cap are truncated").
const MaxWitnessLen = 24

// Reachable runs a context-insensitive BFS from every source in g
// that satisfies checker.IsSource, respecting checker.IsValidTransfer
// on each edge, and returns one Witness per (source, sink) pair
// reached. It's ReachableWithContext(g, checker, 0).
func Reachable(g *vfg.Graph, checker Checker) []Witness {
	return ReachableWithContext(g, checker, 0)
}

// ReachableWithContext is Reachable's k-call-string context-sensitive
// counterpart (spec.md §4.8, §6 "Context-sensitive mode uses
// k-call-string contexts"). With k == 0 it behaves exactly like
// Reachable. With k > 0, the BFS tracks the sequence of call
// instructions (vfg nodes of lotusir.CallInstruction type) each path
// has passed through, truncated to its last k call sites; two paths
// that reach the same node through calling contexts with different
// k-suffixes are explored as distinct states instead of being merged
// into one, so a sink reachable only via one call-string isn't
// conflated with a sink reachable via an unrelated one. Each
// resulting Witness carries the Context it was found under.
func ReachableWithContext(g *vfg.Graph, checker Checker, k int) []Witness {
	var out []Witness
	for _, v := range g.Values() {
		if !checker.IsSource(v) {
			continue
		}
		out = append(out, bfsFrom(g, v, checker, k)...)
	}
	return out
}

// ctxNode is one BFS queue entry: a vfg value paired with the calling
// context the search reached it under.
type ctxNode struct {
	v   lotusir.Value
	ctx Context
}

// ctxKey identifies a ctxNode for visited/parent bookkeeping: two
// nodes with the same value but different k-suffixes are distinct
// states, the mechanism that makes k > 0 context-sensitive.
type ctxKey struct {
	v   lotusir.Value
	suf string
}

func (n ctxNode) key(k int) ctxKey { return ctxKey{n.v, n.ctx.Suffix(k)} }

func bfsFrom(g *vfg.Graph, source lotusir.Value, checker Checker, k int) []Witness {
	start := ctxNode{v: source}
	visited := map[ctxKey]bool{start.key(k): true}
	parent := map[ctxKey]ctxNode{}
	queue := []ctxNode{start}

	var out []Witness
	reportedSinks := map[ctxKey]bool{}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		curKey := cur.key(k)

		var from lotusir.Value
		if p, ok := parent[curKey]; ok {
			from = p.v
		}

		if sinkInstrs, ok := checker.IsSink(from, cur.v); ok && cur.v != source && !reportedSinks[curKey] {
			reportedSinks[curKey] = true
			path, truncated := extractPath(parent, k, start, cur)
			var sinkInstr lotusir.Instruction
			if len(sinkInstrs) > 0 {
				sinkInstr = sinkInstrs[0]
			}
			out = append(out, Witness{
				Source:    source,
				Sink:      cur.v,
				SinkInstr: sinkInstr,
				Path:      path,
				Truncated: truncated,
				Ctx:       cur.ctx,
			})
		}

		for _, e := range g.Out(cur.v) {
			nextCtx := cur.ctx
			if k > 0 {
				if call, ok := e.To.(lotusir.CallInstruction); ok {
					nextCtx = append(append(Context(nil), cur.ctx...), call)
				}
			}
			next := ctxNode{v: e.To, ctx: nextCtx}
			nextKey := next.key(k)
			if visited[nextKey] {
				continue
			}
			if checker.IsValidTransfer != nil && !checker.IsValidTransfer(cur.v, e.To) {
				continue
			}
			visited[nextKey] = true
			parent[nextKey] = cur
			queue = append(queue, next)
		}
	}
	return out
}

// extractPath walks parent pointers from sink back to source and
// reverses the result, truncating to MaxWitnessLen with an ellipsis
// marker represented by Truncated=true (the caller renders the
// ellipsis; this package only reports whether one is needed).
func extractPath(parent map[ctxKey]ctxNode, k int, source, sink ctxNode) ([]lotusir.Value, bool) {
	var rev []lotusir.Value
	for n := sink; ; {
		rev = append(rev, n.v)
		if n.v == source.v && n.ctx.Suffix(k) == source.ctx.Suffix(k) {
			break
		}
		p, ok := parent[n.key(k)]
		if !ok {
			break
		}
		n = p
	}
	path := make([]lotusir.Value, len(rev))
	for i, v := range rev {
		path[len(rev)-1-i] = v
	}
	truncated := false
	if len(path) > MaxWitnessLen {
		half := MaxWitnessLen / 2
		path = append(append(append([]lotusir.Value(nil), path[:half]...)), path[len(path)-half:]...)
		truncated = true
	}
	return path, truncated
}

// Context is a k-call-string suffix used by context-sensitive
// reachability (spec.md §4.8 "Context-sensitive mode"). It is an
// ordered list of call sites, most recent last.
type Context []lotusir.CallInstruction

// Suffix returns the last k elements of c (or all of c if shorter),
// the canonical key context-sensitive tables use to union results
// across full contexts sharing a suffix.
func (c Context) Suffix(k int) string {
	start := 0
	if len(c) > k {
		start = len(c) - k
	}
	s := ""
	for _, site := range c[start:] {
		s += site.Name() + ";"
	}
	return s
}

// ContextTable maintains reachability results per k-call-string
// context suffix. A lookup for "reachable in some context with suffix
// c" is the union of every full context's results sharing that suffix
// (spec.md §4.8).
type ContextTable struct {
	k        int
	bySuffix map[string][]Witness
	order    []string
}

// NewContextTable returns an empty table keyed on k-length call-string
// suffixes.
func NewContextTable(k int) *ContextTable {
	return &ContextTable{k: k, bySuffix: make(map[string][]Witness)}
}

// Add records witnesses found under context ctx.
func (t *ContextTable) Add(ctx Context, witnesses []Witness) {
	suf := ctx.Suffix(t.k)
	if _, ok := t.bySuffix[suf]; !ok {
		t.order = append(t.order, suf)
	}
	t.bySuffix[suf] = append(t.bySuffix[suf], witnesses...)
}

// Union returns every witness recorded under any full context sharing
// ctx's suffix.
func (t *ContextTable) Union(ctx Context) []Witness {
	return append([]Witness(nil), t.bySuffix[ctx.Suffix(t.k)]...)
}
