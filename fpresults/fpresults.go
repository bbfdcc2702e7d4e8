// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fpresults tracks, per call site, the set of callees
// resolved for an indirect call (spec.md §3 "Function Pointer
// Results", §4.5, component C5). The inter engine uses
// UpdateAndDetectChanges to decide whether a caller needs
// rescheduling after its indirect-call targets shift.
//
// Grounded on rtcheck/handlers.go's per-call-site dispatch table
// (callHandlers keyed by callee name) generalized to a keyed,
// mutable target set rather than a fixed table, and on rtcheck's
// overall "walk until nothing changes" driver loop in
// rtcheck/main.go, whose changed-or-not signal this package exists
// to provide per call site.
package fpresults

import "github.com/aclements/lotuscheck/lotusir"

// site identifies one indirect call site: the enclosing function plus
// the call instruction itself (a function may contain more than one
// indirect call).
type site struct {
	caller lotusir.Function
	call   lotusir.CallInstruction
}

// Results holds the current indirect-call target sets for every call
// site seen so far.
type Results struct {
	targets map[site][]lotusir.Function
}

// New returns an empty function-pointer results table.
func New() *Results {
	return &Results{targets: make(map[site][]lotusir.Function)}
}

// GetTargets returns the currently known callees for an indirect call
// site, in the order they were last set (spec.md §4.5
// "get_targets"). Returns nil if the site has never been set.
func (r *Results) GetTargets(caller lotusir.Function, call lotusir.CallInstruction) []lotusir.Function {
	s := site{caller, call}
	ts := r.targets[s]
	if ts == nil {
		return nil
	}
	return append([]lotusir.Function(nil), ts...)
}

// SetTargets unconditionally replaces the callee set for a call site
// (spec.md §4.5 "set_targets"). Callers that need change detection
// should use UpdateAndDetectChanges instead.
func (r *Results) SetTargets(caller lotusir.Function, call lotusir.CallInstruction, targets []lotusir.Function) {
	s := site{caller, call}
	r.targets[s] = dedupFunctions(targets)
}

// UpdateAndDetectChanges replaces the callee set for a call site with
// newTargets and reports whether the set actually changed — gained or
// lost at least one callee, including the empty-to-nonempty and
// nonempty-to-empty transitions (spec.md §4.5, and the idempotence
// property from spec.md §8: calling this twice in a row with the same
// newTargets reports false the second time).
func (r *Results) UpdateAndDetectChanges(caller lotusir.Function, call lotusir.CallInstruction, newTargets []lotusir.Function) bool {
	s := site{caller, call}
	deduped := dedupFunctions(newTargets)
	old := r.targets[s]

	changed := !sameFunctionSet(old, deduped)
	r.targets[s] = deduped
	return changed
}

func dedupFunctions(fs []lotusir.Function) []lotusir.Function {
	if len(fs) == 0 {
		return nil
	}
	seen := make(map[lotusir.Function]bool, len(fs))
	out := make([]lotusir.Function, 0, len(fs))
	for _, f := range fs {
		if f == nil || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// sameFunctionSet compares two callee lists as sets (order-independent,
// per spec.md §4.5's "the set of resolved callees").
func sameFunctionSet(a, b []lotusir.Function) bool {
	if len(a) != len(b) {
		return false
	}
	inA := make(map[lotusir.Function]bool, len(a))
	for _, f := range a {
		inA[f] = true
	}
	for _, f := range b {
		if !inA[f] {
			return false
		}
	}
	return true
}
