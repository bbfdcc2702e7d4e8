// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ptgraph implements the per-function points-to graph
// (spec.md §3 "Points-To Result", §4.2, component C2): for every
// pointer-typed IR value, the set of (object, offset) locations it
// may refer to, represented as a mix of direct targets and targets
// derived from another value's PTResult plus an offset.
//
// Grounded on rtcheck's PT-like tracking in rtcheck/val.go (DynHeapPtr,
// DynFieldAddr all being "this value denotes this heap location, maybe
// plus an offset"), generalized here into an explicit graph with an
// iterator that performs the transitive closure on demand, matching
// spec.md §4.2's "PTResultIterator ... on-demand expansion with cycle
// detection."
package ptgraph

import (
	"github.com/aclements/lotuscheck/lotusir"
	"github.com/aclements/lotuscheck/memmodel"
)

// Target is a direct points-to target: a locator plus an additional
// offset applied on top of it (used when a GEP/bitcast composes an
// offset onto an already-resolved location without needing its own
// locator).
type Target struct {
	Loc    *memmodel.ObjectLocator
	Offset int
}

// Derived is an indirect points-to target: "whatever Parent points
// to, plus Offset". This lets two values known to be equal modulo
// offset share points-to information without eagerly copying it
// (spec.md §4.2).
type Derived struct {
	Parent *PTResult
	Offset int
}

// PTResult is the points-to set attached to one IR value (spec.md §3
// "Points-To Result").
type PTResult struct {
	value   lotusir.Value
	direct  []Target
	derived []Derived
}

func (r *PTResult) Value() lotusir.Value    { return r.value }
func (r *PTResult) Direct() []Target        { return r.direct }
func (r *PTResult) Derived() []Derived      { return r.derived }

func (r *PTResult) addDirect(loc *memmodel.ObjectLocator, offset int) {
	for _, t := range r.direct {
		if t.Loc == loc && t.Offset == offset {
			return
		}
	}
	r.direct = append(r.direct, Target{loc, offset})
}

func (r *PTResult) addDerived(parent *PTResult, offset int) {
	if parent == r {
		// A self-derivation contributes nothing new; it would only
		// create a 0-length cycle in the iterator.
		return
	}
	for _, d := range r.derived {
		if d.Parent == parent && d.Offset == offset {
			return
		}
	}
	r.derived = append(r.derived, Derived{parent, offset})
}

// Empty reports whether r has no targets at all (neither direct nor
// derived) — the "nothing known" case from spec.md §7.
func (r *PTResult) Empty() bool {
	return len(r.direct) == 0 && len(r.derived) == 0
}
