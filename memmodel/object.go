// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memmodel implements the engine's memory model (spec.md §3,
// §4.1, component C1): abstract memory objects, field locators keyed
// by byte offset, and the arena that owns them for the whole session.
//
// The design is grounded on rtcheck's HeapObject (rtcheck/val.go):
// objects have identity, not value, and a string label for
// debugging. Here that's generalized with a Kind discriminator and
// lazily-materialized field locators, per spec.md §4.1.
package memmodel

import "github.com/aclements/lotuscheck/lotusir"

// Kind classifies a MemObject (spec.md §3 "Memory Object").
type Kind int

const (
	// Concrete is an object created at a specific allocation site.
	Concrete Kind = iota
	// Null is the singleton object every null-constant points to.
	Null
	// Unknown is the arena's singleton "may point to anything"
	// object. The engine binds no value to it when it widens: an
	// access-path overflow yields UnknownOffset, and an exhausted
	// round budget is reported as a conservative result.
	Unknown
	// Pseudo is a stand-in object materialized for a callee's escape
	// set (spec.md §4.3); a summary-less call's result is a fresh
	// Concrete object instead.
	Pseudo
)

func (k Kind) String() string {
	switch k {
	case Concrete:
		return "concrete"
	case Null:
		return "null"
	case Unknown:
		return "unknown"
	case Pseudo:
		return "pseudo"
	default:
		return "?"
	}
}

// UnknownOffset is the sentinel offset used for a merged/unknown
// field (spec.md §3 "Object Locator").
const UnknownOffset = -1

// MemObject is a single abstract allocation (spec.md §3). Identity is
// the pointer to the MemObject itself, never its contents: two
// MemObjects are "the same object" iff they are the same pointer.
type MemObject struct {
	id        int
	kind      Kind
	allocSite lotusir.Value // nil for Null/Unknown/some Pseudo objects
	label     string        // debugging label, mirrors rtcheck's HeapObject.label

	locators map[int]*ObjectLocator // lazily materialized, keyed by offset
	order    []int                  // insertion order of locator offsets, for deterministic iteration
}

func (o *MemObject) ID() int                    { return o.id }
func (o *MemObject) Kind() Kind                  { return o.kind }
func (o *MemObject) AllocSite() lotusir.Value    { return o.allocSite }
func (o *MemObject) String() string {
	if o.label != "" {
		return o.label
	}
	return o.kind.String()
}

// FindLocator returns the ObjectLocator for offset within o, creating
// it if createIfMissing is true and it does not yet exist. Two calls
// for the same offset always return the identical *ObjectLocator —
// this is the invariant spec.md §8 tests ("l1 is l2").
func (o *MemObject) FindLocator(offset int, createIfMissing bool) *ObjectLocator {
	if loc, ok := o.locators[offset]; ok {
		return loc
	}
	if !createIfMissing {
		return nil
	}
	if o.locators == nil {
		o.locators = make(map[int]*ObjectLocator)
	}
	loc := &ObjectLocator{obj: o, offset: offset}
	o.locators[offset] = loc
	o.order = append(o.order, offset)
	return loc
}

// Locators returns every locator materialized on o so far, in the
// order they were first created.
func (o *MemObject) Locators() []*ObjectLocator {
	out := make([]*ObjectLocator, len(o.order))
	for i, off := range o.order {
		out[i] = o.locators[off]
	}
	return out
}
