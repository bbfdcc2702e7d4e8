// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memmodel

import "github.com/aclements/lotuscheck/lotusir"

// AccessPathOverflow is returned by Arena.Offset in strict mode when
// an offset computation exceeds the configured access-path depth
// cap (spec.md §4.1 "Fails with AccessPathOverflow only in strict
// mode; in normal mode, silently widens.").
type AccessPathOverflow struct {
	Offset int
	Limit  int
}

func (e *AccessPathOverflow) Error() string {
	return "access path depth exceeds configured limit"
}

// Arena is the per-session, per-module owner of every MemObject
// (spec.md §3 "Ownership": "MemObjects are owned by a per-module
// arena (not per-function) so cross-function escape sharing is
// sound."). It is the single factory through which MemObjects are
// created, guaranteeing the Null/Unknown singleton invariant.
type Arena struct {
	// Strict enables AccessPathOverflow errors instead of silent
	// widening (spec.md §4.1, §7 "Budget exceeded").
	Strict bool
	// APLevel is the access-path depth cap (config restrict_ap_level,
	// default 8).
	APLevel int

	objects []*MemObject
	nullObj *MemObject
	unkObj  *MemObject

	// bySite dedups Concrete/Pseudo objects keyed by (site, kind,
	// creation index), per spec.md §4.1's factory contract.
	bySite map[siteKey]*MemObject
	nextIx map[lotusir.Value]int
}

type siteKey struct {
	site  lotusir.Value
	kind  Kind
	index int
}

// NewArena returns an empty arena with the given access-path depth
// cap. apLevel <= 0 is treated as the spec default of 8.
func NewArena(apLevel int) *Arena {
	if apLevel <= 0 {
		apLevel = 8
	}
	a := &Arena{
		APLevel: apLevel,
		bySite:  make(map[siteKey]*MemObject),
		nextIx:  make(map[lotusir.Value]int),
	}
	a.nullObj = a.newRaw(Null, nil, "null")
	a.unkObj = a.newRaw(Unknown, nil, "unknown")
	return a
}

func (a *Arena) newRaw(kind Kind, site lotusir.Value, label string) *MemObject {
	o := &MemObject{id: len(a.objects), kind: kind, allocSite: site, label: label}
	a.objects = append(a.objects, o)
	return o
}

// Null returns the session-wide singleton Null object.
func (a *Arena) Null() *MemObject { return a.nullObj }

// Unknown returns the session-wide singleton Unknown object.
func (a *Arena) Unknown() *MemObject { return a.unkObj }

// NewConcrete allocates a fresh Concrete object for an allocation-like
// instruction (Alloca, heap allocation, global reference materialized
// as an object). Each call with the same site produces a distinct
// object: callers that want the "same site, same object" dedup
// (globals) should use FindConcrete instead.
func (a *Arena) NewConcrete(site lotusir.Value, label string) *MemObject {
	return a.newRaw(Concrete, site, label)
}

// FindConcrete returns the existing Concrete object for site if one
// was already created via FindConcrete, or allocates and caches a new
// one. This is used for globals and other allocation sites that must
// resolve to one object across the whole analysis (spec.md §4.1's
// factory keyed by "(allocation-site, kind, creation-index)" with
// creation-index 0 for singleton sites).
func (a *Arena) FindConcrete(site lotusir.Value, label string) *MemObject {
	key := siteKey{site, Concrete, 0}
	if o, ok := a.bySite[key]; ok {
		return o
	}
	o := a.newRaw(Concrete, site, label)
	a.bySite[key] = o
	return o
}

// NewPseudo allocates a fresh Pseudo object. index distinguishes
// multiple pseudo objects materialized at the same site (e.g. one
// per callee escape object observed at a call site), per the
// (call site, callee, callee-object) canonical key from spec.md §9
// "Open question: multi-level pseudo objects".
func (a *Arena) NewPseudo(site lotusir.Value, index int, label string) *MemObject {
	key := siteKey{site, Pseudo, index}
	if o, ok := a.bySite[key]; ok {
		return o
	}
	o := a.newRaw(Pseudo, site, label)
	a.bySite[key] = o
	return o
}

// Offset composes base with delta, truncated to the arena's
// access-path depth cap. depth is the number of dereferences already
// taken to reach base (0 for a direct formal/global). If depth+1
// exceeds APLevel, Offset returns (UnknownOffset, outDepth, err):
// err is non-nil only when a.Strict; otherwise the caller should
// treat the result as a silent widening to Unknown (spec.md §4.1,
// §8 "Access path at depth = restrict_ap_level + 1: the PT result
// collapses to Unknown; no panic.").
func (a *Arena) Offset(base, delta, depth int) (offset, outDepth int, err error) {
	if depth+1 > a.APLevel {
		if a.Strict {
			return UnknownOffset, depth, &AccessPathOverflow{Offset: base + delta, Limit: a.APLevel}
		}
		return UnknownOffset, depth, nil
	}
	sum := base + delta
	return sum, depth + 1, nil
}
