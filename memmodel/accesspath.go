// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memmodel

import (
	"strconv"

	"github.com/aclements/lotuscheck/lotusir"
)

// AccessPath is a pair (parent value, offset) used to describe
// function summary inputs/outputs symbolically, e.g. "argument %a
// dereferenced, then field +16" (spec.md §3 "Access Path"). A chain
// of AccessPaths — each one's Parent being the previous one's
// synthetic value — represents multiple levels of dereference; depth
// is bounded by the arena's access-path cap, so the chain is always
// finite.
type AccessPath struct {
	Parent lotusir.Value // the formal argument, global, or synthetic pseudo-value this path is rooted at
	Offset int
	Depth  int // number of dereferences from Parent to reach Offset
}

// String renders "<parent>+<offset>" for debugging ("+?" for an
// unknown offset, no suffix for offset 0); Depth is not shown.
func (p AccessPath) String() string {
	s := p.Parent.Name()
	if p.Offset != 0 {
		if p.Offset == UnknownOffset {
			s += "+?"
		} else {
			s += "+" + strconv.Itoa(p.Offset)
		}
	}
	return s
}

// Equal reports whether p and o denote the same symbolic location.
func (p AccessPath) Equal(o AccessPath) bool {
	return p.Parent == o.Parent && p.Offset == o.Offset
}
