// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package intra

import "github.com/aclements/lotuscheck/lotusir"

// PseudoValue is a synthetic IR value the intra engine materializes
// for things the host IR has no node for: a function summary's
// symbolic inputs and return slot, and the side-effect outputs of a
// call whose callee summary is applied (spec.md §3 "Function Summary",
// §4.3 step 3 "pseudo-output IR values").
type PseudoValue struct {
	name string
	typ  lotusir.Type
	pos  int
}

func (p *PseudoValue) Name() string       { return p.name }
func (p *PseudoValue) Type() lotusir.Type { return p.typ }
func (p *PseudoValue) Pos() int           { return p.pos }

func newPseudo(name string, typ lotusir.Type) *PseudoValue {
	return &PseudoValue{name: name, typ: typ}
}
