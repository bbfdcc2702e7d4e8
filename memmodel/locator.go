// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memmodel

import (
	"strconv"

	"github.com/aclements/lotuscheck/lotusir"
)

// ObjectLocator is a (MemObject, offset) pair: "field at offset
// inside this object" (spec.md §3 "Object Locator"). It additionally
// tracks the set of (defining instruction, stored value) bindings
// that have been recorded for this location, which gives the intra
// engine flow sensitivity without an explicit SSA of memory (spec.md
// §4.2).
type ObjectLocator struct {
	obj    *MemObject
	offset int

	// binds records every (defining instruction, stored value)
	// recorded by a Store transfer (spec.md §3 "location-values").
	// Order is insertion order; later loads read all of them.
	binds []LocationValue
}

// LocationValue is a single versioned write to a locator: the
// instruction that performed the write and the value written.
type LocationValue struct {
	DefiningInstr lotusir.Instruction
	Value         lotusir.Value
}

func (l *ObjectLocator) Object() *MemObject { return l.obj }
func (l *ObjectLocator) Offset() int        { return l.offset }

// Bind records that instr stored val at this locator. Duplicate
// (instr, val) pairs are not re-added.
func (l *ObjectLocator) Bind(instr lotusir.Instruction, val lotusir.Value) {
	for _, b := range l.binds {
		if b.DefiningInstr == instr && b.Value == val {
			return
		}
	}
	l.binds = append(l.binds, LocationValue{instr, val})
}

// Values returns every (defining-instruction, value) pair recorded
// for this locator so far, in insertion order.
func (l *ObjectLocator) Values() []LocationValue {
	out := make([]LocationValue, len(l.binds))
	copy(out, l.binds)
	return out
}

// String renders "obj+off" for debugging, with off omitted at offset 0.
func (l *ObjectLocator) String() string {
	if l.offset == 0 {
		return l.obj.String()
	}
	if l.offset == UnknownOffset {
		return l.obj.String() + "+?"
	}
	return l.obj.String() + "+" + strconv.Itoa(l.offset)
}
