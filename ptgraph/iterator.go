// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ptgraph

import "github.com/aclements/lotuscheck/memmodel"

// Iterator walks the transitive closure of a PTResult's direct and
// derived targets, expanding Derived edges on demand and detecting
// cycles by PTResult identity (spec.md §3 "the transitive closure
// over derived edges yields a finite set of Locators (cycles allowed,
// eagerly detected by the iterator)", and §8's "running it twice
// yields the same sequence").
type Iterator struct {
	arena   *memmodel.Arena
	visited map[*PTResult]bool
	stack   []frame
	cur     Target
}

type frame struct {
	r      *PTResult
	offset int // accumulated offset to apply to r's own targets
	di     int // next direct index
	dj     int // next derived index
}

// NewIterator returns an iterator over root's transitive points-to
// set. Passing the same root twice and fully draining both iterators
// yields the same sequence of (locator, offset) pairs, satisfying
// spec.md §8's idempotence property.
func NewIterator(root *PTResult) *Iterator {
	it := &Iterator{visited: make(map[*PTResult]bool)}
	it.push(root, 0)
	return it
}

func (it *Iterator) push(r *PTResult, offset int) {
	if it.visited[r] {
		return
	}
	it.visited[r] = true
	it.stack = append(it.stack, frame{r: r, offset: offset})
}

// Next advances to the next (locator, offset) pair. It returns false
// once the closure is exhausted.
func (it *Iterator) Next() bool {
	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		if top.di < len(top.r.direct) {
			t := top.r.direct[top.di]
			top.di++
			it.cur = Target{Loc: t.Loc, Offset: t.Offset + top.offset}
			return true
		}
		if top.dj < len(top.r.derived) {
			d := top.r.derived[top.dj]
			top.dj++
			it.push(d.Parent, d.Offset+top.offset)
			continue
		}
		// Exhausted this frame.
		it.stack = it.stack[:len(it.stack)-1]
	}
	return false
}

// Locator returns the locator the most recent Next() call produced.
func (it *Iterator) Locator() *memmodel.ObjectLocator { return it.cur.Loc }

// Offset returns the accumulated offset for the most recent Next()
// call, composed with the locator's own offset by the caller if
// needed.
func (it *Iterator) Offset() int { return it.cur.Offset }

// Locators drains the iterator and returns the deduplicated set of
// reachable locators, ignoring accumulated offsets. This is the
// "finite set of Locators" spec.md §3 describes as the closure's
// result.
func Locators(root *PTResult) []*memmodel.ObjectLocator {
	seen := make(map[*memmodel.ObjectLocator]bool)
	var out []*memmodel.ObjectLocator
	it := NewIterator(root)
	for it.Next() {
		l := it.Locator()
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}
