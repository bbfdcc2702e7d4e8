// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fpresults

import (
	"testing"

	"github.com/aclements/lotuscheck/lotusir"
	"github.com/aclements/lotuscheck/lotusir/fakeir"
)

func TestGetTargetsUnknownSiteIsNil(t *testing.T) {
	r := New()
	caller := &fakeir.Func{N: "caller"}
	call := &fakeir.Instr{Val: fakeir.Val{N: "call"}}
	if got := r.GetTargets(caller, call); got != nil {
		t.Fatalf("want nil for unset site, got %v", got)
	}
}

func TestSetAndGetTargets(t *testing.T) {
	r := New()
	caller := &fakeir.Func{N: "caller"}
	call := &fakeir.Instr{Val: fakeir.Val{N: "call"}}
	f1, f2 := &fakeir.Func{N: "f1"}, &fakeir.Func{N: "f2"}

	r.SetTargets(caller, call, funcs(f1, f2))
	got := r.GetTargets(caller, call)
	if len(got) != 2 || got[0] != lotusir.Function(f1) || got[1] != lotusir.Function(f2) {
		t.Fatalf("want [f1 f2], got %v", got)
	}
}

// TestUpdateAndDetectChangesIdempotent checks spec.md §8:
// "function_pointer_results.update_and_detect_changes(f, R) is false
// on a second consecutive call with the same R."
func TestUpdateAndDetectChangesIdempotent(t *testing.T) {
	r := New()
	caller := &fakeir.Func{N: "caller"}
	call := &fakeir.Instr{Val: fakeir.Val{N: "call"}}
	f1, f2 := &fakeir.Func{N: "f1"}, &fakeir.Func{N: "f2"}

	targets := funcs(f1, f2)

	if changed := r.UpdateAndDetectChanges(caller, call, targets); !changed {
		t.Fatal("first update from empty set should report changed")
	}
	if changed := r.UpdateAndDetectChanges(caller, call, targets); changed {
		t.Fatal("second update with the same targets should report unchanged")
	}
}

func TestUpdateAndDetectChangesOnGainAndLoss(t *testing.T) {
	r := New()
	caller := &fakeir.Func{N: "caller"}
	call := &fakeir.Instr{Val: fakeir.Val{N: "call"}}
	f1, f2 := &fakeir.Func{N: "f1"}, &fakeir.Func{N: "f2"}

	r.UpdateAndDetectChanges(caller, call, funcs(f1))
	if changed := r.UpdateAndDetectChanges(caller, call, funcs(f1, f2)); !changed {
		t.Fatal("gaining a callee should report changed")
	}
	if changed := r.UpdateAndDetectChanges(caller, call, funcs(f1)); !changed {
		t.Fatal("losing a callee should report changed")
	}
	if changed := r.UpdateAndDetectChanges(caller, call, funcs()); !changed {
		t.Fatal("going to empty should report changed")
	}
	if changed := r.UpdateAndDetectChanges(caller, call, funcs()); changed {
		t.Fatal("staying empty should report unchanged")
	}
}

func TestUpdateAndDetectChangesOrderIndependent(t *testing.T) {
	r := New()
	caller := &fakeir.Func{N: "caller"}
	call := &fakeir.Instr{Val: fakeir.Val{N: "call"}}
	f1, f2 := &fakeir.Func{N: "f1"}, &fakeir.Func{N: "f2"}

	r.UpdateAndDetectChanges(caller, call, funcs(f1, f2))
	if changed := r.UpdateAndDetectChanges(caller, call, funcs(f2, f1)); changed {
		t.Fatal("reordering the same set should report unchanged")
	}
}

func funcs(fs ...*fakeir.Func) []lotusir.Function {
	out := make([]lotusir.Function, len(fs))
	for i, f := range fs {
		out[i] = f
	}
	return out
}
