// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"bytes"
	"testing"
	"time"

	"github.com/aclements/lotuscheck/config"
	"github.com/aclements/lotuscheck/lotusir"
	"github.com/aclements/lotuscheck/lotusir/fakeir"
)

// TestNewForbidsOverlappingSessions checks spec.md §5's "multiple
// sessions must not overlap in time on the same process."
func TestNewForbidsOverlappingSessions(t *testing.T) {
	var buf bytes.Buffer
	s1, err := New(config.Default(), &buf)
	if err != nil {
		t.Fatalf("first session should succeed, got %v", err)
	}
	defer s1.Close()

	if _, err := New(config.Default(), &buf); err != ErrAlreadyActive {
		t.Fatalf("want ErrAlreadyActive for a second concurrent session, got %v", err)
	}

	s1.Close()

	s2, err := New(config.Default(), &buf)
	if err != nil {
		t.Fatalf("a session should be startable again after Close, got %v", err)
	}
	s2.Close()
}

// TestAnalyzeRunsEngineAndRecordsResult exercises the session's thin
// wiring over the inter engine with a single trivial function.
func TestAnalyzeRunsEngineAndRecordsResult(t *testing.T) {
	var buf bytes.Buffer
	s, err := New(config.Default(), &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	ret := &fakeir.Instr{Val: fakeir.Val{N: "ret"}, K: lotusir.KindReturn}
	f := fakeir.NewLinearFunc("f", nil, []*fakeir.Instr{ret})

	res := s.Analyze([]lotusir.Function{f}, nil, time.Time{})
	if res == nil {
		t.Fatal("Analyze returned nil result")
	}
	if s.Result() != res {
		t.Fatal("Result() should return the last Analyze call's result")
	}
	if res.Conservative {
		t.Fatal("a single trivial function should converge within the default round budget")
	}
	if _, ok := res.Summaries[f]; !ok {
		t.Fatal("want a summary recorded for f")
	}
}
