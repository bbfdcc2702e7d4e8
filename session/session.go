// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package session owns the process-wide state a single analysis run
// threads through every component (spec.md §5 "Concurrency & Resource
// Model"): the memory-object arena, the inter engine (and therefore
// the call-graph state and function-pointer results it owns), and the
// bug-report manager. Sessions must not overlap in time on the same
// process; New fails if one is already active.
//
// Grounded on rtcheck/main.go's "state" struct, which main() builds
// once at startup and threads by pointer through every walk/analyze
// call rather than relying on package-level globals.
package session

import (
	"errors"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/aclements/lotuscheck/config"
	"github.com/aclements/lotuscheck/inter"
	"github.com/aclements/lotuscheck/lotusir"
	"github.com/aclements/lotuscheck/memmodel"
	"github.com/aclements/lotuscheck/report"
)

// active guards against overlapping sessions (spec.md §5 "multiple
// sessions must not overlap in time on the same process").
var active uint32

// ErrAlreadyActive is returned by New when another Session in this
// process has not yet been closed.
var ErrAlreadyActive = errors.New("session: a session is already active in this process")

// Session is one analysis run's owning value. All of a run's mutable
// state hangs off it; nothing here is package-level.
type Session struct {
	cfg     config.Config
	arena   *memmodel.Arena
	engine  *inter.Engine
	reports *report.Manager
	log     *log.Logger

	result *inter.Result
}

// New starts a session with the given configuration, logging
// diagnostics to logOutput (as rtcheck/main.go logs to os.Stderr via
// log.Fatal/warnl). It fails with ErrAlreadyActive if a Session in
// this process is still open.
func New(cfg config.Config, logOutput io.Writer) (*Session, error) {
	if !atomic.CompareAndSwapUint32(&active, 0, 1) {
		return nil, ErrAlreadyActive
	}
	arena := memmodel.NewArena(cfg.RestrictAPLevel)
	return &Session{
		cfg:     cfg,
		arena:   arena,
		engine:  inter.New(arena, cfg),
		reports: report.New(),
		log:     log.New(logOutput, "lotuscheck: ", log.LstdFlags),
	}, nil
}

// Close releases the process-wide session slot. A Session must not be
// used after Close.
func (s *Session) Close() {
	atomic.StoreUint32(&active, 0)
}

// Analyze runs the inter engine (C6) to a fixed point over functions
// and globals, honoring deadline (spec.md §5 "Cancellation and
// timeouts"). The result is retained on the Session for later
// retrieval via Result.
func (s *Session) Analyze(functions []lotusir.Function, globals []lotusir.Global, deadline time.Time) *inter.Result {
	res := s.engine.Run(functions, globals, deadline)
	if res.Conservative {
		s.log.Printf("analysis stopped early (round or timeout budget exceeded); results are conservative")
	}
	for _, err := range res.CorrectnessErrs {
		s.log.Printf("self-check: %v", err)
	}
	s.result = res
	return res
}

// Config returns the session's configuration.
func (s *Session) Config() config.Config { return s.cfg }

// Arena returns the session's memory-object arena (read-only for
// consumers outside the inter/intra engines, per spec.md §5 "Shared-
// resource policy").
func (s *Session) Arena() *memmodel.Arena { return s.arena }

// Result returns the most recent Analyze call's result, or nil if
// Analyze has not yet been called.
func (s *Session) Result() *inter.Result { return s.result }

// Reports returns the session's bug-report manager (write-only from
// checkers, read-only for serialization, per spec.md §5).
func (s *Session) Reports() *report.Manager { return s.reports }

// Logger returns the session's diagnostic logger.
func (s *Session) Logger() *log.Logger { return s.log }
