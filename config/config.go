// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the engine-wide tunables (spec.md §6
// "Configuration"). It is a plain record, not a singleton: a
// Session takes one by value so a process could in principle run
// one analysis after another with different settings, though
// spec.md §5 forbids overlapping sessions.
package config

import "time"

// AliasMode selects how the value-flow graph (C7) resolves store/load
// aliasing (spec.md §4.7, §9 "Dual alias mode in C7").
type AliasMode int

const (
	AliasUnder AliasMode = iota
	AliasOver
	AliasCombined
)

func (m AliasMode) String() string {
	switch m {
	case AliasUnder:
		return "under"
	case AliasOver:
		return "over"
	case AliasCombined:
		return "combined"
	default:
		return "unknown"
	}
}

// ParseAliasMode parses an alias-mode name ("under", "over" or
// "combined").
func ParseAliasMode(s string) (AliasMode, bool) {
	switch s {
	case "under":
		return AliasUnder, true
	case "over":
		return AliasOver, true
	case "combined":
		return AliasCombined, true
	default:
		return AliasUnder, false
	}
}

// Config is the full set of engine tunables (spec.md §6).
type Config struct {
	// RestrictInlineDepth caps cross-function summary application; 0
	// disables it entirely (every call becomes summary-less).
	RestrictInlineDepth int
	// RestrictCGSize caps the number of callees processed per
	// indirect call site.
	RestrictCGSize int
	// RestrictInlineSize caps the amount of summary-application work
	// done per call site.
	RestrictInlineSize int
	// RestrictAPLevel is the access-path depth cap.
	RestrictAPLevel int
	// Timeout bounds the whole analysis run; exceeding it sets the
	// session's conservative flag.
	Timeout time.Duration
	// TestCorrectness enables the engine's internal self-checks
	// (spec.md §6).
	TestCorrectness bool
	// AliasMode selects the C7 alias query strategy.
	AliasMode AliasMode
	// ContextSensitive enables k-call-string contexts in C8.
	ContextSensitive bool
	// KContext is the call-string length when ContextSensitive is set.
	KContext int
	// MaxRounds caps the inter engine's fixed-point iteration count
	// (spec.md §4.6 "Bounded work").
	MaxRounds int
}

// Default returns the configuration spec.md §6 lists as defaults.
func Default() Config {
	return Config{
		RestrictInlineDepth: 8,
		RestrictCGSize:      512,
		RestrictInlineSize:  4096,
		RestrictAPLevel:     8,
		Timeout:             600 * time.Second,
		TestCorrectness:     false,
		AliasMode:           AliasUnder,
		ContextSensitive:    false,
		KContext:            2,
		MaxRounds:           10,
	}
}
