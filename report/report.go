// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package report implements the bug-type registry and per-type report
// store the checker adapters write into and the CLI reads out of
// (spec.md §3 "Bug Report", §4.9, component C9).
//
// Grounded on BugReportMgr/BugReport from the original implementation
// (register_bug_type/insert_report/generate_json_report/print_summary),
// reworked into a Go value with explicit ownership instead of an LLVM
// ManagedStatic singleton (spec.md §5 "Process-wide state" pushes
// ownership into session instead), and on dashquery/main.go's use of
// encoding/json for structured output instead of hand-rolled escaping.
package report

import (
	"encoding/json"
	"fmt"
	"io"
)

// Importance mirrors BugDescription::BugImportance.
type Importance int

const (
	ImportanceNA Importance = iota
	ImportanceLow
	ImportanceMedium
	ImportanceHigh
)

func (i Importance) String() string {
	switch i {
	case ImportanceLow:
		return "Low"
	case ImportanceMedium:
		return "Medium"
	case ImportanceHigh:
		return "High"
	default:
		return "N/A"
	}
}

// Classification mirrors BugDescription::BugClassification.
type Classification int

const (
	ClassificationNA Classification = iota
	ClassificationSecurity
	ClassificationPerformance
	ClassificationError
	ClassificationWarning
)

func (c Classification) String() string {
	switch c {
	case ClassificationSecurity:
		return "Security"
	case ClassificationPerformance:
		return "Performance"
	case ClassificationError:
		return "Error"
	case ClassificationWarning:
		return "Warning"
	default:
		return "N/A"
	}
}

// BugType describes a registered category of bug, assigned a stable
// integer ID the first time it's registered (spec.md §4.9
// "register_bug_type").
type BugType struct {
	ID             int
	Name           string
	Importance     Importance
	Classification Classification
	Description    string
}

// DiagStep is one step of a bug's diagnostic trace (spec.md §3 "A step
// is (IR-value ref, source file/line/col, function name, textual
// description, optional source snippet)").
type DiagStep struct {
	File       string
	Line       int
	Column     int
	Function   string
	Variable   string
	Type       string
	SourceCode string
	LLVMIR     string
	Tip        string
}

// Report is a single bug instance: an ordered diagnostic trace plus
// ranking metadata (spec.md §3 "Bug Report").
type Report struct {
	TypeID     int
	Steps      []DiagStep
	Dominated  bool
	Valid      bool
	Score      int
}

// NewReport returns a Report for bug type tyID with Valid set and
// Score at the original's default of 100 (callers reduce it per
// checker-specific confidence rules, spec.md §4.10).
func NewReport(tyID int) *Report {
	return &Report{TypeID: tyID, Valid: true, Score: 100}
}

// AppendStep appends a diagnostic step to the report's trace.
func (r *Report) AppendStep(step DiagStep) {
	r.Steps = append(r.Steps, step)
}

// Manager is the bug-type registry and per-type report store (spec.md
// §4.9). It is owned for the lifetime of one analysis run; see
// package session for the process-wide wrapper spec.md §5 requires.
type Manager struct {
	typeIDs   map[string]int
	types     []BugType
	reports   map[int][]*Report
	srcFileID map[string]int
	srcFiles  []string
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{
		typeIDs:   make(map[string]int),
		reports:   make(map[int][]*Report),
		srcFileID: make(map[string]int),
	}
}

// RegisterBugType registers name if it isn't already known and
// returns its ID; a second call with the same name returns the same
// ID (spec.md §8 "register_bug_type twice returns the same ID").
func (m *Manager) RegisterBugType(name string, importance Importance, classification Classification, desc string) int {
	if id, ok := m.typeIDs[name]; ok {
		return id
	}
	id := len(m.types)
	m.types = append(m.types, BugType{
		ID:             id,
		Name:           name,
		Importance:     importance,
		Classification: classification,
		Description:    desc,
	})
	m.typeIDs[name] = id
	return id
}

// Find looks up a bug type's ID by name, returning -1 if unregistered
// (supplemented from BugReportMgr::find_bug_type, dropped by the
// distilled spec but reinstated here as Manager.Find).
func (m *Manager) Find(name string) int {
	if id, ok := m.typeIDs[name]; ok {
		return id
	}
	return -1
}

// BugTypeInfo returns the BugType registered under id.
func (m *Manager) BugTypeInfo(id int) (BugType, bool) {
	if id < 0 || id >= len(m.types) {
		return BugType{}, false
	}
	return m.types[id], true
}

// InsertReport records r under bug type tyID, also interning every
// source file r's steps reference (spec.md §4.9 "insert_report").
func (m *Manager) InsertReport(tyID int, r *Report) {
	r.TypeID = tyID
	m.reports[tyID] = append(m.reports[tyID], r)
	for _, step := range r.Steps {
		m.internSrcFile(step.File)
	}
}

func (m *Manager) internSrcFile(file string) int {
	if file == "" {
		return -1
	}
	if id, ok := m.srcFileID[file]; ok {
		return id
	}
	id := len(m.srcFiles)
	m.srcFiles = append(m.srcFiles, file)
	m.srcFileID[file] = id
	return id
}

// ReportsForType returns the reports registered under tyID, in
// insertion order.
func (m *Manager) ReportsForType(tyID int) []*Report {
	return append([]*Report(nil), m.reports[tyID]...)
}

// TotalReports returns the count of reports across every bug type.
func (m *Manager) TotalReports() int {
	total := 0
	for _, rs := range m.reports {
		total += len(rs)
	}
	return total
}

// CountAtLeast returns how many reports across every bug type have a
// Score of at least minScore (spec.md §6 "Exit 0 if zero reports pass
// the min-score filter, 1 otherwise").
func (m *Manager) CountAtLeast(minScore int) int {
	n := 0
	for _, rs := range m.reports {
		for _, r := range rs {
			if r.Score >= minScore {
				n++
			}
		}
	}
	return n
}

// jsonDoc mirrors spec.md §6's bug-report JSON schema field for
// field. Optional fields are tagged omitempty; encoding/json already
// escapes control characters below 0x20 as \uXXXX and uses the
// \b\f\n\r\t short forms where applicable, matching spec.md §6's
// string-escaping rule without any hand-rolled escaper.
type jsonDoc struct {
	TotalBugs int          `json:"TotalBugs"`
	SrcFiles  []string     `json:"SrcFiles"`
	BugTypes  []jsonBugType `json:"BugTypes"`
}

type jsonBugType struct {
	Name           string       `json:"Name"`
	Description    string       `json:"Description"`
	Importance     string       `json:"Importance"`
	Classification string       `json:"Classification"`
	TotalReports   int          `json:"TotalReports"`
	Reports        []jsonReport `json:"Reports"`
}

type jsonReport struct {
	Dominated bool           `json:"Dominated"`
	Valid     bool           `json:"Valid"`
	Score     int            `json:"Score"`
	DiagSteps []jsonDiagStep `json:"DiagSteps"`
}

type jsonDiagStep struct {
	File       string `json:"File"`
	Line       int    `json:"Line"`
	Column     int    `json:"Column,omitempty"`
	Function   string `json:"Function,omitempty"`
	Variable   string `json:"Variable,omitempty"`
	Type       string `json:"Type,omitempty"`
	SourceCode string `json:"SourceCode,omitempty"`
	LLVMIR     string `json:"LLVM_IR,omitempty"`
	Tip        string `json:"Tip"`
}

// GenerateJSONReport writes the structured JSON document spec.md §6
// describes to w, including only reports whose Score is at least
// minScore, and only bug types with at least one surviving report
// (spec.md §4.9 "generate_json_report").
func (m *Manager) GenerateJSONReport(w io.Writer, minScore int) error {
	doc := jsonDoc{
		TotalBugs: m.TotalReports(),
		SrcFiles:  append([]string(nil), m.srcFiles...),
	}
	if doc.SrcFiles == nil {
		doc.SrcFiles = []string{}
	}

	for _, bt := range m.types {
		var filtered []jsonReport
		for _, r := range m.reports[bt.ID] {
			if r.Score < minScore {
				continue
			}
			steps := make([]jsonDiagStep, len(r.Steps))
			for i, s := range r.Steps {
				steps[i] = jsonDiagStep{
					File: s.File, Line: s.Line, Column: s.Column,
					Function: s.Function, Variable: s.Variable, Type: s.Type,
					SourceCode: s.SourceCode, LLVMIR: s.LLVMIR, Tip: s.Tip,
				}
			}
			filtered = append(filtered, jsonReport{
				Dominated: r.Dominated, Valid: r.Valid, Score: r.Score, DiagSteps: steps,
			})
		}
		if len(filtered) == 0 {
			continue
		}
		doc.BugTypes = append(doc.BugTypes, jsonBugType{
			Name:           bt.Name,
			Description:    bt.Description,
			Importance:     bt.Importance.String(),
			Classification: bt.Classification.String(),
			TotalReports:   len(filtered),
			Reports:        filtered,
		})
	}
	if doc.BugTypes == nil {
		doc.BugTypes = []jsonBugType{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// PrintSummary writes a human-readable per-type count table to w
// (spec.md §4.9 "print_summary"), in bug-type registration order.
func (m *Manager) PrintSummary(w io.Writer) {
	fmt.Fprintln(w, "\n==================================================")
	fmt.Fprintln(w, "               Bug Report Summary")
	fmt.Fprintln(w, "==================================================")

	total := 0
	for _, bt := range m.types {
		rs := m.reports[bt.ID]
		if len(rs) == 0 {
			continue
		}
		valid := 0
		for _, r := range rs {
			if r.Valid {
				valid++
			}
		}
		fmt.Fprintf(w, "\n%s (%s)\n", bt.Name, bt.Description)
		fmt.Fprintf(w, "  Total: %d | Valid: %d\n", len(rs), valid)
		total += len(rs)
	}

	fmt.Fprintln(w, "\n==================================================")
	fmt.Fprintf(w, "Total Bugs Found: %d\n", total)
	fmt.Fprintln(w, "==================================================")
}
