// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestRegisterBugTypeIdempotent checks spec.md §8's
// "register_bug_type twice returns the same ID."
func TestRegisterBugTypeIdempotent(t *testing.T) {
	m := New()
	id1 := m.RegisterBugType("null-pointer-dereference", ImportanceHigh, ClassificationSecurity, "dereference of a null pointer")
	id2 := m.RegisterBugType("null-pointer-dereference", ImportanceHigh, ClassificationSecurity, "dereference of a null pointer")
	if id1 != id2 {
		t.Fatalf("want the same ID on re-registration, got %d and %d", id1, id2)
	}
	if got := m.RegisterBugType("use-after-free", ImportanceHigh, ClassificationSecurity, "use of freed memory"); got == id1 {
		t.Fatalf("distinct names should get distinct IDs, got %d", got)
	}
}

// TestFindBugTypeLookupByName checks the supplemented find_bug_type
// feature.
func TestFindBugTypeLookupByName(t *testing.T) {
	m := New()
	id := m.RegisterBugType("uninitialized-variable", ImportanceMedium, ClassificationWarning, "read of an uninitialized variable")
	if got := m.Find("uninitialized-variable"); got != id {
		t.Fatalf("Find should return the registered ID, got %d want %d", got, id)
	}
	if got := m.Find("no-such-type"); got != -1 {
		t.Fatalf("Find on an unregistered name should return -1, got %d", got)
	}
}

// TestGenerateJSONReportFiltersByMinScore checks that reports below
// min_score are excluded, and bug types with no surviving reports are
// omitted entirely (spec.md §4.9 "generate_json_report").
func TestGenerateJSONReportFiltersByMinScore(t *testing.T) {
	m := New()
	npd := m.RegisterBugType("null-pointer-dereference", ImportanceHigh, ClassificationSecurity, "dereference of a null pointer")
	uaf := m.RegisterBugType("use-after-free", ImportanceHigh, ClassificationSecurity, "use of freed memory")

	strong := NewReport(npd)
	strong.Score = 85
	strong.AppendStep(DiagStep{File: "main.go", Line: 10, Tip: "pointer set to null here"})
	strong.AppendStep(DiagStep{File: "main.go", Line: 12, Tip: "dereferenced here"})
	m.InsertReport(npd, strong)

	weak := NewReport(uaf)
	weak.Score = 40
	weak.AppendStep(DiagStep{File: "free.go", Line: 3, Tip: "freed here"})
	m.InsertReport(uaf, weak)

	var buf bytes.Buffer
	if err := m.GenerateJSONReport(&buf, 70); err != nil {
		t.Fatalf("GenerateJSONReport: %v", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}

	if got := int(doc["TotalBugs"].(float64)); got != 2 {
		t.Fatalf("TotalBugs should count every inserted report regardless of filter, got %d", got)
	}
	types, ok := doc["BugTypes"].([]interface{})
	if !ok || len(types) != 1 {
		t.Fatalf("want exactly one surviving bug type after the min-score filter, got %v", doc["BugTypes"])
	}
	bt := types[0].(map[string]interface{})
	if bt["Name"] != "null-pointer-dereference" {
		t.Fatalf("want the high-score type to survive, got %v", bt["Name"])
	}
}

// TestCountAtLeast checks the CLI's exit-code filter directly, spec.md
// §6 "Exit 0 if zero reports pass the min-score filter, 1 otherwise."
func TestCountAtLeast(t *testing.T) {
	m := New()
	id := m.RegisterBugType("t", ImportanceNA, ClassificationNA, "")

	strong := NewReport(id)
	strong.Score = 85
	m.InsertReport(id, strong)

	weak := NewReport(id)
	weak.Score = 40
	m.InsertReport(id, weak)

	if got := m.CountAtLeast(70); got != 1 {
		t.Fatalf("want 1 report at or above score 70, got %d", got)
	}
	if got := m.CountAtLeast(90); got != 0 {
		t.Fatalf("want 0 reports at or above score 90, got %d", got)
	}
	if got := m.CountAtLeast(0); got != 2 {
		t.Fatalf("want all reports at or above score 0, got %d", got)
	}
}

// TestGenerateJSONReportEscapesControlChars checks spec.md §6's
// string-escaping rule: control characters below 0x20 are escaped,
// here delegated entirely to encoding/json.
func TestGenerateJSONReportEscapesControlChars(t *testing.T) {
	m := New()
	id := m.RegisterBugType("t", ImportanceNA, ClassificationNA, "")
	r := NewReport(id)
	r.Score = 100
	r.AppendStep(DiagStep{File: "f.go", Line: 1, Tip: "line one\x01line two"})
	m.InsertReport(id, r)

	var buf bytes.Buffer
	if err := m.GenerateJSONReport(&buf, 0); err != nil {
		t.Fatalf("GenerateJSONReport: %v", err)
	}
	if !strings.Contains(buf.String(), "\\u0001") {
		t.Fatalf("want the control character escaped as \\u0001, got:\n%s", buf.String())
	}
}

// TestGenerateJSONReportSchemaShape exercises go-cmp against a
// hand-built expectation to pin the top-level schema shape down
// (spec.md §6's bug-report JSON schema).
func TestGenerateJSONReportSchemaShape(t *testing.T) {
	m := New()
	id := m.RegisterBugType("t", ImportanceLow, ClassificationError, "desc")
	r := NewReport(id)
	r.Score = 90
	r.Dominated = true
	r.AppendStep(DiagStep{File: "a.go", Line: 5, Column: 2, Function: "f", Tip: "step"})
	m.InsertReport(id, r)

	var buf bytes.Buffer
	if err := m.GenerateJSONReport(&buf, 0); err != nil {
		t.Fatalf("GenerateJSONReport: %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := map[string]interface{}{
		"TotalBugs": float64(1),
		"SrcFiles":  []interface{}{"a.go"},
		"BugTypes": []interface{}{
			map[string]interface{}{
				"Name":           "t",
				"Description":    "desc",
				"Importance":     "Low",
				"Classification": "Error",
				"TotalReports":   float64(1),
				"Reports": []interface{}{
					map[string]interface{}{
						"Dominated": true,
						"Valid":     true,
						"Score":     float64(90),
						"DiagSteps": []interface{}{
							map[string]interface{}{
								"File":     "a.go",
								"Line":     float64(5),
								"Column":   float64(2),
								"Function": "f",
								"Tip":      "step",
							},
						},
					},
				},
			},
		},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("schema mismatch (-want +got):\n%s", diff)
	}
}

// TestPrintSummaryCountsValidReports checks print_summary's per-type
// valid/total counts.
func TestPrintSummaryCountsValidReports(t *testing.T) {
	m := New()
	id := m.RegisterBugType("t", ImportanceNA, ClassificationNA, "desc")
	valid := NewReport(id)
	valid.AppendStep(DiagStep{File: "a.go", Line: 1})
	m.InsertReport(id, valid)

	invalid := NewReport(id)
	invalid.Valid = false
	invalid.AppendStep(DiagStep{File: "b.go", Line: 2})
	m.InsertReport(id, invalid)

	var buf bytes.Buffer
	m.PrintSummary(&buf)
	out := buf.String()
	if !strings.Contains(out, "Total: 2") || !strings.Contains(out, "Valid: 1") {
		t.Fatalf("want Total: 2 and Valid: 1 in summary, got:\n%s", out)
	}
	if !strings.Contains(out, "Total Bugs Found: 2") {
		t.Fatalf("want overall total in summary, got:\n%s", out)
	}
}
