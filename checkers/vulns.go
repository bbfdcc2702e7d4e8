// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package checkers

import (
	"strings"

	"github.com/aclements/lotuscheck/lotusir"
	"github.com/aclements/lotuscheck/report"
)

// allocatorNames are the standard C heap-allocation functions whose
// calls can return null (grounded on NullPointerChecker.cpp's
// malloc/calloc/realloc/reallocf list) and, for FreeOfNonHeap, whose
// presence on a path sanitizes a pointer back into "maybe heap"
// (grounded on the same file's realloc handling carried over to
// FreeOfNonHeapMemoryChecker.cpp).
var allocatorNames = map[string]bool{
	"malloc": true, "calloc": true, "realloc": true, "reallocf": true,
}

func isDerefKind(k lotusir.Kind) bool {
	return k == lotusir.KindLoad || k == lotusir.KindStore || k == lotusir.KindBitcastOrGEP
}

func derefStep(k lotusir.Kind) string {
	switch k {
	case lotusir.KindLoad:
		return "Load from potentially null pointer"
	case lotusir.KindStore:
		return "Store through potentially null pointer"
	default:
		return "Pointer arithmetic on potentially null pointer"
	}
}

// NullPointer builds the null-pointer-dereference adapter (spec.md §8
// scenarios 1 and 2; original NullPointerChecker.cpp).
func NullPointer() *Adapter {
	return &Adapter{
		TypeName:       "NULL Pointer Dereference",
		Description:    "a pointer that may be null is dereferenced",
		Importance:     report.ImportanceHigh,
		Classification: report.ClassificationSecurity,
		IsSource: func(f lotusir.Function, v lotusir.Value) (stepText, bool) {
			if kindOfValue(v) == lotusir.KindNullConst {
				return stepText{Tip: "Null value originates here"}, true
			}
			if instr, ok := v.(lotusir.Instruction); ok && instr.Kind() == lotusir.KindCallDirect {
				if call, ok := instr.(lotusir.CallInstruction); ok {
					if callee := call.StaticCallee(); callee != nil && allocatorNames[callee.Name()] {
						return stepText{Tip: "Allocation may return null here"}, true
					}
				}
			}
			return stepText{}, false
		},
		IsSink: func(f lotusir.Function, from, to lotusir.Value) (stepText, bool) {
			instr, ok := to.(lotusir.Instruction)
			if !ok || !isDerefKind(instr.Kind()) {
				return stepText{}, false
			}
			ops := instr.Operands()
			if len(ops) == 0 || ops[0] != from {
				// The tainted value reached `to` as data (e.g. the
				// result of a load), not as the address being
				// dereferenced; not a sink on its own.
				return stepText{}, false
			}
			return stepText{Tip: derefStep(instr.Kind())}, true
		},
		MidStep: func(from, to lotusir.Value) (stepText, bool) {
			if kindOfValue(to) == lotusir.KindStore {
				return stepText{Tip: "Null value stored to memory"}, true
			}
			if kindOfValue(to) == lotusir.KindLoad {
				return stepText{Tip: "Potentially null value loaded from memory"}, true
			}
			return stepText{}, false
		},
		IsValidTransfer: func(f lotusir.Function, from, to lotusir.Value) bool {
			instr, ok := to.(lotusir.Instruction)
			if !ok {
				return true
			}
			call, ok := instr.(lotusir.CallInstruction)
			if !ok {
				return true
			}
			callee := call.StaticCallee()
			if callee == nil {
				return true
			}
			name := strings.ToLower(callee.Name())
			return !strings.Contains(name, "check") && !strings.Contains(name, "assert")
		},
		SupportsRefinement: true,
	}
}

// UseAfterFree builds the use-after-free adapter (spec.md §8 scenario
// 3; original UseAfterFreeChecker.cpp).
func UseAfterFree() *Adapter {
	return &Adapter{
		TypeName:       "Use After Free",
		Description:    "memory is accessed after it has been freed",
		Importance:     report.ImportanceHigh,
		Classification: report.ClassificationSecurity,
		IsSource: func(f lotusir.Function, v lotusir.Value) (stepText, bool) {
			if usedByCallTo(f, v, "free") {
				return stepText{Tip: "Memory freed here"}, true
			}
			return stepText{}, false
		},
		IsSink: func(f lotusir.Function, from, to lotusir.Value) (stepText, bool) {
			instr, ok := to.(lotusir.Instruction)
			if !ok || (instr.Kind() != lotusir.KindLoad && instr.Kind() != lotusir.KindStore) {
				return stepText{}, false
			}
			ops := instr.Operands()
			if len(ops) == 0 || ops[0] != from {
				return stepText{}, false
			}
			if instr.Kind() == lotusir.KindLoad {
				return stepText{Tip: "Load from freed memory"}, true
			}
			return stepText{Tip: "Store to freed memory"}, true
		},
		MidStep: func(from, to lotusir.Value) (stepText, bool) {
			if kindOfValue(to) == lotusir.KindBitcastOrGEP {
				return stepText{Tip: "Pointer arithmetic on freed pointer"}, true
			}
			return stepText{}, false
		},
		IsValidTransfer: func(f lotusir.Function, from, to lotusir.Value) bool {
			return !calleeNamed(instrOf(to), "realloc")
		},
	}
}

// Uninitialized builds the use-of-uninitialized-variable adapter
// (spec.md §4.10's fifth class; original
// UseOfUninitializedVariableChecker.cpp). Detection is a whole-function
// approximation: a local variable never stored to anywhere in its
// function is treated as a source of uninitialized data at every load
// of it (see neverStoredTo's doc comment).
func Uninitialized() *Adapter {
	return &Adapter{
		TypeName:       "Use of Uninitialized Variable",
		Description:    "a local variable is read before it is ever written",
		Importance:     report.ImportanceMedium,
		Classification: report.ClassificationWarning,
		IsSource: func(f lotusir.Function, v lotusir.Value) (stepText, bool) {
			if kindOfValue(v) == lotusir.KindAlloc && neverStoredTo(f, v) {
				return stepText{Tip: "Variable declared without initialization here"}, true
			}
			return stepText{}, false
		},
		IsSink: func(f lotusir.Function, from, to lotusir.Value) (stepText, bool) {
			instr, ok := to.(lotusir.Instruction)
			if !ok || instr.Kind() != lotusir.KindLoad {
				return stepText{}, false
			}
			ops := instr.Operands()
			if len(ops) == 0 || ops[0] != from {
				return stepText{}, false
			}
			return stepText{Tip: "Read of potentially uninitialized variable"}, true
		},
		IsValidTransfer: func(f lotusir.Function, from, to lotusir.Value) bool { return true },
	}
}

// FreeNonHeap builds the free-of-non-heap-memory adapter (spec.md §8
// scenario 5; original FreeOfNonHeapMemoryChecker.cpp).
func FreeNonHeap() *Adapter {
	return &Adapter{
		TypeName:       "Free of Memory Not on the Heap",
		Description:    "a pointer not obtained from a heap allocator is passed to free",
		Importance:     report.ImportanceHigh,
		Classification: report.ClassificationError,
		IsSource: func(f lotusir.Function, v lotusir.Value) (stepText, bool) {
			if kindOfValue(v) == lotusir.KindAlloc {
				return stepText{Tip: "Stack variable allocated here"}, true
			}
			return stepText{}, false
		},
		IsSink: func(f lotusir.Function, from, to lotusir.Value) (stepText, bool) {
			instr, ok := to.(lotusir.Instruction)
			if !ok || !calleeNamed(instr, "free") || !hasOperand(instr, from) {
				return stepText{}, false
			}
			return stepText{Tip: "Passed to free() despite not being heap-allocated"}, true
		},
		IsValidTransfer: func(f lotusir.Function, from, to lotusir.Value) bool {
			instr := instrOf(to)
			if instr == nil {
				return true
			}
			if call, ok := instr.(lotusir.CallInstruction); ok {
				if callee := call.StaticCallee(); callee != nil && allocatorNames[callee.Name()] {
					// Reassigned through a real allocator on this path;
					// no longer the same stack object.
					return false
				}
			}
			return true
		},
	}
}

// StackAddress builds the invalid-use-of-stack-address adapter
// (spec.md §8 scenario 4; original InvalidUseOfStackAddressChecker.cpp).
func StackAddress() *Adapter {
	return &Adapter{
		TypeName:       "Invalid Use of Stack Address",
		Description:    "the address of a stack-local variable escapes its function",
		Importance:     report.ImportanceHigh,
		Classification: report.ClassificationError,
		IsSource: func(f lotusir.Function, v lotusir.Value) (stepText, bool) {
			if kindOfValue(v) == lotusir.KindAlloc {
				return stepText{Tip: "Stack address taken here"}, true
			}
			return stepText{}, false
		},
		IsSink: func(f lotusir.Function, from, to lotusir.Value) (stepText, bool) {
			instr, ok := to.(lotusir.Instruction)
			if !ok || instr.Kind() != lotusir.KindStore {
				return stepText{}, false
			}
			ops := instr.Operands()
			if len(ops) < 2 || ops[1] != from {
				return stepText{}, false
			}
			if _, isGlobal := ops[0].(lotusir.Global); !isGlobal {
				return stepText{}, false
			}
			return stepText{Tip: "Stack address escapes via store to global"}, true
		},
		IsValidTransfer: func(f lotusir.Function, from, to lotusir.Value) bool { return true },
	}
}

func instrOf(v lotusir.Value) lotusir.Instruction {
	instr, _ := v.(lotusir.Instruction)
	return instr
}

// kindOfValue returns v's opcode family, or KindOther for a value
// that carries none (a parameter, global, or plain constant).
func kindOfValue(v lotusir.Value) lotusir.Kind {
	if k, ok := v.(interface{ Kind() lotusir.Kind }); ok {
		return k.Kind()
	}
	return lotusir.KindOther
}
