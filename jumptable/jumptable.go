// Package jumptable reads back the BaseStride computed at every
// pc-assignment a function's analysis recorded and enumerates the concrete
// jump targets it describes, partitioning the result between named jump
// tables and an unbounded scan per spec.md section 4.6.
package jumptable

import (
	"github.com/lxyhome-bit/indirect-jmp/domain"
	"github.com/lxyhome-bit/indirect-jmp/function"
	"github.com/lxyhome-bit/indirect-jmp/program"
)

// Config bounds jump-table enumeration. LimitJtable is the reference
// driver's LIMIT_JTABLE constant: an implementation-defined cap used
// consistently, per spec.md section 6's configuration defaults.
type Config struct {
	LimitJtable int
}

func DefaultConfig() Config { return Config{LimitJtable: 4096} }

// noTable keys one accumulated target set during readback: noTable for the
// single-candidate case, otherwise the base address of the table the run
// walked.
const noTable = int64(-1)

// Resolve walks every jump location a Function's analysis observed a
// pc-assignment for and feeds the enumerated targets back into Program:
// a structured index commits a named jump table right away
// (RegisterJtable); an unbounded table run files under its base
// (RegisterUnboundedJtable); a bare single candidate is staged per-location
// (RegisterUnboundedICF). Program.ResolveUnboundedICF later commits the
// staged locations, preferring table-derived targets.
func Resolve(cfg Config, prog *program.Program, f *function.Function) {
	for jumpLoc, stride := range f.TargetExprs {
		resolveOne(cfg, prog, f, jumpLoc, stride)
	}
}

func resolveOne(cfg Config, prog *program.Program, f *function.Function, jumpLoc uint64, stride domain.BaseStride) {
	bounded := make(map[int64]map[uint64]struct{})
	unbounded := make(map[int64]map[uint64]struct{})
	identity := func(v int64) (int64, bool) { return v, true }
	resolveRec(cfg, prog, f, stride, identity, noTable, bounded, unbounded)

	for base, targets := range bounded {
		prog.RegisterJtable(jumpLoc, uint64(base), targets)
	}
	for base, targets := range unbounded {
		if base == noTable {
			prog.RegisterUnboundedICF(jumpLoc, targets)
		} else {
			prog.RegisterUnboundedJtable(jumpLoc, uint64(base), targets)
		}
	}
}

// resolveRec interprets one BaseStride term list under the continuation fn,
// which maps an inner candidate value to the final jump-target candidate
// (identity at the outermost level). sink names the bounded table the
// current recursion level accumulates into, or noTable at the top.
func resolveRec(cfg Config, prog *program.Program, f *function.Function,
	stride domain.BaseStride, fn func(int64) (int64, bool), sink int64,
	bounded, unbounded map[int64]map[uint64]struct{}) {

	for _, t := range stride.Terms() {
		switch {
		case t.Stride == 0:
			resolveSingle(prog, f, t, fn, sink, bounded, unbounded)
		case t.Index == nil || t.Index.IsTop() || t.Index.IsDynamic():
			resolveUnboundedRun(cfg, prog, f, t, fn, unbounded)
		default:
			resolveStructuredIndex(cfg, prog, f, t, fn, bounded, unbounded)
		}
	}
}

// resolveSingle handles `s = 0`: one candidate at the base itself (nmem) or
// at the value stored there. The result lands in the bounded table the
// recursion is currently filling, or in the per-location stage at the top
// level.
func resolveSingle(prog *program.Program, f *function.Function, t domain.Term,
	fn func(int64) (int64, bool), sink int64,
	bounded, unbounded map[int64]map[uint64]struct{}) {

	raw, ok := readCandidate(prog, t, t.Base)
	if !ok {
		return
	}
	target, ok := fn(raw)
	if !ok || !valid(prog, f, uint64(target)) {
		return
	}
	if sink == noTable {
		insert(unbounded, noTable, uint64(target))
	} else {
		insert(bounded, sink, uint64(target))
	}
}

// resolveUnboundedRun enumerates b, b+s, b+2s, ... up to LimitJtable,
// breaking on the first invalid candidate -- there being no constraint
// bound available for an index that is TOP/DYNAMIC, per spec.md section
// 4.6. Targets accumulate under the run's own base.
func resolveUnboundedRun(cfg Config, prog *program.Program, f *function.Function,
	t domain.Term, fn func(int64) (int64, bool),
	unbounded map[int64]map[uint64]struct{}) {

	for i := 0; i < cfg.LimitJtable; i++ {
		addr := t.Base + int64(i)*t.Stride
		raw, ok := readCandidate(prog, t, addr)
		if !ok {
			break
		}
		target, ok := fn(raw)
		if !ok || !valid(prog, f, uint64(target)) {
			break
		}
		insert(unbounded, t.Base, uint64(target))
	}
}

// resolveStructuredIndex recurses when the stride's index is itself
// structured: each enumerated value of the inner BaseStride contributes one
// candidate through the continuation `b + s*x_val` (dereferenced when the
// outer term is a memory read). Because the inner index set is fully known,
// the result is a bounded table at the outer base.
func resolveStructuredIndex(cfg Config, prog *program.Program, f *function.Function,
	t domain.Term, fn func(int64) (int64, bool),
	bounded, unbounded map[int64]map[uint64]struct{}) {

	inner := func(xVal int64) (int64, bool) {
		raw, ok := readCandidate(prog, t, t.Base+t.Stride*xVal)
		if !ok {
			return 0, false
		}
		return fn(raw)
	}
	resolveRec(cfg, prog, f, *t.Index, inner, t.Base, bounded, unbounded)
}

// readCandidate maps an address through the term's memory semantics: the
// address itself for an nmem term, the width-byte value stored there
// otherwise.
func readCandidate(prog *program.Program, t domain.Term, addr int64) (int64, bool) {
	if t.NMem {
		return addr, true
	}
	width := t.Width
	if width == 0 {
		width = 8
	}
	v, ok := prog.Image.ReadUint(uint64(addr), width)
	if !ok {
		return 0, false
	}
	return int64(v), true
}

func insert(m map[int64]map[uint64]struct{}, key int64, target uint64) {
	set, ok := m[key]
	if !ok {
		set = make(map[uint64]struct{})
		m[key] = set
	}
	set[target] = struct{}{}
}

// valid reports whether target lies within the program's code range and
// within the enclosing function's own code-range intervals (spec.md
// section 4.6): a candidate landing in some other function entirely, even
// one inside the program's overall code range, is rejected.
func valid(prog *program.Program, f *function.Function, target uint64) bool {
	return prog.Image.CodePtr(target) && f.Contains(target)
}
