// Package domain implements the product abstract domain used to evaluate
// RTL expressions: BaseLH (symbolic base + offset range), BaseStride
// (affine induction, used to read back jump-table expressions) and Taint
// (a 32-bit reaching-bits bitmask), composed positionally into AbsVal.
//
// Every lattice here exposes Join, Widen and a Bottom/Top constructor so the
// engine in package state/function can drive them uniformly; none of them
// needs an inheritance relationship to do that, per this project's "generic
// lattice capability" approach to the product domain.
package domain

import "fmt"

// Sym names a BaseLH symbol: a register's initial value, a stack-frame
// base, a heap allocation, or a fixed static address. Two BaseLH values
// with different symbols are incomparable and join to Top.
type Sym struct {
	Kind SymKind
	ID   int64 // register number for SymRegister, arbitrary handle otherwise
}

type SymKind int

const (
	SymRegister SymKind = iota
	SymStack
	SymStatic
	SymHeap
)

func (s Sym) String() string {
	switch s.Kind {
	case SymRegister:
		return fmt.Sprintf("reg_init(%d)", s.ID)
	case SymStack:
		return "stack_base"
	case SymStatic:
		return fmt.Sprintf("static(%d)", s.ID)
	case SymHeap:
		return fmt.Sprintf("heap(%d)", s.ID)
	default:
		return "sym?"
	}
}

// baseLHState tags which of the three shapes a BaseLH value holds.
type baseLHState int

const (
	lhBottom baseLHState = iota
	lhTop
	lhSymbolic
)

// WidenRangeBound is the fixed bound beyond which a BaseLH range is
// promoted to Top, per this lattice's widening rule.
const WidenRangeBound = 1 << 20

// BaseLH is "base symbol plus offset range": bottom, top, or
// Symbolic(sym, lo, hi).
type BaseLH struct {
	state  baseLHState
	sym    Sym
	lo, hi int64
}

func BaseLHBottom() BaseLH { return BaseLH{state: lhBottom} }
func BaseLHTop() BaseLH    { return BaseLH{state: lhTop} }
func BaseLHSymbolic(sym Sym, lo, hi int64) BaseLH {
	return BaseLH{state: lhSymbolic, sym: sym, lo: lo, hi: hi}
}

func (v BaseLH) IsBottom() bool { return v.state == lhBottom }
func (v BaseLH) IsTop() bool    { return v.state == lhTop }
func (v BaseLH) IsSymbolic() bool {
	return v.state == lhSymbolic
}
func (v BaseLH) Symbol() (Sym, int64, int64) { return v.sym, v.lo, v.hi }

func (v BaseLH) String() string {
	switch v.state {
	case lhBottom:
		return "⊥"
	case lhTop:
		return "TOP"
	default:
		return fmt.Sprintf("%s+[%d,%d]", v.sym, v.lo, v.hi)
	}
}

// Join is commutative and idempotent: differing symbols (or either side
// already Top) produce Top.
func (v BaseLH) Join(o BaseLH) BaseLH {
	if v.IsBottom() {
		return o
	}
	if o.IsBottom() {
		return v
	}
	if v.IsTop() || o.IsTop() {
		return BaseLHTop()
	}
	if v.sym != o.sym {
		return BaseLHTop()
	}
	lo, hi := v.lo, v.hi
	if o.lo < lo {
		lo = o.lo
	}
	if o.hi > hi {
		hi = o.hi
	}
	return BaseLHSymbolic(v.sym, lo, hi)
}

// Widen dominates Join and reaches Top in at most one step past the bound:
// once the range exceeds WidenRangeBound it snaps to Top.
func (v BaseLH) Widen(o BaseLH) BaseLH {
	j := v.Join(o)
	if j.state != lhSymbolic {
		return j
	}
	if j.hi-j.lo > WidenRangeBound {
		return BaseLHTop()
	}
	return j
}

// Offset shifts a symbolic range by delta; Top and Bottom are unaffected.
func (v BaseLH) Offset(delta int64) BaseLH {
	if v.state != lhSymbolic {
		return v
	}
	return BaseLHSymbolic(v.sym, v.lo+delta, v.hi+delta)
}
