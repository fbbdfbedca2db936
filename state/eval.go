package state

import (
	"github.com/lxyhome-bit/indirect-jmp/domain"
	"github.com/lxyhome-bit/indirect-jmp/rtl"
)

// MemReader resolves the concrete byte content backing a static address,
// used when a Mem read's address has collapsed to a known BaseLH::Symbolic
// pointing at STATIC data (e.g. a jump table's own preceding entries, or a
// vtable slot literal). It is satisfied by *elfx.Image.
type MemReader interface {
	ReadUint(addr uint64, width int) (uint64, bool)
}

// Eval computes the AbsVal of an expression under state s. This is the
// structural-recursion replacement for what used to be a virtual
// Expr::eval method: one case per rtl node kind, no double dispatch.
func Eval(e rtl.Expr, s *State, mr MemReader) domain.AbsVal {
	switch x := e.(type) {
	case *rtl.Const:
		switch x.K {
		case rtl.ConstInteger:
			return domain.Const(x.Imm)
		default:
			return domain.Top()
		}
	case *rtl.RegExpr:
		return s.Read(RegUnit(x.R))
	case *rtl.Mem:
		addr := Eval(x.Addr, s, mr)
		return evalMemRead(addr, x.M.Size(), mr)
	case *rtl.SubReg:
		return Eval(x.Inner, s, mr)
	case *rtl.IfElse:
		then := Eval(x.Then, s, mr)
		els := Eval(x.Else, s, mr)
		return then.Join(els)
	case *rtl.Conversion:
		return Eval(x.Inner, s, mr)
	case *rtl.Unary:
		return Eval(x.E, s, mr)
	case *rtl.Binary:
		return evalBinary(x, s, mr)
	case *rtl.Compare:
		_ = Eval(x.E, s, mr)
		return domain.Top()
	case *rtl.NoType:
		return domain.Top()
	default:
		return domain.Top()
	}
}

func evalMemRead(addr domain.AbsVal, width int, mr MemReader) domain.AbsVal {
	if mr != nil {
		if sym, lo, hi := addr.LH.Symbol(); addr.LH.IsSymbolic() && lo == hi && sym.Kind == domain.SymStatic {
			if v, ok := mr.ReadUint(uint64(sym.ID)+uint64(lo), width); ok {
				return domain.Const(int64(v))
			}
		}
		if c, ok := constOf(addr); ok {
			if v, ok := mr.ReadUint(uint64(c), width); ok {
				return domain.Const(int64(v))
			}
		}
	}
	if deref, ok := derefStride(addr.Stride, width); ok {
		return domain.AbsVal{LH: domain.BaseLHTop(), Stride: deref, Taint: addr.Taint}
	}
	return domain.Top()
}

// derefStride rewrites an address-valued BaseStride into the value read
// through it: each address term becomes a memory term (NMem false) of the
// given width, which is exactly what the jump-table resolver enumerates for
// `*(base + stride*i)`. A term that is already a memory read cannot express
// a second dereference in this lattice and collapses the whole value.
func derefStride(s domain.BaseStride, width int) (domain.BaseStride, bool) {
	terms := s.Terms()
	if len(terms) == 0 {
		return domain.BaseStride{}, false
	}
	var out domain.BaseStride
	for i, t := range terms {
		if !t.NMem {
			return domain.BaseStride{}, false
		}
		nt := domain.Term{Base: t.Base, Stride: t.Stride, Width: width, Index: t.Index}
		if i == 0 {
			out = domain.BaseStrideTerm(nt)
		} else {
			out = out.Join(domain.BaseStrideTerm(nt))
		}
	}
	return out, true
}

// evalBinary handles the one binary shape the jump-table resolver cares
// about precisely -- affine combination of a base address and a
// scaled/unknown index -- and otherwise joins its operands, which is sound
// (if imprecise) for every other arithmetic expression.
func evalBinary(x *rtl.Binary, s *State, mr MemReader) domain.AbsVal {
	a := Eval(x.A, s, mr)
	b := Eval(x.B, s, mr)

	switch x.Op {
	case rtl.Plus:
		return combineAffine(a, b, 1)
	case rtl.Minus:
		return combineAffine(a, b, -1)
	case rtl.Mult:
		if c, ok := constOf(b); ok {
			return scaleStride(a, c)
		}
		if c, ok := constOf(a); ok {
			return scaleStride(b, c)
		}
		return a.Join(b)
	default:
		return a.Join(b)
	}
}

func constOf(v domain.AbsVal) (int64, bool) {
	terms := v.Stride.Terms()
	if len(terms) == 1 && terms[0].Stride == 0 && terms[0].NMem {
		return terms[0].Base, true
	}
	return 0, false
}

func scaleStride(v domain.AbsVal, scale int64) domain.AbsVal {
	// Multiplying a wholly unknown (or call-argument) index by a constant is
	// the induction pattern the resolver lives on: record `0 + scale*i` with
	// the unknown itself as the index rather than giving up with Top.
	if v.Stride.IsTop() || v.Stride.IsDynamic() {
		idx := v.Stride
		out := v
		out.Stride = domain.BaseStrideTerm(domain.Term{Base: 0, Stride: scale, Index: &idx, NMem: true})
		return out
	}
	out := v
	terms := make([]domain.Term, 0, len(v.Stride.Terms()))
	for _, t := range v.Stride.Terms() {
		terms = append(terms, domain.Term{Base: t.Base * scale, Stride: t.Stride * scale, Width: t.Width, Index: t.Index, NMem: t.NMem})
	}
	if len(terms) > 0 {
		out.Stride = domain.BaseStride{}
		for i, t := range terms {
			if i == 0 {
				out.Stride = domain.BaseStrideTerm(t)
			} else {
				out.Stride = out.Stride.Join(domain.BaseStrideTerm(t))
			}
		}
	}
	return out
}

// combineAffine builds the affine term `base (+/-) index` that the
// jump-table resolver (package jumptable) later reads back: when one side
// is a plain constant base and the other carries a non-trivial stride
// pattern, this records {base, stride, index} rather than collapsing to
// Top the way a naive join would. It also offsets a symbolic BaseLH by a
// known immediate (e.g. `rbp - 8`), which is what lets a stack-relative
// write resolve back to a single addressable unit instead of collapsing
// to Top the moment arithmetic touches the frame pointer.
func combineAffine(a, b domain.AbsVal, sign int64) domain.AbsVal {
	out := a.Join(b)
	aBase, aIsConst := constOf(a)
	bBase, bIsConst := constOf(b)

	switch {
	case aIsConst && bIsConst:
		out.Stride = domain.BaseStrideConst(aBase + sign*bBase)
	case bIsConst && len(a.Stride.Terms()) > 0:
		out.Stride = offsetStride(a.Stride, sign*bBase, 1)
	case aIsConst && sign == 1 && len(b.Stride.Terms()) > 0:
		out.Stride = offsetStride(b.Stride, aBase, 1)
		// const - termed has no affine rendering here; the join stands.
	}

	switch {
	case bIsConst && a.LH.IsSymbolic():
		out.LH = a.LH.Offset(sign * bBase)
	case aIsConst && b.LH.IsSymbolic() && sign == 1:
		out.LH = b.LH.Offset(aBase)
	}

	return out
}

func offsetStride(s domain.BaseStride, delta, sign int64) domain.BaseStride {
	terms := s.Terms()
	if len(terms) == 0 {
		return s
	}
	var out domain.BaseStride
	for i, t := range terms {
		nt := domain.Term{Base: t.Base + sign*delta, Stride: t.Stride, Width: t.Width, Index: t.Index, NMem: t.NMem}
		if i == 0 {
			out = domain.BaseStrideTerm(nt)
		} else {
			out = out.Join(domain.BaseStrideTerm(nt))
		}
	}
	return out
}
