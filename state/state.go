// Package state implements the abstract machine state threaded through
// function analysis: a UnitId -> AbsVal valuation with widening, clobber
// and the commit-between-statements contract required by RTL's Sequence
// and Parallel statements, plus the Eval/Execute recursions that give
// meaning to an rtl.Expr/rtl.Stmt tree.
package state

import (
	"github.com/lxyhome-bit/indirect-jmp/domain"
	"github.com/lxyhome-bit/indirect-jmp/rtl"
)

// InitFunc seeds the initial (pre-analysis) value of a UnitId. The driver
// installs DefaultInit, below, which realises the rule spec.md sections
// 4.1 and 4.3 describe.
type InitFunc func(id domain.UnitId) domain.AbsVal

// DefaultInit is the reference driver's Init callback: the six
// callee-saved registers plus SP, BP and IP evaluate to the symbolic
// initial-value BaseLH spec.md section 4.1 calls for (SP and BP both
// resolve to the same stack-frame symbol, which is what lets
// executeMemWrite recognise a stack-relative write and strong-update it
// instead of falling back to Top); the System V argument-passing
// registers get BaseStride=DYNAMIC and Taint=0 (section 4.3's "argument"
// case); every other register is fully unknown (Top, section 4.1's
// "else Taint=all-ones" case); and a bounded non-register id (already
// inside a tracked memory region) gets a symbolic BaseLH keyed to its own
// region and offset, per section 4.3's "for bounded ids, BaseLH is the
// symbolic initial value".
func DefaultInit(id domain.UnitId) domain.AbsVal {
	if id.Region != domain.REGISTER {
		return domain.AbsVal{
			LH:     domain.BaseLHSymbolic(domain.Sym{Kind: symKindOf(id.Region), ID: id.Index}, 0, 0),
			Stride: domain.BaseStrideTop(),
			Taint:  domain.TaintTop(),
		}
	}

	r := rtl.Reg(id.Index)
	switch {
	case r == rtl.SP || r == rtl.BP:
		return domain.AbsVal{
			LH:     domain.BaseLHSymbolic(domain.Sym{Kind: domain.SymStack}, 0, 0),
			Stride: domain.BaseStrideTop(),
			Taint:  domain.TaintTop(),
		}
	case r == rtl.IP || isCalleeSaved(r):
		return domain.AbsVal{
			LH:     domain.BaseLHSymbolic(domain.Sym{Kind: domain.SymRegister, ID: id.Index}, 0, 0),
			Stride: domain.BaseStrideTop(),
			Taint:  domain.TaintTop(),
		}
	case isCallArg(r):
		return domain.AbsVal{LH: domain.BaseLHTop(), Stride: domain.BaseStrideDynamic(), Taint: domain.TaintBottom()}
	default:
		return domain.Top()
	}
}

func symKindOf(region domain.Region) domain.SymKind {
	switch region {
	case domain.STACK:
		return domain.SymStack
	case domain.HEAP:
		return domain.SymHeap
	default:
		return domain.SymStatic
	}
}

func isCalleeSaved(r rtl.Reg) bool {
	for _, c := range rtl.CalleeSaved {
		if c == r {
			return true
		}
	}
	return false
}

func isCallArg(r rtl.Reg) bool {
	for _, c := range rtl.CallArgs {
		if c == r {
			return true
		}
	}
	return false
}

// Config mirrors the original engine's four analysis knobs.
type Config struct {
	TrackMemory    bool
	Widen          bool
	Taint          bool
	IterationLimit int
	Init           InitFunc
}

// MemRange is a bounded interval within a memory region. State carries a
// list of them (copied by Clone); Read, Update and the memory-write path do
// not consult it.
type MemRange struct {
	Region domain.Region
	Lo, Hi int64
}

func (r MemRange) contains(off int64, width int) bool {
	return off >= r.Lo && off+int64(width) <= r.Hi
}

// State is the per-block (and, transiently, per-instruction) abstract
// valuation.
type State struct {
	cfg Config

	committed map[domain.UnitId]domain.AbsVal
	// pending holds writes made since the last commitInsn, keyed the same
	// way; Sequence commits this into committed between statements, while
	// Parallel defers the commit until all of its children have run.
	pending map[domain.UnitId]domain.AbsVal

	ranges []MemRange

	// preset is the set of UnitIds forced to Top by an SCC-loop widen;
	// read always returns Top for them regardless of committed/pending.
	preset map[domain.UnitId]bool
}

func New(cfg Config) *State {
	if cfg.Init == nil {
		cfg.Init = func(domain.UnitId) domain.AbsVal { return domain.Top() }
	}
	return &State{
		cfg:       cfg,
		committed: make(map[domain.UnitId]domain.AbsVal),
		pending:   make(map[domain.UnitId]domain.AbsVal),
		preset:    make(map[domain.UnitId]bool),
	}
}

// Clone produces an independent copy suitable for forking at a branch.
func (s *State) Clone() *State {
	out := New(s.cfg)
	for k, v := range s.committed {
		out.committed[k] = v
	}
	for k, v := range s.pending {
		out.pending[k] = v
	}
	for k, v := range s.preset {
		out.preset[k] = v
	}
	out.ranges = append(out.ranges, s.ranges...)
	return out
}

// Read returns the current value of id, falling back to the Init callback
// on first reference and to Top for any id forced preset by SCC widening.
func (s *State) Read(id domain.UnitId) domain.AbsVal {
	if s.preset[id] {
		return domain.Top()
	}
	if v, ok := s.pending[id]; ok {
		return v
	}
	if v, ok := s.committed[id]; ok {
		return v
	}
	return s.cfg.Init(id)
}

// Update performs a strong update: subsequent reads of id see exactly val,
// until the next write.
func (s *State) Update(id domain.UnitId, val domain.AbsVal) {
	s.pending[id] = val
}

// UpdateRange performs a weak update across [lo,hi): since the address is
// not known to be a single base+offset, every id caught in the window is
// joined (never overwritten) with val.
func (s *State) UpdateRange(lo, hi domain.UnitId, size int, val domain.AbsVal) {
	if lo.Region != hi.Region {
		return
	}
	for off := lo.Index; off <= hi.Index; off++ {
		id := domain.UnitId{Region: lo.Region, Index: off}
		cur := s.Read(id)
		s.pending[id] = cur.Join(val)
	}
	_ = size
}

// Clobber sets id to Top.
func (s *State) Clobber(id domain.UnitId) {
	s.pending[id] = domain.Top()
}

// ClobberRegion sets every currently-known id within region to Top; used
// when a write's target address cannot be bounded at all.
func (s *State) ClobberRegion(region domain.Region) {
	for id := range s.committed {
		if id.Region == region {
			s.pending[id] = domain.Top()
		}
	}
	for id := range s.pending {
		if id.Region == region {
			s.pending[id] = domain.Top()
		}
	}
}

// Preset forces every UnitId whose register bit is set in mask to read as
// Top from now on; this realises the SCC loop-widen-then-execute-once
// policy (spec.md section 4.5): rather than iterating a loop body to a
// fixed point, every register the loop might write is assumed TOP up
// front and the body runs exactly once.
func (s *State) Preset(mask uint64) {
	for r := 0; r < 64; r++ {
		if mask&(1<<uint(r)) != 0 {
			id := domain.UnitId{Region: domain.REGISTER, Index: int64(r)}
			s.preset[id] = true
			delete(s.pending, id)
			delete(s.committed, id)
		}
	}
}

// CommitInsn promotes every pending write into committed atomically: this
// is the operation Sequence calls between statements (so statement N+1
// observes statement N's effects) and that every instruction calls exactly
// once more after its last statement.
func (s *State) CommitInsn() {
	for k, v := range s.pending {
		if cur, ok := s.committed[k]; ok && s.cfg.Widen {
			s.committed[k] = cur.Widen(v)
		} else {
			s.committed[k] = v
		}
	}
	s.pending = make(map[domain.UnitId]domain.AbsVal)
}

// MergeFrom joins another state's committed values into this one, used
// when a block has multiple predecessors.
func (s *State) MergeFrom(o *State) {
	for k, v := range o.committed {
		if cur, ok := s.committed[k]; ok {
			if s.cfg.Widen {
				s.committed[k] = cur.Widen(v)
			} else {
				s.committed[k] = cur.Join(v)
			}
		} else {
			s.committed[k] = v
		}
	}
}

// RegUnit is a convenience constructor for a register UnitId.
func RegUnit(r rtl.Reg) domain.UnitId { return domain.UnitId{Region: domain.REGISTER, Index: int64(r)} }
