package program

import (
	"sort"

	"github.com/lxyhome-bit/indirect-jmp/rtl"
)

// ImageView is the subset of the ELF reader (package elfx) Program needs:
// modelled as an interface per this project's "external collaborators are
// interfaces" approach, so Program can be driven from a fixture in tests
// without an actual ELF file.
type ImageView interface {
	ReadUint(va uint64, width int) (uint64, bool)
	CodePtr(va uint64) bool
	DefiniteFptrs() map[uint64]struct{}
	NoreturnCalls() map[uint64]struct{}
	ScanStoredPointers(width int) []uint64
}

// Program owns every Insn and Block discovered so far, the monotone
// indirect-control-flow and jump-table result maps, and the work-lists the
// driver drains each outer iteration.
type Program struct {
	Image  ImageView
	Policy LenientPolicy

	insns  map[uint64]*Insn
	blocks map[uint64]*Block

	fptrs       map[uint64]struct{}
	recentFptrs []uint64

	icfs       map[uint64]map[uint64]struct{} // jump_loc -> targets
	recentIcfs []uint64                       // jump_locs whose target set just grew

	jtableTargets    map[uint64]map[uint64]struct{} // jtable base -> targets
	unboundedIcf     map[uint64]map[uint64]struct{} // jump_loc -> pending scan targets awaiting commit
	unboundedJtables map[uint64]map[uint64]struct{} // jump_loc -> jtable bases read by an unbounded run

	vfunc map[uint64]uint64 // vtable slot addr -> resolved function addr

	split              map[uint64]bool // instruction offsets awaiting a deferred block split
	pendingConnections []pendingConn
	dirtyBlocks        []uint64 // blocks touched by the in-progress Update

	checkedGapFptrs map[uint64]bool

	// Striped mirrors the reference engine's ambiguous `striped` field
	// (spec.md section 9, open question (b)); the driver's finalizeVtables
	// sets it, latching or reassigning depending on
	// driver.Config.StripedIsAssignment.
	Striped bool

	UpdateNum int
	Faulty    bool
}

func New(img ImageView, policy LenientPolicy) *Program {
	return &Program{
		Image:            img,
		Policy:           policy,
		insns:            make(map[uint64]*Insn),
		blocks:           make(map[uint64]*Block),
		fptrs:            make(map[uint64]struct{}),
		icfs:             make(map[uint64]map[uint64]struct{}),
		jtableTargets:    make(map[uint64]map[uint64]struct{}),
		unboundedIcf:     make(map[uint64]map[uint64]struct{}),
		unboundedJtables: make(map[uint64]map[uint64]struct{}),
		vfunc:            make(map[uint64]uint64),
		split:            make(map[uint64]bool),
		checkedGapFptrs:  make(map[uint64]bool),
	}
}

// AddInsn registers a lifted instruction; registering an offset that is
// already present replaces the earlier Insn.
func (p *Program) AddInsn(i *Insn) { p.insns[i.Offset] = i }

func (p *Program) Insn(offset uint64) (*Insn, bool) {
	i, ok := p.insns[offset]
	return i, ok
}

func (p *Program) Block(start uint64) (*Block, bool) {
	b, ok := p.blocks[start]
	return b, ok
}

func (p *Program) Blocks() map[uint64]*Block { return p.blocks }

func (p *Program) Icfs(loc uint64) map[uint64]struct{} { return p.icfs[loc] }

// IcfLocs returns every jump location with at least one resolved target,
// sorted for deterministic output.
func (p *Program) IcfLocs() []uint64 {
	out := make([]uint64, 0, len(p.icfs))
	for loc := range p.icfs {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *Program) JtableTargets(base uint64) map[uint64]struct{} { return p.jtableTargets[base] }

// JtableBases returns every jump-table base address RegisterJtable has
// recorded, sorted for deterministic output.
func (p *Program) JtableBases() []uint64 {
	out := make([]uint64, 0, len(p.jtableTargets))
	for base := range p.jtableTargets {
		out = append(out, base)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *Program) Vfunc() map[uint64]uint64 { return p.vfunc }

// Fptrs declares new entry points, extending the recent-fptr worklist
// (spec.md section 4.4).
func (p *Program) Fptrs(list []uint64) {
	for _, f := range list {
		if _, ok := p.fptrs[f]; !ok {
			p.fptrs[f] = struct{}{}
			p.recentFptrs = append(p.recentFptrs, f)
		}
	}
}

// AllFptrs returns every known function-entry candidate, sorted for
// deterministic iteration.
func (p *Program) AllFptrs() []uint64 {
	out := make([]uint64, 0, len(p.fptrs))
	for f := range p.fptrs {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Icf is the monotone insert: union targets into the existing set for loc,
// and only requeue loc onto recentIcfs if the set actually grew (spec.md
// invariant 1, "monotone resolution").
func (p *Program) Icf(loc uint64, targets map[uint64]struct{}) {
	cur, ok := p.icfs[loc]
	if !ok {
		cur = make(map[uint64]struct{})
		p.icfs[loc] = cur
	}
	grew := false
	for t := range targets {
		if _, already := cur[t]; !already {
			cur[t] = struct{}{}
			grew = true
		}
	}
	if grew {
		p.recentIcfs = append(p.recentIcfs, loc)
	}
}

// IcfCount is the total number of resolved (loc,target) pairs, used by the
// driver's `prev_cnt == icfs().size()` convergence check.
func (p *Program) IcfCount() int {
	n := 0
	for _, s := range p.icfs {
		n += len(s)
	}
	return n
}

// RegisterJtable records base's enumerated targets as a known jump table,
// and also as resolved ICF targets for the jump location that reads it.
func (p *Program) RegisterJtable(jumpLoc, base uint64, targets map[uint64]struct{}) {
	cur, ok := p.jtableTargets[base]
	if !ok {
		cur = make(map[uint64]struct{})
		p.jtableTargets[base] = cur
	}
	for t := range targets {
		cur[t] = struct{}{}
	}
	p.Icf(jumpLoc, targets)
}

// RegisterUnboundedICF stages targets discovered by an unbounded scan with
// no table base at all (the single-candidate `s = 0` readback) for jumpLoc;
// ResolveUnboundedICF later promotes them into icfs_ unless jump-table
// derived targets exist for the same location.
func (p *Program) RegisterUnboundedICF(jumpLoc uint64, targets map[uint64]struct{}) {
	cur, ok := p.unboundedIcf[jumpLoc]
	if !ok {
		cur = make(map[uint64]struct{})
		p.unboundedIcf[jumpLoc] = cur
	}
	for t := range targets {
		cur[t] = struct{}{}
	}
}

// RegisterUnboundedJtable records that the unbounded run at jumpLoc walked
// the table at base, and files its targets under jtableTargets[base]
// immediately -- the canonical jump-table map grows here, while the
// jumpLoc -> targets commit is deferred to ResolveUnboundedICF.
func (p *Program) RegisterUnboundedJtable(jumpLoc, base uint64, targets map[uint64]struct{}) {
	jt, ok := p.jtableTargets[base]
	if !ok {
		jt = make(map[uint64]struct{})
		p.jtableTargets[base] = jt
	}
	for t := range targets {
		jt[t] = struct{}{}
	}
	bases, ok := p.unboundedJtables[jumpLoc]
	if !ok {
		bases = make(map[uint64]struct{})
		p.unboundedJtables[jumpLoc] = bases
	}
	bases[base] = struct{}{}
}

// ResolveUnboundedICF commits every staged unbounded jump location: targets
// derived from a walked jump table win; the bare scan targets are the
// fallback when no table produced anything for that location.
func (p *Program) ResolveUnboundedICF() {
	locs := make(map[uint64]struct{}, len(p.unboundedJtables)+len(p.unboundedIcf))
	for loc := range p.unboundedJtables {
		locs[loc] = struct{}{}
	}
	for loc := range p.unboundedIcf {
		locs[loc] = struct{}{}
	}

	for loc := range locs {
		targets := make(map[uint64]struct{})
		for base := range p.unboundedJtables[loc] {
			for t := range p.jtableTargets[base] {
				targets[t] = struct{}{}
			}
		}
		if len(targets) == 0 {
			targets = p.unboundedIcf[loc]
		}
		if len(targets) > 0 {
			p.Icf(loc, targets)
		}
	}

	p.unboundedIcf = make(map[uint64]map[uint64]struct{})
	p.unboundedJtables = make(map[uint64]map[uint64]struct{})
}

// RegisterVfunc records a resolved vtable slot -> function address mapping.
func (p *Program) RegisterVfunc(slot, target uint64) { p.vfunc[slot] = target }

// ScanCptrs unions (a) every 8- and 4-byte value stored anywhere in the
// raw file that points into code -- how a jump table or callback registry
// sitting in .rodata/.data surfaces before anything references it -- and
// (b) every PC-relative (ip + const) instruction operand whose sum hits
// code, as additional fptr candidates.
func (p *Program) ScanCptrs() []uint64 {
	seen := make(map[uint64]struct{})
	for _, width := range []int{8, 4} {
		for _, v := range p.Image.ScanStoredPointers(width) {
			seen[v] = struct{}{}
		}
	}

	pcRel := rtl.NewBinary(rtl.Plus, rtl.ModeDI,
		rtl.NewReg(rtl.ModeDI, rtl.IP), rtl.Hole(rtl.ModeDI))
	for _, insn := range p.insns {
		if insn.Empty || insn.Root == nil {
			continue
		}
		matches := rtl.FindExprInStmt(rtl.PARTIAL, insn.Root, pcRel)
		if len(matches) == 0 {
			continue
		}
		b, ok := matches[0].(*rtl.Binary)
		if !ok {
			continue
		}
		c, ok := b.B.(*rtl.Const)
		if !ok || c.K != rtl.ConstInteger {
			continue
		}
		val := insn.NextOffset + uint64(c.Imm)
		if p.Image.CodePtr(val) {
			seen[val] = struct{}{}
		}
	}

	out := make([]uint64, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ScanFptrsInGap locates the first non-nop instruction after any run of
// instructions flagged Gap that has not already been checked, returning
// them as new fptr candidates (spec.md scenario S5).
func (p *Program) ScanFptrsInGap() []uint64 {
	offsets := make([]uint64, 0, len(p.insns))
	for off := range p.insns {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	var out []uint64
	inGap := false
	for _, off := range offsets {
		insn := p.insns[off]
		if insn.Gap {
			inGap = true
			continue
		}
		if inGap && !insn.Empty && !p.checkedGapFptrs[off] {
			p.checkedGapFptrs[off] = true
			out = append(out, off)
		}
		inGap = false
	}
	return out
}
