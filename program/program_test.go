package program

import (
	"testing"

	"github.com/lxyhome-bit/indirect-jmp/rtl"
)

type fakeImage struct {
	code     map[uint64]bool
	noreturn map[uint64]struct{}
	definite map[uint64]struct{}
	memory   map[uint64]uint64
	stored   []uint64
}

func newFakeImage() *fakeImage {
	return &fakeImage{
		code:     make(map[uint64]bool),
		noreturn: make(map[uint64]struct{}),
		definite: make(map[uint64]struct{}),
		memory:   make(map[uint64]uint64),
	}
}

func (f *fakeImage) ReadUint(va uint64, width int) (uint64, bool) {
	v, ok := f.memory[va]
	return v, ok
}
func (f *fakeImage) CodePtr(va uint64) bool             { return f.code[va] }
func (f *fakeImage) DefiniteFptrs() map[uint64]struct{} { return f.definite }
func (f *fakeImage) NoreturnCalls() map[uint64]struct{} { return f.noreturn }
func (f *fakeImage) ScanStoredPointers(int) []uint64    { return f.stored }

func directInsn(offset, next uint64) *Insn {
	return &Insn{
		Offset:     offset,
		Root:       rtl.NewNop(),
		NextOffset: next,
	}
}

func directJump(offset, target uint64) *Insn {
	return &Insn{
		Offset:       offset,
		Root:         rtl.NewNop(),
		Transfer:     true,
		Direct:       true,
		Jump:         true,
		DirectTarget: target,
	}
}

func TestFptrsDedupsAndQueuesOnlyNewEntries(t *testing.T) {
	p := New(newFakeImage(), Lenient())
	p.Fptrs([]uint64{0x1000, 0x2000})
	p.Fptrs([]uint64{0x1000, 0x3000})

	if len(p.recentFptrs) != 3 {
		t.Fatalf("recentFptrs = %v, want 3 distinct entries queued across two calls", p.recentFptrs)
	}
	all := p.AllFptrs()
	if len(all) != 3 {
		t.Fatalf("AllFptrs() = %v, want 3 unique entries", all)
	}
}

func TestIcfIsMonotoneAndOnlyRequeuesOnGrowth(t *testing.T) {
	p := New(newFakeImage(), Lenient())
	p.Icf(0x1000, map[uint64]struct{}{0x2000: {}})
	if len(p.recentIcfs) != 1 {
		t.Fatalf("first Icf insert should queue the location once")
	}
	p.recentIcfs = nil

	// Re-inserting the same target should not grow the set or requeue.
	p.Icf(0x1000, map[uint64]struct{}{0x2000: {}})
	if len(p.recentIcfs) != 0 {
		t.Fatalf("re-inserting an existing target should not requeue the location")
	}
	if p.IcfCount() != 1 {
		t.Fatalf("IcfCount() = %d, want 1", p.IcfCount())
	}

	p.Icf(0x1000, map[uint64]struct{}{0x3000: {}})
	if len(p.recentIcfs) != 1 {
		t.Fatalf("inserting a genuinely new target should requeue the location")
	}
	if p.IcfCount() != 2 {
		t.Fatalf("IcfCount() = %d, want 2 after a real growth", p.IcfCount())
	}
}

func TestRegisterJtableRecordsBaseAndAlsoFeedsIcf(t *testing.T) {
	p := New(newFakeImage(), Lenient())
	targets := map[uint64]struct{}{0x4010: {}, 0x4020: {}}
	p.RegisterJtable(0x1000, 0x3000, targets)

	if len(p.JtableTargets(0x3000)) != 2 {
		t.Fatalf("JtableTargets(0x3000) = %v, want 2 entries", p.JtableTargets(0x3000))
	}
	if len(p.Icfs(0x1000)) != 2 {
		t.Fatalf("RegisterJtable should also register its targets as resolved ICF targets")
	}
	if bases := p.JtableBases(); len(bases) != 1 || bases[0] != 0x3000 {
		t.Fatalf("JtableBases() = %v, want [0x3000]", bases)
	}
}

func TestResolveUnboundedICFDrainsStaged(t *testing.T) {
	p := New(newFakeImage(), Lenient())
	p.RegisterUnboundedICF(0x1000, map[uint64]struct{}{0x2000: {}})
	if p.IcfCount() != 0 {
		t.Fatalf("staged unbounded targets should not be visible before ResolveUnboundedICF")
	}
	p.ResolveUnboundedICF()
	if p.IcfCount() != 1 {
		t.Fatalf("ResolveUnboundedICF should promote staged targets into Icfs")
	}
	// Draining again should be a no-op, not a re-requeue.
	p.recentIcfs = nil
	p.ResolveUnboundedICF()
	if len(p.recentIcfs) != 0 {
		t.Fatalf("draining an already-empty stage should not requeue anything")
	}
}

func TestUpdateBuildsStraightLineBlockWithDirectEdge(t *testing.T) {
	p := New(newFakeImage(), Lenient())
	p.AddInsn(directInsn(0x1000, 0x1001))
	p.AddInsn(directJump(0x1001, 0x2000))
	p.AddInsn(directInsn(0x2000, 0x2001))
	p.Fptrs([]uint64{0x1000, 0x2000})

	p.Update()

	head, ok := p.Block(0x1000)
	if !ok {
		t.Fatalf("expected a block built at entry 0x1000")
	}
	if len(head.Succ) != 1 || head.Succ[0].To != 0x2000 {
		t.Fatalf("head.Succ = %v, want a single edge to 0x2000", head.Succ)
	}
	if p.Faulty {
		t.Fatalf("well-formed straight-line program should not be Faulty")
	}
}

func TestUpdateLenientHaltsOnMissingDirectTarget(t *testing.T) {
	p := New(newFakeImage(), Lenient())
	jmp := directJump(0x1000, 0xdeadbeef) // target never disassembled
	p.AddInsn(jmp)
	p.Fptrs([]uint64{0x1000})

	p.Update()

	if p.Faulty {
		t.Fatalf("lenient policy should not set Program.Faulty on a missing direct target")
	}
	b, ok := p.Block(0x1000)
	if !ok {
		t.Fatalf("expected a block at 0x1000 even with a dangling target")
	}
	if !b.Faulty {
		t.Fatalf("the block itself should be marked Faulty when its target is unresolvable")
	}
}

func TestUpdateStrictFaultsOnMissingDirectTarget(t *testing.T) {
	p := New(newFakeImage(), Strict())
	jmp := directJump(0x1000, 0xdeadbeef)
	p.AddInsn(jmp)
	p.Fptrs([]uint64{0x1000})

	p.Update()

	if !p.Faulty {
		t.Fatalf("strict policy should set Program.Faulty on a missing direct target")
	}
}

func TestScanFptrsInGapFindsFirstNonEmptyAfterGapOnce(t *testing.T) {
	p := New(newFakeImage(), Lenient())
	p.AddInsn(&Insn{Offset: 0x1000, Gap: true})
	p.AddInsn(&Insn{Offset: 0x1001, Gap: true})
	p.AddInsn(&Insn{Offset: 0x1002})

	got := p.ScanFptrsInGap()
	if len(got) != 1 || got[0] != 0x1002 {
		t.Fatalf("ScanFptrsInGap() = %v, want [0x1002]", got)
	}

	// Second call should not re-surface the same candidate.
	if again := p.ScanFptrsInGap(); len(again) != 0 {
		t.Fatalf("ScanFptrsInGap() second call = %v, want empty (already checked)", again)
	}
}

func TestUpdatedPropagatesChangeBackToCallers(t *testing.T) {
	p := New(newFakeImage(), Lenient())
	// caller: 0x1000 jumps to 0x2000; callee tail at 0x2000 has an
	// indirect jump that resolves later.
	p.AddInsn(directJump(0x1000, 0x2000))
	p.AddInsn(&Insn{
		Offset: 0x2000, Root: rtl.NewNop(),
		Transfer: true, Indirect: true, Jump: true,
	})
	p.AddInsn(directInsn(0x3000, 0x3001))
	p.AddInsn(&Insn{Offset: 0x3001, Root: rtl.NewExit(rtl.HALT), Halt: true, Transfer: true})
	p.Fptrs([]uint64{0x1000, 0x3000})
	p.Update()

	if !p.Updated(0x1000) || !p.Updated(0x3000) {
		t.Fatalf("freshly built entries should read as updated")
	}

	// Resolving the indirect jump at 0x2000 wires a new edge; the next
	// Update must dirty the block owning the jump and its predecessor
	// chain back to entry 0x1000, but leave the unrelated 0x3000 alone.
	p.Icf(0x2000, map[uint64]struct{}{0x3000: {}})
	p.Update()

	if !p.Updated(0x1000) {
		t.Fatalf("entry 0x1000 reaches the newly wired jump, should read as updated")
	}
	if p.Updated(0x3000) {
		t.Fatalf("entry 0x3000 gained no new edges of its own, should not read as updated")
	}
}

func TestScanCptrsUnionsStoredPointersAndRIPRelativeOperands(t *testing.T) {
	img := newFakeImage()
	img.code[0x5000] = true
	img.code[0x6000] = true
	// A code pointer sitting in data, never disassembled as an instruction.
	img.stored = []uint64{0x5000}

	p := New(img, Lenient())
	// lea rax, [rip + disp] with disp chosen so next_offset + disp = 0x6000.
	p.AddInsn(&Insn{
		Offset: 0x1000, NextOffset: 0x1007,
		Root: rtl.NewAssign(rtl.NewReg(rtl.ModeDI, rtl.AX),
			rtl.NewBinary(rtl.Plus, rtl.ModeDI,
				rtl.NewReg(rtl.ModeDI, rtl.IP),
				rtl.NewConst(rtl.ModeDI, 0x6000-0x1007))),
	})
	// A rip-relative operand whose sum lands outside code contributes nothing.
	p.AddInsn(&Insn{
		Offset: 0x1007, NextOffset: 0x100e,
		Root: rtl.NewAssign(rtl.NewReg(rtl.ModeDI, rtl.BX),
			rtl.NewBinary(rtl.Plus, rtl.ModeDI,
				rtl.NewReg(rtl.ModeDI, rtl.IP),
				rtl.NewConst(rtl.ModeDI, 0x100))),
	})

	got := p.ScanCptrs()
	if len(got) != 2 || got[0] != 0x5000 || got[1] != 0x6000 {
		t.Fatalf("ScanCptrs() = %#v, want [0x5000 0x6000] (stored pointer + rip-relative operand)", got)
	}
}
