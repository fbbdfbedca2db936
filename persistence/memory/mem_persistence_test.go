package mem_persistence

import (
	"sort"
	"testing"

	P "github.com/lxyhome-bit/indirect-jmp/persistence"
)

func TestSetGetUnion(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatalf("New: %s", err)
	}

	if err := m.Set(P.IndirectJump, 0x1000, []uint64{0x2000}); err != nil {
		t.Fatalf("Set: %s", err)
	}
	if err := m.Set(P.IndirectJump, 0x1000, []uint64{0x2000, 0x3000}); err != nil {
		t.Fatalf("Set: %s", err)
	}

	got, err := m.Get(P.IndirectJump, 0x1000)
	if err != nil {
		t.Fatalf("Get: %s", err)
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	want := []uint64{0x2000, 0x3000}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Get returned %v, want union %v", got, want)
	}
}

func TestGetMissingAddrIsEmpty(t *testing.T) {
	m, _ := New()
	got, err := m.Get(P.JumpTable, 0xdead)
	if err != nil {
		t.Fatalf("Get on missing addr returned error: %s", err)
	}
	if len(got) != 0 {
		t.Fatalf("Get on missing addr returned %v, want empty", got)
	}
}

func TestKindsAreIsolated(t *testing.T) {
	m, _ := New()
	if err := m.Set(P.IndirectJump, 0x10, []uint64{0x20}); err != nil {
		t.Fatalf("Set: %s", err)
	}
	if err := m.Set(P.Vfunc, 0x10, []uint64{0x30}); err != nil {
		t.Fatalf("Set: %s", err)
	}

	icf, _ := m.Get(P.IndirectJump, 0x10)
	vf, _ := m.Get(P.Vfunc, 0x10)
	if len(icf) != 1 || icf[0] != 0x20 {
		t.Fatalf("IndirectJump kind contaminated: %v", icf)
	}
	if len(vf) != 1 || vf[0] != 0x30 {
		t.Fatalf("Vfunc kind contaminated: %v", vf)
	}
}

func TestAll(t *testing.T) {
	m, _ := New()
	_ = m.Set(P.JumpTable, 0x100, []uint64{0x200})
	_ = m.Set(P.JumpTable, 0x101, []uint64{0x201, 0x202})

	all, err := m.All(P.JumpTable)
	if err != nil {
		t.Fatalf("All: %s", err)
	}
	if len(all) != 2 {
		t.Fatalf("All returned %d addrs, want 2", len(all))
	}
	if len(all[0x101]) != 2 {
		t.Fatalf("All()[0x101] = %v, want 2 targets", all[0x101])
	}
}
