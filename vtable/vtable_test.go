package vtable

import (
	"testing"

	"github.com/lxyhome-bit/indirect-jmp/elfx"
)

func TestIndexOfAndContainsAny(t *testing.T) {
	hay := []byte{0x90, 0x90, 0x48, 0x89, 0xf9, 0x90}
	if pos := indexOf(hay, []byte{0x48, 0x89, 0xf9}); pos != 2 {
		t.Fatalf("indexOf = %d, want 2", pos)
	}
	if indexOf(hay, []byte{0xff, 0xff}) != -1 {
		t.Fatalf("indexOf should return -1 for an absent needle")
	}
	if !containsAny(hay, thisStorePatterns) {
		t.Fatalf("containsAny should find the mov rcx, rdi pattern")
	}
}

func buildFixture() *elfx.Image {
	raw := make([]byte, 200)
	// mov rcx, rdi (this-pointer store) at offset 0.
	copy(raw[0:], []byte{0x48, 0x89, 0xf9})
	// lea rcx, [rip+0x100] at offset 10.
	copy(raw[10:], []byte{0x48, 0x8d, 0x0d, 0x00, 0x01, 0x00, 0x00})

	loads := []elfx.Seg{{Vaddr: 0x1000, Off: 0, Filesz: 200, Memsz: 200}}
	relocs := []elfx.RelaEntry{
		{Offset: 0x1111, Addend: 0xAAAA},
		{Offset: 0x1119, Addend: 0xBBBB},
		{Offset: 0x1121, Addend: 0xCCCC},
		// 0x1129 deliberately absent: the relocation chain ends there.
	}
	return elfx.NewImageForTest(raw, loads, 0x1100, 0x1200, relocs)
}

func TestFindConstructorsComputesVtableAddrFromRipRelativeLea(t *testing.T) {
	img := buildFixture()
	got := FindConstructors(img, []uint64{0x1000})
	if len(got) != 1 {
		t.Fatalf("FindConstructors = %v, want exactly one candidate", got)
	}
	if got[0].Entry != 0x1000 || got[0].VtableAddr != 0x1111 {
		t.Fatalf("FindConstructors = %+v, want {Entry:0x1000 VtableAddr:0x1111}", got[0])
	}
}

func TestFindConstructorsSkipsEntriesWithoutBothPatterns(t *testing.T) {
	raw := make([]byte, 200) // all zero: neither pattern present
	loads := []elfx.Seg{{Vaddr: 0x1000, Off: 0, Filesz: 200, Memsz: 200}}
	img := elfx.NewImageForTest(raw, loads, 0, 0, nil)
	if got := FindConstructors(img, []uint64{0x1000}); len(got) != 0 {
		t.Fatalf("FindConstructors = %v, want no candidates without the byte patterns", got)
	}
}

func TestRecoverWalksRelocationChainUntilItBreaks(t *testing.T) {
	img := buildFixture()
	constructors := []Constructor{{Entry: 0x1000, VtableAddr: 0x1111}}
	got := Recover(img, constructors)

	want := map[uint64]uint64{0x1111: 0xAAAA, 0x1119: 0xBBBB, 0x1121: 0xCCCC}
	if len(got) != len(want) {
		t.Fatalf("Recover = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("Recover[%#x] = %#x, want %#x", k, got[k], v)
		}
	}
}

func TestRecoverIgnoresRelocationsOutsideDataRelRo(t *testing.T) {
	raw := make([]byte, 16)
	loads := []elfx.Seg{{Vaddr: 0x1000, Off: 0, Filesz: 16, Memsz: 16}}
	// The relocation lies outside [dataRelRoLo, dataRelRoHi), so it must not
	// be treated as part of a vtable.
	relocs := []elfx.RelaEntry{{Offset: 0x9999, Addend: 0xDEAD}}
	img := elfx.NewImageForTest(raw, loads, 0x1100, 0x1200, relocs)

	got := Recover(img, []Constructor{{Entry: 0x1000, VtableAddr: 0x9999}})
	if len(got) != 0 {
		t.Fatalf("Recover = %v, want empty (relocation outside .data.rel.ro)", got)
	}
}
