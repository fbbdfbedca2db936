package elfx

import (
	"debug/elf"
	"testing"
)

func TestReadUintLittleEndianInBounds(t *testing.T) {
	im := &Image{
		raw:   []byte{0x01, 0x02, 0x03, 0x04},
		loads: []Seg{{Vaddr: 0x1000, Off: 0, Filesz: 4, Memsz: 4}},
	}
	v, ok := im.ReadUint(0x1000, 4)
	if !ok || v != 0x04030201 {
		t.Fatalf("ReadUint = (%#x, %v), want (0x4030201, true)", v, ok)
	}
}

func TestReadUintBssTailZeroFills(t *testing.T) {
	im := &Image{
		raw:   []byte{0x01, 0x02, 0x03, 0x04},
		loads: []Seg{{Vaddr: 0x1000, Off: 0, Filesz: 4, Memsz: 32}},
	}
	v, ok := im.ReadUint(0x1002, 4) // straddles past Filesz into the bss tail
	if !ok || v != 0 {
		t.Fatalf("ReadUint into bss tail = (%#x, %v), want (0, true)", v, ok)
	}
}

func TestReadUintOutOfBoundsReturnsSentinel(t *testing.T) {
	im := &Image{loads: []Seg{{Vaddr: 0x1000, Off: 0, Filesz: 4, Memsz: 4}}}
	v, ok := im.ReadUint(0x9000, 4)
	if ok || v != OutOfBoundsSentinel {
		t.Fatalf("ReadUint outside every segment = (%#x, %v), want (sentinel, false)", v, ok)
	}
}

func TestReadBytesWithinOneSegment(t *testing.T) {
	im := &Image{
		raw:   []byte{0xde, 0xad, 0xbe, 0xef},
		loads: []Seg{{Vaddr: 0x1000, Off: 0, Filesz: 4, Memsz: 4}},
	}
	b, ok := im.ReadBytes(0x1001, 2)
	if !ok || b[0] != 0xad || b[1] != 0xbe {
		t.Fatalf("ReadBytes = (%v, %v), want ([0xad 0xbe], true)", b, ok)
	}
	if _, ok := im.ReadBytes(0x1003, 4); ok {
		t.Fatalf("ReadBytes spanning past the segment's file content should fail")
	}
}

func TestScanStoredPointersScansEveryByteOffset(t *testing.T) {
	raw := make([]byte, 16)
	// Little-endian 0x1004 stored at byte offset 3: deliberately unaligned,
	// since the scan must not assume pointer alignment.
	raw[3] = 0x04
	raw[4] = 0x10
	im := &Image{raw: raw, textLo: 0x1000, textHi: 0x1010}

	got := im.ScanStoredPointers(8)
	if len(got) != 1 || got[0] != 0x1004 {
		t.Fatalf("ScanStoredPointers(8) = %#v, want [0x1004]", got)
	}
}

func TestVA2Off(t *testing.T) {
	im := &Image{loads: []Seg{{Vaddr: 0x1000, Off: 0x200, Filesz: 0x100, Memsz: 0x100}}}
	off, ok := im.VA2Off(0x1010)
	if !ok || off != 0x210 {
		t.Fatalf("VA2Off(0x1010) = (%#x, %v), want (0x210, true)", off, ok)
	}
	if _, ok := im.VA2Off(0x9000); ok {
		t.Fatalf("VA2Off outside every segment should fail")
	}
}

func TestCodePtrUsesTextBounds(t *testing.T) {
	im := &Image{textLo: 0x1000, textHi: 0x1010}
	if !im.CodePtr(0x1004) {
		t.Fatalf("0x1004 is within [text_lo, text_hi), want CodePtr true")
	}
	if im.CodePtr(0x2000) {
		t.Fatalf("0x2000 is outside the text range, want CodePtr false")
	}
}

func TestDataRelRoBoundsAndRelaDynRelative(t *testing.T) {
	im := NewImageForTest(nil, nil, 0x3000, 0x3020, []RelaEntry{{Offset: 0x3000, Addend: 0x4000}})
	lo, hi := im.DataRelRoBounds()
	if lo != 0x3000 || hi != 0x3020 {
		t.Fatalf("DataRelRoBounds() = (%#x, %#x), want (0x3000, 0x3020)", lo, hi)
	}
	if got := im.RelaDynRelative(); len(got) != 1 || got[0].Addend != 0x4000 {
		t.Fatalf("RelaDynRelative() = %v, want one entry with Addend 0x4000", got)
	}
}

func TestDefiniteFptrsUnionsSymbolsAndRelocations(t *testing.T) {
	im := &Image{
		dynsyms: []elf.Symbol{{Name: "foo", Info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC), Value: 0x5000}},
		relaDyn: []RelaEntry{{Offset: 0x3000, Addend: 0x6000}},
	}
	got := im.DefiniteFptrs()
	if _, ok := got[0x5000]; !ok {
		t.Fatalf("DefiniteFptrs() = %v, want 0x5000 (FUNC dynsym) present", got)
	}
	if _, ok := got[0x6000]; !ok {
		t.Fatalf("DefiniteFptrs() = %v, want 0x6000 (relocation addend) present", got)
	}
}

func TestNoreturnCallsFiltersByDefiniteNameList(t *testing.T) {
	im := &Image{imports: []ImportSymbol{
		{Name: "abort", Addr: 0x7000},
		{Name: "printf", Addr: 0x8000},
	}}
	got := im.NoreturnCalls()
	if _, ok := got[0x7000]; !ok || len(got) != 1 {
		t.Fatalf("NoreturnCalls() = %v, want exactly {0x7000} (abort)", got)
	}
}

func TestPrologFptrsPairsNearbyPrologueCandidates(t *testing.T) {
	raw := make([]byte, 20)
	copy(raw[0:], []byte{0x55, 0x48, 0x89, 0xe5})
	copy(raw[10:], []byte{0x55, 0x48, 0x89, 0xe5})
	im := &Image{
		raw:    raw,
		loads:  []Seg{{Vaddr: 0, Off: 0, Filesz: 20, Memsz: 20}},
		textLo: 0, textHi: 20,
	}
	got := im.PrologFptrs()
	if len(got) != 2 {
		t.Fatalf("PrologFptrs() = %v, want both candidates paired", got)
	}
}

func TestIsNoreturnDefiniteAndPossible(t *testing.T) {
	if !IsNoreturnDefinite("abort") {
		t.Fatalf("abort should be a definite no-return function")
	}
	if IsNoreturnDefinite("printf") {
		t.Fatalf("printf should not be a definite no-return function")
	}
	if !IsNoreturnPossible("error") {
		t.Fatalf("error should be a possible no-return function")
	}
}
