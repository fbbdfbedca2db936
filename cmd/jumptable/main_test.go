package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/lxyhome-bit/indirect-jmp/driver"
)

func TestHexAddrMarshalsBareLowercaseHex(t *testing.T) {
	h := HexAddr(0x1a2b)
	if h.String() != "1a2b" {
		t.Fatalf("String() = %q, want %q", h.String(), "1a2b")
	}
	b, err := h.MarshalJSON()
	if err != nil || string(b) != `"1a2b"` {
		t.Fatalf("MarshalJSON() = (%s, %v), want (\"1a2b\", nil)", b, err)
	}
	text, err := h.MarshalText()
	if err != nil || string(text) != "1a2b" {
		t.Fatalf("MarshalText() = (%s, %v), want (1a2b, nil)", text, err)
	}
}

func TestHexSliceConvertsEveryElement(t *testing.T) {
	got := hexSlice([]uint64{0x10, 0x20})
	if len(got) != 2 || got[0] != HexAddr(0x10) || got[1] != HexAddr(0x20) {
		t.Fatalf("hexSlice = %v, want [0x10 0x20]", got)
	}
	if len(hexSlice(nil)) != 0 {
		t.Fatalf("hexSlice(nil) should be empty")
	}
}

func TestToOutputConvertsEveryResultMap(t *testing.T) {
	result := &driver.Result{
		IndirectJumpLocations: map[uint64][]uint64{0x1000: {0x2000, 0x2008}},
		JumpTableLocations:    map[uint64][]uint64{0x3000: {0x3010}},
		VfuncLocations:        map[uint64]uint64{0x4000: 0x5000},
	}
	out := toOutput(result)

	if got := out.IndirectJumpLocations[HexAddr(0x1000)]; len(got) != 2 {
		t.Fatalf("IndirectJumpLocations[0x1000] = %v, want 2 targets", got)
	}
	if got := out.JumpTableLocations[HexAddr(0x3000)]; len(got) != 1 || got[0] != HexAddr(0x3010) {
		t.Fatalf("JumpTableLocations[0x3000] = %v, want [0x3010]", got)
	}
	if out.VfuncLocations[HexAddr(0x4000)] != HexAddr(0x5000) {
		t.Fatalf("VfuncLocations[0x4000] = %v, want 0x5000", out.VfuncLocations[HexAddr(0x4000)])
	}

	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	if !bytes.Contains(data, []byte(`"1000"`)) {
		t.Fatalf("marshalled output %s should key indirect jumps by bare hex", data)
	}
}
