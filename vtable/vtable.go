// Package vtable recovers C++ virtual-dispatch tables from a stripped or
// lightly stripped binary: a byte-pattern constructor heuristic locates
// each class's vtable header, then a relocation-guided walk enumerates its
// slots (spec.md section 4.7).
package vtable

import "github.com/lxyhome-bit/indirect-jmp/elfx"

// Constructor is a candidate object constructor: a function entry whose
// first window bytes contain a this-pointer store and a RIP-relative lea
// computing a vtable header address. FindConstructors does not check that
// the entry starts with a prologue.
type Constructor struct {
	Entry      uint64
	VtableAddr uint64
}

// window is the byte span scanned from a candidate entry's first byte,
// approximating spec.md's "within a 20-instruction window" in terms of
// bytes rather than decoded instructions (x86-64 prologues and the mov/lea
// pair this heuristic looks for are short, so 20 instructions comfortably
// fits in this many bytes even with a REX prefix on every one).
const window = 160

// thisStorePatterns are the byte sequences spec.md section 4.7 names for
// "this pointer moved out of its argument register": a store of rdi to
// [rbp-8], or a plain register move of rdi or rsi into rcx.
var thisStorePatterns = [][]byte{
	{0x48, 0x89, 0x7d, 0xf8}, // mov [rbp-8], rdi
	{0x48, 0x89, 0xf9},       // mov rcx, rdi
	{0x48, 0x89, 0xf1},       // mov rcx, rsi
}

var leaRcxPrefix = []byte{0x48, 0x8d, 0x0d} // lea rcx, [rip+disp32]

// FindConstructors scans each candidate function entry's prologue window
// for the this-pointer-store + RIP-relative-lea-into-rcx pair and, when
// both are present, computes the candidate vtable header address.
func FindConstructors(img *elfx.Image, entries []uint64) []Constructor {
	var out []Constructor
	for _, entry := range entries {
		buf, ok := img.ReadBytes(entry, window)
		if !ok {
			// fall back to whatever is actually available near the end of
			// the mapped range
			for n := window; n > 0; n -= 16 {
				if b, ok2 := img.ReadBytes(entry, n); ok2 {
					buf, ok = b, true
					break
				}
			}
			if !ok {
				continue
			}
		}

		if !containsAny(buf, thisStorePatterns) {
			continue
		}

		leaPos := indexOf(buf, leaRcxPrefix)
		if leaPos < 0 || leaPos+7 > len(buf) {
			continue
		}
		disp32 := int32(buf[leaPos+3]) | int32(buf[leaPos+4])<<8 | int32(buf[leaPos+5])<<16 | int32(buf[leaPos+6])<<24
		ripAfterInsn := entry + uint64(leaPos) + 7
		vtableAddr := uint64(int64(ripAfterInsn) + int64(disp32))

		out = append(out, Constructor{Entry: entry, VtableAddr: vtableAddr})
	}
	return out
}

func indexOf(haystack, needle []byte) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if matches(haystack[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

func containsAny(haystack []byte, needles [][]byte) bool {
	for _, n := range needles {
		if indexOf(haystack, n) >= 0 {
			return true
		}
	}
	return false
}

func matches(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Recover walks each constructor's candidate vtable header 8 bytes at a
// time, so long as the current slot address is the target of a
// R_X86_64_RELATIVE relocation within .data.rel.ro (spec.md section 4.7,
// scenario S3). The walk stops at the first slot that is not itself a
// recognised relocation target -- this under-approximates the true vtable
// size whenever a lifter artifact or an unusual layout breaks the
// relocation chain one entry early, and spec.md section 9's open question
// (c) directs that this behaviour be preserved rather than "fixed" absent
// a concrete counterexample.
func Recover(img *elfx.Image, constructors []Constructor) map[uint64]uint64 {
	lo, hi := img.DataRelRoBounds()
	relocs := make(map[uint64]uint64) // r_offset -> value (r_addend)
	for _, r := range img.RelaDynRelative() {
		if r.Offset >= lo && r.Offset < hi {
			relocs[r.Offset] = r.Addend
		}
	}

	out := make(map[uint64]uint64)
	for _, c := range constructors {
		addr := c.VtableAddr
		for {
			val, ok := relocs[addr]
			if !ok {
				break
			}
			out[addr] = val
			addr += 8
		}
	}
	return out
}
