package elfx

import "golang.org/x/arch/x86/x86asm"

// decodeText walks the executable range one instruction at a time, invoking
// visit with each decoded instruction and its address. Undecodable bytes
// advance by one; the CET endbr64/endbr32 markers (which x86asm does not
// recognise) are skipped transparently.
func (im *Image) decodeText(visit func(addr uint64, inst x86asm.Inst)) {
	lo, hi := im.textLo, im.textHi
	if hi <= lo {
		return
	}
	code, ok := im.ReadBytes(lo, int(hi-lo))
	if !ok {
		return
	}

	offset := 0
	for offset < len(code) {
		if offset+4 <= len(code) &&
			code[offset] == 0xf3 && code[offset+1] == 0x0f &&
			code[offset+2] == 0x1e && (code[offset+3] == 0xfa || code[offset+3] == 0xfb) {
			offset += 4
			continue
		}
		inst, err := x86asm.Decode(code[offset:], 64)
		if err != nil {
			offset++
			continue
		}
		visit(lo+uint64(offset), inst)
		offset += inst.Len
	}
}

// CallTargets returns every address targeted by a direct (PC-relative or
// absolute-memory) call in the executable range; together with the symbol
// and relocation sets these make up the definite fptr seed.
func (im *Image) CallTargets() []uint64 {
	if im.callTargets != nil {
		return im.callTargets
	}
	seen := make(map[uint64]struct{})
	im.decodeText(func(addr uint64, inst x86asm.Inst) {
		if inst.Op != x86asm.CALL {
			return
		}
		var target uint64
		switch arg := inst.Args[0].(type) {
		case x86asm.Rel:
			target = addr + uint64(inst.Len) + uint64(int64(arg))
		case x86asm.Mem:
			if arg.Base == 0 && arg.Index == 0 {
				target = uint64(arg.Disp)
			} else {
				return
			}
		default:
			return
		}
		if im.CodePtr(target) {
			seen[target] = struct{}{}
		}
	})

	out := make([]uint64, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	im.callTargets = out
	return out
}
