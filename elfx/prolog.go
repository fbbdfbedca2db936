package elfx

import "golang.org/x/arch/x86/x86asm"

// prologScore rates how strongly the instruction at index i of a decoded
// run looks like a function entry: 2 for a full frame setup (push rbp
// followed by mov rbp,rsp, or a stack-allocating sub rsp,imm), 1 for a lone
// push rbp, 0 otherwise.
func prologScore(insns []x86asm.Inst, i int) int {
	inst := insns[i]
	if inst.Op == x86asm.PUSH && inst.Args[0] == x86asm.RBP {
		if i+1 < len(insns) {
			next := insns[i+1]
			if next.Op == x86asm.MOV && next.Args[0] == x86asm.RBP && next.Args[1] == x86asm.RSP {
				return 2
			}
		}
		return 1
	}
	if inst.Op == x86asm.SUB && inst.Args[0] == x86asm.RSP {
		if _, ok := inst.Args[1].(x86asm.Imm); ok {
			return 2
		}
	}
	return 0
}

// prologWindow is how many instructions past a full prologue a second
// candidate must appear within to corroborate it.
const prologWindow = 15

// PrologFptrs decodes the code range and returns every address whose
// instruction sequence scores as a full prologue and has another prologue
// candidate within prologWindow instructions of it, together with that
// first nearby candidate (which may be a lone push rbp) -- a second,
// otherwise unconfirmed prologue nearby being enough evidence to seed a
// function entry beyond the definite symbol/relocation set.
func (im *Image) PrologFptrs() []uint64 {
	var addrs []uint64
	var insns []x86asm.Inst
	im.decodeText(func(addr uint64, inst x86asm.Inst) {
		addrs = append(addrs, addr)
		insns = append(insns, inst)
	})

	var out []uint64
	for i := range insns {
		if prologScore(insns, i) < 2 {
			continue
		}
		for j := i + 1; j <= i+prologWindow && j < len(insns); j++ {
			if prologScore(insns, j) >= 1 {
				out = append(out, addrs[i], addrs[j])
				break
			}
		}
	}
	return dedupUint64(out)
}

func dedupUint64(in []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(in))
	out := make([]uint64, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
