// Package elfx is the ELF reader external collaborator: it exposes program
// headers, code ranges, raw bytes, relocations and symbol tables the way
// spec.md section 6 requires, without knowing anything about RTL or the
// abstract domain above it.
package elfx

import (
	"debug/elf"
	"errors"
	"os"
)

// Seg is one PT_LOAD segment's file/VA mapping.
type Seg struct {
	Vaddr, Off, Filesz, Memsz uint64
	Flags                     elf.ProgFlag
}

// RelaEntry is one parsed R_X86_64_RELATIVE relocation.
type RelaEntry struct {
	Offset uint64 // r_offset: where the relocated pointer is stored
	Addend uint64 // r_addend: the value written there (the relocated address)
}

// ImportSymbol is one dynamic symbol imported from a shared object.
type ImportSymbol struct {
	Name string
	Addr uint64 // PLT stub address, if any; 0 otherwise
}

// Image is a read-only view over a loaded ELF64 x86-64 binary.
type Image struct {
	Path string
	File *elf.File

	raw []byte // the whole file, for ReadUint's file-offset reads

	loads []Seg

	textLo, textHi           uint64
	rodataLo, rodataHi       uint64
	dataRelRoLo, dataRelRoHi uint64

	dynsyms []elf.Symbol
	syms    []elf.Symbol

	relaDyn []RelaEntry
	imports []ImportSymbol

	callTargets []uint64 // lazily decoded direct-call targets
}

var ErrOutOfBounds = errors.New("elfx: address outside any loaded segment")

// Open parses path as an ELF64 x86-64 executable or shared object.
func Open(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_X86_64 {
		f.Close()
		return nil, errors.New("elfx: not an ELF64 x86-64 image")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		f.Close()
		return nil, err
	}

	im := &Image{Path: path, File: f, raw: raw}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		im.loads = append(im.loads, Seg{Vaddr: p.Vaddr, Off: p.Off, Filesz: p.Filesz, Memsz: p.Memsz, Flags: p.Flags})
	}

	im.loadSectionBounds()
	im.loadSymbols()
	im.loadRelaDyn()
	im.loadImports()

	return im, nil
}

func (im *Image) Close() error { return im.File.Close() }

func (im *Image) loadSectionBounds() {
	for _, s := range im.File.Sections {
		switch s.Name {
		case ".text":
			im.textLo, im.textHi = s.Addr, s.Addr+s.Size
		case ".rodata":
			im.rodataLo, im.rodataHi = s.Addr, s.Addr+s.Size
		case ".data.rel.ro":
			im.dataRelRoLo, im.dataRelRoHi = s.Addr, s.Addr+s.Size
		}
	}
	if im.textLo == 0 && im.textHi == 0 {
		// Stripped section headers: fall back to the first executable
		// PT_LOAD segment, per spec.md's "lightly stripped" scope.
		for _, l := range im.loads {
			if l.Flags&elf.PF_X != 0 {
				im.textLo, im.textHi = l.Vaddr, l.Vaddr+l.Filesz
				break
			}
		}
	}
}

func (im *Image) loadSymbols() {
	if syms, err := im.File.DynamicSymbols(); err == nil {
		im.dynsyms = syms
	}
	if syms, err := im.File.Symbols(); err == nil {
		im.syms = syms
	}
}

func (im *Image) loadImports() {
	for _, s := range im.dynsyms {
		if elf.ST_TYPE(s.Info) == elf.STT_FUNC && s.Value != 0 {
			im.imports = append(im.imports, ImportSymbol{Name: s.Name, Addr: s.Value})
		} else if s.Value == 0 && s.Name != "" {
			im.imports = append(im.imports, ImportSymbol{Name: s.Name, Addr: 0})
		}
	}
}

func (im *Image) loadRelaDyn() {
	sec := im.File.Section(".rela.dyn")
	if sec == nil {
		return
	}
	data, err := sec.Data()
	if err != nil {
		return
	}
	const entsz = 24 // Elf64_Rela: r_offset, r_info, r_addend, 8 bytes each
	for off := 0; off+entsz <= len(data); off += entsz {
		r_offset := leUint64(data[off : off+8])
		r_info := leUint64(data[off+8 : off+16])
		r_addend := leUint64(data[off+16 : off+24])
		relType := elf.R_X86_64(r_info & 0xffffffff)
		if relType != elf.R_X86_64_RELATIVE && relType != elf.R_X86_64_IRELATIVE {
			continue
		}
		im.relaDyn = append(im.relaDyn, RelaEntry{Offset: r_offset, Addend: r_addend})
	}
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = (v << 8) | uint64(b[i])
	}
	return v
}

// VA2Off translates a virtual address to a file offset using the PT_LOAD
// segment table.
func (im *Image) VA2Off(va uint64) (uint64, bool) {
	for _, l := range im.loads {
		if va >= l.Vaddr && va < l.Vaddr+l.Filesz {
			return l.Off + (va - l.Vaddr), true
		}
	}
	return 0, false
}

// ReadUint reads a width-byte little-endian unsigned integer at va. An
// address within a PT_LOAD segment's memory size but past its file size
// (the zero-initialised bss tail) reads as zero, matching the reference
// reader's file semantics; an address outside every loaded segment returns
// the sentinel out-of-bounds value used by the engine to mark "definitely
// not a valid pointer" instead of silently looking like zero.
const OutOfBoundsSentinel = 0x8000000080000000

func (im *Image) ReadUint(va uint64, width int) (uint64, bool) {
	for _, l := range im.loads {
		if va >= l.Vaddr && va < l.Vaddr+l.Memsz {
			if va+uint64(width) > l.Vaddr+l.Filesz {
				return 0, true // bss tail: zero-fill
			}
			off := l.Off + (va - l.Vaddr)
			if off+uint64(width) > uint64(len(im.raw)) {
				return 0, false
			}
			var v uint64
			for i := width - 1; i >= 0; i-- {
				v = (v << 8) | uint64(im.raw[off+uint64(i)])
			}
			return v, true
		}
	}
	return OutOfBoundsSentinel, false
}

// ScanStoredPointers scans every byte offset of the raw file for a
// width-byte little-endian value that lands in the code range. This is how
// pointers sitting in .rodata/.data (jump tables, vtables, callback
// registries) surface as fptr candidates before anything references them.
func (im *Image) ScanStoredPointers(width int) []uint64 {
	seen := make(map[uint64]struct{})
	var out []uint64
	for off := 0; off+width <= len(im.raw); off++ {
		var v uint64
		for i := width - 1; i >= 0; i-- {
			v = (v << 8) | uint64(im.raw[off+i])
		}
		if !im.CodePtr(v) {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ReadBytes returns size raw bytes starting at va, or false if the range
// is not entirely within one loaded segment's file content.
func (im *Image) ReadBytes(va uint64, size int) ([]byte, bool) {
	for _, l := range im.loads {
		if va >= l.Vaddr && va+uint64(size) <= l.Vaddr+l.Filesz {
			off := l.Off + (va - l.Vaddr)
			if off+uint64(size) > uint64(len(im.raw)) {
				return nil, false
			}
			return im.raw[off : off+uint64(size)], true
		}
	}
	return nil, false
}

// CodePtr reports whether va lies in the executable code range.
func (im *Image) CodePtr(va uint64) bool {
	return va >= im.textLo && va < im.textHi
}

// TextRange returns the bounds of the executable range used to seed and
// bound the analysis.
func (im *Image) TextRange() (lo, hi uint64) { return im.textLo, im.textHi }

// DataRelRoBounds returns the bounds of the .data.rel.ro section, used by
// package vtable to filter relocations per spec.md section 4.7.
func (im *Image) DataRelRoBounds() (lo, hi uint64) { return im.dataRelRoLo, im.dataRelRoHi }

// RelaDynRelative returns every parsed R_X86_64_RELATIVE/IRELATIVE entry in
// .rela.dyn.
func (im *Image) RelaDynRelative() []RelaEntry { return im.relaDyn }

// ImportSymbols returns the dynamic symbol table's imported functions.
func (im *Image) ImportSymbols() []ImportSymbol { return im.imports }

// PLTStubs returns the address of each stub in the .plt section, skipping
// the resolver stub at the section head. Stubs are a fixed 16 bytes each
// in the x86-64 ABI's lazy-binding layout.
func (im *Image) PLTStubs() []uint64 {
	if im.File == nil {
		return nil
	}
	sec := im.File.Section(".plt")
	if sec == nil {
		return nil
	}
	const stubSize = 16
	var out []uint64
	for addr := sec.Addr + stubSize; addr < sec.Addr+sec.Size; addr += stubSize {
		out = append(out, addr)
	}
	return out
}

// DefiniteFptrs returns the union of FUNC-typed dynamic/static symbol
// addresses, RELATIVE/IRELATIVE relocation targets, and direct call
// targets decoded from the code range: the driver's first fptr seed, per
// spec.md section 4.8.
func (im *Image) DefiniteFptrs() map[uint64]struct{} {
	out := make(map[uint64]struct{})
	for _, s := range im.dynsyms {
		if elf.ST_TYPE(s.Info) == elf.STT_FUNC && s.Value != 0 {
			out[s.Value] = struct{}{}
		}
	}
	for _, s := range im.syms {
		if elf.ST_TYPE(s.Info) == elf.STT_FUNC && s.Value != 0 {
			out[s.Value] = struct{}{}
		}
	}
	for _, r := range im.relaDyn {
		out[r.Addend] = struct{}{}
	}
	for _, t := range im.CallTargets() {
		out[t] = struct{}{}
	}
	return out
}

// NoreturnCalls returns the set of addresses (PLT stubs / resolved import
// addresses) that are calls to a definite no-return library function,
// classified against the fixed 47-name list.
func (im *Image) NoreturnCalls() map[uint64]struct{} {
	out := make(map[uint64]struct{})
	for _, s := range im.imports {
		if s.Addr != 0 && IsNoreturnDefinite(s.Name) {
			out[s.Addr] = struct{}{}
		}
	}
	return out
}
