// Completion: 100% - ARM REL relocation engine
package vrtld

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// processRelocs applies one array of Elf32_Rel entries against mod.
// importsOnly restricts processing to relocations against undefined
// (imported) symbols; every caller in this package passes false,
// including the lazy finalization done through DLSym. A
// symbol that fails to resolve is silently skipped when it is weakly
// bound or ignoreUndef is set; otherwise it is latched as an error and
// counted, and processing continues with the rest of the array — only
// an unrecognized relocation type aborts the array outright.
func processRelocs(mod *Module, rels []elf.Rel32, importsOnly, ignoreUndef bool) (numFailed int, abort bool) {
	for _, r := range rels {
		ptrAddr := mod.base + uintptr(r.Off)
		symno := elf.R_SYM32(r.Info)
		rtype := elf.R_TYPE32(r.Info)

		var symval uintptr
		symbase := mod.base
		var symname string

		if symno != 0 {
			sym := &mod.dynsym[symno]
			if elf.SectionIndex(sym.Shndx) == elf.SHN_UNDEF {
				symname = cstr(mod.dynstr, sym.Name)
				symbase = 0 // symbol is resolved elsewhere
				if addr, ok := lookupGlobal(symname); ok {
					symval = addr
				} else {
					weak := elf.ST_BIND(sym.Info) == elf.STB_WEAK
					if weak || ignoreUndef {
						debugf("`%s`: ignoring resolution failure for `%s`", mod.Name, symname)
						continue
					}
					setError("`%s`: could not resolve symbol: `%s`", mod.Name, symname)
					numFailed++
					continue
				}
			} else {
				if importsOnly {
					continue
				}
				symval = uintptr(sym.Value)
			}
		} else if importsOnly {
			continue
		}

		switch elf.R_ARM(rtype) {
		case elf.R_ARM_RELATIVE:
			writeWord(mod, ptrAddr, readWord(mod, ptrAddr)+uint32(symbase))
		case elf.R_ARM_ABS32:
			writeWord(mod, ptrAddr, readWord(mod, ptrAddr)+uint32(symbase)+uint32(symval))
		case elf.R_ARM_GLOB_DAT, elf.R_ARM_JUMP_SLOT:
			writeWord(mod, ptrAddr, uint32(symbase)+uint32(symval))
		case elf.R_ARM_NONE:
			// nothing to do
		default:
			setError("`%s`: unknown relocation type: %d", mod.Name, rtype)
			return numFailed, true
		}
	}

	return numFailed, false
}

// readWord/writeWord access a 32-bit little-endian word inside a
// module's mapped segments. They go through the module's kernel
// capability so that relocations landing in a read-only or read-execute
// segment (e.g. .text, .data.rel.ro) can still be patched after dsoLoad
// has reprotected the segment to its final permissions.
func readWord(mod *Module, addr uintptr) uint32 {
	seg := segmentFor(mod, addr)
	if seg == nil {
		return 0
	}
	off := uint32(addr - seg.Base)
	return binary.LittleEndian.Uint32(segBytes(seg)[off : off+4])
}

func writeWord(mod *Module, addr uintptr, val uint32) {
	seg := segmentFor(mod, addr)
	if seg == nil {
		return
	}
	off := uint32(addr - seg.Base)
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], val)
	_ = currentKernel.Write(seg.Block, off, buf[:])
}

func segmentFor(mod *Module, addr uintptr) *Segment {
	for i := range mod.segs {
		s := &mod.segs[i]
		if addr >= s.Base && addr < s.Base+uintptr(s.Size) {
			return s
		}
	}
	return nil
}

// segBytes exposes a segment's current backing bytes for a read. The
// fake backend's blocks are Go byte slices and UnixKernel's are slice
// views over the mmap'd region, so this is a plain slice view; it is
// never used to bypass Write's protection-aware path for mutation.
func segBytes(seg *Segment) []byte {
	if mb, ok := seg.Block.(interface{ Bytes() []byte }); ok {
		return mb.Bytes()
	}
	return nil
}

// relocate walks mod's dynamic section for DT_REL/DT_JMPREL and applies
// both relocation arrays. Any failure while processing DT_REL aborts
// before DT_JMPREL is even attempted. DT_JMPREL is only processed when
// DT_PLTREL names DT_REL (RELA PLT relocations are not supported, since
// this loader's scope is ARM32 REL only).
func relocate(mod *Module, ignoreUndef, importsOnly bool) error {
	var rel, jmprel uint32
	var relsz, pltrelsz uint32
	var pltrel uint32
	haveRel, haveJmprel := false, false

	for _, dyn := range mod.dynamic {
		if dyn.Tag == int32(elf.DT_NULL) {
			break
		}
		switch elf.DynTag(dyn.Tag) {
		case elf.DT_REL:
			rel = dyn.Val
			haveRel = true
		case elf.DT_RELSZ:
			relsz = dyn.Val
		case elf.DT_JMPREL:
			jmprel = dyn.Val
			haveJmprel = true
		case elf.DT_PLTREL:
			pltrel = dyn.Val
		case elf.DT_PLTRELSZ:
			pltrelsz = dyn.Val
		}
	}

	if haveRel && relsz > 0 {
		rels := decodeRels(mod, rel, relsz)
		debugf("`%s`: processing REL@0x%x size %d", mod.Name, mod.base+uintptr(rel), relsz)
		if n, abort := processRelocs(mod, rels, importsOnly, ignoreUndef); abort || n > 0 {
			return fmt.Errorf("vrtld: `%s`: relocation failed", mod.Name)
		}
	}

	if haveJmprel && pltrelsz > 0 && pltrel != 0 {
		if elf.DynTag(pltrel) == elf.DT_REL {
			rels := decodeRels(mod, jmprel, pltrelsz)
			debugf("`%s`: processing JMPREL@0x%x size %d", mod.Name, mod.base+uintptr(jmprel), pltrelsz)
			if n, abort := processRelocs(mod, rels, importsOnly, ignoreUndef); abort || n > 0 {
				return fmt.Errorf("vrtld: `%s`: PLT relocation failed", mod.Name)
			}
		} else {
			debugf("`%s`: DT_JMPREL has unsupported DT_PLTREL type %#x", mod.Name, pltrel)
		}
	}

	mod.flags |= modRelocated
	return nil
}

// decodeRels reads a DT_REL-style array of Elf32_Rel entries starting at
// offset off (relative to mod.base) with byte size size.
func decodeRels(mod *Module, off, size uint32) []elf.Rel32 {
	n := size / 8
	out := make([]elf.Rel32, n)
	base := mod.base + uintptr(off)
	for i := uint32(0); i < n; i++ {
		addr := base + uintptr(i*8)
		seg := segmentFor(mod, addr)
		if seg == nil {
			continue
		}
		b := segBytes(seg)
		o := uint32(addr - seg.Base)
		out[i].Off = binary.LittleEndian.Uint32(b[o : o+4])
		out[i].Info = binary.LittleEndian.Uint32(b[o+4 : o+8])
	}
	return out
}
