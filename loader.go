// Completion: 100% - Loader and module lifecycle
package vrtld

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

const stnUndef = 0 // debug/elf does not export STN_UNDEF

// dsoLoad parses an ELF32 ARM DSO from disk, maps its PT_LOAD segments
// through the active KernelCapability at addresses reserved from the
// VMA arena, and resolves its .dynsym/.dynstr/.hash/.init_array/
// .fini_array section contents. It does not relocate or initialize the
// module; that is dsoRelocateAndInit's job.
func dsoLoad(path, name string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vrtld: `%s`: %w", name, err)
	}

	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("vrtld: `%s`: not a valid ELF file: %w", name, err)
	}
	if f.Class != elf.ELFCLASS32 || f.Machine != elf.EM_ARM || f.Type != elf.ET_DYN {
		return nil, fmt.Errorf("vrtld: `%s`: not an ELF32 ARM ET_DYN shared object", name)
	}

	mod := &Module{Name: name}

	// first pass: compute the module's total footprint. Per the
	// original loader, this is simply the highest p_vaddr+p_memsz
	// across every PT_LOAD — there is no rebasing against the lowest
	// segment's address; p_vaddr is used as-is as an offset from base.
	var hi uintptr
	haveLoad := false
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		segHi := uintptr(p.Vaddr + p.Memsz)
		if !haveLoad || segHi > hi {
			hi = segHi
		}
		haveLoad = true
	}
	if !haveLoad {
		return nil, fmt.Errorf("vrtld: `%s`: no PT_LOAD segments", name)
	}
	mod.size = alignUp(uint32(hi), vmaAlignment)

	base := vma.alloc(mod.size)
	if base == 0 {
		return nil, fmt.Errorf("vrtld: `%s`: out of virtual address space", name)
	}
	mod.base = base

	// second pass: map each PT_LOAD segment
	var dynProg *elf.Prog
	var exidxProg *elf.Prog
	for _, p := range f.Progs {
		switch p.Type {
		case elf.PT_DYNAMIC:
			dynProg = p
		case elf.PT_ARM_EXIDX:
			exidxProg = p
		}
		if p.Type != elf.PT_LOAD {
			continue
		}

		segBase := mod.base + uintptr(p.Vaddr)
		pageBase := alignDownPtr(segBase, vmaAlignment)
		segEnd := segBase + uintptr(p.Memsz)
		pageEnd := uintptr(alignUp(uint32(segEnd-pageBase), vmaAlignment)) + pageBase
		size := uint32(pageEnd - pageBase)

		prot := protFromFlags(p.Flags)

		block, err := currentKernel.Alloc(pageBase, size, ProtReadWrite)
		if err != nil {
			dsoUnload(mod)
			return nil, fmt.Errorf("vrtld: `%s`: %w", name, err)
		}

		buf := make([]byte, p.Filesz)
		if _, err := p.ReadAt(buf, 0); err != nil {
			dsoUnload(mod)
			return nil, fmt.Errorf("vrtld: `%s`: reading segment: %w", name, err)
		}
		if err := currentKernel.Write(block, uint32(segBase-pageBase), buf); err != nil {
			dsoUnload(mod)
			return nil, fmt.Errorf("vrtld: `%s`: %w", name, err)
		}

		if prot != ProtReadWrite {
			if err := currentKernel.Reprotect(block, prot); err != nil {
				dsoUnload(mod)
				return nil, fmt.Errorf("vrtld: `%s`: %w", name, err)
			}
		}

		mod.segs = append(mod.segs, Segment{
			Block: block,
			Base:  pageBase,
			Page:  pageBase,
			End:   pageEnd,
			Size:  size,
			Align: uint32(p.Align),
			Prot:  prot,
		})
	}

	if dynProg == nil {
		dsoUnload(mod)
		return nil, fmt.Errorf("vrtld: `%s`: no PT_DYNAMIC segment", name)
	}
	dynBuf := make([]byte, dynProg.Filesz)
	if _, err := dynProg.ReadAt(dynBuf, 0); err != nil {
		dsoUnload(mod)
		return nil, fmt.Errorf("vrtld: `%s`: reading PT_DYNAMIC: %w", name, err)
	}
	mod.dynamic = decodeDyn32s(dynBuf)

	if exidxProg != nil {
		mod.exidx = mod.base + uintptr(exidxProg.Vaddr)
		mod.numExidx = uint32(exidxProg.Memsz / 8)
	}

	for _, sec := range f.Sections {
		switch sec.Name {
		case ".dynsym":
			raw, err := sec.Data()
			if err != nil {
				dsoUnload(mod)
				return nil, fmt.Errorf("vrtld: `%s`: reading .dynsym: %w", name, err)
			}
			mod.dynsym = decodeSym32s(raw)
		case ".dynstr":
			raw, err := sec.Data()
			if err != nil {
				dsoUnload(mod)
				return nil, fmt.Errorf("vrtld: `%s`: reading .dynstr: %w", name, err)
			}
			mod.dynstr = raw
		case ".hash":
			raw, err := sec.Data()
			if err == nil {
				mod.hashtab = decodeWord32s(raw)
			}
		case ".init_array":
			raw, err := sec.Data()
			if err == nil {
				mod.initArray = decodeAddrs(raw, mod.base)
			}
		case ".fini_array":
			raw, err := sec.Data()
			if err == nil {
				mod.finiArray = decodeAddrs(raw, mod.base)
			}
		}
	}

	if mod.dynsym == nil || mod.dynstr == nil {
		dsoUnload(mod)
		return nil, fmt.Errorf("vrtld: `%s`: missing .dynsym or .dynstr", name)
	}

	mod.flags |= modMapped
	debugf("`%s`: mapped at 0x%x, size 0x%x, %d segments", name, mod.base, mod.size, len(mod.segs))
	return mod, nil
}

func protFromFlags(f elf.ProgFlag) Protection {
	switch {
	case f&elf.PF_X != 0:
		return ProtReadExec
	case f&elf.PF_W != 0:
		return ProtReadWrite
	default:
		return ProtRead
	}
}

func alignDownPtr(v uintptr, align uint32) uintptr {
	return v &^ (uintptr(align) - 1)
}

func decodeSym32s(data []byte) []elf.Sym32 {
	const entSize = 16
	n := len(data) / entSize
	out := make([]elf.Sym32, n)
	for i := 0; i < n; i++ {
		b := data[i*entSize:]
		out[i] = elf.Sym32{
			Name:  binary.LittleEndian.Uint32(b[0:4]),
			Value: binary.LittleEndian.Uint32(b[4:8]),
			Size:  binary.LittleEndian.Uint32(b[8:12]),
			Info:  b[12],
			Other: b[13],
			Shndx: binary.LittleEndian.Uint16(b[14:16]),
		}
	}
	return out
}

func decodeDyn32s(data []byte) []elf.Dyn32 {
	const entSize = 8
	n := len(data) / entSize
	out := make([]elf.Dyn32, 0, n)
	for i := 0; i < n; i++ {
		b := data[i*entSize:]
		d := elf.Dyn32{
			Tag: int32(binary.LittleEndian.Uint32(b[0:4])),
			Val: binary.LittleEndian.Uint32(b[4:8]),
		}
		out = append(out, d)
		if elf.DynTag(d.Tag) == elf.DT_NULL {
			break
		}
	}
	return out
}

func decodeWord32s(data []byte) []uint32 {
	n := len(data) / 4
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return out
}

// decodeAddrs reads an array of function-pointer-sized addresses out of
// an .init_array/.fini_array section. The section stores link-time
// addresses as offsets from p_vaddr 0 for an ET_DYN image, so bias (the
// module's load base) converts them into runtime addresses.
func decodeAddrs(data []byte, bias uintptr) []uintptr {
	n := len(data) / 4
	out := make([]uintptr, n)
	for i := 0; i < n; i++ {
		out[i] = uintptr(binary.LittleEndian.Uint32(data[i*4:])) + bias
	}
	return out
}

func dsoInitialize(mod *Module) {
	if mod.initArray != nil {
		debugf("`%s`: init array has %d entries", mod.Name, len(mod.initArray))
		for _, addr := range mod.initArray {
			if addr != 0 {
				_ = currentKernel.Call(addr)
			}
		}
	}
	mod.flags |= modInitialized
}

func dsoFinalize(mod *Module) {
	if mod.finiArray != nil {
		debugf("`%s`: fini array has %d entries", mod.Name, len(mod.finiArray))
		for i := len(mod.finiArray) - 1; i >= 0; i-- {
			if mod.finiArray[i] != 0 {
				_ = currentKernel.Call(mod.finiArray[i])
			}
		}
		mod.finiArray = nil
	}
	mod.flags &^= modInitialized
}

func dsoRelocateAndInit(mod *Module, ignoreUndef bool) error {
	if !mod.relocated() {
		if err := relocate(mod, ignoreUndef, false); err != nil {
			return err
		}
	}
	if !mod.initialized() {
		if len(mod.segs) > 0 {
			debugf("`%s`: flushing cache range 0x%x - 0x%x", mod.Name, mod.segs[0].Base, mod.segs[0].Base+uintptr(mod.segs[0].Size))
			_ = currentKernel.FlushInstructionCache(mod.segs[0].Block)
		}
		dsoInitialize(mod)
	}
	linkModule(mod)
	return nil
}

func dsoUnload(mod *Module) error {
	if mod.base == 0 {
		return fmt.Errorf("vrtld: `%s`: already unloaded", mod.Name)
	}

	debugf("`%s`: unloading", mod.Name)
	if mod.initialized() {
		dsoFinalize(mod)
	}

	debugf("`%s`: unmapping", mod.Name)
	for _, seg := range mod.segs {
		_ = currentKernel.Free(seg.Block)
	}

	vma.free(mod.base)

	if mod.ownSymtab() {
		mod.dynsym = nil
		mod.dynstr = nil
		mod.hashtab = nil
	}

	mod.base = 0
	mod.segs = nil
	debugf("`%s`: unloaded", mod.Name)
	return nil
}

func dsoGetAddrInfo(addr uintptr, mod *Module, info *DLInfo) bool {
	if addr < mod.base || addr >= mod.base+uintptr(mod.size) {
		return false
	}
	if sym := reverseLookupSym(mod, addr); sym != nil {
		info.SAddr = mod.base + uintptr(sym.Value)
		info.SName = cstr(mod.dynstr, sym.Name)
	} else {
		info.SAddr = 0
		info.SName = ""
	}
	info.FName = mod.Name
	info.FBase = mod.base
	return true
}

// unloadAll detaches the entire module chain and unloads every module,
// then clears the host module's own synthesized symtab if it owns one.
func unloadAll() {
	mod := dsolist.next
	dsolist.next = nil

	for mod != nil {
		next := mod.next
		_ = dsoUnload(mod)
		mod = next
	}

	if dsolist.ownSymtab() {
		dsolist.dynsym = nil
		dsolist.dynstr = nil
		dsolist.hashtab = nil
		dsolist.flags &^= modOwnSymtab
	}
}

// vma is the process-wide virtual memory arena modules are mapped out
// of. It is reinitialized by Init.
var vma *vmaArena

// DLOpen loads the DSO at path (or returns the host module's handle if
// path is empty) and, unless flags includes Lazy, relocates and
// initializes it immediately. Calling DLOpen on an already-loaded path
// just increments its reference count.
func DLOpen(path string, flags OpenFlags) (*Module, error) {
	clearError()

	if path == "" {
		debugf("dlopen(): trying to open root module")
		return dsolist, nil
	}

	name := path
	if abs, err := filepath.Abs(path); err == nil {
		name = abs
	}

	var found *Module
	chain(func(m *Module) bool {
		if m.Name == name {
			found = m
			return false
		}
		return true
	})
	if found != nil {
		debugf("dlopen(): `%s` is already loaded, increasing refcount", name)
		found.refcount++
		return found, nil
	}

	mod, err := dsoLoad(path, name)
	if err != nil {
		setError("%v", err)
		return nil, err
	}

	if flags&Lazy == 0 {
		if err := dsoRelocateAndInit(mod, false); err != nil {
			setError("%v", err)
			_ = dsoUnload(mod)
			return nil, err
		}
	}

	mod.flags |= moduleFlags(flags)
	mod.refcount = 1

	return mod, nil
}

// DLClose drops handle's reference count and unloads it once the count
// reaches zero. Closing the host module's handle is always a no-op.
func DLClose(handle *Module) error {
	if handle == nil {
		setError("dlclose(): nil handle")
		return fmt.Errorf("vrtld: dlclose(): nil handle")
	}
	if handle == dsolist {
		debugf("dlclose(): tried to close main module")
		return nil
	}

	handle.refcount--
	if handle.refcount <= 0 {
		debugf("`%s`: refcount is 0, unloading", handle.Name)
		unlinkModule(handle)
		return dsoUnload(handle)
	}
	return nil
}

// DLSym resolves symname. A nil handle (or the host module's own
// handle) searches every loaded module in chain order starting with the
// host module itself; any other handle searches only that module.
// A module that is not yet relocated (Lazy-opened) is finalized on
// first lookup; if finalization fails, that one module is unloaded and
// the search continues past it when searching the whole chain, but
// fails outright when searching a specific handle.
func DLSym(handle *Module, symname string) (uintptr, error) {
	if symname == "" {
		setError("dlsym(): empty symname")
		return 0, fmt.Errorf("vrtld: dlsym(): empty symname")
	}

	specific := handle != nil && handle != dsolist

	mod := handle
	if !specific {
		mod = dsolist
	}

	for mod != nil {
		if !mod.relocated() {
			if err := dsoRelocateAndInit(mod, false); err != nil {
				failed := mod
				next := mod.next
				_ = dsoUnload(failed)
				if specific {
					return 0, err
				}
				mod = next
				continue
			}
		}

		if addr, ok := lookup(mod, symname); ok {
			return addr, nil
		}

		if specific {
			err := fmt.Errorf("vrtld: `%s`: symbol `%s` not found", mod.Name, symname)
			setError("`%s`: symbol `%s` not found", mod.Name, symname)
			return 0, err
		}

		mod = mod.next
	}

	err := fmt.Errorf("vrtld: symbol `%s` not found in any loaded module", symname)
	setError("symbol `%s` not found in any loaded modules", symname)
	return 0, err
}

// DLAddr reverse-resolves addr to its containing module (and, if it
// names a symbol exactly, that symbol's name). Modules are searched
// most-recently-opened first; the host module is checked last.
func DLAddr(addr uintptr) (DLInfo, bool) {
	var info DLInfo
	if addr == 0 {
		setError("dladdr(): nil addr")
		return info, false
	}

	found := false
	chain(func(m *Module) bool {
		if dsoGetAddrInfo(addr, m, &info) {
			found = true
			return false
		}
		return true
	})
	if found {
		return info, true
	}

	if dsoGetAddrInfo(addr, dsolist, &info) {
		return info, true
	}
	return info, false
}

// GetHandle returns the module whose base address is exactly base.
func GetHandle(base uintptr) (*Module, error) {
	if base == 0 {
		setError("get_handle(): nil arg")
		return nil, fmt.Errorf("vrtld: get_handle(): nil arg")
	}
	for mod := dsolist; mod != nil; mod = mod.next {
		if mod.base == base {
			return mod, nil
		}
	}
	err := fmt.Errorf("vrtld: get_handle(): 0x%x is not the base of any loaded module", base)
	setError("get_handle(): 0x%x is not the base of any loaded module", base)
	return nil, err
}

func GetBase(handle *Module) uintptr { return handle.base }
func GetSize(handle *Module) uint32  { return handle.size }

func GetExidx(handle *Module) (uintptr, uint32) {
	return handle.exidx, handle.numExidx
}
