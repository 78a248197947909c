// Completion: 100% - Module descriptor and chain
package vrtld

import "debug/elf"

// moduleFlags mirrors the internal dso_flags_internal bit layout: state
// bits occupy the high half of the word so they never collide with the
// open-mode flags a caller passes to DLOpen.
type moduleFlags uint32

const (
	modRelocated   moduleFlags = 1 << 17
	modMapped      moduleFlags = 1 << 18
	modInitialized moduleFlags = 1 << 19
	modOwnSymtab   moduleFlags = 1 << 24
)

// OpenFlags controls DLOpen's linking scope and eagerness.
type OpenFlags int

const (
	Local  OpenFlags = 0
	Global OpenFlags = 1 << 0
	Now    OpenFlags = 0
	Lazy   OpenFlags = 1 << 1
)

// Segment is one mapped PT_LOAD region of a module.
type Segment struct {
	Block MemoryBlock
	Base  uintptr
	Page  uintptr
	End   uintptr
	Size  uint32
	Align uint32
	Prot  Protection
}

// Export is a single (name, address) pair a host program exposes to
// modules it loads, used to synthesize the main module's symbol table.
type Export struct {
	Name   string
	AddrRX uintptr
}

// DLInfo mirrors the POSIX Dl_info structure returned by DLAddr.
type DLInfo struct {
	FName string
	FBase uintptr
	SName string
	SAddr uintptr
}

// Module is the in-memory descriptor for one loaded DSO, or for the
// host program itself (the chain's sentinel head).
type Module struct {
	Name     string
	flags    moduleFlags
	refcount uint32

	base uintptr
	size uint32

	segs []Segment

	dynamic  []elf.Dyn32
	dynsym   []elf.Sym32
	dynstr   []byte
	hashtab  []uint32

	initArray []uintptr
	finiArray []uintptr

	exidx    uintptr
	numExidx uint32

	exports []Export // own synthesized symtab source, if ownSymtab

	next, prev *Module
}

func (m *Module) relocated() bool   { return m.flags&modRelocated != 0 }
func (m *Module) mapped() bool      { return m.flags&modMapped != 0 }
func (m *Module) initialized() bool { return m.flags&modInitialized != 0 }
func (m *Module) ownSymtab() bool   { return m.flags&modOwnSymtab != 0 }

// dsolist is the statically-allocated sentinel head of the module
// chain. It represents the host program and is never unlinked or
// unloaded. Its base/size/exports are populated by Init. The chain is a
// plain NULL-terminated forward list (dsolist.next == nil when empty),
// not circular: dsolist.prev is never used, since the head is never
// itself unlinked.
var dsolist = &Module{Name: "main", flags: modMapped | modRelocated | modInitialized}

// linkModule inserts mod right after the sentinel head, making it the
// most-recently-opened module in traversal order.
func linkModule(mod *Module) {
	mod.next = dsolist.next
	mod.prev = dsolist
	if dsolist.next != nil {
		dsolist.next.prev = mod
	}
	dsolist.next = mod
}

func unlinkModule(mod *Module) {
	if mod.prev != nil {
		mod.prev.next = mod.next
	}
	if mod.next != nil {
		mod.next.prev = mod.prev
	}
	mod.next = nil
	mod.prev = nil
}

// chain calls fn for every loaded module in most-recently-opened order,
// excluding the sentinel head. It stops early if fn returns false.
func chain(fn func(*Module) bool) {
	for m := dsolist.next; m != nil; m = m.next {
		if !fn(m) {
			return
		}
	}
}
