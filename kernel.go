// Completion: 100% - Host kernel capability abstraction
package vrtld

// Protection describes the memory protection class a loaded segment is
// mapped with, mirroring the PT_LOAD flag combinations the loader cares
// about (PF_R, PF_R|PF_X, PF_R|PF_W).
type Protection int

const (
	ProtRead Protection = iota
	ProtReadExec
	ProtReadWrite
)

// MemoryBlock is a host-allocated, page-aligned range of memory backing
// one loaded segment. It is opaque to everything above the
// KernelCapability boundary; only the backend that created it knows how
// to free or reprotect it.
type MemoryBlock interface {
	// Addr is the block's base address in the process's address space.
	Addr() uintptr
	// Len is the block's length in bytes.
	Len() uint32
}

// KernelCapability abstracts the page-granular primitives a host
// platform must supply: allocating and freeing memory at a specific
// address, copying bytes into it regardless of its current protection,
// changing its protection class, and flushing the instruction cache
// after code has been written. On a host with an MMU and a standard
// loader this is a thin wrapper over mmap/mprotect; on a platform like
// the one this design originates from, it is backed by a kernel driver
// that can bypass normal page permissions.
type KernelCapability interface {
	// Alloc reserves length bytes at the exact virtual address addr and
	// returns the backing block. Implementations must fail rather than
	// pick a different address: the caller has already reserved addr
	// from the VMA arena.
	Alloc(addr uintptr, length uint32, prot Protection) (MemoryBlock, error)
	// Free releases a block previously returned by Alloc.
	Free(block MemoryBlock) error
	// Write copies data into block at the given offset, bypassing the
	// block's current protection if necessary (e.g. to populate a
	// read-execute text segment before any code in it has run).
	Write(block MemoryBlock, offset uint32, data []byte) error
	// Reprotect changes a block's protection class after its contents
	// have been finalized.
	Reprotect(block MemoryBlock, prot Protection) error
	// FlushInstructionCache ensures code written into block is visible
	// to the CPU's instruction fetch path before it is executed.
	FlushInstructionCache(block MemoryBlock) error
	// Call invokes the niladic, void-returning function at addr. This
	// is how module constructors, destructors and init_array/fini_array
	// entries actually run: they are raw addresses inside mapped
	// segments, not Go function values.
	Call(addr uintptr) error
}

// currentKernel is the capability backend Init installed. Every loader
// operation that touches module memory goes through it.
var currentKernel KernelCapability
