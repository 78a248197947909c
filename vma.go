// Completion: 100% - VMA stack allocator
package vrtld

// vmaAlignment is the granularity every allocation is rounded up to.
const vmaAlignment = 0x1000

// maxVMAAllocs bounds the allocation-record table. It is a lifetime cap,
// not a concurrent-allocation cap: the table never shrinks, so a process
// that opens and closes more than maxVMAAllocs DSOs over its lifetime
// will exhaust it even though most of those allocations have long since
// been freed.
const maxVMAAllocs = 256

type vmaRecord struct {
	ptr  uintptr // 0 means this slot has been tombstoned
	size uint32
}

// vmaArena is a stack allocator over a fixed virtual address window.
// Allocations are always taken from the top of the stack; frees are only
// true byte-reclaiming operations when they target the current top and
// any tombstoned run directly beneath it. Freeing an interior allocation
// merely tombstones its record so a later top-down free can coalesce it.
type vmaArena struct {
	base      uintptr
	ptr       uintptr
	lastPtr   uintptr
	size      uint32
	left      uint32
	allocs    [maxVMAAllocs]vmaRecord
	numAllocs uint32
}

func newVMAArena(start, end uintptr) *vmaArena {
	a := &vmaArena{base: start, ptr: start, lastPtr: start, size: uint32(end - start)}
	a.left = a.size
	debugf("vma: init base=0x%x size=0x%x", a.base, a.size)
	return a
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}

// alloc reserves size bytes at the top of the stack and returns their
// base address, or 0 if size is zero, the arena is exhausted, or the
// allocation-record table is full.
func (a *vmaArena) alloc(size uint32) uintptr {
	size = alignUp(size, vmaAlignment)

	if size == 0 {
		debugf("vma: alloc size == 0")
		return 0
	}
	if a.left < size {
		debugf("vma: alloc failed to alloc %d bytes", size)
		return 0
	}
	if a.numAllocs == maxVMAAllocs {
		debugf("vma: alloc MAX_ALLOCS reached")
		return 0
	}

	a.lastPtr = a.ptr
	a.ptr += uintptr(size)
	a.left -= size

	i := a.numAllocs
	a.numAllocs++
	a.allocs[i] = vmaRecord{ptr: a.lastPtr, size: size}

	debugf("vma: alloc %d bytes at 0x%x, %d free", size, a.lastPtr, a.left)
	return a.lastPtr
}

// free releases ptr. It is a no-op for a nil pointer or an empty arena.
// Freeing the current top of the stack reclaims its bytes immediately
// and walks downward coalescing any previously-tombstoned allocations
// until it hits a still-live one (or empties the arena back to base).
// Freeing any other pointer only tombstones that one record.
func (a *vmaArena) free(ptr uintptr) {
	if ptr == 0 {
		return
	}
	if a.numAllocs == 0 {
		debugf("vma: free nothing to free")
		return
	}

	if ptr == a.lastPtr {
		top := int(a.numAllocs) - 1
		// records above the live top were zeroed by earlier pops, so
		// search downward for the record that actually owns ptr
		for i := top; i >= 0; i-- {
			if a.allocs[i].ptr == ptr {
				a.allocs[i].ptr = 0
				break
			}
		}
		for i := top; i >= 0; i-- {
			if a.allocs[i].ptr != 0 {
				a.lastPtr = a.allocs[i].ptr
				a.ptr = a.lastPtr + uintptr(a.allocs[i].size)
				debugf("vma: free resetting to last alloc of %d bytes at 0x%x", a.allocs[i].size, a.lastPtr)
				return
			}
			debugf("vma: free chain-freeing %d bytes", a.allocs[i].size)
			a.left += a.allocs[i].size
			a.allocs[i].size = 0
		}
		debugf("vma: free resetting to base state")
		a.lastPtr = a.base
		a.ptr = a.base
		a.left = a.size
		return
	}

	for i := uint32(0); i < a.numAllocs; i++ {
		if a.allocs[i].ptr == ptr {
			debugf("vma: free marking %d bytes at 0x%x as free", a.allocs[i].size, a.allocs[i].ptr)
			a.allocs[i].ptr = 0
			return
		}
	}

	debugf("vma: free tried to free unknown pointer 0x%x", ptr)
}
