// Completion: 100% - Exception-index lookup hook
package vrtld

// HostExidx is the host program's own exception-index table bounds,
// used as the fallback when FindExidx is asked about a PC that does
// not belong to any loaded module. A host embedding vrtld for ARM
// unwinding support must set this (typically from its own
// __exidx_start/__exidx_end linker symbols) before relying on FindExidx.
var HostExidx struct {
	Start, End uintptr
}

// FindExidx locates the exception-unwind-index table covering pc,
// exactly the question __gnu_Unwind_Find_exidx answers for a language
// runtime's stack unwinder. It checks loaded modules (most recently
// opened first) before falling back to HostExidx.
func FindExidx(pc uintptr) (table uintptr, count uint32) {
	var found *Module
	chain(func(m *Module) bool {
		if pc >= m.base && pc < m.base+uintptr(m.size) {
			found = m
			return false
		}
		return true
	})

	if found != nil && found.exidx != 0 {
		return found.exidx, found.numExidx
	}

	start, end := HostExidx.Start, HostExidx.End
	return start, uint32((end - start) / 8)
}
