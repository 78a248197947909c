// Completion: 100% - Package overview

// Package vrtld implements a userspace runtime dynamic linker for
// position-independent ELF32 shared objects targeting ARMv7, for hosts
// that have no conventional POSIX dynamic loader of their own.
//
// The package loads ELF32 DSOs into memory supplied by a host-provided
// KernelCapability, resolves ARM REL-style relocations, runs each module's
// .init_array constructors in index order, and exposes a libdl-flavored API (DLOpen, DLSym,
// DLClose, DLError, DLAddr) plus a few vrtld-specific accessors
// (GetHandle, GetBase, GetSize, GetExidx).
//
// vrtld is not reentrant and takes no locks around its entry points (the
// only mutex guards the error latch): callers must serialize all entry
// points themselves, exactly like libdl.
package vrtld
