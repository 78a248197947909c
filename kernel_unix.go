//go:build linux

// Completion: 90% - Linux reference kernel capability backend
package vrtld

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// unixBlock is a MemoryBlock backed by an mmap'd region.
type unixBlock struct {
	addr uintptr
	size uint32
	prot Protection
}

func (b *unixBlock) Addr() uintptr { return b.addr }
func (b *unixBlock) Len() uint32   { return b.size }

func (b *unixBlock) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(b.addr)), int(b.size))
}

func protBits(p Protection) int {
	switch p {
	case ProtRead:
		return unix.PROT_READ
	case ProtReadExec:
		return unix.PROT_READ | unix.PROT_EXEC
	case ProtReadWrite:
		return unix.PROT_READ | unix.PROT_WRITE
	default:
		return unix.PROT_NONE
	}
}

// UnixKernel is a KernelCapability backed by raw mmap/mprotect syscalls
// via golang.org/x/sys/unix, reached through unix.Syscall6 rather than
// the higher-level unix.Mmap wrapper because the wrapper has no
// MAP_FIXED-at-exact-address parameter, and vrtld always maps at an
// address the VMA allocator has already reserved.
//
// A plain host process cannot grant itself the Vita kernel bridge's
// "unrestricted memcpy into read-only pages" capability, so every
// segment is mapped ProtReadWrite initially, its contents are copied in,
// and the loader then Reprotects it to its final protection before
// relocation. A later Write to a block that is not ProtReadWrite (a
// relocation patch) makes it writable for the copy and restores its
// previous protection afterwards.
type UnixKernel struct{}

func NewUnixKernel() *UnixKernel { return &UnixKernel{} }

func (k *UnixKernel) Alloc(addr uintptr, length uint32, prot Protection) (MemoryBlock, error) {
	base, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		addr,
		uintptr(length),
		uintptr(unix.PROT_READ|unix.PROT_WRITE),
		uintptr(unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_FIXED),
		^uintptr(0), // fd = -1
		0,
	)
	if errno != 0 {
		return nil, fmt.Errorf("vrtld: mmap(0x%x, %d): %w", addr, length, errno)
	}
	if base != addr {
		unix.Syscall(unix.SYS_MUNMAP, base, uintptr(length), 0)
		return nil, fmt.Errorf("vrtld: mmap did not honor MAP_FIXED address 0x%x (got 0x%x)", addr, base)
	}
	return &unixBlock{addr: addr, size: length, prot: ProtReadWrite}, nil
}

func (k *UnixKernel) Free(block MemoryBlock) error {
	b := block.(*unixBlock)
	_, _, errno := unix.Syscall(unix.SYS_MUNMAP, b.addr, uintptr(b.size), 0)
	if errno != 0 {
		return fmt.Errorf("vrtld: munmap(0x%x): %w", b.addr, errno)
	}
	return nil
}

func (k *UnixKernel) Write(block MemoryBlock, offset uint32, data []byte) error {
	b := block.(*unixBlock)
	prot := b.prot
	if prot != ProtReadWrite {
		if err := k.Reprotect(block, ProtReadWrite); err != nil {
			return err
		}
	}
	copy(b.Bytes()[offset:], data)
	if prot != ProtReadWrite {
		return k.Reprotect(block, prot)
	}
	return nil
}

func (k *UnixKernel) Reprotect(block MemoryBlock, prot Protection) error {
	b := block.(*unixBlock)
	_, _, errno := unix.Syscall(unix.SYS_MPROTECT, b.addr, uintptr(b.size), uintptr(protBits(prot)))
	if errno != 0 {
		return fmt.Errorf("vrtld: mprotect(0x%x): %w", b.addr, errno)
	}
	b.prot = prot
	return nil
}

func (k *UnixKernel) FlushInstructionCache(block MemoryBlock) error {
	// amd64/arm64 Linux keep the I-cache coherent with the D-cache for
	// ordinary user mappings; a 32-bit ARM host would need a real
	// cacheflush(2) call here instead.
	return nil
}

func (k *UnixKernel) Call(addr uintptr) error {
	callTrampoline(addr)
	return nil
}
