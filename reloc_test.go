package vrtld

import (
	"debug/elf"
	"encoding/binary"
	"testing"
)

func newTestSegment(t *testing.T, k *fakeKernel, base uintptr, size uint32) Segment {
	t.Helper()
	block, err := k.Alloc(base, size, ProtReadWrite)
	if err != nil {
		t.Fatalf("fake alloc: %v", err)
	}
	return Segment{Block: block, Base: base, Size: size, Prot: ProtReadWrite}
}

func putWord(t *testing.T, mod *Module, addr uintptr, v uint32) {
	t.Helper()
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	seg := segmentFor(mod, addr)
	if seg == nil {
		t.Fatalf("no segment covers 0x%x", addr)
	}
	if err := currentKernel.Write(seg.Block, uint32(addr-seg.Base), buf[:]); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestProcessRelocsRelative(t *testing.T) {
	k := newFakeKernel()
	currentKernel = k
	defer func() { currentKernel = nil }()

	mod := &Module{Name: "libfoo.so", base: 0x3000}
	mod.segs = []Segment{newTestSegment(t, k, 0x3000, 0x1000)}

	// the in-place addend is 0x50: R_ARM_RELATIVE should add the load base
	putWord(t, mod, 0x3010, 0x50)

	rels := []elf.Rel32{{Off: 0x10, Info: uint32(elf.R_ARM_RELATIVE)}}
	numFailed, abort := processRelocs(mod, rels, false, false)
	if abort || numFailed != 0 {
		t.Fatalf("unexpected relocation failure: failed=%d abort=%v", numFailed, abort)
	}
	if got := readWord(mod, 0x3010); got != uint32(mod.base)+0x50 {
		t.Fatalf("R_ARM_RELATIVE: got 0x%x, want 0x%x", got, uint32(mod.base)+0x50)
	}
}

func TestProcessRelocsUnknownTypeAborts(t *testing.T) {
	k := newFakeKernel()
	currentKernel = k
	defer func() { currentKernel = nil }()

	mod := &Module{Name: "libfoo.so", base: 0x3000}
	mod.segs = []Segment{newTestSegment(t, k, 0x3000, 0x1000)}

	rels := []elf.Rel32{{Off: 0x10, Info: uint32(99)}}
	_, abort := processRelocs(mod, rels, false, false)
	if !abort {
		t.Fatalf("an unrecognized relocation type must abort the whole array")
	}
}

func TestProcessRelocsWeakUndefSkippedSilently(t *testing.T) {
	k := newFakeKernel()
	currentKernel = k
	defer func() { currentKernel = nil }()
	resetChainForTest()

	mod := &Module{Name: "libfoo.so", base: 0x3000}
	mod.segs = []Segment{newTestSegment(t, k, 0x3000, 0x1000)}
	mod.dynstr = append([]byte{0}, []byte("missing\x00")...)
	mod.dynsym = []elf.Sym32{
		{},
		{Name: 1, Shndx: uint16(elf.SHN_UNDEF), Info: uint8(elf.STB_WEAK) << 4},
	}

	rels := []elf.Rel32{{Off: 0x10, Info: uint32(1)<<8 | uint32(elf.R_ARM_ABS32)}}
	numFailed, abort := processRelocs(mod, rels, false, false)
	if abort || numFailed != 0 {
		t.Fatalf("a weak unresolved symbol must be skipped, not latched as a failure")
	}
}

func TestProcessRelocsStrongUndefLatchesAndContinues(t *testing.T) {
	k := newFakeKernel()
	currentKernel = k
	defer func() { currentKernel = nil }()
	resetChainForTest()

	mod := &Module{Name: "libfoo.so", base: 0x3000}
	mod.segs = []Segment{newTestSegment(t, k, 0x3000, 0x1000)}
	mod.dynstr = append([]byte{0}, []byte("missing\x00")...)
	mod.dynsym = []elf.Sym32{
		{},
		{Name: 1, Shndx: uint16(elf.SHN_UNDEF), Info: uint8(elf.STB_GLOBAL) << 4},
	}

	rels := []elf.Rel32{
		{Off: 0x10, Info: uint32(1)<<8 | uint32(elf.R_ARM_ABS32)},
		{Off: 0x20, Info: uint32(elf.R_ARM_RELATIVE)}, // should still run
	}
	putWord(t, mod, 0x3020, 1)

	numFailed, abort := processRelocs(mod, rels, false, false)
	if abort {
		t.Fatalf("an unresolved strong symbol must not abort the array")
	}
	if numFailed != 1 {
		t.Fatalf("expected exactly 1 failed relocation, got %d", numFailed)
	}
	if got := readWord(mod, 0x3020); got != uint32(mod.base)+1 {
		t.Fatalf("later relocations in the array must still be processed")
	}
}
