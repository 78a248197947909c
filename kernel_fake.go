// Completion: 100% - In-process reference kernel capability for tests
package vrtld

import "fmt"

// fakeBlock is a MemoryBlock backed by an ordinary Go byte slice.
type fakeBlock struct {
	addr uintptr
	buf  []byte
	prot Protection
}

func (b *fakeBlock) Addr() uintptr { return b.addr }
func (b *fakeBlock) Len() uint32   { return uint32(len(b.buf)) }

// Bytes exposes the block's backing storage directly, used by the
// relocation engine to read words it is about to patch.
func (b *fakeBlock) Bytes() []byte { return b.buf }

// fakeKernel is a deterministic KernelCapability that never touches
// real host memory protection. It keeps a simple table of blocks keyed by
// address so tests can allocate at the exact addresses the VMA
// allocator hands out, and lets tests register fake "executable"
// addresses that map to a Go callback, so constructor/destructor order
// can be asserted without any real machine code.
type fakeKernel struct {
	blocks map[uintptr]*fakeBlock
	calls  map[uintptr]func()
}

// newFakeKernel returns a KernelCapability suitable for unit tests.
func newFakeKernel() *fakeKernel {
	return &fakeKernel{
		blocks: make(map[uintptr]*fakeBlock),
		calls:  make(map[uintptr]func()),
	}
}

func (k *fakeKernel) Alloc(addr uintptr, length uint32, prot Protection) (MemoryBlock, error) {
	if _, exists := k.blocks[addr]; exists {
		return nil, fmt.Errorf("vrtld: fake kernel: block already allocated at 0x%x", addr)
	}
	b := &fakeBlock{addr: addr, buf: make([]byte, length), prot: prot}
	k.blocks[addr] = b
	return b, nil
}

func (k *fakeKernel) Free(block MemoryBlock) error {
	delete(k.blocks, block.Addr())
	return nil
}

func (k *fakeKernel) Write(block MemoryBlock, offset uint32, data []byte) error {
	b := block.(*fakeBlock)
	if int(offset)+len(data) > len(b.buf) {
		return fmt.Errorf("vrtld: fake kernel: write out of bounds")
	}
	copy(b.buf[offset:], data)
	return nil
}

func (k *fakeKernel) Reprotect(block MemoryBlock, prot Protection) error {
	block.(*fakeBlock).prot = prot
	return nil
}

func (k *fakeKernel) FlushInstructionCache(block MemoryBlock) error {
	return nil
}

// RegisterCall lets a test associate an address (as would appear in a
// hand-built init_array) with a Go callback, so Call can invoke it.
func (k *fakeKernel) RegisterCall(addr uintptr, fn func()) {
	k.calls[addr] = fn
}

func (k *fakeKernel) Call(addr uintptr) error {
	fn, ok := k.calls[addr]
	if !ok {
		return fmt.Errorf("vrtld: fake kernel: no callback registered for 0x%x", addr)
	}
	fn()
	return nil
}
