package vrtld

import "testing"

func TestVMAAllocAlignsUp(t *testing.T) {
	a := newVMAArena(0x1000, 0x10000)
	p := a.alloc(1)
	if p != 0x1000 {
		t.Fatalf("expected first alloc at base 0x1000, got 0x%x", p)
	}
	if a.left != 0xF000-vmaAlignment {
		t.Fatalf("unexpected remaining space: 0x%x", a.left)
	}
}

func TestVMAAllocExhaustion(t *testing.T) {
	a := newVMAArena(0x1000, 0x3000)
	if p := a.alloc(0x1000); p != 0x1000 {
		t.Fatalf("first alloc should succeed at 0x1000, got 0x%x", p)
	}
	if p := a.alloc(0x1000); p != 0x2000 {
		t.Fatalf("second alloc should land at 0x2000, got 0x%x", p)
	}
	if p := a.alloc(1); p != 0 {
		t.Fatalf("alloc past the end should fail, got 0x%x", p)
	}
}

func TestVMAAllocZeroSizeFails(t *testing.T) {
	a := newVMAArena(0, 0x10000)
	if p := a.alloc(0); p != 0 {
		t.Fatalf("zero-size alloc should fail, got 0x%x", p)
	}
}

func TestVMAFreeTopReclaims(t *testing.T) {
	a := newVMAArena(0x1000, 0x10000)
	p1 := a.alloc(0x1000)
	p2 := a.alloc(0x1000)
	left := a.left
	a.free(p2)
	if a.left != left+0x1000 {
		t.Fatalf("freeing the top should reclaim its bytes")
	}
	if a.lastPtr != p1 {
		t.Fatalf("after freeing the top, lastPtr should rewind to the remaining live alloc, got 0x%x", a.lastPtr)
	}
}

func TestVMAFreeInteriorTombstonesOnly(t *testing.T) {
	a := newVMAArena(0x1000, 0x10000)
	p1 := a.alloc(0x1000)
	a.alloc(0x1000)
	left := a.left
	a.free(p1)
	if a.left != left {
		t.Fatalf("freeing an interior allocation must not reclaim bytes until coalesced from the top")
	}
}

func TestVMAFreeCoalescesTombstonesFromTop(t *testing.T) {
	a := newVMAArena(0x1000, 0x10000)
	p1 := a.alloc(0x1000)
	p2 := a.alloc(0x1000)
	p3 := a.alloc(0x1000)
	a.free(p2) // tombstone the middle one
	left := a.left
	a.free(p3) // freeing the top should now coalesce p2's tombstone too
	if a.left != left+0x2000 {
		t.Fatalf("expected coalescing to reclaim both freed blocks, left=0x%x want=0x%x", a.left, left+0x2000)
	}
	if a.lastPtr != p1 {
		t.Fatalf("expected stack to rewind to the remaining live alloc at 0x%x, got 0x%x", p1, a.lastPtr)
	}
}

func TestVMAFreeAllResetsToBase(t *testing.T) {
	a := newVMAArena(0x5000, 0x10000)
	a.alloc(0x1000)
	p2 := a.alloc(0x1000)
	a.free(p2)
	a.free(a.lastPtr)
	if a.lastPtr != a.base || a.ptr != a.base || a.left != a.size {
		t.Fatalf("expected arena to fully reset to base state")
	}
}

func TestVMANumAllocsNeverDecreases(t *testing.T) {
	a := newVMAArena(0, 0x100000)
	for i := 0; i < 10; i++ {
		p := a.alloc(0x1000)
		a.free(p)
	}
	if a.numAllocs != 10 {
		t.Fatalf("expected numAllocs to be a monotonic lifetime counter, got %d", a.numAllocs)
	}
	// arena is fully empty again, but the ledger is not
	if a.left != a.size {
		t.Fatalf("arena should be fully free after popping every allocation")
	}
}

func TestVMAMaxAllocsCap(t *testing.T) {
	a := newVMAArena(vmaAlignment, uintptr(maxVMAAllocs+11)*vmaAlignment)
	for i := 0; i < maxVMAAllocs; i++ {
		if p := a.alloc(vmaAlignment); p == 0 {
			t.Fatalf("alloc %d unexpectedly failed before reaching the table cap", i)
		}
	}
	if p := a.alloc(vmaAlignment); p != 0 {
		t.Fatalf("expected alloc to fail once the allocation table is full, got 0x%x", p)
	}
}
