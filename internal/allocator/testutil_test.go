package allocator

import "unsafe"

// testAlignedBlocks allocates n*BlockSize bytes of plain Go memory aligned
// to BlockSize, for tests that want to poke at the bitmap layout directly
// without going through a Heap. The backing slice is returned too so the
// caller keeps a live reference (the garbage collector must not reclaim it
// out from under raw uintptr arithmetic).
func testAlignedBlocks(n int) (uintptr, []byte) {
	raw := make([]byte, (n+1)*BlockSize)
	base := (uintptr(unsafe.Pointer(&raw[0])) + BlockSize - 1) &^ (BlockSize - 1)

	return base, raw
}
