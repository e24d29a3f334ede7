//go:build !unix && !windows

package osmem

import "unsafe"

// reserve is the fallback for hosts with neither mmap nor VirtualAlloc: it
// carves an over-sized Go slice and hands back the aligned interior,
// pinning the slice so the garbage collector leaves it alone.
func reserve(minBytes, alignment uintptr) (uintptr, uintptr, error) {
	length := alignUp(minBytes, alignment)
	slab := make([]byte, length+alignment)

	base := alignUp(uintptr(unsafe.Pointer(&slab[0])), alignment)
	pin(base, slab)

	return base, length, nil
}
