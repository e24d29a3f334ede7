//go:build unix

package osmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// reserve carves a new region with an anonymous, private mmap, grounded on
// the teacher's own golang.org/x/sys/unix usage in
// internal/runtime/asyncio/zerocopy_unix_file.go.
func reserve(minBytes, alignment uintptr) (uintptr, uintptr, error) {
	pageSize := uintptr(unix.Getpagesize())
	length := alignUp(minBytes, pageSize)

	if length < minBytes {
		return 0, 0, fmt.Errorf("osmem: size %d overflows when rounded to the page size", minBytes)
	}

	data, err := unix.Mmap(-1, 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return 0, 0, fmt.Errorf("osmem: mmap %d bytes: %w", length, err)
	}

	base := uintptr(unsafe.Pointer(&data[0]))
	if base%alignment != 0 {
		_ = unix.Munmap(data)
		return 0, 0, fmt.Errorf("osmem: mmap returned base 0x%x unaligned to %d", base, alignment)
	}

	pin(base, data)

	return base, length, nil
}
