//go:build windows

package osmem

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// windowsAllocGranularity is the minimum granularity VirtualAlloc honours
// for MEM_RESERVE regions on every supported Windows version.
const windowsAllocGranularity = 64 * 1024

func reserve(minBytes, alignment uintptr) (uintptr, uintptr, error) {
	length := alignUp(minBytes, windowsAllocGranularity)

	addr, err := windows.VirtualAlloc(0, length, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return 0, 0, fmt.Errorf("osmem: VirtualAlloc %d bytes: %w", length, err)
	}

	if addr%alignment != 0 {
		_ = windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
		return 0, 0, fmt.Errorf("osmem: VirtualAlloc returned base 0x%x unaligned to %d", addr, alignment)
	}

	return addr, length, nil
}
