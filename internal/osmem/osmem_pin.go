package osmem

import "sync"

// pinned keeps a Go-visible reference to every slice backing a reservation.
// Memory returned by mmap/VirtualAlloc lives outside the Go heap and the
// runtime never needs to see it, but the generic fallback (osmem_other.go)
// carves its regions out of ordinary Go slices, which the garbage collector
// would otherwise be free to reclaim once Reserve returns only a bare
// uintptr.
var (
	pinnedMu sync.Mutex
	pinned   = make(map[uintptr][]byte)
)

func pin(base uintptr, data []byte) {
	pinnedMu.Lock()
	pinned[base] = data
	pinnedMu.Unlock()
}
