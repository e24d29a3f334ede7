package allocator

// Handle is this implementation's substitute for the C original's
// thread-local state (spec.md §4.7, §5): a Go goroutine has no stable OS
// thread affinity, so per-thread cache/hoard/predictor state is owned by a
// Handle instead, obtained once via Heap.Bind and threaded through
// subsequent calls. See SPEC_FULL.md's REDESIGN FLAGS for the full
// rationale; the isolation and no-synchronization properties of spec.md §5
// hold identically over a Handle.
type Handle struct {
	heap      *Heap
	cache     *blockCache
	hoard     *hoard
	predictor *predictor
}

// Bind returns a new Handle bound to this heap, owning its own cache,
// hoard, and predictor. Callers that make many allocations should obtain
// one Handle per goroutine and reuse it, rather than calling the Heap's
// pooled-handle convenience methods for every operation.
func (h *Heap) Bind() *Handle {
	return &Handle{
		heap:      h,
		cache:     newBlockCache(),
		hoard:     newHoard(h.cfg.MaxHoard),
		predictor: newPredictor(h.cfg.PredictorFuzz, h.cfg.PCompressThreshold),
	}
}

// Allocate requests size bytes aligned to alignment through this handle.
func (handle *Handle) Allocate(size, alignment uintptr) (uintptr, error) {
	return handle.heap.allocate(handle, size, alignment)
}

// Free releases an address previously returned by Allocate through any
// handle on the same heap.
func (handle *Handle) Free(addr uintptr) error {
	return handle.heap.free(handle, addr)
}

// Reallocate resizes an existing allocation, possibly relocating it.
func (handle *Handle) Reallocate(addr, newSize uintptr) (uintptr, error) {
	return handle.heap.reallocate(handle, addr, newSize)
}
