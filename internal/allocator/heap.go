package allocator

import (
	"sync"

	"github.com/heapkit/btmalloc/internal/cli"
	"github.com/heapkit/btmalloc/internal/errors"
)

// Heap is the public allocator surface: spec.md §6's allocate/free/
// reallocate, backed by the bitmap layout in the rest of this package.
// heapStart/heapInitLock are the only spec-mandated process-wide state
// (§9); here they are fields of Heap rather than package globals so a
// process can run more than one independent heap.
type Heap struct {
	cfg *Config

	mu         sync.Mutex // heapInitLock: serializes master-block bootstrap and installation on every zone growth
	masterRoot uintptr

	zonesMu sync.RWMutex
	zones   []uintptr

	registryMu sync.RWMutex
	registry   map[class][]uintptr

	handlePool sync.Pool

	zeroOnce sync.Once
	zeroAddr uintptr
	zeroErr  error
	logger   *cli.Logger

	fixedMu      sync.Mutex
	fixedCursors [4]fixedCursor // indexed by class; classFixed1..classFixed2 are 0..3
}

// fixedCursor tracks the block currently being packed with subblocks of one
// fixed class: blockBase is the block's floor, nextTop is the control-word
// address the next carved subblock will occupy.
type fixedCursor struct {
	blockBase uintptr
	nextTop   uintptr
}

// NewHeap constructs a Heap from options, following the teacher's
// NewArenaAllocator/NewPoolAllocator(config, ...) shape (validate then
// construct).
func NewHeap(opts ...Option) (*Heap, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	h := &Heap{
		cfg:      cfg,
		registry: make(map[class][]uintptr),
	}

	if cfg.EnableDebug {
		h.logger = cli.NewLogger(true, true)
	}

	h.handlePool.New = func() interface{} {
		return h.Bind()
	}

	return h, nil
}

func (h *Heap) medianHint() uintptr {
	handle := h.handlePool.Get().(*Handle)
	defer h.handlePool.Put(handle)

	return handle.predictor.medianSize()
}

// zeroSentinel returns a stable non-null address for size-0 allocations
// (spec.md §6: "size == 0 returns a non-null sentinel"), reserved lazily
// from a dedicated zone on first use.
func (h *Heap) zeroSentinel() (uintptr, error) {
	h.zeroOnce.Do(func() {
		base, _, err := h.cfg.Reserver.Reserve(BlockSize, BlockAlignment)
		if err != nil {
			h.zeroErr = err
			return
		}

		h.zeroAddr = base
	})

	return h.zeroAddr, h.zeroErr
}

// Allocate is the convenience entry point for callers who do not hold a
// Handle: it borrows one from the heap's pool for the duration of the call.
// Callers making many allocations should prefer Bind() and reuse a Handle.
func (h *Heap) Allocate(size, alignment uintptr) (uintptr, error) {
	handle := h.handlePool.Get().(*Handle)
	defer h.handlePool.Put(handle)

	return handle.Allocate(size, alignment)
}

// Free is the pooled-handle convenience counterpart to Allocate.
func (h *Heap) Free(addr uintptr) error {
	handle := h.handlePool.Get().(*Handle)
	defer h.handlePool.Put(handle)

	return handle.Free(addr)
}

// Reallocate is the pooled-handle convenience counterpart to Allocate.
func (h *Heap) Reallocate(addr, newSize uintptr) (uintptr, error) {
	handle := h.handlePool.Get().(*Handle)
	defer h.handlePool.Put(handle)

	return handle.Reallocate(addr, newSize)
}

func isPowerOfTwo(n uintptr) bool {
	return n != 0 && n&(n-1) == 0
}

func (h *Heap) allocate(handle *Handle, size, alignment uintptr) (addr uintptr, err error) {
	defer h.recoverCorruption(&err)

	if alignment == 0 {
		alignment = 8
	}

	if !isPowerOfTwo(alignment) || alignment > BlockAlignment {
		return 0, errors.InvalidAlignment(alignment, BlockAlignment)
	}

	if size == 0 {
		return h.zeroSentinel()
	}

	if alignment <= 8 {
		if fc, ok := bestFixedClass(size); ok {
			return h.allocateFixed(handle, fc)
		}
	}

	return h.allocateVariablePath(handle, size, alignment)
}

func (h *Heap) allocateFixed(handle *Handle, fc fixedClassInfo) (uintptr, error) {
	if a, ok := handle.hoard.pop(fc.stride); ok {
		return a, nil
	}

	if a, cw, ok := handle.cache.tryAllocate(fc.class); ok {
		handle.cache.touch(cw, fc.class)
		return a, nil
	}

	if a, cw, ok := h.tryRegistry(fc.class); ok {
		handle.cache.touch(cw, fc.class)
		return a, nil
	}

	a, cw, err := h.carveFixedSubblock(fc.class)
	if err != nil {
		return 0, err
	}

	handle.cache.touch(cw, fc.class)
	handle.predictor.record(fc.stride)

	return a, nil
}

func (h *Heap) tryRegistry(cls class) (uintptr, uintptr, bool) {
	h.registryMu.RLock()
	candidates := append([]uintptr(nil), h.registry[cls]...)
	h.registryMu.RUnlock()

	for _, cw := range candidates {
		if a, ok := allocateInSubblock(cw, cls); ok {
			return a, cw, true
		}
	}

	return 0, 0, false
}

func (h *Heap) registerSubblock(cls class, controlWord uintptr) {
	h.registryMu.Lock()
	h.registry[cls] = append(h.registry[cls], controlWord)
	h.registryMu.Unlock()
}

// carveFixedSubblock promotes the next packed slot of a per-class "open
// block" into a new fixed-size subblock, growing a fresh BlockSize-aligned
// block whenever the current one has no room left (spec.md §4.6's
// "pre-carve fixed-size subblocks" and §4.4's allocation block machinery).
//
// Subblocks of a given class are packed back-to-back from a block's tail
// word downward, exactly as region.go's locate() walks them: the first
// subblock's control word is the block's own tail (tailAddr(blockBase)),
// and each subsequent one's control word sits immediately below the
// previous subblock's reserved span. A fresh block is requested once the
// next subblock would no longer fit above the block's floor.
func (h *Heap) carveFixedSubblock(cls class) (uintptr, uintptr, error) {
	info := fixedInfo(cls)

	h.fixedMu.Lock()
	defer h.fixedMu.Unlock()

	cur := h.fixedCursors[cls]

	if cur.blockBase == 0 || cur.nextTop < cur.blockBase+(info.subblockSize-8) {
		blockBase, err := h.carveAlignedBlock()
		if err != nil {
			return 0, 0, err
		}

		cur = fixedCursor{blockBase: blockBase, nextTop: tailAddr(blockBase)}
	}

	controlWord := cur.nextTop
	initFixedSubblock(controlWord, cls)
	h.registerSubblock(cls, controlWord)

	subblockFloor := controlWord - (info.subblockSize - 8)
	h.fixedCursors[cls] = fixedCursor{blockBase: cur.blockBase, nextTop: subblockFloor - 8}

	a, ok := allocateInSubblock(controlWord, cls)
	if !ok {
		return 0, 0, errors.Corruption("freshly carved subblock reported full", controlWord)
	}

	return a, controlWord, nil
}

// carveAlignedBlock hands back a fresh, genuinely BlockSize-aligned,
// BlockSize-long span for packing fixed-size subblocks into. The variable
// block's interval list tracks byte-granular spans, not block-aligned ones,
// so this over-requests by BlockAlignment-1 and aligns up within the
// result, the same unreclaimed-slack technique allocateVariablePath uses
// for alignment > 8 (see DESIGN.md).
func (h *Heap) carveAlignedBlock() (uintptr, error) {
	const reqSize = uintptr(BlockSize) + BlockAlignment - 1

	addr, ok, err := h.tryZonesVariable(reqSize)
	if err != nil {
		return 0, err
	}

	if !ok {
		zoneBase, err := h.growZone(reqSize)
		if err != nil {
			return 0, err
		}

		addr, ok, err = allocateVariable(zoneBase, reqSize)
		if err != nil {
			return 0, err
		}

		if !ok {
			return 0, errors.OutOfMemory(reqSize)
		}
	}

	return alignUpAddr(addr, BlockAlignment), nil
}

func (h *Heap) tryZonesVariable(size uintptr) (uintptr, bool, error) {
	h.zonesMu.RLock()
	zones := append([]uintptr(nil), h.zones...)
	h.zonesMu.RUnlock()

	for _, z := range zones {
		addr, ok, err := allocateVariable(z, size)
		if err != nil {
			return 0, false, err
		}

		if ok {
			return addr, true, nil
		}
	}

	return 0, false, nil
}

// allocateVariablePath handles both genuine variable-size requests and any
// fixed-size request whose alignment exceeds 8: it over-requests by
// alignment so it can hand back an aligned interior address. The unaligned
// prefix is never separately reclaimed, a documented simplification (see
// DESIGN.md) since spec.md does not define sub-interval alignment
// bookkeeping.
func (h *Heap) allocateVariablePath(handle *Handle, size, alignment uintptr) (uintptr, error) {
	reqSize := size
	if alignment > 8 {
		reqSize = size + alignment
	}

	addr, ok, err := h.tryZonesVariable(reqSize)
	if err != nil {
		return 0, err
	}

	if !ok {
		zoneBase, err := h.growZone(reqSize)
		if err != nil {
			return 0, err
		}

		addr, ok, err = allocateVariable(zoneBase, reqSize)
		if err != nil {
			return 0, err
		}

		if !ok {
			return 0, errors.OutOfMemory(size)
		}
	}

	handle.predictor.record(size)

	if alignment > 8 {
		return alignUpAddr(addr, alignment), nil
	}

	return addr, nil
}

func alignUpAddr(addr, alignment uintptr) uintptr {
	return (addr + alignment - 1) &^ (alignment - 1)
}

func (h *Heap) free(handle *Handle, addr uintptr) (err error) {
	defer h.recoverCorruption(&err)

	if z, zerr := h.zeroSentinel(); zerr == nil && addr == z {
		return nil
	}

	loc, lerr := locate(addr)
	if lerr != nil {
		panic(lerr)
	}

	if isFixed(loc.cls) {
		if ferr := freeFixed(loc, addr); ferr != nil {
			info := fixedInfo(loc.cls)
			if handle.hoard.push(info.stride, addr) {
				return nil
			}

			// Hoard full or slot too small: keep retrying the bitmap CAS.
			for ferr != nil {
				ferr = freeFixed(loc, addr)
			}
		}

		handle.cache.touch(loc.controlWord, loc.cls)

		return nil
	}

	varBase := loc.controlWord - (BlockSize - 8)

	return freeVariable(varBase, addr)
}

// recoverCorruption implements spec.md §7's "abort (via panic carrying a
// *errors.HeapError with Category: CategoryCorruption)" policy: corruption
// detected anywhere below this call is fatal and never silently swallowed,
// but NewHeap callers embedding this allocator in a larger process may
// still want a typed error rather than a raw panic at the outermost
// boundary, so the panic is converted back to an error one frame up.
func (h *Heap) recoverCorruption(err *error) {
	r := recover()
	if r == nil {
		return
	}

	if he, ok := r.(*errors.HeapError); ok && he.Category == errors.CategoryCorruption {
		*err = he
		return
	}

	panic(r)
}

func (h *Heap) reallocate(handle *Handle, addr, newSize uintptr) (uintptr, error) {
	if addr == 0 {
		return handle.Allocate(newSize, 8)
	}

	if newSize == 0 {
		if err := handle.Free(addr); err != nil {
			return 0, err
		}

		return h.zeroSentinel()
	}

	newAddr, err := handle.Allocate(newSize, 8)
	if err != nil {
		return 0, err
	}

	copySize := currentSize(addr)
	if newSize < copySize {
		copySize = newSize
	}

	copyBytes(newAddr, addr, copySize)

	if ferr := handle.Free(addr); ferr != nil {
		return 0, ferr
	}

	return newAddr, nil
}
