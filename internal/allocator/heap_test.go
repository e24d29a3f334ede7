package allocator

import (
	"errors"
	"sync"
	"testing"
	"unsafe"

	allocerrors "github.com/heapkit/btmalloc/internal/errors"
	"github.com/heapkit/btmalloc/internal/osmem"
	"go.uber.org/mock/gomock"
)

func addrToPtr(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr) //nolint:govet // deliberate uintptr->pointer conversion for test memory pokes
}

func newTestHeap(t *testing.T, opts ...Option) *Heap {
	t.Helper()

	h, err := NewHeap(opts...)
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}

	return h
}

func TestHeapAllocateZeroSizeReturnsStableSentinel(t *testing.T) {
	h := newTestHeap(t)

	a, err := h.Allocate(0, 0)
	if err != nil {
		t.Fatalf("Allocate(0, 0): %v", err)
	}

	b, err := h.Allocate(0, 0)
	if err != nil {
		t.Fatalf("Allocate(0, 0) second call: %v", err)
	}

	if a != b || a == 0 {
		t.Fatalf("zero-size sentinel not stable: a=0x%x b=0x%x", a, b)
	}

	if err := h.Free(a); err != nil {
		t.Fatalf("freeing the zero-size sentinel should be a no-op: %v", err)
	}
}

func TestHeapAllocateRejectsNonPowerOfTwoAlignment(t *testing.T) {
	h := newTestHeap(t)

	if _, err := h.Allocate(16, 3); err == nil {
		t.Fatal("expected an error for a non-power-of-two alignment")
	}
}

// TestHeapFixed8AllocateFree mirrors spec.md §8 scenario 3: a fixed-8
// allocation followed by a matching free must round-trip cleanly through a
// fresh Handle.
func TestHeapFixed8AllocateFree(t *testing.T) {
	h := newTestHeap(t)

	addr, err := h.Allocate(8, 8)
	if err != nil {
		t.Fatalf("Allocate(8, 8): %v", err)
	}

	if addr == 0 {
		t.Fatal("Allocate(8, 8) returned a null address")
	}

	if err := h.Free(addr); err != nil {
		t.Fatalf("Free: %v", err)
	}
}

func TestHeapManySmallAllocationsAreDistinct(t *testing.T) {
	h := newTestHeap(t)
	handle := h.Bind()

	seen := make(map[uintptr]bool)

	for i := 0; i < 500; i++ {
		addr, err := handle.Allocate(8, 8)
		if err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}

		if seen[addr] {
			t.Fatalf("Allocate returned duplicate address 0x%x on call #%d", addr, i)
		}

		seen[addr] = true
	}
}

// TestHeapRegionNavigatorAcrossLargeAllocation mirrors spec.md §8 scenario 5:
// a 600-byte variable allocation must be freeable purely by address, via the
// region navigator, with no separate free-list bookkeeping visible to the
// caller.
func TestHeapRegionNavigatorAcrossLargeAllocation(t *testing.T) {
	h := newTestHeap(t)

	addr, err := h.Allocate(600, 8)
	if err != nil {
		t.Fatalf("Allocate(600, 8): %v", err)
	}

	if err := h.Free(addr); err != nil {
		t.Fatalf("Free: %v", err)
	}
}

func TestHeapReallocateGrowsAndPreservesPrefix(t *testing.T) {
	h := newTestHeap(t)
	handle := h.Bind()

	addr, err := handle.Allocate(8, 8)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	for i := 0; i < 8; i++ {
		*(*byte)(addrToPtr(addr + uintptr(i))) = byte(i + 1)
	}

	grown, err := handle.Reallocate(addr, 600)
	if err != nil {
		t.Fatalf("Reallocate: %v", err)
	}

	for i := 0; i < 8; i++ {
		got := *(*byte)(addrToPtr(grown + uintptr(i)))
		if got != byte(i+1) {
			t.Fatalf("byte %d after grow = %d, want %d", i, got, i+1)
		}
	}
}

func TestHeapReallocateToZeroFreesAndReturnsSentinel(t *testing.T) {
	h := newTestHeap(t)
	handle := h.Bind()

	addr, err := handle.Allocate(16, 8)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	sentinel, err := handle.Reallocate(addr, 0)
	if err != nil {
		t.Fatalf("Reallocate to zero: %v", err)
	}

	zero, err := h.zeroSentinel()
	if err != nil {
		t.Fatalf("zeroSentinel: %v", err)
	}

	if sentinel != zero {
		t.Fatalf("Reallocate(addr, 0) = 0x%x, want the zero sentinel 0x%x", sentinel, zero)
	}
}

func TestHeapAllocateOverAlignedRequestIsAligned(t *testing.T) {
	h := newTestHeap(t)

	const alignment = 512 // the largest alignment Allocate accepts (BlockAlignment)

	addr, err := h.Allocate(32, alignment)
	if err != nil {
		t.Fatalf("Allocate(32, 512): %v", err)
	}

	if addr%alignment != 0 {
		t.Fatalf("addr 0x%x is not %d-byte aligned", addr, alignment)
	}
}

// TestHeapConcurrentAllocateFreeContendsCleanly: many goroutines sharing one
// Heap (each with its own Handle) allocate and free fixed-8 slots
// concurrently, and every Allocate and Free call must succeed.
func TestHeapConcurrentAllocateFreeContendsCleanly(t *testing.T) {
	h := newTestHeap(t)

	const goroutines = 16
	const perGoroutine = 200

	var wg sync.WaitGroup
	errCh := make(chan error, goroutines)

	for g := 0; g < goroutines; g++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			handle := h.Bind()

			for i := 0; i < perGoroutine; i++ {
				addr, err := handle.Allocate(8, 8)
				if err != nil {
					errCh <- err
					return
				}

				if err := handle.Free(addr); err != nil {
					errCh <- err
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Fatalf("concurrent allocate/free: %v", err)
	}
}

func TestHeapOutOfMemorySurfacesFromReserver(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mock := osmem.NewMockReserver(ctrl)
	mock.EXPECT().Reserve(gomock.Any(), gomock.Any()).Return(uintptr(0), uintptr(0), allocerrors.OutOfMemory(1024)).AnyTimes()

	h := newTestHeap(t, WithReserver(mock))

	if _, err := h.Allocate(1024, 8); err == nil {
		t.Fatal("expected Allocate to surface the Reserver's out-of-memory error")
	}
}

func TestHeapFreeUnknownAddressReportsCorruption(t *testing.T) {
	h := newTestHeap(t)

	base, raw := testAlignedBlocks(1)
	_ = raw
	storeWord(tailAddr(base), 0) // a block that classifies as "variable" but owns nothing

	err := h.Free(base + 64)
	if err == nil {
		t.Fatal("expected Free on a bogus address to report an error")
	}

	var herr *allocerrors.HeapError
	if !errors.As(err, &herr) {
		t.Fatalf("expected a *errors.HeapError, got %T", err)
	}

	if herr.Category != allocerrors.CategoryCorruption {
		t.Fatalf("herr.Category = %v, want CategoryCorruption", herr.Category)
	}
}
