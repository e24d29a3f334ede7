package allocator

import (
	"testing"
	"unsafe"
)

func hoardTestAddrs(n int, stride uintptr) (uintptr, []byte) {
	raw := make([]byte, uintptr(n)*stride+stride)
	base := uintptr(unsafe.Pointer(&raw[0]))

	return base, raw
}

func TestHoardPushPopRoundTrip(t *testing.T) {
	base, _ := hoardTestAddrs(4, 8)
	h := newHoard(1 << 20)

	a := base
	b := base + 8

	if !h.push(8, a) {
		t.Fatal("push(8, a) failed on an empty hoard")
	}

	if !h.push(8, b) {
		t.Fatal("push(8, b) failed")
	}

	got, ok := h.pop(8)
	if !ok {
		t.Fatal("pop(8) found nothing after two pushes")
	}

	if got != b {
		t.Fatalf("pop(8) = 0x%x, want the most recently pushed 0x%x (LIFO)", got, b)
	}

	got, ok = h.pop(8)
	if !ok || got != a {
		t.Fatalf("second pop(8) = (0x%x, %v), want (0x%x, true)", got, ok, a)
	}

	if _, ok := h.pop(8); ok {
		t.Fatal("pop(8) should find nothing once the bucket is drained")
	}
}

func TestHoardPopMissingSizeFails(t *testing.T) {
	h := newHoard(1 << 20)

	if _, ok := h.pop(16); ok {
		t.Fatal("pop on an untouched size bucket should fail")
	}
}

func TestHoardRejectsTooSmallSlot(t *testing.T) {
	base, _ := hoardTestAddrs(1, 8)
	h := newHoard(1 << 20)

	if minHoardableSize <= 1 {
		t.Skip("minHoardableSize is not large enough on this platform to exercise the rejection path")
	}

	if h.push(1, base) {
		t.Fatal("push should reject a slot too small to carry an intrusive next pointer")
	}
}

func TestHoardRespectsByteCap(t *testing.T) {
	base, _ := hoardTestAddrs(4, 8)
	h := newHoard(8)

	if !h.push(8, base) {
		t.Fatal("push should succeed up to the byte cap")
	}

	if h.push(8, base+8) {
		t.Fatal("push should fail once the hoard is at its byte cap")
	}
}

func TestHoardDistinctSizeBucketsAreIndependent(t *testing.T) {
	base, _ := hoardTestAddrs(4, 16)
	h := newHoard(1 << 20)

	h.push(8, base)
	h.push(16, base+8)

	if _, ok := h.pop(8); !ok {
		t.Fatal("pop(8) should not be affected by a push(16, ...)")
	}

	if _, ok := h.pop(16); !ok {
		t.Fatal("pop(16) should still find its own bucket's entry")
	}
}
