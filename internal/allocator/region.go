package allocator

import (
	"sync/atomic"
	"unsafe"

	"github.com/heapkit/btmalloc/internal/errors"
)

// blockBoundary rounds p down to the start of its enclosing 512-byte block,
// per spec.md §4.3 step 1 (`base = p & ~511`).
func blockBoundary(p uintptr) uintptr {
	return p &^ (BlockSize - 1)
}

// tailAddr returns the address of a block's final 8-byte control word.
func tailAddr(blockBase uintptr) uintptr {
	return blockBase + BlockSize - 8
}

func loadWord(addr uintptr) word {
	return word(atomic.LoadUint64((*uint64)(unsafe.Pointer(addr))))
}

func casWord(addr uintptr, old, new word) bool {
	return atomic.CompareAndSwapUint64((*uint64)(unsafe.Pointer(addr)), uint64(old), uint64(new))
}

func storeWord(addr uintptr, w word) {
	atomic.StoreUint64((*uint64)(unsafe.Pointer(addr)), uint64(w))
}

// located is the result of the region navigator: the control word governing
// a user address, its class, and — for fixed classes — the address of the
// subblock's user region.
type located struct {
	controlWord uintptr
	cls         class
	// subblockUser is the start of the fixed-size subblock's user region.
	// Only meaningful when cls is a fixed class.
	subblockUser uintptr
}

// locate implements spec.md §4.3: recover the owning control word for a
// user address p with no separate index, by inspecting the tail word at the
// end of p's own 512-byte block and, for fixed classes, walking backwards
// through packed subblocks until one whose user region contains p is
// found. The tail word of the preceding block is not consulted.
func locate(p uintptr) (located, error) {
	base := blockBoundary(p)
	tail := loadWord(tailAddr(base))

	var blockBase uintptr
	if tail&0xFF != 0 {
		// Step 2: the owning 512-byte block starts at base itself.
		blockBase = base
	} else {
		// Step 3: tail holds the base of the allocation block that owns p,
		// stored as a raw 512-aligned address (always naturally tag-zero,
		// so no decode() is needed to recover it — see DESIGN.md).
		blockBase = uintptr(tail)
		if blockBase == 0 || blockBase > base {
			return located{}, errors.Corruption("tail-word indirection points outside the heap", p)
		}
	}

	top := loadWord(tailAddr(blockBase))
	cls := classify(top)

	if !isFixed(cls) {
		return located{controlWord: tailAddr(blockBase), cls: cls}, nil
	}

	// Step 4: walk backwards through packed fixed-size subblocks.
	cwAddr := tailAddr(blockBase)
	floor := blockBase

	for {
		w := loadWord(cwAddr)
		c := classify(w)

		if !isFixed(c) {
			return located{}, errors.Corruption("subblock walk reached a non-fixed control word", p)
		}

		info := fixedInfo(c)
		userStart := subblockUserStart(cwAddr, c)
		userEnd := userStart + uintptr(info.slots)*info.stride

		// subblockFloor is the lowest address this subblock occupies: for
		// fixed-1 that's cwAddr itself (the whole 8-byte word is the
		// block), for every other class it coincides with userStart.
		subblockFloor := cwAddr - (info.subblockSize - 8)

		if subblockFloor < floor {
			return located{}, errors.Corruption("subblock walk underran its block", p)
		}

		if p >= userStart && p < userEnd {
			return located{controlWord: cwAddr, cls: c, subblockUser: userStart}, nil
		}

		if subblockFloor == floor {
			return located{}, errors.Corruption("address not owned by any subblock in its block", p)
		}

		// The next subblock packed below this one starts exactly where
		// this one's reserved span ends.
		cwAddr = subblockFloor - 8
		if cwAddr < floor {
			return located{}, errors.Corruption("subblock walk underran its block", p)
		}
	}
}
