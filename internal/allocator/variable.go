package allocator

import "github.com/heapkit/btmalloc/internal/errors"

// A variable-size block's 62 slots (spec.md §4.5) hold a sorted list of
// 8-aligned boundaries within the zone it owns. Slot 61 is reserved as the
// zone-end pointer (spec.md §9's first open question, resolved to (b)).
// Slots 0..60 mark active interval edges; bit k of the bitmap tells whether
// the interval ending at boundary k is free (0) or used (1). An inactive
// (not yet promoted) slot holds the literal value 0, which can never be a
// valid encoded address, so "slot word == 0" doubles as the occupancy test.
//
// The inline small-payload slot encoding spec.md §3 describes (lowest 3
// bits 001-111 meaning an in-slot 1-7 byte payload) is not reachable from
// Allocate: spec.md §4.4 routes every request of size <= 8 to a fixed
// class before the variable path is ever consulted, so no variable-block
// interval is ever smaller than a handful of bytes in practice. This
// implementation does not populate that encoding; see DESIGN.md.

const (
	variableSlots    = 62
	zoneEndSlotIndex = variableSlots - 1
	maxBoundarySlots = zoneEndSlotIndex // slots 0..60 are usable interval edges
)

func slotAddr(blockBase uintptr, index int) uintptr {
	return blockBase + uintptr(index)*8
}

// zoneDataStart is the first byte of allocatable space in a zone: the
// variable block occupies one full 512-byte block of the zone itself.
func zoneDataStart(varBlockBase uintptr) uintptr {
	return varBlockBase + BlockSize
}

func zoneEnd(varBlockBase uintptr) uintptr {
	return decode(loadWord(slotAddr(varBlockBase, zoneEndSlotIndex)))
}

// initVariableBlock writes a fresh variable block describing a single free
// interval spanning the whole zone. Called on memory not yet visible to any
// other goroutine.
func initVariableBlock(varBlockBase, zoneLen uintptr) {
	end := varBlockBase + zoneLen
	storeWord(slotAddr(varBlockBase, 0), encode(end))
	storeWord(slotAddr(varBlockBase, zoneEndSlotIndex), encode(end))
	storeWord(tailAddr(varBlockBase), 0) // bit0 clear: the sole interval is free
}

// activeBoundaryCount scans slots 0..60 and returns the count of promoted
// (non-zero) boundary slots.
func activeBoundaryCount(varBlockBase uintptr) int {
	n := 0

	for n < maxBoundarySlots && loadWord(slotAddr(varBlockBase, n)) != 0 {
		n++
	}

	return n
}

// allocateVariable implements spec.md §4.5 Allocate(size): scan for a free
// interval of sufficient length, then either consume it exactly or split it,
// all performed while holding the imaginary 63rd slot (spec.md §4.6, §5).
// Returns ok=false (no error) when the block has no room, so the caller
// tries the next zone or grows a new one.
func allocateVariable(varBlockBase, size uintptr) (uintptr, bool, error) {
	size = (size + 7) &^ 7 // keep every interval boundary 8-aligned

	controlAddr := tailAddr(varBlockBase)

	locked, ok := lockVariable(controlAddr)
	if !ok {
		return 0, false, errors.Contention("variable-allocate-lock", maxCASRetries)
	}

	defer unlockVariable(controlAddr, locked)

	bitmap := locked &^ variableLockBit
	n := activeBoundaryCount(varBlockBase)
	prev := zoneDataStart(varBlockBase)

	for k := 0; k < n; k++ {
		edge := decode(loadWord(slotAddr(varBlockBase, k)))
		used := bitmap&(word(1)<<uint(k)) != 0
		length := edge - prev

		if !used && length >= size {
			addr := prev

			if length == size {
				bitmap |= word(1) << uint(k)
			} else {
				if n >= maxBoundarySlots {
					return 0, false, nil // no room to split; fail over
				}

				newEdge := prev + size
				for j := n; j > k; j-- {
					storeWord(slotAddr(varBlockBase, j), loadWord(slotAddr(varBlockBase, j-1)))
					bitmap = moveBit(bitmap, j-1, j)
				}

				storeWord(slotAddr(varBlockBase, k), encode(newEdge))
				bitmap |= word(1) << uint(k)
			}

			storeWord(controlAddr, bitmap|variableLockBit)

			return addr, true, nil
		}

		prev = edge
	}

	return 0, false, nil
}

// freeVariable implements spec.md §4.5 Free: locate the interval owning p,
// mark it free, and coalesce with free neighbours to re-establish the
// invariant that adjacent free intervals never exist as separate slots.
func freeVariable(varBlockBase, p uintptr) error {
	controlAddr := tailAddr(varBlockBase)

	locked, ok := lockVariable(controlAddr)
	if !ok {
		return errors.Contention("variable-free-lock", maxCASRetries)
	}

	defer unlockVariable(controlAddr, locked)

	bitmap := locked &^ variableLockBit
	n := activeBoundaryCount(varBlockBase)
	prev := zoneDataStart(varBlockBase)
	k := -1

	for i := 0; i < n; i++ {
		edge := decode(loadWord(slotAddr(varBlockBase, i)))
		if p >= prev && p < edge {
			k = i
			break
		}

		prev = edge
	}

	if k == -1 {
		return errors.Corruption("free address not owned by any interval in its variable block", p)
	}

	bitmap &^= word(1) << uint(k)

	// Coalesce with the right neighbour first: removing boundary k merges
	// interval k into interval k+1, which shifts down to index k, so k still
	// names the merged interval for the left-neighbour check below.
	if k+1 < n && bitmap&(word(1)<<uint(k+1)) == 0 {
		bitmap = removeBoundary(varBlockBase, bitmap, n, k)
		n--
	}

	if k >= 0 && k-1 >= 0 && bitmap&(word(1)<<uint(k-1)) == 0 {
		bitmap = removeBoundary(varBlockBase, bitmap, n, k-1)
	}

	storeWord(controlAddr, bitmap|variableLockBit)

	return nil
}

// removeBoundary deletes boundary slot "at" (merging its interval into the
// next one up) by shifting everything above it down by one slot, returning
// the updated bitmap. Caller holds the structural lock.
func removeBoundary(varBlockBase uintptr, bitmap word, n, at int) word {
	for j := at; j < n-1; j++ {
		storeWord(slotAddr(varBlockBase, j), loadWord(slotAddr(varBlockBase, j+1)))
		bitmap = moveBit(bitmap, j+1, j)
	}

	storeWord(slotAddr(varBlockBase, n-1), 0)
	bitmap &^= word(1) << uint(n-1)

	return bitmap
}

// moveBit copies bitmap bit src into bit dst, clearing src, and returns the
// result. Used while shifting the boundary slot array.
func moveBit(bitmap word, src, dst int) word {
	bit := (bitmap >> uint(src)) & 1
	bitmap &^= word(1) << uint(src)
	bitmap &^= word(1) << uint(dst)
	bitmap |= bit << uint(dst)

	return bitmap
}
