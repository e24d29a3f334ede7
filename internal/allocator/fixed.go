package allocator

import "github.com/heapkit/btmalloc/internal/errors"

// bitIndexFor computes the bit index i for address p within loc's subblock,
// per spec.md §4.4. For fixed-1 the tag occupies the single low bit of the
// shared 8-byte word; for fixed-{2,4,8} the tag width is the class's
// tagBits (class.go resolves the "+1/+2/+3" prose to the value consistent
// with the §3 bitmap-width table).
func bitIndexFor(loc located, p uintptr) int {
	info := fixedInfo(loc.cls)
	byteOffset := p - loc.subblockUser

	return int(info.tagBits) + int(byteOffset/info.stride)
}

// slotAddrFor is the inverse of bitIndexFor: the user address of slot index
// i (i already includes the tag-width offset) within a subblock starting at
// userStart.
func slotAddrFor(cls class, userStart uintptr, i int) uintptr {
	info := fixedInfo(cls)
	return userStart + uintptr(i-int(info.tagBits))*info.stride
}

// freeFixed implements spec.md §4.4 Free: clear the bit for p's slot via
// CAS, retrying under contention before deferring to the caller's hoard.
func freeFixed(loc located, p uintptr) error {
	i := bitIndexFor(loc, p)
	mask := word(1) << uint(i)

	ok := casRetry(func() bool {
		cur := loadWord(loc.controlWord)
		if cur&mask == 0 {
			// Double free: the spec leaves this undefined: may abort.
			return true
		}

		return casWord(loc.controlWord, cur, cur&^mask)
	})

	if !ok {
		return errors.Contention("fixed-free", maxCASRetries)
	}

	return nil
}

// allocateInSubblock attempts spec.md §4.4 Allocate on one already-existing
// subblock: find the lowest zero bit at or above the class's tag offset and
// CAS it set. Returns ok=false (not an error) if the subblock is full, so
// the caller can try the next candidate.
func allocateInSubblock(controlWord uintptr, cls class) (uintptr, bool) {
	info := fixedInfo(cls)

	var addr uintptr

	ok := casRetry(func() bool {
		cur := loadWord(controlWord)

		bit := -1
		for i := int(info.tagBits); i < int(info.tagBits)+info.slots; i++ {
			if cur&(word(1)<<uint(i)) == 0 {
				bit = i
				break
			}
		}

		if bit == -1 {
			return true // full; signalled to the caller via addr==0 below
		}

		next := cur | (word(1) << uint(bit))
		if !casWord(controlWord, cur, next) {
			return false
		}

		userStart := subblockUserStart(controlWord, cls)
		addr = slotAddrFor(cls, userStart, bit)

		return true
	})

	return addr, ok && addr != 0
}

// initFixedSubblock writes the initial control word for a freshly carved
// subblock: every slot free, only the class tag set. Called on memory not
// yet visible to any other goroutine, so a plain store suffices.
func initFixedSubblock(controlWord uintptr, cls class) {
	var tag word

	switch cls {
	case classFixed1:
		tag = 1
	case classFixed8:
		tag = 2
	case classFixed4:
		tag = 4
	case classFixed2:
		tag = 12
	}

	storeWord(controlWord, tag)
}
