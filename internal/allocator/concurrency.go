package allocator

// Concurrency primitives shared by the fixed and variable allocation paths,
// per spec.md §5: one-word CAS is the only synchronization primitive on the
// hot path.

// maxCASRetries bounds the "try harder" busy-retry loop spec.md §5 allows
// for free() once the hoard is full. This keeps the allocator lock-free in
// the technical sense (some thread always makes progress) without looping
// forever under pathological contention.
const maxCASRetries = 64

// variableLockBit is the "imaginary 63rd slot" (spec.md §4.6, §5): a
// reserved bit above the 62 real interval bits, used as a per-block lock
// held during structural mutations (interval split, insert, coalesce) of a
// variable-size block's slot list. Its own CAS discipline is identical to
// any other bit.
const variableLockBit = word(1) << 62

// masterFlagBit distinguishes a master block from a plain variable
// allocation block when read from a referenced block's tail word (spec.md
// §3: "the lowest bit of a referenced block's tail word ... disambiguates").
// Both kinds otherwise classify identically under classify() (lowest byte
// zero, i.e. classVariable), so the disambiguating bit must live outside
// the byte the classifier inspects. Bits 0..61 are the master block's slot
// bits and bit 62 is variableLockBit, so the flag uses bit 63. Resolves an
// underspecified detail of spec.md §3 — see DESIGN.md.
const masterFlagBit = word(1) << 63

func isMasterTail(tail word) bool {
	return tail&masterFlagBit != 0
}

// casRetry runs attempt up to maxCASRetries times, returning as soon as it
// reports success. Used by free() paths per spec.md §5's "bounded retry in
// the try-harder phase".
func casRetry(attempt func() bool) bool {
	for i := 0; i < maxCASRetries; i++ {
		if attempt() {
			return true
		}
	}

	return false
}

// lockVariable acquires the imaginary 63rd slot via CAS, retrying under
// contention, and returns the locked bitmap value.
func lockVariable(addr uintptr) (word, bool) {
	var locked word

	ok := casRetry(func() bool {
		cur := loadWord(addr)
		if cur&variableLockBit != 0 {
			return false
		}

		next := cur | variableLockBit
		if casWord(addr, cur, next) {
			locked = next
			return true
		}

		return false
	})

	return locked, ok
}

func unlockVariable(addr uintptr, locked word) {
	for {
		cur := loadWord(addr)
		next := cur &^ variableLockBit
		if casWord(addr, cur, next) {
			return
		}
	}
}
