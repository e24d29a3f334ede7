package allocator

// class names one of the control-word tag classes from spec.md §3/§4.2.
type class int

const (
	classFixed1 class = iota
	classFixed8
	classFixed4
	classFixed2
	classVariable
)

func (c class) String() string {
	switch c {
	case classFixed1:
		return "fixed-1"
	case classFixed8:
		return "fixed-8"
	case classFixed4:
		return "fixed-4"
	case classFixed2:
		return "fixed-2"
	case classVariable:
		return "variable"
	default:
		return "unknown"
	}
}

// fixedClassInfo is the shift/offset arithmetic table from spec.md §4.2,
// cross-checked against the fixedsize_* arrays in original_source/btmalloc.c.
type fixedClassInfo struct {
	class class

	// stride is the byte width of one user slot.
	stride uintptr

	// slots is the bitmap width: the number of usable slot bits.
	slots int

	// userBytes is stride*slots, the user-addressable span of one subblock.
	userBytes uintptr

	// tagBits is the number of low bits the classifier consumes as its tag;
	// slot 0 starts at this bit position. Resolves the apparent "+1/+2/+3"
	// inconsistency in spec.md §4.4's prose in favour of the value that is
	// internally consistent with the §3 bitmap-width table and the §4.2
	// classifier masks (see DESIGN.md).
	tagBits uint

	// subblockSize is the total span (user bytes + trailing control word) a
	// subblock of this class occupies when packed into a 512-byte block,
	// matching original_source/btmalloc.c's fixedsize_block_size table.
	subblockSize uintptr
}

var fixedClasses = [4]fixedClassInfo{
	{class: classFixed1, stride: 1, slots: 7, userBytes: 7, tagBits: 1, subblockSize: 8},
	{class: classFixed8, stride: 8, slots: 62, userBytes: 496, tagBits: 2, subblockSize: 504},
	{class: classFixed4, stride: 4, slots: 60, userBytes: 240, tagBits: 4, subblockSize: 248},
	{class: classFixed2, stride: 2, slots: 60, userBytes: 120, tagBits: 4, subblockSize: 128},
}

// subblockUserStart returns the start of a subblock's user-addressable
// region given its control word's address.
//
// Every fixed class except fixed-1 reserves userBytes immediately below the
// control word for user data, so userStart is simply controlWord-userBytes.
// Fixed-1 is the exception spec.md §3 calls out explicitly: "the entire
// 8-byte tail word is the block" — there is no separate user region at all.
// The word's low byte (as a 64-bit value) carries the tag bit and the seven
// occupancy bits classify()/bitIndexFor() inspect; the other seven bytes of
// that same word are the user-addressable bytes. Which physical byte is the
// "low byte" of the word's value depends on host endianness (see word.go's
// hostLittleEndian): on little-endian hosts it's the lowest address, so user
// data occupies controlWord+1..controlWord+7; on big-endian hosts it's the
// highest address, so user data occupies controlWord..controlWord+6.
func subblockUserStart(controlWord uintptr, c class) uintptr {
	if c == classFixed1 {
		if hostLittleEndian {
			return controlWord + 1
		}

		return controlWord
	}

	return controlWord - fixedInfo(c).userBytes
}

func fixedInfo(c class) fixedClassInfo {
	for _, fc := range fixedClasses {
		if fc.class == c {
			return fc
		}
	}

	panic("allocator: fixedInfo called on a non-fixed class")
}

// classify implements spec.md §4.2: a masked-compare dispatch, evaluated in
// the documented precedence order, with no virtual dispatch per the "Dynamic
// dispatch" design note in spec.md §9.
func classify(w word) class {
	switch {
	case w&0x01 == 1:
		return classFixed1
	case w&0x03 == 2:
		return classFixed8
	case w&0x0F == 4:
		return classFixed4
	case w&0x0F == 12:
		return classFixed2
	default:
		return classVariable
	}
}

// isFixed reports whether c is one of the fixed-size classes.
func isFixed(c class) bool {
	return c != classVariable
}

// bestFixedClass returns the narrowest fixed class whose stride covers size,
// or false if no fixed class fits and the request must go to the variable
// path (spec.md §4.4 "Allocate (size ≤ stride)").
func bestFixedClass(size uintptr) (fixedClassInfo, bool) {
	best := fixedClassInfo{}
	found := false

	for _, fc := range fixedClasses {
		if size <= fc.stride && (!found || fc.stride < best.stride) {
			best = fc
			found = true
		}
	}

	return best, found
}
