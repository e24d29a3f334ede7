package allocator

// Zone growth and the master-block topology, spec.md §4.6. A master block
// reuses the variable block's physical layout (62 slots + tail word) but
// gives every slot simpler occupied/empty semantics: a slot either holds
// the encoded address of a child (another master block or a zone's
// variable block) or is empty (word 0). masterFlagBit on a child's own
// tail word tells a parent whether that child is itself a master block or
// a zone.
//
// Master-block installation (growZone, installChildInMaster) follows
// spec.md's CAS discipline exactly: a free slot is claimed via bitmap CAS,
// then its contents are written, matching the "install via CAS" wording of
// §4.6. For the *read* path (finding a zone to allocate from), this
// implementation keeps a flat, mutex-guarded registry of zone bases
// alongside the master-block tree rather than re-walking the DAG on every
// allocate call: spec.md does not require any particular traversal order
// for master blocks (they are read-only, with "no ordering" across blocks
// per §5), so a cached enumeration is a legitimate optimization of the same
// topology rather than a different one. See DESIGN.md.

func initMasterBlock(base uintptr) {
	for i := 0; i < variableSlots; i++ {
		storeWord(slotAddr(base, i), 0)
	}

	storeWord(tailAddr(base), masterFlagBit)
}

func freeMasterSlot(bitmap word) int {
	for i := 0; i < variableSlots; i++ {
		if bitmap&(word(1)<<uint(i)) == 0 {
			return i
		}
	}

	return -1
}

// installChildInMaster claims the next free slot in the master block at
// masterBase via CAS and writes childBase into it. Returns false if the
// block is full (caller must grow a new master block).
func installChildInMaster(masterBase, childBase uintptr) bool {
	controlAddr := tailAddr(masterBase)

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		cur := loadWord(controlAddr)

		bit := freeMasterSlot(cur &^ masterFlagBit)
		if bit == -1 {
			return false
		}

		next := cur | (word(1) << uint(bit))
		if casWord(controlAddr, cur, next) {
			storeWord(slotAddr(masterBase, bit), encode(childBase))
			return true
		}
	}

	return false
}

// defaultZoneBlocks is the number of 512-byte blocks a freshly grown zone
// spans absent any better hint from the predictor (spec.md §4.8: "zone
// growth uses the median as the target subdivision").
const defaultZoneBlocks = 128 // 64 KiB

// zoneBlocksFor sizes a new zone to comfortably satisfy size, using the
// predictor's median as a hint per spec.md §4.8 and rounding up to whole
// 512-byte blocks.
func zoneBlocksFor(size uintptr, medianHint uintptr) uintptr {
	need := size + BlockSize // zone's own variable block plus the request
	blocks := (need + BlockSize - 1) / BlockSize

	hintBlocks := uintptr(defaultZoneBlocks)
	if medianHint > 0 {
		hintBlocks = (medianHint*4 + BlockSize - 1) / BlockSize
	}

	if hintBlocks > blocks {
		blocks = hintBlocks
	}

	return blocks
}

// growZone reserves a new zone from cfg.Reserver, initializes its first
// block as a variable-size allocation block owning the whole zone, and
// installs its base into the master-block tree. Returns the new zone's
// variable-block base.
func (h *Heap) growZone(minSize uintptr) (uintptr, error) {
	blocks := zoneBlocksFor(minSize, h.medianHint())
	length := blocks * BlockSize

	base, actualLen, err := h.cfg.Reserver.Reserve(length, BlockAlignment)
	if err != nil {
		return 0, err
	}

	initVariableBlock(base, actualLen)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.masterRoot == 0 {
		rootBase, _, err := h.cfg.Reserver.Reserve(BlockSize, BlockAlignment)
		if err != nil {
			return 0, err
		}

		initMasterBlock(rootBase)
		h.masterRoot = rootBase
	}

	if !installChildInMaster(h.masterRoot, base) {
		newRoot, _, err := h.cfg.Reserver.Reserve(BlockSize, BlockAlignment)
		if err != nil {
			return 0, err
		}

		initMasterBlock(newRoot)
		installChildInMaster(newRoot, h.masterRoot)
		installChildInMaster(newRoot, base)
		h.masterRoot = newRoot
	}

	h.zonesMu.Lock()
	h.zones = append(h.zones, base)
	h.zonesMu.Unlock()

	if h.logger != nil {
		h.logger.Debug("grew zone base=0x%x blocks=%d", base, blocks)
	}

	return base, nil
}
