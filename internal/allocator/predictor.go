package allocator

// predictor is the per-Handle bounded histogram from spec.md §4.8: 12
// entries indexed by allocation size, the first four pinned to the fixed
// strides (1/2/4/8 bytes), the rest multiples of 8. Its median sizes new
// zones; fixed-size subblock carving does not consult it.
type predictor struct {
	entries   []predictorEntry
	fuzz      int
	threshold uint64
}

type predictorEntry struct {
	size  uintptr
	count uint64
	// fixed marks a slot-class stride entry, which is never evicted by the
	// fuzz-zone promotion rule (spec.md §4.8).
	fixed bool
}

func newPredictor(fuzz int, threshold uint64) *predictor {
	entries := make([]predictorEntry, 0, PredictorSize)
	for _, s := range []uintptr{1, 2, 4, 8} {
		entries = append(entries, predictorEntry{size: s, fixed: true})
	}

	for i := 0; i < PredictorSize-4; i++ {
		entries = append(entries, predictorEntry{size: uintptr(16 + i*16)})
	}

	return &predictor{entries: entries, fuzz: fuzz, threshold: threshold}
}

// nearestIndex returns the index of the smallest tracked entry whose size
// is >= size (spec.md §4.8: "a size falling between two entries counts
// toward the larger"), or the last index if size exceeds every entry.
func (p *predictor) nearestIndex(size uintptr) int {
	for i, e := range p.entries {
		if size <= e.size {
			return i
		}
	}

	return len(p.entries) - 1
}

func (p *predictor) total() uint64 {
	var sum uint64
	for _, e := range p.entries {
		sum += e.count
	}

	return sum
}

func (p *predictor) medianIndex() int {
	target := p.total() / 2
	var prefix uint64

	for i, e := range p.entries {
		prefix += e.count
		if prefix > target {
			return i
		}
	}

	return len(p.entries) - 1
}

func (p *predictor) fuzzWindow() (int, int) {
	median := p.medianIndex()
	half := p.fuzz / 2
	lo := median - half
	hi := lo + p.fuzz - 1

	if lo < 0 {
		hi -= lo
		lo = 0
	}

	if hi >= len(p.entries) {
		shift := hi - (len(p.entries) - 1)
		hi -= shift
		lo -= shift

		if lo < 0 {
			lo = 0
		}
	}

	return lo, hi
}

func (p *predictor) inFuzzZone(idx int) bool {
	lo, hi := p.fuzzWindow()
	return idx >= lo && idx <= hi
}

// record updates the histogram on a cache miss or zone growth (spec.md
// §4.8's two update triggers), applying fuzz-zone promotion and aging.
func (p *predictor) record(size uintptr) {
	idx := p.nearestIndex(size)

	if p.entries[idx].size != size && p.inFuzzZone(idx) {
		idx = p.promote(size, idx)
	}

	p.entries[idx].count++

	if p.total() > p.threshold {
		p.age()
	}
}

// promote evicts the lowest-count entry outside the fuzz zone (never a
// fixed-size entry, never the last entry) and replaces it with a fresh
// tracked entry for size, folding the evicted count into its right
// neighbour and seeding the new entry from half of that neighbour's count —
// spec.md §4.8's fuzz-zone promotion rule. Returns the new entry's index.
func (p *predictor) promote(size uintptr, nearest int) int {
	victim := -1

	for i, e := range p.entries {
		if e.fixed || i == len(p.entries)-1 || p.inFuzzZone(i) {
			continue
		}

		if victim == -1 || e.count < p.entries[victim].count {
			victim = i
		}
	}

	if victim == -1 {
		return nearest
	}

	right := victim + 1
	if right >= len(p.entries) {
		right = victim - 1
	}

	p.entries[right].count += p.entries[victim].count
	half := p.entries[right].count / 2

	p.entries[victim] = predictorEntry{size: size, count: half}
	p.entries[right].count -= half

	// Keep entries sorted by size so nearestIndex's scan stays correct.
	for i := victim; i > 0 && p.entries[i].size < p.entries[i-1].size; i-- {
		p.entries[i], p.entries[i-1] = p.entries[i-1], p.entries[i]
		victim = i - 1
	}

	for i := victim; i < len(p.entries)-1 && p.entries[i].size > p.entries[i+1].size; i++ {
		p.entries[i], p.entries[i+1] = p.entries[i+1], p.entries[i]
		victim = i + 1
	}

	return victim
}

// age halves every count once the total exceeds PCompressThreshold.
func (p *predictor) age() {
	for i := range p.entries {
		p.entries[i].count /= 2
	}
}

// medianSize reports the allocation size the predictor currently believes
// is most common, used by zone growth to size new zones.
func (p *predictor) medianSize() uintptr {
	return p.entries[p.medianIndex()].size
}
