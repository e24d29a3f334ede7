package allocator

// blockCache is a per-Handle, bounded most-recently-used list of control
// words and their classes (spec.md §4.7). Checked first on allocate, ahead
// of a master-block scan; updated on every successful allocate/free.
type blockCache struct {
	entries []cacheEntry
}

type cacheEntry struct {
	controlWord uintptr
	cls         class
}

func newBlockCache() *blockCache {
	return &blockCache{entries: make([]cacheEntry, 0, maxCacheEntries)}
}

// touch records addr/cls as most recently used, evicting the least recently
// used entry once the cache is at capacity.
func (c *blockCache) touch(addr uintptr, cls class) {
	for i, e := range c.entries {
		if e.controlWord == addr {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			c.entries = append(c.entries, e)

			return
		}
	}

	c.entries = append(c.entries, cacheEntry{controlWord: addr, cls: cls})

	if len(c.entries) > maxCacheEntries {
		c.entries = c.entries[1:]
	}
}

func (c *blockCache) forget(addr uintptr) {
	for i, e := range c.entries {
		if e.controlWord == addr {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return
		}
	}
}

// tryAllocate attempts allocateInSubblock against the cache's entries for
// cls, most-recently-used first.
func (c *blockCache) tryAllocate(cls class) (uintptr, uintptr, bool) {
	for i := len(c.entries) - 1; i >= 0; i-- {
		e := c.entries[i]
		if e.cls != cls {
			continue
		}

		if addr, ok := allocateInSubblock(e.controlWord, cls); ok {
			return addr, e.controlWord, true
		}
	}

	return 0, 0, false
}
