package memory

// span yields the page-aligned addresses covering [addr, addr+size) in
// ascending order. It stops early when fn returns false.
func span(addr uint32, size int, fn func(a uint32) bool) {
	if size <= 0 {
		return
	}

	a := uint64(PageRoundDown(addr))
	last := uint64(PageRoundDown(uint32(min(uint64(addr)+uint64(size)-1, 1<<32-1))))

	for ; a <= last; a += PageSize {
		if !fn(uint32(a)) {
			return
		}
	}
}

// IsFullyMapped reports whether every page overlapping [addr, addr+size)
// has a present directory entry and a present leaf entry.
func (pt *PageTable) IsFullyMapped(addr uint32, size int) bool {
	if size <= 0 {
		return false
	}

	mapped := true

	span(addr, size, func(a uint32) bool {
		if _, ok := pt.Lookup(a); !ok {
			mapped = false
		}

		return mapped
	})

	return mapped
}

// AnyMapped reports whether at least one page overlapping
// [addr, addr+size) is present.
func (pt *PageTable) AnyMapped(addr uint32, size int) bool {
	var found bool

	span(addr, size, func(a uint32) bool {
		_, found = pt.Lookup(a)
		return !found
	})

	return found
}
