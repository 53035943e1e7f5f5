package mm

import (
	"github.com/pkg/errors"

	"github.com/evanphx/mmkern/memory"
)

// Place picks the base address for a mapping of size bytes. A fixed
// request must name a page-aligned hint whose whole span lies in the arena
// and maps nothing yet. Otherwise the arena is scanned first-fit a page at
// a time from its base and the hint is ignored.
func (m *Manager) Place(pt *memory.PageTable, size int, hint uint32, fixed bool) (uint32, error) {
	if size <= 0 {
		return 0, errors.Wrapf(ErrInvalidArgument, "size=%d", size)
	}

	var (
		length = memory.PageRoundUp(uint64(size))
		lo     = uint64(m.opts.ArenaBase)
		hi     = uint64(m.opts.ArenaEnd)
	)

	if fixed {
		if !memory.PageAligned(hint) {
			return 0, errors.Wrapf(ErrAllocationRefused, "fixed address %#x is not page aligned", hint)
		}

		if uint64(hint) < lo || uint64(hint)+length > hi {
			return 0, errors.Wrapf(ErrAllocationRefused,
				"fixed range [%#x, %#x) outside arena [%#x, %#x)", hint, uint64(hint)+length, lo, hi)
		}

		if pt.AnyMapped(hint, int(length)) {
			return 0, errors.Wrapf(ErrAllocationRefused, "fixed range at %#x overlaps an existing mapping", hint)
		}

		return hint, nil
	}

	for cand := lo; cand+length <= hi; cand += memory.PageSize {
		if !pt.AnyMapped(uint32(cand), int(length)) {
			return uint32(cand), nil
		}
	}

	return 0, errors.Wrapf(ErrResourceExhausted, "no free %#x byte range in arena", length)
}
