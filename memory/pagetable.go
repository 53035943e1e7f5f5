package memory

import (
	"github.com/pkg/errors"
)

var ErrRemap = errors.New("page already mapped")

// PageTable is a two-level table translating user virtual pages to frames.
// Leaf tables are charged to the frame pool they map from; a directory
// entry holds the physical address of the frame charged for its table.
type PageTable struct {
	frames FrameAllocator

	dir    [DirEntries]uint32
	tables [DirEntries]*[TableEntries]uint32
}

func NewPageTable(frames FrameAllocator) *PageTable {
	return &PageTable{frames: frames}
}

func (pt *PageTable) Frames() FrameAllocator {
	return pt.frames
}

// walk returns the leaf entry for va. With alloc set a missing leaf table is
// created, and created reports whether that happened.
func (pt *PageTable) walk(va uint32, alloc bool) (pte *uint32, created bool, err error) {
	dx := pdx(va)

	if pt.dir[dx]&PTE_P == 0 {
		if !alloc {
			return nil, false, nil
		}

		pa, ok := pt.frames.AcquireFrame()
		if !ok {
			return nil, false, errors.Wrapf(ErrNoFrame, "page table for va=%#x", va)
		}

		pt.tables[dx] = new([TableEntries]uint32)
		pt.dir[dx] = pa | PTE_P | PTE_W | PTE_U
		created = true
	}

	return &pt.tables[dx][ptx(va)], created, nil
}

// Lookup returns the entry mapping va if it is present.
func (pt *PageTable) Lookup(va uint32) (uint32, bool) {
	pte, _, _ := pt.walk(va, false)
	if pte == nil || *pte&PTE_P == 0 {
		return 0, false
	}

	return *pte, true
}

// Map installs the frame at pa for the page holding va. created reports
// whether a leaf table had to be allocated for it.
func (pt *PageTable) Map(va, pa uint32, perm uint32) (created bool, err error) {
	if !PageAligned(pa) {
		return false, errors.Errorf("unaligned frame address %#x", pa)
	}

	pte, created, err := pt.walk(va, true)
	if err != nil {
		return false, err
	}

	if *pte&PTE_P != 0 {
		return created, errors.Wrapf(ErrRemap, "va=%#x", va)
	}

	*pte = pa | (perm & PTE_FLAGS) | PTE_P

	return created, nil
}

// Clear zeroes the entry for va and returns the frame it pointed to.
func (pt *PageTable) Clear(va uint32) (uint32, bool) {
	pte, _, _ := pt.walk(va, false)
	if pte == nil || *pte&PTE_P == 0 {
		return 0, false
	}

	pa := pteAddr(*pte)
	*pte = 0

	return pa, true
}

// Prune releases the leaf table covering va if it no longer maps anything.
func (pt *PageTable) Prune(va uint32) (bool, error) {
	dx := pdx(va)

	if pt.dir[dx]&PTE_P == 0 {
		return false, nil
	}

	for _, pte := range pt.tables[dx] {
		if pte != 0 {
			return false, nil
		}
	}

	pa := pteAddr(pt.dir[dx])

	pt.dir[dx] = 0
	pt.tables[dx] = nil

	return true, pt.frames.ReleaseFrame(pa)
}

// Range calls fn for every present leaf entry in ascending address order
// until fn returns false.
func (pt *PageTable) Range(fn func(va, pte uint32) bool) {
	for dx, pde := range pt.dir {
		if pde&PTE_P == 0 {
			continue
		}

		for tx, pte := range pt.tables[dx] {
			if pte&PTE_P == 0 {
				continue
			}

			va := uint32(dx)<<pdxShift | uint32(tx)<<PageShift

			if !fn(va, pte) {
				return
			}
		}
	}
}

// Destroy releases every frame still mapped and every leaf table. It
// returns how many mapped frames it found.
func (pt *PageTable) Destroy() (int, error) {
	var (
		stray int
		err   error
	)

	pt.Range(func(va, pte uint32) bool {
		stray++

		if rerr := pt.frames.ReleaseFrame(pteAddr(pte)); rerr != nil && err == nil {
			err = rerr
		}

		return true
	})

	for dx, pde := range pt.dir {
		if pde&PTE_P == 0 {
			continue
		}

		if rerr := pt.frames.ReleaseFrame(pteAddr(pde)); rerr != nil && err == nil {
			err = rerr
		}

		pt.dir[dx] = 0
		pt.tables[dx] = nil
	}

	return stray, err
}

// Snapshot is a comparable copy of a page table's entries.
type Snapshot struct {
	Dir    [DirEntries]uint32
	Tables map[uint32][TableEntries]uint32
}

func (pt *PageTable) Snapshot() Snapshot {
	snap := Snapshot{
		Dir:    pt.dir,
		Tables: make(map[uint32][TableEntries]uint32),
	}

	for dx, tbl := range pt.tables {
		if tbl != nil {
			snap.Tables[uint32(dx)] = *tbl
		}
	}

	return snap
}
