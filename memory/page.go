// Package memory models the physical frame pool and the two-level page
// tables that map user virtual pages onto it.
package memory

const (
	PageSize  = 4096
	PageShift = 12

	// Entries per page directory and per leaf table.
	DirEntries   = 1024
	TableEntries = 1024

	pdxShift = 22
)

// Page table entry bits. Bits 9-11 are ignored by the hardware walk and
// are used for software state.
const (
	PTE_P uint32 = 1 << 0
	PTE_W uint32 = 1 << 1
	PTE_U uint32 = 1 << 2

	// PTE_R gates user reads of a present page.
	PTE_R uint32 = 1 << 9

	PTE_FLAGS uint32 = PTE_P | PTE_W | PTE_U | PTE_R
	PTE_ADDR  uint32 = ^uint32(PageSize - 1)
)

func PageRoundDown(a uint32) uint32 {
	return a &^ (PageSize - 1)
}

// PageRoundUp rounds a up to a page boundary. It works in 64 bits so the
// last page of the address space does not wrap.
func PageRoundUp(a uint64) uint64 {
	return (a + PageSize - 1) &^ (PageSize - 1)
}

// Pages returns how many pages are needed to hold size bytes.
func Pages(size int) int {
	if size <= 0 {
		return 0
	}

	return int(PageRoundUp(uint64(size)) / PageSize)
}

func PageAligned(a uint32) bool {
	return a&(PageSize-1) == 0
}

func pdx(va uint32) uint32 {
	return (va >> pdxShift) & (DirEntries - 1)
}

func ptx(va uint32) uint32 {
	return (va >> PageShift) & (TableEntries - 1)
}

func pteAddr(pte uint32) uint32 {
	return pte & PTE_ADDR
}
