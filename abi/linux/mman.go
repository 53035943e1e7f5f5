package linux

// Protection bits for mmap.
const (
	PROT_NONE  = 0x0
	PROT_READ  = 0x1
	PROT_WRITE = 0x2
	PROT_EXEC  = 0x4
)

// Flags for mmap.
const (
	MAP_SHARED    = 0x01
	MAP_PRIVATE   = 0x02
	MAP_FIXED     = 0x10
	MAP_ANONYMOUS = 0x20
)

// MAP_FAILED is what a failed mmap looks like to a caller that only checks
// for failure.
const MAP_FAILED = -1
