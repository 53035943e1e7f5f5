package mm

import (
	"io"
	"sync"

	"github.com/evanphx/mmkern/fs"
	"github.com/evanphx/mmkern/memory"
)

// File is an open file description as seen by a mapping. Reads and writes
// move a shared current offset. The lock is held across every seek and
// transfer a mapping makes, so other users of the offset must take it too.
type File interface {
	sync.Locker
	io.Reader
	io.Writer
	io.Seeker

	Type() fs.InodeType
	Readable() bool
	Writable() bool
}

// Process is the address-space state of the process a call operates on.
// Callers serialize Mmap and Munmap per process.
type Process interface {
	PageTable() *memory.PageTable
	Regions() *RegionTable
	LookupFile(fd int) (File, bool)
}
