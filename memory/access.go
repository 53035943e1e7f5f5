package memory

import (
	"github.com/pkg/errors"
)

var ErrInvalidMemoryAccess = errors.New("invalid memory access")

// ReadAt copies user memory starting at virtual address off into b. Every
// page touched must be present, user accessible and readable.
func (pt *PageTable) ReadAt(b []byte, off int64) (int, error) {
	return pt.access(b, off, false)
}

// WriteAt copies b into user memory starting at virtual address off. Every
// page touched must be present, user accessible and writable.
func (pt *PageTable) WriteAt(b []byte, off int64) (int, error) {
	return pt.access(b, off, true)
}

func (pt *PageTable) access(b []byte, off int64, write bool) (int, error) {
	if off < 0 || off+int64(len(b)) > 1<<32 {
		return 0, errors.Wrapf(ErrInvalidMemoryAccess, "addr=%#x, size=%#x", off, len(b))
	}

	need := PTE_U | PTE_R
	if write {
		need = PTE_U | PTE_W
	}

	var n int

	for n < len(b) {
		va := uint32(off + int64(n))

		pte, ok := pt.Lookup(va)
		if !ok || pte&need != need {
			return n, errors.Wrapf(ErrInvalidMemoryAccess, "addr=%#x, write=%v", va, write)
		}

		page := pt.frames.FrameBytes(pteAddr(pte))[va&(PageSize-1):]

		if write {
			n += copy(page, b[n:])
		} else {
			n += copy(b[n:], page)
		}
	}

	return n, nil
}
