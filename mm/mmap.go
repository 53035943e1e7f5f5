package mm

import (
	"io"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/evanphx/mmkern/abi/linux"
	"github.com/evanphx/mmkern/memory"
)

// Request carries the arguments of one mmap call.
type Request struct {
	Addr   uint32
	Size   int
	Prot   int
	Flags  int
	FD     int
	Offset int64
}

func (r Request) Fixed() bool {
	return r.Flags&linux.MAP_FIXED != 0
}

func (r Request) Anonymous() bool {
	return r.Flags&linux.MAP_ANONYMOUS != 0
}

func (r Request) Shared() bool {
	return r.Flags&linux.MAP_SHARED != 0
}

func (r Request) Private() bool {
	return r.Flags&linux.MAP_PRIVATE != 0
}

// pagePerm derives the entry bits for prot. Every installed entry is
// present and user accessible; PROT_READ and PROT_WRITE gate user reads
// and writes.
func pagePerm(prot int) uint32 {
	perm := memory.PTE_U

	if prot&linux.PROT_READ != 0 {
		perm |= memory.PTE_R
	}

	if prot&linux.PROT_WRITE != 0 {
		perm |= memory.PTE_W
	}

	return perm
}

// Mmap maps req into p and returns the base address. Either every page of
// the mapping is installed and recorded, or the call fails and p's page
// table, region table and the frame pool are left as they were.
func (m *Manager) Mmap(p Process, req Request) (uint32, error) {
	if req.Size <= 0 || req.Offset < 0 {
		return 0, errors.Wrapf(ErrInvalidArgument, "size=%d, offset=%d", req.Size, req.Offset)
	}

	// Require exactly one of MAP_PRIVATE and MAP_SHARED.
	if req.Private() == req.Shared() {
		return 0, errors.Wrapf(ErrInvalidArgument, "flags=%#x", req.Flags)
	}

	var (
		pt   = p.PageTable()
		rt   = p.Regions()
		base uint32
		err  error
	)

	if req.Fixed() {
		base, err = m.Place(pt, req.Size, req.Addr, true)
		if err != nil {
			return 0, err
		}
	}

	var file File

	if !req.Anonymous() {
		file, err = m.backingFile(p, req)
		if err != nil {
			return 0, err
		}
	}

	slot, ok := rt.findFree()
	if !ok {
		return 0, errors.Wrapf(ErrResourceExhausted, "all %d region slots in use", rt.Cap())
	}

	if !req.Fixed() {
		base, err = m.Place(pt, req.Size, req.Addr, false)
		if err != nil {
			return 0, err
		}
	}

	if file != nil {
		file.Lock()
		defer file.Unlock()

		cur, err := file.Seek(0, linux.SEEK_CUR)
		if err != nil {
			return 0, errors.Wrapf(ErrIO, "fd=%d: %s", req.FD, err)
		}

		defer m.restoreOffset(file, cur)

		if _, err := file.Seek(req.Offset, linux.SEEK_SET); err != nil {
			return 0, errors.Wrapf(ErrIO, "fd=%d, offset=%d: %s", req.FD, req.Offset, err)
		}
	}

	est := &establisher{
		m:     m,
		pt:    pt,
		file:  file,
		perm:  pagePerm(req.Prot),
		fixed: req.Fixed(),
	}

	pages := memory.Pages(req.Size)

	for i := 0; i < pages; i++ {
		va := base + uint32(i)*memory.PageSize

		if err := est.mapPage(va); err != nil {
			est.unwind(base)

			m.L.Debug("mmap failed", "addr", hclog.Fmt("%#x", base), "page", i, "pages", pages, "error", err)
			return 0, err
		}
	}

	rt.insert(slot, Region{
		Base:   base,
		Length: uint32(pages) * memory.PageSize,
		Prot:   req.Prot,
		Flags:  req.Flags,
		File:   file,
		Offset: req.Offset,
	})

	m.L.Debug("mmap",
		"addr", hclog.Fmt("%#x", base),
		"pages", pages,
		"prot", req.Prot,
		"flags", hclog.Fmt("%#x", req.Flags),
		"fd", req.FD,
		"offset", req.Offset,
	)

	if m.L.IsTrace() {
		m.L.Trace("region table", "regions", rt.Dump())
	}

	return base, nil
}

func (m *Manager) backingFile(p Process, req Request) (File, error) {
	file, ok := p.LookupFile(req.FD)
	if !ok {
		return nil, errors.Wrapf(ErrBadDescriptor, "fd=%d", req.FD)
	}

	if typ := file.Type(); !typ.Mappable() {
		return nil, errors.Wrapf(ErrInvalidArgument, "fd=%d is a %s, not a regular file", req.FD, typ)
	}

	if !file.Readable() {
		return nil, errors.Wrapf(ErrAccessDenied, "fd=%d is not open for reading", req.FD)
	}

	if req.Shared() && req.Prot&linux.PROT_WRITE != 0 && !file.Writable() {
		return nil, errors.Wrapf(ErrAccessDenied, "fd=%d is not open for writing", req.FD)
	}

	return file, nil
}

func (m *Manager) restoreOffset(f File, off int64) {
	if _, err := f.Seek(off, linux.SEEK_SET); err != nil {
		m.L.Warn("unable to restore file offset", "offset", off, "error", err)
	}
}

// establisher installs the pages of one mapping in ascending order and
// remembers enough to undo them.
type establisher struct {
	m     *Manager
	pt    *memory.PageTable
	file  File
	perm  uint32
	fixed bool

	installed int
	tables    []uint32
}

func (e *establisher) mapPage(va uint32) error {
	frames := e.m.frames

	// A fixed mapping replaces whatever is at va.
	if e.fixed {
		if pa, ok := e.pt.Clear(va); ok {
			e.m.releaseFrame(pa)
		}
	}

	pa, ok := frames.AcquireFrame()
	if !ok {
		return errors.Wrapf(ErrResourceExhausted, "no frame for va=%#x", va)
	}

	page := frames.FrameBytes(pa)
	clear(page)

	if e.file != nil {
		_, err := io.ReadFull(e.file, page)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			e.m.releaseFrame(pa)
			return errors.Wrapf(ErrIO, "reading page for va=%#x: %s", va, err)
		}
	}

	created, err := e.pt.Map(va, pa, e.perm)
	if created {
		e.tables = append(e.tables, va)
	}

	if err != nil {
		e.m.releaseFrame(pa)

		if errors.Cause(err) == memory.ErrNoFrame {
			return errors.Wrapf(ErrResourceExhausted, "installing va=%#x: %s", va, err)
		}

		return errors.Wrapf(ErrAllocationRefused, "installing va=%#x: %s", va, err)
	}

	e.installed++

	return nil
}

// unwind clears the pages installed so far and drops the leaf tables this
// call created.
func (e *establisher) unwind(base uint32) {
	for i := 0; i < e.installed; i++ {
		va := base + uint32(i)*memory.PageSize

		if pa, ok := e.pt.Clear(va); ok {
			e.m.releaseFrame(pa)
		}
	}

	for _, va := range e.tables {
		if _, err := e.pt.Prune(va); err != nil {
			e.m.L.Error("error pruning page table", "va", hclog.Fmt("%#x", va), "error", err)
		}
	}
}
