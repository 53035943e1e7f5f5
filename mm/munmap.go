package mm

import (
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/evanphx/mmkern/abi/linux"
	"github.com/evanphx/mmkern/memory"
)

// Munmap tears down every present page in [addr, addr+length), rounding
// addr down to a page. Pages that are not present are skipped. A page of a
// shared file mapping is written back to its file before its frame is
// released. The region table is then trimmed to match.
func (m *Manager) Munmap(p Process, addr uint32, length int) error {
	if length < 0 {
		return errors.Wrapf(ErrInvalidArgument, "length=%d", length)
	}

	pages := memory.Pages(length)
	if pages == 0 {
		return nil
	}

	var (
		pt    = p.PageTable()
		rt    = p.Regions()
		start = uint64(memory.PageRoundDown(addr))
		end   = min(start+uint64(pages)*memory.PageSize, 1<<32)
	)

	if n := rt.splitsNeeded(start, end); n > rt.freeSlots() {
		return errors.Wrapf(ErrResourceExhausted, "unmapping [%#x, %#x) splits a mapping and no region slot is free", start, end)
	}

	var released, written int

	for a := start; a < end; a += memory.PageSize {
		va := uint32(a)

		pte, ok := pt.Lookup(va)
		if !ok {
			continue
		}

		if reg, ok := rt.FindRegion(va); ok && reg.Shared() && reg.FileBacked() {
			if err := m.writeBack(reg, va, pte&memory.PTE_ADDR); err != nil {
				m.L.Error("error writing back page", "va", hclog.Fmt("%#x", va), "error", err)
			} else {
				written++
			}
		}

		if pa, ok := pt.Clear(va); ok {
			m.releaseFrame(pa)
			released++
		}
	}

	for a := start &^ (1<<22 - 1); a < end; a += 1 << 22 {
		if _, err := pt.Prune(uint32(a)); err != nil {
			m.L.Error("error pruning page table", "va", hclog.Fmt("%#x", a), "error", err)
		}
	}

	rt.carve(start, end)

	m.L.Debug("munmap",
		"addr", hclog.Fmt("%#x", start),
		"pages", pages,
		"released", released,
		"written", written,
	)

	return nil
}

func (m *Manager) writeBack(reg *Region, va, pa uint32) error {
	f := reg.File
	off := reg.Offset + int64(va-reg.Base)

	f.Lock()
	defer f.Unlock()

	cur, err := f.Seek(0, linux.SEEK_CUR)
	if err != nil {
		return errors.Wrapf(ErrIO, "%s", err)
	}

	defer m.restoreOffset(f, cur)

	if _, err := f.Seek(off, linux.SEEK_SET); err != nil {
		return errors.Wrapf(ErrIO, "seek to %d: %s", off, err)
	}

	if _, err := f.Write(m.frames.FrameBytes(pa)); err != nil {
		return errors.Wrapf(ErrIO, "write at %d: %s", off, err)
	}

	return nil
}

// Release tears down every mapping of p, writing back shared file pages,
// and frees the page table. It is used when p exits.
func (m *Manager) Release(p Process) error {
	for _, reg := range p.Regions().Regions() {
		if err := m.Munmap(p, reg.Base, int(reg.Length)); err != nil {
			return err
		}
	}

	stray, err := p.PageTable().Destroy()
	if stray > 0 {
		m.L.Warn("released frames outside any mapping", "count", stray)
	}

	return err
}
