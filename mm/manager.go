// Package mm establishes and tears down user memory mappings. Every page
// of a mapping is backed by a frame at mmap time; nothing is populated on
// fault.
package mm

import (
	hclog "github.com/hashicorp/go-hclog"

	"github.com/evanphx/mmkern/memory"
)

// Manager applies mapping operations to processes. It holds no per-process
// state; page tables handed to it must draw from the same frame pool.
type Manager struct {
	L hclog.Logger

	frames memory.FrameAllocator
	opts   Options
}

func NewManager(l hclog.Logger, frames memory.FrameAllocator, opts Options) (*Manager, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if l == nil {
		l = hclog.NewNullLogger()
	}

	return &Manager{
		L:      l.Named("mm"),
		frames: frames,
		opts:   opts,
	}, nil
}

func (m *Manager) Options() Options {
	return m.opts
}

// NewRegionTable returns an empty table sized for this manager.
func (m *Manager) NewRegionTable() *RegionTable {
	return NewRegionTable(m.opts.MaxRegions)
}

func (m *Manager) releaseFrame(pa uint32) {
	if err := m.frames.ReleaseFrame(pa); err != nil {
		m.L.Error("error releasing frame", "pa", hclog.Fmt("%#x", pa), "error", err)
	}
}
