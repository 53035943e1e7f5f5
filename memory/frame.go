package memory

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pkg/errors"
)

var (
	ErrNoFrame      = errors.New("out of physical frames")
	ErrDoubleFree   = errors.New("frame released twice")
	ErrUnknownFrame = errors.New("address is not a frame of this pool")
)

// FrameAllocator hands out page-sized physical frames identified by their
// physical address.
type FrameAllocator interface {
	AcquireFrame() (uint32, bool)
	ReleaseFrame(pa uint32) error

	// FrameBytes returns the PageSize bytes backing the frame at pa.
	FrameBytes(pa uint32) []byte
}

// Released frames are filled with junk so that stale reads show up.
const junk = 0x05

// PhysMem is a fixed pool of frames backed by one slab. Acquisition always
// hands out the lowest free frame.
type PhysMem struct {
	mu   sync.Mutex
	slab []byte
	free *roaring.Bitmap

	frames uint32
}

func NewPhysMem(frames int) *PhysMem {
	pm := &PhysMem{
		slab:   make([]byte, frames*PageSize),
		free:   roaring.New(),
		frames: uint32(frames),
	}

	pm.free.AddRange(0, uint64(frames))

	for i := range pm.slab {
		pm.slab[i] = junk
	}

	return pm
}

func (pm *PhysMem) AcquireFrame() (uint32, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.free.IsEmpty() {
		return 0, false
	}

	n := pm.free.Minimum()
	pm.free.Remove(n)

	return n << PageShift, true
}

func (pm *PhysMem) ReleaseFrame(pa uint32) error {
	n, err := pm.frameNumber(pa)
	if err != nil {
		return err
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if !pm.free.CheckedAdd(n) {
		return errors.Wrapf(ErrDoubleFree, "pa=%#x", pa)
	}

	page := pm.slab[pa : pa+PageSize]
	for i := range page {
		page[i] = junk
	}

	return nil
}

func (pm *PhysMem) FrameBytes(pa uint32) []byte {
	if _, err := pm.frameNumber(pa); err != nil {
		panic(err)
	}

	return pm.slab[pa : pa+PageSize : pa+PageSize]
}

func (pm *PhysMem) frameNumber(pa uint32) (uint32, error) {
	if !PageAligned(pa) || pa>>PageShift >= pm.frames {
		return 0, errors.Wrapf(ErrUnknownFrame, "pa=%#x", pa)
	}

	return pa >> PageShift, nil
}

// Free reports how many frames are available.
func (pm *PhysMem) Free() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	return int(pm.free.GetCardinality())
}

// Total reports the size of the pool in frames.
func (pm *PhysMem) Total() int {
	return int(pm.frames)
}

// Used reports how many frames are handed out.
func (pm *PhysMem) Used() int {
	return pm.Total() - pm.Free()
}

// InUse reports whether the frame at pa is currently handed out.
func (pm *PhysMem) InUse(pa uint32) bool {
	n, err := pm.frameNumber(pa)
	if err != nil {
		return false
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	return !pm.free.Contains(n)
}
