package mm

import (
	"github.com/davecgh/go-spew/spew"

	"github.com/evanphx/mmkern/abi/linux"
)

// Region records one live mapping. A zero Length marks a free slot.
type Region struct {
	Base   uint32
	Length uint32
	Prot   int
	Flags  int
	File   File
	Offset int64
}

func (r *Region) Live() bool {
	return r.Length != 0
}

func (r *Region) End() uint64 {
	return uint64(r.Base) + uint64(r.Length)
}

func (r *Region) Contains(x uint32) bool {
	if x < r.Base {
		return false
	}

	if uint64(x) >= r.End() {
		return false
	}

	return true
}

func (r *Region) Shared() bool {
	return r.Flags&linux.MAP_SHARED != 0
}

func (r *Region) FileBacked() bool {
	return r.Flags&linux.MAP_ANONYMOUS == 0 && r.File != nil
}

// RegionTable is a fixed number of mapping slots scanned linearly.
type RegionTable struct {
	slots []Region
	live  int
}

func NewRegionTable(capacity int) *RegionTable {
	return &RegionTable{
		slots: make([]Region, capacity),
	}
}

func (rt *RegionTable) Cap() int {
	return len(rt.slots)
}

// Live reports how many records are in use.
func (rt *RegionTable) Live() int {
	return rt.live
}

func (rt *RegionTable) findFree() (int, bool) {
	for i := range rt.slots {
		if !rt.slots[i].Live() {
			return i, true
		}
	}

	return 0, false
}

func (rt *RegionTable) freeSlots() int {
	return len(rt.slots) - rt.live
}

// FindRegion returns the first live record containing addr.
func (rt *RegionTable) FindRegion(addr uint32) (*Region, bool) {
	for i := range rt.slots {
		reg := &rt.slots[i]

		if reg.Live() && reg.Contains(addr) {
			return reg, true
		}
	}

	return nil, false
}

func (rt *RegionTable) insert(idx int, reg Region) {
	rt.slots[idx] = reg
	rt.live++
}

func (rt *RegionTable) remove(idx int) {
	rt.slots[idx] = Region{}
	rt.live--
}

// Regions returns copies of the live records in slot order.
func (rt *RegionTable) Regions() []Region {
	var out []Region

	for _, reg := range rt.slots {
		if reg.Live() {
			out = append(out, reg)
		}
	}

	return out
}

// Snapshot returns a copy of every slot, free ones included.
func (rt *RegionTable) Snapshot() []Region {
	return append([]Region(nil), rt.slots...)
}

// splitsNeeded counts the records that [start, end) would cut in two.
func (rt *RegionTable) splitsNeeded(start, end uint64) int {
	var n int

	for i := range rt.slots {
		reg := &rt.slots[i]

		if reg.Live() && uint64(reg.Base) < start && end < reg.End() {
			n++
		}
	}

	return n
}

// carve removes [start, end) from every live record: covered records are
// freed, overlapped ends are trimmed and a record with a hole punched in
// its middle is split in two. The caller checks splitsNeeded first.
func (rt *RegionTable) carve(start, end uint64) {
	for i := range rt.slots {
		reg := &rt.slots[i]

		if !reg.Live() || reg.End() <= start || uint64(reg.Base) >= end {
			continue
		}

		base := uint64(reg.Base)

		switch {
		case start <= base && end >= reg.End():
			rt.remove(i)
		case start <= base:
			cut := end - base
			reg.Base = uint32(end)
			reg.Length -= uint32(cut)
			reg.Offset += int64(cut)
		case end >= reg.End():
			reg.Length = uint32(start - base)
		default:
			tail := *reg
			tail.Base = uint32(end)
			tail.Length = uint32(reg.End() - end)
			tail.Offset += int64(end - base)

			reg.Length = uint32(start - base)

			idx, ok := rt.findFree()
			if !ok {
				panic("mm: region split without a free slot")
			}

			rt.insert(idx, tail)
		}
	}
}

var dumper = spew.ConfigState{
	Indent:                  "  ",
	MaxDepth:                2,
	DisablePointerAddresses: true,
	DisableMethods:          true,
}

// Dump renders the live records for trace logs.
func (rt *RegionTable) Dump() string {
	return dumper.Sdump(rt.Regions())
}
