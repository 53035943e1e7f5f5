package mm

import (
	"github.com/pkg/errors"

	"github.com/evanphx/mmkern/memory"
)

const (
	// DefaultArenaBase is where flexible placement starts scanning.
	DefaultArenaBase = 0x60000000

	// DefaultArenaEnd is the first address above the arena; the kernel
	// half of the address space starts here.
	DefaultArenaEnd = 0x80000000

	// MaxArenaEnd bounds the arena so every mapping address is a positive
	// 32-bit syscall return, distinct from a negative errno.
	MaxArenaEnd = 0x80000000

	// DefaultMaxRegions is the number of mapping records per process.
	DefaultMaxRegions = 32
)

type Options struct {
	ArenaBase  uint32
	ArenaEnd   uint32
	MaxRegions int
}

func DefaultOptions() Options {
	return Options{
		ArenaBase:  DefaultArenaBase,
		ArenaEnd:   DefaultArenaEnd,
		MaxRegions: DefaultMaxRegions,
	}
}

var ErrBadOptions = errors.New("bad mm options")

func (o Options) Validate() error {
	if !memory.PageAligned(o.ArenaBase) || !memory.PageAligned(o.ArenaEnd) {
		return errors.Wrapf(ErrBadOptions, "arena [%#x, %#x) is not page aligned", o.ArenaBase, o.ArenaEnd)
	}

	if o.ArenaBase >= o.ArenaEnd {
		return errors.Wrapf(ErrBadOptions, "arena [%#x, %#x) is empty", o.ArenaBase, o.ArenaEnd)
	}

	if uint64(o.ArenaEnd) > MaxArenaEnd {
		return errors.Wrapf(ErrBadOptions, "arena end %#x above %#x", o.ArenaEnd, MaxArenaEnd)
	}

	if o.MaxRegions <= 0 {
		return errors.Wrapf(ErrBadOptions, "max regions %d", o.MaxRegions)
	}

	return nil
}
