package kernel

import (
	"github.com/pkg/errors"

	"github.com/evanphx/mmkern/fs"
	"github.com/evanphx/mmkern/mm"
)

type Config struct {
	// Frames is the size of the physical frame pool shared by every
	// process, in pages.
	Frames int

	// MaxFiles caps the descriptor table of each process.
	MaxFiles int

	// DirentCache sizes the path cache of mount namespaces created by the
	// kernel.
	DirentCache int

	MM mm.Options
}

func DefaultConfig() Config {
	return Config{
		Frames:      4096,
		MaxFiles:    64,
		DirentCache: fs.DefaultDirentCache,
		MM:          mm.DefaultOptions(),
	}
}

var ErrBadConfig = errors.New("bad kernel config")

func (c Config) Validate() error {
	if c.Frames <= 0 {
		return errors.Wrapf(ErrBadConfig, "frames=%d", c.Frames)
	}

	if c.MaxFiles <= 0 {
		return errors.Wrapf(ErrBadConfig, "max files=%d", c.MaxFiles)
	}

	return c.MM.Validate()
}
