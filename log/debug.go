package log

import (
	"os"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

func EnableDebug() {
	if str := os.Getenv("TRACE"); str != "" {
		L.SetLevel(hclog.Trace)
	}
}

var ErrUnknownLevel = errors.New("unknown log level")

// SetLevel changes the level of L by name ("trace", "debug", "info", ...).
func SetLevel(name string) error {
	lvl := hclog.LevelFromString(name)
	if lvl == hclog.NoLevel {
		return errors.Wrapf(ErrUnknownLevel, "level=%q", name)
	}

	L.SetLevel(lvl)

	return nil
}
