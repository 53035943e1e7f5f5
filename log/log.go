package log

import (
	"io"
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

var L hclog.Logger

func init() {
	L = New(os.Stderr)
}

// New returns a kernel logger writing to w at Info, or at Trace when TRACE
// is set in the environment.
func New(w io.Writer) hclog.Logger {
	l := hclog.New(&hclog.LoggerOptions{
		Name:   "mmkern",
		Output: w,
		Level:  hclog.Info,
	})

	if str := os.Getenv("TRACE"); str != "" {
		l.SetLevel(hclog.Trace)
	}

	return l
}
