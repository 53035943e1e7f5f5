package main

import (
	"fmt"
	"log"
	"os"
	"runtime/pprof"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/evanphx/mmkern/kernel"
	clog "github.com/evanphx/mmkern/log"
	"github.com/evanphx/mmkern/memory"
)

type closeProtect struct {
	*os.File
}

func (_ closeProtect) Close() error {
	return nil
}

var (
	fRoot     = pflag.StringP("root", "r", "", "directory or tar image (.tar, .tar.gz, .tar.zst, .tar.lz4) to mount as the root")
	fSize     = pflag.IntP("size", "s", memory.PageSize, "bytes to map")
	fOffset   = pflag.Int64P("offset", "o", 0, "file offset to map from")
	fShared   = pflag.Bool("shared", false, "create a shared mapping; writes go back to the file on unmap")
	fAnon     = pflag.Bool("anon", false, "map anonymous memory instead of a file")
	fWrite    = pflag.BoolP("write", "w", false, "map the pages writable")
	fFixed    = pflag.Uint32("fixed", 0, "map at exactly this address")
	fFill     = pflag.String("fill", "", "bytes to write at the start of the mapping before unmapping it")
	fDump     = pflag.Bool("dump", false, "dump the region table before unmapping")
	fFrames   = pflag.Int("frames", kernel.DefaultConfig().Frames, "physical frames in the pool")
	fRegions  = pflag.Int("regions", kernel.DefaultConfig().MM.MaxRegions, "mapping records per process")
	fLogLevel = pflag.String("log-level", "", "log level (trace, debug, info, warn, error)")
)

func main() {
	cpuprofile := os.Getenv("CPUPROFILE")
	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		fmt.Printf("pprof: profiling started\n")
	}

	pflag.Parse()

	if *fLogLevel != "" {
		if err := clog.SetLevel(*fLogLevel); err != nil {
			log.Fatal(err)
		}
	}

	if hp := unix.Getpagesize(); hp != memory.PageSize {
		clog.L.Debug("host page size differs from guest", "host", hp, "guest", memory.PageSize)
	}

	opts := sessionOptions{
		Root:   *fRoot,
		Size:   *fSize,
		Offset: *fOffset,
		Shared: *fShared,
		Anon:   *fAnon,
		Write:  *fWrite,
		Fixed:  *fFixed,
		Fill:   *fFill,
		Dump:   *fDump,
	}

	if !opts.Anon {
		if pflag.NArg() != 1 {
			log.Fatal("usage: mmkern [flags] path")
		}

		opts.Path = pflag.Arg(0)
	}

	cfg := kernel.DefaultConfig()
	cfg.Frames = *fFrames
	cfg.MM.MaxRegions = *fRegions

	s, err := newSession(clog.L, os.Stdout, cfg, opts.Root)
	if err != nil {
		log.Fatal(err)
	}

	s.task.HookupStdio(closeProtect{os.Stdin}, closeProtect{os.Stdout}, closeProtect{os.Stderr})

	err = s.run(opts)

	if _, cerr := s.close(); cerr != nil && err == nil {
		err = cerr
	}

	if cpuprofile != "" {
		pprof.StopCPUProfile()
		fmt.Printf("pprof: profiling finished\n")
	}

	if err != nil {
		log.Fatal(err)
	}
}
