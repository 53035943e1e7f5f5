package mm

import (
	"io"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/evanphx/mmkern/abi/linux"
	"github.com/evanphx/mmkern/fs"
	"github.com/evanphx/mmkern/memory"
)

const page = memory.PageSize

var errDisk = errors.New("disk on fire")

type testFile struct {
	mu     sync.Mutex
	locked bool

	// unlockedIO counts transfers and seeks made without holding the lock.
	unlockedIO int

	data []byte
	off  int64
	typ  fs.InodeType

	readable, writable bool

	// failReadFrom makes reads at or past this offset fail; 0 disables.
	failReadFrom int64
	failWrite    bool
}

func newTestFile(data []byte) *testFile {
	return &testFile{
		data:     data,
		typ:      fs.RegularFile,
		readable: true,
		writable: true,
	}
}

func (f *testFile) Lock() {
	f.mu.Lock()
	f.locked = true
}

func (f *testFile) Unlock() {
	f.locked = false
	f.mu.Unlock()
}

func (f *testFile) checkLocked() {
	if !f.locked {
		f.unlockedIO++
	}
}

func (f *testFile) Read(b []byte) (int, error) {
	f.checkLocked()

	if f.failReadFrom > 0 && f.off >= f.failReadFrom {
		return 0, errDisk
	}

	if f.off >= int64(len(f.data)) {
		return 0, io.EOF
	}

	n := copy(b, f.data[f.off:])
	f.off += int64(n)

	return n, nil
}

func (f *testFile) Write(b []byte) (int, error) {
	f.checkLocked()

	if f.failWrite {
		return 0, errDisk
	}

	if end := f.off + int64(len(b)); end > int64(len(f.data)) {
		f.data = append(f.data, make([]byte, end-int64(len(f.data)))...)
	}

	n := copy(f.data[f.off:], b)
	f.off += int64(n)

	return n, nil
}

func (f *testFile) Seek(off int64, whence int) (int64, error) {
	f.checkLocked()

	switch whence {
	case linux.SEEK_CUR:
		off += f.off
	case linux.SEEK_END:
		off += int64(len(f.data))
	}

	if off < 0 {
		return 0, errors.New("negative offset")
	}

	f.off = off

	return off, nil
}

func (f *testFile) Type() fs.InodeType { return f.typ }
func (f *testFile) Readable() bool     { return f.readable }
func (f *testFile) Writable() bool     { return f.writable }

type testProc struct {
	pt    *memory.PageTable
	rt    *RegionTable
	files map[int]File
}

func (p *testProc) PageTable() *memory.PageTable { return p.pt }
func (p *testProc) Regions() *RegionTable        { return p.rt }

func (p *testProc) LookupFile(fd int) (File, bool) {
	f, ok := p.files[fd]
	return f, ok
}

// limitFrames hands out frames from pm until allow runs out. A negative
// allow never runs out.
type limitFrames struct {
	*memory.PhysMem
	allow int
}

func (l *limitFrames) AcquireFrame() (uint32, bool) {
	if l.allow == 0 {
		return 0, false
	}

	if l.allow > 0 {
		l.allow--
	}

	return l.PhysMem.AcquireFrame()
}

type fixture struct {
	pm     *memory.PhysMem
	frames *limitFrames
	m      *Manager
	p      *testProc
}

func newFixture(t *testing.T, opts Options) *fixture {
	pm := memory.NewPhysMem(256)
	frames := &limitFrames{PhysMem: pm, allow: -1}

	m, err := NewManager(nil, frames, opts)
	require.NoError(t, err)

	return &fixture{
		pm:     pm,
		frames: frames,
		m:      m,
		p: &testProc{
			pt:    memory.NewPageTable(frames),
			rt:    m.NewRegionTable(),
			files: make(map[int]File),
		},
	}
}

// state captures everything a failed mmap must leave untouched.
type state struct {
	pt   memory.Snapshot
	rt   []Region
	live int
	free int
}

func (f *fixture) state() state {
	return state{
		pt:   f.p.pt.Snapshot(),
		rt:   f.p.rt.Snapshot(),
		live: f.p.rt.Live(),
		free: f.pm.Free(),
	}
}

func anon(size int) Request {
	return Request{
		Size:  size,
		Prot:  linux.PROT_READ | linux.PROT_WRITE,
		Flags: linux.MAP_ANONYMOUS | linux.MAP_PRIVATE,
		FD:    -1,
	}
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i%251)
	}

	return b
}
