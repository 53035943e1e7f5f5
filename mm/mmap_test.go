package mm

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/evanphx/mmkern/abi/linux"
	"github.com/evanphx/mmkern/fs"
	"github.com/evanphx/mmkern/memory"
)

func TestMmapAnonymous(t *testing.T) {
	f := newFixture(t, DefaultOptions())

	addr, err := f.m.Mmap(f.p, anon(page))
	require.NoError(t, err)
	require.Equal(t, uint32(DefaultArenaBase), addr)

	require.True(t, f.p.pt.IsFullyMapped(DefaultArenaBase, page))
	require.Equal(t, 1, f.p.rt.Live())

	regs := f.p.rt.Regions()
	require.Len(t, regs, 1)
	require.Equal(t, uint32(DefaultArenaBase), regs[0].Base)
	require.Equal(t, uint32(page), regs[0].Length)
	require.Nil(t, regs[0].File)

	// frames come back zeroed even though the pool fills them with junk
	buf := make([]byte, page)
	_, err = f.p.pt.ReadAt(buf, int64(addr))
	require.NoError(t, err)
	require.Equal(t, make([]byte, page), buf)

	_, err = f.p.pt.WriteAt([]byte("scribble"), int64(addr)+10)
	require.NoError(t, err)
}

func TestMmapRoundsUpToPages(t *testing.T) {
	f := newFixture(t, DefaultOptions())

	addr, err := f.m.Mmap(f.p, anon(2*page+1))
	require.NoError(t, err)

	require.True(t, f.p.pt.IsFullyMapped(addr, 3*page))
	require.False(t, f.p.pt.AnyMapped(addr+3*page, page))
	require.Equal(t, uint32(3*page), f.p.rt.Regions()[0].Length)

	next, err := f.m.Mmap(f.p, anon(page))
	require.NoError(t, err)
	require.Equal(t, addr+3*page, next)
}

func TestMmapArguments(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	before := f.state()

	bad := map[string]Request{
		"zero size":       anon(0),
		"negative size":   anon(-page),
		"negative offset": {Size: page, Flags: linux.MAP_ANONYMOUS | linux.MAP_PRIVATE, Offset: -1},
		"no sharing mode": {Size: page, Flags: linux.MAP_ANONYMOUS},
		"both sharing":    {Size: page, Flags: linux.MAP_ANONYMOUS | linux.MAP_PRIVATE | linux.MAP_SHARED},
	}

	for name, req := range bad {
		_, err := f.m.Mmap(f.p, req)
		require.Equal(t, ErrInvalidArgument, errors.Cause(err), name)
		require.Equal(t, before, f.state(), name)
	}
}

func TestMmapFixed(t *testing.T) {
	f := newFixture(t, DefaultOptions())

	req := anon(2 * page)
	req.Flags |= linux.MAP_FIXED
	req.Addr = DefaultArenaBase + 8*page

	addr, err := f.m.Mmap(f.p, req)
	require.NoError(t, err)
	require.Equal(t, req.Addr, addr)

	before := f.state()

	for _, hint := range []uint32{
		DefaultArenaBase + 7*page, // overlaps the first page
		DefaultArenaBase + 9*page, // overlaps the second page
		DefaultArenaBase + 8*page,
		DefaultArenaBase + 7*page + 12,
		0x1000,
	} {
		req.Addr = hint
		_, err := f.m.Mmap(f.p, req)
		require.Equal(t, ErrAllocationRefused, errors.Cause(err), "hint %#x", hint)
		require.Equal(t, before, f.state(), "hint %#x", hint)
	}

	// adjacent is fine
	req.Addr = DefaultArenaBase + 10*page
	_, err = f.m.Mmap(f.p, req)
	require.NoError(t, err)
}

func TestMmapFixedRefusedBeforeDescriptorChecks(t *testing.T) {
	f := newFixture(t, DefaultOptions())

	_, err := f.m.Mmap(f.p, Request{
		Addr:  0x1000,
		Size:  page,
		Flags: linux.MAP_FIXED | linux.MAP_SHARED,
		FD:    99,
	})
	require.Equal(t, ErrAllocationRefused, errors.Cause(err))
}

func TestMmapRegionSlots(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxRegions = 2

	f := newFixture(t, opts)

	_, err := f.m.Mmap(f.p, anon(page))
	require.NoError(t, err)

	_, err = f.m.Mmap(f.p, anon(page))
	require.NoError(t, err)

	before := f.state()

	_, err = f.m.Mmap(f.p, anon(page))
	require.Equal(t, ErrResourceExhausted, errors.Cause(err))
	require.Equal(t, before, f.state())
}

func TestMmapArenaExhausted(t *testing.T) {
	f := newFixture(t, Options{
		ArenaBase:  DefaultArenaBase,
		ArenaEnd:   DefaultArenaBase + 2*page,
		MaxRegions: 4,
	})

	_, err := f.m.Mmap(f.p, anon(2*page))
	require.NoError(t, err)

	_, err = f.m.Mmap(f.p, anon(1))
	require.Equal(t, ErrResourceExhausted, errors.Cause(err))
}

func TestMmapFrameExhaustionIsAtomic(t *testing.T) {
	// 4 pages need a leaf table and 4 frames on an empty table
	for allow := 0; allow < 5; allow++ {
		f := newFixture(t, DefaultOptions())
		before := f.state()

		f.frames.allow = allow

		_, err := f.m.Mmap(f.p, anon(4*page))
		require.Equal(t, ErrResourceExhausted, errors.Cause(err), "allow=%d", allow)
		require.Equal(t, before, f.state(), "allow=%d", allow)
	}

	// with a leaf table already in place
	for allow := 0; allow < 4; allow++ {
		f := newFixture(t, DefaultOptions())

		_, err := f.m.Mmap(f.p, anon(page))
		require.NoError(t, err)

		before := f.state()

		f.frames.allow = allow

		_, err = f.m.Mmap(f.p, anon(4*page))
		require.Equal(t, ErrResourceExhausted, errors.Cause(err), "allow=%d", allow)
		require.Equal(t, before, f.state(), "allow=%d", allow)
	}
}

func TestMmapLeafTableExhaustionIsAtomic(t *testing.T) {
	f := newFixture(t, DefaultOptions())

	// the mapping crosses into a second leaf table
	req := anon(2 * page)
	req.Flags |= linux.MAP_FIXED
	req.Addr = DefaultArenaBase + (1 << 22) - page

	before := f.state()

	// first table and first page succeed, the second table does not
	f.frames.allow = 3

	_, err := f.m.Mmap(f.p, req)
	require.Equal(t, ErrResourceExhausted, errors.Cause(err))
	require.Equal(t, before, f.state())
}

func TestMmapFile(t *testing.T) {
	data := pattern(page+page/2, 7)

	f := newFixture(t, DefaultOptions())

	file := newTestFile(data)
	file.off = 42
	f.p.files[3] = file

	addr, err := f.m.Mmap(f.p, Request{
		Size:   2 * page,
		Prot:   linux.PROT_READ,
		Flags:  linux.MAP_PRIVATE,
		FD:     3,
		Offset: 100,
	})
	require.NoError(t, err)

	buf := make([]byte, 2*page)
	_, err = f.p.pt.ReadAt(buf, int64(addr))
	require.NoError(t, err)

	want := make([]byte, 2*page)
	copy(want, data[100:])
	require.Equal(t, want, buf)

	reg := f.p.rt.Regions()[0]
	require.Equal(t, int64(100), reg.Offset)
	require.Equal(t, File(file), reg.File)

	// the descriptor's own offset is untouched
	require.Equal(t, int64(42), file.off)

	// read only
	_, err = f.p.pt.WriteAt([]byte{1}, int64(addr))
	require.Equal(t, memory.ErrInvalidMemoryAccess, errors.Cause(err))
}

func TestMmapFileIOFailureIsAtomic(t *testing.T) {
	f := newFixture(t, DefaultOptions())

	file := newTestFile(pattern(4*page, 1))
	file.failReadFrom = 2 * page
	f.p.files[3] = file

	before := f.state()

	_, err := f.m.Mmap(f.p, Request{
		Size:  4 * page,
		Prot:  linux.PROT_READ,
		Flags: linux.MAP_SHARED,
		FD:    3,
	})
	require.Equal(t, ErrIO, errors.Cause(err))
	require.Equal(t, before, f.state())
	require.Equal(t, int64(0), file.off)
}

func TestMmapDescriptorChecks(t *testing.T) {
	f := newFixture(t, DefaultOptions())

	pipe := newTestFile(nil)
	pipe.typ = fs.Pipe

	wronly := newTestFile(nil)
	wronly.readable = false

	rdonly := newTestFile(pattern(page, 3))
	rdonly.writable = false

	f.p.files[3] = pipe
	f.p.files[4] = wronly
	f.p.files[5] = rdonly

	before := f.state()

	cases := []struct {
		fd    int
		flags int
		prot  int
		want  error
	}{
		{-1, linux.MAP_PRIVATE, linux.PROT_READ, ErrInvalidArgument},
		{17, linux.MAP_PRIVATE, linux.PROT_READ, ErrInvalidArgument},
		{3, linux.MAP_PRIVATE, linux.PROT_READ, ErrInvalidArgument},
		{4, linux.MAP_PRIVATE, linux.PROT_READ, ErrAccessDenied},
		{5, linux.MAP_SHARED, linux.PROT_READ | linux.PROT_WRITE, ErrAccessDenied},
	}

	for _, c := range cases {
		_, err := f.m.Mmap(f.p, Request{Size: page, Prot: c.prot, Flags: c.flags, FD: c.fd})
		require.Equal(t, c.want, errors.Cause(err), "fd=%d", c.fd)
		require.Equal(t, before, f.state(), "fd=%d", c.fd)
	}

	_, err := f.m.Mmap(f.p, Request{Size: page, Prot: linux.PROT_READ, Flags: linux.MAP_PRIVATE, FD: 17})
	require.True(t, errors.Is(err, ErrBadDescriptor))

	_, err = f.m.Mmap(f.p, Request{Size: page, Prot: linux.PROT_READ, Flags: linux.MAP_PRIVATE, FD: 3})
	require.False(t, errors.Is(err, ErrBadDescriptor))

	// private writable mappings of a read-only file never write back, so
	// they are allowed
	_, err = f.m.Mmap(f.p, Request{
		Size:  page,
		Prot:  linux.PROT_READ | linux.PROT_WRITE,
		Flags: linux.MAP_PRIVATE,
		FD:    5,
	})
	require.NoError(t, err)
}

func TestPagePerm(t *testing.T) {
	require.Equal(t, memory.PTE_U, pagePerm(linux.PROT_NONE))
	require.Equal(t, memory.PTE_U|memory.PTE_R, pagePerm(linux.PROT_READ))
	require.Equal(t, memory.PTE_U|memory.PTE_R|memory.PTE_W, pagePerm(linux.PROT_READ|linux.PROT_WRITE))
}
