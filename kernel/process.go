package kernel

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"sync"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/evanphx/mmkern/abi/linux"
	"github.com/evanphx/mmkern/fs"
	"github.com/evanphx/mmkern/memory"
	"github.com/evanphx/mmkern/mm"
)

var (
	ErrUnknownFile   = errors.New("unknown file")
	ErrTooManyFiles  = errors.New("too many open files")
	ErrStringTooLong = errors.New("string too long")
	ErrProcessDead   = errors.New("process has exited")
)

// MaxCString bounds the strings ReadCString copies out of user memory.
const MaxCString = 4096

type prockey struct{}

func GetTask(ctx context.Context) (*Task, bool) {
	if v := ctx.Value(prockey{}); v != nil {
		return v.(*Task), true
	}

	return nil, false
}

func SetTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, prockey{}, t)
}

type Task struct {
	*Process
}

type ProcessStatus int

const (
	Init    ProcessStatus = 0
	Running ProcessStatus = 1
	Dead    ProcessStatus = 2
)

type ExitStatus struct {
	Code  int
	Signo int
}

func (e ExitStatus) Status() int32 {
	return ((int32(e.Code) & 0xff) << 8) | (int32(e.Signo) & 0xff)
}

type Process struct {
	Kernel *Kernel
	Pid    int
	Mount  *fs.MountNamespace
	L      hclog.Logger

	// memMu serializes every change to the address space.
	memMu   sync.Mutex
	pt      *memory.PageTable
	regions *mm.RegionTable

	mu         sync.Mutex
	status     ProcessStatus
	exiting    bool
	exitStatus ExitStatus
	fds        []*File
	done       chan struct{}
}

func (p *Process) PageTable() *memory.PageTable {
	return p.pt
}

func (p *Process) Regions() *mm.RegionTable {
	return p.regions
}

// LookupFile returns the open file behind fd for the mapping layer.
func (p *Process) LookupFile(fd int) (mm.File, bool) {
	f, ok := p.GetFile(fd)
	if !ok {
		return nil, false
	}

	return f, true
}

// live fails once Exit has started tearing the address space down, so
// nothing can draw frames into a table that will never be released again.
// Callers hold memMu.
func (p *Process) live() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.exiting {
		return errors.Wrapf(ErrProcessDead, "pid=%d", p.Pid)
	}

	return nil
}

func (p *Process) Mmap(req mm.Request) (uint32, error) {
	p.memMu.Lock()
	defer p.memMu.Unlock()

	if err := p.live(); err != nil {
		return 0, err
	}

	return p.Kernel.MM.Mmap(p, req)
}

func (p *Process) Munmap(addr uint32, length int) error {
	p.memMu.Lock()
	defer p.memMu.Unlock()

	if err := p.live(); err != nil {
		return err
	}

	return p.Kernel.MM.Munmap(p, addr, length)
}

// Mappings returns a copy of the live mapping records.
func (p *Process) Mappings() []mm.Region {
	p.memMu.Lock()
	defer p.memMu.Unlock()

	return p.regions.Regions()
}

func (p *Process) ReadAt(b []byte, off int64) (int, error) {
	p.memMu.Lock()
	defer p.memMu.Unlock()

	if err := p.live(); err != nil {
		return 0, err
	}

	return p.pt.ReadAt(b, off)
}

func (p *Process) WriteAt(b []byte, off int64) (int, error) {
	p.memMu.Lock()
	defer p.memMu.Unlock()

	if err := p.live(); err != nil {
		return 0, err
	}

	return p.pt.WriteAt(b, off)
}

func (p *Process) ReadCString(addr uint32) ([]byte, error) {
	var buf bytes.Buffer

	var t [1]byte

	off := int64(addr)

	for {
		_, err := p.ReadAt(t[:], off)
		if err != nil {
			return nil, err
		}

		if t[0] == 0 {
			break
		}

		if buf.Len() == MaxCString {
			return nil, errors.Wrapf(ErrStringTooLong, "addr=%#x", addr)
		}

		buf.WriteByte(t[0])
		off += 1
	}

	return buf.Bytes(), nil
}

type writeAdapter struct {
	sub    io.WriterAt
	offset int64
}

func (wa writeAdapter) Write(b []byte) (int, error) {
	return wa.sub.WriteAt(b, wa.offset)
}

func (p *Process) CopyOut(addr uint32, val interface{}) error {
	return binary.Write(writeAdapter{sub: p, offset: int64(addr)}, binary.LittleEndian, val)
}

type readAdapter struct {
	sub    io.ReaderAt
	offset int64
}

func (ra readAdapter) Read(b []byte) (int, error) {
	return ra.sub.ReadAt(b, ra.offset)
}

func (p *Process) CopyIn(addr uint32, val interface{}) error {
	return binary.Read(readAdapter{sub: p, offset: int64(addr)}, binary.LittleEndian, val)
}

func (p *Process) HookupStdio(i io.ReadCloser, o, e io.WriteCloser) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.fds = append(p.fds,
		&File{refs: 1, r: i, flags: linux.O_RDONLY, typ: fs.CharacterDevice},
		&File{refs: 1, w: o, flags: linux.O_WRONLY, typ: fs.CharacterDevice},
		&File{refs: 1, w: e, flags: linux.O_WRONLY, typ: fs.CharacterDevice},
	)
}

// installFile puts file in the lowest free descriptor. Callers hold p.mu.
func (p *Process) installFile(file *File) (int, error) {
	for fd, f := range p.fds {
		if f == nil {
			p.fds[fd] = file
			return fd, nil
		}
	}

	if len(p.fds) >= p.Kernel.cfg.MaxFiles {
		return 0, errors.Wrapf(ErrTooManyFiles, "limit %d", p.Kernel.cfg.MaxFiles)
	}

	p.fds = append(p.fds, file)

	return len(p.fds) - 1, nil
}

// OpenFile resolves path in the process's mount namespace and installs the
// opened file in the lowest free descriptor.
func (p *Process) OpenFile(ctx context.Context, path string, flags int) (int, *File, error) {
	dirent, err := p.Mount.LookupPath(ctx, path)
	if err != nil {
		return 0, nil, err
	}

	h, err := dirent.Open(ctx, flags&linux.O_ACCMODE)
	if err != nil {
		return 0, nil, err
	}

	file := &File{
		refs:   1,
		Dirent: dirent,
		flags:  flags,
		typ:    dirent.Inode.StableAttr.Type,
		handle: h,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fd, err := p.installFile(file)
	if err != nil {
		h.Close()
		return 0, nil, err
	}

	p.L.Trace("open", "path", path, "fd", fd, "flags", flags)

	return fd, file, nil
}

func (p *Process) CreatePipe() (*File, int, *File, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pread, pwrite := io.Pipe()

	read := &File{
		refs:  1,
		r:     pread,
		flags: linux.O_RDONLY,
		typ:   fs.Pipe,
	}

	write := &File{
		refs:  1,
		w:     pwrite,
		flags: linux.O_WRONLY,
		typ:   fs.Pipe,
	}

	rfd, err := p.installFile(read)
	if err != nil {
		return nil, 0, nil, 0, err
	}

	wfd, err := p.installFile(write)
	if err != nil {
		p.fds[rfd] = nil
		return nil, 0, nil, 0, err
	}

	return read, rfd, write, wfd, nil
}

func (p *Process) GetFile(fd int) (*File, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fd < 0 || fd >= len(p.fds) {
		return nil, false
	}

	file := p.fds[fd]
	if file == nil {
		return nil, false
	}

	return file, true
}

func (p *Process) CloseFile(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fd < 0 || fd >= len(p.fds) {
		return ErrUnknownFile
	}

	file := p.fds[fd]
	if file == nil {
		return ErrUnknownFile
	}

	p.fds[fd] = nil

	return file.Close()
}

func (p *Process) Dup2(from, to int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if from < 0 || from >= len(p.fds) || p.fds[from] == nil {
		return ErrUnknownFile
	}

	if to < 0 || to >= p.Kernel.cfg.MaxFiles {
		return errors.Wrapf(ErrTooManyFiles, "fd=%d", to)
	}

	if from == to {
		return nil
	}

	for len(p.fds) <= to {
		p.fds = append(p.fds, nil)
	}

	if f := p.fds[to]; f != nil {
		f.Close()
	}

	p.fds[to] = p.fds[from]
	p.fds[to].incRef()

	return nil
}

// Exit tears down the address space, writing back shared file pages while
// the descriptors are still open, then closes every descriptor.
func (p *Process) Exit(code int) {
	p.mu.Lock()
	if p.exiting {
		p.mu.Unlock()
		return
	}
	p.exiting = true
	p.mu.Unlock()

	p.L.Trace("process-exit", "code", code)

	p.memMu.Lock()
	if err := p.Kernel.MM.Release(p); err != nil {
		p.L.Error("error releasing address space", "error", err)
	}
	p.memMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	for fd, file := range p.fds {
		if file != nil {
			file.Close()
			p.fds[fd] = nil
		}
	}

	p.exitStatus.Code = code
	p.status = Dead

	close(p.done)
}

func (p *Process) Status() ProcessStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.status
}

// Wait blocks until the process exits, then reaps it.
func (p *Process) Wait(ctx context.Context) (ExitStatus, error) {
	select {
	case <-ctx.Done():
		return ExitStatus{}, ctx.Err()
	case <-p.done:
	}

	p.Kernel.processes.RemoveProc(p)

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.exitStatus, nil
}

type ProcessManager struct {
	mu        sync.RWMutex
	highWater int
	processes map[int]*Process
}

func NewProcessManager() *ProcessManager {
	return &ProcessManager{
		processes: make(map[int]*Process),
	}
}

func (p *ProcessManager) AssignPid(proc *Process) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 1; i <= p.highWater; i++ {
		if _, ok := p.processes[i]; !ok {
			proc.Pid = i
			p.processes[i] = proc
			return i
		}
	}

	p.highWater++
	pid := p.highWater
	p.processes[pid] = proc
	proc.Pid = pid

	return pid
}

func (p *ProcessManager) Get(pid int) (*Process, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	proc, ok := p.processes[pid]
	return proc, ok
}

func (p *ProcessManager) RemoveProc(proc *Process) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.processes, proc.Pid)
}
