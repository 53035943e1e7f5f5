package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/evanphx/mmkern/abi/linux"
	"github.com/evanphx/mmkern/fs"
	"github.com/evanphx/mmkern/fs/host"
	"github.com/evanphx/mmkern/fs/tarfs"
	"github.com/evanphx/mmkern/kernel"
	"github.com/evanphx/mmkern/memory"
	"github.com/evanphx/mmkern/syscalls"
)

const (
	sysOpen   = 5
	sysMmap   = 90
	sysMunmap = 91
)

type sessionOptions struct {
	Root   string
	Path   string
	Size   int
	Offset int64
	Shared bool
	Anon   bool
	Write  bool
	Fixed  uint32
	Fill   string
	Dump   bool
}

type session struct {
	L    hclog.Logger
	out  io.Writer
	k    *kernel.Kernel
	task *kernel.Task
	ctx  context.Context
	inv  *syscalls.Invoker
}

// mountRoot builds a namespace rooted at a host directory or a tar image.
func mountRoot(k *kernel.Kernel, root string) (*fs.MountNamespace, error) {
	mnt, err := k.NewMountNamespace()
	if err != nil {
		return nil, err
	}

	if root == "" {
		return mnt, nil
	}

	stat, err := os.Stat(root)
	if err != nil {
		return nil, err
	}

	var inode *fs.Inode

	if stat.IsDir() {
		hfs, err := host.NewHostFS(root)
		if err != nil {
			return nil, err
		}

		inode, err = hfs.Root()
		if err != nil {
			return nil, err
		}
	} else {
		tfs, err := tarfs.OpenImage(root)
		if err != nil {
			return nil, errors.Wrapf(err, "loading image %s", root)
		}

		inode, err = tfs.Root()
		if err != nil {
			return nil, err
		}
	}

	mnt.SetRoot(inode)

	return mnt, nil
}

func newSession(l hclog.Logger, out io.Writer, cfg kernel.Config, root string) (*session, error) {
	k, err := kernel.NewKernel(l, cfg)
	if err != nil {
		return nil, err
	}

	mnt, err := mountRoot(k, root)
	if err != nil {
		return nil, err
	}

	task := &kernel.Task{Process: k.NewProcess(mnt)}

	return &session{
		L:    l,
		out:  out,
		k:    k,
		task: task,
		ctx:  kernel.SetTask(context.Background(), task),
		inv:  &syscalls.Invoker{Kernel: k, L: l},
	}, nil
}

func (s *session) syscall(idx int32, regs ...int32) int32 {
	var r [7]int32
	copy(r[:], regs)

	return s.inv.InvokeSyscall(s.ctx, syscalls.SysArgs{
		Index: idx,
		Args: syscalls.SyscallRequest{
			R0: r[0], R1: r[1], R2: r[2], R3: r[3], R4: r[4], R5: r[5], R6: r[6],
		},
	})
}

func errno(name string, ret int32) error {
	return errors.Errorf("%s: errno %d", name, -ret)
}

// open copies path into a scratch mapping and opens it through the
// syscall table.
func (s *session) open(path string, flags int) (int32, error) {
	scratch := s.syscall(sysMmap, 0, memory.PageSize,
		linux.PROT_READ|linux.PROT_WRITE, linux.MAP_PRIVATE|linux.MAP_ANONYMOUS, -1, 0)
	if scratch < 0 {
		return 0, errno("mmap scratch", scratch)
	}

	defer s.syscall(sysMunmap, scratch, memory.PageSize)

	if _, err := s.task.WriteAt(append([]byte(path), 0), int64(scratch)); err != nil {
		return 0, err
	}

	fd := s.syscall(sysOpen, scratch, int32(flags))
	if fd < 0 {
		return 0, errno("open "+path, fd)
	}

	return fd, nil
}

func (s *session) run(opts sessionOptions) error {
	var (
		fd    int32 = -1
		flags       = linux.MAP_PRIVATE
		prot        = linux.PROT_READ
		mode        = linux.O_RDONLY
	)

	if opts.Shared {
		flags = linux.MAP_SHARED
	}

	if opts.Write || opts.Fill != "" {
		prot |= linux.PROT_WRITE
		if opts.Shared {
			mode = linux.O_RDWR
		}
	}

	if opts.Anon {
		flags |= linux.MAP_ANONYMOUS
	} else {
		var err error

		fd, err = s.open(opts.Path, mode)
		if err != nil {
			return err
		}
	}

	if opts.Fixed != 0 {
		flags |= linux.MAP_FIXED
	}

	addr := s.syscall(sysMmap, int32(opts.Fixed), int32(opts.Size), int32(prot), int32(flags), fd, int32(opts.Offset))
	if addr < 0 {
		return errno("mmap", addr)
	}

	base := uint32(addr)

	fmt.Fprintf(s.out, "mapped %#x-%#x (%d frames in use)\n",
		base, uint64(base)+memory.PageRoundUp(uint64(opts.Size)), s.k.Frames.Used())

	mapped := make([]byte, opts.Size)
	if _, err := s.task.ReadAt(mapped, int64(base)); err != nil {
		return err
	}

	sum := blake2b.Sum256(mapped)
	fmt.Fprintf(s.out, "mapping blake2b: %x\n", sum)

	if fd >= 0 {
		fsum, err := s.fileDigest(int(fd), opts.Offset, opts.Size)
		if err != nil {
			return err
		}

		fmt.Fprintf(s.out, "file    blake2b: %x\n", fsum)
	}

	if opts.Fill != "" {
		if _, err := s.task.WriteAt([]byte(opts.Fill), int64(base)); err != nil {
			return err
		}
	}

	if opts.Dump {
		spew.Fdump(s.out, s.task.Mappings())
	}

	if ret := s.syscall(sysMunmap, addr, int32(opts.Size)); ret < 0 {
		return errno("munmap", ret)
	}

	fmt.Fprintf(s.out, "unmapped (%d frames in use)\n", s.k.Frames.Used())

	return nil
}

// fileDigest hashes size bytes of the open file at off, zero padded past
// the end of the file the same way a mapping is.
func (s *session) fileDigest(fd int, off int64, size int) ([blake2b.Size256]byte, error) {
	var sum [blake2b.Size256]byte

	f, ok := s.task.GetFile(fd)
	if !ok {
		return sum, kernel.ErrUnknownFile
	}

	f.Lock()
	defer f.Unlock()

	cur, err := f.Seek(0, linux.SEEK_CUR)
	if err != nil {
		return sum, err
	}

	defer f.Seek(cur, linux.SEEK_SET)

	if _, err := f.Seek(off, linux.SEEK_SET); err != nil {
		return sum, err
	}

	buf := make([]byte, size)

	_, err = io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return sum, err
	}

	return blake2b.Sum256(buf), nil
}

// close exits the process, which writes back and releases what is left.
func (s *session) close() (kernel.ExitStatus, error) {
	s.task.Exit(0)

	status, err := s.task.Wait(context.Background())
	if err != nil {
		return status, err
	}

	if n := s.k.Frames.Used(); n != 0 {
		s.L.Warn("frames still in use after exit", "count", n)
	}

	return status, nil
}
