package syscalls

import (
	"context"
	"io"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/evanphx/mmkern/abi"
	"github.com/evanphx/mmkern/fs"
	"github.com/evanphx/mmkern/kernel"
)

func sysClose(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int32 {
	var (
		fd = args.Args.R0
	)

	err := task.CloseFile(int(fd))
	if err != nil {
		if errors.Cause(err) == kernel.ErrUnknownFile {
			return -abi.EBADF
		}

		l.Error("error closing fd", "error", err, "fd", fd)
		return -abi.EIO
	}

	return 0
}

func sysWrite(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int32 {
	var (
		fd  = args.Args.R0
		ptr = args.Args.R1
		sz  = args.Args.R2
	)

	if sz < 0 {
		return -abi.EINVAL
	}

	f, ok := task.GetFile(int(fd))
	if !ok || !f.Writable() {
		return -abi.EBADF
	}

	data := make([]byte, sz)

	_, err := task.ReadAt(data, int64(uint32(ptr)))
	if err != nil {
		l.Debug("error reading data from userspace", "error", err)
		return -abi.EFAULT
	}

	f.Lock()
	n, err := f.Write(data)
	f.Unlock()

	if err != nil {
		l.Error("error writing data", "error", err, "fd", fd)
		return -abi.EIO
	}

	return int32(n)
}

func sysRead(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int32 {
	var (
		fd  = args.Args.R0
		buf = args.Args.R1
		sz  = args.Args.R2
	)

	if sz < 0 {
		return -abi.EINVAL
	}

	f, ok := task.GetFile(int(fd))
	if !ok || !f.Readable() {
		return -abi.EBADF
	}

	tmp := make([]byte, sz)

	// user memory is touched only after the file is unlocked; mappings
	// take the file lock while holding the address space
	f.Lock()
	n, err := f.Read(tmp)
	f.Unlock()

	if err != nil {
		if err == io.EOF {
			return 0
		}

		if n == 0 || err != io.ErrUnexpectedEOF {
			l.Error("error reading", "error", err, "fd", fd)
			return -abi.EIO
		}
	}

	_, err = task.WriteAt(tmp[:n], int64(uint32(buf)))
	if err != nil {
		l.Debug("error copying data out", "error", err)
		return -abi.EFAULT
	}

	return int32(n)
}

func sysOpen(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int32 {
	var (
		ptr   = args.Args.R0
		flags = args.Args.R1
	)

	path, err := task.ReadCString(uint32(ptr))
	if err != nil {
		l.Debug("error reading cstring", "error", err)
		return -abi.EFAULT
	}

	l.Trace("open file", "path", string(path), "flags", flags)

	fd, _, err := task.OpenFile(ctx, string(path), int(flags))
	if err != nil {
		switch errors.Cause(err) {
		case fs.ErrUnknownPath:
			return -abi.ENOENT
		case fs.ErrNotDirectory:
			return -abi.ENOTDIR
		case fs.ErrIsDirectory:
			return -abi.EISDIR
		case kernel.ErrTooManyFiles:
			return -abi.EMFILE
		}

		l.Error("error opening file", "error", err)

		return -abi.EIO
	}

	return int32(fd)
}

func sysLseek(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int32 {
	var (
		fd     = args.Args.R0
		offset = args.Args.R1
		whence = args.Args.R2
	)

	f, ok := task.GetFile(int(fd))
	if !ok {
		return -abi.EBADF
	}

	f.Lock()
	pos, err := f.Seek(int64(offset), int(whence))
	f.Unlock()

	if err != nil {
		if errors.Cause(err) == kernel.ErrNotSeekable {
			return -abi.ESPIPE
		}

		return -abi.EINVAL
	}

	return int32(pos)
}

func sysDup2(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int32 {
	var (
		from = args.Args.R0
		to   = args.Args.R1
	)

	err := task.Dup2(int(from), int(to))
	if err != nil {
		l.Debug("error duping fd", "from", from, "to", to, "error", err)
		return -abi.EBADF
	}

	return to
}

func sysPipe(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int32 {
	var addr = args.Args.R0

	_, rfd, _, wfd, err := task.CreatePipe()
	if err != nil {
		if errors.Cause(err) == kernel.ErrTooManyFiles {
			return -abi.EMFILE
		}

		l.Error("unable to create pipe", "error", err)
		return -abi.EIO
	}

	type pipeBuf struct {
		Read, Write int32
	}

	err = task.CopyOut(uint32(addr), pipeBuf{
		Read:  int32(rfd),
		Write: int32(wfd),
	})

	if err != nil {
		l.Debug("error writing data to pipe buffer", "error", err)
		task.CloseFile(rfd)
		task.CloseFile(wfd)
		return -abi.EFAULT
	}

	return 0
}

func init() {
	Syscalls[3] = sysRead
	Syscalls[4] = sysWrite
	Syscalls[5] = sysOpen
	Syscalls[6] = sysClose
	Syscalls[19] = sysLseek
	Syscalls[42] = sysPipe
	Syscalls[63] = sysDup2
}
