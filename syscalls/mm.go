package syscalls

import (
	"context"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/evanphx/mmkern/abi"
	"github.com/evanphx/mmkern/kernel"
	"github.com/evanphx/mmkern/memory"
	"github.com/evanphx/mmkern/mm"
)

// mmErrno translates a mapping failure into the errno returned to the
// caller.
func mmErrno(err error) int32 {
	switch errors.Cause(err) {
	case mm.ErrInvalidArgument:
		return -abi.EINVAL
	case mm.ErrAllocationRefused:
		return -abi.EEXIST
	case mm.ErrResourceExhausted:
		return -abi.ENOMEM
	case mm.ErrIO:
		return -abi.EIO
	case mm.ErrAccessDenied:
		return -abi.EACCES
	default:
		return -abi.EINVAL
	}
}

func sysMmap(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int32 {
	return doMmap(l, task, args, int64(args.Args.R5))
}

// sysMmap2 takes its offset in pages.
func sysMmap2(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int32 {
	return doMmap(l, task, args, int64(uint32(args.Args.R5))*memory.PageSize)
}

func doMmap(l hclog.Logger, task *kernel.Task, args SysArgs, offset int64) int32 {
	req := mm.Request{
		Addr:   uint32(args.Args.R0),
		Size:   int(uint32(args.Args.R1)),
		Prot:   int(args.Args.R2),
		Flags:  int(args.Args.R3),
		FD:     int(args.Args.R4),
		Offset: offset,
	}

	addr, err := task.Mmap(req)
	if err != nil {
		if errors.Is(err, mm.ErrBadDescriptor) {
			return -abi.EBADF
		}

		l.Debug("mmap failed", "error", err)
		return mmErrno(err)
	}

	return int32(addr)
}

func sysMunmap(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int32 {
	var (
		addr   = uint32(args.Args.R0)
		length = int(args.Args.R1)
	)

	if err := task.Munmap(addr, length); err != nil {
		l.Debug("munmap failed", "error", err)
		return mmErrno(err)
	}

	return 0
}

func init() {
	Syscalls[90] = sysMmap
	Syscalls[91] = sysMunmap
	Syscalls[192] = sysMmap2
}
