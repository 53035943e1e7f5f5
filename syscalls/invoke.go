package syscalls

import (
	"context"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/evanphx/mmkern/abi"
	"github.com/evanphx/mmkern/kernel"
	"github.com/evanphx/mmkern/log"
)

type Invoker struct {
	Kernel *kernel.Kernel
	L      hclog.Logger
}

// InvokeSyscall runs the handler for args.Index against the task carried
// in ctx and returns its result or a negative errno.
func (i *Invoker) InvokeSyscall(ctx context.Context, args SysArgs) int32 {
	if args.Index < 0 || int(args.Index) >= len(Syscalls) {
		return -abi.ENOSYS
	}

	f := Syscalls[args.Index]
	if f == nil {
		return -abi.ENOSYS
	}

	p, ok := kernel.GetTask(ctx)
	if !ok {
		return -abi.ENOSYS
	}

	l := i.L
	if l == nil {
		l = log.L
	}

	ret := f(ctx, l.With("pid", p.Pid), p, args)

	l.Trace("syscall", "pid", p.Pid, "index", args.Index, "ret", ret)

	return ret
}
