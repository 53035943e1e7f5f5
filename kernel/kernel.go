package kernel

import (
	hclog "github.com/hashicorp/go-hclog"

	"github.com/evanphx/mmkern/fs"
	"github.com/evanphx/mmkern/memory"
	"github.com/evanphx/mmkern/mm"
)

type Kernel struct {
	L hclog.Logger

	Frames *memory.PhysMem
	MM     *mm.Manager

	cfg       Config
	processes *ProcessManager
}

func NewKernel(l hclog.Logger, cfg Config) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if l == nil {
		l = hclog.NewNullLogger()
	}

	frames := memory.NewPhysMem(cfg.Frames)

	mgr, err := mm.NewManager(l, frames, cfg.MM)
	if err != nil {
		return nil, err
	}

	k := &Kernel{
		L:         l.Named("kernel"),
		Frames:    frames,
		MM:        mgr,
		cfg:       cfg,
		processes: NewProcessManager(),
	}

	return k, nil
}

func (k *Kernel) Config() Config {
	return k.cfg
}

// NewMountNamespace returns an empty namespace using the configured
// dirent cache size.
func (k *Kernel) NewMountNamespace() (*fs.MountNamespace, error) {
	return fs.NewMountNamespace(k.cfg.DirentCache)
}

// NewProcess creates a running process with an empty address space rooted
// at mount.
func (k *Kernel) NewProcess(mount *fs.MountNamespace) *Process {
	proc := &Process{
		Kernel:  k,
		Mount:   mount,
		pt:      memory.NewPageTable(k.Frames),
		regions: k.MM.NewRegionTable(),
		status:  Running,
		done:    make(chan struct{}),
	}

	k.processes.AssignPid(proc)

	proc.L = k.L.With("pid", proc.Pid)

	proc.L.Trace("process-start")

	return proc
}

func (k *Kernel) LookupProcess(pid int) (*Process, bool) {
	return k.processes.Get(pid)
}
