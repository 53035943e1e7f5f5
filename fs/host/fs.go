package host

import (
	"context"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/evanphx/mmkern/abi/linux"
	"github.com/evanphx/mmkern/fs"
	"github.com/evanphx/mmkern/log"
)

// HostFS exposes a directory of the host as a filesystem. Files are opened
// directly on the host, so writes land on the host file.
type HostFS struct {
	Device *fs.Device
	root   *fs.Inode
}

func statToStableAttr(stat os.FileInfo) fs.InodeStableAttr {
	var attr fs.InodeStableAttr
	attr.BlockSize = 4096
	attr.SetType(stat.Mode())

	if lower, ok := stat.Sys().(*syscall.Stat_t); ok {
		dev := uint64(lower.Dev)
		attr.BlockSize = int64(lower.Blksize)
		attr.DeviceFileMajor = unix.Major(dev)
		attr.DeviceFileMinor = unix.Minor(dev)
		attr.DeviceID = dev
		attr.InodeID = uint64(lower.Ino)
	}

	return attr
}

func NewHostFS(path string) (*HostFS, error) {
	dev := fs.NewAnonDevice()
	h := &HostFS{
		Device: dev,
	}

	log.L.Trace("creating host fs", "path", path)

	stat, err := os.Stat(path)
	if err != nil {
		log.L.Error("error stating hostfs path", "error", err)
		return nil, err
	}

	if !stat.IsDir() {
		return nil, fs.ErrNotDirectory
	}

	attr := statToStableAttr(stat)

	h.root = fs.NewInode(attr, &Dir{host: h, FSPath: FSPath{Path: path, Info: stat}})

	return h, nil
}

func (h *HostFS) Root() (*fs.Inode, error) {
	return h.root, nil
}

type FSPath struct {
	Path string
	Info os.FileInfo
}

func (p *FSPath) UnstableAttr(ctx context.Context, inode *fs.Inode) (*fs.InodeUnstableAttr, error) {
	stat, err := os.Lstat(p.Path)
	if err != nil {
		return nil, err
	}

	var us fs.InodeUnstableAttr
	us.ModificationTime = stat.ModTime()
	us.Perms = int(stat.Mode().Perm())
	us.Size = stat.Size()

	if lower, ok := stat.Sys().(*syscall.Stat_t); ok {
		us.GroupId = int(lower.Gid)
		us.UserId = int(lower.Uid)
	}

	return &us, nil
}

type Dir struct {
	fs.StandardDirOps
	FSPath

	host *HostFS
}

type Entry struct {
	fs.StandardFileOps
	FSPath
}

func (e *Entry) ReadLink(ctx context.Context, inode *fs.Inode) (string, error) {
	return os.Readlink(e.Path)
}

func (e *Entry) Open(ctx context.Context, inode *fs.Inode, flags int) (fs.Handle, error) {
	var mode int

	switch flags & linux.O_ACCMODE {
	case linux.O_WRONLY:
		mode = os.O_WRONLY
	case linux.O_RDWR:
		mode = os.O_RDWR
	default:
		mode = os.O_RDONLY
	}

	f, err := os.OpenFile(e.Path, mode, 0)
	if err != nil {
		return nil, err
	}

	return f, nil
}

func (d *Dir) LookupChild(ctx context.Context, inode *fs.Inode, name string) (*fs.Inode, error) {
	log.L.Trace("lookup child on host fs", "dir", d.Path, "name", name)

	cp := filepath.Join(d.Path, name)

	stat, err := os.Lstat(cp)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fs.ErrUnknownPath
		}

		return nil, err
	}

	attr := statToStableAttr(stat)

	if stat.IsDir() {
		return fs.NewInode(attr, &Dir{host: d.host, FSPath: FSPath{Path: cp, Info: stat}}), nil
	}

	return fs.NewInode(attr, &Entry{FSPath: FSPath{Path: cp, Info: stat}}), nil
}
