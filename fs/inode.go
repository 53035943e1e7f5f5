package fs

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrUnknownPath    = errors.New("unknown path")
	ErrNotSymlink     = errors.New("not symlink")
	ErrNotDirectory   = errors.New("not a directory")
	ErrIsDirectory    = errors.New("is a directory")
	ErrNotImplemented = errors.New("not implemented")
)

type InodeType int

const (
	RegularFile InodeType = iota
	Directory
	Symlink
	Pipe
	Socket
	CharacterDevice
	BlockDevice

	// Anonymous covers anything without a node on a filesystem.
	Anonymous
)

var inodeTypeNames = map[InodeType]string{
	RegularFile:     "file",
	Directory:       "directory",
	Symlink:         "symlink",
	Pipe:            "pipe",
	Socket:          "socket",
	CharacterDevice: "character-device",
	BlockDevice:     "block-device",
	Anonymous:       "anonymous",
}

func (n InodeType) String() string {
	if s, ok := inodeTypeNames[n]; ok {
		return s
	}

	return "unknown"
}

// Mappable reports whether files of this type can back a memory mapping.
// Only regular files have stable, seekable contents.
func (n InodeType) Mappable() bool {
	return n == RegularFile
}

// InodeStableAttr holds the attributes fixed when the inode is created.
type InodeStableAttr struct {
	Type InodeType

	DeviceID  uint64
	InodeID   uint64
	BlockSize int64

	// Device numbers of the filesystem the inode lives on.
	DeviceFileMajor uint32
	DeviceFileMinor uint32
}

func (attr *InodeStableAttr) SetType(mode os.FileMode) {
	switch mode & os.ModeType {
	case 0:
		attr.Type = RegularFile
	case os.ModeDir:
		attr.Type = Directory
	case os.ModeSymlink:
		attr.Type = Symlink
	case os.ModeNamedPipe:
		attr.Type = Pipe
	case os.ModeSocket:
		attr.Type = Socket
	case os.ModeDevice | os.ModeCharDevice:
		attr.Type = CharacterDevice
	case os.ModeDevice:
		attr.Type = BlockDevice
	default:
		attr.Type = Anonymous
	}
}

type InodeUnstableAttr struct {
	Size  int64
	Perms int

	UserId, GroupId int

	ModificationTime time.Time
}

// Handle is an open file: a byte stream with a current offset.
type Handle interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
}

type InodeOps interface {
	LookupChild(ctx context.Context, inode *Inode, name string) (*Inode, error)
	UnstableAttr(ctx context.Context, inode *Inode) (*InodeUnstableAttr, error)
	ReadLink(ctx context.Context, inode *Inode) (string, error)

	// Open returns a handle positioned at offset 0. flags carries the
	// O_ACCMODE bits of the open request.
	Open(ctx context.Context, inode *Inode, flags int) (Handle, error)
}

type Inode struct {
	StableAttr InodeStableAttr

	Ops InodeOps
}

func NewInode(attr InodeStableAttr, ops InodeOps) *Inode {
	return &Inode{
		StableAttr: attr,
		Ops:        ops,
	}
}
