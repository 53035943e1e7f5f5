package tarfs

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/evanphx/mmkern/abi/linux"
	"github.com/evanphx/mmkern/fs"
)

var ErrNegativeOffset = errors.New("negative offset")

// File is a file held entirely in memory. Handles opened on it share Body.
type File struct {
	fs.StandardFileOps

	mu       sync.Mutex
	Unstable fs.InodeUnstableAttr
	Body     []byte
}

func (f *File) UnstableAttr(ctx context.Context, inode *fs.Inode) (*fs.InodeUnstableAttr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	us := f.Unstable
	us.Size = int64(len(f.Body))

	return &us, nil
}

func (f *File) ReadLink(ctx context.Context, inode *fs.Inode) (string, error) {
	if inode.StableAttr.Type != fs.Symlink {
		return "", fs.ErrNotSymlink
	}

	return string(f.Body), nil
}

func (f *File) Open(ctx context.Context, inode *fs.Inode, flags int) (fs.Handle, error) {
	if inode.StableAttr.Type == fs.Symlink {
		return nil, fs.ErrNotImplemented
	}

	return &handle{file: f}, nil
}

// Bytes returns a copy of the current contents.
func (f *File) Bytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]byte(nil), f.Body...)
}

type handle struct {
	file   *File
	offset int64
}

func (h *handle) Read(b []byte) (int, error) {
	f := h.file

	f.mu.Lock()
	defer f.mu.Unlock()

	if h.offset >= int64(len(f.Body)) {
		return 0, io.EOF
	}

	n := copy(b, f.Body[h.offset:])
	h.offset += int64(n)

	return n, nil
}

func (h *handle) Write(b []byte) (int, error) {
	f := h.file

	f.mu.Lock()
	defer f.mu.Unlock()

	end := h.offset + int64(len(b))

	if end > int64(len(f.Body)) {
		if end > int64(cap(f.Body)) {
			grown := make([]byte, end, end*2)
			copy(grown, f.Body)
			f.Body = grown
		} else {
			old := len(f.Body)
			f.Body = f.Body[:end]
			clear(f.Body[old:])
		}
	}

	n := copy(f.Body[h.offset:], b)
	h.offset += int64(n)

	return n, nil
}

func (h *handle) Seek(offset int64, whence int) (int64, error) {
	f := h.file

	f.mu.Lock()
	defer f.mu.Unlock()

	switch whence {
	case linux.SEEK_SET:
	case linux.SEEK_CUR:
		offset += h.offset
	case linux.SEEK_END:
		offset += int64(len(f.Body))
	default:
		return 0, errors.Errorf("bad whence %d", whence)
	}

	if offset < 0 {
		return 0, errors.Wrapf(ErrNegativeOffset, "offset=%d", offset)
	}

	h.offset = offset

	return offset, nil
}

func (h *handle) Close() error {
	return nil
}
