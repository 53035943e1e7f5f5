package kernel

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/evanphx/mmkern/abi/linux"
	"github.com/evanphx/mmkern/fs"
)

var (
	ErrNotReadable = errors.New("file not open for reading")
	ErrNotWritable = errors.New("file not open for writing")
	ErrNotSeekable = errors.New("file is not seekable")
)

// File is an open file description. Descriptors created by dup2 share it
// along with its offset. Lock serializes users of the offset; Read, Write
// and Seek do not take it themselves.
type File struct {
	mu   sync.Mutex
	refs int

	ioMu sync.Mutex

	Dirent *fs.Dirent
	flags  int
	typ    fs.InodeType

	handle fs.Handle
	r      io.ReadCloser
	w      io.WriteCloser
}

func (f *File) Lock() {
	f.ioMu.Lock()
}

func (f *File) Unlock() {
	f.ioMu.Unlock()
}

func (f *File) Type() fs.InodeType {
	return f.typ
}

func (f *File) Readable() bool {
	if f.handle == nil && f.r == nil {
		return false
	}

	return f.flags&linux.O_ACCMODE != linux.O_WRONLY
}

func (f *File) Writable() bool {
	if f.handle == nil && f.w == nil {
		return false
	}

	return f.flags&linux.O_ACCMODE != linux.O_RDONLY
}

func (f *File) Read(b []byte) (int, error) {
	if !f.Readable() {
		return 0, ErrNotReadable
	}

	if f.handle != nil {
		return f.handle.Read(b)
	}

	return f.r.Read(b)
}

func (f *File) Write(b []byte) (int, error) {
	if !f.Writable() {
		return 0, ErrNotWritable
	}

	if f.handle != nil {
		return f.handle.Write(b)
	}

	return f.w.Write(b)
}

func (f *File) Seek(off int64, whence int) (int64, error) {
	if f.handle == nil {
		return 0, ErrNotSeekable
	}

	return f.handle.Seek(off, whence)
}

func (f *File) incRef() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.refs++
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.refs--
	if f.refs > 0 {
		return nil
	}

	var err error

	if f.handle != nil {
		if se := f.handle.Close(); se != nil {
			err = se
		}
	}

	if f.r != nil {
		if se := f.r.Close(); se != nil {
			err = se
		}
	}

	if f.w != nil {
		if se := f.w.Close(); se != nil {
			err = se
		}
	}

	return err
}
