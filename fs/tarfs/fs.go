package tarfs

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanphx/mmkern/fs"
)

type Dir struct {
	fs.StandardDirOps
	Unstable fs.InodeUnstableAttr
	Children map[string]*fs.Inode
	Order    []string
}

func newDir() *Dir {
	return &Dir{
		Children: make(map[string]*fs.Inode),
	}
}

func (d *Dir) AddChild(name string, inode *fs.Inode) {
	if _, ok := d.Children[name]; !ok {
		d.Order = append(d.Order, name)
	}

	d.Children[name] = inode
}

type TarFS struct {
	Device *fs.Device
	root   *fs.Inode
}

func (t *TarFS) newAttr(mode os.FileMode) fs.InodeStableAttr {
	var attr fs.InodeStableAttr
	attr.BlockSize = 4096
	attr.DeviceFileMajor = t.Device.Major
	attr.DeviceFileMinor = t.Device.Minor
	attr.DeviceID = t.Device.DeviceID()
	attr.InodeID = t.Device.NextIno()
	attr.SetType(mode)

	return attr
}

func (t *TarFS) findParent(root *Dir, name string) (*Dir, error) {
	dirName := filepath.Dir(name)

	if dirName == "" || dirName == "." {
		return root, nil
	}

	parent := root

	for _, sec := range strings.Split(dirName, "/") {
		ch, ok := parent.Children[sec]
		if !ok {
			ch = fs.NewInode(t.newAttr(os.ModeDir|0755), newDir())
			parent.AddChild(sec, ch)
		}

		dir, ok := ch.Ops.(*Dir)
		if !ok {
			return nil, fs.ErrNotDirectory
		}

		parent = dir
	}

	return parent, nil
}

// NewTarFS builds an in-memory filesystem from an uncompressed tar stream.
// File bodies are held in memory and may be written through open handles.
func NewTarFS(r io.Reader) (*TarFS, error) {
	tr := tar.NewReader(r)

	t := &TarFS{Device: fs.NewAnonDevice()}

	root := newDir()

	rootInode := fs.NewInode(t.newAttr(os.ModeDir|0755), root)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, err
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}

		mode := hdr.FileInfo().Mode()

		var us fs.InodeUnstableAttr
		us.ModificationTime = hdr.ModTime
		us.GroupId = hdr.Gid
		us.UserId = hdr.Uid
		us.Perms = int(mode.Perm())
		us.Size = hdr.Size

		name := strings.TrimPrefix(hdr.Name, "./")
		name = strings.Trim(name, "/")

		// root!
		if name == "" || name == "." {
			root.Unstable = us
			continue
		}

		var ops fs.InodeOps

		switch {
		case mode.IsDir():
			if existing, ok := lookupExisting(t, root, name); ok {
				existing.Unstable = us
				continue
			}

			dir := newDir()
			dir.Unstable = us
			ops = dir
		case mode&os.ModeSymlink != 0:
			us.Size = int64(len(hdr.Linkname))
			ops = &File{
				Unstable: us,
				Body:     []byte(hdr.Linkname),
			}
		default:
			ops = &File{
				Unstable: us,
				Body:     data,
			}
		}

		parent, err := t.findParent(root, name)
		if err != nil {
			return nil, err
		}

		parent.AddChild(filepath.Base(name), fs.NewInode(t.newAttr(mode), ops))
	}

	t.root = rootInode

	return t, nil
}

// lookupExisting finds a directory that was implied by an earlier entry.
func lookupExisting(t *TarFS, root *Dir, name string) (*Dir, bool) {
	parent, err := t.findParent(root, name)
	if err != nil {
		return nil, false
	}

	ch, ok := parent.Children[filepath.Base(name)]
	if !ok {
		return nil, false
	}

	dir, ok := ch.Ops.(*Dir)
	return dir, ok
}

func (t *TarFS) Root() (*fs.Inode, error) {
	return t.root, nil
}

func (d *Dir) LookupChild(ctx context.Context, inode *fs.Inode, name string) (*fs.Inode, error) {
	inode, ok := d.Children[name]
	if !ok {
		return nil, fs.ErrUnknownPath
	}

	return inode, nil
}

func (d *Dir) UnstableAttr(ctx context.Context, inode *fs.Inode) (*fs.InodeUnstableAttr, error) {
	return &d.Unstable, nil
}
