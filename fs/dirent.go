package fs

import "context"

type Dirent struct {
	Name   string
	Parent *Dirent
	Inode  *Inode
}

func (d *Dirent) Open(ctx context.Context, flags int) (Handle, error) {
	return d.Inode.Ops.Open(ctx, d.Inode, flags)
}
