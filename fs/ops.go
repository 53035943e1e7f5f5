package fs

import (
	"context"
)

type StandardDirOps struct{}

func (_ StandardDirOps) ReadLink(ctx context.Context, inode *Inode) (string, error) {
	return "", ErrNotSymlink
}

func (_ StandardDirOps) Open(ctx context.Context, inode *Inode, flags int) (Handle, error) {
	return nil, ErrIsDirectory
}

type StandardFileOps struct{}

func (_ StandardFileOps) LookupChild(ctx context.Context, inode *Inode, name string) (*Inode, error) {
	return nil, ErrNotDirectory
}
