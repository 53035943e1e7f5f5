package fs

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// DefaultDirentCache is the number of resolved paths a MountNamespace keeps.
const DefaultDirentCache = 1000

type MountNamespace struct {
	Root        *Dirent
	DirentCache *lru.ARCCache
}

func NewMountNamespace(cacheSize int) (*MountNamespace, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultDirentCache
	}

	cache, err := lru.NewARC(cacheSize)
	if err != nil {
		return nil, err
	}

	return &MountNamespace{
		DirentCache: cache,
	}, nil
}

func (m *MountNamespace) SetRoot(i *Inode) {
	m.Root = &Dirent{Inode: i}
	m.DirentCache.Purge()
}

func (m *MountNamespace) LookupPath(ctx context.Context, path string) (*Dirent, error) {
	dirent, err := m.LookupDirent(ctx, path)
	if err != nil {
		return nil, err
	}

	if dirent.Inode.StableAttr.Type != Symlink {
		return dirent, nil
	}

	target, err := dirent.Inode.Ops.ReadLink(ctx, dirent.Inode)
	if err != nil {
		return nil, err
	}

	fullTarget := filepath.Clean(filepath.Join(filepath.Dir(path), target))

	return m.LookupPath(ctx, fullTarget)
}

func (m *MountNamespace) LookupDirent(ctx context.Context, path string) (*Dirent, error) {
	path = strings.TrimPrefix(filepath.Clean("/"+path), "/")

	if path == "" {
		return m.Root, nil
	}

	if val, ok := m.DirentCache.Get(path); ok {
		return val.(*Dirent), nil
	}

	sections := strings.Split(path, "/")

	cur := m.Root

	for _, part := range sections {
		if cur.Inode.StableAttr.Type != Directory {
			return nil, errors.Wrapf(ErrNotDirectory, "component: %s", cur.Name)
		}

		i, err := cur.Inode.Ops.LookupChild(ctx, cur.Inode, part)
		if err != nil {
			return nil, err
		}

		cur = &Dirent{Inode: i, Parent: cur, Name: part}
	}

	m.DirentCache.Add(path, cur)

	return cur, nil
}
