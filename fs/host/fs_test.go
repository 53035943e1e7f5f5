package host

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/evanphx/mmkern/abi/linux"
	"github.com/evanphx/mmkern/fs"
)

func TestHostFS(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "file"), []byte("contents"), 0644))

	h, err := NewHostFS(dir)
	require.NoError(t, err)

	root, err := h.Root()
	require.NoError(t, err)

	mnt, err := fs.NewMountNamespace(16)
	require.NoError(t, err)
	mnt.SetRoot(root)

	de, err := mnt.LookupPath(ctx, "/sub/file")
	require.NoError(t, err)
	require.Equal(t, fs.RegularFile, de.Inode.StableAttr.Type)

	us, err := de.Inode.Ops.UnstableAttr(ctx, de.Inode)
	require.NoError(t, err)
	require.Equal(t, int64(8), us.Size)

	hd, err := de.Open(ctx, linux.O_RDWR)
	require.NoError(t, err)
	defer hd.Close()

	_, err = hd.Seek(0, linux.SEEK_END)
	require.NoError(t, err)

	_, err = hd.Write([]byte("!"))
	require.NoError(t, err)

	_, err = hd.Seek(0, linux.SEEK_SET)
	require.NoError(t, err)

	data, err := io.ReadAll(hd)
	require.NoError(t, err)
	require.Equal(t, "contents!", string(data))

	_, err = mnt.LookupPath(ctx, "/sub/nope")
	require.Equal(t, fs.ErrUnknownPath, err)

	_, err = mnt.LookupPath(ctx, "/sub/file/deeper")
	require.Equal(t, fs.ErrNotDirectory, errors.Cause(err))
}

func TestHostFSRequiresDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	_, err := NewHostFS(path)
	require.Equal(t, fs.ErrNotDirectory, err)
}
