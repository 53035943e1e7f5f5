package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/evanphx/mmkern/kernel"
	"github.com/evanphx/mmkern/memory"
)

func TestSession(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "data")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), memory.PageSize), 0644))

	t.Run("shared fill lands in the host file", func(t *testing.T) {
		var out bytes.Buffer

		s, err := newSession(hclog.NewNullLogger(), &out, kernel.DefaultConfig(), dir)
		require.NoError(t, err)

		err = s.run(sessionOptions{
			Path:   "/data",
			Size:   memory.PageSize,
			Shared: true,
			Fill:   "hello",
			Dump:   true,
		})
		require.NoError(t, err)

		_, err = s.close()
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, "helloxxx", string(data[:8]))
		require.Len(t, data, memory.PageSize)

		require.Contains(t, out.String(), "mapping blake2b")
		require.Contains(t, out.String(), "file    blake2b")
		require.Contains(t, out.String(), "unmapped (0 frames in use)")
	})

	t.Run("anonymous mappings need no root", func(t *testing.T) {
		var out bytes.Buffer

		s, err := newSession(hclog.NewNullLogger(), &out, kernel.DefaultConfig(), "")
		require.NoError(t, err)

		require.NoError(t, s.run(sessionOptions{
			Size:  3 * memory.PageSize,
			Anon:  true,
			Fixed: 0x70000000,
		}))

		require.Contains(t, out.String(), "mapped 0x70000000-0x70003000 (4 frames in use)")

		_, err = s.close()
		require.NoError(t, err)
		require.Equal(t, 0, s.k.Frames.Used())
	})

	t.Run("reports mmap failures", func(t *testing.T) {
		s, err := newSession(hclog.NewNullLogger(), &bytes.Buffer{}, kernel.DefaultConfig(), dir)
		require.NoError(t, err)

		require.Error(t, s.run(sessionOptions{Path: "/missing", Size: memory.PageSize}))
		require.Error(t, s.run(sessionOptions{Anon: true, Size: 0}))
	})
}
