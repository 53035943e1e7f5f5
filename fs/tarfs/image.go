package tarfs

import (
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// OpenImage loads a root image from path. The compression is chosen by
// extension: .tar.gz/.tgz, .tar.zst, .tar.lz4, or a plain tar otherwise.
func OpenImage(path string) (*TarFS, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	var r io.Reader = f

	switch {
	case strings.HasSuffix(path, ".gz"), strings.HasSuffix(path, ".tgz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}

		defer gz.Close()

		r = gz
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}

		defer dec.Close()

		r = dec
	case strings.HasSuffix(path, ".lz4"):
		r = lz4.NewReader(f)
	}

	return NewTarFS(r)
}
