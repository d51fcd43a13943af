package storage

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"
)

// PreviewCache materializes a decompressed copy of a gzip-stored artifact
// next to it (the ".gz" suffix stripped) so repeated previews of the same
// file decompress at most once. Concurrent first requests for one path are
// collapsed through singleflight; the copy on disk is the cache, removed
// only when the owning file is deleted.
type PreviewCache struct {
	group singleflight.Group
}

func NewPreviewCache() *PreviewCache {
	return &PreviewCache{}
}

// Materialize returns the path of a plain (uncompressed) copy of the
// artifact at path. Uncompressed artifacts are returned as-is.
func (p *PreviewCache) Materialize(path string, compressed bool) (string, error) {
	if !compressed || !strings.HasSuffix(path, ".gz") {
		return path, nil
	}

	plain := strings.TrimSuffix(path, ".gz")
	_, err, _ := p.group.Do(path, func() (interface{}, error) {
		if _, statErr := os.Stat(plain); statErr == nil {
			return nil, nil
		}
		return nil, decompressTo(path, plain)
	})
	if err != nil {
		return "", err
	}
	return plain, nil
}

// Invalidate removes the materialized copy for path, if any. Called on
// file deletion only.
func (p *PreviewCache) Invalidate(path string) {
	if !strings.HasSuffix(path, ".gz") {
		return
	}
	p.group.Forget(path)
	os.Remove(strings.TrimSuffix(path, ".gz"))
}

// decompressTo gunzips src into dst via a temp file and rename, so a
// concurrent reader never sees a half-written copy.
func decompressTo(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return err
	}
	defer gz.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}

	if _, err := io.Copy(tmp, gz); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), dst)
}
