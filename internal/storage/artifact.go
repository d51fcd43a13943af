// Package storage owns the on-disk bytes of uploaded files. Artifacts are
// written once (optionally gzip-encoded) and read back as streams that
// always yield the original content.
package storage

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// WriteResult describes a persisted artifact. Size is measured from the
// pre-compression input, never from the stored bytes.
type WriteResult struct {
	StoredName string
	Path       string
	Size       int64
	Compressed bool
}

// Store persists artifacts under a base directory. Open readers are
// refcounted per path so deletion never races an in-flight download:
// deleting a busy path is deferred until the last reader closes, and a
// path pending deletion refuses new opens.
type Store struct {
	baseDir string

	mu      sync.Mutex
	readers map[string]int
	pending map[string]bool
}

func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{
		baseDir: baseDir,
		readers: make(map[string]int),
		pending: make(map[string]bool),
	}, nil
}

// BaseDir returns the directory artifacts live under.
func (s *Store) BaseDir() string { return s.baseDir }

// Write streams src to disk under a fresh unique name, gzip-encoding when
// compress is set. A partial artifact is removed on any failure.
func (s *Store) Write(ctx context.Context, src io.Reader, originalName string, compress bool) (*WriteResult, error) {
	storedName := uuid.NewString() + filepath.Ext(originalName)
	if compress {
		storedName += ".gz"
	}
	path := filepath.Join(s.baseDir, storedName)

	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create artifact: %w", err)
	}

	counted := &countingReader{r: &ctxReader{ctx: ctx, r: src}}

	var copyErr error
	if compress {
		gz := gzip.NewWriter(dst)
		if _, copyErr = io.Copy(gz, counted); copyErr == nil {
			copyErr = gz.Close()
		} else {
			gz.Close()
		}
	} else {
		_, copyErr = io.Copy(dst, counted)
	}

	if closeErr := dst.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write artifact: %w", copyErr)
	}

	return &WriteResult{
		StoredName: storedName,
		Path:       path,
		Size:       counted.n,
		Compressed: compress,
	}, nil
}

// OpenRead opens the artifact at path. When compressed is set the returned
// stream gunzips transparently, so callers always observe the original
// bytes. The reader must be closed; it holds the path open against delete.
func (s *Store) OpenRead(path string, compressed bool) (io.ReadCloser, error) {
	s.mu.Lock()
	if s.pending[path] {
		s.mu.Unlock()
		return nil, os.ErrNotExist
	}
	s.readers[path]++
	s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		s.release(path)
		return nil, err
	}

	var r io.Reader = f
	if compressed {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			s.release(path)
			return nil, fmt.Errorf("open compressed artifact: %w", err)
		}
		r = gz
	}

	return &trackedReader{r: r, f: f, store: s, path: path}, nil
}

// Delete removes the artifact at path. Absence is not an error. If readers
// are in flight the removal is deferred to the last Close; either way the
// path is unavailable to new opens once Delete returns.
func (s *Store) Delete(path string) error {
	s.mu.Lock()
	if s.readers[path] > 0 {
		s.pending[path] = true
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

// release drops one reader reference and performs a deferred delete when
// the last reference goes away.
func (s *Store) release(path string) {
	s.mu.Lock()
	s.readers[path]--
	if s.readers[path] > 0 {
		s.mu.Unlock()
		return
	}
	delete(s.readers, path)
	doDelete := s.pending[path]
	delete(s.pending, path)
	s.mu.Unlock()

	if doDelete {
		os.Remove(path)
	}
}

type trackedReader struct {
	r     io.Reader
	f     *os.File
	store *Store
	path  string

	closeOnce sync.Once
}

func (t *trackedReader) Read(p []byte) (int, error) { return t.r.Read(p) }

func (t *trackedReader) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if gz, ok := t.r.(*gzip.Reader); ok {
			err = gz.Close()
		}
		if closeErr := t.f.Close(); err == nil {
			err = closeErr
		}
		t.store.release(t.path)
	})
	return err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// ctxReader aborts a copy once the request context is done, keeping large
// uploads cancellable.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
