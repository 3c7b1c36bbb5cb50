// Package archive decompresses repository metadata files. rpm-md repositories
// publish primary, filelists and their sqlite variants as single compressed
// streams (gz, bz2, xz or zst); the format is detected from the name and header.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/glorpus-work/querykit/pkg/errors"
	"github.com/glorpus-work/querykit/pkg/fsutil"
	"github.com/mholt/archives"
)

// Manager handles decompression of downloaded metadata.
type Manager struct{}

// NewManager creates a new Manager instance.
func NewManager() *Manager {
	return &Manager{}
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (rc *readCloser) Close() error {
	var first error
	for _, c := range rc.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open returns a reader over the decompressed contents of path. Files that are
// not compressed are returned as-is.
func (am *Manager) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	format, stream, err := archives.Identify(ctx, filepath.Base(path), file)
	if err != nil {
		if errors.Is(err, archives.NoMatch) {
			return &readCloser{Reader: stream, closers: []io.Closer{file}}, nil
		}
		_ = file.Close()
		return nil, fmt.Errorf("failed to identify %s: %w", path, err)
	}

	decomp, ok := format.(archives.Decompressor)
	if !ok {
		_ = file.Close()
		return nil, fmt.Errorf("%s is a %s archive: %w", path, format.Extension(), pkgerrors.ErrUnsupportedFormat)
	}
	rc, err := decomp.OpenReader(stream)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to open %s stream for %s: %w", format.Extension(), path, err)
	}
	return &readCloser{Reader: rc, closers: []io.Closer{rc, file}}, nil
}

// DecompressFile writes the decompressed contents of src to dst through a
// temporary file, so dst is either complete or absent.
func (am *Manager) DecompressFile(ctx context.Context, src, dst string) error {
	rc, err := am.Open(ctx, src)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	if err := fsutil.EnsureFileDir(dst); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".decompress-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", dst, err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: rc}); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to decompress %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := fsutil.Move(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Compress writes src to dst compressed with the format named by dst's
// extension (.gz, .bz2, .xz, .zst).
func (am *Manager) Compress(ctx context.Context, src, dst string) error {
	var comp archives.Compressor
	switch strings.ToLower(filepath.Ext(dst)) {
	case ".gz":
		comp = archives.Gz{}
	case ".bz2":
		comp = archives.Bz2{}
	case ".xz":
		comp = archives.Xz{}
	case ".zst":
		comp = archives.Zstd{}
	default:
		return fmt.Errorf("%s: %w", dst, pkgerrors.ErrUnsupportedFormat)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", dst, err)
	}
	w, err := comp.OpenWriter(out)
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to open compressor for %s: %w", dst, err)
	}
	if _, err := io.Copy(w, contextReader{ctx: ctx, r: in}); err != nil {
		_ = w.Close()
		_ = out.Close()
		return fmt.Errorf("failed to compress %s: %w", src, err)
	}
	if err := w.Close(); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to flush %s: %w", dst, err)
	}
	return out.Close()
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
