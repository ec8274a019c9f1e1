package util

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const tmpSuffix = ".streamwatch.tmp"

// CopyFile copies src to dst through a temporary file in dst's directory and
// renames it into place, so dst never holds a partial copy. The source's
// permission bits and modification time are carried over where the platform
// allows. Returns the number of bytes written.
func CopyFile(ctx context.Context, src, dst string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, fmt.Errorf("failed to create parent dir: %w", err)
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open src: %w", err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(srcFile)

	info, err := srcFile.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat src: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*"+tmpSuffix)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: srcFile})
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return n, fmt.Errorf("failed to copy: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return n, fmt.Errorf("failed to flush temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return n, fmt.Errorf("failed to close temp file: %w", err)
	}

	_ = os.Chmod(tmpPath, info.Mode().Perm())

	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return n, fmt.Errorf("failed to rename: %w", err)
	}

	_ = os.Chtimes(dst, time.Now(), info.ModTime())

	return n, nil
}

// FileChecksum returns the SHA-256 digest of the file at path.
func FileChecksum(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

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
