package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// NewStore 以 basePath 为根目录构建磁盘缓存，info 与 tarballs 目录在此一并创建。
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}
	for _, bucket := range []Bucket{BucketInfo, BucketTarball} {
		if err := os.MkdirAll(filepath.Join(abs, string(bucket)), 0o755); err != nil {
			return nil, fmt.Errorf("create %s cache dir: %w", bucket, err)
		}
	}
	return &diskStore{root: abs}, nil
}

// diskStore 对同一文件的并发写入以最后一次 rename 为准。
type diskStore struct {
	root string
}

func (s *diskStore) Open(ctx context.Context, locator Locator) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filePath, err := s.path(locator)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, ErrNotFound
	}
	return f, nil
}

func (s *diskStore) Write(ctx context.Context, locator Locator, body io.Reader) (int64, error) {
	filePath, err := s.path(locator)
	if err != nil {
		return 0, err
	}
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(tmp, contextReader{ctx: ctx, r: body})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), filePath)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	return written, nil
}

func (s *diskStore) Remove(_ context.Context, locator Locator) error {
	filePath, err := s.path(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// path 把 Locator 映射为 Bucket 目录下的单层文件。
func (s *diskStore) path(locator Locator) (string, error) {
	switch locator.Bucket {
	case BucketInfo, BucketTarball:
	default:
		return "", fmt.Errorf("unknown cache bucket %q", locator.Bucket)
	}
	key := locator.Key
	if key == "" || key == "." || key == ".." || strings.HasPrefix(key, ".partial-") || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("invalid cache key: %q", key)
	}
	return filepath.Join(s.root, string(locator.Bucket), key), nil
}

// contextReader 在每次读取前检查 ctx，使大文件写入可以被取消。
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
