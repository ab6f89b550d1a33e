package registry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/klauspost/compress/gzip"

	"github.com/any-hub/any-cdn/internal/cache"
	"github.com/any-hub/any-cdn/internal/logging"
)

// Archive 返回解压后的 tar 字节流，调用方负责 Close。每次调用都得到独立的 Reader。
// 开启 tarball 磁盘缓存时，同一版本的并发下载合并为一次，之后直接读盘。
func (c *Client) Archive(ctx context.Context, name, version string) (io.ReadCloser, error) {
	if !c.durable.Enabled(cache.BucketTarball) {
		body, err := c.fetchTarball(ctx, name, version)
		if err != nil {
			return nil, err
		}
		return gunzipMaybe(body)
	}

	locator := cache.Tarball(name, version)
	if f, err := c.durable.Open(ctx, locator); err == nil {
		c.logger.WithFields(logging.PackageFields(name, version)).
			WithField("action", "registry_tarball").
			Debug("命中 tarball 磁盘缓存")
		return gunzipMaybe(f)
	} else if !errors.Is(err, cache.ErrNotFound) {
		return nil, fmt.Errorf("read tarball cache %s@%s: %w", name, version, err)
	}

	_, err, _ := c.tarballGroup.Do(locator.Key, func() (interface{}, error) {
		return nil, c.downloadTarball(context.WithoutCancel(ctx), name, version, locator)
	})
	if err != nil {
		return nil, err
	}

	f, err := c.durable.Open(ctx, locator)
	if err != nil {
		return nil, fmt.Errorf("reopen tarball cache %s@%s: %w", name, version, err)
	}
	return gunzipMaybe(f)
}

func (c *Client) downloadTarball(ctx context.Context, name, version string, locator cache.Locator) error {
	body, err := c.fetchTarball(ctx, name, version)
	if err != nil {
		return err
	}
	defer body.Close()

	size, err := c.durable.Write(ctx, locator, body)
	if err != nil {
		return fmt.Errorf("%w: store tarball: %v", ErrFetchFailed, err)
	}
	c.logger.WithFields(logging.PackageFields(name, version)).
		WithField("action", "registry_tarball").
		WithField("size", size).
		Debug("tarball 已写入磁盘缓存")
	return nil
}

// fetchTarball 请求 tarball，最多跟随一次重定向，返回原始（未解压）的响应体。
func (c *Client) fetchTarball(ctx context.Context, name, version string) (io.ReadCloser, error) {
	tarballURL := c.TarballURL(name, version)
	fields := logging.PackageFields(name, version)
	fields["action"] = "registry_tarball"
	fields["upstream"] = tarballURL
	c.logger.WithFields(fields).Debug("回源获取 tarball")

	resp, err := c.get(ctx, tarballURL)
	if err != nil {
		return nil, err
	}

	if isRedirect(resp.StatusCode) {
		location := resp.Header.Get("Location")
		resp.Body.Close()
		if location == "" {
			return nil, fmt.Errorf("%w: redirect without location", ErrFetchFailed)
		}
		target, err := resolveLocation(resp.Request.URL, location)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
		}
		fields["redirect"] = target
		resp, err = c.get(ctx, target)
		if err != nil {
			return nil, err
		}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, ErrNotFound
	default:
		c.logUpstreamError(fields, resp, "获取 tarball 失败")
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}
}

func (c *Client) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return resp, nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// gunzipMaybe 仅在数据带 gzip 头时解压，否则原样透传。
func gunzipMaybe(body io.ReadCloser) (io.ReadCloser, error) {
	buffered := bufio.NewReader(body)
	magic, err := buffered.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		body.Close()
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if len(magic) < 2 || magic[0] != 0x1f || magic[1] != 0x8b {
		return &readCloser{Reader: buffered, closers: []io.Closer{body}}, nil
	}

	gz, err := gzip.NewReader(buffered)
	if err != nil {
		body.Close()
		return nil, fmt.Errorf("%w: gzip: %v", ErrFetchFailed, err)
	}
	return &readCloser{Reader: gz, closers: []io.Closer{gz, body}}, nil
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var first error
	for _, closer := range r.closers {
		if err := closer.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
