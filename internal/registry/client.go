// Package registry 封装对 npm Registry 的访问：包元数据、单版本 manifest 与 tarball，
// 并叠加进程内缓存、磁盘缓存与 singleflight 回源合并。
package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/any-cdn/internal/cache"
	"github.com/any-hub/any-cdn/internal/logging"
)

var (
	// ErrNotFound 表示 Registry 确认包或版本不存在（或返回了无法使用的响应）。
	ErrNotFound = errors.New("package not found")
	// ErrFetchFailed 表示访问 Registry 时发生网络错误或意外状态。
	ErrFetchFailed = errors.New("registry fetch failed")
)

// 错误日志里最多保留的上游响应体长度。
const maxErrorBody = 2048

// Options 描述 Client 的依赖与缓存参数。
type Options struct {
	Registry   string
	HTTPClient *http.Client
	Durable    *cache.Durable
	Memory     cache.MemoryOptions
	Logger     *logrus.Logger
	UserAgent  string
}

// Client 是 Registry 客户端，可被并发请求共享。
type Client struct {
	registry  string
	http      *http.Client
	durable   *cache.Durable
	versions  *cache.Memory[*VersionIndex]
	manifests *cache.Memory[Manifest]
	logger    *logrus.Logger
	userAgent string

	infoGroup    singleflight.Group
	tarballGroup singleflight.Group
}

// New 构造 Registry 客户端。
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		registry:  strings.TrimRight(opts.Registry, "/"),
		http:      httpClient,
		durable:   opts.Durable,
		versions:  cache.NewMemory[*VersionIndex](opts.Memory),
		manifests: cache.NewMemory[Manifest](opts.Memory),
		logger:    logger,
		userAgent: opts.UserAgent,
	}
}

// Registry 返回上游地址。
func (c *Client) Registry() string {
	return c.registry
}

// Stats 返回内存缓存条目数，供诊断接口使用。
func (c *Client) Stats() map[string]int {
	vPos, vNeg := c.versions.Len()
	mPos, mNeg := c.manifests.Len()
	return map[string]int{
		"versions":          vPos,
		"versions_missing":  vNeg,
		"manifests":         mPos,
		"manifests_missing": mNeg,
	}
}

// VersionIndex 返回包的版本与 dist-tag；包不存在时返回 ErrNotFound。
func (c *Client) VersionIndex(ctx context.Context, name string) (*VersionIndex, error) {
	switch value, state := c.versions.Get(name); state {
	case cache.Hit:
		return value, nil
	case cache.Missing:
		return nil, ErrNotFound
	}

	info, err := c.packageInfo(ctx, name)
	if err == nil {
		var index *VersionIndex
		index, err = parseVersionIndex(info)
		if err == nil {
			c.versions.Put(name, index)
			return index, nil
		}
	}
	if errors.Is(err, ErrNotFound) {
		c.versions.PutMissing(name)
	}
	return nil, err
}

// Manifest 返回指定版本清理后的 manifest；版本不存在时返回 ErrNotFound。
func (c *Client) Manifest(ctx context.Context, name, version string) (Manifest, error) {
	key := name + "@" + version
	switch value, state := c.manifests.Get(key); state {
	case cache.Hit:
		return value, nil
	case cache.Missing:
		return nil, ErrNotFound
	}

	info, err := c.packageInfo(ctx, name)
	if err == nil {
		var manifest Manifest
		manifest, err = parseManifest(info, version)
		if err == nil {
			c.manifests.Put(key, manifest)
			return manifest, nil
		}
	}
	if errors.Is(err, ErrNotFound) {
		c.manifests.PutMissing(key)
	}
	return nil, err
}

// Invalidate 丢弃包的版本索引缓存；开启自动升级时同时删除落盘的元数据。
func (c *Client) Invalidate(ctx context.Context, name string) {
	c.versions.Invalidate(name)
	if !c.durable.CanInvalidate() {
		return
	}
	if err := c.durable.Remove(ctx, cache.PackageInfo(name)); err != nil {
		c.logger.WithFields(logging.PackageFields(name, "")).
			WithField("action", "registry_invalidate").
			WithError(err).Warn("删除元数据缓存失败")
		return
	}
	c.logger.WithFields(logging.PackageFields(name, "")).
		WithField("action", "registry_invalidate").
		Debug("已移除元数据缓存")
}

// packageInfo 返回完整的包元数据 JSON，优先读取磁盘缓存，同名请求合并为一次回源。
func (c *Client) packageInfo(ctx context.Context, name string) ([]byte, error) {
	locator := cache.PackageInfo(name)
	if c.durable.Enabled(cache.BucketInfo) {
		if data, err := c.readDurable(ctx, locator); err == nil {
			c.logger.WithFields(logging.PackageFields(name, "")).
				WithField("action", "registry_info").
				Debug("命中元数据磁盘缓存")
			return data, nil
		} else if !errors.Is(err, cache.ErrNotFound) {
			return nil, fmt.Errorf("read info cache %s: %w", name, err)
		}
	}

	result, err, _ := c.infoGroup.Do(name, func() (interface{}, error) {
		return c.fetchInfo(context.WithoutCancel(ctx), name)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (c *Client) fetchInfo(ctx context.Context, name string) ([]byte, error) {
	infoURL := c.registry + "/" + EncodeName(name)
	fields := logging.PackageFields(name, "")
	fields["action"] = "registry_info"
	fields["upstream"] = infoURL
	c.logger.WithFields(fields).Debug("回源获取包元数据")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, infoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		c.logUpstreamError(fields, resp, "获取包元数据失败")
		return nil, ErrNotFound
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	if c.durable.Enabled(cache.BucketInfo) {
		if _, err := c.durable.Write(ctx, cache.PackageInfo(name), bytes.NewReader(data)); err != nil {
			c.logger.WithFields(fields).WithError(err).Warn("写入元数据缓存失败")
		}
	}
	return data, nil
}

func (c *Client) readDurable(ctx context.Context, locator cache.Locator) ([]byte, error) {
	f, err := c.durable.Open(ctx, locator)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// logUpstreamError 记录非预期状态码以及截断后的响应体，便于排查。
func (c *Client) logUpstreamError(fields logrus.Fields, resp *http.Response, msg string) {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	c.logger.WithFields(fields).
		WithField("status", resp.StatusCode).
		WithField("body", string(body)).
		Error(msg)
}

// TarballURL 返回 tarball 的规范地址。
func (c *Client) TarballURL(name, version string) string {
	return fmt.Sprintf("%s/%s/-/%s-%s.tgz", c.registry, name, TarballBasename(name), version)
}

// resolveLocation 把 Location 头解析为绝对地址。
func resolveLocation(base *url.URL, location string) (string, error) {
	ref, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
