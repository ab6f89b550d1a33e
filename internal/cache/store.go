package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Store 是包元数据与 tarball 的磁盘缓存，布局为 <StoragePath>/<Bucket>/<Key>。
type Store interface {
	// Open 打开缓存文件，不存在时返回 ErrNotFound。
	Open(ctx context.Context, locator Locator) (io.ReadCloser, error)
	// Write 以临时文件 + rename 的方式写入完整正文，返回写入的字节数。
	Write(ctx context.Context, locator Locator, body io.Reader) (int64, error)
	// Remove 删除缓存文件，不存在时视为成功。
	Remove(ctx context.Context, locator Locator) error
}

// Bucket 是磁盘缓存中的一级目录。
type Bucket string

const (
	// BucketInfo 存放 Registry 返回的包元数据 JSON。
	BucketInfo Bucket = "info"
	// BucketTarball 存放原样的 tarball 字节。
	BucketTarball Bucket = "tarballs"
)

// Locator 唯一定位一个缓存文件，Key 是不含目录分隔符的文件名。
type Locator struct {
	Bucket Bucket
	Key    string
}

// PackageInfo 定位包元数据，scope 中的 "/" 被替换为 "_"，如 @babel_core.json。
func PackageInfo(name string) Locator {
	return Locator{Bucket: BucketInfo, Key: flatName(name) + ".json"}
}

// Tarball 定位某个版本的 tarball，如 @babel_core-7.24.0.tgz。
func Tarball(name, version string) Locator {
	return Locator{Bucket: BucketTarball, Key: fmt.Sprintf("%s-%s.tgz", flatName(name), version)}
}

func flatName(name string) string {
	return strings.ReplaceAll(name, "/", "_")
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrDisabled 表示对应 Bucket 的磁盘缓存被配置关闭。
	ErrDisabled = errors.New("cache bucket disabled")
)
