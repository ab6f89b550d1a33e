package cache

import (
	"context"
	"io"
)

// DurablePolicy 描述每个 Bucket 是否允许落盘。
type DurablePolicy struct {
	Info        bool
	Content     bool
	AutoUpgrade bool
}

// Durable 在 Store 之上叠加按 Bucket 的开关，Registry 客户端只依赖它。
type Durable struct {
	store  Store
	policy DurablePolicy
}

// NewDurable 构造策略感知的磁盘缓存；store 为 nil 时所有 Bucket 视为关闭。
func NewDurable(store Store, policy DurablePolicy) *Durable {
	return &Durable{store: store, policy: policy}
}

// Enabled 返回指定 Bucket 是否具备读写能力。
func (d *Durable) Enabled(bucket Bucket) bool {
	if d == nil || d.store == nil {
		return false
	}
	switch bucket {
	case BucketInfo:
		return d.policy.Info
	case BucketTarball:
		return d.policy.Content
	default:
		return false
	}
}

// CanInvalidate 表示是否允许在版本未命中时删除落盘的元数据。
func (d *Durable) CanInvalidate() bool {
	return d.Enabled(BucketInfo) && d.policy.AutoUpgrade
}

// Policy 返回当前开关，供诊断接口展示。
func (d *Durable) Policy() DurablePolicy {
	if d == nil {
		return DurablePolicy{}
	}
	return d.policy
}

// Open 打开缓存文件，Bucket 关闭时返回 ErrDisabled。
func (d *Durable) Open(ctx context.Context, locator Locator) (io.ReadCloser, error) {
	if !d.Enabled(locator.Bucket) {
		return nil, ErrDisabled
	}
	return d.store.Open(ctx, locator)
}

// Write 写入缓存正文，Bucket 关闭时返回 ErrDisabled。
func (d *Durable) Write(ctx context.Context, locator Locator, body io.Reader) (int64, error) {
	if !d.Enabled(locator.Bucket) {
		return 0, ErrDisabled
	}
	return d.store.Write(ctx, locator, body)
}

// Remove 删除缓存条目，Bucket 关闭时静默跳过。
func (d *Durable) Remove(ctx context.Context, locator Locator) error {
	if !d.Enabled(locator.Bucket) {
		return nil
	}
	return d.store.Remove(ctx, locator)
}
