package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryOptions 配置进程内缓存的容量与正负 TTL。
type MemoryOptions struct {
	Size        int
	TTL         time.Duration
	NegativeTTL time.Duration
}

// Memory 是有容量上限的进程内缓存，同时记录“上游确认不存在”的负缓存。
// 值在写入后视为只读，可被并发请求共享。
type Memory[V any] struct {
	positive *expirable.LRU[string, V]
	negative *expirable.LRU[string, struct{}]
}

// NewMemory 按容量与 TTL 构造缓存；Size<=0 时使用 expirable 的无上限模式。
func NewMemory[V any](opts MemoryOptions) *Memory[V] {
	return &Memory[V]{
		positive: expirable.NewLRU[string, V](opts.Size, nil, opts.TTL),
		negative: expirable.NewLRU[string, struct{}](opts.Size, nil, opts.NegativeTTL),
	}
}

// Lookup 表示一次内存查询的结果。
type Lookup int

const (
	// Miss 表示需要回源。
	Miss Lookup = iota
	// Hit 表示命中正缓存。
	Hit
	// Missing 表示命中负缓存，上游近期返回过不存在。
	Missing
)

// Get 查询 key，返回值只在 Hit 时有效。
func (m *Memory[V]) Get(key string) (V, Lookup) {
	if v, ok := m.positive.Get(key); ok {
		return v, Hit
	}
	var zero V
	if _, ok := m.negative.Get(key); ok {
		return zero, Missing
	}
	return zero, Miss
}

// Put 写入正缓存并清除同名负缓存。
func (m *Memory[V]) Put(key string, value V) {
	m.negative.Remove(key)
	m.positive.Add(key, value)
}

// PutMissing 写入负缓存。
func (m *Memory[V]) PutMissing(key string) {
	m.positive.Remove(key)
	m.negative.Add(key, struct{}{})
}

// Invalidate 同时删除正负缓存。
func (m *Memory[V]) Invalidate(key string) {
	m.positive.Remove(key)
	m.negative.Remove(key)
}

// Len 返回正负缓存各自的条目数。
func (m *Memory[V]) Len() (positive, negative int) {
	return m.positive.Len(), m.negative.Len()
}
