package engine

import (
	"container/list"
	"sync"
	"time"
)

// Cache 是进程内的 TTL + LRU 缓存。
//
// 过期是惰性的：Get 时检查，不起后台清理协程。容量超限时在 Set 路径
// 淘汰最久未使用的条目，所以常驻内存有硬上界。maxEntries<=0 表示不限容量。
type Cache[V any] struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	lru        *list.List // Front 最新，Back 最旧
	ttl        time.Duration
	maxEntries int
}

type cacheEntry[V any] struct {
	key      string
	value    V
	expireAt time.Time
}

// NewCache 创建缓存。ttl<=0 时条目永不过期。
func NewCache[V any](ttl time.Duration, maxEntries int) *Cache[V] {
	return &Cache[V]{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// Get 返回缓存值；不存在或已过期时 ok 为 false。
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	entry := el.Value.(*cacheEntry[V])
	if c.ttl > 0 && time.Now().After(entry.expireAt) {
		c.removeLocked(el)
		var zero V
		return zero, false
	}
	c.lru.MoveToFront(el)
	return entry.value, true
}

// Set 写入缓存，超容时淘汰最久未使用的条目。
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expireAt := time.Now().Add(c.ttl)
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry[V])
		entry.value = value
		entry.expireAt = expireAt
		c.lru.MoveToFront(el)
		return
	}

	el := c.lru.PushFront(&cacheEntry[V]{key: key, value: value, expireAt: expireAt})
	c.entries[key] = el

	if c.maxEntries > 0 && c.lru.Len() > c.maxEntries {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeLocked(oldest)
		}
	}
}

// Delete 删除指定条目。
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
}

// Purge 清空全部条目。
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
}

// Len 返回当前条目数（含尚未惰性清除的过期条目）。
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache[V]) removeLocked(el *list.Element) {
	entry := el.Value.(*cacheEntry[V])
	delete(c.entries, entry.key)
	c.lru.Remove(el)
}
