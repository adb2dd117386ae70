// Package concurrent 提供分片加锁的并发 Map
package concurrent

import (
	"hash/fnv"
	"sort"
	"sync"
)

// DefaultShardCount 默认分片数量,建议为 2 的幂
const DefaultShardCount = 16

type shard[K comparable, V any] struct {
	sync.RWMutex
	items map[K]V
}

// Map 按 hash 把键分散到多个分片,每个分片独立加锁
type Map[K comparable, V any] struct {
	shards []*shard[K, V]
	hash   func(K) uint32
}

func NewMap[K comparable, V any](hash func(K) uint32, shardCount uint32) *Map[K, V] {
	if shardCount == 0 {
		shardCount = DefaultShardCount
	}
	m := &Map[K, V]{shards: make([]*shard[K, V], shardCount), hash: hash}
	for i := range m.shards {
		m.shards[i] = &shard[K, V]{items: make(map[K]V)}
	}
	return m
}

// HashString FNV-1a
func HashString(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	return m.shards[m.hash(key)%uint32(len(m.shards))]
}

func (m *Map[K, V]) Set(key K, value V) {
	s := m.shardFor(key)
	s.Lock()
	s.items[key] = value
	s.Unlock()
}

func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.shardFor(key)
	s.RLock()
	defer s.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// SetIfAbsent 键不存在时写入并返回 true,否则返回已有的值和 false
func (m *Map[K, V]) SetIfAbsent(key K, value V) (V, bool) {
	s := m.shardFor(key)
	s.Lock()
	defer s.Unlock()
	if v, ok := s.items[key]; ok {
		return v, false
	}
	s.items[key] = value
	return value, true
}

// Pop 删除并返回键对应的值
func (m *Map[K, V]) Pop(key K) (V, bool) {
	s := m.shardFor(key)
	s.Lock()
	defer s.Unlock()
	v, ok := s.items[key]
	delete(s.items, key)
	return v, ok
}

func (m *Map[K, V]) Count() int {
	n := 0
	for _, s := range m.shards {
		s.RLock()
		n += len(s.items)
		s.RUnlock()
	}
	return n
}

// Range 遍历所有元素,fn 返回 false 时停止。遍历期间只锁当前分片。
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for _, s := range m.shards {
		s.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.RUnlock()
				return
			}
		}
		s.RUnlock()
	}
}

// SortedKeys 返回排序后的键
func SortedKeys[V any](m *Map[string, V]) []string {
	var keys []string
	m.Range(func(k string, _ V) bool {
		keys = append(keys, k)
		return true
	})
	sort.Strings(keys)
	return keys
}
