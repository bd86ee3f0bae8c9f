package cache

import (
	"sync"
	"time"
)

// MemCache is an in-memory TTL cache backed by sync.Map. A background
// goroutine sweeps expired entries when NewMemCache is given a positive
// cleanupInterval; Get never returns an expired entry either way.
type MemCache[V any] struct {
	items    sync.Map
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type item[V any] struct {
	value      V
	expiration int64 // unix nano; 0 means no expiration
}

func NewMemCache[V any](cleanupInterval time.Duration) *MemCache[V] {
	m := &MemCache[V]{
		now:  time.Now,
		stop: make(chan struct{}),
	}
	if cleanupInterval > 0 {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			ticker := time.NewTicker(cleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					m.cleanup()
				case <-m.stop:
					return
				}
			}
		}()
	}
	return m
}

func (m *MemCache[V]) Set(key string, value V, ttl time.Duration) {
	var exp int64
	if ttl > 0 {
		exp = m.now().Add(ttl).UnixNano()
	}
	m.items.Store(key, &item[V]{value: value, expiration: exp})
}

func (m *MemCache[V]) Get(key string) (V, bool) {
	var zero V
	v, ok := m.items.Load(key)
	if !ok {
		return zero, false
	}
	it := v.(*item[V])
	if it.expiredAt(m.now().UnixNano()) {
		m.items.CompareAndDelete(key, v)
		return zero, false
	}
	return it.value, true
}

func (m *MemCache[V]) Delete(key string) {
	m.items.Delete(key)
}

// Len counts live entries.
func (m *MemCache[V]) Len() int {
	n := 0
	now := m.now().UnixNano()
	m.items.Range(func(_, v any) bool {
		if !v.(*item[V]).expiredAt(now) {
			n++
		}
		return true
	})
	return n
}

func (m *MemCache[V]) Flush() {
	m.items.Range(func(k, _ any) bool {
		m.items.Delete(k)
		return true
	})
}

// Close stops the sweeper. Safe to call more than once.
func (m *MemCache[V]) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}

func (it *item[V]) expiredAt(now int64) bool {
	return it.expiration != 0 && now > it.expiration
}

func (m *MemCache[V]) cleanup() {
	now := m.now().UnixNano()
	m.items.Range(func(k, v any) bool {
		if v.(*item[V]).expiredAt(now) {
			m.items.CompareAndDelete(k, v)
		}
		return true
	})
}
