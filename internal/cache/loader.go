package cache

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader fronts a slow source with an LRUCache. Concurrent misses for the
// same key share one load. A load that started before Invalidate is returned
// to its callers but never stored.
type Loader[T any] struct {
	cache *LRUCache[T]
	group singleflight.Group
	gen   atomic.Uint64
}

// NewLoader caches up to maxSize keys for ttl. A zero ttl disables caching;
// loads are still collapsed.
func NewLoader[T any](maxSize int, ttl time.Duration) *Loader[T] {
	if ttl <= 0 {
		return &Loader[T]{}
	}
	return &Loader[T]{cache: NewLRUCache[T](maxSize, ttl)}
}

// GetOrLoad returns the cached value for key or calls load.
func (l *Loader[T]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	if l.cache != nil {
		if v, ok := l.cache.Get(key); ok {
			return v, nil
		}
	}
	gen := l.gen.Load()
	v, err, _ := l.group.Do(key, func() (any, error) {
		val, err := load(ctx)
		if err == nil && l.cache != nil && l.gen.Load() == gen {
			l.cache.Set(key, val)
		}
		return val, err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	val, _ := v.(T)
	return val, nil
}

// Invalidate drops key so the next GetOrLoad reloads it.
func (l *Loader[T]) Invalidate(key string) {
	l.gen.Add(1)
	l.group.Forget(key)
	if l.cache != nil {
		l.cache.Delete(key)
	}
}

// CleanExpired implements Cleaner.
func (l *Loader[T]) CleanExpired() int {
	if l.cache == nil {
		return 0
	}
	return l.cache.CleanExpired()
}
