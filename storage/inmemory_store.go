package storage

import (
	"sync"
	"time"
)

type entry[T any] struct {
	capturedAt time.Time
	value      T
}

func (e entry[T]) fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.capturedAt) < ttl
}

// InmemoryValue is a ValueCache. The lock is only ever held for a single Get
// or Set, never while the caller fetches a replacement value.
type InmemoryValue[T any] struct {
	ttl time.Duration
	now Clock

	mu    sync.Mutex
	entry *entry[T]
}

func NewInmemoryValue[T any](ttl time.Duration, opts ...Option) *InmemoryValue[T] {
	o := makeOptions(opts)

	return &InmemoryValue[T]{
		ttl: ttl,
		now: o.now,
	}
}

func (i *InmemoryValue[T]) Get() (value T, ok bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.entry == nil || !i.entry.fresh(i.now(), i.ttl) {
		return value, false
	}

	return i.entry.value, true
}

func (i *InmemoryValue[T]) Set(value T) {
	captured := &entry[T]{capturedAt: i.now(), value: value}

	i.mu.Lock()
	i.entry = captured
	i.mu.Unlock()
}

// InmemoryKeyed is a KeyedCache with the same locking rules as InmemoryValue.
// Two concurrent misses for one key both fetch, the last Set wins.
type InmemoryKeyed[T any] struct {
	ttl time.Duration
	now Clock

	mu      sync.Mutex
	entries map[string]entry[T]
}

func NewInmemoryKeyed[T any](ttl time.Duration, opts ...Option) *InmemoryKeyed[T] {
	o := makeOptions(opts)

	return &InmemoryKeyed[T]{
		ttl:     ttl,
		now:     o.now,
		entries: make(map[string]entry[T]),
	}
}

func (i *InmemoryKeyed[T]) Get(key string) (value T, ok bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	e, found := i.entries[key]
	if !found || !e.fresh(i.now(), i.ttl) {
		return value, false
	}

	return e.value, true
}

func (i *InmemoryKeyed[T]) Set(key string, value T) {
	captured := entry[T]{capturedAt: i.now(), value: value}

	i.mu.Lock()
	i.entries[key] = captured
	i.mu.Unlock()
}

func (i *InmemoryKeyed[T]) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	return len(i.entries)
}

var _ ValueCache[[]byte] = (*InmemoryValue[[]byte])(nil)
var _ KeyedCache[[]byte] = (*InmemoryKeyed[[]byte])(nil)
