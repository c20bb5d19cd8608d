package storage

import "time"

// DefaultTTL is how long an entry stays fresh after it was written.
const DefaultTTL = 300 * time.Second

// ValueCache holds at most one value.
type ValueCache[T any] interface {
	// Get returns the value if one was written less than a TTL ago
	Get() (T, bool)

	// Set replaces the value, capturing the current time
	Set(value T)
}

// KeyedCache holds one value per key. Entries are never evicted, only
// overwritten.
type KeyedCache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Len() int
}

type Clock func() time.Time

type Option func(*options)

type options struct {
	now Clock
}

// WithClock replaces time.Now, mostly useful for tests.
func WithClock(now Clock) Option {
	return func(o *options) {
		o.now = now
	}
}

func makeOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}
