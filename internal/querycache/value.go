package querycache

import (
	"context"
	"sync"
)

// ValueOptions configures a single cached value.
type ValueOptions[T any] struct {
	Embeds Embeds[T]
}

// Value caches one query result. The displayed value is the confirmed base with every pending
// toggle prediction replayed on top.
type Value[T any] struct {
	manager *Manager
	key     Key
	options ValueOptions[T]

	mu          sync.Mutex
	base        T
	present     bool
	stale       bool
	pending     []prediction
	nextPending uint64
	settled     uint64
	replay      func(T, []prediction) T
}

type prediction struct {
	id     uint64
	target bool
}

// ValueFor returns the value cached under key, registering it on first use.
func ValueFor[T any](manager *Manager, key Key, options ValueOptions[T]) *Value[T] {
	return lookup(manager, key, func() *Value[T] {
		return &Value[T]{
			manager: manager,
			key:     append(Key(nil), key...),
			options: options,
		}
	})
}

// Get returns the displayed value and whether anything has been loaded.
func (v *Value[T]) Get() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.displayedLocked(), v.present
}

// Set stores a confirmed value and clears staleness.
func (v *Value[T]) Set(value T) {
	v.mu.Lock()
	v.base = value
	v.present = true
	v.stale = false
	v.mu.Unlock()
	v.manager.track(v.key, v.options.Embeds.refs([]T{value}))
}

// Load returns the cached value, calling load when nothing is cached or the value is stale.
func (v *Value[T]) Load(ctx context.Context, load func(ctx context.Context) (T, error)) (T, error) {
	v.mu.Lock()
	if v.present && !v.stale {
		displayed := v.displayedLocked()
		v.mu.Unlock()
		return displayed, nil
	}
	v.mu.Unlock()

	loaded, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	v.Set(loaded)
	displayed, _ := v.Get()
	return displayed, nil
}

// Invalidate marks the value stale so the next Load refetches it.
func (v *Value[T]) Invalidate() {
	v.markStale()
}

// Stale reports whether the value was invalidated since it was last loaded.
func (v *Value[T]) Stale() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stale
}

// Close drops the value from its manager.
func (v *Value[T]) Close() {
	v.manager.remove(v.key, v)
}

func (v *Value[T]) displayedLocked() T {
	if v.replay == nil || len(v.pending) == 0 {
		return v.base
	}
	return v.replay(v.base, v.pending)
}

func (v *Value[T]) cacheKey() Key {
	return v.key
}

func (v *Value[T]) hasData() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.present
}

func (v *Value[T]) markStale() {
	v.mu.Lock()
	v.stale = true
	v.mu.Unlock()
}

func (v *Value[T]) patch(ref EntityRef, value any) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	next, ok := v.options.Embeds.apply(v.base, ref, value)
	if !ok {
		return 0
	}
	v.base = next
	return 1
}
