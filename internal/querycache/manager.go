// Package querycache holds client side query results: accumulated feed pages,
// single values such as like counts, and the optimistic toggles that edit them.
//
// A Manager is created once per client and handed to every component that
// reads or writes cached results. Entries index the entities embedded in
// their items so an edit to one entity can be patched into every cached copy.
package querycache

import (
	"strings"
	"sync"
)

// Key identifies one cached query, e.g. {"post-feed", "for-you"}.
type Key []string

func (k Key) id() string {
	return strings.Join(k, "\x00")
}

// HasPrefix reports whether k starts with every element of prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for index := range prefix {
		if k[index] != prefix[index] {
			return false
		}
	}
	return true
}

// EntityRef names an entity that cached items embed a copy of.
type EntityRef struct {
	Kind string
	ID   string
}

type entry interface {
	cacheKey() Key
	hasData() bool
	markStale()
	patch(ref EntityRef, value any) int
}

// Manager owns every cached entry and the index from embedded entities to the entries holding them.
type Manager struct {
	mu      sync.Mutex
	entries map[string]entry
	index   map[EntityRef]map[string]struct{}
}

func NewManager() *Manager {
	return &Manager{
		entries: make(map[string]entry),
		index:   make(map[EntityRef]map[string]struct{}),
	}
}

// Propagate replaces every cached copy of ref with value. Entries that hold no data are marked
// stale instead. It returns the number of items patched.
func (m *Manager) Propagate(ref EntityRef, value any) int {
	m.mu.Lock()
	holders := make([]entry, 0, len(m.index[ref]))
	for id := range m.index[ref] {
		if holder, ok := m.entries[id]; ok {
			holders = append(holders, holder)
		}
	}
	m.mu.Unlock()

	patched := 0
	for _, holder := range holders {
		if !holder.hasData() {
			holder.markStale()
			continue
		}
		patched += holder.patch(ref, value)
	}
	return patched
}

// InvalidatePrefix marks every entry whose key starts with prefix stale and returns how many matched.
func (m *Manager) InvalidatePrefix(prefix Key) int {
	m.mu.Lock()
	matched := make([]entry, 0)
	for _, candidate := range m.entries {
		if candidate.cacheKey().HasPrefix(prefix) {
			matched = append(matched, candidate)
		}
	}
	m.mu.Unlock()

	for _, candidate := range matched {
		candidate.markStale()
	}
	return len(matched)
}

// Len reports how many entries are cached.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) track(key Key, refs []EntityRef) {
	if len(refs) == 0 {
		return
	}
	id := key.id()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return
	}
	for _, ref := range refs {
		holders, ok := m.index[ref]
		if !ok {
			holders = make(map[string]struct{})
			m.index[ref] = holders
		}
		holders[id] = struct{}{}
	}
}

func (m *Manager) remove(key Key, current entry) {
	id := key.id()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[id] != current {
		return
	}
	delete(m.entries, id)
	for ref, holders := range m.index {
		delete(holders, id)
		if len(holders) == 0 {
			delete(m.index, ref)
		}
	}
}

// lookup returns the entry under key, creating it when absent or of another type.
func lookup[E entry](m *Manager, key Key, create func() E) E {
	id := key.id()
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entries[id].(E); ok {
		return existing
	}
	created := create()
	m.entries[id] = created
	return created
}

// cached returns the entry of type E under key without creating one.
func cached[E entry](m *Manager, key Key) (E, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.entries[key.id()].(E)
	return existing, ok
}

// cachedUnder returns every entry of type E whose key starts with prefix.
func cachedUnder[E entry](m *Manager, prefix Key) []E {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := make([]E, 0)
	for _, candidate := range m.entries {
		if typed, ok := candidate.(E); ok && candidate.cacheKey().HasPrefix(prefix) {
			matched = append(matched, typed)
		}
	}
	return matched
}
