package querycache

import (
	"context"
	"sync"

	"github.com/MarcoPoloResearchLab/huddle/internal/pagination"
)

// PageFetcher loads the page after cursor; an empty cursor asks for the first page.
type PageFetcher[T any] func(ctx context.Context, cursor string) (pagination.Page[T], error)

// InfiniteOptions configures an infinite query.
type InfiniteOptions[T any] struct {
	Embeds Embeds[T]
	// Identity deduplicates items across pages when set. Remove requires it.
	Identity func(item T) string
	// Prepend is for lists fetched newest window first with each page ordered oldest first, such as
	// comment threads. Items then lists later pages before earlier ones and Insert appends.
	Prepend bool
}

// InfiniteQuery accumulates pages of one keyset-paginated list. Pages are kept in fetch order.
type InfiniteQuery[T any] struct {
	manager *Manager
	key     Key
	fetch   PageFetcher[T]
	options InfiniteOptions[T]

	mu         sync.Mutex
	pages      []pagination.Page[T]
	fetching   bool
	generation uint64
	closed     bool
	stale      bool
	err        error
}

// Infinite returns the infinite query cached under key, registering it on first use.
func Infinite[T any](manager *Manager, key Key, fetch PageFetcher[T], options InfiniteOptions[T]) *InfiniteQuery[T] {
	return lookup(manager, key, func() *InfiniteQuery[T] {
		return &InfiniteQuery[T]{
			manager: manager,
			key:     append(Key(nil), key...),
			fetch:   fetch,
			options: options,
		}
	})
}

// FetchNextPage loads the next page. It returns false without calling the fetcher while a fetch is
// in flight, once the last page had no next cursor, or after Close. A failed fetch keeps earlier pages.
func (q *InfiniteQuery[T]) FetchNextPage(ctx context.Context) (bool, error) {
	q.mu.Lock()
	if q.fetching || q.closed || q.terminalLocked() {
		q.mu.Unlock()
		return false, nil
	}
	cursor := ""
	if len(q.pages) > 0 {
		cursor = *q.pages[len(q.pages)-1].NextCursor
	}
	q.fetching = true
	generation := q.generation
	q.mu.Unlock()

	page, err := q.fetch(ctx, cursor)

	q.mu.Lock()
	if generation != q.generation {
		q.mu.Unlock()
		return false, nil
	}
	q.fetching = false
	if err != nil {
		q.err = err
		q.mu.Unlock()
		return false, err
	}
	page.Items = append([]T{}, page.Items...)
	q.err = nil
	q.pages = append(q.pages, page)
	q.mu.Unlock()

	q.manager.track(q.key, q.options.Embeds.refs(page.Items))
	return true, nil
}

// Refetch drops every page and loads the first one again.
func (q *InfiniteQuery[T]) Refetch(ctx context.Context) (bool, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false, nil
	}
	q.generation++
	q.pages = nil
	q.fetching = false
	q.stale = false
	q.err = nil
	q.mu.Unlock()
	return q.FetchNextPage(ctx)
}

// Close tears the query down. Results still in flight are dropped when they arrive.
func (q *InfiniteQuery[T]) Close() {
	q.mu.Lock()
	q.generation++
	q.closed = true
	q.fetching = false
	q.pages = nil
	q.mu.Unlock()
	q.manager.remove(q.key, q)
}

// Items flattens every page in display order: fetch order, or reversed page order with Prepend.
func (q *InfiniteQuery[T]) Items() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]T, 0)
	seen := make(map[string]struct{})
	for index := range q.pages {
		page := q.pages[index]
		if q.options.Prepend {
			page = q.pages[len(q.pages)-1-index]
		}
		for _, item := range page.Items {
			if q.options.Identity != nil {
				id := q.options.Identity(item)
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
			}
			items = append(items, item)
		}
	}
	return items
}

// Insert places item at the newest end of the first page: the front, or the back with Prepend.
// A query without pages is marked stale instead and Insert returns false.
func (q *InfiniteQuery[T]) Insert(item T) bool {
	q.mu.Lock()
	if len(q.pages) == 0 {
		q.stale = true
		q.mu.Unlock()
		return false
	}
	first := q.pages[0].Items
	if q.options.Prepend {
		first = append(append(make([]T, 0, len(first)+1), first...), item)
	} else {
		first = append(append(make([]T, 0, len(first)+1), item), first...)
	}
	q.pages[0].Items = first
	q.mu.Unlock()

	q.manager.track(q.key, q.options.Embeds.refs([]T{item}))
	return true
}

// Remove drops every item whose identity is id from every page and returns how many went.
func (q *InfiniteQuery[T]) Remove(id string) int {
	if q.options.Identity == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := 0
	for pageIndex := range q.pages {
		kept := make([]T, 0, len(q.pages[pageIndex].Items))
		for _, item := range q.pages[pageIndex].Items {
			if q.options.Identity(item) == id {
				removed++
				continue
			}
			kept = append(kept, item)
		}
		q.pages[pageIndex].Items = kept
	}
	return removed
}

// Pages returns a copy of the loaded pages.
func (q *InfiniteQuery[T]) Pages() []pagination.Page[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	pages := make([]pagination.Page[T], len(q.pages))
	for index, page := range q.pages {
		pages[index] = pagination.Page[T]{
			Items:      append([]T{}, page.Items...),
			NextCursor: page.NextCursor,
		}
	}
	return pages
}

// HasNextPage reports whether another fetch could add items.
func (q *InfiniteQuery[T]) HasNextPage() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.closed && !q.terminalLocked()
}

// IsFetching reports whether a page request is in flight.
func (q *InfiniteQuery[T]) IsFetching() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fetching
}

// Err returns the error of the last failed fetch.
func (q *InfiniteQuery[T]) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// Stale reports whether the query was invalidated and should be refetched.
func (q *InfiniteQuery[T]) Stale() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stale
}

func (q *InfiniteQuery[T]) terminalLocked() bool {
	return len(q.pages) > 0 && !q.pages[len(q.pages)-1].HasNext()
}

func (q *InfiniteQuery[T]) cacheKey() Key {
	return q.key
}

func (q *InfiniteQuery[T]) hasData() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pages) > 0
}

func (q *InfiniteQuery[T]) markStale() {
	q.mu.Lock()
	q.stale = true
	q.mu.Unlock()
}

func (q *InfiniteQuery[T]) patch(ref EntityRef, value any) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	patched := 0
	for pageIndex := range q.pages {
		items := q.pages[pageIndex].Items
		for itemIndex, item := range items {
			if next, ok := q.options.Embeds.apply(item, ref, value); ok {
				items[itemIndex] = next
				patched++
			}
		}
	}
	return patched
}
