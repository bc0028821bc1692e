// Package pagination implements keyset pagination over rows ordered by (created_at_ms, id).
//
// Pages are fetched newest first with one extra row to detect whether another
// page exists. Descending pages are returned in fetch order. Ascending pages are
// fetched backwards from the newest row and returned oldest first, so a client
// paging "upwards" through a comment thread prepends each page it receives.
// In both directions the cursor names the last row in fetch order and the next
// call resumes strictly past it.
package pagination

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var errInvalidPageSize = errors.New("pagination: page size must be positive")

// Page sizes per endpoint family.
const (
	FeedPageSize    = 10
	CommentPageSize = 5
)

// Direction controls the order of items inside a returned page.
type Direction int

const (
	// Descending returns newest items first.
	Descending Direction = iota
	// Ascending returns the newest window before the cursor, oldest item first.
	Ascending
)

// Columns names the ordering columns, qualified when the query joins tables.
type Columns struct {
	CreatedAt string
	ID        string
}

// DefaultColumns are the unqualified ordering columns shared by every paged table.
var DefaultColumns = Columns{CreatedAt: "created_at_ms", ID: "id"}

// Qualified returns the default columns qualified with table.
func Qualified(table string) Columns {
	return Columns{CreatedAt: table + ".created_at_ms", ID: table + ".id"}
}

// Request describes one page fetch.
type Request struct {
	Cursor    *OrderKey
	PageSize  int
	Direction Direction
	Columns   Columns
}

// NewRequest parses rawCursor and returns a request using the default columns.
func NewRequest(rawCursor string, pageSize int, direction Direction) (Request, error) {
	if pageSize <= 0 {
		return Request{}, errInvalidPageSize
	}
	cursor, err := ParseCursor(rawCursor)
	if err != nil {
		return Request{}, err
	}
	return Request{
		Cursor:    cursor,
		PageSize:  pageSize,
		Direction: direction,
		Columns:   DefaultColumns,
	}, nil
}

// WithColumns returns a copy of r ordering by columns.
func (r Request) WithColumns(columns Columns) Request {
	r.Columns = columns
	return r
}

func (r Request) columns() Columns {
	if r.Columns.CreatedAt == "" || r.Columns.ID == "" {
		return DefaultColumns
	}
	return r.Columns
}

// Apply scopes db to the rows of this page plus one lookahead row.
func (r Request) Apply(db *gorm.DB) *gorm.DB {
	columns := r.columns()
	if r.Cursor != nil {
		condition := fmt.Sprintf("(%s < ? OR (%s = ? AND %s < ?))", columns.CreatedAt, columns.CreatedAt, columns.ID)
		db = db.Where(condition, r.Cursor.CreatedAtMillis, r.Cursor.CreatedAtMillis, r.Cursor.ID)
	}
	return db.
		Order(columns.CreatedAt + " DESC").
		Order(columns.ID + " DESC").
		Limit(r.PageSize + 1)
}

// Page is one bounded batch of items and the cursor of the next batch, nil when terminal.
type Page[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *string `json:"nextCursor"`
}

// HasNext reports whether another page can be fetched.
func (p Page[T]) HasNext() bool {
	return p.NextCursor != nil
}

// Shape trims rows fetched with Apply into a page.
func Shape[T any](rows []T, request Request, keyOf func(T) OrderKey) Page[T] {
	limit := request.PageSize
	var nextCursor *string
	if len(rows) > limit {
		rows = rows[:limit]
		cursor := EncodeCursor(keyOf(rows[len(rows)-1]))
		nextCursor = &cursor
	}

	items := make([]T, len(rows))
	copy(items, rows)
	if request.Direction == Ascending {
		for left, right := 0, len(items)-1; left < right; left, right = left+1, right-1 {
			items[left], items[right] = items[right], items[left]
		}
	}
	return Page[T]{Items: items, NextCursor: nextCursor}
}

// Fetch runs request against db and shapes the result.
func Fetch[T any](ctx context.Context, db *gorm.DB, request Request, keyOf func(T) OrderKey) (Page[T], error) {
	var rows []T
	if err := request.Apply(db.WithContext(ctx)).Find(&rows).Error; err != nil {
		return Page[T]{}, err
	}
	return Shape(rows, request, keyOf), nil
}

// Map converts page items while keeping the cursor.
func Map[T, U any](page Page[T], convert func(T) U) Page[U] {
	items := make([]U, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, convert(item))
	}
	return Page[U]{Items: items, NextCursor: page.NextCursor}
}

// Empty returns a terminal page with no items.
func Empty[T any]() Page[T] {
	return Page[T]{Items: []T{}}
}
