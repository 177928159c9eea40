package masto

import (
	"context"
	"iter"
)

// Paginator walks a Link-cursored collection lazily. Nothing is fetched
// until the first call. Next and Previous each keep their own cursor; once a
// direction is exhausted, further calls return an empty page without any
// request. Concurrent calls in the same direction share one request.
//
// A Paginator is not rewindable: iterating again continues from the current
// cursor.
type Paginator[T any] interface {
	// Next returns the following page.
	Next(ctx context.Context) ([]T, error)
	// Previous returns the page before the first one seen.
	Previous(ctx context.Context) ([]T, error)
	// HasNext reports whether Next may still return items.
	HasNext() bool
	// HasPrevious reports whether Previous may still return items.
	HasPrevious() bool
	// Items yields items of successive Next pages. Iteration stops after the
	// first error, which is yielded with a zero item. Breaking early keeps the
	// unyielded rest of the page for the next call.
	Items(ctx context.Context) iter.Seq2[T, error]
	// ForEach calls fn for every remaining item until fn returns an error.
	ForEach(ctx context.Context, fn func(T) error) error
	// Collect gathers up to limit remaining items; limit <= 0 means all.
	Collect(ctx context.Context, limit int) ([]T, error)
}
