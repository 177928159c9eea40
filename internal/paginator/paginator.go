// Package paginator implements masto.Paginator over Link-header cursors.
package paginator

import (
	"context"
	"iter"
	"net/http"
	"slices"
	"sync"

	mastohttp "github.com/fivetwenty-io/masto/internal/http"
	"github.com/fivetwenty-io/masto/pkg/masto"
	"golang.org/x/sync/singleflight"
)

type direction int

const (
	forward direction = iota
	backward
)

func (d direction) key() string {
	if d == backward {
		return "prev"
	}

	return "next"
}

type cursorState int

const (
	stateInitial cursorState = iota
	stateHasMore
	stateExhausted
)

const initialKey = "initial"

// Option configures a Paginator.
type Option func(*settings)

type settings struct {
	requireAuth bool
	versionOp   string
	version     *masto.VersionRange
}

// WithAuth marks every page request as requiring a token.
func WithAuth() Option {
	return func(s *settings) {
		s.requireAuth = true
	}
}

// WithVersion gates the first request on the server version.
func WithVersion(op string, r masto.VersionRange) Option {
	return func(s *settings) {
		s.versionOp = op
		s.version = &r
	}
}

// Paginator walks a collection one page at a time in either direction.
type Paginator[T any] struct {
	client   *mastohttp.Client
	path     string
	params   any
	settings settings
	group    singleflight.Group

	mu        sync.Mutex
	started   bool
	nextURL   string
	prevURL   string
	nextState cursorState
	prevState cursorState

	// pending holds items fetched by Items but not yet yielded.
	pending []T
}

var _ masto.Paginator[masto.Status] = (*Paginator[masto.Status])(nil)

// New creates a paginator for the collection at path. Nothing is fetched
// until Next or Previous is called.
func New[T any](client *mastohttp.Client, path string, params any, opts ...Option) *Paginator[T] {
	p := &Paginator[T]{
		client: client,
		path:   path,
		params: params,
	}

	for _, opt := range opts {
		opt(&p.settings)
	}

	return p
}

// Next returns the following page, or an empty page once exhausted.
func (p *Paginator[T]) Next(ctx context.Context) ([]T, error) {
	return p.fetch(ctx, forward)
}

// Previous returns the preceding page, or an empty page once exhausted.
func (p *Paginator[T]) Previous(ctx context.Context) ([]T, error) {
	return p.fetch(ctx, backward)
}

// HasNext reports whether Next may return more items.
func (p *Paginator[T]) HasNext() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.nextState != stateExhausted
}

// HasPrevious reports whether Previous may return more items.
func (p *Paginator[T]) HasPrevious() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.prevState != stateExhausted
}

// Items yields the remaining items of successive Next pages. Items left
// unyielded when the loop breaks are kept and yielded first by the next call.
func (p *Paginator[T]) Items(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			page, ok, err := p.take(ctx)
			if err != nil {
				var zero T

				yield(zero, err)

				return
			}

			if !ok {
				return
			}

			for i, item := range page {
				if !yield(item, nil) {
					p.stash(page[i+1:])

					return
				}
			}
		}
	}
}

// take returns buffered items if any, otherwise the next page. ok is false
// once the forward direction is exhausted.
func (p *Paginator[T]) take(ctx context.Context) ([]T, bool, error) {
	p.mu.Lock()

	if len(p.pending) > 0 {
		page := p.pending
		p.pending = nil
		p.mu.Unlock()

		return page, true, nil
	}

	p.mu.Unlock()

	if !p.HasNext() {
		return nil, false, nil
	}

	page, err := p.Next(ctx)
	if err != nil {
		return nil, false, err
	}

	return page, true, nil
}

func (p *Paginator[T]) stash(rest []T) {
	if len(rest) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = append(slices.Clone(rest), p.pending...)
}

// ForEach calls fn for every remaining item.
func (p *Paginator[T]) ForEach(ctx context.Context, fn func(T) error) error {
	for item, err := range p.Items(ctx) {
		if err != nil {
			return err
		}

		err = fn(item)
		if err != nil {
			return err
		}
	}

	return nil
}

// Collect gathers up to limit remaining items; limit <= 0 collects everything.
func (p *Paginator[T]) Collect(ctx context.Context, limit int) ([]T, error) {
	items := []T{}

	for item, err := range p.Items(ctx) {
		if err != nil {
			return items, err
		}

		items = append(items, item)
		if limit > 0 && len(items) >= limit {
			break
		}
	}

	return items, nil
}

func (p *Paginator[T]) state(dir direction) cursorState {
	if dir == backward {
		return p.prevState
	}

	return p.nextState
}

func (p *Paginator[T]) fetch(ctx context.Context, dir direction) ([]T, error) {
	p.mu.Lock()
	exhausted := p.state(dir) == stateExhausted
	p.mu.Unlock()

	if exhausted {
		return []T{}, nil
	}

	// Concurrent callers in one direction share a single request.
	v, err, _ := p.group.Do(dir.key(), func() (interface{}, error) {
		return p.load(ctx, dir)
	})
	if err != nil {
		return nil, err
	}

	page, _ := v.([]T)

	return slices.Clone(page), nil
}

func (p *Paginator[T]) load(ctx context.Context, dir direction) ([]T, error) {
	p.mu.Lock()

	if !p.started {
		p.mu.Unlock()

		// Next and Previous racing on a fresh paginator share the initial page.
		v, err, _ := p.group.Do(initialKey, func() (interface{}, error) {
			return p.loadInitial(ctx, dir)
		})
		if err != nil {
			return nil, err
		}

		page, _ := v.([]T)

		return page, nil
	}

	var target string

	if dir == backward {
		target = p.prevURL
	} else {
		target = p.nextURL
	}

	exhausted := p.state(dir) == stateExhausted
	p.mu.Unlock()

	if exhausted || target == "" {
		return []T{}, nil
	}

	page, links, err := p.get(ctx, &mastohttp.Request{Method: http.MethodGet, Path: target})
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if dir == backward {
		p.prevURL, p.prevState = advance(links.Prev, len(page))
	} else {
		p.nextURL, p.nextState = advance(links.Next, len(page))
	}

	return page, nil
}

func (p *Paginator[T]) loadInitial(ctx context.Context, dir direction) ([]T, error) {
	if p.settings.version != nil {
		err := p.client.RequireVersion(p.settings.versionOp, *p.settings.version)
		if err != nil {
			return nil, err
		}
	}

	page, links, err := p.get(ctx, &mastohttp.Request{
		Method: http.MethodGet,
		Path:   p.path,
		Params: p.params,
	})
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return page, nil
	}

	p.started = true
	p.nextURL, p.nextState = advance(links.Next, 1)
	p.prevURL, p.prevState = advance(links.Prev, 1)

	if len(page) == 0 {
		if dir == backward {
			p.prevState = stateExhausted
		} else {
			p.nextState = stateExhausted
		}
	}

	return page, nil
}

func (p *Paginator[T]) get(ctx context.Context, req *mastohttp.Request) ([]T, mastohttp.PageLinks, error) {
	req.RequireAuth = p.settings.requireAuth

	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return nil, mastohttp.PageLinks{}, err
	}

	page, err := mastohttp.DecodeList[T](req.Method+" "+p.path, resp.Body)
	if err != nil {
		return nil, mastohttp.PageLinks{}, err
	}

	return page, resp.Links, nil
}

// advance returns the new cursor for a direction. No link or an empty page
// ends the direction.
func advance(link string, pageLen int) (string, cursorState) {
	if link == "" || pageLen == 0 {
		return "", stateExhausted
	}

	return link, stateHasMore
}
