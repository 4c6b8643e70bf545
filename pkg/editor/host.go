package editor

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/stateful/blocks/pkg/dom"
)

// Host is the document engine owning the live tree. All tree mutations
// happen on its loop.
type Host interface {
	// Dispatch schedules fn on the host loop. It must not block.
	Dispatch(fn func())
	// Refresh tells the host the tree changed outside of a transaction.
	Refresh()
}

// Doc is a minimal host: a live tree and a loop running mutations one at a time.
type Doc struct {
	Root *html.Node

	logger    *zap.Logger
	mu        sync.Mutex
	queue     []func()
	wake      chan struct{}
	refreshed chan struct{}
	observers []func(root *html.Node)
}

type DocOption func(*Doc)

func WithDocLogger(logger *zap.Logger) DocOption {
	return func(d *Doc) { d.logger = logger }
}

// WithObserver registers fn to run on the loop after every [Doc.Apply] and
// [Doc.Refresh]. The identity maintainer is typically registered here.
func WithObserver(fn func(root *html.Node)) DocOption {
	return func(d *Doc) { d.observers = append(d.observers, fn) }
}

func NewDoc(root *html.Node, opts ...DocOption) *Doc {
	if root == nil {
		root = dom.NewFragment()
	}
	d := &Doc{
		Root:      root,
		logger:    zap.NewNop(),
		wake:      make(chan struct{}, 1),
		refreshed: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run processes dispatched functions until ctx is done.
func (d *Doc) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.wake:
		}
		for {
			fn, ok := d.next()
			if !ok {
				break
			}
			fn()
		}
	}
}

func (d *Doc) next() (func(), bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) == 0 {
		return nil, false
	}
	fn := d.queue[0]
	d.queue = d.queue[1:]
	return fn, true
}

func (d *Doc) Dispatch(fn func()) {
	d.mu.Lock()
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop and waits for it.
func (d *Doc) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	d.Dispatch(func() {
		defer close(done)
		fn()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Apply runs the mutation fn on the loop, notifies the observers and waits.
func (d *Doc) Apply(ctx context.Context, fn func(root *html.Node)) error {
	return d.Do(ctx, func() {
		fn(d.Root)
		d.notify()
	})
}

// Refresh must be called on the loop.
func (d *Doc) Refresh() {
	d.logger.Debug("refresh")
	d.notify()
	select {
	case d.refreshed <- struct{}{}:
	default:
	}
}

// Refreshed receives after refreshes. Consecutive refreshes may be coalesced.
func (d *Doc) Refreshed() <-chan struct{} {
	return d.refreshed
}

func (d *Doc) notify() {
	for _, fn := range d.observers {
		fn(d.Root)
	}
}
