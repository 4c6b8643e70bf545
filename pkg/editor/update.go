package editor

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/stateful/blocks/pkg/block"
	"github.com/stateful/blocks/pkg/dom"
	"github.com/stateful/blocks/pkg/schema"
)

// Update sets the data of the block rendered at the live node n and patches
// the node in place. When the structure of the element changes with the
// data, the node is replaced by a full render; the returned node is the one
// now in the tree.
func (e *Editor) Update(ctx context.Context, n *html.Node, data map[string]any) (*html.Node, error) {
	attrs, err := block.ReadAttrs(n)
	if err != nil {
		return nil, err
	}

	var b *block.Block
	if attrs.ID != "" {
		stored := e.store.Get(attrs.ID)
		if stored == nil {
			return nil, errors.Wrapf(ErrMissingBlock, "%q", attrs.ID)
		}
		b = stored.Clone()
	} else {
		b = block.New(attrs.Type)
	}
	if attrs.Type != "" {
		b.Type = attrs.Type
	}
	b.Standalone = attrs.Standalone
	b.Focused = attrs.Focused

	el, err := e.registry.Lookup(b.Type)
	if err != nil {
		return nil, err
	}
	s, ok := e.schemas.Get(b.Type)
	if !ok {
		return nil, errors.Errorf("no schema for %q", b.Type)
	}
	b.Data = el.Properties.Fill(block.CopyData(data))

	logger := e.logger.With(zap.String("id", b.ID), zap.String("type", b.Type))

	markers, err := s.Reconcile(n, b)
	switch {
	case errors.Is(err, schema.ErrShapeChanged):
		logger.Debug("re-rendering block", zap.Error(err))
		return e.rerender(ctx, n, b)
	case err != nil:
		return nil, err
	}

	if b.ID != "" {
		e.store.Set(b)
	}

	r := e.newRender(nil)
	if b.ID != "" {
		r.path[b.ID] = struct{}{}
	}
	for _, marker := range markers {
		r.child(ctx, marker)
	}
	return n, nil
}

// rerender replaces n by a fresh render of b, keeping the content of n.
func (e *Editor) rerender(ctx context.Context, n *html.Node, b *block.Block) (*html.Node, error) {
	res, err := e.Serialize(ctx, n)
	if err != nil {
		return nil, err
	}
	if res.Root == nil {
		return nil, errors.Errorf("%q does not materialize", b.ID)
	}

	pool := Pool{}
	pool.Add(res.Blocks[1:]...)

	root := res.Root
	root.Data = b.Data
	root.Children = nil

	fresh, err := e.From(ctx, root, pool)
	if err != nil {
		return nil, err
	}
	if n.Parent != nil {
		dom.Replace(n, fresh)
	}
	return fresh, nil
}

// Prefetch resolves the given ids into the store ahead of a render, so that
// later renders find them synchronously. Ids already stored are skipped.
// Every id is attempted; the returned error aggregates the failures.
func (e *Editor) Prefetch(ctx context.Context, ids ...string) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		merr error
	)
	g.SetLimit(e.concurrency)

	for _, id := range ids {
		if id == "" || e.store.Has(id) {
			continue
		}
		g.Go(func() error {
			b, err := e.fetch(ctx, Request{ID: id})
			if err != nil {
				mu.Lock()
				merr = multierr.Append(merr, err)
				mu.Unlock()
				return nil
			}
			e.store.Set(b)
			return nil
		})
	}

	_ = g.Wait()
	return merr
}
