package editor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/stateful/blocks/pkg/block"
	"github.com/stateful/blocks/pkg/dom"
)

// gatedResolver resolves notes once release is closed.
type gatedResolver struct {
	release chan struct{}
	calls   atomic.Int32
	fail    map[string]bool
}

func newGatedResolver() *gatedResolver {
	return &gatedResolver{release: make(chan struct{}), fail: map[string]bool{}}
}

func (g *gatedResolver) Resolve(ctx context.Context, req Request) (*block.Block, error) {
	g.calls.Add(1)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.release:
	}
	if g.fail[req.ID] {
		return nil, errors.New("remote unavailable")
	}
	return &block.Block{ID: req.ID, Type: "note", Content: block.Content{"body": block.Markup("remote " + req.ID)}}, nil
}

func runDoc(t *testing.T) (*Doc, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	doc := NewDoc(nil)
	go func() { _ = doc.Run(ctx) }()
	return doc, ctx
}

// mountMarkup renders markup into the root of doc, on its loop.
func mountMarkup(t *testing.T, ctx context.Context, doc *Doc, e *Editor, markup string) {
	t.Helper()
	var err error
	require.NoError(t, doc.Apply(ctx, func(root *html.Node) {
		var n *html.Node
		if n, err = e.FromMarkup(ctx, markup, nil); err == nil {
			dom.MoveChildren(root, n)
		}
	}))
	require.NoError(t, err)
}

func TestAsyncResolution(t *testing.T) {
	doc, ctx := runDoc(t)
	resolver := newGatedResolver()
	e, _ := newTestEditor(t, nil, WithHost(doc), WithResolvers(resolver))

	mountMarkup(t, ctx, doc, e, `<p>before</p><div block-id="r1"></div><div block-id="r1"></div>`)

	require.NoError(t, doc.Do(ctx, func() {
		placeholders := dom.FindAll(doc.Root, func(n *html.Node) bool {
			return dom.GetAttr(n, block.AttrPlaceholder) == block.PlaceholderPending
		})
		assert.Len(t, placeholders, 2)
	}))
	assert.Equal(t, 2, e.Pending())

	close(resolver.release)
	require.Eventually(t, func() bool { return e.Pending() == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, doc.Do(ctx, func() {
		out := dom.MustRender(doc.Root)
		assert.NotContains(t, out, block.AttrPlaceholder)
		assert.Len(t, dom.FindAll(doc.Root, func(n *html.Node) bool {
			return dom.GetAttr(n, block.AttrID) == "r1"
		}), 2)
		assert.Contains(t, out, "remote r1")
	}))
	assert.Equal(t, int32(1), resolver.calls.Load())
	assert.NotNil(t, e.Store().Get("r1"))

	select {
	case <-doc.Refreshed():
	case <-time.After(time.Second):
		t.Fatal("host was not refreshed")
	}

	t.Run("StoreHit", func(t *testing.T) {
		var out string
		require.NoError(t, doc.Do(ctx, func() {
			n, err := e.FromMarkup(ctx, `<div block-id="r1"></div>`, nil)
			if assert.NoError(t, err) {
				out = dom.MustRender(n)
			}
		}))
		assert.Contains(t, out, "remote r1")
		assert.Equal(t, 0, e.Pending())
		assert.Equal(t, int32(1), resolver.calls.Load())
	})
}

func TestAsyncVanishedPlaceholder(t *testing.T) {
	doc, ctx := runDoc(t)
	resolver := newGatedResolver()
	e, logs := newTestEditor(t, nil, WithHost(doc), WithResolvers(resolver))

	mountMarkup(t, ctx, doc, e, `<div block-id="gone"></div><p>kept</p>`)

	require.NoError(t, doc.Apply(ctx, func(root *html.Node) {
		dom.Detach(findID(root, "gone"))
	}))

	close(resolver.release)
	require.Eventually(t, func() bool { return e.Pending() == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, doc.Do(ctx, func() {
		assert.Equal(t, "<p>kept</p>", dom.MustRender(doc.Root))
	}))
	assert.Nil(t, e.Store().Get("gone"))
	assert.Equal(t, 1, logs.FilterMessage("placeholder vanished before resolution").Len())
}

func TestAsyncResolverError(t *testing.T) {
	doc, ctx := runDoc(t)
	resolver := newGatedResolver()
	resolver.fail["bad"] = true
	e, logs := newTestEditor(t, nil, WithHost(doc), WithResolvers(resolver))

	mountMarkup(t, ctx, doc, e, `<div block-id="bad"></div><div block-id="good"></div>`)

	close(resolver.release)
	require.Eventually(t, func() bool { return e.Pending() == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, doc.Do(ctx, func() {
		assert.Nil(t, findID(doc.Root, "bad"))
		good := findID(doc.Root, "good")
		if assert.NotNil(t, good) {
			assert.False(t, dom.HasAttr(good, block.AttrPlaceholder))
		}
	}))
	assert.Equal(t, 1, logs.FilterMessage("failed to resolve block").Len())
}

func TestSweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resolver := newGatedResolver()
	defer close(resolver.release)

	var e *Editor
	doc := NewDoc(nil, WithObserver(func(root *html.Node) { e.Sweep(root) }))
	go func() { _ = doc.Run(ctx) }()
	e, _ = newTestEditor(t, nil, WithHost(doc), WithResolvers(resolver))

	mountMarkup(t, ctx, doc, e, `<div block-id="x"></div><div block-id="y"></div>`)
	assert.Equal(t, 2, e.Pending())

	require.NoError(t, doc.Apply(ctx, func(root *html.Node) {
		dom.Detach(findID(root, "x"))
	}))
	assert.Equal(t, 1, e.Pending())
}

func TestSyncResolution(t *testing.T) {
	ctx := context.Background()
	resolver := newGatedResolver()
	close(resolver.release)
	resolver.fail["bad"] = true

	e, logs := newTestEditor(t, nil, WithResolvers(
		ResolverFunc(func(context.Context, Request) (*block.Block, error) { return nil, nil }),
		resolver,
	))

	n, err := e.FromMarkup(ctx, `<div block-id="bad"></div><div block-id="good"></div><div block-id="good"></div>`, nil)
	require.NoError(t, err)

	assert.Nil(t, findID(n, "bad"))
	assert.Contains(t, dom.MustRender(n), "remote good")
	assert.Equal(t, 0, e.Pending())
	assert.Equal(t, int32(2), resolver.calls.Load())
	assert.Equal(t, 1, logs.FilterMessage("failed to resolve block").Len())
}

func TestPrefetch(t *testing.T) {
	ctx := context.Background()
	pool := Pool{}
	pool.Add(
		&block.Block{ID: "a", Type: "note"},
		&block.Block{ID: "b", Type: "note"},
	)
	e, _ := newTestEditor(t, nil, WithResolvers(PoolResolver(pool)), WithConcurrency(2))
	e.Store().Set(&block.Block{ID: "known", Type: "group"})

	err := e.Prefetch(ctx, "a", "b", "known", "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolved)
	assert.Contains(t, err.Error(), `"missing"`)

	assert.NotNil(t, e.Store().Get("a"))
	assert.NotNil(t, e.Store().Get("b"))
	assert.Equal(t, "group", e.Store().Get("known").Type)
}
