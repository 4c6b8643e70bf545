package editor

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/stateful/blocks/pkg/block"
	"github.com/stateful/blocks/pkg/dom"
)

// ErrUnresolved is returned when no resolver knows a block.
var ErrUnresolved = errors.New("unresolved block")

// Request describes the block a resolver is asked for.
type Request struct {
	ID  string
	URL string
	// Node is the placeholder standing in for the block. Resolvers must not
	// touch it; it is only safe to read on the host loop.
	Node *html.Node
}

// Resolver supplies blocks for unknown references. A nil block with a nil
// error means the resolver does not know the block and the next one is tried.
type Resolver interface {
	Resolve(ctx context.Context, req Request) (*block.Block, error)
}

type ResolverFunc func(ctx context.Context, req Request) (*block.Block, error)

func (f ResolverFunc) Resolve(ctx context.Context, req Request) (*block.Block, error) {
	return f(ctx, req)
}

// PoolResolver resolves blocks from a fixed pool.
func PoolResolver(pool Pool) Resolver {
	return ResolverFunc(func(_ context.Context, req Request) (*block.Block, error) {
		if b, ok := pool[req.ID]; ok {
			return b.Clone(), nil
		}
		return nil, nil
	})
}

// Token identifies one placeholder awaiting a resolution. Its generation is
// unique per editor, so a completion never applies to a placeholder that was
// created later for the same id.
type Token struct {
	ID  string
	Gen uint64
}

func (e *Editor) track(id string, n *html.Node) Token {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.gen++
	token := Token{ID: id, Gen: e.gen}
	e.pending[token] = n
	return token
}

// claim returns the placeholder of token and forgets it.
func (e *Editor) claim(token Token) (*html.Node, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok := e.pending[token]
	delete(e.pending, token)
	return n, ok
}

// Pending returns the number of placeholders awaiting a resolution.
func (e *Editor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Sweep forgets the placeholders that are no longer in the tree rooted at root.
// It returns the number of forgotten tokens.
func (e *Editor) Sweep(root *html.Node) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	swept := 0
	for token, n := range e.pending {
		if !dom.Contains(root, n) {
			delete(e.pending, token)
			swept++
		}
	}
	if swept > 0 {
		e.logger.Debug("swept vanished placeholders", zap.Int("count", swept))
	}
	return swept
}

// fetch asks the resolvers for req.ID. Concurrent calls for the same id
// share a single resolution. The returned block is owned by the caller.
func (e *Editor) fetch(ctx context.Context, req Request) (*block.Block, error) {
	if b, ok := e.cache.GetByID(req.ID); ok {
		return b.Clone(), nil
	}

	v, err, shared := e.flight.Do(req.ID, func() (interface{}, error) {
		for _, r := range e.resolvers {
			b, err := r.Resolve(ctx, req)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to resolve %q", req.ID)
			}
			if b == nil {
				continue
			}
			if b.ID == "" {
				b.ID = req.ID
			}
			e.cache.Add(b.Clone())
			return b, nil
		}
		return nil, errors.Wrapf(ErrUnresolved, "%q", req.ID)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		e.logger.Debug("shared resolution", zap.String("id", req.ID))
	}
	return v.(*block.Block).Clone(), nil
}

// resolveAsync resolves the placeholder of token and posts the completion to the host.
func (e *Editor) resolveAsync(ctx context.Context, token Token, req Request) {
	b, err := e.fetch(ctx, req)
	e.host.Dispatch(func() {
		e.complete(ctx, token, b, err)
	})
}

// complete runs on the host loop.
func (e *Editor) complete(ctx context.Context, token Token, b *block.Block, err error) {
	logger := e.logger.With(zap.String("id", token.ID), zap.Uint64("gen", token.Gen))

	placeholder, ok := e.claim(token)
	if !ok || placeholder.Parent == nil {
		logger.Debug("placeholder vanished before resolution")
		return
	}
	defer e.host.Refresh()

	if err != nil {
		logger.Warn("failed to resolve block", zap.Error(err))
		dom.Detach(placeholder)
		return
	}

	e.store.Set(b)

	r := e.newRender(nil)
	n, err := r.block(ctx, b)
	if err != nil {
		logger.Warn("failed to render resolved block", zap.Error(err))
		dom.Detach(placeholder)
		return
	}
	dom.RemoveAttr(placeholder, block.AttrPlaceholder)
	r.splice(placeholder, n)
}
