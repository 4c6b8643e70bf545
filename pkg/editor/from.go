package editor

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/stateful/blocks/pkg/block"
	"github.com/stateful/blocks/pkg/dom"
	"github.com/stateful/blocks/pkg/element"
)

// ErrRecursion is returned when a block references itself, directly or not.
var ErrRecursion = errors.New("recursive block reference")

// From renders b into a detached live subtree. Nested block references are
// looked up in pool, then in the store. Unknown references become
// placeholders and are handed to the resolvers, if any.
//
// Only configuration errors of b itself are returned; failures of nested
// blocks are logged and the failing subtree is left out.
func (e *Editor) From(ctx context.Context, b *block.Block, pool Pool) (*html.Node, error) {
	return e.newRender(pool).block(ctx, b)
}

// FromMarkup renders markup as an anonymous fragment block.
func (e *Editor) FromMarkup(ctx context.Context, markup string, pool Pool) (*html.Node, error) {
	return e.From(ctx, block.Fragment(markup), pool)
}

type render struct {
	e    *Editor
	pool Pool
	// path holds the ids of the blocks being rendered, outermost first.
	path map[string]struct{}
}

func (e *Editor) newRender(pool Pool) *render {
	if pool == nil {
		pool = Pool{}
	}
	return &render{e: e, pool: pool, path: make(map[string]struct{})}
}

func (r *render) block(ctx context.Context, b *block.Block) (*html.Node, error) {
	if b == nil {
		return nil, errors.New("nil block")
	}
	if _, ok := r.path[b.ID]; ok && b.ID != "" {
		return nil, errors.Wrapf(ErrRecursion, "%q", b.ID)
	}

	b, el, err := r.mount(ctx, b)
	if err != nil {
		return nil, err
	}
	logger := r.e.logger.With(zap.String("id", b.ID), zap.String("type", b.Type))

	if b.ID != "" {
		r.path[b.ID] = struct{}{}
		defer delete(r.path, b.ID)
	}

	for _, child := range b.Children {
		if child == nil || child.ID == "" {
			logger.Warn("ignoring child without id")
			continue
		}
		if _, ok := r.pool[child.ID]; ok {
			logger.Warn("child already in pool", zap.String("child", child.ID))
			continue
		}
		r.pool[child.ID] = child
	}
	b.Children = nil

	n, err := el.Render(b, r.e.scope())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to render %q", b.ID)
	}
	if n == nil {
		return nil, errors.Errorf("element %q rendered nothing", el.Name)
	}
	if dom.IsElement(n) {
		if err := block.WriteAttrs(n, b, el.Inplace); err != nil {
			return nil, err
		}
	}

	r.expand(ctx, n)
	return n, nil
}

// mount prepares a copy of b for rendering and registers it in the store.
func (r *render) mount(ctx context.Context, b *block.Block) (*block.Block, *element.Element, error) {
	el, err := r.e.registry.Lookup(b.Type)
	if err != nil {
		return nil, nil, err
	}

	b = b.Clone().Normalize()
	if el.Mount != nil {
		typ := b.Type
		if err := el.Mount(ctx, b, r.pool); err != nil {
			return nil, nil, errors.Wrapf(err, "failed to mount %q", b.ID)
		}
		if b.Type != typ {
			if el, err = r.e.registry.Lookup(b.Type); err != nil {
				return nil, nil, errors.Wrapf(err, "mount of %q changed its type", b.ID)
			}
		}
		b.Normalize()
	}
	if b.Standalone || el.Standalone {
		b.Standalone = true
	}
	b.Data = el.Properties.Fill(b.Data)

	// Live nodes of mounted slots belong to an earlier render.
	if err := b.Unmount(); err != nil {
		return nil, nil, err
	}
	for name, slot := range b.Content {
		mounted, err := slot.Mount()
		if err != nil {
			return nil, nil, errors.Wrapf(err, "slot %q of %q", name, b.ID)
		}
		b.Content[name] = mounted
	}

	if el.Inplace || b.Type == block.FragmentType {
		return b, el, nil
	}
	if b.ID == "" {
		b.ID = r.e.store.GenID()
	}
	if existing := r.e.store.Get(b.ID); existing != nil && existing.Type != b.Type {
		r.e.logger.Warn("id is taken by a block of another type",
			zap.String("id", b.ID),
			zap.String("type", b.Type),
			zap.String("existing", existing.Type),
		)
	} else {
		r.e.store.Set(b)
	}
	return b, el, nil
}

// expand replaces the nested block markers of n by their renders.
func (r *render) expand(ctx context.Context, n *html.Node) {
	for _, marker := range nestedMarkers(n) {
		r.child(ctx, marker)
	}
}

// nestedMarkers returns the outermost nodes below n starting a nested block.
func nestedMarkers(n *html.Node) []*html.Node {
	var result []*html.Node
	dom.Walk(n, func(c *html.Node) bool {
		if !dom.IsElement(c) {
			return false
		}
		if block.IsBoundary(c) {
			result = append(result, c)
			return false
		}
		return true
	})
	return result
}

func (r *render) child(ctx context.Context, marker *html.Node) {
	logger := r.e.logger

	attrs, err := block.ReadAttrs(marker)
	if err != nil {
		logger.Warn("invalid block marker", zap.Error(err))
		dom.Detach(marker)
		return
	}
	if attrs.Placeholder != "" && attrs.ID == "" {
		dom.Detach(marker)
		return
	}

	var child *block.Block
	switch {
	case attrs.ID == "":
		child = &block.Block{Type: attrs.Type, Data: attrs.Data, Standalone: attrs.Standalone}
	case r.pool[attrs.ID] != nil:
		child = r.pool[attrs.ID]
	default:
		child = r.e.store.Get(attrs.ID)
	}
	if child == nil {
		r.unresolved(ctx, marker, attrs)
		return
	}
	if attrs.Type != "" && attrs.Type != child.Type {
		child = child.Clone()
		child.Type = attrs.Type
	}

	n, err := r.block(ctx, child)
	if err != nil {
		logger.Warn("failed to render nested block", zap.String("id", attrs.ID), zap.Error(err))
		dom.Detach(marker)
		return
	}
	r.splice(marker, n)
}

// unresolved turns marker into a placeholder for a block nobody knows yet.
func (r *render) unresolved(ctx context.Context, marker *html.Node, attrs block.NodeAttrs) {
	e := r.e
	logger := e.logger.With(zap.String("id", attrs.ID))

	if len(e.resolvers) == 0 {
		logger.Warn("unresolved block reference")
		dom.SetAttr(marker, block.AttrPlaceholder, block.PlaceholderMissing)
		return
	}

	req := Request{ID: attrs.ID, URL: dom.GetAttr(marker, "src"), Node: marker}

	if cached, ok := e.cache.GetByID(attrs.ID); ok {
		r.resolved(ctx, marker, cached.Clone())
		return
	}

	if e.host == nil {
		b, err := e.fetch(ctx, req)
		if err != nil {
			logger.Warn("failed to resolve block", zap.Error(err))
			dom.Detach(marker)
			return
		}
		r.resolved(ctx, marker, b)
		return
	}

	dom.SetAttr(marker, block.AttrPlaceholder, block.PlaceholderPending)
	token := e.track(attrs.ID, marker)
	go e.resolveAsync(context.WithoutCancel(ctx), token, req)
}

func (r *render) resolved(ctx context.Context, marker *html.Node, b *block.Block) {
	r.e.store.Set(b)
	n, err := r.block(ctx, b)
	if err != nil {
		r.e.logger.Warn("failed to render resolved block", zap.String("id", b.ID), zap.Error(err))
		dom.Detach(marker)
		return
	}
	r.splice(marker, n)
}

// splice puts n in place of marker. Attributes of the marker not set by the
// render are carried over.
func (r *render) splice(marker, n *html.Node) {
	if dom.IsFragment(n) {
		for _, c := range dom.Children(n) {
			dom.Detach(c)
			marker.Parent.InsertBefore(c, marker)
		}
		dom.Detach(marker)
		return
	}
	for _, a := range marker.Attr {
		if a.Key == block.AttrPlaceholder {
			continue
		}
		if !dom.HasAttr(n, a.Key) {
			dom.SetAttr(n, a.Key, a.Val)
		}
	}
	dom.Replace(marker, n)
}
