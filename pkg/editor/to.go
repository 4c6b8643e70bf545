package editor

import (
	"context"

	"github.com/elliotchance/orderedmap"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/stateful/blocks/pkg/block"
	"github.com/stateful/blocks/pkg/dom"
	"github.com/stateful/blocks/pkg/element"
)

// ErrMissingBlock is returned when a node references a block absent from the store.
var ErrMissingBlock = errors.New("missing block")

// Result is the outcome of [Editor.Serialize].
type Result struct {
	// Root is the block of the serialized node. Its Children hold the
	// blocks it owns; nested standalone blocks own their descendants.
	Root *block.Block
	// Blocks lists every serialized block, in document order.
	Blocks []*block.Block
}

// To extracts the block of the live node n.
func (e *Editor) To(ctx context.Context, n *html.Node) (*block.Block, error) {
	res, err := e.Serialize(ctx, n)
	if err != nil {
		return nil, err
	}
	return res.Root, nil
}

// Serialize extracts the block of the live node n and every block nested in it.
// The live tree is not modified; serialized blocks are written to the store.
// A nil Root with a nil error means n does not materialize as a block.
func (e *Editor) Serialize(ctx context.Context, n *html.Node) (*Result, error) {
	x := &extract{e: e, ctx: ctx}
	root, err := x.node(n, nil)
	if err != nil {
		return nil, err
	}

	for _, b := range x.blocks {
		if b.ID == "" {
			continue
		}
		stored := b.Clone()
		stored.Children = nil
		e.store.Set(stored)
	}
	return &Result{Root: root, Blocks: x.blocks}, nil
}

// ancestor owns the blocks nested in it until it is finalized.
type ancestor struct {
	block   *block.Block
	pending *orderedmap.OrderedMap
}

func newAncestor(b *block.Block) *ancestor {
	return &ancestor{block: b, pending: orderedmap.NewOrderedMap()}
}

func (a *ancestor) children() []*block.Block {
	var result []*block.Block
	for _, key := range a.pending.Keys() {
		v, _ := a.pending.Get(key)
		result = append(result, v.(*block.Block))
	}
	return result
}

type extract struct {
	e      *Editor
	ctx    context.Context
	blocks []*block.Block
}

func (x *extract) node(n *html.Node, anc *ancestor) (*block.Block, error) {
	if err := x.ctx.Err(); err != nil {
		return nil, err
	}

	if dom.HasAttr(n, block.AttrPlaceholder) {
		return x.placeholder(n, anc)
	}

	b, el, err := x.base(n)
	if err != nil || b == nil {
		return nil, err
	}

	if el.Unmount != nil {
		if err := el.Unmount(b, n, x.e.scope()); err != nil {
			return nil, errors.Wrapf(err, "failed to unmount %q", b.ID)
		}
	}

	owner := anc
	if anc == nil || (b.Standalone && !b.Virtual) {
		owner = newAncestor(b)
	}
	if b.Virtual {
		anc = nil
	} else {
		x.blocks = append(x.blocks, b)
	}
	if anc != nil && b.ID != "" {
		anc.pending.Set(b.ID, b)
	}

	for _, spec := range slots(el) {
		if err := x.slot(n, b, spec, owner); err != nil {
			x.drop(b, anc)
			return nil, err
		}
	}

	if el.Inline && !el.Leaf() && len(b.Content) == 0 {
		x.drop(b, anc)
		return nil, nil
	}

	if owner.block == b {
		b.Children = owner.children()
	}
	return b, nil
}

// base builds the block of n, without content, from its attributes and the store.
func (x *extract) base(n *html.Node) (*block.Block, *element.Element, error) {
	if dom.IsFragment(n) {
		el, err := x.e.registry.Lookup(block.FragmentType)
		if err != nil {
			return nil, nil, err
		}
		return block.New(block.FragmentType), el, nil
	}

	attrs, err := block.ReadAttrs(n)
	if err != nil {
		return nil, nil, err
	}

	var b *block.Block
	stored := x.e.store.Get(attrs.ID)
	switch {
	case stored != nil:
		b = stored.Clone()
		b.Content = block.Content{}
		b.Children = nil
	case attrs.ID != "":
		return nil, nil, errors.Wrapf(ErrMissingBlock, "%q", attrs.ID)
	case attrs.Type == "":
		return nil, nil, errors.New("node carries no block")
	default:
		b = block.New(attrs.Type)
	}
	if attrs.Type != "" {
		b.Type = attrs.Type
	}

	el, err := x.e.registry.Lookup(b.Type)
	if err != nil {
		return nil, nil, err
	}

	if el.Inplace {
		b.ID = ""
		b.Data = attrs.Data
	} else if b.ID == "" {
		b.ID = x.e.store.GenID()
	}
	b.Data = el.Properties.Fill(b.Data)
	b.Standalone = attrs.Standalone
	b.Focused = attrs.Focused
	b.Normalize()
	return b, el, nil
}

// slots returns the slot specs of el. Unnamed elements have a single "" slot.
func slots(el *element.Element) element.Contents {
	if el.Unnamed() {
		return element.Contents{{ID: "", Virtual: el.Contents[0].Virtual}}
	}
	return el.Contents
}

func (x *extract) slot(n *html.Node, b *block.Block, spec element.SlotSpec, owner *ancestor) error {
	var live *html.Node
	if dom.IsFragment(n) {
		live = n
	} else {
		live = block.FindSlot(n, spec.ID)
	}
	if live == nil {
		return nil
	}

	clone := dom.Clone(live)
	for _, nested := range nestedMarkers(clone) {
		x.nested(nested, owner)
	}

	if spec.Virtual || dom.IsBlank(clone) {
		return nil
	}
	markup, err := dom.InnerHTML(clone)
	if err != nil {
		return errors.Wrapf(err, "slot %q of %q", spec.ID, b.ID)
	}
	b.Content[spec.ID] = block.Markup(markup)
	return nil
}

// nested serializes the nested block at n, a node of a cloned slot, and
// leaves a reference to it in place.
func (x *extract) nested(n *html.Node, owner *ancestor) {
	logger := x.e.logger.With(zap.String("id", dom.GetAttr(n, block.AttrID)))

	placeholder := dom.NewElement(n.Data)
	dom.Replace(n, placeholder)

	child, err := x.node(n, owner)
	if err != nil || child == nil || child.Virtual {
		if err != nil {
			logger.Warn("dropping nested block", zap.Error(err))
		}
		dom.Detach(placeholder)
		if id := dom.GetAttr(n, block.AttrID); id != "" {
			owner.pending.Delete(id)
		}
		return
	}

	el, err := x.e.registry.Lookup(child.Type)
	if err != nil {
		dom.Detach(placeholder)
		return
	}
	ref := &block.Block{ID: child.ID, Type: child.Type, Data: child.Data}
	if err := block.WriteAttrs(placeholder, ref, el.Inplace); err != nil {
		logger.Warn("dropping nested block", zap.Error(err))
		dom.Detach(placeholder)
		owner.pending.Delete(child.ID)
	}
}

// drop forgets b and the blocks serialized after it.
func (x *extract) drop(b *block.Block, anc *ancestor) {
	if anc != nil && b.ID != "" {
		anc.pending.Delete(b.ID)
	}
	for i, s := range x.blocks {
		if s == b {
			x.blocks = x.blocks[:i]
			return
		}
	}
}

// placeholder keeps the reference of an unresolved node when the store
// already knows its block. The block is not serialized again.
func (x *extract) placeholder(n *html.Node, anc *ancestor) (*block.Block, error) {
	id := dom.GetAttr(n, block.AttrID)
	stored := x.e.store.Get(id)
	if stored == nil {
		return nil, errors.Wrapf(ErrMissingBlock, "placeholder %q", id)
	}
	b := stored.Clone()
	b.Children = nil
	if anc != nil {
		anc.pending.Set(b.ID, b)
	}
	return b, nil
}
