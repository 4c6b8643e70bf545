package schema

import (
	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"github.com/stateful/blocks/pkg/block"
	"github.com/stateful/blocks/pkg/dom"
)

// ErrShapeChanged is returned by [Schema.Reconcile] when the structure of a
// fresh render does not pair with the live one. The live node has to be
// replaced by a full render.
var ErrShapeChanged = errors.New("element structure changed")

// Reconcile patches the live node of b to match a fresh render of b.
//
// The root node and the content nodes are kept in place along with their
// children, so the host keeps its selection. Attributes are synced at every
// region boundary and the template-owned interiors are replaced.
// The returned nodes are nested block markers brought by the fresh render.
func (s *Schema) Reconcile(live *html.Node, b *block.Block) ([]*html.Node, error) {
	if s.Root() == nil {
		return nil, errors.Errorf("%q has no structure to reconcile", s.Element.Name)
	}
	fresh, err := s.render(b)
	if err != nil {
		return nil, err
	}

	liveRoot, freshRoot := Classify(live), Classify(fresh)
	if liveRoot == nil {
		return nil, errors.Wrap(ErrShapeChanged, "live node is not an element")
	}
	if err := check(liveRoot, freshRoot); err != nil {
		return nil, err
	}
	patch(liveRoot, freshRoot)

	if err := block.WriteAttrs(live, b, s.Element.Inplace); err != nil {
		return nil, err
	}
	return markers(liveRoot), nil
}

// check verifies that both trees pair region by region before anything is touched.
func check(live, fresh *Unit) error {
	switch {
	case live.Node.Data != fresh.Node.Data:
		return errors.Wrapf(ErrShapeChanged, "%s: <%s> became <%s>", fresh.Path, live.Node.Data, fresh.Node.Data)
	case (live.Content == nil) != (fresh.Content == nil),
		(live.Content == live.Node) != (fresh.Content == fresh.Node),
		live.HasSlot != fresh.HasSlot,
		live.Slot != fresh.Slot,
		len(live.Children) != len(fresh.Children):
		return errors.Wrapf(ErrShapeChanged, "%s: regions differ", fresh.Path)
	}
	for i := range live.Children {
		if err := check(live.Children[i], fresh.Children[i]); err != nil {
			return err
		}
	}
	return nil
}

func patch(live, fresh *Unit) {
	dom.SyncAttrs(live.Node, fresh.Node, block.IsWireAttr)

	if live.Content == nil {
		dom.RemoveChildren(live.Node)
		dom.MoveChildren(live.Node, fresh.Node)
		return
	}

	if live.Content != live.Node {
		dom.SyncAttrs(live.Content, fresh.Content, block.IsWireAttr)
		// Move the live content into the fresh interior, then adopt the interior.
		dom.Replace(fresh.Content, live.Content)
		dom.RemoveChildren(live.Node)
		dom.MoveChildren(live.Node, fresh.Node)
	}

	if !live.HasSlot {
		// Structural regions stay, everything between them is re-rendered.
		structural := make(map[*html.Node]*html.Node, len(fresh.Children))
		for i, c := range fresh.Children {
			structural[c.Node] = live.Children[i].Node
		}
		for _, c := range live.Children {
			dom.Detach(c.Node)
		}
		dom.RemoveChildren(live.Content)
		for _, c := range dom.Children(fresh.Content) {
			if kept, ok := structural[c]; ok {
				live.Content.AppendChild(kept)
				continue
			}
			dom.Detach(c)
			live.Content.AppendChild(c)
		}
	}

	for i := range live.Children {
		patch(live.Children[i], fresh.Children[i])
	}
}

// markers returns the block markers found in template-owned parts of u.
func markers(u *Unit) []*html.Node {
	slots := make(map[*html.Node]bool)
	u.Walk(func(c *Unit) {
		if c.HasSlot {
			slots[c.Content] = true
		}
	})

	var result []*html.Node
	dom.Walk(u.Node, func(n *html.Node) bool {
		if !dom.IsElement(n) || slots[n] {
			return false
		}
		if block.IsBoundary(n) {
			result = append(result, n)
			return false
		}
		return true
	})
	return result
}
