// Package schema derives structural rules from element templates.
//
// Templates are plain markup: slots are marked with block-content and the
// structure has to be inferred. Every content-bearing region of a rendered
// template is classified into a [Role]:
//
//   - root: the top node of the element, exactly one;
//   - wrap: a region whose content holds further structural regions;
//   - container: a region holding one content slot.
//
// Synthesis runs once per element at setup and produces an immutable table
// of [Rule]s. Serialization and reconciliation re-render on demand because
// the template shape may depend on block data.
package schema

import (
	"golang.org/x/net/html"

	"github.com/stateful/blocks/pkg/block"
	"github.com/stateful/blocks/pkg/dom"
)

type Role int

const (
	RoleRoot Role = iota + 1
	RoleWrap
	RoleContainer
)

func (r Role) String() string {
	switch r {
	case RoleRoot:
		return "root"
	case RoleWrap:
		return "wrap"
	case RoleContainer:
		return "container"
	default:
		return "unknown"
	}
}

// Unit is a classified structural region.
type Unit struct {
	Role Role
	// Node is the top node of the region.
	Node *html.Node
	// Content is the node holding the content of the region.
	// It is nil for roots of leaf elements.
	Content *html.Node
	// Slot is the block-content value of Content, if it carries one.
	Slot     string
	HasSlot  bool
	Children []*Unit
	// Path leads from the classified root to Node.
	Path dom.Path
}

// Classify assigns roles to the structural regions of the subtree rooted at n.
// It works both on templates and on live trees; nested blocks are opaque.
func Classify(n *html.Node) *Unit {
	if !dom.IsElement(n) {
		return nil
	}
	return classify(n, n, nil)
}

func classify(root, n *html.Node, parent *Unit) *Unit {
	if !dom.IsElement(n) {
		return nil
	}
	if parent != nil && block.IsBoundary(n) {
		return nil
	}

	content := findContent(n)
	if parent != nil && content == nil {
		return nil
	}

	u := &Unit{
		Node:    n,
		Content: content,
		Path:    dom.PathOf(root, n),
	}
	if parent == nil {
		u.Role = RoleRoot
	}
	if content == nil {
		return u
	}

	if slot, ok := dom.Attr(content, block.AttrContent); ok {
		u.Slot, u.HasSlot = slot, true
	} else {
		for c := content.FirstChild; c != nil; c = c.NextSibling {
			if child := classify(root, c, u); child != nil {
				u.Children = append(u.Children, child)
			}
		}
	}

	if parent != nil {
		if len(u.Children) > 0 {
			u.Role = RoleWrap
		} else {
			u.Role = RoleContainer
		}
	}
	return u
}

// findContent returns n when it is a slot marker, the single slot marker
// below n, or the nearest common ancestor of all slot markers below n.
func findContent(n *html.Node) *html.Node {
	markers := block.SlotNodes(n)
	switch len(markers) {
	case 0:
		return nil
	case 1:
		return markers[0]
	default:
		return dom.CommonAncestor(markers...)
	}
}

// Walk visits u and its descendants depth-first.
func (u *Unit) Walk(fn func(*Unit)) {
	if u == nil {
		return
	}
	fn(u)
	for _, c := range u.Children {
		c.Walk(fn)
	}
}
