// Package element describes block types.
//
// An [Element] tells how a block of a given type renders into a live tree,
// which content slots it declares and which properties its data carries.
// Elements are registered once in a [Registry] and never mutated afterwards;
// use [Element.Clone] to specialize one.
package element

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"github.com/stateful/blocks/pkg/block"
)

// Scope is handed to render and unmount hooks.
type Scope struct {
	Registry *Registry
	Store    *block.Store
	// Template is true when the element is rendered for schema synthesis,
	// with empty data and content.
	Template bool
}

// RenderFunc renders b into a detached subtree. Content slots are marked
// with the block-content attribute, nested blocks with block-id.
type RenderFunc func(b *block.Block, scope *Scope) (*html.Node, error)

// MountFunc may rewrite the data, content or type of b before it is rendered.
// It may block; ctx is cancelled when the caller gives up.
type MountFunc func(ctx context.Context, b *block.Block, blocks map[string]*block.Block) error

// UnmountFunc may rewrite b right before it is serialized from node.
type UnmountFunc func(b *block.Block, node *html.Node, scope *Scope) error

type Element struct {
	Name  string `validate:"required"`
	Title string
	Group string

	// Inline elements with no realized content are not serialized.
	Inline bool
	// Standalone elements own the namespace of their nested blocks.
	Standalone bool
	// Inplace elements carry their data on the node instead of in the store.
	Inplace bool

	Contents   Contents
	Properties Properties

	Render  RenderFunc `validate:"required"`
	Mount   MountFunc
	Unmount UnmountFunc

	leaf    bool
	unnamed bool
}

var validate = validator.New()

// New validates el, normalizes its contents and returns a registrable copy.
func New(el Element) (*Element, error) {
	if err := validate.Struct(&el); err != nil {
		return nil, errors.Wrapf(ErrInvalid, "%s: %v", el.Name, err)
	}
	unnamed, err := el.Contents.normalize()
	if err != nil {
		return nil, errors.Wrapf(err, "element %q", el.Name)
	}
	el.leaf = len(el.Contents) == 0
	el.unnamed = unnamed
	return &el, nil
}

// MustNew is like [New] but panics on error. Useful for built-in elements.
func MustNew(el Element) *Element {
	result, err := New(el)
	if err != nil {
		panic(err)
	}
	return result
}

// Leaf reports whether the element declares no content.
func (el *Element) Leaf() bool { return el.leaf }

// Unnamed reports whether the element has a single slot stored under the "" key.
func (el *Element) Unnamed() bool { return el.unnamed }

// Clone returns a copy that can be specialized and registered under another name.
func (el *Element) Clone() *Element {
	clone := *el
	clone.Contents = append(Contents(nil), el.Contents...)
	if el.Properties != nil {
		clone.Properties = make(Properties, len(el.Properties))
		for k, v := range el.Properties {
			clone.Properties[k] = v
		}
	}
	return &clone
}

// Empty returns a block of this element with filled defaults and no content.
func (el *Element) Empty() *block.Block {
	b := block.New(el.Name)
	b.Data = el.Properties.Fill(b.Data)
	b.Standalone = el.Standalone
	return b
}

// Template renders the element for an empty block.
func (el *Element) Template(scope Scope) (*html.Node, error) {
	scope.Template = true
	n, err := el.Render(el.Empty(), &scope)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to render %q template", el.Name)
	}
	return n, nil
}
