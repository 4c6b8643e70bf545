package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"github.com/stateful/blocks/pkg/block"
	"github.com/stateful/blocks/pkg/dom"
)

// Rule describes one structural region of an element.
type Rule struct {
	Name string
	Role Role
	Tag  string
	// Selector lists the attributes a node must carry to be parsed by the rule.
	Selector map[string]string
	// Slot is the content slot of containers and slot-bearing roots.
	Slot string
	// Path leads from the root of the template to the region.
	Path dom.Path

	schema *Schema
}

// Schema returns the schema the rule belongs to.
func (r *Rule) Schema() *Schema { return r.schema }

// Match reports whether n is parsed by r.
func (r *Rule) Match(n *html.Node) bool {
	if !dom.IsElement(n) {
		return false
	}
	if r.Role != RoleRoot && n.Data != r.Tag {
		return false
	}
	for k, v := range r.Selector {
		if got, ok := dom.Attr(n, k); !ok || got != v {
			return false
		}
	}
	return true
}

// Attrs reconstructs block attributes from a node parsed by r.
func (r *Rule) Attrs(n *html.Node) (block.NodeAttrs, error) {
	switch r.Role {
	case RoleRoot:
		attrs, err := block.ReadAttrs(n)
		if err != nil {
			return attrs, errors.Wrapf(err, "rule %s", r.Name)
		}
		if attrs.Type == "" {
			attrs.Type = r.schema.Element.Name
		}
		return attrs, nil
	case RoleContainer:
		return block.NodeAttrs{Type: r.schema.Element.Name, Content: r.Slot}, nil
	default:
		return block.NodeAttrs{Type: r.schema.Element.Name}, nil
	}
}

// Output is a serialized region. Hole is where the content of the region
// goes; it is nil for leaf roots.
type Output struct {
	Node *html.Node
	Hole *html.Node
}

// Serialize renders the region of r for b. The template is re-rendered
// because its shape may depend on b.Data; the content of b is not used.
func (r *Rule) Serialize(b *block.Block) (Output, error) {
	n, err := r.schema.render(b)
	if err != nil {
		return Output{}, err
	}
	u := r.locate(Classify(n))
	if u == nil {
		return Output{}, errors.Errorf("rule %s: region not rendered for %q", r.Name, b.ID)
	}

	dom.Detach(u.Node)
	if u.Content != nil {
		dom.RemoveChildren(u.Content)
	}
	if r.Role == RoleRoot {
		if err := block.WriteAttrs(u.Node, b, r.schema.Element.Inplace); err != nil {
			return Output{}, err
		}
	}
	return Output{Node: u.Node, Hole: u.Content}, nil
}

// locate finds the region of r in a freshly classified tree.
func (r *Rule) locate(root *Unit) *Unit {
	var byPath, bySlot *Unit
	root.Walk(func(u *Unit) {
		if u.Role != r.Role {
			return
		}
		if byPath == nil && u.Path.Equal(r.Path) {
			byPath = u
		}
		if bySlot == nil && r.Role == RoleContainer && u.Slot == r.Slot {
			bySlot = u
		}
	})
	if byPath != nil {
		return byPath
	}
	return bySlot
}

func (s *Schema) render(b *block.Block) (*html.Node, error) {
	shape := b.Clone()
	shape.Content = nil
	scope := s.scope
	n, err := s.Element.Render(shape, &scope)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to render %q", s.Element.Name)
	}
	if !dom.IsElement(n) {
		return nil, errors.Errorf("%q did not render an element", s.Element.Name)
	}
	return n, nil
}

func (r *Rule) String() string {
	keys := make([]string, 0, len(r.Selector))
	for k := range r.Selector {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s path=%s", r.Name, r.Role, r.Tag, r.Path)
	if r.Role == RoleContainer {
		fmt.Fprintf(&sb, " slot=%q", r.Slot)
	}
	for _, k := range keys {
		fmt.Fprintf(&sb, " [%s=%q]", k, r.Selector[k])
	}
	return sb.String()
}
