package element

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/net/html"

	"github.com/stateful/blocks/pkg/block"
	"github.com/stateful/blocks/pkg/dom"
)

// Registry holds elements by name.
type Registry struct {
	mu       sync.RWMutex
	elements map[string]*Element
}

// NewRegistry returns a registry containing the built-in fragment element.
func NewRegistry() *Registry {
	r := &Registry{elements: make(map[string]*Element)}
	r.elements[Fragment.Name] = Fragment
	return r
}

// Register adds elements. Every element is attempted; the returned error
// aggregates the failures.
func (r *Registry) Register(els ...*Element) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	for _, el := range els {
		if el == nil {
			continue
		}
		if _, ok := r.elements[el.Name]; ok {
			err = multierr.Append(err, errors.Wrapf(ErrDuplicate, "%q", el.Name))
			continue
		}
		r.elements[el.Name] = el
	}
	return err
}

// Lookup returns the element registered under name.
func (r *Registry) Lookup(name string) (*Element, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	el, ok := r.elements[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownType, "%q", name)
	}
	return el, nil
}

// Names returns registered names in alphabetical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.elements))
	for name := range r.elements {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fragment renders the content of anonymous blocks as is.
var Fragment = MustNew(Element{
	Name:     block.FragmentType,
	Contents: Contents{{Nodes: "block*"}},
	Render: func(b *block.Block, _ *Scope) (*html.Node, error) {
		b.Normalize()
		slot, err := b.Content[""].Mount()
		if err != nil {
			return nil, err
		}
		if slot.Node == nil {
			slot = block.Mounted(dom.NewFragment())
		}
		b.Content[""] = slot
		return slot.Node, nil
	},
})
