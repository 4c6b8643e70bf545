package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/stateful/blocks/pkg/block"
	"github.com/stateful/blocks/pkg/dom"
	"github.com/stateful/blocks/pkg/element"
)

// Schema holds the rules synthesized for one element.
type Schema struct {
	Element *element.Element
	Rules   []*Rule

	scope element.Scope
}

// Synthesize renders the template of el and derives its rules. Elements
// rendering fragments have no structure and get a schema without rules.
func Synthesize(el *element.Element, scope element.Scope) (*Schema, error) {
	s := &Schema{Element: el, scope: scope}

	tmpl, err := el.Template(scope)
	if err != nil {
		return nil, err
	}
	if !dom.IsElement(tmpl) {
		return s, nil
	}
	if err := checkSlots(el, tmpl); err != nil {
		return nil, err
	}

	root := Classify(tmpl)
	wraps := 0
	root.Walk(func(u *Unit) {
		r := &Rule{
			Role:   u.Role,
			Tag:    u.Node.Data,
			Slot:   u.Slot,
			Path:   u.Path,
			schema: s,
		}
		switch u.Role {
		case RoleRoot:
			r.Name = el.Name
			r.Selector = map[string]string{block.AttrType: el.Name}
		case RoleWrap:
			wraps++
			r.Name = fmt.Sprintf("%s_wrap%d", el.Name, wraps)
			r.Selector = staticAttrs(u.Node)
		case RoleContainer:
			r.Name = el.Name + "_" + slotName(u.Slot)
			r.Selector = staticAttrs(u.Node)
			if u.Content == u.Node {
				r.Selector[block.AttrContent] = u.Slot
			}
		}
		s.Rules = append(s.Rules, r)
	})
	return s, nil
}

func slotName(slot string) string {
	if slot == "" {
		return "content"
	}
	return slot
}

// staticAttrs returns the non-wire attributes of n.
func staticAttrs(n *html.Node) map[string]string {
	attrs := dom.Attrs(n)
	for k := range attrs {
		if block.IsWireAttr(k) {
			delete(attrs, k)
		}
	}
	return attrs
}

// checkSlots verifies that the markers of the template match the declared slots.
func checkSlots(el *element.Element, tmpl *html.Node) error {
	var (
		err   error
		seen  = make(map[string]int)
		names []string
	)
	for _, marker := range allMarkers(tmpl) {
		name := dom.GetAttr(marker, block.AttrContent)
		if seen[name] == 0 {
			names = append(names, name)
		}
		seen[name]++
	}

	if seen[""] > 1 {
		err = multierr.Append(err, errors.Wrapf(element.ErrAmbiguousContent, "%q renders %d default slots", el.Name, seen[""]))
	}
	if seen[""] > 0 && !el.Unnamed() && len(names) > 1 {
		err = multierr.Append(err, errors.Wrapf(element.ErrAmbiguousContent, "%q mixes default and named slots", el.Name))
	}
	for _, name := range names {
		if name == "" && el.Unnamed() {
			continue
		}
		if _, ok := el.Contents.Get(name); !ok {
			err = multierr.Append(err, errors.Wrapf(element.ErrMissingContent, "%q renders undeclared slot %q", el.Name, name))
		} else if seen[name] > 1 {
			err = multierr.Append(err, errors.Wrapf(element.ErrAmbiguousContent, "%q renders slot %q %d times", el.Name, name, seen[name]))
		}
	}
	for _, id := range el.Contents.IDs() {
		if seen[id] == 0 {
			err = multierr.Append(err, errors.Wrapf(element.ErrMissingContent, "%q does not render slot %q", el.Name, id))
		}
	}
	return err
}

// allMarkers returns every slot marker of the element rendered at n,
// including the ones nested in other markers.
func allMarkers(n *html.Node) []*html.Node {
	var result []*html.Node
	if dom.HasAttr(n, block.AttrContent) {
		result = append(result, n)
	}
	dom.Walk(n, func(c *html.Node) bool {
		if !dom.IsElement(c) || block.IsBoundary(c) {
			return false
		}
		if dom.HasAttr(c, block.AttrContent) {
			result = append(result, c)
		}
		return true
	})
	return result
}

// Root returns the root rule, or nil for fragment elements.
func (s *Schema) Root() *Rule {
	if len(s.Rules) == 0 {
		return nil
	}
	return s.Rules[0]
}

// Rule returns the rule named name.
func (s *Schema) Rule(name string) (*Rule, bool) {
	for _, r := range s.Rules {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

func (s *Schema) String() string {
	var sb strings.Builder
	for _, r := range s.Rules {
		sb.WriteString(r.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Set is the immutable collection of schemas of a registry.
type Set struct {
	schemas map[string]*Schema
	names   []string
}

type SetOption func(*setOptions)

type setOptions struct {
	logger *zap.Logger
	store  *block.Store
}

func WithLogger(logger *zap.Logger) SetOption {
	return func(o *setOptions) { o.logger = logger }
}

// WithStore is passed to element renderers through their scope.
func WithStore(store *block.Store) SetOption {
	return func(o *setOptions) { o.store = store }
}

// Build synthesizes the schema of every registered element. Elements that
// fail are left out of the set; their errors are aggregated.
func Build(registry *element.Registry, opts ...SetOption) (*Set, error) {
	o := setOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	set := &Set{schemas: make(map[string]*Schema)}
	scope := element.Scope{Registry: registry, Store: o.store}

	var err error
	for _, name := range registry.Names() {
		el, lerr := registry.Lookup(name)
		if lerr != nil {
			err = multierr.Append(err, lerr)
			continue
		}
		s, serr := Synthesize(el, scope)
		if serr != nil {
			o.logger.Error("failed to synthesize schema", zap.String("element", name), zap.Error(serr))
			err = multierr.Append(err, serr)
			continue
		}
		o.logger.Debug("synthesized schema", zap.String("element", name), zap.Int("rules", len(s.Rules)))
		set.schemas[name] = s
		set.names = append(set.names, name)
	}
	return set, err
}

// Get returns the schema of the named element.
func (s *Set) Get(name string) (*Schema, bool) {
	schema, ok := s.schemas[name]
	return schema, ok
}

// Names returns the names of the synthesized elements in alphabetical order.
func (s *Set) Names() []string {
	return append([]string(nil), s.names...)
}

// Rules returns all rules sorted by name.
func (s *Set) Rules() []*Rule {
	var rules []*Rule
	for _, name := range s.names {
		rules = append(rules, s.schemas[name].Rules...)
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules
}

// Match returns the rule parsing n. Root rules take precedence.
func (s *Set) Match(n *html.Node) (*Rule, bool) {
	if typ := dom.GetAttr(n, block.AttrType); typ != "" {
		if schema, ok := s.schemas[typ]; ok && schema.Root() != nil {
			return schema.Root(), true
		}
		return nil, false
	}
	for _, name := range s.names {
		for _, r := range s.schemas[name].Rules[min(1, len(s.schemas[name].Rules)):] {
			if r.Match(n) {
				return r, true
			}
		}
	}
	return nil, false
}

// String dumps the rules of every schema, grouped by element.
func (s *Set) String() string {
	var sb strings.Builder
	for _, name := range s.names {
		sb.WriteString("# " + name + "\n")
		sb.WriteString(s.schemas[name].String())
	}
	return sb.String()
}
