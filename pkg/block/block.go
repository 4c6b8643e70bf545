// Package block contains the persisted unit of content, the [Block],
// and the in-memory [Store] keeping blocks addressable by id.
package block

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"

	"github.com/stateful/blocks/pkg/dom"
)

// FragmentType is the type of anonymous blocks wrapping bare markup.
const FragmentType = "fragment"

// Block is the persisted unit of content.
type Block struct {
	ID         string         `json:"id,omitempty" yaml:"id,omitempty"`
	Type       string         `json:"type" yaml:"type"`
	Data       map[string]any `json:"data" yaml:"data"`
	Content    Content        `json:"content,omitempty" yaml:"content,omitempty"`
	Children   []*Block       `json:"children,omitempty" yaml:"children,omitempty"`
	Standalone bool           `json:"standalone,omitempty" yaml:"standalone,omitempty"`
	Virtual    bool           `json:"virtual,omitempty" yaml:"virtual,omitempty"`
	Focused    string         `json:"focused,omitempty" yaml:"focused,omitempty"`

	// Deleted is set by stale node views. It is a hint, the store stays authoritative.
	Deleted bool `json:"-" yaml:"-"`
}

// New creates a fresh block without id.
func New(typ string) *Block {
	return &Block{
		Type:    typ,
		Data:    map[string]any{},
		Content: Content{},
	}
}

// Identifier returns the id. It makes blocks cacheable.
func (b *Block) Identifier() string { return b.ID }

// Fragment wraps markup in an anonymous block.
func Fragment(markup string) *Block {
	b := New(FragmentType)
	b.Content[""] = Markup(markup)
	return b
}

// Clone returns a deep copy of b. Mounted slots keep referencing the same live nodes.
func (b *Block) Clone() *Block {
	if b == nil {
		return nil
	}
	clone := *b
	if b.Data != nil {
		clone.Data = CopyData(b.Data)
	}
	clone.Content = b.Content.Clone()
	if b.Children != nil {
		clone.Children = make([]*Block, len(b.Children))
		for i, child := range b.Children {
			clone.Children[i] = child.Clone()
		}
	}
	return &clone
}

// Normalize makes sure maps are allocated.
func (b *Block) Normalize() *Block {
	if b.Data == nil {
		b.Data = map[string]any{}
	}
	if b.Content == nil {
		b.Content = Content{}
	}
	return b
}

// Unmount converts every mounted slot back to markup.
func (b *Block) Unmount() error {
	for name, slot := range b.Content {
		if !slot.IsMounted() {
			continue
		}
		markup, err := slot.Render()
		if err != nil {
			return errors.Wrapf(err, "failed to unmount slot %q of block %q", name, b.ID)
		}
		b.Content[name] = Markup(markup)
	}
	return nil
}

// CopyData deep copies maps and slices found in data.
func CopyData(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	result := make(map[string]any, len(data))
	for k, v := range data {
		result[k] = copyValue(v)
	}
	return result
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CopyData(val)
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = copyValue(item)
		}
		return result
	default:
		return v
	}
}

// Slot holds the value of a content slot. Exactly one representation is
// in use at a time: Markup when unmounted, Node when mounted.
type Slot struct {
	Markup string
	Node   *html.Node
}

func Markup(markup string) Slot {
	return Slot{Markup: markup}
}

func Mounted(n *html.Node) Slot {
	return Slot{Node: n}
}

func (s Slot) IsMounted() bool { return s.Node != nil }

// Render returns the serialized markup of the slot.
func (s Slot) Render() (string, error) {
	if s.Node == nil {
		return s.Markup, nil
	}
	return dom.InnerHTML(s.Node)
}

func (s Slot) String() string {
	v, _ := s.Render()
	return v
}

// Mount returns the mounted form of s, parsing markup into a fragment.
func (s Slot) Mount() (Slot, error) {
	if s.Node != nil {
		return s, nil
	}
	frag, err := dom.ParseFragment(s.Markup)
	if err != nil {
		return s, err
	}
	return Mounted(frag), nil
}

func (s Slot) IsEmpty() bool {
	if s.Node != nil {
		return dom.IsBlank(s.Node)
	}
	return s.Markup == ""
}

func (s Slot) MarshalJSON() ([]byte, error) {
	markup, err := s.Render()
	if err != nil {
		return nil, err
	}
	return json.Marshal(markup)
}

func (s *Slot) UnmarshalJSON(data []byte) error {
	var markup string
	if err := json.Unmarshal(data, &markup); err != nil {
		return errors.WithStack(err)
	}
	*s = Markup(markup)
	return nil
}

func (s Slot) MarshalYAML() (interface{}, error) {
	return s.Render()
}

func (s *Slot) UnmarshalYAML(value *yaml.Node) error {
	var markup string
	if err := value.Decode(&markup); err != nil {
		return errors.WithStack(err)
	}
	*s = Markup(markup)
	return nil
}

// Content maps slot names to their values. Unnamed elements use the "" key.
type Content map[string]Slot

func (c Content) Clone() Content {
	if c == nil {
		return nil
	}
	result := make(Content, len(c))
	for k, v := range c {
		result[k] = v
	}
	return result
}

// Names returns slot names in a stable order.
func (c Content) Names() []string {
	names := make([]string, 0, len(c))
	for k := range c {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Strings returns the serialized form of every slot.
func (c Content) Strings() map[string]string {
	result := make(map[string]string, len(c))
	for k, v := range c {
		result[k] = v.String()
	}
	return result
}
