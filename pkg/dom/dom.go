// Package dom contains helpers to manipulate live trees of [html.Node].
//
// A live tree is what the host editor mutates. Fragments are represented
// by nodes of type [html.DocumentNode] which render as their children only.
package dom

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Path represents the traversal steps from a root to a target node.
// Example: [0, 1, 3] means root -> child[0] -> child[1] -> child[3].
type Path []int

func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// String formats p as "/0/1/3". The empty path is "/".
func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	var sb strings.Builder
	for _, idx := range p {
		sb.WriteByte('/')
		sb.WriteString(strconv.Itoa(idx))
	}
	return sb.String()
}

func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

func IsFragment(n *html.Node) bool {
	return n != nil && n.Type == html.DocumentNode
}

func NewFragment() *html.Node {
	return &html.Node{Type: html.DocumentNode}
}

func NewElement(tag string) *html.Node {
	tag = strings.ToLower(tag)
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
}

func NewText(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// Attr returns the value of the attribute and whether it was found.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func GetAttr(n *html.Node, key string) string {
	v, _ := Attr(n, key)
	return v
}

func HasAttr(n *html.Node, key string) bool {
	_, ok := Attr(n, key)
	return ok
}

func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func RemoveAttr(n *html.Node, key string) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		attrs = append(attrs, a)
	}
	n.Attr = attrs
}

// Attrs returns a copy of all attributes of n as a map.
func Attrs(n *html.Node) map[string]string {
	result := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		if a.Namespace != "" {
			continue
		}
		result[a.Key] = a.Val
	}
	return result
}

// SyncAttrs makes the attributes of dst equal to the ones of src,
// except for the keys for which keep returns true; these are left untouched.
// It reports whether anything changed.
func SyncAttrs(dst, src *html.Node, keep func(string) bool) bool {
	changed := false
	want := Attrs(src)
	for key, val := range Attrs(dst) {
		if keep != nil && keep(key) {
			continue
		}
		newVal, ok := want[key]
		if !ok {
			RemoveAttr(dst, key)
			changed = true
			continue
		}
		if newVal != val {
			SetAttr(dst, key, newVal)
			changed = true
		}
	}
	for key, val := range want {
		if keep != nil && keep(key) {
			continue
		}
		if !HasAttr(dst, key) {
			SetAttr(dst, key, val)
			changed = true
		}
	}
	return changed
}

// Clone returns a deep copy of n. The copy is detached.
func Clone(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	c := CloneShallow(n)
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(Clone(child))
	}
	return c
}

// CloneShallow copies n without its children.
func CloneShallow(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = make([]html.Attribute, len(n.Attr))
		copy(c.Attr, n.Attr)
	}
	return c
}

// Detach removes n from its parent, if any.
func Detach(n *html.Node) {
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Replace puts repl in place of old. repl is detached first.
func Replace(old, repl *html.Node) {
	parent := old.Parent
	if parent == nil {
		return
	}
	Detach(repl)
	parent.InsertBefore(repl, old)
	parent.RemoveChild(old)
}

func Children(n *html.Node) []*html.Node {
	var result []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		result = append(result, c)
	}
	return result
}

func ElementChildren(n *html.Node) []*html.Node {
	var result []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if IsElement(c) {
			result = append(result, c)
		}
	}
	return result
}

// RemoveChildren detaches all children of n.
func RemoveChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
	}
}

// MoveChildren moves all children of src at the end of dst.
func MoveChildren(dst, src *html.Node) {
	for c := src.FirstChild; c != nil; c = src.FirstChild {
		src.RemoveChild(c)
		dst.AppendChild(c)
	}
}

// Walk visits descendants of n in document order, n excluded.
// Children of a node are skipped when fn returns false.
// The next sibling is captured before fn is called, so fn may
// detach or replace the visited node.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if fn(c) && c.Parent == n {
			Walk(c, fn)
		}
		c = next
	}
}

// Find returns the first descendant of n, in document order, for which match returns true.
func Find(n *html.Node, match func(*html.Node) bool) *html.Node {
	var found *html.Node
	Walk(n, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if match(c) {
			found = c
			return false
		}
		return true
	})
	return found
}

func FindAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var result []*html.Node
	Walk(n, func(c *html.Node) bool {
		if match(c) {
			result = append(result, c)
		}
		return true
	})
	return result
}

// Contains reports whether n is root or one of its descendants.
func Contains(root, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

// CommonAncestor returns the nearest node containing all nodes.
func CommonAncestor(nodes ...*html.Node) *html.Node {
	if len(nodes) == 0 {
		return nil
	}
	candidate := nodes[0]
	for _, n := range nodes[1:] {
		for candidate != nil && !Contains(candidate, n) {
			candidate = candidate.Parent
		}
	}
	return candidate
}

// PathOf returns the path from root to n, or nil if n is not inside root.
func PathOf(root, n *html.Node) Path {
	var path Path
	for p := n; p != root; p = p.Parent {
		if p == nil || p.Parent == nil {
			return nil
		}
		idx := 0
		for s := p.Parent.FirstChild; s != p; s = s.NextSibling {
			idx++
		}
		path = append(Path{idx}, path...)
	}
	return path
}

// At resolves path starting at root.
func At(root *html.Node, path Path) *html.Node {
	n := root
	for _, idx := range path {
		if n == nil {
			return nil
		}
		c := n.FirstChild
		for i := 0; i < idx && c != nil; i++ {
			c = c.NextSibling
		}
		n = c
	}
	return n
}

var bodyContext = &html.Node{
	Type:     html.ElementNode,
	Data:     "body",
	DataAtom: atom.Body,
}

// ParseFragment parses markup into a fragment.
func ParseFragment(markup string) (*html.Node, error) {
	nodes, err := html.ParseFragment(strings.NewReader(markup), bodyContext)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse fragment")
	}
	frag := NewFragment()
	for _, n := range nodes {
		frag.AppendChild(n)
	}
	return frag, nil
}

// ParseElement parses markup expected to contain a single top element.
// Leading and trailing whitespace is ignored.
func ParseElement(markup string) (*html.Node, error) {
	frag, err := ParseFragment(strings.TrimSpace(markup))
	if err != nil {
		return nil, err
	}
	elements := ElementChildren(frag)
	if len(elements) != 1 {
		return nil, errors.Errorf("expected one top element, got %d", len(elements))
	}
	n := elements[0]
	Detach(n)
	return n, nil
}

// Render returns the markup of n. Fragments render their children.
func Render(n *html.Node) (string, error) {
	if n == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", errors.WithStack(err)
	}
	return buf.String(), nil
}

// InnerHTML renders the children of n.
func InnerHTML(n *html.Node) (string, error) {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", errors.WithStack(err)
		}
	}
	return buf.String(), nil
}

// MustRender is like [Render] but ignores errors. Useful in logs and tests.
func MustRender(n *html.Node) string {
	s, _ := Render(n)
	return s
}

// IsBlank reports whether n has no element children and only whitespace text.
func IsBlank(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			return false
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				return false
			}
		}
	}
	return true
}
