package schema

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/stateful/blocks/pkg/block"
	"github.com/stateful/blocks/pkg/dom"
	"github.com/stateful/blocks/pkg/element"
)

// mount renders b the way the editor does and returns the live node.
func mount(t *testing.T, s *Schema, b *block.Block) *html.Node {
	t.Helper()
	n, err := s.Element.Render(b, &element.Scope{})
	require.NoError(t, err)
	require.NoError(t, block.WriteAttrs(n, b, s.Element.Inplace))
	return n
}

func synthesize(t *testing.T, def element.TemplateDef) *Schema {
	t.Helper()
	s, err := Synthesize(mustTemplate(t, def), element.Scope{})
	require.NoError(t, err)
	return s
}

func TestReconcileKeepsIdentity(t *testing.T) {
	s := synthesize(t, element.TemplateDef{
		Name:       "note",
		Contents:   element.Contents{{}},
		Properties: element.Properties{"kind": {Default: "info"}},
		Template:   `<aside class="note {{.Data.kind}}"><div class="inner" block-content=""></div></aside>`,
	})

	b := s.Element.Empty()
	b.ID = "n1"
	b.Content[""] = block.Markup("<p>text</p>")
	live := mount(t, s, b)
	content := block.FindSlot(live, "")
	para := content.FirstChild
	dom.SetAttr(live, block.AttrFocused, "")

	b.Data["kind"] = "warn"
	markers, err := s.Reconcile(live, b)
	require.NoError(t, err)
	assert.Empty(t, markers)

	assert.Equal(t, "note warn", dom.GetAttr(live, "class"))
	assert.Equal(t, "n1", dom.GetAttr(live, block.AttrID))
	assert.False(t, dom.HasAttr(live, block.AttrFocused))
	assert.Same(t, content, block.FindSlot(live, ""))
	assert.Same(t, para, content.FirstChild)
}

func TestReconcileInterior(t *testing.T) {
	s := synthesize(t, element.TemplateDef{
		Name:       "figure",
		Contents:   element.Contents{{ID: "caption"}},
		Properties: element.Properties{"src": {Default: "a.png"}},
		Template:   `<figure><img src="{{.Data.src}}"><figcaption block-content="caption"></figcaption></figure>`,
	})

	b := s.Element.Empty()
	b.ID = "f1"
	b.Content["caption"] = block.Markup("hello")
	live := mount(t, s, b)
	caption := block.FindSlot(live, "caption")
	oldImg := live.FirstChild

	b.Data["src"] = "b.png"
	_, err := s.Reconcile(live, b)
	require.NoError(t, err)

	assert.Equal(t, `<figure block-id="f1" block-type="figure"><img src="b.png"/><figcaption block-content="caption">hello</figcaption></figure>`, dom.MustRender(live))
	assert.NotSame(t, oldImg, live.FirstChild)
	assert.Same(t, caption, block.FindSlot(live, "caption"))
}

func TestReconcileBetweenRegions(t *testing.T) {
	s := synthesize(t, element.TemplateDef{
		Name:       "panel",
		Contents:   element.Contents{{ID: "title"}, {ID: "body"}},
		Properties: element.Properties{"sep": {Default: "-"}},
		Template:   `<div class="panel"><h3 block-content="title"></h3><p class="sep">{{.Data.sep}}</p><div block-content="body"></div></div>`,
	})

	b := s.Element.Empty()
	b.ID = "p1"
	b.Content["title"] = block.Markup("T")
	b.Content["body"] = block.Markup("<p>B</p>")
	live := mount(t, s, b)
	title := block.FindSlot(live, "title")
	body := block.FindSlot(live, "body")

	b.Data["sep"] = "*"
	_, err := s.Reconcile(live, b)
	require.NoError(t, err)

	assert.Equal(t, `<div class="panel" block-id="p1" block-type="panel"><h3 block-content="title">T</h3><p class="sep">*</p><div block-content="body"><p>B</p></div></div>`, dom.MustRender(live))
	assert.Same(t, title, block.FindSlot(live, "title"))
	assert.Same(t, body, block.FindSlot(live, "body"))
}

func TestReconcileLeafMarkers(t *testing.T) {
	s := synthesize(t, element.TemplateDef{
		Name:       "ref",
		Properties: element.Properties{"target": {Default: "a"}},
		Template:   `<div class="ref"><span block-id="{{.Data.target}}"></span></div>`,
	})

	b := s.Element.Empty()
	b.ID = "r1"
	live := mount(t, s, b)

	b.Data["target"] = "b"
	markers, err := s.Reconcile(live, b)
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.Equal(t, "b", dom.GetAttr(markers[0], block.AttrID))
	assert.Same(t, live, markers[0].Parent)
}

func TestReconcileShapeChanged(t *testing.T) {
	s := synthesize(t, element.TemplateDef{
		Name:       "link",
		Properties: element.Properties{"href": {Default: ""}},
		Template:   `{{if .Data.href}}<a href="{{.Data.href}}">link</a>{{else}}<span>link</span>{{end}}`,
	})

	b := s.Element.Empty()
	b.ID = "l1"
	live := mount(t, s, b)
	before := dom.MustRender(live)

	b.Data["href"] = "https://example.com"
	_, err := s.Reconcile(live, b)
	assert.True(t, errors.Is(err, ErrShapeChanged))
	assert.Equal(t, before, dom.MustRender(live))
}
