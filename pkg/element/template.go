package element

import (
	"bytes"
	"html/template"

	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"github.com/stateful/blocks/pkg/block"
	"github.com/stateful/blocks/pkg/dom"
)

// TemplateDef declares an element rendered from an HTML template.
// The template is executed with a [TemplateData] and must produce
// exactly one top element.
type TemplateDef struct {
	Name       string     `json:"name" yaml:"name" validate:"required"`
	Title      string     `json:"title,omitempty" yaml:"title,omitempty"`
	Group      string     `json:"group,omitempty" yaml:"group,omitempty"`
	Inline     bool       `json:"inline,omitempty" yaml:"inline,omitempty"`
	Standalone bool       `json:"standalone,omitempty" yaml:"standalone,omitempty"`
	Inplace    bool       `json:"inplace,omitempty" yaml:"inplace,omitempty"`
	Contents   Contents   `json:"contents,omitempty" yaml:"contents,omitempty"`
	Properties Properties `json:"properties,omitempty" yaml:"properties,omitempty"`
	Template   string     `json:"template" yaml:"template" validate:"required"`
}

// TemplateData is the dot of element templates.
type TemplateData struct {
	ID         string
	Type       string
	Data       map[string]any
	Standalone bool
	Template   bool
}

// FromTemplate builds an element from def.
func FromTemplate(def TemplateDef) (*Element, error) {
	if err := validate.Struct(&def); err != nil {
		return nil, errors.Wrapf(ErrInvalid, "%s: %v", def.Name, err)
	}
	tmpl, err := template.New(def.Name).Option("missingkey=zero").Parse(def.Template)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse template of %q", def.Name)
	}
	return New(Element{
		Name:       def.Name,
		Title:      def.Title,
		Group:      def.Group,
		Inline:     def.Inline,
		Standalone: def.Standalone,
		Inplace:    def.Inplace,
		Contents:   def.Contents,
		Properties: def.Properties,
		Render:     renderTemplate(tmpl),
	})
}

func renderTemplate(tmpl *template.Template) RenderFunc {
	return func(b *block.Block, scope *Scope) (*html.Node, error) {
		var buf bytes.Buffer
		err := tmpl.Execute(&buf, TemplateData{
			ID:         b.ID,
			Type:       b.Type,
			Data:       b.Data,
			Standalone: b.Standalone,
			Template:   scope != nil && scope.Template,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to execute template of %q", b.Type)
		}
		n, err := dom.ParseElement(buf.String())
		if err != nil {
			return nil, errors.Wrapf(err, "template of %q", b.Type)
		}
		if err := FillContent(n, b); err != nil {
			return nil, err
		}
		return n, nil
	}
}

// FillContent moves the content of b into the slot nodes of the rendered
// subtree n. Afterwards, every filled slot of b references its live node.
func FillContent(n *html.Node, b *block.Block) error {
	for _, marker := range block.SlotNodes(n) {
		name := dom.GetAttr(marker, block.AttrContent)
		slot, ok := b.Content[name]
		if !ok {
			continue
		}
		mounted, err := slot.Mount()
		if err != nil {
			return errors.Wrapf(err, "slot %q of %q", name, b.Type)
		}
		if mounted.Node != marker {
			dom.RemoveChildren(marker)
			dom.MoveChildren(marker, mounted.Node)
		}
		b.Content[name] = block.Mounted(marker)
	}
	return nil
}
