package editor

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"
)

// Markdown converts markdown to markup. Raw HTML is kept so that block
// markers written in the source are rendered as nested blocks.
var Markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
)

// FromMarkdown renders markdown source as an anonymous fragment block.
func (e *Editor) FromMarkdown(ctx context.Context, source []byte, pool Pool) (*html.Node, error) {
	var buf bytes.Buffer
	if err := Markdown.Convert(source, &buf); err != nil {
		return nil, errors.Wrap(err, "failed to convert markdown")
	}
	return e.FromMarkup(ctx, buf.String(), pool)
}
