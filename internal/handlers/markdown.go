package handlers

import (
	"bytes"
	"html/template"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// markdownRenderer formats final assistant text for display. The
// conversation pipeline only guarantees it hands over the complete text;
// everything about presentation lives here.
type markdownRenderer struct {
	md goldmark.Markdown
}

func newMarkdown() markdownRenderer {
	return markdownRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				highlighting.NewHighlighting(
					highlighting.WithStyle("monokai"),
				),
			),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
			),
		),
	}
}

// Render converts markdown to HTML, falling back to escaped plain text when
// conversion fails.
func (r markdownRenderer) Render(content string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(content), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(content))
	}
	return template.HTML(buf.String())
}
