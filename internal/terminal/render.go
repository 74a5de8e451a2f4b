package terminal

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// Renderer turns a Markdown reply into terminal output.
type Renderer func(md string) string

// PlainRenderer prints replies as-is.
func PlainRenderer(md string) string { return md }

// NewMarkdownRenderer renders with glamour, falling back to raw text when
// glamour cannot be initialized or fails on a reply.
func NewMarkdownRenderer(width int) Renderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return PlainRenderer
	}
	return func(md string) string {
		if strings.TrimSpace(md) == "" {
			return md
		}
		out, err := r.Render(md)
		if err != nil {
			return md
		}
		// glamour pads with blank lines
		return strings.Trim(out, "\n")
	}
}
