package codec

import (
	"strings"

	"squish/internal/services"
)

// SVGMinifier implements the structural-minification capability for SVG
// text: XML comments are removed, whitespace between tags is dropped, and
// whitespace runs inside text content collapse to a single space. The
// document structure itself is left untouched.
type SVGMinifier struct{}

func NewSVGMinifier() *SVGMinifier {
	return &SVGMinifier{}
}

// Optimize returns the minified document. The result is never larger than
// the input.
func (m *SVGMinifier) Optimize(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", services.Wrap(services.ErrDecode, "svgmin", "optimize", "empty document", nil)
	}
	out := stripComments(text)
	out = collapseWhitespace(out)
	return strings.TrimSpace(out), nil
}

func stripComments(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for {
		start := strings.Index(text, "<!--")
		if start < 0 {
			b.WriteString(text)
			return b.String()
		}
		end := strings.Index(text[start:], "-->")
		if end < 0 {
			// Unterminated comment; keep the remainder as-is.
			b.WriteString(text)
			return b.String()
		}
		b.WriteString(text[:start])
		text = text[start+end+len("-->"):]
	}
}

func collapseWhitespace(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inTag := false
	pendingSpace := false
	for _, r := range text {
		isSpace := r == ' ' || r == '\n' || r == '\t' || r == '\r'
		switch {
		case r == '<':
			inTag = true
			// Whitespace directly before a tag carries no content.
			pendingSpace = false
			b.WriteRune(r)
		case r == '>':
			inTag = false
			pendingSpace = false
			b.WriteRune(r)
		case inTag:
			b.WriteRune(r)
		case isSpace:
			pendingSpace = true
		default:
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
