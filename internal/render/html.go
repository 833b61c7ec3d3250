package render

import (
	"fmt"
	"html"
	"strings"

	"github.com/pagepress/export-api/internal/spec"
)

const pageCSS = `
body { font-family: "Helvetica Neue", Arial, sans-serif; margin: 2cm; }
h1 { font-size: 22pt; margin: 0 0 12pt; }
p { font-size: 11pt; line-height: 1.5; margin: 0 0 8pt; }
img { max-width: 100%; }
hr { border: none; border-top: 1px solid #999; margin: 12pt 0; }
`

// BuildHTML renders a single-page document as a standalone HTML string.
// Images are inlined as data URIs so the page needs no network access.
func BuildHTML(doc spec.Document) (string, error) {
	if len(doc.Pages) != 1 {
		return "", fmt.Errorf("expected a single-page slice, got %d pages", len(doc.Pages))
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">")
	if doc.Title != "" {
		fmt.Fprintf(&b, "<title>%s</title>", html.EscapeString(doc.Title))
	}
	fmt.Fprintf(&b, "<style>%s</style></head><body>\n", pageCSS)

	for _, e := range doc.Pages[0].Elements {
		switch e.Type {
		case spec.ElementHeading:
			fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(e.Text))
		case spec.ElementText:
			fmt.Fprintf(&b, "<p%s>%s</p>\n", styleAttr(e.Style), html.EscapeString(e.Text))
		case spec.ElementDivider:
			b.WriteString("<hr>\n")
		case spec.ElementImage:
			r := doc.Resource(e.ResourceID)
			if r == nil {
				return "", fmt.Errorf("element references missing resource %q", e.ResourceID)
			}
			src, err := resourceSrc(r)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "<img src=%q alt=%q>\n", src, e.ResourceID)
		default:
			return "", fmt.Errorf("unsupported element type %q", e.Type)
		}
	}

	b.WriteString("</body></html>\n")
	return b.String(), nil
}

func resourceSrc(r *spec.Resource) (string, error) {
	if r.Data != "" {
		mime := r.MIME
		if mime == "" {
			mime = "image/png"
		}
		return "data:" + mime + ";base64," + r.Data, nil
	}
	if r.URL != "" {
		return r.URL, nil
	}
	return "", fmt.Errorf("resource %q has no payload", r.ID)
}

func styleAttr(style string) string {
	if style == "" {
		return ""
	}
	return fmt.Sprintf(" style=%q", style)
}
