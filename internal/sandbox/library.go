// Package sandbox renders generated markup into an isolated document and
// runs the selection layer that reports clicks and applies edits.
package sandbox

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// LibraryKind is how a library is referenced from the document.
type LibraryKind int

const (
	KindScript LibraryKind = iota
	KindStylesheet
)

// Placement is where a library tag goes in the document.
type Placement int

const (
	PlaceHead Placement = iota
	PlaceBodyEnd
)

// Library is one pinned third-party asset loaded into every preview.
type Library struct {
	Name      string
	Version   string
	Kind      LibraryKind
	URL       string
	Placement Placement
}

// Tag returns the HTML tag that loads the library.
func (l Library) Tag() string {
	if l.Kind == KindStylesheet {
		return fmt.Sprintf(`<link rel="stylesheet" href="%s">`, l.URL)
	}
	return fmt.Sprintf(`<script src="%s"></script>`, l.URL)
}

// Libraries is the fixed set of assets every generated page may rely on.
// The interaction library's runtime is loaded after the body markup.
var Libraries = []Library{
	{Name: "tailwindcss", Version: "3", Kind: KindScript, URL: "https://cdn.tailwindcss.com", Placement: PlaceHead},
	{Name: "font-awesome", Version: "6.4.0", Kind: KindStylesheet, URL: "https://cdnjs.cloudflare.com/ajax/libs/font-awesome/6.4.0/css/all.min.css", Placement: PlaceHead},
	{Name: "flowbite", Version: "2.5.1", Kind: KindStylesheet, URL: "https://cdn.jsdelivr.net/npm/flowbite@2.5.1/dist/flowbite.min.css", Placement: PlaceHead},
	{Name: "chart.js", Version: "4.4.1", Kind: KindScript, URL: "https://cdn.jsdelivr.net/npm/chart.js@4.4.1", Placement: PlaceHead},
	{Name: "swiper", Version: "11", Kind: KindScript, URL: "https://cdn.jsdelivr.net/npm/swiper@11/swiper-bundle.min.js", Placement: PlaceHead},
	{Name: "swiper", Version: "11", Kind: KindStylesheet, URL: "https://cdn.jsdelivr.net/npm/swiper@11/swiper-bundle.min.css", Placement: PlaceHead},
	{Name: "popper", Version: "2", Kind: KindScript, URL: "https://unpkg.com/@popperjs/core@2", Placement: PlaceHead},
	{Name: "tippy.js", Version: "6", Kind: KindScript, URL: "https://unpkg.com/tippy.js@6", Placement: PlaceHead},
	{Name: "flowbite", Version: "2.5.1", Kind: KindScript, URL: "https://cdn.jsdelivr.net/npm/flowbite@2.5.1/dist/flowbite.min.js", Placement: PlaceBodyEnd},
}

// SandboxPolicy permits scripts and form submission. Top navigation,
// popups and same-origin access stay blocked.
const SandboxPolicy = "allow-scripts allow-forms"

// ContentSecurityPolicy is the header equivalent of SandboxPolicy, used
// when the preview is served as its own document.
const ContentSecurityPolicy = "sandbox " + SandboxPolicy

// DefaultTitle is the <title> of generated documents.
const DefaultTitle = "Generated Website"

// Shell wraps body markup in a complete document that loads Libraries.
func Shell(body string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"UTF-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	b.WriteString("<title>" + DefaultTitle + "</title>\n")
	writeLibraries(&b, PlaceHead)
	b.WriteString("</head>\n<body>\n")
	b.WriteString(body)
	b.WriteString("\n")
	writeLibraries(&b, PlaceBodyEnd)
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

func writeLibraries(b *strings.Builder, p Placement) {
	for _, l := range Libraries {
		if l.Placement == p {
			b.WriteString(l.Tag())
			b.WriteString("\n")
		}
	}
}

// IsFullDocument reports whether markup already carries a doctype.
func IsFullDocument(markup string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(markup)), "<!doctype")
}

// WrapDocument returns markup as a deployable document, adding the shell
// only when markup is a body fragment.
func WrapDocument(markup string) string {
	if IsFullDocument(markup) {
		return markup
	}
	return Shell(markup)
}

// shellTail returns the body-end library tags Shell appended after the
// user body: the trailing element children of body that match the
// body-end libraries in order. Earlier copies belong to the user.
func shellTail(body *goquery.Selection) []*html.Node {
	if body.Length() == 0 {
		return nil
	}
	var want []string
	for _, l := range Libraries {
		if l.Placement == PlaceBodyEnd {
			want = append(want, l.URL)
		}
	}
	var out []*html.Node
	n := body.Get(0).LastChild
	for i := len(want) - 1; i >= 0; i-- {
		for n != nil && n.Type != html.ElementNode {
			n = n.PrevSibling
		}
		if n == nil || n.DataAtom != atom.Script || getAttr(n, "src") != want[i] {
			return nil
		}
		out = append(out, n)
		n = n.PrevSibling
	}
	return out
}

// ExtractBody returns the body markup of a complete document with the
// shell's body-end library tags removed. A fragment comes back trimmed.
func ExtractBody(document string) (string, error) {
	if !IsFullDocument(document) {
		return strings.TrimSpace(document), nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return "", fmt.Errorf("parse document: %w", err)
	}
	body := doc.Find("body")
	for _, n := range shellTail(body) {
		n.Parent.RemoveChild(n)
	}
	inner, err := body.Html()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(inner), nil
}
