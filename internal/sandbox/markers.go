package sandbox

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Editor-only markers. None of them may survive into saved markup.
const (
	HoverClass    = "editor-hover"
	SelectedClass = "editor-selected"
	TagAttr       = "data-element-tag"
	// EditorAttr flags nodes the sandbox inserted itself.
	EditorAttr = "data-editor"
)

// editorStyle is injected into the head while the selection layer is attached.
const editorStyle = `
.editor-hover { outline: 2px dashed #3b82f6 !important; outline-offset: 2px !important; cursor: pointer !important; }
.editor-selected { outline: 3px solid #8b5cf6 !important; outline-offset: 2px !important; position: relative !important; }
.editor-selected::after { content: attr(data-element-tag); position: absolute; top: -24px; left: -3px; background: #8b5cf6; color: white; padding: 2px 8px; font-size: 10px; font-weight: 600; border-radius: 4px 4px 0 0; z-index: 10000; font-family: system-ui, -apple-system, sans-serif; }
`

// StripEditorMarkers removes hover and selection classes, the tag label
// attribute and sandbox-inserted nodes from a body fragment. Every other
// attribute, including inline styles written while editing, is kept.
func StripEditorMarkers(body string) (string, error) {
	container := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(body), container)
	if err != nil {
		return "", err
	}
	for _, n := range nodes {
		container.AppendChild(n)
	}

	doc := goquery.NewDocumentFromNode(container)
	cleanMarkers(doc.Selection)
	return doc.Html()
}

// cleanMarkers strips editor markers and sandbox-inserted nodes from
// every node under sel.
func cleanMarkers(sel *goquery.Selection) {
	sel.Find("[" + EditorAttr + "]").Remove()
	clearSelectionMarkers(sel)
}

// clearSelectionMarkers removes hover and selection state under sel.
func clearSelectionMarkers(sel *goquery.Selection) {
	sel.Find("[" + TagAttr + "]").RemoveAttr(TagAttr)
	sel.Find("[class]").Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			for _, c := range classList(n) {
				if isEditorClass(c) {
					removeClass(n, c)
				}
			}
		}
	})
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func classList(n *html.Node) []string {
	return strings.Fields(getAttr(n, "class"))
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range classList(n) {
		if c == class {
			return true
		}
	}
	return false
}

func addClass(n *html.Node, class string) {
	if hasClass(n, class) {
		return
	}
	setAttr(n, "class", strings.TrimSpace(getAttr(n, "class")+" "+class))
}

// removeClass drops class from n, and the class attribute itself once empty.
func removeClass(n *html.Node, class string) {
	if !hasAttr(n, "class") {
		return
	}
	kept := make([]string, 0, 4)
	for _, c := range classList(n) {
		if c != class {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		removeAttr(n, "class")
		return
	}
	setAttr(n, "class", strings.Join(kept, " "))
}

func isEditorClass(c string) bool {
	return c == HoverClass || c == SelectedClass
}

// userClasses returns the classes of n without editor markers.
func userClasses(n *html.Node) []string {
	out := []string{}
	for _, c := range classList(n) {
		if !isEditorClass(c) {
			out = append(out, c)
		}
	}
	return out
}
