package sandbox

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Locate returns the structural path of n: id("x") when n has an id,
// /html/body for the body, otherwise the parent's path followed by
// /tag[k], where k counts same-tag element siblings from 1. Because the
// parent path is built the same way, the nearest ancestor with an id
// anchors the path.
func Locate(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	if id := getAttr(n, "id"); id != "" {
		return fmt.Sprintf("id(%q)", id)
	}
	if n.DataAtom == atom.Body {
		return "/html/body"
	}

	k := 1
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode && s.Data == n.Data {
			k++
		}
	}

	parent := ""
	if n.Parent != nil && n.Parent.Type == html.ElementNode {
		parent = Locate(n.Parent)
	}
	return fmt.Sprintf("%s/%s[%d]", parent, n.Data, k)
}

// Resolve walks a path produced by Locate back to its node within doc.
func Resolve(doc *html.Node, locator string) (*html.Node, bool) {
	if doc == nil || locator == "" {
		return nil, false
	}

	cur, rest, ok := resolveAnchor(doc, locator)
	if !ok {
		return nil, false
	}

	for _, step := range strings.Split(rest, "/") {
		if step == "" {
			continue
		}
		tag, k, ok := parseStep(step)
		if !ok {
			return nil, false
		}
		cur = nthChild(cur, tag, k)
		if cur == nil {
			return nil, false
		}
	}
	if cur.Type != html.ElementNode {
		return nil, false
	}
	return cur, true
}

// resolveAnchor handles the id("x") and /html/body prefixes.
func resolveAnchor(doc *html.Node, locator string) (*html.Node, string, bool) {
	switch {
	case strings.HasPrefix(locator, "id("):
		quoted, err := strconv.QuotedPrefix(locator[3:])
		if err != nil {
			return nil, "", false
		}
		rest, ok := strings.CutPrefix(locator[3+len(quoted):], ")")
		if !ok {
			return nil, "", false
		}
		id, err := strconv.Unquote(quoted)
		if err != nil {
			return nil, "", false
		}
		n := findByID(doc, id)
		return n, rest, n != nil
	case locator == "/html/body" || strings.HasPrefix(locator, "/html/body/"):
		n := findFirst(doc, atom.Body)
		return n, strings.TrimPrefix(locator, "/html/body"), n != nil
	case strings.HasPrefix(locator, "/"):
		return doc, locator, true
	}
	return nil, "", false
}

func parseStep(step string) (string, int, bool) {
	open := strings.IndexByte(step, '[')
	if open < 0 {
		return step, 1, true
	}
	if !strings.HasSuffix(step, "]") {
		return "", 0, false
	}
	k, err := strconv.Atoi(step[open+1 : len(step)-1])
	if err != nil || k < 1 {
		return "", 0, false
	}
	return step[:open], k, true
}

func nthChild(n *html.Node, tag string, k int) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			k--
			if k == 0 {
				return c
			}
		}
	}
	return nil
}

func findByID(root *html.Node, id string) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && getAttr(n, "id") == id {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return found
}

func findFirst(root *html.Node, tag atom.Atom) *html.Node {
	if root.Type == html.ElementNode && root.DataAtom == tag {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if n := findFirst(c, tag); n != nil {
			return n
		}
	}
	return nil
}

// IsLocator reports whether target uses the Locate grammar rather than a
// CSS selector.
func IsLocator(target string) bool {
	return strings.HasPrefix(target, "/") || strings.HasPrefix(target, "id(")
}
