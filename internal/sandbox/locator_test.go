package sandbox

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func parseDoc(t *testing.T, body string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(Shell(body)))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestLocate_RoundTrip(t *testing.T) {
	doc := parseDoc(t, `<div><p>A</p><p id="x">B</p></div>`)
	ps := doc.Find("p")

	second := ps.Get(1)
	if got := Locate(second); got != `id("x")` {
		t.Errorf("Locate(second p) = %q, want %q", got, `id("x")`)
	}

	first := ps.Get(0)
	loc := Locate(first)
	if loc != "/html/body/div[1]/p[1]" {
		t.Errorf("Locate(first p) = %q, want %q", loc, "/html/body/div[1]/p[1]")
	}

	n, ok := Resolve(doc.Get(0), loc)
	if !ok {
		t.Fatalf("Resolve(%q) failed", loc)
	}
	if n != first {
		t.Errorf("Resolve(%q) returned a different node", loc)
	}

	n, ok = Resolve(doc.Get(0), `id("x")`)
	if !ok || n != second {
		t.Errorf("Resolve(id(\"x\")) = %v, %v", n, ok)
	}
}

func TestLocate_AncestorIDAnchorsPath(t *testing.T) {
	doc := parseDoc(t, `<section id="hero"><h1>T</h1><span>a</span><span>b</span></section>`)
	span := doc.Find("span").Get(1)

	loc := Locate(span)
	if loc != `id("hero")/span[2]` {
		t.Errorf("Locate() = %q, want %q", loc, `id("hero")/span[2]`)
	}
	if n, ok := Resolve(doc.Get(0), loc); !ok || n != span {
		t.Errorf("Resolve(%q) did not return the span", loc)
	}
}

func TestResolve_IDWithQuoteAndParen(t *testing.T) {
	doc := parseDoc(t, `<div id='a")b'><p>x</p></div><div id="c/d">y</div>`)

	for _, n := range []*html.Node{doc.Find("div").Get(0), doc.Find("p").Get(0), doc.Find("div").Get(1)} {
		loc := Locate(n)
		if got, ok := Resolve(doc.Get(0), loc); !ok || got != n {
			t.Errorf("Resolve(%q) did not return the located node", loc)
		}
	}
	if _, ok := Resolve(doc.Get(0), `id("a\")b"`); ok {
		t.Error("Resolve() accepted a locator without the closing paren")
	}
}

func TestLocate_Body(t *testing.T) {
	doc := parseDoc(t, `<p>x</p>`)
	body := doc.Find("body").Get(0)
	if got := Locate(body); got != "/html/body" {
		t.Errorf("Locate(body) = %q", got)
	}
	if n, ok := Resolve(doc.Get(0), "/html/body"); !ok || n != body {
		t.Error("Resolve(/html/body) did not return body")
	}
}

func TestResolve_EveryElementRoundTrips(t *testing.T) {
	doc := parseDoc(t, `<main><ul><li>1</li><li>2<b>x</b></li></ul><ul><li id="q">3</li><li>4</li></ul></main>`)

	doc.Find("body *").Each(func(_ int, sel *goquery.Selection) {
		n := sel.Get(0)
		loc := Locate(n)
		got, ok := Resolve(doc.Get(0), loc)
		if !ok || got != n {
			t.Errorf("round trip failed for %s at %q", n.Data, loc)
		}
	})
}

func TestResolve_Invalid(t *testing.T) {
	doc := parseDoc(t, `<p>x</p>`)
	root := doc.Get(0)

	for _, loc := range []string{"", `id("missing")`, "/html/body/p[2]", "/html/body/p[0]", "/html/body/p[x]", `id("unterminated`, "p"} {
		if _, ok := Resolve(root, loc); ok {
			t.Errorf("Resolve(%q) ok = true, want false", loc)
		}
	}
}

func TestLocate_NonElement(t *testing.T) {
	if got := Locate(&html.Node{Type: html.TextNode, Data: "x"}); got != "" {
		t.Errorf("Locate(text) = %q, want empty", got)
	}
}

func TestIsLocator(t *testing.T) {
	if !IsLocator("/html/body/p[1]") || !IsLocator(`id("a")`) {
		t.Error("IsLocator() = false for locator")
	}
	if IsLocator("#a") || IsLocator("div > p") {
		t.Error("IsLocator() = true for CSS selector")
	}
}
