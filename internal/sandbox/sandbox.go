package sandbox

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	apperrors "github.com/hpungsan/sitesmith/internal/errors"
	"github.com/hpungsan/sitesmith/internal/protocol"
)

// Pointer is a simulated pointer event.
type Pointer string

const (
	PointerEnter Pointer = "enter"
	PointerLeave Pointer = "leave"
	Click        Pointer = "click"
)

// Sandbox is an isolated document. Nodes never leave it: callers address
// elements by locator or CSS selector and learn about them only through
// selection reports sent to outbound.
type Sandbox struct {
	mu         sync.Mutex
	doc        *goquery.Document
	generation uint64
	attached   bool
	hovered    *html.Node
	selected   *html.Node

	outbound func(protocol.Message)
	logger   *slog.Logger
}

// New returns an empty sandbox. Selection reports are passed to outbound.
func New(outbound func(protocol.Message), logger *slog.Logger) *Sandbox {
	if logger == nil {
		logger = slog.Default()
	}
	if outbound == nil {
		outbound = func(protocol.Message) {}
	}
	return &Sandbox{outbound: outbound, logger: logger}
}

// Load discards the current document and renders markup inside the
// library shell. Hover and selection state die with the old document; if
// the selection layer is attached it is attached to the new one.
func (s *Sandbox) Load(markup string) error {
	clean, err := StripEditorMarkers(markup)
	if err != nil {
		return fmt.Errorf("parse markup: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(Shell(clean)))
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	markShellNodes(doc)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	s.generation++
	s.hovered = nil
	s.selected = nil
	if s.attached {
		injectEditorStyle(doc)
	}
	s.logger.Debug("sandbox loaded", "generation", s.generation, "bytes", len(markup))
	return nil
}

// Generation counts documents loaded so far.
func (s *Sandbox) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Attach starts the selection layer. Attaching twice is a no-op.
func (s *Sandbox) Attach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = true
	if s.doc != nil {
		injectEditorStyle(s.doc)
	}
}

// Detach stops reacting to pointer events and commands and clears every
// editor marker from the document.
func (s *Sandbox) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = false
	s.hovered = nil
	s.selected = nil
	if s.doc != nil {
		s.doc.Find("style[" + EditorAttr + "]").Remove()
		clearSelectionMarkers(s.doc.Find("html"))
	}
}

// Attached reports whether the selection layer is running.
func (s *Sandbox) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

// Pointer delivers a pointer event to the element addressed by target.
// Events are ignored while detached.
func (s *Sandbox) Pointer(ev Pointer, target string) error {
	s.mu.Lock()
	if !s.attached || s.doc == nil {
		s.mu.Unlock()
		return nil
	}
	n, err := s.find(target)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	var report *protocol.ElementData
	switch ev {
	case PointerEnter:
		s.enter(n)
	case PointerLeave:
		s.leave(n)
	case Click:
		report = s.click(n)
	default:
		s.mu.Unlock()
		return apperrors.NewInvalidRequest(fmt.Sprintf("unknown pointer event %q", ev))
	}
	s.mu.Unlock()

	if report != nil {
		s.outbound(protocol.Selected(report))
	}
	return nil
}

// find resolves target within the current document. Caller holds mu.
func (s *Sandbox) find(target string) (*html.Node, error) {
	root := s.doc.Get(0)
	if IsLocator(target) {
		if n, ok := Resolve(root, target); ok {
			return n, nil
		}
		return nil, apperrors.NewNotFound("element", target)
	}
	sel := s.doc.Find(target)
	if sel.Length() == 0 {
		return nil, apperrors.NewNotFound("element", target)
	}
	return sel.Get(0), nil
}

func (s *Sandbox) enter(n *html.Node) {
	if n == s.selected {
		return
	}
	if s.hovered != nil && s.hovered != s.selected {
		removeClass(s.hovered, HoverClass)
	}
	s.hovered = n
	addClass(n, HoverClass)
}

func (s *Sandbox) leave(n *html.Node) {
	if n != s.selected {
		removeClass(n, HoverClass)
	}
	if n == s.hovered {
		s.hovered = nil
	}
}

// click moves the selection to n and builds its report.
func (s *Sandbox) click(n *html.Node) *protocol.ElementData {
	if s.selected != nil {
		removeClass(s.selected, SelectedClass)
		removeAttr(s.selected, TagAttr)
	}
	s.selected = n
	addClass(n, SelectedClass)
	removeClass(n, HoverClass)
	setAttr(n, TagAttr, n.Data)
	return describe(n)
}

// Receive applies a host command. Commands that need a selection are
// dropped when there is none; everything is dropped while detached.
func (s *Sandbox) Receive(m protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		s.logger.Debug("sandbox detached, dropping command", "type", m.Type)
		return
	}

	switch m.Type {
	case protocol.TypeDeselect:
		if s.selected != nil {
			removeClass(s.selected, SelectedClass)
			removeAttr(s.selected, TagAttr)
			s.selected = nil
		}
		return
	case protocol.TypeUpdateStyle, protocol.TypeUpdateText, protocol.TypeUpdateAttribute:
	default:
		s.logger.Debug("sandbox ignoring message", "type", m.Type)
		return
	}

	if s.selected == nil {
		s.logger.Debug("no selection, dropping command", "type", m.Type)
		return
	}

	switch m.Type {
	case protocol.TypeUpdateStyle:
		if err := SetInlineStyle(s.selected, m.Property, m.Value); err != nil {
			s.logger.Debug("dropping style update", "error", err)
		}
	case protocol.TypeUpdateText:
		setDirectText(s.selected, m.TextValue())
	case protocol.TypeUpdateAttribute:
		if !validAttribute(m.Attribute) {
			s.logger.Debug("dropping attribute update", "attribute", m.Attribute)
			return
		}
		setAttr(s.selected, strings.ToLower(m.Attribute), m.Value)
	}
}

// Selected returns the report for the selected element, or nil.
func (s *Sandbox) Selected() *protocol.ElementData {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return nil
	}
	return describe(s.selected)
}

// BodyHTML serializes the live body content.
func (s *Sandbox) BodyHTML() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return "", nil
	}
	return s.doc.Find("body").Html()
}

// DocumentHTML serializes the whole live document.
func (s *Sandbox) DocumentHTML() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, s.doc.Get(0)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// MarkedCount returns how many elements carry class. Used to check the
// single-selection invariant.
func (s *Sandbox) MarkedCount(class string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return 0
	}
	return s.doc.Find("." + class).Length()
}

// describe builds the selection report for n.
func describe(n *html.Node) *protocol.ElementData {
	var text strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			text.WriteString(c.Data)
		}
	}

	inner, err := goquery.NewDocumentFromNode(n).Html()
	if err != nil {
		inner = ""
	}

	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		if a.Key == "class" || a.Key == TagAttr || a.Key == EditorAttr {
			continue
		}
		attrs[a.Key] = a.Val
	}

	return &protocol.ElementData{
		TagName:     strings.ToUpper(n.Data),
		TextContent: strings.TrimSpace(text.String()),
		InnerHTML:   inner,
		Styles:      ComputedStyles(n),
		ClassList:   userClasses(n),
		XPath:       Locate(n),
		Attributes:  attrs,
	}
}

// setDirectText replaces the first child when it is a text node; otherwise
// the whole content of n becomes the text.
func setDirectText(n *html.Node, text string) {
	if c := n.FirstChild; c != nil && c.Type == html.TextNode {
		c.Data = text
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// validAttribute rejects names that cannot be serialized and event
// handler attributes.
func validAttribute(name string) bool {
	if name == "" || strings.HasPrefix(strings.ToLower(name), "on") {
		return false
	}
	return !strings.ContainsAny(name, " \t\n\"'<>/=")
}

// injectEditorStyle adds the marker stylesheet once.
func injectEditorStyle(doc *goquery.Document) {
	if doc.Find("style["+EditorAttr+"]").Length() > 0 {
		return
	}
	head := doc.Find("head").Get(0)
	if head == nil {
		return
	}
	style := &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style,
		Attr: []html.Attribute{{Key: EditorAttr, Val: "selection"}}}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: editorStyle})
	head.AppendChild(style)
}

// markShellNodes flags the library tags Shell appended to the body so they
// are not saved as part of the page.
func markShellNodes(doc *goquery.Document) {
	for _, n := range shellTail(doc.Find("body")) {
		setAttr(n, EditorAttr, "library")
	}
}
