package sandbox

import (
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/hpungsan/sitesmith/internal/errors"
	"github.com/hpungsan/sitesmith/internal/protocol"
)

type recorder struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (r *recorder) post(m protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *recorder) last() *protocol.ElementData {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return nil
	}
	return r.msgs[len(r.msgs)-1].Data
}

func newLoaded(t *testing.T, markup string) (*Sandbox, *recorder) {
	t.Helper()
	rec := &recorder{}
	sb := New(rec.post, nil)
	require.NoError(t, sb.Load(markup))
	sb.Attach()
	return sb, rec
}

func TestSandbox_ClickReportsElement(t *testing.T) {
	sb, rec := newLoaded(t, `<div id="a">Hi</div>`)

	require.NoError(t, sb.Pointer(Click, "#a"))

	data := rec.last()
	require.NotNil(t, data)
	require.Equal(t, "DIV", data.TagName)
	require.Equal(t, "Hi", data.TextContent)
	require.Equal(t, `id("a")`, data.XPath)
	require.Equal(t, "Hi", data.InnerHTML)
	require.True(t, data.Valid())
}

func TestSandbox_DirectTextOnly(t *testing.T) {
	sb, rec := newLoaded(t, `<p class="lead"> Hello <b>bold</b> world </p>`)

	require.NoError(t, sb.Pointer(Click, "p"))

	data := rec.last()
	require.Equal(t, "Hello  world", data.TextContent)
	require.Equal(t, []string{"lead"}, data.ClassList)
	require.Contains(t, data.InnerHTML, "<b>bold</b>")
}

func TestSandbox_SingleSelectionInvariant(t *testing.T) {
	sb, _ := newLoaded(t, `<div><p>1</p><p>2</p><span>3</span><ul><li>4</li><li>5</li></ul></div>`)
	targets := []string{"div", "p", "span", "li", "ul", "/html/body/div[1]/p[2]", "/html/body/div[1]/ul[1]/li[2]"}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		target := targets[rng.Intn(len(targets))]
		switch rng.Intn(4) {
		case 0:
			require.NoError(t, sb.Pointer(PointerEnter, target))
		case 1:
			require.NoError(t, sb.Pointer(PointerLeave, target))
		case 2:
			sb.Receive(protocol.Deselect())
		default:
			require.NoError(t, sb.Pointer(Click, target))
		}
		if n := sb.MarkedCount(SelectedClass); n > 1 {
			t.Fatalf("step %d: %d elements selected", i, n)
		}
		if n := sb.MarkedCount(HoverClass); n > 1 {
			t.Fatalf("step %d: %d elements hovered", i, n)
		}
	}
}

func TestSandbox_HoverSuppressedOnSelected(t *testing.T) {
	sb, _ := newLoaded(t, `<p>a</p><p>b</p>`)

	require.NoError(t, sb.Pointer(PointerEnter, "/html/body/p[1]"))
	require.Equal(t, 1, sb.MarkedCount(HoverClass))

	require.NoError(t, sb.Pointer(Click, "/html/body/p[1]"))
	require.Equal(t, 0, sb.MarkedCount(HoverClass), "click clears hover on the clicked node")

	require.NoError(t, sb.Pointer(PointerEnter, "/html/body/p[1]"))
	require.Equal(t, 0, sb.MarkedCount(HoverClass), "selected node never shows hover")

	require.NoError(t, sb.Pointer(PointerEnter, "/html/body/p[2]"))
	require.NoError(t, sb.Pointer(PointerLeave, "/html/body/p[2]"))
	require.Equal(t, 0, sb.MarkedCount(HoverClass))
}

func TestSandbox_MutationsApplyToSelection(t *testing.T) {
	sb, _ := newLoaded(t, `<h1 id="t">Title<small>sub</small></h1><img id="i" src="a.png">`)

	require.NoError(t, sb.Pointer(Click, "#t"))
	sb.Receive(protocol.UpdateStyle("color", "#ff0000"))
	sb.Receive(protocol.UpdateStyle("fontSize", "40px"))
	sb.Receive(protocol.UpdateText("New title"))

	sel := sb.Selected()
	require.Equal(t, "New title", sel.TextContent)
	require.Equal(t, "#ff0000", sel.Styles.Color)
	require.Equal(t, "40px", sel.Styles.FontSize)
	require.Contains(t, sel.InnerHTML, "<small>sub</small>", "first text node replaced, children kept")

	require.NoError(t, sb.Pointer(Click, "#i"))
	sb.Receive(protocol.UpdateAttribute("src", "b.png"))
	sb.Receive(protocol.UpdateAttribute("onerror", "alert(1)"))

	body, err := sb.BodyHTML()
	require.NoError(t, err)
	require.Contains(t, body, `src="b.png"`)
	require.NotContains(t, body, "onerror")
	require.Contains(t, body, `style="color: #ff0000; font-size: 40px;"`)
}

func TestSandbox_TextReplacesAllWhenFirstChildNotText(t *testing.T) {
	sb, _ := newLoaded(t, `<button id="b"><i class="fa fa-star"></i> Star</button>`)

	require.NoError(t, sb.Pointer(Click, "#b"))
	sb.Receive(protocol.UpdateText("Go"))

	sel := sb.Selected()
	require.Equal(t, "Go", sel.InnerHTML)
}

func TestSandbox_MutationWithoutSelectionIsDropped(t *testing.T) {
	sb, _ := newLoaded(t, `<div id="a" style="color: red;">Hi</div>`)
	before, err := sb.BodyHTML()
	require.NoError(t, err)

	sb.Receive(protocol.UpdateStyle("color", "blue"))
	sb.Receive(protocol.UpdateText("changed"))
	sb.Receive(protocol.UpdateAttribute("title", "x"))
	sb.Receive(protocol.Deselect())

	after, err := sb.BodyHTML()
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestSandbox_DetachedIgnoresInput(t *testing.T) {
	rec := &recorder{}
	sb := New(rec.post, nil)
	require.NoError(t, sb.Load(`<p id="p">x</p>`))

	require.NoError(t, sb.Pointer(Click, "#p"))
	require.Nil(t, rec.last(), "no report while detached")

	sb.Attach()
	require.NoError(t, sb.Pointer(Click, "#p"))
	require.NotNil(t, rec.last())

	sb.Detach()
	require.Equal(t, 0, sb.MarkedCount(SelectedClass))
	doc, err := sb.DocumentHTML()
	require.NoError(t, err)
	require.NotContains(t, doc, "data-element-tag")
	require.NotContains(t, doc, `style data-editor`)

	sb.Receive(protocol.UpdateText("ignored"))
	body, err := sb.BodyHTML()
	require.NoError(t, err)
	require.Contains(t, body, `<p id="p">x</p>`)
}

func TestSandbox_AttachIsIdempotent(t *testing.T) {
	sb, _ := newLoaded(t, `<p>x</p>`)
	sb.Attach()
	sb.Attach()

	doc, err := sb.DocumentHTML()
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(doc, `data-editor="selection"`))
}

func TestSandbox_LoadDiscardsSelection(t *testing.T) {
	sb, _ := newLoaded(t, `<p id="old">x</p>`)
	require.NoError(t, sb.Pointer(Click, "#old"))
	gen := sb.Generation()

	require.NoError(t, sb.Load(`<p id="new">y</p>`))
	require.Equal(t, gen+1, sb.Generation())
	require.Nil(t, sb.Selected())

	err := sb.Pointer(Click, "#old")
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound), "old nodes are gone")

	// Still attached to the new document.
	require.NoError(t, sb.Pointer(Click, "#new"))
	require.NotNil(t, sb.Selected())
	doc, err := sb.DocumentHTML()
	require.NoError(t, err)
	require.Contains(t, doc, `data-editor="selection"`)
}

func TestSandbox_LoadStripsStaleMarkers(t *testing.T) {
	sb, _ := newLoaded(t, `<p class="editor-selected">a</p><p class="editor-selected">b</p>`)
	require.Equal(t, 0, sb.MarkedCount(SelectedClass))
}

func TestSandbox_BodyExcludesShellAfterStrip(t *testing.T) {
	sb, _ := newLoaded(t, `<div id="a">Hi</div>`)
	require.NoError(t, sb.Pointer(Click, "#a"))

	body, err := sb.BodyHTML()
	require.NoError(t, err)
	require.Contains(t, body, "flowbite.min.js", "live body still runs the runtime")

	clean, err := StripEditorMarkers(body)
	require.NoError(t, err)
	require.NotContains(t, clean, "flowbite")
	require.NotContains(t, clean, "editor-selected")
	require.Equal(t, `<div id="a">Hi</div>`, strings.TrimSpace(clean))
}

func TestSandbox_KeepsUserEditorPrefixedClasses(t *testing.T) {
	sb, rec := newLoaded(t, `<div class="editor-panel card" id="p">x</div>`)
	require.NoError(t, sb.Pointer(Click, "#p"))

	data := rec.last()
	require.NotNil(t, data)
	require.Equal(t, []string{"editor-panel", "card"}, data.ClassList)

	body, err := sb.BodyHTML()
	require.NoError(t, err)
	clean, err := StripEditorMarkers(body)
	require.NoError(t, err)
	require.Equal(t, `<div class="editor-panel card" id="p">x</div>`, strings.TrimSpace(clean))
}

func TestSandbox_KeepsUserLibraryScript(t *testing.T) {
	user := `<div id="a">Hi</div><script src="https://cdn.jsdelivr.net/npm/flowbite@2.5.1/dist/flowbite.min.js"></script>`
	sb, _ := newLoaded(t, user)

	body, err := sb.BodyHTML()
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(body, "flowbite.min.js"))

	clean, err := StripEditorMarkers(body)
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(clean, "flowbite.min.js"))
	require.Contains(t, clean, `<div id="a">Hi</div>`)
}

func TestSandbox_UnknownTarget(t *testing.T) {
	sb, _ := newLoaded(t, `<p>x</p>`)
	err := sb.Pointer(Click, "#nope")
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	err = sb.Pointer(Pointer("drag"), "p")
	require.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))
}
