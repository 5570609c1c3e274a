package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/hpungsan/sitesmith/internal/errors"
	"github.com/hpungsan/sitesmith/internal/frame"
	"github.com/hpungsan/sitesmith/internal/imagekit"
	"github.com/hpungsan/sitesmith/internal/sandbox"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newInspectorSession(t *testing.T, markup string, bridge *fakeBridge, deps SessionDeps) (*Session, *manualClock) {
	t.Helper()
	clock := &manualClock{now: time.Unix(1700000000, 0)}
	deps.Bridge = bridge
	deps.Generator = &scriptedGenerator{}
	deps.Clock = clock.Now
	snap := &frame.Snapshot{Frame: frame.Frame{ID: "f", ProjectID: "p", Markup: &markup}}
	s, err := NewSession(deps, snap)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	s.SetEditMode(true)
	return s, clock
}

func selectTarget(t *testing.T, s *Session, target string) {
	t.Helper()
	require.NoError(t, s.Pointer(sandbox.Click, target))
	require.NoError(t, s.Sync(context.Background()))
}

func TestInspector_SaveLifecycle(t *testing.T) {
	s, clock := newInspectorSession(t, `<h1 id="h">Hi</h1><p id="p">x</p>`, &fakeBridge{}, SessionDeps{})
	in := s.Inspector()
	ctx := context.Background()

	selectTarget(t, s, "#h")
	require.Equal(t, LabelNoChanges, in.Label())
	require.False(t, in.CanSave())

	in.SetColor("#112233")
	require.NoError(t, in.SetFontSize(24))
	require.True(t, in.Unsaved())
	require.True(t, in.CanSave())
	require.Equal(t, LabelSave, in.Label())

	res := in.Save(ctx)
	require.True(t, res.OK)
	require.Contains(t, res.Markup, "font-size: 24px;")
	require.Equal(t, LabelSaved, in.Label())

	// cool-down blocks saving even with new edits
	in.SetText("Hello")
	require.False(t, in.CanSave())
	clock.Advance(DefaultSaveCooldown)
	require.True(t, in.CanSave())
	require.Equal(t, LabelSave, in.Label())
}

func TestInspector_SelectionChangeResetsUnsaved(t *testing.T) {
	s, _ := newInspectorSession(t, `<h1 id="h">Hi</h1><p id="p">x</p>`, &fakeBridge{}, SessionDeps{})
	in := s.Inspector()

	selectTarget(t, s, "#h")
	in.SetMargin("8px")
	require.True(t, in.Unsaved())

	// reselecting the same element keeps the flag
	selectTarget(t, s, "#h")
	require.True(t, in.Unsaved())

	selectTarget(t, s, "#p")
	require.False(t, in.Unsaved())
	require.Equal(t, LabelNoChanges, in.Label())

	// the edit on the first element is still in the document
	markup, err := s.SaveChanges(context.Background())
	require.NoError(t, err)
	require.Contains(t, markup, "margin: 8px;")
}

func TestInspector_SaveFailureIsReported(t *testing.T) {
	bridge := &fakeBridge{err: errors.New("connection refused")}
	s, _ := newInspectorSession(t, `<p id="p">x</p>`, bridge, SessionDeps{})
	in := s.Inspector()

	selectTarget(t, s, "#p")
	in.SetPadding("4px")
	res := in.Save(context.Background())
	require.False(t, res.OK)
	require.NotEmpty(t, res.Message)
	require.True(t, in.Unsaved(), "a failed save keeps the edits pending")
	require.True(t, in.CanSave())
}

func TestInspector_NoSelectionNoChanges(t *testing.T) {
	s, _ := newInspectorSession(t, `<p>x</p>`, &fakeBridge{}, SessionDeps{})
	in := s.Inspector()

	in.SetColor("red")
	require.False(t, in.Unsaved())
	require.False(t, in.Save(context.Background()).OK)
}

func TestInspector_Validation(t *testing.T) {
	s, _ := newInspectorSession(t, `<p id="p">x</p>`, &fakeBridge{}, SessionDeps{})
	in := s.Inspector()
	selectTarget(t, s, "#p")

	require.Error(t, in.SetTextAlign("middle"))
	require.NoError(t, in.SetTextAlign("Center"))
	require.Equal(t, "center", s.Selected().Styles.TextAlign)
	require.Error(t, in.SetFontSize(0))
}

func TestImageControls(t *testing.T) {
	base := "https://ik.imagekit.io/demo/cat.jpg"
	s, _ := newInspectorSession(t, `<img id="i" src="`+base+`" alt="cat"><p id="p">x</p>`, &fakeBridge{},
		SessionDeps{Images: &fakeUploader{url: "https://ik.imagekit.io/demo/dog_x1.png"}})
	in := s.Inspector()
	ctx := context.Background()

	selectTarget(t, s, "#p")
	require.Nil(t, in.Image())

	selectTarget(t, s, "#i")
	img := in.Image()
	require.NotNil(t, img)
	st := img.State()
	require.Equal(t, base, st.BaseURL)
	require.Equal(t, "cat", st.Alt)
	require.Equal(t, DefaultImageWidth, st.Width)
	require.Equal(t, DefaultImageHeight, st.Height)
	require.Equal(t, DefaultBorderRadius, st.BorderRadius)

	require.True(t, img.Toggle(imagekit.SmartCrop))
	require.NoError(t, img.SetSize(400, 300))
	require.True(t, img.Toggle(imagekit.Resize))
	want := "https://ik.imagekit.io/demo/tr:w-400,h-300,fo-auto/cat.jpg"
	require.Equal(t, want, img.State().URL)
	require.Equal(t, want, s.Selected().Attributes["src"])

	img.Toggle(imagekit.SmartCrop)
	img.Toggle(imagekit.Resize)
	require.Equal(t, base, img.State().URL, "removing every transform restores the base URL")

	img.SetAlt("a cat")
	img.SetBorderRadius("12px")
	require.NoError(t, s.Sync(ctx))
	markup, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	require.Contains(t, markup, `alt="a cat"`)
	require.Contains(t, markup, "border-radius: 12px;")
	require.Contains(t, markup, `src="`+base+`"`)

	res, err := img.Upload(ctx, []byte("png"), "dog.png")
	require.NoError(t, err)
	require.Equal(t, "https://ik.imagekit.io/demo/dog_x1.png", res.URL)
	require.Equal(t, res.URL, img.State().URL)
	require.Equal(t, res.URL, s.Selected().Attributes["src"])
}

func TestImageControls_StaleAfterSelectionChange(t *testing.T) {
	s, _ := newInspectorSession(t, `<img id="i" src="https://ik.imagekit.io/acct/a.png"><p id="p">x</p>`, &fakeBridge{}, SessionDeps{})
	in := s.Inspector()
	ctx := context.Background()

	selectTarget(t, s, "#i")
	img := in.Image()
	require.NotNil(t, img)

	selectTarget(t, s, "#p")
	img.Toggle(imagekit.SmartCrop)
	img.SetAlt("stale")
	img.SetBorderRadius("9px")
	width := 10
	err := img.Apply(ImageEdit{Width: &width})
	require.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))
	require.NoError(t, s.Sync(ctx))

	sel := s.Selected()
	require.Equal(t, "P", sel.TagName)
	require.NotContains(t, sel.Attributes, "src")
	require.NotContains(t, sel.Attributes, "alt")
	require.False(t, in.Unsaved())

	markup, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	require.Contains(t, markup, `src="https://ik.imagekit.io/acct/a.png"`)
	require.NotContains(t, markup, "tr:")
	require.NotContains(t, markup, "stale")
	require.NotContains(t, markup, "9px")
}

func TestRegistry_OpenReusesSession(t *testing.T) {
	loader := loaderFunc(func(_ context.Context, id string) (*frame.Snapshot, error) {
		return &frame.Snapshot{Frame: frame.Frame{ID: id, ProjectID: "p"}}, nil
	})
	r := NewRegistry(loader, SessionDeps{Bridge: &fakeBridge{}, Generator: &scriptedGenerator{}})
	defer r.CloseAll()

	a, err := r.Open(context.Background(), "f1")
	require.NoError(t, err)
	b, err := r.Open(context.Background(), "f1")
	require.NoError(t, err)
	require.Same(t, a, b)

	_, ok := r.Get("f2")
	require.False(t, ok)
	require.Equal(t, []string{"f1"}, r.IDs())

	r.Close("f1")
	require.Empty(t, r.IDs())
}

type loaderFunc func(ctx context.Context, id string) (*frame.Snapshot, error)

func (f loaderFunc) LoadFrame(ctx context.Context, id string) (*frame.Snapshot, error) {
	return f(ctx, id)
}

func TestSession_Select(t *testing.T) {
	s, _ := newInspectorSession(t, `<ul><li>a</li><li class="b">b</li></ul>`, &fakeBridge{}, SessionDeps{})
	ctx := context.Background()

	sel, err := s.Select(ctx, "li.b")
	require.NoError(t, err)
	require.Equal(t, "LI", sel.TagName)
	require.Equal(t, "b", sel.TextContent)

	_, err = s.Select(ctx, "table")
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	empty, err := NewSession(SessionDeps{Bridge: &fakeBridge{}, Generator: &scriptedGenerator{}},
		&frame.Snapshot{Frame: frame.Frame{ID: "e", ProjectID: "p"}})
	require.NoError(t, err)
	defer empty.Close()
	_, err = empty.Select(ctx, "p")
	require.True(t, apperrors.Is(err, apperrors.ErrNoMarkup))
}
