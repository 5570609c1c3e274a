package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/sitesmith/internal/config"
	"github.com/hpungsan/sitesmith/internal/editor"
	"github.com/hpungsan/sitesmith/internal/llm"
	"github.com/hpungsan/sitesmith/internal/ops"
	"github.com/hpungsan/sitesmith/internal/sandbox"
	"github.com/hpungsan/sitesmith/internal/store"
)

const generatedPage = "Here you go:\n```html\n" +
	`<h1 id="t">Hi</h1><img id="i" src="https://ik.imagekit.io/demo/cat.jpg" alt="cat">` +
	"\n```"

type replyGenerator struct{ reply string }

func (g *replyGenerator) Stream(_ context.Context, _ []llm.Message, fn func(string)) error {
	for i := 0; i < len(g.reply); i += 5 {
		fn(g.reply[i:min(i+5, len(g.reply))])
	}
	return nil
}

type testServer struct {
	h      *Handlers
	router http.Handler
	store  store.Store
}

func setupTest(t *testing.T, reply string) *testServer {
	t.Helper()
	st, err := store.OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	reg := editor.NewRegistry(st, editor.SessionDeps{Bridge: st, Generator: &replyGenerator{reply: reply}})
	t.Cleanup(func() {
		reg.CloseAll()
		st.Close()
	})

	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		t.Fatalf("template sub-FS: %v", err)
	}
	logger := slog.New(slog.DiscardHandler)
	h := &Handlers{
		store:    st,
		sessions: reg,
		cfg:      config.DefaultConfig(),
		renderer: NewRenderer(templateSub, "test", logger),
		logger:   logger,
	}
	return &testServer{h: h, router: h.Router(nil), store: st}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) json(t *testing.T, method, path string, body any, wantStatus int) map[string]any {
	t.Helper()
	w := s.do(t, method, path, body)
	if w.Code != wantStatus {
		t.Fatalf("%s %s status = %d, want %d (body %s)", method, path, w.Code, wantStatus, w.Body.String())
	}
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, out map[string]any) string {
	t.Helper()
	e, ok := out["error"].(map[string]any)
	if !ok {
		t.Fatalf("response has no error object: %v", out)
	}
	return e["code"].(string)
}

// newGeneratedFrame creates a project and answers its first message.
func (s *testServer) newGeneratedFrame(t *testing.T) string {
	t.Helper()
	created := s.json(t, "POST", "/api/projects", map[string]string{"prompt": "A landing page"}, http.StatusCreated)
	frameID := created["frame_id"].(string)
	w := s.do(t, "POST", "/api/frames/"+frameID+"/generate", map[string]string{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return frameID
}

// --- pages ---

func TestHandleCreateProject_RedirectsToWorkspace(t *testing.T) {
	s := setupTest(t, generatedPage)

	form := url.Values{"prompt": {"Bakery site\nwith a menu"}}
	req := httptest.NewRequest("POST", "/projects", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); !strings.HasPrefix(loc, "/frames/") {
		t.Errorf("Location = %q, want /frames/...", loc)
	}

	list := s.do(t, "GET", "/projects", nil)
	require.Equal(t, http.StatusOK, list.Code)
	require.Contains(t, list.Body.String(), "Bakery site")
}

func TestHandleProject_ListsFrames(t *testing.T) {
	s := setupTest(t, generatedPage)
	frameID := s.newGeneratedFrame(t)
	f, err := ops.FetchFrame(context.Background(), s.store, ops.FetchFrameInput{ID: frameID})
	require.NoError(t, err)

	w := s.do(t, "GET", "/projects/"+f.ProjectID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), frameID)
	require.Contains(t, w.Body.String(), "Not deployed yet.")
}

func TestHandleWorkspace_SanitizesChat(t *testing.T) {
	s := setupTest(t, generatedPage)
	created := s.json(t, "POST", "/api/projects", map[string]string{
		"prompt": "Make it **bold** <script>alert(1)</script>",
	}, http.StatusCreated)

	w := s.do(t, "GET", "/frames/"+created["frame_id"].(string), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Contains(t, body, "<strong>bold</strong>")
	require.NotContains(t, body, "<script>alert")
	require.Contains(t, body, `data-needs-reply="true"`)
	require.Contains(t, body, `sandbox="allow-scripts allow-forms"`)
}

func TestHandlePreview_SandboxHeaders(t *testing.T) {
	s := setupTest(t, generatedPage)
	frameID := s.newGeneratedFrame(t)

	w := s.do(t, "GET", "/frames/"+frameID+"/preview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	if got := w.Header().Get("Content-Security-Policy"); got != sandbox.ContentSecurityPolicy {
		t.Errorf("Content-Security-Policy = %q, want %q", got, sandbox.ContentSecurityPolicy)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "SAMEORIGIN" {
		t.Errorf("X-Frame-Options = %q, want SAMEORIGIN", got)
	}
	require.Contains(t, w.Body.String(), `<h1 id="t">Hi</h1>`)
}

func TestHandlePreview_EmptyFrame(t *testing.T) {
	s := setupTest(t, "Sure, tell me more.")
	created := s.json(t, "POST", "/api/projects", map[string]string{"prompt": "hello"}, http.StatusCreated)

	w := s.do(t, "GET", "/frames/"+created["frame_id"].(string)+"/preview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Nothing generated yet.")
}

func TestSecurityHeaders(t *testing.T) {
	s := setupTest(t, generatedPage)
	w := s.do(t, "GET", "/projects", nil)
	if got := w.Header().Get("Content-Security-Policy"); got != pageCSP {
		t.Errorf("Content-Security-Policy = %q, want %q", got, pageCSP)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

func TestErrorRendering(t *testing.T) {
	s := setupTest(t, generatedPage)

	page := s.do(t, "GET", "/frames/missing", nil)
	require.Equal(t, http.StatusNotFound, page.Code)
	require.Contains(t, page.Header().Get("Content-Type"), "text/html")
	require.Contains(t, page.Body.String(), `class="error-message"`)

	req := httptest.NewRequest("GET", "/frames/missing", nil)
	req.Header.Set("Accept", "text/html, application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Equal(t, "NOT_FOUND", errorCode(t, out))
}

// --- API ---

func TestAPIGenerate_StreamsEvents(t *testing.T) {
	s := setupTest(t, generatedPage)
	created := s.json(t, "POST", "/api/projects", map[string]string{"prompt": "A landing page"}, http.StatusCreated)
	frameID := created["frame_id"].(string)

	w := s.do(t, "POST", "/api/frames/"+frameID+"/generate", map[string]string{})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	require.Contains(t, body, "event: code\n")
	require.Contains(t, body, "event: result\n")
	require.Contains(t, body, `"kind":"document"`)

	// Nothing left to answer.
	out := s.json(t, "POST", "/api/frames/"+frameID+"/generate", map[string]string{}, http.StatusBadRequest)
	require.Equal(t, "INVALID_REQUEST", errorCode(t, out))

	fetched := s.json(t, "GET", "/api/frames/"+frameID, nil, http.StatusOK)
	require.Equal(t, false, fetched["needs_reply"])
	require.Contains(t, fetched["markup"], `<h1 id="t">Hi</h1>`)
}

func TestAPIEditAndSave(t *testing.T) {
	s := setupTest(t, generatedPage)
	frameID := s.newGeneratedFrame(t)
	base := "/api/frames/" + frameID

	view := s.json(t, "GET", base+"/element", nil, http.StatusOK)
	require.Nil(t, view["element"])

	out := s.json(t, "POST", base+"/style", map[string]string{"color": "red"}, http.StatusBadRequest)
	require.Equal(t, "INVALID_REQUEST", errorCode(t, out))

	view = s.json(t, "POST", base+"/select", map[string]string{"target": "#t"}, http.StatusOK)
	require.Equal(t, "H1", view["element"].(map[string]any)["tagName"])

	view = s.json(t, "POST", base+"/style", map[string]string{"color": "#112233"}, http.StatusOK)
	require.Equal(t, true, view["unsaved"])
	require.Equal(t, editor.LabelSave, view["save_label"])

	s.json(t, "POST", base+"/text", map[string]string{"text": "Hello"}, http.StatusOK)
	s.json(t, "POST", base+"/attribute", map[string]string{"name": "title", "value": "greeting"}, http.StatusOK)

	saved := s.json(t, "POST", base+"/save", nil, http.StatusOK)
	require.Equal(t, true, saved["saved"])
	require.Equal(t, editor.LabelSaved, saved["save_label"])

	fetched := s.json(t, "GET", base, nil, http.StatusOK)
	markup := fetched["markup"].(string)
	require.Contains(t, markup, "color: #112233;")
	require.Contains(t, markup, ">Hello</h1>")
	require.Contains(t, markup, `title="greeting"`)
	require.NotContains(t, markup, "editor-")

	view = s.json(t, "DELETE", base+"/select", nil, http.StatusOK)
	require.Nil(t, view["element"])
}

func TestAPIImage(t *testing.T) {
	s := setupTest(t, generatedPage)
	frameID := s.newGeneratedFrame(t)
	base := "/api/frames/" + frameID

	s.json(t, "POST", base+"/select", map[string]string{"target": "#t"}, http.StatusOK)
	out := s.json(t, "POST", base+"/image", map[string]any{"toggle": []string{"resize"}}, http.StatusBadRequest)
	require.Equal(t, "INVALID_REQUEST", errorCode(t, out))

	s.json(t, "POST", base+"/select", map[string]string{"target": "#i"}, http.StatusOK)
	out = s.json(t, "POST", base+"/image", map[string]any{"toggle": []string{"sepia"}}, http.StatusBadRequest)
	require.Equal(t, "INVALID_REQUEST", errorCode(t, out))

	view := s.json(t, "POST", base+"/image", map[string]any{
		"toggle": []string{"resize", "smartcrop"},
		"width":  400,
		"height": 300,
	}, http.StatusOK)
	img := view["image"].(map[string]any)
	require.Equal(t, "https://ik.imagekit.io/demo/tr:w-400,h-300,fo-auto/cat.jpg", img["url"])
}

func TestAPIImageUpload_NotConfigured(t *testing.T) {
	s := setupTest(t, generatedPage)
	frameID := s.newGeneratedFrame(t)
	base := "/api/frames/" + frameID
	s.json(t, "POST", base+"/select", map[string]string{"target": "#i"}, http.StatusOK)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "hero.png")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("png"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", base+"/image/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "NOT_CONFIGURED")
}

func TestAPIExport(t *testing.T) {
	s := setupTest(t, generatedPage)
	frameID := s.newGeneratedFrame(t)

	w := s.do(t, "GET", "/api/frames/"+frameID+"/export?format=markdown", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "text/markdown")
	require.Contains(t, w.Header().Get("Content-Disposition"), ".md")
	require.Contains(t, w.Body.String(), "# Hi")

	w = s.do(t, "GET", "/api/frames/"+frameID+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "<!DOCTYPE html>")

	out := s.json(t, "GET", "/api/frames/"+frameID+"/export?format=pdf", nil, http.StatusBadRequest)
	require.Equal(t, "INVALID_REQUEST", errorCode(t, out))
}

func TestAPIConversationalFrame(t *testing.T) {
	s := setupTest(t, "What colors do you like?")
	created := s.json(t, "POST", "/api/projects", map[string]string{"prompt": "hi"}, http.StatusCreated)
	base := "/api/frames/" + created["frame_id"].(string)
	s.do(t, "POST", base+"/generate", map[string]string{})

	out := s.json(t, "GET", base+"/export", nil, http.StatusConflict)
	require.Equal(t, "NO_MARKUP", errorCode(t, out))
	out = s.json(t, "POST", base+"/select", map[string]string{"target": "h1"}, http.StatusConflict)
	require.Equal(t, "NO_MARKUP", errorCode(t, out))
	out = s.json(t, "POST", base+"/deploy", nil, http.StatusConflict)
	require.Equal(t, "NO_MARKUP", errorCode(t, out))
}

func TestAPIDeploy_NotConfigured(t *testing.T) {
	s := setupTest(t, generatedPage)
	frameID := s.newGeneratedFrame(t)

	out := s.json(t, "POST", "/api/frames/"+frameID+"/deploy", nil, http.StatusInternalServerError)
	require.Equal(t, "NOT_CONFIGURED", errorCode(t, out))

	deps := s.json(t, "GET", "/api/deployments", nil, http.StatusOK)
	require.Empty(t, deps["items"])
}

func TestAPIProjectsAndFrames(t *testing.T) {
	s := setupTest(t, generatedPage)
	created := s.json(t, "POST", "/api/projects", map[string]string{"prompt": "site", "name": "Site"}, http.StatusCreated)
	projectID := created["project_id"].(string)

	s.json(t, "POST", "/api/projects/"+projectID+"/frames", map[string]string{}, http.StatusCreated)
	frames := s.json(t, "GET", "/api/projects/"+projectID+"/frames", nil, http.StatusOK)
	require.Len(t, frames["items"], 2)

	projects := s.json(t, "GET", "/api/projects", nil, http.StatusOK)
	require.Len(t, projects["items"], 1)

	out := s.json(t, "POST", "/api/projects/missing/frames", map[string]string{}, http.StatusNotFound)
	require.Equal(t, "NOT_FOUND", errorCode(t, out))

	w := s.do(t, "POST", "/api/projects", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest("POST", "/api/projects", strings.NewReader("{"))
	bad := httptest.NewRecorder()
	s.router.ServeHTTP(bad, req)
	require.Equal(t, http.StatusBadRequest, bad.Code)
}

// --- helpers ---

func TestRenderMarkdown(t *testing.T) {
	got := string(renderMarkdown("Hello **world** [x](javascript:alert(1))"))
	require.Contains(t, got, "<strong>world</strong>")
	require.NotContains(t, got, "javascript:")
}

func TestFormatChars(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-4200, "-4,200"},
	}
	for _, tt := range tests {
		if got := formatChars(tt.in); got != tt.want {
			t.Errorf("formatChars(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseIntParam(t *testing.T) {
	req := httptest.NewRequest("GET", "/?limit=5&bad=x", nil)
	if got := parseIntParam(req, "limit", 20); got != 5 {
		t.Errorf("parseIntParam(limit) = %d, want 5", got)
	}
	if got := parseIntParam(req, "bad", 20); got != 20 {
		t.Errorf("parseIntParam(bad) = %d, want 20", got)
	}
	if got := parseIntParam(req, "missing", 7); got != 7 {
		t.Errorf("parseIntParam(missing) = %d, want 7", got)
	}
}
