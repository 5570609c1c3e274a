package web

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hpungsan/sitesmith/internal/config"
	"github.com/hpungsan/sitesmith/internal/editor"
	"github.com/hpungsan/sitesmith/internal/errors"
	"github.com/hpungsan/sitesmith/internal/ops"
	"github.com/hpungsan/sitesmith/internal/sandbox"
	"github.com/hpungsan/sitesmith/internal/store"
)

// Handlers contains HTTP route handlers for the web UI and API.
type Handlers struct {
	store    store.Store
	sessions *editor.Registry
	cfg      *config.Config
	renderer *Renderer
	logger   *slog.Logger
}

// HandleProjects handles GET /projects.
func (h *Handlers) HandleProjects(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ListProjects(r.Context(), h.store, ops.ListProjectsInput{
		Limit: parseIntParam(r, "limit", ops.DefaultListLimit),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.renderer.renderPage(w, "projects", ProjectsPageData{
		PageData: h.renderer.page("Projects"),
		Items:    result.Items,
	})
}

// HandleCreateProject handles POST /projects from the new project form and
// opens the workspace of its first frame.
func (h *Handlers) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	result, err := ops.CreateProject(r.Context(), h.store, ops.CreateProjectInput{
		Prompt: r.FormValue("prompt"),
		Name:   r.FormValue("name"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/frames/"+result.FrameID, http.StatusSeeOther)
}

// HandleProject handles GET /projects/{id}.
func (h *Handlers) HandleProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	frames, err := ops.ListFrames(r.Context(), h.store, ops.ListFramesInput{ProjectID: id, Limit: ops.MaxListLimit})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	deps, err := ops.ListDeployments(r.Context(), h.store, ops.ListDeploymentsInput{ProjectID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.renderer.renderPage(w, "project", ProjectPageData{
		PageData:    h.renderer.page(p.Name),
		Project:     p,
		Frames:      frames.Items,
		Deployments: deps.Items,
	})
}

// HandleWorkspace handles GET /frames/{id}: transcript, preview and
// inspector of one frame.
func (h *Handlers) HandleWorkspace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	includeMarkup := false
	f, err := ops.FetchFrame(r.Context(), h.store, ops.FetchFrameInput{ID: id, IncludeMarkup: &includeMarkup})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	data := WorkspacePageData{
		PageData:   h.renderer.page("Frame " + displayID(f.ID)),
		Frame:      f,
		Chat:       renderChat(f.Messages),
		TextAligns: editor.TextAligns,
	}
	// The transcript of a live session may be ahead of the store.
	if s, ok := h.sessions.Get(id); ok {
		snap := s.Snapshot()
		data.Chat = renderChat(snap.Messages)
		data.Busy = s.Loading()
	}
	h.renderer.renderPage(w, "workspace", data)
}

// HandlePreview handles GET /frames/{id}/preview. The live document is
// served under the sandbox policy so it never shares the editor's origin.
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if err := s.Sync(r.Context()); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	doc, err := s.PreviewHTML()
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInternal(err))
		return
	}
	if doc == "" {
		doc = sandbox.WrapDocument(`<p style="font-family:sans-serif;color:#666;padding:2rem">Nothing generated yet.</p>`)
	}
	w.Header().Set("Content-Security-Policy", sandbox.ContentSecurityPolicy)
	w.Header().Set("X-Frame-Options", "SAMEORIGIN")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}

// session opens the editor session of the {id} route parameter.
func (h *Handlers) session(r *http.Request) (*editor.Session, error) {
	id := chi.URLParam(r, "id")
	if id == "" {
		return nil, errors.NewInvalidRequest("frame ID is required")
	}
	return h.sessions.Open(r.Context(), id)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// displayID shortens an ID for titles.
func displayID(id string) string {
	if len(id) > 10 {
		return id[:10] + "..."
	}
	return id
}
