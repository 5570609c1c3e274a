package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/hpungsan/sitesmith/internal/editor"
	"github.com/hpungsan/sitesmith/internal/errors"
	"github.com/hpungsan/sitesmith/internal/ops"
)

// Request body limits.
const (
	maxJSONBody   = 1 << 20
	maxUploadBody = 10 << 20
)

// APIListProjects handles GET /api/projects.
func (h *Handlers) APIListProjects(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ListProjects(r.Context(), h.store, ops.ListProjectsInput{Limit: parseIntParam(r, "limit", 0)})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// APICreateProject handles POST /api/projects.
func (h *Handlers) APICreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
		Name   string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	result, err := ops.CreateProject(r.Context(), h.store, ops.CreateProjectInput{Prompt: req.Prompt, Name: req.Name})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusCreated, result)
}

// APIListFrames handles GET /api/projects/{id}/frames.
func (h *Handlers) APIListFrames(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ListFrames(r.Context(), h.store, ops.ListFramesInput{
		ProjectID: chi.URLParam(r, "id"),
		Limit:     parseIntParam(r, "limit", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// APIAddFrame handles POST /api/projects/{id}/frames.
func (h *Handlers) APIAddFrame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	result, err := ops.AddFrame(r.Context(), h.store, ops.AddFrameInput{ProjectID: chi.URLParam(r, "id"), Prompt: req.Prompt})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusCreated, result)
}

// APIListDeployments handles GET /api/deployments.
func (h *Handlers) APIListDeployments(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ListDeployments(r.Context(), h.store, ops.ListDeploymentsInput{
		ProjectID: r.URL.Query().Get("project_id"),
		Limit:     parseIntParam(r, "limit", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// APIFetchFrame handles GET /api/frames/{id}.
func (h *Handlers) APIFetchFrame(w http.ResponseWriter, r *http.Request) {
	input := ops.FetchFrameInput{ID: chi.URLParam(r, "id")}
	if v := r.URL.Query().Get("include_markup"); v == "false" || v == "0" {
		input.IncludeMarkup = new(bool)
	}
	result, err := ops.FetchFrame(r.Context(), h.store, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// APIGenerate handles POST /api/frames/{id}/generate. Code chunks stream as
// "code" events and the outcome arrives as a final "result" event. An empty
// prompt answers the unanswered first message of a new frame.
func (h *Handlers) APIGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	s, err := h.session(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	ev, err := newEventStream(w)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	onCode := func(chunk string) { ev.send("code", map[string]string{"chunk": chunk}) }
	var result *editor.GenerateResult
	if req.Prompt == "" {
		result, err = s.Resume(r.Context(), onCode)
		if err == nil && result == nil {
			err = errors.NewInvalidRequest("prompt is required; the frame has no unanswered message")
		}
	} else {
		result, err = s.Generate(r.Context(), req.Prompt, onCode)
	}
	if err != nil {
		if !ev.started() {
			h.renderer.renderError(w, r, err)
			return
		}
		ev.send("error", errorBody(err))
		return
	}
	ev.send("result", result)
}

// APIElement handles GET /api/frames/{id}/element.
func (h *Handlers) APIElement(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.renderView(w, r, s)
}

// APISelect handles POST /api/frames/{id}/select.
func (h *Handlers) APISelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if req.Target == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("target is required"))
		return
	}
	s, err := h.session(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if _, err := s.Select(r.Context(), req.Target); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.renderView(w, r, s)
}

// APIDeselect handles DELETE /api/frames/{id}/select.
func (h *Handlers) APIDeselect(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	s.Deselect()
	h.renderView(w, r, s)
}

// APIStyle handles POST /api/frames/{id}/style with a property to value map.
func (h *Handlers) APIStyle(w http.ResponseWriter, r *http.Request) {
	var styles map[string]string
	if err := decodeBody(r, &styles); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if len(styles) == 0 {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("styles must not be empty"))
		return
	}
	s, err := h.selected(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	props := make([]string, 0, len(styles))
	for p := range styles {
		props = append(props, p)
	}
	sort.Strings(props)
	for _, p := range props {
		s.Inspector().SetStyle(p, styles[p])
	}
	h.renderView(w, r, s)
}

// APIText handles POST /api/frames/{id}/text.
func (h *Handlers) APIText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	s, err := h.selected(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	s.Inspector().SetText(req.Text)
	h.renderView(w, r, s)
}

// APIAttribute handles POST /api/frames/{id}/attribute.
func (h *Handlers) APIAttribute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if req.Name == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("name is required"))
		return
	}
	s, err := h.selected(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	s.Inspector().SetAttribute(req.Name, req.Value)
	h.renderView(w, r, s)
}

// APIImage handles POST /api/frames/{id}/image.
func (h *Handlers) APIImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Toggle       []string `json:"toggle"`
		Width        *int     `json:"width"`
		Height       *int     `json:"height"`
		Alt          *string  `json:"alt"`
		BorderRadius *string  `json:"border_radius"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	transforms, err := editor.ParseTransforms(req.Toggle)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	s, img, err := h.image(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	err = img.Apply(editor.ImageEdit{
		Toggle:       transforms,
		Width:        req.Width,
		Height:       req.Height,
		Alt:          req.Alt,
		BorderRadius: req.BorderRadius,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.renderView(w, r, s)
}

// APIImageUpload handles POST /api/frames/{id}/image/upload with a
// multipart "file" field.
func (h *Handlers) APIImageUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("multipart field \"file\" is required"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest(fmt.Sprintf("read upload: %v", err)))
		return
	}

	s, img, err := h.image(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if _, err := img.Upload(r.Context(), data, header.Filename); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.renderView(w, r, s)
}

// APISave handles POST /api/frames/{id}/save.
func (h *Handlers) APISave(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if err := s.Save(r.Context()); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	snap := s.Snapshot()
	renderJSON(w, http.StatusOK, map[string]any{
		"frame_id":   s.FrameID(),
		"saved":      true,
		"save_label": s.Inspector().Label(),
		"summary":    ops.SummaryOf(&snap.Frame),
	})
}

// APIExport handles GET /api/frames/{id}/export?format=html|body|markdown
// and returns the saved markup as a download.
func (h *Handlers) APIExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = ops.FormatHTML
	}
	f, err := ops.FetchFrame(r.Context(), h.store, ops.FetchFrameInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if !f.HasMarkup() {
		h.renderer.renderError(w, r, errors.NewNoMarkup(id))
		return
	}
	content, err := ops.Render(*f.Markup, format)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	contentType, ext := "text/html; charset=utf-8", "html"
	if format == ops.FormatMarkdown {
		contentType, ext = "text/markdown; charset=utf-8", "md"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ops.SanitizeForFilename(id)+"."+ext))
	_, _ = io.WriteString(w, content)
}

// APIDeploy handles POST /api/frames/{id}/deploy.
func (h *Handlers) APIDeploy(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	d, err := s.Deploy(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, d)
}

func (h *Handlers) selected(r *http.Request) (*editor.Session, error) {
	s, err := h.session(r)
	if err != nil {
		return nil, err
	}
	if err := s.RequireSelection(); err != nil {
		return nil, err
	}
	return s, nil
}

func (h *Handlers) image(r *http.Request) (*editor.Session, *editor.ImageControls, error) {
	s, err := h.session(r)
	if err != nil {
		return nil, nil, err
	}
	img, err := s.RequireImage()
	if err != nil {
		return nil, nil, err
	}
	return s, img, nil
}

// renderView reports the inspector state once pending edits have landed.
func (h *Handlers) renderView(w http.ResponseWriter, r *http.Request, s *editor.Session) {
	v, err := s.View(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, v)
}

// decodeBody reads a JSON request body into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

func errorBody(err error) map[string]any {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.NewInternal(err)
	}
	return map[string]any{
		"code":    string(appErr.Code),
		"message": errors.UserMessage(appErr),
		"status":  appErr.Status,
	}
}

// eventStream writes server-sent events. Headers go out with the first
// event so a failure before any output can still use a plain error status.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu   sync.Mutex
	sent bool
}

func newEventStream(w http.ResponseWriter) (*eventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.NewInternal(fmt.Errorf("response writer does not support streaming"))
	}
	return &eventStream{w: w, flusher: flusher}, nil
}

func (e *eventStream) started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sent
}

func (e *eventStream) send(event string, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.sent {
		h := e.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Accel-Buffering", "no")
		e.w.WriteHeader(http.StatusOK)
		e.sent = true
	}
	fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, b)
	e.flusher.Flush()
}
