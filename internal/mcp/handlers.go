package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/sitesmith/internal/config"
	"github.com/hpungsan/sitesmith/internal/editor"
	"github.com/hpungsan/sitesmith/internal/errors"
	"github.com/hpungsan/sitesmith/internal/ops"
	"github.com/hpungsan/sitesmith/internal/store"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	store    store.Store
	sessions *editor.Registry
	cfg      *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(st store.Store, sessions *editor.Registry, cfg *config.Config) *Handlers {
	return &Handlers{store: st, sessions: sessions, cfg: cfg}
}

// Request types for each tool

// ProjectCreateRequest represents the arguments for project_create.
type ProjectCreateRequest struct {
	Prompt string `json:"prompt"`
	Name   string `json:"name,omitempty"`
}

// ListRequest represents the arguments for project_list, frame_list and
// frame_deployments.
type ListRequest struct {
	ProjectID string `json:"project_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// FrameFetchRequest represents the arguments for frame_fetch.
type FrameFetchRequest struct {
	ID            string `json:"id"`
	IncludeMarkup *bool  `json:"include_markup,omitempty"`
}

// FrameRequest represents the arguments of tools that only name a frame.
type FrameRequest struct {
	FrameID string `json:"frame_id"`
}

// FrameGenerateRequest represents the arguments for frame_generate.
type FrameGenerateRequest struct {
	FrameID string `json:"frame_id"`
	Prompt  string `json:"prompt,omitempty"`
}

// FrameExportRequest represents the arguments for frame_export.
type FrameExportRequest struct {
	FrameID string `json:"frame_id"`
	Format  string `json:"format,omitempty"`
	Path    string `json:"path,omitempty"`
}

// FrameImportRequest represents the arguments for frame_import.
type FrameImportRequest struct {
	Path      string `json:"path"`
	ProjectID string `json:"project_id,omitempty"`
	Name      string `json:"name,omitempty"`
}

// ElementSelectRequest represents the arguments for element_select.
type ElementSelectRequest struct {
	FrameID string `json:"frame_id"`
	Target  string `json:"target"`
}

// ElementStyleRequest represents the arguments for element_style.
type ElementStyleRequest struct {
	FrameID string            `json:"frame_id"`
	Styles  map[string]string `json:"styles"`
}

// ElementTextRequest represents the arguments for element_text.
type ElementTextRequest struct {
	FrameID string `json:"frame_id"`
	Text    string `json:"text"`
}

// ElementAttributeRequest represents the arguments for element_attribute.
type ElementAttributeRequest struct {
	FrameID string `json:"frame_id"`
	Name    string `json:"name"`
	Value   string `json:"value"`
}

// ImageTransformRequest represents the arguments for image_transform.
type ImageTransformRequest struct {
	FrameID      string   `json:"frame_id"`
	Toggle       []string `json:"toggle,omitempty"`
	Width        *int     `json:"width,omitempty"`
	Height       *int     `json:"height,omitempty"`
	Alt          *string  `json:"alt,omitempty"`
	BorderRadius *string  `json:"border_radius,omitempty"`
}

// ImageUploadRequest represents the arguments for image_upload.
type ImageUploadRequest struct {
	FrameID  string `json:"frame_id"`
	Data     string `json:"data"`
	FileName string `json:"file_name"`
}

// Handler implementations

// HandleProjectCreate handles the project_create tool call.
func (h *Handlers) HandleProjectCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectCreateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.CreateProject(ctx, h.store, ops.CreateProjectInput{Prompt: input.Prompt, Name: input.Name})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleProjectList handles the project_list tool call.
func (h *Handlers) HandleProjectList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.ListProjects(ctx, h.store, ops.ListProjectsInput{Limit: input.Limit})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFrameFetch handles the frame_fetch tool call.
func (h *Handlers) HandleFrameFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FrameFetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.FetchFrame(ctx, h.store, ops.FetchFrameInput{ID: input.ID, IncludeMarkup: input.IncludeMarkup})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFrameList handles the frame_list tool call.
func (h *Handlers) HandleFrameList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.ListFrames(ctx, h.store, ops.ListFramesInput{ProjectID: input.ProjectID, Limit: input.Limit})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFrameGenerate handles the frame_generate tool call.
func (h *Handlers) HandleFrameGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FrameGenerateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	s, err := h.session(ctx, input.FrameID)
	if err != nil {
		return errorResult(err), nil
	}

	var result *editor.GenerateResult
	if input.Prompt == "" {
		result, err = s.Resume(ctx, nil)
		if err == nil && result == nil {
			err = errors.NewInvalidRequest("prompt is required; the frame has no unanswered message")
		}
	} else {
		result, err = s.Generate(ctx, input.Prompt, nil)
	}
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFramePreview handles the frame_preview tool call.
func (h *Handlers) HandleFramePreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FrameRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	s, err := h.session(ctx, input.FrameID)
	if err != nil {
		return errorResult(err), nil
	}
	if err := s.Sync(ctx); err != nil {
		return errorResult(err), nil
	}
	doc, err := s.PreviewHTML()
	if err != nil {
		return errorResult(errors.NewInternal(err)), nil
	}
	if doc == "" {
		return errorResult(errors.NewNoMarkup(input.FrameID)), nil
	}
	return successResult(map[string]any{"frame_id": input.FrameID, "html": doc})
}

// HandleFrameSave handles the frame_save tool call.
func (h *Handlers) HandleFrameSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FrameRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	s, err := h.session(ctx, input.FrameID)
	if err != nil {
		return errorResult(err), nil
	}
	if err := s.Save(ctx); err != nil {
		return errorResult(err), nil
	}
	snap := s.Snapshot()
	return successResult(map[string]any{
		"frame_id": input.FrameID,
		"saved":    true,
		"summary":  ops.SummaryOf(&snap.Frame),
	})
}

// HandleFrameExport handles the frame_export tool call.
func (h *Handlers) HandleFrameExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FrameExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.ExportFrame(ctx, h.store, h.cfg, ops.ExportInput{
		FrameID: input.FrameID,
		Format:  input.Format,
		Path:    input.Path,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFrameImport handles the frame_import tool call.
func (h *Handlers) HandleFrameImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FrameImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.ImportFrame(ctx, h.store, h.cfg, ops.ImportInput{
		Path:      input.Path,
		ProjectID: input.ProjectID,
		Name:      input.Name,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFrameDeploy handles the frame_deploy tool call.
func (h *Handlers) HandleFrameDeploy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FrameRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	s, err := h.session(ctx, input.FrameID)
	if err != nil {
		return errorResult(err), nil
	}
	d, err := s.Deploy(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(d)
}

// HandleFrameDeployments handles the frame_deployments tool call.
func (h *Handlers) HandleFrameDeployments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.ListDeployments(ctx, h.store, ops.ListDeploymentsInput{ProjectID: input.ProjectID, Limit: input.Limit})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleElementSelect handles the element_select tool call.
func (h *Handlers) HandleElementSelect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ElementSelectRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Target == "" {
		return errorResult(errors.NewInvalidRequest("target is required")), nil
	}
	s, err := h.session(ctx, input.FrameID)
	if err != nil {
		return errorResult(err), nil
	}
	if _, err := s.Select(ctx, input.Target); err != nil {
		return errorResult(err), nil
	}
	return h.elementResult(ctx, s)
}

// HandleElementDeselect handles the element_deselect tool call.
func (h *Handlers) HandleElementDeselect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FrameRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	s, err := h.session(ctx, input.FrameID)
	if err != nil {
		return errorResult(err), nil
	}
	s.Deselect()
	return h.elementResult(ctx, s)
}

// HandleElementStyle handles the element_style tool call.
func (h *Handlers) HandleElementStyle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ElementStyleRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if len(input.Styles) == 0 {
		return errorResult(errors.NewInvalidRequest("styles must not be empty")), nil
	}
	s, err := h.selectedSession(ctx, input.FrameID)
	if err != nil {
		return errorResult(err), nil
	}
	props := make([]string, 0, len(input.Styles))
	for p := range input.Styles {
		props = append(props, p)
	}
	sort.Strings(props)
	for _, p := range props {
		s.Inspector().SetStyle(p, input.Styles[p])
	}
	return h.elementResult(ctx, s)
}

// HandleElementText handles the element_text tool call.
func (h *Handlers) HandleElementText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ElementTextRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	s, err := h.selectedSession(ctx, input.FrameID)
	if err != nil {
		return errorResult(err), nil
	}
	s.Inspector().SetText(input.Text)
	return h.elementResult(ctx, s)
}

// HandleElementAttribute handles the element_attribute tool call.
func (h *Handlers) HandleElementAttribute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ElementAttributeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Name == "" {
		return errorResult(errors.NewInvalidRequest("name is required")), nil
	}
	s, err := h.selectedSession(ctx, input.FrameID)
	if err != nil {
		return errorResult(err), nil
	}
	s.Inspector().SetAttribute(input.Name, input.Value)
	return h.elementResult(ctx, s)
}

// HandleImageTransform handles the image_transform tool call.
func (h *Handlers) HandleImageTransform(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImageTransformRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	transforms, err := editor.ParseTransforms(input.Toggle)
	if err != nil {
		return errorResult(err), nil
	}
	s, img, err := h.imageControls(ctx, input.FrameID)
	if err != nil {
		return errorResult(err), nil
	}
	err = img.Apply(editor.ImageEdit{
		Toggle:       transforms,
		Width:        input.Width,
		Height:       input.Height,
		Alt:          input.Alt,
		BorderRadius: input.BorderRadius,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return h.elementResult(ctx, s)
}

// HandleImageUpload handles the image_upload tool call.
func (h *Handlers) HandleImageUpload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImageUploadRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	data, err := base64.StdEncoding.DecodeString(input.Data)
	if err != nil {
		return errorResult(errors.NewInvalidRequest("data must be base64 encoded")), nil
	}
	s, img, err := h.imageControls(ctx, input.FrameID)
	if err != nil {
		return errorResult(err), nil
	}
	if _, err := img.Upload(ctx, data, input.FileName); err != nil {
		return errorResult(err), nil
	}
	return h.elementResult(ctx, s)
}

// Helper functions

func (h *Handlers) session(ctx context.Context, frameID string) (*editor.Session, error) {
	if frameID == "" {
		return nil, errors.NewInvalidRequest("frame_id is required")
	}
	return h.sessions.Open(ctx, frameID)
}

// selectedSession returns the session of frameID when it has a selection.
func (h *Handlers) selectedSession(ctx context.Context, frameID string) (*editor.Session, error) {
	s, err := h.session(ctx, frameID)
	if err != nil {
		return nil, err
	}
	if err := s.RequireSelection(); err != nil {
		return nil, errors.NewInvalidRequest("no element selected; call element_select first")
	}
	return s, nil
}

func (h *Handlers) imageControls(ctx context.Context, frameID string) (*editor.Session, *editor.ImageControls, error) {
	s, err := h.selectedSession(ctx, frameID)
	if err != nil {
		return nil, nil, err
	}
	img, err := s.RequireImage()
	if err != nil {
		return nil, nil, err
	}
	return s, img, nil
}

// elementResult waits for pending edits and reports the selection.
func (h *Handlers) elementResult(ctx context.Context, s *editor.Session) (*mcp.CallToolResult, error) {
	v, err := s.View(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(v)
}

// errorResult creates an MCP error result. Details of internal errors are
// dropped so paths and SQL never reach the client.
func errorResult(err error) *mcp.CallToolResult {
	var errorObj map[string]any
	if appErr, ok := errors.As(err); ok {
		errorObj = map[string]any{
			"code":    appErr.Code,
			"message": err.Error(),
			"status":  appErr.Status,
		}
		if appErr.Code == errors.ErrInternal {
			errorObj["message"] = errors.UserMessage(err)
		} else if appErr.Details != nil {
			errorObj["details"] = appErr.Details
		}
	} else {
		errorObj = map[string]any{
			"code":    "INTERNAL",
			"message": "an internal error occurred",
			"status":  500,
		}
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
