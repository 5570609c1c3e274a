package ops

import (
	"context"
	"strings"
	"time"

	"github.com/hpungsan/sitesmith/internal/errors"
	"github.com/hpungsan/sitesmith/internal/frame"
	"github.com/hpungsan/sitesmith/internal/store"
)

// CreateProjectInput contains parameters for the CreateProject operation.
type CreateProjectInput struct {
	Prompt string // required; becomes the first user message
	Name   string // optional, default: first line of Prompt
}

// CreateProjectOutput contains the result of the CreateProject operation.
type CreateProjectOutput struct {
	ProjectID string `json:"project_id"`
	FrameID   string `json:"frame_id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
}

// CreateProject creates a project with one frame whose transcript holds the
// prompt as an unanswered user message. The first generation runs when an
// editor session resumes the frame.
func CreateProject(ctx context.Context, st store.Store, input CreateProjectInput) (*CreateProjectOutput, error) {
	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" {
		return nil, errors.NewInvalidRequest("prompt is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = deriveName(prompt)
	}

	now := time.Now()
	p := frame.Project{ID: frame.NewID(), Name: name, CreatedAt: now}
	if err := st.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	f := frame.Frame{ID: frame.NewID(), ProjectID: p.ID, CreatedAt: now, UpdatedAt: now}
	msgs := []frame.ChatMessage{{Role: frame.RoleUser, Content: prompt}}
	if err := st.CreateFrame(ctx, f, msgs); err != nil {
		return nil, err
	}

	return &CreateProjectOutput{
		ProjectID: p.ID,
		FrameID:   f.ID,
		Name:      p.Name,
		CreatedAt: now.Unix(),
	}, nil
}

// AddFrameInput contains parameters for the AddFrame operation.
type AddFrameInput struct {
	ProjectID string
	Prompt    string // optional first user message
}

// AddFrameOutput contains the result of the AddFrame operation.
type AddFrameOutput struct {
	FrameID   string `json:"frame_id"`
	ProjectID string `json:"project_id"`
}

// AddFrame adds an empty frame to an existing project.
func AddFrame(ctx context.Context, st store.Store, input AddFrameInput) (*AddFrameOutput, error) {
	projectID, err := requireID("project", input.ProjectID)
	if err != nil {
		return nil, err
	}
	if _, err := st.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	now := time.Now()
	f := frame.Frame{ID: frame.NewID(), ProjectID: projectID, CreatedAt: now, UpdatedAt: now}
	var msgs []frame.ChatMessage
	if prompt := strings.TrimSpace(input.Prompt); prompt != "" {
		msgs = append(msgs, frame.ChatMessage{Role: frame.RoleUser, Content: prompt})
	}
	if err := st.CreateFrame(ctx, f, msgs); err != nil {
		return nil, err
	}
	return &AddFrameOutput{FrameID: f.ID, ProjectID: projectID}, nil
}

// ProjectSummary is one item of ListProjects.
type ProjectSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
}

// ListProjectsInput contains parameters for the ListProjects operation.
type ListProjectsInput struct {
	Limit int // default 20, max 100
}

// ListProjectsOutput contains the result of the ListProjects operation.
type ListProjectsOutput struct {
	Items []ProjectSummary `json:"items"`
	Limit int              `json:"limit"`
}

// ListProjects returns projects, newest first.
func ListProjects(ctx context.Context, st store.Store, input ListProjectsInput) (*ListProjectsOutput, error) {
	limit := clampLimit(input.Limit)
	projects, err := st.ListProjects(ctx, limit)
	if err != nil {
		return nil, err
	}
	items := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		items = append(items, ProjectSummary{ID: p.ID, Name: p.Name, CreatedAt: unix(p.CreatedAt)})
	}
	return &ListProjectsOutput{Items: items, Limit: limit}, nil
}
