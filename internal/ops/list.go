package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/sitesmith/internal/frame"
	"github.com/hpungsan/sitesmith/internal/store"
)

// ListFramesInput contains parameters for the ListFrames operation.
type ListFramesInput struct {
	ProjectID string // optional filter
	Limit     int    // default 20, max 100
}

// ListFramesOutput contains the result of the ListFrames operation.
type ListFramesOutput struct {
	Items []FrameSummary `json:"items"`
	Limit int            `json:"limit"`
}

// ListFrames returns frame summaries, most recently updated first.
func ListFrames(ctx context.Context, st store.Store, input ListFramesInput) (*ListFramesOutput, error) {
	limit := clampLimit(input.Limit)
	frames, err := st.ListFrames(ctx, strings.TrimSpace(input.ProjectID), limit)
	if err != nil {
		return nil, err
	}
	items := make([]FrameSummary, 0, len(frames))
	for i := range frames {
		items = append(items, SummaryOf(&frames[i]))
	}
	return &ListFramesOutput{Items: items, Limit: limit}, nil
}

// ListDeploymentsInput contains parameters for the ListDeployments operation.
type ListDeploymentsInput struct {
	ProjectID string // optional filter
	Limit     int
}

// ListDeploymentsOutput contains the result of the ListDeployments operation.
type ListDeploymentsOutput struct {
	Items []frame.Deployment `json:"items"`
	Limit int                `json:"limit"`
}

// ListDeployments returns recorded deployments, newest first.
func ListDeployments(ctx context.Context, st store.Store, input ListDeploymentsInput) (*ListDeploymentsOutput, error) {
	limit := clampLimit(input.Limit)
	deps, err := st.ListDeployments(ctx, strings.TrimSpace(input.ProjectID), limit)
	if err != nil {
		return nil, err
	}
	if deps == nil {
		deps = []frame.Deployment{}
	}
	return &ListDeploymentsOutput{Items: deps, Limit: limit}, nil
}
