package ops

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpungsan/sitesmith/internal/config"
	"github.com/hpungsan/sitesmith/internal/errors"
	"github.com/hpungsan/sitesmith/internal/frame"
	"github.com/hpungsan/sitesmith/internal/sandbox"
	"github.com/hpungsan/sitesmith/internal/store"
)

// MaxImportBytes bounds the size of an imported page.
const MaxImportBytes = 2 << 20

// ImportInput contains parameters for the ImportFrame operation.
type ImportInput struct {
	Path      string // required, .html or .htm
	ProjectID string // optional; empty creates a project
	Name      string // optional project name, default: file name
}

// ImportOutput contains the result of the ImportFrame operation.
type ImportOutput struct {
	ProjectID   string `json:"project_id"`
	FrameID     string `json:"frame_id"`
	MarkupChars int    `json:"markup_chars"`
	ImportedAt  int64  `json:"imported_at"`
}

// ImportFrame reads an HTML page into a new frame. A complete document is
// reduced to its body markup without the preview libraries.
func ImportFrame(ctx context.Context, st store.Store, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if input.Path == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	if err := ValidatePath(input.Path, PathCheckRead, cfg, HTMLExtensions...); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, MaxImportBytes+1))
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to read import file: %w", err))
	}
	if len(raw) > MaxImportBytes {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("import file exceeds %d bytes", MaxImportBytes))
	}

	markup, err := sandbox.ExtractBody(string(raw))
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid HTML: %v", err))
	}
	if markup == "" {
		return nil, errors.NewInvalidRequest("import file has no body markup")
	}

	now := time.Now()
	projectID := strings.TrimSpace(input.ProjectID)
	if projectID == "" {
		name := strings.TrimSpace(input.Name)
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(input.Path), filepath.Ext(input.Path))
		}
		p := frame.Project{ID: frame.NewID(), Name: name, CreatedAt: now}
		if err := st.CreateProject(ctx, p); err != nil {
			return nil, err
		}
		projectID = p.ID
	}

	f := frame.Frame{ID: frame.NewID(), ProjectID: projectID, Markup: &markup, CreatedAt: now, UpdatedAt: now}
	if err := st.CreateFrame(ctx, f, nil); err != nil {
		return nil, err
	}
	return &ImportOutput{
		ProjectID:   projectID,
		FrameID:     f.ID,
		MarkupChars: len([]rune(markup)),
		ImportedAt:  now.Unix(),
	}, nil
}
