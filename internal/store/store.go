// Package store persists projects, frames, transcripts and deployments.
//
// Two backends implement Store: SQLite (the default, one file under the base
// directory) and Postgres (selected when a database URL is configured).
package store

import (
	"context"
	"encoding/json"

	apperrors "github.com/hpungsan/sitesmith/internal/errors"
	"github.com/hpungsan/sitesmith/internal/frame"
)

// DefaultListLimit caps list queries when the caller passes no limit.
const DefaultListLimit = 50

// MaxListLimit is the largest accepted list limit.
const MaxListLimit = 500

// Store is the persistence bridge used by the editor and the surfaces.
type Store interface {
	CreateProject(ctx context.Context, p frame.Project) error
	GetProject(ctx context.Context, id string) (*frame.Project, error)
	ListProjects(ctx context.Context, limit int) ([]frame.Project, error)

	// CreateFrame inserts f together with its initial transcript.
	CreateFrame(ctx context.Context, f frame.Frame, messages []frame.ChatMessage) error
	LoadFrame(ctx context.Context, id string) (*frame.Snapshot, error)
	ListFrames(ctx context.Context, projectID string, limit int) ([]frame.Frame, error)

	// SaveFrame replaces the transcript of frameID with messages and, when
	// markup is non-nil, replaces the frame markup. Both happen in one
	// transaction.
	SaveFrame(ctx context.Context, frameID string, messages []frame.ChatMessage, markup *string) error

	RecordDeployment(ctx context.Context, d frame.Deployment) error
	ListDeployments(ctx context.Context, projectID string, limit int) ([]frame.Deployment, error)

	Close() error
}

// clampLimit applies DefaultListLimit and MaxListLimit.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func encodeMessages(msgs []frame.ChatMessage) (string, error) {
	if msgs == nil {
		msgs = []frame.ChatMessage{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return "", apperrors.NewInternal(err)
	}
	return string(data), nil
}

func decodeMessages(raw string) ([]frame.ChatMessage, error) {
	if raw == "" {
		return []frame.ChatMessage{}, nil
	}
	var msgs []frame.ChatMessage
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return msgs, nil
}

func validateFrame(f frame.Frame) error {
	if f.ID == "" {
		return apperrors.NewInvalidRequest("frame id is required")
	}
	if f.ProjectID == "" {
		return apperrors.NewInvalidRequest("project id is required")
	}
	return nil
}
