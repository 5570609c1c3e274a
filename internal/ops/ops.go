// Package ops implements the project and frame operations shared by the
// CLI, MCP and web surfaces. Each operation takes an XxxInput and returns
// an XxxOutput so every surface reports the same shapes.
package ops

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hpungsan/sitesmith/internal/errors"
	"github.com/hpungsan/sitesmith/internal/frame"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// MaxProjectNameLen bounds project names derived from a prompt.
const MaxProjectNameLen = 60

// FrameSummary describes a frame without its markup or transcript.
type FrameSummary struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	HasMarkup   bool   `json:"has_markup"`
	MarkupChars int    `json:"markup_chars"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// SummaryOf builds a FrameSummary.
func SummaryOf(f *frame.Frame) FrameSummary {
	return FrameSummary{
		ID:          f.ID,
		ProjectID:   f.ProjectID,
		HasMarkup:   f.HasMarkup(),
		MarkupChars: utf8.RuneCountInString(f.MarkupOrEmpty()),
		CreatedAt:   unix(f.CreatedAt),
		UpdatedAt:   unix(f.UpdatedAt),
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func requireID(kind, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.NewInvalidRequest(kind + " id is required")
	}
	return id, nil
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// deriveName turns the first line of a prompt into a project name.
func deriveName(prompt string) string {
	line := strings.TrimSpace(strings.SplitN(prompt, "\n", 2)[0])
	if utf8.RuneCountInString(line) <= MaxProjectNameLen {
		return line
	}
	r := []rune(line)
	return strings.TrimSpace(string(r[:MaxProjectNameLen])) + "..."
}
