// Package frame holds the domain types shared by the editor, the store and
// the surfaces. It performs no I/O.
package frame

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system" // sent to the generation service only, never persisted
)

// Fixed assistant replies.
const (
	CodeReadyReply = "Your Code Is Ready!"
	ApologyReply   = "Sorry, there was an error processing your request."
)

// Project groups the frames of one website.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Frame is a single page under edit. Markup is nil until the first
// generation completes and is always replaced as a whole document.
type Frame struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Markup    *string   `json:"markup,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasMarkup reports whether a generation has produced a document.
func (f Frame) HasMarkup() bool {
	return f.Markup != nil && *f.Markup != ""
}

// MarkupOrEmpty returns the markup, or "" when none has been generated.
func (f Frame) MarkupOrEmpty() string {
	if f.Markup == nil {
		return ""
	}
	return *f.Markup
}

// ChatMessage is one entry of a frame transcript.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Snapshot is a frame together with its transcript, in conversation order.
type Snapshot struct {
	Frame    Frame         `json:"frame"`
	Messages []ChatMessage `json:"messages"`
}

// NeedsReply reports whether the transcript holds a user message that was
// never answered, which happens for a freshly created frame.
func (s *Snapshot) NeedsReply() bool {
	if len(s.Messages) == 0 {
		return false
	}
	for _, m := range s.Messages {
		if m.Role == RoleAssistant {
			return false
		}
	}
	return s.Messages[0].Role == RoleUser
}

// Deployment records one publish of a frame.
type Deployment struct {
	SiteID       string    `json:"site_id"`
	ProjectID    string    `json:"project_id"`
	FrameID      string    `json:"frame_id"`
	URL          string    `json:"url"`
	DeploymentID string    `json:"deployment_id"`
	Status       string    `json:"status"`
	Platform     string    `json:"platform"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewID returns a new ULID string for projects and frames.
func NewID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// CloneMessages returns a copy of msgs that shares no backing array.
func CloneMessages(msgs []ChatMessage) []ChatMessage {
	if msgs == nil {
		return nil
	}
	out := make([]ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}
