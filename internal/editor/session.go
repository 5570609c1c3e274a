// Package editor owns one live editing session per frame: the generation
// loop, the sandboxed preview, the selection state and the save path.
package editor

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hpungsan/sitesmith/internal/deploy"
	apperrors "github.com/hpungsan/sitesmith/internal/errors"
	"github.com/hpungsan/sitesmith/internal/frame"
	"github.com/hpungsan/sitesmith/internal/imagekit"
	"github.com/hpungsan/sitesmith/internal/llm"
	"github.com/hpungsan/sitesmith/internal/protocol"
	"github.com/hpungsan/sitesmith/internal/sandbox"
	"github.com/hpungsan/sitesmith/internal/stream"
)

// EditState is the host-side selection state.
type EditState int

const (
	StateInert    EditState = iota // edit mode off
	StateArmed                     // edit mode on, nothing selected
	StateSelected                  // edit mode on, one element selected
)

func (s EditState) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateSelected:
		return "selected"
	default:
		return "inert"
	}
}

// Bridge is the persistence the session writes through.
type Bridge interface {
	SaveFrame(ctx context.Context, frameID string, messages []frame.ChatMessage, markup *string) error
	RecordDeployment(ctx context.Context, d frame.Deployment) error
}

// SessionDeps are the collaborators of a Session. Only Bridge and
// Generator are required.
type SessionDeps struct {
	Bridge       Bridge
	Generator    llm.Generator
	Images       imagekit.Uploader
	Deployer     deploy.Deployer
	Logger       *slog.Logger
	Clock        func() time.Time
	SaveCooldown time.Duration
	Fences       stream.Fences
}

// GenerateResult is the outcome of one prompt.
type GenerateResult struct {
	Kind  string `json:"kind"` // conversational, document or failed
	Reply string `json:"reply"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// Result kinds.
const (
	KindConversational = "conversational"
	KindDocument       = "document"
	KindFailed         = "failed"
)

// Session is the editing session of one frame.
type Session struct {
	deps   SessionDeps
	logger *slog.Logger

	mu       sync.Mutex
	frame    frame.Frame
	messages []frame.ChatMessage
	loading  bool
	editMode bool
	selected *protocol.ElementData

	sandbox   *sandbox.Sandbox
	toSandbox *protocol.Port
	toHost    *protocol.Port
	inspector *Inspector
}

// NewSession opens a session on snap and renders its markup.
func NewSession(deps SessionDeps, snap *frame.Snapshot) (*Session, error) {
	if snap == nil {
		return nil, apperrors.NewInvalidRequest("snapshot is required")
	}
	if deps.Bridge == nil || deps.Generator == nil {
		return nil, apperrors.NewInvalidRequest("bridge and generator are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	s := &Session{
		deps:     deps,
		logger:   deps.Logger.With("frame_id", snap.Frame.ID),
		frame:    snap.Frame,
		messages: frame.CloneMessages(snap.Messages),
	}
	if s.messages == nil {
		s.messages = []frame.ChatMessage{}
	}

	s.toHost = protocol.NewPort("sandbox->host", s.onSandboxMessage, s.logger)
	s.sandbox = sandbox.New(s.toHost.Post, s.logger)
	s.toSandbox = protocol.NewPort("host->sandbox", s.sandbox.Receive, s.logger)
	s.inspector = newInspector(s, deps.SaveCooldown, deps.Clock, s.logger)

	if snap.Frame.HasMarkup() {
		if err := s.sandbox.Load(*snap.Frame.Markup); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close stops both ports and waits for queued deliveries.
func (s *Session) Close() {
	s.toSandbox.Close()
	s.toHost.Close()
	<-s.toSandbox.Done()
	<-s.toHost.Done()
}

// FrameID returns the frame under edit.
func (s *Session) FrameID() string {
	return s.frame.ID
}

// Snapshot returns a copy of the working frame and transcript.
func (s *Session) Snapshot() frame.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.frame
	if f.Markup != nil {
		m := *f.Markup
		f.Markup = &m
	}
	return frame.Snapshot{Frame: f, Messages: frame.CloneMessages(s.messages)}
}

// Loading reports whether a generation is in flight.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Inspector returns the session's inspector panel.
func (s *Session) Inspector() *Inspector {
	return s.inspector
}

// PreviewHTML serializes the live sandbox document.
func (s *Session) PreviewHTML() (string, error) {
	return s.sandbox.DocumentHTML()
}

// Generate sends prompt to the generation service and folds the reply
// into the frame. A second call while one is in flight fails with BUSY.
// Chunks of generated code are passed to onCode as they arrive.
func (s *Session) Generate(ctx context.Context, prompt string, onCode func(string)) (*GenerateResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, apperrors.NewInvalidRequest("prompt is required")
	}
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	s.mu.Lock()
	s.messages = append(s.messages, frame.ChatMessage{Role: frame.RoleUser, Content: prompt})
	s.mu.Unlock()

	return s.run(ctx, prompt, onCode), nil
}

// Resume answers the first user message of a frame that has never been
// replied to. It returns nil when there is nothing to resume.
func (s *Session) Resume(ctx context.Context, onCode func(string)) (*GenerateResult, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	s.mu.Lock()
	snap := frame.Snapshot{Messages: s.messages}
	needs := snap.NeedsReply()
	var prompt string
	if needs {
		prompt = s.messages[0].Content
	}
	s.mu.Unlock()

	if !needs {
		return nil, nil
	}
	return s.run(ctx, prompt, onCode), nil
}

func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return apperrors.NewBusy(s.frame.ID)
	}
	s.loading = true
	return nil
}

func (s *Session) end() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

// run streams one reply. The user message is already in the transcript.
func (s *Session) run(ctx context.Context, prompt string, onCode func(string)) *GenerateResult {
	c := stream.New(s.deps.Fences).WithLogger(s.logger)
	emit := func(e stream.Emission) {
		if e != "" && onCode != nil {
			onCode(string(e))
		}
	}

	err := s.deps.Generator.Stream(ctx, llm.BuildMessages(prompt), func(chunk string) {
		emit(c.Feed(chunk))
	})
	if err != nil {
		s.logger.Error("generation failed", "error", err)
		s.mu.Lock()
		s.messages = append(s.messages, frame.ChatMessage{Role: frame.RoleAssistant, Content: frame.ApologyReply})
		s.mu.Unlock()
		return &GenerateResult{Kind: KindFailed, Reply: frame.ApologyReply, Error: apperrors.UserMessage(err)}
	}

	emit(c.Flush())
	res := c.Finish()

	if res.Kind == stream.KindConversational {
		s.mu.Lock()
		s.messages = append(s.messages, frame.ChatMessage{Role: frame.RoleAssistant, Content: res.Text})
		msgs := frame.CloneMessages(s.messages)
		s.mu.Unlock()

		s.persist(ctx, msgs, nil)
		return &GenerateResult{Kind: KindConversational, Reply: res.Text}
	}

	code := res.Code
	if err := s.sandbox.Load(code); err != nil {
		s.logger.Error("render generated markup", "error", err)
	}
	// Reports posted against the old document are delivered before the
	// selection is cleared, so none of them can survive the reload.
	if err := s.toHost.Flush(ctx); err != nil {
		s.logger.Warn("flush selection reports", "error", err)
	}

	s.mu.Lock()
	s.frame.Markup = &code
	s.frame.UpdatedAt = s.deps.Clock()
	s.selected = nil
	s.messages = append(s.messages, frame.ChatMessage{Role: frame.RoleAssistant, Content: frame.CodeReadyReply})
	msgs := frame.CloneMessages(s.messages)
	s.mu.Unlock()
	s.inspector.onSelect(nil)

	s.persist(ctx, msgs, &code)
	return &GenerateResult{Kind: KindDocument, Reply: frame.CodeReadyReply, Code: code}
}

// persist saves after a generation. Failures are logged only; the working
// copy stays valid for a later save.
func (s *Session) persist(ctx context.Context, msgs []frame.ChatMessage, markup *string) {
	if err := s.deps.Bridge.SaveFrame(ctx, s.frame.ID, msgs, markup); err != nil {
		s.logger.Error("save frame after generation", "error", err)
	}
}

// SetEditMode turns the selection layer on or off. Turning it off drops
// the selection.
func (s *Session) SetEditMode(on bool) {
	s.mu.Lock()
	if s.editMode == on {
		s.mu.Unlock()
		return
	}
	s.editMode = on
	if !on {
		s.selected = nil
	}
	s.mu.Unlock()

	if on {
		s.sandbox.Attach()
	} else {
		s.sandbox.Detach()
		s.inspector.onSelect(nil)
	}
	s.logger.Debug("edit mode changed", "on", on)
}

// State returns the host-side selection state.
func (s *Session) State() EditState {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case !s.editMode:
		return StateInert
	case s.selected == nil:
		return StateArmed
	default:
		return StateSelected
	}
}

// Selected returns a copy of the selected element, or nil.
func (s *Session) Selected() *protocol.ElementData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected.Clone()
}

// Pointer forwards simulated pointer input into the sandbox. Input is
// ignored while edit mode is off.
func (s *Session) Pointer(ev sandbox.Pointer, target string) error {
	s.mu.Lock()
	on := s.editMode
	s.mu.Unlock()
	if !on {
		return nil
	}
	return s.sandbox.Pointer(ev, target)
}

// Select turns edit mode on, clicks the element addressed by target and
// waits for its report. Surfaces without a real pointer use it to pick
// elements by CSS selector or locator.
func (s *Session) Select(ctx context.Context, target string) (*protocol.ElementData, error) {
	s.mu.Lock()
	hasMarkup := s.frame.HasMarkup()
	id := s.frame.ID
	s.mu.Unlock()
	if !hasMarkup {
		return nil, apperrors.NewNoMarkup(id)
	}

	s.SetEditMode(true)
	if err := s.toSandbox.Flush(ctx); err != nil {
		return nil, err
	}
	if err := s.Pointer(sandbox.Click, target); err != nil {
		return nil, err
	}
	if err := s.toHost.Flush(ctx); err != nil {
		return nil, err
	}
	sel := s.Selected()
	if sel == nil {
		return nil, apperrors.NewNotFound("element", target)
	}
	return sel, nil
}

// Deselect clears the selection on both sides.
func (s *Session) Deselect() {
	s.mu.Lock()
	had := s.selected != nil
	s.selected = nil
	s.mu.Unlock()
	if !had {
		return
	}
	s.toSandbox.Post(protocol.Deselect())
	s.inspector.onSelect(nil)
}

// UpdateStyle mirrors a style edit into the selected copy and sends it.
// It reports false when nothing is selected and the edit was dropped.
func (s *Session) UpdateStyle(property, value string) bool {
	s.mu.Lock()
	if s.selected == nil {
		s.mu.Unlock()
		return false
	}
	s.selected.Styles.Set(property, value)
	s.mu.Unlock()
	s.toSandbox.Post(protocol.UpdateStyle(property, value))
	return true
}

// UpdateText mirrors a text edit into the selected copy and sends it.
func (s *Session) UpdateText(text string) bool {
	s.mu.Lock()
	if s.selected == nil {
		s.mu.Unlock()
		return false
	}
	s.selected.TextContent = text
	s.mu.Unlock()
	s.toSandbox.Post(protocol.UpdateText(text))
	return true
}

// UpdateAttribute mirrors an attribute edit into the selected copy and
// sends it.
func (s *Session) UpdateAttribute(attribute, value string) bool {
	s.mu.Lock()
	if s.selected == nil {
		s.mu.Unlock()
		return false
	}
	if s.selected.Attributes == nil {
		s.selected.Attributes = map[string]string{}
	}
	s.selected.Attributes[attribute] = value
	s.mu.Unlock()
	s.toSandbox.Post(protocol.UpdateAttribute(attribute, value))
	return true
}

// Sync waits until every command sent so far reached the sandbox and every
// report the sandbox produced reached the host.
func (s *Session) Sync(ctx context.Context) error {
	if err := s.toSandbox.Flush(ctx); err != nil {
		return err
	}
	return s.toHost.Flush(ctx)
}

// SaveChanges reads the live document back from the sandbox, strips
// editor markers and saves it as the frame markup. The working copy is
// swapped only after the read-back succeeded.
func (s *Session) SaveChanges(ctx context.Context) (string, error) {
	s.mu.Lock()
	hasMarkup := s.frame.HasMarkup()
	s.mu.Unlock()
	if !hasMarkup {
		return "", apperrors.NewNoMarkup(s.frame.ID)
	}
	if err := s.toSandbox.Flush(ctx); err != nil {
		return "", err
	}
	body, err := s.sandbox.BodyHTML()
	if err != nil {
		return "", apperrors.NewInternal(err)
	}
	clean, err := sandbox.StripEditorMarkers(body)
	if err != nil {
		return "", apperrors.NewInternal(err)
	}
	clean = strings.TrimSpace(clean)

	s.mu.Lock()
	s.frame.Markup = &clean
	s.frame.UpdatedAt = s.deps.Clock()
	msgs := frame.CloneMessages(s.messages)
	s.mu.Unlock()

	if err := s.deps.Bridge.SaveFrame(ctx, s.frame.ID, msgs, &clean); err != nil {
		s.logger.Error("save changes", "error", err)
		return clean, err
	}
	s.logger.Info("changes saved", "bytes", len(clean))
	return clean, nil
}

// Deploy publishes the working markup and records the deployment.
func (s *Session) Deploy(ctx context.Context) (*frame.Deployment, error) {
	s.mu.Lock()
	f := s.frame
	s.mu.Unlock()

	if !f.HasMarkup() {
		return nil, apperrors.NewNoMarkup(f.ID)
	}
	if s.deps.Deployer == nil {
		return nil, apperrors.NewNotConfigured("vercel_token")
	}

	res, err := s.deps.Deployer.Deploy(ctx, deploy.Request{ProjectID: f.ProjectID, Markup: *f.Markup})
	if err != nil {
		if _, ok := apperrors.As(err); !ok {
			err = apperrors.NewUpstream("vercel", err.Error())
		}
		return nil, err
	}

	d := frame.Deployment{
		SiteID:       res.SiteID,
		ProjectID:    f.ProjectID,
		FrameID:      f.ID,
		URL:          res.URL,
		DeploymentID: res.DeploymentID,
		Status:       res.Status,
		Platform:     deploy.Platform,
		CreatedAt:    s.deps.Clock(),
	}
	if err := s.deps.Bridge.RecordDeployment(ctx, d); err != nil {
		s.logger.Error("record deployment", "error", err)
	}
	s.logger.Info("frame deployed", "url", d.URL)
	return &d, nil
}

// onSandboxMessage handles reports arriving from the sandbox.
func (s *Session) onSandboxMessage(m protocol.Message) {
	if m.Type != protocol.TypeElementSelected {
		s.logger.Debug("host ignoring message", "type", m.Type)
		return
	}
	if !m.Data.Valid() {
		s.logger.Debug("dropping malformed selection report")
		return
	}

	s.mu.Lock()
	if !s.editMode {
		s.mu.Unlock()
		return
	}
	s.selected = m.Data.Clone()
	data := s.selected.Clone()
	s.mu.Unlock()

	s.inspector.onSelect(data)
}
