package editor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	apperrors "github.com/hpungsan/sitesmith/internal/errors"
	"github.com/hpungsan/sitesmith/internal/protocol"
)

// DefaultSaveCooldown is how long the inspector shows a completed save.
const DefaultSaveCooldown = 3 * time.Second

// Save button labels.
const (
	LabelNoChanges = "No Changes"
	LabelSave      = "Save Changes"
	LabelSaving    = "Saving..."
	LabelSaved     = "Changes Saved!"
)

// TextAligns are the accepted text-align values.
var TextAligns = []string{"left", "center", "right", "justify"}

// SaveResult is what the inspector reports after a save attempt.
type SaveResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Markup  string `json:"-"`
	Err     error  `json:"-"`
}

// Inspector turns control changes into protocol commands and tracks
// whether the selected element has unsaved edits.
type Inspector struct {
	session  *Session
	cooldown time.Duration
	clock    func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	locator string
	unsaved bool
	saving  bool
	savedAt time.Time
	image   *ImageControls
}

func newInspector(s *Session, cooldown time.Duration, clock func() time.Time, logger *slog.Logger) *Inspector {
	if cooldown <= 0 {
		cooldown = DefaultSaveCooldown
	}
	return &Inspector{session: s, cooldown: cooldown, clock: clock, logger: logger}
}

// onSelect rebinds the panel to a new selection. A different element
// discards the unsaved flag; the edits themselves stay in the document.
func (i *Inspector) onSelect(d *protocol.ElementData) {
	i.mu.Lock()
	defer i.mu.Unlock()

	locator := ""
	if d != nil {
		locator = d.XPath
	}
	if locator != i.locator {
		i.unsaved = false
		i.savedAt = time.Time{}
	}
	i.locator = locator

	if d != nil && d.TagName == "IMG" {
		if i.image == nil || i.image.locator != locator {
			i.image = newImageControls(i, d)
		}
		return
	}
	i.image = nil
}

// Image returns the image controls when an IMG element is selected.
func (i *Inspector) Image() *ImageControls {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.image
}

// Unsaved reports whether the selection has edits not yet saved.
func (i *Inspector) Unsaved() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.unsaved
}

func (i *Inspector) markUnsaved() {
	i.mu.Lock()
	i.unsaved = true
	i.mu.Unlock()
}

// SetStyle sends any style property. Edits with nothing selected are
// dropped.
func (i *Inspector) SetStyle(property, value string) {
	if i.session.UpdateStyle(property, value) {
		i.markUnsaved()
	}
}

// SetColor sets the text color.
func (i *Inspector) SetColor(v string) { i.SetStyle("color", v) }

// SetBackgroundColor sets the background color.
func (i *Inspector) SetBackgroundColor(v string) { i.SetStyle("backgroundColor", v) }

// SetFontSize sets the font size in pixels.
func (i *Inspector) SetFontSize(px int) error {
	if px <= 0 {
		return apperrors.NewInvalidRequest("font size must be positive")
	}
	i.SetStyle("fontSize", fmt.Sprintf("%dpx", px))
	return nil
}

// SetFontWeight sets the font weight.
func (i *Inspector) SetFontWeight(v string) { i.SetStyle("fontWeight", v) }

// SetFontFamily sets the font family.
func (i *Inspector) SetFontFamily(v string) { i.SetStyle("fontFamily", v) }

// SetTextAlign sets text alignment to one of TextAligns.
func (i *Inspector) SetTextAlign(v string) error {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, ok := range TextAligns {
		if v == ok {
			i.SetStyle("textAlign", v)
			return nil
		}
	}
	return apperrors.NewInvalidRequest(fmt.Sprintf("text align must be one of %s", strings.Join(TextAligns, ", ")))
}

// SetPadding sets the padding shorthand.
func (i *Inspector) SetPadding(v string) { i.SetStyle("padding", v) }

// SetMargin sets the margin shorthand.
func (i *Inspector) SetMargin(v string) { i.SetStyle("margin", v) }

// SetText replaces the direct text of the selection.
func (i *Inspector) SetText(v string) {
	if i.session.UpdateText(v) {
		i.markUnsaved()
	}
}

// SetAttribute sets an attribute on the selection.
func (i *Inspector) SetAttribute(name, value string) {
	if i.session.UpdateAttribute(name, value) {
		i.markUnsaved()
	}
}

// coolingDown reports whether a save completed within the cool-down.
// Caller holds mu.
func (i *Inspector) coolingDown() bool {
	return !i.savedAt.IsZero() && i.clock().Sub(i.savedAt) < i.cooldown
}

// CanSave reports whether the save action is enabled.
func (i *Inspector) CanSave() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.unsaved && !i.saving && !i.coolingDown()
}

// Label is the save button text.
func (i *Inspector) Label() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	switch {
	case i.saving:
		return LabelSaving
	case i.coolingDown():
		return LabelSaved
	case i.unsaved:
		return LabelSave
	default:
		return LabelNoChanges
	}
}

// Save runs the session save. Failures come back in the result; Save
// itself never fails.
func (i *Inspector) Save(ctx context.Context) (res SaveResult) {
	i.mu.Lock()
	if !(i.unsaved && !i.saving && !i.coolingDown()) {
		i.mu.Unlock()
		return SaveResult{Message: "nothing to save"}
	}
	i.saving = true
	i.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("save panicked", "panic", r)
			i.mu.Lock()
			i.saving = false
			i.mu.Unlock()
			err := apperrors.NewInternal(fmt.Errorf("save panicked: %v", r))
			res = SaveResult{Message: apperrors.UserMessage(err), Err: err}
		}
	}()

	markup, err := i.session.SaveChanges(ctx)

	i.mu.Lock()
	defer i.mu.Unlock()
	i.saving = false
	if err != nil {
		return SaveResult{Message: apperrors.UserMessage(err), Err: err}
	}
	i.unsaved = false
	i.savedAt = i.clock()
	return SaveResult{OK: true, Message: "Changes saved", Markup: markup}
}
