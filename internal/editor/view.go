package editor

import (
	"context"

	apperrors "github.com/hpungsan/sitesmith/internal/errors"
	"github.com/hpungsan/sitesmith/internal/protocol"
)

// View is what the inspector panel shows for the current selection.
type View struct {
	FrameID string                `json:"frame_id"`
	Element *protocol.ElementData `json:"element"`
	Unsaved bool                  `json:"unsaved"`
	Label   string                `json:"save_label"`
	Image   *ImageState           `json:"image,omitempty"`
}

// View waits for pending edits to land and describes the selection.
func (s *Session) View(ctx context.Context) (*View, error) {
	if err := s.Sync(ctx); err != nil {
		return nil, err
	}
	in := s.inspector
	v := &View{
		FrameID: s.FrameID(),
		Element: s.Selected(),
		Unsaved: in.Unsaved(),
		Label:   in.Label(),
	}
	if img := in.Image(); img != nil {
		st := img.State()
		v.Image = &st
	}
	return v, nil
}

// RequireSelection fails unless an element is selected.
func (s *Session) RequireSelection() error {
	if s.Selected() == nil {
		return apperrors.NewInvalidRequest("no element selected")
	}
	return nil
}

// RequireImage returns the image controls of the selection, failing when
// the selection is not an IMG element.
func (s *Session) RequireImage() (*ImageControls, error) {
	if err := s.RequireSelection(); err != nil {
		return nil, err
	}
	img := s.inspector.Image()
	if img == nil {
		return nil, apperrors.NewInvalidRequest("selected element is not an image")
	}
	return img, nil
}

// Save persists the live document. Edits tracked by the inspector go
// through its save so the label cycles; anything else is saved directly.
func (s *Session) Save(ctx context.Context) error {
	if in := s.inspector; in.CanSave() {
		return in.Save(ctx).Err
	}
	_, err := s.SaveChanges(ctx)
	return err
}
