package editor

import (
	"context"
	"strconv"
	"strings"
	"sync"

	apperrors "github.com/hpungsan/sitesmith/internal/errors"
	"github.com/hpungsan/sitesmith/internal/imagekit"
	"github.com/hpungsan/sitesmith/internal/protocol"
)

// Image control defaults.
const (
	DefaultImageWidth   = 300
	DefaultImageHeight  = 200
	DefaultBorderRadius = "0px"
)

// ImageState is a snapshot of the image controls.
type ImageState struct {
	BaseURL      string               `json:"base_url"`
	URL          string               `json:"url"`
	Alt          string               `json:"alt"`
	Width        int                  `json:"width"`
	Height       int                  `json:"height"`
	BorderRadius string               `json:"border_radius"`
	Transforms   []imagekit.Transform `json:"transforms"`
}

// ImageControls edit the selected IMG element. Every change recomputes
// the derived src from the base URL, the active transforms and the size.
type ImageControls struct {
	inspector *Inspector
	locator   string

	mu           sync.Mutex
	base         string
	src          string
	alt          string
	width        int
	height       int
	borderRadius string
	transforms   imagekit.TransformSet
}

func newImageControls(i *Inspector, d *protocol.ElementData) *ImageControls {
	src := d.Attributes["src"]
	c := &ImageControls{
		inspector:    i,
		locator:      d.XPath,
		base:         imagekit.StripTransforms(src),
		src:          src,
		alt:          d.Attributes["alt"],
		width:        DefaultImageWidth,
		height:       DefaultImageHeight,
		borderRadius: DefaultBorderRadius,
		transforms:   imagekit.NewTransformSet(),
	}
	if w, err := strconv.Atoi(d.Attributes["width"]); err == nil && w > 0 {
		c.width = w
	}
	if h, err := strconv.Atoi(d.Attributes["height"]); err == nil && h > 0 {
		c.height = h
	}
	return c
}

// State returns the current control values.
func (c *ImageControls) State() ImageState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ImageState{
		BaseURL:      c.base,
		URL:          c.src,
		Alt:          c.alt,
		Width:        c.width,
		Height:       c.height,
		BorderRadius: c.borderRadius,
		Transforms:   c.transforms.List(),
	}
}

// Toggle flips one transform and reports whether it is now active.
func (c *ImageControls) Toggle(t imagekit.Transform) bool {
	c.mu.Lock()
	on := c.transforms.Toggle(t)
	c.mu.Unlock()
	c.apply()
	return on
}

// SetSize changes the resize dimensions.
func (c *ImageControls) SetSize(width, height int) error {
	if width < 0 || height < 0 {
		return apperrors.NewInvalidRequest("width and height must not be negative")
	}
	c.mu.Lock()
	c.width, c.height = width, height
	c.mu.Unlock()
	c.apply()
	return nil
}

// SetAlt sets the alt text.
func (c *ImageControls) SetAlt(alt string) {
	c.mu.Lock()
	c.alt = alt
	c.mu.Unlock()
	if c.bound() {
		c.inspector.SetAttribute("alt", alt)
	}
}

// SetBorderRadius sets the corner radius, e.g. "8px".
func (c *ImageControls) SetBorderRadius(v string) {
	v = strings.TrimSpace(v)
	c.mu.Lock()
	c.borderRadius = v
	c.mu.Unlock()
	if c.bound() {
		c.inspector.SetStyle("borderRadius", v)
	}
}

// Upload stores data with the upload service and makes the result the
// new base URL.
func (c *ImageControls) Upload(ctx context.Context, data []byte, name string) (*imagekit.UploadResult, error) {
	up := c.inspector.session.deps.Images
	if up == nil {
		return nil, apperrors.NewNotConfigured("imagekit_private_key")
	}
	res, err := up.Upload(ctx, data, name)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.base = res.URL
	c.mu.Unlock()
	c.apply()
	return res, nil
}

// ImageEdit is a batch of control changes. Nil fields are left alone.
type ImageEdit struct {
	Toggle       []imagekit.Transform
	Width        *int
	Height       *int
	Alt          *string
	BorderRadius *string
}

// Apply runs every change of e. The size is applied before the toggles so a
// resize enabled in the same batch uses the new dimensions.
func (c *ImageControls) Apply(e ImageEdit) error {
	if !c.bound() {
		return apperrors.NewInvalidRequest("selection changed; select the image again")
	}
	if e.Width != nil || e.Height != nil {
		st := c.State()
		w, h := st.Width, st.Height
		if e.Width != nil {
			w = *e.Width
		}
		if e.Height != nil {
			h = *e.Height
		}
		if err := c.SetSize(w, h); err != nil {
			return err
		}
	}
	for _, t := range e.Toggle {
		c.Toggle(t)
	}
	if e.Alt != nil {
		c.SetAlt(*e.Alt)
	}
	if e.BorderRadius != nil {
		c.SetBorderRadius(*e.BorderRadius)
	}
	return nil
}

// ParseTransforms validates transform names.
func ParseTransforms(names []string) ([]imagekit.Transform, error) {
	out := make([]imagekit.Transform, 0, len(names))
	for _, name := range names {
		t, err := imagekit.ParseTransform(name)
		if err != nil {
			return nil, apperrors.NewInvalidRequest(err.Error())
		}
		out = append(out, t)
	}
	return out, nil
}

// bound reports whether the controls still belong to the selected element.
// Controls kept across a selection change must not write to the new one.
func (c *ImageControls) bound() bool {
	c.inspector.mu.Lock()
	defer c.inspector.mu.Unlock()
	return c.inspector.locator == c.locator && c.inspector.image == c
}

// apply recomputes the derived URL and sends it when it changed.
func (c *ImageControls) apply() {
	if !c.bound() {
		return
	}
	c.mu.Lock()
	next := imagekit.DeriveURL(c.base, c.transforms, c.width, c.height)
	changed := next != c.src
	if changed {
		c.src = next
	}
	c.mu.Unlock()

	if changed {
		c.inspector.SetAttribute("src", next)
	}
}
