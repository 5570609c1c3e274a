// Package imagekit derives transformed image URLs and uploads images to
// the ImageKit media service.
package imagekit

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Host is the delivery host of ImageKit URLs.
const Host = "ik.imagekit.io"

// Transform is one image transformation the inspector can toggle.
type Transform string

const (
	SmartCrop Transform = "smartcrop"
	Resize    Transform = "resize"
	Upscale   Transform = "upscale"
	BgRemove  Transform = "bgremove"
)

// AllTransforms lists transforms in the order their tokens appear in a URL.
var AllTransforms = []Transform{Resize, SmartCrop, Upscale, BgRemove}

// ParseTransform validates a transform name.
func ParseTransform(s string) (Transform, error) {
	t := Transform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllTransforms {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown transform %q", s)
}

// TransformSet is an unordered set of transforms.
type TransformSet map[Transform]bool

// NewTransformSet builds a set from ts.
func NewTransformSet(ts ...Transform) TransformSet {
	s := TransformSet{}
	for _, t := range ts {
		s[t] = true
	}
	return s
}

// Has reports whether t is active.
func (s TransformSet) Has(t Transform) bool { return s[t] }

// Toggle flips t and reports whether it is now active.
func (s TransformSet) Toggle(t Transform) bool {
	if s[t] {
		delete(s, t)
		return false
	}
	s[t] = true
	return true
}

// Empty reports whether no transform is active.
func (s TransformSet) Empty() bool {
	for _, on := range s {
		if on {
			return false
		}
	}
	return true
}

// List returns the active transforms in URL token order.
func (s TransformSet) List() []Transform {
	out := make([]Transform, 0, len(s))
	for _, t := range AllTransforms {
		if s[t] {
			out = append(out, t)
		}
	}
	return out
}

var trSegment = regexp.MustCompile(`/tr:[^/]+/`)

// IsImageKitURL reports whether raw is served by ImageKit.
func IsImageKitURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Host == Host
}

// StripTransforms removes every path transformation segment from raw.
func StripTransforms(raw string) string {
	for {
		next := trSegment.ReplaceAllString(raw, "/")
		if next == raw {
			return raw
		}
		raw = next
	}
}

// Tokens returns the transformation string for set, or "" when empty.
func Tokens(set TransformSet, width, height int) string {
	var tokens []string
	for _, t := range set.List() {
		switch t {
		case Resize:
			var wh []string
			if width > 0 {
				wh = append(wh, fmt.Sprintf("w-%d", width))
			}
			if height > 0 {
				wh = append(wh, fmt.Sprintf("h-%d", height))
			}
			if len(wh) > 0 {
				tokens = append(tokens, strings.Join(wh, ","))
			}
		case SmartCrop:
			tokens = append(tokens, "fo-auto")
		case Upscale:
			tokens = append(tokens, "q-100,dpr-2")
		case BgRemove:
			tokens = append(tokens, "e-background_removal")
		}
	}
	return strings.Join(tokens, ",")
}

// DeriveURL returns base with the transformation segment for set inserted
// after the account segment. It is a pure function of its inputs. An empty
// set returns base unchanged, as does a URL not served by ImageKit.
func DeriveURL(base string, set TransformSet, width, height int) string {
	tr := Tokens(set, width, height)
	if tr == "" || !IsImageKitURL(base) {
		return base
	}

	clean := StripTransforms(base)
	marker := Host + "/"
	at := strings.Index(clean, marker)
	if at < 0 {
		return base
	}
	rest := clean[at+len(marker):]
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return base
	}
	prefix := clean[:at+len(marker)+slash+1]
	return prefix + "tr:" + tr + "/" + rest[slash+1:]
}
