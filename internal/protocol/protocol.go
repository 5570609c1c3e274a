// Package protocol defines the messages exchanged between the editor host
// and the sandboxed preview, and the ordered ports that carry them.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Type discriminates protocol messages.
type Type string

const (
	TypeElementSelected Type = "ELEMENT_SELECTED" // sandbox -> host
	TypeUpdateStyle     Type = "UPDATE_STYLE"     // host -> sandbox
	TypeUpdateText      Type = "UPDATE_TEXT"      // host -> sandbox
	TypeUpdateAttribute Type = "UPDATE_ATTRIBUTE" // host -> sandbox
	TypeDeselect        Type = "DESELECT_ELEMENT" // host -> sandbox
)

// Styles is the computed style subset reported for a selected element.
type Styles struct {
	Color           string `json:"color"`
	BackgroundColor string `json:"backgroundColor"`
	FontSize        string `json:"fontSize"`
	FontWeight      string `json:"fontWeight"`
	FontFamily      string `json:"fontFamily"`
	Padding         string `json:"padding"`
	Margin          string `json:"margin"`
	TextAlign       string `json:"textAlign"`
}

// Get returns the value of a camelCase style property.
func (s Styles) Get(property string) (string, bool) {
	switch property {
	case "color":
		return s.Color, true
	case "backgroundColor":
		return s.BackgroundColor, true
	case "fontSize":
		return s.FontSize, true
	case "fontWeight":
		return s.FontWeight, true
	case "fontFamily":
		return s.FontFamily, true
	case "padding":
		return s.Padding, true
	case "margin":
		return s.Margin, true
	case "textAlign":
		return s.TextAlign, true
	}
	return "", false
}

// Set updates a camelCase style property. Unknown properties are ignored
// and reported as false.
func (s *Styles) Set(property, value string) bool {
	switch property {
	case "color":
		s.Color = value
	case "backgroundColor":
		s.BackgroundColor = value
	case "fontSize":
		s.FontSize = value
	case "fontWeight":
		s.FontWeight = value
	case "fontFamily":
		s.FontFamily = value
	case "padding":
		s.Padding = value
	case "margin":
		s.Margin = value
	case "textAlign":
		s.TextAlign = value
	default:
		return false
	}
	return true
}

// ElementData describes the selected element.
type ElementData struct {
	TagName     string            `json:"tagName"`
	TextContent string            `json:"textContent"`
	InnerHTML   string            `json:"innerHTML"`
	Styles      Styles            `json:"styles"`
	ClassList   []string          `json:"classList"`
	XPath       string            `json:"xpath"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// Valid reports whether the report carries the fields the host relies on.
func (d *ElementData) Valid() bool {
	return d != nil && d.TagName != "" && d.XPath != ""
}

// Clone returns a deep copy.
func (d *ElementData) Clone() *ElementData {
	if d == nil {
		return nil
	}
	c := *d
	if d.ClassList != nil {
		c.ClassList = append([]string(nil), d.ClassList...)
	}
	if d.Attributes != nil {
		c.Attributes = make(map[string]string, len(d.Attributes))
		for k, v := range d.Attributes {
			c.Attributes[k] = v
		}
	}
	return &c
}

// Message is one protocol message. Only the fields relevant to Type are set.
type Message struct {
	Type      Type         `json:"type"`
	Data      *ElementData `json:"data,omitempty"`
	Property  string       `json:"property,omitempty"`
	Attribute string       `json:"attribute,omitempty"`
	Value     string       `json:"value,omitempty"`
	Text      *string      `json:"text,omitempty"`
}

// Selected reports a new selection to the host.
func Selected(d *ElementData) Message {
	return Message{Type: TypeElementSelected, Data: d}
}

// UpdateStyle sets one inline style property on the selection.
func UpdateStyle(property, value string) Message {
	return Message{Type: TypeUpdateStyle, Property: property, Value: value}
}

// UpdateText replaces the text content of the selection.
func UpdateText(text string) Message {
	return Message{Type: TypeUpdateText, Text: &text}
}

// UpdateAttribute sets one attribute on the selection.
func UpdateAttribute(attribute, value string) Message {
	return Message{Type: TypeUpdateAttribute, Attribute: attribute, Value: value}
}

// Deselect clears the selection.
func Deselect() Message {
	return Message{Type: TypeDeselect}
}

// TextValue returns the UPDATE_TEXT payload, or "" when absent.
func (m Message) TextValue() string {
	if m.Text == nil {
		return ""
	}
	return *m.Text
}

// Encode serializes m.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses and validates a message. Unknown types and structurally
// incomplete messages are rejected.
func Decode(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Validate checks that the fields required by m.Type are present.
func (m Message) Validate() error {
	switch m.Type {
	case TypeElementSelected:
		if !m.Data.Valid() {
			return fmt.Errorf("%s: element report missing tagName or xpath", m.Type)
		}
	case TypeUpdateStyle:
		if m.Property == "" {
			return fmt.Errorf("%s: property is required", m.Type)
		}
	case TypeUpdateText:
		if m.Text == nil {
			return fmt.Errorf("%s: text is required", m.Type)
		}
	case TypeUpdateAttribute:
		if m.Attribute == "" {
			return fmt.Errorf("%s: attribute is required", m.Type)
		}
	case TypeDeselect:
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}
