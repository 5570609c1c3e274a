// Package stream separates conversational text from a fenced document
// payload while a generation is still arriving.
//
// The classifier is a pure state machine: Step folds one chunk into a State
// and returns the payload text that is safe to show live. Because the fences
// are searched for in the accumulated text, the emitted sequence does not
// depend on where the transport split the stream.
package stream

import "strings"

// Fences are the delimiters of a document payload.
type Fences struct {
	Open  string
	Close string
}

// DefaultFences matches a markdown html code block.
var DefaultFences = Fences{Open: "```html", Close: "```"}

// Phase is the classifier mode.
type Phase int

const (
	// Scanning: no opening fence seen yet; nothing is emitted.
	Scanning Phase = iota
	// Emitting: inside the payload; text is emitted as it arrives.
	Emitting
	// Closed: the closing fence was seen; further text is suppressed.
	Closed
)

func (p Phase) String() string {
	switch p {
	case Scanning:
		return "scanning"
	case Emitting:
		return "emitting"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Emission is payload text released by one step. Empty means nothing new.
type Emission string

// State is the classifier state. The zero value is not usable; start from
// NewState.
type State struct {
	Fences Fences
	Phase  Phase

	raw     string // every chunk, unmodified
	payload string // text after the opening fence, cut at the closing fence
	emitted int    // bytes of payload already released
	preface string // conversational text before the opening fence
}

// NewState returns an initial Scanning state.
func NewState(f Fences) State {
	return State{Fences: f, Phase: Scanning}
}

// Raw returns the concatenation of all chunks seen so far.
func (s State) Raw() string { return s.raw }

// Payload returns the payload accumulated so far, including held-back text.
func (s State) Payload() string { return s.payload }

// Step folds chunk into s.
func Step(s State, chunk string) (State, Emission) {
	s.raw += chunk

	switch s.Phase {
	case Scanning:
		idx := strings.Index(s.raw, s.Fences.Open)
		if idx < 0 {
			return s, ""
		}
		s.preface = s.raw[:idx]
		s.payload = s.raw[idx+len(s.Fences.Open):]
		s.Phase = Emitting
	case Emitting:
		s.payload += chunk
	case Closed:
		return s, ""
	}

	return release(s)
}

// release emits the payload up to the closing fence, or up to any suffix
// that could still grow into the closing fence.
func release(s State) (State, Emission) {
	if i := strings.Index(s.payload, s.Fences.Close); i >= 0 {
		s.payload = s.payload[:i]
		s.Phase = Closed
		out := s.payload[s.emitted:]
		s.emitted = len(s.payload)
		return s, Emission(out)
	}

	safe := len(s.payload) - partialSuffix(s.payload, s.Fences.Close)
	if safe <= s.emitted {
		return s, ""
	}
	out := s.payload[s.emitted:safe]
	s.emitted = safe
	return s, Emission(out)
}

// partialSuffix returns the length of the longest suffix of text that is a
// proper prefix of fence.
func partialSuffix(text, fence string) int {
	n := len(fence) - 1
	if n > len(text) {
		n = len(text)
	}
	for ; n > 0; n-- {
		if strings.HasSuffix(text, fence[:n]) {
			return n
		}
	}
	return 0
}

// Kind is the classification of a finished stream.
type Kind int

const (
	KindConversational Kind = iota
	KindDocument
)

func (k Kind) String() string {
	if k == KindDocument {
		return "document"
	}
	return "conversational"
}

// Result is the outcome of a finished stream.
type Result struct {
	Kind Kind
	// Text is the full unmodified stream for conversational replies, or the
	// text before the opening fence for documents.
	Text string
	// Code is the cleaned payload. Empty for conversational replies.
	Code string
}

// Finalize ends the stream: it releases held-back text and classifies.
func Finalize(s State) (Result, Emission) {
	if s.Phase == Scanning {
		return Result{Kind: KindConversational, Text: s.raw}, ""
	}

	out := s.payload[s.emitted:]
	return Result{
		Kind: KindDocument,
		Text: s.preface,
		Code: StripClosingFence(s.payload),
	}, Emission(out)
}

// StripClosingFence removes trailing backtick runs and surrounding
// whitespace until the text stops changing. It is idempotent.
func StripClosingFence(s string) string {
	for {
		next := strings.TrimRight(strings.TrimSpace(s), "`")
		next = strings.TrimSpace(next)
		if next == s {
			return s
		}
		s = next
	}
}
