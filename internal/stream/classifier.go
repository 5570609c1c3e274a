package stream

import (
	"log/slog"
	"unicode/utf8"
)

// Classifier wraps State for callers that consume a stream incrementally.
// It is not safe for concurrent use.
type Classifier struct {
	state   State
	pending []byte // incomplete UTF-8 sequence carried to the next chunk
	logger  *slog.Logger
}

// New returns a Classifier for the given fences.
// Empty fences fall back to DefaultFences.
func New(f Fences) *Classifier {
	if f.Open == "" || f.Close == "" {
		f = DefaultFences
	}
	return &Classifier{state: NewState(f), logger: slog.Default()}
}

// WithLogger sets the logger used for dropped chunks.
func (c *Classifier) WithLogger(l *slog.Logger) *Classifier {
	if l != nil {
		c.logger = l
	}
	return c
}

// Feed consumes one text chunk.
func (c *Classifier) Feed(chunk string) Emission {
	var out Emission
	c.state, out = Step(c.state, chunk)
	return out
}

// FeedBytes consumes one raw chunk. A multi-byte character split across
// chunks is reassembled. A chunk that is not valid UTF-8 is logged and
// skipped; the stream continues.
func (c *Classifier) FeedBytes(b []byte) Emission {
	buf := append(c.pending, b...)
	c.pending = nil

	cut := incompleteTail(buf)
	if cut > 0 {
		c.pending = append([]byte(nil), buf[len(buf)-cut:]...)
		buf = buf[:len(buf)-cut]
	}

	if !utf8.Valid(buf) {
		c.logger.Warn("skipping undecodable stream chunk", "bytes", len(buf))
		return ""
	}
	return c.Feed(string(buf))
}

// Finish returns the classification. Callers rendering live output call
// Flush first to receive any held-back payload text.
func (c *Classifier) Finish() Result {
	if len(c.pending) > 0 {
		c.logger.Warn("dropping truncated character at end of stream", "bytes", len(c.pending))
		c.pending = nil
	}
	res, _ := Finalize(c.state)
	return res
}

// Flush returns the held-back payload text without ending the stream
// classification. It is what Finalize would release.
func (c *Classifier) Flush() Emission {
	if c.state.Phase == Scanning {
		return ""
	}
	out := c.state.payload[c.state.emitted:]
	c.state.emitted = len(c.state.payload)
	return Emission(out)
}

// IsCodeMode reports whether the opening fence has been seen.
// Once true it stays true.
func (c *Classifier) IsCodeMode() bool {
	return c.state.Phase != Scanning
}

// Phase returns the current phase.
func (c *Classifier) Phase() Phase {
	return c.state.Phase
}

// incompleteTail returns how many trailing bytes of b form the start of a
// multi-byte character that is not yet complete.
func incompleteTail(b []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < utf8.RuneSelf {
			return 0
		}
		if utf8.RuneStart(c) {
			if utf8.FullRune(b[len(b)-i:]) {
				return 0
			}
			return i
		}
	}
	return 0
}
