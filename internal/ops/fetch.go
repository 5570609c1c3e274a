package ops

import (
	"context"

	"github.com/hpungsan/sitesmith/internal/frame"
	"github.com/hpungsan/sitesmith/internal/store"
)

// FetchFrameInput contains parameters for the FetchFrame operation.
type FetchFrameInput struct {
	ID            string
	IncludeMarkup *bool // default: true (nil means default)
}

// FetchFrameOutput contains the result of the FetchFrame operation.
type FetchFrameOutput struct {
	frame.Frame                     // embedded (copy, not pointer)
	Messages    []frame.ChatMessage `json:"messages"`
	NeedsReply  bool                `json:"needs_reply"`
	Summary     FrameSummary        `json:"summary"`
}

// FetchFrame retrieves a frame with its transcript.
func FetchFrame(ctx context.Context, st store.Store, input FetchFrameInput) (*FetchFrameOutput, error) {
	id, err := requireID("frame", input.ID)
	if err != nil {
		return nil, err
	}
	snap, err := st.LoadFrame(ctx, id)
	if err != nil {
		return nil, err
	}

	out := &FetchFrameOutput{
		Frame:      snap.Frame,
		Messages:   snap.Messages,
		NeedsReply: snap.NeedsReply(),
		Summary:    SummaryOf(&snap.Frame),
	}
	if out.Messages == nil {
		out.Messages = []frame.ChatMessage{}
	}
	if input.IncludeMarkup != nil && !*input.IncludeMarkup {
		out.Markup = nil
	}
	return out, nil
}
