package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	apperrors "github.com/hpungsan/sitesmith/internal/errors"
)

// maxEventBytes bounds one server-sent event line.
const maxEventBytes = 1 << 20

type streamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// DecodeSSE reads an OpenAI-style completion stream from r and passes each
// content delta to fn. It stops at the [DONE] marker or at end of input.
// Payloads that fail to decode are logged and skipped.
func DecodeSSE(ctx context.Context, r io.Reader, logger *slog.Logger, fn func(string)) error {
	if logger == nil {
		logger = slog.Default()
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventBytes)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Text()
		if !strings.HasPrefix(line, "data:") {
			// Blank separators, comments and keep-alives.
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return nil
		}
		if payload == "" {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			logger.Warn("skipping malformed stream event", "error", err, "bytes", len(payload))
			continue
		}
		if ev.Error != nil {
			return apperrors.NewUpstream("openrouter", ev.Error.Message)
		}
		if len(ev.Choices) == 0 {
			continue
		}
		if text := ev.Choices[0].Delta.Content; text != "" {
			fn(text)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}
