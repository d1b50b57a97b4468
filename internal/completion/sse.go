package completion

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/agentoven/agentoven/chat-gateway/pkg/models"
)

const sseDone = "[DONE]"

type streamDelta struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// sseStream reads `data:` events from an OpenAI-style streamed response.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	cancel  context.CancelFunc

	closeOnce sync.Once
	done      bool
	// finished is set once the provider sent [DONE] or a finish_reason.
	finished bool
}

func newSSEStream(body io.ReadCloser, cancel context.CancelFunc) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseStream{body: body, scanner: scanner, cancel: cancel}
}

// Next returns the next non-empty chunk, or io.EOF once the provider sent
// [DONE]. A body that ends before [DONE] or a finish_reason is reported as
// ErrUnavailable so a partial answer is never taken for a complete one.
// Next is not safe for concurrent use.
func (s *sseStream) Next(ctx context.Context) (models.Chunk, error) {
	for {
		if s.done {
			return models.Chunk{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return models.Chunk{}, err
		}

		if !s.scanner.Scan() {
			s.done = true
			if err := s.scanner.Err(); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return models.Chunk{}, ctxErr
				}
				return models.Chunk{}, fmt.Errorf("completion: read stream: %w: %w", models.ErrUnavailable, err)
			}
			if !s.finished {
				return models.Chunk{}, fmt.Errorf("completion: stream ended early: %w", models.ErrUnavailable)
			}
			return models.Chunk{}, io.EOF
		}

		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue // blank separators, comments, event names
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == sseDone {
			s.done = true
			s.finished = true
			return models.Chunk{}, io.EOF
		}

		var delta streamDelta
		if err := json.Unmarshal([]byte(payload), &delta); err != nil {
			return models.Chunk{}, fmt.Errorf("completion: decode stream chunk: %w: %w", models.ErrUnavailable, err)
		}
		if len(delta.Choices) == 0 {
			continue
		}

		chunk := models.Chunk{Text: delta.Choices[0].Delta.Content}
		if fr := delta.Choices[0].FinishReason; fr != nil && *fr != "" {
			chunk.FinishReason = *fr
			s.finished = true
		}
		if chunk.Text == "" && chunk.FinishReason == "" {
			continue
		}
		return chunk, nil
	}
}

// Close cancels the upstream request and releases the connection.
func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.body.Close()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	})
	return err
}
