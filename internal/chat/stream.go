package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/agentoven/agentoven/chat-gateway/internal/rag"
	"github.com/agentoven/agentoven/chat-gateway/pkg/contracts"
	"github.com/agentoven/agentoven/chat-gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// ErrStreamClosed is returned by Next after Close.
var ErrStreamClosed = errors.New("chat: stream closed")

// StreamInfo is implemented by every stream Stream returns. It is valid
// once Next has returned io.EOF.
type StreamInfo interface {
	Sources() []string
	Cached() bool
	Truncated() bool
}

var (
	_ StreamInfo = (*liveStream)(nil)
	_ StreamInfo = (*replayStream)(nil)
)

// Stream admits req and returns its answer as a chunk stream.
//
// Rejections and retrieval failures are returned here, before any chunk is
// produced. A cache hit replays the stored answer word by word. Otherwise
// chunks are forwarded from the completion stream as they arrive, and the
// answer is cached once the upstream stream ends normally. The caller must
// Close the stream; closing it early cancels the upstream request.
func (o *Orchestrator) Stream(ctx context.Context, req models.ChatRequest) (contracts.ChunkStream, error) {
	r := o.begin(ctx, req, true)

	query, fp, hit, err := o.admit(r, req)
	if err != nil {
		return nil, r.fail(err)
	}
	if hit != nil {
		r.enter(StateResponding)
		return newReplayStream(r, hit.Answer, hit.Sources), nil
	}

	passages, err := o.retrieve(r, query.Text)
	if err != nil {
		return nil, r.fail(err)
	}

	r.enter(StateCompleting)
	prompt := BuildPrompt(o.systemPrompt, query.Text, rag.FormatContext(passages))

	// A retry is only possible before the first chunk reaches the caller, so
	// opening the stream and reading its first chunk are retried together.
	var (
		upstream contracts.ChunkStream
		first    *models.Chunk
		eof      bool
	)
	err = o.retry(r, "completion", func(ctx context.Context) error {
		s, serr := o.completion.CompleteStream(ctx, prompt)
		if serr != nil {
			return serr
		}
		chunk, nerr := s.Next(ctx)
		switch {
		case nerr == io.EOF:
			eof = true
		case nerr != nil:
			s.Close()
			return nerr
		default:
			first = &chunk
		}
		upstream = s
		return nil
	})
	if err != nil {
		return nil, r.fail(err)
	}

	r.enter(StateResponding)
	return &liveStream{
		o:        o,
		run:      r,
		upstream: upstream,
		pending:  first,
		eof:      eof,
		fp:       fp,
		sources:  rag.ExtractSources(passages),
	}, nil
}

// liveStream forwards chunks from the completion stream and caches the full
// answer when the upstream finishes normally.
type liveStream struct {
	o        *Orchestrator
	run      *run
	upstream contracts.ChunkStream
	pending  *models.Chunk
	eof      bool
	fp       string
	sources  []string

	answer    strings.Builder
	truncated bool
	done      bool

	closed    atomic.Bool
	closeOnce sync.Once
}

func (s *liveStream) Next(ctx context.Context) (models.Chunk, error) {
	if s.closed.Load() {
		return models.Chunk{}, ErrStreamClosed
	}
	if s.done {
		return models.Chunk{}, io.EOF
	}

	for {
		var (
			chunk models.Chunk
			err   error
		)
		switch {
		case s.pending != nil:
			chunk, s.pending = *s.pending, nil
		case s.eof:
			err = io.EOF
		default:
			chunk, err = s.upstream.Next(ctx)
		}

		if err == io.EOF {
			s.complete()
			return models.Chunk{}, io.EOF
		}
		if err != nil {
			return models.Chunk{}, s.abort(ctx, err)
		}
		if s.closed.Load() {
			return models.Chunk{}, ErrStreamClosed
		}

		if chunk.FinishReason == models.FinishReasonLength {
			s.truncated = true
		}
		if chunk.Text == "" {
			continue
		}
		s.answer.WriteString(chunk.Text)
		return chunk, nil
	}
}

// Truncated reports whether the model stopped at the token limit.
func (s *liveStream) Truncated() bool { return s.truncated }

// Sources returns the passage URLs the answer is based on.
func (s *liveStream) Sources() []string { return s.sources }

func (s *liveStream) Cached() bool { return false }

func (s *liveStream) complete() {
	s.done = true
	if s.closed.Load() {
		return
	}
	s.o.store(s.run, s.fp, s.answer.String(), s.sources)
	if s.truncated {
		log.Warn().Str("request_id", s.run.requestID).Msg("Streamed completion truncated at the token limit")
	}
	s.run.finish(OutcomeResponded)
}

func (s *liveStream) abort(ctx context.Context, err error) error {
	s.done = true
	if s.closed.Load() {
		return ErrStreamClosed
	}
	if ctx.Err() != nil || s.run.ctx.Err() != nil {
		s.run.fail(context.Canceled)
		return err
	}
	s.o.metrics.UpstreamFailed(s.run.ctx, "completion_stream")
	s.run.cause = err
	return s.run.fail(fmt.Errorf("%w: completion stream interrupted", models.ErrUpstreamUnavailable))
}

// Close cancels the upstream request. A stream closed before it finished is
// recorded as cancelled and never cached.
func (s *liveStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.upstream.Close()
		s.run.finish(OutcomeCancelled)
	})
	return err
}

// replayStream plays a cached answer back word by word.
type replayStream struct {
	run     *run
	words   []string
	next    int
	sources []string

	closed    atomic.Bool
	closeOnce sync.Once
}

func newReplayStream(r *run, answer string, sources []string) *replayStream {
	return &replayStream{run: r, words: strings.Split(answer, " "), sources: sources}
}

func (s *replayStream) Next(ctx context.Context) (models.Chunk, error) {
	if s.closed.Load() {
		return models.Chunk{}, ErrStreamClosed
	}
	if err := ctx.Err(); err != nil {
		return models.Chunk{}, err
	}
	if s.next >= len(s.words) {
		s.run.finish(OutcomeResponded)
		return models.Chunk{}, io.EOF
	}
	word := s.words[s.next]
	s.next++
	return models.Chunk{Text: word + " "}, nil
}

// Sources returns the sources stored with the cached answer.
func (s *replayStream) Sources() []string { return s.sources }

// Cached is true for a replayed answer.
func (s *replayStream) Cached() bool { return true }

func (s *replayStream) Truncated() bool { return false }

func (s *replayStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.run.finish(OutcomeCancelled)
	})
	return nil
}
