package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/agentoven/agentoven/chat-gateway/internal/chat"
	reqctx "github.com/agentoven/agentoven/chat-gateway/pkg/middleware"
	"github.com/agentoven/agentoven/chat-gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// ChatRequest is the body of both chat endpoints.
type ChatRequest struct {
	Query string `json:"query"`
}

// ChatResponse is the body of a successful POST /api/v1/chat.
type ChatResponse struct {
	Response  string   `json:"response"`
	Sources   []string `json:"sources"`
	Cached    bool     `json:"cached"`
	Truncated bool     `json:"truncated"`
}

// StreamEvent is one SSE data payload of POST /api/v1/chat/stream.
// Text events carry a chunk. The last event before [DONE] has Done set and
// carries the sources, or Error on a failure after the stream started.
type StreamEvent struct {
	Text      string   `json:"text,omitempty"`
	Done      bool     `json:"done,omitempty"`
	Sources   []string `json:"sources,omitempty"`
	Cached    bool     `json:"cached,omitempty"`
	Truncated bool     `json:"truncated,omitempty"`
	Error     string   `json:"error,omitempty"`
	Message   string   `json:"message,omitempty"`
}

func (h *Handlers) decodeChatRequest(w http.ResponseWriter, r *http.Request) (models.ChatRequest, bool) {
	var body ChatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", msgInvalidRequest)
		return models.ChatRequest{}, false
	}
	return models.ChatRequest{
		Query:     body.Query,
		ClientIP:  reqctx.GetClientIP(r.Context()),
		RequestID: reqctx.GetRequestID(r.Context()),
	}, true
}

// Chat answers a query in one response.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeChatRequest(w, r)
	if !ok {
		return
	}

	result, err := h.Orchestrator.Handle(r.Context(), req)
	if err != nil {
		respondPipelineError(w, r, err)
		return
	}

	sources := result.Sources
	if sources == nil {
		sources = []string{}
	}
	respondJSON(w, http.StatusOK, ChatResponse{
		Response:  result.Answer,
		Sources:   sources,
		Cached:    result.Cached(),
		Truncated: result.Truncated,
	})
}

// ChatStream answers a query as server-sent events. Rejections and failures
// before the first chunk are plain JSON errors with the mapped status.
func (h *Handlers) ChatStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, http.StatusInternalServerError, "streaming_unsupported", "Streaming not supported")
		return
	}

	req, ok := h.decodeChatRequest(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	stream, err := h.Orchestrator.Stream(ctx, req)
	if err != nil {
		respondPipelineError(w, r, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(ev StreamEvent) error {
		data, _ := json.Marshal(ev)
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	done := func() {
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}

	for {
		chunk, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			_, code, message := errorStatus(err)
			send(StreamEvent{Done: true, Error: code, Message: message})
			done()
			return
		}
		if err := send(StreamEvent{Text: chunk.Text}); err != nil {
			log.Debug().Err(err).Str("request_id", req.RequestID).Msg("Stream write failed")
			return
		}
	}

	final := StreamEvent{Done: true}
	if info, ok := stream.(chat.StreamInfo); ok {
		final.Sources = info.Sources()
		final.Cached = info.Cached()
		final.Truncated = info.Truncated()
	}
	send(final)
	done()
}
