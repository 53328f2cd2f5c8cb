package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"rift-rewind/internal/domain"
)

// Event names emitted on the progress stream.
const (
	EventPlayerInfo = "player_info"
	EventStatus     = "status"
	EventPartial    = "partial"
	EventComplete   = "complete"
	EventError      = "error"
	EventTimeout    = "timeout"
)

// EventSink is the push-shaped surface the relay writes to. SSE implements
// it today; a real pub/sub transport can replace it without changing the
// event contract.
type EventSink interface {
	Send(event string, payload any) error
}

type PlayerInfoPayload struct {
	Type     string `json:"type"`
	JobID    string `json:"jobId"`
	Puuid    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
	Region   string `json:"region"`
	Year     int    `json:"year"`
}

type StatusPayload struct {
	Type      string `json:"type"`
	JobID     string `json:"jobId"`
	Status    string `json:"status"`
	Total     int    `json:"totalMatches"`
	Cached    int    `json:"cachedMatches"`
	Processed int    `json:"processedMatches"`
}

type RecapPayload struct {
	Type    string            `json:"type"`
	JobID   string            `json:"jobId"`
	Version int               `json:"version"`
	Stats   domain.RecapStats `json:"stats"`
}

type ErrorPayload struct {
	Type    string `json:"type"`
	JobID   string `json:"jobId"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TimeoutPayload struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
}

// sseSink writes named server-sent events to an http response.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSESink(w http.ResponseWriter) (*sseSink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseSink{w: w, flusher: flusher}, nil
}

func (s *sseSink) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
