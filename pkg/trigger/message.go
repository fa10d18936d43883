package trigger

import (
	"time"

	"github.com/google/uuid"
)

// Message is the notification published for a matched pipeline. Workers
// consume it to start the pipeline run.
type Message struct {
	ID         string         `json:"id"`
	RequestID  string         `json:"request_id,omitempty"`
	PipelineID string         `json:"pipeline_id"`
	Result     MatchResult    `json:"result"`
	Event      CanonicalEvent `json:"event"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NewMessage wraps a match result and the event it was computed for.
func NewMessage(requestID string, evt *CanonicalEvent, result MatchResult) Message {
	msg := Message{
		ID:         uuid.NewString(),
		RequestID:  requestID,
		PipelineID: result.PipelineID,
		Result:     result,
		CreatedAt:  time.Now().UTC(),
	}
	if evt != nil {
		msg.Event = evt.Summary()
	}
	return msg
}

// Summary returns a copy of the event without the attached payload document.
func (e *CanonicalEvent) Summary() CanonicalEvent {
	c := *e
	c.doc = nil
	c.ChangedPaths = append([]string(nil), e.ChangedPaths...)
	return c
}
