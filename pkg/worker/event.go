package worker

import (
	"encoding/json"

	"hooktrigger/pkg/trigger"
)

// Event is a trigger message received by the worker.
type Event struct {
	// PipelineID is the pipeline the message asks to run.
	PipelineID string `json:"pipeline_id"`
	// Provider is the name of the Git provider (e.g., "github", "gitlab").
	Provider string `json:"provider"`
	// Type is the canonical event type (e.g., "push", "merge_request").
	Type string `json:"type"`
	// RequestID is the id of the webhook call that produced the message.
	RequestID string `json:"request_id,omitempty"`
	// Topic is the topic or queue the message was received on.
	Topic string `json:"topic"`
	// Metadata contains message-broker-specific metadata.
	Metadata map[string]string `json:"metadata"`
	// Message is the decoded trigger message.
	Message trigger.Message `json:"message"`
	// Payload is the raw JSON payload of the message.
	Payload json.RawMessage `json:"payload"`
}

// Ref returns the fully qualified ref of the triggering event.
func (e *Event) Ref() string { return e.Message.Event.RefName }

// Revision returns the commit the pipeline should build.
func (e *Event) Revision() string { return e.Message.Event.Revision }

func newEvent(topic string, msg trigger.Message, metadata map[string]string, payload []byte) *Event {
	if metadata == nil {
		metadata = map[string]string{}
	}
	provider := string(msg.Event.Provider)
	if provider == "" {
		provider = metadata[MetadataProvider]
	}
	eventType := string(msg.Event.EventType)
	if eventType == "" {
		eventType = metadata[MetadataEvent]
	}
	requestID := msg.RequestID
	if requestID == "" {
		requestID = metadata[MetadataRequestID]
	}
	return &Event{
		PipelineID: msg.PipelineID,
		Provider:   provider,
		Type:       eventType,
		RequestID:  requestID,
		Topic:      topic,
		Metadata:   metadata,
		Message:    msg,
		Payload:    json.RawMessage(payload),
	}
}
