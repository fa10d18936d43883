package worker

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"hooktrigger/pkg/trigger"
)

// Metadata keys the webhook server sets on every trigger message.
const (
	MetadataPipelineID = "pipeline_id"
	MetadataProvider   = "provider"
	MetadataEvent      = "event"
	MetadataRepository = "repository"
	MetadataRequestID  = "request_id"
	MetadataTopic      = "topic"
)

// ErrNoPipeline is returned for messages that do not name a pipeline.
var ErrNoPipeline = errors.New("message has no pipeline id")

// Codec is an interface for decoding messages from a message broker into an Event.
type Codec interface {
	// Decode transforms a Watermill message into an Event.
	Decode(topic string, msg *message.Message) (*Event, error)
}

// DefaultCodec decodes the JSON trigger message published by the webhook
// server. Missing provider, event and request id fall back to the message
// metadata.
type DefaultCodec struct{}

// Decode unmarshals a Watermill message into an Event.
func (DefaultCodec) Decode(topic string, msg *message.Message) (*Event, error) {
	var decoded trigger.Message
	if err := json.Unmarshal(msg.Payload, &decoded); err != nil {
		return nil, Permanent(fmt.Errorf("decode trigger message: %w", err))
	}
	metadata := make(map[string]string, len(msg.Metadata))
	for key, value := range msg.Metadata {
		metadata[key] = value
	}
	if decoded.PipelineID == "" {
		decoded.PipelineID = metadata[MetadataPipelineID]
	}
	if decoded.PipelineID == "" {
		return nil, ErrNoPipeline
	}
	return newEvent(topic, decoded, metadata, msg.Payload), nil
}
