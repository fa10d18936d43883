package worker

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Handler starts the pipeline run an event asks for.
type Handler func(ctx context.Context, evt *Event) error

// Middleware wraps a handler.
type Middleware func(Handler) Handler

// ForRepositories skips events from repositories outside repos. Names are
// compared case-insensitively; skipped events succeed.
func ForRepositories(repos ...string) Middleware {
	allowed := make(map[string]struct{}, len(repos))
	for _, repo := range repos {
		allowed[strings.ToLower(repo)] = struct{}{}
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, evt *Event) error {
			if _, ok := allowed[strings.ToLower(evt.Message.Event.Repository)]; !ok {
				return nil
			}
			return next(ctx, evt)
		}
	}
}

// MiddlewareFromWatermill adapts a watermill handler middleware such as
// middleware.Timeout or middleware.Recoverer. The wrapped middleware sees a
// message carrying the event payload, its metadata and the trigger ids.
func MiddlewareFromWatermill(m message.HandlerMiddleware) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, evt *Event) error {
			msg := message.NewMessage(watermill.NewUUID(), evt.Payload)
			for key, value := range evt.Metadata {
				msg.Metadata.Set(key, value)
			}
			msg.Metadata.Set(MetadataPipelineID, evt.PipelineID)
			if evt.RequestID != "" {
				msg.Metadata.Set(MetadataRequestID, evt.RequestID)
			}
			msg.SetContext(ctx)
			wrapped := m(func(msg *message.Message) ([]*message.Message, error) {
				return nil, next(msg.Context(), evt)
			})
			_, err := wrapped(msg)
			return err
		}
	}
}
