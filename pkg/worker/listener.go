package worker

import (
	"context"

	"github.com/rs/zerolog"
)

// Listener provides hooks into the worker's lifecycle. Nil hooks are skipped.
type Listener struct {
	OnStart func(ctx context.Context)
	OnExit  func(ctx context.Context)
	// OnMessageStart runs before the pipeline handler is chosen.
	OnMessageStart  func(ctx context.Context, evt *Event)
	OnMessageFinish func(ctx context.Context, evt *Event, err error)
	// OnError receives decode failures with a nil evt.
	OnError func(ctx context.Context, evt *Event, err error)
}

// LogListener logs the outcome of every pipeline run request.
func LogListener(logger zerolog.Logger) Listener {
	return Listener{
		OnStart: func(context.Context) { logger.Info().Msg("worker started") },
		OnExit:  func(context.Context) { logger.Info().Msg("worker stopped") },
		OnMessageFinish: func(_ context.Context, evt *Event, err error) {
			entry := logger.Info()
			if err != nil {
				entry = logger.Warn().Err(err).Bool("permanent", IsPermanent(err))
			}
			entry.
				Str("request_id", evt.RequestID).
				Str("pipeline_id", evt.PipelineID).
				Str("repository", evt.Message.Event.Repository).
				Str("ref", evt.Ref()).
				Str("revision", evt.Revision()).
				Msg("pipeline run request finished")
		},
		OnError: func(_ context.Context, evt *Event, err error) {
			if evt == nil {
				logger.Error().Err(err).Msg("undecodable trigger message")
			}
		},
	}
}

type listenerSet []Listener

func (s listenerSet) start(ctx context.Context) {
	for _, l := range s {
		if l.OnStart != nil {
			l.OnStart(ctx)
		}
	}
}

func (s listenerSet) exit(ctx context.Context) {
	for _, l := range s {
		if l.OnExit != nil {
			l.OnExit(ctx)
		}
	}
}

func (s listenerSet) messageStart(ctx context.Context, evt *Event) {
	for _, l := range s {
		if l.OnMessageStart != nil {
			l.OnMessageStart(ctx, evt)
		}
	}
}

func (s listenerSet) messageFinish(ctx context.Context, evt *Event, err error) {
	for _, l := range s {
		if l.OnMessageFinish != nil {
			l.OnMessageFinish(ctx, evt, err)
		}
	}
}

func (s listenerSet) fail(ctx context.Context, evt *Event, err error) {
	for _, l := range s {
		if l.OnError != nil {
			l.OnError(ctx, evt, err)
		}
	}
}
