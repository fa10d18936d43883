package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrSubscriptionClosed is returned by Run when the subscriber closes every
// channel before the context is canceled.
var ErrSubscriptionClosed = errors.New("subscription closed")

// Worker consumes trigger messages and starts pipeline runs. Handlers are
// picked by pipeline id first, then by topic, then by event type.
type Worker struct {
	subscriber  message.Subscriber
	codec       Codec
	retry       RetryPolicy
	logger      zerolog.Logger
	concurrency int
	topics      []string

	pipelineHandlers map[string]Handler
	topicHandlers    map[string]Handler
	typeHandlers     map[string]Handler
	middleware       []Middleware
	listeners        listenerSet
	allowedTopics    map[string]struct{}
}

// New creates a Worker. Without options it decodes DefaultCodec messages one
// at a time and drops permanent failures.
func New(opts ...Option) *Worker {
	w := &Worker{
		codec:            DefaultCodec{},
		retry:            DropPermanent{},
		logger:           defaultLogger(),
		concurrency:      1,
		pipelineHandlers: make(map[string]Handler),
		topicHandlers:    make(map[string]Handler),
		typeHandlers:     make(map[string]Handler),
		allowedTopics:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleTopic registers a handler for every trigger on topic. Topics outside
// WithTopics are ignored.
func (w *Worker) HandleTopic(topic string, h Handler) {
	if h == nil || topic == "" {
		return
	}
	if len(w.allowedTopics) > 0 {
		if _, ok := w.allowedTopics[topic]; !ok {
			w.logger.Warn().Str("topic", topic).Msg("handler topic not subscribed")
			return
		}
	}
	w.topicHandlers[topic] = h
	w.topics = append(w.topics, topic)
}

// HandlePipeline registers the runner of one pipeline.
func (w *Worker) HandlePipeline(pipelineID string, h Handler) {
	if h == nil || pipelineID == "" {
		return
	}
	w.pipelineHandlers[pipelineID] = h
}

// HandleType registers a handler for a canonical event type such as
// "push" or "merge_request".
func (w *Worker) HandleType(eventType string, h Handler) {
	if h == nil || eventType == "" {
		return
	}
	w.typeHandlers[eventType] = h
}

// Run subscribes to every topic and handles messages until ctx is canceled.
// At most WithConcurrency messages are handled at once across topics.
func (w *Worker) Run(ctx context.Context) error {
	if w.subscriber == nil {
		return errors.New("subscriber is required")
	}
	if len(w.topics) == 0 {
		return errors.New("at least one topic is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	topics := unique(w.topics)
	channels := make([]<-chan *message.Message, len(topics))
	for i, topic := range topics {
		ch, err := w.subscriber.Subscribe(ctx, topic)
		if err != nil {
			w.listeners.fail(ctx, nil, err)
			return err
		}
		channels[i] = ch
	}

	w.listeners.start(ctx)
	defer w.listeners.exit(ctx)

	var handlers errgroup.Group
	handlers.SetLimit(w.concurrency)
	var readers sync.WaitGroup
	readers.Add(len(channels))
	for i, ch := range channels {
		go func(topic string, ch <-chan *message.Message) {
			defer readers.Done()
			w.consume(ctx, topic, ch, &handlers)
		}(topics[i], ch)
	}
	readers.Wait()
	_ = handlers.Wait()

	if ctx.Err() == nil {
		return ErrSubscriptionClosed
	}
	return nil
}

func (w *Worker) consume(ctx context.Context, topic string, ch <-chan *message.Message, handlers *errgroup.Group) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			handlers.Go(func() error {
				w.handleMessage(ctx, topic, msg)
				return nil
			})
		}
	}
}

// Close shuts down the subscriber.
func (w *Worker) Close() error {
	if w.subscriber == nil {
		return nil
	}
	return w.subscriber.Close()
}

func (w *Worker) handleMessage(ctx context.Context, topic string, msg *message.Message) {
	evt, err := w.codec.Decode(topic, msg)
	if err != nil {
		w.logger.Error().Err(err).Str("topic", topic).Str("message_uuid", msg.UUID).Msg("decode failed")
		w.listeners.fail(ctx, nil, err)
		w.settle(ctx, msg, nil, err)
		return
	}
	w.settle(ctx, msg, evt, w.process(ctx, evt))
}

// settle acks or nacks msg according to the retry policy.
func (w *Worker) settle(ctx context.Context, msg *message.Message, evt *Event, err error) {
	if err == nil {
		msg.Ack()
		return
	}
	decision := w.retry.OnError(ctx, evt, err)
	if decision.Retry || decision.Nack {
		msg.Nack()
		return
	}
	msg.Ack()
}

// process runs the handler for evt. Events without a handler succeed.
func (w *Worker) process(ctx context.Context, evt *Event) error {
	logger := w.logger.With().
		Str("request_id", evt.RequestID).
		Str("pipeline_id", evt.PipelineID).
		Str("topic", evt.Topic).
		Str("provider", evt.Provider).
		Str("type", evt.Type).
		Logger()

	w.listeners.messageStart(ctx, evt)

	handler := w.handlerFor(evt)
	if handler == nil {
		logger.Debug().Msg("no handler")
		w.listeners.messageFinish(ctx, evt, nil)
		return nil
	}

	err := w.wrap(handler)(ctx, evt)
	w.listeners.messageFinish(ctx, evt, err)
	if err != nil {
		logger.Error().Err(err).Msg("handler failed")
		w.listeners.fail(ctx, evt, err)
		return err
	}
	logger.Debug().Msg("handled")
	return nil
}

func (w *Worker) handlerFor(evt *Event) Handler {
	if h := w.pipelineHandlers[evt.PipelineID]; h != nil {
		return h
	}
	if h := w.topicHandlers[evt.Topic]; h != nil {
		return h
	}
	return w.typeHandlers[evt.Type]
}

func (w *Worker) wrap(h Handler) Handler {
	for i := len(w.middleware) - 1; i >= 0; i-- {
		h = w.middleware[i](h)
	}
	return h
}

func unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
