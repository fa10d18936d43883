package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// MetadataDriver names the driver a message arrived through when several
// drivers are consumed at once.
const MetadataDriver = "driver"

// seenTriggers is how many trigger ids a multi-driver subscription remembers.
const seenTriggers = 4096

type namedSubscriber struct {
	driver string
	sub    message.Subscriber
}

// multiSubscriber merges several drivers. The webhook server publishes each
// trigger to every driver with the trigger id as message UUID, so the
// second copy of a trigger is acked and dropped.
type multiSubscriber struct {
	subscribers []namedSubscriber
	bufferSize  int64
	seen        *lru.Cache[string, struct{}]
	logger      zerolog.Logger
}

func newMultiSubscriber(subs []namedSubscriber, bufferSize int64, logger zerolog.Logger) (*multiSubscriber, error) {
	seen, err := lru.New[string, struct{}](seenTriggers)
	if err != nil {
		return nil, err
	}
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &multiSubscriber{subscribers: subs, bufferSize: bufferSize, seen: seen, logger: logger}, nil
}

func (m *multiSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if len(m.subscribers) == 0 {
		return nil, errors.New("no subscribers configured")
	}

	channels := make([]<-chan *message.Message, len(m.subscribers))
	for i, entry := range m.subscribers {
		ch, err := entry.sub.Subscribe(ctx, topic)
		if err != nil {
			return nil, errors.Join(err, m.Close())
		}
		channels[i] = ch
	}

	out := make(chan *message.Message, m.bufferSize)
	var wg sync.WaitGroup
	wg.Add(len(channels))
	for i, ch := range channels {
		go func(driver string, ch <-chan *message.Message) {
			defer wg.Done()
			m.forward(ctx, driver, ch, out)
		}(m.subscribers[i].driver, ch)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

func (m *multiSubscriber) forward(ctx context.Context, driver string, in <-chan *message.Message, out chan<- *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			if m.duplicate(msg.UUID) {
				m.logger.Debug().Str("driver", driver).Str("message_uuid", msg.UUID).Msg("duplicate trigger dropped")
				msg.Ack()
				continue
			}
			if msg.Metadata == nil {
				msg.Metadata = message.Metadata{}
			}
			msg.Metadata.Set(MetadataDriver, driver)
			select {
			case out <- msg:
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}
}

// duplicate records id and reports whether it was already seen.
func (m *multiSubscriber) duplicate(id string) bool {
	if id == "" {
		return false
	}
	seen, _ := m.seen.ContainsOrAdd(id, struct{}{})
	return seen
}

func (m *multiSubscriber) Close() error {
	var err error
	for _, entry := range m.subscribers {
		err = errors.Join(err, entry.sub.Close())
	}
	return err
}
