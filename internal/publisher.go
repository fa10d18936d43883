package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"hooktrigger/pkg/trigger"
	"hooktrigger/pkg/worker"
)

// DefaultTopic carries matched pipeline triggers.
const DefaultTopic = worker.DefaultTopic

// DeadLetterSuffix is appended to the topic of triggers sent to the
// dead-letter driver.
const DeadLetterSuffix = ".dlq"

// Publisher delivers trigger messages for matched pipelines.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg trigger.Message) error
	// PublishForDrivers publishes through a subset of the configured
	// drivers. Nil selects all of them.
	PublishForDrivers(ctx context.Context, topic string, msg trigger.Message, drivers []string) error
	Close() error
}

// sink is one configured delivery target.
type sink interface {
	Publish(ctx context.Context, topic string, msg trigger.Message) error
	Close() error
}

// NewPublisher builds one sink per configured driver. Drivers that fail to
// initialize are skipped; it is an error when none is left. A dlq_driver
// outside the driver list is built as well but only receives triggers the
// other drivers could not deliver.
func NewPublisher(cfg WatermillConfig) (Publisher, error) {
	logger := NewLogger("publisher")

	drivers := cfg.Drivers
	if len(drivers) == 0 && cfg.Driver != "" {
		drivers = []string{cfg.Driver}
	}
	if len(drivers) == 0 {
		drivers = []string{"gochannel"}
	}

	mux := &publisherMux{
		sinks:  make(map[string]sink, len(drivers)+1),
		retry:  cfg.PublishRetry,
		logger: logger,
	}
	for _, driver := range drivers {
		name := strings.ToLower(driver)
		if _, dup := mux.sinks[name]; dup {
			continue
		}
		s, err := buildSink(cfg, name)
		if err != nil {
			IncPublishError(name)
			logger.Error().Err(err).Str("driver", name).Msg("publisher init failed, skipping driver")
			continue
		}
		mux.sinks[name] = s
		mux.defaults = append(mux.defaults, name)
	}
	if len(mux.sinks) == 0 {
		return nil, errors.New("no publishers available")
	}

	if dlq := strings.ToLower(cfg.DLQDriver); dlq != "" {
		if _, ok := mux.sinks[dlq]; !ok {
			s, err := buildSink(cfg, dlq)
			if err != nil {
				_ = mux.Close()
				return nil, fmt.Errorf("dead-letter driver %s: %w", dlq, err)
			}
			mux.sinks[dlq] = s
		}
		mux.dlq = dlq
	}
	return mux, nil
}

// buildSink retries transient init failures such as a broker that is still
// starting. Configuration errors fail at once.
func buildSink(cfg WatermillConfig, driver string) (sink, error) {
	const attempts = 5
	const delay = 2 * time.Second

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(delay)
		}
		s, err := newSink(cfg, driver)
		if err == nil {
			return s, nil
		}
		lastErr = err
		var invalid *driverConfigError
		if errors.As(err, &invalid) {
			break
		}
	}
	return nil, lastErr
}

// driverConfigError reports a driver that cannot work with the given
// settings.
type driverConfigError struct {
	driver string
	reason string
}

func (e *driverConfigError) Error() string {
	return e.driver + ": " + e.reason
}

func invalidDriver(driver, format string, args ...interface{}) error {
	return &driverConfigError{driver: driver, reason: fmt.Sprintf(format, args...)}
}

// watermillSink publishes trigger messages as JSON through a watermill
// publisher.
type watermillSink struct {
	publisher message.Publisher
	closeFn   func() error
}

func (w *watermillSink) Publish(ctx context.Context, topic string, msg trigger.Message) error {
	out, err := encodeTrigger(msg)
	if err != nil {
		return err
	}
	out.SetContext(ctx)
	return w.publisher.Publish(topic, out)
}

func (w *watermillSink) Close() error {
	if w.publisher == nil {
		return nil
	}
	err := w.publisher.Close()
	if w.closeFn != nil {
		return errors.Join(err, w.closeFn())
	}
	return err
}

// encodeTrigger builds the watermill message for msg. The routing metadata
// lets consumers filter without decoding the payload.
func encodeTrigger(msg trigger.Message) (*message.Message, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	id := msg.ID
	if id == "" {
		id = watermill.NewUUID()
	}
	out := message.NewMessage(id, payload)
	out.Metadata.Set(worker.MetadataPipelineID, msg.PipelineID)
	out.Metadata.Set(worker.MetadataProvider, string(msg.Event.Provider))
	out.Metadata.Set(worker.MetadataEvent, string(msg.Event.EventType))
	out.Metadata.Set(worker.MetadataRepository, msg.Event.Repository)
	if msg.RequestID != "" {
		out.Metadata.Set(worker.MetadataRequestID, msg.RequestID)
	}
	return out, nil
}

type publisherMux struct {
	sinks    map[string]sink
	defaults []string
	dlq      string
	retry    PublishRetryConfig
	logger   zerolog.Logger
}

func (m *publisherMux) Publish(ctx context.Context, topic string, msg trigger.Message) error {
	return m.PublishForDrivers(ctx, topic, msg, nil)
}

// PublishForDrivers publishes to every target driver with retries. A trigger
// no target accepted goes to the dead-letter driver; the returned error
// still reports the failed drivers.
func (m *publisherMux) PublishForDrivers(ctx context.Context, topic string, msg trigger.Message, drivers []string) error {
	targets := drivers
	if len(targets) == 0 {
		targets = m.defaults
	}

	var err error
	delivered := false
	for _, driver := range targets {
		name := strings.ToLower(driver)
		s, ok := m.sinks[name]
		if !ok {
			err = errors.Join(err, fmt.Errorf("unknown driver %s", driver))
			continue
		}
		if publishErr := m.publishWithRetry(ctx, s, topic, msg); publishErr != nil {
			IncPublishError(name)
			err = errors.Join(err, fmt.Errorf("%s: %w", name, publishErr))
			continue
		}
		delivered = true
	}
	if err != nil && !delivered && m.dlq != "" {
		m.deadLetter(ctx, topic, msg, err)
	}
	return err
}

func (m *publisherMux) publishWithRetry(ctx context.Context, s sink, topic string, msg trigger.Message) error {
	attempts := m.retry.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := time.Duration(m.retry.DelayMS) * time.Millisecond

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(err, ctx.Err())
			case <-time.After(delay):
			}
		}
		if err = s.Publish(ctx, topic, msg); err == nil {
			return nil
		}
	}
	return err
}

func (m *publisherMux) deadLetter(ctx context.Context, topic string, msg trigger.Message, cause error) {
	logger := m.logger.With().
		Str("pipeline_id", msg.PipelineID).
		Str("request_id", msg.RequestID).
		Str("driver", m.dlq).
		Logger()
	if err := m.sinks[m.dlq].Publish(ctx, topic+DeadLetterSuffix, msg); err != nil {
		IncPublishError(m.dlq)
		logger.Error().Err(err).AnErr("cause", cause).Msg("dead-letter publish failed")
		return
	}
	logger.Warn().AnErr("cause", cause).Msg("trigger sent to dead-letter topic")
}

func (m *publisherMux) Close() error {
	var err error
	for _, s := range m.sinks {
		err = errors.Join(err, s.Close())
	}
	return err
}
