package worker

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
)

// ErrUnsupportedDriver is returned for drivers no factory is registered for.
var ErrUnsupportedDriver = errors.New("unsupported subscriber driver")

// SubscriberFactory builds a watermill subscriber for one driver.
type SubscriberFactory func(cfg SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error)

var subscriberFactories = map[string]SubscriberFactory{
	"gochannel": goChannelSubscriber,
	"amqp":      amqpSubscriber,
	"nats":      natsSubscriber,
	"kafka":     kafkaSubscriber,
	"sql":       sqlSubscriber,
}

// RegisterSubscriberDriver adds or replaces a subscriber driver.
func RegisterSubscriberDriver(name string, factory SubscriberFactory) {
	if name == "" || factory == nil {
		return
	}
	subscriberFactories[strings.ToLower(name)] = factory
}

// NewFromConfig creates a worker reading from the subscriber cfg describes.
// The subscriber logs through the worker's logger.
func NewFromConfig(cfg SubscriberConfig, opts ...Option) (*Worker, error) {
	w := New(opts...)
	sub, err := BuildSubscriber(cfg, w.logger)
	if err != nil {
		return nil, err
	}
	w.subscriber = sub
	return w, nil
}

// BuildSubscriber creates the subscriber for cfg. With several drivers the
// result fans their messages into one channel and drops triggers already
// received through another driver.
func BuildSubscriber(cfg SubscriberConfig, log zerolog.Logger) (message.Subscriber, error) {
	logger := watermillLogger{logger: log}

	if len(cfg.Drivers) == 0 {
		driver := strings.ToLower(cfg.Driver)
		if driver == "" {
			driver = "gochannel"
		}
		return buildDriver(cfg, logger, driver)
	}

	drivers := cfg.Drivers
	if cfg.Driver != "" {
		drivers = append(append([]string(nil), drivers...), cfg.Driver)
	}
	drivers = uniqueStrings(drivers)

	subs := make([]namedSubscriber, 0, len(drivers))
	for _, driver := range drivers {
		sub, err := buildDriver(cfg, logger, driver)
		if err != nil {
			log.Warn().Err(err).Str("driver", driver).Msg("subscriber init failed, skipping driver")
			continue
		}
		subs = append(subs, namedSubscriber{driver: driver, sub: sub})
	}
	if len(subs) == 0 {
		return nil, errors.New("no subscriber drivers available")
	}
	return newMultiSubscriber(subs, cfg.GoChannel.OutputChannelBuffer, log)
}

// buildDriver retries transient connection failures for brokers that may
// still be starting. Unknown drivers and configuration errors fail at once.
func buildDriver(cfg SubscriberConfig, logger watermill.LoggerAdapter, driver string) (message.Subscriber, error) {
	const attempts = 5
	const delay = 2 * time.Second

	factory, ok := subscriberFactories[driver]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(delay)
		}
		sub, err := factory(cfg, logger)
		if err == nil {
			return sub, nil
		}
		lastErr = err
		var invalid *SubscriberConfigError
		if errors.As(err, &invalid) {
			break
		}
	}
	return nil, lastErr
}

// SubscriberConfigError reports settings a driver cannot work with.
type SubscriberConfigError struct {
	Driver string
	Reason string
}

func (e *SubscriberConfigError) Error() string {
	return e.Driver + " subscriber: " + e.Reason
}

func invalidSubscriber(driver, format string, args ...interface{}) error {
	return &SubscriberConfigError{Driver: driver, Reason: fmt.Sprintf(format, args...)}
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
