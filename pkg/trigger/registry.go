package trigger

import (
	"fmt"
	"sort"
)

// Integration bundles everything one provider contributes: classification
// of transport hints, payload decoding and its handlers.
type Integration interface {
	Name() Provider
	// Classify maps a transport hint (an event header) and payload to an
	// event type. Unknown hints return an UnsupportedEventError.
	Classify(hint string, payload interface{}) (EventType, error)
	// Decode parses a JSON body into the payload type Classify and the
	// handlers expect.
	Decode(hint string, body []byte) (interface{}, error)
	Handlers() []Handler
}

// Splitter is implemented by integrations whose payloads can carry several
// events, such as one push updating several refs. Split returns one payload
// per event, or nil when payload is a single event.
type Splitter interface {
	Split(hint string, payload interface{}) []interface{}
}

type handlerKey struct {
	provider  Provider
	eventType EventType
}

// Registry resolves (provider, event type) to a handler. It is built once
// and never mutated, so lookups need no locking.
type Registry struct {
	integrations map[Provider]Integration
	handlers     map[handlerKey]Handler
}

// NewRegistry indexes the handlers of every integration. Registering the
// same provider or the same (provider, event type) twice is an error.
func NewRegistry(integrations ...Integration) (*Registry, error) {
	r := &Registry{
		integrations: make(map[Provider]Integration, len(integrations)),
		handlers:     make(map[handlerKey]Handler),
	}
	for _, integration := range integrations {
		name := integration.Name()
		if _, exists := r.integrations[name]; exists {
			return nil, fmt.Errorf("provider %s registered twice", name)
		}
		r.integrations[name] = integration
		for _, h := range integration.Handlers() {
			if h.Provider() != name {
				return nil, fmt.Errorf("handler for %s/%s registered under provider %s", h.Provider(), h.EventType(), name)
			}
			key := handlerKey{provider: name, eventType: h.EventType()}
			if _, exists := r.handlers[key]; exists {
				return nil, fmt.Errorf("handler for %s/%s registered twice", name, h.EventType())
			}
			r.handlers[key] = h
		}
	}
	return r, nil
}

// Integration returns the integration for provider.
func (r *Registry) Integration(provider Provider) (Integration, error) {
	integration, ok := r.integrations[provider]
	if !ok {
		return nil, &UnsupportedEventError{Provider: provider}
	}
	return integration, nil
}

// Resolve returns the handler for the pair.
func (r *Registry) Resolve(provider Provider, eventType EventType) (Handler, error) {
	h, ok := r.handlers[handlerKey{provider: provider, eventType: eventType}]
	if !ok {
		return nil, &UnsupportedEventError{Provider: provider, EventType: eventType}
	}
	return h, nil
}

// Supported lists the registered pairs, sorted.
func (r *Registry) Supported() []string {
	out := make([]string, 0, len(r.handlers))
	for key := range r.handlers {
		out = append(out, fmt.Sprintf("%s/%s", key.provider, key.eventType))
	}
	sort.Strings(out)
	return out
}
