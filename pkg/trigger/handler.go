package trigger

// Handler turns one provider event type into canonical events and filter
// chains. Payloads arrive already deserialized; a payload of the wrong type
// is reported as malformed.
type Handler interface {
	Provider() Provider
	EventType() EventType
	// PreMatch is a cheap rejection run on the raw payload before any
	// filter is built.
	PreMatch(payload interface{}, policy RefPolicy) (Verdict, error)
	// Normalize extracts the canonical event. It fails only when a field it
	// needs is missing.
	Normalize(payload interface{}) (*CanonicalEvent, error)
	// BuildFilters returns the ordered chain for one pipeline.
	BuildFilters(evt *CanonicalEvent, cfg *CompiledConfig) []Filter
}

// TypedHandler is the form providers implement, over their payload type.
type TypedHandler[P any] interface {
	Provider() Provider
	EventType() EventType
	PreMatch(payload *P, policy RefPolicy) Verdict
	Normalize(payload *P) (*CanonicalEvent, error)
	BuildFilters(evt *CanonicalEvent, cfg *CompiledConfig) []Filter
}

// Adapt exposes a TypedHandler as a Handler. Both P and *P payloads are
// accepted.
func Adapt[P any](h TypedHandler[P]) Handler {
	return &adapter[P]{typed: h}
}

type adapter[P any] struct {
	typed TypedHandler[P]
}

func (a *adapter[P]) Provider() Provider   { return a.typed.Provider() }
func (a *adapter[P]) EventType() EventType { return a.typed.EventType() }

func (a *adapter[P]) PreMatch(payload interface{}, policy RefPolicy) (Verdict, error) {
	p, err := a.payload(payload)
	if err != nil {
		return Verdict{}, err
	}
	return a.typed.PreMatch(p, policy), nil
}

func (a *adapter[P]) Normalize(payload interface{}) (*CanonicalEvent, error) {
	p, err := a.payload(payload)
	if err != nil {
		return nil, err
	}
	evt, err := a.typed.Normalize(p)
	if err != nil {
		return nil, err
	}
	evt.Provider = a.typed.Provider()
	evt.EventType = a.typed.EventType()
	return evt, nil
}

func (a *adapter[P]) BuildFilters(evt *CanonicalEvent, cfg *CompiledConfig) []Filter {
	return a.typed.BuildFilters(evt, cfg)
}

func (a *adapter[P]) payload(payload interface{}) (*P, error) {
	switch typed := payload.(type) {
	case P:
		return &typed, nil
	case *P:
		if typed != nil {
			return typed, nil
		}
	}
	return nil, Malformed(a.typed.Provider(), a.typed.EventType(), "payload")
}
