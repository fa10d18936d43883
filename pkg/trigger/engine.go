package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Stage tells where an evaluation ended.
type Stage string

const (
	StagePreMatch Stage = "pre_match"
	StageFilter   Stage = "filter"
)

// MatchResult is the verdict for one (event, pipeline) pair.
type MatchResult struct {
	PipelineID   string `json:"pipeline_id"`
	Matched      bool   `json:"matched"`
	Stage        Stage  `json:"stage"`
	FailedFilter string `json:"failed_filter,omitempty"`
	Reason       string `json:"reason"`
}

// Observer receives every verdict the engine produces. Implementations must
// be safe for concurrent use.
type Observer interface {
	PreMatchRejected(provider Provider, eventType EventType, reason string)
	Evaluated(evt *CanonicalEvent, result MatchResult)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) PreMatchRejected(Provider, EventType, string) {}
func (NopObserver) Evaluated(*CanonicalEvent, MatchResult)       {}

// Options tunes an Engine. Zero values select defaults.
type Options struct {
	// RefPolicy applies to every handler. A nil DeniedPrefixes selects
	// DefaultDeniedRefPrefixes; an empty non-nil slice denies nothing.
	RefPolicy RefPolicy
	Observer  Observer
	// Concurrency bounds MatchAll fan-out. Default 8.
	Concurrency int
	// CacheSize is the number of compiled configurations kept. Default 256;
	// negative disables the cache.
	CacheSize int
	// RegexTimeout bounds each regex: pattern match. Default
	// DefaultRegexTimeout.
	RegexTimeout time.Duration
}

const (
	defaultConcurrency = 8
	defaultCacheSize   = 256
)

// Engine evaluates events against pipeline trigger configurations. It does
// no I/O and is safe for concurrent use.
type Engine struct {
	registry    *Registry
	compiler    *Compiler
	policy      RefPolicy
	observer    Observer
	concurrency int
}

// NewEngine builds an engine over a registry.
func NewEngine(registry *Registry, opts Options) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("engine: nil registry")
	}
	if opts.RefPolicy.DeniedPrefixes == nil {
		opts.RefPolicy = DefaultRefPolicy()
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = defaultCacheSize
	}
	compiler, err := NewCompiler(opts.CacheSize, opts.RegexTimeout)
	if err != nil {
		return nil, err
	}
	return &Engine{
		registry:    registry,
		compiler:    compiler,
		policy:      opts.RefPolicy,
		observer:    opts.Observer,
		concurrency: opts.Concurrency,
	}, nil
}

// Registry returns the registry the engine dispatches through.
func (e *Engine) Registry() *Registry { return e.registry }

// Prepared is an event that went through classification, pre-match and
// normalization once and can be matched against any number of pipelines.
type Prepared struct {
	engine    *Engine
	handler   Handler
	Provider  Provider
	EventType EventType
	// PreMatch is the pre-match verdict. When it failed, Event is nil and
	// every Match reports the rejection without building filters.
	PreMatch Verdict
	Event    *CanonicalEvent
}

// Candidate reports whether the event survived pre-match.
func (p *Prepared) Candidate() bool { return p.PreMatch.Passed }

// Prepare classifies an already-deserialized payload, runs pre-match and
// normalizes it.
func (e *Engine) Prepare(provider Provider, hint string, payload interface{}) (*Prepared, error) {
	return e.prepare(provider, hint, payload, nil)
}

// PrepareRaw decodes body with the provider integration and prepares it.
func (e *Engine) PrepareRaw(provider Provider, hint string, body []byte) (*Prepared, error) {
	payload, err := e.decode(provider, hint, body)
	if err != nil {
		return nil, err
	}
	return e.PrepareParsed(provider, hint, payload, body)
}

// PrepareParsed prepares a payload that was already decoded from body, for
// callers that parse with their own webhook library. Expressions read the
// body rather than a re-encoding of the typed payload.
func (e *Engine) PrepareParsed(provider Provider, hint string, payload interface{}, body []byte) (*Prepared, error) {
	doc, err := document(provider, body)
	if err != nil {
		return nil, err
	}
	return e.prepare(provider, hint, payload, doc)
}

// PrepareAll is Prepare for payloads that may carry several events. It
// returns one Prepared per event, in payload order.
func (e *Engine) PrepareAll(provider Provider, hint string, payload interface{}) ([]*Prepared, error) {
	return e.prepareAll(provider, hint, payload, nil)
}

// PrepareAllRaw is PrepareRaw for payloads that may carry several events.
func (e *Engine) PrepareAllRaw(provider Provider, hint string, body []byte) ([]*Prepared, error) {
	payload, err := e.decode(provider, hint, body)
	if err != nil {
		return nil, err
	}
	return e.PrepareAllParsed(provider, hint, payload, body)
}

// PrepareAllParsed is PrepareParsed for payloads that may carry several
// events. When the payload is split, expressions of each event read the
// re-encoded part instead of the whole body.
func (e *Engine) PrepareAllParsed(provider Provider, hint string, payload interface{}, body []byte) ([]*Prepared, error) {
	doc, err := document(provider, body)
	if err != nil {
		return nil, err
	}
	return e.prepareAll(provider, hint, payload, doc)
}

func (e *Engine) decode(provider Provider, hint string, body []byte) (interface{}, error) {
	integration, err := e.registry.Integration(provider)
	if err != nil {
		return nil, err
	}
	return integration.Decode(hint, body)
}

func document(provider Provider, body []byte) (interface{}, error) {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &MalformedPayloadError{Provider: provider, Field: "body", Err: err}
	}
	return doc, nil
}

func (e *Engine) prepareAll(provider Provider, hint string, payload interface{}, doc interface{}) ([]*Prepared, error) {
	integration, err := e.registry.Integration(provider)
	if err != nil {
		return nil, err
	}
	parts := []interface{}{payload}
	if splitter, ok := integration.(Splitter); ok {
		if split := splitter.Split(hint, payload); len(split) > 1 {
			parts = split
			doc = nil
		}
	}
	out := make([]*Prepared, 0, len(parts))
	for _, part := range parts {
		prepared, err := e.prepare(provider, hint, part, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, prepared)
	}
	return out, nil
}

func (e *Engine) prepare(provider Provider, hint string, payload interface{}, doc interface{}) (*Prepared, error) {
	integration, err := e.registry.Integration(provider)
	if err != nil {
		return nil, err
	}
	eventType, err := integration.Classify(hint, payload)
	if err != nil {
		return nil, err
	}
	handler, err := e.registry.Resolve(provider, eventType)
	if err != nil {
		return nil, err
	}
	prepared := &Prepared{engine: e, handler: handler, Provider: provider, EventType: eventType}

	verdict, err := handler.PreMatch(payload, e.policy)
	if err != nil {
		return nil, err
	}
	prepared.PreMatch = verdict
	if !verdict.Passed {
		e.observer.PreMatchRejected(provider, eventType, verdict.Reason)
		return prepared, nil
	}

	evt, err := handler.Normalize(payload)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = genericDocument(payload)
	}
	evt.SetDocument(doc)
	prepared.Event = evt
	return prepared, nil
}

func genericDocument(payload interface{}) interface{} {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	return doc
}

// Match evaluates one pipeline configuration against the prepared event.
// A configuration that does not compile is an error, not a rejection.
func (p *Prepared) Match(pipelineID string, cfg *TriggerConfig) (MatchResult, error) {
	if p == nil || cfg == nil {
		return MatchResult{}, ErrNilConfig
	}
	if !p.PreMatch.Passed {
		return MatchResult{
			PipelineID: pipelineID,
			Stage:      StagePreMatch,
			Reason:     p.PreMatch.Reason,
		}, nil
	}
	compiled, err := p.engine.compiler.Compile(*cfg)
	if err != nil {
		return MatchResult{}, err
	}
	if !compiled.AcceptsEvent(p.EventType) {
		result := MatchResult{
			PipelineID:   pipelineID,
			Stage:        StageFilter,
			FailedFilter: FilterEventType,
			Reason:       fmt.Sprintf("event type %q is not one of %s", p.EventType, joinEvents(compiled.Events)),
		}
		p.engine.observer.Evaluated(p.Event, result)
		return result, nil
	}
	filters := p.handler.BuildFilters(p.Event, compiled)
	failed, verdict := Evaluate(p.Event, filters)
	result := MatchResult{
		PipelineID: pipelineID,
		Matched:    failed == nil,
		Stage:      StageFilter,
		Reason:     verdict.Reason,
	}
	if failed != nil {
		result.FailedFilter = failed.Name()
	}
	p.engine.observer.Evaluated(p.Event, result)
	return result, nil
}

func joinEvents(events []EventType) string {
	out := make([]string, len(events))
	for i, t := range events {
		out[i] = string(t)
	}
	return strings.Join(out, ", ")
}

// Pipeline pairs a pipeline id with its trigger configuration.
type Pipeline struct {
	ID     string
	Config *TriggerConfig
}

// Outcome is the result of one pipeline in a MatchAll fan-out. Evaluated
// is false when the context expired before the pipeline was reached.
type Outcome struct {
	PipelineID string
	Result     MatchResult
	Evaluated  bool
	Err        error
}

// MatchAll evaluates every pipeline concurrently. Outcomes keep the order
// of pipelines. When ctx expires, pipelines not yet evaluated carry
// ctx.Err() and the same error is returned alongside the partial outcomes.
func (e *Engine) MatchAll(ctx context.Context, prepared *Prepared, pipelines []Pipeline) ([]Outcome, error) {
	if prepared == nil {
		return nil, ErrNilConfig
	}
	outcomes := make([]Outcome, len(pipelines))
	for i, pl := range pipelines {
		outcomes[i].PipelineID = pl.ID
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i := range pipelines {
		if ctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			result, err := prepared.Match(pipelines[i].ID, pipelines[i].Config)
			outcomes[i].Result = result
			outcomes[i].Err = err
			outcomes[i].Evaluated = err == nil
			return nil
		})
	}
	_ = g.Wait()

	ctxErr := ctx.Err()
	if ctxErr == nil {
		return outcomes, nil
	}
	partial := false
	for i := range outcomes {
		if !outcomes[i].Evaluated && outcomes[i].Err == nil {
			outcomes[i].Err = ctxErr
			partial = true
		}
	}
	if !partial {
		return outcomes, nil
	}
	return outcomes, ctxErr
}
