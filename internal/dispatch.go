package internal

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"hooktrigger/pkg/storage"
	"hooktrigger/pkg/trigger"
)

// Report summarizes what happened to one webhook call.
type Report struct {
	RequestID  string                `json:"request_id,omitempty"`
	Provider   trigger.Provider      `json:"provider"`
	EventType  trigger.EventType     `json:"event_type"`
	Repository string                `json:"repository,omitempty"`
	Ref        string                `json:"ref,omitempty"`
	Candidate  bool                  `json:"candidate"`
	Reason     string                `json:"reason,omitempty"`
	Results    []trigger.MatchResult `json:"results"`
	Errors     []PipelineError       `json:"errors,omitempty"`
	Published  int                   `json:"published"`
	// Partial is set when the evaluation deadline expired before every
	// pipeline was evaluated.
	Partial bool `json:"partial,omitempty"`
}

// Matched returns the ids of triggered pipelines.
func (r Report) Matched() []string {
	var ids []string
	for _, result := range r.Results {
		if result.Matched {
			ids = append(ids, result.PipelineID)
		}
	}
	return ids
}

// Batch is the answer to a webhook call that carried several events, such as
// a Bitbucket push of several refs.
type Batch struct {
	Reports []Report `json:"reports"`
}

// ReportBody returns the single report of a call, or a Batch when the call
// carried several events.
func ReportBody(reports []Report) interface{} {
	if len(reports) == 1 {
		return reports[0]
	}
	return Batch{Reports: reports}
}

// PipelineError is a pipeline that could not be evaluated or published.
type PipelineError struct {
	PipelineID string `json:"pipeline_id"`
	Error      string `json:"error"`
}

// Dispatcher looks up the pipelines of a prepared event, evaluates them and
// publishes a trigger message for every match.
type Dispatcher struct {
	engine    *trigger.Engine
	store     storage.PipelineStore
	publisher Publisher
	topic     string
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewDispatcher wires a dispatcher. A nil publisher evaluates without
// publishing.
func NewDispatcher(engine *trigger.Engine, store storage.PipelineStore, publisher Publisher, topic string, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Dispatcher{
		engine:    engine,
		store:     store,
		publisher: publisher,
		topic:     topic,
		timeout:   timeout,
		logger:    logger,
	}
}

// Engine returns the engine events are prepared with.
func (d *Dispatcher) Engine() *trigger.Engine { return d.engine }

// Dispatch evaluates every pipeline of the event's repository. Events
// rejected by pre-match never reach the store. A store failure is returned
// as *trigger.ConfigLookupError.
func (d *Dispatcher) Dispatch(ctx context.Context, requestID string, prepared *trigger.Prepared) (Report, error) {
	report := Report{
		RequestID: requestID,
		Provider:  prepared.Provider,
		EventType: prepared.EventType,
		Candidate: prepared.Candidate(),
		Results:   []trigger.MatchResult{},
	}
	if !prepared.Candidate() {
		report.Reason = prepared.PreMatch.Reason
		return report, nil
	}
	evt := prepared.Event
	report.Repository = evt.Repository
	report.Ref = evt.RefName
	logger := WithRequestID(d.logger, requestID)

	records, err := d.store.ListPipelines(ctx, string(evt.Provider), evt.Repository)
	if err != nil {
		IncLookupError(string(evt.Provider))
		return report, &trigger.ConfigLookupError{Provider: evt.Provider, Repository: evt.Repository, Err: err}
	}
	if len(records) == 0 {
		report.Reason = "no pipelines configured for repository"
		logger.Debug().Str("repository", evt.Repository).Msg("no pipelines")
		return report, nil
	}
	pipelines := make([]trigger.Pipeline, 0, len(records))
	drivers := make(map[string][]string, len(records))
	for _, record := range records {
		pipelines = append(pipelines, record.Pipeline())
		if len(record.Drivers) > 0 {
			drivers[record.ID] = record.Drivers
		}
	}

	evalCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		evalCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	outcomes, err := d.engine.MatchAll(evalCtx, prepared, pipelines)
	if err != nil {
		report.Partial = true
		logger.Warn().Err(err).Int("pipelines", len(pipelines)).Msg("evaluation deadline expired")
	}

	for _, outcome := range outcomes {
		if outcome.Err != nil {
			report.Errors = append(report.Errors, PipelineError{PipelineID: outcome.PipelineID, Error: outcome.Err.Error()})
			logger.Warn().Err(outcome.Err).Str("pipeline_id", outcome.PipelineID).Msg("pipeline not evaluated")
			continue
		}
		report.Results = append(report.Results, outcome.Result)
		if !outcome.Result.Matched || d.publisher == nil {
			continue
		}
		msg := trigger.NewMessage(requestID, evt, outcome.Result)
		if err := d.publisher.PublishForDrivers(ctx, d.topic, msg, drivers[outcome.PipelineID]); err != nil {
			report.Errors = append(report.Errors, PipelineError{PipelineID: outcome.PipelineID, Error: err.Error()})
			logger.Error().Err(err).Str("pipeline_id", outcome.PipelineID).Str("topic", d.topic).Msg("publish failed")
			continue
		}
		report.Published++
	}
	return report, nil
}

// DispatchAll dispatches every event of one webhook call under the same
// request id. It stops at the first store failure and returns the reports
// finished so far with it.
func (d *Dispatcher) DispatchAll(ctx context.Context, requestID string, prepared []*trigger.Prepared) ([]Report, error) {
	reports := make([]Report, 0, len(prepared))
	for _, p := range prepared {
		report, err := d.Dispatch(ctx, requestID, p)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}
