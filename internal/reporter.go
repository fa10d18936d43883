package internal

import (
	"github.com/rs/zerolog"

	"hooktrigger/pkg/trigger"
	"hooktrigger/pkg/trigger/bitbucket"
	"hooktrigger/pkg/trigger/github"
	"hooktrigger/pkg/trigger/gitlab"
)

// LogObserver logs and counts engine verdicts. Matches are logged at info,
// rejections at debug.
type LogObserver struct {
	logger zerolog.Logger
}

func NewLogObserver(logger zerolog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) PreMatchRejected(provider trigger.Provider, eventType trigger.EventType, reason string) {
	IncPreMatchRejected(provider, eventType)
	o.logger.Debug().
		Str("provider", string(provider)).
		Str("event", string(eventType)).
		Str("reason", reason).
		Msg("rejected before pipeline lookup")
}

func (o *LogObserver) Evaluated(evt *trigger.CanonicalEvent, result trigger.MatchResult) {
	if result.Matched {
		IncMatch(evt.Provider, evt.EventType)
		o.logger.Info().
			Str("pipeline_id", result.PipelineID).
			Str("repository", evt.Repository).
			Str("ref", evt.RefName).
			Str("revision", evt.Revision).
			Msg("pipeline triggered")
		return
	}
	IncFilterRejected(result.FailedFilter)
	o.logger.Debug().
		Str("pipeline_id", result.PipelineID).
		Str("repository", evt.Repository).
		Str("filter", result.FailedFilter).
		Str("reason", result.Reason).
		Msg("pipeline not triggered")
}

// NewEngine builds the match engine over every supported provider.
func NewEngine(cfg EngineConfig, observer trigger.Observer) (*trigger.Engine, error) {
	registry, err := trigger.NewRegistry(github.New(), gitlab.New(), bitbucket.New())
	if err != nil {
		return nil, err
	}
	return trigger.NewEngine(registry, cfg.EngineOptions(observer))
}
