// Command pipeline-runner is an example consumer that starts a build for the
// pipelines it knows and ignores the rest.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"hooktrigger/pkg/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to app config")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "pipeline-runner").Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	subCfg, err := worker.LoadSubscriberConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	wk, err := worker.NewFromConfig(
		subCfg,
		worker.WithTopics(subCfg.Topic),
		worker.WithConcurrency(4),
		worker.WithLogger(logger),
		worker.WithListener(worker.Listener{
			OnMessageFinish: func(ctx context.Context, evt *worker.Event, err error) {
				if err != nil {
					logger.Warn().Err(err).Str("pipeline_id", evt.PipelineID).Msg("build not started")
				}
			},
		}),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker")
	}
	defer wk.Close()

	wk.HandlePipeline("api-ci", func(ctx context.Context, evt *worker.Event) error {
		logger.Info().
			Str("repository", evt.Message.Event.Repository).
			Str("revision", evt.Revision()).
			Msg("starting build")
		return runBuild(ctx, evt)
	})
	wk.HandleType("merge_request", func(ctx context.Context, evt *worker.Event) error {
		logger.Info().
			Str("pipeline_id", evt.PipelineID).
			Str("source_branch", evt.Message.Event.SourceBranch).
			Str("target_branch", evt.Message.Event.TargetBranch).
			Msg("merge request checks requested")
		return nil
	})

	if err := wk.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
}

func runBuild(ctx context.Context, evt *worker.Event) error {
	if evt.Revision() == "" {
		return fmt.Errorf("pipeline %s: no revision to build", evt.PipelineID)
	}
	return ctx.Err()
}
