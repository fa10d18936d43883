package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hooktrigger/internal"
	"hooktrigger/pkg/worker"
)

type workerFlags struct {
	river        bool
	concurrency  int
	repositories []string
}

func newWorkerCmd(state *cliState) *cobra.Command {
	flags := &workerFlags{}
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume trigger messages and log them",
		Long: `Consume the trigger topic with the configured watermill subscriber, or the
River queue with --river, and log every triggered pipeline. It is a reference
consumer for building pipeline runners on pkg/worker.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWorker(ctx, state.configPath, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.river, "river", false, "consume River jobs instead of the watermill topic")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 4, "messages processed in parallel")
	cmd.Flags().StringSliceVar(&flags.repositories, "repository", nil, "only handle triggers for these repositories (owner/name)")
	return cmd
}

func runWorker(ctx context.Context, configPath string, flags *workerFlags) error {
	cfg, err := worker.LoadSubscriberConfig(configPath)
	if err != nil {
		return err
	}
	logger := internal.NewLogger("worker")
	opts := []worker.Option{
		worker.WithLogger(logger),
		worker.WithConcurrency(flags.concurrency),
		worker.WithTopics(cfg.Topic),
		worker.WithListener(worker.LogListener(logger)),
	}
	if len(flags.repositories) > 0 {
		opts = append(opts, worker.WithRepositories(flags.repositories...))
	}
	logTrigger := func(ctx context.Context, evt *worker.Event) error {
		logger.Info().
			Str("request_id", evt.RequestID).
			Str("pipeline_id", evt.PipelineID).
			Str("provider", evt.Provider).
			Str("repository", evt.Message.Event.Repository).
			Str("ref", evt.Ref()).
			Str("revision", evt.Revision()).
			Msg("pipeline triggered")
		return nil
	}

	if flags.river {
		w := worker.New(opts...)
		w.HandleTopic(cfg.Topic, logTrigger)
		return w.RunRiver(ctx, cfg.RiverQueue)
	}

	w, err := worker.NewFromConfig(cfg, opts...)
	if err != nil {
		return err
	}
	defer w.Close()
	w.HandleTopic(cfg.Topic, logTrigger)
	return w.Run(ctx)
}
