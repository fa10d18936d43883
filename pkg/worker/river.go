package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"hooktrigger/pkg/trigger"
)

// RiverJobKind is the kind of the River jobs the webhook server inserts.
const RiverJobKind = "hooktrigger.pipeline"

// JobArgs is the River job payload: the trigger message itself.
type JobArgs struct {
	trigger.Message
}

func (JobArgs) Kind() string { return RiverJobKind }

type riverJobWorker struct {
	river.WorkerDefaults[JobArgs]
	w *Worker
}

// Work hands the job to the worker's handlers. A handler error fails the
// job so River retries it; permanent errors cancel it.
func (r *riverJobWorker) Work(ctx context.Context, job *river.Job[JobArgs]) error {
	metadata := map[string]string{}
	if len(job.Metadata) > 0 {
		_ = json.Unmarshal(job.Metadata, &metadata)
	}
	topic := metadata[MetadataTopic]
	if topic == "" {
		topic = job.Queue
	}
	evt := newEvent(topic, job.Args.Message, metadata, job.EncodedArgs)
	if evt.PipelineID == "" {
		return river.JobCancel(ErrNoPipeline)
	}
	if err := r.w.process(ctx, evt); err != nil {
		if IsPermanent(err) {
			return river.JobCancel(err)
		}
		return err
	}
	return nil
}

// RunRiver consumes trigger jobs from a River queue instead of a Watermill
// subscriber. It blocks until ctx is canceled.
func (w *Worker) RunRiver(ctx context.Context, cfg RiverConfig) error {
	if cfg.DSN == "" {
		return errors.New("riverqueue dsn is required")
	}
	if cfg.Queue == "" {
		cfg.Queue = river.QueueDefault
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 5
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	workers := river.NewWorkers()
	river.AddWorker(workers, &riverJobWorker{w: w})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			cfg.Queue: {MaxWorkers: cfg.MaxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		return err
	}

	w.listeners.start(ctx)
	defer w.listeners.exit(ctx)
	if err := client.Start(ctx); err != nil {
		return err
	}
	w.logger.Info().Str("queue", cfg.Queue).Int("max_workers", cfg.MaxWorkers).Msg("consuming river jobs")

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return client.Stop(stopCtx)
}
