package internal

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"hooktrigger/pkg/trigger"
	"hooktrigger/pkg/worker"
)

// riverQueuePublisher is a publisher that inserts trigger messages as River jobs.
type riverQueuePublisher struct {
	pool   *pgxpool.Pool
	client *river.Client[pgx.Tx]
	cfg    RiverQueueConfig
}

// newRiverQueuePublisher opens a pool and an insert-only River client.
func newRiverQueuePublisher(ctx context.Context, cfg RiverQueueConfig) (*riverQueuePublisher, error) {
	if cfg.DSN == "" {
		return nil, invalidDriver("riverqueue", "dsn is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{})
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &riverQueuePublisher{pool: pool, client: client, cfg: cfg}, nil
}

// Publish inserts one worker.JobArgs job per message. The topic is recorded in the job
// metadata since River routes by queue and kind.
func (p *riverQueuePublisher) Publish(ctx context.Context, topic string, msg trigger.Message) error {
	opts, err := p.insertOpts(topic, msg)
	if err != nil {
		return err
	}
	_, err = p.client.Insert(ctx, worker.JobArgs{Message: msg}, opts)
	return err
}

func (p *riverQueuePublisher) insertOpts(topic string, msg trigger.Message) (*river.InsertOpts, error) {
	metadata, err := json.Marshal(map[string]string{
		worker.MetadataTopic:      topic,
		worker.MetadataPipelineID: msg.PipelineID,
		worker.MetadataRequestID:  msg.RequestID,
	})
	if err != nil {
		return nil, err
	}
	tags := append([]string(nil), p.cfg.Tags...)
	if msg.Event.Provider != "" {
		tags = append(tags, string(msg.Event.Provider))
	}
	return &river.InsertOpts{
		Queue:       p.cfg.Queue,
		MaxAttempts: p.cfg.MaxAttempts,
		Priority:    p.cfg.Priority,
		Tags:        tags,
		Metadata:    metadata,
	}, nil
}

// Close closes the underlying connection pool.
func (p *riverQueuePublisher) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}
