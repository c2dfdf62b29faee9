package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"snapfeed/internal/config"
	"snapfeed/internal/pipeline"
)

// Producer appends derivation jobs to the stream read by the worker's
// consumer group. Delivery is at least once; consumers must tolerate
// duplicates.
type Producer struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewProducer(client *redis.Client, cfg config.QueueConfig) *Producer {
	return &Producer{
		client: client,
		stream: cfg.Stream,
		maxLen: cfg.MaxLen,
	}
}

func (p *Producer) Enqueue(ctx context.Context, job pipeline.DerivationJob) error {
	values, err := encodeEntry(job, 0)
	if err != nil {
		return err
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w: %w", p.stream, pipeline.ErrQueueUnavailable, err)
	}
	return nil
}
