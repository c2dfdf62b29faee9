package queue

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"snapfeed/internal/config"
	"snapfeed/internal/pipeline"
)

// JobHandler processes one derivation job to completion. Errors wrapped with
// pipeline.Permanent are dropped to the dead-letter stream; everything else
// is retried with backoff up to the attempt ceiling.
type JobHandler interface {
	Handle(ctx context.Context, job pipeline.DerivationJob) error
}

// StreamClient is the slice of the Redis Streams API the consumer needs.
// *redis.Client satisfies it.
type StreamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
}

type Consumer struct {
	client  StreamClient
	cfg     config.QueueConfig
	logger  zerolog.Logger
	handler JobHandler
}

func NewConsumer(client StreamClient, cfg config.QueueConfig, logger zerolog.Logger, handler JobHandler) *Consumer {
	return &Consumer{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		handler: handler,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(c.cfg.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := c.read(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Error().Err(err).Msg("stream read error")
				time.Sleep(2 * time.Second)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.claimStalled(ctx)
		default:
		}
	}
}

// ensureGroup creates the consumer group, creating the stream if it does not
// exist yet. Redis returns BUSYGROUP when the group is already there.
func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (c *Consumer) read(ctx context.Context) error {
	result, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    10,
		Block:    c.cfg.BlockTimeout,
	}).Result()
	if err != nil && err != redis.Nil {
		return err
	}

	for _, stream := range result {
		for _, msg := range stream.Messages {
			c.handleMessage(ctx, msg)
		}
	}
	return nil
}

// claimStalled adopts messages another consumer read but never acknowledged,
// e.g. after a crash between fetch and XACK. XAUTOCLAIM hands them to this
// consumer once they have been idle past the visibility timeout.
func (c *Consumer) claimStalled(ctx context.Context) {
	next := "0-0"
	for {
		msgs, start, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.cfg.Stream,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			MinIdle:  c.cfg.VisibilityTimeout,
			Start:    next,
			Count:    100,
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Error().Err(err).Msg("autoclaim error")
			}
			return
		}

		for _, msg := range msgs {
			c.handleMessage(ctx, msg)
		}

		if start == "0-0" || len(msgs) == 0 {
			return
		}
		next = start
	}
}

// handleMessage settles every message: done and parked outcomes ack right
// away; the requeue outcome acks once the bumped-attempt re-add lands, so
// the message stays pending through the backoff window. A single job's
// failure never stops the loop.
func (c *Consumer) handleMessage(ctx context.Context, msg redis.XMessage) {
	job, attempt, decodeErr := decodeEntry(msg.Values)
	if decodeErr != nil {
		c.logger.Error().Err(decodeErr).Str("message_id", msg.ID).Msg("undecodable entry")
		c.deadLetter(ctx, msg.Values, decodeErr)
		c.ack(ctx, msg.ID)
		return
	}

	err := c.runJob(ctx, job)
	if err == nil {
		c.ack(ctx, msg.ID)
		return
	}

	if pipeline.IsPermanent(err) {
		c.logger.Warn().
			Err(err).
			Str("record_id", job.RecordID).
			Int("attempt", attempt).
			Msg("permanent failure, dropping job")
		c.deadLetter(ctx, msg.Values, err)
		c.ack(ctx, msg.ID)
		return
	}

	if attempt+1 >= c.cfg.MaxAttempts {
		c.logger.Error().
			Err(err).
			Str("record_id", job.RecordID).
			Int("attempt", attempt).
			Msg("attempt ceiling reached, dropping job")
		c.deadLetter(ctx, msg.Values, err)
		c.ack(ctx, msg.ID)
		return
	}

	c.logger.Warn().
		Err(err).
		Str("record_id", job.RecordID).
		Int("attempt", attempt).
		Msg("transient failure, requeueing")
	c.requeue(msg.Values, attempt+1, msg.ID)
}

// runJob bounds one job's I/O by the visibility timeout. Without the bound a
// stalled backend parks this goroutine indefinitely while the message's idle
// time grows past the visibility timeout and another consumer reprocesses it.
func (c *Consumer) runJob(ctx context.Context, job pipeline.DerivationJob) error {
	jobCtx, cancel := context.WithTimeout(ctx, c.cfg.VisibilityTimeout)
	defer cancel()
	return c.handler.Handle(jobCtx, job)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, id).Err(); err != nil {
		c.logger.Error().Err(err).Str("message_id", id).Msg("ack failed")
	}
}

// requeue re-adds the entry after an exponential backoff so a struggling
// backend is not hammered in a tight loop. The original message is acked only
// once the re-add succeeded: until then it stays in the pending entries list,
// so a crash or a failed XADD inside the backoff window leaves it for
// XAUTOCLAIM to recover instead of losing the retry. The backoff ceiling
// (BackoffBase << MaxAttempts) must stay below the visibility timeout or the
// claim loop would double-deliver waiting retries.
func (c *Consumer) requeue(values map[string]any, attempt int, msgID string) {
	backoff := c.cfg.BackoffBase << (attempt - 1)

	requeued := make(map[string]any, len(values))
	for k, v := range values {
		requeued[k] = v
	}
	requeued[fieldAttempt] = attempt

	time.AfterFunc(backoff, func() {
		ctx := context.Background()
		err := c.client.XAdd(ctx, &redis.XAddArgs{
			Stream: c.cfg.Stream,
			MaxLen: c.cfg.MaxLen,
			Approx: true,
			Values: requeued,
		}).Err()
		if err != nil {
			c.logger.Error().Err(err).Int("attempt", attempt).Msg("requeue failed, message stays pending")
			return
		}
		c.ack(ctx, msgID)
	})
}

func (c *Consumer) deadLetter(ctx context.Context, values map[string]any, cause error) {
	if c.cfg.DeadLetterStream == "" {
		return
	}

	parked := make(map[string]any, len(values)+1)
	for k, v := range values {
		parked[k] = v
	}
	parked["error"] = cause.Error()

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.DeadLetterStream,
		Values: parked,
	}).Err(); err != nil {
		c.logger.Error().Err(err).Msg("dead letter append failed")
	}
}
