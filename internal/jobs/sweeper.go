package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"snapfeed/internal/config"
	"snapfeed/internal/pipeline"
)

// Sweeper periodically re-enqueues derivation jobs for records stuck in
// pending shape, e.g. when the enqueue step failed after the record was
// created or when a job fell off the queue. Safe because derivation is
// idempotent: a duplicate job converges to the same final state.
type Sweeper struct {
	cron    *cron.Cron
	records pipeline.RecordStore
	queue   pipeline.Enqueuer
	cfg     config.SweeperConfig
	log     zerolog.Logger
}

func NewSweeper(records pipeline.RecordStore, queue pipeline.Enqueuer, cfg config.SweeperConfig, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		cron:    cron.New(cron.WithSeconds()),
		records: records,
		queue:   queue,
		cfg:     cfg,
		log:     log,
	}
}

func (s *Sweeper) Start() error {
	if !s.cfg.Enabled {
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.sweep); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *Sweeper) Stop() context.CancelFunc {
	_, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	go func() {
		s.cron.Stop()
		cancel()
	}()
	return cancel
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.cfg.PendingThreshold)
	if err := s.Sweep(ctx, cutoff); err != nil {
		s.log.Error().Err(err).Msg("pending sweep failed")
	}
}

// Sweep re-enqueues one bounded batch of stale pending records.
func (s *Sweeper) Sweep(ctx context.Context, cutoff time.Time) error {
	records, err := s.records.ListPendingOlderThan(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, record := range records {
		job := pipeline.DerivationJob{RecordID: record.ID, OriginalKey: record.OriginalKey}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			return err
		}
		s.log.Info().
			Str("record_id", record.ID).
			Time("created_at", record.CreatedAt).
			Msg("re-enqueued stale pending record")
	}

	return nil
}
