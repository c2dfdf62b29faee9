package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"snapfeed/internal/media/variant"
	"snapfeed/internal/pipeline"
)

// DeriveService runs in the worker process and turns one original into its
// thumbnail and medium renditions. Every step is idempotent: the derived
// keys are a pure function of the record id and the variant computation is
// deterministic, so redelivered jobs overwrite the same objects with
// equivalent bytes and reapply the same record update.
type DeriveService struct {
	records pipeline.RecordStore
	store   pipeline.BlobStore
	cfg     variant.Config
	log     zerolog.Logger
}

func NewDeriveService(records pipeline.RecordStore, store pipeline.BlobStore, cfg variant.Config, log zerolog.Logger) *DeriveService {
	return &DeriveService{
		records: records,
		store:   store,
		cfg:     cfg,
		log:     log,
	}
}

// ThumbnailKey and MediumKey derive the object keys from the record id
// alone. Deterministic naming is what makes reprocessing converge instead of
// piling up duplicate objects.
func ThumbnailKey(recordID string) string {
	return fmt.Sprintf("thumbnails/%s.jpg", recordID)
}

func MediumKey(recordID string) string {
	return fmt.Sprintf("medium/%s.jpg", recordID)
}

// Handle processes one job. Errors wrapped with pipeline.Permanent tell the
// consumer to drop the job; anything else is retried via redelivery.
func (s *DeriveService) Handle(ctx context.Context, job pipeline.DerivationJob) error {
	original, err := s.store.Get(ctx, job.OriginalKey)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			// The original is gone; redelivery cannot bring it back.
			return s.giveUp(ctx, job.RecordID, fmt.Errorf("original %s: %w", job.OriginalKey, err))
		}
		return fmt.Errorf("fetch original: %w", err)
	}

	variants, err := variant.Derive(original, s.cfg)
	if err != nil {
		return s.giveUp(ctx, job.RecordID, fmt.Errorf("derive variants for %s: %w", job.RecordID, err))
	}

	thumbKey := ThumbnailKey(job.RecordID)
	mediumKey := MediumKey(job.RecordID)

	if err := s.store.Put(ctx, thumbKey, variants.Thumbnail, variant.ContentType); err != nil {
		return fmt.Errorf("store thumbnail: %w", err)
	}
	if err := s.store.Put(ctx, mediumKey, variants.Medium, variant.ContentType); err != nil {
		return fmt.Errorf("store medium: %w", err)
	}

	if err := s.records.SetDerivedKeys(ctx, job.RecordID, thumbKey, mediumKey); err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			// Record deleted while the job was in flight. The orphaned
			// variants share the record id prefix and are sweepable.
			return pipeline.Permanent(fmt.Errorf("record %s: %w", job.RecordID, err))
		}
		return fmt.Errorf("publish derived keys: %w", err)
	}

	s.log.Info().
		Str("record_id", job.RecordID).
		Str("thumbnail_key", thumbKey).
		Str("medium_key", mediumKey).
		Msg("derivation complete")

	return nil
}

// giveUp marks the record as permanently failed and returns the permanent
// error. The marker takes the record out of the pending set, which is what
// stops the reconciliation sweep from re-enqueueing a job that can never
// succeed. Marking is best-effort: if the record store is down the job still
// dead-letters, and the next sweep redelivers it so marking gets retried.
func (s *DeriveService) giveUp(ctx context.Context, recordID string, cause error) error {
	if err := s.records.MarkFailed(ctx, recordID, cause.Error()); err != nil {
		s.log.Error().Err(err).Str("record_id", recordID).Msg("mark failed did not stick")
	} else {
		s.log.Warn().Err(cause).Str("record_id", recordID).Msg("record marked permanently failed")
	}
	return pipeline.Permanent(cause)
}
