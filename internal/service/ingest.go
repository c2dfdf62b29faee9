package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"snapfeed/internal/ids"
	"snapfeed/internal/media/sniffer"
	"snapfeed/internal/models"
	"snapfeed/internal/pipeline"
)

const maxCaptionLength = 280

type SubmitInput struct {
	OwnerID     string
	Caption     string
	Data        []byte
	ContentType string
}

// IngestService runs in the request-handling process. Submit validates the
// upload, stores the original, creates the record in pending shape and
// enqueues the derivation job. No internal retries: transient failures are
// surfaced to the caller, which owns the retry decision.
type IngestService struct {
	records pipeline.RecordStore
	store   pipeline.BlobStore
	queue   pipeline.Enqueuer
	log     zerolog.Logger
}

func NewIngestService(records pipeline.RecordStore, store pipeline.BlobStore, queue pipeline.Enqueuer, log zerolog.Logger) *IngestService {
	return &IngestService{
		records: records,
		store:   store,
		queue:   queue,
		log:     log,
	}
}

// Submit creates a post from an uploaded image. When the record was created
// but the derivation job could not be enqueued, the record is returned
// together with an error wrapping pipeline.ErrQueueUnavailable: the post
// exists and stays visible in pending shape until the reconciliation sweep
// re-enqueues it.
func (s *IngestService) Submit(ctx context.Context, input SubmitInput) (models.MediaRecord, error) {
	result, err := s.validate(input)
	if err != nil {
		return models.MediaRecord{}, err
	}

	key := buildOriginalKey(input.OwnerID, string(result.Type))

	if err := s.store.Put(ctx, key, input.Data, result.MIME); err != nil {
		return models.MediaRecord{}, fmt.Errorf("store original: %w", err)
	}

	now := time.Now().UTC()
	record := models.MediaRecord{
		ID:          ids.New(),
		OwnerID:     input.OwnerID,
		Caption:     input.Caption,
		OriginalKey: key,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.records.Create(ctx, record); err != nil {
		// The stored original is orphaned garbage now, reclaimable by an
		// out-of-band sweep.
		return models.MediaRecord{}, fmt.Errorf("create record: %w", err)
	}

	job := pipeline.DerivationJob{RecordID: record.ID, OriginalKey: key}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.log.Error().Err(err).Str("record_id", record.ID).Msg("enqueue derivation failed, record stays pending")
		return record, fmt.Errorf("enqueue derivation: %w", err)
	}

	return record, nil
}

// validate runs every precondition before any I/O happens.
func (s *IngestService) validate(input SubmitInput) (sniffer.Result, error) {
	if len(input.Data) == 0 {
		return sniffer.Result{}, fmt.Errorf("empty image payload: %w", pipeline.ErrInvalidInput)
	}

	captionLen := utf8.RuneCountInString(input.Caption)
	if captionLen == 0 || captionLen > maxCaptionLength {
		return sniffer.Result{}, fmt.Errorf("caption must be 1-%d characters: %w", maxCaptionLength, pipeline.ErrInvalidInput)
	}

	declared := sniffer.NormalizeMIME(input.ContentType)
	if !strings.HasPrefix(declared, "image/") {
		return sniffer.Result{}, fmt.Errorf("content type %q is not an image: %w", declared, pipeline.ErrInvalidInput)
	}

	head := input.Data
	if len(head) > 512 {
		head = head[:512]
	}
	result, err := sniffer.DetectHead(head)
	if err != nil {
		return sniffer.Result{}, fmt.Errorf("unsupported image format: %w", pipeline.ErrInvalidInput)
	}
	if declared != result.MIME {
		return sniffer.Result{}, fmt.Errorf("content type mismatch: declared %s, actual %s: %w", declared, result.MIME, pipeline.ErrInvalidInput)
	}

	return result, nil
}

func buildOriginalKey(ownerID, ext string) string {
	return fmt.Sprintf("uploads/%s/%d-%s.%s", ownerID, time.Now().UTC().UnixMilli(), ids.New(), ext)
}
