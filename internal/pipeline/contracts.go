package pipeline

import (
	"context"
	"time"

	"snapfeed/internal/models"
)

// DerivationJob is what travels on the queue. No bytes here; the worker
// fetches by OriginalKey. It is a value, not an entity: the queue may
// redeliver it any number of times and processing must converge.
type DerivationJob struct {
	RecordID    string `json:"recordId"`
	OriginalKey string `json:"originalKey"`
}

// BlobStore is the object-store boundary consumed by both stages.
// Implementations must be safe for concurrent use.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	PublicURL(key string) string
}

// RecordStore is the durable store for MediaRecord metadata.
type RecordStore interface {
	Create(ctx context.Context, record models.MediaRecord) error
	GetByID(ctx context.Context, id string) (models.MediaRecord, error)
	// SetDerivedKeys publishes both derived keys in one overwrite; applying
	// it twice with the same keys leaves the record unchanged.
	SetDerivedKeys(ctx context.Context, id, thumbnailKey, mediumKey string) error
	// MarkFailed takes a record out of circulation after a permanent
	// derivation failure, so the reconciliation sweep stops re-enqueueing it.
	MarkFailed(ctx context.Context, id, reason string) error
	// ListPendingOlderThan returns records still awaiting derivation,
	// excluding ones marked failed.
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.MediaRecord, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]models.MediaRecord, error)
	List(ctx context.Context, limit, offset int) ([]models.MediaRecord, error)
}

// Enqueuer hands a DerivationJob to the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job DerivationJob) error
}
