package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"snapfeed/internal/models"
	"snapfeed/internal/pipeline"
)

func testRecord(id, owner, key string) models.MediaRecord {
	now := time.Now().UTC()
	return models.MediaRecord{
		ID:          id,
		OwnerID:     owner,
		Caption:     "caption",
		OriginalKey: key,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failPut bool
	failGet bool
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (f *fakeBlobStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut {
		return fmt.Errorf("put %s: %w", key, pipeline.ErrStorageUnavailable)
	}
	f.objects[key] = append([]byte(nil), data...)
	f.types[key] = contentType
	return nil
}

func (f *fakeBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return nil, fmt.Errorf("get %s: %w", key, pipeline.ErrStorageUnavailable)
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, pipeline.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeBlobStore) PublicURL(key string) string {
	return "https://cdn.test/media/" + key
}

func (f *fakeBlobStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type fakeRecordStore struct {
	mu             sync.Mutex
	records        map[string]models.MediaRecord
	failCreate     bool
	failUpdate     bool
	failMarkFailed bool
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{records: make(map[string]models.MediaRecord)}
}

func (f *fakeRecordStore) Create(_ context.Context, record models.MediaRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return fmt.Errorf("insert: %w", pipeline.ErrRecordStoreUnavailable)
	}
	f.records[record.ID] = record
	return nil
}

func (f *fakeRecordStore) GetByID(_ context.Context, id string) (models.MediaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return models.MediaRecord{}, fmt.Errorf("record %s: %w", id, pipeline.ErrNotFound)
	}
	return record, nil
}

func (f *fakeRecordStore) SetDerivedKeys(_ context.Context, id, thumbnailKey, mediumKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate {
		return fmt.Errorf("update: %w", pipeline.ErrRecordStoreUnavailable)
	}
	record, ok := f.records[id]
	if !ok {
		return fmt.Errorf("record %s: %w", id, pipeline.ErrNotFound)
	}
	record.ThumbnailKey = &thumbnailKey
	record.MediumKey = &mediumKey
	record.UpdatedAt = time.Now().UTC()
	f.records[id] = record
	return nil
}

func (f *fakeRecordStore) MarkFailed(_ context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMarkFailed {
		return fmt.Errorf("update: %w", pipeline.ErrRecordStoreUnavailable)
	}
	record, ok := f.records[id]
	if !ok || record.Derived() {
		return fmt.Errorf("record %s: %w", id, pipeline.ErrNotFound)
	}
	now := time.Now().UTC()
	record.FailedAt = &now
	record.FailureReason = &reason
	record.UpdatedAt = now
	f.records[id] = record
	return nil
}

func (f *fakeRecordStore) ListPendingOlderThan(_ context.Context, cutoff time.Time, limit int) ([]models.MediaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MediaRecord
	for _, record := range f.records {
		if !record.Derived() && !record.Failed() && record.CreatedAt.Before(cutoff) {
			out = append(out, record)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeRecordStore) ListByOwner(_ context.Context, ownerID string, limit, offset int) ([]models.MediaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MediaRecord
	for _, record := range f.records {
		if record.OwnerID == ownerID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeRecordStore) List(_ context.Context, limit, offset int) ([]models.MediaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MediaRecord
	for _, record := range f.records {
		out = append(out, record)
	}
	return out, nil
}

type fakeQueue struct {
	mu          sync.Mutex
	jobs        []pipeline.DerivationJob
	failEnqueue bool
}

func (f *fakeQueue) Enqueue(_ context.Context, job pipeline.DerivationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEnqueue {
		return fmt.Errorf("xadd: %w", pipeline.ErrQueueUnavailable)
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeQueue) all() []pipeline.DerivationJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.DerivationJob(nil), f.jobs...)
}
