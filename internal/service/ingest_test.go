package service

import (
	"bytes"
	"context"
	"image/color"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapfeed/internal/pipeline"
)

func encodeTestJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := imaging.New(width, height, color.NRGBA{R: 40, G: 90, B: 160, A: 255})
	buf := new(bytes.Buffer)
	require.NoError(t, imaging.Encode(buf, img, imaging.JPEG))
	return buf.Bytes()
}

func newIngestFixture() (*IngestService, *fakeRecordStore, *fakeBlobStore, *fakeQueue) {
	records := newFakeRecordStore()
	store := newFakeBlobStore()
	q := &fakeQueue{}
	svc := NewIngestService(records, store, q, zerolog.Nop())
	return svc, records, store, q
}

func TestSubmitCreatesPendingRecordAndEnqueuesJob(t *testing.T) {
	svc, records, store, q := newIngestFixture()
	data := encodeTestJPEG(t, 640, 480)

	record, err := svc.Submit(context.Background(), SubmitInput{
		OwnerID:     "u1",
		Caption:     "hello",
		Data:        data,
		ContentType: "image/jpeg",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "u1", record.OwnerID)
	assert.Equal(t, "hello", record.Caption)
	assert.True(t, strings.HasPrefix(record.OriginalKey, "uploads/u1/"))
	assert.True(t, strings.HasSuffix(record.OriginalKey, ".jpeg"))
	assert.Nil(t, record.ThumbnailKey)
	assert.Nil(t, record.MediumKey)

	stored, err := records.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.False(t, stored.Derived())

	blob, err := store.Get(context.Background(), record.OriginalKey)
	require.NoError(t, err)
	assert.Equal(t, data, blob)

	jobs := q.all()
	require.Len(t, jobs, 1)
	assert.Equal(t, pipeline.DerivationJob{RecordID: record.ID, OriginalKey: record.OriginalKey}, jobs[0])
}

func TestSubmitRejectsNonImageContentTypeWithoutSideEffects(t *testing.T) {
	svc, records, store, q := newIngestFixture()

	_, err := svc.Submit(context.Background(), SubmitInput{
		OwnerID:     "u1",
		Caption:     "hello",
		Data:        []byte("plain text"),
		ContentType: "text/plain",
	})
	assert.ErrorIs(t, err, pipeline.ErrInvalidInput)

	assert.Equal(t, 0, store.count())
	assert.Empty(t, q.all())
	list, _ := records.List(context.Background(), 10, 0)
	assert.Empty(t, list)
}

func TestSubmitRejectsMismatchedDeclaredType(t *testing.T) {
	svc, _, store, q := newIngestFixture()

	// Valid PNG bytes declared as JPEG.
	img := imaging.New(10, 10, color.NRGBA{A: 255})
	buf := new(bytes.Buffer)
	require.NoError(t, imaging.Encode(buf, img, imaging.PNG))

	_, err := svc.Submit(context.Background(), SubmitInput{
		OwnerID:     "u1",
		Caption:     "hello",
		Data:        buf.Bytes(),
		ContentType: "image/jpeg",
	})
	assert.ErrorIs(t, err, pipeline.ErrInvalidInput)
	assert.Equal(t, 0, store.count())
	assert.Empty(t, q.all())
}

func TestSubmitRejectsEmptyPayload(t *testing.T) {
	svc, _, store, q := newIngestFixture()

	_, err := svc.Submit(context.Background(), SubmitInput{
		OwnerID:     "u1",
		Caption:     "hello",
		ContentType: "image/jpeg",
	})
	assert.ErrorIs(t, err, pipeline.ErrInvalidInput)
	assert.Equal(t, 0, store.count())
	assert.Empty(t, q.all())
}

func TestSubmitEnforcesCaptionBounds(t *testing.T) {
	svc, _, _, _ := newIngestFixture()
	data := encodeTestJPEG(t, 32, 32)

	_, err := svc.Submit(context.Background(), SubmitInput{
		OwnerID:     "u1",
		Caption:     "",
		Data:        data,
		ContentType: "image/jpeg",
	})
	assert.ErrorIs(t, err, pipeline.ErrInvalidInput)

	_, err = svc.Submit(context.Background(), SubmitInput{
		OwnerID:     "u1",
		Caption:     strings.Repeat("x", 281),
		Data:        data,
		ContentType: "image/jpeg",
	})
	assert.ErrorIs(t, err, pipeline.ErrInvalidInput)

	// 280 runes is the inclusive upper bound.
	_, err = svc.Submit(context.Background(), SubmitInput{
		OwnerID:     "u1",
		Caption:     strings.Repeat("y", 280),
		Data:        data,
		ContentType: "image/jpeg",
	})
	assert.NoError(t, err)
}

func TestSubmitAbortsWhenOriginalPutFails(t *testing.T) {
	svc, records, store, q := newIngestFixture()
	store.failPut = true

	_, err := svc.Submit(context.Background(), SubmitInput{
		OwnerID:     "u1",
		Caption:     "hello",
		Data:        encodeTestJPEG(t, 32, 32),
		ContentType: "image/jpeg",
	})
	assert.ErrorIs(t, err, pipeline.ErrStorageUnavailable)

	list, _ := records.List(context.Background(), 10, 0)
	assert.Empty(t, list)
	assert.Empty(t, q.all())
}

func TestSubmitSurfacesRecordCreateFailureWithoutEnqueue(t *testing.T) {
	svc, records, store, q := newIngestFixture()
	records.failCreate = true

	_, err := svc.Submit(context.Background(), SubmitInput{
		OwnerID:     "u1",
		Caption:     "hello",
		Data:        encodeTestJPEG(t, 32, 32),
		ContentType: "image/jpeg",
	})
	assert.ErrorIs(t, err, pipeline.ErrRecordStoreUnavailable)

	// The orphaned original is acceptable garbage; no job may exist.
	assert.Equal(t, 1, store.count())
	assert.Empty(t, q.all())
}

func TestSubmitReturnsRecordWhenEnqueueFails(t *testing.T) {
	svc, records, _, q := newIngestFixture()
	q.failEnqueue = true

	record, err := svc.Submit(context.Background(), SubmitInput{
		OwnerID:     "u1",
		Caption:     "hello",
		Data:        encodeTestJPEG(t, 32, 32),
		ContentType: "image/jpeg",
	})
	assert.ErrorIs(t, err, pipeline.ErrQueueUnavailable)
	assert.NotEmpty(t, record.ID)

	// The record exists and stays observable in pending shape.
	stored, getErr := records.GetByID(context.Background(), record.ID)
	require.NoError(t, getErr)
	assert.False(t, stored.Derived())
}

func TestSubmitIsolatesOwners(t *testing.T) {
	svc, _, _, q := newIngestFixture()

	first, err := svc.Submit(context.Background(), SubmitInput{
		OwnerID:     "u1",
		Caption:     "mine",
		Data:        encodeTestJPEG(t, 64, 64),
		ContentType: "image/jpeg",
	})
	require.NoError(t, err)

	second, err := svc.Submit(context.Background(), SubmitInput{
		OwnerID:     "u2",
		Caption:     "theirs",
		Data:        encodeTestJPEG(t, 64, 64),
		ContentType: "image/jpeg",
	})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.OriginalKey, second.OriginalKey)
	assert.True(t, strings.HasPrefix(first.OriginalKey, "uploads/u1/"))
	assert.True(t, strings.HasPrefix(second.OriginalKey, "uploads/u2/"))

	jobs := q.all()
	require.Len(t, jobs, 2)
	assert.NotEqual(t, jobs[0].RecordID, jobs[1].RecordID)
}
