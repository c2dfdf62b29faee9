package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"snapfeed/internal/middleware"
	"snapfeed/internal/models"
	"snapfeed/internal/pipeline"
	"snapfeed/internal/service"
)

type postResponse struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Caption      string    `json:"caption"`
	Status       string    `json:"status"`
	OriginalURL  string    `json:"originalUrl"`
	ThumbnailURL *string   `json:"thumbnailUrl"`
	MediumURL    *string   `json:"mediumUrl"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (h HandlerSet) toPostResponse(record models.MediaRecord) postResponse {
	resp := postResponse{
		ID:          record.ID,
		OwnerID:     record.OwnerID,
		Caption:     record.Caption,
		Status:      "processing",
		OriginalURL: h.store.PublicURL(record.OriginalKey),
		CreatedAt:   record.CreatedAt,
	}
	switch {
	case record.Derived():
		resp.Status = "ready"
		thumbURL := h.store.PublicURL(*record.ThumbnailKey)
		mediumURL := h.store.PublicURL(*record.MediumKey)
		resp.ThumbnailURL = &thumbURL
		resp.MediumURL = &mediumURL
	case record.Failed():
		resp.Status = "failed"
	}
	return resp
}

func (h HandlerSet) CreatePost(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable_file"})
		return
	}

	// The server write timeout does not cancel the request context, so the
	// pipeline calls get their own bound here.
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.HTTP.WriteTimeout)
	defer cancel()

	record, err := h.ingest.Submit(ctx, service.SubmitInput{
		OwnerID:     ownerID,
		Caption:     c.PostForm("caption"),
		Data:        data,
		ContentType: header.Header.Get("Content-Type"),
	})
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, pipeline.ErrQueueUnavailable):
		// The record exists and is visible; derivation will catch up once
		// the reconciliation sweep re-enqueues it.
		h.log.Error().Err(err).Str("record_id", record.ID).Msg("post created without derivation job")
	case errors.Is(err, pipeline.ErrStorageUnavailable), errors.Is(err, pipeline.ErrRecordStoreUnavailable):
		h.log.Error().Err(err).Str("owner_id", ownerID).Msg("post creation failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
		return
	default:
		h.log.Error().Err(err).Str("owner_id", ownerID).Msg("post creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"post": h.toPostResponse(record)})
}

func (h HandlerSet) GetPost(c *gin.Context) {
	record, err := h.records.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "post_not_found"})
			return
		}
		h.log.Error().Err(err).Str("post_id", c.Param("id")).Msg("get post failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"post": h.toPostResponse(record)})
}

func (h HandlerSet) ListUserPosts(c *gin.Context) {
	limit := 20
	offset := 0
	if perPage := c.Query("perPage"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	if page := c.Query("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 1 {
			offset = (v - 1) * limit
		}
	}

	records, err := h.records.ListByOwner(c.Request.Context(), c.Param("userId"), limit, offset)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", c.Param("userId")).Msg("list posts failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
		return
	}

	items := make([]postResponse, 0, len(records))
	for _, record := range records {
		items = append(items, h.toPostResponse(record))
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}
