package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ListPendingPosts surfaces records that have not reached ready shape within
// the given age, so operators can alert on a stuck pipeline.
func (h HandlerSet) ListPendingPosts(c *gin.Context) {
	olderThan := h.cfg.Sweeper.PendingThreshold
	if raw := c.Query("olderThan"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_older_than"})
			return
		}
		olderThan = parsed
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	records, err := h.records.ListPendingOlderThan(c.Request.Context(), cutoff, 200)
	if err != nil {
		h.log.Error().Err(err).Msg("list pending failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
		return
	}

	items := make([]map[string]any, 0, len(records))
	for _, record := range records {
		items = append(items, map[string]any{
			"id":          record.ID,
			"ownerId":     record.OwnerID,
			"originalKey": record.OriginalKey,
			"createdAt":   record.CreatedAt,
			"pendingFor":  time.Since(record.CreatedAt).String(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}
