package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundtrace/soundtrace/internal/errors"
	"github.com/soundtrace/soundtrace/internal/util"
)

// GetStats handles GET /stats: a lightweight, read-only summary of
// index and task ledger size.
func (h *Handlers) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	trackCount, err := h.kernel.Store().CountTracks(ctx)
	if err != nil {
		util.RespondWithAPIError(c, errors.InternalError(err.Error()))
		return
	}
	postingCount, err := h.kernel.Store().CountPostings(ctx)
	if err != nil {
		util.RespondWithAPIError(c, errors.InternalError(err.Error()))
		return
	}
	taskCounts, err := h.kernel.Ledger().CountsByStatus(ctx)
	if err != nil {
		util.RespondWithAPIError(c, errors.InternalError(err.Error()))
		return
	}

	tasksByStatus := make(map[string]int64, len(taskCounts))
	for status, count := range taskCounts {
		tasksByStatus[string(status)] = count
	}

	c.JSON(http.StatusOK, gin.H{
		"tracks":          trackCount,
		"postings":        postingCount,
		"tasks_by_status": tasksByStatus,
	})
}
