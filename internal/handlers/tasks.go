package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/soundtrace/soundtrace/internal/errors"
	"github.com/soundtrace/soundtrace/internal/ledger"
	"github.com/soundtrace/soundtrace/internal/util"
)

// GetTask handles GET /tasks/:id: the current state of an ingestion task
// (pending/running/completed/failed), including its result blob once it
// reaches a terminal state.
func (h *Handlers) GetTask(c *gin.Context) {
	id := c.Param("id")

	task, err := h.kernel.Ledger().Get(c.Request.Context(), id)
	if err == ledger.ErrTaskNotFound {
		util.RespondNotFound(c, "task")
		return
	}
	if err != nil {
		util.RespondWithAPIError(c, apierrors.InternalError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, task)
}
