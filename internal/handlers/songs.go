package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/soundtrace/soundtrace/internal/adapter"
	"github.com/soundtrace/soundtrace/internal/errors"
	"github.com/soundtrace/soundtrace/internal/util"
)

type ingestSongRequest struct {
	SourceURL string `json:"source_url"`
}

// IngestSong handles POST /songs {source_url}: creates an ingestion task
// for either a single track or a playlist, depending on the URL shape, and
// returns the task_id the caller polls at GET /tasks/{id}.
func (h *Handlers) IngestSong(c *gin.Context) {
	var req ingestSongRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SourceURL == "" {
		util.RespondBadRequest(c, "missing source_url parameter")
		return
	}

	pool := h.kernel.IngestPool()
	var taskID string
	var err error
	if adapter.IsPlaylistURL(req.SourceURL) {
		taskID, err = pool.SubmitPlaylist(c.Request.Context(), req.SourceURL)
	} else {
		taskID, err = pool.SubmitTrack(c.Request.Context(), req.SourceURL)
	}
	if err != nil {
		util.RespondWithAPIError(c, errors.InternalError(err.Error()))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID})
}

// ListSongs handles GET /songs: every track currently in the index.
func (h *Handlers) ListSongs(c *gin.Context) {
	tracks, err := h.kernel.Store().ListTracks(c.Request.Context())
	if err != nil {
		util.RespondWithAPIError(c, errors.InternalError(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"tracks": tracks, "count": len(tracks)})
}

// DeleteSong handles DELETE /songs/:id: removes a track and its postings.
func (h *Handlers) DeleteSong(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		util.RespondBadRequest(c, "invalid track id")
		return
	}

	deleted, err := h.kernel.Store().DeleteTrack(c.Request.Context(), uint32(id))
	if err != nil {
		util.RespondWithAPIError(c, errors.InternalError(err.Error()))
		return
	}
	if !deleted {
		util.RespondNotFound(c, "track")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "track_id": id})
}
