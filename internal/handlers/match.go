package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundtrace/soundtrace/internal/errors"
	"github.com/soundtrace/soundtrace/internal/fingerprint"
	"github.com/soundtrace/soundtrace/internal/matcher"
	"github.com/soundtrace/soundtrace/internal/util"
)

const maxMatchBodyBytes = 20 * 1024 * 1024

// MatchAudio handles POST /match: raw audio bytes in the request body are
// fingerprinted and ranked against the index, synchronously. Unlike
// IngestSong this never touches the task ledger: matching is a read
// operation, not an ingestion job.
func (h *Handlers) MatchAudio(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxMatchBodyBytes+1))
	if err != nil {
		util.RespondBadRequest(c, "failed to read request body")
		return
	}
	if len(raw) > maxMatchBodyBytes {
		util.RespondBadRequest(c, "audio payload too large")
		return
	}

	query, err := fingerprint.FromBytes(raw, h.kernel.Params())
	if err != nil {
		if apiErr, ok := err.(*errors.APIError); ok {
			// No fingerprintable content is "no match", not a failure; only
			// genuinely malformed audio surfaces as an error status.
			if apiErr.Code == errors.ErrEmptyFingerprint {
				c.JSON(http.StatusOK, matcher.NoMatch())
				return
			}
			util.RespondWithAPIError(c, apiErr)
			return
		}
		util.RespondWithAPIError(c, errors.InternalError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.kernel.Matcher().Identify(c.Request.Context(), query))
}
