package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/soundtrace/soundtrace/internal/ledger"
	"github.com/soundtrace/soundtrace/internal/logger"
	"github.com/soundtrace/soundtrace/internal/models"
	"go.uber.org/zap"
)

// taskPollInterval is how often a watched task is re-read from the ledger.
// Short enough that a CLI client feels responsive, long enough not to
// hammer the database for a task that takes minutes to finish.
const taskPollInterval = 500 * time.Millisecond

// HandleTaskWatch upgrades the connection, re-reads the task every
// taskPollInterval, and pushes its state whenever the status differs from
// the last one pushed; after pushing a terminal status it closes. It never
// writes more than once for the same status, so a client watching a
// fast-finishing task sees pending (maybe), running (maybe), then exactly
// one terminal message.
func HandleTaskWatch(tasks ledger.Ledger, taskID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			CompressionMode: websocket.CompressionDisabled,
		})
		if err != nil {
			logger.Log.Warn("task watch: websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()

		var lastStatus models.TaskStatus
		ticker := time.NewTicker(taskPollInterval)
		defer ticker.Stop()

		for {
			task, err := tasks.Get(r.Context(), taskID)
			if err == ledger.ErrTaskNotFound {
				writeTaskCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
				wsjson.Write(writeTaskCtx, conn, map[string]string{"error": "task not found"})
				cancel()
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err == nil && task.Status != lastStatus {
				lastStatus = task.Status
				writeCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
				writeErr := wsjson.Write(writeCtx, conn, task)
				cancel()
				if writeErr != nil {
					return
				}
				if task.Status == models.TaskStatusCompleted || task.Status == models.TaskStatusFailed {
					conn.Close(websocket.StatusNormalClosure, "")
					return
				}
			}

			select {
			case <-ticker.C:
			case <-r.Context().Done():
				return
			}
		}
	}
}
