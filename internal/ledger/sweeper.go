package ledger

import (
	"context"
	"time"

	"github.com/soundtrace/soundtrace/internal/logger"
	"go.uber.org/zap"
)

// StartRetentionSweep runs a ticker-driven loop that deletes completed
// tasks older than retention on every tick, until ctx is cancelled.
func StartRetentionSweep(ctx context.Context, l Ledger, interval, retention time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				n, err := l.SweepCompleted(ctx, retention)
				if err != nil {
					logger.ErrorWithFields("task retention sweep failed", err)
					continue
				}
				if n > 0 {
					logger.InfoWithFields("swept completed tasks", zap.Int64("count", n))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
