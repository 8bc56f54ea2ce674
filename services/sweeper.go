package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartExpirySweeper runs BulkRefreshExpired every interval until ctx is done.
// Reads refresh lazily anyway; the sweep keeps stored statuses close to real time.
func StartExpirySweeper(ctx context.Context, svc *LifecycleService, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := svc.BulkRefreshExpired(ctx); err != nil && ctx.Err() == nil {
					svc.logger.Warn("expiry sweep failed", zap.Error(err))
				}
			}
		}
	}()
}
