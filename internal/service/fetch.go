package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vogiaan1904/ticketbottle-queuesync/internal/api"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/cache"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/models"
	pkgErrors "github.com/vogiaan1904/ticketbottle-queuesync/pkg/errors"
	"github.com/vogiaan1904/ticketbottle-queuesync/pkg/logger"
)

// NewSnapshotFetcher adapts a QueueFetcher to the cache, retrying transient failures.
func NewSnapshotFetcher(fetcher api.QueueFetcher, retry RetryConfig, l logger.Logger) cache.FetchFunc[models.QueueSnapshot] {
	return func(ctx context.Context, queueID string) (models.QueueSnapshot, error) {
		var snap models.QueueSnapshot
		err := withRetry(ctx, retry, l, func() error {
			var err error
			snap, err = fetcher.GetQueue(ctx, queueID)
			return err
		})
		if pkgErrors.IsStatus(err, http.StatusNotFound) {
			return models.QueueSnapshot{}, fmt.Errorf("%w: %s", ErrQueueNotFound, queueID)
		}
		return snap, err
	}
}

func withRetry(ctx context.Context, cfg RetryConfig, l logger.Logger, operation func() error) error {
	attempts := max(cfg.Attempts, 1)
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Delay * time.Duration(attempt)):
			}
		}

		if err := operation(); err != nil {
			lastErr = err
			if !pkgErrors.IsRetryable(err) || ctx.Err() != nil {
				return err
			}
			l.Warnf(ctx, "service.withRetry: attempt %d/%d failed: %v", attempt+1, attempts, err)
			continue
		}

		return nil
	}

	return fmt.Errorf("operation failed after %d attempts: %w", attempts, lastErr)
}
