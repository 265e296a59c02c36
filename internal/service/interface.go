package service

import (
	"context"
	"time"

	"github.com/vogiaan1904/ticketbottle-queuesync/internal/models"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/notification"
)

type HistoryTracker interface {
	AddToHistory(ctx context.Context, ref models.QueueRef, sourceCode string, waitTime *time.Duration) error
}

type FavoritesTracker interface {
	AddToFavorites(ctx context.Context, ref models.QueueRef) (bool, error)
	RemoveFromFavorites(ctx context.Context, queueID string) (bool, error)
	IsFavorite(ctx context.Context, queueID string) (bool, error)
	UpdateFavoriteStats(ctx context.Context, queueID string) error
}

type NotificationManager interface {
	SubscribeToQueue(ctx context.Context, queueID string) (notification.Outcome, error)
	UnsubscribeFromQueue(ctx context.Context, queueID string) (notification.Outcome, error)
}

type SuggestionEngine interface {
	Refresh(ctx context.Context) ([]models.Suggestion, error)
}
