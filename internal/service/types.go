package service

import (
	"time"

	"github.com/vogiaan1904/ticketbottle-queuesync/internal/models"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/notification"
)

type ViewQueueOutput struct {
	Queue      models.QueueSnapshot `json:"queue"`
	IsFavorite bool                 `json:"is_favorite"`
	// Stale is set when the backend could not be reached and the last cached snapshot
	// was served instead.
	Stale     bool      `json:"stale,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

type ToggleFavoriteOutput struct {
	QueueID             string               `json:"queue_id"`
	Favorite            bool                 `json:"favorite"`
	Notification        notification.Outcome `json:"notification"`
	NotificationFailure string               `json:"notification_failure,omitempty"`
}

type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts: 3,
		Delay:    200 * time.Millisecond,
	}
}
