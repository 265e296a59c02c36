package activity

import "time"

const (
	TopicQueueVisited     = "QUEUE_VISITED"
	TopicQueueFavorited   = "QUEUE_FAVORITED"
	TopicQueueUnfavorited = "QUEUE_UNFAVORITED"
)

type QueueVisitedEvent struct {
	QueueID          string    `json:"queue_id"`
	QueueName        string    `json:"queue_name"`
	OrganizationName string    `json:"organization_name"`
	SourceCode       string    `json:"source_code,omitempty"`
	WaitMinutes      float64   `json:"wait_minutes"`
	VisitedAt        time.Time `json:"visited_at"`
	Timestamp        time.Time `json:"timestamp"`
}

type QueueFavoritedEvent struct {
	QueueID          string    `json:"queue_id"`
	QueueName        string    `json:"queue_name"`
	OrganizationName string    `json:"organization_name"`
	Notifications    bool      `json:"notifications"`
	Timestamp        time.Time `json:"timestamp"`
}

type QueueUnfavoritedEvent struct {
	QueueID   string    `json:"queue_id"`
	Timestamp time.Time `json:"timestamp"`
}
