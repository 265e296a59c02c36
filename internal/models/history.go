package models

import "time"

type HistoryEntry struct {
	Queue      QueueRef  `json:"queue"`
	VisitedAt  time.Time `json:"visitedAt"`
	SourceCode string    `json:"sourceCode,omitempty"`
}

// VisitRecord is one visit kept in the bounded visit log. Unlike HistoryEntry it is
// never deduplicated.
type VisitRecord struct {
	QueueID   string         `json:"queueId"`
	VisitedAt time.Time      `json:"visitedAt"`
	WaitTime  *time.Duration `json:"waitTime,omitempty"`
}

type FavoriteEntry struct {
	Queue       QueueRef  `json:"queue"`
	AddedAt     time.Time `json:"addedAt"`
	LastVisitAt time.Time `json:"lastVisitAt"`
	VisitCount  int       `json:"visitCount"`
}
