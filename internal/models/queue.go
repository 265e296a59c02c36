package models

import "time"

// QueueRef identifies a queue as the client knows it.
type QueueRef struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	OrganizationName string `json:"organizationName"`
}

type QueueStatus string

const (
	QueueStatusActive QueueStatus = "ACTIVE"
	QueueStatusPaused QueueStatus = "PAUSED"
	QueueStatusClosed QueueStatus = "CLOSED"
)

type Organization struct {
	Name string `json:"name"`
}

// QueueSnapshot is the server's view of a queue as returned by GET /api/queues/{id}
// and pushed by queue.updated events.
type QueueSnapshot struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Description     string       `json:"description,omitempty"`
	Status          QueueStatus  `json:"status"`
	CurrentNumber   int          `json:"currentNumber"`
	CurrentWaitTime float64      `json:"currentWaitTime"` // minutes
	Organization    Organization `json:"organization"`
}

func (s *QueueSnapshot) Ref() QueueRef {
	return QueueRef{
		ID:               s.ID,
		Name:             s.Name,
		OrganizationName: s.Organization.Name,
	}
}

// WaitTime converts CurrentWaitTime to a duration.
func (s *QueueSnapshot) WaitTime() time.Duration {
	return time.Duration(s.CurrentWaitTime * float64(time.Minute))
}

type TicketStatus string

const (
	TicketStatusWaiting   TicketStatus = "WAITING"
	TicketStatusCalled    TicketStatus = "CALLED"
	TicketStatusServing   TicketStatus = "SERVING"
	TicketStatusCompleted TicketStatus = "COMPLETED"
	TicketStatusCancelled TicketStatus = "CANCELLED"
	TicketStatusNoShow    TicketStatus = "NO_SHOW"
)

type Ticket struct {
	ID        string       `json:"id"`
	QueueID   string       `json:"queueId"`
	Number    int          `json:"number"`
	Status    TicketStatus `json:"status"`
	Version   int64        `json:"version,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}
