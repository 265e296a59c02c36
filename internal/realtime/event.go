package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vogiaan1904/ticketbottle-queuesync/internal/models"
)

type EventType string

const (
	EventQueueUpdated  EventType = "queue.updated"
	EventTicketCreated EventType = "ticket.created"
	EventTicketUpdated EventType = "ticket.updated"
)

var ErrUnknownEvent = errors.New("unknown event type")

// Envelope is the wire format shared by every transport.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Event is a decoded server event. Queue is set for queue.updated, Ticket for the
// ticket events.
type Event struct {
	QueueID    string
	Type       EventType
	Queue      *models.QueueSnapshot
	Ticket     *models.Ticket
	ReceivedAt time.Time
}

func DecodeEvent(queueID string, data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}

	ev := Event{
		QueueID:    queueID,
		Type:       env.Type,
		ReceivedAt: time.Now().UTC(),
	}

	switch env.Type {
	case EventQueueUpdated:
		var q models.QueueSnapshot
		if err := json.Unmarshal(env.Payload, &q); err != nil {
			return Event{}, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		ev.Queue = &q
	case EventTicketCreated, EventTicketUpdated:
		var t models.Ticket
		if err := json.Unmarshal(env.Payload, &t); err != nil {
			return Event{}, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		ev.Ticket = &t
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}

	return ev, nil
}

// EncodeEvent builds the wire form of an event payload.
func EncodeEvent(t EventType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: t, Payload: raw})
}

// Handlers receives events by type. Nil handlers are skipped.
type Handlers struct {
	OnQueueUpdate   func(models.QueueSnapshot)
	OnTicketCreated func(models.Ticket)
	OnTicketUpdated func(models.Ticket)
}

func (h Handlers) Handle(ev Event) {
	switch ev.Type {
	case EventQueueUpdated:
		if h.OnQueueUpdate != nil && ev.Queue != nil {
			h.OnQueueUpdate(*ev.Queue)
		}
	case EventTicketCreated:
		if h.OnTicketCreated != nil && ev.Ticket != nil {
			h.OnTicketCreated(*ev.Ticket)
		}
	case EventTicketUpdated:
		if h.OnTicketUpdated != nil && ev.Ticket != nil {
			h.OnTicketUpdated(*ev.Ticket)
		}
	}
}
