package models

import "time"

type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// PushSubscription is the platform-level push handle shared by every queue
// registration of one client.
type PushSubscription struct {
	ID        string    `json:"id"`
	Endpoint  string    `json:"endpoint"`
	Keys      PushKeys  `json:"keys"`
	CreatedAt time.Time `json:"createdAt"`
}

type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

type NotificationPreferences struct {
	QueueUpdates   bool `json:"queueUpdates"`
	WaitTimeAlerts bool `json:"waitTimeAlerts"`
	StatusChanges  bool `json:"statusChanges"`
}

func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{
		QueueUpdates:   true,
		WaitTimeAlerts: true,
		StatusChanges:  true,
	}
}
