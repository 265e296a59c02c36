package repository

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("key not found")

// KeyValueStore is the persistence seam for client-side state. Set must be visible to
// every subsequent Get and must signal subscribers of the same key.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Subscribe returns a channel that receives a signal after each change of key.
	// Signals coalesce: a slow reader sees at least one signal after the latest change.
	// The returned func stops the subscription and closes the channel.
	Subscribe(ctx context.Context, key string) (<-chan struct{}, func())
}

// Well-known keys.
const (
	KeyHistory           = "queue_history"
	KeyVisits            = "queue_visits"
	KeyFavorites         = "queue_favorites"
	KeyPushSubscriptions = "queue_push_subscriptions"
)
