package notification

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/vogiaan1904/ticketbottle-queuesync/internal/metrics"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/models"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/repository"
	"github.com/vogiaan1904/ticketbottle-queuesync/pkg/logger"
)

const DefaultTimeout = 10 * time.Second

// Outcome is the result of a subscribe or unsubscribe call.
type Outcome string

const (
	OutcomeSubscribed        Outcome = "subscribed"
	OutcomeAlreadySubscribed Outcome = "already_subscribed"
	OutcomeUnsubscribed      Outcome = "unsubscribed"
	OutcomeNotSubscribed     Outcome = "not_subscribed"
	OutcomePermissionDenied  Outcome = "permission_denied"
	OutcomeUnsupported       Outcome = "unsupported"
	OutcomeFailed            Outcome = "failed"
)

// Succeeded reports whether the requested state now holds.
func (o Outcome) Succeeded() bool {
	switch o {
	case OutcomeSubscribed, OutcomeAlreadySubscribed, OutcomeUnsubscribed, OutcomeNotSubscribed:
		return true
	default:
		return false
	}
}

// RemoteService registers per-queue push deliveries with the backend.
type RemoteService interface {
	SubscribeNotifications(ctx context.Context, queueID string, sub models.PushSubscription, prefs models.NotificationPreferences) error
	UnsubscribeNotifications(ctx context.Context, queueID string, sub models.PushSubscription) error
}

type pushState struct {
	Subscription *models.PushSubscription `json:"subscription,omitempty"`
	Queues       []string                 `json:"queues"`
}

// Manager owns the platform push subscription. The subscription exists while at least
// one queue is registered and is torn down when the last one is removed.
type Manager struct {
	platform Platform
	remote   RemoteService
	store    repository.KeyValueStore
	l        logger.Logger
	timeout  time.Duration

	mu         sync.Mutex
	permission models.Permission
	state      pushState
}

type Option func(*Manager)

func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// NewManager reads the platform permission once and restores the persisted
// subscription state.
func NewManager(ctx context.Context, platform Platform, remote RemoteService, store repository.KeyValueStore, l logger.Logger, opts ...Option) (*Manager, error) {
	m := &Manager{
		platform: platform,
		remote:   remote,
		store:    store,
		l:        l,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}

	if platform.Supported() {
		m.permission = platform.Permission(ctx)
	} else {
		m.permission = models.PermissionDefault
	}

	state, err := repository.LoadJSON(ctx, store, l, repository.KeyPushSubscriptions, pushState{})
	if err != nil {
		return nil, fmt.Errorf("notification: %w", err)
	}
	if state.Queues == nil {
		state.Queues = []string{}
	}
	m.state = state

	if state.Subscription != nil {
		if a, ok := platform.(interface{ Adopt(models.PushSubscription) }); ok {
			a.Adopt(*state.Subscription)
		}
	}

	return m, nil
}

func (m *Manager) Permission() models.Permission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permission
}

func (m *Manager) HasPermission() bool {
	return m.Permission() == models.PermissionGranted
}

// SubscribedQueues returns the queue ids currently registered for notifications.
func (m *Manager) SubscribedQueues() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.state.Queues)
}

// RequestPermission prompts for permission and reports whether it is granted. It never
// prompts on a platform without notification support.
func (m *Manager) RequestPermission(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestPermission(ctx)
}

func (m *Manager) requestPermission(ctx context.Context) (bool, error) {
	if !m.platform.Supported() {
		return false, nil
	}

	perm, err := m.platform.RequestPermission(ctx)
	if err != nil {
		m.l.Warnf(ctx, "notification.Manager.RequestPermission: %v", err)
		return false, err
	}

	m.permission = perm
	return perm == models.PermissionGranted, nil
}

// SubscribeToQueue registers queueID for push notifications. A denied permission is not
// an error: it yields OutcomePermissionDenied with no side effects. Errors are returned
// only with OutcomeFailed.
func (m *Manager) SubscribeToQueue(ctx context.Context, queueID string) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	outcome, err := m.subscribe(ctx, queueID)
	metrics.NotificationRegistrations.WithLabelValues("subscribe", string(outcome)).Inc()
	if err != nil {
		m.l.Errorf(ctx, "notification.Manager.SubscribeToQueue: queue=%s: %v", queueID, err)
	}
	return outcome, err
}

func (m *Manager) subscribe(ctx context.Context, queueID string) (Outcome, error) {
	if !m.platform.Supported() {
		return OutcomeUnsupported, nil
	}

	switch m.permission {
	case models.PermissionGranted:
	case models.PermissionDenied:
		return OutcomePermissionDenied, nil
	default:
		granted, err := m.requestPermission(ctx)
		if err != nil {
			return OutcomeFailed, err
		}
		if !granted {
			return OutcomePermissionDenied, nil
		}
	}

	if slices.Contains(m.state.Queues, queueID) {
		return OutcomeAlreadySubscribed, nil
	}

	created := m.state.Subscription == nil
	sub, err := m.platform.Subscribe(ctx)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("platform subscribe: %w", err)
	}

	rctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.remote.SubscribeNotifications(rctx, queueID, sub, models.DefaultNotificationPreferences()); err != nil {
		if created {
			m.releasePlatform(ctx, sub)
		}
		return OutcomeFailed, fmt.Errorf("register queue %s: %w", queueID, err)
	}

	m.state.Subscription = &sub
	m.state.Queues = append(m.state.Queues, queueID)
	// The backend registration stands; a failed save only loses it across restarts.
	if err := m.persist(ctx); err != nil {
		m.l.Warnf(ctx, "notification.Manager.subscribe: queue=%s: %v", queueID, err)
	}

	return OutcomeSubscribed, nil
}

// UnsubscribeFromQueue removes the registration for queueID and releases the platform
// subscription when no queue needs it anymore.
func (m *Manager) UnsubscribeFromQueue(ctx context.Context, queueID string) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	outcome, err := m.unsubscribe(ctx, queueID)
	metrics.NotificationRegistrations.WithLabelValues("unsubscribe", string(outcome)).Inc()
	if err != nil {
		m.l.Errorf(ctx, "notification.Manager.UnsubscribeFromQueue: queue=%s: %v", queueID, err)
	}
	return outcome, err
}

func (m *Manager) unsubscribe(ctx context.Context, queueID string) (Outcome, error) {
	if m.state.Subscription == nil || !slices.Contains(m.state.Queues, queueID) {
		return OutcomeNotSubscribed, nil
	}

	sub := *m.state.Subscription

	rctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.remote.UnsubscribeNotifications(rctx, queueID, sub); err != nil {
		return OutcomeFailed, fmt.Errorf("unregister queue %s: %w", queueID, err)
	}

	m.state.Queues = slices.DeleteFunc(m.state.Queues, func(id string) bool { return id == queueID })
	if len(m.state.Queues) == 0 {
		m.releasePlatform(ctx, sub)
		m.state.Subscription = nil
	}

	if err := m.persist(ctx); err != nil {
		m.l.Warnf(ctx, "notification.Manager.unsubscribe: queue=%s: %v", queueID, err)
	}

	return OutcomeUnsubscribed, nil
}

func (m *Manager) releasePlatform(ctx context.Context, sub models.PushSubscription) {
	if err := m.platform.Unsubscribe(ctx, sub); err != nil {
		m.l.Warnf(ctx, "notification.Manager.releasePlatform: %v", err)
	}
}

func (m *Manager) persist(ctx context.Context) error {
	if err := repository.SaveJSON(ctx, m.store, repository.KeyPushSubscriptions, m.state); err != nil {
		return fmt.Errorf("persist push state: %w", err)
	}
	return nil
}
