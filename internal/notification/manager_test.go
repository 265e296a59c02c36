package notification

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogiaan1904/ticketbottle-queuesync/internal/models"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/repository"
	"github.com/vogiaan1904/ticketbottle-queuesync/pkg/logger"
)

type remoteCall struct {
	op      string
	queueID string
	subID   string
}

type fakeRemote struct {
	mu    sync.Mutex
	calls []remoteCall
	err   error
}

func (f *fakeRemote) SubscribeNotifications(ctx context.Context, queueID string, sub models.PushSubscription, prefs models.NotificationPreferences) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, remoteCall{op: "subscribe", queueID: queueID, subID: sub.ID})
	return f.err
}

func (f *fakeRemote) UnsubscribeNotifications(ctx context.Context, queueID string, sub models.PushSubscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, remoteCall{op: "unsubscribe", queueID: queueID, subID: sub.ID})
	return f.err
}

func (f *fakeRemote) Calls() []remoteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remoteCall(nil), f.calls...)
}

type countingPrompter struct {
	grant bool
	n     int
}

func (p *countingPrompter) Prompt(context.Context) (bool, error) {
	p.n++
	return p.grant, nil
}

func newManager(t *testing.T, platform Platform, remote RemoteService, store repository.KeyValueStore) *Manager {
	t.Helper()
	m, err := NewManager(context.Background(), platform, remote, store, logger.InitializeTestZapLogger())
	require.NoError(t, err)
	return m
}

func TestSubscribe_DeniedPermissionHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	prompter := &countingPrompter{grant: true}
	platform := NewDevicePlatform("http://push.local", models.PermissionDenied, prompter)
	remote := &fakeRemote{}
	store := repository.NewMemoryStore()
	m := newManager(t, platform, remote, store)

	outcome, err := m.SubscribeToQueue(ctx, "Q")
	require.NoError(t, err)
	assert.Equal(t, OutcomePermissionDenied, outcome)
	assert.False(t, outcome.Succeeded())

	assert.Empty(t, remote.Calls())
	assert.Empty(t, m.SubscribedQueues())
	assert.Zero(t, prompter.n, "a denied permission is never re-requested")

	_, err = store.Get(ctx, repository.KeyPushSubscriptions)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSubscribe_PromptsOnceWhenUndecided(t *testing.T) {
	ctx := context.Background()

	t.Run("refused", func(t *testing.T) {
		prompter := &countingPrompter{grant: false}
		remote := &fakeRemote{}
		m := newManager(t, NewDevicePlatform("http://push.local", models.PermissionDefault, prompter), remote, repository.NewMemoryStore())

		outcome, err := m.SubscribeToQueue(ctx, "Q")
		require.NoError(t, err)
		assert.Equal(t, OutcomePermissionDenied, outcome)
		assert.Equal(t, 1, prompter.n)

		_, err = m.SubscribeToQueue(ctx, "Q")
		require.NoError(t, err)
		assert.Equal(t, 1, prompter.n)
		assert.Empty(t, remote.Calls())
	})

	t.Run("granted", func(t *testing.T) {
		prompter := &countingPrompter{grant: true}
		remote := &fakeRemote{}
		m := newManager(t, NewDevicePlatform("http://push.local", models.PermissionDefault, prompter), remote, repository.NewMemoryStore())

		outcome, err := m.SubscribeToQueue(ctx, "Q")
		require.NoError(t, err)
		assert.Equal(t, OutcomeSubscribed, outcome)
		assert.True(t, m.HasPermission())
		assert.Equal(t, []string{"Q"}, m.SubscribedQueues())
	})
}

func TestSubscribe_SharesOnePlatformSubscription(t *testing.T) {
	ctx := context.Background()
	platform := NewDevicePlatform("http://push.local/", models.PermissionGranted, nil)
	remote := &fakeRemote{}
	m := newManager(t, platform, remote, repository.NewMemoryStore())

	for _, id := range []string{"A", "B"} {
		outcome, err := m.SubscribeToQueue(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSubscribed, outcome)
	}

	outcome, err := m.SubscribeToQueue(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadySubscribed, outcome)

	calls := remote.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0].subID, calls[1].subID)
	assert.Equal(t, platform.sub.Endpoint, "http://push.local/"+calls[0].subID)
}

func TestUnsubscribe_ReleasesPlatformOnLastQueue(t *testing.T) {
	ctx := context.Background()
	platform := NewDevicePlatform("http://push.local", models.PermissionGranted, nil)
	remote := &fakeRemote{}
	m := newManager(t, platform, remote, repository.NewMemoryStore())

	outcome, err := m.UnsubscribeFromQueue(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotSubscribed, outcome)
	assert.Empty(t, remote.Calls())

	for _, id := range []string{"A", "B"} {
		_, err := m.SubscribeToQueue(ctx, id)
		require.NoError(t, err)
	}

	outcome, err = m.UnsubscribeFromQueue(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnsubscribed, outcome)
	assert.NotNil(t, platform.sub, "platform subscription is kept while B needs it")

	outcome, err = m.UnsubscribeFromQueue(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnsubscribed, outcome)
	assert.Nil(t, platform.sub)
	assert.Empty(t, m.SubscribedQueues())
}

func TestRemoteFailureIsNotReportedAsSuccess(t *testing.T) {
	ctx := context.Background()
	platform := NewDevicePlatform("http://push.local", models.PermissionGranted, nil)
	remote := &fakeRemote{err: errors.New("503")}
	m := newManager(t, platform, remote, repository.NewMemoryStore())

	outcome, err := m.SubscribeToQueue(ctx, "A")
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.False(t, outcome.Succeeded())
	assert.Empty(t, m.SubscribedQueues())
	assert.Nil(t, platform.sub, "a subscription created for a failed registration is released")

	remote.err = nil
	_, err = m.SubscribeToQueue(ctx, "A")
	require.NoError(t, err)

	remote.err = errors.New("timeout")
	outcome, err = m.UnsubscribeFromQueue(ctx, "A")
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, []string{"A"}, m.SubscribedQueues())
}

func TestUnsupportedPlatform(t *testing.T) {
	ctx := context.Background()
	prompter := &countingPrompter{grant: true}
	remote := &fakeRemote{}
	m := newManager(t, NewDevicePlatform("", models.PermissionDefault, prompter), remote, repository.NewMemoryStore())

	granted, err := m.RequestPermission(ctx)
	require.NoError(t, err)
	assert.False(t, granted)
	assert.Zero(t, prompter.n)

	outcome, err := m.SubscribeToQueue(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnsupported, outcome)
	assert.Empty(t, remote.Calls())
}

func TestStateSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	remote := &fakeRemote{}

	first := newManager(t, NewDevicePlatform("http://push.local", models.PermissionGranted, nil), remote, store)
	_, err := first.SubscribeToQueue(ctx, "A")
	require.NoError(t, err)

	platform := NewDevicePlatform("http://push.local", models.PermissionGranted, nil)
	second := newManager(t, platform, remote, store)
	assert.Equal(t, []string{"A"}, second.SubscribedQueues())
	require.NotNil(t, platform.sub)

	outcome, err := second.UnsubscribeFromQueue(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnsubscribed, outcome)

	calls := remote.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0].subID, calls[1].subID)
}

type readOnlyStore struct {
	repository.KeyValueStore
}

func (readOnlyStore) Set(context.Context, string, []byte) error {
	return errors.New("read-only file system")
}

func TestOutcomeFollowsBackendWhenSaveFails(t *testing.T) {
	ctx := context.Background()
	platform := NewDevicePlatform("http://push.local", models.PermissionGranted, nil)
	remote := &fakeRemote{}
	m := newManager(t, platform, remote, readOnlyStore{KeyValueStore: repository.NewMemoryStore()})

	outcome, err := m.SubscribeToQueue(ctx, "Q")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubscribed, outcome)
	assert.Equal(t, []string{"Q"}, m.SubscribedQueues())
	require.Len(t, remote.Calls(), 1)

	outcome, err = m.SubscribeToQueue(ctx, "Q")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadySubscribed, outcome)

	outcome, err = m.UnsubscribeFromQueue(ctx, "Q")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnsubscribed, outcome)
	assert.Empty(t, m.SubscribedQueues())
	assert.Nil(t, platform.sub)
}
