package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogiaan1904/ticketbottle-queuesync/internal/repository"
	"github.com/vogiaan1904/ticketbottle-queuesync/pkg/logger"
)

func newTestStore(t *testing.T) (repository.KeyValueStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cli.Close() })

	return NewRedisStore(cli, "test", logger.InitializeTestZapLogger()), mr
}

func TestRedisStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	_, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", []byte(`{"version":1}`)))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, string(got))

	raw, err := mr.Get("test:kv:k")
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, raw)

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRedisStore_SubscribeReceivesChanges(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	ch, unsubscribe := s.Subscribe(ctx, "k")

	require.NoError(t, s.Set(ctx, "k", []byte("v")))

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no change signal over pub/sub")
	}

	unsubscribe()
	unsubscribe()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestRedisStore_BackendFailure(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)
	mr.Close()

	_, err := s.Get(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrNotFound)
}
