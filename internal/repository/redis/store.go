package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/repository"
	"github.com/vogiaan1904/ticketbottle-queuesync/pkg/logger"
)

type redisStore struct {
	cli       *redis.Client
	namespace string
	l         logger.Logger
}

// NewRedisStore returns a KeyValueStore shared by every process using the same
// namespace. Changes are announced over Redis Pub/Sub, so subscribers in other
// processes are signalled too.
func NewRedisStore(cli *redis.Client, namespace string, l logger.Logger) repository.KeyValueStore {
	return &redisStore{
		cli:       cli,
		namespace: namespace,
		l:         l,
	}
}

func (r *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.cli.Get(ctx, r.valueKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		r.l.Errorf(ctx, "redisStore.Get: %v", err)
		return nil, err
	}

	return data, nil
}

func (r *redisStore) Set(ctx context.Context, key string, value []byte) error {
	pipe := r.cli.TxPipeline()
	pipe.Set(ctx, r.valueKey(key), value, 0)
	pipe.Publish(ctx, r.changedChannel(key), key)

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisStore.Set: %v", err)
		return err
	}

	r.l.Debugf(ctx, "redisStore.Set: key=%s bytes=%d", key, len(value))

	return nil
}

func (r *redisStore) Delete(ctx context.Context, key string) error {
	removed, err := r.cli.Del(ctx, r.valueKey(key)).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisStore.Delete: %v", err)
		return err
	}

	if removed > 0 {
		if err := r.cli.Publish(ctx, r.changedChannel(key), key).Err(); err != nil {
			r.l.Warnf(ctx, "redisStore.Delete: publish change: %v", err)
		}
	}

	return nil
}

func (r *redisStore) Subscribe(ctx context.Context, key string) (<-chan struct{}, func()) {
	out := make(chan struct{}, 1)

	ps := r.cli.Subscribe(ctx, r.changedChannel(key))
	if _, err := ps.Receive(ctx); err != nil {
		r.l.Warnf(ctx, "redisStore.Subscribe: %v", err)
		_ = ps.Close()
		close(out)
		return out, func() {}
	}

	var wg sync.WaitGroup
	wg.Go(func() {
		for range ps.Channel() {
			select {
			case out <- struct{}{}:
			default:
			}
		}
	})

	var once sync.Once
	return out, func() {
		once.Do(func() {
			if err := ps.Close(); err != nil {
				r.l.Warnf(context.Background(), "redisStore.Subscribe: close: %v", err)
			}
			wg.Wait()
			close(out)
		})
	}
}

func (r *redisStore) valueKey(key string) string {
	return fmt.Sprintf("%s:kv:%s", r.namespace, key)
}

func (r *redisStore) changedChannel(key string) string {
	return fmt.Sprintf("%s:kv:changed:%s", r.namespace, key)
}
