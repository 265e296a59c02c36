package realtime

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisChannel is the Pub/Sub channel carrying events for one queue.
func RedisChannel(namespace, queueID string) string {
	return fmt.Sprintf("%s:queue:%s:events", namespace, queueID)
}

// RedisDialer receives queue events fanned out through Redis Pub/Sub.
type RedisDialer struct {
	cli       *redis.Client
	namespace string
}

func NewRedisDialer(cli *redis.Client, namespace string) *RedisDialer {
	return &RedisDialer{
		cli:       cli,
		namespace: namespace,
	}
}

func (d *RedisDialer) Dial(ctx context.Context, queueID string) (Conn, error) {
	ps := d.cli.Subscribe(ctx, RedisChannel(d.namespace, queueID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", RedisChannel(d.namespace, queueID), err)
	}

	return &redisConn{ps: ps, msgs: ps.Channel()}, nil
}

// PublishEvent sends an event to every subscriber of queueID.
func PublishEvent(ctx context.Context, cli *redis.Client, namespace, queueID string, t EventType, payload any) error {
	data, err := EncodeEvent(t, payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return cli.Publish(ctx, RedisChannel(namespace, queueID), data).Err()
}

type redisConn struct {
	ps   *redis.PubSub
	msgs <-chan *redis.Message
	once sync.Once
}

func (c *redisConn) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-c.msgs:
		if !ok {
			return nil, io.EOF
		}
		return []byte(msg.Payload), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *redisConn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.ps.Close()
	})
	return err
}
