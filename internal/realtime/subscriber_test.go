package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogiaan1904/ticketbottle-queuesync/internal/models"
	"github.com/vogiaan1904/ticketbottle-queuesync/pkg/logger"
)

// chattyDialer hands out connections that emit ticket events for their queue until
// closed.
type chattyDialer struct {
	mu    sync.Mutex
	conns map[string][]*fakeConn
	stop  chan struct{}
	wg    sync.WaitGroup
}

func newChattyDialer() *chattyDialer {
	return &chattyDialer{conns: map[string][]*fakeConn{}, stop: make(chan struct{})}
}

func (d *chattyDialer) Dial(ctx context.Context, queueID string) (Conn, error) {
	conn := newFakeConn()
	d.mu.Lock()
	d.conns[queueID] = append(d.conns[queueID], conn)
	d.mu.Unlock()

	data, err := EncodeEvent(EventTicketUpdated, models.Ticket{ID: "t", QueueID: queueID})
	if err != nil {
		return nil, err
	}

	d.wg.Go(func() {
		for {
			select {
			case conn.msgs <- data:
			case <-conn.closed:
				return
			case <-d.stop:
				return
			}
			time.Sleep(time.Millisecond)
		}
	})

	return conn, nil
}

func (d *chattyDialer) Close() {
	close(d.stop)
	d.wg.Wait()
}

func (d *chattyDialer) openConns(queueID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, c := range d.conns[queueID] {
		select {
		case <-c.closed:
		default:
			n++
		}
	}
	return n
}

func TestSubscriber_SwitchLeavesOnlyNewQueue(t *testing.T) {
	ctx := context.Background()
	dialer := newChattyDialer()
	defer dialer.Close()

	sub := NewSubscriber(dialer, logger.InitializeTestZapLogger())
	defer sub.Close()

	a := sub.Switch(ctx, "A")
	require.NotNil(t, a)
	for range 3 {
		assert.Equal(t, "A", recv(t, sub.Events()).QueueID)
	}

	b := sub.Switch(ctx, "B")
	require.NotNil(t, b)

	assert.Equal(t, StatusClosed, a.Status())
	assert.Equal(t, 0, dialer.openConns("A"))

	for range 20 {
		ev := recv(t, sub.Events())
		assert.Equal(t, "B", ev.QueueID, "no event for the previous queue after switching")
		assert.Equal(t, "B", ev.Ticket.QueueID)
	}

	assert.Same(t, b, sub.Current())
	assert.Same(t, b, sub.Switch(ctx, "B"), "switching to the same queue keeps the channel")
	assert.Equal(t, 1, dialer.openConns("B"))
}

func TestSubscriber_Close(t *testing.T) {
	ctx := context.Background()
	dialer := newChattyDialer()
	defer dialer.Close()

	sub := NewSubscriber(dialer, logger.InitializeTestZapLogger())
	ch := sub.Switch(ctx, "A")
	recv(t, sub.Events())

	sub.Close()
	sub.Close()

	assert.Equal(t, StatusClosed, ch.Status())
	assert.Nil(t, sub.Switch(ctx, "B"))

	for range sub.Events() {
		t.Fatal("events delivered after close")
	}
}

func TestSubscriber_EmptyIDStopsFollowing(t *testing.T) {
	ctx := context.Background()
	dialer := newChattyDialer()
	defer dialer.Close()

	sub := NewSubscriber(dialer, logger.InitializeTestZapLogger())
	defer sub.Close()

	sub.Switch(ctx, "A")
	recv(t, sub.Events())

	assert.Nil(t, sub.Switch(ctx, ""))
	assert.Nil(t, sub.Current())
	assert.Equal(t, 0, dialer.openConns("A"))

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}
