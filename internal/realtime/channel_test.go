package realtime

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogiaan1904/ticketbottle-queuesync/internal/models"
	"github.com/vogiaan1904/ticketbottle-queuesync/pkg/logger"
)

var errConnClosed = errors.New("use of closed connection")

type fakeConn struct {
	msgs   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{msgs: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case m, ok := <-c.msgs:
		if !ok {
			return nil, io.EOF
		}
		return m, nil
	case <-c.closed:
		return nil, errConnClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type statusLog struct {
	mu       sync.Mutex
	statuses []Status
}

func (s *statusLog) hook(_ string, st Status, _ error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, st)
}

func (s *statusLog) get() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Status(nil), s.statuses...)
}

func mustEncode(t *testing.T, et EventType, payload any) []byte {
	t.Helper()
	data, err := EncodeEvent(et, payload)
	require.NoError(t, err)
	return data
}

func fastBackoff() Option {
	return WithBackoff(Backoff{Base: time.Millisecond, Max: 5 * time.Millisecond})
}

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "event stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestChannel_DeliversInOrder(t *testing.T) {
	ctx := context.Background()
	conn := newFakeConn()
	dialer := DialerFunc(func(ctx context.Context, queueID string) (Conn, error) {
		assert.Equal(t, "Q1", queueID)
		return conn, nil
	})

	log := &statusLog{}
	ch := Open(ctx, "Q1", dialer, logger.InitializeTestZapLogger(), WithStatusHook(log.hook))
	defer ch.Close()

	conn.msgs <- mustEncode(t, EventTicketCreated, models.Ticket{ID: "t1", Number: 1})
	conn.msgs <- []byte(`{"type":"queue.deleted","payload":{}}`)
	conn.msgs <- mustEncode(t, EventQueueUpdated, models.QueueSnapshot{ID: "Q1", CurrentNumber: 7})
	conn.msgs <- mustEncode(t, EventTicketUpdated, models.Ticket{ID: "t1", Number: 1, Status: models.TicketStatusCalled})

	first := recv(t, ch.Events())
	assert.Equal(t, EventTicketCreated, first.Type)
	assert.Equal(t, "t1", first.Ticket.ID)

	second := recv(t, ch.Events())
	assert.Equal(t, EventQueueUpdated, second.Type)
	assert.Equal(t, 7, second.Queue.CurrentNumber)

	third := recv(t, ch.Events())
	assert.Equal(t, EventTicketUpdated, third.Type)
	assert.Equal(t, models.TicketStatusCalled, third.Ticket.Status)

	assert.Equal(t, StatusOpen, ch.Status())
	snap, ok := ch.LastSnapshot()
	require.True(t, ok)
	assert.Equal(t, 7, snap.CurrentNumber)

	ch.Close()
	assert.Equal(t, StatusClosed, ch.Status())
	_, open := <-ch.Events()
	assert.False(t, open)
	assert.Equal(t, []Status{StatusConnecting, StatusOpen, StatusClosed}, log.get())
}

func TestChannel_ReconnectsAfterDrop(t *testing.T) {
	ctx := context.Background()
	conns := []*fakeConn{newFakeConn(), newFakeConn()}
	var dials atomic.Int32
	dialer := DialerFunc(func(ctx context.Context, queueID string) (Conn, error) {
		n := dials.Add(1)
		switch n {
		case 2:
			return nil, errors.New("connection refused")
		case 1:
			return conns[0], nil
		default:
			return conns[1], nil
		}
	})

	log := &statusLog{}
	ch := Open(ctx, "Q1", dialer, logger.InitializeTestZapLogger(), fastBackoff(), WithStatusHook(log.hook))
	defer ch.Close()

	conns[0].msgs <- mustEncode(t, EventTicketCreated, models.Ticket{ID: "a"})
	assert.Equal(t, "a", recv(t, ch.Events()).Ticket.ID)

	close(conns[0].msgs)

	conns[1].msgs <- mustEncode(t, EventTicketCreated, models.Ticket{ID: "b"})
	assert.Equal(t, "b", recv(t, ch.Events()).Ticket.ID)

	assert.Equal(t, int32(3), dials.Load())
	assert.Equal(t, StatusOpen, ch.Status())
	assert.Error(t, ch.Err())
	assert.Equal(t, []Status{
		StatusConnecting, StatusOpen,
		StatusErrored, StatusConnecting,
		StatusErrored, StatusConnecting,
		StatusOpen,
	}, log.get())
}

func TestChannel_GivesUpAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	var dials atomic.Int32
	dialer := DialerFunc(func(ctx context.Context, queueID string) (Conn, error) {
		dials.Add(1)
		return nil, errors.New("no route to host")
	})

	ch := Open(ctx, "Q1", dialer, logger.InitializeTestZapLogger(), fastBackoff(), WithMaxRetries(3))

	select {
	case <-ch.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("channel kept retrying")
	}

	assert.Equal(t, int32(3), dials.Load())
	assert.Equal(t, StatusErrored, ch.Status())
	assert.ErrorIs(t, ch.Err(), ErrRetriesExhausted)

	_, open := <-ch.Events()
	assert.False(t, open)

	ch.Close()
	assert.Equal(t, StatusErrored, ch.Status())
}

type eofConn struct{}

func (eofConn) ReadMessage(ctx context.Context) ([]byte, error) { return nil, io.EOF }
func (eofConn) Close() error                                    { return nil }

func TestChannel_ImmediateDropsCountAsFailures(t *testing.T) {
	ctx := context.Background()
	var (
		mu    sync.Mutex
		dials []time.Time
	)
	dialer := DialerFunc(func(ctx context.Context, queueID string) (Conn, error) {
		mu.Lock()
		dials = append(dials, time.Now())
		mu.Unlock()
		return eofConn{}, nil
	})

	ch := Open(ctx, "Q1", dialer, logger.InitializeTestZapLogger(),
		WithBackoff(Backoff{Base: 5 * time.Millisecond, Max: time.Second}),
		WithMaxRetries(4))

	select {
	case <-ch.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("channel kept reconnecting to a server that drops every connection")
	}

	assert.Equal(t, StatusErrored, ch.Status())
	assert.ErrorIs(t, ch.Err(), ErrRetriesExhausted)
	assert.ErrorIs(t, ch.Err(), io.EOF)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, dials, 4)
	assert.GreaterOrEqual(t, dials[1].Sub(dials[0]), 5*time.Millisecond)
	assert.GreaterOrEqual(t, dials[2].Sub(dials[1]), 10*time.Millisecond)
	assert.GreaterOrEqual(t, dials[3].Sub(dials[2]), 20*time.Millisecond)
}

func TestChannel_LongLivedSilentConnectionResetsFailures(t *testing.T) {
	ctx := context.Background()
	var dials atomic.Int32
	dialer := DialerFunc(func(ctx context.Context, queueID string) (Conn, error) {
		n := dials.Add(1)
		if n%2 == 1 {
			return nil, errors.New("connection refused")
		}
		conn := newFakeConn()
		go func() {
			time.Sleep(20 * time.Millisecond)
			close(conn.msgs)
		}()
		return conn, nil
	})

	ch := Open(ctx, "Q1", dialer, logger.InitializeTestZapLogger(),
		fastBackoff(), WithMaxRetries(3), WithStableAfter(10*time.Millisecond))
	defer ch.Close()

	require.Eventually(t, func() bool { return dials.Load() >= 6 }, 2*time.Second, 5*time.Millisecond)
	select {
	case <-ch.Done():
		t.Fatal("connections that stayed up should reset the failure count")
	default:
	}
}

func TestChannel_DialTimeout(t *testing.T) {
	ctx := context.Background()
	dialer := DialerFunc(func(ctx context.Context, queueID string) (Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ch := Open(ctx, "Q1", dialer, logger.InitializeTestZapLogger(),
		fastBackoff(), WithMaxRetries(1), WithConnectTimeout(10*time.Millisecond))

	select {
	case <-ch.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("dial did not time out")
	}
	assert.ErrorIs(t, ch.Err(), context.DeadlineExceeded)
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: time.Second}

	assert.Equal(t, 100*time.Millisecond, b.Delay(0))
	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 800*time.Millisecond, b.Delay(4))
	assert.Equal(t, time.Second, b.Delay(5))
	assert.Equal(t, time.Second, b.Delay(50))

	b.Jitter = 0.5
	for attempt := 1; attempt < 10; attempt++ {
		d := b.Delay(attempt)
		assert.Positive(t, d)
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestDecodeEvent(t *testing.T) {
	cases := []struct {
		name    string
		data    string
		wantErr error
		check   func(t *testing.T, ev Event)
	}{
		{
			name: "queue updated",
			data: `{"type":"queue.updated","payload":{"id":"Q","name":"Front desk","status":"ACTIVE","currentNumber":3,"currentWaitTime":12.5,"organization":{"name":"Clinic"}}}`,
			check: func(t *testing.T, ev Event) {
				require.NotNil(t, ev.Queue)
				assert.Equal(t, "Clinic", ev.Queue.Ref().OrganizationName)
				assert.Equal(t, 12*time.Minute+30*time.Second, ev.Queue.WaitTime())
			},
		},
		{
			name: "ticket created",
			data: `{"type":"ticket.created","payload":{"id":"t","queueId":"Q","number":42,"status":"WAITING"}}`,
			check: func(t *testing.T, ev Event) {
				require.NotNil(t, ev.Ticket)
				assert.Equal(t, 42, ev.Ticket.Number)
			},
		},
		{name: "unknown type", data: `{"type":"queue.deleted","payload":{}}`, wantErr: ErrUnknownEvent},
		{name: "not json", data: `nope`},
		{name: "bad payload", data: `{"type":"ticket.updated","payload":"x"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := DecodeEvent("Q", []byte(tc.data))
			if tc.check == nil {
				require.Error(t, err)
				if tc.wantErr != nil {
					assert.ErrorIs(t, err, tc.wantErr)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Q", ev.QueueID)
			tc.check(t, ev)
		})
	}
}

func TestHandlers_Dispatch(t *testing.T) {
	var got []string
	h := Handlers{
		OnQueueUpdate:   func(q models.QueueSnapshot) { got = append(got, "queue:"+q.ID) },
		OnTicketCreated: func(tk models.Ticket) { got = append(got, "created:"+tk.ID) },
	}

	h.Handle(Event{Type: EventTicketCreated, Ticket: &models.Ticket{ID: "1"}})
	h.Handle(Event{Type: EventTicketUpdated, Ticket: &models.Ticket{ID: "1"}})
	h.Handle(Event{Type: EventQueueUpdated, Queue: &models.QueueSnapshot{ID: "Q"}})

	assert.Equal(t, []string{"created:1", "queue:Q"}, got)
}
