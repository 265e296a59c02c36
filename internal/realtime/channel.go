package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vogiaan1904/ticketbottle-queuesync/internal/metrics"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/models"
	"github.com/vogiaan1904/ticketbottle-queuesync/pkg/logger"
)

type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
	StatusErrored    Status = "errored"
)

const (
	DefaultMaxRetries     = 10
	DefaultConnectTimeout = 10 * time.Second
	DefaultBuffer         = 64
	// DefaultStableAfter is how long a silent connection must stay up before it
	// counts as recovered.
	DefaultStableAfter = 30 * time.Second
)

var ErrRetriesExhausted = errors.New("realtime: reconnect attempts exhausted")

// Conn is one established transport connection for a queue.
type Conn interface {
	// ReadMessage blocks until the next raw event arrives. Close unblocks it.
	ReadMessage(ctx context.Context) ([]byte, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, queueID string) (Conn, error)
}

type DialerFunc func(ctx context.Context, queueID string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, queueID string) (Conn, error) { return f(ctx, queueID) }

// StatusHook observes status transitions of a channel.
type StatusHook func(queueID string, status Status, err error)

type options struct {
	backoff        Backoff
	maxRetries     int
	connectTimeout time.Duration
	buffer         int
	stableAfter    time.Duration
	hook           StatusHook
}

type Option func(*options)

func WithBackoff(b Backoff) Option {
	return func(o *options) { o.backoff = b }
}

// WithMaxRetries bounds consecutive failed attempts before the channel gives up.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

func WithBuffer(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.buffer = n
		}
	}
}

// WithStableAfter sets how long a connection that delivered no event must stay open
// before the failure count is reset.
func WithStableAfter(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.stableAfter = d
		}
	}
}

func WithStatusHook(h StatusHook) Option {
	return func(o *options) { o.hook = h }
}

func defaultOptions() options {
	return options{
		backoff:        DefaultBackoff(),
		maxRetries:     DefaultMaxRetries,
		connectTimeout: DefaultConnectTimeout,
		buffer:         DefaultBuffer,
		stableAfter:    DefaultStableAfter,
	}
}

// Channel keeps a live subscription to one queue and delivers its events in arrival
// order. Connection failures never surface as errors from Events; they are visible
// through Status and Err. Events is closed once the channel is closed or has given up
// reconnecting.
type Channel struct {
	queueID string
	dialer  Dialer
	l       logger.Logger
	opts    options

	events chan Event
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.RWMutex
	status   Status
	err      error
	snapshot *models.QueueSnapshot
}

// Open starts connecting to queueID in the background.
func Open(ctx context.Context, queueID string, dialer Dialer, l logger.Logger, opts ...Option) *Channel {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &Channel{
		queueID: queueID,
		dialer:  dialer,
		l:       l,
		opts:    o,
		events:  make(chan Event, o.buffer),
		cancel:  cancel,
		done:    make(chan struct{}),
		status:  StatusConnecting,
	}

	if o.hook != nil {
		o.hook(queueID, StatusConnecting, nil)
	}

	go c.run(logger.WithFields(logger.WithComponent(ctx, l, "realtime"), l, logger.FieldQueueID, queueID))

	return c
}

func (c *Channel) QueueID() string { return c.queueID }

func (c *Channel) Events() <-chan Event { return c.events }

func (c *Channel) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Err returns the last connection error, if any.
func (c *Channel) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// LastSnapshot returns the queue state carried by the latest queue.updated event.
func (c *Channel) LastSnapshot() (models.QueueSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return models.QueueSnapshot{}, false
	}
	return *c.snapshot, true
}

// Done is closed when the channel stops for good.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Close tears the channel down and waits until no further event can be delivered.
func (c *Channel) Close() {
	c.cancel()
	<-c.done
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	defer close(c.events)

	failures := 0
	for {
		c.setStatus(ctx, StatusConnecting, nil)

		conn, err := c.dial(ctx)
		if ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close()
			}
			c.setStatus(ctx, StatusClosed, nil)
			return
		}

		if err == nil {
			c.setStatus(ctx, StatusOpen, nil)
			metrics.OpenChannels.Inc()

			openedAt := time.Now()
			var delivered bool
			delivered, err = c.consume(ctx, conn)
			// A drop right after the handshake continues the failure streak.
			if delivered || time.Since(openedAt) >= c.opts.stableAfter {
				failures = 0
			}

			metrics.OpenChannels.Dec()
			_ = conn.Close()

			if ctx.Err() != nil {
				c.setStatus(ctx, StatusClosed, nil)
				return
			}
			if err == nil {
				err = errors.New("connection closed by server")
			}
		}

		failures++
		if failures >= c.opts.maxRetries {
			c.setStatus(ctx, StatusErrored, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, failures, err))
			return
		}

		c.setStatus(ctx, StatusErrored, err)

		delay := c.opts.backoff.Delay(failures)
		c.l.Warnf(ctx, "realtime.Channel.run: attempt %d failed, retrying in %s: %v", failures, delay, err)

		select {
		case <-ctx.Done():
			c.setStatus(ctx, StatusClosed, nil)
			return
		case <-time.After(delay):
			metrics.ChannelReconnects.Inc()
		}
	}
}

func (c *Channel) dial(ctx context.Context) (Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, c.opts.connectTimeout)
	defer cancel()
	return c.dialer.Dial(dctx, c.queueID)
}

// consume reads conn until it fails. delivered reports whether any event got through.
func (c *Channel) consume(ctx context.Context, conn Conn) (delivered bool, err error) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		data, err := conn.ReadMessage(ctx)
		if err != nil {
			return delivered, err
		}

		ev, err := DecodeEvent(c.queueID, data)
		if err != nil {
			c.l.Warnf(ctx, "realtime.Channel.consume: skipping message: %v", err)
			continue
		}

		if ev.Queue != nil {
			c.mu.Lock()
			c.snapshot = ev.Queue
			c.mu.Unlock()
		}

		select {
		case c.events <- ev:
			delivered = true
			metrics.ChannelEvents.WithLabelValues(string(ev.Type)).Inc()
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}
}

func (c *Channel) setStatus(ctx context.Context, s Status, err error) {
	c.mu.Lock()
	changed := c.status != s || err != nil
	c.status = s
	if err != nil {
		c.err = err
	}
	c.mu.Unlock()

	if !changed {
		return
	}

	c.l.Debugf(ctx, "realtime.Channel: status=%s", s)
	if c.opts.hook != nil {
		c.opts.hook(c.queueID, s, err)
	}
}
