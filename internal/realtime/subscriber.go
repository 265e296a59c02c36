package realtime

import (
	"context"
	"sync"

	"github.com/vogiaan1904/ticketbottle-queuesync/pkg/logger"
)

// Subscriber follows at most one queue at a time and merges its events into a single
// stream. Switching queues closes the old channel before the new one is opened, so no
// event for the old queue is delivered once Switch returns.
type Subscriber struct {
	dialer Dialer
	l      logger.Logger
	opts   []Option

	out chan Event

	mu      sync.Mutex
	current *Channel
	stop    context.CancelFunc
	fwd     sync.WaitGroup
	closed  bool
}

func NewSubscriber(dialer Dialer, l logger.Logger, opts ...Option) *Subscriber {
	return &Subscriber{
		dialer: dialer,
		l:      l,
		opts:   opts,
		out:    make(chan Event),
	}
}

// Events is shared by every queue the subscriber follows. It is closed by Close.
func (s *Subscriber) Events() <-chan Event { return s.out }

// Current returns the active channel, or nil.
func (s *Subscriber) Current() *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Switch follows queueID. An empty id only stops following the current queue.
func (s *Subscriber) Switch(ctx context.Context, queueID string) *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	if s.current != nil && s.current.QueueID() == queueID {
		select {
		case <-s.current.Done():
		default:
			return s.current
		}
	}

	s.teardown(ctx)

	if queueID == "" {
		return nil
	}

	ch := Open(ctx, queueID, s.dialer, s.l, s.opts...)
	fctx, stop := context.WithCancel(context.Background())
	s.current = ch
	s.stop = stop

	s.fwd.Go(func() {
		for {
			select {
			case ev, ok := <-ch.Events():
				if !ok {
					return
				}
				select {
				case s.out <- ev:
				case <-fctx.Done():
					return
				}
			case <-fctx.Done():
				return
			}
		}
	})

	s.l.Infof(ctx, "realtime.Subscriber.Switch: following queue %s", queueID)

	return ch
}

func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.teardown(context.Background())
	close(s.out)
}

// teardown must be called with s.mu held.
func (s *Subscriber) teardown(ctx context.Context) {
	if s.current == nil {
		return
	}

	s.stop()
	s.fwd.Wait()
	s.current.Close()

	s.l.Debugf(ctx, "realtime.Subscriber: stopped following queue %s", s.current.QueueID())
	s.current = nil
	s.stop = nil
}
