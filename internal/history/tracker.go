package history

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/vogiaan1904/ticketbottle-queuesync/internal/models"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/repository"
	"github.com/vogiaan1904/ticketbottle-queuesync/pkg/logger"
)

const (
	DefaultLimit         = 10
	DefaultVisitLogLimit = 500
)

// Tracker records the queues a client has viewed, most recent first, one entry per
// queue. Every view is also appended to a bounded visit log which is never
// deduplicated.
type Tracker struct {
	store repository.KeyValueStore
	l     logger.Logger

	limit         int
	visitLogLimit int
	now           func() time.Time

	mu sync.Mutex
}

type Option func(*Tracker)

func WithLimits(limit, visitLogLimit int) Option {
	return func(t *Tracker) {
		if limit > 0 {
			t.limit = limit
		}
		if visitLogLimit > 0 {
			t.visitLogLimit = visitLogLimit
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

func NewTracker(store repository.KeyValueStore, l logger.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		store:         store,
		l:             l,
		limit:         DefaultLimit,
		visitLogLimit: DefaultVisitLogLimit,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AddToHistory moves ref to the front of the history, replacing any previous entry for
// the same queue, and logs the visit. waitTime is the queue's wait time observed during
// the visit, if known.
func (t *Tracker) AddToHistory(ctx context.Context, ref models.QueueRef, sourceCode string, waitTime *time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()

	entries, err := t.loadEntries(ctx)
	if err != nil {
		return err
	}
	prevVisits, err := t.loadVisits(ctx)
	if err != nil {
		return err
	}

	entries = slices.DeleteFunc(entries, func(e models.HistoryEntry) bool {
		return e.Queue.ID == ref.ID
	})
	entries = append([]models.HistoryEntry{{
		Queue:      ref,
		VisitedAt:  now,
		SourceCode: sourceCode,
	}}, entries...)
	if len(entries) > t.limit {
		entries = entries[:t.limit]
	}

	visits := append(slices.Clip(prevVisits), models.VisitRecord{
		QueueID:   ref.ID,
		VisitedAt: now,
		WaitTime:  waitTime,
	})
	if over := len(visits) - t.visitLogLimit; over > 0 {
		visits = visits[over:]
	}

	// The visit log is written first and restored if the history write fails, so a
	// failed call leaves both lists as they were.
	if err := repository.SaveList(ctx, t.store, repository.KeyVisits, visits); err != nil {
		t.l.Errorf(ctx, "history.Tracker.AddToHistory: %v", err)
		return err
	}

	if err := repository.SaveList(ctx, t.store, repository.KeyHistory, entries); err != nil {
		t.l.Errorf(ctx, "history.Tracker.AddToHistory: %v", err)
		if rerr := repository.SaveList(ctx, t.store, repository.KeyVisits, prevVisits); rerr != nil {
			t.l.Errorf(ctx, "history.Tracker.AddToHistory: restore visit log: %v", rerr)
		}
		return err
	}

	return nil
}

// RemoveFromHistory drops the entry for queueID. Past visits stay in the visit log.
func (t *Tracker) RemoveFromHistory(ctx context.Context, queueID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, err := t.loadEntries(ctx)
	if err != nil {
		return err
	}

	kept := slices.DeleteFunc(slices.Clone(entries), func(e models.HistoryEntry) bool {
		return e.Queue.ID == queueID
	})
	if len(kept) == len(entries) {
		return nil
	}

	if err := repository.SaveList(ctx, t.store, repository.KeyHistory, kept); err != nil {
		t.l.Errorf(ctx, "history.Tracker.RemoveFromHistory: %v", err)
		return err
	}

	return nil
}

func (t *Tracker) ClearHistory(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := repository.SaveList(ctx, t.store, repository.KeyHistory, []models.HistoryEntry{}); err != nil {
		t.l.Errorf(ctx, "history.Tracker.ClearHistory: %v", err)
		return err
	}

	if err := repository.SaveList(ctx, t.store, repository.KeyVisits, []models.VisitRecord{}); err != nil {
		t.l.Errorf(ctx, "history.Tracker.ClearHistory: %v", err)
		return err
	}

	return nil
}

func (t *Tracker) GetQueueFromHistory(ctx context.Context, queueID string) (models.HistoryEntry, bool, error) {
	entries, err := t.Entries(ctx)
	if err != nil {
		return models.HistoryEntry{}, false, err
	}

	for _, e := range entries {
		if e.Queue.ID == queueID {
			return e, true, nil
		}
	}

	return models.HistoryEntry{}, false, nil
}

// Entries returns the history, most recent first.
func (t *Tracker) Entries(ctx context.Context) ([]models.HistoryEntry, error) {
	return t.loadEntries(ctx)
}

// Visits returns the visit log, oldest first.
func (t *Tracker) Visits(ctx context.Context) ([]models.VisitRecord, error) {
	return t.loadVisits(ctx)
}

func (t *Tracker) loadEntries(ctx context.Context) ([]models.HistoryEntry, error) {
	entries, err := repository.LoadList[models.HistoryEntry](ctx, t.store, t.l, repository.KeyHistory, nil)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return entries, nil
}

func (t *Tracker) loadVisits(ctx context.Context) ([]models.VisitRecord, error) {
	visits, err := repository.LoadList[models.VisitRecord](ctx, t.store, t.l, repository.KeyVisits, nil)
	if err != nil {
		return nil, fmt.Errorf("visit log: %w", err)
	}
	return visits, nil
}
