package favorites

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

const DefaultMostVisitedLimit = 5

// Tracker holds the queues a client explicitly marked as favorite, with visit
// statistics. It is independent of the history.
type Tracker struct {
	store repository.KeyValueStore
	l     logger.Logger
	now   func() time.Time

	mu sync.Mutex
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

func NewTracker(store repository.KeyValueStore, l logger.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		store: store,
		l:     l,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AddToFavorites reports whether an entry was created. Favoriting a queue twice is a
// no-op.
func (t *Tracker) AddToFavorites(ctx context.Context, ref models.QueueRef) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, err := t.load(ctx)
	if err != nil {
		return false, err
	}

	if slices.ContainsFunc(entries, func(e models.FavoriteEntry) bool { return e.Queue.ID == ref.ID }) {
		return false, nil
	}

	now := t.now().UTC()
	entries = append(entries, models.FavoriteEntry{
		Queue:       ref,
		AddedAt:     now,
		LastVisitAt: now,
		VisitCount:  1,
	})

	if err := t.save(ctx, entries); err != nil {
		t.l.Errorf(ctx, "favorites.Tracker.AddToFavorites: %v", err)
		return false, err
	}

	return true, nil
}

// RemoveFromFavorites reports whether an entry was removed.
func (t *Tracker) RemoveFromFavorites(ctx context.Context, queueID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, err := t.load(ctx)
	if err != nil {
		return false, err
	}

	kept := slices.DeleteFunc(slices.Clone(entries), func(e models.FavoriteEntry) bool {
		return e.Queue.ID == queueID
	})
	if len(kept) == len(entries) {
		return false, nil
	}

	if err := t.save(ctx, kept); err != nil {
		t.l.Errorf(ctx, "favorites.Tracker.RemoveFromFavorites: %v", err)
		return false, err
	}

	return true, nil
}

func (t *Tracker) IsFavorite(ctx context.Context, queueID string) (bool, error) {
	entries, err := t.load(ctx)
	if err != nil {
		return false, err
	}

	return slices.ContainsFunc(entries, func(e models.FavoriteEntry) bool { return e.Queue.ID == queueID }), nil
}

// UpdateFavoriteStats records a visit to a favorited queue. It never creates an entry.
func (t *Tracker) UpdateFavoriteStats(ctx context.Context, queueID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, err := t.load(ctx)
	if err != nil {
		return err
	}

	i := slices.IndexFunc(entries, func(e models.FavoriteEntry) bool { return e.Queue.ID == queueID })
	if i < 0 {
		return nil
	}

	entries[i].LastVisitAt = t.now().UTC()
	entries[i].VisitCount++

	if err := t.save(ctx, entries); err != nil {
		t.l.Errorf(ctx, "favorites.Tracker.UpdateFavoriteStats: %v", err)
		return err
	}

	return nil
}

// GetMostVisited returns up to limit favorites by visit count, descending. Ties keep
// the order in which the queues were favorited.
func (t *Tracker) GetMostVisited(ctx context.Context, limit int) ([]models.FavoriteEntry, error) {
	if limit <= 0 {
		limit = DefaultMostVisitedLimit
	}

	entries, err := t.load(ctx)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(entries, func(a, b models.FavoriteEntry) int {
		return b.VisitCount - a.VisitCount
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}

	return entries, nil
}

// Entries returns favorites in the order they were added.
func (t *Tracker) Entries(ctx context.Context) ([]models.FavoriteEntry, error) {
	return t.load(ctx)
}

func (t *Tracker) load(ctx context.Context) ([]models.FavoriteEntry, error) {
	entries, err := repository.LoadList[models.FavoriteEntry](ctx, t.store, t.l, repository.KeyFavorites, migrate)
	if err != nil {
		return nil, fmt.Errorf("favorites: %w", err)
	}
	return entries, nil
}

func (t *Tracker) save(ctx context.Context, entries []models.FavoriteEntry) error {
	return repository.SaveList(ctx, t.store, repository.KeyFavorites, entries)
}

// migrate defaults fields that unversioned data may lack.
func migrate(_ int, entries []models.FavoriteEntry) []models.FavoriteEntry {
	for i := range entries {
		if entries[i].VisitCount < 1 {
			entries[i].VisitCount = 1
		}
		if entries[i].LastVisitAt.IsZero() {
			entries[i].LastVisitAt = entries[i].AddedAt
		}
	}
	return entries
}
