package suggestion

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vogiaan1904/ticketbottle-queuesync/internal/models"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/repository"
	"github.com/vogiaan1904/ticketbottle-queuesync/pkg/logger"
)

type HistorySource interface {
	Entries(ctx context.Context) ([]models.HistoryEntry, error)
	Visits(ctx context.Context) ([]models.VisitRecord, error)
}

type FavoriteSource interface {
	Entries(ctx context.Context) ([]models.FavoriteEntry, error)
}

// Compute ranks queues worth joining at now. It is a pure function of its inputs.
//
// Signals are evaluated in order: favorites visited at this hour and weekday, queues
// with a short mean wait, queues visited often within the popularity window. A queue
// keeps the first score it receives. Visits to a queue that is neither in history nor
// a favorite are ignored.
func Compute(favs []models.FavoriteEntry, hist []models.HistoryEntry, visits []models.VisitRecord, now time.Time, cfg Config) []models.Suggestion {
	var out []models.Suggestion
	scored := make(map[string]bool)

	add := func(ref models.QueueRef, score float64, reason models.SuggestionReason) {
		if scored[ref.ID] {
			return
		}
		scored[ref.ID] = true
		out = append(out, models.Suggestion{Queue: ref, Score: score, Reason: reason})
	}

	loc := now.Location()
	hour, weekday := now.Hour(), now.Weekday()

	for _, f := range favs {
		n := 0
		for _, v := range visits {
			t := v.VisitedAt.In(loc)
			if v.QueueID == f.Queue.ID && t.Hour() == hour && t.Weekday() == weekday {
				n++
			}
		}
		if n > 0 {
			add(f.Queue, float64(n)*cfg.TimingWeight, models.ReasonFrequentAtThisTime)
		}
	}

	for _, h := range hist {
		var total time.Duration
		n := 0
		for _, v := range visits {
			if v.QueueID == h.Queue.ID && v.WaitTime != nil {
				total += *v.WaitTime
				n++
			}
		}
		if n == 0 || cfg.ShortWaitScale <= 0 {
			continue
		}

		mean := total / time.Duration(n)
		if mean >= cfg.ShortWaitThreshold {
			continue
		}

		score := float64(cfg.ShortWaitScale-mean) / float64(cfg.ShortWaitScale)
		if score <= 0 {
			continue
		}
		add(h.Queue, min(score, 1), models.ReasonShortWait)
	}

	since := now.Add(-cfg.PopularWindow)
	for _, h := range hist {
		n := 0
		for _, v := range visits {
			if v.QueueID == h.Queue.ID && v.VisitedAt.After(since) && !v.VisitedAt.After(now) {
				n++
			}
		}
		if n >= cfg.PopularMinVisits && cfg.PopularDivisor > 0 {
			add(h.Queue, float64(n)/cfg.PopularDivisor, models.ReasonPopularToday)
		}
	}

	slices.SortStableFunc(out, func(a, b models.Suggestion) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	if cfg.Limit > 0 && len(out) > cfg.Limit {
		out = out[:cfg.Limit]
	}
	if out == nil {
		out = []models.Suggestion{}
	}

	return out
}

// Engine keeps the current suggestions up to date with stored history and favorites.
type Engine struct {
	history   HistorySource
	favorites FavoriteSource
	store     repository.KeyValueStore
	cfg       Config
	now       func() time.Time
	l         logger.Logger

	mu      sync.RWMutex
	current []models.Suggestion
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(history HistorySource, favorites FavoriteSource, store repository.KeyValueStore, cfg Config, l logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		history:   history,
		favorites: favorites,
		store:     store,
		cfg:       cfg,
		now:       time.Now,
		l:         l,
		current:   []models.Suggestion{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Refresh recomputes suggestions from the stored state.
func (e *Engine) Refresh(ctx context.Context) ([]models.Suggestion, error) {
	favs, err := e.favorites.Entries(ctx)
	if err != nil {
		e.l.Errorf(ctx, "suggestion.Engine.Refresh: %v", err)
		return nil, err
	}

	hist, err := e.history.Entries(ctx)
	if err != nil {
		e.l.Errorf(ctx, "suggestion.Engine.Refresh: %v", err)
		return nil, err
	}

	visits, err := e.history.Visits(ctx)
	if err != nil {
		e.l.Errorf(ctx, "suggestion.Engine.Refresh: %v", err)
		return nil, err
	}

	out := Compute(favs, hist, visits, e.now(), e.cfg)

	e.mu.Lock()
	e.current = out
	e.mu.Unlock()

	return slices.Clone(out), nil
}

// Suggestions returns the result of the latest Refresh.
func (e *Engine) Suggestions() []models.Suggestion {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.current)
}

// Run refreshes once, then again after every change to history, visits or favorites,
// until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	merged := make(chan struct{}, 1)

	var wg sync.WaitGroup
	for _, key := range []string{repository.KeyHistory, repository.KeyVisits, repository.KeyFavorites} {
		ch, unsubscribe := e.store.Subscribe(ctx, key)
		defer unsubscribe()

		wg.Go(func() {
			for {
				select {
				case _, ok := <-ch:
					if !ok {
						return
					}
					select {
					case merged <- struct{}{}:
					default:
					}
				case <-ctx.Done():
					return
				}
			}
		})
	}
	defer wg.Wait()

	if _, err := e.Refresh(ctx); err != nil {
		e.l.Warnf(ctx, "suggestion.Engine.Run: initial refresh: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-merged:
			if _, err := e.Refresh(ctx); err != nil {
				e.l.Warnf(ctx, "suggestion.Engine.Run: %v", err)
			}
		}
	}
}
