package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vogiaan1904/ticketbottle-queuesync/internal/activity"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/cache"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/models"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/notification"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/realtime"
	"github.com/vogiaan1904/ticketbottle-queuesync/pkg/logger"
)

type QueueService interface {
	// ViewQueue loads the queue snapshot and records the visit.
	ViewQueue(ctx context.Context, queueID, sourceCode string) (ViewQueueOutput, error)
	// ToggleFavorite favorites or unfavorites ref and follows up on notifications.
	ToggleFavorite(ctx context.Context, ref models.QueueRef) (ToggleFavoriteOutput, error)
	Suggestions(ctx context.Context) ([]models.Suggestion, error)
	// WatchQueue makes queueID the followed queue. Its events arrive on Events.
	WatchQueue(ctx context.Context, queueID string) (*realtime.Channel, error)
	Events() <-chan realtime.Event
	Close() error
}

type queueService struct {
	queues        *cache.Cache[models.QueueSnapshot]
	history       HistoryTracker
	favorites     FavoritesTracker
	notifications NotificationManager
	suggestions   SuggestionEngine
	subscriber    *realtime.Subscriber
	prod          activity.Producer
	logger        logger.Logger
	now           func() time.Time

	closeOnce sync.Once
}

func NewQueueService(
	queues *cache.Cache[models.QueueSnapshot],
	history HistoryTracker,
	favorites FavoritesTracker,
	notifications NotificationManager,
	suggestions SuggestionEngine,
	subscriber *realtime.Subscriber,
	prod activity.Producer,
	logger logger.Logger,
) QueueService {
	return &queueService{
		queues:        queues,
		history:       history,
		favorites:     favorites,
		notifications: notifications,
		suggestions:   suggestions,
		subscriber:    subscriber,
		prod:          prod,
		logger:        logger,
		now:           time.Now,
	}
}

func (s *queueService) ViewQueue(ctx context.Context, queueID, sourceCode string) (ViewQueueOutput, error) {
	if queueID == "" {
		return ViewQueueOutput{}, ErrQueueIDRequired
	}

	var out ViewQueueOutput
	snap, err := s.queues.Load(ctx, queueID)
	if err != nil {
		cached := s.queues.Peek(queueID)
		if errors.Is(err, ErrQueueNotFound) || !cached.HasValue {
			return ViewQueueOutput{}, fmt.Errorf("failed to load queue %s: %w", queueID, err)
		}
		s.logger.Warnf(ctx, "service.queueService.ViewQueue: serving cached snapshot of %s: %v", queueID, err)
		snap = cached.Value
		out.Stale = true
	}
	out.Queue = snap
	out.FetchedAt = s.queues.Peek(queueID).FetchedAt

	wait := snap.WaitTime()
	if err := s.history.AddToHistory(ctx, snap.Ref(), sourceCode, &wait); err != nil {
		s.logger.Errorf(ctx, "service.queueService.ViewQueue.AddToHistory: %v", err)
	}

	isFav, err := s.favorites.IsFavorite(ctx, queueID)
	if err != nil {
		s.logger.Errorf(ctx, "service.queueService.ViewQueue.IsFavorite: %v", err)
	}
	if isFav {
		if err := s.favorites.UpdateFavoriteStats(ctx, queueID); err != nil {
			s.logger.Errorf(ctx, "service.queueService.ViewQueue.UpdateFavoriteStats: %v", err)
		}
	}
	out.IsFavorite = isFav

	if s.prod != nil {
		now := s.now()
		if err := s.prod.PublishQueueVisited(ctx, activity.QueueVisitedEvent{
			QueueID:          snap.ID,
			QueueName:        snap.Name,
			OrganizationName: snap.Organization.Name,
			SourceCode:       sourceCode,
			WaitMinutes:      snap.CurrentWaitTime,
			VisitedAt:        now,
			Timestamp:        now,
		}); err != nil {
			// Log error but don't fail the request
			s.logger.Errorf(ctx, "service.queueService.ViewQueue.PublishQueueVisited: %v", err)
		}
	}

	return out, nil
}

func (s *queueService) ToggleFavorite(ctx context.Context, ref models.QueueRef) (ToggleFavoriteOutput, error) {
	if ref.ID == "" {
		return ToggleFavoriteOutput{}, ErrQueueIDRequired
	}

	isFav, err := s.favorites.IsFavorite(ctx, ref.ID)
	if err != nil {
		return ToggleFavoriteOutput{}, fmt.Errorf("failed to read favorites: %w", err)
	}

	out := ToggleFavoriteOutput{QueueID: ref.ID}
	if isFav {
		if _, err := s.favorites.RemoveFromFavorites(ctx, ref.ID); err != nil {
			return ToggleFavoriteOutput{}, fmt.Errorf("failed to remove favorite: %w", err)
		}
		out.Favorite = false
		out.Notification, err = s.unsubscribe(ctx, ref.ID)
	} else {
		if _, err := s.favorites.AddToFavorites(ctx, ref); err != nil {
			return ToggleFavoriteOutput{}, fmt.Errorf("failed to add favorite: %w", err)
		}
		out.Favorite = true
		out.Notification, err = s.subscribe(ctx, ref.ID)
	}
	if err != nil {
		s.logger.Warnf(ctx, "service.queueService.ToggleFavorite: notifications for %s: %v", ref.ID, err)
		out.NotificationFailure = err.Error()
	}

	s.publishToggle(ctx, ref, out)
	return out, nil
}

func (s *queueService) subscribe(ctx context.Context, queueID string) (notification.Outcome, error) {
	if s.notifications == nil {
		return notification.OutcomeUnsupported, nil
	}
	return s.notifications.SubscribeToQueue(ctx, queueID)
}

func (s *queueService) unsubscribe(ctx context.Context, queueID string) (notification.Outcome, error) {
	if s.notifications == nil {
		return notification.OutcomeUnsupported, nil
	}
	return s.notifications.UnsubscribeFromQueue(ctx, queueID)
}

func (s *queueService) publishToggle(ctx context.Context, ref models.QueueRef, out ToggleFavoriteOutput) {
	if s.prod == nil {
		return
	}

	var err error
	if out.Favorite {
		err = s.prod.PublishQueueFavorited(ctx, activity.QueueFavoritedEvent{
			QueueID:          ref.ID,
			QueueName:        ref.Name,
			OrganizationName: ref.OrganizationName,
			Notifications:    out.Notification.Succeeded(),
			Timestamp:        s.now(),
		})
	} else {
		err = s.prod.PublishQueueUnfavorited(ctx, activity.QueueUnfavoritedEvent{
			QueueID:   ref.ID,
			Timestamp: s.now(),
		})
	}
	if err != nil {
		s.logger.Errorf(ctx, "service.queueService.publishToggle: %v", err)
	}
}

func (s *queueService) Suggestions(ctx context.Context) ([]models.Suggestion, error) {
	return s.suggestions.Refresh(ctx)
}

func (s *queueService) WatchQueue(ctx context.Context, queueID string) (*realtime.Channel, error) {
	if queueID == "" {
		return nil, ErrQueueIDRequired
	}

	ch := s.subscriber.Switch(ctx, queueID)
	if ch == nil {
		return nil, ErrClosed
	}

	s.logger.Infof(ctx, "service.queueService.WatchQueue: following %s", queueID)
	return ch, nil
}

func (s *queueService) Events() <-chan realtime.Event {
	return s.subscriber.Events()
}

func (s *queueService) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.subscriber.Close()
		if s.prod != nil {
			err = s.prod.Close()
		}
	})
	return err
}
