package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vogiaan1904/ticketbottle-queuesync/internal/models"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/realtime"
)

var (
	redisURL     = flag.String("redis", "localhost:6379", "Redis URL (host:port)")
	redisPass    = flag.String("password", "", "Redis password")
	namespace    = flag.String("namespace", "queuesync", "Channel namespace, must match STORE_NAMESPACE")
	queueID      = flag.String("queue", "", "Queue ID (required)")
	queueName    = flag.String("name", "Demo Queue", "Queue name")
	orgName      = flag.String("org", "Demo Organization", "Organization name")
	startNumber  = flag.Int("start", 1, "Number currently being served")
	numTickets   = flag.Int("tickets", 20, "Number of waiting tickets to create")
	joinRate     = flag.Duration("join-rate", 200*time.Millisecond, "Time between ticket creations")
	serveEvery   = flag.Duration("serve-every", 5*time.Second, "Interval between calling the next ticket")
	minutesEach  = flag.Float64("minutes-per-ticket", 2.5, "Estimated service minutes per waiting ticket")
	noShowChance = flag.Float64("no-show-rate", 0.1, "Probability a called ticket is a no-show (0.0-1.0)")
)

type simulation struct {
	rdb     *redis.Client
	queue   models.QueueSnapshot
	waiting []models.Ticket
}

func main() {
	flag.Parse()

	if *queueID == "" {
		fmt.Println("Error: --queue flag is required")
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     *redisURL,
		Password: *redisPass,
		DB:       0,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		fmt.Printf("Failed to connect to Redis: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Connected to Redis at %s\n", *redisURL)
	fmt.Printf("📡 Publishing to %s\n", realtime.RedisChannel(*namespace, *queueID))

	sim := &simulation{
		rdb: rdb,
		queue: models.QueueSnapshot{
			ID:            *queueID,
			Name:          *queueName,
			Status:        models.QueueStatusActive,
			CurrentNumber: *startNumber,
			Organization:  models.Organization{Name: *orgName},
		},
	}

	if err := sim.createTickets(ctx, *numTickets); err != nil {
		fmt.Printf("❌ Failed to create tickets: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n🎬 Serving one ticket every %v, press Ctrl+C to stop\n\n", *serveEvery)
	sim.run(ctx)
	fmt.Println("\n👋 Simulation stopped")
}

func (s *simulation) createTickets(ctx context.Context, n int) error {
	fmt.Printf("\n🚀 Creating %d tickets...\n", n)
	next := s.queue.CurrentNumber + 1

	for i := 0; i < n; i++ {
		now := time.Now()
		t := models.Ticket{
			ID:        uuid.New().String(),
			QueueID:   s.queue.ID,
			Number:    next + i,
			Status:    models.TicketStatusWaiting,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.publish(ctx, realtime.EventTicketCreated, t); err != nil {
			return err
		}
		s.waiting = append(s.waiting, t)

		if *joinRate > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(*joinRate):
			}
		}
	}

	return s.publishQueue(ctx)
}

func (s *simulation) run(ctx context.Context) {
	ticker := time.NewTicker(*serveEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if len(s.waiting) == 0 {
				s.queue.Status = models.QueueStatusClosed
				_ = s.publishQueue(ctx)
				fmt.Println("🏁 Queue drained")
				return
			}
			if err := s.serveNext(ctx); err != nil {
				fmt.Printf("❌ %v\n", err)
			}
		}
	}
}

func (s *simulation) serveNext(ctx context.Context) error {
	t := s.waiting[0]
	s.waiting = s.waiting[1:]

	t.Status = models.TicketStatusCalled
	if rand.Float64() < *noShowChance {
		t.Status = models.TicketStatusNoShow
	}
	t.Version++
	t.UpdatedAt = time.Now()

	if err := s.publish(ctx, realtime.EventTicketUpdated, t); err != nil {
		return fmt.Errorf("publish ticket %d: %w", t.Number, err)
	}

	s.queue.CurrentNumber = t.Number
	if err := s.publishQueue(ctx); err != nil {
		return err
	}

	fmt.Printf("🔔 Ticket %d %s, %d waiting, est. %.1f min\n", t.Number, t.Status, len(s.waiting), s.queue.CurrentWaitTime)
	return nil
}

func (s *simulation) publishQueue(ctx context.Context) error {
	s.queue.CurrentWaitTime = float64(len(s.waiting)) * *minutesEach
	if err := s.publish(ctx, realtime.EventQueueUpdated, s.queue); err != nil {
		return fmt.Errorf("publish queue update: %w", err)
	}
	return nil
}

func (s *simulation) publish(ctx context.Context, t realtime.EventType, payload any) error {
	return realtime.PublishEvent(ctx, s.rdb, *namespace, s.queue.ID, t, payload)
}
