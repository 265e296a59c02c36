package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vogiaan1904/ticketbottle-queuesync/config"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/activity"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/api"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/auth"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/cache"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/favorites"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/history"
	redisInfra "github.com/vogiaan1904/ticketbottle-queuesync/internal/infra/redis"
	sqliteInfra "github.com/vogiaan1904/ticketbottle-queuesync/internal/infra/sqlite"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/metrics"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/models"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/notification"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/realtime"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/repository"
	redisStore "github.com/vogiaan1904/ticketbottle-queuesync/internal/repository/redis"
	sqliteStore "github.com/vogiaan1904/ticketbottle-queuesync/internal/repository/sqlite"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/service"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/suggestion"
	pkgKafka "github.com/vogiaan1904/ticketbottle-queuesync/pkg/kafka"
	pkgLog "github.com/vogiaan1904/ticketbottle-queuesync/pkg/logger"
	"github.com/vogiaan1904/ticketbottle-queuesync/pkg/util"
)

const serviceName = "queuesync"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	l := pkgLog.InitializeZapLogger(pkgLog.ZapConfig{
		Level:    cfg.Log.Level,
		Mode:     cfg.Log.Mode,
		Encoding: cfg.Log.Encoding,
		Name:     serviceName,
	})
	defer l.Sync()

	metrics.Register()

	// Redis is shared by the store backend and the redis realtime transport.
	var redisCli *redis.Client
	if cfg.Store.Backend == config.StoreBackendRedis || cfg.Realtime.Transport == config.TransportRedis {
		redisCli, err = redisInfra.Connect(ctx, cfg.Redis, l)
		if err != nil {
			l.Fatalf(ctx, "Failed to connect to Redis: %v", err)
		}
		defer redisInfra.Disconnect(context.Background(), redisCli, l)
	}

	store, closeStore, err := newStore(ctx, cfg, redisCli, l)
	if err != nil {
		l.Fatalf(ctx, "Failed to initialize store: %v", err)
	}
	defer closeStore()

	hist := history.NewTracker(store, l, history.WithLimits(cfg.History.Limit, cfg.History.VisitLogLimit))
	favs := favorites.NewTracker(store, l)

	tokens := auth.NewStaticTokenSource(cfg.API.AccessToken)
	apiCli, err := api.NewClient(cfg.API.BaseURL, tokens, api.WithTimeout(cfg.API.Timeout))
	if err != nil {
		l.Fatalf(ctx, "Failed to initialize API client: %v", err)
	}

	queues := cache.New(
		service.NewSnapshotFetcher(apiCli, service.DefaultRetryConfig(), l),
		l,
		cache.WithMaxAge[models.QueueSnapshot](cfg.Cache.DefaultMaxAge),
		cache.WithFetchTimeout[models.QueueSnapshot](cfg.Cache.FetchTimeout),
	)

	platform := notification.NewDevicePlatform(
		cfg.Notification.PushEndpointBase,
		models.Permission(cfg.Notification.Permission),
		notification.StaticPrompter(cfg.Notification.AutoGrant),
	)
	notifMgr, err := notification.NewManager(ctx, platform, apiCli, store, l)
	if err != nil {
		l.Fatalf(ctx, "Failed to initialize notifications: %v", err)
	}

	sugCfg, err := suggestion.LoadConfig(cfg.Suggestion.ConfigPath)
	if err != nil {
		l.Fatalf(ctx, "Failed to load suggestion config: %v", err)
	}
	engine := suggestion.NewEngine(hist, favs, store, sugCfg, l)

	prod, err := newActivityProducer(cfg, l)
	if err != nil {
		l.Fatalf(ctx, "Failed to initialize Kafka producer: %v", err)
	}

	var dialer realtime.Dialer
	switch cfg.Realtime.Transport {
	case config.TransportRedis:
		dialer = realtime.NewRedisDialer(redisCli, cfg.Store.Namespace)
	default:
		dialer = realtime.NewWebSocketDialer(cfg.Realtime.WSBaseURL, tokens)
	}

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)

	sub := realtime.NewSubscriber(dialer, l,
		realtime.WithBackoff(realtime.Backoff{
			Base:   cfg.Realtime.BackoffBase,
			Max:    cfg.Realtime.BackoffMax,
			Jitter: realtime.DefaultBackoff().Jitter,
		}),
		realtime.WithMaxRetries(cfg.Realtime.MaxRetries),
		realtime.WithConnectTimeout(cfg.Realtime.ConnectTimeout),
		realtime.WithBuffer(cfg.Realtime.Buffer),
		realtime.WithStatusHook(func(queueID string, status realtime.Status, err error) {
			if status == realtime.StatusOpen {
				healthSrv.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
				return
			}
			healthSrv.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
		}),
	)

	svc := service.NewQueueService(queues, hist, favs, notifMgr, engine, sub, prod, l)
	defer svc.Close()

	g, gctx := errgroup.WithContext(ctx)

	// Metrics server
	metricsSrv := &http.Server{
		Addr:              cfg.Server.MetricsAddr,
		Handler:           pkgLog.HTTPLogger(l)(metricsMux()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		l.Infof(gctx, "Metrics server is listening on %s", cfg.Server.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	// gRPC health server
	lnr, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRpcHealthPort))
	if err != nil {
		l.Fatalf(ctx, "gRPC health server failed to listen: %v", err)
	}
	gRpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(gRpcSrv, healthSrv)
	g.Go(func() error {
		l.Infof(gctx, "gRPC health server is listening on port: %d", cfg.Server.GRpcHealthPort)
		return gRpcSrv.Serve(lnr)
	})

	g.Go(func() error {
		return engine.Run(gctx)
	})

	g.Go(func() error {
		return follow(pkgLog.WithComponent(gctx, l, "agent"), svc, cfg.Agent, l)
	})

	g.Go(func() error {
		<-gctx.Done()
		l.Info(ctx, "Agent shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		healthSrv.Shutdown()
		_ = svc.Close()
		gRpcSrv.GracefulStop()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		l.Errorf(ctx, "Agent stopped: %v", err)
	}

	l.Info(ctx, "Agent exited")
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func newStore(ctx context.Context, cfg *config.Config, redisCli *redis.Client, l pkgLog.Logger) (repository.KeyValueStore, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreBackendMemory:
		return repository.NewMemoryStore(), func() {}, nil
	case config.StoreBackendRedis:
		return redisStore.NewRedisStore(redisCli, cfg.Store.Namespace, l), func() {}, nil
	default:
		db, err := sqliteInfra.Connect(ctx, cfg.Store.SQLitePath, l)
		if err != nil {
			return nil, nil, err
		}
		store, err := sqliteStore.NewSQLiteStore(ctx, db, l)
		if err != nil {
			sqliteInfra.Disconnect(ctx, db, l)
			return nil, nil, err
		}
		return store, func() { sqliteInfra.Disconnect(context.Background(), db, l) }, nil
	}
}

func newActivityProducer(cfg *config.Config, l pkgLog.Logger) (activity.Producer, error) {
	if !cfg.Kafka.Enabled {
		return activity.NewNopProducer(), nil
	}

	kafkaSyncProd, err := pkgKafka.NewProducer(pkgKafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		RetryMax:     cfg.Kafka.ProducerRetryMax,
		RequiredAcks: cfg.Kafka.ProducerRequiredAcks,
	})
	if err != nil {
		return nil, err
	}

	return activity.NewProducer(kafkaSyncProd, l), nil
}

// follow views the configured queue once, logs suggestions and then logs every event
// of the queue's channel until ctx is done.
func follow(ctx context.Context, svc service.QueueService, agent config.AgentConfig, l pkgLog.Logger) error {
	if suggestions, err := svc.Suggestions(ctx); err != nil {
		l.Warnf(ctx, "Failed to compute suggestions: %v", err)
	} else {
		for _, s := range suggestions {
			l.Infof(ctx, "Suggested queue %s (%s) reason=%s score=%.2f", s.Queue.Name, s.Queue.ID, s.Reason, s.Score)
		}
	}

	if agent.QueueID == "" {
		l.Info(ctx, "QUEUE_ID not set, nothing to follow")
		<-ctx.Done()
		return nil
	}

	out, err := svc.ViewQueue(ctx, agent.QueueID, agent.SourceCode)
	if err != nil {
		return fmt.Errorf("view queue %s: %w", agent.QueueID, err)
	}
	l.Infof(ctx, "Queue %s at %s: now serving %d, wait %s (stale=%t)",
		out.Queue.Name,
		out.Queue.Organization.Name,
		out.Queue.CurrentNumber,
		util.FormatWait(out.Queue.WaitTime()),
		out.Stale,
	)

	if _, err := svc.WatchQueue(ctx, agent.QueueID); err != nil {
		return err
	}

	handlers := realtime.Handlers{
		OnQueueUpdate: func(q models.QueueSnapshot) {
			l.Infof(ctx, "Queue %s updated: now serving %d, wait %s", q.ID, q.CurrentNumber, util.FormatWait(q.WaitTime()))
		},
		OnTicketCreated: func(t models.Ticket) {
			l.Infof(ctx, "Ticket %d created in %s", t.Number, t.QueueID)
		},
		OnTicketUpdated: func(t models.Ticket) {
			l.Infof(ctx, "Ticket %d is now %s", t.Number, t.Status)
		},
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-svc.Events():
			if !ok {
				return nil
			}
			handlers.Handle(ev)
		}
	}
}
