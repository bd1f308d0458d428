package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	mqcontracts "pamsync/contracts/mq"
	"pamsync/internal/config"
	"pamsync/internal/handler"
	"pamsync/internal/httpserver"
	"pamsync/internal/mqhandler"
	"pamsync/internal/repository"
	"pamsync/internal/service/identity"
	"pamsync/internal/service/lifecycle"
	"pamsync/internal/service/notify"
	"pamsync/internal/service/reconcile"
	"pamsync/internal/service/syncer"
	"pamsync/internal/validate"
	"pamsync/migrations"
	"pamsync/pkg/circuitbreaker"
	"pamsync/pkg/db"
	"pamsync/pkg/logger"
	"pamsync/pkg/mq"
	"pamsync/pkg/otel"
	"pamsync/pkg/outbox"
	"pamsync/pkg/redis"
	"pamsync/pkg/util"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.LogLevel)
	defer log.Sync()

	log.Info("Starting pamsync...",
		zap.String("version", version),
		zap.String("db_host", cfg.DB.Host),
		zap.String("mq_url", cfg.MQ.URL),
		zap.Int("sources", len(cfg.Sync.Sources)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(cfg.OTel, version, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownTracing()

	// DB
	dbConn, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()
	if err := migrations.Apply(ctx, dbConn, log); err != nil {
		log.Fatal("Failed to apply migrations", zap.Error(err))
	}

	// Redis
	rdb, err := redis.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to init Redis", zap.Error(err))
	}
	defer rdb.Close()

	// MQ Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories & services
	repo := repository.New(dbConn, log)
	resolver := identity.NewResolver(repo, log)
	emitter := notify.NewEmitter(log)
	engine := lifecycle.NewEngine(repo, resolver, emitter, cfg.Location(), log)
	reconciler := reconcile.NewReconciler(repo, resolver, emitter, log)

	registry, err := buildRegistry(cfg, reconciler, rdb, publisher, log)
	if err != nil {
		log.Fatal("Failed to build sync sources", zap.Error(err))
	}

	// Outbox dispatcher
	outboxRepo := outbox.NewRepository(dbConn)
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
		WithInterval(cfg.Outbox.Interval).
		WithBatchSize(cfg.Outbox.BatchSize).
		WithMaxRetries(cfg.Outbox.MaxRetries)
	go dispatcher.Start(ctx)

	// Scheduled sync
	if cfg.Sync.ScheduleInterval > 0 {
		go registry.RunScheduled(ctx, syncer.Scheduled{Interval: cfg.Sync.ScheduleInterval})
	}

	// MQ Consumer for pam.sync.requested
	consumer, err := mq.NewConsumer(cfg.MQ.URL, "pam.sync.requested.q", mqcontracts.RoutingSyncRequested, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetDeadLetter(publisher)
	deduper := util.NewDeduper(rdb, cfg.DedupeTTL, log)
	consumer.SetHandler(mqhandler.NewSyncRequestedHandler(registry, deduper, log).Handle)

	go func() {
		log.Info("Starting pam.sync.requested consumer...")
		if err := consumer.StartConsuming(); err != nil {
			log.Error("Sync request consumer failed", zap.Error(err))
			stop()
		}
	}()

	// HTTP Server
	router := httpserver.NewRouter(
		handler.NewSyncHandler(registry, log),
		handler.NewTaskHandler(engine, log),
		handler.NewNotificationHandler(notify.NewInbox(repo)),
		cfg.JWT.Secret,
		map[string]httpserver.Pinger{
			"db": repo,
			"redis": httpserver.PingFunc(func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}),
			"mq": httpserver.PingFunc(func(context.Context) error {
				if !publisher.IsConnected() || !consumer.IsConnected() {
					return errors.New("rabbitmq connection closed")
				}
				return nil
			}),
		},
		log,
	)
	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	log.Info("pamsync is fully initialized and running")
	<-ctx.Done()

	log.Info("Shutting down pamsync gracefully...")
	consumer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("pamsync shutdown complete")
}

// buildRegistry creates one orchestrator per configured source.
func buildRegistry(
	cfg *config.Config,
	reconciler *reconcile.Reconciler,
	rdb *goredis.Client,
	publisher *mq.Publisher,
	log *zap.Logger,
) (*syncer.Registry, error) {
	validator, err := validate.New(cfg.Sync.AllowedDomains)
	if err != nil {
		return nil, err
	}
	policy, err := syncer.ParseImportPolicy(cfg.Sync.ImportPolicy)
	if err != nil {
		return nil, err
	}

	state := syncer.NewRedisStateStore(rdb)
	registry := syncer.NewRegistry(log)
	for _, src := range cfg.Sync.Sources {
		// 每个来源一个断路器，互不影响
		fetcher := syncer.NewHTTPFetcher(cfg.Sync.FetchTimeout, circuitbreaker.New(cfg.Sync.Breaker))
		source := syncer.Source{
			OrgID:      uuid.MustParse(src.OrgID),
			URL:        src.URL,
			Label:      src.Label,
			ImporterID: uuid.MustParse(src.ImporterID),
		}
		registry.Register(syncer.NewOrchestrator(source, fetcher, state, validator, reconciler, log,
			syncer.WithPolicy(policy),
			syncer.WithMinInterval(cfg.Sync.MinInterval),
			syncer.WithPublisher(publisher),
		))
		log.Info("Sync source registered",
			zap.String("org_id", src.OrgID),
			zap.String("label", src.Label),
			zap.String("policy", string(policy)),
		)
	}
	return registry, nil
}
