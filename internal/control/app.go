// Package control wires the pipeline together and owns its lifecycle:
// the poll timer, the retry timer, storage and the health server.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chanwatch/chanwatch/internal/core/config"
	"github.com/chanwatch/chanwatch/internal/health"
	"github.com/chanwatch/chanwatch/internal/infra/chathook"
	"github.com/chanwatch/chanwatch/internal/infra/contentapi"
	"github.com/chanwatch/chanwatch/internal/infra/feed"
	"github.com/chanwatch/chanwatch/internal/infra/push"
	"github.com/chanwatch/chanwatch/internal/infra/redisq"
	"github.com/chanwatch/chanwatch/internal/infra/storage"
	"github.com/chanwatch/chanwatch/internal/infra/storage/memory"
	"github.com/chanwatch/chanwatch/internal/infra/storage/postgres"
	"github.com/chanwatch/chanwatch/internal/infra/summarizer"
	"github.com/chanwatch/chanwatch/internal/notify"
	"github.com/chanwatch/chanwatch/internal/pipeline"
	"github.com/chanwatch/chanwatch/internal/poller"
)

// App owns every moving part of the ingestion-and-delivery pipeline.
// Constructed once at process start; no globals.
type App struct {
	cfg          *config.AppConfig
	db           *postgres.DB
	redisStore   *redisq.Store
	poller       *poller.Poller
	scheduler    *pipeline.Scheduler
	retryQueue   *notify.RetryQueue
	healthServer *health.Server
	log          *slog.Logger
	stop         chan struct{}
}

// NewApp creates an App with all dependencies initialized.
func NewApp(cfg *config.AppConfig) (*App, error) {
	log := slog.Default()

	// 1. Storage
	var (
		channelRepo storage.ChannelRepository
		itemRepo    storage.ItemRepository
		tokenRepo   storage.TokenRepository
		subRepo     storage.SubscriptionRepository
		db          *postgres.DB
	)
	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate("migrations"); err != nil {
			return nil, err
		}
		channelRepo = postgres.NewChannelRepo(db)
		itemRepo = postgres.NewItemRepo(db)
		tokenRepo = postgres.NewTokenRepo(db)
		subRepo = postgres.NewSubscriptionRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		channelRepo = memory.NewChannelRepo(store)
		itemRepo = memory.NewItemRepo(store)
		tokenRepo = memory.NewTokenRepo(store)
		subRepo = memory.NewSubscriptionRepo(store)
		log.Info("Using memory storage")
	}

	// 2. Push retry store: transient by default, Redis when durability
	// is wanted.
	var (
		retryStore notify.EntryStore
		redisStore *redisq.Store
	)
	if cfg.Redis.Enabled {
		var err error
		redisStore, err = redisq.NewStore(cfg.Redis.Conn)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis retry store: %w", err)
		}
		retryStore = redisStore
		log.Info("Using Redis push-retry store")
	} else {
		retryStore = notify.NewMemoryStore()
	}

	// 3. External collaborators
	feedSource := feed.NewFetcher(cfg.Poller.FetchTimeout, cfg.Poller.UserAgent)
	oracle := contentapi.NewClient(cfg.ContentAPI.URL, cfg.ContentAPI.APIKey, cfg.ContentAPI.Timeout)
	sum := summarizer.NewClient(cfg.Summarizer.URL, cfg.Summarizer.APIKey)
	pushClient := push.NewClient(cfg.Push.URL, cfg.Push.APIKey, cfg.Push.Timeout)
	hook := chathook.NewClient(cfg.Chat.WebhookURL, 0)

	// 4. Delivery side
	retryQueue := notify.NewRetryQueue(retryStore, tokenRepo, pushClient, cfg.Retry.ScanInterval, log)
	dispatcher := notify.NewDispatcher(subRepo, tokenRepo, pushClient, retryQueue, hook, log)

	// 5. Processing side
	worker := pipeline.NewWorker(itemRepo, channelRepo, sum, dispatcher,
		cfg.Pipeline.ProcessTimeout, cfg.Pipeline.NoCaptionsTerminal, log)
	scheduler := pipeline.NewScheduler(worker, cfg.Pipeline.BatchSize, log)

	// 6. Discovery side
	feedPoller := poller.NewPoller(channelRepo, itemRepo, feedSource, oracle, scheduler,
		cfg.Poller.BackfillCount, log)

	// 7. Health
	monitor := health.NewMonitor(channelRepo, itemRepo, retryStore)
	healthServer := health.NewServer(monitor, cfg.Server.Port)

	return &App{
		cfg:          cfg,
		db:           db,
		redisStore:   redisStore,
		poller:       feedPoller,
		scheduler:    scheduler,
		retryQueue:   retryQueue,
		healthServer: healthServer,
		log:          log,
		stop:         make(chan struct{}),
	}, nil
}

// Start launches the health server, the retry timer and the poll timer.
// It returns immediately; the loops run until the context is cancelled
// or Stop is called.
func (a *App) Start(ctx context.Context) error {
	go func() {
		a.log.Info("Health server listening", "port", a.cfg.Server.Port)
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	go a.retryQueue.Start(ctx)
	go a.runPollLoop(ctx)

	return nil
}

// runPollLoop drives poll cycles on a fixed interval. Each cycle runs
// in its own goroutine; the scheduler's single-flight guard keeps
// drains from piling up when a cycle outlasts the interval.
func (a *App) runPollLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Poller.Interval)
	defer ticker.Stop()

	a.runPollCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case <-ticker.C:
			go a.runPollCycle(ctx)
		}
	}
}

func (a *App) runPollCycle(ctx context.Context) {
	if err := a.poller.Poll(ctx); err != nil {
		a.log.Error("Poll cycle failed", "error", err)
	}
	a.scheduler.Drain(ctx)
}

// Stop shuts the app down.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping...")

	close(a.stop)
	a.retryQueue.Stop()

	if a.redisStore != nil {
		if err := a.redisStore.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}

	return a.healthServer.Stop(ctx)
}
