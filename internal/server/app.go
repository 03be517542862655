// Package server builds the application's dependencies and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/tejaschuahan/job-scraper-bot/internal/antiblock"
	"github.com/tejaschuahan/job-scraper-bot/internal/api"
	"github.com/tejaschuahan/job-scraper-bot/internal/chat"
	tgchat "github.com/tejaschuahan/job-scraper-bot/internal/chat/telegram"
	"github.com/tejaschuahan/job-scraper-bot/internal/clock/system"
	"github.com/tejaschuahan/job-scraper-bot/internal/config"
	"github.com/tejaschuahan/job-scraper-bot/internal/dedup"
	memorydedup "github.com/tejaschuahan/job-scraper-bot/internal/dedup/memory"
	redisdedup "github.com/tejaschuahan/job-scraper-bot/internal/dedup/redis"
	sqlitededup "github.com/tejaschuahan/job-scraper-bot/internal/dedup/sqlite"
	"github.com/tejaschuahan/job-scraper-bot/internal/enrich"
	"github.com/tejaschuahan/job-scraper-bot/internal/enrich/llm"
	"github.com/tejaschuahan/job-scraper-bot/internal/fetcher"
	collyfetcher "github.com/tejaschuahan/job-scraper-bot/internal/fetcher/colly"
	headlessfetcher "github.com/tejaschuahan/job-scraper-bot/internal/fetcher/headless"
	"github.com/tejaschuahan/job-scraper-bot/internal/headless/detector"
	"github.com/tejaschuahan/job-scraper-bot/internal/health"
	"github.com/tejaschuahan/job-scraper-bot/internal/id/uuid"
	"github.com/tejaschuahan/job-scraper-bot/internal/logging"
	"github.com/tejaschuahan/job-scraper-bot/internal/metrics"
	lognotify "github.com/tejaschuahan/job-scraper-bot/internal/notify/log"
	tgnotify "github.com/tejaschuahan/job-scraper-bot/internal/notify/telegram"
	"github.com/tejaschuahan/job-scraper-bot/internal/orchestrator"
	"github.com/tejaschuahan/job-scraper-bot/internal/pipeline"
	"github.com/tejaschuahan/job-scraper-bot/internal/policy/ratelimit"
	"github.com/tejaschuahan/job-scraper-bot/internal/progress"
	progresssinks "github.com/tejaschuahan/job-scraper-bot/internal/progress/sinks"
	"github.com/tejaschuahan/job-scraper-bot/internal/publisher"
	gcppublisher "github.com/tejaschuahan/job-scraper-bot/internal/publisher/pubsub"
	"github.com/tejaschuahan/job-scraper-bot/internal/scheduler"
	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
	"github.com/tejaschuahan/job-scraper-bot/internal/session"
	"github.com/tejaschuahan/job-scraper-bot/internal/source"
	"github.com/tejaschuahan/job-scraper-bot/internal/source/adzuna"
	"github.com/tejaschuahan/job-scraper-bot/internal/source/htmlboard"
	"github.com/tejaschuahan/job-scraper-bot/internal/source/remotive"
	blobstorage "github.com/tejaschuahan/job-scraper-bot/internal/storage"
	gcsstorage "github.com/tejaschuahan/job-scraper-bot/internal/storage/gcs"
	localstorage "github.com/tejaschuahan/job-scraper-bot/internal/storage/local"
	memorystorage "github.com/tejaschuahan/job-scraper-bot/internal/storage/memory"
	pgstore "github.com/tejaschuahan/job-scraper-bot/internal/storage/postgres"
	"github.com/tejaschuahan/job-scraper-bot/internal/store"
)

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	clock           scraper.Clock
	apiServer       *api.Server
	sessions        *session.Manager
	router          *chat.Router
	poller          *tgchat.Poller
	scheduler       *scheduler.Scheduler
	progressHub     *progress.Hub
	pool            *pgxpool.Pool
	redis           *goredis.Client
	sqlite          *sqlitededup.Store
	headless        *headlessfetcher.Fetcher
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storage         *storage.Client
	bot             botAPI
	cycles          store.CycleRepository
	readyChecks     map[string]api.ReadyCheck
}

// botAPI is the part of *tgbotapi.BotAPI the app uses for both directions.
type botAPI interface {
	tgnotify.Sender
	tgchat.Updater
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	type SanitizedConfig struct {
		ServerPort  int    `json:"server_port"`
		Dedup       string `json:"dedup"`
		Storage     string `json:"storage"`
		Telegram    bool   `json:"telegram"`
		Enrichment  bool   `json:"enrichment"`
		IntervalSec int    `json:"interval_seconds"`
	}
	safeCfg := SanitizedConfig{
		ServerPort:  cfg.Server.Port,
		Dedup:       cfg.Dedup.Backend,
		Storage:     cfg.Storage.Backend,
		Telegram:    cfg.Telegram.Enabled,
		Enrichment:  cfg.Enrich.Enabled,
		IntervalSec: int(cfg.Scraping.Interval / time.Second),
	}
	logger.Info("creating application", zap.Any("config", safeCfg))
	return &App{
		cfg:         cfg,
		logger:      logger,
		clock:       system.New(),
		readyChecks: make(map[string]api.ReadyCheck),
	}, nil
}

// Run starts the background loops and the HTTP server and blocks until ctx
// is cancelled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	if a.poller != nil {
		go func() {
			a.logger.Info("telegram poller started")
			if err := a.poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("telegram poller stopped", zap.Error(err))
				stop()
			}
		}()
	}

	var srv *http.Server
	if a.cfg.Server.Enabled {
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
			Handler:           a.apiServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("http server error", zap.Error(err))
				stop()
			}
		}()
	}

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
	}
	return a.Close(shutdownCtx)
}

// Close ends every session, stops the periodic jobs and releases clients.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.sessions != nil {
		if err := a.sessions.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("session shutdown: %w", err))
		}
	}
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.logger.Warn("scheduler stop failed", zap.Error(err))
		}
	}
	a.closeInfrastructure(ctx)
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.sqlite != nil {
		if err := a.sqlite.Close(); err != nil {
			a.logger.Warn("sqlite close failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return build(ctx, cfg, logger, nil)
}

// build wires the app. bot, when non-nil, replaces the Telegram client.
func build(ctx context.Context, cfg *config.Config, logger *zap.Logger, bot botAPI) (_ *App, err error) {
	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	defer func() {
		if err != nil {
			app.closeInfrastructure(ctx)
		}
	}()
	app.bot = bot

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	metrics.Init()

	app.logger.Info("building application dependencies")
	if err = setupDatabase(ctx, app); err != nil {
		return nil, err
	}
	seen, err := setupDedup(ctx, app)
	if err != nil {
		return nil, err
	}
	registry, err := setupSources(app)
	if err != nil {
		return nil, err
	}
	emitter, err := setupProgress(ctx, app)
	if err != nil {
		return nil, err
	}
	blobs, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}
	pub, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}
	notifier, err := setupNotifier(app)
	if err != nil {
		return nil, err
	}
	enricher, err := setupEnricher(app)
	if err != nil {
		return nil, err
	}

	guard := antiblock.New(antiblock.Config{
		UserAgents:  cfg.Scraping.UserAgents,
		Proxies:     cfg.Scraping.Proxies,
		MinDelay:    cfg.Scraping.MinDelay,
		MaxDelay:    cfg.Scraping.MaxDelay,
		MaxAttempts: cfg.Scraping.MaxRetries,
		BackoffBase: cfg.Scraping.BackoffBase,
		BackoffMax:  cfg.Scraping.BackoffMax,
	}, app.clock, logger)
	pacer := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Scraping.SourceRPS,
		DefaultBurst: cfg.Scraping.SourceBurst,
		PerSourceRPS: cfg.Scraping.PerSourceRPS,
	})
	orch, err := orchestrator.New(registry, guard, pacer, app.clock, emitter, logger, orchestrator.Config{
		Concurrency: cfg.Scraping.Concurrency,
		MaxAttempts: cfg.Scraping.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}

	monitor := health.New(health.Config{
		FailureThreshold: cfg.Monitoring.FailureThreshold,
		StaleAfter:       cfg.Monitoring.StaleAfter,
	}, app.clock, logger)

	ids := uuid.New()
	runner, err := pipeline.New(pipeline.Deps{
		Fetcher:   orch,
		Dedup:     seen,
		Notifier:  notifier,
		Health:    monitor,
		Enricher:  enricher,
		Publisher: pub,
		Blobs:     blobs,
		Emitter:   emitter,
		Clock:     app.clock,
		IDs:       ids,
		Logger:    logger,
	}, pipeline.Config{
		Sources:       cfg.SourceIDs(),
		Location:      cfg.Scraping.Location,
		DefaultFilter: cfg.Filters,
		AlertUserIDs:  cfg.Monitoring.AlertUserIDs,
		EnrichTimeout: cfg.Enrich.Timeout,
		StatusEvery:   cfg.Monitoring.StatusEvery,
		ReportPrefix:  cfg.Storage.Prefix,
		KeepSimilar:   cfg.Dedup.KeepSimilar,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}

	// The router needs the manager and the manager reports to the router.
	observer := session.ObserverFunc(func(t session.Transition) {
		logger.Info("session transition",
			zap.String("user", t.UserID),
			zap.String("from", t.From.String()),
			zap.String("to", t.To.String()),
			zap.String("reason", t.Reason),
		)
		if app.router != nil {
			app.router.OnTransition(t)
		}
	})
	app.sessions, err = session.New(runner, app.clock, ids, observer, logger, session.Config{
		Interval:       cfg.Scraping.Interval,
		CycleTimeout:   cfg.Scraping.CycleTimeout,
		ConfirmTimeout: cfg.Session.ConfirmTimeout,
		MaxQueries:     cfg.Session.MaxQueries,
	})
	if err != nil {
		return nil, fmt.Errorf("session manager init failed: %w", err)
	}
	app.router = chat.NewRouter(app.sessions, notifier, cfg.Scraping.Interval, logger)
	if app.bot != nil {
		app.poller = tgchat.NewPoller(app.bot, app.router, cfg.Telegram.PollTimeout, logger)
	}

	app.scheduler, err = scheduler.New(seen, monitor, notifier, app.clock, logger, scheduler.Config{
		PruneInterval:     cfg.Dedup.PruneInterval,
		Retention:         cfg.Dedup.Retention,
		StatsInterval:     cfg.Monitoring.StatsInterval,
		HealthInterval:    cfg.Monitoring.HealthInterval,
		StaleAfter:        cfg.Monitoring.StaleAfter,
		ResetAfterSummary: cfg.Monitoring.ResetStatsAfterSummary,
		AdminUserIDs:      cfg.AdminIDs(),
	})
	if err != nil {
		return nil, fmt.Errorf("scheduler init failed: %w", err)
	}

	apiKey := ""
	if cfg.Auth.Enabled {
		apiKey = cfg.Auth.APIKey
	}
	app.apiServer = api.NewServer(app.sessions, monitor, app.cycles, logger, api.Options{
		APIKey:         apiKey,
		RequestTimeout: cfg.Server.RequestTimeout,
		ReadyChecks:    app.readyChecks,
	})
	return app, nil
}

func setupDatabase(ctx context.Context, app *App) error {
	if app.cfg.DB.DSN == "" {
		app.logger.Info("no database configured, cycle history kept in memory")
		app.cycles = memorystorage.NewCycleStore()
		return nil
	}
	if app.cfg.DB.Migrate {
		if err := pgstore.Migrate(app.cfg.DB.DSN); err != nil {
			return fmt.Errorf("database migration failed: %w", err)
		}
		app.logger.Info("database migrations applied")
	}
	var err error
	app.pool, err = pgstore.NewPool(ctx, pgstore.Config{
		DSN:             app.cfg.DB.DSN,
		MaxConns:        app.cfg.DB.MaxConns,
		MinConns:        app.cfg.DB.MinConns,
		MaxConnLifetime: app.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("postgres pool init failed: %w", err)
	}
	app.cycles, err = pgstore.NewCycleStore(app.pool)
	if err != nil {
		return fmt.Errorf("cycle store init failed: %w", err)
	}
	app.readyChecks["postgres"] = app.pool.Ping
	return nil
}

func setupDedup(ctx context.Context, app *App) (*dedup.Store, error) {
	var marker scraper.SeenMarker
	switch app.cfg.Dedup.Backend {
	case config.BackendSQLite:
		s, err := sqlitededup.Open(ctx, sqlitededup.Config{Path: app.cfg.SQLite.Path})
		if err != nil {
			return nil, fmt.Errorf("sqlite dedup init failed: %w", err)
		}
		app.sqlite = s
		app.readyChecks["sqlite"] = func(ctx context.Context) error {
			_, err := s.Count(ctx)
			return err
		}
		marker = s
	case config.BackendPostgres:
		if app.pool == nil {
			return nil, errors.New("postgres dedup backend requires db.dsn")
		}
		s, err := pgstore.NewSeenStore(app.pool)
		if err != nil {
			return nil, fmt.Errorf("postgres dedup init failed: %w", err)
		}
		marker = s
	case config.BackendRedis:
		client, err := redisdedup.NewClient(ctx, app.cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("redis client init failed: %w", err)
		}
		app.redis = client
		app.readyChecks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
		s, err := redisdedup.New(client, redisdedup.Config{
			KeyPrefix: app.cfg.Redis.KeyPrefix,
			Retention: app.cfg.Dedup.Retention,
		})
		if err != nil {
			return nil, fmt.Errorf("redis dedup init failed: %w", err)
		}
		marker = s
	default:
		app.logger.Warn("using in-memory dedup store, seen jobs are lost on restart")
		marker = memorydedup.New()
	}
	app.logger.Info("dedup store ready",
		zap.String("backend", app.cfg.Dedup.Backend),
		zap.String("scope", app.cfg.Dedup.Scope),
	)
	seen, err := dedup.New(marker, app.clock, app.logger, dedup.Config{Scope: dedup.Scope(app.cfg.Dedup.Scope)})
	if err != nil {
		return nil, fmt.Errorf("dedup init failed: %w", err)
	}
	return seen, nil
}

func setupSources(app *App) (*source.Registry, error) {
	cfg := app.cfg
	httpFetcher := collyfetcher.New(collyfetcher.Config{
		RespectRobots: cfg.Scraping.RespectRobots,
		Timeout:       cfg.Scraping.RequestTimeout,
	})
	var rendered fetcher.Fetcher = headlessfetcher.NewNoop()
	if cfg.Sources.Headless.Enabled {
		h, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Sources.Headless.MaxParallel,
			NavigationTimeout: cfg.Sources.Headless.NavigationTimeout,
			WaitSelector:      cfg.Sources.Headless.WaitSelector,
		})
		if err != nil {
			app.logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			app.headless = h
			rendered = h
			app.logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Sources.Headless.MaxParallel))
		}
	}

	var adapters []scraper.Adapter
	if cfg.Sources.Remotive.Enabled {
		adapters = append(adapters, remotive.New(remotive.Config{
			BaseURL: cfg.Sources.Remotive.BaseURL,
			Limit:   cfg.Sources.Remotive.Limit,
		}, httpFetcher, app.clock))
	}
	if cfg.Sources.Adzuna.Enabled {
		adapters = append(adapters, adzuna.New(adzuna.Config{
			BaseURL:  cfg.Sources.Adzuna.BaseURL,
			AppID:    cfg.Sources.Adzuna.AppID,
			AppKey:   cfg.Sources.Adzuna.AppKey,
			Country:  cfg.Sources.Adzuna.Country,
			MaxPages: cfg.Sources.Adzuna.MaxPages,
		}, httpFetcher, app.clock))
	}
	for _, board := range cfg.Sources.Boards {
		f := fetcher.Fetcher(httpFetcher)
		switch board.Render {
		case "headless":
			f = rendered
		case "auto":
			if app.headless != nil {
				f = detector.NewPromoting(httpFetcher, app.headless, detector.NewHeuristic(cfg.Sources.Headless.PromotionThreshold), app.logger)
			}
		}
		a, err := htmlboard.New(board, f, app.clock)
		if err != nil {
			return nil, fmt.Errorf("html board %s: %w", board.ID, err)
		}
		adapters = append(adapters, a)
	}
	registry, err := source.NewRegistry(adapters...)
	if err != nil {
		return nil, fmt.Errorf("source registry init failed: %w", err)
	}
	if len(registry.IDs()) == 0 {
		return nil, errors.New("no job sources enabled")
	}
	if _, err := registry.Resolve(cfg.SourceIDs()); err != nil {
		return nil, fmt.Errorf("sources.enabled: %w", err)
	}
	app.logger.Info("job sources registered", zap.Any("sources", registry.IDs()))
	return registry, nil
}

func setupProgress(ctx context.Context, app *App) (progress.Emitter, error) {
	var sinkList []progress.Sink
	if app.cfg.Progress.Store {
		sinkList = append(sinkList, progresssinks.NewStoreSink(app.cycles, app.logger.Named("progress_store")))
	}
	if app.cfg.Progress.Log {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress_log")))
	}
	if app.cfg.Progress.Prometheus {
		promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, fmt.Errorf("prometheus progress sink init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
	}
	if len(sinkList) == 0 {
		app.logger.Info("progress tracking disabled")
		return nil, nil
	}
	hubCfg := progress.Config{
		BufferSize:     app.cfg.Progress.BufferSize,
		MaxBatchEvents: app.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   app.cfg.Progress.MaxBatchWait,
		SinkTimeout:    app.cfg.Progress.SinkTimeout,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return app.progressHub, nil
}

func setupStorage(ctx context.Context, app *App) (blobstorage.BlobStore, error) {
	switch app.cfg.Storage.Backend {
	case config.StorageGCS:
		app.logger.Info("using GCS report storage", zap.String("bucket", app.cfg.Storage.GCSBucket))
		var err error
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobs, err := gcsstorage.New(app.storage, gcsstorage.Config{Bucket: app.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobs, nil
	case config.StorageLocal:
		app.logger.Info("using local report storage", zap.String("path", app.cfg.Storage.BaseDir))
		blobs, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobs, nil
	default:
		app.logger.Info("cycle reports are not archived")
		return blobstorage.Discard{}, nil
	}
}

func setupPublisher(ctx context.Context, app *App) (publisher.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Info("no Pub/Sub topic configured, delivered-job events are discarded")
		return publisher.Discard{}, nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher, err = gcppublisher.New(app.pubsubClient, app.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return app.pubsubPublisher, nil
}

func setupNotifier(app *App) (scraper.Notifier, error) {
	if !app.cfg.Telegram.Enabled {
		app.logger.Warn("telegram disabled, notifications are logged only")
		return lognotify.New(app.logger), nil
	}
	if app.bot == nil {
		bot, err := tgnotify.NewBot(app.cfg.Telegram.Token)
		if err != nil {
			return nil, fmt.Errorf("telegram bot init failed: %w", err)
		}
		app.bot = bot
	}
	n, err := tgnotify.New(app.bot, tgnotify.Config{
		MessagesPerSecond: app.cfg.Telegram.MessagesPerSecond,
		DisablePreview:    app.cfg.Telegram.DisablePreview,
		ShowJobType:       app.cfg.Telegram.ShowJobType,
		ShowDescription:   app.cfg.Telegram.ShowDescription,
	}, app.logger)
	if err != nil {
		return nil, fmt.Errorf("telegram notifier init failed: %w", err)
	}
	return n, nil
}

func setupEnricher(app *App) (enrich.Enricher, error) {
	if !app.cfg.Enrich.Enabled {
		return enrich.Noop{}, nil
	}
	c, err := llm.New(llm.Config{
		BaseURL: app.cfg.Enrich.BaseURL,
		APIKey:  app.cfg.Enrich.APIKey,
		Model:   app.cfg.Enrich.Model,
		Timeout: app.cfg.Enrich.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("enricher init failed: %w", err)
	}
	app.logger.Info("job enrichment enabled", zap.String("model", app.cfg.Enrich.Model))
	return c, nil
}
