package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	coreconfig "github.com/AzielCF/az-publisher/core/config"
	coreDB "github.com/AzielCF/az-publisher/core/database"
	"github.com/AzielCF/az-publisher/core/telemetry"
	"github.com/AzielCF/az-publisher/infrastructure/events"
	"github.com/AzielCF/az-publisher/infrastructure/signal"
	"github.com/AzielCF/az-publisher/infrastructure/social/linkedin"
	"github.com/AzielCF/az-publisher/infrastructure/social/xcom"
	"github.com/AzielCF/az-publisher/infrastructure/valkey"
	"github.com/AzielCF/az-publisher/pkg/crypto"
	"github.com/AzielCF/az-publisher/publishing/application"
	"github.com/AzielCF/az-publisher/publishing/domain/platform"
	"github.com/AzielCF/az-publisher/publishing/ratelimit"
	"github.com/AzielCF/az-publisher/publishing/repository"
	"github.com/AzielCF/az-publisher/publishing/usecase"
	"github.com/AzielCF/az-publisher/ui/rest"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// appContainer holds every long-lived component a command needs.
type appContainer struct {
	cfg *coreconfig.Config
	db  *gorm.DB
	vk  *valkey.Client

	schedules   *repository.ScheduleGormRepository
	posts       *repository.PostGormRepository
	credentials *repository.CredentialGormRepository

	limiter     *ratelimit.RateLimiter
	registry    *application.PublisherRegistry
	coordinator *application.PublishCoordinator
	scheduler   *application.SchedulerLoop
	wake        application.WakeSignal
	publishing  *usecase.PublishingUsecase

	sink              events.Sink
	shutdownTelemetry func(context.Context) error
}

// openStores connects the database and makes sure every table exists.
func openStores(ctx context.Context, cfg *coreconfig.Config) (*appContainer, error) {
	if !coreDB.IsPostgres(cfg) {
		if err := os.MkdirAll(cfg.Paths.Storages, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	db, err := coreDB.NewDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cipher, err := crypto.NewCipher(cfg.Security.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("init token cipher: %w", err)
	}
	if !cipher.Enabled() {
		logrus.Warn("[APP] APP_SECRET_KEY is not set; platform tokens are stored unencrypted")
	}

	app := &appContainer{
		cfg:         cfg,
		db:          db,
		schedules:   repository.NewScheduleGormRepository(db),
		posts:       repository.NewPostGormRepository(db),
		credentials: repository.NewCredentialGormRepository(db, cipher),
	}

	if err := app.schedules.Init(ctx); err != nil {
		return nil, fmt.Errorf("migrate scheduled posts: %w", err)
	}
	if err := app.posts.Init(ctx); err != nil {
		return nil, fmt.Errorf("migrate posts: %w", err)
	}
	if err := app.credentials.Init(ctx); err != nil {
		return nil, fmt.Errorf("migrate credentials: %w", err)
	}
	return app, nil
}

// bootstrap builds the full publishing pipeline on top of the stores.
func bootstrap(ctx context.Context) (*appContainer, error) {
	cfg := coreconfig.Global

	app, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Database.ValkeyEnabled {
		vk, err := valkey.NewClient(ctx, valkey.Config{
			Address:   cfg.Database.ValkeyAddress,
			Password:  cfg.Database.ValkeyPassword,
			DB:        cfg.Database.ValkeyDB,
			KeyPrefix: cfg.Database.ValkeyKeyPrefix,
		})
		if err != nil {
			logrus.WithError(err).Warn("[APP] Valkey unavailable, continuing with process-local limits and signals")
		} else {
			app.vk = vk
		}
	}

	app.limiter = newRateLimiter(cfg, app.vk)

	app.registry = application.NewPublisherRegistry(
		linkedin.New(linkedin.Config{
			BaseURL:    cfg.Platforms.LinkedInBaseURL,
			APIVersion: cfg.Platforms.LinkedInAPIVersion,
			Timeout:    cfg.Platforms.HTTPTimeout,
		}),
		xcom.New(xcom.Config{
			BaseURL: cfg.Platforms.XBaseURL,
			Timeout: cfg.Platforms.HTTPTimeout,
		}),
	)

	provider, shutdown, err := telemetry.Init(ctx, telemetry.Config{
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	app.shutdownTelemetry = shutdown
	metrics, err := application.NewPublishMetrics(provider)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	app.sink = newEventSink(cfg)

	app.coordinator = application.NewPublishCoordinator(app.schedules, app.registry, app.limiter, app.credentials,
		application.WithPostStore(app.posts),
		application.WithStageAdvancer(events.NewStageNotifier(app.sink, uuid.NewString)),
		application.WithMetrics(metrics),
	)

	app.wake = newWakeSignal(cfg, app.db, app.vk)

	scanner := application.NewDuePostScanner(app.schedules, cfg.Scheduler.BatchSize)
	app.scheduler = application.NewSchedulerLoop(application.SchedulerConfig{
		Enabled:     cfg.Scheduler.Enabled,
		Interval:    cfg.Scheduler.Interval,
		BatchSize:   cfg.Scheduler.BatchSize,
		Concurrency: cfg.Scheduler.Concurrency,
		StaleAfter:  cfg.Scheduler.StaleAfter,
	}, scanner, app.coordinator, application.WithWakeSignal(app.wake))

	app.publishing = usecase.NewPublishingUsecase(app.schedules, app.coordinator,
		usecase.WithWakeSignal(app.wake),
		usecase.WithDefaultMaxRetries(cfg.Scheduler.MaxRetries),
	)

	logrus.Infof("[APP] pipeline ready (server=%s db=%s platforms=%v)", cfg.App.ServerID, cfg.Database.Driver, app.registry.Platforms())
	return app, nil
}

func newRateLimiter(cfg *coreconfig.Config, vk *valkey.Client) *ratelimit.RateLimiter {
	overrides := map[platform.Platform]ratelimit.Limit{}
	for name, l := range cfg.RateLimit.Platforms {
		p, err := platform.Parse(name)
		if err != nil {
			continue
		}
		overrides[p] = ratelimit.Limit{
			RequestsPerMinute: l.RequestsPerMinute,
			Burst:             l.Burst,
			BaseDelay:         l.BaseDelay,
			BackoffMultiplier: l.BackoffMultiplier,
		}
	}

	var opts []ratelimit.Option
	switch {
	case cfg.RateLimit.Backend == "valkey" && vk != nil:
		opts = append(opts, ratelimit.WithBucketFactory(ratelimit.ValkeyBuckets(vk)))
	case cfg.RateLimit.Backend == "valkey":
		logrus.Warn("[RATELIMIT] valkey backend requested but Valkey is not connected; using local buckets")
	}
	return ratelimit.New(overrides, opts...)
}

func newEventSink(cfg *coreconfig.Config) events.Sink {
	switch cfg.Events.Sink {
	case "webhook":
		if len(cfg.Events.WebhookURLs) == 0 {
			logrus.Warn("[EVENTS] webhook sink selected without EVENTS_WEBHOOK_URLS; events are dropped")
			return events.Noop{}
		}
		return events.NewWebhook(events.WebhookConfig{
			URLs:   cfg.Events.WebhookURLs,
			Secret: cfg.Events.WebhookSecret,
		})
	case "amqp":
		return events.NewAMQP(events.AMQPConfig{
			URL:      cfg.Events.AMQPURL,
			Exchange: cfg.Events.AMQPExchange,
		})
	default:
		return events.Noop{}
	}
}

func newWakeSignal(cfg *coreconfig.Config, db *gorm.DB, vk *valkey.Client) application.WakeSignal {
	backend := cfg.Scheduler.WakeBackend
	if backend == "" {
		switch {
		case vk != nil:
			backend = "valkey"
		case coreDB.IsPostgres(cfg):
			backend = "postgres"
		default:
			backend = "local"
		}
	}

	switch {
	case backend == "valkey" && vk != nil:
		return signal.NewValkey(vk)
	case backend == "postgres" && coreDB.IsPostgres(cfg):
		return signal.NewPostgres(db, coreDB.PostgresDSN(cfg))
	case backend != "local":
		logrus.Warnf("[SIGNAL] wake backend %q is not available, using in-process signal", backend)
	}
	return signal.NewLocal()
}

func (a *appContainer) healthChecks() map[string]rest.HealthCheck {
	checks := map[string]rest.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := a.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if a.vk != nil {
		checks["valkey"] = a.vk.Ping
	}
	return checks
}

// Close stops the scheduler and releases every connection.
func (a *appContainer) Close() {
	logrus.Info("[APP] Stopping application...")

	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			logrus.WithError(err).Warn("[EVENTS] failed to close sink")
		}
	}
	if a.shutdownTelemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.shutdownTelemetry(ctx); err != nil {
			logrus.WithError(err).Warn("[APP] failed to flush metrics")
		}
		cancel()
	}
	if a.vk != nil {
		a.vk.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	logrus.Info("[APP] Application stopped cleanly.")
}
