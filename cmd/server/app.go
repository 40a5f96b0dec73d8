package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/rs/dnscache"

	"github.com/phrazzld/imgbatch-api/internal/config"
	"github.com/phrazzld/imgbatch-api/internal/events"
	"github.com/phrazzld/imgbatch-api/internal/imaging"
	"github.com/phrazzld/imgbatch-api/internal/notify"
	"github.com/phrazzld/imgbatch-api/internal/platform/blob"
	"github.com/phrazzld/imgbatch-api/internal/platform/postgres"
	"github.com/phrazzld/imgbatch-api/internal/queue"
	"github.com/phrazzld/imgbatch-api/internal/service"
	"github.com/phrazzld/imgbatch-api/internal/store"
	"github.com/phrazzld/imgbatch-api/internal/store/memstore"
	"github.com/phrazzld/imgbatch-api/internal/task"
)

// statusWriteRetries is how often the dispatcher retries a failed status
// write before giving the delivery back to the queue.
const statusWriteRetries = 3

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// db is nil when running on the in-memory store and queue
	db *sql.DB

	blobs    blob.Store
	requests store.RequestStore
	queue    queue.Queue
	resolver *dnscache.Resolver

	emitter  *events.InMemoryEventEmitter
	notifier *notify.Notifier
	runner   *task.Runner

	requestService service.RequestService

	stopBackground context.CancelFunc
}

// newApplication creates a new application instance with all dependencies
// initialized. A nil db selects the in-memory record store and queue.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.blobs, err = blob.New(ctx, blob.Config{
		Backend:         cfg.Storage.Backend,
		LocalDir:        cfg.Storage.LocalDir,
		Bucket:          cfg.Storage.Bucket,
		Prefix:          cfg.Storage.Prefix,
		Region:          cfg.Storage.Region,
		EndpointURL:     cfg.Storage.EndpointURL,
		AccessKey:       cfg.Storage.AccessKey,
		SecretKey:       cfg.Storage.SecretKey,
		CredentialsFile: cfg.Storage.CredentialsFile,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}
	logger.Info("Blob store initialized", "backend", cfg.Storage.Backend)

	if db != nil {
		app.requests = postgres.NewPostgresRequestStore(db, logger)
		app.queue = postgres.NewPostgresJobQueue(db, postgres.JobQueueConfig{
			LeaseDuration: cfg.Worker.LeaseDuration,
			PollInterval:  cfg.Worker.PollInterval,
		}, logger)
		logger.Info("Using postgres request store and job queue")
	} else {
		app.requests = memstore.NewRequestStore(logger)
		app.queue = queue.NewMemoryQueue(cfg.Worker.QueueSize, logger)
		logger.Warn("No database configured, requests are kept in memory only")
	}

	app.resolver = &dnscache.Resolver{}
	processor, err := imaging.NewProcessor(
		imaging.NewHTTPClient(app.resolver),
		imaging.NewJPEGTransformer(cfg.Fetch.MaxDimension, cfg.Fetch.JPEGQuality),
		app.blobs,
		imaging.Config{
			FetchTimeout:  cfg.Fetch.Timeout,
			MaxImageBytes: cfg.Fetch.MaxImageBytes,
			RateLimit:     cfg.Fetch.RateLimit,
			RateBurst:     cfg.Fetch.RateBurst,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create image processor: %w", err)
	}

	app.emitter = events.NewInMemoryEventEmitter(logger)
	if cfg.Notify.URL != "" {
		app.notifier, err = notify.New(notify.Config{
			URL:        cfg.Notify.URL,
			Timeout:    cfg.Notify.Timeout,
			MaxRetries: uint64(cfg.Notify.MaxRetries),
			BufferSize: cfg.Notify.BufferSize,
		}, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create notifier: %w", err)
		}
		app.emitter.RegisterHandler(app.notifier)
	}

	dispatcher := task.NewDispatcher(
		app.requests,
		app.blobs,
		task.NewCoordinator(processor, cfg.Worker.ConcurrencyLimit, logger),
		app.emitter,
		task.DispatcherConfig{
			MaxAttempts:   cfg.Worker.MaxAttempts,
			RetryDelay:    cfg.Worker.RetryDelay,
			BatchTimeout:  cfg.Worker.BatchTimeout,
			StatusRetries: statusWriteRetries,
		},
		logger,
	)

	app.runner = task.NewRunner(app.requests, app.queue, dispatcher, task.RunnerConfig{
		WorkerCount:        cfg.Worker.WorkerCount,
		StuckRequestAge:    cfg.Worker.StuckRequestAge,
		StuckCheckInterval: cfg.Worker.StuckCheckInterval,
	}, logger)

	app.requestService, err = service.NewRequestService(
		app.requests,
		app.blobs,
		app.queue,
		service.RequestServiceConfig{MaxPayloadBytes: cfg.Server.MaxPayloadBytes},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request service: %w", err)
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

// start launches the background components: DNS cache refresh, the
// notifier and the runner's workers.
func (app *application) start(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(ctx)
	app.stopBackground = cancel

	go imaging.RefreshDNS(bgCtx, app.resolver, app.config.Fetch.DNSRefreshInterval)

	if app.notifier != nil {
		app.notifier.Start()
	}

	if err := app.runner.Start(); err != nil {
		return fmt.Errorf("failed to start runner: %w", err)
	}
	return nil
}

// Run starts the application server, handling lifecycle and cleanup.
func (app *application) Run(ctx context.Context) error {
	if err := app.start(ctx); err != nil {
		app.cleanup()
		return err
	}

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources. Workers stop
// first so interrupted deliveries are returned to the queue before it closes.
func (app *application) cleanup() {
	if app.runner != nil {
		app.runner.Stop()
	}

	if app.queue != nil {
		if err := app.queue.Close(); err != nil {
			app.logger.Error("Error closing queue", "error", err)
		}
	}

	if app.notifier != nil {
		if err := app.notifier.Close(); err != nil {
			app.logger.Error("Error closing notifier", "error", err)
		}
	}

	if app.stopBackground != nil {
		app.stopBackground()
	}

	if closer, ok := app.blobs.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			app.logger.Error("Error closing blob store", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
