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

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-scheduling/cmd/mainconfig"
	"github.com/wolfman30/clinic-scheduling/internal/api/router"
	"github.com/wolfman30/clinic-scheduling/internal/app/bootstrap"
	"github.com/wolfman30/clinic-scheduling/internal/appointments"
	"github.com/wolfman30/clinic-scheduling/internal/audit"
	appconfig "github.com/wolfman30/clinic-scheduling/internal/config"
	"github.com/wolfman30/clinic-scheduling/internal/events"
	httpmiddleware "github.com/wolfman30/clinic-scheduling/internal/http/middleware"
	"github.com/wolfman30/clinic-scheduling/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduling/internal/snapshot"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

func main() {
	// A missing .env is fine; real deployments use the environment.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic scheduling API",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApplication(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		app.worker.Run(workerCtx)
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Stop the worker after the server so the final snapshot sees every write.
	cancelWorker()
	<-workerDone

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type application struct {
	handler http.Handler
	store   *appointments.Store
	worker  *snapshot.Worker
	closers []func()
}

func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApplication wires every collaborator the config asks for. Optional
// infrastructure that is unreachable is logged and skipped.
func buildApplication(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg *prometheus.Registry) (*application, error) {
	app := &application{}
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	schedMetrics := metrics.NewSchedulingMetrics(reg)
	checks := map[string]router.HealthCheck{}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		app.closers = append(app.closers, func() { _ = redisClient.Close() })
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	ledger := bootstrap.BuildLedger(cfg, redisClient, logger)

	pool := bootstrap.BuildPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		app.closers = append(app.closers, pool.Close)
		checks["postgres"] = pool.Ping
	}

	var observers []appointments.Observer
	publisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	observers = append(observers, events.NewObserver(publisher, schedMetrics, logger))

	if auditDB := bootstrap.BuildAuditDB(cfg, logger); auditDB != nil {
		app.closers = append(app.closers, func() { _ = auditDB.Close() })
		observers = append(observers, audit.NewService(auditDB, logger))
		logger.Info("audit trail enabled")
	}

	opts := append(bootstrap.StoreOptions(cfg),
		appointments.WithLedger(ledger),
		appointments.WithLogger(logger),
		appointments.WithRecorder(schedMetrics),
		appointments.WithObservers(observers...),
	)
	app.store = appointments.NewStore(opts...)

	var sinks []snapshot.Sink
	if pool != nil {
		pgSink := snapshot.NewPostgresSink(pool)
		sinks = append(sinks, pgSink)
		if err := restore(ctx, app.store, pgSink, logger); err != nil {
			return nil, err
		}
	}
	if len(app.store.Snapshot(ctx)) == 0 && cfg.SeedSampleData {
		if err := app.store.Seed(ctx, appointments.SampleAppointments()); err != nil {
			return nil, fmt.Errorf("seed sample data: %w", err)
		}
		logger.Info("sample appointments loaded", "count", len(appointments.SampleAppointments()))
	}
	if cfg.SnapshotBucket != "" {
		s3Sink, err := buildS3Sink(ctx, cfg)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s3Sink)
	}
	app.worker = snapshot.NewWorker(app.store, sinks, logger).
		WithInterval(cfg.SnapshotInterval).
		WithMetrics(schedMetrics)

	engine := appointments.Chain(app.store, bootstrap.EngineMiddleware(cfg, logger)...)

	routerCfg := &router.Config{
		Logger:              logger,
		AppointmentsHandler: appointments.NewHandler(engine, app.store, logger),
		MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		OpsMetricsHandler:   metrics.SummaryHandler(reg, logger),
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		HealthChecks:        checks,
	}
	if cfg.RateLimitRPS > 0 {
		limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		app.closers = append(app.closers, limiter.Stop)
		routerCfg.RateLimiter = limiter
	}
	app.handler = router.New(routerCfg)
	return app, nil
}

func restore(ctx context.Context, store *appointments.Store, loader snapshot.Loader, logger *logging.Logger) error {
	records, err := loader.Load(ctx)
	if err != nil {
		logger.Warn("snapshot restore skipped", "error", err)
		return nil
	}
	if len(records) == 0 {
		return nil
	}
	if err := store.Restore(ctx, records); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	logger.Info("appointments restored from snapshot", "count", len(records))
	return nil
}

func buildPublisher(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (events.Publisher, error) {
	if cfg.EventsQueueURL == "" {
		return events.NewMemoryPublisher(0), nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	logger.Info("publishing appointment events to SQS", "queue_url", cfg.EventsQueueURL)
	return events.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.EventsQueueURL), nil
}

func buildS3Sink(ctx context.Context, cfg *appconfig.Config) (*snapshot.S3Sink, error) {
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return snapshot.NewS3Sink(mainconfig.NewS3Client(awsCfg, cfg), cfg.SnapshotBucket), nil
}
