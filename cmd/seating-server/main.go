// Команда seating-server HTTP сервис резервирования мест.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	resttransport "github.com/akriventsev/theater/framework/adapters/transport"
	"github.com/akriventsev/theater/framework/container"
	"github.com/akriventsev/theater/framework/core"
	"github.com/akriventsev/theater/framework/cqrs"
	"github.com/akriventsev/theater/framework/metrics"
	"github.com/akriventsev/theater/framework/observability"
	"github.com/akriventsev/theater/framework/transport"
	"github.com/akriventsev/theater/seating/api"
	"github.com/akriventsev/theater/seating/application"
	"github.com/akriventsev/theater/seating/config"
	"github.com/akriventsev/theater/seating/infrastructure"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
)

const (
	serviceName    = "seating"
	commandTimeout = 10 * time.Second
)

var version = "dev"

func main() {
	envFiles := pflag.StringSlice("env-file", []string{".env"}, "dotenv files to load before reading the environment")
	addr := pflag.String("addr", "", "HTTP listen address (overrides SEATING_HTTP_ADDR)")
	logLevel := pflag.String("log-level", "", "log level (overrides SEATING_LOG_LEVEL)")
	pflag.Parse()

	cfg, err := config.Load(*envFiles...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", serviceName))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	app := container.NewContainer(&container.Config{ShutdownTimeout: cfg.HTTPShutdownTimeout}, logger)

	// Метрики и трассировка
	provider, err := metrics.SetupMetrics(&metrics.MetricsConfig{
		ExporterType: cfg.MetricsExporter,
		ResourceAttrs: map[string]string{
			"service.name":    serviceName,
			"service.version": version,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to setup metrics: %w", err)
	}
	defer func() { _ = metrics.ShutdownMetrics(context.Background(), provider) }()

	m, err := metrics.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	tracing, err := observability.NewTracingManager(observability.TracingConfig{
		Enabled:          cfg.TracingEnabled,
		ServiceName:      serviceName,
		ServiceVersion:   version,
		Exporter:         cfg.TracingExporter,
		ExporterEndpoint: cfg.TracingEndpoint,
		SamplingRate:     cfg.TracingSampling,
		Environment:      cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("failed to setup tracing: %w", err)
	}
	if err := app.Register("tracing", tracing); err != nil {
		return err
	}

	// Хранилище и публикация событий
	store, err := infrastructure.NewEventStore(ctx, cfg, infrastructure.NewRegistry())
	if err != nil {
		return fmt.Errorf("failed to create event store: %w", err)
	}
	storeLifecycle, ok := store.(core.Lifecycle)
	if !ok {
		storeLifecycle = &container.Hooks{}
	}
	if err := app.Register("store", storeLifecycle); err != nil {
		return err
	}

	publishers, err := infrastructure.NewPublishers(cfg, m, logger)
	if err != nil {
		return err
	}
	if err := app.Register("publishers", publishers, "tracing"); err != nil {
		return err
	}

	hub := resttransport.NewWebSocketHub(resttransport.DefaultWebSocketConfig(), m, logger)
	if err := publishers.Local().Subscribe(hub.EventType(), hub); err != nil {
		return err
	}

	// Приложение
	handler, err := infrastructure.NewCommandHandler(cfg)
	if err != nil {
		return err
	}
	service := application.NewSeatingService(store, publishers, handler,
		application.WithMaxConflictRetries(cfg.MaxConflictRetries),
		application.WithMetrics(m),
		application.WithLogger(logger),
	)

	validate := validator.New()
	commands := transport.NewInMemoryCommandBus().
		WithMiddleware(cqrs.RecoveryCommandMiddleware(logger)).
		WithMiddleware(cqrs.TracingCommandMiddleware()).
		WithMiddleware(cqrs.LoggingCommandMiddleware(logger)).
		WithMiddleware(cqrs.MetricsCommandMiddleware(m)).
		WithMiddleware(cqrs.TimeoutCommandMiddleware(commandTimeout)).
		WithMiddleware(cqrs.ValidationCommandMiddleware(validate))
	queries := transport.NewInMemoryQueryBus().
		WithMiddleware(cqrs.RecoveryQueryMiddleware(logger)).
		WithMiddleware(cqrs.TracingQueryMiddleware()).
		WithMiddleware(cqrs.LoggingQueryMiddleware(logger)).
		WithMiddleware(cqrs.MetricsQueryMiddleware(m)).
		WithMiddleware(cqrs.ValidationQueryMiddleware(validate))
	if err := application.Register(service, commands, queries); err != nil {
		return err
	}
	buses := &container.Hooks{
		OnStop: func(ctx context.Context) error {
			hub.Close()
			return errors.Join(commands.Shutdown(ctx), queries.Shutdown(ctx))
		},
	}
	if err := app.Register("buses", buses, "store", "publishers"); err != nil {
		return err
	}

	// HTTP
	health := observability.NewHealthRegistry(5 * time.Second)
	if hc, ok := store.(core.HealthCheckable); ok {
		health.Register(observability.NewFuncHealthCheck("store:"+cfg.Store, hc.HealthCheck))
	}
	for name, check := range publishers.HealthChecks() {
		health.Register(observability.NewFuncHealthCheck(name, check))
	}

	restConfig := resttransport.DefaultRESTConfig()
	restConfig.Addr = cfg.HTTPAddr
	restConfig.ServiceName = serviceName
	restConfig.ShutdownTimeout = cfg.HTTPShutdownTimeout
	restConfig.EnableMetrics = cfg.MetricsExporter == "prometheus"

	rest := resttransport.NewRESTAdapter(restConfig, health, logger)
	rest.Engine().GET("/ws", hub.Handler())
	api.NewHandlers(commands, queries).Register(rest.API())
	if err := app.Register("http", rest, "buses"); err != nil {
		return err
	}

	if err := app.Start(ctx); err != nil {
		return err
	}
	logger.Info("seating service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.String("store", cfg.Store),
		slog.Any("sinks", cfg.Sinks),
	)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err, ok := <-rest.Err():
		if ok {
			serveErr = fmt.Errorf("http server failed: %w", err)
		}
	}

	return errors.Join(serveErr, app.Shutdown(context.Background()))
}
