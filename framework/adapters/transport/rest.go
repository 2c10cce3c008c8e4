// Package transport предоставляет HTTP и WebSocket транспорты поверх шин команд и запросов.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/akriventsev/theater/framework/core"
	"github.com/akriventsev/theater/framework/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RESTConfig конфигурация для REST адаптера
type RESTConfig struct {
	Addr            string
	BasePath        string
	ServiceName     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	EnableMetrics   bool
}

// DefaultRESTConfig возвращает конфигурацию REST по умолчанию
func DefaultRESTConfig() RESTConfig {
	return RESTConfig{
		Addr:            ":8080",
		BasePath:        "/api/v1",
		ServiceName:     "theater",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		EnableMetrics:   true,
	}
}

// ErrorBody тело ответа с ошибкой
type ErrorBody struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// RESTAdapter HTTP сервер на gin с общими middleware
type RESTAdapter struct {
	config RESTConfig
	engine *gin.Engine
	api    *gin.RouterGroup
	server *http.Server
	logger *slog.Logger
	errCh  chan error
}

// NewRESTAdapter создает REST адаптер с middleware восстановления, трассировки,
// correlation ID и логирования запросов
func NewRESTAdapter(config RESTConfig, health *observability.HealthRegistry, logger *slog.Logger) *RESTAdapter {
	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		observability.HTTPTracingMiddleware(config.ServiceName),
		observability.CorrelationIDMiddleware(),
		RequestLogger(logger),
	)

	if health != nil {
		engine.GET("/healthz", health.Handler())
	}
	if config.EnableMetrics {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	return &RESTAdapter{
		config: config,
		engine: engine,
		api:    engine.Group(config.BasePath),
		logger: logger,
		errCh:  make(chan error, 1),
	}
}

// Engine возвращает gin engine
func (r *RESTAdapter) Engine() *gin.Engine {
	return r.engine
}

// API возвращает группу маршрутов под BasePath
func (r *RESTAdapter) API() *gin.RouterGroup {
	return r.api
}

// Start запускает HTTP сервер в отдельной горутине (реализация core.Lifecycle)
func (r *RESTAdapter) Start(ctx context.Context) error {
	r.server = &http.Server{
		Addr:         r.config.Addr,
		Handler:      r.engine,
		ReadTimeout:  r.config.ReadTimeout,
		WriteTimeout: r.config.WriteTimeout,
	}

	go func() {
		r.logger.Info("http server listening", slog.String("addr", r.config.Addr))
		if err := r.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.errCh <- err
		}
		close(r.errCh)
	}()

	return nil
}

// Err возвращает канал с фатальной ошибкой сервера
func (r *RESTAdapter) Err() <-chan error {
	return r.errCh
}

// Stop останавливает HTTP сервер (реализация core.Lifecycle)
func (r *RESTAdapter) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, r.config.ShutdownTimeout)
	defer cancel()
	return r.server.Shutdown(shutdownCtx)
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (r *RESTAdapter) IsRunning() bool {
	return r.server != nil
}

// Name возвращает имя компонента (реализация core.Component)
func (r *RESTAdapter) Name() string {
	return "rest-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (r *RESTAdapter) Type() core.ComponentType {
	return core.ComponentTypeTransport
}

// StatusOf сопоставляет код ошибки фреймворка HTTP статусу
func StatusOf(err error) int {
	switch core.CodeOf(err) {
	case core.ErrValidationFailed:
		return http.StatusBadRequest
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrConflict:
		return http.StatusConflict
	case core.ErrPublishFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AbortWithError отвечает JSON ошибкой со статусом по коду ошибки
func AbortWithError(c *gin.Context, err error) {
	status := StatusOf(err)
	body := ErrorBody{
		Code:          core.CodeOf(err),
		Message:       err.Error(),
		CorrelationID: core.CorrelationID(c.Request.Context()),
	}
	if status == http.StatusInternalServerError {
		body.Message = http.StatusText(status)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

// RequestLogger логирует каждый запрос через slog
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("correlation_id", core.CorrelationID(c.Request.Context())),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("error", c.Errors.Last().Error()))
		}

		msg := fmt.Sprintf("%s %s", c.Request.Method, c.FullPath())
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.ErrorContext(c.Request.Context(), msg, attrs...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.WarnContext(c.Request.Context(), msg, attrs...)
		default:
			logger.InfoContext(c.Request.Context(), msg, attrs...)
		}
	}
}
