// Package cqrs предоставляет middleware для обработчиков команд и запросов.
package cqrs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/akriventsev/theater/framework/core"
	"github.com/akriventsev/theater/framework/metrics"
	"github.com/akriventsev/theater/framework/observability"
	"github.com/akriventsev/theater/framework/transport"
	"github.com/go-playground/validator/v10"
)

// CommandMiddleware middleware шины команд
type CommandMiddleware func(ctx context.Context, cmd transport.Command, next func(ctx context.Context, cmd transport.Command) error) error

// Intercept реализует transport.CommandInterceptor
func (m CommandMiddleware) Intercept(ctx context.Context, cmd transport.Command, next func(ctx context.Context, cmd transport.Command) error) error {
	return m(ctx, cmd, next)
}

// QueryMiddleware middleware шины запросов
type QueryMiddleware func(ctx context.Context, q transport.Query, next func(ctx context.Context, q transport.Query) (interface{}, error)) (interface{}, error)

// Intercept реализует transport.QueryInterceptor
func (m QueryMiddleware) Intercept(ctx context.Context, q transport.Query, next func(ctx context.Context, q transport.Query) (interface{}, error)) (interface{}, error) {
	return m(ctx, q, next)
}

// LoggingCommandMiddleware логирует выполнение команд
func LoggingCommandMiddleware(logger *slog.Logger) CommandMiddleware {
	return func(ctx context.Context, cmd transport.Command, next func(ctx context.Context, cmd transport.Command) error) error {
		start := time.Now()
		log := logger.With(
			slog.String("command", cmd.CommandName()),
			slog.String("correlation_id", core.CorrelationID(ctx)),
		)
		log.DebugContext(ctx, "executing command")

		err := next(ctx, cmd)

		duration := time.Since(start)
		if err != nil {
			log.WarnContext(ctx, "command failed",
				slog.Duration("duration", duration),
				slog.String("code", core.CodeOf(err)),
				slog.Any("error", err),
			)
		} else {
			log.InfoContext(ctx, "command completed", slog.Duration("duration", duration))
		}

		return err
	}
}

// LoggingQueryMiddleware логирует выполнение запросов
func LoggingQueryMiddleware(logger *slog.Logger) QueryMiddleware {
	return func(ctx context.Context, q transport.Query, next func(ctx context.Context, q transport.Query) (interface{}, error)) (interface{}, error) {
		start := time.Now()

		result, err := next(ctx, q)

		duration := time.Since(start)
		if err != nil {
			logger.WarnContext(ctx, "query failed",
				slog.String("query", q.QueryName()),
				slog.Duration("duration", duration),
				slog.Any("error", err),
			)
		} else {
			logger.DebugContext(ctx, "query completed",
				slog.String("query", q.QueryName()),
				slog.Duration("duration", duration),
			)
		}

		return result, err
	}
}

// ValidationCommandMiddleware валидирует команду по тегам `validate` перед выполнением.
// Команды, не являющиеся структурами, пропускаются без проверки.
func ValidationCommandMiddleware(validate *validator.Validate) CommandMiddleware {
	return func(ctx context.Context, cmd transport.Command, next func(ctx context.Context, cmd transport.Command) error) error {
		if err := validate.StructCtx(ctx, cmd); err != nil {
			var invalid *validator.InvalidValidationError
			if !errors.As(err, &invalid) {
				return core.Wrap(err, core.ErrValidationFailed, fmt.Sprintf("invalid command %s", cmd.CommandName()))
			}
		}
		return next(ctx, cmd)
	}
}

// ValidationQueryMiddleware валидирует запрос по тегам `validate` перед выполнением
func ValidationQueryMiddleware(validate *validator.Validate) QueryMiddleware {
	return func(ctx context.Context, q transport.Query, next func(ctx context.Context, q transport.Query) (interface{}, error)) (interface{}, error) {
		if err := validate.StructCtx(ctx, q); err != nil {
			var invalid *validator.InvalidValidationError
			if !errors.As(err, &invalid) {
				return nil, core.Wrap(err, core.ErrValidationFailed, fmt.Sprintf("invalid query %s", q.QueryName()))
			}
		}
		return next(ctx, q)
	}
}

// RecoveryCommandMiddleware восстанавливает панику в обработчиках команд
func RecoveryCommandMiddleware(logger *slog.Logger) CommandMiddleware {
	return func(ctx context.Context, cmd transport.Command, next func(ctx context.Context, cmd transport.Command) error) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorContext(ctx, "panic in command handler",
					slog.String("command", cmd.CommandName()),
					slog.Any("panic", r),
				)
				err = core.NewError(core.ErrInternal, fmt.Sprintf("panic recovered: %v", r))
			}
		}()
		return next(ctx, cmd)
	}
}

// RecoveryQueryMiddleware восстанавливает панику в обработчиках запросов
func RecoveryQueryMiddleware(logger *slog.Logger) QueryMiddleware {
	return func(ctx context.Context, q transport.Query, next func(ctx context.Context, q transport.Query) (interface{}, error)) (result interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorContext(ctx, "panic in query handler",
					slog.String("query", q.QueryName()),
					slog.Any("panic", r),
				)
				err = core.NewError(core.ErrInternal, fmt.Sprintf("panic recovered: %v", r))
			}
		}()
		return next(ctx, q)
	}
}

// TimeoutCommandMiddleware добавляет timeout к выполнению команды
func TimeoutCommandMiddleware(timeout time.Duration) CommandMiddleware {
	return func(ctx context.Context, cmd transport.Command, next func(ctx context.Context, cmd transport.Command) error) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return next(ctx, cmd)
	}
}

// MetricsCommandMiddleware записывает длительность и результат команд
func MetricsCommandMiddleware(m *metrics.Metrics) CommandMiddleware {
	return func(ctx context.Context, cmd transport.Command, next func(ctx context.Context, cmd transport.Command) error) error {
		start := time.Now()
		m.IncrementActiveCommands(ctx)
		defer m.DecrementActiveCommands(ctx)

		err := next(ctx, cmd)
		m.RecordCommand(ctx, cmd.CommandName(), time.Since(start), err == nil)
		return err
	}
}

// MetricsQueryMiddleware записывает длительность и результат запросов
func MetricsQueryMiddleware(m *metrics.Metrics) QueryMiddleware {
	return func(ctx context.Context, q transport.Query, next func(ctx context.Context, q transport.Query) (interface{}, error)) (interface{}, error) {
		start := time.Now()
		result, err := next(ctx, q)
		m.RecordQuery(ctx, q.QueryName(), time.Since(start), err == nil)
		return result, err
	}
}

// TracingCommandMiddleware добавляет distributed tracing
func TracingCommandMiddleware() CommandMiddleware {
	return func(ctx context.Context, cmd transport.Command, next func(ctx context.Context, cmd transport.Command) error) error {
		return observability.TraceCommand(ctx, cmd.CommandName(), func(ctx context.Context) error {
			return next(ctx, cmd)
		})
	}
}

// TracingQueryMiddleware добавляет distributed tracing
func TracingQueryMiddleware() QueryMiddleware {
	return func(ctx context.Context, q transport.Query, next func(ctx context.Context, q transport.Query) (interface{}, error)) (interface{}, error) {
		return observability.TraceQuery(ctx, q.QueryName(), func(ctx context.Context) (interface{}, error) {
			return next(ctx, q)
		})
	}
}
