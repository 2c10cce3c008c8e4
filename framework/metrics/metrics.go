// Package metrics предоставляет систему метрик на основе OpenTelemetry.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName имя meter для всех инструментов сервиса
const MeterName = "theater"

// Metrics сборщик метрик приложения
type Metrics struct {
	meter             metric.Meter
	commandsTotal     metric.Int64Counter
	queriesTotal      metric.Int64Counter
	eventsTotal       metric.Int64Counter
	commandDuration   metric.Float64Histogram
	queryDuration     metric.Float64Histogram
	publishDuration   metric.Float64Histogram
	errorsTotal       metric.Int64Counter
	conflictsTotal    metric.Int64Counter
	activeCommands    metric.Int64UpDownCounter
	websocketSessions metric.Int64UpDownCounter
}

// NewMetrics создает сборщик метрик на глобальном MeterProvider
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(MeterName))
}

// NewMetricsWithMeter создает сборщик метрик на переданном meter
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	commandsTotal, err := meter.Int64Counter(
		"commands_total",
		metric.WithDescription("Total number of commands processed"),
	)
	if err != nil {
		return nil, err
	}

	queriesTotal, err := meter.Int64Counter(
		"queries_total",
		metric.WithDescription("Total number of queries processed"),
	)
	if err != nil {
		return nil, err
	}

	eventsTotal, err := meter.Int64Counter(
		"events_total",
		metric.WithDescription("Total number of events published"),
	)
	if err != nil {
		return nil, err
	}

	commandDuration, err := meter.Float64Histogram(
		"command_duration_seconds",
		metric.WithDescription("Command processing duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	queryDuration, err := meter.Float64Histogram(
		"query_duration_seconds",
		metric.WithDescription("Query processing duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	publishDuration, err := meter.Float64Histogram(
		"transport_publish_duration_seconds",
		metric.WithDescription("Broker publish duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errorsTotal, err := meter.Int64Counter(
		"errors_total",
		metric.WithDescription("Total number of errors"),
	)
	if err != nil {
		return nil, err
	}

	conflictsTotal, err := meter.Int64Counter(
		"conflicts_total",
		metric.WithDescription("Total number of optimistic concurrency conflicts"),
	)
	if err != nil {
		return nil, err
	}

	activeCommands, err := meter.Int64UpDownCounter(
		"active_commands",
		metric.WithDescription("Number of active commands being processed"),
	)
	if err != nil {
		return nil, err
	}

	websocketSessions, err := meter.Int64UpDownCounter(
		"websocket_sessions",
		metric.WithDescription("Number of connected websocket clients"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		meter:             meter,
		commandsTotal:     commandsTotal,
		queriesTotal:      queriesTotal,
		eventsTotal:       eventsTotal,
		commandDuration:   commandDuration,
		queryDuration:     queryDuration,
		publishDuration:   publishDuration,
		errorsTotal:       errorsTotal,
		conflictsTotal:    conflictsTotal,
		activeCommands:    activeCommands,
		websocketSessions: websocketSessions,
	}, nil
}

// RecordCommand записывает метрику команды
func (m *Metrics) RecordCommand(ctx context.Context, commandName string, duration time.Duration, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("command", commandName),
		attribute.Bool("success", success),
	}

	m.commandsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.commandDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if !success {
		m.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", "command"),
			attribute.String("command", commandName),
		))
	}
}

// RecordQuery записывает метрику запроса
func (m *Metrics) RecordQuery(ctx context.Context, queryName string, duration time.Duration, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("query", queryName),
		attribute.Bool("success", success),
	}

	m.queriesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.queryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if !success {
		m.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", "query"),
			attribute.String("query", queryName),
		))
	}
}

// RecordEvent записывает метрику события
func (m *Metrics) RecordEvent(ctx context.Context, eventType string) {
	m.eventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("event", eventType)))
}

// RecordConflict записывает конфликт версий при сохранении агрегата
func (m *Metrics) RecordConflict(ctx context.Context, aggregateType string) {
	m.conflictsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("aggregate", aggregateType)))
}

// IncrementActiveCommands увеличивает счетчик активных команд
func (m *Metrics) IncrementActiveCommands(ctx context.Context) {
	m.activeCommands.Add(ctx, 1)
}

// DecrementActiveCommands уменьшает счетчик активных команд
func (m *Metrics) DecrementActiveCommands(ctx context.Context) {
	m.activeCommands.Add(ctx, -1)
}

// SessionOpened учитывает подключение websocket клиента
func (m *Metrics) SessionOpened(ctx context.Context) {
	m.websocketSessions.Add(ctx, 1)
}

// SessionClosed учитывает отключение websocket клиента
func (m *Metrics) SessionClosed(ctx context.Context) {
	m.websocketSessions.Add(ctx, -1)
}

// RecordTransport записывает метрику публикации в брокер
func (m *Metrics) RecordTransport(ctx context.Context, transportName string, duration time.Duration, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("transport", transportName),
		attribute.Bool("success", success),
	}
	m.publishDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if !success {
		m.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", "transport"),
			attribute.String("transport", transportName),
		))
	}
}
