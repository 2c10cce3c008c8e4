// Package events предоставляет адаптеры для публикации доменных событий во внешние брокеры.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/akriventsev/theater/framework/adapters/messagebus"
	"github.com/akriventsev/theater/framework/core"
	"github.com/akriventsev/theater/framework/events"
	"github.com/akriventsev/theater/framework/metrics"
	"github.com/akriventsev/theater/framework/observability"
	"github.com/akriventsev/theater/framework/transport"
)

// MessageBusEventConfig конфигурация для MessageBus Event Publisher
type MessageBusEventConfig struct {
	// Name имя транспорта для логов и health check
	Name          string
	SubjectPrefix string
	RetryPolicy   events.RetryConfig
}

// DefaultMessageBusEventConfig возвращает конфигурацию MessageBus Event Publisher по умолчанию
func DefaultMessageBusEventConfig() MessageBusEventConfig {
	return MessageBusEventConfig{
		Name:          "messagebus",
		SubjectPrefix: "events",
		RetryPolicy:   events.DefaultRetryConfig(),
	}
}

// MessageBusEventAdapter публикует события через любой transport.Publisher
// (NATS, Kafka, Redis Streams, RabbitMQ или in-memory шину).
// Subject формируется как <prefix>.<aggregate_type>.<event_type>.
type MessageBusEventAdapter struct {
	config  MessageBusEventConfig
	bus     transport.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewMessageBusEventAdapter создает новый MessageBus Event Publisher
func NewMessageBusEventAdapter(bus transport.Publisher, config MessageBusEventConfig, m *metrics.Metrics, logger *slog.Logger) (*MessageBusEventAdapter, error) {
	if bus == nil {
		return nil, fmt.Errorf("message bus is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &MessageBusEventAdapter{
		config:  config,
		bus:     bus,
		metrics: m,
		logger:  logger.With(slog.String("transport", config.Name)),
	}, nil
}

// Start запускает брокер, если он управляет своим жизненным циклом
func (m *MessageBusEventAdapter) Start(ctx context.Context) error {
	if lc, ok := m.bus.(core.Lifecycle); ok {
		return lc.Start(ctx)
	}
	return nil
}

// Stop останавливает брокер, если он управляет своим жизненным циклом
func (m *MessageBusEventAdapter) Stop(ctx context.Context) error {
	if lc, ok := m.bus.(core.Lifecycle); ok {
		return lc.Stop(ctx)
	}
	return nil
}

// IsRunning проверяет, запущен ли брокер
func (m *MessageBusEventAdapter) IsRunning() bool {
	if lc, ok := m.bus.(core.Lifecycle); ok {
		return lc.IsRunning()
	}
	return true
}

// Name возвращает имя компонента (реализация core.Component)
func (m *MessageBusEventAdapter) Name() string {
	return m.config.Name + "-event-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (m *MessageBusEventAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// HealthCheck делегирует проверку брокеру
func (m *MessageBusEventAdapter) HealthCheck(ctx context.Context) error {
	if hc, ok := m.bus.(core.HealthCheckable); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// Publish публикует событие с повторами по RetryPolicy
func (m *MessageBusEventAdapter) Publish(ctx context.Context, event events.Event) error {
	return observability.TraceEvent(ctx, event.EventType(), func(ctx context.Context) error {
		env, err := NewEnvelope(event)
		if err != nil {
			return core.Wrap(err, core.ErrPublishFailed, "failed to serialize event")
		}
		data, err := json.Marshal(env)
		if err != nil {
			return core.Wrap(err, core.ErrPublishFailed, "failed to serialize envelope")
		}

		subject := m.Subject(event)
		headers := BuildHeaders(event)

		err = m.config.RetryPolicy.Do(ctx, func() error {
			return m.bus.Publish(ctx, subject, data, headers)
		})
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to publish event",
				slog.String("subject", subject),
				slog.String("event_id", event.EventID()),
				slog.Any("error", err),
			)
			return core.Wrap(err, core.ErrPublishFailed, fmt.Sprintf("failed to publish %s", event.EventType()))
		}

		if m.metrics != nil {
			m.metrics.RecordEvent(ctx, event.EventType())
		}
		m.logger.DebugContext(ctx, "event published",
			slog.String("subject", subject),
			slog.String("event_id", event.EventID()),
		)
		return nil
	})
}

// Subject формирует subject для события
func (m *MessageBusEventAdapter) Subject(event events.Event) string {
	return fmt.Sprintf("%s.%s.%s", m.config.SubjectPrefix, AggregateTypeOf(event), event.EventType())
}

// BuildHeaders формирует headers из метаданных события
func BuildHeaders(event events.Event) map[string]string {
	headers := map[string]string{
		messagebus.HeaderEventID:     event.EventID(),
		messagebus.HeaderEventType:   event.EventType(),
		messagebus.HeaderAggregateID: event.AggregateID(),
	}

	if metadata := event.Metadata(); metadata != nil {
		if correlationID := metadata.CorrelationID(); correlationID != "" {
			headers[messagebus.HeaderCorrelationID] = correlationID
		}
		if causationID := metadata.CausationID(); causationID != "" {
			headers[messagebus.HeaderCausationID] = causationID
		}
	}

	return headers
}
