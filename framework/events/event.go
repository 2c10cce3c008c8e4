// Package events предоставляет базовые интерфейсы для работы с доменными событиями.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event представляет доменное событие вместе с метаданными доставки
type Event interface {
	// EventID возвращает уникальный идентификатор события
	EventID() string
	// EventType возвращает тип события
	EventType() string
	// OccurredAt возвращает время возникновения события
	OccurredAt() time.Time
	// AggregateID возвращает идентификатор агрегата
	AggregateID() string
	// Metadata возвращает метаданные события
	Metadata() EventMetadata
}

// Ключи стандартных метаданных
const (
	MetadataCorrelationID = "correlation_id"
	MetadataCausationID   = "causation_id"
	MetadataAggregateType = "aggregate_type"
)

// EventMetadata метаданные события
type EventMetadata map[string]interface{}

// Get получает значение метаданных по ключу
func (m EventMetadata) Get(key string) (interface{}, bool) {
	val, ok := m[key]
	return val, ok
}

// String возвращает строковое значение по ключу или пустую строку
func (m EventMetadata) String(key string) string {
	val, ok := m.Get(key)
	if !ok {
		return ""
	}
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}

// CorrelationID возвращает correlation ID
func (m EventMetadata) CorrelationID() string {
	return m.String(MetadataCorrelationID)
}

// CausationID возвращает causation ID
func (m EventMetadata) CausationID() string {
	return m.String(MetadataCausationID)
}

// AggregateType возвращает тип агрегата
func (m EventMetadata) AggregateType() string {
	return m.String(MetadataAggregateType)
}

// BaseEvent базовая реализация события. Встраивается в конкретные события.
type BaseEvent struct {
	eventID     string
	eventType   string
	occurredAt  time.Time
	aggregateID string
	metadata    EventMetadata
}

// NewBaseEvent создает новое базовое событие
func NewBaseEvent(eventType, aggregateID string) *BaseEvent {
	return &BaseEvent{
		eventID:     uuid.NewString(),
		eventType:   eventType,
		occurredAt:  time.Now().UTC(),
		aggregateID: aggregateID,
		metadata:    make(EventMetadata),
	}
}

// RestoreBaseEvent восстанавливает базовое событие из хранилища
func RestoreBaseEvent(eventID, eventType, aggregateID string, occurredAt time.Time, metadata EventMetadata) *BaseEvent {
	if metadata == nil {
		metadata = make(EventMetadata)
	}
	return &BaseEvent{
		eventID:     eventID,
		eventType:   eventType,
		occurredAt:  occurredAt,
		aggregateID: aggregateID,
		metadata:    metadata,
	}
}

// WithMetadata добавляет метаданные к событию
func (e *BaseEvent) WithMetadata(key string, value interface{}) *BaseEvent {
	e.metadata[key] = value
	return e
}

// WithCorrelationID устанавливает correlation ID
func (e *BaseEvent) WithCorrelationID(id string) *BaseEvent {
	return e.WithMetadata(MetadataCorrelationID, id)
}

// WithCausationID устанавливает causation ID
func (e *BaseEvent) WithCausationID(id string) *BaseEvent {
	return e.WithMetadata(MetadataCausationID, id)
}

// WithAggregateType устанавливает тип агрегата
func (e *BaseEvent) WithAggregateType(aggregateType string) *BaseEvent {
	return e.WithMetadata(MetadataAggregateType, aggregateType)
}

func (e *BaseEvent) EventID() string {
	return e.eventID
}

func (e *BaseEvent) EventType() string {
	return e.eventType
}

func (e *BaseEvent) OccurredAt() time.Time {
	return e.occurredAt
}

func (e *BaseEvent) AggregateID() string {
	return e.aggregateID
}

func (e *BaseEvent) Metadata() EventMetadata {
	return e.metadata
}

// EventHandler обработчик доменных событий
type EventHandler interface {
	// Handle обрабатывает событие
	Handle(ctx context.Context, event Event) error
	// EventType возвращает тип события, который обрабатывает этот handler
	EventType() string
}

// EventPublisher публикатор событий
type EventPublisher interface {
	// Publish публикует событие
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc адаптер функции к EventPublisher
type PublisherFunc func(ctx context.Context, event Event) error

// Publish вызывает f
func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// EventSubscriber подписчик на события
type EventSubscriber interface {
	// Subscribe подписывается на тип события
	Subscribe(eventType string, handler EventHandler) error
}

// EventBus объединяет Publisher и Subscriber
type EventBus interface {
	EventPublisher
	EventSubscriber
}
