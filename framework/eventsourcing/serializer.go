package eventsourcing

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/akriventsev/theater/framework/events"
)

// EventFactory создает пустое конкретное событие (указатель) поверх базового
type EventFactory func(base *events.BaseEvent) events.Event

// EventDeserializer десериализует данные из хранилища в конкретный тип события
type EventDeserializer interface {
	DeserializeEvent(base *events.BaseEvent, data []byte) (events.Event, error)
}

// EventSerializer сериализует полезную нагрузку события
type EventSerializer interface {
	SerializeEvent(event events.Event) ([]byte, error)
}

// Registry реестр типов событий с JSON сериализацией
type Registry struct {
	mu        sync.RWMutex
	factories map[string]EventFactory
}

// NewRegistry создает пустой реестр
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]EventFactory)}
}

// Register регистрирует фабрику для типа события
func (r *Registry) Register(eventType string, factory EventFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[eventType] = factory
}

// SerializeEvent сериализует событие в JSON
func (r *Registry) SerializeEvent(event events.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", event.EventType(), err)
	}
	return data, nil
}

// DeserializeEvent создает событие зарегистрированного типа и заполняет его из JSON
func (r *Registry) DeserializeEvent(base *events.BaseEvent, data []byte) (events.Event, error) {
	r.mu.RLock()
	factory, ok := r.factories[base.EventType()]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, base.EventType())
	}

	event := factory(base)
	if len(data) > 0 {
		if err := json.Unmarshal(data, event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event %s: %w", base.EventType(), err)
		}
	}
	return event, nil
}

// record сериализуемое представление события для хранилищ без схемы
type record struct {
	ID            string                 `json:"id"`
	AggregateID   string                 `json:"aggregate_id"`
	AggregateType string                 `json:"aggregate_type"`
	EventType     string                 `json:"event_type"`
	Data          json.RawMessage        `json:"event_data"`
	Metadata      map[string]interface{} `json:"metadata"`
	Version       int64                  `json:"version"`
	Position      int64                  `json:"position"`
	OccurredAt    time.Time              `json:"occurred_at"`
	CreatedAt     time.Time              `json:"created_at"`
}

// decodeStored собирает StoredEvent и восстанавливает EventData
func decodeStored(deserializer EventDeserializer, rec record) (StoredEvent, error) {
	stored := StoredEvent{
		ID:            rec.ID,
		AggregateID:   rec.AggregateID,
		AggregateType: rec.AggregateType,
		EventType:     rec.EventType,
		Payload:       rec.Data,
		Metadata:      rec.Metadata,
		Version:       rec.Version,
		Position:      rec.Position,
		OccurredAt:    rec.OccurredAt,
		CreatedAt:     rec.CreatedAt,
	}
	if deserializer == nil {
		return stored, nil
	}

	base := events.RestoreBaseEvent(rec.ID, rec.EventType, rec.AggregateID, rec.OccurredAt, events.EventMetadata(copyMap(rec.Metadata)))
	event, err := deserializer.DeserializeEvent(base, rec.Data)
	if err != nil {
		return StoredEvent{}, err
	}
	stored.EventData = event
	return stored, nil
}

func encodeRecord(serializer EventSerializer, aggregateID string, event events.Event, version, position int64, now time.Time) (record, error) {
	data, err := serializer.SerializeEvent(event)
	if err != nil {
		return record{}, err
	}
	return record{
		ID:            event.EventID(),
		AggregateID:   aggregateID,
		AggregateType: aggregateTypeOf(event),
		EventType:     event.EventType(),
		Data:          data,
		Metadata:      copyMetadata(event.Metadata()),
		Version:       version,
		Position:      position,
		OccurredAt:    event.OccurredAt(),
		CreatedAt:     now,
	}, nil
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}
