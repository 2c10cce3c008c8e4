// Package events предоставляет адаптеры для публикации доменных событий во внешние брокеры.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/akriventsev/theater/framework/events"
)

// Envelope JSON представление события для внешних потребителей
type Envelope struct {
	EventID       string                 `json:"event_id"`
	EventType     string                 `json:"event_type"`
	AggregateID   string                 `json:"aggregate_id"`
	AggregateType string                 `json:"aggregate_type"`
	OccurredAt    time.Time              `json:"occurred_at"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Data          json.RawMessage        `json:"data"`
}

// NewEnvelope сериализует полезную нагрузку события и заполняет конверт
func NewEnvelope(event events.Event) (Envelope, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal event %s: %w", event.EventType(), err)
	}

	env := Envelope{
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: AggregateTypeOf(event),
		OccurredAt:    event.OccurredAt().UTC(),
		Data:          data,
	}
	if metadata := event.Metadata(); len(metadata) > 0 {
		env.Metadata = make(map[string]interface{}, len(metadata))
		for k, v := range metadata {
			env.Metadata[k] = v
		}
	}
	return env, nil
}

// AggregateTypeOf возвращает тип агрегата из метаданных или префикс aggregate ID
func AggregateTypeOf(event events.Event) string {
	if metadata := event.Metadata(); metadata != nil {
		if aggType := metadata.AggregateType(); aggType != "" {
			return aggType
		}
	}

	id := event.AggregateID()
	if id == "" {
		return "unknown"
	}
	for _, sep := range []string{"-", "_"} {
		if parts := strings.SplitN(id, sep, 2); len(parts) > 1 {
			return parts[0]
		}
	}
	return id
}
