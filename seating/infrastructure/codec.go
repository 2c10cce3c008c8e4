// Package infrastructure связывает доменный агрегат зала с хранилищами событий и брокерами.
package infrastructure

import (
	"context"
	"fmt"

	"github.com/akriventsev/theater/framework/core"
	"github.com/akriventsev/theater/framework/events"
	"github.com/akriventsev/theater/framework/eventsourcing"
	"github.com/akriventsev/theater/seating/domain"
)

// AggregateType тип агрегата зрительного зала
const AggregateType = "theater"

// SeatReservedEvent конверт события SeatReserved для хранения и публикации
type SeatReservedEvent struct {
	*events.BaseEvent
	SeatID uint32 `json:"seat_id"`
}

// NewRegistry возвращает реестр с событиями агрегата зала
func NewRegistry() *eventsourcing.Registry {
	registry := eventsourcing.NewRegistry()
	registry.Register(domain.EventTypeSeatReserved, func(base *events.BaseEvent) events.Event {
		return &SeatReservedEvent{BaseEvent: base}
	})
	return registry
}

// Wrap оборачивает доменное событие в конверт с метаданными из контекста
func Wrap(ctx context.Context, theaterID string, event domain.Event) (events.Event, error) {
	switch e := event.(type) {
	case domain.SeatReserved:
		base := events.NewBaseEvent(e.EventType(), theaterID).WithAggregateType(AggregateType)
		if id := core.CorrelationID(ctx); id != "" {
			base.WithCorrelationID(id)
		}
		if id := core.CausationID(ctx); id != "" {
			base.WithCausationID(id)
		}
		return &SeatReservedEvent{BaseEvent: base, SeatID: uint32(e.SeatID)}, nil
	default:
		return nil, fmt.Errorf("%w: %T", eventsourcing.ErrUnknownEventType, event)
	}
}

// WrapAll оборачивает события, сохраняя порядок
func WrapAll(ctx context.Context, theaterID string, decided []domain.Event) ([]events.Event, error) {
	out := make([]events.Event, 0, len(decided))
	for _, event := range decided {
		wrapped, err := Wrap(ctx, theaterID, event)
		if err != nil {
			return nil, err
		}
		out = append(out, wrapped)
	}
	return out, nil
}

// Unwrap извлекает доменное событие из конверта
func Unwrap(event events.Event) (domain.Event, error) {
	switch e := event.(type) {
	case *SeatReservedEvent:
		return domain.SeatReserved{SeatID: domain.SeatID(e.SeatID)}, nil
	default:
		return nil, fmt.Errorf("%w: %s", eventsourcing.ErrUnknownEventType, event.EventType())
	}
}

// History восстанавливает доменную историю из сохраненных событий
func History(stored []eventsourcing.StoredEvent) ([]domain.Event, error) {
	history := make([]domain.Event, 0, len(stored))
	for _, s := range stored {
		if s.EventData == nil {
			return nil, fmt.Errorf("%w: %s at version %d", eventsourcing.ErrUnknownEventType, s.EventType, s.Version)
		}
		event, err := Unwrap(s.EventData)
		if err != nil {
			return nil, err
		}
		history = append(history, event)
	}
	return history, nil
}
