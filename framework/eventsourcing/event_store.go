// Package eventsourcing предоставляет поддержку Event Sourcing паттерна:
// свертку истории, контракт хранилища событий и его реализации.
package eventsourcing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akriventsev/theater/framework/events"
)

var (
	// ErrConcurrencyConflict возникает при конфликте версий при сохранении событий
	ErrConcurrencyConflict = errors.New("concurrency conflict: expected version does not match current version")
	// ErrInvalidVersion возникает при некорректной ожидаемой версии
	ErrInvalidVersion = errors.New("invalid event version")
	// ErrUnknownEventType возникает при десериализации незарегистрированного типа
	ErrUnknownEventType = errors.New("unknown event type")
)

// StoredEvent представляет сохраненное событие с метаданными
type StoredEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	EventData     events.Event
	Payload       []byte
	Metadata      map[string]interface{}
	Version       int64
	Position      int64
	OccurredAt    time.Time
	CreatedAt     time.Time

	// Err заполняется только в последнем элементе канала GetAllEvents,
	// если чтение прервалось ошибкой.
	Err error
}

// EventStore интерфейс для хранения событий.
// Версии потока начинаются с 1; пустой поток имеет версию 0.
// Позиции глобальны и монотонно возрастают.
type EventStore interface {
	// AppendEvents добавляет события в поток агрегата с проверкой версии для оптимистичной конкурентности
	AppendEvents(ctx context.Context, aggregateID string, expectedVersion int64, events []events.Event) error

	// GetEvents возвращает события агрегата с версией не меньше fromVersion.
	// Для несуществующего потока возвращается пустой срез.
	GetEvents(ctx context.Context, aggregateID string, fromVersion int64) ([]StoredEvent, error)

	// GetAllEvents возвращает все события начиная с указанной позиции для replay.
	// Ошибка чтения передается последним элементом канала в поле Err.
	GetAllEvents(ctx context.Context, fromPosition int64) (<-chan StoredEvent, error)
}

// StreamVersion возвращает версию потока по загруженным событиям
func StreamVersion(stored []StoredEvent) int64 {
	if len(stored) == 0 {
		return 0
	}
	return stored[len(stored)-1].Version
}

// EventsOf возвращает события из сохраненных записей в исходном порядке
func EventsOf(stored []StoredEvent) []events.Event {
	result := make([]events.Event, 0, len(stored))
	for _, s := range stored {
		if s.EventData != nil {
			result = append(result, s.EventData)
		}
	}
	return result
}

// sendReadError передает ошибку чтения потребителю канала GetAllEvents
func sendReadError(ctx context.Context, ch chan<- StoredEvent, err error) {
	select {
	case ch <- StoredEvent{Err: fmt.Errorf("failed to read event feed: %w", err)}:
	case <-ctx.Done():
	}
}

func checkExpectedVersion(expected, current int64) error {
	if expected < 0 {
		return ErrInvalidVersion
	}
	if expected != current {
		return &ConflictError{AggregateVersion: current, ExpectedVersion: expected}
	}
	return nil
}

// ConflictError подробности конфликта версий
type ConflictError struct {
	AggregateVersion int64
	ExpectedVersion  int64
}

// Error реализует интерфейс error
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: expected %d, got %d", ErrConcurrencyConflict, e.ExpectedVersion, e.AggregateVersion)
}

// Unwrap позволяет errors.Is(err, ErrConcurrencyConflict)
func (e *ConflictError) Unwrap() error {
	return ErrConcurrencyConflict
}

func aggregateTypeOf(event events.Event) string {
	if metadata := event.Metadata(); metadata != nil {
		if aggType := metadata.AggregateType(); aggType != "" {
			return aggType
		}
	}
	return "unknown"
}

func copyMetadata(metadata events.EventMetadata) map[string]interface{} {
	result := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}
	return result
}
