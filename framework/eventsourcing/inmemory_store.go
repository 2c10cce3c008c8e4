package eventsourcing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/akriventsev/theater/framework/events"
)

// InMemoryEventStoreConfig конфигурация для InMemory Event Store
type InMemoryEventStoreConfig struct {
	MaxEventsPerStream int64
}

// DefaultInMemoryEventStoreConfig возвращает конфигурацию по умолчанию
func DefaultInMemoryEventStoreConfig() InMemoryEventStoreConfig {
	return InMemoryEventStoreConfig{
		MaxEventsPerStream: 10000,
	}
}

// InMemoryEventStore реализация EventStore в памяти для тестирования и разработки
type InMemoryEventStore struct {
	mu        sync.RWMutex
	streams   map[string][]StoredEvent
	allEvents []StoredEvent
	position  int64
	config    InMemoryEventStoreConfig
}

// NewInMemoryEventStore создает новый InMemory Event Store
func NewInMemoryEventStore(config InMemoryEventStoreConfig) *InMemoryEventStore {
	return &InMemoryEventStore{
		streams:   make(map[string][]StoredEvent),
		allEvents: make([]StoredEvent, 0),
		config:    config,
	}
}

// AppendEvents добавляет события в поток агрегата
func (s *InMemoryEventStore) AppendEvents(ctx context.Context, aggregateID string, expectedVersion int64, evts []events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[aggregateID]
	if err := checkExpectedVersion(expectedVersion, StreamVersion(stream)); err != nil {
		return err
	}

	if s.config.MaxEventsPerStream > 0 {
		newEventCount := int64(len(stream)) + int64(len(evts))
		if newEventCount > s.config.MaxEventsPerStream {
			return fmt.Errorf("max events per stream exceeded: %d (limit: %d)", newEventCount, s.config.MaxEventsPerStream)
		}
	}

	now := time.Now().UTC()
	for i, event := range evts {
		s.position++
		stored := StoredEvent{
			ID:            event.EventID(),
			AggregateID:   aggregateID,
			AggregateType: aggregateTypeOf(event),
			EventType:     event.EventType(),
			EventData:     event,
			Metadata:      copyMetadata(event.Metadata()),
			Version:       expectedVersion + int64(i) + 1,
			Position:      s.position,
			OccurredAt:    event.OccurredAt(),
			CreatedAt:     now,
		}
		stream = append(stream, stored)
		s.allEvents = append(s.allEvents, stored)
	}

	s.streams[aggregateID] = stream
	return nil
}

// GetEvents возвращает события агрегата начиная с указанной версии
func (s *InMemoryEventStore) GetEvents(ctx context.Context, aggregateID string, fromVersion int64) ([]StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[aggregateID]
	result := make([]StoredEvent, 0, len(stream))
	for _, event := range stream {
		if event.Version >= fromVersion {
			result = append(result, event)
		}
	}
	return result, nil
}

// GetAllEvents возвращает все события начиная с указанной позиции
func (s *InMemoryEventStore) GetAllEvents(ctx context.Context, fromPosition int64) (<-chan StoredEvent, error) {
	s.mu.RLock()
	snapshot := make([]StoredEvent, 0, len(s.allEvents))
	for _, event := range s.allEvents {
		if event.Position >= fromPosition {
			snapshot = append(snapshot, event)
		}
	}
	s.mu.RUnlock()

	ch := make(chan StoredEvent, 100)
	go func() {
		defer close(ch)
		for _, event := range snapshot {
			select {
			case ch <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// Clear очищает все события (для тестов)
func (s *InMemoryEventStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = make(map[string][]StoredEvent)
	s.allEvents = make([]StoredEvent, 0)
	s.position = 0
}
