package eventsourcing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/akriventsev/theater/framework/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEventType = "test.event"

type testEvent struct {
	*events.BaseEvent
	Value int `json:"value"`
}

func newTestEvent(aggregateID string, value int) *testEvent {
	return &testEvent{
		BaseEvent: events.NewBaseEvent(testEventType, aggregateID).WithAggregateType("test"),
		Value:     value,
	}
}

func testRegistry() *Registry {
	registry := NewRegistry()
	registry.Register(testEventType, func(base *events.BaseEvent) events.Event {
		return &testEvent{BaseEvent: base}
	})
	return registry
}

type storeFactory func(t *testing.T) EventStore

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"inmemory": func(t *testing.T) EventStore {
			return NewInMemoryEventStore(DefaultInMemoryEventStoreConfig())
		},
		"badger": func(t *testing.T) EventStore {
			store, err := NewBadgerEventStore(BadgerEventStoreConfig{}, testRegistry())
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Stop(context.Background()) })
			return store
		},
	}
}

func values(stored []StoredEvent) []int {
	result := make([]int, 0, len(stored))
	for _, s := range stored {
		result = append(result, s.EventData.(*testEvent).Value)
	}
	return result
}

func TestEventStore_Contract(t *testing.T) {
	for name, factory := range storeFactories() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			t.Run("append and read", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()

				err := store.AppendEvents(ctx, "agg-1", 0, []events.Event{
					newTestEvent("agg-1", 1),
					newTestEvent("agg-1", 2),
				})
				require.NoError(t, err)

				stored, err := store.GetEvents(ctx, "agg-1", 0)
				require.NoError(t, err)
				require.Len(t, stored, 2)
				assert.Equal(t, []int{1, 2}, values(stored))
				assert.Equal(t, int64(1), stored[0].Version)
				assert.Equal(t, int64(2), stored[1].Version)
				assert.Equal(t, "test", stored[0].AggregateType)
				assert.Equal(t, testEventType, stored[0].EventType)
				assert.Equal(t, int64(2), StreamVersion(stored))
			})

			t.Run("missing stream is empty", func(t *testing.T) {
				store := factory(t)

				stored, err := store.GetEvents(context.Background(), "missing", 0)
				require.NoError(t, err)
				assert.NotNil(t, stored)
				assert.Empty(t, stored)
			})

			t.Run("from version", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()

				require.NoError(t, store.AppendEvents(ctx, "agg-1", 0, []events.Event{
					newTestEvent("agg-1", 1),
					newTestEvent("agg-1", 2),
					newTestEvent("agg-1", 3),
				}))

				stored, err := store.GetEvents(ctx, "agg-1", 2)
				require.NoError(t, err)
				assert.Equal(t, []int{2, 3}, values(stored))
			})

			t.Run("version conflict", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()

				require.NoError(t, store.AppendEvents(ctx, "agg-1", 0, []events.Event{newTestEvent("agg-1", 1)}))

				err := store.AppendEvents(ctx, "agg-1", 0, []events.Event{newTestEvent("agg-1", 2)})
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrConcurrencyConflict))

				var conflict *ConflictError
				require.True(t, errors.As(err, &conflict))
				assert.Equal(t, int64(1), conflict.AggregateVersion)
				assert.Equal(t, int64(0), conflict.ExpectedVersion)

				stored, err := store.GetEvents(ctx, "agg-1", 0)
				require.NoError(t, err)
				assert.Equal(t, []int{1}, values(stored))
			})

			t.Run("negative version", func(t *testing.T) {
				store := factory(t)

				err := store.AppendEvents(context.Background(), "agg-1", -1, []events.Event{newTestEvent("agg-1", 1)})
				assert.ErrorIs(t, err, ErrInvalidVersion)
			})

			t.Run("streams are isolated", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()

				require.NoError(t, store.AppendEvents(ctx, "agg-1", 0, []events.Event{newTestEvent("agg-1", 1)}))
				require.NoError(t, store.AppendEvents(ctx, "agg-2", 0, []events.Event{newTestEvent("agg-2", 10)}))
				require.NoError(t, store.AppendEvents(ctx, "agg-1", 1, []events.Event{newTestEvent("agg-1", 2)}))

				stored, err := store.GetEvents(ctx, "agg-1", 0)
				require.NoError(t, err)
				assert.Equal(t, []int{1, 2}, values(stored))

				stored, err = store.GetEvents(ctx, "agg-2", 0)
				require.NoError(t, err)
				assert.Equal(t, []int{10}, values(stored))
			})

			t.Run("all events by position", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()

				require.NoError(t, store.AppendEvents(ctx, "agg-1", 0, []events.Event{newTestEvent("agg-1", 1)}))
				require.NoError(t, store.AppendEvents(ctx, "agg-2", 0, []events.Event{newTestEvent("agg-2", 2)}))
				require.NoError(t, store.AppendEvents(ctx, "agg-1", 1, []events.Event{newTestEvent("agg-1", 3)}))

				ch, err := store.GetAllEvents(ctx, 2)
				require.NoError(t, err)

				var got []StoredEvent
				for stored := range ch {
					got = append(got, stored)
				}
				require.Len(t, got, 2)
				assert.Equal(t, []int{2, 3}, values(got))
				assert.Equal(t, int64(2), got[0].Position)
				assert.Equal(t, int64(3), got[1].Position)
			})

			t.Run("concurrent append on same version", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()

				const writers = 10
				var (
					wg        sync.WaitGroup
					mu        sync.Mutex
					succeeded int
				)
				for i := 0; i < writers; i++ {
					wg.Add(1)
					go func(value int) {
						defer wg.Done()
						err := store.AppendEvents(ctx, "agg-1", 0, []events.Event{newTestEvent("agg-1", value)})
						if err == nil {
							mu.Lock()
							succeeded++
							mu.Unlock()
							return
						}
						assert.ErrorIs(t, err, ErrConcurrencyConflict)
					}(i)
				}
				wg.Wait()

				assert.Equal(t, 1, succeeded)
				stored, err := store.GetEvents(ctx, "agg-1", 0)
				require.NoError(t, err)
				assert.Len(t, stored, 1)
			})
		})
	}
}

func TestInMemoryEventStore_MaxEventsPerStream(t *testing.T) {
	store := NewInMemoryEventStore(InMemoryEventStoreConfig{MaxEventsPerStream: 1})
	ctx := context.Background()

	err := store.AppendEvents(ctx, "agg-1", 0, []events.Event{
		newTestEvent("agg-1", 1),
		newTestEvent("agg-1", 2),
	})
	require.Error(t, err)

	stored, err := store.GetEvents(ctx, "agg-1", 0)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestInMemoryEventStore_Clear(t *testing.T) {
	store := NewInMemoryEventStore(DefaultInMemoryEventStoreConfig())
	ctx := context.Background()

	require.NoError(t, store.AppendEvents(ctx, "agg-1", 0, []events.Event{newTestEvent("agg-1", 1)}))
	store.Clear()

	stored, err := store.GetEvents(ctx, "agg-1", 0)
	require.NoError(t, err)
	assert.Empty(t, stored)
	require.NoError(t, store.AppendEvents(ctx, "agg-1", 0, []events.Event{newTestEvent("agg-1", 1)}))
}

func TestBadgerEventStore_RestoresEnvelope(t *testing.T) {
	store, err := NewBadgerEventStore(BadgerEventStoreConfig{}, testRegistry())
	require.NoError(t, err)
	defer store.Stop(context.Background())

	ctx := context.Background()
	original := newTestEvent("agg-1", 7)
	original.WithCorrelationID("corr-1")
	require.NoError(t, store.AppendEvents(ctx, "agg-1", 0, []events.Event{original}))

	stored, err := store.GetEvents(ctx, "agg-1", 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	restored := stored[0].EventData.(*testEvent)
	assert.Equal(t, original.EventID(), restored.EventID())
	assert.Equal(t, "agg-1", restored.AggregateID())
	assert.Equal(t, 7, restored.Value)
	assert.Equal(t, "corr-1", restored.Metadata().CorrelationID())
	assert.WithinDuration(t, original.OccurredAt(), restored.OccurredAt(), time.Millisecond)
	assert.JSONEq(t, `{"value":7}`, string(stored[0].Payload))
}

func TestBadgerEventStore_GetAllEventsReportsDecodeError(t *testing.T) {
	store, err := NewBadgerEventStore(BadgerEventStoreConfig{}, testRegistry())
	require.NoError(t, err)
	defer store.Stop(context.Background())

	ctx := context.Background()
	require.NoError(t, store.AppendEvents(ctx, "agg-1", 0, []events.Event{newTestEvent("agg-1", 1)}))
	require.NoError(t, store.AppendEvents(ctx, "agg-2", 0, []events.Event{events.NewBaseEvent("legacy.type", "agg-2")}))
	require.NoError(t, store.AppendEvents(ctx, "agg-3", 0, []events.Event{newTestEvent("agg-3", 3)}))

	ch, err := store.GetAllEvents(ctx, 0)
	require.NoError(t, err)

	var received []StoredEvent
	for stored := range ch {
		received = append(received, stored)
	}
	require.Len(t, received, 2)
	assert.NoError(t, received[0].Err)
	assert.Equal(t, "agg-1", received[0].AggregateID)
	assert.ErrorIs(t, received[1].Err, ErrUnknownEventType)
}

func TestRegistry_UnknownEventType(t *testing.T) {
	registry := NewRegistry()
	base := events.RestoreBaseEvent("id-1", "missing.event", "agg-1", time.Now(), nil)

	_, err := registry.DeserializeEvent(base, []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestRegistry_Deserialize(t *testing.T) {
	registry := testRegistry()
	base := events.RestoreBaseEvent("id-1", testEventType, "agg-1", time.Now(), nil)

	event, err := registry.DeserializeEvent(base, []byte(`{"value":42}`))
	require.NoError(t, err)
	assert.Equal(t, 42, event.(*testEvent).Value)
	assert.Equal(t, "id-1", event.EventID())
}

func TestEventsOf(t *testing.T) {
	first := newTestEvent("agg-1", 1)
	second := newTestEvent("agg-1", 2)

	result := EventsOf([]StoredEvent{
		{EventData: first},
		{EventType: "undecoded"},
		{EventData: second},
	})
	assert.Equal(t, []events.Event{first, second}, result)
}

func TestFold(t *testing.T) {
	sum := Fold(0, []int{1, 2, 3}, func(state, event int) int {
		return state + event
	})
	assert.Equal(t, 6, sum)

	order := Fold("", []string{"a", "b", "c"}, func(state, event string) string {
		return state + event
	})
	assert.Equal(t, "abc", order)

	assert.Equal(t, 5, Fold(5, nil, func(state, event int) int { return state + event }))
}

func BenchmarkInMemoryEventStore_AppendEvents(b *testing.B) {
	store := NewInMemoryEventStore(InMemoryEventStoreConfig{})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.AppendEvents(ctx, "agg-1", int64(i), []events.Event{newTestEvent("agg-1", i)})
	}
}
