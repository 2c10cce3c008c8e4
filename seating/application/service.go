// Package application реализует сценарии резервирования мест поверх хранилища событий:
// загрузка истории, решение доменного обработчика, запись с оптимистичной
// блокировкой и публикация новых событий.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/akriventsev/theater/framework/core"
	"github.com/akriventsev/theater/framework/events"
	"github.com/akriventsev/theater/framework/eventsourcing"
	"github.com/akriventsev/theater/framework/metrics"
	"github.com/akriventsev/theater/seating/domain"
	"github.com/akriventsev/theater/seating/infrastructure"
	"github.com/samber/lo"
)

// DefaultMaxConflictRetries количество повторов при конфликте версий
const DefaultMaxConflictRetries = 3

// Границы размера страницы глобального журнала
const (
	DefaultFeedLimit = 100
	MaxFeedLimit     = 1000
)

// ReservedEvent событие, записанное в результате команды
type ReservedEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	SeatID  uint32 `json:"seat_id"`
}

// ReserveResult результат команды резервирования
type ReserveResult struct {
	TheaterID string          `json:"theater_id"`
	Version   int64           `json:"version"`
	Events    []ReservedEvent `json:"events"`
}

// SeatMapView состояние зала на момент версии Version
type SeatMapView struct {
	TheaterID     string   `json:"theater_id"`
	Version       int64    `json:"version"`
	ReservedSeats []uint32 `json:"reserved_seats"`
}

// HistoryEntry запись журнала событий
type HistoryEntry struct {
	TheaterID     string    `json:"theater_id"`
	Version       int64     `json:"version"`
	Position      int64     `json:"position"`
	EventID       string    `json:"event_id"`
	Type          string    `json:"type"`
	SeatID        uint32    `json:"seat_id"`
	OccurredAt    time.Time `json:"occurred_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// SeatingService сервис резервирования мест
type SeatingService struct {
	store      eventsourcing.EventStore
	publisher  events.EventPublisher
	handler    *domain.CommandHandler
	metrics    *metrics.Metrics
	logger     *slog.Logger
	maxRetries int
}

// ServiceOption опция SeatingService
type ServiceOption func(*SeatingService)

// WithMaxConflictRetries задает количество повторов при конфликте версий
func WithMaxConflictRetries(n int) ServiceOption {
	return func(s *SeatingService) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithMetrics включает метрики конфликтов
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *SeatingService) {
		s.metrics = m
	}
}

// WithLogger задает логгер
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *SeatingService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSeatingService создает сервис. publisher может быть nil, тогда события только сохраняются.
func NewSeatingService(store eventsourcing.EventStore, publisher events.EventPublisher, handler *domain.CommandHandler, opts ...ServiceOption) *SeatingService {
	if handler == nil {
		handler = domain.NewCommandHandler()
	}
	s := &SeatingService{
		store:      store,
		publisher:  publisher,
		handler:    handler,
		logger:     slog.Default(),
		maxRetries: DefaultMaxConflictRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReserveSeat резервирует место в зале. При конфликте версий сценарий
// повторяется на свежей истории не более maxRetries раз.
// Ошибка публикации возвращается вместе с результатом: события уже записаны.
func (s *SeatingService) ReserveSeat(ctx context.Context, cmd ReserveSeatCommand) (ReserveResult, error) {
	ctx, correlationID := core.EnsureCorrelationID(ctx)
	logger := s.logger.With(
		slog.String("theater_id", cmd.TheaterID),
		slog.String("correlation_id", correlationID),
	)

	for attempt := 0; ; attempt++ {
		result, appended, err := s.reserveOnce(ctx, cmd)
		if err == nil {
			return result, s.publish(ctx, logger, appended)
		}
		if !errors.Is(err, eventsourcing.ErrConcurrencyConflict) {
			return ReserveResult{}, classify(err)
		}

		if s.metrics != nil {
			s.metrics.RecordConflict(ctx, infrastructure.AggregateType)
		}
		if attempt >= s.maxRetries {
			logger.WarnContext(ctx, "reservation conflict retries exhausted", slog.Int("attempts", attempt+1))
			return ReserveResult{}, core.Wrap(err, core.ErrConflict, "theater was modified concurrently")
		}
		logger.DebugContext(ctx, "retrying reservation after conflict", slog.Int("attempt", attempt+1))
	}
}

func (s *SeatingService) reserveOnce(ctx context.Context, cmd ReserveSeatCommand) (ReserveResult, []events.Event, error) {
	stored, err := s.store.GetEvents(ctx, cmd.TheaterID, 0)
	if err != nil {
		return ReserveResult{}, nil, fmt.Errorf("failed to load theater %s: %w", cmd.TheaterID, err)
	}
	history, err := infrastructure.History(stored)
	if err != nil {
		return ReserveResult{}, nil, err
	}
	version := eventsourcing.StreamVersion(stored)

	decided, err := s.handler.Decide(domain.Reserve{Number: cmd.Number, Row: cmd.Row}, history)
	if err != nil {
		return ReserveResult{}, nil, err
	}

	result := ReserveResult{TheaterID: cmd.TheaterID, Version: version, Events: []ReservedEvent{}}
	if len(decided) == 0 {
		return result, nil, nil
	}

	wrapped, err := infrastructure.WrapAll(ctx, cmd.TheaterID, decided)
	if err != nil {
		return ReserveResult{}, nil, err
	}
	if err := s.store.AppendEvents(ctx, cmd.TheaterID, version, wrapped); err != nil {
		return ReserveResult{}, nil, err
	}

	result.Version = version + int64(len(wrapped))
	result.Events = lo.Map(wrapped, func(event events.Event, i int) ReservedEvent {
		return ReservedEvent{
			EventID: event.EventID(),
			Type:    event.EventType(),
			SeatID:  seatIDOf(decided[i]),
		}
	})
	return result, wrapped, nil
}

// publish передает события публикатору по порядку
func (s *SeatingService) publish(ctx context.Context, logger *slog.Logger, appended []events.Event) error {
	if s.publisher == nil {
		return nil
	}

	var errs []error
	for _, event := range appended {
		if err := s.publisher.Publish(ctx, event); err != nil {
			logger.ErrorContext(ctx, "failed to publish event",
				slog.String("event_id", event.EventID()),
				slog.String("event_type", event.EventType()),
				slog.Any("error", err),
			)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return core.Wrap(err, core.ErrPublishFailed, "events stored but not published")
	}
	return nil
}

// SeatMap возвращает занятые места зала. Неизвестный зал пуст и имеет версию 0.
func (s *SeatingService) SeatMap(ctx context.Context, theaterID string) (SeatMapView, error) {
	stored, err := s.store.GetEvents(ctx, theaterID, 0)
	if err != nil {
		return SeatMapView{}, fmt.Errorf("failed to load theater %s: %w", theaterID, err)
	}
	history, err := infrastructure.History(stored)
	if err != nil {
		return SeatMapView{}, err
	}

	seats := domain.Load(history).ReservedSeats()
	return SeatMapView{
		TheaterID:     theaterID,
		Version:       eventsourcing.StreamVersion(stored),
		ReservedSeats: lo.Map(seats, func(id domain.SeatID, _ int) uint32 { return uint32(id) }),
	}, nil
}

// History возвращает журнал событий зала в порядке версий
func (s *SeatingService) History(ctx context.Context, theaterID string) ([]HistoryEntry, error) {
	stored, err := s.store.GetEvents(ctx, theaterID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load theater %s: %w", theaterID, err)
	}
	return toEntries(stored)
}

// Feed возвращает не более limit событий всех залов начиная с глобальной позиции from.
// Неположительный limit заменяется на DefaultFeedLimit, limit больше MaxFeedLimit урезается.
func (s *SeatingService) Feed(ctx context.Context, from int64, limit int) ([]HistoryEntry, error) {
	limit = feedLimit(limit)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := s.store.GetAllEvents(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to read event feed: %w", err)
	}

	stored := make([]eventsourcing.StoredEvent, 0, limit)
	for event := range ch {
		if event.Err != nil {
			return nil, event.Err
		}
		stored = append(stored, event)
		if len(stored) >= limit {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return toEntries(stored)
}

func feedLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultFeedLimit
	case limit > MaxFeedLimit:
		return MaxFeedLimit
	default:
		return limit
	}
}

func toEntries(stored []eventsourcing.StoredEvent) ([]HistoryEntry, error) {
	entries := make([]HistoryEntry, 0, len(stored))
	for _, st := range stored {
		if st.EventData == nil {
			return nil, fmt.Errorf("%w: %s", eventsourcing.ErrUnknownEventType, st.EventType)
		}
		event, err := infrastructure.Unwrap(st.EventData)
		if err != nil {
			return nil, err
		}
		entries = append(entries, HistoryEntry{
			TheaterID:     st.AggregateID,
			Version:       st.Version,
			Position:      st.Position,
			EventID:       st.ID,
			Type:          st.EventType,
			SeatID:        seatIDOf(event),
			OccurredAt:    st.OccurredAt,
			CorrelationID: st.EventData.Metadata().CorrelationID(),
		})
	}
	return entries, nil
}

func seatIDOf(event domain.Event) uint32 {
	switch e := event.(type) {
	case domain.SeatReserved:
		return uint32(e.SeatID)
	default:
		return 0
	}
}

// classify переводит доменные ошибки в коды фреймворка
func classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrSeatAlreadyReserved):
		return core.Wrap(err, core.ErrConflict, "seat already reserved")
	case domain.IsValidationError(err):
		return core.Wrap(err, core.ErrValidationFailed, "reservation rejected")
	default:
		return err
	}
}
