package application

import (
	"context"
	"fmt"

	"github.com/akriventsev/theater/framework/transport"
)

// Имена команд и запросов на шинах
const (
	CommandReserveSeat = "seating.reserve"
	QuerySeatMap       = "seating.seat_map"
	QueryHistory       = "seating.history"
	QueryFeed          = "seating.feed"
)

// ReserveSeatCommand команда резервирования места Number в ряду Row.
// Отправляется по указателю: обработчик заполняет Result.
type ReserveSeatCommand struct {
	TheaterID string `json:"-" validate:"required,max=128,excludesall=/"`
	Number    uint32 `json:"number"`
	Row       uint32 `json:"row"`

	Result ReserveResult `json:"-" validate:"-"`
}

// CommandName реализует transport.Command
func (c *ReserveSeatCommand) CommandName() string {
	return CommandReserveSeat
}

// SeatMapQuery запрос карты занятых мест
type SeatMapQuery struct {
	TheaterID string `validate:"required,max=128,excludesall=/"`
}

// QueryName реализует transport.Query
func (SeatMapQuery) QueryName() string {
	return QuerySeatMap
}

// HistoryQuery запрос журнала событий зала
type HistoryQuery struct {
	TheaterID string `validate:"required,max=128,excludesall=/"`
}

// QueryName реализует transport.Query
func (HistoryQuery) QueryName() string {
	return QueryHistory
}

// FeedQuery запрос глобальной ленты событий
type FeedQuery struct {
	From  int64 `validate:"gte=0"`
	Limit int   `validate:"gte=1,lte=1000"`
}

// QueryName реализует transport.Query
func (FeedQuery) QueryName() string {
	return QueryFeed
}

// ReserveSeatHandler обработчик команды резервирования
type ReserveSeatHandler struct {
	service *SeatingService
}

// NewReserveSeatHandler создает обработчик
func NewReserveSeatHandler(service *SeatingService) *ReserveSeatHandler {
	return &ReserveSeatHandler{service: service}
}

// CommandName реализует transport.CommandHandler
func (h *ReserveSeatHandler) CommandName() string {
	return CommandReserveSeat
}

// Handle реализует transport.CommandHandler
func (h *ReserveSeatHandler) Handle(ctx context.Context, cmd transport.Command) error {
	reserve, ok := cmd.(*ReserveSeatCommand)
	if !ok {
		return fmt.Errorf("unexpected command type %T", cmd)
	}

	result, err := h.service.ReserveSeat(ctx, *reserve)
	reserve.Result = result
	return err
}

type queryHandler struct {
	name string
	fn   func(ctx context.Context, q transport.Query) (interface{}, error)
}

func (h queryHandler) QueryName() string {
	return h.name
}

func (h queryHandler) Handle(ctx context.Context, q transport.Query) (interface{}, error) {
	return h.fn(ctx, q)
}

// Register регистрирует обработчики сервиса на шинах команд и запросов
func Register(service *SeatingService, commands transport.CommandBus, queries transport.QueryBus) error {
	if err := commands.Register(NewReserveSeatHandler(service)); err != nil {
		return err
	}

	handlers := []queryHandler{
		{name: QuerySeatMap, fn: func(ctx context.Context, q transport.Query) (interface{}, error) {
			query, ok := q.(SeatMapQuery)
			if !ok {
				return nil, fmt.Errorf("unexpected query type %T", q)
			}
			return service.SeatMap(ctx, query.TheaterID)
		}},
		{name: QueryHistory, fn: func(ctx context.Context, q transport.Query) (interface{}, error) {
			query, ok := q.(HistoryQuery)
			if !ok {
				return nil, fmt.Errorf("unexpected query type %T", q)
			}
			return service.History(ctx, query.TheaterID)
		}},
		{name: QueryFeed, fn: func(ctx context.Context, q transport.Query) (interface{}, error) {
			query, ok := q.(FeedQuery)
			if !ok {
				return nil, fmt.Errorf("unexpected query type %T", q)
			}
			return service.Feed(ctx, query.From, query.Limit)
		}},
	}
	for _, h := range handlers {
		if err := queries.Register(h); err != nil {
			return err
		}
	}
	return nil
}
