package domain

import (
	"slices"

	"github.com/akriventsev/theater/framework/eventsourcing"
	"github.com/samber/lo"
)

// SeatState множество зарезервированных мест. Всегда равно свертке истории
// событий от пустого множества и никогда не сохраняется.
type SeatState struct {
	reserved map[SeatID]struct{}
}

// NewSeatState создает пустое состояние
func NewSeatState() SeatState {
	return SeatState{reserved: make(map[SeatID]struct{})}
}

// Load восстанавливает состояние из упорядоченной истории (старые события первыми).
// Replay не завершается ошибкой, дубликаты в истории допустимы.
func Load(history []Event) SeatState {
	return eventsourcing.Fold(NewSeatState(), history, applyInPlace)
}

// Apply возвращает новое состояние после применения события.
// Исходное состояние не изменяется.
func Apply(state SeatState, event Event) SeatState {
	return applyInPlace(state.clone(), event)
}

// applyInPlace изменяет множество state; вызывается только для состояния,
// которым владеет вызывающий код.
func applyInPlace(state SeatState, event Event) SeatState {
	if state.reserved == nil {
		state.reserved = make(map[SeatID]struct{})
	}
	switch e := event.(type) {
	case SeatReserved:
		state.reserved[e.SeatID] = struct{}{}
	}
	return state
}

// IsReserved проверяет, зарезервировано ли место
func (s SeatState) IsReserved(id SeatID) bool {
	_, ok := s.reserved[id]
	return ok
}

// Len возвращает количество зарезервированных мест
func (s SeatState) Len() int {
	return len(s.reserved)
}

// ReservedSeats возвращает зарезервированные места по возрастанию
func (s SeatState) ReservedSeats() []SeatID {
	seats := lo.Keys(s.reserved)
	slices.Sort(seats)
	return seats
}

// Equal сравнивает два состояния
func (s SeatState) Equal(other SeatState) bool {
	if len(s.reserved) != len(other.reserved) {
		return false
	}
	for id := range s.reserved {
		if !other.IsReserved(id) {
			return false
		}
	}
	return true
}

func (s SeatState) clone() SeatState {
	next := make(map[SeatID]struct{}, len(s.reserved)+1)
	for id := range s.reserved {
		next[id] = struct{}{}
	}
	return SeatState{reserved: next}
}
