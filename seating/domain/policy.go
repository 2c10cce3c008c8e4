package domain

import (
	"fmt"
	"math"
)

// SeatIDPolicy определяет, какое место резервирует команда Reserve
type SeatIDPolicy interface {
	SeatID(cmd Reserve) (SeatID, error)
}

// ReferenceSeatID всегда возвращает место 0 независимо от номера и ряда.
// Совпадает с поведением эталонного обработчика.
type ReferenceSeatID struct{}

// SeatID возвращает 0
func (ReferenceSeatID) SeatID(Reserve) (SeatID, error) {
	return 0, nil
}

// RowMajorSeatID нумерует места построчно: row*SeatsPerRow + number
type RowMajorSeatID struct {
	SeatsPerRow uint32
}

// SeatID вычисляет идентификатор места по ряду и номеру
func (p RowMajorSeatID) SeatID(cmd Reserve) (SeatID, error) {
	if p.SeatsPerRow == 0 {
		return 0, fmt.Errorf("row-major seat policy: seats per row must be positive")
	}
	if cmd.Number >= p.SeatsPerRow {
		return 0, &ValidationError{
			SeatID: SeatID(cmd.Number),
			Reason: fmt.Errorf("%w: number %d, row size %d", ErrSeatOutOfRange, cmd.Number, p.SeatsPerRow),
		}
	}
	id := uint64(cmd.Row)*uint64(p.SeatsPerRow) + uint64(cmd.Number)
	if id > math.MaxUint32 {
		return 0, &ValidationError{
			SeatID: SeatID(cmd.Number),
			Reason: fmt.Errorf("%w: row %d", ErrSeatOutOfRange, cmd.Row),
		}
	}
	return SeatID(id), nil
}

// ReservationPolicy бизнес-правило решения о резервировании
type ReservationPolicy int

const (
	// Unconditional публикует SeatReserved всегда, даже для занятого места
	Unconditional ReservationPolicy = iota
	// RejectDuplicates отклоняет резервирование занятого места
	RejectDuplicates
)

// String возвращает имя политики
func (p ReservationPolicy) String() string {
	switch p {
	case Unconditional:
		return "unconditional"
	case RejectDuplicates:
		return "reject-duplicates"
	default:
		return fmt.Sprintf("ReservationPolicy(%d)", int(p))
	}
}

// ParseReservationPolicy разбирает имя политики
func ParseReservationPolicy(name string) (ReservationPolicy, error) {
	switch name {
	case "", "unconditional":
		return Unconditional, nil
	case "reject-duplicates":
		return RejectDuplicates, nil
	default:
		return 0, fmt.Errorf("unknown reservation policy: %s", name)
	}
}
