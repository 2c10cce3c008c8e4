package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandHandler_ReserveOnEmptyHistory(t *testing.T) {
	h := NewCommandHandler()

	events, err := h.Decide(Reserve{Number: 0, Row: 0}, nil)

	require.NoError(t, err)
	assert.Equal(t, []Event{SeatReserved{SeatID: 0}}, events)
}

// Эталонная политика игнорирует номер и ряд команды и всегда резервирует место 0.
// Для маршрутизации номера и ряда используется RowMajorSeatID.
func TestCommandHandler_ReferencePolicyIgnoresCommandFields(t *testing.T) {
	h := NewCommandHandler()

	events, err := h.Decide(Reserve{Number: 7, Row: 2}, nil)

	require.NoError(t, err)
	assert.Equal(t, []Event{SeatReserved{SeatID: 0}}, events)
}

func TestCommandHandler_RowMajorPolicyRoutesCommandFields(t *testing.T) {
	h := NewCommandHandler(WithSeatIDPolicy(RowMajorSeatID{SeatsPerRow: 10}))

	events, err := h.Decide(Reserve{Number: 7, Row: 2}, nil)

	require.NoError(t, err)
	assert.Equal(t, []Event{SeatReserved{SeatID: 27}}, events)
}

func TestCommandHandler_UnconditionalEmitsForReservedSeat(t *testing.T) {
	h := NewCommandHandler()
	history := []Event{SeatReserved{SeatID: 0}, SeatReserved{SeatID: 0}}

	for i := 0; i < 3; i++ {
		var rec Recorder
		err := h.Handle(Reserve{}, history, rec.Publish)

		require.NoError(t, err)
		assert.Equal(t, []Event{SeatReserved{SeatID: 0}}, rec.Events())
	}
}

func TestCommandHandler_PublishesExactlyOnce(t *testing.T) {
	h := NewCommandHandler(WithSeatIDPolicy(RowMajorSeatID{SeatsPerRow: 20}))
	histories := [][]Event{
		nil,
		{SeatReserved{SeatID: 3}},
		{SeatReserved{SeatID: 3}, SeatReserved{SeatID: 3}},
	}

	for _, history := range histories {
		calls := 0
		err := h.Handle(Reserve{Number: 3}, history, func(Event) { calls++ })
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	}
}

func TestCommandHandler_DoesNotMutateHistory(t *testing.T) {
	h := NewCommandHandler(WithSeatIDPolicy(RowMajorSeatID{SeatsPerRow: 10}))
	history := make([]Event, 2, 8)
	history[0] = SeatReserved{SeatID: 1}
	history[1] = SeatReserved{SeatID: 2}
	snapshot := append([]Event(nil), history...)

	_, err := h.Decide(Reserve{Number: 5, Row: 1}, history)

	require.NoError(t, err)
	assert.Equal(t, snapshot, history)
	assert.Nil(t, history[:cap(history)][2])
}

func TestCommandHandler_RejectDuplicates(t *testing.T) {
	h := NewCommandHandler(
		WithSeatIDPolicy(RowMajorSeatID{SeatsPerRow: 10}),
		WithReservationPolicy(RejectDuplicates),
	)
	history := []Event{SeatReserved{SeatID: 12}}

	var rec Recorder
	err := h.Handle(Reserve{Number: 2, Row: 1}, history, rec.Publish)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSeatAlreadyReserved))
	assert.True(t, IsValidationError(err))
	assert.Equal(t, 0, rec.Len())

	events, err := h.Decide(Reserve{Number: 3, Row: 1}, history)
	require.NoError(t, err)
	assert.Equal(t, []Event{SeatReserved{SeatID: 13}}, events)
}

func TestCommandHandler_UnknownCommand(t *testing.T) {
	h := NewCommandHandler()

	err := h.Handle(nil, nil, nil)

	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestCommandHandler_NilPublisher(t *testing.T) {
	h := NewCommandHandler()

	assert.NoError(t, h.Handle(Reserve{}, nil, nil))
}
