package domain

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyHistory(t *testing.T) {
	state := Load(nil)
	assert.Equal(t, 0, state.Len())
	assert.Empty(t, state.ReservedSeats())
}

func TestLoad_SingleEvent(t *testing.T) {
	state := Load([]Event{SeatReserved{SeatID: 5}})

	assert.Equal(t, []SeatID{5}, state.ReservedSeats())
	assert.True(t, state.IsReserved(5))
	assert.False(t, state.IsReserved(0))
}

func TestLoad_DuplicateEventsFoldOnce(t *testing.T) {
	state := Load([]Event{SeatReserved{SeatID: 1}, SeatReserved{SeatID: 1}})

	assert.Equal(t, 1, state.Len())
	assert.Equal(t, []SeatID{1}, state.ReservedSeats())
}

func TestLoad_ReservedSeatsSorted(t *testing.T) {
	state := Load([]Event{
		SeatReserved{SeatID: 9},
		SeatReserved{SeatID: 2},
		SeatReserved{SeatID: 7},
	})

	assert.Equal(t, []SeatID{2, 7, 9}, state.ReservedSeats())
}

func TestLoad_IdempotentReplay(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		history := make([]Event, rng.Intn(50))
		distinct := make(map[SeatID]struct{})
		for j := range history {
			id := SeatID(rng.Intn(10))
			history[j] = SeatReserved{SeatID: id}
			distinct[id] = struct{}{}
		}

		first := Load(history)
		second := Load(history)

		require.True(t, first.Equal(second), "replay %d diverged", i)
		assert.Equal(t, first.ReservedSeats(), second.ReservedSeats())
		assert.LessOrEqual(t, first.Len(), len(distinct))
	}
}

func TestLoad_DoesNotMutateHistory(t *testing.T) {
	history := []Event{SeatReserved{SeatID: 3}, SeatReserved{SeatID: 4}}
	snapshot := append([]Event(nil), history...)

	_ = Load(history)

	assert.Equal(t, snapshot, history)
}

func TestApply_IsPure(t *testing.T) {
	before := Load([]Event{SeatReserved{SeatID: 1}})

	after := Apply(before, SeatReserved{SeatID: 2})

	assert.Equal(t, []SeatID{1}, before.ReservedSeats())
	assert.Equal(t, []SeatID{1, 2}, after.ReservedSeats())
}

func TestApply_AlreadyPresentIsNoop(t *testing.T) {
	before := Load([]Event{SeatReserved{SeatID: 1}})

	after := Apply(before, SeatReserved{SeatID: 1})

	assert.True(t, before.Equal(after))
}

func TestApply_ZeroValueState(t *testing.T) {
	var state SeatState

	next := Apply(state, SeatReserved{SeatID: 8})

	assert.Equal(t, 0, state.Len())
	assert.True(t, next.IsReserved(8))
}
