package domain

// Reservation принимает решение о резервировании на основе текущего состояния
// и публикует результат через Publisher.
type Reservation struct {
	state   SeatState
	publish Publisher
	policy  ReservationPolicy
}

// NewReservation создает решение поверх состояния state
func NewReservation(state SeatState, publish Publisher, policy ReservationPolicy) *Reservation {
	if publish == nil {
		publish = func(Event) {}
	}
	return &Reservation{
		state:   state,
		publish: publish,
		policy:  policy,
	}
}

// Reserve резервирует место id. При политике Unconditional всегда публикует
// ровно одно событие SeatReserved.
func (r *Reservation) Reserve(id SeatID) error {
	if r.policy == RejectDuplicates && r.state.IsReserved(id) {
		return &ValidationError{SeatID: id, Reason: ErrSeatAlreadyReserved}
	}
	r.emit(SeatReserved{SeatID: id})
	return nil
}

// State возвращает состояние с учетом уже опубликованных событий
func (r *Reservation) State() SeatState {
	return r.state
}

// emit публикует событие и применяет его к состоянию решения, чтобы
// последующие решения в рамках той же команды видели его.
func (r *Reservation) emit(event Event) {
	r.publish(event)
	r.state = Apply(r.state, event)
}
