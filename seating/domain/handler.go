package domain

import "fmt"

// CommandHandler обрабатывает одну команду: восстанавливает состояние из
// истории, передает его логике решения и публикует результат.
type CommandHandler struct {
	seats  SeatIDPolicy
	policy ReservationPolicy
}

// HandlerOption опция CommandHandler
type HandlerOption func(*CommandHandler)

// WithSeatIDPolicy задает способ вычисления места из команды
func WithSeatIDPolicy(policy SeatIDPolicy) HandlerOption {
	return func(h *CommandHandler) {
		if policy != nil {
			h.seats = policy
		}
	}
}

// WithReservationPolicy задает бизнес-правило резервирования
func WithReservationPolicy(policy ReservationPolicy) HandlerOption {
	return func(h *CommandHandler) {
		h.policy = policy
	}
}

// NewCommandHandler создает обработчик. По умолчанию ReferenceSeatID и Unconditional.
func NewCommandHandler(opts ...HandlerOption) *CommandHandler {
	h := &CommandHandler{
		seats:  ReferenceSeatID{},
		policy: Unconditional,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle обрабатывает команду cmd над историей history.
// История не изменяется; состояние строится заново при каждом вызове.
func (h *CommandHandler) Handle(cmd Command, history []Event, publish Publisher) error {
	switch c := cmd.(type) {
	case Reserve:
		id, err := h.seats.SeatID(c)
		if err != nil {
			return err
		}
		return NewReservation(Load(history), publish, h.policy).Reserve(id)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
}

// Decide обрабатывает команду и возвращает опубликованные события по порядку
func (h *CommandHandler) Decide(cmd Command, history []Event) ([]Event, error) {
	var rec Recorder
	if err := h.Handle(cmd, history, rec.Publish); err != nil {
		return nil, err
	}
	return rec.Events(), nil
}
