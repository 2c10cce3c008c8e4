// Package domain содержит агрегат зрительного зала: события, команды,
// восстановление состояния из истории и логику резервирования мест.
//
// Пакет не выполняет ввода-вывода: обработка команды это синхронная
// функция от (истории, команды) к опубликованным событиям.
package domain

// SeatID идентификатор места, уникальный в пределах зала
type SeatID uint32

// EventTypeSeatReserved тип события резервирования места
const EventTypeSeatReserved = "seat.reserved"

// Event доменное событие агрегата. Набор событий закрыт: новые события
// добавляются только в этом пакете.
type Event interface {
	// EventType возвращает тип события
	EventType() string
	isEvent()
}

// SeatReserved место зарезервировано
type SeatReserved struct {
	SeatID SeatID `json:"seat_id"`
}

// EventType возвращает тип события
func (SeatReserved) EventType() string {
	return EventTypeSeatReserved
}

func (SeatReserved) isEvent() {}

// Publisher принимает события в порядке, в котором они были решены.
// Вызывается синхронно, ровно один раз на каждое событие.
type Publisher func(Event)

// Recorder накапливает опубликованные события
type Recorder struct {
	events []Event
}

// Publish добавляет событие в конец списка
func (r *Recorder) Publish(event Event) {
	r.events = append(r.events, event)
}

// Events возвращает копию накопленных событий
func (r *Recorder) Events() []Event {
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len возвращает количество накопленных событий
func (r *Recorder) Len() int {
	return len(r.events)
}
