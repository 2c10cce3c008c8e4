package eventsourcing

// ApplyFunc применяет одно событие к состоянию и возвращает новое состояние.
// Функция должна быть тотальной: replay не может завершиться ошибкой.
type ApplyFunc[S, E any] func(state S, event E) S

// Fold восстанавливает состояние левой сверткой событий начиная с initial.
// Срез events не изменяется.
func Fold[S, E any](initial S, events []E, apply ApplyFunc[S, E]) S {
	state := initial
	for _, event := range events {
		state = apply(state, event)
	}
	return state
}
