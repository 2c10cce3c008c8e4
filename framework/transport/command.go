// Package transport предоставляет интерфейсы и реализации для работы с командами CQRS.
package transport

import "context"

// Command представляет команду CQRS
type Command interface {
	CommandName() string
}

// CommandHandler обработчик команд
type CommandHandler interface {
	Handle(ctx context.Context, cmd Command) error
	CommandName() string
}

// CommandHandlerFunc адаптер функции к CommandHandler
type CommandHandlerFunc struct {
	Name string
	Fn   func(ctx context.Context, cmd Command) error
}

// Handle вызывает функцию обработчика
func (h CommandHandlerFunc) Handle(ctx context.Context, cmd Command) error {
	return h.Fn(ctx, cmd)
}

// CommandName возвращает имя обрабатываемой команды
func (h CommandHandlerFunc) CommandName() string {
	return h.Name
}

// CommandInterceptor интерфейс для перехвата команд
type CommandInterceptor interface {
	// Intercept вызывается перед выполнением команды
	Intercept(ctx context.Context, cmd Command, next func(ctx context.Context, cmd Command) error) error
}

// CommandBus шина команд
type CommandBus interface {
	Send(ctx context.Context, cmd Command) error
	Register(handler CommandHandler) error
}
