// Package transport предоставляет базовые реализации шин команд и запросов.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrHandlerNotFound обработчик для команды или запроса не зарегистрирован
	ErrHandlerNotFound = errors.New("handler not found")
	// ErrBusClosed шина остановлена
	ErrBusClosed = errors.New("bus is closed")
)

// InMemoryCommandBus реализация шины команд в памяти
type InMemoryCommandBus struct {
	mu         sync.RWMutex
	handlers   map[string]CommandHandler
	middleware []CommandInterceptor
	inflight   sync.WaitGroup
	closed     bool
}

// NewInMemoryCommandBus создает новую шину команд
func NewInMemoryCommandBus() *InMemoryCommandBus {
	return &InMemoryCommandBus{
		handlers:   make(map[string]CommandHandler),
		middleware: make([]CommandInterceptor, 0),
	}
}

// Send отправляет команду через шину
func (b *InMemoryCommandBus) Send(ctx context.Context, cmd Command) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	handler, exists := b.handlers[cmd.CommandName()]
	middleware := b.middleware
	b.inflight.Add(1)
	b.mu.RUnlock()
	defer b.inflight.Done()

	if !exists {
		return fmt.Errorf("%w: command %s", ErrHandlerNotFound, cmd.CommandName())
	}

	next := func(ctx context.Context, cmd Command) error {
		return handler.Handle(ctx, cmd)
	}

	// Первый зарегистрированный middleware оказывается внешним
	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		prevNext := next
		next = func(ctx context.Context, cmd Command) error {
			return mw.Intercept(ctx, cmd, prevNext)
		}
	}

	return next(ctx, cmd)
}

// Register регистрирует обработчик команды
func (b *InMemoryCommandBus) Register(handler CommandHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	commandName := handler.CommandName()
	if _, exists := b.handlers[commandName]; exists {
		return fmt.Errorf("handler already registered for command: %s", commandName)
	}

	b.handlers[commandName] = handler
	return nil
}

// WithMiddleware добавляет middleware к шине
func (b *InMemoryCommandBus) WithMiddleware(middleware CommandInterceptor) *InMemoryCommandBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware)
	return b
}

// Shutdown перестает принимать команды и ждет завершения выполняющихся
func (b *InMemoryCommandBus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	return waitGroup(ctx, &b.inflight)
}

// InMemoryQueryBus реализация шины запросов в памяти
type InMemoryQueryBus struct {
	mu         sync.RWMutex
	handlers   map[string]QueryHandler
	middleware []QueryInterceptor
	inflight   sync.WaitGroup
	closed     bool
}

// NewInMemoryQueryBus создает новую шину запросов
func NewInMemoryQueryBus() *InMemoryQueryBus {
	return &InMemoryQueryBus{
		handlers:   make(map[string]QueryHandler),
		middleware: make([]QueryInterceptor, 0),
	}
}

// Ask отправляет запрос через шину
func (b *InMemoryQueryBus) Ask(ctx context.Context, q Query) (interface{}, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, ErrBusClosed
	}
	handler, exists := b.handlers[q.QueryName()]
	middleware := b.middleware
	b.inflight.Add(1)
	b.mu.RUnlock()
	defer b.inflight.Done()

	if !exists {
		return nil, fmt.Errorf("%w: query %s", ErrHandlerNotFound, q.QueryName())
	}

	next := func(ctx context.Context, q Query) (interface{}, error) {
		return handler.Handle(ctx, q)
	}

	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		prevNext := next
		next = func(ctx context.Context, q Query) (interface{}, error) {
			return mw.Intercept(ctx, q, prevNext)
		}
	}

	return next(ctx, q)
}

// Register регистрирует обработчик запроса
func (b *InMemoryQueryBus) Register(handler QueryHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	queryName := handler.QueryName()
	if _, exists := b.handlers[queryName]; exists {
		return fmt.Errorf("handler already registered for query: %s", queryName)
	}

	b.handlers[queryName] = handler
	return nil
}

// WithMiddleware добавляет middleware к шине
func (b *InMemoryQueryBus) WithMiddleware(middleware QueryInterceptor) *InMemoryQueryBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware)
	return b
}

// Shutdown перестает принимать запросы и ждет завершения выполняющихся
func (b *InMemoryQueryBus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	return waitGroup(ctx, &b.inflight)
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
