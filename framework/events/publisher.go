// Package events предоставляет реализации EventPublisher.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// AllEventTypes подписка на события любого типа
const AllEventTypes = "*"

// RetryConfig конфигурация retry для публикатора
type RetryConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig возвращает конфигурацию retry по умолчанию
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Do выполняет fn с повторами и экспоненциальной задержкой
func (c RetryConfig) Do(ctx context.Context, fn func() error) error {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	delay := c.InitialDelay
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.BackoffMultiplier)
			if c.MaxDelay > 0 && delay > c.MaxDelay {
				delay = c.MaxDelay
			}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// InMemoryEventPublisher синхронный публикатор событий в памяти.
// Обработчики вызываются последовательно в порядке подписки.
type InMemoryEventPublisher struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	retryConfig *RetryConfig
}

// NewInMemoryEventPublisher создает новый in-memory публикатор
func NewInMemoryEventPublisher() *InMemoryEventPublisher {
	return &InMemoryEventPublisher{
		subscribers: make(map[string][]EventHandler),
	}
}

// WithRetry настраивает retry логику
func (p *InMemoryEventPublisher) WithRetry(config RetryConfig) *InMemoryEventPublisher {
	p.retryConfig = &config
	return p
}

// Subscribe подписывает обработчик на тип события (AllEventTypes для всех)
func (p *InMemoryEventPublisher) Subscribe(eventType string, handler EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers[eventType] = append(p.subscribers[eventType], handler)
	return nil
}

// Publish публикует событие всем подписчикам его типа и AllEventTypes
func (p *InMemoryEventPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.RLock()
	handlers := make([]EventHandler, 0, len(p.subscribers[event.EventType()])+len(p.subscribers[AllEventTypes]))
	handlers = append(handlers, p.subscribers[event.EventType()]...)
	handlers = append(handlers, p.subscribers[AllEventTypes]...)
	p.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := p.deliver(ctx, event, handler); err != nil {
			errs = append(errs, fmt.Errorf("handler %s failed: %w", handler.EventType(), err))
		}
	}
	return errors.Join(errs...)
}

func (p *InMemoryEventPublisher) deliver(ctx context.Context, event Event, handler EventHandler) error {
	if p.retryConfig == nil {
		return handler.Handle(ctx, event)
	}
	return p.retryConfig.Do(ctx, func() error {
		return handler.Handle(ctx, event)
	})
}

// FanOutPublisher публикует каждое событие во все публикаторы по порядку
type FanOutPublisher struct {
	publishers []EventPublisher
}

// NewFanOutPublisher создает публикатор-разветвитель
func NewFanOutPublisher(publishers ...EventPublisher) *FanOutPublisher {
	return &FanOutPublisher{publishers: publishers}
}

// Add добавляет публикатор
func (f *FanOutPublisher) Add(publisher EventPublisher) {
	f.publishers = append(f.publishers, publisher)
}

// Len возвращает количество публикаторов
func (f *FanOutPublisher) Len() int {
	return len(f.publishers)
}

// Publish публикует событие во все публикаторы; ошибки объединяются
func (f *FanOutPublisher) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, publisher := range f.publishers {
		if err := publisher.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandlerFunc адаптер функции к EventHandler
type HandlerFunc struct {
	Type string
	Fn   func(ctx context.Context, event Event) error
}

// Handle вызывает Fn
func (h HandlerFunc) Handle(ctx context.Context, event Event) error {
	return h.Fn(ctx, event)
}

// EventType возвращает тип события
func (h HandlerFunc) EventType() string {
	return h.Type
}
