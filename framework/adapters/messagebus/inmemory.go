// Package messagebus предоставляет адаптеры для различных message brokers.
package messagebus

import (
	"context"
	"strings"
	"sync"

	"github.com/akriventsev/theater/framework/core"
	"github.com/akriventsev/theater/framework/transport"
)

// InMemoryAdapter реализация MessageBus в памяти.
// Доставка синхронная, в порядке подписки; поддерживаются NATS-style wildcards.
type InMemoryAdapter struct {
	subscribers map[string][]transport.MessageHandler
	mu          sync.RWMutex
	running     bool
}

// NewInMemoryAdapter создает новый InMemory адаптер
func NewInMemoryAdapter() *InMemoryAdapter {
	return &InMemoryAdapter{
		subscribers: make(map[string][]transport.MessageHandler),
	}
}

// Start запускает адаптер (реализация core.Lifecycle)
func (i *InMemoryAdapter) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.running = true
	return nil
}

// Stop останавливает адаптер (реализация core.Lifecycle)
func (i *InMemoryAdapter) Stop(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.subscribers = make(map[string][]transport.MessageHandler)
	i.running = false
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (i *InMemoryAdapter) IsRunning() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.running
}

// Name возвращает имя компонента (реализация core.Component)
func (i *InMemoryAdapter) Name() string {
	return "inmemory-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (i *InMemoryAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// Publish публикует сообщение в subject
func (i *InMemoryAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	i.mu.RLock()
	var handlers []transport.MessageHandler
	for pattern, h := range i.subscribers {
		if matchSubject(subject, pattern) {
			handlers = append(handlers, h...)
		}
	}
	i.mu.RUnlock()

	msg := &transport.Message{
		Subject: subject,
		Data:    data,
		Headers: headers,
	}

	for _, handler := range handlers {
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe подписывается на subject
func (i *InMemoryAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.subscribers[subject] = append(i.subscribers[subject], handler)
	return nil
}

// Unsubscribe отписывается от subject
func (i *InMemoryAdapter) Unsubscribe(subject string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.subscribers, subject)
	return nil
}

// matchSubject проверяет соответствие subject с wildcard паттерном.
// Поддерживает NATS-style wildcards: * (один токен) и > (все оставшиеся токены)
func matchSubject(subject, pattern string) bool {
	subjectParts := strings.Split(subject, ".")
	patternParts := strings.Split(pattern, ".")

	for i, part := range patternParts {
		if part == ">" {
			return i < len(subjectParts)
		}
		if i >= len(subjectParts) {
			return false
		}
		if part != "*" && part != subjectParts[i] {
			return false
		}
	}

	return len(patternParts) == len(subjectParts)
}
