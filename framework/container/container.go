// Package container управляет зависимостями и жизненным циклом компонентов сервиса.
package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/akriventsev/theater/framework/core"
)

// Config конфигурация контейнера
type Config struct {
	ShutdownTimeout time.Duration
}

type entry struct {
	name         string
	component    core.Lifecycle
	dependencies []string
}

// Container хранит именованные зависимости и компоненты с жизненным циклом.
// Компоненты запускаются после своих зависимостей и останавливаются в обратном порядке.
type Container struct {
	config *Config
	logger *slog.Logger

	mu           sync.RWMutex
	dependencies map[string]interface{}
	components   map[string]entry
	order        []string // порядок регистрации
	started      []string
}

// NewContainer создает новый контейнер
func NewContainer(config *Config, logger *slog.Logger) *Container {
	if config == nil {
		config = &Config{ShutdownTimeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Container{
		config:       config,
		logger:       logger,
		dependencies: make(map[string]interface{}),
		components:   make(map[string]entry),
	}
}

// Get получает зависимость по ключу
func Get[T any](c *Container, key string) (T, error) {
	var zero T
	c.mu.RLock()
	defer c.mu.RUnlock()

	dep, exists := c.dependencies[key]
	if !exists {
		return zero, fmt.Errorf("dependency %s not found", key)
	}

	typed, ok := dep.(T)
	if !ok {
		return zero, fmt.Errorf("dependency %s has wrong type", key)
	}

	return typed, nil
}

// Set сохраняет зависимость
func Set[T any](c *Container, key string, value T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.dependencies[key]; exists {
		return fmt.Errorf("dependency %s already registered", key)
	}
	c.dependencies[key] = value
	return nil
}

// Register регистрирует компонент и сохраняет его как зависимость под тем же именем
func (c *Container) Register(name string, component core.Lifecycle, dependsOn ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.components[name]; exists {
		return fmt.Errorf("component %s already registered", name)
	}
	c.components[name] = entry{name: name, component: component, dependencies: dependsOn}
	c.dependencies[name] = component
	c.order = append(c.order, name)
	return nil
}

// StartOrder возвращает порядок запуска компонентов.
// Ошибка при отсутствующей зависимости или цикле.
func (c *Container) StartOrder() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	order := make([]string, 0, len(c.components))

	var dfs func(node string) error
	dfs = func(node string) error {
		visited[node] = true
		recStack[node] = true

		for _, dep := range c.components[node].dependencies {
			if _, exists := c.components[dep]; !exists {
				return fmt.Errorf("component %s depends on unknown component %s", node, dep)
			}
			if !visited[dep] {
				if err := dfs(dep); err != nil {
					return err
				}
			} else if recStack[dep] {
				return fmt.Errorf("circular dependency detected: %s -> %s", node, dep)
			}
		}

		recStack[node] = false
		order = append(order, node)
		return nil
	}

	for _, node := range c.order {
		if !visited[node] {
			if err := dfs(node); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}

// Start запускает компоненты в порядке зависимостей.
// При ошибке уже запущенные компоненты останавливаются.
func (c *Container) Start(ctx context.Context) error {
	order, err := c.StartOrder()
	if err != nil {
		return err
	}

	for _, name := range order {
		c.mu.RLock()
		component := c.components[name].component
		c.mu.RUnlock()

		if err := component.Start(ctx); err != nil {
			startErr := fmt.Errorf("failed to start %s: %w", name, err)
			return errors.Join(startErr, c.Shutdown(ctx))
		}

		c.mu.Lock()
		c.started = append(c.started, name)
		c.mu.Unlock()
		c.logger.Debug("component started", slog.String("component", name))
	}
	return nil
}

// Shutdown останавливает запущенные компоненты в обратном порядке
func (c *Container) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ShutdownTimeout)
	defer cancel()

	c.mu.Lock()
	started := c.started
	c.started = nil
	c.mu.Unlock()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		name := started[i]
		c.mu.RLock()
		component := c.components[name].component
		c.mu.RUnlock()

		if err := component.Stop(ctx); err != nil {
			c.logger.Warn("component stop failed", slog.String("component", name), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		c.logger.Debug("component stopped", slog.String("component", name))
	}
	return errors.Join(errs...)
}

// Running возвращает имена запущенных компонентов в порядке запуска
func (c *Container) Running() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.started))
	copy(out, c.started)
	return out
}

// Hooks адаптер функций к core.Lifecycle
type Hooks struct {
	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context) error

	running bool
}

// Start вызывает OnStart
func (h *Hooks) Start(ctx context.Context) error {
	if h.OnStart != nil {
		if err := h.OnStart(ctx); err != nil {
			return err
		}
	}
	h.running = true
	return nil
}

// Stop вызывает OnStop
func (h *Hooks) Stop(ctx context.Context) error {
	h.running = false
	if h.OnStop != nil {
		return h.OnStop(ctx)
	}
	return nil
}

// IsRunning проверяет, был ли вызван Start
func (h *Hooks) IsRunning() bool {
	return h.running
}
