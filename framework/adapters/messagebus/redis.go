// Package messagebus предоставляет адаптеры для различных message brokers.
package messagebus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/akriventsev/theater/framework/core"
	"github.com/akriventsev/theater/framework/metrics"
	"github.com/redis/go-redis/v9"
)

// RedisConfig конфигурация для Redis адаптера
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MaxRetries   int
	StreamMaxLen int64 // Максимальная длина stream (0 = без ограничений)
	StreamPrefix string
}

// Validate проверяет корректность конфигурации
func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	return nil
}

// DefaultRedisConfig возвращает конфигурацию Redis по умолчанию
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MaxRetries:   3,
		StreamMaxLen: 10000,
		StreamPrefix: "stream:",
	}
}

// RedisAdapter публикатор сообщений в Redis Streams (XADD)
type RedisAdapter struct {
	config  RedisConfig
	client  redis.UniversalClient
	mu      sync.RWMutex
	running bool
	metrics *metrics.Metrics
}

// NewRedisAdapter создает новый Redis адаптер
func NewRedisAdapter(config RedisConfig, m *metrics.Metrics) (*RedisAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:       config.Addr,
		Password:   config.Password,
		DB:         config.DB,
		PoolSize:   config.PoolSize,
		MaxRetries: config.MaxRetries,
	})

	return NewRedisAdapterWithClient(client, config, m), nil
}

// NewRedisAdapterWithClient создает адаптер поверх существующего клиента
func NewRedisAdapterWithClient(client redis.UniversalClient, config RedisConfig, m *metrics.Metrics) *RedisAdapter {
	return &RedisAdapter{
		config:  config,
		client:  client,
		metrics: m,
	}
}

// Start проверяет подключение (реализация core.Lifecycle)
func (r *RedisAdapter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	r.running = true
	return nil
}

// Stop закрывает клиент (реализация core.Lifecycle)
func (r *RedisAdapter) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	r.running = false
	return r.client.Close()
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (r *RedisAdapter) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Name возвращает имя компонента (реализация core.Component)
func (r *RedisAdapter) Name() string {
	return "redis-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (r *RedisAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// HealthCheck выполняет PING
func (r *RedisAdapter) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Publish публикует сообщение в stream (XADD)
func (r *RedisAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	start := time.Now()

	values := map[string]interface{}{
		"data": string(data),
	}
	if len(headers) > 0 {
		headersJSON, err := json.Marshal(headers)
		if err != nil {
			return fmt.Errorf("failed to marshal headers: %w", err)
		}
		values["headers"] = string(headersJSON)
	}

	args := redis.XAddArgs{
		Stream: r.streamName(subject),
		Values: values,
	}
	if r.config.StreamMaxLen > 0 {
		args.MaxLen = r.config.StreamMaxLen
		args.Approx = true
	}

	err := r.client.XAdd(ctx, &args).Err()
	if r.metrics != nil {
		r.metrics.RecordTransport(ctx, "redis", time.Since(start), err == nil)
	}
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (r *RedisAdapter) streamName(subject string) string {
	if r.config.StreamPrefix == "" || strings.HasPrefix(subject, r.config.StreamPrefix) {
		return subject
	}
	return r.config.StreamPrefix + subject
}
