// Package messagebus предоставляет адаптеры для различных message brokers.
package messagebus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/akriventsev/theater/framework/core"
	"github.com/akriventsev/theater/framework/metrics"
	"github.com/segmentio/kafka-go"
)

// KafkaConfig конфигурация для Kafka адаптера
type KafkaConfig struct {
	Brokers      []string
	Compression  string // none, gzip, snappy, lz4, zstd
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int // 0, 1, -1 (all)
}

// Validate проверяет корректность конфигурации
func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("brokers cannot be empty")
	}
	for i, broker := range c.Brokers {
		if !strings.Contains(broker, ":") {
			return fmt.Errorf("broker[%d] must be in format host:port", i)
		}
	}
	return nil
}

// DefaultKafkaConfig возвращает конфигурацию Kafka по умолчанию
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		Compression:  "snappy",
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1,
	}
}

// KafkaAdapter публикатор сообщений в Kafka. Subject используется как топик,
// ключ сообщения берется из заголовка aggregate_id для сохранения порядка
// событий одного агрегата внутри партиции.
type KafkaAdapter struct {
	config  KafkaConfig
	writer  *kafka.Writer
	mu      sync.RWMutex
	running bool
	metrics *metrics.Metrics
}

// NewKafkaAdapter создает новый Kafka адаптер
func NewKafkaAdapter(config KafkaConfig, m *metrics.Metrics) (*KafkaAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka config: %w", err)
	}

	return &KafkaAdapter{
		config:  config,
		metrics: m,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(config.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequiredAcks(config.RequiredAcks),
			BatchSize:              config.BatchSize,
			BatchTimeout:           config.BatchTimeout,
			Compression:            getCompression(config.Compression),
			AllowAutoTopicCreation: true,
		},
	}, nil
}

// getCompression преобразует строку в kafka.Compression
func getCompression(compression string) kafka.Compression {
	switch compression {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

// Start запускает адаптер (реализация core.Lifecycle)
func (k *KafkaAdapter) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.running = true
	return nil
}

// Stop закрывает writer (реализация core.Lifecycle)
func (k *KafkaAdapter) Stop(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.running {
		return nil
	}
	k.running = false
	return k.writer.Close()
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (k *KafkaAdapter) IsRunning() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.running
}

// Name возвращает имя компонента (реализация core.Component)
func (k *KafkaAdapter) Name() string {
	return "kafka-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (k *KafkaAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// Publish публикует сообщение в топик
func (k *KafkaAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	start := time.Now()

	msg := kafka.Message{
		Topic:   subject,
		Key:     []byte(headers[HeaderAggregateID]),
		Value:   data,
		Headers: make([]kafka.Header, 0, len(headers)),
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	err := k.writer.WriteMessages(ctx, msg)
	if k.metrics != nil {
		k.metrics.RecordTransport(ctx, "kafka", time.Since(start), err == nil)
	}
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}
