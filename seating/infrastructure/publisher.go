package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	adapterevents "github.com/akriventsev/theater/framework/adapters/events"
	"github.com/akriventsev/theater/framework/adapters/messagebus"
	"github.com/akriventsev/theater/framework/core"
	"github.com/akriventsev/theater/framework/events"
	"github.com/akriventsev/theater/framework/metrics"
	"github.com/akriventsev/theater/framework/transport"
	"github.com/akriventsev/theater/seating/config"
)

// brokerAdapter publisher сообщений с жизненным циклом
type brokerAdapter interface {
	transport.Publisher
	core.Component
	core.Lifecycle
}

// Publishers набор публикаторов событий: локальная шина и внешние брокеры.
// Публикация идет в порядке: локальная шина, затем брокеры в порядке конфигурации.
type Publishers struct {
	running  bool
	local    *events.InMemoryEventPublisher
	fanOut   *events.FanOutPublisher
	adapters []*adapterevents.MessageBusEventAdapter
	logger   *slog.Logger
}

// NewPublishers создает локальную шину и адаптеры для включенных брокеров
func NewPublishers(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Publishers, error) {
	if logger == nil {
		logger = slog.Default()
	}
	local := events.NewInMemoryEventPublisher().WithRetry(events.DefaultRetryConfig())

	p := &Publishers{local: local, logger: logger}
	publishers := []events.EventPublisher{local}

	for _, sink := range cfg.Sinks {
		bus, err := newBroker(sink, cfg, m, logger)
		if err != nil {
			return nil, err
		}

		eventConfig := adapterevents.DefaultMessageBusEventConfig()
		eventConfig.Name = sink
		eventConfig.SubjectPrefix = cfg.SubjectPrefix

		adapter, err := adapterevents.NewMessageBusEventAdapter(bus, eventConfig, m, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s event adapter: %w", sink, err)
		}
		p.adapters = append(p.adapters, adapter)
		publishers = append(publishers, adapter)
	}

	p.fanOut = events.NewFanOutPublisher(publishers...)
	return p, nil
}

func newBroker(sink string, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (brokerAdapter, error) {
	switch sink {
	case config.SinkNATS:
		natsConfig := messagebus.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		return messagebus.NewNATSAdapter(natsConfig, m, logger)
	case config.SinkKafka:
		kafkaConfig := messagebus.DefaultKafkaConfig()
		kafkaConfig.Brokers = cfg.KafkaBrokers
		return messagebus.NewKafkaAdapter(kafkaConfig, m)
	case config.SinkRedis:
		redisConfig := messagebus.DefaultRedisConfig()
		redisConfig.Addr = cfg.RedisAddr
		return messagebus.NewRedisAdapter(redisConfig, m)
	case config.SinkAMQP:
		amqpConfig := messagebus.DefaultAMQPConfig()
		amqpConfig.URL = cfg.AMQPURL
		return messagebus.NewAMQPAdapter(amqpConfig, m)
	case config.SinkMemory:
		return messagebus.NewInMemoryAdapter(), nil
	default:
		return nil, fmt.Errorf("unknown event sink: %s", sink)
	}
}

// Local возвращает локальную шину для подписки внутрипроцессных обработчиков
func (p *Publishers) Local() *events.InMemoryEventPublisher {
	return p.local
}

// Publish реализует events.EventPublisher
func (p *Publishers) Publish(ctx context.Context, event events.Event) error {
	return p.fanOut.Publish(ctx, event)
}

// Start подключает брокеры
func (p *Publishers) Start(ctx context.Context) error {
	for _, adapter := range p.adapters {
		if err := adapter.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s: %w", adapter.Name(), err)
		}
		p.logger.Info("event sink started", slog.String("sink", adapter.Name()))
	}
	p.running = true
	return nil
}

// IsRunning проверяет, запущены ли брокеры
func (p *Publishers) IsRunning() bool {
	return p.running
}

// Stop отключает брокеры в обратном порядке
func (p *Publishers) Stop(ctx context.Context) error {
	p.running = false
	var errs []error
	for i := len(p.adapters) - 1; i >= 0; i-- {
		if err := p.adapters[i].Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.adapters[i].Name(), err))
		}
	}
	return errors.Join(errs...)
}

// HealthChecks возвращает проверки здоровья брокеров
func (p *Publishers) HealthChecks() map[string]func(ctx context.Context) error {
	checks := make(map[string]func(ctx context.Context) error, len(p.adapters))
	for _, adapter := range p.adapters {
		checks["sink:"+adapter.Name()] = adapter.HealthCheck
	}
	return checks
}
