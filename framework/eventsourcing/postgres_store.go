package eventsourcing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/akriventsev/theater/framework/core"
	"github.com/akriventsev/theater/framework/events"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation код ошибки PostgreSQL для нарушения уникальности
const pgUniqueViolation = "23505"

// PostgresEventStoreConfig конфигурация для PostgreSQL Event Store
type PostgresEventStoreConfig struct {
	DSN             string
	SchemaName      string
	TableName       string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

// Validate проверяет корректность конфигурации
func (c PostgresEventStoreConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("DSN cannot be empty")
	}
	if c.SchemaName == "" || c.TableName == "" {
		return fmt.Errorf("schema and table names cannot be empty")
	}
	return nil
}

// DefaultPostgresEventStoreConfig возвращает конфигурацию по умолчанию
func DefaultPostgresEventStoreConfig() PostgresEventStoreConfig {
	return PostgresEventStoreConfig{
		SchemaName:      "public",
		TableName:       "event_store",
		MaxConns:        25,
		MinConns:        2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// PostgresEventStore реализация EventStore для PostgreSQL.
// Схема создается миграциями из framework/migrations.
type PostgresEventStore struct {
	config       PostgresEventStoreConfig
	pool         *pgxpool.Pool
	serializer   EventSerializer
	deserializer EventDeserializer
	table        string
}

// NewPostgresEventStore подключается к PostgreSQL и создает Event Store
func NewPostgresEventStore(ctx context.Context, config PostgresEventStoreConfig, registry *Registry) (*PostgresEventStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return NewPostgresEventStoreWithPool(pool, config, registry), nil
}

// NewPostgresEventStoreWithPool создает Event Store поверх существующего пула
func NewPostgresEventStoreWithPool(pool *pgxpool.Pool, config PostgresEventStoreConfig, registry *Registry) *PostgresEventStore {
	return &PostgresEventStore{
		config:       config,
		pool:         pool,
		serializer:   registry,
		deserializer: registry,
		table:        pgx.Identifier{config.SchemaName, config.TableName}.Sanitize(),
	}
}

// Start запускает адаптер
func (s *PostgresEventStore) Start(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Stop останавливает адаптер
func (s *PostgresEventStore) Stop(ctx context.Context) error {
	s.pool.Close()
	return nil
}

// IsRunning проверяет, запущен ли адаптер
func (s *PostgresEventStore) IsRunning() bool {
	return s.pool != nil
}

// HealthCheck проверяет соединение с базой
func (s *PostgresEventStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Name возвращает имя компонента
func (s *PostgresEventStore) Name() string {
	return "postgres-event-store"
}

// Type возвращает тип компонента
func (s *PostgresEventStore) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// AppendEvents добавляет события в поток агрегата.
// Уникальный индекс (aggregate_id, version) защищает от параллельных писателей.
//
// Позиция BIGSERIAL выдается при вставке, а не при фиксации. Чтобы читатель
// ленты с from=P не пропускал события, записи в таблицу сериализуются
// транзакционной advisory-блокировкой: позиции фиксируются в порядке выдачи.
// Откаченные транзакции оставляют пропуски в позициях, но не переупорядочивание.
func (s *PostgresEventStore) AppendEvents(ctx context.Context, aggregateID string, expectedVersion int64, evts []events.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.lockAppends(ctx, tx); err != nil {
		return err
	}

	var currentVersion int64
	checkQuery := fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s WHERE aggregate_id = $1", s.table)
	if err := tx.QueryRow(ctx, checkQuery, aggregateID).Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to check version: %w", err)
	}
	if err := checkExpectedVersion(expectedVersion, currentVersion); err != nil {
		return err
	}
	if len(evts) == 0 {
		return nil
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (id, aggregate_id, aggregate_type, event_type, event_data, metadata, version, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.table)

	batch := &pgx.Batch{}
	for i, event := range evts {
		eventData, err := s.serializer.SerializeEvent(event)
		if err != nil {
			return err
		}
		metadata, err := json.Marshal(copyMetadata(event.Metadata()))
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		batch.Queue(insertQuery,
			event.EventID(),
			aggregateID,
			aggregateTypeOf(event),
			event.EventType(),
			eventData,
			metadata,
			expectedVersion+int64(i)+1,
			event.OccurredAt(),
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %s", ErrConcurrencyConflict, pgErr.Detail)
		}
		return fmt.Errorf("failed to insert events: %w", err)
	}

	return tx.Commit(ctx)
}

// lockAppends берет блокировку записи в таблицу до конца транзакции
func (s *PostgresEventStore) lockAppends(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", s.table); err != nil {
		return fmt.Errorf("failed to lock event store: %w", err)
	}
	return nil
}

const selectColumns = "id, aggregate_id, aggregate_type, event_type, event_data, metadata, version, position, occurred_at, created_at"

// GetEvents возвращает события агрегата
func (s *PostgresEventStore) GetEvents(ctx context.Context, aggregateID string, fromVersion int64) ([]StoredEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE aggregate_id = $1 AND version >= $2
		ORDER BY version ASC
	`, selectColumns, s.table)

	rows, err := s.pool.Query(ctx, query, aggregateID, fromVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	result := make([]StoredEvent, 0)
	for rows.Next() {
		stored, err := s.scanStoredEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, stored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	return result, nil
}

// GetAllEvents возвращает все события начиная с указанной позиции.
// Зафиксированные позиции образуют возрастающую последовательность, см. AppendEvents.
func (s *PostgresEventStore) GetAllEvents(ctx context.Context, fromPosition int64) (<-chan StoredEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE position >= $1
		ORDER BY position ASC
	`, selectColumns, s.table)

	rows, err := s.pool.Query(ctx, query, fromPosition)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	ch := make(chan StoredEvent, 100)
	go func() {
		defer close(ch)
		defer rows.Close()

		for rows.Next() {
			stored, err := s.scanStoredEvent(rows)
			if err != nil {
				sendReadError(ctx, ch, err)
				return
			}
			select {
			case ch <- stored:
			case <-ctx.Done():
				return
			}
		}
		if err := rows.Err(); err != nil && ctx.Err() == nil {
			sendReadError(ctx, ch, err)
		}
	}()

	return ch, nil
}

func (s *PostgresEventStore) scanStoredEvent(rows pgx.Rows) (StoredEvent, error) {
	var rec record
	var eventData, metadata []byte

	if err := rows.Scan(
		&rec.ID,
		&rec.AggregateID,
		&rec.AggregateType,
		&rec.EventType,
		&eventData,
		&metadata,
		&rec.Version,
		&rec.Position,
		&rec.OccurredAt,
		&rec.CreatedAt,
	); err != nil {
		return StoredEvent{}, fmt.Errorf("failed to scan event: %w", err)
	}

	rec.Data = eventData
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return StoredEvent{}, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return decodeStored(s.deserializer, rec)
}
