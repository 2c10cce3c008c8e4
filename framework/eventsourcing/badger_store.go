package eventsourcing

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/akriventsev/theater/framework/core"
	"github.com/akriventsev/theater/framework/events"
	badger "github.com/dgraph-io/badger/v4"
)

// BadgerEventStoreConfig конфигурация для встроенного Badger Event Store
type BadgerEventStoreConfig struct {
	// Dir каталог базы; пустая строка означает хранение в памяти
	Dir string
	// SyncWrites fsync после каждой записи
	SyncWrites bool
}

// BadgerEventStore реализация EventStore поверх встроенной базы Badger.
//
// Раскладка ключей:
//
//	stream/<aggregate>/<version>  запись события
//	version/<aggregate>           текущая версия потока
//	all/<position>                ссылка на ключ потока
//	meta/position                 последняя выданная позиция
//
// Числа кодируются big-endian, поэтому лексикографический порядок ключей
// совпадает с числовым.
type BadgerEventStore struct {
	db           *badger.DB
	serializer   EventSerializer
	deserializer EventDeserializer
}

var positionKey = []byte("meta/position")

// NewBadgerEventStore открывает базу Badger
func NewBadgerEventStore(config BadgerEventStoreConfig, registry *Registry) (*BadgerEventStore, error) {
	opts := badger.DefaultOptions(config.Dir).WithLogger(nil).WithSyncWrites(config.SyncWrites)
	if config.Dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &BadgerEventStore{
		db:           db,
		serializer:   registry,
		deserializer: registry,
	}, nil
}

// Start запускает адаптер
func (s *BadgerEventStore) Start(ctx context.Context) error {
	return nil
}

// Stop закрывает базу
func (s *BadgerEventStore) Stop(ctx context.Context) error {
	return s.db.Close()
}

// IsRunning проверяет, открыта ли база
func (s *BadgerEventStore) IsRunning() bool {
	return !s.db.IsClosed()
}

// HealthCheck проверяет, что база не закрыта
func (s *BadgerEventStore) HealthCheck(ctx context.Context) error {
	if s.db.IsClosed() {
		return fmt.Errorf("badger event store is closed")
	}
	return nil
}

// Name возвращает имя компонента
func (s *BadgerEventStore) Name() string {
	return "badger-event-store"
}

// Type возвращает тип компонента
func (s *BadgerEventStore) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// AppendEvents добавляет события в поток агрегата в одной транзакции.
// Параллельная запись в тот же поток завершается badger.ErrConflict,
// который отдается как ErrConcurrencyConflict.
func (s *BadgerEventStore) AppendEvents(ctx context.Context, aggregateID string, expectedVersion int64, evts []events.Event) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		currentVersion, err := readCounter(txn, versionKey(aggregateID))
		if err != nil {
			return err
		}
		if err := checkExpectedVersion(expectedVersion, currentVersion); err != nil {
			return err
		}
		if len(evts) == 0 {
			return nil
		}

		position, err := readCounter(txn, positionKey)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		version := expectedVersion
		for _, event := range evts {
			version++
			position++

			rec, err := encodeRecord(s.serializer, aggregateID, event, version, position, now)
			if err != nil {
				return err
			}
			value, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to marshal record: %w", err)
			}

			key := streamKey(aggregateID, version)
			if err := txn.Set(key, value); err != nil {
				return err
			}
			if err := txn.Set(allKey(position), key); err != nil {
				return err
			}
		}

		if err := txn.Set(versionKey(aggregateID), encodeCounter(version)); err != nil {
			return err
		}
		return txn.Set(positionKey, encodeCounter(position))
	})

	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
	}
	return err
}

// GetEvents возвращает события агрегата начиная с указанной версии
func (s *BadgerEventStore) GetEvents(ctx context.Context, aggregateID string, fromVersion int64) ([]StoredEvent, error) {
	if fromVersion < 1 {
		fromVersion = 1
	}

	result := make([]StoredEvent, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := streamPrefix(aggregateID)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()

		for it.Seek(streamKey(aggregateID, fromVersion)); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var stored StoredEvent
			err := it.Item().Value(func(val []byte) error {
				var err error
				stored, err = s.decode(val)
				return err
			})
			if err != nil {
				return err
			}
			result = append(result, stored)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetAllEvents возвращает все события начиная с указанной позиции.
// Чтение идет из одного снимка базы.
func (s *BadgerEventStore) GetAllEvents(ctx context.Context, fromPosition int64) (<-chan StoredEvent, error) {
	if fromPosition < 1 {
		fromPosition = 1
	}

	txn := s.db.NewTransaction(false)
	ch := make(chan StoredEvent, 100)

	go func() {
		defer close(ch)
		defer txn.Discard()

		prefix := []byte("all/")
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()

		for it.Seek(allKey(fromPosition)); it.ValidForPrefix(prefix); it.Next() {
			ref, err := it.Item().ValueCopy(nil)
			if err != nil {
				sendReadError(ctx, ch, err)
				return
			}
			item, err := txn.Get(ref)
			if err != nil {
				sendReadError(ctx, ch, err)
				return
			}
			var stored StoredEvent
			err = item.Value(func(val []byte) error {
				var err error
				stored, err = s.decode(val)
				return err
			})
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
	}()

	return ch, nil
}

func (s *BadgerEventStore) decode(val []byte) (StoredEvent, error) {
	var rec record
	if err := json.Unmarshal(val, &rec); err != nil {
		return StoredEvent{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return decodeStored(s.deserializer, rec)
}

func readCounter(txn *badger.Txn, key []byte) (int64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var value int64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupted counter %q", key)
		}
		value = int64(binary.BigEndian.Uint64(val))
		return nil
	})
	return value, err
}

func encodeCounter(value int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(value))
	return buf
}

func streamPrefix(aggregateID string) []byte {
	return []byte("stream/" + aggregateID + "/")
}

func streamKey(aggregateID string, version int64) []byte {
	return append(streamPrefix(aggregateID), encodeCounter(version)...)
}

func versionKey(aggregateID string) []byte {
	return []byte("version/" + aggregateID)
}

func allKey(position int64) []byte {
	return append([]byte("all/"), encodeCounter(position)...)
}
