package eventsourcing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/akriventsev/theater/framework/core"
	"github.com/akriventsev/theater/framework/events"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBEventStoreConfig конфигурация для MongoDB Event Store
type MongoDBEventStoreConfig struct {
	URI         string
	Database    string
	Collection  string
	Timeout     time.Duration
	MaxPoolSize uint64
	MinPoolSize uint64
}

// Validate проверяет корректность конфигурации
func (c MongoDBEventStoreConfig) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("URI cannot be empty")
	}
	if c.Database == "" || c.Collection == "" {
		return fmt.Errorf("database and collection cannot be empty")
	}
	return nil
}

// DefaultMongoDBEventStoreConfig возвращает конфигурацию по умолчанию
func DefaultMongoDBEventStoreConfig() MongoDBEventStoreConfig {
	return MongoDBEventStoreConfig{
		Database:    "theater",
		Collection:  "events",
		Timeout:     10 * time.Second,
		MaxPoolSize: 100,
		MinPoolSize: 10,
	}
}

// mongoEventDocument документ события в коллекции
type mongoEventDocument struct {
	ID            string                 `bson:"_id"`
	AggregateID   string                 `bson:"aggregate_id"`
	AggregateType string                 `bson:"aggregate_type"`
	EventType     string                 `bson:"event_type"`
	EventData     bson.Raw               `bson:"event_data"`
	Metadata      map[string]interface{} `bson:"metadata"`
	Version       int64                  `bson:"version"`
	Position      int64                  `bson:"position"`
	OccurredAt    time.Time              `bson:"occurred_at"`
	CreatedAt     time.Time              `bson:"created_at"`
}

// MongoDBEventStore реализация EventStore для MongoDB.
// Глобальная позиция ведется счетчиком в коллекции <collection>_counters.
// Выдача позиций и вставка сериализованы внутри процесса, поэтому лента
// не переупорядочивается. Несколько процессов на одной коллекции этого
// не гарантируют: читатель ленты может пропустить позднюю вставку.
type MongoDBEventStore struct {
	appendMu     sync.Mutex
	config       MongoDBEventStoreConfig
	client       *mongo.Client
	collection   *mongo.Collection
	counters     *mongo.Collection
	serializer   EventSerializer
	deserializer EventDeserializer
}

// NewMongoDBEventStore подключается к MongoDB и создает индексы
func NewMongoDBEventStore(ctx context.Context, config MongoDBEventStoreConfig, registry *Registry) (*MongoDBEventStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mongodb config: %w", err)
	}

	opts := options.Client().
		ApplyURI(config.URI).
		SetMaxPoolSize(config.MaxPoolSize).
		SetMinPoolSize(config.MinPoolSize).
		SetTimeout(config.Timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(config.Database)
	collection := db.Collection(config.Collection)

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "aggregate_id", Value: 1},
				{Key: "version", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "position", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return &MongoDBEventStore{
		config:       config,
		client:       client,
		collection:   collection,
		counters:     db.Collection(config.Collection + "_counters"),
		serializer:   registry,
		deserializer: registry,
	}, nil
}

// Start запускает адаптер
func (s *MongoDBEventStore) Start(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Stop останавливает адаптер
func (s *MongoDBEventStore) Stop(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// IsRunning проверяет, запущен ли адаптер
func (s *MongoDBEventStore) IsRunning() bool {
	return s.client != nil
}

// HealthCheck проверяет соединение с базой
func (s *MongoDBEventStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Name возвращает имя компонента
func (s *MongoDBEventStore) Name() string {
	return "mongodb-event-store"
}

// Type возвращает тип компонента
func (s *MongoDBEventStore) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// AppendEvents добавляет события в поток агрегата.
// Вставка упорядочена: при конфликте по (aggregate_id, version) первая же
// запись отклоняется и частичной записи не происходит.
func (s *MongoDBEventStore) AppendEvents(ctx context.Context, aggregateID string, expectedVersion int64, evts []events.Event) error {
	currentVersion, err := s.currentVersion(ctx, aggregateID)
	if err != nil {
		return err
	}
	if err := checkExpectedVersion(expectedVersion, currentVersion); err != nil {
		return err
	}
	if len(evts) == 0 {
		return nil
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	lastPosition, err := s.reservePositions(ctx, int64(len(evts)))
	if err != nil {
		return err
	}
	firstPosition := lastPosition - int64(len(evts)) + 1

	now := time.Now().UTC()
	docs := make([]interface{}, len(evts))
	for i, event := range evts {
		payload, err := s.serializer.SerializeEvent(event)
		if err != nil {
			return err
		}
		var data bson.Raw
		if err := bson.UnmarshalExtJSON(payload, false, &data); err != nil {
			return fmt.Errorf("failed to convert event to bson: %w", err)
		}
		docs[i] = mongoEventDocument{
			ID:            event.EventID(),
			AggregateID:   aggregateID,
			AggregateType: aggregateTypeOf(event),
			EventType:     event.EventType(),
			EventData:     data,
			Metadata:      copyMetadata(event.Metadata()),
			Version:       expectedVersion + int64(i) + 1,
			Position:      firstPosition + int64(i),
			OccurredAt:    event.OccurredAt(),
			CreatedAt:     now,
		}
	}

	if _, err := s.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
		}
		return fmt.Errorf("failed to insert events: %w", err)
	}
	return nil
}

func (s *MongoDBEventStore) currentVersion(ctx context.Context, aggregateID string) (int64, error) {
	var last mongoEventDocument
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	err := s.collection.FindOne(ctx, bson.M{"aggregate_id": aggregateID}, opts).Decode(&last)
	if err == mongo.ErrNoDocuments {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to check version: %w", err)
	}
	return last.Version, nil
}

// reservePositions атомарно увеличивает счетчик позиций и возвращает последнюю
func (s *MongoDBEventStore) reservePositions(ctx context.Context, n int64) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "position"},
		bson.M{"$inc": bson.M{"value": n}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to reserve positions: %w", err)
	}
	return counter.Value, nil
}

// GetEvents возвращает события агрегата
func (s *MongoDBEventStore) GetEvents(ctx context.Context, aggregateID string, fromVersion int64) ([]StoredEvent, error) {
	filter := bson.M{
		"aggregate_id": aggregateID,
		"version":      bson.M{"$gte": fromVersion},
	}
	opts := options.Find().SetSort(bson.D{{Key: "version", Value: 1}})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}
	defer cursor.Close(ctx)

	result := make([]StoredEvent, 0)
	for cursor.Next(ctx) {
		stored, err := s.decode(cursor)
		if err != nil {
			return nil, err
		}
		result = append(result, stored)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return result, nil
}

// GetAllEvents возвращает все события начиная с указанной позиции
func (s *MongoDBEventStore) GetAllEvents(ctx context.Context, fromPosition int64) (<-chan StoredEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{"position": bson.M{"$gte": fromPosition}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}

	ch := make(chan StoredEvent, 100)
	go func() {
		defer close(ch)
		defer cursor.Close(ctx)

		for cursor.Next(ctx) {
			stored, err := s.decode(cursor)
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
		if err := cursor.Err(); err != nil && ctx.Err() == nil {
			sendReadError(ctx, ch, err)
		}
	}()

	return ch, nil
}

func (s *MongoDBEventStore) decode(cursor *mongo.Cursor) (StoredEvent, error) {
	var doc mongoEventDocument
	if err := cursor.Decode(&doc); err != nil {
		return StoredEvent{}, fmt.Errorf("failed to decode event: %w", err)
	}

	var payload []byte
	if len(doc.EventData) > 0 {
		var err error
		payload, err = bson.MarshalExtJSON(doc.EventData, false, false)
		if err != nil {
			return StoredEvent{}, fmt.Errorf("failed to convert event payload: %w", err)
		}
	}

	return decodeStored(s.deserializer, record{
		ID:            doc.ID,
		AggregateID:   doc.AggregateID,
		AggregateType: doc.AggregateType,
		EventType:     doc.EventType,
		Data:          payload,
		Metadata:      doc.Metadata,
		Version:       doc.Version,
		Position:      doc.Position,
		OccurredAt:    doc.OccurredAt,
		CreatedAt:     doc.CreatedAt,
	})
}
