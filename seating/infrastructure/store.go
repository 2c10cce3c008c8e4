package infrastructure

import (
	"context"
	"fmt"

	"github.com/akriventsev/theater/framework/eventsourcing"
	"github.com/akriventsev/theater/seating/config"
)

// NewEventStore создает хранилище событий выбранного вида.
// Хранилища с подключением (postgres, mongodb, badger) реализуют core.Lifecycle.
func NewEventStore(ctx context.Context, cfg *config.Config, registry *eventsourcing.Registry) (eventsourcing.EventStore, error) {
	switch cfg.Store {
	case config.StoreMemory, "":
		return eventsourcing.NewInMemoryEventStore(eventsourcing.DefaultInMemoryEventStoreConfig()), nil

	case config.StorePostgres:
		pgConfig := eventsourcing.DefaultPostgresEventStoreConfig()
		pgConfig.DSN = cfg.PostgresDSN
		return eventsourcing.NewPostgresEventStore(ctx, pgConfig, registry)

	case config.StoreMongoDB:
		mongoConfig := eventsourcing.DefaultMongoDBEventStoreConfig()
		mongoConfig.URI = cfg.MongoURI
		if cfg.MongoDatabase != "" {
			mongoConfig.Database = cfg.MongoDatabase
		}
		return eventsourcing.NewMongoDBEventStore(ctx, mongoConfig, registry)

	case config.StoreBadger:
		return eventsourcing.NewBadgerEventStore(eventsourcing.BadgerEventStoreConfig{
			Dir:        cfg.BadgerDir,
			SyncWrites: cfg.BadgerDir != "",
		}, registry)

	default:
		return nil, fmt.Errorf("unknown event store: %s", cfg.Store)
	}
}
