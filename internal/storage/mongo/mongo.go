// Package mongo реализует документное хранилище абонентов и каталога потоков на MongoDB.
// Абонент хранится одним документом вместе с устройствами и связями с потоками.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	subscribersCollection = "subscribers"
	streamsCollection     = "streams"
	opTimeout             = 5 * time.Second
)

// Storage обёртка над базой MongoDB.
type Storage struct {
	client      *mongo.Client
	subscribers *mongo.Collection
	streams     *mongo.Collection
}

// New подключается к MongoDB, проверяет соединение и создаёт индексы.
func New(ctx context.Context, uri, database string) (*Storage, error) {
	const op = "storage.mongo.New"

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db := client.Database(database)
	s := &Storage{
		client:      client,
		subscribers: db.Collection(subscribersCollection),
		streams:     db.Collection(streamsCollection),
	}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	_, err := s.subscribers.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "streams.sid", Value: 1}}},
		{Keys: bson.D{{Key: "servers", Value: 1}}},
	})
	return err
}

// Close закрывает соединение.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping проверяет соединение.
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}
