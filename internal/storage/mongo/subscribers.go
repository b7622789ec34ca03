package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/magabrotheeeer/subscriber-service/internal/storage"
	"github.com/magabrotheeeer/subscriber-service/internal/subscriber"
)

// GetSubscriber загружает абонента по id.
func (s *Storage) GetSubscriber(ctx context.Context, id string) (*subscriber.Subscriber, error) {
	const op = "storage.mongo.GetSubscriber"
	return s.findSubscriber(ctx, op, bson.M{"_id": id})
}

// GetSubscriberByEmail загружает абонента по email.
func (s *Storage) GetSubscriberByEmail(ctx context.Context, email string) (*subscriber.Subscriber, error) {
	const op = "storage.mongo.GetSubscriberByEmail"
	return s.findSubscriber(ctx, op, bson.M{"email": email})
}

func (s *Storage) findSubscriber(ctx context.Context, op string, filter bson.M) (*subscriber.Subscriber, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var sub subscriber.Subscriber
	err := s.subscribers.FindOne(ctx, filter).Decode(&sub)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrSubscriberNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &sub, nil
}

// CreateSubscriber сохраняет нового абонента.
func (s *Storage) CreateSubscriber(ctx context.Context, sub *subscriber.Subscriber) error {
	const op = "storage.mongo.CreateSubscriber"
	if err := storage.Validate(sub); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := s.subscribers.InsertOne(ctx, sub)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", op, storage.ErrSubscriberExists)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SaveSubscriber заменяет документ абонента целиком.
func (s *Storage) SaveSubscriber(ctx context.Context, sub *subscriber.Subscriber) error {
	const op = "storage.mongo.SaveSubscriber"
	if err := storage.Validate(sub); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.subscribers.ReplaceOne(ctx, bson.M{"_id": sub.ID}, sub)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", op, storage.ErrSubscriberExists)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrSubscriberNotFound)
	}
	return nil
}

// PullStreamReference снимает связи с потоком у всех абонентов.
func (s *Storage) PullStreamReference(ctx context.Context, streamID string) (int64, error) {
	const op = "storage.mongo.PullStreamReference"

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.subscribers.UpdateMany(ctx,
		bson.M{"streams.sid": streamID},
		bson.M{"$pull": bson.M{"streams": bson.M{"sid": streamID}}},
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return res.ModifiedCount, nil
}

// PullServerReference отвязывает сервер у всех абонентов.
func (s *Storage) PullServerReference(ctx context.Context, serverID string) (int64, error) {
	const op = "storage.mongo.PullServerReference"

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.subscribers.UpdateMany(ctx,
		bson.M{"servers": serverID},
		bson.M{"$pull": bson.M{"servers": serverID}},
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return res.ModifiedCount, nil
}

// ListStreamReferences возвращает все различные ссылки на потоки из документов абонентов.
func (s *Storage) ListStreamReferences(ctx context.Context) ([]string, error) {
	const op = "storage.mongo.ListStreamReferences"

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	values, err := s.subscribers.Distinct(ctx, "streams.sid", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	refs := make([]string, 0, len(values))
	for _, v := range values {
		if ref, ok := v.(string); ok {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

// ListDeletedWithOwnStreams id удалённых абонентов, у которых остались собственные потоки.
func (s *Storage) ListDeletedWithOwnStreams(ctx context.Context) ([]string, error) {
	const op = "storage.mongo.ListDeletedWithOwnStreams"

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{
		"status":  subscriber.StatusDeleted,
		"streams": bson.M{"$elemMatch": bson.M{"private": true}},
	}
	values, err := s.subscribers.Distinct(ctx, "_id", filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
