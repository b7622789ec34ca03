package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/magabrotheeeer/subscriber-service/internal/models"
	"github.com/magabrotheeeer/subscriber-service/internal/storage"
)

// CreateStream добавляет поток в каталог.
func (s *Storage) CreateStream(ctx context.Context, stream *models.Stream) error {
	const op = "storage.mongo.CreateStream"
	if err := storage.Validate(stream); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.streams.InsertOne(ctx, stream); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetStream загружает поток каталога по id.
func (s *Storage) GetStream(ctx context.Context, id string) (*models.Stream, error) {
	const op = "storage.mongo.GetStream"

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var stream models.Stream
	err := s.streams.FindOne(ctx, bson.M{"_id": id}).Decode(&stream)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrStreamNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &stream, nil
}

// GetStreams загружает потоки по списку id. Отсутствующих id в результате нет.
func (s *Storage) GetStreams(ctx context.Context, ids []string) (map[string]*models.Stream, error) {
	const op = "storage.mongo.GetStreams"
	result := make(map[string]*models.Stream, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := s.streams.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var streams []*models.Stream
	if err := cur.All(ctx, &streams); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, st := range streams {
		result[st.ID] = st
	}
	return result, nil
}

// DeleteStream удаляет поток из каталога. Отсутствие потока не ошибка,
// чтобы повторное удаление после сбоя проходило.
func (s *Storage) DeleteStream(ctx context.Context, id string) error {
	const op = "storage.mongo.DeleteStream"

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.streams.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ExistingStreamIDs возвращает подмножество ids, которые есть в каталоге.
func (s *Storage) ExistingStreamIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	const op = "storage.mongo.ExistingStreamIDs"
	existing := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	values, err := s.streams.Distinct(ctx, "_id", bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, v := range values {
		if id, ok := v.(string); ok {
			existing[id] = struct{}{}
		}
	}
	return existing, nil
}
