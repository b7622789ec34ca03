package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/subscriber-service/internal/models"
	"github.com/magabrotheeeer/subscriber-service/internal/storage"
)

// CreateStream добавляет поток в каталог.
func (s *Storage) CreateStream(ctx context.Context, stream *models.Stream) error {
	const op = "storage.postgresql.CreateStream"
	if err := storage.Validate(stream); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	doc, err := json.Marshal(stream)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var owner sql.NullString
	if stream.OwnerID != "" {
		owner = sql.NullString{String: stream.OwnerID, Valid: true}
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO streams (id, owner_id, document) VALUES ($1, $2, $3)`,
		stream.ID, owner, doc)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetStream загружает поток каталога по id.
func (s *Storage) GetStream(ctx context.Context, id string) (*models.Stream, error) {
	const op = "storage.postgresql.GetStream"

	var doc []byte
	err := s.DB.QueryRowContext(ctx, `SELECT document FROM streams WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrStreamNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var stream models.Stream
	if err := json.Unmarshal(doc, &stream); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &stream, nil
}

// GetStreams загружает потоки по списку id. Отсутствующих id в результате нет.
func (s *Storage) GetStreams(ctx context.Context, ids []string) (map[string]*models.Stream, error) {
	const op = "storage.postgresql.GetStreams"
	result := make(map[string]*models.Stream, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT document FROM streams WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		var stream models.Stream
		if err := json.Unmarshal(doc, &stream); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result[stream.ID] = &stream
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// DeleteStream удаляет поток из каталога. Отсутствие потока не ошибка.
func (s *Storage) DeleteStream(ctx context.Context, id string) error {
	const op = "storage.postgresql.DeleteStream"
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM streams WHERE id = $1`, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ExistingStreamIDs возвращает подмножество ids, которые есть в каталоге.
func (s *Storage) ExistingStreamIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	const op = "storage.postgresql.ExistingStreamIDs"
	existing := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	found, err := s.queryStrings(ctx, op, `SELECT id FROM streams WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range found {
		existing[id] = struct{}{}
	}
	return existing, nil
}
