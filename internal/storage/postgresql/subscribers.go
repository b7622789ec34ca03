package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/subscriber-service/internal/storage"
	"github.com/magabrotheeeer/subscriber-service/internal/subscriber"
)

// GetSubscriber загружает абонента по id.
func (s *Storage) GetSubscriber(ctx context.Context, id string) (*subscriber.Subscriber, error) {
	const op = "storage.postgresql.GetSubscriber"
	return s.querySubscriber(ctx, op, `SELECT document FROM subscribers WHERE id = $1`, id)
}

// GetSubscriberByEmail загружает абонента по email.
func (s *Storage) GetSubscriberByEmail(ctx context.Context, email string) (*subscriber.Subscriber, error) {
	const op = "storage.postgresql.GetSubscriberByEmail"
	return s.querySubscriber(ctx, op, `SELECT document FROM subscribers WHERE email = $1`, email)
}

func (s *Storage) querySubscriber(ctx context.Context, op, query string, arg any) (*subscriber.Subscriber, error) {
	var doc []byte
	err := s.DB.QueryRowContext(ctx, query, arg).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrSubscriberNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var sub subscriber.Subscriber
	if err := json.Unmarshal(doc, &sub); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &sub, nil
}

// CreateSubscriber сохраняет нового абонента.
func (s *Storage) CreateSubscriber(ctx context.Context, sub *subscriber.Subscriber) error {
	const op = "storage.postgresql.CreateSubscriber"
	if err := storage.Validate(sub); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	doc, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO subscribers (id, email, status, document)
			  VALUES ($1, $2, $3, $4)`
	_, err = s.DB.ExecContext(ctx, query, sub.ID, sub.Email, int(sub.Status), doc)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, storage.ErrSubscriberExists)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SaveSubscriber заменяет документ абонента целиком.
func (s *Storage) SaveSubscriber(ctx context.Context, sub *subscriber.Subscriber) error {
	const op = "storage.postgresql.SaveSubscriber"
	if err := storage.Validate(sub); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	doc, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `UPDATE subscribers
			  SET email = $2, status = $3, document = $4, updated_at = NOW()
			  WHERE id = $1`
	res, err := s.DB.ExecContext(ctx, query, sub.ID, sub.Email, int(sub.Status), doc)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, storage.ErrSubscriberExists)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrSubscriberNotFound)
	}
	return nil
}

// PullStreamReference снимает связи с потоком у всех абонентов, порядок остальных связей сохраняется.
func (s *Storage) PullStreamReference(ctx context.Context, streamID string) (int64, error) {
	const op = "storage.postgresql.PullStreamReference"

	query := `UPDATE subscribers
			  SET document = jsonb_set(document, '{streams}', COALESCE(
			          (SELECT jsonb_agg(t.e ORDER BY t.ord)
			           FROM jsonb_array_elements(document->'streams') WITH ORDINALITY AS t(e, ord)
			           WHERE t.e->>'sid' <> $1::text),
			          '[]'::jsonb)),
			      updated_at = NOW()
			  WHERE document->'streams' @> jsonb_build_array(jsonb_build_object('sid', $1::text))`
	res, err := s.DB.ExecContext(ctx, query, streamID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return res.RowsAffected()
}

// PullServerReference отвязывает сервер у всех абонентов.
func (s *Storage) PullServerReference(ctx context.Context, serverID string) (int64, error) {
	const op = "storage.postgresql.PullServerReference"

	query := `UPDATE subscribers
			  SET document = jsonb_set(document, '{servers}', (document->'servers') - $1::text),
			      updated_at = NOW()
			  WHERE document->'servers' @> jsonb_build_array($1::text)`
	res, err := s.DB.ExecContext(ctx, query, serverID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return res.RowsAffected()
}

// ListStreamReferences возвращает все различные ссылки на потоки из документов абонентов.
func (s *Storage) ListStreamReferences(ctx context.Context) ([]string, error) {
	const op = "storage.postgresql.ListStreamReferences"

	query := `SELECT DISTINCT jsonb_path_query(document, '$.streams[*].sid') #>> '{}'
			  FROM subscribers`
	return s.queryStrings(ctx, op, query)
}

// ListDeletedWithOwnStreams id удалённых абонентов, у которых остались собственные потоки.
func (s *Storage) ListDeletedWithOwnStreams(ctx context.Context) ([]string, error) {
	const op = "storage.postgresql.ListDeletedWithOwnStreams"

	query := `SELECT id FROM subscribers
			  WHERE status = $1 AND document @> '{"streams": [{"private": true}]}'`
	return s.queryStrings(ctx, op, query, int(subscriber.StatusDeleted))
}

func (s *Storage) queryStrings(ctx context.Context, op, query string, args ...any) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
