package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// SetUserModel upserts the per-user model override. The model id is not
// validated against the catalog; the bot resolves stale ids itself.
func (s *Store) SetUserModel(ctx context.Context, userID, modelID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if strings.TrimSpace(modelID) == "" {
		return fmt.Errorf("%w: model_id is required", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.sql.Insert("user_models").
		Columns("user_id", "model_id", "updated_at").
		Values(userID, modelID, nowExpr(s.driver)).
		Suffix("ON CONFLICT(user_id) DO UPDATE SET model_id=excluded.model_id, updated_at=excluded.updated_at")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build set user model query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("set user model: %w", err)
	}
	return nil
}

func (s *Store) GetUserModel(ctx context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.sql.Select("model_id").From("user_models").Where(sq.Eq{"user_id": userID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return "", fmt.Errorf("build get user model query: %w", err)
	}

	var modelID string
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&modelID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get user model: %w", err)
	}
	return modelID, nil
}

func (s *Store) GetAllUserModels(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.sql.Select("user_id", "model_id").From("user_models")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build all user models query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("all user models: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var userID, modelID string
		if err := rows.Scan(&userID, &modelID); err != nil {
			return nil, fmt.Errorf("scan user model row: %w", err)
		}
		out[userID] = modelID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user model rows: %w", err)
	}
	return out, nil
}

// DeleteUserModel is idempotent.
func (s *Store) DeleteUserModel(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.sql.Delete("user_models").Where(sq.Eq{"user_id": userID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete user model query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete user model: %w", err)
	}
	return nil
}
