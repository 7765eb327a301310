package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

const modelColumns = "id, emoji, name, description, category, provider, model_name, is_enabled, is_default, priority, created_at"

// AddModel inserts a catalog entry. Required fields are validated before
// storage is touched; a duplicate id fails with ErrDuplicate.
func (s *Store) AddModel(ctx context.Context, m Model) error {
	required := []struct {
		field string
		value string
	}{
		{"id", m.ID},
		{"name", m.Name},
		{"provider", m.Provider},
		{"model_name", m.ModelName},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrValidation, r.field)
		}
	}
	if m.Emoji == "" {
		m.Emoji = "🤖"
	}
	if m.Category == "" {
		m.Category = "custom"
	}
	if m.Priority == 0 {
		m.Priority = 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.rowExists(ctx, "ai_models", sq.Eq{"id": m.ID})
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: model with this id", ErrDuplicate)
	}

	q := s.sql.Insert("ai_models").
		Columns("id", "emoji", "name", "description", "category", "provider", "model_name", "is_enabled", "is_default", "priority").
		Values(m.ID, m.Emoji, m.Name, m.Description, m.Category, m.Provider, m.ModelName, m.IsEnabled, m.IsDefault, m.Priority)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build add model query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("add model: %w", err)
	}
	return nil
}

// UpdateModel applies a partial update. An unknown id is a silent no-op.
func (s *Store) UpdateModel(ctx context.Context, id string, patch ModelPatch) error {
	sets := map[string]any{}
	if patch.Emoji != nil {
		sets["emoji"] = *patch.Emoji
	}
	if patch.Name != nil {
		sets["name"] = *patch.Name
	}
	if patch.Description != nil {
		sets["description"] = *patch.Description
	}
	if patch.Category != nil {
		sets["category"] = *patch.Category
	}
	if patch.Provider != nil {
		sets["provider"] = *patch.Provider
	}
	if patch.ModelName != nil {
		sets["model_name"] = *patch.ModelName
	}
	if patch.IsEnabled != nil {
		sets["is_enabled"] = *patch.IsEnabled
	}
	if patch.IsDefault != nil {
		sets["is_default"] = *patch.IsDefault
	}
	if patch.Priority != nil {
		sets["priority"] = *patch.Priority
	}
	if len(sets) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.sql.Update("ai_models").SetMap(sets).Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update model query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("update model: %w", err)
	}
	return nil
}

// DeleteModel is idempotent.
func (s *Store) DeleteModel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.sql.Delete("ai_models").Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete model query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	return nil
}

func (s *Store) GetAllModels(ctx context.Context) ([]Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listModels(ctx, nil)
}

func (s *Store) GetModel(ctx context.Context, id string) (Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	models, err := s.listModels(ctx, sq.Eq{"id": id})
	if err != nil {
		return Model{}, err
	}
	if len(models) == 0 {
		return Model{}, ErrNotFound
	}
	return models[0], nil
}

// GetEnabledModels returns the bot-facing descriptor map, read in
// priority-then-name order.
func (s *Store) GetEnabledModels(ctx context.Context) (map[string]ModelDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	models, err := s.listModels(ctx, sq.Eq{"is_enabled": true})
	if err != nil {
		return nil, err
	}
	out := make(map[string]ModelDescriptor, len(models))
	for _, m := range models {
		out[m.ID] = ModelDescriptor{
			Emoji:       m.Emoji,
			Name:        m.Name,
			Description: m.Description,
			Category:    m.Category,
			Provider:    m.Provider,
			ModelName:   m.ModelName,
		}
	}
	return out, nil
}

// SetDefaultModel clears the default flag on every model, flags the given
// id, and writes the default_model setting, all in one locked transaction.
// An unknown id still clears prior defaults and writes the setting; the
// admin UI is expected to pass ids it just listed.
func (s *Store) SetDefaultModel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set default tx: %w", err)
	}
	defer tx.Rollback()

	clearQ := s.sql.Update("ai_models").Set("is_default", false)
	sqlStr, args, err := clearQ.ToSql()
	if err != nil {
		return fmt.Errorf("build clear defaults query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("clear defaults: %w", err)
	}

	set := s.sql.Update("ai_models").Set("is_default", true).Where(sq.Eq{"id": id})
	sqlStr, args, err = set.ToSql()
	if err != nil {
		return fmt.Errorf("build set default query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("set default: %w", err)
	}

	if err := s.upsertSettingTx(ctx, tx, SettingDefaultModel, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set default: %w", err)
	}
	return nil
}

// ResetModels wipes the catalog and re-seeds it from the built-in preset
// list under one lock acquisition.
func (s *Store) ResetModels(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset models tx: %w", err)
	}
	defer tx.Rollback()

	sqlStr, args, err := s.sql.Delete("ai_models").ToSql()
	if err != nil {
		return fmt.Errorf("build wipe models query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("wipe models: %w", err)
	}

	if err := s.seedCatalogTx(ctx, tx); err != nil {
		return err
	}
	if err := s.upsertSettingTx(ctx, tx, SettingDefaultModel, defaultModelID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset models: %w", err)
	}
	return nil
}

// listModels runs under the caller's lock.
func (s *Store) listModels(ctx context.Context, where sq.Sqlizer) ([]Model, error) {
	q := s.sql.Select(strings.Split(modelColumns, ", ")...).
		From("ai_models").
		OrderBy("priority ASC", "name ASC")
	if where != nil {
		q = q.Where(where)
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list models query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	out := make([]Model, 0)
	for rows.Next() {
		var m Model
		var description sql.NullString
		if err := rows.Scan(
			&m.ID,
			&m.Emoji,
			&m.Name,
			&description,
			&m.Category,
			&m.Provider,
			&m.ModelName,
			&m.IsEnabled,
			&m.IsDefault,
			&m.Priority,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan model row: %w", err)
		}
		m.Description = description.String
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate model rows: %w", err)
	}
	return out, nil
}
