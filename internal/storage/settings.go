package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	sq "github.com/Masterminds/squirrel"
)

// Well-known setting keys.
const (
	SettingDefaultModel         = "default_model"
	SettingSystemPrompt         = "system_prompt"
	SettingMaxMemoryMessages    = "max_memory_messages"
	SettingMemoryTimeoutMinutes = "memory_timeout_minutes"
	SettingRateLimitAI          = "rate_limit_ai"
	SettingRateLimitImg         = "rate_limit_img"
	SettingRateLimitDump        = "rate_limit_dump"

	// SettingAdminPasswordHash is never returned by bulk reads and is
	// silently skipped by bulk writes.
	SettingAdminPasswordHash = "admin_password_hash"
)

// GetSetting returns the stored value or def when the key is absent.
func (s *Store) GetSetting(ctx context.Context, key, def string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.sql.Select("value").From("settings").Where(sq.Eq{"key": key})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return "", fmt.Errorf("build get setting query: %w", err)
	}

	var value string
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return def, nil
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting upserts a single key. Callers going through the generic
// bulk path must use SetSettings, which protects the password hash.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set setting tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.upsertSettingTx(ctx, tx, key, value); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set setting: %w", err)
	}
	return nil
}

// SetSettings upserts many keys in one locked transaction. A write to the
// password-hash key is silently ignored.
func (s *Store) SetSettings(ctx context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set settings tx: %w", err)
	}
	defer tx.Rollback()

	for key, value := range values {
		if key == SettingAdminPasswordHash {
			continue
		}
		if err := s.upsertSettingTx(ctx, tx, key, value); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set settings: %w", err)
	}
	return nil
}

// GetAllSettings returns every setting except the password hash.
func (s *Store) GetAllSettings(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allSettings(ctx)
}

// LoadSettings builds the typed settings snapshot, parsing ints once here
// instead of at every call site. Missing or unparsable values fall back
// to the seeded defaults.
func (s *Store) LoadSettings(ctx context.Context) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.allSettings(ctx)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		DefaultModel:         stringOr(raw, SettingDefaultModel, "groq"),
		SystemPrompt:         stringOr(raw, SettingSystemPrompt, ""),
		MaxMemoryMessages:    intOr(raw, SettingMaxMemoryMessages, 25),
		MemoryTimeoutMinutes: intOr(raw, SettingMemoryTimeoutMinutes, 30),
		RateLimitAI:          intOr(raw, SettingRateLimitAI, 5),
		RateLimitImg:         intOr(raw, SettingRateLimitImg, 15),
		RateLimitDump:        intOr(raw, SettingRateLimitDump, 10),
	}, nil
}

// allSettings runs under the caller's lock.
func (s *Store) allSettings(ctx context.Context) (map[string]string, error) {
	q := s.sql.Select("key", "value").From("settings")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build all settings query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("all settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting row: %w", err)
		}
		if key == SettingAdminPasswordHash {
			continue
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate setting rows: %w", err)
	}
	return out, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// upsertSettingTx runs under the caller's lock.
func (s *Store) upsertSettingTx(ctx context.Context, tx execer, key, value string) error {
	q := s.sql.Insert("settings").
		Columns("key", "value", "updated_at").
		Values(key, value, nowExpr(s.driver)).
		Suffix("ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build upsert setting query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("upsert setting %q: %w", key, err)
	}
	return nil
}

func stringOr(m map[string]string, key, def string) string {
	if v, ok := m[key]; ok && v != "" {
		return v
	}
	return def
}

func intOr(m map[string]string, key string, def int) int {
	v, ok := m[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
