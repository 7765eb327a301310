package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// AddApiKey inserts a new provider credential. The name is unique; a
// duplicate fails with ErrDuplicate and leaves the existing row untouched.
func (s *Store) AddApiKey(ctx context.Context, name, keyValue, provider string) error {
	name = strings.TrimSpace(name)
	keyValue = strings.TrimSpace(keyValue)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if keyValue == "" {
		return fmt.Errorf("%w: key_value is required", ErrValidation)
	}
	if strings.TrimSpace(provider) == "" {
		provider = "custom"
	}

	stored, err := s.box.Seal(keyValue)
	if err != nil {
		return fmt.Errorf("seal key value: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.rowExists(ctx, "api_keys", sq.Eq{"name": name})
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: api key with this name", ErrDuplicate)
	}

	q := s.sql.Insert("api_keys").
		Columns("name", "key_value", "provider").
		Values(name, stored, provider)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build add api key query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("add api key: %w", err)
	}
	return nil
}

// UpdateApiKey applies a partial update. An unknown id is a silent no-op;
// callers that need failure signaling should check existence first.
func (s *Store) UpdateApiKey(ctx context.Context, id int64, patch ApiKeyPatch) error {
	if patch.KeyValue == nil && patch.IsActive == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.sql.Update("api_keys").Where(sq.Eq{"id": id})
	if patch.KeyValue != nil {
		stored, err := s.box.Seal(strings.TrimSpace(*patch.KeyValue))
		if err != nil {
			return fmt.Errorf("seal key value: %w", err)
		}
		q = q.Set("key_value", stored)
	}
	if patch.IsActive != nil {
		q = q.Set("is_active", *patch.IsActive)
	}
	q = q.Set("updated_at", nowExpr(s.driver))

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update api key query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("update api key: %w", err)
	}
	return nil
}

// DeleteApiKey is idempotent.
func (s *Store) DeleteApiKey(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.sql.Delete("api_keys").Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete api key query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	return nil
}

func (s *Store) ListApiKeys(ctx context.Context) ([]ApiKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.sql.Select("id", "name", "key_value", "provider", "is_active", "last_tested", "test_status", "created_at", "updated_at").
		From("api_keys").
		OrderBy("provider ASC", "name ASC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list api keys query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	out := make([]ApiKey, 0)
	for rows.Next() {
		k, err := scanApiKey(rows)
		if err != nil {
			return nil, err
		}
		if k.KeyValue, err = s.box.Open(k.KeyValue); err != nil {
			return nil, fmt.Errorf("open key value for %q: %w", k.Name, err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api key rows: %w", err)
	}
	return out, nil
}

// GetActiveKeyValue returns the decrypted secret for an active key, or
// ErrNotFound when no active row carries the name.
func (s *Store) GetActiveKeyValue(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.sql.Select("key_value").
		From("api_keys").
		Where(sq.Eq{"name": name, "is_active": true})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return "", fmt.Errorf("build get key value query: %w", err)
	}

	var stored string
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&stored); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get key value: %w", err)
	}
	return s.box.Open(stored)
}

// ActiveKeyValues returns provider name -> decrypted secret for every
// active key. This is the bot-facing view.
func (s *Store) ActiveKeyValues(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.sql.Select("name", "key_value").
		From("api_keys").
		Where(sq.Eq{"is_active": true})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build active key values query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("active key values: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, stored string
		if err := rows.Scan(&name, &stored); err != nil {
			return nil, fmt.Errorf("scan key value row: %w", err)
		}
		value, err := s.box.Open(stored)
		if err != nil {
			return nil, fmt.Errorf("open key value for %q: %w", name, err)
		}
		out[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate key value rows: %w", err)
	}
	return out, nil
}

// RecordTestResult updates the key's last-test columns and appends the
// test log row under one lock acquisition, so readers never observe one
// without the other. The test log is trimmed to the retention cap.
func (s *Store) RecordTestResult(ctx context.Context, name, status string, responseTimeMs *int64, errorMessage *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin test result tx: %w", err)
	}
	defer tx.Rollback()

	upd := s.sql.Update("api_keys").
		Set("last_tested", nowExpr(s.driver)).
		Set("test_status", status).
		Where(sq.Eq{"name": name})
	sqlStr, args, err := upd.ToSql()
	if err != nil {
		return fmt.Errorf("build test status update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("update test status: %w", err)
	}

	ins := s.sql.Insert("test_logs").
		Columns("api_name", "status", "response_time_ms", "error_message").
		Values(name, status, responseTimeMs, errorMessage)
	sqlStr, args, err = ins.ToSql()
	if err != nil {
		return fmt.Errorf("build test log insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert test log: %w", err)
	}

	trim := s.sql.Delete("test_logs").
		Where(sq.Expr("id NOT IN (SELECT id FROM test_logs ORDER BY id DESC LIMIT ?)", s.logRetention))
	sqlStr, args, err = trim.ToSql()
	if err != nil {
		return fmt.Errorf("build test log trim: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("trim test log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit test result: %w", err)
	}
	return nil
}

// MaskSecret renders a secret for display. Values longer than 12
// characters keep the first 8 and last 4; anything shorter collapses to a
// fixed mask.
func MaskSecret(value string) string {
	if len(value) > 12 {
		return value[:8] + "..." + value[len(value)-4:]
	}
	return "****"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApiKey(r rowScanner) (ApiKey, error) {
	var k ApiKey
	var lastTested sql.NullTime
	var testStatus sql.NullString
	if err := r.Scan(
		&k.ID,
		&k.Name,
		&k.KeyValue,
		&k.Provider,
		&k.IsActive,
		&lastTested,
		&testStatus,
		&k.CreatedAt,
		&k.UpdatedAt,
	); err != nil {
		return ApiKey{}, fmt.Errorf("scan api key row: %w", err)
	}
	if lastTested.Valid {
		t := lastTested.Time
		k.LastTested = &t
	}
	if testStatus.Valid {
		v := testStatus.String
		k.TestStatus = &v
	}
	return k, nil
}

// rowExists runs under the caller's lock.
func (s *Store) rowExists(ctx context.Context, table string, where sq.Eq) (bool, error) {
	q := s.sql.Select("1").From(table).Where(where).Limit(1)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}
	var one int
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("exists query: %w", err)
	}
	return true, nil
}
