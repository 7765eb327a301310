package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// SessionTokenBytes gives 256 bits of entropy per token.
const SessionTokenBytes = 32

// CreateSession issues a new opaque token valid for ttl, purging expired
// rows opportunistically in the same locked transaction.
func (s *Store) CreateSession(ctx context.Context, ttl time.Duration) (string, error) {
	buf := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin create session tx: %w", err)
	}
	defer tx.Rollback()

	purge := s.sql.Delete("sessions").Where(sq.Lt{"expires_at": now})
	sqlStr, args, err := purge.ToSql()
	if err != nil {
		return "", fmt.Errorf("build session purge query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return "", fmt.Errorf("purge sessions: %w", err)
	}

	ins := s.sql.Insert("sessions").
		Columns("token", "expires_at").
		Values(token, now.Add(ttl))
	sqlStr, args, err = ins.ToSql()
	if err != nil {
		return "", fmt.Errorf("build session insert query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit create session: %w", err)
	}
	return token, nil
}

// ValidateSession reports whether the token names a live session. Empty,
// unknown, and expired tokens are all simply false.
func (s *Store) ValidateSession(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.sql.Select("1").
		From("sessions").
		Where(sq.Eq{"token": token}).
		Where(sq.Gt{"expires_at": time.Now().UTC()})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build validate session query: %w", err)
	}

	var one int
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("validate session: %w", err)
	}
	return true, nil
}

// DeleteSession is idempotent.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.sql.Delete("sessions").Where(sq.Eq{"token": token})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete session query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// InsertSessionForTest writes a session row with an explicit expiry. Only
// tests use it to simulate elapsed TTLs.
func (s *Store) InsertSessionForTest(ctx context.Context, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.sql.Insert("sessions").Columns("token", "expires_at").Values(token, expiresAt)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build test session insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert test session: %w", err)
	}
	return nil
}
