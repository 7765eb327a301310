package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// AddActivityLog appends an audit row and trims the table to the
// retention cap, oldest first.
func (s *Store) AddActivityLog(ctx context.Context, action, details, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activity log tx: %w", err)
	}
	defer tx.Rollback()

	ins := s.sql.Insert("activity_logs").
		Columns("action", "details", "ip_address").
		Values(action, nullIfEmpty(details), nullIfEmpty(ip))
	sqlStr, args, err := ins.ToSql()
	if err != nil {
		return fmt.Errorf("build activity log insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}

	trim := s.sql.Delete("activity_logs").
		Where(sq.Expr("id NOT IN (SELECT id FROM activity_logs ORDER BY id DESC LIMIT ?)", s.logRetention))
	sqlStr, args, err = trim.ToSql()
	if err != nil {
		return fmt.Errorf("build activity log trim: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("trim activity log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit activity log: %w", err)
	}
	return nil
}

// GetActivityLogs returns up to limit entries, most recent first.
func (s *Store) GetActivityLogs(ctx context.Context, limit int) ([]ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.sql.Select("id", "action", "details", "ip_address", "created_at").
		From("activity_logs").
		OrderBy("id DESC").
		Limit(uint64(limit))
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build activity logs query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("activity logs: %w", err)
	}
	defer rows.Close()

	out := make([]ActivityEntry, 0)
	for rows.Next() {
		var e ActivityEntry
		var details, ip sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &details, &ip, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity log row: %w", err)
		}
		e.Details = details.String
		e.IP = ip.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity log rows: %w", err)
	}
	return out, nil
}

// GetTestLogs returns up to limit provider test results, most recent
// first.
func (s *Store) GetTestLogs(ctx context.Context, limit int) ([]TestEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.sql.Select("id", "api_name", "status", "response_time_ms", "error_message", "tested_at").
		From("test_logs").
		OrderBy("id DESC").
		Limit(uint64(limit))
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build test logs query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("test logs: %w", err)
	}
	defer rows.Close()

	out := make([]TestEntry, 0)
	for rows.Next() {
		var e TestEntry
		var responseTime sql.NullInt64
		var errorMessage sql.NullString
		if err := rows.Scan(&e.ID, &e.APIName, &e.Status, &responseTime, &errorMessage, &e.TestedAt); err != nil {
			return nil, fmt.Errorf("scan test log row: %w", err)
		}
		if responseTime.Valid {
			v := responseTime.Int64
			e.ResponseTimeMs = &v
		}
		if errorMessage.Valid {
			v := errorMessage.String
			e.ErrorMessage = &v
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate test log rows: %w", err)
	}
	return out, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
