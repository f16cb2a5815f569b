package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"agrimate/internal/storage"
)

// SQL stores records in the kv_records table created by storage.Migrate.
type SQL struct {
	db      *sql.DB
	getStmt string
	setStmt string
	delStmt string
	dialect string
}

// NewSQL wraps db; driver selects placeholder and upsert syntax.
func NewSQL(db *sql.DB, driver string) (*SQL, error) {
	s := &SQL{db: db, dialect: storage.Dialect(driver)}
	switch s.dialect {
	case "sqlite3":
		s.getStmt = `SELECT value FROM kv_records WHERE record_key = ?`
		s.setStmt = `INSERT INTO kv_records (record_key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(record_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
		s.delStmt = `DELETE FROM kv_records WHERE record_key = ?`
	case "mysql":
		s.getStmt = `SELECT value FROM kv_records WHERE record_key = ?`
		s.setStmt = `INSERT INTO kv_records (record_key, value, updated_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = VALUES(updated_at)`
		s.delStmt = `DELETE FROM kv_records WHERE record_key = ?`
	case "postgres":
		s.getStmt = `SELECT value FROM kv_records WHERE record_key = $1`
		s.setStmt = `INSERT INTO kv_records (record_key, value, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT(record_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
		s.delStmt = `DELETE FROM kv_records WHERE record_key = $1`
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
	return s, nil
}

func (s *SQL) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.getStmt, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *SQL) Set(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, s.setStmt, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SQL) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.delStmt, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
