package kvstore

import (
	"database/sql"
	"fmt"
	"io"

	"agrimate/internal/config"
	"agrimate/internal/storage"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the Store selected by cfg.Storage. The returned closer
// releases the underlying connection.
func Open(cfg *config.Config) (Store, io.Closer, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return NewMemory(), nopCloser{}, nil
	case "redis":
		r, err := NewRedis(cfg)
		if err != nil {
			return nil, nil, err
		}
		return r, r, nil
	case "sql":
		db, err := storage.Open(cfg.Storage.Driver, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := storage.Migrate(db, cfg.Storage.Driver); err != nil {
			db.Close()
			return nil, nil, err
		}
		s, err := NewSQL(db, cfg.Storage.Driver)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, dbCloser{db}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

type dbCloser struct{ db *sql.DB }

func (c dbCloser) Close() error { return c.db.Close() }
