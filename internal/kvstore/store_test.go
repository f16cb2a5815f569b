package kvstore

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"testing"

	"agrimate/internal/config"
	"agrimate/internal/storage"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Set(ctx, "theme", "dark"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := s.Get(ctx, "theme"); err != nil || got != "dark" {
		t.Fatalf("get after set: %q %v", got, err)
	}
	if err := s.Set(ctx, "theme", "light"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if got, _ := s.Get(ctx, "theme"); got != "light" {
		t.Fatalf("expected last writer to win, got %q", got)
	}
	if err := s.Delete(ctx, "theme"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "theme"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, "theme"); err != nil {
		t.Fatalf("delete of missing key should be a no-op: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestSQLStoreSqlite3(t *testing.T) {
	exerciseStore(t, openSQLStore(t, "sqlite3"))
}

func TestSQLStorePureGoSqlite(t *testing.T) {
	exerciseStore(t, openSQLStore(t, "sqlite"))
}

func TestPrefixIsolatesNamespaces(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	alice := WithPrefix(base, "users/alice@example.com")
	bob := WithPrefix(base, "users/bob@example.com")

	if err := alice.Set(ctx, "theme", "dark"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := bob.Get(ctx, "theme"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("bob should not see alice's records, got %v", err)
	}
	if got, _ := base.Get(ctx, "users/alice@example.com/theme"); got != "dark" {
		t.Fatalf("unexpected raw key layout, got %q", got)
	}
	if WithPrefix(base, "") != Store(base) {
		t.Fatalf("empty prefix should return the inner store")
	}
}

func TestOpenMemoryBackend(t *testing.T) {
	s, closer, err := Open(&config.Config{Storage: config.StorageConfig{Backend: "memory"}})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer closer.Close()
	exerciseStore(t, s)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed store tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	r, err := NewRedis(&config.Config{Redis: config.RedisConfig{Host: host, Port: port}})
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer r.Close()
	exerciseStore(t, WithPrefix(r, "test"))
}

func openSQLStore(t *testing.T, driver string) *SQL {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			driver: {DSN: ":memory:"},
		},
	}
	db, err := storage.Open(driver, cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, driver); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	s, err := NewSQL(db, driver)
	if err != nil {
		t.Fatalf("new sql store: %v", err)
	}
	return s
}
