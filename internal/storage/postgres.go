package storage

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sk-go/agentflow/pkg/cache"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// PostgresCache implements cache.Cache on a cache_entries table so workflow
// and execution snapshots survive process restarts.
type PostgresCache struct {
	db DBInterface
}

func NewPostgresCache(connStr string) (*PostgresCache, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresCache{db: db}, nil
}

func (c *PostgresCache) Close() error {
	if db, ok := c.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil
}

type cacheRow struct {
	Value     []byte     `db:"value"`
	ExpiresAt *time.Time `db:"expires_at"`
}

func (c *PostgresCache) Get(key string) ([]byte, error) {
	var row cacheRow
	err := c.db.Get(&row, "SELECT value, expires_at FROM cache_entries WHERE key = $1", key)
	if err == sql.ErrNoRows {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if row.ExpiresAt != nil && time.Now().After(*row.ExpiresAt) {
		_, _ = c.db.Exec("DELETE FROM cache_entries WHERE key = $1", key)
		return nil, cache.ErrNotFound
	}
	return row.Value, nil
}

func (c *PostgresCache) Set(key string, value []byte, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}
	_, err := c.db.Exec(`
		INSERT INTO cache_entries (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, expiresAt)
	return err
}

func (c *PostgresCache) Delete(key string) error {
	_, err := c.db.Exec("DELETE FROM cache_entries WHERE key = $1", key)
	return err
}
