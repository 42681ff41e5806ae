package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

type dialect struct {
	schema string
	get    string
	set    string
	del    string
}

var dialects = map[string]dialect{
	"sqlite3": {
		schema: `CREATE TABLE IF NOT EXISTS kv (key BLOB PRIMARY KEY, value BLOB NOT NULL)`,
		get:    `SELECT value FROM kv WHERE key = ?`,
		set:    `INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		del:    `DELETE FROM kv WHERE key = ?`,
	},
	"postgres": {
		schema: `CREATE TABLE IF NOT EXISTS kv (key BYTEA PRIMARY KEY, value BYTEA NOT NULL)`,
		get:    `SELECT value FROM kv WHERE key = $1`,
		set:    `INSERT INTO kv (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		del:    `DELETE FROM kv WHERE key = $1`,
	},
}

// SQLStore keeps key-value pairs in a single kv table of a SQL database.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

var _ Backend = (*SQLStore)(nil)

// NewSQL opens a database with the given driver ("sqlite3" or "postgres")
// and makes sure the kv table exists.
func NewSQL(driver, dsn string) (*SQLStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("%w: sql driver %q", ErrUnknownBackend, driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == "sqlite3" {
		// Serialize writers; sqlite allows only one at a time.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	if _, err := db.Exec(d.schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv table: %w", err)
	}

	log.Debug().Str("driver", driver).Msg("sql store opened")
	return &SQLStore{db: db, dialect: d}, nil
}

// Get retrieves a value by key
func (s *SQLStore) Get(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(s.dialect.get, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %q failed: %w", key, err)
	}
	return value, nil
}

// Set stores a key-value pair
func (s *SQLStore) Set(key, value []byte) error {
	if _, err := s.db.Exec(s.dialect.set, key, value); err != nil {
		return fmt.Errorf("set %q failed: %w", key, err)
	}
	return nil
}

// Delete removes a key
func (s *SQLStore) Delete(key []byte) error {
	if _, err := s.db.Exec(s.dialect.del, key); err != nil {
		return fmt.Errorf("delete %q failed: %w", key, err)
	}
	return nil
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}
