package nvs

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// sqliteEngine stores entries in a single SQLite table
type sqliteEngine struct {
	db     *sql.DB
	logger *logrus.Logger
}

func openSQLite(opts Options) (*sqliteEngine, error) {
	if opts.DataDir == "" {
		return nil, errors.New("nvs: sqlite backend requires a data directory")
	}
	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(opts.DataDir, "nvs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// one writer at a time keeps commits serialized
	db.SetMaxOpenConns(1)

	e := &sqliteEngine{db: db, logger: opts.Logger}
	if err := e.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	opts.Logger.WithField("path", dbPath).Debug("SQLite nvs engine initialized")
	return e, nil
}

func (e *sqliteEngine) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS nvs_namespaces (
		namespace TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS nvs_entries (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (namespace, key)
	);
	`
	_, err := e.db.Exec(query)
	return err
}

func (e *sqliteEngine) name() string { return "sqlite" }

func (e *sqliteEngine) get(namespace, key string) ([]byte, error) {
	var value []byte
	err := e.db.QueryRow(`SELECT value FROM nvs_entries WHERE namespace = ? AND key = ?`, namespace, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return value, nil
}

func (e *sqliteEngine) hasNamespace(namespace string) (bool, error) {
	var n int
	err := e.db.QueryRow(`SELECT COUNT(*) FROM nvs_namespaces WHERE namespace = ?`, namespace).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query namespace: %w", err)
	}
	return n > 0, nil
}

func (e *sqliteEngine) apply(namespace string, sets map[string][]byte, eraseAll bool) error {
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()

	if eraseAll {
		if _, err := tx.Exec(`DELETE FROM nvs_entries WHERE namespace = ?`, namespace); err != nil {
			return fmt.Errorf("failed to erase %s: %w", namespace, err)
		}
	}
	for k, v := range sets {
		_, err := tx.Exec(`
		INSERT INTO nvs_entries (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, namespace, k, v, now)
		if err != nil {
			return fmt.Errorf("failed to set %s: %w", k, err)
		}
	}
	if _, err := tx.Exec(`INSERT OR IGNORE INTO nvs_namespaces (namespace, created_at) VALUES (?, ?)`, namespace, now); err != nil {
		return fmt.Errorf("failed to register namespace: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (e *sqliteEngine) close() error {
	return e.db.Close()
}
