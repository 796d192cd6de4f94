package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// conn wraps a *sql.DB configured for a single-writer, many-reader, durable
// cache file: WAL journaling, NORMAL synchronous (fsync at checkpoints, not
// every write), and a modest page cache. There is only one profile here
// (unlike a multi-database application) because this process owns exactly
// one SQLite file.
type conn struct {
	db   *sql.DB
	path string
}

func openConn(path string) (*conn, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	connStr := buildConnectionString(absPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite WAL tolerates one writer; keep it simple and avoid SQLITE_BUSY churn
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(24 * time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	return &conn{db: db, path: absPath}, nil
}

func buildConnectionString(path string) string {
	connStr := path + "?_pragma=journal_mode(WAL)"
	connStr += "&_pragma=synchronous(NORMAL)"
	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=busy_timeout(5000)"
	connStr += "&_pragma=cache_size(-16000)"
	return connStr
}

func (c *conn) Close() error {
	return c.db.Close()
}

// withTransaction runs fn inside a transaction, rolling back on error or
// panic and committing otherwise. Adapted from the teacher's
// database.WithTransaction helper.
func (c *conn) withTransaction(fn func(*sql.Tx) error) (err error) {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in cache transaction: %v", p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("cache transaction failed: %w (rollback also failed: %v)", err, rbErr)
			}
		} else {
			if commitErr := tx.Commit(); commitErr != nil {
				err = fmt.Errorf("failed to commit cache transaction: %w", commitErr)
			}
		}
	}()

	err = fn(tx)
	return err
}
