package cache

const schemaSQL = `
CREATE TABLE IF NOT EXISTS symbol_coverage (
    symbol TEXT PRIMARY KEY,
    covered_start TEXT NOT NULL,
    covered_end TEXT NOT NULL,
    last_update TEXT NOT NULL,
    last_trading_day_at_update TEXT NOT NULL,
    delisted INTEGER NOT NULL DEFAULT 0,
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error_kind TEXT NOT NULL DEFAULT '',
    last_error_message TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS no_data_intervals (
    symbol TEXT NOT NULL,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    PRIMARY KEY (symbol, start_date)
);
CREATE INDEX IF NOT EXISTS idx_no_data_symbol ON no_data_intervals(symbol);

CREATE TABLE IF NOT EXISTS sentinel (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    fetched_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS preflight (
    day TEXT PRIMARY KEY,
    passed INTEGER NOT NULL
);
`

// migrate applies schemaSQL idempotently. Unlike the teacher's file-backed
// schema loader (which reads a sibling schemas/ directory via
// runtime.Caller), this schema is small enough to embed as a literal: there
// is exactly one database in this process, so there is no per-database
// schema file to select among.
func (s *Store) migrate() error {
	_, err := s.conn.db.Exec(schemaSQL)
	return err
}
