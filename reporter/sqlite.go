package reporter

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS opportunities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	observed_at TEXT NOT NULL,
	price_a TEXT NOT NULL,
	price_b TEXT NOT NULL,
	profit_a_to_b TEXT NOT NULL,
	profit_b_to_a TEXT NOT NULL,
	spread_percent TEXT NOT NULL,
	loan_amount_usd TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_opportunities_observed_at ON opportunities (observed_at);
`

// SQLiteSink appends audit records to a SQLite table. Amounts are
// stored as decimal strings to keep full precision.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the database at dbPath.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit db: %w", err)
	}

	// WAL keeps appends from blocking on readers
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise schema: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Append inserts one record row.
func (s *SQLiteSink) Append(rec *Record) error {
	_, err := s.db.Exec(
		`INSERT INTO opportunities (observed_at, price_a, price_b, profit_a_to_b, profit_b_to_a, spread_percent, loan_amount_usd)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		rec.PriceA.String(),
		rec.PriceB.String(),
		rec.ProfitAToB.String(),
		rec.ProfitBToA.String(),
		rec.SpreadPercent.String(),
		rec.LoanAmount.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit row: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
