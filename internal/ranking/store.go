package ranking

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS ranking_records (
	date             TEXT NOT NULL,
	establishment_id TEXT NOT NULL,
	query            TEXT NOT NULL,
	frequency        INTEGER NOT NULL DEFAULT 0,
	best_position    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, establishment_id, query)
);
`

// mergeSQL folds a record into its row: frequency adds up, best_position
// converges to the minimum with 0 treated as unranked.
const mergeSQL = `
	INSERT INTO ranking_records (date, establishment_id, query, frequency, best_position)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (date, establishment_id, query) DO UPDATE SET
		frequency = frequency + excluded.frequency,
		best_position = CASE
			WHEN excluded.best_position = 0 THEN best_position
			WHEN best_position = 0 THEN excluded.best_position
			WHEN excluded.best_position < best_position THEN excluded.best_position
			ELSE best_position
		END`

// Store persists ranking records in SQLite so that re-runs within the same
// day (e.g. after a crash-restart) accumulate frequency and never regress
// best_position. best_position 0 means unranked.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the record database at path. The caller must
// blank-import an SQLite driver, e.g. modernc.org/sqlite.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ranking: open %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("ranking: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ranking: apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ranking: ping: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// MergeRecord folds an in-memory record into the persisted table: frequency
// is added, best_position converges to the minimum non-zero value.
func (s *Store) MergeRecord(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, mergeSQL,
		rec.Date, rec.EstablishmentID, rec.Query, rec.Frequency, rec.BestPosition)
	if err != nil {
		return fmt.Errorf("ranking: merge record %s/%s/%s: %w",
			rec.Date, rec.EstablishmentID, rec.Query, err)
	}
	return nil
}

// MergeAll folds every record in one transaction.
func (s *Store) MergeAll(ctx context.Context, recs []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ranking: begin: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range recs {
		_, err := tx.ExecContext(ctx, mergeSQL,
			rec.Date, rec.EstablishmentID, rec.Query, rec.Frequency, rec.BestPosition)
		if err != nil {
			return fmt.Errorf("ranking: merge record %s/%s/%s: %w",
				rec.Date, rec.EstablishmentID, rec.Query, err)
		}
	}
	return tx.Commit()
}

// RecordsForMonth returns all persisted records whose date falls in the
// given month, ordered by establishment, query, date.
func (s *Store) RecordsForMonth(ctx context.Context, year int, month int) ([]Record, error) {
	pattern := fmt.Sprintf("%%.%02d.%04d", month, year)
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, establishment_id, query, frequency, best_position
		FROM ranking_records
		WHERE date LIKE ?
		ORDER BY establishment_id, query, date`, pattern)
	if err != nil {
		return nil, fmt.Errorf("ranking: query month %02d.%04d: %w", month, year, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Date, &rec.EstablishmentID, &rec.Query,
			&rec.Frequency, &rec.BestPosition); err != nil {
			return nil, fmt.Errorf("ranking: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
