package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/thiago-r-goveia/recordkit/internal/models"
)

// SQLiteDBManager keeps file records and aggregates in a local SQLite file.
type SQLiteDBManager struct {
	db  *sql.DB
	ctx context.Context
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteDBManager, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return &SQLiteDBManager{db: db, ctx: ctx}, nil
}

func (m *SQLiteDBManager) CreateTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS file_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_name TEXT NOT NULL,
		format TEXT NOT NULL,
		run_id TEXT,
		processed_at TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('DONE', 'DONE_WITH_ERRORS', 'PROCESSING', 'NOT_FOUND', 'FATAL')),
		checksum TEXT,
		errors TEXT
	);

	CREATE TABLE IF NOT EXISTS aggregate_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL REFERENCES file_records (id),
		format TEXT NOT NULL,
		accumulator TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_aggregate_entries_format ON aggregate_entries (format, accumulator);
	`
	if _, err := m.db.ExecContext(m.ctx, schema); err != nil {
		return fmt.Errorf("error creating tables: %w", err)
	}
	return nil
}

func (m *SQLiteDBManager) InsertFileRecord(fileName, format, runID string, date time.Time, status, checksum string) (int, error) {
	res, err := m.db.ExecContext(m.ctx, `
	INSERT INTO file_records (file_name, format, run_id, processed_at, status, checksum)
	VALUES (?, ?, ?, ?, ?, ?);`,
		fileName, format, runID, date.UTC().Format(time.RFC3339Nano), status, checksum)
	if err != nil {
		return 0, fmt.Errorf("error inserting file record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("error reading file record id: %w", err)
	}
	return int(id), nil
}

func (m *SQLiteDBManager) UpdateFileStatus(fileID int, status string, errors any) error {
	var encoded sql.NullString
	if errors != nil {
		data, err := json.Marshal(errors)
		if err != nil {
			return fmt.Errorf("error encoding file errors: %w", err)
		}
		encoded = sql.NullString{String: string(data), Valid: true}
	}

	if _, err := m.db.ExecContext(m.ctx, `UPDATE file_records SET status = ?, errors = ? WHERE id = ?;`, status, encoded, fileID); err != nil {
		return fmt.Errorf("error updating file status: %w", err)
	}
	return nil
}

func (m *SQLiteDBManager) IsFileAlreadyProcessed(checksum string) (bool, error) {
	var id int
	err := m.db.QueryRowContext(m.ctx, `
	SELECT id FROM file_records
	WHERE checksum = ? AND status IN ('DONE', 'DONE_WITH_ERRORS')
	LIMIT 1;`, checksum).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("error finding file record by checksum: %w", err)
	}
	return true, nil
}

func (m *SQLiteDBManager) InsertAggregateEntries(entries []models.AggregateEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := m.db.BeginTx(m.ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(m.ctx, `
	INSERT INTO aggregate_entries (file_id, format, accumulator, key, value)
	VALUES (?, ?, ?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("error preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		value, err := json.Marshal(e.Value)
		if err != nil {
			return fmt.Errorf("error encoding value of %s/%s: %w", e.Accumulator, e.Key, err)
		}
		if _, err := stmt.ExecContext(m.ctx, e.FileID, e.Format, e.Accumulator, e.Key, string(value)); err != nil {
			return fmt.Errorf("error inserting aggregate entry: %w", err)
		}
	}

	return tx.Commit()
}

func (m *SQLiteDBManager) GetAggregate(format string) ([]models.AggregateEntry, error) {
	rows, err := m.db.QueryContext(m.ctx, `
	SELECT file_id, format, accumulator, key, value
	FROM aggregate_entries
	WHERE format = ?
	ORDER BY file_id, id;`, format)
	if err != nil {
		return nil, fmt.Errorf("error querying aggregate %s: %w", format, err)
	}
	defer rows.Close()

	entries := []models.AggregateEntry{}
	for rows.Next() {
		var e models.AggregateEntry
		var raw string
		if err := rows.Scan(&e.FileID, &e.Format, &e.Accumulator, &e.Key, &raw); err != nil {
			return nil, fmt.Errorf("error scanning aggregate entry: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &e.Value); err != nil {
			return nil, fmt.Errorf("error decoding aggregate entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}
	return entries, nil
}

func (m *SQLiteDBManager) ListFiles() ([]models.FileRecord, error) {
	rows, err := m.db.QueryContext(m.ctx, `
	SELECT id, file_name, format, COALESCE(run_id, ''), processed_at, status, COALESCE(checksum, '')
	FROM file_records
	ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("error querying file records: %w", err)
	}
	defer rows.Close()

	files := []models.FileRecord{}
	for rows.Next() {
		var f models.FileRecord
		var processedAt string
		if err := rows.Scan(&f.ID, &f.FileName, &f.Format, &f.RunID, &processedAt, &f.Status, &f.Checksum); err != nil {
			return nil, fmt.Errorf("error scanning file record: %w", err)
		}
		if f.ProcessedAt, err = time.Parse(time.RFC3339Nano, processedAt); err != nil {
			return nil, fmt.Errorf("error parsing processed_at of file %d: %w", f.ID, err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}
	return files, nil
}

func (m *SQLiteDBManager) Close() {
	m.db.Close()
}
