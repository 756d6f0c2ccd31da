package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thiago-r-goveia/recordkit/internal/models"
)

func ConnectDB(connStr string) (*pgxpool.Pool, error) {
	dbpool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return dbpool, nil
}

type PostgresDBManager struct {
	dbpool *pgxpool.Pool
	ctx    context.Context
}

func NewPostgresDBManager(ctx context.Context, pool *pgxpool.Pool) *PostgresDBManager {
	return &PostgresDBManager{dbpool: pool, ctx: ctx}
}

func (m *PostgresDBManager) CreateTables() error {
	queries := []string{`
	CREATE TABLE IF NOT EXISTS file_records (
		id SERIAL PRIMARY KEY,
		file_name TEXT NOT NULL,
		format VARCHAR(100) NOT NULL,
		run_id VARCHAR(36),
		processed_at TIMESTAMP NOT NULL,
		status VARCHAR(50) NOT NULL CHECK (status IN ('DONE', 'DONE_WITH_ERRORS', 'PROCESSING', 'NOT_FOUND', 'FATAL')),
		checksum VARCHAR(64),
		errors jsonb
	);`, `
	CREATE TABLE IF NOT EXISTS aggregate_entries (
		id BIGSERIAL PRIMARY KEY,
		file_id INTEGER NOT NULL REFERENCES file_records (id),
		format VARCHAR(100) NOT NULL,
		accumulator VARCHAR(100) NOT NULL,
		key TEXT NOT NULL,
		value jsonb NOT NULL
	);`,
		`CREATE INDEX IF NOT EXISTS idx_aggregate_entries_format ON aggregate_entries (format, accumulator);`,
	}

	for _, query := range queries {
		if _, err := m.dbpool.Exec(m.ctx, query); err != nil {
			return fmt.Errorf("error creating tables: %w", err)
		}
	}
	return nil
}

func (m *PostgresDBManager) InsertFileRecord(fileName, format, runID string, date time.Time, status, checksum string) (int, error) {
	query := `
	INSERT INTO file_records (file_name, format, run_id, processed_at, status, checksum)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id;`

	var fileID int
	err := m.dbpool.QueryRow(m.ctx, query, fileName, format, runID, date, status, checksum).Scan(&fileID)
	if err != nil {
		return 0, fmt.Errorf("error inserting file record: %w", err)
	}

	return fileID, nil
}

func (m *PostgresDBManager) UpdateFileStatus(fileID int, status string, errors any) error {
	query := `
	UPDATE file_records
	SET status = $1,
		errors = $2
	WHERE id = $3;`

	_, err := m.dbpool.Exec(m.ctx, query, status, errors, fileID)
	if err != nil {
		return fmt.Errorf("error updating file status: %w", err)
	}

	return nil
}

// IsFileAlreadyProcessed reports whether a file with the same checksum was
// already stored, with or without line errors.
func (m *PostgresDBManager) IsFileAlreadyProcessed(checksum string) (bool, error) {
	query := `
	SELECT id
	FROM file_records
	WHERE checksum = $1 AND status IN ('DONE', 'DONE_WITH_ERRORS')
	LIMIT 1;`

	var id int
	err := m.dbpool.QueryRow(m.ctx, query, checksum).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("error finding file record by checksum: %w", err)
	}

	return true, nil
}

// InsertAggregateEntries bulk loads entries with COPY in one transaction.
func (m *PostgresDBManager) InsertAggregateEntries(entries []models.AggregateEntry) error {
	if len(entries) == 0 {
		return nil
	}

	columnNames := []string{"file_id", "format", "accumulator", "key", "value"}
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		value, err := json.Marshal(e.Value)
		if err != nil {
			return fmt.Errorf("error encoding value of %s/%s: %w", e.Accumulator, e.Key, err)
		}
		rows = append(rows, []any{e.FileID, e.Format, e.Accumulator, e.Key, json.RawMessage(value)})
	}

	tx, err := m.dbpool.Begin(m.ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback(m.ctx)

	if _, err := tx.CopyFrom(m.ctx, pgx.Identifier{"aggregate_entries"}, columnNames, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("unable to copy %d aggregate entries: %w", len(entries), err)
	}

	return tx.Commit(m.ctx)
}

func (m *PostgresDBManager) GetAggregate(format string) ([]models.AggregateEntry, error) {
	query := `
	SELECT file_id, format, accumulator, key, value
	FROM aggregate_entries
	WHERE format = $1
	ORDER BY file_id, id;`

	rows, err := m.dbpool.Query(m.ctx, query, format)
	if err != nil {
		return nil, fmt.Errorf("error querying aggregate %s: %w", format, err)
	}
	defer rows.Close()

	entries := []models.AggregateEntry{}
	for rows.Next() {
		var e models.AggregateEntry
		var raw []byte
		if err := rows.Scan(&e.FileID, &e.Format, &e.Accumulator, &e.Key, &raw); err != nil {
			return nil, fmt.Errorf("error scanning aggregate entry: %w", err)
		}
		if err := json.Unmarshal(raw, &e.Value); err != nil {
			return nil, fmt.Errorf("error decoding aggregate entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	return entries, nil
}

func (m *PostgresDBManager) ListFiles() ([]models.FileRecord, error) {
	query := `
	SELECT id, file_name, format, COALESCE(run_id, ''), processed_at, status, COALESCE(checksum, '')
	FROM file_records
	ORDER BY id;`

	rows, err := m.dbpool.Query(m.ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying file records: %w", err)
	}
	defer rows.Close()

	files := []models.FileRecord{}
	for rows.Next() {
		var f models.FileRecord
		if err := rows.Scan(&f.ID, &f.FileName, &f.Format, &f.RunID, &f.ProcessedAt, &f.Status, &f.Checksum); err != nil {
			return nil, fmt.Errorf("error scanning file record: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	return files, nil
}

func (m *PostgresDBManager) Close() {
	m.dbpool.Close()
}
