package database

import (
	"time"

	"github.com/thiago-r-goveia/recordkit/internal/models"
)

const (
	FILE_STATUS_PROCESSING       = "PROCESSING"
	FILE_STATUS_DONE             = "DONE"
	FILE_STATUS_DONE_WITH_ERRORS = "DONE_WITH_ERRORS"
	FILE_STATUS_NOT_FOUND        = "NOT_FOUND"
	FILE_STATUS_FATAL            = "FATAL"
)

type DBManager interface {
	CreateTables() error
	InsertFileRecord(fileName, format, runID string, date time.Time, status, checksum string) (int, error)
	UpdateFileStatus(fileID int, status string, errors any) error
	IsFileAlreadyProcessed(checksum string) (bool, error)
	InsertAggregateEntries(entries []models.AggregateEntry) error
	GetAggregate(format string) ([]models.AggregateEntry, error)
	ListFiles() ([]models.FileRecord, error)
	Close()
}
