package ingestion

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/thiago-r-goveia/recordkit/internal/database"
	"github.com/thiago-r-goveia/recordkit/internal/formats"
	"github.com/thiago-r-goveia/recordkit/internal/models"
)

// Processor defines the interface for file processing operations.
type Processor interface {
	ScanForFiles(rootPath string) ([]models.FileInfo, error)
	UpdateFileStatus(fileErrorsMap *models.FileErrorMap, fileMap *models.FileMap) error
}

// FileProcessor discovers the files a run should ingest and records their
// final status.
type FileProcessor struct {
	dbManager database.DBManager
	registry  *formats.Registry
	logger    *zap.Logger
}

func NewFileProcessor(dbManager database.DBManager, registry *formats.Registry, logger *zap.Logger) *FileProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileProcessor{
		dbManager: dbManager,
		registry:  registry,
		logger:    logger,
	}
}

// ScanForFiles walks rootPath and pairs every file with the format whose
// match pattern accepts its name. Files no format accepts are skipped.
func (fp *FileProcessor) ScanForFiles(rootPath string) ([]models.FileInfo, error) {
	var fileInfos []models.FileInfo
	fp.logger.Info("Scanning for files", zap.String("root", rootPath))

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		schema, ok := fp.registry.Match(path)
		if !ok {
			fp.logger.Debug("No format matches file, skipping", zap.String("file", path))
			return nil
		}
		fileInfos = append(fileInfos, models.FileInfo{Path: path, Format: schema.Name})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking directory %s: %w", rootPath, err)
	}

	fp.logger.Info("Found files to process", zap.Int("files", len(fileInfos)))
	return fileInfos, nil
}

// FileStatus derives the final status of a file from the errors collected
// for it.
func FileStatus(fileErrorsMap *models.FileErrorMap, fileID int) string {
	switch kind, fatal := fileErrorsMap.Fatal[fileID]; {
	case fatal && kind == models.ErrorKindNotFound:
		return database.FILE_STATUS_NOT_FOUND
	case fatal:
		return database.FILE_STATUS_FATAL
	case len(fileErrorsMap.Errors[fileID]) > 0:
		return database.FILE_STATUS_DONE_WITH_ERRORS
	default:
		return database.FILE_STATUS_DONE
	}
}

func (fp *FileProcessor) UpdateFileStatus(fileErrorsMap *models.FileErrorMap, fileMap *models.FileMap) error {
	var errs []error
	for fileID, path := range *fileMap {
		appErrors := fileErrorsMap.Errors[fileID]
		status := FileStatus(fileErrorsMap, fileID)

		if err := fp.dbManager.UpdateFileStatus(fileID, status, appErrors); err != nil {
			fp.logger.Error("Failed to update file status", zap.Int("file_id", fileID), zap.String("file", path), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
