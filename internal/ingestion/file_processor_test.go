package ingestion

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/thiago-r-goveia/recordkit/internal/database"
	"github.com/thiago-r-goveia/recordkit/internal/formats"
	"github.com/thiago-r-goveia/recordkit/internal/models"
)

func newTestProcessor(t *testing.T, dbManager *MockDBManager) *FileProcessor {
	t.Helper()
	registry, err := formats.NewRegistry()
	require.NoError(t, err)
	return NewFileProcessor(dbManager, registry, nil)
}

func TestFileProcessor_ScanForFiles(t *testing.T) {
	t.Run("Success case - pairs files with their format", func(t *testing.T) {
		dir := t.TempDir()
		mut := writeFile(t, dir, "a.mut", "s1:P53\n")
		writeFile(t, dir, "notes.txt", "ignored")
		fasta := writeFile(t, dir, filepath.Join("nested", "genome.fasta"), ">x\nACGT\n")

		fileInfos, err := newTestProcessor(t, nil).ScanForFiles(dir)
		require.NoError(t, err)

		assert.ElementsMatch(t, []models.FileInfo{
			{Path: mut, Format: "mutations"},
			{Path: fasta, Format: "fasta"},
		}, fileInfos)
	})

	t.Run("Expect: an error for a missing directory", func(t *testing.T) {
		_, err := newTestProcessor(t, nil).ScanForFiles(filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})
}

func TestFileStatus(t *testing.T) {
	fileErrorsMap := &models.FileErrorMap{
		Errors: map[int][]models.AppError{
			2: {{FileID: 2, Line: 3}},
			3: {{FileID: 3, Kind: models.ErrorKindNotFound}},
			4: {{FileID: 4, Kind: models.ErrorKindStorage}},
		},
		Fatal: map[int]string{3: models.ErrorKindNotFound, 4: models.ErrorKindStorage},
	}

	assert.Equal(t, database.FILE_STATUS_DONE, FileStatus(fileErrorsMap, 1))
	assert.Equal(t, database.FILE_STATUS_DONE_WITH_ERRORS, FileStatus(fileErrorsMap, 2))
	assert.Equal(t, database.FILE_STATUS_NOT_FOUND, FileStatus(fileErrorsMap, 3))
	assert.Equal(t, database.FILE_STATUS_FATAL, FileStatus(fileErrorsMap, 4))
}

func TestFileProcessor_UpdateFileStatus(t *testing.T) {
	lineErrors := []models.AppError{{FileID: 2, Line: 3, Message: "bad"}}
	fileErrorsMap := &models.FileErrorMap{
		Errors: map[int][]models.AppError{2: lineErrors},
		Fatal:  map[int]string{},
	}
	fileMap := models.FileMap{1: "a.mut", 2: "b.mut"}

	t.Run("Success case - updates every file", func(t *testing.T) {
		dbManager := new(MockDBManager)
		dbManager.On("UpdateFileStatus", 1, database.FILE_STATUS_DONE, mock.Anything).Return(nil).Once()
		dbManager.On("UpdateFileStatus", 2, database.FILE_STATUS_DONE_WITH_ERRORS, lineErrors).Return(nil).Once()

		err := newTestProcessor(t, dbManager).UpdateFileStatus(fileErrorsMap, &fileMap)

		require.NoError(t, err)
		dbManager.AssertExpectations(t)
	})

	t.Run("Expect: failures to be joined while the other files are still updated", func(t *testing.T) {
		dbManager := new(MockDBManager)
		dbManager.On("UpdateFileStatus", 1, database.FILE_STATUS_DONE, mock.Anything).Return(errors.New("locked")).Once()
		dbManager.On("UpdateFileStatus", 2, database.FILE_STATUS_DONE_WITH_ERRORS, lineErrors).Return(nil).Once()

		err := newTestProcessor(t, dbManager).UpdateFileStatus(fileErrorsMap, &fileMap)

		assert.EqualError(t, err, "locked")
		dbManager.AssertExpectations(t)
	})
}
