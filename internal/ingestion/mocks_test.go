package ingestion

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/thiago-r-goveia/recordkit/internal/events"
	"github.com/thiago-r-goveia/recordkit/internal/models"
)

// MockDBManager is a mock implementation of the DBManager interface.
type MockDBManager struct {
	mock.Mock
}

func (m *MockDBManager) CreateTables() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDBManager) InsertFileRecord(fileName, format, runID string, date time.Time, status, checksum string) (int, error) {
	args := m.Called(fileName, format, runID, date, status, checksum)
	return args.Int(0), args.Error(1)
}

func (m *MockDBManager) UpdateFileStatus(fileID int, status string, errors any) error {
	args := m.Called(fileID, status, errors)
	return args.Error(0)
}

func (m *MockDBManager) IsFileAlreadyProcessed(checksum string) (bool, error) {
	args := m.Called(checksum)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBManager) InsertAggregateEntries(entries []models.AggregateEntry) error {
	args := m.Called(entries)
	return args.Error(0)
}

func (m *MockDBManager) GetAggregate(format string) ([]models.AggregateEntry, error) {
	args := m.Called(format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AggregateEntry), args.Error(1)
}

func (m *MockDBManager) ListFiles() ([]models.FileRecord, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.FileRecord), args.Error(1)
}

func (m *MockDBManager) Close() {
	m.Called()
}

// MockWorker is a mock implementation of the Worker interface.
type MockWorker struct {
	mock.Mock
}

func (m *MockWorker) WithChannels(channels *models.ExtractionChannels) Worker {
	m.Called(channels)
	return m
}

func (m *MockWorker) WithWaitGroups(waitGroups *models.ExtractionWaitGroups) Worker {
	m.Called(waitGroups)
	return m
}

func (m *MockWorker) SetupErrorWorker() (Runner[func(*models.FileErrorMap)], *sync.WaitGroup, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return Runner[func(*models.FileErrorMap)]{}, nil, args.Error(2)
	}
	return args.Get(0).(Runner[func(*models.FileErrorMap)]), args.Get(1).(*sync.WaitGroup), args.Error(2)
}

func (m *MockWorker) SetupParserWorkers(numWorkers int) (Runner[func()], *sync.WaitGroup, error) {
	args := m.Called(numWorkers)
	if args.Get(0) == nil {
		return Runner[func()]{}, nil, args.Error(2)
	}
	return args.Get(0).(Runner[func()]), args.Get(1).(*sync.WaitGroup), args.Error(2)
}

func (m *MockWorker) SetupDBWorkers(numWorkers int) (Runner[func(StoreHandler) error], *sync.WaitGroup, error) {
	args := m.Called(numWorkers)
	if args.Get(0) == nil {
		return Runner[func(StoreHandler) error]{}, nil, args.Error(2)
	}
	return args.Get(0).(Runner[func(StoreHandler) error]), args.Get(1).(*sync.WaitGroup), args.Error(2)
}

func (m *MockWorker) SetupJobDispatcherWorker(ctx context.Context, runID string, fileInfos []models.FileInfo, fileMap map[int]string) (Runner[func()], *sync.WaitGroup, error) {
	args := m.Called(ctx, runID, fileInfos, fileMap)
	if args.Get(0) == nil {
		return Runner[func()]{}, nil, args.Error(2)
	}
	return args.Get(0).(Runner[func()]), args.Get(1).(*sync.WaitGroup), args.Error(2)
}

// MockProcessor is a mock implementation of the Processor interface.
type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) ScanForFiles(path string) ([]models.FileInfo, error) {
	args := m.Called(path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.FileInfo), args.Error(1)
}

func (m *MockProcessor) UpdateFileStatus(fileErrorsMap *models.FileErrorMap, fileMap *models.FileMap) error {
	args := m.Called(fileErrorsMap, fileMap)
	return args.Error(0)
}

// MockSetup is a mock implementation of the ISetup interface.
type MockSetup struct {
	mock.Mock
}

func (m *MockSetup) build() (models.SetupReturn, error) {
	args := m.Called()
	return args.Get(0).(models.SetupReturn), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event events.FileIngested) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}
